package events

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/lightbot/golighter/internal/domain"
)

// Event 事件总线上流转的类型化事件
// WebSocket 监听 goroutine 只负责解析并投递事件，所有状态变更在事件循环内完成
type Event interface {
	isEvent()
}

// OrderUpdate 订单状态更新（来自 WebSocket 或对账）
type OrderUpdate struct {
	ClientOrderID  string
	ExchangeID     string
	Symbol         string
	Status         domain.OrderStatus
	FilledQuantity decimal.Decimal
	Timestamp      time.Time
}

// Fill 确认成交
type Fill struct {
	Fill domain.Fill
}

// PriceTick 最优买卖价更新
type PriceTick struct {
	Symbol    string
	BestBid   decimal.Decimal
	BestAsk   decimal.Decimal
	Timestamp time.Time
}

// Mid 中间价
func (t PriceTick) Mid() decimal.Decimal {
	if t.BestBid.IsZero() {
		return t.BestAsk
	}
	if t.BestAsk.IsZero() {
		return t.BestBid
	}
	return t.BestBid.Add(t.BestAsk).Div(decimal.NewFromInt(2))
}

// Connectivity 连接状态变化
// Up 为 true 表示重连成功且订阅已恢复，此时必须触发一次对账
type Connectivity struct {
	Up        bool
	Reason    string
	Timestamp time.Time
}

func (OrderUpdate) isEvent()  {}
func (Fill) isEvent()         {}
func (PriceTick) isEvent()    {}
func (Connectivity) isEvent() {}
