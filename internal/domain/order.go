package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side 订单方向
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Opposite 返回相反方向
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderStatus 订单状态
type OrderStatus string

const (
	OrderStatusPending  OrderStatus = "pending"  // 已提交，尚未收到交易所确认
	OrderStatusOpen     OrderStatus = "open"     // 交易所已确认挂单
	OrderStatusPartial  OrderStatus = "partial"  // 部分成交
	OrderStatusFilled   OrderStatus = "filled"   // 完全成交（终态）
	OrderStatusCanceled OrderStatus = "canceled" // 已撤销（终态）
	OrderStatusExpired  OrderStatus = "expired"  // 已过期（终态）
	OrderStatusRejected OrderStatus = "rejected" // 被拒绝（终态）
)

// IsTerminal 是否为终态
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCanceled, OrderStatusExpired, OrderStatusRejected:
		return true
	}
	return false
}

// rank 状态单调序：pending < open/partial < 终态
// open 和 partial 同级，允许互相切换（部分成交后剩余继续挂单）
func (s OrderStatus) rank() int {
	switch s {
	case OrderStatusPending:
		return 0
	case OrderStatusOpen, OrderStatusPartial:
		return 1
	case OrderStatusFilled, OrderStatusCanceled, OrderStatusExpired, OrderStatusRejected:
		return 2
	}
	return -1
}

// CanTransition 检查状态迁移是否合法
// 终态不可再迁移；其余状态只允许同级切换或前进，禁止回退
func (s OrderStatus) CanTransition(to OrderStatus) bool {
	if s.IsTerminal() {
		return false
	}
	if s == to {
		return false
	}
	return to.rank() >= s.rank()
}

// Order 订单
// ClientID 是本地生成的幂等键，ExchangeID 在交易所确认后回填
type Order struct {
	ClientID       string
	ExchangeID     string
	Symbol         string
	Side           Side
	Price          decimal.Decimal
	Quantity       decimal.Decimal
	FilledQuantity decimal.Decimal
	Status         OrderStatus
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// IsActive 订单是否仍占用活跃额度（挂单中或部分成交）
func (o *Order) IsActive() bool {
	switch o.Status {
	case OrderStatusPending, OrderStatusOpen, OrderStatusPartial:
		return true
	}
	return false
}

// Remaining 剩余未成交数量
func (o *Order) Remaining() decimal.Decimal {
	r := o.Quantity.Sub(o.FilledQuantity)
	if r.IsNegative() {
		return decimal.Zero
	}
	return r
}

// Age 订单存活时长
func (o *Order) Age(now time.Time) time.Duration {
	return now.Sub(o.CreatedAt)
}
