package ports

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/lightbot/golighter/internal/domain"
)

// ExchangeGateway 交易所网关
// 所有调用带 context 超时；超时返回后订单的真实结果未知，调用方必须触发对账而不是盲目重试
type ExchangeGateway interface {
	// PlaceLimitOrder 挂限价单，返回交易所订单 ID
	PlaceLimitOrder(ctx context.Context, inst domain.Instrument, side domain.Side, price, qty decimal.Decimal, clientOrderID string) (string, error)

	// PlaceMarketOrder 下市价单（用于手动平仓）
	PlaceMarketOrder(ctx context.Context, inst domain.Instrument, side domain.Side, qty decimal.Decimal, clientOrderID string) (string, error)

	// CancelOrder 撤销单个订单
	CancelOrder(ctx context.Context, inst domain.Instrument, exchangeID string) error

	// CancelAllOrders 批量撤销该标的的全部挂单
	CancelAllOrders(ctx context.Context, inst domain.Instrument) error

	// OpenOrders 查询交易所视角的活跃订单（对账权威数据）
	OpenOrders(ctx context.Context, inst domain.Instrument) ([]domain.Order, error)

	// Positions 查询交易所视角的持仓（对账权威数据）
	Positions(ctx context.Context) ([]domain.Position, error)

	// InstrumentMeta 拉取标的的市场约束
	InstrumentMeta(ctx context.Context, symbol string) (domain.Instrument, error)

	// SetLeverage 设置杠杆（启动时调用一次）
	SetLeverage(ctx context.Context, inst domain.Instrument, leverage int) error
}

// BulkCancelOutcome 批量撤单的结构化结果
// 批量接口失败时会逐单兜底撤销，Failed 记录兜底仍失败的订单
type BulkCancelOutcome struct {
	Method    string   // "bulk" 或 "per-order"
	Cancelled []string // 成功撤销的交易所订单 ID
	Failed    []string // 撤销失败的交易所订单 ID
	Err       error    // 整体失败时的错误
}

// AllCancelled 是否全部撤销成功
func (o BulkCancelOutcome) AllCancelled() bool {
	return o.Err == nil && len(o.Failed) == 0
}
