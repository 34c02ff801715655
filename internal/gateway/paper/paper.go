package paper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/lightbot/golighter/internal/domain"
	"github.com/lightbot/golighter/internal/events"
	"github.com/lightbot/golighter/internal/ports"
)

var paperLog = logrus.WithField("component", "paper_gateway")

// Gateway 纸交易网关
// 不发真实请求：挂单记在本地，价格穿越挂单价时模拟全量成交并投递成交事件
type Gateway struct {
	mu        sync.Mutex
	orders    map[string]*domain.Order // exchangeID -> order
	positions map[string]*domain.Position
	seq       int
}

// NewGateway 创建纸交易网关
func NewGateway() *Gateway {
	return &Gateway{
		orders:    make(map[string]*domain.Order),
		positions: make(map[string]*domain.Position),
	}
}

// PlaceLimitOrder 本地记录限价单
func (g *Gateway) PlaceLimitOrder(ctx context.Context, inst domain.Instrument, side domain.Side, price, qty decimal.Decimal, clientOrderID string) (string, error) {
	if err := inst.ValidateOrder(price, qty); err != nil {
		return "", &ports.ValidationError{Reason: err.Error()}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.seq++
	exchangeID := fmt.Sprintf("paper-%d", g.seq)
	now := time.Now()
	g.orders[exchangeID] = &domain.Order{
		ClientID:   clientOrderID,
		ExchangeID: exchangeID,
		Symbol:     inst.Symbol,
		Side:       side,
		Price:      price,
		Quantity:   qty,
		Status:     domain.OrderStatusOpen,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	paperLog.Infof("📋 [纸交易] 挂单 %s %s @ %s x %s", inst.Symbol, side, price, qty)
	return exchangeID, nil
}

// PlaceMarketOrder 模拟市价单立即成交（平仓用），直接按请求量调整本地持仓
func (g *Gateway) PlaceMarketOrder(ctx context.Context, inst domain.Instrument, side domain.Side, qty decimal.Decimal, clientOrderID string) (string, error) {
	if !qty.IsPositive() {
		return "", &ports.ValidationError{Reason: "数量必须为正"}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.seq++
	exchangeID := fmt.Sprintf("paper-%d", g.seq)
	delta := qty
	if side == domain.SideSell {
		delta = qty.Neg()
	}
	pos := g.positionLocked(inst.Symbol)
	pos.Quantity = pos.Quantity.Add(delta)
	pos.UpdatedAt = time.Now()

	paperLog.Infof("💰 [纸交易] 市价单成交 %s %s x %s", inst.Symbol, side, qty)
	return exchangeID, nil
}

// CancelOrder 撤销本地挂单
func (g *Gateway) CancelOrder(ctx context.Context, inst domain.Instrument, exchangeID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	o, ok := g.orders[exchangeID]
	if !ok || !o.IsActive() {
		return fmt.Errorf("订单不存在或已终结: %s", exchangeID)
	}
	o.Status = domain.OrderStatusCanceled
	o.UpdatedAt = time.Now()
	paperLog.Infof("📋 [纸交易] 撤单 %s", exchangeID)
	return nil
}

// CancelAllOrders 撤销该标的全部本地挂单
func (g *Gateway) CancelAllOrders(ctx context.Context, inst domain.Instrument) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	n := 0
	for _, o := range g.orders {
		if o.Symbol == inst.Symbol && o.IsActive() {
			o.Status = domain.OrderStatusCanceled
			o.UpdatedAt = time.Now()
			n++
		}
	}
	paperLog.Infof("📋 [纸交易] 批量撤单 %d 个", n)
	return nil
}

// OpenOrders 返回本地活跃挂单
func (g *Gateway) OpenOrders(ctx context.Context, inst domain.Instrument) ([]domain.Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	var out []domain.Order
	for _, o := range g.orders {
		if o.Symbol == inst.Symbol && o.IsActive() {
			out = append(out, *o)
		}
	}
	return out, nil
}

// Positions 返回本地持仓
func (g *Gateway) Positions(ctx context.Context) ([]domain.Position, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	var out []domain.Position
	for _, p := range g.positions {
		if !p.IsFlat() {
			out = append(out, *p)
		}
	}
	return out, nil
}

// InstrumentMeta 纸交易模式直接用保守默认约束
func (g *Gateway) InstrumentMeta(ctx context.Context, symbol string) (domain.Instrument, error) {
	return domain.DefaultInstrument(symbol), nil
}

// SetLeverage 纸交易模式为空操作
func (g *Gateway) SetLeverage(ctx context.Context, inst domain.Instrument, leverage int) error {
	paperLog.Infof("📋 [纸交易] 跳过杠杆设置 %dx", leverage)
	return nil
}

// SimulateTick 用最新价格驱动模拟成交
// 买单在最优卖价跌破挂单价时成交，卖单在最优买价升破挂单价时成交；返回产生的事件
func (g *Gateway) SimulateTick(tick events.PriceTick) []events.Event {
	g.mu.Lock()
	defer g.mu.Unlock()

	var out []events.Event
	for _, o := range g.orders {
		if o.Symbol != tick.Symbol || !o.IsActive() {
			continue
		}
		crossed := (o.Side == domain.SideBuy && tick.BestAsk.IsPositive() && tick.BestAsk.LessThanOrEqual(o.Price)) ||
			(o.Side == domain.SideSell && tick.BestBid.IsPositive() && tick.BestBid.GreaterThanOrEqual(o.Price))
		if !crossed {
			continue
		}

		o.FilledQuantity = o.Quantity
		o.Status = domain.OrderStatusFilled
		o.UpdatedAt = tick.Timestamp

		fill := domain.Fill{
			TradeID:       uuid.NewString(),
			ClientOrderID: o.ClientID,
			Symbol:        o.Symbol,
			Side:          o.Side,
			Price:         o.Price,
			Quantity:      o.Quantity,
			Timestamp:     tick.Timestamp,
		}

		pos := g.positionLocked(o.Symbol)
		pos.ApplyFill(&fill)

		paperLog.Infof("💰 [纸交易] 模拟成交 %s %s @ %s x %s", o.Symbol, o.Side, o.Price, o.Quantity)

		out = append(out, events.OrderUpdate{
			ClientOrderID:  o.ClientID,
			ExchangeID:     o.ExchangeID,
			Symbol:         o.Symbol,
			Status:         domain.OrderStatusFilled,
			FilledQuantity: o.FilledQuantity,
			Timestamp:      tick.Timestamp,
		})
		out = append(out, events.Fill{Fill: fill})
	}
	return out
}

func (g *Gateway) positionLocked(symbol string) *domain.Position {
	p, ok := g.positions[symbol]
	if !ok {
		p = &domain.Position{Symbol: symbol}
		g.positions[symbol] = p
	}
	return p
}
