package lifecycle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lightbot/golighter/internal/domain"
	"github.com/lightbot/golighter/internal/engine"
	"github.com/lightbot/golighter/internal/events"
	"github.com/lightbot/golighter/internal/ports"
	"github.com/lightbot/golighter/internal/tracker"
	"github.com/lightbot/golighter/pkg/sigchan"
)

// mockGateway 可编程的网关桩
type mockGateway struct {
	openOrders    []domain.Order
	positions     []domain.Position
	openOrdersErr error
	positionsErr  error

	placeErr      error
	cancelAllErr  error
	cancelErrs    map[string]error // exchangeID -> error
	cancelled     []string
	cancelAllHit  int
	openOrdersHit int
}

func (m *mockGateway) PlaceLimitOrder(ctx context.Context, inst domain.Instrument, side domain.Side, price, qty decimal.Decimal, clientOrderID string) (string, error) {
	if m.placeErr != nil {
		return "", m.placeErr
	}
	return "mock-ex", nil
}

func (m *mockGateway) PlaceMarketOrder(ctx context.Context, inst domain.Instrument, side domain.Side, qty decimal.Decimal, clientOrderID string) (string, error) {
	return "mock-mkt", nil
}

func (m *mockGateway) CancelOrder(ctx context.Context, inst domain.Instrument, exchangeID string) error {
	if err, ok := m.cancelErrs[exchangeID]; ok {
		return err
	}
	m.cancelled = append(m.cancelled, exchangeID)
	return nil
}

func (m *mockGateway) CancelAllOrders(ctx context.Context, inst domain.Instrument) error {
	m.cancelAllHit++
	return m.cancelAllErr
}

func (m *mockGateway) OpenOrders(ctx context.Context, inst domain.Instrument) ([]domain.Order, error) {
	m.openOrdersHit++
	return m.openOrders, m.openOrdersErr
}

func (m *mockGateway) Positions(ctx context.Context) ([]domain.Position, error) {
	return m.positions, m.positionsErr
}

func (m *mockGateway) InstrumentMeta(ctx context.Context, symbol string) (domain.Instrument, error) {
	return domain.DefaultInstrument(symbol), nil
}

func (m *mockGateway) SetLeverage(ctx context.Context, inst domain.Instrument, leverage int) error {
	return nil
}

func newTestController(gw ports.ExchangeGateway) (*Controller, *tracker.Tracker, *tracker.Ledger) {
	orders := tracker.New()
	ledger := tracker.NewLedger()
	reconcileReq := sigchan.New(1)
	eng := engine.New(engine.Config{
		Spacing:         decimal.NewFromFloat(0.001),
		LevelsPerSide:   2,
		MaxActiveOrders: 4,
		OrderNotional:   decimal.NewFromInt(20),
		CallTimeout:     time.Second,
	}, domain.DefaultInstrument("BTC-PERP"), gw, orders, reconcileReq)

	c := New(Config{
		SyncInterval:     time.Minute,
		CleanupInterval:  time.Minute,
		ShutdownTimeout:  5 * time.Second,
		CallTimeout:      time.Second,
		ReconcileRetries: 2,
	}, gw, eng, orders, ledger, make(chan events.Event), reconcileReq, nil)
	return c, orders, ledger
}

func TestStartupReconcileAdoptsLeftovers(t *testing.T) {
	gw := &mockGateway{
		openOrders: []domain.Order{{
			ExchangeID: "ex-old",
			Symbol:     "BTC-PERP",
			Side:       domain.SideBuy,
			Price:      decimal.NewFromInt(63000),
			Quantity:   decimal.NewFromFloat(0.01),
			Status:     domain.OrderStatusOpen,
			CreatedAt:  time.Now(),
		}},
		positions: []domain.Position{{
			Symbol:        "BTC-PERP",
			Quantity:      decimal.NewFromFloat(0.5),
			AvgEntryPrice: decimal.NewFromInt(62000),
		}},
	}
	c, orders, ledger := newTestController(gw)

	ok := c.startupReconcile(context.Background())
	require.True(t, ok)

	// 上次运行遗留的挂单被收编
	assert.Equal(t, 1, orders.ActiveCount())
	// 遗留持仓被收编进账本
	p := ledger.Position("BTC-PERP")
	assert.True(t, p.Quantity.Equal(decimal.NewFromFloat(0.5)))
}

func TestStartupReconcileRetriesThenFails(t *testing.T) {
	orig := reconcileRetryBase
	reconcileRetryBase = 10 * time.Millisecond
	defer func() { reconcileRetryBase = orig }()

	gw := &mockGateway{openOrdersErr: errors.New("network down")}
	c, _, _ := newTestController(gw)

	ok := c.startupReconcile(context.Background())
	assert.False(t, ok)
}

func TestStartupReconcileAuthFailsFast(t *testing.T) {
	gw := &mockGateway{openOrdersErr: ports.ErrAuth}
	c, _, _ := newTestController(gw)

	start := time.Now()
	ok := c.startupReconcile(context.Background())
	assert.False(t, ok)
	assert.Less(t, time.Since(start), time.Second, "鉴权错误不应重试")
}

func TestCancelAllSafeBulkSuccess(t *testing.T) {
	gw := &mockGateway{}
	c, orders, _ := newTestController(gw)
	seedActiveOrder(t, orders, "c1", "ex1")

	outcome := c.cancelAllSafe(context.Background())
	assert.True(t, outcome.AllCancelled())
	assert.Equal(t, "bulk", outcome.Method)
	assert.Equal(t, 1, gw.cancelAllHit)
}

func TestCancelAllSafePerOrderFallback(t *testing.T) {
	gw := &mockGateway{
		cancelAllErr: errors.New("bulk endpoint unavailable"),
		cancelErrs:   map[string]error{"ex2": errors.New("not found")},
	}
	c, orders, _ := newTestController(gw)
	seedActiveOrder(t, orders, "c1", "ex1")
	seedActiveOrder(t, orders, "c2", "ex2")
	seedActiveOrder(t, orders, "c3", "ex3")

	outcome := c.cancelAllSafe(context.Background())
	assert.Equal(t, "per-order", outcome.Method)
	assert.False(t, outcome.AllCancelled())
	assert.ElementsMatch(t, []string{"ex1", "ex3"}, outcome.Cancelled)
	assert.Equal(t, []string{"ex2"}, outcome.Failed)
}

func TestHandleEventFillDedup(t *testing.T) {
	gw := &mockGateway{}
	c, _, ledger := newTestController(gw)
	c.state = StateRunning

	f := events.Fill{Fill: domain.Fill{
		TradeID:  "t1",
		Symbol:   "BTC-PERP",
		Side:     domain.SideBuy,
		Price:    decimal.NewFromInt(100),
		Quantity: decimal.NewFromInt(1),
	}}

	c.handleEvent(context.Background(), f)
	c.handleEvent(context.Background(), f) // 重复成交

	p := ledger.Position("BTC-PERP")
	assert.True(t, p.Quantity.Equal(decimal.NewFromInt(1)), "重复成交不应再次计入持仓")
}

func TestHandleEventGatesTicksOutsideRunning(t *testing.T) {
	gw := &mockGateway{}
	c, orders, _ := newTestController(gw)
	c.state = StateReconciling

	tick := events.PriceTick{
		Symbol:    "BTC-PERP",
		BestBid:   decimal.NewFromInt(64000),
		BestAsk:   decimal.NewFromInt(64001),
		Timestamp: time.Now(),
	}
	c.handleEvent(context.Background(), tick)

	// 非 RUNNING 状态下价格 tick 不触发挂单
	assert.Equal(t, 0, orders.ActiveCount())
}

func TestConnectivityUpTriggersReconcile(t *testing.T) {
	gw := &mockGateway{}
	c, _, _ := newTestController(gw)
	c.state = StateRunning

	stop := c.handleEvent(context.Background(), events.Connectivity{Up: true, Reason: "reconnected"})

	// 重连后必须立刻对一次账，补上断线期间可能漏掉的事件
	assert.False(t, stop)
	assert.Equal(t, 1, gw.openOrdersHit, "重连后应查询一次交易所挂单")
	assert.Equal(t, StateRunning, c.state)
}

func TestConnectivityDownDoesNotReconcile(t *testing.T) {
	gw := &mockGateway{}
	c, _, _ := newTestController(gw)
	c.state = StateRunning

	c.handleEvent(context.Background(), events.Connectivity{Up: false, Reason: "stale connection"})

	assert.Equal(t, 0, gw.openOrdersHit)
	assert.Equal(t, StateRunning, c.state)
}

func TestAuthFaultDuringPlacementEscalates(t *testing.T) {
	gw := &mockGateway{placeErr: ports.ErrAuth}
	c, _, _ := newTestController(gw)
	c.state = StateRunning

	tick := events.PriceTick{
		Symbol:    "BTC-PERP",
		BestBid:   decimal.NewFromInt(64000),
		BestAsk:   decimal.NewFromInt(64001),
		Timestamp: time.Now(),
	}
	stop := c.handleEvent(context.Background(), tick)

	// 鉴权错误：尽力撤一次单后直接进入 STOPPED，退出码 1
	assert.True(t, stop, "鉴权错误后事件循环必须终止")
	assert.Equal(t, StateStopped, c.state)
	assert.Equal(t, 1, c.ExitCode())
	assert.Equal(t, 1, gw.cancelAllHit, "紧急停止应尽力撤一次单")
}

func TestCloseAllPositionsRequiresRunning(t *testing.T) {
	gw := &mockGateway{}
	c, _, _ := newTestController(gw)
	c.state = StateInit

	assert.Error(t, c.CloseAllPositions(context.Background()))
}

func seedActiveOrder(t *testing.T, orders *tracker.Tracker, clientID, exchangeID string) {
	t.Helper()
	require.NoError(t, orders.RecordSubmission(domain.Order{
		ClientID:  clientID,
		Symbol:    "BTC-PERP",
		Side:      domain.SideBuy,
		Price:     decimal.NewFromInt(63000),
		Quantity:  decimal.NewFromFloat(0.01),
		CreatedAt: time.Now(),
	}))
	orders.ConfirmSubmission(clientID, exchangeID)
}
