// Package engine 实现网格再平衡引擎
// 引擎只在事件循环 goroutine 内被调用，不自己起 goroutine
package engine

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/lightbot/golighter/internal/domain"
	"github.com/lightbot/golighter/internal/events"
	"github.com/lightbot/golighter/internal/ports"
	"github.com/lightbot/golighter/internal/tracker"
	"github.com/lightbot/golighter/pkg/sigchan"
)

var engineLog = logrus.WithField("component", "grid_engine")

// Config 引擎配置
type Config struct {
	Spacing         decimal.Decimal // 相邻层乘法间距
	LevelsPerSide   int
	MaxActiveOrders int
	OrderNotional   decimal.Decimal
	PlaceCooldown   time.Duration // 同一层撤后重挂的冷却
	MaxOrderAge     time.Duration // 超龄订单被清理撤销
	RetryCount      int           // 单次操作的有限重试次数
	RetryDelay      time.Duration
	CallTimeout     time.Duration // 单次交易所调用超时
}

// Engine 网格引擎
// 每个价格 tick 重新计算目标阶梯，与活跃订单做差集后先撤后挂；
// 调用超时意味着结果未知，此时只发对账信号，绝不盲目重试
type Engine struct {
	cfg     Config
	inst    domain.Instrument
	gateway ports.ExchangeGateway
	orders  *tracker.Tracker

	lastPlaced   time.Time // 最近一次成功挂单时间，整标的冷却用
	lastCleanup  time.Time
	reconcileReq *sigchan.Chan

	clock func() time.Time
}

// New 创建网格引擎
// reconcileReq 由上层提供，引擎在结果未知时向其发信号
func New(cfg Config, inst domain.Instrument, gateway ports.ExchangeGateway, orders *tracker.Tracker, reconcileReq *sigchan.Chan) *Engine {
	if cfg.RetryCount <= 0 {
		cfg.RetryCount = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	return &Engine{
		cfg:          cfg,
		inst:         inst,
		gateway:      gateway,
		orders:       orders,
		reconcileReq: reconcileReq,
		clock:        time.Now,
	}
}

// Instrument 返回引擎绑定的标的
func (e *Engine) Instrument() domain.Instrument {
	return e.inst
}

// OnPriceTick 用最新价格驱动一轮网格再平衡
// 返回的错误只会是鉴权错误，由上层裁决紧急停止
func (e *Engine) OnPriceTick(ctx context.Context, tick events.PriceTick) error {
	mid := tick.Mid()
	if !mid.IsPositive() {
		return nil
	}

	desired := domain.ComputeLadder(e.inst, mid, e.cfg.Spacing, e.cfg.LevelsPerSide, e.cfg.OrderNotional)

	plan := planRebalance(desired, e.orders.ActiveOrders(), e.cfg.MaxActiveOrders)
	// 冷却只限制挂单，不影响撤单：冷却期内整标的不挂任何新单
	if len(plan.places) > 0 && e.inCooldown() {
		engineLog.Debugf("⏳ 冷却期内推迟 %d 个挂单", len(plan.places))
		plan.deferred = append(plan.places, plan.deferred...)
		plan.places = nil
	}
	if plan.empty() {
		return nil
	}

	engineLog.Debugf("🔄 再平衡 @ %s: 撤 %d 挂 %d 延 %d",
		mid, len(plan.cancels), len(plan.places), len(plan.deferred))

	// 先撤后挂
	for _, o := range plan.cancels {
		if err := e.cancelWithRetry(ctx, o); err != nil {
			return err
		}
	}
	for _, lvl := range plan.places {
		// 计划假设的撤单可能没有真正释放额度（比如还没拿到交易所 ID 的
		// pending 单撤不掉），挂单前必须复查实际活跃数
		if e.orders.ActiveCount() >= e.cfg.MaxActiveOrders {
			engineLog.Warnf("⚠️ 活跃订单已达上限 %d，推迟剩余挂单", e.cfg.MaxActiveOrders)
			break
		}
		if err := e.placeWithRetry(ctx, lvl); err != nil {
			return err
		}
	}
	return nil
}

// inCooldown 整标的挂单冷却：距上次成功挂单不足冷却时长时不挂新单
func (e *Engine) inCooldown() bool {
	if e.cfg.PlaceCooldown <= 0 || e.lastPlaced.IsZero() {
		return false
	}
	return e.clock().Sub(e.lastPlaced) < e.cfg.PlaceCooldown
}

// Cleanup 周期性清理超龄订单
// 返回的错误只会是鉴权错误，由上层裁决紧急停止
func (e *Engine) Cleanup(ctx context.Context) error {
	if e.cfg.MaxOrderAge <= 0 {
		return nil
	}
	now := e.clock()
	for _, o := range e.orders.ActiveOrders() {
		if o.Age(now) <= e.cfg.MaxOrderAge {
			continue
		}
		engineLog.Infof("🧹 清理超龄订单 %s (存活 %s)", o.ClientID, o.Age(now).Truncate(time.Second))
		if err := e.cancelWithRetry(ctx, o); err != nil {
			return err
		}
	}
	e.lastCleanup = now
	return nil
}

// placeWithRetry 带有限重试的挂单
// 瞬时错误退避后重试；限流按 Retry-After 等待；超时视为结果未知，
// 登记保持 pending 并请求对账；鉴权错误立即上抛
func (e *Engine) placeWithRetry(ctx context.Context, lvl domain.GridLevel) error {
	if err := e.inst.ValidateOrder(lvl.Price, lvl.Quantity); err != nil {
		engineLog.Warnf("⚠️ 本地拒绝不合法的网格层 %s: %v", lvl.Key(), err)
		return nil
	}

	clientID := uuid.NewString()
	order := domain.Order{
		ClientID:  clientID,
		Symbol:    e.inst.Symbol,
		Side:      lvl.Side,
		Price:     lvl.Price,
		Quantity:  lvl.Quantity,
		CreatedAt: e.clock(),
		UpdatedAt: e.clock(),
	}
	if err := e.orders.RecordSubmission(order); err != nil {
		engineLog.Errorf("❌ 登记订单失败 %s: %v", clientID, err)
		return nil
	}

	for attempt := 0; attempt <= e.cfg.RetryCount; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
		exchangeID, err := e.gateway.PlaceLimitOrder(callCtx, e.inst, lvl.Side, lvl.Price, lvl.Quantity, clientID)
		cancel()

		if err == nil {
			e.orders.ConfirmSubmission(clientID, exchangeID)
			e.lastPlaced = e.clock()
			engineLog.Infof("✅ 挂单 %s %s @ %s x %s", e.inst.Symbol, lvl.Side, lvl.Price, lvl.Quantity)
			return nil
		}

		if ports.IsOutcomeUnknown(err) {
			// 订单可能已被接受，保持 pending，交给对账裁决
			engineLog.Warnf("⏳ 挂单结果未知 %s: %v，请求对账", clientID, err)
			e.reconcileReq.Emit()
			return nil
		}

		if errors.Is(err, ports.ErrAuth) {
			engineLog.Errorf("❌ 挂单遇到鉴权错误: %v", err)
			return err
		}

		if !e.waitRetry(ctx, err, attempt, "挂单") {
			break
		}
	}

	// 重试耗尽且结果确定失败：本地标记为 rejected
	e.orders.ApplyEvent(events.OrderUpdate{
		ClientOrderID: clientID,
		Symbol:        e.inst.Symbol,
		Status:        domain.OrderStatusRejected,
		Timestamp:     e.clock(),
	})
	engineLog.Errorf("❌ 挂单失败已放弃 %s %s @ %s", e.inst.Symbol, lvl.Side, lvl.Price)
	return nil
}

// cancelWithRetry 带有限重试的撤单，鉴权错误立即上抛
func (e *Engine) cancelWithRetry(ctx context.Context, o *domain.Order) error {
	if o.ExchangeID == "" {
		// 还没拿到交易所 ID 的订单无法撤，留给对账处理
		engineLog.Debugf("跳过无交易所 ID 的订单 %s", o.ClientID)
		return nil
	}

	for attempt := 0; attempt <= e.cfg.RetryCount; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
		err := e.gateway.CancelOrder(callCtx, e.inst, o.ExchangeID)
		cancel()

		if err == nil {
			e.orders.ApplyEvent(events.OrderUpdate{
				ClientOrderID: o.ClientID,
				ExchangeID:    o.ExchangeID,
				Symbol:        o.Symbol,
				Status:        domain.OrderStatusCanceled,
				Timestamp:     e.clock(),
			})
			engineLog.Infof("✅ 撤单 %s @ %s", o.Side, o.Price)
			return nil
		}

		if ports.IsOutcomeUnknown(err) {
			engineLog.Warnf("⏳ 撤单结果未知 %s: %v，请求对账", o.ClientID, err)
			e.reconcileReq.Emit()
			return nil
		}

		if errors.Is(err, ports.ErrAuth) {
			engineLog.Errorf("❌ 撤单遇到鉴权错误: %v", err)
			return err
		}

		if !e.waitRetry(ctx, err, attempt, "撤单") {
			break
		}
	}
	engineLog.Errorf("❌ 撤单失败已放弃 %s，交给对账处理", o.ClientID)
	e.reconcileReq.Emit()
	return nil
}

// waitRetry 根据错误类型决定是否重试以及等多久，返回 false 表示放弃
func (e *Engine) waitRetry(ctx context.Context, err error, attempt int, op string) bool {
	if attempt >= e.cfg.RetryCount {
		return false
	}

	delay := e.cfg.RetryDelay * time.Duration(attempt+1)
	var rle *ports.RateLimitError
	if errors.As(err, &rle) {
		delay = rle.RetryAfter
	} else if !ports.IsRetryable(err) {
		engineLog.Warnf("⚠️ %s遇到不可重试错误: %v", op, err)
		return false
	}

	engineLog.Warnf("⚠️ %s失败 (第 %d 次): %v，%s 后重试", op, attempt+1, err, delay)
	select {
	case <-ctx.Done():
		return false
	case <-time.After(delay):
		return true
	}
}
