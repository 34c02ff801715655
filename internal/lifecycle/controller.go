// Package lifecycle 实现机器人状态机与单写者事件循环
// 所有交易状态（订单追踪器、持仓账本、网格引擎）只在 Run 的 goroutine 内被触碰
package lifecycle

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/lightbot/golighter/internal/domain"
	"github.com/lightbot/golighter/internal/engine"
	"github.com/lightbot/golighter/internal/events"
	"github.com/lightbot/golighter/internal/ports"
	"github.com/lightbot/golighter/internal/tracker"
	"github.com/lightbot/golighter/pkg/sigchan"
)

var lifecycleLog = logrus.WithField("component", "lifecycle")

// reconcileRetryBase 启动对账失败后的退避基数
var reconcileRetryBase = 2 * time.Second

// State 机器人状态
type State int32

const (
	StateInit State = iota
	StateReconciling
	StateRunning
	StateShuttingDown
	StateStopped
	StateEmergency
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateReconciling:
		return "RECONCILING"
	case StateRunning:
		return "RUNNING"
	case StateShuttingDown:
		return "SHUTTING_DOWN"
	case StateStopped:
		return "STOPPED"
	case StateEmergency:
		return "EMERGENCY"
	}
	return "UNKNOWN"
}

// FillSimulator 纸交易网关实现该接口：用价格 tick 驱动模拟成交
type FillSimulator interface {
	SimulateTick(events.PriceTick) []events.Event
}

// Config 控制器配置
type Config struct {
	SyncInterval     time.Duration // 周期性 REST 对账间隔
	CleanupInterval  time.Duration // 超龄订单清理间隔
	ShutdownTimeout  time.Duration // 优雅关闭预算
	CallTimeout      time.Duration
	ReconcileRetries int // 启动对账的重试次数，耗尽进入紧急停止
}

// Controller 生命周期控制器
type Controller struct {
	cfg     Config
	gateway ports.ExchangeGateway
	engine  *engine.Engine
	orders  *tracker.Tracker
	ledger  *tracker.Ledger

	eventCh      <-chan events.Event
	reconcileReq *sigchan.Chan
	sim          FillSimulator // 纸交易模式下非空

	state    State
	stopReq  *sigchan.Chan
	doneCh   chan struct{}
	exitCode int
}

// New 创建控制器
// sim 传 nil 表示实盘模式
func New(cfg Config, gateway ports.ExchangeGateway, eng *engine.Engine, orders *tracker.Tracker, ledger *tracker.Ledger, eventCh <-chan events.Event, reconcileReq *sigchan.Chan, sim FillSimulator) *Controller {
	if cfg.ReconcileRetries <= 0 {
		cfg.ReconcileRetries = 5
	}
	return &Controller{
		cfg:          cfg,
		gateway:      gateway,
		engine:       eng,
		orders:       orders,
		ledger:       ledger,
		eventCh:      eventCh,
		reconcileReq: reconcileReq,
		sim:          sim,
		state:        StateInit,
		stopReq:      sigchan.New(1),
		doneCh:       make(chan struct{}),
	}
}

// State 返回当前状态（仅供日志/测试，事件循环内读写）
func (c *Controller) CurrentState() State {
	return c.state
}

// ExitCode 进程退出码：正常停止 0，紧急停止 1
func (c *Controller) ExitCode() int {
	return c.exitCode
}

// RequestStop 请求优雅关闭（可从任意 goroutine 调用）
func (c *Controller) RequestStop() {
	c.stopReq.Emit()
}

// Done 事件循环退出后关闭
func (c *Controller) Done() <-chan struct{} {
	return c.doneCh
}

func (c *Controller) setState(s State) {
	if c.state == s {
		return
	}
	lifecycleLog.Infof("🔄 状态 %s -> %s", c.state, s)
	c.state = s
}

// Run 事件循环主体，阻塞直到停止
func (c *Controller) Run(ctx context.Context) {
	defer close(c.doneCh)

	lifecycleLog.Info("🚀 启动，开始初始对账")

	// 启动对账：失败带退避重试，耗尽进入紧急停止
	if !c.startupReconcile(ctx) {
		c.emergencyStop(ctx, "启动对账失败")
		return
	}
	c.setState(StateRunning)

	syncTicker := time.NewTicker(c.cfg.SyncInterval)
	defer syncTicker.Stop()
	cleanupTicker := time.NewTicker(c.cfg.CleanupInterval)
	defer cleanupTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.shutdown(context.Background())
			return

		case <-c.stopReq.C():
			c.shutdown(ctx)
			return

		case ev, ok := <-c.eventCh:
			if !ok {
				lifecycleLog.Warn("⚠️ 事件通道已关闭，进入关闭流程")
				c.shutdown(ctx)
				return
			}
			if c.handleEvent(ctx, ev) {
				return
			}

		case <-c.reconcileReq.C():
			c.reconcileReq.Drain()
			if c.reconcile(ctx, "按需对账") {
				return
			}

		case <-syncTicker.C:
			if c.reconcile(ctx, "周期对账") {
				return
			}

		case <-cleanupTicker.C:
			if c.state == StateRunning {
				if err := c.engine.Cleanup(ctx); err != nil {
					c.emergencyStop(ctx, "清理任务遇到鉴权错误: "+err.Error())
					return
				}
			}
		}
	}
}

// handleEvent 处理单个事件，返回 true 表示事件循环应当退出
func (c *Controller) handleEvent(ctx context.Context, ev events.Event) bool {
	switch e := ev.(type) {
	case events.OrderUpdate:
		c.orders.ApplyEvent(e)

	case events.Fill:
		// 重复成交幂等丢弃，只有首次见到的成交才进账本
		if c.orders.SeenFill(e.Fill.TradeID) {
			c.ledger.Apply(&e.Fill)
		} else {
			lifecycleLog.Debugf("忽略重复成交 %s", e.Fill.TradeID)
		}

	case events.PriceTick:
		// 价格 tick 只在 RUNNING 状态驱动网格
		if c.state != StateRunning {
			return false
		}
		if c.sim != nil {
			for _, sev := range c.sim.SimulateTick(e) {
				if c.handleEvent(ctx, sev) {
					return true
				}
			}
		}
		// 引擎只上抛鉴权错误，此处立即升级为紧急停止
		if err := c.engine.OnPriceTick(ctx, e); err != nil {
			c.emergencyStop(ctx, "网格引擎遇到鉴权错误: "+err.Error())
			return true
		}

	case events.Connectivity:
		if e.Up {
			// 断线期间可能漏事件，重连后必须对账
			lifecycleLog.Infof("✅ 连接恢复 (%s)，触发对账", e.Reason)
			return c.reconcile(ctx, "重连对账")
		}
		lifecycleLog.Warnf("⚠️ 连接断开: %s", e.Reason)

	default:
		lifecycleLog.Warnf("⚠️ 丢弃未知事件类型 %T", ev)
	}
	return false
}

// startupReconcile 启动对账
// 收编交易所已有的挂单和持仓（告警提示这是上次运行的遗留）
func (c *Controller) startupReconcile(ctx context.Context) bool {
	c.setState(StateReconciling)

	for attempt := 1; attempt <= c.cfg.ReconcileRetries; attempt++ {
		err := c.doReconcile(ctx, true)
		if err == nil {
			return true
		}
		if errors.Is(err, ports.ErrAuth) {
			lifecycleLog.Errorf("❌ 启动对账遇到鉴权错误: %v", err)
			return false
		}
		delay := time.Duration(attempt) * reconcileRetryBase
		lifecycleLog.Warnf("⚠️ 启动对账失败 (第 %d/%d 次): %v，%s 后重试",
			attempt, c.cfg.ReconcileRetries, err, delay)
		select {
		case <-ctx.Done():
			return false
		case <-time.After(delay):
		}
	}
	return false
}

// reconcile 运行期对账：失败只告警，等下一轮；鉴权错误升级为紧急停止
// 返回 true 表示已紧急停止，事件循环应当退出
func (c *Controller) reconcile(ctx context.Context, reason string) bool {
	if c.state != StateRunning && c.state != StateReconciling {
		return false
	}
	prev := c.state
	c.setState(StateReconciling)

	if err := c.doReconcile(ctx, false); err != nil {
		if errors.Is(err, ports.ErrAuth) {
			c.emergencyStop(ctx, "对账遇到鉴权错误")
			return true
		}
		lifecycleLog.Warnf("⚠️ %s失败: %v，等待下一轮", reason, err)
		c.setState(prev)
		return false
	}
	c.setState(StateRunning)
	return false
}

// doReconcile 执行一次对账，以交易所数据为权威
func (c *Controller) doReconcile(ctx context.Context, startup bool) error {
	inst := c.engine.Instrument()

	callCtx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	remoteOrders, err := c.gateway.OpenOrders(callCtx, inst)
	cancel()
	if err != nil {
		return err
	}

	callCtx, cancel = context.WithTimeout(ctx, c.cfg.CallTimeout)
	remotePositions, err := c.gateway.Positions(callCtx)
	cancel()
	if err != nil {
		return err
	}

	report := c.orders.Reconcile(remoteOrders)
	if !report.Empty() {
		lifecycleLog.Infof("🔄 订单对账: 收编 %d / 标记撤销 %d / 修复漂移 %d",
			len(report.Adopted), len(report.MarkedGone), len(report.DriftRepaired))
	}

	if startup {
		for _, p := range remotePositions {
			if !p.IsFlat() {
				lifecycleLog.Warnf("⚠️ 发现上次运行遗留的持仓 %s %s @ %s，已收编",
					p.Symbol, p.Quantity, p.AvgEntryPrice)
				c.ledger.Adopt(p)
			}
		}
	} else {
		c.ledger.ReconcileAgainst(remotePositions)
	}

	return nil
}

// shutdown 优雅关闭：撤掉全部挂单，持仓保持不动
func (c *Controller) shutdown(ctx context.Context) {
	if c.state == StateStopped || c.state == StateEmergency {
		return
	}
	c.setState(StateShuttingDown)

	shutdownCtx, cancel := context.WithTimeout(ctx, c.cfg.ShutdownTimeout)
	defer cancel()

	outcome := c.cancelAllSafe(shutdownCtx)
	switch {
	case outcome.AllCancelled():
		lifecycleLog.Infof("✅ 全部挂单已撤销 (%s, %d 个)", outcome.Method, len(outcome.Cancelled))
	case outcome.Err != nil:
		lifecycleLog.Errorf("❌ 撤单整体失败: %v", outcome.Err)
	default:
		lifecycleLog.Warnf("⚠️ 部分撤单失败 (%s): 成功 %d / 失败 %d %v",
			outcome.Method, len(outcome.Cancelled), len(outcome.Failed), outcome.Failed)
	}

	for _, p := range c.ledger.Positions() {
		lifecycleLog.Infof("📋 关闭时保留持仓 %s %s @ %s", p.Symbol, p.Quantity, p.AvgEntryPrice)
	}

	c.setState(StateStopped)
	c.exitCode = 0
	lifecycleLog.Info("🛑 已停止")
}

// cancelAllSafe 批量撤单，失败时逐单兜底
func (c *Controller) cancelAllSafe(ctx context.Context) ports.BulkCancelOutcome {
	inst := c.engine.Instrument()
	active := c.orders.ActiveOrders()

	callCtx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	err := c.gateway.CancelAllOrders(callCtx, inst)
	cancel()

	if err == nil {
		outcome := ports.BulkCancelOutcome{Method: "bulk"}
		for _, o := range active {
			outcome.Cancelled = append(outcome.Cancelled, o.ExchangeID)
		}
		return outcome
	}

	lifecycleLog.Warnf("⚠️ 批量撤单失败: %v，改为逐单撤销", err)

	outcome := ports.BulkCancelOutcome{Method: "per-order"}
	for _, o := range active {
		if o.ExchangeID == "" {
			continue
		}
		callCtx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
		cerr := c.gateway.CancelOrder(callCtx, inst, o.ExchangeID)
		cancel()
		if cerr != nil {
			lifecycleLog.Errorf("❌ 撤单失败 %s: %v", o.ExchangeID, cerr)
			outcome.Failed = append(outcome.Failed, o.ExchangeID)
			continue
		}
		outcome.Cancelled = append(outcome.Cancelled, o.ExchangeID)
	}
	return outcome
}

// emergencyStop 紧急停止：尽力撤一次单后进入 STOPPED，不做重试
// 退出码保持 1，运维需要人工核对交易所状态
func (c *Controller) emergencyStop(ctx context.Context, reason string) {
	lifecycleLog.Errorf("❌ 紧急停止: %s", reason)
	c.setState(StateEmergency)
	c.exitCode = 1

	callCtx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	if err := c.gateway.CancelAllOrders(callCtx, c.engine.Instrument()); err != nil {
		lifecycleLog.Errorf("❌ 紧急撤单失败: %v", err)
	}
	cancel()

	c.setState(StateStopped)
	lifecycleLog.Error("🛑 已紧急停止，请人工核对交易所的挂单与持仓")
}

// CloseAllPositions 手动操作：用市价单平掉全部持仓
// 只在 RUNNING 状态下允许；每笔平仓用独立的客户端订单 ID
func (c *Controller) CloseAllPositions(ctx context.Context) error {
	if c.state != StateRunning {
		return errors.New("仅 RUNNING 状态允许手动平仓")
	}

	inst := c.engine.Instrument()
	for _, p := range c.ledger.Positions() {
		side := domain.SideSell
		if p.Quantity.IsNegative() {
			side = domain.SideBuy
		}
		qty := p.Quantity.Abs()

		callCtx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
		_, err := c.gateway.PlaceMarketOrder(callCtx, inst, side, qty, uuid.NewString())
		cancel()
		if err != nil {
			return err
		}
		lifecycleLog.Infof("💰 已提交平仓市价单 %s %s x %s", p.Symbol, side, qty)
	}
	// 成交会通过事件流回账本，这里不直接改持仓
	c.reconcileReq.Emit()
	return nil
}
