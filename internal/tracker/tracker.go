// Package tracker 维护订单与持仓的本地视图
// 所有方法只能在事件循环 goroutine 内调用，因此无需加锁
package tracker

import (
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lightbot/golighter/internal/domain"
	"github.com/lightbot/golighter/internal/events"
)

var trackerLog = logrus.WithField("component", "order_tracker")

// ErrDuplicateOrderID 客户端订单 ID 重复
var ErrDuplicateOrderID = errors.New("客户端订单 ID 已存在")

// fillDedupLimit 成交去重集合的容量上限，超出后淘汰最早的记录
const fillDedupLimit = 1000

// Tracker 订单追踪器
// 本地状态只通过 RecordSubmission / ApplyEvent / Reconcile 变更；
// 状态迁移单调，终态吸收，重复事件幂等丢弃
type Tracker struct {
	orders     map[string]*domain.Order // clientID -> order
	byExchange map[string]string        // exchangeID -> clientID

	seenFills     map[string]bool // tradeID 去重
	seenFillOrder []string        // FIFO 淘汰队列
}

// New 创建订单追踪器
func New() *Tracker {
	return &Tracker{
		orders:     make(map[string]*domain.Order),
		byExchange: make(map[string]string),
		seenFills:  make(map[string]bool),
	}
}

// RecordSubmission 登记一笔本地提交的订单（pending 状态）
func (t *Tracker) RecordSubmission(o domain.Order) error {
	if o.ClientID == "" {
		return fmt.Errorf("客户端订单 ID 不能为空")
	}
	if _, exists := t.orders[o.ClientID]; exists {
		return ErrDuplicateOrderID
	}
	o.Status = domain.OrderStatusPending
	t.orders[o.ClientID] = &o
	if o.ExchangeID != "" {
		t.byExchange[o.ExchangeID] = o.ClientID
	}
	return nil
}

// ConfirmSubmission 回填交易所订单 ID 并把订单标记为 open
func (t *Tracker) ConfirmSubmission(clientID, exchangeID string) {
	o, ok := t.orders[clientID]
	if !ok {
		return
	}
	o.ExchangeID = exchangeID
	t.byExchange[exchangeID] = clientID
	if o.Status == domain.OrderStatusPending {
		o.Status = domain.OrderStatusOpen
		o.UpdatedAt = time.Now()
	}
}

// ApplyEvent 应用一条订单状态更新
// 非法回退和重复事件被幂等丢弃；返回订单是否发生了实际变更
func (t *Tracker) ApplyEvent(ev events.OrderUpdate) bool {
	o := t.resolve(ev.ClientOrderID, ev.ExchangeID)
	if o == nil {
		trackerLog.Debugf("忽略未知订单的更新 client=%s exchange=%s", ev.ClientOrderID, ev.ExchangeID)
		return false
	}

	changed := false

	if ev.ExchangeID != "" && o.ExchangeID == "" {
		o.ExchangeID = ev.ExchangeID
		t.byExchange[ev.ExchangeID] = o.ClientID
		changed = true
	}

	// 成交量只增不减
	if ev.FilledQuantity.GreaterThan(o.FilledQuantity) {
		o.FilledQuantity = ev.FilledQuantity
		changed = true
	}

	if ev.Status != o.Status {
		if o.Status.CanTransition(ev.Status) {
			trackerLog.Debugf("订单 %s 状态 %s -> %s", o.ClientID, o.Status, ev.Status)
			o.Status = ev.Status
			changed = true
		} else if !o.Status.IsTerminal() || !ev.Status.IsTerminal() {
			// 终态后的重复终态事件是正常的幂等情况，其余回退要告警
			trackerLog.Warnf("⚠️ 丢弃非法状态迁移 %s: %s -> %s", o.ClientID, o.Status, ev.Status)
		}
	}

	if changed {
		o.UpdatedAt = ev.Timestamp
	}
	return changed
}

// SeenFill 检查并登记一笔成交，返回是否为首次见到
// 去重集合有界，淘汰最早的记录
func (t *Tracker) SeenFill(tradeID string) bool {
	if t.seenFills[tradeID] {
		return false
	}
	t.seenFills[tradeID] = true
	t.seenFillOrder = append(t.seenFillOrder, tradeID)
	if len(t.seenFillOrder) > fillDedupLimit {
		oldest := t.seenFillOrder[0]
		t.seenFillOrder = t.seenFillOrder[1:]
		delete(t.seenFills, oldest)
	}
	return true
}

// Get 按客户端 ID 查订单
func (t *Tracker) Get(clientID string) (*domain.Order, bool) {
	o, ok := t.orders[clientID]
	return o, ok
}

// ActiveOrders 返回本地视角的活跃订单
func (t *Tracker) ActiveOrders() []*domain.Order {
	var out []*domain.Order
	for _, o := range t.orders {
		if o.IsActive() {
			out = append(out, o)
		}
	}
	return out
}

// ActiveCount 活跃订单数
func (t *Tracker) ActiveCount() int {
	n := 0
	for _, o := range t.orders {
		if o.IsActive() {
			n++
		}
	}
	return n
}

// resolve 按客户端 ID 或交易所 ID 定位订单
func (t *Tracker) resolve(clientID, exchangeID string) *domain.Order {
	if clientID != "" {
		if o, ok := t.orders[clientID]; ok {
			return o
		}
	}
	if exchangeID != "" {
		if cid, ok := t.byExchange[exchangeID]; ok {
			return t.orders[cid]
		}
	}
	return nil
}

// ReconcileReport 对账结果
type ReconcileReport struct {
	Adopted       []string // 交易所有、本地没有：收编为 open
	MarkedGone    []string // 本地活跃、交易所没有：标记为 canceled
	DriftRepaired []string // 状态或成交量有漂移：以交易所为准修复
}

// Empty 对账是否无差异
func (r ReconcileReport) Empty() bool {
	return len(r.Adopted) == 0 && len(r.MarkedGone) == 0 && len(r.DriftRepaired) == 0
}

// Reconcile 以交易所的活跃订单列表为权威对齐本地状态
// 本地有但交易所没有的活跃订单视为已撤销；交易所有但本地没有的收编为 open
func (t *Tracker) Reconcile(authoritative []domain.Order) ReconcileReport {
	var report ReconcileReport

	remote := make(map[string]domain.Order, len(authoritative))
	for _, o := range authoritative {
		key := o.ClientID
		if key == "" {
			key = o.ExchangeID
		}
		remote[key] = o
	}

	// 本地活跃但交易所缺失 -> canceled
	for cid, o := range t.orders {
		if !o.IsActive() {
			continue
		}
		key := cid
		if _, ok := remote[key]; ok {
			continue
		}
		if o.ExchangeID != "" {
			if _, ok := remote[o.ExchangeID]; ok {
				continue
			}
		}
		// pending 订单可能还没出现在交易所列表里，留给下一轮
		if o.Status == domain.OrderStatusPending {
			continue
		}
		trackerLog.Warnf("⚠️ 对账漂移：订单 %s 本地 %s 但交易所已不存在，标记为 canceled", cid, o.Status)
		o.Status = domain.OrderStatusCanceled
		o.UpdatedAt = time.Now()
		report.MarkedGone = append(report.MarkedGone, cid)
	}

	// 交易所存在的订单逐一对齐
	for key, ro := range remote {
		local := t.resolve(ro.ClientID, ro.ExchangeID)
		if local == nil {
			// 本地不认识的权威订单：收编
			adopted := ro
			if adopted.ClientID == "" {
				adopted.ClientID = "adopted-" + adopted.ExchangeID
			}
			trackerLog.Warnf("⚠️ 对账发现未知订单 %s，收编为 %s", key, adopted.Status)
			t.orders[adopted.ClientID] = &adopted
			if adopted.ExchangeID != "" {
				t.byExchange[adopted.ExchangeID] = adopted.ClientID
			}
			report.Adopted = append(report.Adopted, adopted.ClientID)
			continue
		}

		drifted := false
		if ro.Status != local.Status && local.Status.CanTransition(ro.Status) {
			local.Status = ro.Status
			drifted = true
		}
		if ro.FilledQuantity.GreaterThan(local.FilledQuantity) {
			local.FilledQuantity = ro.FilledQuantity
			drifted = true
		}
		if local.ExchangeID == "" && ro.ExchangeID != "" {
			local.ExchangeID = ro.ExchangeID
			t.byExchange[ro.ExchangeID] = local.ClientID
			// pending 订单在交易所出现说明提交成功了
			if local.Status == domain.OrderStatusPending && local.Status.CanTransition(ro.Status) {
				local.Status = ro.Status
			}
			drifted = true
		}
		if drifted {
			local.UpdatedAt = time.Now()
			trackerLog.Warnf("⚠️ 对账修复订单 %s 的漂移", local.ClientID)
			report.DriftRepaired = append(report.DriftRepaired, local.ClientID)
		}
	}

	// 清理早已终结的订单，防止 map 无限增长
	t.pruneTerminal()

	return report
}

// pruneTerminal 移除终结超过一小时的订单
func (t *Tracker) pruneTerminal() {
	cutoff := time.Now().Add(-time.Hour)
	for cid, o := range t.orders {
		if o.Status.IsTerminal() && o.UpdatedAt.Before(cutoff) {
			if o.ExchangeID != "" {
				delete(t.byExchange, o.ExchangeID)
			}
			delete(t.orders, cid)
		}
	}
}
