package tracker

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/lightbot/golighter/internal/domain"
)

var ledgerLog = logrus.WithField("component", "position_ledger")

// Ledger 持仓账本
// 只有去重后的确认成交才会改动持仓；订单状态变化本身不碰账本。
// 与追踪器一样只在事件循环内调用，无需加锁
type Ledger struct {
	positions map[string]*domain.Position
}

// NewLedger 创建持仓账本
func NewLedger() *Ledger {
	return &Ledger{positions: make(map[string]*domain.Position)}
}

// Apply 计入一笔确认成交
func (l *Ledger) Apply(f *domain.Fill) {
	p := l.positionFor(f.Symbol)
	before := p.Quantity
	p.ApplyFill(f)
	ledgerLog.Infof("💰 持仓更新 %s: %s -> %s (成交 %s %s @ %s)",
		f.Symbol, before, p.Quantity, f.Side, f.Quantity, f.Price)
}

// Position 查询持仓（副本）
func (l *Ledger) Position(symbol string) domain.Position {
	if p, ok := l.positions[symbol]; ok {
		return *p
	}
	return domain.Position{Symbol: symbol}
}

// Positions 返回所有非零持仓
func (l *Ledger) Positions() []domain.Position {
	var out []domain.Position
	for _, p := range l.positions {
		if !p.IsFlat() {
			out = append(out, *p)
		}
	}
	return out
}

// Adopt 收编一份交易所持仓作为初始状态（启动对账用）
func (l *Ledger) Adopt(p domain.Position) {
	cp := p
	l.positions[p.Symbol] = &cp
}

// ReconcileAgainst 与交易所持仓对比
// 数量不一致时以交易所为准并告警；返回是否发现漂移
func (l *Ledger) ReconcileAgainst(authoritative []domain.Position) bool {
	drifted := false

	remote := make(map[string]domain.Position, len(authoritative))
	for _, p := range authoritative {
		remote[p.Symbol] = p
	}

	for symbol, rp := range remote {
		lp := l.positionFor(symbol)
		if !lp.Quantity.Equal(rp.Quantity) {
			ledgerLog.Warnf("⚠️ 持仓漂移 %s: 本地 %s / 交易所 %s，以交易所为准", symbol, lp.Quantity, rp.Quantity)
			lp.Quantity = rp.Quantity
			if !rp.AvgEntryPrice.IsZero() {
				lp.AvgEntryPrice = rp.AvgEntryPrice
			}
			lp.UpdatedAt = time.Now()
			drifted = true
		}
	}

	for symbol, lp := range l.positions {
		if _, ok := remote[symbol]; !ok && !lp.IsFlat() {
			ledgerLog.Warnf("⚠️ 持仓漂移 %s: 本地 %s / 交易所无持仓，清零", symbol, lp.Quantity)
			lp.Quantity = decimal.Zero
			lp.AvgEntryPrice = decimal.Zero
			lp.UpdatedAt = time.Now()
			drifted = true
		}
	}

	return drifted
}

func (l *Ledger) positionFor(symbol string) *domain.Position {
	p, ok := l.positions[symbol]
	if !ok {
		p = &domain.Position{Symbol: symbol}
		l.positions[symbol] = p
	}
	return p
}
