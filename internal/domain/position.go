package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position 持仓
// Quantity 带符号：正为多头，负为空头
type Position struct {
	Symbol        string
	Quantity      decimal.Decimal
	AvgEntryPrice decimal.Decimal
	UpdatedAt     time.Time
}

// IsFlat 是否为空仓
func (p *Position) IsFlat() bool {
	return p.Quantity.IsZero()
}

// ApplyFill 将一笔确认成交计入持仓
// 同向加仓按加权平均更新开仓均价；反向减仓保持均价；方向翻转时用成交价重置均价
func (p *Position) ApplyFill(f *Fill) {
	delta := f.SignedQuantity()
	newQty := p.Quantity.Add(delta)

	switch {
	case newQty.IsZero():
		p.AvgEntryPrice = decimal.Zero
	case p.Quantity.IsZero() || p.Quantity.Sign() != newQty.Sign():
		// 开新仓或方向翻转
		p.AvgEntryPrice = f.Price
	case p.Quantity.Sign() == delta.Sign():
		// 同向加仓：加权平均
		oldCost := p.AvgEntryPrice.Mul(p.Quantity.Abs())
		addCost := f.Price.Mul(delta.Abs())
		p.AvgEntryPrice = oldCost.Add(addCost).Div(newQty.Abs())
	}
	// 反向减仓但未翻转：均价不变

	p.Quantity = newQty
	p.UpdatedAt = f.Timestamp
}

// UnrealizedPnL 按标记价计算浮动盈亏
func (p *Position) UnrealizedPnL(markPrice decimal.Decimal) decimal.Decimal {
	if p.IsFlat() {
		return decimal.Zero
	}
	return markPrice.Sub(p.AvgEntryPrice).Mul(p.Quantity)
}
