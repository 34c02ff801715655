package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Instrument 交易标的的市场约束
// TickSize/LotSize/MinNotional 从交易所元数据加载，加载失败时用保守默认值
type Instrument struct {
	Symbol      string
	MarketID    int
	TickSize    decimal.Decimal // 价格最小变动单位
	LotSize     decimal.Decimal // 数量最小变动单位
	MinNotional decimal.Decimal // 最小名义金额（USD）
}

// DefaultInstrument 返回保守默认约束的标的
// 元数据接口不可用时的兜底，宁可下单偏保守也不要被交易所拒单
func DefaultInstrument(symbol string) Instrument {
	return Instrument{
		Symbol:      symbol,
		TickSize:    decimal.NewFromFloat(0.01),
		LotSize:     decimal.NewFromFloat(0.0001),
		MinNotional: decimal.NewFromInt(10),
	}
}

// RoundPrice 将价格对齐到 tick size（向下取整）
func (i Instrument) RoundPrice(price decimal.Decimal) decimal.Decimal {
	if i.TickSize.IsZero() {
		return price
	}
	return price.Div(i.TickSize).Floor().Mul(i.TickSize)
}

// RoundQuantity 将数量对齐到 lot size（向下取整）
func (i Instrument) RoundQuantity(qty decimal.Decimal) decimal.Decimal {
	if i.LotSize.IsZero() {
		return qty
	}
	return qty.Div(i.LotSize).Floor().Mul(i.LotSize)
}

// QuantityForNotional 按名义金额折算基础数量
// 先按 lot size 向下取整，若结果不满足最小名义金额则向上补一个 lot
func (i Instrument) QuantityForNotional(notional, price decimal.Decimal) decimal.Decimal {
	if price.IsZero() {
		return decimal.Zero
	}
	qty := i.RoundQuantity(notional.Div(price))
	if i.LotSize.IsPositive() {
		for qty.Mul(price).LessThan(i.MinNotional) {
			qty = qty.Add(i.LotSize)
		}
	}
	return qty
}

// ValidateOrder 本地校验订单参数，不合法的订单不发往交易所
func (i Instrument) ValidateOrder(price, qty decimal.Decimal) error {
	if !price.IsPositive() {
		return fmt.Errorf("价格必须为正: %s", price)
	}
	if !qty.IsPositive() {
		return fmt.Errorf("数量必须为正: %s", qty)
	}
	if !i.TickSize.IsZero() && !price.Mod(i.TickSize).IsZero() {
		return fmt.Errorf("价格 %s 未对齐 tick size %s", price, i.TickSize)
	}
	if !i.LotSize.IsZero() && !qty.Mod(i.LotSize).IsZero() {
		return fmt.Errorf("数量 %s 未对齐 lot size %s", qty, i.LotSize)
	}
	if notional := price.Mul(qty); notional.LessThan(i.MinNotional) {
		return fmt.Errorf("名义金额 %s 低于最小要求 %s", notional, i.MinNotional)
	}
	return nil
}
