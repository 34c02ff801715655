package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Fill 一笔确认成交
// TradeID 由交易所分配，是成交去重的唯一键
type Fill struct {
	TradeID       string
	ClientOrderID string
	Symbol        string
	Side          Side
	Price         decimal.Decimal
	Quantity      decimal.Decimal
	Timestamp     time.Time
}

// SignedQuantity 带符号的成交数量：买为正，卖为负
func (f *Fill) SignedQuantity() decimal.Decimal {
	if f.Side == SideSell {
		return f.Quantity.Neg()
	}
	return f.Quantity
}

// Notional 成交名义金额
func (f *Fill) Notional() decimal.Decimal {
	return f.Price.Mul(f.Quantity)
}
