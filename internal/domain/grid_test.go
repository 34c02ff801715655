package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testInstrument() Instrument {
	return Instrument{
		Symbol:      "BTC-PERP",
		TickSize:    decimal.NewFromFloat(0.01),
		LotSize:     decimal.NewFromFloat(0.0001),
		MinNotional: decimal.NewFromInt(10),
	}
}

func TestComputeLadderPrices(t *testing.T) {
	inst := testInstrument()
	ref := decimal.NewFromInt(100)
	spacing := decimal.NewFromFloat(0.001) // 0.1%

	levels := ComputeLadder(inst, ref, spacing, 4, decimal.NewFromInt(100))
	require.Len(t, levels, 8)

	var buys, sells []GridLevel
	for _, lvl := range levels {
		if lvl.Side == SideBuy {
			buys = append(buys, lvl)
		} else {
			sells = append(sells, lvl)
		}
	}
	require.Len(t, buys, 4)
	require.Len(t, sells, 4)

	// 买层全部低于参考价，卖层全部高于参考价
	for _, b := range buys {
		assert.True(t, b.Price.LessThan(ref), "买层 %s 应低于参考价", b.Price)
	}
	for _, s := range sells {
		assert.True(t, s.Price.GreaterThan(ref), "卖层 %s 应高于参考价", s.Price)
	}

	// 第一层买价 = 100 * 0.999 = 99.9（对齐 tick）
	assert.True(t, buys[0].Price.Equal(decimal.NewFromFloat(99.9)), "第一买层 %s", buys[0].Price)
	// 第一层卖价 = 100 * 1.001 = 100.1
	assert.True(t, sells[0].Price.Equal(decimal.NewFromFloat(100.1)), "第一卖层 %s", sells[0].Price)
}

func TestComputeLadderSortedByDistance(t *testing.T) {
	inst := testInstrument()
	levels := ComputeLadder(inst, decimal.NewFromInt(100), decimal.NewFromFloat(0.001), 4, decimal.NewFromInt(100))

	for i := 1; i < len(levels); i++ {
		assert.True(t, levels[i].Distance.GreaterThanOrEqual(levels[i-1].Distance),
			"距离应单调不减: [%d]=%s [%d]=%s", i-1, levels[i-1].Distance, i, levels[i].Distance)
	}
}

func TestComputeLadderDeterministic(t *testing.T) {
	inst := testInstrument()
	ref := decimal.NewFromFloat(64123.45)
	spacing := decimal.NewFromFloat(0.0003)

	a := ComputeLadder(inst, ref, spacing, 8, decimal.NewFromInt(20))
	b := ComputeLadder(inst, ref, spacing, 8, decimal.NewFromInt(20))

	require.Equal(t, len(a), len(b))
	for i := range a {
		assert.Equal(t, a[i].Key(), b[i].Key())
		assert.True(t, a[i].Quantity.Equal(b[i].Quantity))
	}
}

func TestComputeLadderInvalidInput(t *testing.T) {
	inst := testInstrument()
	assert.Nil(t, ComputeLadder(inst, decimal.Zero, decimal.NewFromFloat(0.001), 4, decimal.NewFromInt(100)))
	assert.Nil(t, ComputeLadder(inst, decimal.NewFromInt(100), decimal.NewFromFloat(0.001), 0, decimal.NewFromInt(100)))
}

func TestQuantityForNotionalMinBump(t *testing.T) {
	inst := testInstrument()
	price := decimal.NewFromInt(100)

	// 名义 5 USD 低于最小 10 USD，数量应被补到满足最小名义金额
	qty := inst.QuantityForNotional(decimal.NewFromInt(5), price)
	assert.True(t, qty.Mul(price).GreaterThanOrEqual(inst.MinNotional),
		"名义金额 %s 应不低于 %s", qty.Mul(price), inst.MinNotional)

	// 数量对齐 lot size
	assert.True(t, qty.Mod(inst.LotSize).IsZero())
}

func TestValidateOrder(t *testing.T) {
	inst := testInstrument()

	assert.NoError(t, inst.ValidateOrder(decimal.NewFromFloat(100.01), decimal.NewFromFloat(0.5)))
	assert.Error(t, inst.ValidateOrder(decimal.NewFromFloat(100.001), decimal.NewFromFloat(0.5)), "价格未对齐 tick")
	assert.Error(t, inst.ValidateOrder(decimal.NewFromInt(100), decimal.NewFromFloat(0.00005)), "数量未对齐 lot")
	assert.Error(t, inst.ValidateOrder(decimal.NewFromInt(100), decimal.NewFromFloat(0.0001)), "名义金额过小")
	assert.Error(t, inst.ValidateOrder(decimal.Zero, decimal.NewFromInt(1)))
}
