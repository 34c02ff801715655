package domain

import (
	"sort"

	"github.com/shopspring/decimal"
)

// GridLevel 一个待挂单的网格层
type GridLevel struct {
	Side     Side
	Price    decimal.Decimal
	Quantity decimal.Decimal
	Distance decimal.Decimal // 与参考价的绝对距离，用于接近度排序
}

// Key 网格层的唯一键（方向+对齐后价格），用于与活跃订单做差集
func (l GridLevel) Key() string {
	return LevelKey(l.Side, l.Price)
}

// LevelKey 构造网格层键
func LevelKey(side Side, price decimal.Decimal) string {
	return string(side) + "@" + price.String()
}

// ComputeLadder 以参考价为中心计算网格阶梯
// 买层在参考价下方、卖层在上方，相邻层乘法间距 spacing；
// 返回结果按与参考价的距离从近到远排序（容量受限时优先挂近端层）
func ComputeLadder(inst Instrument, refPrice decimal.Decimal, spacing decimal.Decimal, levelsPerSide int, notional decimal.Decimal) []GridLevel {
	if !refPrice.IsPositive() || levelsPerSide <= 0 {
		return nil
	}

	one := decimal.NewFromInt(1)
	down := one.Sub(spacing)
	up := one.Add(spacing)

	levels := make([]GridLevel, 0, levelsPerSide*2)

	buyPrice := refPrice
	sellPrice := refPrice
	for n := 1; n <= levelsPerSide; n++ {
		buyPrice = buyPrice.Mul(down)
		sellPrice = sellPrice.Mul(up)

		bp := inst.RoundPrice(buyPrice)
		sp := inst.RoundPrice(sellPrice)

		if bp.IsPositive() {
			levels = append(levels, GridLevel{
				Side:     SideBuy,
				Price:    bp,
				Quantity: inst.QuantityForNotional(notional, bp),
				Distance: refPrice.Sub(bp).Abs(),
			})
		}
		levels = append(levels, GridLevel{
			Side:     SideSell,
			Price:    sp,
			Quantity: inst.QuantityForNotional(notional, sp),
			Distance: sp.Sub(refPrice).Abs(),
		})
	}

	sort.SliceStable(levels, func(a, b int) bool {
		return levels[a].Distance.LessThan(levels[b].Distance)
	})
	return levels
}
