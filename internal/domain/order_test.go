package domain

import (
	"testing"
	"testing/quick"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

var allStatuses = []OrderStatus{
	OrderStatusPending, OrderStatusOpen, OrderStatusPartial,
	OrderStatusFilled, OrderStatusCanceled, OrderStatusExpired, OrderStatusRejected,
}

func TestOrderStatusTerminalAbsorbing(t *testing.T) {
	// 终态吸收：任何终态都不允许再迁移
	for _, from := range allStatuses {
		if !from.IsTerminal() {
			continue
		}
		for _, to := range allStatuses {
			assert.False(t, from.CanTransition(to), "终态 %s 不应允许迁移到 %s", from, to)
		}
	}
}

func TestOrderStatusForwardOnly(t *testing.T) {
	assert.True(t, OrderStatusPending.CanTransition(OrderStatusOpen))
	assert.True(t, OrderStatusOpen.CanTransition(OrderStatusPartial))
	assert.True(t, OrderStatusPartial.CanTransition(OrderStatusOpen), "部分成交后剩余重新挂单")
	assert.True(t, OrderStatusPartial.CanTransition(OrderStatusFilled))
	assert.True(t, OrderStatusOpen.CanTransition(OrderStatusCanceled))
	assert.True(t, OrderStatusPending.CanTransition(OrderStatusRejected))

	// 禁止回退
	assert.False(t, OrderStatusOpen.CanTransition(OrderStatusPending))
	assert.False(t, OrderStatusPartial.CanTransition(OrderStatusPending))
}

// 属性：合法迁移序列中 rank 单调不减，一旦到达终态序列必须结束
func TestProperty_TransitionMonotonic(t *testing.T) {
	property := func(indices []uint8) bool {
		state := OrderStatusPending
		lastRank := state.rank()
		for _, idx := range indices {
			next := allStatuses[int(idx)%len(allStatuses)]
			if !state.CanTransition(next) {
				continue
			}
			if next.rank() < lastRank {
				t.Logf("rank 回退: %s(%d) -> %s(%d)", state, lastRank, next, next.rank())
				return false
			}
			state = next
			lastRank = next.rank()
			if state.IsTerminal() {
				// 终态后不允许任何迁移
				for _, s := range allStatuses {
					if state.CanTransition(s) {
						return false
					}
				}
			}
		}
		return true
	}

	config := &quick.Config{MaxCount: 100}
	if err := quick.Check(property, config); err != nil {
		t.Errorf("属性测试失败: %v", err)
	}
}

func TestOrderRemaining(t *testing.T) {
	o := Order{
		Quantity:       decimal.NewFromFloat(1.5),
		FilledQuantity: decimal.NewFromFloat(0.6),
	}
	assert.True(t, o.Remaining().Equal(decimal.NewFromFloat(0.9)))

	// 超量成交不产生负的剩余量
	o.FilledQuantity = decimal.NewFromFloat(2)
	assert.True(t, o.Remaining().IsZero())
}

func TestOrderAge(t *testing.T) {
	now := time.Now()
	o := Order{CreatedAt: now.Add(-30 * time.Minute)}
	assert.Equal(t, 30*time.Minute, o.Age(now))
}
