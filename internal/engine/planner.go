package engine

import (
	"github.com/lightbot/golighter/internal/domain"
)

// rebalancePlan 一次网格再平衡要执行的动作
// 撤单永远先于挂单执行，保证活跃订单数不会瞬时超限
type rebalancePlan struct {
	cancels  []*domain.Order    // 不再属于目标网格的活跃订单
	places   []domain.GridLevel // 本轮要挂的新层
	deferred []domain.GridLevel // 受容量限制推迟的层（已按接近度排序）
}

func (p rebalancePlan) empty() bool {
	return len(p.cancels) == 0 && len(p.places) == 0
}

// planRebalance 纯函数：对比目标网格与活跃订单，产出再平衡计划
// desired 必须已按与参考价的距离从近到远排序；容量不足时近端层优先，
// 远端层进入 deferred。相同输入永远产出相同计划
func planRebalance(desired []domain.GridLevel, active []*domain.Order, maxActive int) rebalancePlan {
	var plan rebalancePlan

	wanted := make(map[string]bool, len(desired))
	for _, lvl := range desired {
		wanted[lvl.Key()] = true
	}

	// 活跃订单里不在目标网格上的要撤掉
	covered := make(map[string]bool, len(active))
	kept := 0
	for _, o := range active {
		key := domain.LevelKey(o.Side, o.Price)
		if wanted[key] && !covered[key] {
			covered[key] = true
			kept++
			continue
		}
		plan.cancels = append(plan.cancels, o)
	}

	// 容量 = 上限 - 保留的订单数（撤单先执行，被撤的不占容量）
	capacity := maxActive - kept
	if capacity < 0 {
		capacity = 0
	}

	for _, lvl := range desired {
		if covered[lvl.Key()] {
			continue
		}
		if len(plan.places) < capacity {
			plan.places = append(plan.places, lvl)
		} else {
			plan.deferred = append(plan.deferred, lvl)
		}
	}

	return plan
}
