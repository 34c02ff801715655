package ws

import (
	"testing"
	"testing/quick"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNextBackoffSequence(t *testing.T) {
	cfg := DefaultConfig()

	// 5s, 7.5s, 11.25s, ... 封顶 30s
	assert.Equal(t, 5*time.Second, nextBackoff(cfg, 1))
	assert.Equal(t, 7500*time.Millisecond, nextBackoff(cfg, 2))
	assert.Equal(t, 11250*time.Millisecond, nextBackoff(cfg, 3))
	assert.Equal(t, 30*time.Second, nextBackoff(cfg, 10))
	assert.Equal(t, 30*time.Second, nextBackoff(cfg, 100))
}

// 属性：退避延迟单调不减且永不超过上限
func TestProperty_BackoffMonotonicCapped(t *testing.T) {
	cfg := DefaultConfig()

	property := func(attempt uint8) bool {
		n := int(attempt%50) + 1
		cur := nextBackoff(cfg, n)
		next := nextBackoff(cfg, n+1)

		if cur > cfg.ReconnectMax {
			t.Logf("第 %d 次退避 %s 超过上限 %s", n, cur, cfg.ReconnectMax)
			return false
		}
		if next < cur {
			t.Logf("退避回退: 第 %d 次 %s -> 第 %d 次 %s", n, cur, n+1, next)
			return false
		}
		if cur < cfg.ReconnectBase {
			return false
		}
		return true
	}

	config := &quick.Config{MaxCount: 100}
	if err := quick.Check(property, config); err != nil {
		t.Errorf("属性测试失败: %v", err)
	}
}

func TestNextBackoffInvalidAttempt(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, cfg.ReconnectBase, nextBackoff(cfg, 0))
	assert.Equal(t, cfg.ReconnectBase, nextBackoff(cfg, -3))
}
