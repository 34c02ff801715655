package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTokenBucketAllow(t *testing.T) {
	tb := NewTokenBucket(3, 1, 10*time.Second)

	assert.True(t, tb.Allow())
	assert.True(t, tb.Allow())
	assert.True(t, tb.Allow())
	assert.False(t, tb.Allow(), "桶空后应拒绝")
	assert.Equal(t, 0, tb.GetRemaining())
}

func TestSlidingWindowAllow(t *testing.T) {
	sw := NewSlidingWindow(2, 10*time.Second)

	assert.True(t, sw.Allow())
	assert.True(t, sw.Allow())
	assert.False(t, sw.Allow(), "窗口内超限应拒绝")
	assert.Equal(t, 0, sw.GetRemaining())
}

func TestWaitRespectsContext(t *testing.T) {
	tb := NewTokenBucket(1, 1, 10*time.Second)
	assert.True(t, tb.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := tb.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestManagerKnownEndpoints(t *testing.T) {
	m := NewManager()

	for _, ep := range []string{"order:create", "order:cancel", "order:cancel_all", "account:orders", "market:meta"} {
		assert.True(t, m.Allow(ep), "端点 %s 首次请求应放行", ep)
	}
}

func TestManagerUnknownEndpointAutoRegisters(t *testing.T) {
	m := NewManager()

	l1 := m.GetLimiter("something:new")
	l2 := m.GetLimiter("something:new")
	assert.Same(t, l1, l2, "同一端点应复用限制器")
}
