package ports

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// ErrAuth 鉴权失败，不可重试，必须进入紧急停止
var ErrAuth = errors.New("交易所鉴权失败")

// RateLimitError 触发限流，应等待 RetryAfter 后再试
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("触发限流，%s 后重试", e.RetryAfter)
}

// ValidationError 参数校验失败，本地拒绝，不发往交易所
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "订单参数校验失败: " + e.Reason
}

// TransientError 瞬时网络错误，可有限次重试
type TransientError struct {
	Cause error
}

func (e *TransientError) Error() string {
	return "瞬时网络错误: " + e.Cause.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Cause
}

// IsRetryable 错误是否可安全重试
// 超时不算可重试：超时后订单结果未知，重试可能重复下单，应走对账
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrAuth) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return false
	}
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	var rle *RateLimitError
	if errors.As(err, &rle) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && !ne.Timeout() {
		return true
	}
	return false
}

// IsOutcomeUnknown 调用结果是否未知（超时或取消）
// 结果未知意味着订单可能已被交易所接受，必须触发对账
func IsOutcomeUnknown(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return false
}
