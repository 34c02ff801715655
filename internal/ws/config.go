package ws

import "time"

// Config WebSocket 连接配置
type Config struct {
	URL              string
	AccountIndex     int
	HandshakeTimeout time.Duration
	PingInterval     time.Duration
	StaleAfter       time.Duration // 静默超过该时长视为连接失活，强制重连
	ReconnectBase    time.Duration // 重连退避起始延迟
	ReconnectFactor  float64       // 退避倍率
	ReconnectMax     time.Duration // 退避上限
	BufferSize       int           // 事件通道缓冲
}

// DefaultConfig 默认连接配置
func DefaultConfig() Config {
	return Config{
		HandshakeTimeout: 10 * time.Second,
		PingInterval:     15 * time.Second,
		StaleAfter:       120 * time.Second,
		ReconnectBase:    5 * time.Second,
		ReconnectFactor:  1.5,
		ReconnectMax:     30 * time.Second,
		BufferSize:       1000,
	}
}

// nextBackoff 计算第 attempt 次重连的退避延迟（attempt 从 1 开始）
// 单调不减，封顶 ReconnectMax；永不放弃重连
func nextBackoff(cfg Config, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(cfg.ReconnectBase)
	for i := 1; i < attempt; i++ {
		d *= cfg.ReconnectFactor
		if time.Duration(d) >= cfg.ReconnectMax {
			return cfg.ReconnectMax
		}
	}
	if time.Duration(d) > cfg.ReconnectMax {
		return cfg.ReconnectMax
	}
	return time.Duration(d)
}
