// Package ws 管理到交易所的 WebSocket 连接
// 监听 goroutine 只做解析和投递，不直接改任何交易状态
package ws

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/lightbot/golighter/internal/events"
)

var wsLog = logrus.WithField("component", "ws_supervisor")

// ConnState 连接状态
type ConnState int32

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	StateStale // 连接未断但静默过久，等待强制重连
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateStale:
		return "STALE"
	}
	return "UNKNOWN"
}

// Supervisor 维护 WebSocket 连接的生命周期
// 断线后按指数退避无限重连；重连成功并恢复订阅后投递 Connectivity(Up) 事件，
// 上层收到后必须触发一次对账
type Supervisor struct {
	cfg    Config
	symbol string

	conn   *websocket.Conn
	connMu sync.Mutex

	state   ConnState
	stateMu sync.RWMutex

	lastMsg   time.Time
	lastMsgMu sync.RWMutex

	eventCh chan events.Event
	stopCh  chan struct{}
	doneCh  chan struct{}

	running   bool
	runningMu sync.Mutex
}

// NewSupervisor 创建连接监督器
func NewSupervisor(cfg Config, symbol string) *Supervisor {
	return &Supervisor{
		cfg:     cfg,
		symbol:  symbol,
		state:   StateDisconnected,
		eventCh: make(chan events.Event, cfg.BufferSize),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Events 返回事件通道
func (s *Supervisor) Events() <-chan events.Event {
	return s.eventCh
}

// State 返回当前连接状态
func (s *Supervisor) State() ConnState {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

func (s *Supervisor) setState(st ConnState) {
	s.stateMu.Lock()
	if s.state != st {
		wsLog.Infof("🔄 连接状态 %s -> %s", s.state, st)
		s.state = st
	}
	s.stateMu.Unlock()
}

// Start 建立连接并启动读取/心跳/失活检测循环
func (s *Supervisor) Start(ctx context.Context) error {
	s.runningMu.Lock()
	if s.running {
		s.runningMu.Unlock()
		return fmt.Errorf("监督器已在运行")
	}
	s.running = true
	s.runningMu.Unlock()

	if err := s.connect(); err != nil {
		// 初始连接失败不是致命错误，readLoop 会继续重连
		wsLog.Warnf("⚠️ 初始连接失败: %v，进入重连", err)
		s.setState(StateDisconnected)
	} else {
		s.emit(events.Connectivity{Up: true, Reason: "initial connect", Timestamp: time.Now()})
	}

	go s.readLoop(ctx)
	go s.pingLoop(ctx)
	go s.staleLoop(ctx)

	wsLog.Infof("🚀 已启动连接到 %s", s.cfg.URL)
	return nil
}

// Stop 关闭连接并停止所有循环
func (s *Supervisor) Stop() {
	s.runningMu.Lock()
	if !s.running {
		s.runningMu.Unlock()
		return
	}
	s.running = false
	s.runningMu.Unlock()

	close(s.stopCh)

	s.connMu.Lock()
	if s.conn != nil {
		s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		s.conn.Close()
		s.conn = nil
	}
	s.connMu.Unlock()

	select {
	case <-s.doneCh:
	case <-time.After(5 * time.Second):
		wsLog.Warn("⚠️ 关闭超时")
	}
	s.setState(StateDisconnected)
	wsLog.Info("🛑 已停止")
}

// connect 建立连接并恢复订阅
func (s *Supervisor) connect() error {
	s.setState(StateConnecting)

	s.connMu.Lock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.connMu.Unlock()

	dialer := websocket.Dialer{HandshakeTimeout: s.cfg.HandshakeTimeout}
	conn, _, err := dialer.Dial(s.cfg.URL, nil)
	if err != nil {
		s.setState(StateDisconnected)
		return fmt.Errorf("连接失败: %w", err)
	}

	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()

	s.touch()

	if err := s.subscribe(); err != nil {
		s.connMu.Lock()
		if s.conn != nil {
			s.conn.Close()
			s.conn = nil
		}
		s.connMu.Unlock()
		s.setState(StateDisconnected)
		return fmt.Errorf("订阅失败: %w", err)
	}

	s.setState(StateConnected)
	return nil
}

// subscribe 订阅账户订单流、成交流和订单簿
func (s *Supervisor) subscribe() error {
	channels := []string{
		fmt.Sprintf("account_orders/%s/%d", s.symbol, s.cfg.AccountIndex),
		fmt.Sprintf("trade/%s/%d", s.symbol, s.cfg.AccountIndex),
		fmt.Sprintf("order_book/%s", s.symbol),
	}

	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conn == nil {
		return fmt.Errorf("未连接")
	}
	for _, ch := range channels {
		msg := map[string]string{"type": "subscribe", "channel": ch}
		if err := s.conn.WriteJSON(msg); err != nil {
			return fmt.Errorf("发送订阅失败 %s: %w", ch, err)
		}
	}
	wsLog.Infof("✅ 已订阅 %d 个频道", len(channels))
	return nil
}

// readLoop 读取循环
func (s *Supervisor) readLoop(ctx context.Context) {
	defer close(s.doneCh)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		default:
		}

		s.connMu.Lock()
		conn := s.conn
		s.connMu.Unlock()

		if conn == nil {
			s.reconnect(ctx)
			continue
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			s.connMu.Lock()
			if s.conn != nil {
				s.conn.Close()
				s.conn = nil
			}
			s.connMu.Unlock()

			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				wsLog.Info("连接正常关闭")
				return
			}
			wsLog.Warnf("⚠️ 读取错误: %v，进入重连", err)
			s.setState(StateDisconnected)
			s.emit(events.Connectivity{Up: false, Reason: err.Error(), Timestamp: time.Now()})
			continue
		}

		s.touch()
		evts, perr := parseMessage(data, s.symbol)
		if perr != nil {
			// 无法识别的载荷只记日志丢弃，不影响已有状态
			preview := string(data)
			if len(preview) > 200 {
				preview = preview[:200] + "..."
			}
			wsLog.Warnf("⚠️ 丢弃无法解析的消息: %v (%s)", perr, preview)
			continue
		}
		for _, e := range evts {
			s.emit(e)
		}
	}
}

// pingLoop 心跳循环
func (s *Supervisor) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.connMu.Lock()
			conn := s.conn
			if conn != nil {
				if err := conn.WriteJSON(map[string]string{"type": "ping"}); err != nil {
					wsLog.Warnf("⚠️ 心跳发送失败: %v", err)
				}
			}
			s.connMu.Unlock()
		}
	}
}

// staleLoop 失活检测：连接未断但长时间没有任何消息时强制重连
func (s *Supervisor) staleLoop(ctx context.Context) {
	interval := s.cfg.StaleAfter / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			if s.State() != StateConnected {
				continue
			}
			s.lastMsgMu.RLock()
			silent := time.Since(s.lastMsg)
			s.lastMsgMu.RUnlock()

			if silent > s.cfg.StaleAfter {
				wsLog.Warnf("⚠️ 连接静默 %s，标记失活并强制重连", silent.Truncate(time.Second))
				s.setState(StateStale)
				s.connMu.Lock()
				if s.conn != nil {
					s.conn.Close()
					s.conn = nil
				}
				s.connMu.Unlock()
				s.emit(events.Connectivity{Up: false, Reason: "stale connection", Timestamp: time.Now()})
			}
		}
	}
}

// reconnect 按退避策略重连，直到成功或被停止
func (s *Supervisor) reconnect(ctx context.Context) {
	for attempt := 1; ; attempt++ {
		delay := nextBackoff(s.cfg, attempt)
		wsLog.Infof("⏳ %s 后重连 (第 %d 次)...", delay, attempt)

		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-time.After(delay):
		}

		if err := s.connect(); err != nil {
			wsLog.Warnf("⚠️ 重连失败: %v", err)
			continue
		}

		wsLog.Info("✅ 重连成功，订阅已恢复")
		s.emit(events.Connectivity{Up: true, Reason: "reconnected", Timestamp: time.Now()})
		return
	}
}

// touch 更新最后收到消息的时间
func (s *Supervisor) touch() {
	s.lastMsgMu.Lock()
	s.lastMsg = time.Now()
	s.lastMsgMu.Unlock()
}

// emit 投递事件（通道满时丢弃并告警，避免阻塞读取循环）
func (s *Supervisor) emit(e events.Event) {
	select {
	case s.eventCh <- e:
	default:
		wsLog.Warnf("⚠️ 事件通道已满，丢弃 %T", e)
	}
}
