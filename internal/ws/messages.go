package ws

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lightbot/golighter/internal/domain"
	"github.com/lightbot/golighter/internal/events"
)

// rawMessage Lighter WebSocket 消息的外层结构
type rawMessage struct {
	Type    string          `json:"type"`
	Channel string          `json:"channel"`
	Orders  json.RawMessage `json:"orders"`
	Trades  json.RawMessage `json:"trades"`
	Book    json.RawMessage `json:"order_book"`
}

type wsOrder struct {
	OrderIndex    string `json:"order_index"`
	ClientOrderID string `json:"client_order_index"`
	Symbol        string `json:"symbol"`
	IsAsk         bool   `json:"is_ask"`
	Price         string `json:"price"`
	FilledBase    string `json:"filled_base_amount"`
	Status        string `json:"status"`
	Timestamp     int64  `json:"timestamp"`
}

type wsTrade struct {
	TradeID       string `json:"trade_id"`
	ClientOrderID string `json:"client_order_index"`
	Symbol        string `json:"symbol"`
	IsAsk         bool   `json:"is_ask"`
	Price         string `json:"price"`
	Size          string `json:"size"`
	Timestamp     int64  `json:"timestamp"`
}

type wsBook struct {
	Symbol string     `json:"symbol"`
	Bids   [][]string `json:"bids"` // [price, size]
	Asks   [][]string `json:"asks"`
}

// parseMessage 将一条 WebSocket 消息解析为类型化事件
// 无法识别的消息返回 (nil, nil)，由调用方记日志后丢弃；控制消息（connected/subscribed/ping）也返回空
func parseMessage(data []byte, symbol string) ([]events.Event, error) {
	var raw rawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("消息解析失败: %w", err)
	}

	switch raw.Type {
	case "connected", "subscribed", "ping", "pong":
		return nil, nil
	case "update/account_orders", "subscribed/account_orders":
		return parseOrderUpdates(raw.Orders, symbol)
	case "update/trade", "subscribed/trade":
		return parseTrades(raw.Trades, symbol)
	case "update/order_book", "subscribed/order_book":
		return parseBook(raw.Book, symbol)
	}
	return nil, nil
}

func parseOrderUpdates(data json.RawMessage, symbol string) ([]events.Event, error) {
	if len(data) == 0 {
		return nil, nil
	}
	// orders 字段可能是 market_index -> []order 的 map，也可能直接是数组
	var byMarket map[string][]wsOrder
	var flat []wsOrder
	if err := json.Unmarshal(data, &byMarket); err == nil {
		for _, orders := range byMarket {
			flat = append(flat, orders...)
		}
	} else if err := json.Unmarshal(data, &flat); err != nil {
		return nil, fmt.Errorf("订单更新解析失败: %w", err)
	}

	var out []events.Event
	for _, o := range flat {
		filled := decimal.Zero
		if o.FilledBase != "" {
			f, err := decimal.NewFromString(o.FilledBase)
			if err != nil {
				continue
			}
			filled = f
		}
		status, ok := mapOrderStatus(o.Status, filled)
		if !ok {
			// 未知状态不能猜测语义，记日志后丢弃，留给对账兜底
			wsLog.Warnf("⚠️ 丢弃未知订单状态 %q (order=%s)", o.Status, o.OrderIndex)
			continue
		}
		out = append(out, events.OrderUpdate{
			ClientOrderID:  o.ClientOrderID,
			ExchangeID:     o.OrderIndex,
			Symbol:         symbol,
			Status:         status,
			FilledQuantity: filled,
			Timestamp:      time.UnixMilli(o.Timestamp),
		})
	}
	return out, nil
}

func mapOrderStatus(s string, filled decimal.Decimal) (domain.OrderStatus, bool) {
	switch s {
	case "open", "pending", "in-progress":
		if filled.IsPositive() {
			return domain.OrderStatusPartial, true
		}
		return domain.OrderStatusOpen, true
	case "filled":
		return domain.OrderStatusFilled, true
	case "canceled", "cancelled", "canceled-self-trade", "canceled-post-only":
		return domain.OrderStatusCanceled, true
	case "expired":
		return domain.OrderStatusExpired, true
	}
	return "", false
}

func parseTrades(data json.RawMessage, symbol string) ([]events.Event, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var trades []wsTrade
	if err := json.Unmarshal(data, &trades); err != nil {
		return nil, fmt.Errorf("成交解析失败: %w", err)
	}

	var out []events.Event
	for _, t := range trades {
		price, perr := decimal.NewFromString(t.Price)
		size, serr := decimal.NewFromString(t.Size)
		if perr != nil || serr != nil {
			continue
		}
		side := domain.SideBuy
		if t.IsAsk {
			side = domain.SideSell
		}
		out = append(out, events.Fill{Fill: domain.Fill{
			TradeID:       t.TradeID,
			ClientOrderID: t.ClientOrderID,
			Symbol:        symbol,
			Side:          side,
			Price:         price,
			Quantity:      size,
			Timestamp:     time.UnixMilli(t.Timestamp),
		}})
	}
	return out, nil
}

func parseBook(data json.RawMessage, symbol string) ([]events.Event, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var book wsBook
	if err := json.Unmarshal(data, &book); err != nil {
		return nil, fmt.Errorf("订单簿解析失败: %w", err)
	}

	tick := events.PriceTick{Symbol: symbol, Timestamp: time.Now()}
	if len(book.Bids) > 0 && len(book.Bids[0]) > 0 {
		if p, err := decimal.NewFromString(book.Bids[0][0]); err == nil {
			tick.BestBid = p
		}
	}
	if len(book.Asks) > 0 && len(book.Asks[0]) > 0 {
		if p, err := decimal.NewFromString(book.Asks[0][0]); err == nil {
			tick.BestAsk = p
		}
	}
	if tick.BestBid.IsZero() && tick.BestAsk.IsZero() {
		return nil, nil
	}
	return []events.Event{tick}, nil
}
