package ws

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lightbot/golighter/internal/domain"
	"github.com/lightbot/golighter/internal/events"
)

func TestParseMessageControlFrames(t *testing.T) {
	for _, payload := range []string{
		`{"type":"connected"}`,
		`{"type":"subscribed","channel":"order_book/BTC-PERP"}`,
		`{"type":"ping"}`,
	} {
		evts, err := parseMessage([]byte(payload), "BTC-PERP")
		assert.NoError(t, err)
		assert.Empty(t, evts)
	}
}

func TestParseMessageUnknownTypeDiscarded(t *testing.T) {
	evts, err := parseMessage([]byte(`{"type":"update/funding_rate","rate":"0.0001"}`), "BTC-PERP")
	assert.NoError(t, err)
	assert.Empty(t, evts)
}

func TestParseMessageMalformed(t *testing.T) {
	_, err := parseMessage([]byte(`not json at all`), "BTC-PERP")
	assert.Error(t, err)
}

func TestParseOrderUpdate(t *testing.T) {
	payload := `{
		"type": "update/account_orders",
		"orders": {"1": [{
			"order_index": "ex42",
			"client_order_index": "c42",
			"is_ask": true,
			"price": "64000.5",
			"filled_base_amount": "0.003",
			"status": "open",
			"timestamp": 1700000000000
		}]}
	}`
	evts, err := parseMessage([]byte(payload), "BTC-PERP")
	require.NoError(t, err)
	require.Len(t, evts, 1)

	ou, ok := evts[0].(events.OrderUpdate)
	require.True(t, ok)
	assert.Equal(t, "c42", ou.ClientOrderID)
	assert.Equal(t, "ex42", ou.ExchangeID)
	// 有成交量的 open 归一化为 partial
	assert.Equal(t, domain.OrderStatusPartial, ou.Status)
}

func TestParseOrderUpdateUnknownStatusDiscarded(t *testing.T) {
	payload := `{
		"type": "update/account_orders",
		"orders": {"1": [{
			"order_index": "ex43",
			"client_order_index": "c43",
			"is_ask": false,
			"price": "64000",
			"status": "matched-pending-settlement",
			"timestamp": 1700000000000
		}]}
	}`
	evts, err := parseMessage([]byte(payload), "BTC-PERP")
	// 未知状态不得猜成任何已知状态，整条丢弃且不报错
	require.NoError(t, err)
	assert.Empty(t, evts)
}

func TestParseTrade(t *testing.T) {
	payload := `{
		"type": "update/trade",
		"trades": [{
			"trade_id": "t7",
			"client_order_index": "c7",
			"is_ask": false,
			"price": "64000",
			"size": "0.01",
			"timestamp": 1700000000000
		}]
	}`
	evts, err := parseMessage([]byte(payload), "BTC-PERP")
	require.NoError(t, err)
	require.Len(t, evts, 1)

	f, ok := evts[0].(events.Fill)
	require.True(t, ok)
	assert.Equal(t, "t7", f.Fill.TradeID)
	assert.Equal(t, domain.SideBuy, f.Fill.Side)
}

func TestParseBook(t *testing.T) {
	payload := `{
		"type": "update/order_book",
		"order_book": {
			"symbol": "BTC-PERP",
			"bids": [["63999.5","0.5"]],
			"asks": [["64000.5","0.3"]]
		}
	}`
	evts, err := parseMessage([]byte(payload), "BTC-PERP")
	require.NoError(t, err)
	require.Len(t, evts, 1)

	tick, ok := evts[0].(events.PriceTick)
	require.True(t, ok)
	assert.Equal(t, "63999.5", tick.BestBid.String())
	assert.Equal(t, "64000.5", tick.BestAsk.String())
	assert.Equal(t, "64000", tick.Mid().String())
}

func TestParseBookEmptySides(t *testing.T) {
	payload := `{"type":"update/order_book","order_book":{"symbol":"BTC-PERP","bids":[],"asks":[]}}`
	evts, err := parseMessage([]byte(payload), "BTC-PERP")
	assert.NoError(t, err)
	assert.Empty(t, evts)
}
