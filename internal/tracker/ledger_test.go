package tracker

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/lightbot/golighter/internal/domain"
)

func TestLedgerApply(t *testing.T) {
	l := NewLedger()
	l.Apply(&domain.Fill{
		TradeID:   "t1",
		Symbol:    "BTC-PERP",
		Side:      domain.SideBuy,
		Price:     decimal.NewFromInt(100),
		Quantity:  decimal.NewFromInt(2),
		Timestamp: time.Now(),
	})

	p := l.Position("BTC-PERP")
	assert.True(t, p.Quantity.Equal(decimal.NewFromInt(2)))
	assert.True(t, p.AvgEntryPrice.Equal(decimal.NewFromInt(100)))
}

func TestLedgerReconcileDrift(t *testing.T) {
	l := NewLedger()
	l.Apply(&domain.Fill{
		TradeID: "t1", Symbol: "BTC-PERP", Side: domain.SideBuy,
		Price: decimal.NewFromInt(100), Quantity: decimal.NewFromInt(1), Timestamp: time.Now(),
	})

	// 交易所说持仓是 2：以交易所为准
	drifted := l.ReconcileAgainst([]domain.Position{{
		Symbol:        "BTC-PERP",
		Quantity:      decimal.NewFromInt(2),
		AvgEntryPrice: decimal.NewFromInt(99),
	}})
	assert.True(t, drifted)

	p := l.Position("BTC-PERP")
	assert.True(t, p.Quantity.Equal(decimal.NewFromInt(2)))
	assert.True(t, p.AvgEntryPrice.Equal(decimal.NewFromInt(99)))
}

func TestLedgerReconcileClearsLocalOnly(t *testing.T) {
	l := NewLedger()
	l.Apply(&domain.Fill{
		TradeID: "t1", Symbol: "BTC-PERP", Side: domain.SideBuy,
		Price: decimal.NewFromInt(100), Quantity: decimal.NewFromInt(1), Timestamp: time.Now(),
	})

	// 交易所无持仓：本地清零
	drifted := l.ReconcileAgainst(nil)
	assert.True(t, drifted)
	pos := l.Position("BTC-PERP")
	assert.True(t, pos.IsFlat())
}

func TestLedgerReconcileNoDrift(t *testing.T) {
	l := NewLedger()
	l.Apply(&domain.Fill{
		TradeID: "t1", Symbol: "BTC-PERP", Side: domain.SideBuy,
		Price: decimal.NewFromInt(100), Quantity: decimal.NewFromInt(1), Timestamp: time.Now(),
	})

	drifted := l.ReconcileAgainst([]domain.Position{{
		Symbol:   "BTC-PERP",
		Quantity: decimal.NewFromInt(1),
	}})
	assert.False(t, drifted)
}

func TestLedgerAdopt(t *testing.T) {
	l := NewLedger()
	l.Adopt(domain.Position{
		Symbol:        "BTC-PERP",
		Quantity:      decimal.NewFromFloat(-0.5),
		AvgEntryPrice: decimal.NewFromInt(64000),
	})

	p := l.Position("BTC-PERP")
	assert.True(t, p.Quantity.Equal(decimal.NewFromFloat(-0.5)))
}
