package executor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openquant/trading-agent/internal/dates"
	"github.com/openquant/trading-agent/internal/ledger"
	"github.com/openquant/trading-agent/internal/prices"
)

// fakePrices serves a fixed price table; a nil table simulates a dead source.
type fakePrices struct {
	table map[string]float64
	err   error
}

func (f *fakePrices) Resolve(_ context.Context, _ string, symbols []string) (map[string]float64, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string]float64)
	for _, sym := range symbols {
		if p, ok := f.table[sym]; ok {
			out[sym] = p
		}
	}
	return out, nil
}

type weekdayCal struct{}

func (weekdayCal) PrevTradingDate(date string) (string, error) {
	st, err := dates.Parse(date)
	if err != nil {
		return "", err
	}
	return st.CalendarPrev().String(), nil
}

func newTestExecutor(t *testing.T, cash float64, table map[string]float64) (*Executor, *ledger.Ledger) {
	t.Helper()
	l := ledger.New(t.TempDir(), "agent-1", weekdayCal{})
	require.NoError(t, l.EnsureInit("2025-10-15", cash))
	return New(l, &fakePrices{table: table}, nil), l
}

func TestBuyConservesValue(t *testing.T) {
	x, l := newTestExecutor(t, 600, map[string]float64{"AAPL": 50})

	snap, err := x.Buy(context.Background(), "2025-10-16", "AAPL", 2)
	require.NoError(t, err)
	assert.Equal(t, 500.0, snap.Cash())
	assert.Equal(t, 2, snap.Shares("AAPL"))

	got, id, err := l.LatestAsOf("2025-10-16")
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)
	assert.Equal(t, 500.0, got.Cash())
}

func TestSellConservesValue(t *testing.T) {
	x, _ := newTestExecutor(t, 600, map[string]float64{"AAPL": 50})
	_, err := x.Buy(context.Background(), "2025-10-16", "AAPL", 2)
	require.NoError(t, err)

	snap, err := x.Sell(context.Background(), "2025-10-16", "AAPL", 1)
	require.NoError(t, err)
	assert.Equal(t, 550.0, snap.Cash())
	assert.Equal(t, 1, snap.Shares("AAPL"))
}

func TestBuyInsufficientCash(t *testing.T) {
	x, l := newTestExecutor(t, 50, map[string]float64{"AAPL": 50})

	_, err := x.Buy(context.Background(), "2025-10-16", "AAPL", 2)
	require.Error(t, err)
	assert.Equal(t, KindInsufficientCash, KindOf(err))

	var te *TradeError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, 100.0, te.RequiredCash)
	assert.Equal(t, 50.0, te.AvailableCash)

	// The rejection leaves the ledger untouched.
	_, id, lerr := l.LatestAsOf("2025-10-16")
	require.NoError(t, lerr)
	assert.Equal(t, int64(0), id)
}

func TestBuyExactCashSucceeds(t *testing.T) {
	x, _ := newTestExecutor(t, 100, map[string]float64{"AAPL": 50})
	snap, err := x.Buy(context.Background(), "2025-10-16", "AAPL", 2)
	require.NoError(t, err)
	assert.Equal(t, 0.0, snap.Cash())
}

func TestSellInsufficientShares(t *testing.T) {
	x, l := newTestExecutor(t, 600, map[string]float64{"AAPL": 50})
	_, err := x.Buy(context.Background(), "2025-10-16", "AAPL", 2)
	require.NoError(t, err)

	_, err = x.Sell(context.Background(), "2025-10-16", "AAPL", 3)
	require.Error(t, err)
	assert.Equal(t, KindInsufficientShares, KindOf(err))

	var te *TradeError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, 2, te.Have)
	assert.Equal(t, 3, te.Want)

	_, id, lerr := l.LatestAsOf("2025-10-16")
	require.NoError(t, lerr)
	assert.Equal(t, int64(1), id, "only the buy is recorded")
}

func TestSellNeverHeld(t *testing.T) {
	x, _ := newTestExecutor(t, 600, map[string]float64{"AAPL": 50})
	_, err := x.Sell(context.Background(), "2025-10-16", "AAPL", 1)
	assert.Equal(t, KindInsufficientShares, KindOf(err))
}

func TestSymbolNotFound(t *testing.T) {
	x, _ := newTestExecutor(t, 600, map[string]float64{"AAPL": 50})
	_, err := x.Buy(context.Background(), "2025-10-16", "ZZZZ", 1)
	assert.Equal(t, KindSymbolNotFound, KindOf(err))
}

func TestPriceSourceUnavailable(t *testing.T) {
	l := ledger.New(t.TempDir(), "agent-1", weekdayCal{})
	require.NoError(t, l.EnsureInit("2025-10-15", 600))
	x := New(l, &fakePrices{err: fmt.Errorf("wrapped: %w", prices.ErrSourceUnavailable)}, nil)

	_, err := x.Buy(context.Background(), "2025-10-16", "AAPL", 1)
	assert.Equal(t, KindPriceSource, KindOf(err))
}

func TestNonPositiveAmount(t *testing.T) {
	x, _ := newTestExecutor(t, 600, map[string]float64{"AAPL": 50})
	for _, amount := range []int{0, -3} {
		_, err := x.Buy(context.Background(), "2025-10-16", "AAPL", amount)
		require.Error(t, err)
		assert.Empty(t, KindOf(err), "amount validation is a plain error, not a trade rejection")
	}
}

func TestTradeSetsMarker(t *testing.T) {
	l := ledger.New(t.TempDir(), "agent-1", weekdayCal{})
	require.NoError(t, l.EnsureInit("2025-10-15", 600))
	marker := FileMarker{Path: filepath.Join(t.TempDir(), "runtime", "if_trade.json")}
	x := New(l, &fakePrices{table: map[string]float64{"AAPL": 50}}, marker)

	assert.False(t, marker.Traded())

	_, err := x.Buy(context.Background(), "2025-10-16", "AAPL", 1)
	require.NoError(t, err)
	assert.True(t, marker.Traded())

	require.NoError(t, marker.Clear())
	if _, err := os.Stat(marker.Path); !os.IsNotExist(err) {
		t.Fatalf("marker file should be gone, stat err = %v", err)
	}
}

func TestRejectedTradeLeavesMarkerUnset(t *testing.T) {
	l := ledger.New(t.TempDir(), "agent-1", weekdayCal{})
	require.NoError(t, l.EnsureInit("2025-10-15", 10))
	marker := FileMarker{Path: filepath.Join(t.TempDir(), "if_trade.json")}
	x := New(l, &fakePrices{table: map[string]float64{"AAPL": 50}}, marker)

	_, err := x.Buy(context.Background(), "2025-10-16", "AAPL", 1)
	require.Error(t, err)
	assert.False(t, marker.Traded())
}
