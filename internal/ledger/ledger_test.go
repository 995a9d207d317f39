package ledger

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openquant/trading-agent/internal/dates"
)

// stubCal steps back one weekday, like the store-less calendar fallback.
type stubCal struct{}

func (stubCal) PrevTradingDate(date string) (string, error) {
	st, err := dates.Parse(date)
	if err != nil {
		return "", err
	}
	return st.CalendarPrev().String(), nil
}

func testLedger(t *testing.T) *Ledger {
	t.Helper()
	return New(t.TempDir(), "agent-1", stubCal{})
}

func TestEnsureInitSeedsOnce(t *testing.T) {
	l := testLedger(t)
	require.NoError(t, l.EnsureInit("2025-10-16", 10000))

	snap, id, err := l.LatestAsOf("2025-10-16")
	require.NoError(t, err)
	assert.Equal(t, int64(0), id)
	assert.Equal(t, 10000.0, snap.Cash())

	// A second init against a non-empty log is a no-op.
	require.NoError(t, l.EnsureInit("2025-10-17", 99999))
	snap, id, err = l.LatestAsOf("2025-10-17")
	require.NoError(t, err)
	assert.Equal(t, int64(0), id)
	assert.Equal(t, 10000.0, snap.Cash())
}

func TestLatestAsOfLastRecordWins(t *testing.T) {
	l := testLedger(t)
	require.NoError(t, l.Append(Entry{Date: "2025-10-16", ID: 0, Action: NoTrade(), Positions: Snapshot{CashKey: 10000}}))
	require.NoError(t, l.Append(Entry{
		Date:      "2025-10-16",
		ID:        1,
		Action:    Action{Kind: ActionBuy, Symbol: "AAPL", Amount: 2},
		Positions: Snapshot{CashKey: 9600, "AAPL": 2},
	}))

	snap, id, err := l.LatestAsOf("2025-10-16")
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)
	assert.Equal(t, 2, snap.Shares("AAPL"))
	assert.Equal(t, 9600.0, snap.Cash())
}

func TestLatestAsOfFallsBackThroughDates(t *testing.T) {
	l := testLedger(t)
	require.NoError(t, l.Append(Entry{Date: "2025-10-14", ID: 3, Action: NoTrade(), Positions: Snapshot{CashKey: 5000, "MSFT": 1}}))

	// Nothing on the 16th or 15th; the snapshot from the 14th carries.
	snap, id, err := l.LatestAsOf("2025-10-16")
	require.NoError(t, err)
	assert.Equal(t, int64(3), id)
	assert.Equal(t, 1, snap.Shares("MSFT"))
}

func TestLatestAsOfExhaustion(t *testing.T) {
	l := testLedger(t)
	require.NoError(t, l.Append(Entry{Date: "2025-10-16", ID: 0, Action: NoTrade(), Positions: Snapshot{CashKey: 100}}))

	// Asking for a date before all history walks off the floor and stops.
	snap, id, err := l.LatestAsOf("2025-10-10")
	require.NoError(t, err)
	assert.Equal(t, int64(-1), id)
	assert.Empty(t, snap)
}

func TestLatestAsOfEmptyLog(t *testing.T) {
	l := testLedger(t)
	snap, id, err := l.LatestAsOf("2025-10-16")
	require.NoError(t, err)
	assert.Equal(t, int64(-1), id)
	assert.Empty(t, snap)
}

func TestLatestAsOfMatchesIntradayEntriesByDay(t *testing.T) {
	l := testLedger(t)
	require.NoError(t, l.Append(Entry{Date: "2025-10-16 09:30:00", ID: 0, Action: NoTrade(), Positions: Snapshot{CashKey: 100}}))

	snap, id, err := l.LatestAsOf("2025-10-16")
	require.NoError(t, err)
	assert.Equal(t, int64(0), id)
	assert.Equal(t, 100.0, snap.Cash())
}

func TestRecordNoTradeCarriesAndNumbers(t *testing.T) {
	l := testLedger(t)
	require.NoError(t, l.Append(Entry{Date: "2025-10-15", ID: 4, Action: NoTrade(), Positions: Snapshot{CashKey: 7000, "AAPL": 5}}))

	require.NoError(t, l.RecordNoTrade("2025-10-16"))
	snap, id, err := l.LatestAsOf("2025-10-16")
	require.NoError(t, err)
	assert.Equal(t, int64(5), id, "id is one past the carried entry")
	assert.Equal(t, 5, snap.Shares("AAPL"))
	assert.Equal(t, 7000.0, snap.Cash())

	// With a same-day trade at a higher id, the next no_trade goes past it.
	require.NoError(t, l.Append(Entry{
		Date:      "2025-10-16",
		ID:        9,
		Action:    Action{Kind: ActionBuy, Symbol: "MSFT", Amount: 1},
		Positions: Snapshot{CashKey: 6500, "AAPL": 5, "MSFT": 1},
	}))
	require.NoError(t, l.RecordNoTrade("2025-10-16"))
	_, id, err = l.LatestAsOf("2025-10-16")
	require.NoError(t, err)
	assert.Equal(t, int64(10), id)
}

func TestRecordNoTradeFirstSessionKeepsSeed(t *testing.T) {
	l := testLedger(t)
	require.NoError(t, l.EnsureInit("2025-10-16", 10000))

	// All history is dated today: the previous-date walk finds nothing,
	// so the carry-forward must fall back to today's latest snapshot.
	require.NoError(t, l.RecordNoTrade("2025-10-16"))

	snap, id, err := l.LatestAsOf("2025-10-16")
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)
	assert.Equal(t, 10000.0, snap.Cash(), "seeded cash survives an idle first session")

	// And it keeps surviving repeated idle sessions.
	require.NoError(t, l.RecordNoTrade("2025-10-16"))
	snap, id, err = l.LatestAsOf("2025-10-16")
	require.NoError(t, err)
	assert.Equal(t, int64(2), id)
	assert.Equal(t, 10000.0, snap.Cash())
}

func TestSnapshotForOpenIgnoresSameDay(t *testing.T) {
	l := testLedger(t)
	require.NoError(t, l.Append(Entry{Date: "2025-10-15", ID: 0, Action: NoTrade(), Positions: Snapshot{CashKey: 1000}}))
	require.NoError(t, l.Append(Entry{
		Date:      "2025-10-16",
		ID:        1,
		Action:    Action{Kind: ActionBuy, Symbol: "AAPL", Amount: 2},
		Positions: Snapshot{CashKey: 600, "AAPL": 2},
	}))

	snap, err := l.SnapshotForOpen("2025-10-16")
	require.NoError(t, err)
	assert.Equal(t, 0, snap.Shares("AAPL"), "same-day trades are not part of the open")
	assert.Equal(t, 1000.0, snap.Cash())
}

func TestScanSkipsMalformedLines(t *testing.T) {
	l := testLedger(t)
	require.NoError(t, l.Append(Entry{Date: "2025-10-16", ID: 0, Action: NoTrade(), Positions: Snapshot{CashKey: 100}}))

	f, err := os.OpenFile(l.Path(), os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("{half a line\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())
	require.NoError(t, l.Append(Entry{Date: "2025-10-16", ID: 1, Action: NoTrade(), Positions: Snapshot{CashKey: 200}}))

	snap, id, err := l.LatestAsOf("2025-10-16")
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)
	assert.Equal(t, 200.0, snap.Cash())
}
