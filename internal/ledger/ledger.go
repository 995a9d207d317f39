// Package ledger is the append-only per-identity position log. Every entry
// carries the full resulting snapshot, not a delta, so any single line is
// enough to reconstruct state. Entries are never rewritten; only the
// administrative reset operations in reset.go truncate the file.
package ledger

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/openquant/trading-agent/internal/dates"
)

// CashKey is the distinguished snapshot key holding dollars, not shares.
const CashKey = "CASH"

// ErrUnavailable wraps ledger file access failures.
var ErrUnavailable = errors.New("ledger unavailable")

// Action kinds.
const (
	ActionBuy     = "buy"
	ActionSell    = "sell"
	ActionNoTrade = "no_trade"
)

// Snapshot maps symbol (or CashKey) to quantity: whole shares for symbols,
// dollars for cash.
type Snapshot map[string]float64

// Clone returns an independent copy.
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Cash returns the cash balance, zero if absent.
func (s Snapshot) Cash() float64 { return s[CashKey] }

// Shares returns the whole-share count held for a symbol.
func (s Snapshot) Shares(symbol string) int { return int(s[symbol]) }

// Action describes the event that produced an entry.
type Action struct {
	Kind   string `json:"action"`
	Symbol string `json:"symbol"`
	Amount int    `json:"amount"`
}

// NoTrade is the action recorded on days without a trade.
func NoTrade() Action { return Action{Kind: ActionNoTrade} }

// Entry is one immutable ledger line. IDs are strictly increasing in write
// order within one identity's log.
type Entry struct {
	Date      string   `json:"date"`
	ID        int64    `json:"id"`
	Action    Action   `json:"this_action"`
	Positions Snapshot `json:"positions"`
}

// Calendar resolves the previous trading date; the price resolver provides
// the store-backed implementation.
type Calendar interface {
	PrevTradingDate(date string) (string, error)
}

// Ledger reads and appends one identity's log. Reads never lock; mutations
// go through Update, which holds the identity-scoped file lock.
type Ledger struct {
	dir      string // data root, e.g. data/agent_data
	identity string
	cal      Calendar
}

// New returns a ledger handle for one agent identity.
func New(dir, identity string, cal Calendar) *Ledger {
	return &Ledger{dir: dir, identity: identity, cal: cal}
}

// Identity returns the owning agent identity.
func (l *Ledger) Identity() string { return l.identity }

func (l *Ledger) identityDir() string { return filepath.Join(l.dir, l.identity) }

// Path returns the position log file path.
func (l *Ledger) Path() string {
	return filepath.Join(l.identityDir(), "position", "position.jsonl")
}

func (l *Ledger) lockPath() string {
	return filepath.Join(l.identityDir(), ".position.lock")
}

// Txn is a view of the ledger with the identity lock held. It exists only
// inside Update; keeping the mutating methods here makes it impossible to
// append without the lock.
type Txn struct {
	l *Ledger
}

// Update runs fn holding the exclusive, identity-scoped advisory file lock.
// The lock serializes the whole read-validate-append sequence against other
// mutators of the same identity; different identities proceed independently.
func (l *Ledger) Update(fn func(tx *Txn) error) error {
	if err := os.MkdirAll(l.identityDir(), 0o755); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	fl := flock.New(l.lockPath())
	if err := fl.Lock(); err != nil {
		return fmt.Errorf("%w: lock: %v", ErrUnavailable, err)
	}
	defer fl.Unlock()
	return fn(&Txn{l: l})
}

// Append writes one entry under the identity lock.
func (l *Ledger) Append(e Entry) error {
	return l.Update(func(tx *Txn) error { return tx.Append(e) })
}

// Append writes one entry. The line is marshaled before the file is opened
// so an encoding failure cannot leave a partial line behind.
func (tx *Txn) Append(e Entry) error {
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("ledger append: %w", err)
	}
	path := tx.l.Path()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer f.Close()
	if _, err := f.Write(append(b, '\n')); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// scan streams every parseable entry in file order. A missing file yields no
// entries and no error; other I/O failures are ErrUnavailable. Malformed
// lines are skipped: one corrupt line must not hide the rest of the log.
func (l *Ledger) scan(fn func(e Entry)) error {
	f, err := os.Open(l.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<22)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			continue
		}
		fn(e)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// latestOn returns the positions and id of the greatest-id entry whose date
// matches the given calendar day exactly. id is -1 when nothing matches.
func (l *Ledger) latestOn(date string) (Snapshot, int64, error) {
	var (
		best    Snapshot
		maxID   int64 = -1
		wantDay       = dates.DayOf(date)
	)
	err := l.scan(func(e Entry) {
		if dates.DayOf(e.Date) != wantDay {
			return
		}
		if e.ID > maxID {
			maxID = e.ID
			best = e.Positions
		}
	})
	if err != nil {
		return nil, -1, err
	}
	if maxID < 0 {
		return Snapshot{}, -1, nil
	}
	if best == nil {
		best = Snapshot{}
	}
	return best, maxID, nil
}

// earliestDay returns the smallest calendar day present in the log, or ""
// when the log is empty.
func (l *Ledger) earliestDay() (string, error) {
	min := ""
	err := l.scan(func(e Entry) {
		day := dates.DayOf(e.Date)
		if min == "" || day < min {
			min = day
		}
	})
	return min, err
}

// LatestAsOf returns the latest snapshot effective on a date: the greatest-id
// entry dated that calendar day, else the same for each previous trading
// date in turn, until the log's history is exhausted. Returns an empty
// snapshot and id -1 at exhaustion.
func (l *Ledger) LatestAsOf(date string) (Snapshot, int64, error) {
	floor, err := l.earliestDay()
	if err != nil {
		return nil, -1, err
	}
	if floor == "" {
		return Snapshot{}, -1, nil
	}
	cur := date
	for {
		snap, id, err := l.latestOn(cur)
		if err != nil {
			return nil, -1, err
		}
		if id >= 0 {
			return snap, id, nil
		}
		prev, err := l.cal.PrevTradingDate(cur)
		if err != nil {
			return nil, -1, fmt.Errorf("resolving previous trading date of %q: %w", cur, err)
		}
		if prev == cur || dates.DayOf(cur) < floor {
			return Snapshot{}, -1, nil
		}
		cur = prev
	}
}

// SnapshotForOpen returns the positions carried into the opening of a date:
// the latest entry as of the previous trading date. Same-day entries are
// trades executed during the date and do not count.
func (l *Ledger) SnapshotForOpen(date string) (Snapshot, error) {
	prev, err := l.cal.PrevTradingDate(date)
	if err != nil {
		return nil, err
	}
	snap, _, err := l.latestOn(prev)
	return snap, err
}

// RecordNoTrade appends a no_trade entry carrying forward the previous
// trading date's positions. The id is one more than the max of the previous
// date's and the current date's latest ids, so ids stay strictly increasing
// even when carry-forwards interleave with real trades.
func (l *Ledger) RecordNoTrade(date string) error {
	return l.Update(func(tx *Txn) error {
		prev, err := l.cal.PrevTradingDate(date)
		if err != nil {
			return err
		}
		carried, prevID, err := l.LatestAsOf(prev)
		if err != nil {
			return err
		}
		today, todayID, err := l.LatestAsOf(date)
		if err != nil {
			return err
		}
		// A log whose entire history is dated today (a freshly seeded
		// ledger) has nothing on any earlier date; carrying the empty
		// walk result would wipe the seed.
		if prevID < 0 && todayID >= 0 {
			carried = today
		}
		next := prevID
		if todayID > next {
			next = todayID
		}
		return tx.Append(Entry{
			Date:      date,
			ID:        next + 1,
			Action:    NoTrade(),
			Positions: carried,
		})
	})
}

// EnsureInit seeds an empty ledger with an id-0 entry holding only cash.
// A ledger that already has any entry is left untouched.
func (l *Ledger) EnsureInit(date string, cash float64) error {
	return l.Update(func(tx *Txn) error {
		seeded := false
		if err := l.scan(func(Entry) { seeded = true }); err != nil {
			return err
		}
		if seeded {
			return nil
		}
		return tx.Append(Entry{
			Date:      date,
			ID:        0,
			Action:    NoTrade(),
			Positions: Snapshot{CashKey: cash},
		})
	})
}

// LatestAsOf inside a transaction; same semantics, lock already held.
func (tx *Txn) LatestAsOf(date string) (Snapshot, int64, error) {
	return tx.l.LatestAsOf(date)
}
