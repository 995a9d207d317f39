// Package prices resolves per-symbol prices for a trading date, from either
// the live quote gateway or the local historical snapshot store, and owns
// previous-trading-date resolution.
package prices

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/openquant/trading-agent/internal/broker"
	"github.com/openquant/trading-agent/internal/dates"
	"github.com/openquant/trading-agent/internal/observ"
)

// Source mode names.
const (
	SourceLocal = "local"
	SourceLive  = "live"
)

// ErrSourceUnavailable is returned when the live source failed and no
// historical fallback could be read either.
var ErrSourceUnavailable = errors.New("price source unavailable")

// LiveQuoter is the slice of the gateway the resolver needs.
type LiveQuoter interface {
	Quote(ctx context.Context, symbol string) (broker.Quote, error)
}

// Resolver answers "what did these symbols cost on this date". A missing
// price is an absent key in the result, never an error: one unresolvable
// symbol must not poison a batch.
type Resolver struct {
	source string
	store  *Store
	live   LiveQuoter
}

// NewResolver builds a resolver. live may be nil when source is local; the
// gateway handle is owned by the caller and passed in at construction.
func NewResolver(source string, store *Store, live LiveQuoter) *Resolver {
	return &Resolver{source: source, store: store, live: live}
}

// Resolve returns a price per symbol for the date. In live mode each symbol
// is quoted from the gateway and priced by priority last trade -> bid/ask
// midpoint -> previous close; a gateway failure degrades the whole call to
// the local store.
func (r *Resolver) Resolve(ctx context.Context, date string, symbols []string) (map[string]float64, error) {
	if r.source == SourceLive && r.live != nil {
		out := make(map[string]float64, len(symbols))
		for _, sym := range symbols {
			q, err := r.live.Quote(ctx, sym)
			if err != nil {
				observ.Log("live_quotes_failed", map[string]any{
					"symbol": sym,
					"error":  err.Error(),
				})
				return r.resolveLocal(date, symbols, true)
			}
			if p, ok := compositePrice(q); ok {
				out[sym] = p
			}
		}
		return out, nil
	}
	return r.resolveLocal(date, symbols, false)
}

func (r *Resolver) resolveLocal(date string, symbols []string, afterLiveFailure bool) (map[string]float64, error) {
	out, err := r.store.FieldPrices(date, symbols, FieldBuyPrice)
	if err != nil {
		if afterLiveFailure {
			return nil, fmt.Errorf("%w: live failed and store unreadable: %v", ErrSourceUnavailable, err)
		}
		// Local-only mode tolerates a missing store: everything is simply
		// unpriced, matching per-symbol degradation.
		observ.Log("price_store_unavailable", map[string]any{"error": err.Error()})
		return map[string]float64{}, nil
	}
	return out, nil
}

// compositePrice picks a single price from a live quote. Valid means a real,
// strictly positive number; gateways report absent fields as NaN.
func compositePrice(q broker.Quote) (float64, bool) {
	switch {
	case valid(q.Last):
		return q.Last, true
	case valid(q.Bid) && valid(q.Ask):
		return (q.Bid + q.Ask) / 2, true
	case valid(q.Close):
		return q.Close, true
	default:
		return 0, false
	}
}

func valid(v float64) bool { return !math.IsNaN(v) && v > 0 }

// PrevTradingDate resolves the trading date (or date-time) preceding the
// input: the greatest store timestamp strictly before it. Without a usable
// store it falls back to the calendar: minus one weekday for date-only
// input, minus one hour (weekends included) for date-time input.
func (r *Resolver) PrevTradingDate(date string) (string, error) {
	st, err := dates.Parse(date)
	if err != nil {
		return "", err
	}

	stamps, serr := r.store.Timestamps()
	if serr != nil || len(stamps) == 0 {
		return st.CalendarPrev().String(), nil
	}

	var best time.Time
	found := false
	for _, raw := range stamps {
		t, perr := time.Parse(dates.TimeFormat, raw)
		if perr != nil {
			continue
		}
		if t.Before(st.Time()) && (!found || t.After(best)) {
			best = t
			found = true
		}
	}
	if !found {
		return st.CalendarPrev().String(), nil
	}
	if st.DateOnly() {
		return best.Format(dates.DayFormat), nil
	}
	return best.Format(dates.TimeFormat), nil
}

// OpenClose returns the previous trading date's open ("buy") and close
// ("sell") prices for the symbols, keyed by symbol. Symbols without data
// are absent from both maps.
func (r *Resolver) OpenClose(date string, symbols []string) (opens, closes map[string]float64, err error) {
	prev, err := r.PrevTradingDate(date)
	if err != nil {
		return nil, nil, err
	}
	opens, err = r.store.FieldPrices(prev, symbols, FieldBuyPrice)
	if err != nil {
		return nil, nil, err
	}
	closes, err = r.store.FieldPrices(prev, symbols, FieldSellPrice)
	if err != nil {
		return nil, nil, err
	}
	return opens, closes, nil
}

// OvernightProfit computes (close-open)*shares per held symbol, rounded to
// four decimals. Symbols missing either price contribute zero.
func OvernightProfit(opens, closes map[string]float64, positions map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(positions))
	for sym, shares := range positions {
		open, hasOpen := opens[sym]
		cls, hasClose := closes[sym]
		if !hasOpen || !hasClose || shares <= 0 {
			out[sym] = 0
			continue
		}
		out[sym] = math.Round((cls-open)*shares*1e4) / 1e4
	}
	return out
}
