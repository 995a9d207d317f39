// Package valuation computes deterministic portfolio values from a position
// snapshot and resolved prices. It persists nothing; the same snapshot and
// date always produce the same result.
package valuation

import (
	"context"
	"sort"

	"github.com/openquant/trading-agent/internal/ledger"
	"github.com/openquant/trading-agent/internal/observ"
)

// PriceSource is the slice of the price resolver the engine needs.
type PriceSource interface {
	Resolve(ctx context.Context, date string, symbols []string) (map[string]float64, error)
}

// Line is one row of the valuation breakdown. Price and Value are nil when
// the symbol could not be priced; such rows are excluded from the total
// rather than counted as zero.
type Line struct {
	Shares float64  `json:"shares"`
	Price  *float64 `json:"price"`
	Value  *float64 `json:"value"`
}

// Breakdown maps symbol (and the cash key) to its valuation line.
type Breakdown map[string]Line

// Value prices a snapshot on a date. Cash contributes directly; every other
// symbol with a strictly positive quantity is resolved, and missing prices
// degrade to an unvaluable row instead of failing the batch.
func Value(ctx context.Context, ps PriceSource, date string, snapshot ledger.Snapshot) (float64, Breakdown) {
	cash := snapshot.Cash()
	breakdown := Breakdown{
		ledger.CashKey: {Shares: 1, Price: f(cash), Value: f(cash)},
	}

	var symbols []string
	for sym, qty := range snapshot {
		if sym == ledger.CashKey || qty <= 0 {
			continue
		}
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	total := cash
	if len(symbols) == 0 {
		return total, breakdown
	}

	priceMap, err := ps.Resolve(ctx, date, symbols)
	if err != nil {
		observ.Log("valuation_prices_failed", map[string]any{
			"date":  date,
			"error": err.Error(),
		})
		priceMap = map[string]float64{}
	}

	for _, sym := range symbols {
		shares := snapshot[sym]
		price, ok := priceMap[sym]
		if !ok {
			breakdown[sym] = Line{Shares: shares}
			continue
		}
		value := shares * price
		total += value
		breakdown[sym] = Line{Shares: shares, Price: f(price), Value: f(value)}
	}
	return total, breakdown
}

func f(v float64) *float64 { return &v }
