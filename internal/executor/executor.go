// Package executor validates and applies buy/sell intents against the
// position ledger. The whole read-validate-append sequence for one identity
// runs under that identity's exclusive file lock, so two concurrent orders
// can never both spend the same cash.
package executor

import (
	"context"
	"errors"
	"fmt"

	"github.com/openquant/trading-agent/internal/ledger"
	"github.com/openquant/trading-agent/internal/observ"
	"github.com/openquant/trading-agent/internal/prices"
)

// PriceSource is the slice of the price resolver the executor needs.
type PriceSource interface {
	Resolve(ctx context.Context, date string, symbols []string) (map[string]float64, error)
}

// Executor applies trades for one agent identity.
type Executor struct {
	ledger *ledger.Ledger
	prices PriceSource
	marker Marker
}

// New builds an executor. marker may be nil for no side-channel flag.
func New(l *ledger.Ledger, p PriceSource, marker Marker) *Executor {
	if marker == nil {
		marker = NopMarker{}
	}
	return &Executor{ledger: l, prices: p, marker: marker}
}

// Buy purchases amount shares of symbol at the date's resolved price.
// On success the new snapshot is returned and a ledger entry appended; on
// any validation failure a *TradeError is returned and the ledger is
// untouched.
func (x *Executor) Buy(ctx context.Context, date, symbol string, amount int) (ledger.Snapshot, error) {
	return x.execute(ctx, date, symbol, amount, ledger.ActionBuy)
}

// Sell is the counterpart of Buy; it rejects sales of shares not held.
func (x *Executor) Sell(ctx context.Context, date, symbol string, amount int) (ledger.Snapshot, error) {
	return x.execute(ctx, date, symbol, amount, ledger.ActionSell)
}

func (x *Executor) execute(ctx context.Context, date, symbol string, amount int, kind string) (ledger.Snapshot, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%s %s: amount must be a positive integer, got %d", kind, symbol, amount)
	}

	var result ledger.Snapshot
	err := x.ledger.Update(func(tx *ledger.Txn) error {
		snap, id, err := tx.LatestAsOf(date)
		if err != nil {
			return &TradeError{Kind: KindLedgerUnavailable, Symbol: symbol, Date: date, Cause: err}
		}

		priceMap, err := x.prices.Resolve(ctx, date, []string{symbol})
		if err != nil {
			if errors.Is(err, prices.ErrSourceUnavailable) {
				return &TradeError{Kind: KindPriceSource, Symbol: symbol, Date: date, Cause: err}
			}
			return err
		}
		price, ok := priceMap[symbol]
		if !ok {
			return newSymbolNotFound(symbol, date)
		}

		next := snap.Clone()
		switch kind {
		case ledger.ActionBuy:
			cost := price * float64(amount)
			cash := snap.Cash()
			if cash-cost < 0 {
				return newInsufficientCash(symbol, date, cost, cash)
			}
			next[ledger.CashKey] = cash - cost
			next[symbol] += float64(amount)
		case ledger.ActionSell:
			have := snap.Shares(symbol)
			if have < amount {
				return newInsufficientShares(symbol, date, have, amount)
			}
			next[symbol] -= float64(amount)
			next[ledger.CashKey] = snap.Cash() + price*float64(amount)
		}

		entry := ledger.Entry{
			Date:      date,
			ID:        id + 1,
			Action:    ledger.Action{Kind: kind, Symbol: symbol, Amount: amount},
			Positions: next,
		}
		if err := tx.Append(entry); err != nil {
			return &TradeError{Kind: KindLedgerUnavailable, Symbol: symbol, Date: date, Cause: err}
		}
		result = next

		observ.Log("trade_recorded", map[string]any{
			"identity": x.ledger.Identity(),
			"date":     date,
			"id":       entry.ID,
			"action":   kind,
			"symbol":   symbol,
			"amount":   amount,
			"price":    price,
			"cash":     next.Cash(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := x.marker.MarkTraded(); err != nil {
		// The trade is durable; a failed flag write only degrades the
		// orchestration loop's view of the session.
		observ.Log("trade_marker_failed", map[string]any{"error": err.Error()})
	}
	return result, nil
}
