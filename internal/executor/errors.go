package executor

import (
	"errors"
	"fmt"
)

// Trade failure kinds.
const (
	KindSymbolNotFound     = "symbol_not_found"
	KindInsufficientCash   = "insufficient_cash"
	KindInsufficientShares = "insufficient_shares"
	KindLedgerUnavailable  = "ledger_unavailable"
	KindPriceSource        = "price_source_unavailable"
)

// TradeError is the structured rejection returned for any failed trade.
// Nothing is written to the ledger when one of these is returned.
type TradeError struct {
	Kind   string
	Symbol string
	Date   string

	// Populated for insufficient-cash failures.
	RequiredCash  float64
	AvailableCash float64

	// Populated for insufficient-shares failures.
	Have int
	Want int

	Cause error
}

func (e *TradeError) Error() string {
	switch e.Kind {
	case KindSymbolNotFound:
		return fmt.Sprintf("symbol %s not found on %s: no resolvable price", e.Symbol, e.Date)
	case KindInsufficientCash:
		return fmt.Sprintf("insufficient cash for %s on %s: required %.2f, available %.2f",
			e.Symbol, e.Date, e.RequiredCash, e.AvailableCash)
	case KindInsufficientShares:
		return fmt.Sprintf("insufficient shares of %s on %s: have %d, want %d",
			e.Symbol, e.Date, e.Have, e.Want)
	case KindPriceSource:
		return fmt.Sprintf("price source unavailable for %s on %s: %v", e.Symbol, e.Date, e.Cause)
	case KindLedgerUnavailable:
		return fmt.Sprintf("ledger unavailable for trade %s on %s: %v", e.Symbol, e.Date, e.Cause)
	default:
		return fmt.Sprintf("trade rejected (%s) for %s on %s", e.Kind, e.Symbol, e.Date)
	}
}

func (e *TradeError) Unwrap() error { return e.Cause }

func newSymbolNotFound(symbol, date string) *TradeError {
	return &TradeError{Kind: KindSymbolNotFound, Symbol: symbol, Date: date}
}

func newInsufficientCash(symbol, date string, required, available float64) *TradeError {
	return &TradeError{
		Kind: KindInsufficientCash, Symbol: symbol, Date: date,
		RequiredCash: required, AvailableCash: available,
	}
}

func newInsufficientShares(symbol, date string, have, want int) *TradeError {
	return &TradeError{Kind: KindInsufficientShares, Symbol: symbol, Date: date, Have: have, Want: want}
}

// KindOf returns the failure kind of an error, or "" when it is not a
// TradeError.
func KindOf(err error) string {
	var te *TradeError
	if errors.As(err, &te) {
		return te.Kind
	}
	return ""
}
