// Package strategy holds the closed set of trading strategies the session
// runner can drive. Strategies are selected by name from a static registry;
// adding one means adding a constructor here, not configuration magic.
package strategy

import (
	"fmt"
	"sort"

	"github.com/openquant/trading-agent/internal/config"
	"github.com/openquant/trading-agent/internal/ledger"
)

// Side of a trade intent.
const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// Intent is a single proposed trade. The executor revalidates it; an intent
// is a wish, not a fill.
type Intent struct {
	Side   string
	Symbol string
	Amount int
}

// Strategy turns the current snapshot and resolved prices into intents.
type Strategy interface {
	Name() string
	Decide(date string, snap ledger.Snapshot, prices map[string]float64) []Intent
}

var registry = map[string]func(config.Strategy) (Strategy, error){
	"hold":      newHold,
	"rebalance": newRebalance,
}

// New constructs the named strategy. Unknown names list the valid set.
func New(cfg config.Strategy) (Strategy, error) {
	ctor, ok := registry[cfg.Name]
	if !ok {
		names := make([]string, 0, len(registry))
		for n := range registry {
			names = append(names, n)
		}
		sort.Strings(names)
		return nil, fmt.Errorf("unknown strategy %q, valid: %v", cfg.Name, names)
	}
	return ctor(cfg)
}
