package strategy

import (
	"github.com/openquant/trading-agent/internal/config"
	"github.com/openquant/trading-agent/internal/ledger"
)

// hold never trades; the session runner records a no_trade carry-forward.
type hold struct{}

func newHold(config.Strategy) (Strategy, error) { return hold{}, nil }

func (hold) Name() string { return "hold" }

func (hold) Decide(string, ledger.Snapshot, map[string]float64) []Intent { return nil }
