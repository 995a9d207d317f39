package strategy

import (
	"fmt"
	"math"
	"sort"

	"github.com/openquant/trading-agent/internal/config"
	"github.com/openquant/trading-agent/internal/ledger"
)

// rebalance targets an equal-weight portfolio over the first MaxPositions
// configured symbols that have a resolvable price. Held symbols outside the
// target set are liquidated; inside it, whole-share orders close the gap to
// the per-symbol target. Symbols without a price that day are left alone.
type rebalance struct {
	symbols []string
	maxPos  int
}

func newRebalance(cfg config.Strategy) (Strategy, error) {
	if len(cfg.Symbols) == 0 {
		return nil, fmt.Errorf("rebalance strategy needs a symbols list")
	}
	return &rebalance{symbols: cfg.Symbols, maxPos: cfg.MaxPositions}, nil
}

func (r *rebalance) Name() string { return "rebalance" }

func (r *rebalance) Decide(date string, snap ledger.Snapshot, prices map[string]float64) []Intent {
	// Target set: first maxPos configured symbols with a price today.
	var chosen []string
	inTarget := make(map[string]bool)
	for _, sym := range r.symbols {
		if len(chosen) >= r.maxPos {
			break
		}
		if _, ok := prices[sym]; !ok {
			continue
		}
		chosen = append(chosen, sym)
		inTarget[sym] = true
	}
	if len(chosen) == 0 {
		return nil
	}

	// Investable value: cash plus everything we can price.
	total := snap.Cash()
	for sym, qty := range snap {
		if sym == ledger.CashKey || qty <= 0 {
			continue
		}
		if p, ok := prices[sym]; ok {
			total += qty * p
		}
	}
	target := total / float64(len(chosen))

	var sells, buys []Intent
	cash := snap.Cash()

	// Liquidate priced holdings outside the target set, in stable order.
	heldSyms := make([]string, 0, len(snap))
	for sym := range snap {
		heldSyms = append(heldSyms, sym)
	}
	sort.Strings(heldSyms)
	for _, sym := range heldSyms {
		qty := snap[sym]
		if sym == ledger.CashKey || qty <= 0 || inTarget[sym] {
			continue
		}
		p, ok := prices[sym]
		if !ok {
			continue
		}
		shares := int(qty)
		sells = append(sells, Intent{Side: SideSell, Symbol: sym, Amount: shares})
		cash += float64(shares) * p
	}

	// Close the gap toward target for each chosen symbol. Sells first so
	// the buy pass sees the freed cash.
	for _, sym := range chosen {
		p := prices[sym]
		held := snap[sym] * p
		if held > target && held-target >= p {
			n := int(math.Floor((held - target) / p))
			if n > snap.Shares(sym) {
				n = snap.Shares(sym)
			}
			if n > 0 {
				sells = append(sells, Intent{Side: SideSell, Symbol: sym, Amount: n})
				cash += float64(n) * p
			}
		}
	}
	for _, sym := range chosen {
		p := prices[sym]
		held := snap[sym] * p
		if target > held && target-held >= p {
			n := int(math.Floor((target - held) / p))
			if cost := float64(n) * p; cost > cash {
				n = int(math.Floor(cash / p))
			}
			if n > 0 {
				buys = append(buys, Intent{Side: SideBuy, Symbol: sym, Amount: n})
				cash -= float64(n) * p
			}
		}
	}

	return append(sells, buys...)
}
