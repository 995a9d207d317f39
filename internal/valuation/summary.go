package valuation

import (
	"fmt"
	"sort"
	"strings"

	"github.com/openquant/trading-agent/internal/ledger"
)

// PnL returns profit and loss in dollars and percent of the initial value.
func PnL(initial, final float64) (dollars, percent float64) {
	dollars = final - initial
	if initial != 0 {
		percent = dollars / initial * 100
	}
	return dollars, percent
}

// FormatSummary renders a human-readable portfolio summary. initial, when
// non-nil, adds a P&L footer. Presentation only; the numbers come straight
// from Value.
func FormatSummary(date string, total float64, breakdown Breakdown, initial *float64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "\nPortfolio Summary for %s\n", date)
	b.WriteString(strings.Repeat("=", 60))
	b.WriteString("\n\nHoldings:\n")

	var symbols []string
	for sym := range breakdown {
		if sym != ledger.CashKey {
			symbols = append(symbols, sym)
		}
	}
	sort.Strings(symbols)
	if _, ok := breakdown[ledger.CashKey]; ok {
		symbols = append([]string{ledger.CashKey}, symbols...)
	}

	for _, sym := range symbols {
		line := breakdown[sym]
		switch {
		case sym == ledger.CashKey:
			fmt.Fprintf(&b, "  CASH: $%s\n", comma(deref(line.Value)))
		case line.Price != nil:
			fmt.Fprintf(&b, "  %-6s: %5.0f shares x $%8.2f = $%10s\n",
				sym, line.Shares, *line.Price, comma(deref(line.Value)))
		default:
			fmt.Fprintf(&b, "  %-6s: %5.0f shares x [NO PRICE] = [UNKNOWN]\n", sym, line.Shares)
		}
	}

	fmt.Fprintf(&b, "\nTotal Portfolio Value: $%s\n", comma(total))
	if initial != nil {
		dollars, percent := PnL(*initial, total)
		ds := comma(dollars)
		if dollars >= 0 {
			ds = "+" + ds
		}
		fmt.Fprintf(&b, "P&L: $%s (%+.2f%%)\n", ds, percent)
	}
	b.WriteString(strings.Repeat("=", 60))
	return b.String()
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

// comma formats a dollar amount with thousands separators and two decimals.
func comma(v float64) string {
	s := fmt.Sprintf("%.2f", v)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	dot := strings.IndexByte(s, '.')
	whole, frac := s[:dot], s[dot:]
	var parts []string
	for len(whole) > 3 {
		parts = append([]string{whole[len(whole)-3:]}, parts...)
		whole = whole[:len(whole)-3]
	}
	parts = append([]string{whole}, parts...)
	out := strings.Join(parts, ",") + frac
	if neg {
		out = "-" + out
	}
	return out
}
