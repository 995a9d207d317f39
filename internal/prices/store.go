package prices

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/PaesslerAG/jsonpath"
)

// Bar field names in the historical snapshot store.
const (
	FieldBuyPrice  = "1. buy price"
	FieldSellPrice = "4. sell price"
)

// Store reads the historical price snapshot file: newline-delimited JSON,
// one document per symbol, shaped like
//
//	{"Meta Data": {"2. Symbol": "AAPL"}, "Time Series (60min)": {"2025-10-16 09:00:00": {...bar...}}}
//
// The file is re-read on every call; resolutions are independent and the
// store holds no state beyond its path.
type Store struct {
	path string
}

// NewStore points at a snapshot file. No I/O happens until a lookup.
func NewStore(path string) *Store {
	return &Store{path: path}
}

const symbolPath = `$["Meta Data"]["2. Symbol"]`

// forEachDoc streams symbol documents to fn until fn returns false.
// Malformed lines and documents without recognizable metadata are skipped.
func (s *Store) forEachDoc(fn func(symbol string, series map[string]any) bool) error {
	f, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("price store: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1<<20), 1<<24)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var doc any
		if err := json.Unmarshal(line, &doc); err != nil {
			continue
		}
		jsym, err := jsonpath.Get(symbolPath, doc)
		if err != nil {
			continue
		}
		sym, ok := jsym.(string)
		if !ok || sym == "" {
			continue
		}
		series := timeSeries(doc)
		if series == nil {
			continue
		}
		if !fn(sym, series) {
			return scanner.Err()
		}
	}
	return scanner.Err()
}

// timeSeries finds the first top-level key starting with "Time Series".
func timeSeries(doc any) map[string]any {
	m, ok := doc.(map[string]any)
	if !ok {
		return nil
	}
	for key, value := range m {
		if strings.HasPrefix(key, "Time Series") {
			if series, ok := value.(map[string]any); ok {
				return series
			}
			return nil
		}
	}
	return nil
}

// FieldPrices extracts one bar field for each wanted symbol on a date. The
// date matches an exact series key first; failing that, the chronologically
// earliest intraday key under the same calendar date. Symbols without a
// usable value are absent from the result.
func (s *Store) FieldPrices(date string, symbols []string, field string) (map[string]float64, error) {
	wanted := make(map[string]bool, len(symbols))
	for _, sym := range symbols {
		wanted[sym] = true
	}
	out := make(map[string]float64, len(symbols))
	err := s.forEachDoc(func(sym string, series map[string]any) bool {
		if !wanted[sym] {
			return true
		}
		bar := lookupBar(series, date)
		if bar == nil {
			return true
		}
		if v, ok := toFloat(bar[field]); ok {
			out[sym] = v
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// lookupBar does the exact-then-earliest-intraday match.
func lookupBar(series map[string]any, date string) map[string]any {
	if bar, ok := series[date].(map[string]any); ok {
		return bar
	}
	var keys []string
	for k := range series {
		if strings.HasPrefix(k, date) {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return nil
	}
	sort.Strings(keys)
	bar, _ := series[keys[0]].(map[string]any)
	return bar
}

// Timestamps returns the union of all series keys across the store.
func (s *Store) Timestamps() ([]string, error) {
	seen := make(map[string]struct{})
	err := s.forEachDoc(func(_ string, series map[string]any) bool {
		for k := range series {
			seen[k] = struct{}{}
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}

// toFloat accepts the store's mixed encodings: JSON numbers and the
// AlphaVantage-style quoted decimals.
func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case string:
		f, err := strconv.ParseFloat(x, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
