package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/openquant/trading-agent/internal/broker"
	"github.com/openquant/trading-agent/internal/config"
	"github.com/openquant/trading-agent/internal/executor"
	"github.com/openquant/trading-agent/internal/ledger"
	"github.com/openquant/trading-agent/internal/observ"
	"github.com/openquant/trading-agent/internal/prices"
	"github.com/openquant/trading-agent/internal/strategy"
	"github.com/openquant/trading-agent/internal/valuation"
)

func main() {
	var (
		configPath = flag.String("config", "config.yaml", "path to yaml config")
		dateFlag   = flag.String("date", "", "override trading date (YYYY-MM-DD or with time)")
		identity   = flag.String("identity", "", "override agent identity")
	)
	flag.Parse()

	if err := run(*configPath, *dateFlag, *identity); err != nil {
		observ.Log("session_failed", map[string]any{"error": err.Error()})
		os.Exit(1)
	}
}

func run(configPath, dateOverride, identityOverride string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if dateOverride != "" {
		cfg.TodayDate = dateOverride
	}
	if identityOverride != "" {
		cfg.Signature = identityOverride
	}
	if cfg.TodayDate == "" {
		cfg.TodayDate = time.Now().UTC().Format("2006-01-02")
	}

	observ.SetRunID(ulid.Make().String())
	observ.Log("session_start", map[string]any{
		"identity":     cfg.Signature,
		"date":         cfg.TodayDate,
		"price_source": cfg.PriceSource,
		"strategy":     cfg.Strategy.Name,
	})

	store := prices.NewStore(cfg.MergedPath)
	var live prices.LiveQuoter
	if cfg.PriceSource == prices.SourceLive {
		gw := broker.New(broker.Config{
			URL:                cfg.Gateway.URL,
			Settle:             time.Duration(cfg.Gateway.SettleMs) * time.Millisecond,
			DialTimeout:        time.Duration(cfg.Gateway.DialTimeoutSeconds) * time.Second,
			RateLimitPerMinute: cfg.Gateway.RateLimitPerMinute,
		})
		defer gw.Close()
		// Unsolicited gateway chatter is logged, not fatal.
		gw.RegisterHandler("notice", func(payload json.RawMessage) {
			observ.Log("gateway_notice", map[string]any{"payload": string(payload)})
		})
		live = gw
	}
	resolver := prices.NewResolver(cfg.PriceSource, store, live)

	book := ledger.New(cfg.DataDir, cfg.Signature, resolver)
	marker := executor.FileMarker{
		Path: filepath.Join(cfg.DataDir, cfg.Signature, "runtime", "if_trade.json"),
	}
	if err := marker.Clear(); err != nil {
		return fmt.Errorf("clear trade marker: %w", err)
	}
	exec := executor.New(book, resolver, marker)

	strat, err := strategy.New(cfg.Strategy)
	if err != nil {
		return err
	}

	// Seed on the previous trading date so a first idle session's no_trade
	// carry-forward finds the opening cash there instead of an empty history.
	initDate, err := resolver.PrevTradingDate(cfg.TodayDate)
	if err != nil {
		return fmt.Errorf("resolve init date: %w", err)
	}
	if err := book.EnsureInit(initDate, cfg.InitialCashUSD); err != nil {
		return fmt.Errorf("seed ledger: %w", err)
	}

	ctx := context.Background()
	date := cfg.TodayDate

	snap, _, err := book.LatestAsOf(date)
	if err != nil {
		return err
	}
	universe := tradeUniverse(cfg.Strategy.Symbols, snap)
	priceMap, err := resolver.Resolve(ctx, date, universe)
	if err != nil {
		return err
	}

	traded := 0
	for _, intent := range strat.Decide(date, snap, priceMap) {
		var terr error
		switch intent.Side {
		case strategy.SideBuy:
			_, terr = exec.Buy(ctx, date, intent.Symbol, intent.Amount)
		case strategy.SideSell:
			_, terr = exec.Sell(ctx, date, intent.Symbol, intent.Amount)
		}
		if terr != nil {
			observ.Log("intent_rejected", map[string]any{
				"side":   intent.Side,
				"symbol": intent.Symbol,
				"amount": intent.Amount,
				"kind":   executor.KindOf(terr),
				"error":  terr.Error(),
			})
			continue
		}
		traded++
	}
	if traded == 0 {
		if err := book.RecordNoTrade(date); err != nil {
			return fmt.Errorf("record no_trade: %w", err)
		}
		observ.Log("no_trade_recorded", map[string]any{"date": date})
	}

	final, _, err := book.LatestAsOf(date)
	if err != nil {
		return err
	}
	total, breakdown := valuation.Value(ctx, resolver, date, final)
	initial := cfg.InitialCashUSD
	fmt.Println(valuation.FormatSummary(date, total, breakdown, &initial))
	observ.Log("session_done", map[string]any{
		"date":        date,
		"trades":      traded,
		"total_value": total,
	})
	return nil
}

// tradeUniverse is the configured symbol list plus anything currently held,
// so both strategy targets and liquidation candidates get priced.
func tradeUniverse(configured []string, snap ledger.Snapshot) []string {
	seen := make(map[string]bool, len(configured))
	var out []string
	for _, sym := range configured {
		if !seen[sym] {
			seen[sym] = true
			out = append(out, sym)
		}
	}
	for sym, qty := range snap {
		if sym == ledger.CashKey || qty <= 0 || seen[sym] {
			continue
		}
		seen[sym] = true
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}
