package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Strategy selects one of the registered trading strategies and carries its
// tuning knobs. The set of valid names is closed; see internal/strategy.
type Strategy struct {
	Name         string   `yaml:"name"`          // "hold" | "rebalance"
	Symbols      []string `yaml:"symbols"`       // tradable universe
	MaxPositions int      `yaml:"max_positions"` // cap on distinct holdings
}

// Gateway configures the live quote gateway connection.
type Gateway struct {
	URL                string `yaml:"url"`
	SettleMs           int    `yaml:"settle_ms"` // wait after subscribe before reading ticks
	RateLimitPerMinute int    `yaml:"rate_limit_per_minute"`
	DialTimeoutSeconds int    `yaml:"dial_timeout_seconds"`
}

type Root struct {
	Signature      string   `yaml:"signature"`    // agent identity, keys the ledger directory
	TodayDate      string   `yaml:"today_date"`   // active trading date (or date-time)
	PriceSource    string   `yaml:"price_source"` // "local" | "live"
	DataDir        string   `yaml:"data_dir"`
	MergedPath     string   `yaml:"merged_path"` // historical price snapshot store
	InitialCashUSD float64  `yaml:"initial_cash_usd"`
	Strategy       Strategy `yaml:"strategy"`
	Gateway        Gateway  `yaml:"gateway"`
}

// Load reads a yaml config file, fills defaults and applies environment
// overrides (SIGNATURE, TODAY_DATE, PRICE_SOURCE).
func Load(path string) (Root, error) {
	var c Root
	b, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return c, err
	}
	applyEnv(&c)
	applyDefaults(&c)
	if c.Signature == "" {
		return c, fmt.Errorf("config: signature is required (yaml or SIGNATURE env)")
	}
	return c, nil
}

func applyEnv(c *Root) {
	if v := os.Getenv("SIGNATURE"); v != "" {
		c.Signature = v
	}
	if v := os.Getenv("TODAY_DATE"); v != "" {
		c.TodayDate = v
	}
	if v := os.Getenv("PRICE_SOURCE"); v != "" {
		c.PriceSource = strings.ToLower(strings.TrimSpace(v))
	}
}

func applyDefaults(c *Root) {
	if c.PriceSource == "" {
		c.PriceSource = "local"
	}
	c.PriceSource = strings.ToLower(strings.TrimSpace(c.PriceSource))
	if c.DataDir == "" {
		c.DataDir = "data/agent_data"
	}
	if c.MergedPath == "" {
		c.MergedPath = "data/merged.jsonl"
	}
	if c.InitialCashUSD == 0 {
		c.InitialCashUSD = 10000
	}
	if c.Strategy.Name == "" {
		c.Strategy.Name = "hold"
	}
	if c.Strategy.MaxPositions == 0 {
		c.Strategy.MaxPositions = 10
	}
	if c.Gateway.SettleMs == 0 {
		c.Gateway.SettleMs = 1500
	}
	if c.Gateway.RateLimitPerMinute == 0 {
		c.Gateway.RateLimitPerMinute = 30
	}
	if c.Gateway.DialTimeoutSeconds == 0 {
		c.Gateway.DialTimeoutSeconds = 5
	}
}
