// Package config loads engine configuration from the process environment.
// No file, no viper — environment parsing is this program's own boundary to
// own, read with plain os.Getenv and defaulted/validated by hand, the same
// fail-fast-before-construction discipline the reference program's own
// Validate() step followed.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config is the fully-resolved process configuration.
type Config struct {
	FeedMode  string // mock | binance_sandbox | binance_mainnet
	VenueMode string

	Symbols    []string
	Strategies []string

	StrategyWorkers uint

	MaxNotional  float64
	PxMin, PxMax float64
	MaxQPS       uint

	MetricsPort uint
	RecordFile  string

	BinanceWSURL     string
	BinanceRESTURL   string
	BinanceAPIKey    string
	BinanceAPISecret string
	BinanceRecvWindowMs int

	LogLevel  string // debug|info|warn|error
	LogFormat string // json|text

	RouterWFill     float64
	RouterWLatency  float64
	RouterWReject   float64
	RouterStickiness float64

	MockSlipEnabled bool
	MockRejectPct   float64
}

var allowedStrategies = map[string]bool{
	"mean_reversion": true,
	"ma_crossover":   true,
	"vol_breakout":   true,
}

var allowedModes = map[string]bool{
	"mock":             true,
	"binance_sandbox":  true,
	"binance_mainnet":  true,
}

// Load reads Config from the environment, applying every default in the
// external-interfaces table and failing fast on a missing or malformed
// required key.
func Load() (*Config, error) {
	cfg := &Config{
		FeedMode:         getenvDefault("FEED_MODE", "mock"),
		VenueMode:        getenvDefault("VENUE_MODE", "mock"),
		Symbols:          splitCSVDefault("SYMBOLS", []string{"BTCUSDT"}),
		Strategies:       splitCSVDefault("STRATEGIES", []string{"mean_reversion", "ma_crossover", "vol_breakout"}),
		RecordFile:       os.Getenv("RECORD_FILE"),
		BinanceWSURL:     os.Getenv("BINANCE_WS_URL"),
		BinanceRESTURL:   os.Getenv("BINANCE_REST_URL"),
		BinanceAPIKey:    os.Getenv("BINANCE_API_KEY"),
		BinanceAPISecret: os.Getenv("BINANCE_API_SECRET"),
		LogLevel:         getenvDefault("LOG_LEVEL", "info"),
		LogFormat:        getenvDefault("LOG_FORMAT", "json"),
	}

	var err error
	if cfg.StrategyWorkers, err = getenvUintDefault("STRATEGY_WORKERS", 1); err != nil {
		return nil, err
	}
	if cfg.MaxQPS, err = getenvUintDefault("MAX_QPS", 10); err != nil {
		return nil, err
	}
	if cfg.MetricsPort, err = getenvUintDefault("METRICS_PORT", 9898); err != nil {
		return nil, err
	}
	if cfg.BinanceRecvWindowMs, err = getenvIntDefault("BINANCE_RECV_WINDOW", 5000); err != nil {
		return nil, err
	}

	if cfg.MaxNotional, err = getenvFloatRequired("MAX_NOTIONAL"); err != nil {
		return nil, err
	}
	if cfg.PxMin, err = getenvFloatRequired("PX_MIN"); err != nil {
		return nil, err
	}
	if cfg.PxMax, err = getenvFloatRequired("PX_MAX"); err != nil {
		return nil, err
	}

	if cfg.RouterWFill, err = getenvFloatDefault("ROUTER_W_FILL", 1.0); err != nil {
		return nil, err
	}
	if cfg.RouterWLatency, err = getenvFloatDefault("ROUTER_W_LATENCY", 1.0); err != nil {
		return nil, err
	}
	if cfg.RouterWReject, err = getenvFloatDefault("ROUTER_W_REJECT", 50.0); err != nil {
		return nil, err
	}
	if cfg.RouterStickiness, err = getenvFloatDefault("ROUTER_STICKINESS_DELTA", 0.5); err != nil {
		return nil, err
	}
	if cfg.MockRejectPct, err = getenvFloatDefault("MOCK_REJECT_PCT", 0); err != nil {
		return nil, err
	}
	cfg.MockSlipEnabled = getenvBoolDefault("MOCK_SLIP_ENABLED", false)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required fields and value ranges, matching the reference
// program's fail-fast Validate() convention.
func (c *Config) Validate() error {
	if !allowedModes[c.FeedMode] {
		return fmt.Errorf("FEED_MODE %q is not one of mock|binance_sandbox|binance_mainnet", c.FeedMode)
	}
	if !allowedModes[c.VenueMode] {
		return fmt.Errorf("VENUE_MODE %q is not one of mock|binance_sandbox|binance_mainnet", c.VenueMode)
	}
	if len(c.Symbols) == 0 {
		return fmt.Errorf("SYMBOLS must name at least one symbol")
	}
	for _, s := range c.Strategies {
		if !allowedStrategies[s] {
			return fmt.Errorf("STRATEGIES names unknown strategy %q", s)
		}
	}
	if c.MaxNotional <= 0 {
		return fmt.Errorf("MAX_NOTIONAL must be > 0")
	}
	if c.PxMin <= 0 || c.PxMax <= 0 || c.PxMin >= c.PxMax {
		return fmt.Errorf("PX_MIN/PX_MAX must satisfy 0 < PX_MIN < PX_MAX")
	}
	if c.FeedMode != "mock" && c.BinanceWSURL == "" {
		return fmt.Errorf("BINANCE_WS_URL is required when FEED_MODE is %q", c.FeedMode)
	}
	if c.VenueMode != "mock" && c.BinanceRESTURL == "" {
		return fmt.Errorf("BINANCE_REST_URL is required when VENUE_MODE is %q", c.VenueMode)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("LOG_LEVEL %q is not one of debug|info|warn|error", c.LogLevel)
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("LOG_FORMAT %q is not one of json|text", c.LogFormat)
	}
	return nil
}

func getenvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitCSVDefault(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getenvFloatRequired(key string) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid number %q: %w", key, v, err)
	}
	return f, nil
}

func getenvFloatDefault(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid number %q: %w", key, v, err)
	}
	return f, nil
}

func getenvUintDefault(key string, fallback uint) (uint, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid unsigned integer %q: %w", key, v, err)
	}
	return uint(n), nil
}

func getenvIntDefault(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, v, err)
	}
	return n, nil
}

func getenvBoolDefault(key string, fallback bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if v == "" {
		return fallback
	}
	return v == "1" || v == "true" || v == "yes"
}
