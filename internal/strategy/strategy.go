// Package strategy turns MdTicks into trading Signals. Three stateful
// algorithms, each keeping per-symbol state, share one rolling-window primitive and one
// worker-pool dispatch shape, modeled on the reference program's
// per-market quoting goroutine: a ticker/channel-select loop built by a
// constructor that takes config and a logger.
package strategy

import (
	"log/slog"

	"github.com/google/uuid"

	"tradingengine/pkg/types"
)

// Strategy turns one MdTick into at most one Signal.
type Strategy interface {
	Kind() types.StrategyKind
	OnTick(tick types.MdTick) (*types.Signal, bool)
}

// Config carries the tunables shared across strategy kinds; each
// implementation only reads the fields it needs.
type Config struct {
	EdgeBps float64 // default 10

	MeanReversionWindow int     // N_MR, default 64
	MeanReversionKSigma float64 // default 1.5

	FastWindow int // N_F, default 9
	SlowWindow int // N_S, default 30

	BreakoutWindow   int     // N_VB, default 60
	TickSize         float64 // minimum price increment, for the 1-tick edge floor

	Cooldown       int64 // ms, default 250
}

func (c Config) withDefaults() Config {
	if c.EdgeBps <= 0 {
		c.EdgeBps = 10
	}
	if c.MeanReversionWindow <= 0 {
		c.MeanReversionWindow = 64
	}
	if c.MeanReversionKSigma <= 0 {
		c.MeanReversionKSigma = 1.5
	}
	if c.FastWindow <= 0 {
		c.FastWindow = 9
	}
	if c.SlowWindow <= 0 {
		c.SlowWindow = 30
	}
	if c.BreakoutWindow <= 0 {
		c.BreakoutWindow = 60
	}
	if c.TickSize <= 0 {
		c.TickSize = 0.01
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 250
	}
	return c
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func newSignal(kind types.StrategyKind, symbol string, side types.Side, refPx, urgency float64, ts int64, reason string) *types.Signal {
	return &types.Signal{
		ID:           uuid.NewString(),
		StrategyKind: kind,
		Symbol:       symbol,
		Side:         side,
		RefPx:        refPx,
		Urgency:      clamp01(urgency),
		TsMs:         ts,
		ReasonCode:   reason,
	}
}

// newLogger namespaces a logger for a strategy kind, for consistency across
// the three implementations.
func newLogger(base *slog.Logger, kind types.StrategyKind) *slog.Logger {
	return base.With("component", "strategy", "kind", kind)
}
