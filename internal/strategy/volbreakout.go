package strategy

import (
	"log/slog"

	"tradingengine/pkg/types"
)

// VolBreakout emits when price clears the recent rolling high or low by more
// than a minimum edge, on the theory that a fresh extreme marks the start of
// a directional move.
type VolBreakout struct {
	cfg    Config
	logger *slog.Logger

	windows map[string]*window
}

// NewVolBreakout constructs a VolBreakout strategy.
func NewVolBreakout(cfg Config, logger *slog.Logger) *VolBreakout {
	cfg = cfg.withDefaults()
	return &VolBreakout{
		cfg:     cfg,
		logger:  newLogger(logger, types.VolBreakout),
		windows: make(map[string]*window),
	}
}

func (s *VolBreakout) Kind() types.StrategyKind { return types.VolBreakout }

func (s *VolBreakout) OnTick(tick types.MdTick) (*types.Signal, bool) {
	w, ok := s.windows[tick.Symbol]
	if !ok {
		w = newWindow(s.cfg.BreakoutWindow)
		s.windows[tick.Symbol] = w
	}

	hh, ll := w.minMax()
	full := w.isFull()
	w.push(tick.Mid())

	if !full {
		return nil, false
	}

	buyEdge := hh + s.cfg.EdgeBps*hh/10000
	sellEdge := ll - s.cfg.EdgeBps*ll/10000
	minEdge := s.cfg.TickSize

	buyDist := tick.AskPx - buyEdge
	sellDist := sellEdge - tick.BidPx

	buyTriggers := buyDist > 0 && (tick.AskPx-hh) > minEdge
	sellTriggers := sellDist > 0 && (ll-tick.BidPx) > minEdge

	switch {
	case buyTriggers && sellTriggers:
		if buyDist >= sellDist {
			return newSignal(types.VolBreakout, tick.Symbol, types.Buy, tick.AskPx, clamp01(buyDist/hh), tick.TsMs, "VOL_BREAKOUT_HIGH"), true
		}
		return newSignal(types.VolBreakout, tick.Symbol, types.Sell, tick.BidPx, clamp01(sellDist/ll), tick.TsMs, "VOL_BREAKOUT_LOW"), true
	case buyTriggers:
		return newSignal(types.VolBreakout, tick.Symbol, types.Buy, tick.AskPx, clamp01(buyDist/hh), tick.TsMs, "VOL_BREAKOUT_HIGH"), true
	case sellTriggers:
		return newSignal(types.VolBreakout, tick.Symbol, types.Sell, tick.BidPx, clamp01(sellDist/ll), tick.TsMs, "VOL_BREAKOUT_LOW"), true
	}
	return nil, false
}
