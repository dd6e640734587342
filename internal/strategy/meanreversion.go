package strategy

import (
	"log/slog"
	"math"

	"tradingengine/pkg/types"
)

// MeanReversion fades ticks that stray far from the recent rolling mean,
// on the theory that price reverts back toward it.
type MeanReversion struct {
	cfg    Config
	logger *slog.Logger

	windows map[string]*window // per-symbol rolling mid window
}

// NewMeanReversion constructs a MeanReversion strategy.
func NewMeanReversion(cfg Config, logger *slog.Logger) *MeanReversion {
	cfg = cfg.withDefaults()
	return &MeanReversion{
		cfg:     cfg,
		logger:  newLogger(logger, types.MeanReversion),
		windows: make(map[string]*window),
	}
}

func (s *MeanReversion) Kind() types.StrategyKind { return types.MeanReversion }

func (s *MeanReversion) OnTick(tick types.MdTick) (*types.Signal, bool) {
	w, ok := s.windows[tick.Symbol]
	if !ok {
		w = newWindow(s.cfg.MeanReversionWindow)
		s.windows[tick.Symbol] = w
	}
	w.push(tick.Mid())

	if !w.isFull() {
		return nil, false
	}

	mu := w.mean()
	sigma := w.stddev()
	edgePx := math.Max(s.cfg.EdgeBps*mu/10000, s.cfg.MeanReversionKSigma*sigma)
	if edgePx <= 0 {
		return nil, false
	}

	if tick.AskPx <= mu-edgePx {
		urgency := (mu - edgePx - tick.AskPx) / edgePx
		return newSignal(types.MeanReversion, tick.Symbol, types.Buy, tick.AskPx, urgency, tick.TsMs, "MEAN_REVERSION_LOW"), true
	}
	if tick.BidPx >= mu+edgePx {
		urgency := (tick.BidPx - (mu + edgePx)) / edgePx
		return newSignal(types.MeanReversion, tick.Symbol, types.Sell, tick.BidPx, urgency, tick.TsMs, "MEAN_REVERSION_HIGH"), true
	}
	return nil, false
}
