package strategy

import (
	"log/slog"
	"math"

	"tradingengine/pkg/types"
)

// MACrossover emits on a fast/slow simple-moving-average sign flip, once the
// gap between the two clears a minimum edge.
type MACrossover struct {
	cfg    Config
	logger *slog.Logger

	fast map[string]*window
	slow map[string]*window
	prev map[string]float64 // previous sign of (fast - slow); absent = not yet established, 0 = fast and slow were equal
}

// NewMACrossover constructs a MACrossover strategy.
func NewMACrossover(cfg Config, logger *slog.Logger) *MACrossover {
	cfg = cfg.withDefaults()
	return &MACrossover{
		cfg:    cfg,
		logger: newLogger(logger, types.MACrossover),
		fast:   make(map[string]*window),
		slow:   make(map[string]*window),
		prev:   make(map[string]float64),
	}
}

func (s *MACrossover) Kind() types.StrategyKind { return types.MACrossover }

func (s *MACrossover) OnTick(tick types.MdTick) (*types.Signal, bool) {
	fw, ok := s.fast[tick.Symbol]
	if !ok {
		fw = newWindow(s.cfg.FastWindow)
		s.fast[tick.Symbol] = fw
	}
	sw, ok := s.slow[tick.Symbol]
	if !ok {
		sw = newWindow(s.cfg.SlowWindow)
		s.slow[tick.Symbol] = sw
	}

	mid := tick.Mid()
	fw.push(mid)
	sw.push(mid)

	if !fw.isFull() || !sw.isFull() {
		return nil, false
	}

	fastMA := fw.mean()
	slowMA := sw.mean()
	diff := fastMA - slowMA
	sign := math.Copysign(1, diff)
	if diff == 0 {
		sign = 0
	}

	prevSign, established := s.prev[tick.Symbol]
	s.prev[tick.Symbol] = sign

	if !established || sign == 0 || sign == prevSign {
		return nil, false
	}

	minEdge := s.cfg.EdgeBps * slowMA / 10000
	if math.Abs(diff) < minEdge {
		return nil, false
	}

	if sign > 0 {
		return newSignal(types.MACrossover, tick.Symbol, types.Buy, tick.AskPx, 0.5, tick.TsMs, "MA_CROSS_UP"), true
	}
	return newSignal(types.MACrossover, tick.Symbol, types.Sell, tick.BidPx, 0.5, tick.TsMs, "MA_CROSS_DOWN"), true
}
