package strategy

import (
	"context"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"tradingengine/internal/bus"
	"tradingengine/internal/clock"
	"tradingengine/internal/metrics"
	"tradingengine/pkg/types"
)

// cooldownState tracks the last-emission time for one (kind, symbol) pair;
// the flow-driven widening factor is looked up per tick, not stored here.
type cooldownState struct {
	mu       sync.Mutex
	lastEmit int64 // ms
	emitted  bool  // false until the first emission, which no cooldown blocks
}

// Dispatcher runs one worker per index bucket, hashing symbol -> worker index
// so each symbol's ticks are handled by exactly one goroutine. Each worker
// gets its own independent set of strategy instances (built from the
// caller's factory), since the strategies keep unguarded per-symbol state and
// a shared instance across workers would be a concurrent map write waiting
// to happen. Modeled on the reference program's per-market quoting goroutine,
// generalized from one-goroutine-per-market to one-goroutine-per-index.
type Dispatcher struct {
	workers int
	clock   clock.Clock
	m       *metrics.Metrics
	logger  *slog.Logger

	cooldownMs int64
	cooldowns  sync.Map // (kind,symbol) -> *cooldownState

	flowMu sync.Mutex
	flow   map[string]*FlowTracker // per-symbol, shared across strategy kinds

	sigBus *bus.Blocking[types.Signal]

	// OnTick, if set, is called once per tick seen by a worker before the
	// strategy runs — used by the engine to mark positions and feed the
	// recorder without a second subscriber per symbol.
	OnTick func(types.MdTick)
}

// NewDispatcher constructs a Dispatcher with workers goroutines in total, each
// running every strategy kind, fanning emitted Signals into sigBus.
func NewDispatcher(workers int, cooldownMs int64, c clock.Clock, m *metrics.Metrics, logger *slog.Logger, sigBus *bus.Blocking[types.Signal]) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	if cooldownMs <= 0 {
		cooldownMs = 250
	}
	return &Dispatcher{
		workers:    workers,
		clock:      c,
		m:          m,
		logger:     logger,
		cooldownMs: cooldownMs,
		flow:       make(map[string]*FlowTracker),
		sigBus:     sigBus,
	}
}

func workerIndex(symbol string, workers int) int {
	h := fnv.New32a()
	h.Write([]byte(symbol))
	return int(h.Sum32()) % workers
}

// ObserveFill feeds a fill (partial or full) back into the symbol's flow tracker, used
// to widen the cooldown under toxic flow (§4.2.4).
func (d *Dispatcher) ObserveFill(symbol string, side types.Side, ts time.Time) {
	d.flowMu.Lock()
	ft, ok := d.flow[symbol]
	if !ok {
		ft = NewFlowTracker(60*time.Second, 0.75, 5*time.Second, 3.0)
		d.flow[symbol] = ft
	}
	d.flowMu.Unlock()
	ft.Observe(side, ts)
}

func (d *Dispatcher) cooldownMultiplier(symbol string) float64 {
	d.flowMu.Lock()
	ft, ok := d.flow[symbol]
	d.flowMu.Unlock()
	if !ok {
		return 1.0
	}
	return ft.CooldownMultiplier(time.Now())
}

// Run starts one worker goroutine per index bucket, each owning the symbols
// hashed to it and running its own strategy instances (from newStrategies)
// against each tick it sees. A symbol's MdBus channel has exactly one
// consumer (this worker), so every strategy kind observes every tick for its
// owned symbols in order; fanning a worker per (kind, index) instead would
// have each kind compete for the same single-reader channel. newStrategies is
// called once per worker so no strategy instance, and none of its per-symbol
// state, is ever touched by more than one goroutine. Blocks until ctx is
// cancelled.
func (d *Dispatcher) Run(ctx context.Context, mdBus *bus.MdBus, newStrategies func() []Strategy, symbols []string) {
	bySymbol := make(map[string][]string, d.workers)
	for _, sym := range symbols {
		idx := workerIndex(sym, d.workers)
		key := symbolsKey(idx)
		bySymbol[key] = append(bySymbol[key], sym)
	}

	var wg sync.WaitGroup
	for idx := 0; idx < d.workers; idx++ {
		syms := bySymbol[symbolsKey(idx)]
		if len(syms) == 0 {
			continue
		}
		wg.Add(1)
		go func(syms []string) {
			defer wg.Done()
			d.runWorker(ctx, mdBus, newStrategies(), syms)
		}(syms)
	}
	wg.Wait()
}

func symbolsKey(idx int) string {
	return string(rune('a' + idx))
}

func (d *Dispatcher) runWorker(ctx context.Context, mdBus *bus.MdBus, strategies []Strategy, symbols []string) {
	subs := make([]<-chan types.MdTick, len(symbols))
	for i, sym := range symbols {
		subs[i] = mdBus.Subscribe(sym)
	}

	cases := make(chan types.MdTick, 256)
	for _, sub := range subs {
		go func(ch <-chan types.MdTick) {
			for {
				select {
				case <-ctx.Done():
					return
				case tick, ok := <-ch:
					if !ok {
						return
					}
					select {
					case cases <- tick:
					case <-ctx.Done():
						return
					}
				}
			}
		}(sub)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case tick := <-cases:
			if d.OnTick != nil {
				d.OnTick(tick)
			}
			for _, strat := range strategies {
				d.handleTick(ctx, strat, tick)
			}
		}
	}
}

func (d *Dispatcher) handleTick(ctx context.Context, strat Strategy, tick types.MdTick) {
	sig, ok := strat.OnTick(tick)
	if !ok || sig == nil {
		return
	}

	key := string(strat.Kind()) + "|" + tick.Symbol
	stateAny, _ := d.cooldowns.LoadOrStore(key, &cooldownState{})
	state := stateAny.(*cooldownState)

	state.mu.Lock()
	now := d.clock.NowMs()
	effectiveCooldown := int64(float64(d.cooldownMs) * d.cooldownMultiplier(tick.Symbol))
	if state.emitted && now-state.lastEmit < effectiveCooldown {
		state.mu.Unlock()
		return
	}
	state.emitted = true
	state.lastEmit = now
	state.mu.Unlock()

	if d.m != nil {
		d.m.Signal(string(strat.Kind()), tick.Symbol)
	}
	d.sigBus.Send(ctx, *sig)
}
