// Package engine is the central orchestrator of the trading engine.
//
// It wires together every subsystem along the pipeline:
//
//  1. Feed publishes normalized MdTicks onto the MdBus.
//  2. The strategy dispatcher runs every configured strategy against each
//     symbol's ticks and emits Signals onto the SigBus.
//  3. Risk checks each Signal and turns an accepted one into a sized Order
//     on the OrdBus.
//  4. Router picks a venue for each Order and hands it to that venue's
//     bounded queue.
//  5. One goroutine per venue drains its queue into a Gateway.
//  6. Every Gateway's ExecReports are merged onto the ExecBus, which feeds
//     Positions, the Recorder, the Router's venue-quality stats, and the
//     dispatcher's fill-flow feedback.
//
// Lifecycle: New() → Start() → [runs until Stop()] → Stop().
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"tradingengine/internal/bus"
	"tradingengine/internal/clock"
	"tradingengine/internal/config"
	"tradingengine/internal/feed"
	"tradingengine/internal/gateway"
	"tradingengine/internal/metrics"
	"tradingengine/internal/position"
	"tradingengine/internal/recorder"
	"tradingengine/internal/risk"
	"tradingengine/internal/router"
	"tradingengine/internal/strategy"
	"tradingengine/pkg/types"
)

const (
	mdBusCapacity    = 4096
	sigBusCapacity   = 1024
	ordBusCapacity   = 512
	venueBusCapacity = 256
	venueBusTimeout  = 50 * time.Millisecond
	execBusCapacity  = 1024
	recorderCapacity = 8192
)

// orderMeta is what the engine remembers about an order it has sent to a
// venue, so a later ExecReport (which carries only an order ID) can be
// turned into a position fill and a flow-tracker observation.
type orderMeta struct {
	symbol       string
	side         types.Side
	venue        string
	lastCumQty   float64
}

// Feed is the subset of feed.MockFeed/feed.ExchangeFeed the engine depends
// on, so either can be wired in without a type switch.
type Feed interface {
	Run(ctx context.Context, mdBus *bus.MdBus)
}

// Engine owns every component's lifecycle and the goroutines that connect
// them.
type Engine struct {
	cfg    *config.Config
	logger *slog.Logger
	clock  clock.Clock
	m      *metrics.Metrics

	mdBus     *bus.MdBus
	sigBus    *bus.Blocking[types.Signal]
	ordBus    *bus.Blocking[types.Order]
	venueBus  map[string]*bus.Venue[types.Order]
	execBus   *bus.Blocking[types.ExecReport]

	rec           *recorder.Recorder
	positions     *position.Book
	rt            *router.Router
	riskGate      *risk.Gate
	gateways      map[string]gateway.Gateway
	dispatcher    *strategy.Dispatcher
	newStrategies func() []strategy.Strategy
	feedImpl      Feed
	symbols       []string

	ordersMu sync.Mutex
	orders   map[string]*orderMeta

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs and wires every component from cfg. It does not start any
// goroutine; call Start for that.
func New(cfg *config.Config, logger *slog.Logger) (*Engine, error) {
	m := metrics.New()
	c := clock.Real{}

	venues := venueNames(cfg.VenueMode)

	normSymbols := make([]string, len(cfg.Symbols))
	for i, s := range cfg.Symbols {
		normSymbols[i] = types.NormalizeSymbol(s)
	}

	e := &Engine{
		cfg:      cfg,
		logger:   logger.With("component", "engine"),
		clock:    c,
		m:        m,
		mdBus:    bus.NewMdBus(mdBusCapacity),
		sigBus:   bus.NewBlocking[types.Signal](sigBusCapacity),
		ordBus:   bus.NewBlocking[types.Order](ordBusCapacity),
		venueBus: make(map[string]*bus.Venue[types.Order], len(venues)),
		execBus:  bus.NewBlocking[types.ExecReport](execBusCapacity),
		gateways: make(map[string]gateway.Gateway, len(venues)),
		orders:   make(map[string]*orderMeta),
	}

	e.positions = position.NewBook(m)

	if cfg.RecordFile != "" {
		e.rec = recorder.New(cfg.RecordFile, recorderCapacity, m, logger)
	}

	e.rt = router.New(venues, router.Weights{
		WFill:    cfg.RouterWFill,
		WLatency: cfg.RouterWLatency,
		WReject:  cfg.RouterWReject,
	}, c)
	e.rt.SetStickiness(cfg.RouterStickiness)

	symbolSet := make(map[string]bool, len(normSymbols))
	for _, s := range normSymbols {
		symbolSet[s] = true
	}
	e.riskGate = risk.New(risk.Config{
		Symbols:     symbolSet,
		PxMin:       cfg.PxMin,
		PxMax:       cfg.PxMax,
		MaxNotional: cfg.MaxNotional,
		MaxQPS:      float64(cfg.MaxQPS),
	}, c)

	for _, v := range venues {
		e.venueBus[v] = bus.NewVenue[types.Order](venueBusCapacity, venueBusTimeout)
		gw, err := newGateway(v, cfg, m, logger)
		if err != nil {
			return nil, err
		}
		e.gateways[v] = gw
	}

	e.dispatcher = strategy.NewDispatcher(int(cfg.StrategyWorkers), strategy.Config{}.Cooldown, c, m, logger, e.sigBus)
	e.dispatcher.OnTick = func(tick types.MdTick) {
		e.positions.Mark(tick.Symbol, tick.Mid())
		if e.rec != nil {
			e.rec.Record(types.Event{Kind: types.EventMd, Data: tick})
		}
	}
	e.newStrategies = buildStrategies(cfg.Strategies, logger)

	feedImpl, err := newFeed(cfg, normSymbols, c, m, logger)
	if err != nil {
		return nil, err
	}
	e.feedImpl = feedImpl
	e.symbols = normSymbols

	m.SetConfigFeedMode(modeCode(cfg.FeedMode))
	m.SetConfigVenueMode(modeCode(cfg.VenueMode))
	for _, sym := range normSymbols {
		m.SetConfigSymbol(sym)
	}
	for _, s := range cfg.Strategies {
		m.SetConfigStrategyActive(s)
	}

	e.ctx, e.cancel = context.WithCancel(context.Background())
	return e, nil
}

// Metrics returns the engine's metrics registry, for the telemetry server.
func (e *Engine) Metrics() *metrics.Metrics { return e.m }

// modeCode maps a feed/venue mode string to the numeric code the
// config_feed_mode/config_venue_mode gauges expose.
func modeCode(mode string) float64 {
	switch mode {
	case "mock":
		return 0
	case "binance_sandbox":
		return 1
	case "binance_mainnet":
		return 2
	default:
		return -1
	}
}

func venueNames(venueMode string) []string {
	if venueMode == "mock" {
		return []string{"mock"}
	}
	return []string{"binance"}
}

func newGateway(venue string, cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) (gateway.Gateway, error) {
	if venue == "mock" {
		return gateway.NewMock(venue, gateway.MockConfig{
			SlipEnabled: cfg.MockSlipEnabled,
			RejectPct:   cfg.MockRejectPct,
		}, m, logger), nil
	}
	if cfg.BinanceRESTURL == "" || cfg.BinanceAPIKey == "" || cfg.BinanceAPISecret == "" {
		return nil, fmt.Errorf("venue %q requires BINANCE_REST_URL, BINANCE_API_KEY and BINANCE_API_SECRET", venue)
	}
	return gateway.NewExchange(gateway.ExchangeConfig{
		Venue:     venue,
		BaseURL:   cfg.BinanceRESTURL,
		WSBaseURL: cfg.BinanceWSURL,
		ApiKey:    cfg.BinanceAPIKey,
		ApiSecret: cfg.BinanceAPISecret,
	}, m, logger), nil
}

func newFeed(cfg *config.Config, symbols []string, c clock.Clock, m *metrics.Metrics, logger *slog.Logger) (Feed, error) {
	if cfg.FeedMode == "mock" {
		symCfgs := make([]feed.MockSymbolConfig, 0, len(symbols))
		seed := (cfg.PxMin + cfg.PxMax) / 2
		for _, s := range symbols {
			symCfgs = append(symCfgs, feed.MockSymbolConfig{
				Symbol:     s,
				SeedPx:     seed,
				SpreadBps:  5,
				RatePerSec: 20,
				PxMin:      cfg.PxMin,
				PxMax:      cfg.PxMax,
			})
		}
		return feed.NewMockFeed(feed.MockConfig{Symbols: symCfgs}, c, m), nil
	}
	if cfg.BinanceWSURL == "" {
		return nil, fmt.Errorf("feed mode %q requires BINANCE_WS_URL", cfg.FeedMode)
	}
	return feed.NewExchangeFeed(feed.ExchangeConfig{
		Venue:   "binance",
		WSURL:   cfg.BinanceWSURL,
		Symbols: symbols,
	}, c, m, logger), nil
}

// buildStrategies returns a factory that builds one fresh set of strategy
// instances per call. The dispatcher calls it once per worker so each
// worker's strategies own their per-symbol state exclusively; sharing one set
// of instances across workers would let two goroutines mutate the same
// strategy's maps concurrently.
func buildStrategies(kinds []string, logger *slog.Logger) func() []strategy.Strategy {
	kinds = append([]string(nil), kinds...)
	return func() []strategy.Strategy {
		out := make([]strategy.Strategy, 0, len(kinds))
		for _, k := range kinds {
			switch types.StrategyKind(k) {
			case types.MeanReversion:
				out = append(out, strategy.NewMeanReversion(strategy.Config{}, logger))
			case types.MACrossover:
				out = append(out, strategy.NewMACrossover(strategy.Config{}, logger))
			case types.VolBreakout:
				out = append(out, strategy.NewVolBreakout(strategy.Config{}, logger))
			}
		}
		return out
	}
}

// Start launches every long-lived goroutine and returns immediately.
func (e *Engine) Start() error {
	if e.rec != nil {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			e.rec.Run(e.ctx.Done())
		}()
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.feedImpl.Run(e.ctx, e.mdBus)
	}()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.dispatcher.Run(e.ctx, e.mdBus, e.newStrategies, e.symbols)
	}()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.runRisk()
	}()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.runRouting()
	}()

	for venue, gw := range e.gateways {
		venueBus := e.venueBus[venue]
		gw := gw
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			e.runVenueSubmitter(venue, venueBus, gw)
		}()

		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			e.consumeReports(gw)
		}()

		if exg, ok := gw.(*gateway.Exchange); ok {
			e.wg.Add(1)
			go func() {
				defer e.wg.Done()
				exg.RunUserDataStream(e.ctx)
			}()
		}
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.runExecConsumer()
	}()

	e.logger.Info("engine started",
		"feed_mode", e.cfg.FeedMode,
		"venue_mode", e.cfg.VenueMode,
		"symbols", e.cfg.Symbols,
		"strategies", e.cfg.Strategies,
	)
	return nil
}

// runRisk consumes Signals from SigBus, runs them through the risk gate, and
// forwards accepted Orders to OrdBus.
func (e *Engine) runRisk() {
	for {
		select {
		case <-e.ctx.Done():
			return
		case sig := <-e.sigBus.Chan():
			if e.rec != nil {
				e.rec.Record(types.Event{Kind: types.EventSig, Data: sig})
			}
			order, err := e.riskGate.Check(sig)
			if err != nil {
				if rej, ok := err.(risk.Reject); ok {
					e.m.RiskReject(rej.Reason)
				}
				continue
			}
			if err := e.ordBus.Send(e.ctx, order); err != nil {
				return
			}
		}
	}
}

// runRouting consumes Orders from OrdBus, picks a venue, and hands the order
// to that venue's bounded queue.
func (e *Engine) runRouting() {
	for {
		select {
		case <-e.ctx.Done():
			return
		case order := <-e.ordBus.Chan():
			venue, ok := e.rt.Route(order)
			if !ok {
				e.logger.Warn("no venue available, dropping order", "order_id", order.ID, "symbol", order.Symbol)
				continue
			}
			if e.rec != nil {
				e.rec.Record(types.Event{Kind: types.EventOrd, Data: order})
			}

			e.ordersMu.Lock()
			e.orders[order.ID] = &orderMeta{symbol: order.Symbol, side: order.Side, venue: venue}
			e.ordersMu.Unlock()

			e.m.Order(order.Symbol)
			e.rt.NotifySent(order.ID)

			vb := e.venueBus[venue]
			if !vb.TrySend(e.ctx, order) {
				e.logger.Warn("venue queue congested, order rejected", "venue", venue, "order_id", order.ID)
				if err := e.execBus.Send(e.ctx, types.ExecReport{
					OrderID:    order.ID,
					Venue:      venue,
					Status:     types.Rejected,
					TsMs:       e.clock.NowMs(),
					ReasonCode: "CONGESTED",
				}); err != nil {
					return
				}
			}
		}
	}
}

// runVenueSubmitter drains one venue's bounded queue into its gateway.
func (e *Engine) runVenueSubmitter(venue string, vb *bus.Venue[types.Order], gw gateway.Gateway) {
	for {
		select {
		case <-e.ctx.Done():
			return
		case order := <-vb.Chan():
			gw.Submit(order)
		}
	}
}

// consumeReports reads one gateway's ExecReports and forwards them onto the
// shared ExecBus.
func (e *Engine) consumeReports(gw gateway.Gateway) {
	for {
		select {
		case <-e.ctx.Done():
			return
		case report := <-gw.Reports():
			if err := e.execBus.Send(e.ctx, report); err != nil {
				return
			}
		}
	}
}

// runExecConsumer fans ExecBus out to the router's venue stats, positions,
// the dispatcher's fill-flow tracker, and the recorder.
func (e *Engine) runExecConsumer() {
	for {
		select {
		case <-e.ctx.Done():
			return
		case report := <-e.execBus.Chan():
			if e.rec != nil {
				e.rec.Record(types.Event{Kind: types.EventExec, Data: report})
			}

			e.ordersMu.Lock()
			meta, ok := e.orders[report.OrderID]
			var signalToAckMs, ackToFillMs float64
			if ok {
				signalToAckMs, ackToFillMs = e.rt.ObserveExec(meta.venue, report)
			}
			var fillDelta float64
			if ok && report.FilledQty > meta.lastCumQty {
				fillDelta = report.FilledQty - meta.lastCumQty
				meta.lastCumQty = report.FilledQty
			}
			if ok && report.Status.Terminal() {
				delete(e.orders, report.OrderID)
			}
			e.ordersMu.Unlock()

			if ok && signalToAckMs > 0 {
				e.m.ObserveSignalToAck(meta.venue, signalToAckMs)
			}
			if ok && ackToFillMs > 0 {
				e.m.ObserveAckToFill(meta.venue, ackToFillMs)
			}

			if ok && fillDelta > 0 {
				e.positions.ApplyFill(meta.symbol, meta.venue, meta.side, fillDelta, report.AvgPx)
				e.dispatcher.ObserveFill(meta.symbol, meta.side, time.UnixMilli(report.TsMs))
			}
		}
	}
}

// Stop cancels every goroutine and waits for them to exit.
func (e *Engine) Stop() {
	e.logger.Info("shutting down")
	e.cancel()
	e.wg.Wait()
	e.logger.Info("shutdown complete")
}
