package gateway

import (
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"tradingengine/internal/metrics"
	"tradingengine/pkg/types"
)

// MockConfig configures the mock gateway's fill simulation.
type MockConfig struct {
	AckLatencyMinMs  float64 // default 0.2
	AckLatencyMaxMs  float64 // default 1.0
	FillLatencyMinMs float64 // default 1
	FillLatencyMaxMs float64 // default 10
	SlipEnabled      bool
	SlipStdBps       float64 // default 0.5, only used if SlipEnabled
	RejectPct        float64 // in [0,1], probability a submitted order is rejected before ACK
}

func (c MockConfig) withDefaults() MockConfig {
	if c.AckLatencyMaxMs <= 0 {
		c.AckLatencyMinMs, c.AckLatencyMaxMs = 0.2, 1.0
	}
	if c.FillLatencyMaxMs <= 0 {
		c.FillLatencyMinMs, c.FillLatencyMaxMs = 1, 10
	}
	if c.SlipStdBps <= 0 {
		c.SlipStdBps = 0.5
	}
	return c
}

// Mock is an in-process gateway that simulates ACK/FILLED lifecycles without
// any network call, grounded on the reference program's paper-broker fill
// simulator: sampled ack/fill latency, optional Gaussian slippage, and a
// configurable reject probability. Absent explicit configuration it always
// fills at the order's limit price, matching the reference default.
type Mock struct {
	name    string
	cfg     MockConfig
	reports chan types.ExecReport
	rngMu   sync.Mutex
	rng     *rand.Rand
	m       *metrics.Metrics
	logger  *slog.Logger
}

// NewMock constructs a Mock gateway named name.
func NewMock(name string, cfg MockConfig, m *metrics.Metrics, logger *slog.Logger) *Mock {
	return &Mock{
		name:    name,
		cfg:     cfg.withDefaults(),
		reports: make(chan types.ExecReport, 1024),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		m:       m,
		logger:  logger.With("component", "gateway", "venue", name),
	}
}

func (g *Mock) Name() string                        { return g.name }
func (g *Mock) Reports() <-chan types.ExecReport     { return g.reports }

// Submit simulates one order's lifecycle in its own goroutine: each order's
// own ACK always precedes its FILLED/REJECTED, independent of how other
// concurrently-submitted orders interleave.
func (g *Mock) Submit(order types.Order) {
	go g.run(order)
}

func (g *Mock) run(order types.Order) {
	ackDelay := g.sampleUniform(g.cfg.AckLatencyMinMs, g.cfg.AckLatencyMaxMs)
	time.Sleep(time.Duration(ackDelay * float64(time.Millisecond)))

	if g.cfg.RejectPct > 0 && g.sampleFloat64() < g.cfg.RejectPct {
		g.emit(types.ExecReport{
			OrderID:    order.ID,
			Venue:      g.name,
			Status:     types.Rejected,
			TsMs:       time.Now().UnixMilli(),
			ReasonCode: "SIMULATED_REJECT",
		})
		return
	}

	g.emit(types.ExecReport{
		OrderID: order.ID,
		Venue:   g.name,
		Status:  types.Ack,
		TsMs:    time.Now().UnixMilli(),
	})

	fillDelay := g.sampleUniform(g.cfg.FillLatencyMinMs, g.cfg.FillLatencyMaxMs)
	time.Sleep(time.Duration(fillDelay * float64(time.Millisecond)))

	fillPx := order.LimitPx
	if g.cfg.SlipEnabled {
		slipBps := g.sampleNormFloat64() * g.cfg.SlipStdBps
		fillPx = order.LimitPx * (1 + slipBps/10000)
	}

	g.emit(types.ExecReport{
		OrderID:   order.ID,
		Venue:     g.name,
		Status:    types.Filled,
		FilledQty: order.Qty,
		AvgPx:     fillPx,
		TsMs:      time.Now().UnixMilli(),
	})
}

func (g *Mock) emit(r types.ExecReport) {
	if g.m != nil {
		g.m.ExecReport(r.Venue, string(r.Status))
	}
	select {
	case g.reports <- r:
	default:
		g.logger.Warn("reports channel full, dropping exec report", "order_id", r.OrderID, "status", r.Status)
	}
}

// sampleUniform, sampleFloat64 and sampleNormFloat64 all guard the shared
// rand.Rand with rngMu: math/rand.Rand isn't safe for concurrent use, and
// Submit runs every order's lifecycle in its own goroutine.
func (g *Mock) sampleUniform(lo, hi float64) float64 {
	if hi <= lo {
		return lo
	}
	g.rngMu.Lock()
	defer g.rngMu.Unlock()
	return lo + g.rng.Float64()*(hi-lo)
}

func (g *Mock) sampleFloat64() float64 {
	g.rngMu.Lock()
	defer g.rngMu.Unlock()
	return g.rng.Float64()
}

func (g *Mock) sampleNormFloat64() float64 {
	g.rngMu.Lock()
	defer g.rngMu.Unlock()
	return g.rng.NormFloat64()
}
