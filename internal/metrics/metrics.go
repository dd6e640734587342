// Package metrics defines the engine's telemetry registry: counters, gauges,
// and histograms labeled by symbol/venue/strategy, plus small setter helpers
// so call sites read like verbs ("metrics.Tick(symbol)") rather than raw
// Prometheus vector lookups.
//
// Unlike a package-level singleton registered in init(), the registry here is
// owned by one Metrics instance built at engine construction time — this lets
// tests build an isolated registry per test instead of sharing process-global
// state.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var latencyBuckets = []float64{0.5, 1, 2, 5, 10, 25, 50, 100, 250, 1000}

// Metrics owns every counter/gauge/histogram the engine exposes and the
// registry they're registered against.
type Metrics struct {
	Registry *prometheus.Registry

	ticksTotal       *prometheus.CounterVec // {symbol}
	signalsTotal     *prometheus.CounterVec // {strategy,symbol}
	ordersTotal      *prometheus.CounterVec // {symbol}
	riskRejectsTotal *prometheus.CounterVec // {reason}
	execReportsTotal *prometheus.CounterVec // {venue,status}
	wsReconnects     *prometheus.CounterVec // {venue}
	recorderDrops    prometheus.Counter

	configFeedMode      prometheus.Gauge
	configVenueMode     prometheus.Gauge
	configSymbol        *prometheus.GaugeVec // {symbol}
	configStrategyActive *prometheus.GaugeVec // {strategy}
	wsConnected         *prometheus.GaugeVec // {venue}
	wsLastEventAge      *prometheus.GaugeVec // {venue}
	inventoryQty        *prometheus.GaugeVec // {symbol,venue}
	unrealizedPnL       *prometheus.GaugeVec // {symbol,venue}
	realizedPnL         *prometheus.GaugeVec // {symbol,venue}

	latencySignalToAck *prometheus.HistogramVec // {venue}
	latencyAckToFill   *prometheus.HistogramVec // {venue}
}

// New constructs a Metrics instance with a fresh registry and registers every
// series against it.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,

		ticksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ticks_total", Help: "Market data ticks ingested.",
		}, []string{"symbol"}),

		signalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signals_total", Help: "Signals emitted by strategies.",
		}, []string{"strategy", "symbol"}),

		ordersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orders_total", Help: "Orders routed to a venue.",
		}, []string{"symbol"}),

		riskRejectsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "risk_rejects_total", Help: "Signals rejected by risk, by reason.",
		}, []string{"reason"}),

		execReportsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "exec_reports_total", Help: "Execution reports received from venues.",
		}, []string{"venue", "status"}),

		wsReconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ws_reconnects_total", Help: "WebSocket reconnect cycles, by venue.",
		}, []string{"venue"}),

		recorderDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "recorder_drops_total", Help: "Events dropped by the recorder.",
		}),

		configFeedMode: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "config_feed_mode", Help: "Active feed mode, as a numeric code.",
		}),
		configVenueMode: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "config_venue_mode", Help: "Active venue mode, as a numeric code.",
		}),
		configSymbol: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "config_symbol", Help: "1 for each configured symbol.",
		}, []string{"symbol"}),
		configStrategyActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "config_strategy_active", Help: "1 for each enabled strategy.",
		}, []string{"strategy"}),

		wsConnected: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ws_connected", Help: "1 if the venue websocket is connected.",
		}, []string{"venue"}),
		wsLastEventAge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ws_last_event_age_seconds", Help: "Seconds since the last websocket event.",
		}, []string{"venue"}),

		inventoryQty: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "inventory_qty", Help: "Signed position quantity.",
		}, []string{"symbol", "venue"}),
		unrealizedPnL: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "unrealized_pnl", Help: "Mark-to-market unrealized PnL.",
		}, []string{"symbol", "venue"}),
		realizedPnL: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "realized_pnl", Help: "Realized PnL from closed fills.",
		}, []string{"symbol", "venue"}),

		latencySignalToAck: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "latency_signal_to_ack_ms", Help: "Signal-to-ACK latency.", Buckets: latencyBuckets,
		}, []string{"venue"}),
		latencyAckToFill: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "latency_ack_to_fill_ms", Help: "ACK-to-FILLED latency.", Buckets: latencyBuckets,
		}, []string{"venue"}),
	}

	reg.MustRegister(
		m.ticksTotal, m.signalsTotal, m.ordersTotal, m.riskRejectsTotal,
		m.execReportsTotal, m.wsReconnects, m.recorderDrops,
		m.configFeedMode, m.configVenueMode, m.configSymbol, m.configStrategyActive,
		m.wsConnected, m.wsLastEventAge,
		m.inventoryQty, m.unrealizedPnL, m.realizedPnL,
		m.latencySignalToAck, m.latencyAckToFill,
	)

	return m
}

// Tick records one ingested market data tick for symbol.
func (m *Metrics) Tick(symbol string) { m.ticksTotal.WithLabelValues(symbol).Inc() }

// Signal records one emitted signal.
func (m *Metrics) Signal(strategy, symbol string) {
	m.signalsTotal.WithLabelValues(strategy, symbol).Inc()
}

// Order records one risk-accepted order.
func (m *Metrics) Order(symbol string) { m.ordersTotal.WithLabelValues(symbol).Inc() }

// RiskReject records one risk rejection by reason.
func (m *Metrics) RiskReject(reason string) { m.riskRejectsTotal.WithLabelValues(reason).Inc() }

// ExecReport records one exec report by venue and status.
func (m *Metrics) ExecReport(venue, status string) {
	m.execReportsTotal.WithLabelValues(venue, status).Inc()
}

// WSReconnect increments the reconnect counter for venue.
func (m *Metrics) WSReconnect(venue string) { m.wsReconnects.WithLabelValues(venue).Inc() }

// RecorderDrop increments the recorder drop counter.
func (m *Metrics) RecorderDrop() { m.recorderDrops.Inc() }

// SetConfigFeedMode records the active feed mode as a numeric code.
func (m *Metrics) SetConfigFeedMode(code float64) { m.configFeedMode.Set(code) }

// SetConfigVenueMode records the active venue mode as a numeric code.
func (m *Metrics) SetConfigVenueMode(code float64) { m.configVenueMode.Set(code) }

// SetConfigSymbol marks a symbol as configured.
func (m *Metrics) SetConfigSymbol(symbol string) { m.configSymbol.WithLabelValues(symbol).Set(1) }

// SetConfigStrategyActive marks a strategy as enabled.
func (m *Metrics) SetConfigStrategyActive(strategy string) {
	m.configStrategyActive.WithLabelValues(strategy).Set(1)
}

// SetWSConnected records the connection state of a venue's websocket.
func (m *Metrics) SetWSConnected(venue string, connected bool) {
	v := 0.0
	if connected {
		v = 1.0
	}
	m.wsConnected.WithLabelValues(venue).Set(v)
}

// SetWSLastEventAge records seconds since the venue's last websocket event.
func (m *Metrics) SetWSLastEventAge(venue string, age time.Duration) {
	m.wsLastEventAge.WithLabelValues(venue).Set(age.Seconds())
}

// SetInventory records a position's signed quantity.
func (m *Metrics) SetInventory(symbol, venue string, qty float64) {
	m.inventoryQty.WithLabelValues(symbol, venue).Set(qty)
}

// SetUnrealizedPnL records a position's mark-to-market PnL.
func (m *Metrics) SetUnrealizedPnL(symbol, venue string, pnl float64) {
	m.unrealizedPnL.WithLabelValues(symbol, venue).Set(pnl)
}

// SetRealizedPnL records a position's realized PnL.
func (m *Metrics) SetRealizedPnL(symbol, venue string, pnl float64) {
	m.realizedPnL.WithLabelValues(symbol, venue).Set(pnl)
}

// ObserveSignalToAck records a signal-to-ACK latency sample, in milliseconds.
func (m *Metrics) ObserveSignalToAck(venue string, ms float64) {
	m.latencySignalToAck.WithLabelValues(venue).Observe(ms)
}

// ObserveAckToFill records an ACK-to-FILLED latency sample, in milliseconds.
func (m *Metrics) ObserveAckToFill(venue string, ms float64) {
	m.latencyAckToFill.WithLabelValues(venue).Observe(ms)
}
