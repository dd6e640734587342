// Package router picks a venue for each risk-approved Order. Venue quality is
// tracked as a rolling score from ExecReport feedback and combined into a
// single ranking number, the same shape the reference program's market
// scanner used to rank opportunities by spread/volume/liquidity — here the
// three inputs are fill rate, latency, and reject rate instead.
package router

import (
	"math"
	"sync"
	"time"

	"tradingengine/internal/clock"
	"tradingengine/pkg/types"
)

// Weights configures the venue scoring formula:
//
//	score = WFill*fill_rate - WLatency*latency_ms - WReject*reject_rate
type Weights struct {
	WFill    float64
	WLatency float64
	WReject  float64
}

// DefaultWeights matches the env defaults in the config table
// (ROUTER_W_FILL/ROUTER_W_LATENCY/ROUTER_W_REJECT).
var DefaultWeights = Weights{WFill: 1.0, WLatency: 1.0, WReject: 50.0}

// ewmaAlpha is the smoothing factor for the rolling venue stats.
const ewmaAlpha = 0.2

// stickinessDefault is the score bonus a symbol's previously-picked venue gets
// over a rival, to avoid order flapping between near-tied venues. The same
// delta bounds how far below the top score a preferred venue may be and
// still be honored.
const stickinessDefault = 0.02

type venueStats struct {
	up         bool
	fillRate   float64
	latencyMs  float64
	rejectRate float64
	seen       bool
}

func (s *venueStats) score(w Weights) float64 {
	if !s.up {
		return math.Inf(-1)
	}
	return w.WFill*s.fillRate - w.WLatency*s.latencyMs - w.WReject*s.rejectRate
}

func (s *venueStats) observeExec(r types.ExecReport) {
	s.seen = true
	s.up = true

	filled := 0.0
	if r.Status == types.Filled || r.Status == types.Partial {
		filled = 1.0
	}
	rejected := 0.0
	if r.Status == types.Rejected {
		rejected = 1.0
	}
	s.fillRate = ewma(s.fillRate, filled)
	s.rejectRate = ewma(s.rejectRate, rejected)
}

func (s *venueStats) observeLatency(ms float64) {
	s.latencyMs = ewma(s.latencyMs, ms)
}

func ewma(prev, sample float64) float64 {
	return ewmaAlpha*sample + (1-ewmaAlpha)*prev
}

// Router scores and selects venues, with a per-symbol stickiness bonus for
// whichever venue was last picked so near-tied scores don't flap every order.
type Router struct {
	mu      sync.Mutex
	clock   clock.Clock
	weights Weights
	stick   float64

	venues map[string]*venueStats // venue name -> stats
	last   map[string]string      // symbol -> last picked venue

	pendingMu sync.Mutex
	pending   map[string]*pendingOrder
}

// pendingOrder tracks the timestamps needed to split an order's round trip
// into a signal-to-ack sample and an ack-to-fill sample.
type pendingOrder struct {
	sentAt time.Time
	ackAt  time.Time
	acked  bool
}

// New constructs a Router over the given venue names.
func New(venueNames []string, w Weights, c clock.Clock) *Router {
	r := &Router{
		clock:   c,
		weights: w,
		stick:   stickinessDefault,
		venues:  make(map[string]*venueStats),
		last:    make(map[string]string),
		pending: make(map[string]*pendingOrder),
	}
	for _, v := range venueNames {
		r.venues[v] = &venueStats{up: true}
	}
	return r
}

// SetStickiness overrides the default stickiness delta.
func (r *Router) SetStickiness(delta float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stick = delta
}

// MarkDown forces a venue's score to -inf, e.g. after a gateway reports its
// connection as down.
func (r *Router) MarkDown(venue string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.venues[venue]; ok {
		s.up = false
	}
}

// MarkUp clears a venue's down state.
func (r *Router) MarkUp(venue string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.venues[venue]; ok {
		s.up = true
	}
}

// Route picks the best venue for an order. The highest-scoring up venue wins,
// with a stickiness bonus for the symbol's last-picked venue to damp flapping
// between near-tied candidates. If order.VenuePref names a known, up venue
// whose score is within the stickiness delta of that top score, the
// preference is honored instead.
func (r *Router) Route(order types.Order) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var best string
	bestScore := math.Inf(-1)
	lastVenue := r.last[order.Symbol]

	for name, s := range r.venues {
		score := s.score(r.weights)
		if name == lastVenue {
			score += r.stick
		}
		if score > bestScore {
			bestScore = score
			best = name
		}
	}

	if best == "" || math.IsInf(bestScore, -1) {
		return "", false
	}

	if order.VenuePref != "" && order.VenuePref != best {
		if s, ok := r.venues[order.VenuePref]; ok && s.up && s.score(r.weights) >= bestScore-r.stick {
			best = order.VenuePref
		}
	}

	r.last[order.Symbol] = best
	return best, true
}

// NotifySent records the time an order was handed to a venue, so a later
// ExecReport can be turned into a latency sample.
func (r *Router) NotifySent(orderID string) {
	r.pendingMu.Lock()
	r.pending[orderID] = &pendingOrder{sentAt: time.Now()}
	r.pendingMu.Unlock()
}

// ObserveExec feeds a venue's ExecReport back into its rolling stats and
// returns the signal-to-ack and ack-to-fill latency samples it produced, in
// milliseconds. A zero value means that report didn't produce that sample
// (e.g. a second ACK-ish report for an order that's already been acked, or
// any report for an order ObserveExec has never seen sent).
func (r *Router) ObserveExec(venue string, report types.ExecReport) (signalToAckMs, ackToFillMs float64) {
	r.mu.Lock()
	s, ok := r.venues[venue]
	if !ok {
		s = &venueStats{up: true}
		r.venues[venue] = s
	}
	s.observeExec(report)
	r.mu.Unlock()

	now := time.Now()

	r.pendingMu.Lock()
	p, ok := r.pending[report.OrderID]
	if ok {
		if !p.acked {
			signalToAckMs = float64(now.Sub(p.sentAt).Microseconds()) / 1000.0
			p.acked = true
			p.ackAt = now
		} else if report.Status == types.Filled {
			ackToFillMs = float64(now.Sub(p.ackAt).Microseconds()) / 1000.0
		}
		if report.Status.Terminal() {
			delete(r.pending, report.OrderID)
		}
	}
	r.pendingMu.Unlock()

	if ok {
		totalMs := float64(now.Sub(p.sentAt).Microseconds()) / 1000.0
		r.mu.Lock()
		s.observeLatency(totalMs)
		r.mu.Unlock()
	}

	return signalToAckMs, ackToFillMs
}

// Stats returns a snapshot of a venue's current rolling stats, for tests and
// diagnostics.
func (r *Router) Stats(venue string) (fillRate, latencyMs, rejectRate float64, up bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.venues[venue]
	if !ok {
		return 0, 0, 0, false
	}
	return s.fillRate, s.latencyMs, s.rejectRate, s.up
}
