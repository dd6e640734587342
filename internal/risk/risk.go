// Package risk is the pre-trade gate between signals and orders: it checks a
// signal against the symbol allow-list, a price band, sizing/notional caps,
// and a global rate limit, in that order, failing fast on the first
// violation. Checks are stateless per call except for the shared token
// bucket and router-facing size caps, so Check is safe to call concurrently
// from every strategy worker.
package risk

import (
	"fmt"
	"math"

	"github.com/google/uuid"

	"tradingengine/internal/clock"
	"tradingengine/pkg/types"
)

// Reject reasons, surfaced on the risk_rejects_total{reason} counter.
const (
	ReasonSymbol   = "SYMBOL"
	ReasonPriceBand = "PRICE_BAND"
	ReasonSizing   = "SIZING"
	ReasonNotional = "NOTIONAL"
	ReasonThrottled = "THROTTLED"
)

// Reject is returned when a signal fails a check. It is not a Go error in
// the failure sense — it is an expected, observable business outcome.
type Reject struct {
	Reason string
}

func (r Reject) Error() string {
	return fmt.Sprintf("risk reject: %s", r.Reason)
}

// Config holds the per-process risk limits. PerSymbolCap and LotSize default
// to permissive values when zero (no extra cap / no rounding).
type Config struct {
	Symbols      map[string]bool // allow-list, keys are normalized symbols
	PxMin        float64
	PxMax        float64
	MaxNotional  float64
	PerSymbolCap float64 // additional per-symbol qty cap; 0 = unbounded
	LotSize      float64 // qty rounding granularity; 0 = no rounding
	MinLot       float64 // minimum acceptable qty after rounding
	SlipBps      float64 // limit price slippage applied to ref_px
	MaxQPS       float64 // token bucket capacity and refill rate
}

// Gate is the stateful risk checker: it owns the shared rate limiter.
type Gate struct {
	cfg    Config
	bucket *TokenBucket
	clock  clock.Clock
}

// New constructs a Gate. The token bucket's capacity and refill rate are
// both MaxQPS, per the rate-limit contract: burst = MAX_QPS, refill = MAX_QPS/s.
func New(cfg Config, c clock.Clock) *Gate {
	qps := cfg.MaxQPS
	if qps <= 0 {
		qps = 10
	}
	return &Gate{
		cfg:    cfg,
		bucket: NewTokenBucket(qps, qps, c),
		clock:  c,
	}
}

// Check runs the fail-fast checks in order and returns either an Order ready
// for routing, or a Reject describing why the signal was dropped.
func (g *Gate) Check(sig types.Signal) (types.Order, error) {
	symbol := types.NormalizeSymbol(sig.Symbol)

	if len(g.cfg.Symbols) > 0 && !g.cfg.Symbols[symbol] {
		return types.Order{}, Reject{Reason: ReasonSymbol}
	}

	if sig.RefPx < g.cfg.PxMin || sig.RefPx > g.cfg.PxMax {
		return types.Order{}, Reject{Reason: ReasonPriceBand}
	}

	qty := g.cfg.MaxNotional / sig.RefPx
	if g.cfg.PerSymbolCap > 0 && qty > g.cfg.PerSymbolCap {
		qty = g.cfg.PerSymbolCap
	}
	if g.cfg.LotSize > 0 {
		qty = math.Floor(qty/g.cfg.LotSize) * g.cfg.LotSize
	}
	if qty <= 0 || qty < g.cfg.MinLot {
		return types.Order{}, Reject{Reason: ReasonSizing}
	}

	if qty*sig.RefPx > g.cfg.MaxNotional {
		return types.Order{}, Reject{Reason: ReasonNotional}
	}

	if !g.bucket.TryTake() {
		return types.Order{}, Reject{Reason: ReasonThrottled}
	}

	limitPx := sig.RefPx * (1 + g.cfg.SlipBps*sig.Side.Sign()/10000)

	return types.Order{
		ID:             uuid.NewString(),
		ParentSignalID: sig.ID,
		Symbol:         symbol,
		Side:           sig.Side,
		LimitPx:        limitPx,
		Qty:            qty,
		TIF:            types.IOC,
		TsMs:           g.clock.NowMs(),
	}, nil
}
