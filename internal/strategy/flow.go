package strategy

import (
	"math"
	"sync"
	"time"

	"tradingengine/pkg/types"
)

// flowSample is one fill observation fed into a FlowTracker.
type flowSample struct {
	side types.Side
	ts   time.Time
}

// ToxicityMetrics summarizes recent fill flow for one symbol.
type ToxicityMetrics struct {
	DirectionalImbalance float64
	FillVelocity         float64
	ToxicityScore        float64
	IsToxic              bool
}

// FlowTracker watches a symbol's recent fills for one-sided, high-velocity
// flow — a sign the counterparty is trading on information the strategy
// doesn't have — and widens the strategy's cooldown while it persists.
// Adapted from the reference program's toxic-flow detector: same
// directional-imbalance/fill-velocity composite, generalized from a single
// market-maker's own fills to per-symbol aggregate fills across all
// strategies.
type FlowTracker struct {
	mu sync.Mutex

	window    time.Duration
	threshold float64
	cooldown  time.Duration
	maxWiden  float64

	samples       []flowSample
	lastToxicTime time.Time
}

// NewFlowTracker constructs a FlowTracker.
func NewFlowTracker(window time.Duration, threshold float64, cooldown time.Duration, maxWiden float64) *FlowTracker {
	return &FlowTracker{
		window:    window,
		threshold: threshold,
		cooldown:  cooldown,
		maxWiden:  maxWiden,
	}
}

// Observe records a fill.
func (ft *FlowTracker) Observe(side types.Side, ts time.Time) {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	ft.samples = append(ft.samples, flowSample{side: side, ts: ts})
	ft.evictLocked(ts)
}

func (ft *FlowTracker) evictLocked(now time.Time) {
	cutoff := now.Add(-ft.window)
	i := 0
	for i < len(ft.samples) && ft.samples[i].ts.Before(cutoff) {
		i++
	}
	if i > 0 {
		ft.samples = ft.samples[i:]
	}
}

func (ft *FlowTracker) metricsLocked(now time.Time) ToxicityMetrics {
	ft.evictLocked(now)
	if len(ft.samples) == 0 {
		return ToxicityMetrics{}
	}

	var buy, sell int
	for _, s := range ft.samples {
		if s.side == types.Buy {
			buy++
		} else {
			sell++
		}
	}
	total := float64(len(ft.samples))
	imbalance := math.Max(float64(buy), float64(sell)) / total

	if len(ft.samples) < 2 {
		score := imbalance * 0.6
		return ToxicityMetrics{DirectionalImbalance: imbalance, ToxicityScore: score, IsToxic: score > ft.threshold}
	}

	velocity := total / ft.window.Minutes()
	velocityFactor := math.Min(velocity/3.0, 1.0)
	score := 0.6*imbalance + 0.4*velocityFactor

	return ToxicityMetrics{
		DirectionalImbalance: imbalance,
		FillVelocity:         velocity,
		ToxicityScore:        score,
		IsToxic:              score > ft.threshold,
	}
}

// CooldownMultiplier returns the strategy cooldown's current widening
// factor: 1.0 under normal flow, scaling up to maxWiden while toxic flow
// persists, and decaying linearly back to 1.0 over the cooldown period once
// it clears.
func (ft *FlowTracker) CooldownMultiplier(now time.Time) float64 {
	ft.mu.Lock()
	defer ft.mu.Unlock()

	m := ft.metricsLocked(now)
	if m.IsToxic {
		ft.lastToxicTime = now
	}

	inCooldown := !ft.lastToxicTime.IsZero() && now.Sub(ft.lastToxicTime) < ft.cooldown
	if !m.IsToxic && !inCooldown {
		return 1.0
	}

	if m.ToxicityScore <= ft.threshold {
		elapsed := now.Sub(ft.lastToxicTime).Seconds()
		progress := math.Min(elapsed/ft.cooldown.Seconds(), 1.0)
		return 1.0 + (ft.maxWiden-1.0)*(1.0-progress)
	}

	normalized := (m.ToxicityScore - ft.threshold) / (1.0 - ft.threshold)
	return 1.0 + (ft.maxWiden-1.0)*math.Min(normalized*2.0, 1.0)
}
