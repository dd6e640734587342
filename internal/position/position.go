// Package position tracks fill-driven accounting per (symbol, venue) and
// aggregated per symbol. It generalizes the reference program's binary-market
// YES/NO inventory accounting — weighted-average-price on same-sign fills,
// realized PnL then a fresh average on a sign flip — from a fixed two-token
// structure to an arbitrary (symbol, venue) keyspace with a single signed
// quantity per key instead of two non-negative token quantities.
package position

import (
	"math"
	"sync"

	"tradingengine/internal/metrics"
	"tradingengine/pkg/types"
)

type key struct {
	symbol string
	venue  string
}

// Book tracks every (symbol, venue) position plus an aggregated per-symbol
// view, safe for concurrent use. One RWMutex covers the whole map rather than
// a lock per (symbol, venue) row: fills land on this book from a single
// exec-consumer goroutine, so there's no contention to split the lock for.
type Book struct {
	mu    sync.RWMutex
	byKey map[key]*types.Position
	m     *metrics.Metrics
}

// NewBook constructs an empty Book.
func NewBook(m *metrics.Metrics) *Book {
	return &Book{byKey: make(map[key]*types.Position), m: m}
}

func (b *Book) entryLocked(symbol, venue string) *types.Position {
	k := key{symbol, venue}
	p, ok := b.byKey[k]
	if !ok {
		p = &types.Position{Symbol: symbol, Venue: venue}
		b.byKey[k] = p
	}
	return p
}

// ApplyFill applies an incremental fill of qty at price px on side to the
// (symbol, venue) position. qty must be the incremental (non-cumulative)
// quantity filled by this report, not the cumulative total.
func (b *Book) ApplyFill(symbol, venue string, side types.Side, qty, px float64) {
	if qty <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	p := b.entryLocked(symbol, venue)
	applyFillTo(p, side, qty, px)
	p.Recompute()
	b.publishLocked(p)
}

// applyFillTo implements the signed-delta accounting described above: same
// sign (or flat) extends the position at a blended average price; opposite
// sign realizes PnL on the closing portion and, if the fill overshoots flat,
// opens a new position on the other side at the fill price.
func applyFillTo(p *types.Position, side types.Side, qty, px float64) {
	d := qty * side.Sign()

	sameSignOrFlat := p.Qty == 0 || sign(p.Qty) == sign(d)
	if sameSignOrFlat {
		newQty := p.Qty + d
		if newQty != 0 {
			p.AvgEntryPx = (p.AvgEntryPx*p.Qty + px*d) / newQty
		}
		p.Qty = newQty
		return
	}

	closing := math.Min(math.Abs(p.Qty), qty)
	oldSign := sign(p.Qty)
	p.RealizedPnL += closing * (px - p.AvgEntryPx) * oldSign

	newQty := p.Qty + d
	p.Qty = newQty
	switch {
	case newQty == 0:
		p.AvgEntryPx = 0
	case sign(newQty) != oldSign:
		p.AvgEntryPx = px
	}
}

func sign(v float64) float64 {
	if v > 0 {
		return 1
	}
	if v < 0 {
		return -1
	}
	return 0
}

// Mark updates every (symbol, *) position's last mark price from a fresh
// MdTick's midpoint and recomputes unrealized PnL.
func (b *Book) Mark(symbol string, mid float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for k, p := range b.byKey {
		if k.symbol != symbol {
			continue
		}
		p.LastMarkPx = mid
		p.Recompute()
		b.publishLocked(p)
	}
}

func (b *Book) publishLocked(p *types.Position) {
	if b.m == nil {
		return
	}
	b.m.SetInventory(p.Symbol, p.Venue, p.Qty)
	b.m.SetUnrealizedPnL(p.Symbol, p.Venue, p.UnrealizedPnL)
	b.m.SetRealizedPnL(p.Symbol, p.Venue, p.RealizedPnL)
}

// Get returns a copy of the (symbol, venue) position.
func (b *Book) Get(symbol, venue string) types.Position {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if p, ok := b.byKey[key{symbol, venue}]; ok {
		return *p
	}
	return types.Position{Symbol: symbol, Venue: venue}
}

// Aggregate returns the sum of every venue's position for symbol: summed
// signed qty, an average entry price weighted by absolute qty, and summed realized
// and unrealized PnL.
func (b *Book) Aggregate(symbol string) types.Position {
	b.mu.RLock()
	defer b.mu.RUnlock()

	agg := types.Position{Symbol: symbol}
	var notional float64
	for k, p := range b.byKey {
		if k.symbol != symbol {
			continue
		}
		agg.Qty += p.Qty
		agg.RealizedPnL += p.RealizedPnL
		agg.UnrealizedPnL += p.UnrealizedPnL
		notional += p.AvgEntryPx * math.Abs(p.Qty)
	}
	if agg.Qty != 0 {
		agg.AvgEntryPx = notional / math.Abs(agg.Qty)
	}
	return agg
}
