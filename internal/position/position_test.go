package position

import (
	"testing"

	"tradingengine/pkg/types"
)

func TestApplyFillExtendsSameSignPosition(t *testing.T) {
	b := NewBook(nil)
	b.ApplyFill("BTCUSDT", "mock", types.Buy, 1, 100)
	b.ApplyFill("BTCUSDT", "mock", types.Buy, 1, 110)

	p := b.Get("BTCUSDT", "mock")
	if p.Qty != 2 {
		t.Errorf("qty = %v, want 2", p.Qty)
	}
	if p.AvgEntryPx != 105 {
		t.Errorf("avg entry = %v, want 105", p.AvgEntryPx)
	}
}

func TestApplyFillRealizesPnLOnPartialClose(t *testing.T) {
	b := NewBook(nil)
	b.ApplyFill("BTCUSDT", "mock", types.Buy, 2, 100)
	b.ApplyFill("BTCUSDT", "mock", types.Sell, 1, 120)

	p := b.Get("BTCUSDT", "mock")
	if p.Qty != 1 {
		t.Errorf("qty = %v, want 1", p.Qty)
	}
	if p.RealizedPnL != 20 {
		t.Errorf("realized pnl = %v, want 20", p.RealizedPnL)
	}
	if p.AvgEntryPx != 100 {
		t.Errorf("avg entry should be unchanged by a partial close, got %v", p.AvgEntryPx)
	}
}

func TestApplyFillFlipsSideOnOvershoot(t *testing.T) {
	b := NewBook(nil)
	b.ApplyFill("BTCUSDT", "mock", types.Buy, 1, 100)
	b.ApplyFill("BTCUSDT", "mock", types.Sell, 3, 110)

	p := b.Get("BTCUSDT", "mock")
	if p.Qty != -2 {
		t.Errorf("qty = %v, want -2", p.Qty)
	}
	if p.RealizedPnL != 10 {
		t.Errorf("realized pnl = %v, want 10", p.RealizedPnL)
	}
	if p.AvgEntryPx != 110 {
		t.Errorf("avg entry after flip should reset to fill price, got %v", p.AvgEntryPx)
	}
}

func TestApplyFillFlattensToZero(t *testing.T) {
	b := NewBook(nil)
	b.ApplyFill("BTCUSDT", "mock", types.Buy, 2, 100)
	b.ApplyFill("BTCUSDT", "mock", types.Sell, 2, 105)

	p := b.Get("BTCUSDT", "mock")
	if p.Qty != 0 {
		t.Errorf("qty = %v, want 0", p.Qty)
	}
	if p.AvgEntryPx != 0 {
		t.Errorf("avg entry px = %v, want 0 when flat", p.AvgEntryPx)
	}
}

func TestMarkUpdatesUnrealizedPnL(t *testing.T) {
	b := NewBook(nil)
	b.ApplyFill("BTCUSDT", "mock", types.Buy, 2, 100)
	b.Mark("BTCUSDT", 110)

	p := b.Get("BTCUSDT", "mock")
	if p.UnrealizedPnL != 20 {
		t.Errorf("unrealized pnl = %v, want 20", p.UnrealizedPnL)
	}
}

func TestAggregateSumsAcrossVenues(t *testing.T) {
	b := NewBook(nil)
	b.ApplyFill("BTCUSDT", "mock", types.Buy, 1, 100)
	b.ApplyFill("BTCUSDT", "binance", types.Buy, 1, 120)

	agg := b.Aggregate("BTCUSDT")
	if agg.Qty != 2 {
		t.Errorf("aggregate qty = %v, want 2", agg.Qty)
	}
	if agg.AvgEntryPx != 110 {
		t.Errorf("aggregate avg entry = %v, want 110", agg.AvgEntryPx)
	}
}
