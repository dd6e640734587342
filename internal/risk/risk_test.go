package risk

import (
	"errors"
	"testing"

	"tradingengine/internal/clock"
	"tradingengine/pkg/types"
)

func newTestGate(cfg Config) *Gate {
	if cfg.Symbols == nil {
		cfg.Symbols = map[string]bool{"BTCUSDT": true}
	}
	return New(cfg, clock.NewFake(0))
}

func sig(symbol string, px float64) types.Signal {
	return types.Signal{
		ID:     "sig-1",
		Symbol: symbol,
		Side:   types.Buy,
		RefPx:  px,
	}
}

func TestCheckAcceptsWithinBounds(t *testing.T) {
	t.Parallel()

	g := newTestGate(Config{PxMin: 1, PxMax: 1e9, MaxNotional: 100000, MaxQPS: 10})
	order, err := g.Check(sig("BTCUSDT", 50000))
	if err != nil {
		t.Fatalf("unexpected reject: %v", err)
	}
	if order.ParentSignalID != "sig-1" {
		t.Errorf("parent signal id = %q, want sig-1", order.ParentSignalID)
	}
	if order.Notional() > 100000+1e-9 {
		t.Errorf("notional %v exceeds cap", order.Notional())
	}
}

func TestCheckRejectsUnknownSymbol(t *testing.T) {
	t.Parallel()

	g := newTestGate(Config{PxMin: 1, PxMax: 1e9, MaxNotional: 100000, MaxQPS: 10})
	_, err := g.Check(sig("ETHUSDT", 2000))

	var rej Reject
	if !errors.As(err, &rej) || rej.Reason != ReasonSymbol {
		t.Fatalf("got %v, want SYMBOL reject", err)
	}
}

// S3: price band rejection.
func TestCheckPriceBand(t *testing.T) {
	t.Parallel()

	g := newTestGate(Config{PxMin: 1000, PxMax: 2000, MaxNotional: 1e9, MaxQPS: 10})
	_, err := g.Check(sig("BTCUSDT", 500))

	var rej Reject
	if !errors.As(err, &rej) || rej.Reason != ReasonPriceBand {
		t.Fatalf("got %v, want PRICE_BAND reject", err)
	}
}

// Boundary: ref_px == PX_MIN accepted, just below rejected.
func TestPriceBandBoundary(t *testing.T) {
	t.Parallel()

	g := newTestGate(Config{PxMin: 1000, PxMax: 2000, MaxNotional: 1e9, MaxQPS: 1000})
	if _, err := g.Check(sig("BTCUSDT", 1000)); err != nil {
		t.Errorf("ref_px == PX_MIN should be accepted, got %v", err)
	}

	g2 := newTestGate(Config{PxMin: 1000, PxMax: 2000, MaxNotional: 1e9, MaxQPS: 1000})
	_, err := g2.Check(sig("BTCUSDT", 999.999))
	var rej Reject
	if !errors.As(err, &rej) || rej.Reason != ReasonPriceBand {
		t.Errorf("ref_px just below PX_MIN should be rejected, got %v", err)
	}
}

// S2: throttle — exactly MAX_QPS orders succeed out of a burst, rest THROTTLED.
func TestCheckThrottle(t *testing.T) {
	t.Parallel()

	g := newTestGate(Config{PxMin: 1, PxMax: 1e9, MaxNotional: 100000, MaxQPS: 10})

	accepted, rejected := 0, 0
	for i := 0; i < 100; i++ {
		_, err := g.Check(sig("BTCUSDT", 50000))
		if err == nil {
			accepted++
			continue
		}
		var rej Reject
		if errors.As(err, &rej) && rej.Reason == ReasonThrottled {
			rejected++
		}
	}

	if accepted != 10 {
		t.Errorf("accepted = %d, want 10", accepted)
	}
	if rejected != 90 {
		t.Errorf("rejected = %d, want 90", rejected)
	}
}

func TestCheckSizingRejectsBelowMinLot(t *testing.T) {
	t.Parallel()

	g := newTestGate(Config{
		PxMin: 1, PxMax: 1e9, MaxNotional: 10, MinLot: 1, MaxQPS: 10,
	})
	// qty = 10/50000 = 0.0002, far below MinLot of 1.
	_, err := g.Check(sig("BTCUSDT", 50000))

	var rej Reject
	if !errors.As(err, &rej) || rej.Reason != ReasonSizing {
		t.Fatalf("got %v, want SIZING reject", err)
	}
}
