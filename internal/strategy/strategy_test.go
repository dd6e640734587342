package strategy

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"tradingengine/pkg/types"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func tick(symbol string, bid, ask float64, ts int64) types.MdTick {
	return types.MdTick{Symbol: symbol, BidPx: bid, AskPx: ask, TsMs: ts}
}

func TestMeanReversionEmitsBuyOnLowExtreme(t *testing.T) {
	s := NewMeanReversion(Config{MeanReversionWindow: 4, EdgeBps: 10, MeanReversionKSigma: 0.01}, discardLogger())

	for i := 0; i < 4; i++ {
		s.OnTick(tick("BTCUSDT", 99.9, 100.1, int64(i)))
	}

	sig, ok := s.OnTick(tick("BTCUSDT", 89.9, 90.1, 5))
	if !ok {
		t.Fatal("expected a signal on sharp downward deviation")
	}
	if sig.Side != types.Buy {
		t.Errorf("side = %v, want BUY", sig.Side)
	}
}

func TestMeanReversionNoSignalBeforeWindowFull(t *testing.T) {
	s := NewMeanReversion(Config{MeanReversionWindow: 10}, discardLogger())
	_, ok := s.OnTick(tick("BTCUSDT", 99, 101, 0))
	if ok {
		t.Error("expected no signal before window fills")
	}
}

func TestMACrossoverEmitsOnSignFlip(t *testing.T) {
	s := NewMACrossover(Config{FastWindow: 2, SlowWindow: 3, EdgeBps: 1}, discardLogger())

	prices := []float64{100, 100, 100, 100, 110, 120}
	var lastSig *types.Signal
	var gotSignal bool
	for i, p := range prices {
		sig, ok := s.OnTick(tick("ETHUSDT", p-0.1, p+0.1, int64(i)))
		if ok {
			lastSig = sig
			gotSignal = true
		}
	}
	if !gotSignal {
		t.Fatal("expected a crossover signal once fast MA pulls above slow MA")
	}
	if lastSig.Side != types.Buy {
		t.Errorf("side = %v, want BUY", lastSig.Side)
	}
}

func TestVolBreakoutEmitsOnNewHigh(t *testing.T) {
	s := NewVolBreakout(Config{BreakoutWindow: 3, EdgeBps: 1, TickSize: 0.001}, discardLogger())

	s.OnTick(tick("BTCUSDT", 99, 101, 0))
	s.OnTick(tick("BTCUSDT", 99, 101, 1))
	s.OnTick(tick("BTCUSDT", 99, 101, 2))

	sig, ok := s.OnTick(tick("BTCUSDT", 119, 121, 3))
	if !ok {
		t.Fatal("expected a breakout signal on a new high")
	}
	if sig.Side != types.Buy {
		t.Errorf("side = %v, want BUY", sig.Side)
	}
}

func TestFlowTrackerWidensCooldownUnderOneSidedFlow(t *testing.T) {
	ft := NewFlowTracker(60*time.Second, 0.5, 5*time.Second, 3.0)
	now := time.Now()

	for i := 0; i < 10; i++ {
		ft.Observe(types.Buy, now.Add(time.Duration(i)*time.Millisecond))
	}

	mult := ft.CooldownMultiplier(now.Add(20 * time.Millisecond))
	if mult <= 1.0 {
		t.Errorf("multiplier = %v, want > 1.0 under one-sided flow", mult)
	}
}

func TestFlowTrackerStaysNormalUnderBalancedFlow(t *testing.T) {
	ft := NewFlowTracker(60*time.Second, 0.9, 5*time.Second, 3.0)
	now := time.Now()

	for i := 0; i < 10; i++ {
		side := types.Buy
		if i%2 == 0 {
			side = types.Sell
		}
		ft.Observe(side, now.Add(time.Duration(i)*time.Second))
	}

	mult := ft.CooldownMultiplier(now.Add(11 * time.Second))
	if mult != 1.0 {
		t.Errorf("multiplier = %v, want 1.0 under balanced flow", mult)
	}
}
