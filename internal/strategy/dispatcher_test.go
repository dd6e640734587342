package strategy

import (
	"context"
	"testing"
	"time"

	"tradingengine/internal/bus"
	"tradingengine/internal/clock"
	"tradingengine/pkg/types"
)

// alwaysSignal emits a BUY signal on every tick, to exercise dispatcher
// cooldown enforcement independent of any real strategy's trigger logic.
type alwaysSignal struct{}

func (alwaysSignal) Kind() types.StrategyKind { return types.MeanReversion }
func (alwaysSignal) OnTick(tick types.MdTick) (*types.Signal, bool) {
	return newSignal(types.MeanReversion, tick.Symbol, types.Buy, tick.AskPx, 0.5, tick.TsMs, "TEST"), true
}

func TestDispatcherEnforcesCooldown(t *testing.T) {
	sigBus := bus.NewBlocking[types.Signal](16)
	fakeClock := clock.NewFake(0)
	d := NewDispatcher(1, 1000, fakeClock, nil, discardLogger(), sigBus)

	mdBus := bus.NewMdBus(16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go d.Run(ctx, mdBus, func() []Strategy { return []Strategy{alwaysSignal{}} }, []string{"BTCUSDT"})

	time.Sleep(20 * time.Millisecond) // let the subscriber goroutines attach
	mdBus.Publish(types.MdTick{Symbol: "BTCUSDT", BidPx: 99, AskPx: 101, TsMs: 0})
	mdBus.Publish(types.MdTick{Symbol: "BTCUSDT", BidPx: 99, AskPx: 101, TsMs: 0})

	var got int
	timeout := time.After(500 * time.Millisecond)
	for got < 1 {
		select {
		case <-sigBus.Chan():
			got++
		case <-timeout:
			t.Fatal("expected at least one signal through the bus")
		}
	}

	select {
	case <-sigBus.Chan():
		t.Fatal("second tick within the cooldown window should not have emitted")
	case <-time.After(50 * time.Millisecond):
	}
}
