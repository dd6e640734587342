package bus

import (
	"context"
	"testing"
	"time"

	"tradingengine/pkg/types"
)

func TestMdBusDropsOldestPerSymbol(t *testing.T) {
	t.Parallel()

	b := NewMdBus(2)
	sub := b.Subscribe("BTCUSDT")

	b.Publish(types.MdTick{Symbol: "BTCUSDT", Seq: 1})
	b.Publish(types.MdTick{Symbol: "BTCUSDT", Seq: 2})
	b.Publish(types.MdTick{Symbol: "BTCUSDT", Seq: 3}) // queue full, drops seq 1

	first := <-sub
	second := <-sub

	if first.Seq != 2 || second.Seq != 3 {
		t.Errorf("got seqs %d, %d; want 2, 3 (oldest dropped)", first.Seq, second.Seq)
	}
}

func TestMdBusPerSymbolIsolation(t *testing.T) {
	t.Parallel()

	b := NewMdBus(4)
	b.Publish(types.MdTick{Symbol: "AAA", Seq: 1})
	b.Publish(types.MdTick{Symbol: "BBB", Seq: 1})

	a := <-b.Subscribe("AAA")
	if a.Symbol != "AAA" {
		t.Errorf("cross-symbol leak: got %q", a.Symbol)
	}
}

func TestBlockingSendAndCancel(t *testing.T) {
	t.Parallel()

	b := NewBlocking[int](1)
	if err := b.Send(context.Background(), 1); err != nil {
		t.Fatalf("first send: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := b.Send(ctx, 2); err == nil {
		t.Error("expected cancellation error on full blocking send")
	}
}

func TestVenueTrySendCongestion(t *testing.T) {
	t.Parallel()

	v := NewVenue[int](1, 20*time.Millisecond)
	if !v.TrySend(context.Background(), 1) {
		t.Fatal("first send should succeed")
	}
	if v.TrySend(context.Background(), 2) {
		t.Error("second send should time out as congested")
	}
}

func TestDropOldestPublish(t *testing.T) {
	t.Parallel()

	d := NewDropOldest[int](2)
	d.Publish(1)
	d.Publish(2)
	dropped := d.Publish(3)

	if !dropped {
		t.Error("expected drop reported when queue full")
	}

	first := <-d.Chan()
	second := <-d.Chan()
	if first != 2 || second != 3 {
		t.Errorf("got %d, %d; want 2, 3", first, second)
	}
}
