package feed

import (
	"context"
	"testing"
	"time"

	"tradingengine/internal/bus"
	"tradingengine/internal/clock"
	"tradingengine/internal/metrics"
)

func TestMockFeedEmitsValidTicksWithIncreasingSeq(t *testing.T) {
	t.Parallel()

	mdBus := bus.NewMdBus(64)
	sub := mdBus.Subscribe("BTCUSDT")

	f := NewMockFeed(MockConfig{
		Symbols: []MockSymbolConfig{
			{Symbol: "btcusdt", SeedPx: 50000, SpreadBps: 2, RatePerSec: 500},
		},
	}, clock.Real{}, metrics.New())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	f.Run(ctx, mdBus)

	var lastSeq uint64
	count := 0
	for {
		select {
		case tick := <-sub:
			if tick.BidPx > tick.AskPx {
				t.Fatalf("bid %v > ask %v", tick.BidPx, tick.AskPx)
			}
			if tick.Seq <= lastSeq {
				t.Fatalf("seq did not increase: got %d after %d", tick.Seq, lastSeq)
			}
			lastSeq = tick.Seq
			count++
		default:
			if count == 0 {
				t.Fatal("expected at least one tick")
			}
			return
		}
	}
}

func TestExchangeFeedDispatchParsesBookTicker(t *testing.T) {
	t.Parallel()

	mdBus := bus.NewMdBus(8)
	sub := mdBus.Subscribe("BTCUSDT")

	f := NewExchangeFeed(ExchangeConfig{
		Venue:   "binance",
		Symbols: []string{"BTCUSDT"},
	}, clock.NewFake(1000), metrics.New(), discardLogger())

	raw := []byte(`{"s":"BTCUSDT","b":"50000.10","B":"1.5","a":"50000.20","A":"2.0"}`)
	f.dispatch(raw, mdBus)

	select {
	case tick := <-sub:
		if tick.BidPx != 50000.10 || tick.AskPx != 50000.20 {
			t.Errorf("got bid=%v ask=%v, want 50000.10/50000.20", tick.BidPx, tick.AskPx)
		}
		if tick.Seq != 1 {
			t.Errorf("seq = %d, want 1 for first dispatched tick", tick.Seq)
		}
	default:
		t.Fatal("expected a tick to be published")
	}
}

func TestExchangeFeedDispatchRejectsCrossedBook(t *testing.T) {
	t.Parallel()

	mdBus := bus.NewMdBus(8)
	sub := mdBus.Subscribe("BTCUSDT")

	f := NewExchangeFeed(ExchangeConfig{Venue: "binance"}, clock.NewFake(0), metrics.New(), discardLogger())

	raw := []byte(`{"s":"BTCUSDT","b":"100","B":"1","a":"90","A":"1"}`)
	f.dispatch(raw, mdBus)

	select {
	case <-sub:
		t.Fatal("expected crossed book to be dropped")
	default:
	}
}

func TestExchangeFeedSeqNeverResetsAcrossCalls(t *testing.T) {
	t.Parallel()

	mdBus := bus.NewMdBus(8)
	sub := mdBus.Subscribe("BTCUSDT")
	f := NewExchangeFeed(ExchangeConfig{Venue: "binance"}, clock.NewFake(0), metrics.New(), discardLogger())

	raw := []byte(`{"s":"BTCUSDT","b":"100","B":"1","a":"101","A":"1"}`)
	for i := 0; i < 3; i++ {
		f.dispatch(raw, mdBus)
	}

	var last uint64
	for i := 0; i < 3; i++ {
		tick := <-sub
		if tick.Seq <= last {
			t.Fatalf("seq %d did not increase past %d", tick.Seq, last)
		}
		last = tick.Seq
	}
}
