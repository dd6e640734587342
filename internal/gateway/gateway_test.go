package gateway

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"tradingengine/internal/metrics"
	"tradingengine/pkg/types"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestMockSubmitEmitsAckThenFilled(t *testing.T) {
	g := NewMock("mock", MockConfig{}, metrics.New(), discardLogger())

	order := types.Order{ID: "o1", Symbol: "BTCUSDT", Side: types.Buy, LimitPx: 100, Qty: 1}
	g.Submit(order)

	var got []types.ExecReport
	timeout := time.After(2 * time.Second)
	for len(got) < 2 {
		select {
		case r := <-g.Reports():
			got = append(got, r)
		case <-timeout:
			t.Fatalf("timed out waiting for reports, got %d", len(got))
		}
	}

	if got[0].Status != types.Ack {
		t.Errorf("first report status = %v, want ACK", got[0].Status)
	}
	if got[1].Status != types.Filled {
		t.Errorf("second report status = %v, want FILLED", got[1].Status)
	}
	if got[1].FilledQty != order.Qty {
		t.Errorf("filled qty = %v, want %v", got[1].FilledQty, order.Qty)
	}
	if got[1].AvgPx != order.LimitPx {
		t.Errorf("avg px = %v, want limit px %v when slip disabled", got[1].AvgPx, order.LimitPx)
	}
}

func TestMockRejectPctRejectsBeforeAck(t *testing.T) {
	g := NewMock("mock", MockConfig{RejectPct: 1.0}, metrics.New(), discardLogger())
	g.Submit(types.Order{ID: "o2", Symbol: "BTCUSDT", Side: types.Sell, LimitPx: 100, Qty: 1})

	select {
	case r := <-g.Reports():
		if r.Status != types.Rejected {
			t.Errorf("status = %v, want REJECTED", r.Status)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reject report")
	}
}

func TestExchangeSignIsDeterministic(t *testing.T) {
	g := NewExchange(ExchangeConfig{Venue: "binance", ApiSecret: "secret"}, metrics.New(), discardLogger())
	a := g.sign("symbol=BTCUSDT&timestamp=1")
	b := g.sign("symbol=BTCUSDT&timestamp=1")
	if a != b {
		t.Error("expected identical signatures for identical input")
	}
	c := g.sign("symbol=ETHUSDT&timestamp=1")
	if a == c {
		t.Error("expected different signatures for different input")
	}
}

func TestExchangeDispatchDedupesByCumulativeQty(t *testing.T) {
	g := NewExchange(ExchangeConfig{Venue: "binance"}, metrics.New(), discardLogger())

	raw := []byte(`{"e":"executionReport","c":"abc","X":"PARTIALLY_FILLED","z":"1.0","L":"100"}`)
	g.dispatchUserDataEvent(raw)
	g.dispatchUserDataEvent(raw) // redelivery, should be dropped

	select {
	case <-g.Reports():
	default:
		t.Fatal("expected first event to be reported")
	}
	select {
	case r := <-g.Reports():
		t.Fatalf("unexpected second report for duplicate event: %+v", r)
	default:
	}
}
