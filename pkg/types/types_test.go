package types

import "testing"

func TestSideSign(t *testing.T) {
	t.Parallel()

	if got := Buy.Sign(); got != 1 {
		t.Errorf("Buy.Sign() = %v, want 1", got)
	}
	if got := Sell.Sign(); got != -1 {
		t.Errorf("Sell.Sign() = %v, want -1", got)
	}
}

func TestExecStatusTerminal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status ExecStatus
		want   bool
	}{
		{Ack, false},
		{Partial, false},
		{Filled, true},
		{Rejected, true},
		{Canceled, true},
	}

	for _, tt := range tests {
		if got := tt.status.Terminal(); got != tt.want {
			t.Errorf("%s.Terminal() = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestNormalizeSymbol(t *testing.T) {
	t.Parallel()

	if got := NormalizeSymbol(" btcusdt "); got != "BTCUSDT" {
		t.Errorf("NormalizeSymbol = %q, want BTCUSDT", got)
	}
}

func TestMdTickMid(t *testing.T) {
	t.Parallel()

	tick := MdTick{BidPx: 99, AskPx: 101}
	if got := tick.Mid(); got != 100 {
		t.Errorf("Mid() = %v, want 100", got)
	}
}

func TestPositionRecompute(t *testing.T) {
	t.Parallel()

	p := Position{Qty: 2, AvgEntryPx: 100, LastMarkPx: 110}
	p.Recompute()
	if p.UnrealizedPnL != 20 {
		t.Errorf("UnrealizedPnL = %v, want 20", p.UnrealizedPnL)
	}

	flat := Position{Qty: 0, AvgEntryPx: 100, LastMarkPx: 110, UnrealizedPnL: 999}
	flat.Recompute()
	if flat.UnrealizedPnL != 0 {
		t.Errorf("UnrealizedPnL = %v, want 0 for flat position", flat.UnrealizedPnL)
	}
}
