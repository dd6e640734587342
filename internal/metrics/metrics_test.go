package metrics

import (
	"testing"
)

func TestCountersIncrementIndependently(t *testing.T) {
	t.Parallel()

	m := New()
	m.Tick("BTCUSDT")
	m.Tick("BTCUSDT")
	m.Signal("mean_reversion", "BTCUSDT")
	m.RiskReject("THROTTLED")

	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}

	found := map[string]bool{}
	sums := map[string]float64{}
	for _, fam := range families {
		found[fam.GetName()] = true
		for _, metric := range fam.Metric {
			sums[fam.GetName()] += metric.GetCounter().GetValue()
		}
	}

	for _, want := range []string{"ticks_total", "signals_total", "risk_rejects_total"} {
		if !found[want] {
			t.Errorf("missing metric family %q in registry", want)
		}
	}
	for name, want := range map[string]float64{"ticks_total": 2, "signals_total": 1, "risk_rejects_total": 1} {
		if got := sums[name]; got != want {
			t.Errorf("%s = %v, want %v", name, got, want)
		}
	}
}

func TestGaugesReflectLatestSet(t *testing.T) {
	t.Parallel()

	m := New()
	m.SetInventory("BTCUSDT", "mock", 2.5)
	m.SetInventory("BTCUSDT", "mock", -1.0)

	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}

	for _, fam := range families {
		if fam.GetName() != "inventory_qty" {
			continue
		}
		if len(fam.Metric) != 1 {
			t.Fatalf("expected 1 series, got %d", len(fam.Metric))
		}
		if got := fam.Metric[0].GetGauge().GetValue(); got != -1.0 {
			t.Errorf("inventory_qty = %v, want -1.0 (last write wins)", got)
		}
	}
}
