package network

import (
	"math"
	"testing"
)

func TestNetworkValueCalculator(t *testing.T) {
	c := NewNetworkValueCalculator(DefaultConfig())

	if v := c.Calculate(0); v != (NetworkValue{}) {
		t.Errorf("Calculate(0) = %+v, want zero value", v)
	}

	v := c.Calculate(10)
	if v.Connections != 45 {
		t.Errorf("Connections = %v, want 45", v.Connections)
	}
	if math.Abs(v.MetcalfeValue-0.45) > 1e-9 {
		t.Errorf("MetcalfeValue = %v, want 0.45", v.MetcalfeValue)
	}
	if math.Abs(v.ValuePerUser-0.045) > 1e-9 {
		t.Errorf("ValuePerUser = %v, want 0.045", v.ValuePerUser)
	}
	wantOdlyzko := 10 * math.Log(10) * 0.01
	if math.Abs(v.OdlyzkoValue-wantOdlyzko) > 1e-9 {
		t.Errorf("OdlyzkoValue = %v, want %v", v.OdlyzkoValue, wantOdlyzko)
	}
	if got := c.MarginalValue(10); math.Abs(got-0.1) > 1e-9 {
		t.Errorf("MarginalValue(10) = %v, want 0.1", got)
	}
}

func TestChurnReduction(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EnableNetworkEffects = false
	c := NewChurnReduction(cfg)

	if got := c.Reduction(2, 1000); math.Abs(got-0.1) > 1e-9 {
		t.Errorf("Reduction(2) = %v, want 0.1", got)
	}
	if got := c.Reduction(50, 1000); got != cfg.MaxChurnReduction {
		t.Errorf("Reduction(50) = %v, want cap %v", got, cfg.MaxChurnReduction)
	}
	if got := c.Reduction(-3, 0); got != 0 {
		t.Errorf("Reduction(-3) = %v, want 0", got)
	}
	if got := c.AdjustedChurnRate(2, 0); math.Abs(got-0.018) > 1e-9 {
		t.Errorf("AdjustedChurnRate(2) = %v, want 0.018", got)
	}
}

func TestChurnReduction_NetworkEffects(t *testing.T) {
	c := NewChurnReduction(DefaultConfig())
	// log10(10^6)/5 saturates at 1 -> 0.1 from social proof alone.
	if got := c.Reduction(0, 1_000_000); math.Abs(got-0.1) > 1e-9 {
		t.Errorf("Reduction(0, 1e6) = %v, want 0.1", got)
	}
	if c.Reduction(1, 1000) <= c.Reduction(1, 0) {
		t.Error("expected a larger network to reduce churn further")
	}
}

func TestSequenceSource(t *testing.T) {
	s := NewSequenceSource(0.1, 0.9)
	want := []float64{0.1, 0.9, 0.1}
	for i, w := range want {
		if got := s.Float64(); got != w {
			t.Errorf("draw %d = %v, want %v", i, got, w)
		}
	}
	if got := NewSequenceSource().Float64(); got != 0 {
		t.Errorf("empty sequence = %v, want 0", got)
	}
}

func TestSeededSource_Reproducible(t *testing.T) {
	a := NewSeededSource(42)
	b := NewSeededSource(42)
	for i := 0; i < 10; i++ {
		x, y := a.Float64(), b.Float64()
		if x != y {
			t.Fatalf("draw %d differs: %v vs %v", i, x, y)
		}
		if x < 0 || x >= 1 {
			t.Fatalf("draw %d out of range: %v", i, x)
		}
	}
}
