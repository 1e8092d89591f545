package regulator

import (
	"math"
	"strings"
	"testing"
)

func TestClassifyBoundaries(t *testing.T) {
	th := DefaultThresholds()
	tests := []struct {
		err  float64
		want State
	}{
		{1.0, ErrorPositive},
		{-1.0, ErrorNegative},
		{5.0, ErrorPositive},
		{-5.0, ErrorNegative},
		{0.99, AdjustingPositive},
		{0.5, AdjustingPositive},
		{-0.5, AdjustingNegative},
		{0.49, StabilizingPositive},
		{0.25, StabilizingPositive},
		{-0.25, StabilizingNegative},
		{0.24, Steady},
		{-0.24, Steady},
		{0, Steady},
		{math.Inf(1), ErrorPositive},
		{math.Inf(-1), ErrorNegative},
	}
	for _, tt := range tests {
		if got := Classify(tt.err, true, th); got != tt.want {
			t.Errorf("Classify(%v, true) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestClassifyNoSourceIsIdle(t *testing.T) {
	th := DefaultThresholds()
	for _, e := range []float64{-10, -1, -0.3, 0, 0.3, 1, 10, math.NaN()} {
		if got := Classify(e, false, th); got != Idle {
			t.Errorf("Classify(%v, false) = %v, want IDLE", e, got)
		}
	}
	if got := Classify(math.NaN(), true, th); got != Idle {
		t.Errorf("Classify(NaN, true) = %v, want IDLE", got)
	}
}

func TestClassifySeverityIsMonotonic(t *testing.T) {
	th := DefaultThresholds()
	for _, sign := range []float64{1, -1} {
		prev := 0
		for i := 0; i <= 300; i++ {
			mag := float64(i) / 100
			s := Classify(sign*mag, true, th)
			sev := s.Severity()
			if sev < prev {
				t.Fatalf("|error|=%.2f sign=%v: severity dropped %d -> %d (%v)", mag, sign, prev, sev, s)
			}
			if sev > prev+1 {
				t.Fatalf("|error|=%.2f sign=%v: severity skipped %d -> %d (%v)", mag, sign, prev, sev, s)
			}
			if sev > 0 && (sign > 0) != (s.Step(th) < 0) {
				t.Fatalf("|error|=%.2f sign=%v: %v has wrong direction", mag, sign, s)
			}
			prev = sev
		}
		if prev != 3 {
			t.Fatalf("sign=%v: never reached error tier", sign)
		}
	}
}

func TestClassifyCustomThresholds(t *testing.T) {
	th := Thresholds{Error: 2, Adjust: 1, Stabilize: 0.1}
	if got := Classify(1.5, true, th); got != AdjustingPositive {
		t.Errorf("got %v, want ADJUSTING_POSITIVE", got)
	}
	if got := Classify(-0.1, true, th); got != StabilizingNegative {
		t.Errorf("got %v, want STABILIZING_NEGATIVE", got)
	}
}

func TestStateNames(t *testing.T) {
	seen := map[string]bool{}
	for _, s := range AllStates {
		name := s.String()
		if seen[name] || strings.HasPrefix(name, "State(") {
			t.Errorf("bad or duplicate name %q", name)
		}
		seen[name] = true
	}
	if Steady.String() != "STEADY" || ErrorNegative.String() != "ERROR_NEGATIVE" {
		t.Errorf("unexpected names %s, %s", Steady, ErrorNegative)
	}
	if State(42).String() != "State(42)" {
		t.Errorf("unexpected name for out-of-range state: %s", State(42))
	}
}

func TestThresholdsValidate(t *testing.T) {
	if err := DefaultThresholds().Validate(); err != nil {
		t.Fatalf("default thresholds invalid: %v", err)
	}
	bad := []Thresholds{
		{Error: 0.5, Adjust: 1, Stabilize: 0.25},
		{Error: 1, Adjust: 0.5, Stabilize: 0},
		{Error: math.NaN(), Adjust: 0.5, Stabilize: 0.25},
		{Error: 1, Adjust: 0.25, Stabilize: 0.25},
	}
	for _, th := range bad {
		if err := th.Validate(); err == nil {
			t.Errorf("Validate(%+v) = nil, want error", th)
		}
	}
}
