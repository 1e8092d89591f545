package main

import (
	"math"
	"strings"
	"testing"
	"time"
)

func TestParseConfigUnitLiterals(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
regulator:
  target_voltage: 12V
  max_duty_cycle: 75
  thresholds:
    error: 2
    adjust: 800mV
    stabilize: 200mV
tick: 5ms
`))
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}
	rc := cfg.RegulatorSettings()
	if rc.TargetVoltage != 12 || rc.MaxDutyCycle != 75 {
		t.Errorf("regulator config %+v", rc)
	}
	if rc.Thresholds.Error != 2 || math.Abs(rc.Thresholds.Adjust-0.8) > 1e-9 || math.Abs(rc.Thresholds.Stabilize-0.2) > 1e-9 {
		t.Errorf("thresholds %+v", rc.Thresholds)
	}
	if d, _ := cfg.TickPeriod(); d != 5*time.Millisecond {
		t.Errorf("tick = %s", d)
	}
}

func TestParseConfigDefaults(t *testing.T) {
	cfg, err := ParseConfig([]byte("sense:\n  backend: serial\n"))
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}
	if cfg.Sense.Backend != BackendSerial {
		t.Errorf("backend = %q", cfg.Sense.Backend)
	}
	if cfg.RegulatorSettings().TargetVoltage != 12 || cfg.Tick != "10ms" || cfg.Serial.Baud != 115200 {
		t.Errorf("defaults not applied: %+v", cfg)
	}
	if th := cfg.RegulatorSettings().Thresholds; th.Error != 1 || th.Adjust != 0.5 || th.Stabilize != 0.25 {
		t.Errorf("thresholds = %+v", th)
	}
}

func TestParseConfigKeepsZeroTarget(t *testing.T) {
	cfg, err := ParseConfig([]byte("regulator:\n  target_voltage: 0V\n"))
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}
	if got := cfg.RegulatorSettings().TargetVoltage; got != 0 {
		t.Errorf("target = %v, want explicit 0 kept", got)
	}
}

func TestParseConfigRejects(t *testing.T) {
	tests := map[string]string{
		"bad voltage":      "regulator:\n  target_voltage: twelve\n",
		"bad backend":      "sense:\n  backend: telepathy\n",
		"can disabled":     "sense:\n  backend: can\n",
		"bad tick":         "tick: soon\n",
		"max dc too large": "regulator:\n  max_duty_cycle: 150\n",
		"unordered bands":  "regulator:\n  thresholds: {error: 0.2, adjust: 0.5, stabilize: 0.1}\n",
	}
	for name, doc := range tests {
		if _, err := ParseConfig([]byte(doc)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestDefaultConfigValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(DefaultConfig().CAN.MapPath, "can_map.csv") {
		t.Error("unexpected default CAN map path")
	}
}
