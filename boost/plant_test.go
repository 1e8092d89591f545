package boost

import (
	"math"
	"testing"

	"boost-regulator-core/regulator"
)

func TestPlantTransfer(t *testing.T) {
	reg := regulator.NewMemRegister(0)
	p := NewPlant(PlantConfig{InputVoltage: 5}, reg)

	p.Step(0.01)
	if v, _ := p.MeasureBoostVoltage(); v != 5 {
		t.Errorf("0%% duty: vout = %v, want 5", v)
	}

	reg.Write(regulator.CountsForDutyCycle(50))
	p.Step(0.01)
	if v, _ := p.MeasureBoostVoltage(); math.Abs(v-10) > 1e-9 {
		t.Errorf("50%% duty: vout = %v, want 10", v)
	}

	p.SetInput(5, false)
	p.Step(0.01)
	if v, _ := p.MeasureBoostVoltage(); v != 0 {
		t.Errorf("no source: vout = %v, want 0", v)
	}
	if ok, _ := p.SourcePresent(); ok {
		t.Error("source still reported present")
	}
}

func TestPlantFilterLags(t *testing.T) {
	reg := regulator.NewMemRegister(regulator.CountsForDutyCycle(50))
	p := NewPlant(PlantConfig{InputVoltage: 5, TauS: 0.09}, reg)

	p.Step(0.01)
	v, _ := p.MeasureBoostVoltage()
	if math.Abs(v-1) > 1e-9 {
		t.Fatalf("first step vout = %v, want 1", v)
	}
	for i := 0; i < 200; i++ {
		p.Step(0.01)
	}
	if v, _ := p.MeasureBoostVoltage(); math.Abs(v-10) > 1e-3 {
		t.Errorf("settled vout = %v, want 10", v)
	}
}

func TestRegulatorConvergesOnPlant(t *testing.T) {
	for _, tau := range []float64{0, 0.005} {
		reg := regulator.NewMemRegister(0)
		plant := NewPlant(PlantConfig{InputVoltage: 5, TauS: tau}, reg)
		cfg := regulator.Config{TargetVoltage: 12, MaxDutyCycle: 80, Thresholds: regulator.DefaultThresholds()}
		loop, err := regulator.NewLoop(cfg, plant, plant, nil)
		if err != nil {
			t.Fatal(err)
		}

		var res regulator.TickResult
		for i := 0; i < 2000; i++ {
			plant.Step(0.01)
			if res, err = loop.Tick(cfg.TargetVoltage, reg); err != nil {
				t.Fatal(err)
			}
		}
		if res.State != regulator.Steady {
			t.Errorf("tau=%v: final state %v (vout=%.3f dc=%.3f)", tau, res.State, res.Measured, res.DutyCycle)
		}
		if math.Abs(res.Error) >= cfg.Thresholds.Stabilize {
			t.Errorf("tau=%v: final error %.3f outside steady band", tau, res.Error)
		}
	}
}

func TestRegulatorIdlesWhenSourceDrops(t *testing.T) {
	reg := regulator.NewMemRegister(0)
	plant := NewPlant(PlantConfig{InputVoltage: 5}, reg)
	cfg := regulator.Config{TargetVoltage: 12, MaxDutyCycle: 80, Thresholds: regulator.DefaultThresholds()}
	loop, err := regulator.NewLoop(cfg, plant, plant, nil)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 50; i++ {
		plant.Step(0.01)
		loop.Tick(12, reg)
	}
	if reg.Read() == 0 {
		t.Fatal("regulator never raised the duty cycle")
	}

	plant.SetInput(0, false)
	plant.Step(0.01)
	res, _ := loop.Tick(12, reg)
	if res.State != regulator.Idle || reg.Read() != 0 {
		t.Errorf("after source loss: state=%v reg=%d", res.State, reg.Read())
	}
}
