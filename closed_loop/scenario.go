package main

import (
	"encoding/json"
	"fmt"
	"os"

	"boost-regulator-core/boost"
)

// Scenario drives the simulated boost stage over time.
type Scenario struct {
	Meta     ScenarioMeta      `json:"meta"`
	Timing   ScenarioTiming    `json:"timing"`
	Plant    boost.PlantConfig `json:"plant"`
	Segments []ScenarioSegment `json:"segments"`
}

type ScenarioMeta struct {
	Name        string `json:"name"`
	Version     int    `json:"version"`
	Description string `json:"description"`
}

type ScenarioTiming struct {
	DtS          float64 `json:"dt_s"`
	DurationS    float64 `json:"duration_s"`
	LogHz        float64 `json:"log_hz"`
	RealTimeMode bool    `json:"real_time_mode"`
}

// ScenarioSegment overrides plant inputs for t in [t0, t1). A negative
// t1 extends to the end of the run. Unset fields keep the plant defaults.
type ScenarioSegment struct {
	T0             float64  `json:"t0"`
	T1             float64  `json:"t1"`
	SourcePresent  *bool    `json:"source_present,omitempty"`
	InputVoltageV  *float64 `json:"input_voltage_v,omitempty"`
	TargetVoltageV *float64 `json:"target_voltage_v,omitempty"`
	Comment        string   `json:"comment,omitempty"`
}

// PlantCmd is the plant input and target in effect at one instant.
type PlantCmd struct {
	SourcePresent bool
	InputVoltage  float64
	TargetVoltage float64
}

func LoadScenario(path string) (Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Scenario{}, fmt.Errorf("read file: %w", err)
	}

	var scen Scenario
	if err := json.Unmarshal(data, &scen); err != nil {
		return Scenario{}, fmt.Errorf("unmarshal: %w", err)
	}
	if err := scen.Validate(); err != nil {
		return Scenario{}, err
	}
	return scen, nil
}

func (s *Scenario) Validate() error {
	if s.Timing.DurationS <= 0 {
		return fmt.Errorf("invalid duration_s: %f", s.Timing.DurationS)
	}
	if s.Timing.DtS <= 0 {
		return fmt.Errorf("invalid dt_s: %f", s.Timing.DtS)
	}
	if s.Plant.InputVoltage < 0 || s.Plant.TauS < 0 {
		return fmt.Errorf("invalid plant %+v", s.Plant)
	}
	for i, seg := range s.Segments {
		if seg.T1 >= 0 && seg.T1 <= seg.T0 {
			return fmt.Errorf("segment %d: t1 %.3f not after t0 %.3f", i, seg.T1, seg.T0)
		}
	}
	return nil
}

// DefaultScenario is a 5 V input held for ten seconds.
func DefaultScenario(dtS float64) Scenario {
	return Scenario{
		Meta:   ScenarioMeta{Name: "default", Version: 1, Description: "5 V input, constant target"},
		Timing: ScenarioTiming{DtS: dtS, DurationS: 10, LogHz: 1},
		Plant:  boost.PlantConfig{InputVoltage: 5, TauS: 0.005},
	}
}

// EvalPlantCmd evaluates the scenario at time t. The first matching
// segment wins.
func EvalPlantCmd(scen *Scenario, t, target float64) PlantCmd {
	cmd := PlantCmd{
		SourcePresent: scen.Plant.InputVoltage > 0,
		InputVoltage:  scen.Plant.InputVoltage,
		TargetVoltage: target,
	}

	for _, seg := range scen.Segments {
		t1 := seg.T1
		if t1 < 0 {
			t1 = scen.Timing.DurationS
		}
		if t >= seg.T0 && t < t1 {
			if seg.InputVoltageV != nil {
				cmd.InputVoltage = *seg.InputVoltageV
				cmd.SourcePresent = cmd.InputVoltage > 0
			}
			if seg.SourcePresent != nil {
				cmd.SourcePresent = *seg.SourcePresent
			}
			if seg.TargetVoltageV != nil {
				cmd.TargetVoltage = *seg.TargetVoltageV
			}
			break
		}
	}
	return cmd
}
