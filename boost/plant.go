// Package boost provides the collaborators the regulator consumes: output
// voltage samples, source presence, and the compare register handle.
package boost

import (
	"sync"

	"boost-regulator-core/regulator"
)

// maxConversionDuty caps the duty cycle the ideal transfer function sees,
// since Vin/(1-D) diverges as D approaches 1.
const maxConversionDuty = 0.95

// PlantConfig describes a simulated boost stage.
type PlantConfig struct {
	InputVoltage float64 `json:"input_voltage_v"`
	TauS         float64 `json:"tau_s"` // output filter time constant, 0 = instant
}

// Plant is an ideal boost converter with a first-order output filter,
// driven by the duty cycle encoded in a compare register.
type Plant struct {
	mu      sync.Mutex
	reg     regulator.Register
	vin     float64
	tau     float64
	present bool
	vout    float64
}

func NewPlant(cfg PlantConfig, reg regulator.Register) *Plant {
	return &Plant{
		reg:     reg,
		vin:     cfg.InputVoltage,
		tau:     cfg.TauS,
		present: cfg.InputVoltage > 0,
	}
}

// SetInput changes the input rail and whether it is connected.
func (p *Plant) SetInput(vin float64, present bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.vin = vin
	p.present = present
}

// SteadyStateVoltage is the output the current register value settles to.
func (p *Plant) SteadyStateVoltage() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.steadyState()
}

func (p *Plant) steadyState() float64 {
	if !p.present {
		return 0
	}
	d := regulator.DutyCycleForCounts(p.reg.Read()) / 100
	if d < 0 {
		d = 0
	}
	if d > maxConversionDuty {
		d = maxConversionDuty
	}
	return p.vin / (1 - d)
}

// Step advances the output filter by dt seconds.
func (p *Plant) Step(dt float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	target := p.steadyState()
	if p.tau <= 0 || dt <= 0 {
		p.vout = target
		return
	}
	p.vout += (target - p.vout) * dt / (p.tau + dt)
}

func (p *Plant) MeasureBoostVoltage() (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.vout, nil
}

func (p *Plant) SourcePresent() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.present, nil
}
