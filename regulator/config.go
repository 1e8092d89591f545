package regulator

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidConfig is returned by Validate for unusable settings.
var ErrInvalidConfig = errors.New("invalid regulator config")

// Thresholds holds the half-widths (volts) of the nested error bands.
// The same values are used as duty-cycle step sizes for each tier.
type Thresholds struct {
	Error     float64 `json:"error" yaml:"error"`
	Adjust    float64 `json:"adjust" yaml:"adjust"`
	Stabilize float64 `json:"stabilize" yaml:"stabilize"`
}

// DefaultThresholds returns the stock band set {1.0, 0.5, 0.25}.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Error:     1.0,
		Adjust:    0.5,
		Stabilize: 0.25,
	}
}

// Validate checks the bands are positive and strictly nested.
func (t Thresholds) Validate() error {
	for _, v := range []float64{t.Error, t.Adjust, t.Stabilize} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
			return fmt.Errorf("%w: thresholds must be positive and finite, got %+v", ErrInvalidConfig, t)
		}
	}
	if !(t.Error > t.Adjust && t.Adjust > t.Stabilize) {
		return fmt.Errorf("%w: thresholds must satisfy error > adjust > stabilize, got %+v", ErrInvalidConfig, t)
	}
	return nil
}

// Config holds the regulation parameters a driver supplies.
type Config struct {
	TargetVoltage float64    `json:"target_voltage" yaml:"target_voltage"`
	MaxDutyCycle  float64    `json:"max_duty_cycle" yaml:"max_duty_cycle"`
	Thresholds    Thresholds `json:"thresholds" yaml:"thresholds"`
}

// Validate rejects configs the loop cannot run with.
func (c Config) Validate() error {
	if math.IsNaN(c.TargetVoltage) || math.IsInf(c.TargetVoltage, 0) {
		return fmt.Errorf("%w: target voltage %v is not finite", ErrInvalidConfig, c.TargetVoltage)
	}
	if math.IsNaN(c.MaxDutyCycle) || c.MaxDutyCycle <= 0 || c.MaxDutyCycle > 100 {
		return fmt.Errorf("%w: max duty cycle %v outside (0, 100]", ErrInvalidConfig, c.MaxDutyCycle)
	}
	return c.Thresholds.Validate()
}
