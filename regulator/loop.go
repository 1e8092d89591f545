// Package regulator holds the tiered boost-voltage regulator: the
// duty-cycle register mapping, the error classifier, and the per-tick loop.
package regulator

import (
	"errors"
	"fmt"
	"math"
	"sync"
)

// VoltageSource returns the current boost output sample in volts.
type VoltageSource interface {
	MeasureBoostVoltage() (float64, error)
}

// SourceDetector reports whether input power is connected.
type SourceDetector interface {
	SourcePresent() (bool, error)
}

// StateSink receives the active state once per tick.
type StateSink interface {
	RegulationState(s State)
}

// Context is the state carried between ticks. The zero value is idle at 0 %.
type Context struct {
	DutyCycle float64
	State     State
}

// TickResult describes what one tick measured and applied.
type TickResult struct {
	Measured  float64
	Error     float64
	State     State
	Unclamped float64 // duty cycle before clamping
	DutyCycle float64 // duty cycle applied and stored
	Counts    int     // register value written
	Clamped   bool
	Fault     error // sampling failure that forced Idle, if any
}

// Loop runs the tiered regulation, one Tick per control period.
type Loop struct {
	mu sync.Mutex

	cfg    Config
	volts  VoltageSource
	source SourceDetector
	sink   StateSink

	ctx Context
}

// NewLoop validates cfg and returns a loop starting idle at 0 %.
// sink may be nil.
func NewLoop(cfg Config, volts VoltageSource, source SourceDetector, sink StateSink) (*Loop, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if volts == nil || source == nil {
		return nil, errors.New("regulator loop needs a voltage source and a source detector")
	}
	return &Loop{
		cfg:    cfg,
		volts:  volts,
		source: source,
		sink:   sink,
	}, nil
}

// Config returns the loop's configuration.
func (l *Loop) Config() Config { return l.cfg }

// Snapshot returns the context committed by the last tick.
func (l *Loop) Snapshot() Context {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ctx
}

// Reset puts the loop back to idle at 0 %. The register is left alone;
// the next tick overwrites it.
func (l *Loop) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ctx = Context{}
}

// NextDutyCycle applies the state's step to the current duty cycle.
// Idle always yields 0.
func NextDutyCycle(s State, current float64, th Thresholds) float64 {
	if s == Idle {
		return 0
	}
	return current + s.Step(th)
}

// ClampDutyCycle bounds dc to [0, max]. NaN maps to 0.
func ClampDutyCycle(dc, max float64) float64 {
	if math.IsNaN(dc) || dc < 0 {
		return 0
	}
	if dc > max {
		return max
	}
	return dc
}

// Tick runs one regulation step against target and reg. A failed or
// non-finite sample, or a failed presence check, is treated as no source.
// The returned error is only set when the register rejected the value;
// the clamped value is still applied and committed in that case.
func (l *Loop) Tick(target float64, reg Register) (TickResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	th := l.cfg.Thresholds
	res := TickResult{}

	measured, err := l.volts.MeasureBoostVoltage()
	present := true
	switch {
	case err != nil:
		res.Fault = fmt.Errorf("measure boost voltage: %w", err)
		present = false
	case math.IsNaN(measured) || math.IsInf(measured, 0):
		res.Fault = fmt.Errorf("measure boost voltage: non-finite sample %v", measured)
		present = false
	}
	if present {
		p, err := l.source.SourcePresent()
		if err != nil {
			res.Fault = fmt.Errorf("source present: %w", err)
		}
		present = p && err == nil
	}

	res.Measured = measured
	res.Error = measured - target
	res.State = Classify(res.Error, present, th)
	res.Unclamped = NextDutyCycle(res.State, l.ctx.DutyCycle, th)
	res.DutyCycle = ClampDutyCycle(res.Unclamped, l.cfg.MaxDutyCycle)
	res.Clamped = res.DutyCycle != res.Unclamped

	counts, err := NewDutyCycleRegister(reg).SetAbsolute(res.DutyCycle)
	res.Counts = counts

	l.ctx = Context{DutyCycle: res.DutyCycle, State: res.State}
	if l.sink != nil {
		l.sink.RegulationState(res.State)
	}
	if err != nil {
		return res, fmt.Errorf("apply duty cycle: %w", err)
	}
	return res, nil
}
