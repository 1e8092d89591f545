package regulator

import (
	"fmt"
	"math"
)

// State is the severity tier the loop is currently in.
type State int

const (
	Idle State = iota
	ErrorNegative
	ErrorPositive
	AdjustingNegative
	AdjustingPositive
	StabilizingNegative
	StabilizingPositive
	Steady
)

// AllStates lists every state in declaration order.
var AllStates = []State{
	Idle,
	ErrorNegative,
	ErrorPositive,
	AdjustingNegative,
	AdjustingPositive,
	StabilizingNegative,
	StabilizingPositive,
	Steady,
}

var stateNames = [...]string{
	Idle:                "IDLE",
	ErrorNegative:       "ERROR_NEGATIVE",
	ErrorPositive:       "ERROR_POSITIVE",
	AdjustingNegative:   "ADJUSTING_NEGATIVE",
	AdjustingPositive:   "ADJUSTING_POSITIVE",
	StabilizingNegative: "STABILIZING_NEGATIVE",
	StabilizingPositive: "STABILIZING_POSITIVE",
	Steady:              "STEADY",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// Severity ranks the tiers: Steady 0, Stabilizing 1, Adjusting 2, Error 3.
// Idle is outside the ordering and reports -1.
func (s State) Severity() int {
	switch s {
	case Steady:
		return 0
	case StabilizingNegative, StabilizingPositive:
		return 1
	case AdjustingNegative, AdjustingPositive:
		return 2
	case ErrorNegative, ErrorPositive:
		return 3
	default:
		return -1
	}
}

// Step returns the signed duty-cycle correction for the state.
// Output below target (negative error) raises the duty cycle.
func (s State) Step(th Thresholds) float64 {
	switch s {
	case ErrorNegative:
		return th.Error
	case ErrorPositive:
		return -th.Error
	case AdjustingNegative:
		return th.Adjust
	case AdjustingPositive:
		return -th.Adjust
	case StabilizingNegative:
		return th.Stabilize
	case StabilizingPositive:
		return -th.Stabilize
	default:
		return 0
	}
}

// Classify maps a voltage error (measured - target) to a state.
// Bands are checked from the widest inward and boundary values belong
// to the outer tier. A missing source always yields Idle, as does a NaN
// error.
func Classify(err float64, sourcePresent bool, th Thresholds) State {
	if !sourcePresent || math.IsNaN(err) {
		return Idle
	}
	switch {
	case err <= -th.Error:
		return ErrorNegative
	case err >= th.Error:
		return ErrorPositive
	case err <= -th.Adjust:
		return AdjustingNegative
	case err >= th.Adjust:
		return AdjustingPositive
	case err <= -th.Stabilize:
		return StabilizingNegative
	case err >= th.Stabilize:
		return StabilizingPositive
	}
	return Steady
}
