package regulator

import (
	"errors"
	"fmt"
	"math"
	"sync/atomic"
)

const (
	// RegisterFullScale is the compare value that yields 100 % duty cycle.
	RegisterFullScale = 160

	// ScaleFactor converts duty-cycle percent to register counts (160/100).
	ScaleFactor = RegisterFullScale / 100.0

	// Resolution is the duty-cycle change of one register count, in percent.
	Resolution = 100.0 / RegisterFullScale
)

// ErrOutOfRange reports a duty-cycle request the register cannot represent.
var ErrOutOfRange = errors.New("duty cycle out of range")

// Register is the PWM compare register the regulator drives.
type Register interface {
	Read() int
	Write(v int)
	Increment()
	Decrement()
}

// MemRegister is an in-memory Register, safe for concurrent use.
type MemRegister struct {
	v atomic.Int32
}

func NewMemRegister(initial int) *MemRegister {
	r := &MemRegister{}
	r.v.Store(int32(initial))
	return r
}

func (r *MemRegister) Read() int   { return int(r.v.Load()) }
func (r *MemRegister) Write(v int) { r.v.Store(int32(v)) }
func (r *MemRegister) Increment()  { r.v.Add(1) }
func (r *MemRegister) Decrement()  { r.v.Add(-1) }

func (r *MemRegister) String() string { return fmt.Sprintf("reg=%d", r.Read()) }

// CountsForDutyCycle converts a percentage to register counts, rounding
// down to the nearest count. The result is not range checked.
func CountsForDutyCycle(dc float64) int {
	// the epsilon keeps exact multiples of the resolution from landing one
	// count low after float rounding (e.g. 0.7*160/100)
	return int(math.Floor(dc*RegisterFullScale/100 + 1e-9))
}

// DutyCycleForCounts converts register counts back to a percentage.
func DutyCycleForCounts(n int) float64 {
	return float64(n) * Resolution
}

// DutyCycleRegister owns the mapping between duty-cycle percent and the
// compare value the peripheral reads.
type DutyCycleRegister struct {
	reg Register
}

func NewDutyCycleRegister(reg Register) *DutyCycleRegister {
	return &DutyCycleRegister{reg: reg}
}

// Increment raises the duty cycle by one count (0.625 %). Not bounds checked.
func (d *DutyCycleRegister) Increment() { d.reg.Increment() }

// Decrement lowers the duty cycle by one count. Not bounds checked.
func (d *DutyCycleRegister) Decrement() { d.reg.Decrement() }

// DutyCycle reports the register's current value as a percentage.
func (d *DutyCycleRegister) DutyCycle() float64 {
	return DutyCycleForCounts(d.reg.Read())
}

// SetAbsolute replaces the register value with the encoding of dc,
// computed from dc alone so repeated calls are idempotent. Requests
// outside [0, 100] (or non-finite) are clamped, written, and reported
// with ErrOutOfRange. Returns the counts written.
func (d *DutyCycleRegister) SetAbsolute(dc float64) (int, error) {
	var (
		counts int
		err    error
	)
	switch {
	case math.IsNaN(dc):
		counts = 0
		err = fmt.Errorf("%w: %v", ErrOutOfRange, dc)
	case dc < 0:
		counts = 0
		err = fmt.Errorf("%w: %.3f%% below 0%%", ErrOutOfRange, dc)
	case dc > 100:
		counts = RegisterFullScale
		err = fmt.Errorf("%w: %.3f%% above 100%%", ErrOutOfRange, dc)
	default:
		counts = CountsForDutyCycle(dc)
	}
	d.reg.Write(counts)
	return counts, err
}
