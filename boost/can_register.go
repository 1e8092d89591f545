package boost

import (
	"context"
	"fmt"
	"sync"

	"go.einride.tech/can"

	"boost-regulator-core/regulator"
	"boost-regulator-core/utils"
)

const SignalCompareCounts = "compare_counts"

// CANRegister is a compare register whose value is mirrored to a PWM
// command frame. Writes only touch the local copy; Flush transmits it.
type CANRegister struct {
	local *regulator.MemRegister
	cmap  *utils.CANMap
	frame string
	w     utils.CANWriter

	mu    sync.Mutex
	sent  int
	dirty bool
}

func NewCANRegister(cmap *utils.CANMap, frameName string, w utils.CANWriter) (*CANRegister, error) {
	fd, err := cmap.FrameByName(frameName)
	if err != nil {
		return nil, err
	}
	if _, ok := fd.Signal(SignalCompareCounts); !ok {
		return nil, fmt.Errorf("register frame %s lacks signal %s", fd.Name, SignalCompareCounts)
	}
	return &CANRegister{
		local: regulator.NewMemRegister(0),
		cmap:  cmap,
		frame: fd.Name,
		w:     w,
		sent:  -1,
	}, nil
}

func (r *CANRegister) Read() int { return r.local.Read() }

func (r *CANRegister) Write(v int) {
	r.local.Write(v)
	r.markDirty()
}

func (r *CANRegister) Increment() {
	r.local.Increment()
	r.markDirty()
}

func (r *CANRegister) Decrement() {
	r.local.Decrement()
	r.markDirty()
}

func (r *CANRegister) markDirty() {
	r.mu.Lock()
	r.dirty = true
	r.mu.Unlock()
}

// Frame encodes the current register value.
func (r *CANRegister) Frame() (can.Frame, error) {
	return r.cmap.EncodeEinrideFrame(r.frame, map[string]float64{
		SignalCompareCounts: float64(r.local.Read()),
	})
}

// Flush transmits the register value if it changed since the last
// successful flush.
func (r *CANRegister) Flush(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	v := r.local.Read()
	if !r.dirty || v == r.sent {
		r.dirty = false
		return nil
	}
	f, err := r.Frame()
	if err != nil {
		return err
	}
	if err := r.w.WriteFrame(ctx, f); err != nil {
		return err
	}
	r.sent = v
	r.dirty = false
	return nil
}
