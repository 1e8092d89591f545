package main

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"go.einride.tech/can"

	"boost-regulator-core/regulator"
	"boost-regulator-core/utils"
)

func quietLog() *utils.Logger { return utils.NewLogger(io.Discard, utils.CRITICAL) }

func TestRunnerSimulatesBrownout(t *testing.T) {
	cfg := DefaultConfig()
	var logBuf bytes.Buffer
	r, err := NewRunner(context.Background(), cfg, filepath.Join("scenarios", "brownout_10s.json"), utils.NewLogger(&logBuf, utils.INFO))
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	defer r.Close()

	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !strings.Contains(logBuf.String(), "sense=sim:brownout_10s") {
		t.Errorf("startup log does not name the sample source:\n%s", logBuf.String())
	}

	st := r.Stats()
	if st.Ticks != 1000 {
		t.Errorf("ticks = %d, want 1000", st.Ticks)
	}
	if n := st.PerState[regulator.Idle]; n != 50 {
		t.Errorf("idle ticks = %d, want 50", n)
	}
	if st.Last.State != regulator.Steady {
		t.Errorf("final state = %v (vout=%.3f)", st.Last.State, st.Last.Measured)
	}
	if st.Last.Measured < 14.75 || st.Last.Measured > 15.25 {
		t.Errorf("final vout = %.3f, want 15 +/- 0.25", st.Last.Measured)
	}

	out := st.Render()
	for _, want := range []string{"regulation summary", "STEADY", "IDLE", "ticks=1000"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary lacks %q:\n%s", want, out)
		}
	}
}

func TestRunnerStopsOnCancel(t *testing.T) {
	r, err := NewRunner(context.Background(), DefaultConfig(), "", quietLog())
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := r.Run(ctx); err != context.Canceled {
		t.Errorf("Run = %v, want context.Canceled", err)
	}
}

type captureWriter struct{ frames []can.Frame }

func (w *captureWriter) WriteFrame(_ context.Context, f can.Frame) error {
	w.frames = append(w.frames, f)
	return nil
}

func (w *captureWriter) Close() error { return nil }

func TestPublishStatus(t *testing.T) {
	cmap, err := utils.LoadCANMap(filepath.Join("..", "config", "can", "can_map.csv"))
	if err != nil {
		t.Fatal(err)
	}
	w := &captureWriter{}
	r := &Runner{cfg: DefaultConfig(), log: quietLog(), cmap: cmap, writer: w}

	res := regulator.TickResult{State: regulator.AdjustingNegative, DutyCycle: 42.5, Counts: 68, Error: -0.6}
	if err := r.publishStatus(context.Background(), res); err != nil {
		t.Fatal(err)
	}
	if len(w.frames) != 1 {
		t.Fatalf("sent %d frames", len(w.frames))
	}
	vals, err := cmap.DecodeEinrideFrame(w.frames[0])
	if err != nil {
		t.Fatal(err)
	}
	if vals["state"] != float64(regulator.AdjustingNegative) || vals["register_counts"] != 68 {
		t.Errorf("decoded %v", vals)
	}
	if d := vals["duty_cycle_pct"] - 42.5; d > 1e-6 || d < -1e-6 {
		t.Errorf("duty_cycle_pct = %v", vals["duty_cycle_pct"])
	}
	if d := vals["error_v"] + 0.6; d > 1e-6 || d < -1e-6 {
		t.Errorf("error_v = %v", vals["error_v"])
	}
}
