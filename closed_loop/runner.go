package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"boost-regulator-core/boost"
	"boost-regulator-core/regulator"
	"boost-regulator-core/utils"
)

type Runner struct {
	cfg   *Config
	log   *utils.Logger
	loop  *regulator.Loop
	reg   regulator.Register
	stats *Stats
	tick  time.Duration

	// sim backend
	plant *boost.Plant
	scen  *Scenario

	// CAN transport
	cmap     *utils.CANMap
	writer   utils.CANWriter
	reader   utils.CANReader
	canReg   *boost.CANRegister
	canSense *boost.CANSense

	serial *boost.SerialSense

	faulted bool
}

func NewRunner(ctx context.Context, cfg *Config, scenarioPath string, log *utils.Logger) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	tick, _ := cfg.TickPeriod()
	staleAfter, _ := cfg.StaleAfter()

	r := &Runner{
		cfg:   cfg,
		log:   log,
		stats: NewStats(),
		tick:  tick,
	}

	if cfg.CAN.Enabled {
		if err := r.openCAN(ctx); err != nil {
			r.Close()
			return nil, err
		}
	}
	if r.canReg != nil {
		r.reg = r.canReg
	} else {
		r.reg = regulator.NewMemRegister(0)
	}

	var (
		volts  regulator.VoltageSource
		source regulator.SourceDetector
		origin string
	)
	switch cfg.Sense.Backend {
	case BackendSim:
		scen := DefaultScenario(tick.Seconds())
		if scenarioPath != "" {
			var err error
			if scen, err = LoadScenario(scenarioPath); err != nil {
				r.Close()
				return nil, fmt.Errorf("load scenario: %w", err)
			}
		}
		r.scen = &scen
		r.plant = boost.NewPlant(scen.Plant, r.reg)
		volts, source = r.plant, r.plant
		origin = "sim:" + scen.Meta.Name

	case BackendCAN:
		sense, err := boost.NewCANSense(r.cmap, cfg.CAN.SenseFrame, staleAfter, log)
		if err != nil {
			r.Close()
			return nil, err
		}
		reader, err := utils.NewSocketCANReader(ctx, cfg.CAN.Interface)
		if err != nil {
			r.Close()
			return nil, err
		}
		r.canSense, r.reader = sense, reader
		volts, source = sense, sense
		origin = "can:" + cfg.CAN.Interface + "/" + cfg.CAN.SenseFrame

	case BackendSerial:
		sense, err := boost.OpenSerialSense(cfg.Serial.Device, cfg.Serial.Baud, staleAfter, log)
		if err != nil {
			r.Close()
			return nil, err
		}
		r.serial = sense
		volts, source = sense, sense
		origin = sense.Name()
	}

	sink := utils.StateLogger{Log: log, Level: utils.ParseLevel(cfg.Log.StateLevel)}
	loop, err := regulator.NewLoop(cfg.RegulatorSettings(), volts, source, sink)
	if err != nil {
		r.Close()
		return nil, err
	}
	r.loop = loop

	rc := loop.Config()
	log.Info("Regulator initialized: target=%.3fV max_dc=%.2f%% thresholds=%.3f/%.3f/%.3f tick=%s sense=%s",
		rc.TargetVoltage, rc.MaxDutyCycle,
		rc.Thresholds.Error, rc.Thresholds.Adjust, rc.Thresholds.Stabilize,
		tick, origin)
	return r, nil
}

func (r *Runner) openCAN(ctx context.Context) error {
	cmap, err := utils.LoadCANMap(r.cfg.CAN.MapPath)
	if err != nil {
		return fmt.Errorf("load can map: %w", err)
	}
	r.cmap = cmap

	if r.cfg.CAN.StatusFrame != "" {
		if _, err := cmap.FrameByName(r.cfg.CAN.StatusFrame); err != nil {
			return fmt.Errorf("status frame: %w", err)
		}
	}
	if r.cfg.CAN.StatusFrame == "" && r.cfg.CAN.PWMFrame == "" {
		return nil
	}

	writer, err := utils.NewSocketCANWriter(ctx, r.cfg.CAN.Interface)
	if err != nil {
		return err
	}
	r.writer = writer

	if r.cfg.CAN.PWMFrame != "" {
		reg, err := boost.NewCANRegister(cmap, r.cfg.CAN.PWMFrame, writer)
		if err != nil {
			return fmt.Errorf("pwm frame: %w", err)
		}
		r.canReg = reg
	}
	return nil
}

func (r *Runner) Close() {
	if r.serial != nil {
		_ = r.serial.Close()
	}
	if r.reader != nil {
		_ = r.reader.Close()
	}
	if r.writer != nil {
		_ = r.writer.Close()
	}
}

func (r *Runner) Stats() *Stats { return r.stats }

// Run ticks the regulator until ctx ends or the simulated scenario runs out.
func (r *Runner) Run(ctx context.Context) error {
	if r.canSense != nil {
		go r.canSense.Run(ctx, r.reader)
	}
	if r.serial != nil {
		go func() {
			if err := r.serial.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				r.log.Error("Serial sense stopped: %v", err)
			}
		}()
	}

	if r.scen != nil && !r.scen.Timing.RealTimeMode {
		return r.runBatch(ctx)
	}
	return r.runRealTime(ctx)
}

// runBatch steps the simulation as fast as possible.
func (r *Runner) runBatch(ctx context.Context) error {
	dt := r.scen.Timing.DtS
	steps := int(math.Round(r.scen.Timing.DurationS / dt))
	r.log.Info("Starting batch simulation: scenario=%s steps=%d dt=%.4fs", r.scen.Meta.Name, steps, dt)

	for i := 0; i < steps; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.step(ctx, float64(i)*dt, dt); err != nil {
			return err
		}
	}
	r.log.Info("Completed simulation. ticks=%d", r.stats.Ticks)
	return nil
}

func (r *Runner) runRealTime(ctx context.Context) error {
	r.log.Info("Starting regulation: tick=%s", r.tick)

	start := time.Now()
	ticker := time.NewTicker(r.tick)
	defer ticker.Stop()

	var endAfter time.Duration
	if r.scen != nil {
		endAfter = time.Duration(r.scen.Timing.DurationS * float64(time.Second))
	}
	dt := r.tick.Seconds()

	for {
		select {
		case <-ctx.Done():
			r.log.Warn("Context canceled; stopping regulation")
			r.log.Info("Completed regulation. ticks=%d", r.stats.Ticks)
			return ctx.Err()

		case now := <-ticker.C:
			elapsed := now.Sub(start)
			if endAfter > 0 && elapsed > endAfter {
				r.log.Info("Completed regulation. ticks=%d", r.stats.Ticks)
				return nil
			}
			if err := r.step(ctx, elapsed.Seconds(), dt); err != nil {
				return err
			}
		}
	}
}

// step runs one control tick at scenario time t.
func (r *Runner) step(ctx context.Context, t, dt float64) error {
	target := r.loop.Config().TargetVoltage
	if r.plant != nil {
		cmd := EvalPlantCmd(r.scen, t, target)
		r.plant.SetInput(cmd.InputVoltage, cmd.SourcePresent)
		r.plant.Step(dt)
		target = cmd.TargetVoltage
	}

	res, err := r.loop.Tick(target, r.reg)
	if err != nil {
		r.log.Error("Tick at t=%.3f: %v", t, err)
	}
	r.stats.Record(res)

	switch {
	case res.Fault != nil && !r.faulted:
		r.log.Warn("Sampling fault, holding IDLE: %v", res.Fault)
	case res.Fault == nil && r.faulted:
		r.log.Info("Sampling recovered")
	}
	r.faulted = res.Fault != nil

	if r.canReg != nil {
		if err := r.canReg.Flush(ctx); err != nil {
			r.log.Critical("PWM transmit failed at t=%.3f: %v", t, err)
			return err
		}
	}
	if err := r.publishStatus(ctx, res); err != nil {
		r.log.Critical("Status transmit failed at t=%.3f: %v", t, err)
		return err
	}

	if r.shouldLogProgress() {
		r.log.Debug("t=%.3f target=%.3f vout=%.3f err=%+.3f state=%s dc=%.3f reg=%d",
			t, target, res.Measured, res.Error, res.State, res.DutyCycle, res.Counts)
	}
	r.log.Trace("t=%.3f unclamped=%.3f clamped=%v", t, res.Unclamped, res.Clamped)
	return nil
}

func (r *Runner) shouldLogProgress() bool {
	if r.scen == nil || r.scen.Timing.LogHz <= 0 {
		return r.stats.Ticks%100 == 0
	}
	every := int(math.Round(1 / (r.scen.Timing.LogHz * r.scen.Timing.DtS)))
	return every <= 1 || r.stats.Ticks%every == 0
}

// publishStatus transmits the tick outcome on the status frame, if enabled.
func (r *Runner) publishStatus(ctx context.Context, res regulator.TickResult) error {
	if r.writer == nil || r.cfg.CAN.StatusFrame == "" {
		return nil
	}
	errV := res.Error
	if res.Fault != nil {
		errV = math.NaN() // encoded as the signal default
	}
	frame, err := r.cmap.EncodeEinrideFrame(r.cfg.CAN.StatusFrame, map[string]float64{
		"state":           float64(res.State),
		"duty_cycle_pct":  res.DutyCycle,
		"register_counts": float64(res.Counts),
		"error_v":         errV,
	})
	if err != nil {
		return fmt.Errorf("encode status: %w", err)
	}
	return r.writer.WriteFrame(ctx, frame)
}
