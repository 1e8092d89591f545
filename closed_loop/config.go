package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
	"periph.io/x/conn/v3/physic"

	"boost-regulator-core/regulator"
)

// Volts accepts a bare number or a unit literal such as "12V" or "500mV".
type Volts float64

func (v *Volts) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: voltage must be a scalar", n.Line)
	}
	s := strings.TrimSpace(n.Value)
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		*v = Volts(f)
		return nil
	}
	var p physic.ElectricPotential
	if err := p.Set(s); err != nil {
		return fmt.Errorf("line %d: voltage %q: %w", n.Line, s, err)
	}
	*v = Volts(float64(p) / float64(physic.Volt))
	return nil
}

// Config is the YAML run configuration.
type Config struct {
	Regulator RegulatorConfig `yaml:"regulator"`
	Tick      string          `yaml:"tick"` // control period, e.g. "10ms"
	Sense     SenseConfig     `yaml:"sense"`
	CAN       CANConfig       `yaml:"can"`
	Serial    SerialConfig    `yaml:"serial"`
	Log       LogConfig       `yaml:"log"`
}

// RegulatorConfig mirrors regulator.Config. A nil field takes the default;
// max_duty_cycle has no valid zero, so 0 also means the default.
type RegulatorConfig struct {
	TargetVoltage *Volts           `yaml:"target_voltage"`
	MaxDutyCycle  float64          `yaml:"max_duty_cycle"`
	Thresholds    *ThresholdConfig `yaml:"thresholds"`
}

type ThresholdConfig struct {
	Error     Volts `yaml:"error"`
	Adjust    Volts `yaml:"adjust"`
	Stabilize Volts `yaml:"stabilize"`
}

// SenseConfig selects where voltage samples and source presence come from.
type SenseConfig struct {
	Backend    string `yaml:"backend"` // sim, can, serial
	StaleAfter string `yaml:"stale_after"`
}

type CANConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Interface   string `yaml:"interface"`
	MapPath     string `yaml:"map"`
	SenseFrame  string `yaml:"sense_frame"`
	StatusFrame string `yaml:"status_frame"` // empty disables status telemetry
	PWMFrame    string `yaml:"pwm_frame"`    // empty keeps the register local
}

type SerialConfig struct {
	Device string `yaml:"device"`
	Baud   int    `yaml:"baud"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	StateLevel string `yaml:"state_level"` // level of the per-tick state line
	File       string `yaml:"file"`
	Stdout     bool   `yaml:"stdout"`
}

const (
	BackendSim    = "sim"
	BackendCAN    = "can"
	BackendSerial = "serial"
)

// DefaultConfig returns the stock configuration.
func DefaultConfig() *Config {
	th := regulator.DefaultThresholds()
	target := Volts(12)
	return &Config{
		Regulator: RegulatorConfig{
			TargetVoltage: &target,
			MaxDutyCycle:  80,
			Thresholds: &ThresholdConfig{
				Error:     Volts(th.Error),
				Adjust:    Volts(th.Adjust),
				Stabilize: Volts(th.Stabilize),
			},
		},
		Tick: "10ms",
		Sense: SenseConfig{
			Backend:    BackendSim,
			StaleAfter: "200ms",
		},
		CAN: CANConfig{
			Interface:   "vcan0",
			MapPath:     "config/can/can_map.csv",
			SenseFrame:  "BOOST_SENSE",
			StatusFrame: "REGULATOR_STATUS",
			PWMFrame:    "PWM_CMD",
		},
		Serial: SerialConfig{
			Device: "/dev/ttyACM0",
			Baud:   115200,
		},
		Log: LogConfig{
			Level:      "info",
			StateLevel: "debug",
			File:       "boost_regulator.log",
			Stdout:     true,
		},
	}
}

// LoadConfig reads a YAML config and fills unset fields with defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return ParseConfig(data)
}

func ParseConfig(data []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyDefaults(&c)
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func applyDefaults(c *Config) {
	d := DefaultConfig()
	if c.Regulator.TargetVoltage == nil {
		c.Regulator.TargetVoltage = d.Regulator.TargetVoltage
	}
	if c.Regulator.MaxDutyCycle == 0 {
		c.Regulator.MaxDutyCycle = d.Regulator.MaxDutyCycle
	}
	if c.Regulator.Thresholds == nil {
		c.Regulator.Thresholds = d.Regulator.Thresholds
	}
	if c.Tick == "" {
		c.Tick = d.Tick
	}
	if c.Sense.Backend == "" {
		c.Sense.Backend = d.Sense.Backend
	}
	if c.Sense.StaleAfter == "" {
		c.Sense.StaleAfter = d.Sense.StaleAfter
	}
	if c.CAN.Interface == "" {
		c.CAN.Interface = d.CAN.Interface
	}
	if c.CAN.MapPath == "" {
		c.CAN.MapPath = d.CAN.MapPath
	}
	if c.CAN.SenseFrame == "" {
		c.CAN.SenseFrame = d.CAN.SenseFrame
	}
	if c.Serial.Device == "" {
		c.Serial.Device = d.Serial.Device
	}
	if c.Serial.Baud == 0 {
		c.Serial.Baud = d.Serial.Baud
	}
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Log.StateLevel == "" {
		c.Log.StateLevel = d.Log.StateLevel
	}
	if c.Log.File == "" {
		c.Log.File = d.Log.File
	}
}

// Validate checks the settings the runner depends on.
func (c *Config) Validate() error {
	if err := c.RegulatorSettings().Validate(); err != nil {
		return err
	}
	if tick, err := c.TickPeriod(); err != nil {
		return err
	} else if tick <= 0 {
		return fmt.Errorf("tick must be positive, got %s", c.Tick)
	}
	if _, err := c.StaleAfter(); err != nil {
		return err
	}
	switch c.Sense.Backend {
	case BackendSim, BackendSerial:
	case BackendCAN:
		if !c.CAN.Enabled {
			return fmt.Errorf("sense backend %q requires can.enabled", c.Sense.Backend)
		}
	default:
		return fmt.Errorf("unknown sense backend %q (want sim, can or serial)", c.Sense.Backend)
	}
	return nil
}

// RegulatorSettings converts the YAML section to the loop's config.
func (c *Config) RegulatorSettings() regulator.Config {
	th := regulator.DefaultThresholds()
	if t := c.Regulator.Thresholds; t != nil {
		th = regulator.Thresholds{
			Error:     float64(t.Error),
			Adjust:    float64(t.Adjust),
			Stabilize: float64(t.Stabilize),
		}
	}
	var target float64
	if c.Regulator.TargetVoltage != nil {
		target = float64(*c.Regulator.TargetVoltage)
	}
	return regulator.Config{
		TargetVoltage: target,
		MaxDutyCycle:  c.Regulator.MaxDutyCycle,
		Thresholds:    th,
	}
}

func (c *Config) TickPeriod() (time.Duration, error) {
	d, err := time.ParseDuration(c.Tick)
	if err != nil {
		return 0, fmt.Errorf("invalid tick %q: %w", c.Tick, err)
	}
	return d, nil
}

func (c *Config) StaleAfter() (time.Duration, error) {
	d, err := time.ParseDuration(c.Sense.StaleAfter)
	if err != nil {
		return 0, fmt.Errorf("invalid sense.stale_after %q: %w", c.Sense.StaleAfter, err)
	}
	return d, nil
}
