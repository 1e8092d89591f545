package boost

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/tarm/serial"

	"boost-regulator-core/utils"
)

// SerialSense reads samples from an ADC bridge that prints one line per
// conversion, e.g. "V=12.034 SRC=1". Unknown fields are ignored.
type SerialSense struct {
	*sampleCache
	src  io.ReadCloser
	name string
	log  *utils.Logger
}

// OpenSerialSense opens device at baud.
func OpenSerialSense(device string, baud int, staleAfter time.Duration, log *utils.Logger) (*SerialSense, error) {
	if baud == 0 {
		baud = 115200
	}
	port, err := serial.OpenPort(&serial.Config{
		Name:        device,
		Baud:        baud,
		ReadTimeout: 500 * time.Millisecond,
	})
	if err != nil {
		return nil, fmt.Errorf("serial open %s: %w", device, err)
	}
	return NewSerialSense(port, device, staleAfter, log), nil
}

// NewSerialSense wraps an already open line source.
func NewSerialSense(src io.ReadCloser, name string, staleAfter time.Duration, log *utils.Logger) *SerialSense {
	return &SerialSense{
		sampleCache: newSampleCache(staleAfter),
		src:         src,
		name:        name,
		log:         log,
	}
}

func (s *SerialSense) Name() string { return "serial:" + s.name }

// Run consumes lines until ctx is done or the source fails.
func (s *SerialSense) Run(ctx context.Context) error {
	s.log.Debug("serial sense loop started: %s", s.name)
	defer s.log.Debug("serial sense loop stopped")

	go func() {
		<-ctx.Done()
		_ = s.src.Close()
	}()

	rd := bufio.NewReader(s.src)
	var partial strings.Builder
	for {
		chunk, err := rd.ReadString('\n')
		partial.WriteString(chunk)
		if err == nil {
			// only a newline-terminated line is a complete conversion
			s.handleLine(partial.String())
			partial.Reset()
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// tarm/serial reports an empty read on timeout as EOF; the cut-off
		// text stays in partial until the rest of the line arrives
		if err == io.EOF {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(10 * time.Millisecond):
			}
			continue
		}
		return fmt.Errorf("serial read %s: %w", s.name, err)
	}
}

func (s *SerialSense) handleLine(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	v, p, err := ParseSenseLine(line)
	if err != nil {
		s.log.Trace("serial: skip %q: %v", line, err)
		return
	}
	s.store(v, p)
}

func (s *SerialSense) Close() error { return s.src.Close() }

// ParseSenseLine extracts V= (volts) and SRC= (0/1) from a bridge line.
func ParseSenseLine(line string) (float64, bool, error) {
	var (
		volts              float64
		present            bool
		haveV, havePresent bool
	)
	for _, field := range strings.Fields(line) {
		key, val, ok := strings.Cut(field, "=")
		if !ok {
			continue
		}
		switch strings.ToUpper(key) {
		case "V":
			f, err := strconv.ParseFloat(val, 64)
			if err != nil {
				return 0, false, fmt.Errorf("bad voltage %q: %w", val, err)
			}
			volts, haveV = f, true
		case "SRC":
			b, err := strconv.ParseBool(val)
			if err != nil {
				return 0, false, fmt.Errorf("bad source flag %q: %w", val, err)
			}
			present, havePresent = b, true
		}
	}
	if !haveV || !havePresent {
		return 0, false, fmt.Errorf("line needs V= and SRC= fields")
	}
	return volts, present, nil
}
