package boost

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.einride.tech/can"

	"boost-regulator-core/utils"
)

const (
	SignalBoostVoltage  = "boost_voltage_v"
	SignalSourcePresent = "source_present"
)

// CANSense tracks the latest boost sample carried by a sense frame.
type CANSense struct {
	*sampleCache
	cmap *utils.CANMap
	fd   *utils.FrameDef
	log  *utils.Logger
}

// NewCANSense decodes frameName from cmap. The frame must carry the
// boost voltage and source presence signals.
func NewCANSense(cmap *utils.CANMap, frameName string, staleAfter time.Duration, log *utils.Logger) (*CANSense, error) {
	fd, err := cmap.FrameByName(frameName)
	if err != nil {
		return nil, fmt.Errorf("sense frame: %w", err)
	}
	for _, name := range []string{SignalBoostVoltage, SignalSourcePresent} {
		if _, ok := fd.Signal(name); !ok {
			return nil, fmt.Errorf("sense frame %s lacks signal %s", fd.Name, name)
		}
	}
	return &CANSense{
		sampleCache: newSampleCache(staleAfter),
		cmap:        cmap,
		fd:          fd,
		log:         log,
	}, nil
}

// Ingest updates the cached sample if f is the sense frame. Other frames
// are ignored and report false.
func (s *CANSense) Ingest(f can.Frame) (bool, error) {
	if f.ID != s.fd.ID {
		return false, nil
	}
	vals, err := s.cmap.DecodeEinrideFrame(f)
	if err != nil {
		return false, err
	}
	s.store(vals[SignalBoostVoltage], vals[SignalSourcePresent] >= 0.5)
	return true, nil
}

// Run feeds frames from r into the cache until ctx is done or r reports
// utils.ErrCANClosed. Cached samples then go stale and the loop idles.
func (s *CANSense) Run(ctx context.Context, r utils.CANReader) {
	s.log.Debug("CAN sense loop started: frame=%s id=0x%X", s.fd.Name, s.fd.ID)
	defer s.log.Debug("CAN sense loop stopped")

	for {
		f, err := r.ReadFrame(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, utils.ErrCANClosed) {
				s.log.Error("RX stopped: %v", err)
				return
			}
			s.log.Error("RX error: %v", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(100 * time.Millisecond):
			}
			continue
		}
		if ok, err := s.Ingest(f); err != nil {
			s.log.Warn("RX decode id=0x%X: %v", uint32(f.ID), err)
		} else if ok {
			s.log.Trace("RX sense len=%d data=% X", f.Length, f.Data[:f.Length])
		}
	}
}
