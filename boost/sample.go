package boost

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrNoSample is returned before the first reading arrives.
	ErrNoSample = errors.New("no boost sample received")
	// ErrStale is returned when the latest reading is too old to act on.
	ErrStale = errors.New("boost sample is stale")
)

// sampleCache holds the latest reading pushed by a receive loop.
type sampleCache struct {
	mu         sync.Mutex
	staleAfter time.Duration
	now        func() time.Time

	volts   float64
	present bool
	at      time.Time
	seen    bool
}

func newSampleCache(staleAfter time.Duration) *sampleCache {
	return &sampleCache{staleAfter: staleAfter, now: time.Now}
}

func (c *sampleCache) store(volts float64, present bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.volts = volts
	c.present = present
	c.at = c.now()
	c.seen = true
}

func (c *sampleCache) load() (float64, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.seen {
		return 0, false, ErrNoSample
	}
	if age := c.now().Sub(c.at); c.staleAfter > 0 && age > c.staleAfter {
		return 0, false, fmt.Errorf("%w: %.1f ms old", ErrStale, float64(age)/float64(time.Millisecond))
	}
	return c.volts, c.present, nil
}

func (c *sampleCache) MeasureBoostVoltage() (float64, error) {
	v, _, err := c.load()
	return v, err
}

func (c *sampleCache) SourcePresent() (bool, error) {
	_, p, err := c.load()
	return p, err
}
