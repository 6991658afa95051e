// Package clock provides the presentation clock shared by the audio
// and video paths of a recording.
package clock

import (
	"math"
	"sync/atomic"
	"time"
)

const anchorUnset = math.MinInt64

// MonotonicSource returns a monotonic reading; only differences
// between readings are meaningful.
type MonotonicSource func() time.Duration

var processStart = time.Now()

// SystemMonotonic is a MonotonicSource backed by the runtime monotonic clock.
func SystemMonotonic() time.Duration {
	return time.Since(processStart)
}

// PresentationClock yields microsecond timestamps relative to the
// first call of NowUs. It is safe for concurrent use.
type PresentationClock struct {
	source   MonotonicSource
	anchorUs atomic.Int64
}

func New(source MonotonicSource) *PresentationClock {
	if source == nil {
		source = SystemMonotonic
	}
	c := &PresentationClock{source: source}
	c.anchorUs.Store(anchorUnset)
	return c
}

// NowUs returns the microseconds elapsed since the anchor; the very
// first call (from any goroutine) sets the anchor and returns 0.
func (c *PresentationClock) NowUs() int64 {
	now := c.source().Microseconds()
	if c.anchorUs.CompareAndSwap(anchorUnset, now) {
		return 0
	}
	// a caller that raced the anchoring may observe a reading older
	// than the anchor
	return max(now-c.anchorUs.Load(), 0)
}

// IsAnchored reports if NowUs was ever called.
func (c *PresentationClock) IsAnchored() bool {
	return c.anchorUs.Load() != anchorUnset
}
