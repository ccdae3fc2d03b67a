// Package sched implements the sample-accurate scheduler: a monotonic
// sample clock shared with the graph, resumable routines gated on sample
// wakeups, and the metro/sequence/pattern primitives built on them.
package sched

import (
	"sync/atomic"
)

// SampleClock is the engine's source of truth for time: a monotonic count
// of elapsed output samples. It is ticked once per audio block by the buffer
// manager's driver, never by the scheduler.
type SampleClock struct {
	sampleRate uint32
	current    atomic.Uint64
}

// NewSampleClock constructs a clock at zero.
func NewSampleClock(sampleRate uint32) *SampleClock {
	if sampleRate == 0 {
		sampleRate = 48000
	}
	return &SampleClock{sampleRate: sampleRate}
}

// Tick advances the clock by n samples.
func (c *SampleClock) Tick(n uint32) {
	c.current.Add(uint64(n))
}

// Current returns the elapsed sample count.
func (c *SampleClock) Current() uint64 {
	return c.current.Load()
}

// CurrentTime returns the elapsed time in seconds.
func (c *SampleClock) CurrentTime() float64 {
	return float64(c.current.Load()) / float64(c.sampleRate)
}

// SampleRate returns the clock's sample rate.
func (c *SampleClock) SampleRate() uint32 {
	return c.sampleRate
}

// SecondsToSamples converts a duration in seconds to whole samples.
func (c *SampleClock) SecondsToSamples(seconds float64) uint64 {
	if seconds <= 0 {
		return 0
	}
	return uint64(seconds * float64(c.sampleRate))
}
