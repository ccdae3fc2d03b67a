package sched

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// advanceBlocks simulates the audio driver: tick the clock one block at a
// time and run the scheduler pass after each tick.
func advanceBlocks(clock *SampleClock, s *Scheduler, blockSize uint32, blocks int) {
	for i := 0; i < blocks; i++ {
		clock.Tick(blockSize)
		s.Advance(clock.Current())
	}
}

func TestClockMonotonic(t *testing.T) {
	t.Parallel()

	clock := NewSampleClock(48000)
	assert.Equal(t, uint64(0), clock.Current())

	clock.Tick(512)
	clock.Tick(512)
	assert.Equal(t, uint64(1024), clock.Current())
	assert.InDelta(t, 1024.0/48000.0, clock.CurrentTime(), 1e-12)

	assert.Equal(t, uint64(480), clock.SecondsToSamples(0.01))
}

func TestScheduleAtFiresOnce(t *testing.T) {
	t.Parallel()

	clock := NewSampleClock(48000)
	s := NewScheduler(clock, nil)

	fired := 0
	s.ScheduleAt(1000, func() { fired++ })

	advanceBlocks(clock, s, 512, 1)
	assert.Equal(t, 0, fired, "sample 1000 not yet covered")

	advanceBlocks(clock, s, 512, 1)
	assert.Equal(t, 1, fired, "resumed once in the covering block")

	advanceBlocks(clock, s, 512, 10)
	assert.Equal(t, 1, fired)
	assert.Equal(t, 0, s.Len())
}

func TestMetroPhaseLocked(t *testing.T) {
	t.Parallel()

	clock := NewSampleClock(48000)
	s := NewScheduler(clock, nil)

	fired := 0
	s.ScheduleMetro(0.01, func() { fired++ }, "metro") // 480-sample interval

	// One second of 512-sample blocks.
	blocks := 48000 / 512
	advanceBlocks(clock, s, 512, blocks+1)

	// Ideal fires at 0, 480, ..., 48000: the count never drifts from the
	// ideal grid by more than the final partial block.
	assert.GreaterOrEqual(t, fired, 100)
	assert.LessOrEqual(t, fired, 101)
}

func TestMetroDoesNotAccumulateDrift(t *testing.T) {
	t.Parallel()

	clock := NewSampleClock(48000)
	s := NewScheduler(clock, nil)

	var fireSamples []uint64
	var r *Routine
	r = s.ScheduleMetro(0.01, func() {
		fireSamples = append(fireSamples, r.NextExecution())
	}, "")

	advanceBlocks(clock, s, 512, 20)

	require.NotEmpty(t, fireSamples)
	for i, at := range fireSamples {
		assert.Equal(t, uint64(i)*480, at, "fire %d must sit on the ideal grid", i)
	}
}

func TestSequenceGroupCancel(t *testing.T) {
	t.Parallel()

	clock := NewSampleClock(1000)
	s := NewScheduler(clock, nil)

	var fired []int
	s.ScheduleSequence([]SequenceStep{
		{AtSeconds: 0.1, Fn: func() { fired = append(fired, 1) }},
		{AtSeconds: 0.5, Fn: func() { fired = append(fired, 2) }},
		{AtSeconds: 0.9, Fn: func() { fired = append(fired, 3) }},
	}, "seq")

	advanceBlocks(clock, s, 100, 2) // t = 200 samples: first step fired
	assert.Equal(t, []int{1}, fired)

	s.Cancel("seq")
	advanceBlocks(clock, s, 100, 10)
	assert.Equal(t, []int{1}, fired, "remaining steps cancelled as a group")
	assert.Equal(t, 0, s.Len())

	// Cancelling again is harmless.
	s.Cancel("seq")
}

func TestSequenceOrdering(t *testing.T) {
	t.Parallel()

	clock := NewSampleClock(1000)
	s := NewScheduler(clock, nil)

	var fired []int
	s.ScheduleSequence([]SequenceStep{
		{AtSeconds: 0.3, Fn: func() { fired = append(fired, 2) }},
		{AtSeconds: 0.1, Fn: func() { fired = append(fired, 1) }},
		{AtSeconds: 0.6, Fn: func() { fired = append(fired, 3) }},
	}, "seq")

	advanceBlocks(clock, s, 1000, 1)
	assert.Equal(t, []int{1, 2, 3}, fired, "due routines resume in ascending wakeup order")
}

func TestPatternStream(t *testing.T) {
	t.Parallel()

	clock := NewSampleClock(1000)
	s := NewScheduler(clock, nil)

	var received []int
	s.SchedulePattern(
		func(index uint64) any { return int(index) * 10 },
		func(v any) { received = append(received, v.(int)) },
		0.1, "pattern")

	advanceBlocks(clock, s, 100, 5)
	assert.Equal(t, []int{0, 10, 20, 30, 40}, received)

	s.Cancel("pattern")
	advanceBlocks(clock, s, 100, 5)
	assert.Len(t, received, 5)
}

func TestRoutineFaultIsolated(t *testing.T) {
	t.Parallel()

	clock := NewSampleClock(1000)
	s := NewScheduler(clock, nil)

	healthy := 0
	s.ScheduleMetro(0.1, func() { healthy++ }, "healthy")
	s.ScheduleMetro(0.1, func() { panic("boom") }, "faulty")

	advanceBlocks(clock, s, 100, 5)

	assert.Greater(t, healthy, 0, "siblings continue after a fault")
	assert.Equal(t, 1, s.Len(), "faulted routine destroyed")
}

func TestRoutineStateBag(t *testing.T) {
	t.Parallel()

	clock := NewSampleClock(1000)
	s := NewScheduler(clock, nil)

	var outputs []float64
	r := newRoutine("ramp", func(r *Routine) bool {
		v, _ := r.GetState("level")
		level, _ := v.(float64)
		outputs = append(outputs, level)
		r.SetState("level", level+0.25)
		r.YieldFor(100)
		return level < 0.5
	}, 0)
	s.Add(r)

	advanceBlocks(clock, s, 100, 6)

	assert.Equal(t, []float64{0, 0.25, 0.5}, outputs)
	assert.Equal(t, 0, s.Len(), "completed routine destroyed at the next pass")
}

func TestCancelObservedAtNextPass(t *testing.T) {
	t.Parallel()

	clock := NewSampleClock(1000)
	s := NewScheduler(clock, nil)

	fired := 0
	r := s.ScheduleMetro(0.1, func() { fired++ }, "m")

	advanceBlocks(clock, s, 100, 1)
	require.Equal(t, 2, fired, "initial fire plus the 100-sample fire")

	s.CancelRoutine(r)
	advanceBlocks(clock, s, 100, 3)
	assert.Equal(t, 2, fired)
	assert.Equal(t, Never, r.NextExecution())
}

func TestManualResumeWithAutoResumeOff(t *testing.T) {
	t.Parallel()

	clock := NewSampleClock(1000)
	s := NewScheduler(clock, nil)

	fired := 0
	r := s.ScheduleMetro(0.1, func() { fired++ }, "manual")
	r.SetAutoResume(false)

	advanceBlocks(clock, s, 100, 3)
	assert.Equal(t, 0, fired, "scheduler passes skip non-auto routines")

	assert.True(t, r.Resume(clock.Current()))
	assert.Equal(t, 1, fired)
}

func TestSubBlockIntervalKeepsUp(t *testing.T) {
	t.Parallel()

	clock := NewSampleClock(48000)
	s := NewScheduler(clock, nil)

	fired := 0
	s.ScheduleMetro(0.001, func() { fired++ }, "") // 48-sample interval

	advanceBlocks(clock, s, 512, 10) // 5120 samples covered

	// Fires at 0, 48, 96, ...: all grid points inside the covered range.
	assert.GreaterOrEqual(t, fired, 5120/48)
}
