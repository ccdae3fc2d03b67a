package sched

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/mayaflux/mayaflux-go/internal/errors"
	"github.com/mayaflux/mayaflux-go/internal/logging"
	"github.com/mayaflux/mayaflux-go/internal/observability"
)

// PatternFunc computes the payload for a pattern stream at an index.
type PatternFunc func(index uint64) any

// SequenceStep is one entry of a scheduled sequence: a callback fired at an
// offset in seconds from the sequence start.
type SequenceStep struct {
	AtSeconds float64
	Fn        func()
}

// Scheduler resumes routines at precise sample instants against the shared
// sample clock. Advance is called once per audio block, after the clock
// tick; a routine scheduled inside the covered block is resumed exactly
// once between that tick and the next.
type Scheduler struct {
	clock *SampleClock

	mu       sync.Mutex
	routines []*Routine

	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewScheduler constructs a scheduler on the given clock.
func NewScheduler(clock *SampleClock, metrics *observability.Metrics) *Scheduler {
	logger := logging.ForService("scheduler")
	if logger == nil {
		logger = slog.Default()
	}

	return &Scheduler{
		clock:   clock,
		metrics: metrics,
		logger:  logger,
	}
}

// Clock returns the shared sample clock.
func (s *Scheduler) Clock() *SampleClock { return s.clock }

// Add installs a routine built elsewhere.
func (s *Scheduler) Add(r *Routine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routines = append(s.routines, r)
}

// ScheduleAt fires fn once when the clock reaches sampleTime.
func (s *Scheduler) ScheduleAt(sampleTime uint64, fn func()) *Routine {
	return s.scheduleAtNamed(sampleTime, fn, "")
}

func (s *Scheduler) scheduleAtNamed(sampleTime uint64, fn func(), name string) *Routine {
	r := newRoutine(name, func(*Routine) bool {
		fn()
		return false
	}, sampleTime)
	s.Add(r)
	return r
}

// ScheduleMetro fires fn every intervalSeconds, starting at the current
// clock time and phase-locked thereafter: each fire re-enqueues at the
// previous ideal fire time plus the interval, regardless of when the resume
// actually ran.
func (s *Scheduler) ScheduleMetro(intervalSeconds float64, fn func(), name string) *Routine {
	intervalSamples := s.clock.SecondsToSamples(intervalSeconds)
	if intervalSamples == 0 {
		intervalSamples = 1
	}

	r := newRoutine(name, func(r *Routine) bool {
		fn()
		r.YieldFor(intervalSamples)
		return true
	}, s.clock.Current())
	s.Add(r)
	return r
}

// ScheduleSequence queues each step as a one-shot relative to the sequence
// start. The whole sequence shares name and cancels as a group.
func (s *Scheduler) ScheduleSequence(steps []SequenceStep, name string) []*Routine {
	start := s.clock.Current()
	routines := make([]*Routine, 0, len(steps))
	for _, step := range steps {
		at := start + s.clock.SecondsToSamples(step.AtSeconds)
		routines = append(routines, s.scheduleAtNamed(at, step.Fn, name))
	}
	return routines
}

// SchedulePattern runs a generator stream: each tick pattern(index) is
// computed and the result handed to callback, then the index increments.
// The first tick is one interval after scheduling and uses index 0.
func (s *Scheduler) SchedulePattern(pattern PatternFunc, callback func(any), intervalSeconds float64, name string) *Routine {
	intervalSamples := s.clock.SecondsToSamples(intervalSeconds)
	if intervalSamples == 0 {
		intervalSamples = 1
	}

	var index uint64
	r := newRoutine(name, func(r *Routine) bool {
		callback(pattern(index))
		index++
		r.YieldFor(intervalSamples)
		return true
	}, s.clock.Current()+intervalSamples)
	s.Add(r)
	return r
}

// Cancel removes every routine scheduled under name. Idempotent;
// cancellation is observed at the next scheduler pass, not mid-resume.
func (s *Scheduler) Cancel(name string) {
	if name == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.routines {
		if r.name == name {
			r.cancel()
		}
	}
}

// CancelRoutine removes a single routine by handle.
func (s *Scheduler) CancelRoutine(r *Routine) {
	if r != nil {
		r.cancel()
	}
}

// Len returns the number of live routines.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.routines {
		if r.IsActive() {
			n++
		}
	}
	return n
}

// Advance resumes, in ascending wakeup order, every routine due at
// currentSample. A routine that re-arms inside the window is resumed again
// so sub-block intervals do not fall behind. Completed and cancelled
// routines are destroyed. A routine that panics is caught, logged, and
// removed; siblings continue.
func (s *Scheduler) Advance(currentSample uint64) {
	s.mu.Lock()
	due := make([]*Routine, len(s.routines))
	copy(due, s.routines)
	s.mu.Unlock()

	sort.SliceStable(due, func(i, j int) bool {
		return due[i].NextExecution() < due[j].NextExecution()
	})

	for _, r := range due {
		s.drainRoutine(r, currentSample)
	}

	s.sweep()
}

// drainRoutine resumes one routine for as long as it stays due within the
// current window. A resume that fails to move the wakeup forward stops the
// drain so a zero-delay yield cannot spin the audio thread.
func (s *Scheduler) drainRoutine(r *Routine, currentSample uint64) {
	if !r.AutoResume() {
		return
	}
	for r.IsActive() && r.nextSample.Load() <= currentSample {
		before := r.nextSample.Load()

		if !s.resumeSafely(r, currentSample) {
			return
		}

		if r.nextSample.Load() <= before {
			return
		}
	}
}

// resumeSafely runs one resume under panic protection. Returns false when
// the routine faulted and was removed.
func (s *Scheduler) resumeSafely(r *Routine, currentSample uint64) (ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			r.done.Store(true)
			ok = false
			s.metrics.ObserveRoutineFault()
			fault := errors.Newf("routine panicked on resume: %v", rec).
				Component("scheduler").
				Category(errors.CategoryRoutine).
				Context("routine", r.name).
				Context("sample", currentSample).
				Build()
			s.logger.Error("routine removed after fault",
				"routine", r.name,
				"routine_id", r.id.String(),
				"error", fault)
		}
	}()

	if r.tryResume(currentSample) {
		s.metrics.ObserveRoutineResume()
	}
	return true
}

// sweep destroys completed and cancelled routines.
func (s *Scheduler) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	live := s.routines[:0]
	for _, r := range s.routines {
		if r.IsActive() {
			live = append(live, r)
		}
	}
	s.routines = live
}
