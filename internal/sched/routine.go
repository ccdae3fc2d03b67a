package sched

import (
	"math"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Never is the next-execution value of a routine that will not run again.
const Never uint64 = math.MaxUint64

// StepFunc is one resumption of a routine. The routine suspends by calling
// YieldUntil/YieldFor on r before returning true; returning false completes
// the routine and it is destroyed at the next scheduler pass.
type StepFunc func(r *Routine) bool

// Routine is a resumable unit of work suspended on a future sample time.
// It carries a string-keyed attribute bag for inter-yield state.
type Routine struct {
	id   uuid.UUID
	name string

	nextSample atomic.Uint64
	autoResume atomic.Bool

	stateMu sync.Mutex
	state   map[string]any

	step StepFunc

	done      atomic.Bool
	cancelled atomic.Bool
}

func newRoutine(name string, step StepFunc, firstSample uint64) *Routine {
	r := &Routine{
		id:   uuid.New(),
		name: name,
		step: step,
	}
	r.autoResume.Store(true)
	r.nextSample.Store(firstSample)
	return r
}

// SetAutoResume controls whether scheduler passes resume the routine.
// With auto-resume off the routine only runs through Resume.
func (r *Routine) SetAutoResume(auto bool) {
	r.autoResume.Store(auto)
}

// AutoResume reports whether scheduler passes resume the routine.
func (r *Routine) AutoResume() bool {
	return r.autoResume.Load()
}

// Resume runs one step immediately if the routine is due, regardless of the
// auto-resume setting.
func (r *Routine) Resume(currentSample uint64) bool {
	return r.tryResume(currentSample)
}

// ID returns the routine's unique id.
func (r *Routine) ID() uuid.UUID { return r.id }

// Name returns the routine's cancellation name, possibly empty.
func (r *Routine) Name() string { return r.name }

// IsActive reports whether the routine may still be resumed.
func (r *Routine) IsActive() bool {
	return !r.done.Load() && !r.cancelled.Load()
}

// NextExecution returns the sample at which the routine wants to resume,
// or Never for a completed routine.
func (r *Routine) NextExecution() uint64 {
	if !r.IsActive() {
		return Never
	}
	return r.nextSample.Load()
}

// YieldUntil suspends the routine until the given absolute sample time.
func (r *Routine) YieldUntil(sample uint64) {
	r.nextSample.Store(sample)
}

// YieldFor suspends the routine for delta samples past its current wakeup.
// Yield times compound from the previous ideal wakeup, not from when the
// resume actually ran, so periodic routines stay phase-locked.
func (r *Routine) YieldFor(delta uint64) {
	r.nextSample.Add(delta)
}

// SetState writes a key in the routine's attribute bag.
func (r *Routine) SetState(key string, value any) {
	r.stateMu.Lock()
	defer r.stateMu.Unlock()
	if r.state == nil {
		r.state = make(map[string]any)
	}
	r.state[key] = value
}

// GetState reads a key from the routine's attribute bag.
func (r *Routine) GetState(key string) (any, bool) {
	r.stateMu.Lock()
	defer r.stateMu.Unlock()
	v, ok := r.state[key]
	return v, ok
}

// cancel marks the routine for removal at the next scheduler pass; it is
// never observed mid-resume.
func (r *Routine) cancel() {
	r.cancelled.Store(true)
}

// tryResume runs one step if the routine is due at currentSample. Returns
// whether a resume happened.
func (r *Routine) tryResume(currentSample uint64) bool {
	if !r.IsActive() {
		return false
	}
	if currentSample < r.nextSample.Load() {
		return false
	}
	if !r.step(r) {
		r.done.Store(true)
	}
	return true
}
