package graph

import "math"

// Sine is a phase-accumulating sine oscillator.
type Sine struct {
	core       Core
	freq       Sample
	amp        Sample
	phase      Sample
	increment  Sample
	sampleRate uint32

	savedPhase Sample
	savedFreq  Sample
	savedAmp   Sample

	ctx Context
}

// NewSine constructs a sine oscillator. sampleRate fixes the phase increment
// per sample for the given frequency.
func NewSine(freq, amp, phase Sample, sampleRate uint32) *Sine {
	if sampleRate == 0 {
		sampleRate = 48000
	}
	s := &Sine{
		freq:  freq,
		amp:   amp,
		phase: phase,
	}
	s.increment = 2 * math.Pi * freq / Sample(sampleRate)
	s.sampleRate = sampleRate
	s.ctx.NodeKind = "sine"
	return s
}

// ProcessSample advances the phase by one sample and returns the oscillator
// output. Input is ignored; Sine is a pure source.
func (s *Sine) ProcessSample(_ Sample) Sample {
	out := s.amp * math.Sin(s.phase)
	s.phase += s.increment
	if s.phase >= 2*math.Pi {
		s.phase -= 2 * math.Pi
	}
	s.core.SetLastOutput(out)
	s.ctx.Value = out
	s.core.NotifyTick(&s.ctx)
	return out
}

// ProcessBatch generates n samples and publishes the window for GPU readers.
func (s *Sine) ProcessBatch(n int) []Sample {
	out := batch(s, n)
	window := make([]float32, n)
	for i, v := range out {
		window[i] = float32(v)
	}
	s.core.StoreGPUWindow(window)
	return out
}

// SetFrequency retunes the oscillator without resetting phase.
func (s *Sine) SetFrequency(freq Sample) {
	s.freq = freq
	s.increment = 2 * math.Pi * freq / Sample(s.sampleRate)
}

// SetAmplitude rescales the oscillator output.
func (s *Sine) SetAmplitude(amp Sample) {
	s.amp = amp
}

// SaveState snapshots phase, frequency, and amplitude.
func (s *Sine) SaveState() {
	s.savedPhase = s.phase
	s.savedFreq = s.freq
	s.savedAmp = s.amp
	s.core.MarkStateSaved(true)
}

// RestoreState rewinds the oscillator to the last snapshot.
func (s *Sine) RestoreState() {
	if !s.core.StateSaved() {
		return
	}
	s.phase = s.savedPhase
	s.freq = s.savedFreq
	s.amp = s.savedAmp
	s.increment = 2 * math.Pi * s.freq / Sample(s.sampleRate)
	s.core.MarkStateSaved(false)
}

// Core exposes the shared node state block.
func (s *Sine) Core() *Core {
	return &s.core
}

// GPUWindow returns the float32 view of the last produced batch.
func (s *Sine) GPUWindow() []float32 {
	return s.core.GPUWindow()
}

// Accumulator outputs an incrementing counter: 0, 1, 2, … Useful as a
// deterministic source in tests and pattern drivers.
type Accumulator struct {
	core  Core
	next  Sample
	step  Sample
	saved Sample
	ctx   Context
}

// NewAccumulator constructs a counter source with the given step.
func NewAccumulator(step Sample) *Accumulator {
	a := &Accumulator{step: step}
	a.ctx.NodeKind = "accumulator"
	return a
}

// ProcessSample emits the current count, then advances it.
func (a *Accumulator) ProcessSample(_ Sample) Sample {
	out := a.next
	a.next += a.step
	a.core.SetLastOutput(out)
	a.ctx.Value = out
	a.core.NotifyTick(&a.ctx)
	return out
}

// ProcessBatch emits n consecutive counter values.
func (a *Accumulator) ProcessBatch(n int) []Sample {
	return batch(a, n)
}

// SaveState snapshots the counter position.
func (a *Accumulator) SaveState() {
	a.saved = a.next
	a.core.MarkStateSaved(true)
}

// RestoreState rewinds the counter to the last snapshot.
func (a *Accumulator) RestoreState() {
	if !a.core.StateSaved() {
		return
	}
	a.next = a.saved
	a.core.MarkStateSaved(false)
}

// Core exposes the shared node state block.
func (a *Accumulator) Core() *Core {
	return &a.core
}
