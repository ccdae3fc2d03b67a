package graph

// OnePole is a one-pole IIR low-pass: y[n] = (1-a)*x[n] + a*y[n-1].
// The feedback memory participates in save/restore so that isolated buffer
// processing does not disturb the live filter state.
type OnePole struct {
	core Core
	a    Sample
	mem  Sample

	savedMem Sample
	savedA   Sample

	ctx Context
}

// NewOnePole constructs the filter with feedback coefficient a in [0, 1).
func NewOnePole(a Sample) *OnePole {
	f := &OnePole{a: a}
	f.ctx.NodeKind = "one_pole"
	return f
}

// ProcessSample filters one input sample.
func (f *OnePole) ProcessSample(input Sample) Sample {
	out := (1-f.a)*input + f.a*f.mem
	f.mem = out
	f.core.SetLastOutput(out)
	f.ctx.Value = out
	f.core.NotifyTick(&f.ctx)
	return out
}

// ProcessBatch filters n zero-input samples (the filter ringing out).
func (f *OnePole) ProcessBatch(n int) []Sample {
	return batch(f, n)
}

// SetCoefficient replaces the feedback coefficient.
func (f *OnePole) SetCoefficient(a Sample) {
	f.a = a
}

// SaveState snapshots the filter memory and coefficient.
func (f *OnePole) SaveState() {
	f.savedMem = f.mem
	f.savedA = f.a
	f.core.MarkStateSaved(true)
}

// RestoreState rewinds the filter to the last snapshot.
func (f *OnePole) RestoreState() {
	if !f.core.StateSaved() {
		return
	}
	f.mem = f.savedMem
	f.a = f.savedA
	f.core.MarkStateSaved(false)
}

// Core exposes the shared node state block.
func (f *OnePole) Core() *Core {
	return &f.core
}
