package graph

// Constant is the identity element of the node graph: it ignores all input,
// holds a single value, and returns it unconditionally from every processing
// call. It doubles as the reference implementation of the trivial node and
// as a test fixture that stands in for any scalar source.
type Constant struct {
	core  Core
	value Sample
	saved Sample
	ctx   Context
}

// NewConstant constructs a constant source emitting value.
func NewConstant(value Sample) *Constant {
	c := &Constant{value: value}
	c.core.SetLastOutput(value)
	c.ctx.NodeKind = "constant"
	return c
}

// ProcessSample returns the constant, ignoring input.
func (c *Constant) ProcessSample(_ Sample) Sample {
	c.core.SetLastOutput(c.value)
	c.ctx.Value = c.value
	c.core.NotifyTick(&c.ctx)
	return c.value
}

// ProcessBatch fills a slice with the constant. Each element goes through
// ProcessSample so per-sample hooks fire for every position.
func (c *Constant) ProcessBatch(n int) []Sample {
	return batch(c, n)
}

// SetValue updates the emitted value from the next process call onward.
func (c *Constant) SetValue(value Sample) {
	c.value = value
	c.core.SetLastOutput(value)
}

// Value reads the current constant without triggering processing.
func (c *Constant) Value() Sample {
	return c.value
}

// SaveState snapshots the current value.
func (c *Constant) SaveState() {
	c.saved = c.value
	c.core.MarkStateSaved(true)
}

// RestoreState restores the value from the last SaveState. A restore with no
// prior save is a no-op.
func (c *Constant) RestoreState() {
	if !c.core.StateSaved() {
		return
	}
	c.value = c.saved
	c.core.SetLastOutput(c.saved)
	c.core.MarkStateSaved(false)
}

// Core exposes the shared node state block.
func (c *Constant) Core() *Core {
	return &c.core
}
