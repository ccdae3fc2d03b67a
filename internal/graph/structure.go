package graph

// CombineFunc merges the outputs of a binary op node's two children.
type CombineFunc func(a, b Sample) Sample

// ChainNode connects two nodes in series: the source's output becomes the
// target's input. Both children participate in the fan-in protocol, so a
// chain containing a node that is shared elsewhere will not double-evaluate
// it: an already-processed child contributes its last output verbatim.
type ChainNode struct {
	core   Core
	source Node
	target Node
	ctx    Context
}

// NewChain constructs a source >> target pipeline node.
func NewChain(source, target Node) *ChainNode {
	n := &ChainNode{source: source, target: target}
	n.ctx.NodeKind = "chain"
	return n
}

// ProcessSample evaluates the source with input, then the target with the
// source's result.
func (n *ChainNode) ProcessSample(input Sample) Sample {
	if n.source == nil || n.target == nil {
		return input
	}

	src, tgt := n.source.Core(), n.target.Core()
	src.AddModulator(1)
	tgt.AddModulator(1)

	var mid Sample
	if src.HasState(StateProcessed) {
		mid = src.LastOutput()
	} else {
		mid = n.source.ProcessSample(input)
		src.AddState(StateProcessed)
	}

	var out Sample
	if tgt.HasState(StateProcessed) {
		out = tgt.LastOutput()
	} else {
		out = n.target.ProcessSample(mid)
		tgt.AddState(StateProcessed)
	}

	src.AddModulator(-1)
	tgt.AddModulator(-1)

	TryResetProcessedState(n.source)
	TryResetProcessedState(n.target)

	n.core.SetLastOutput(out)
	n.ctx.Value = out
	n.core.NotifyTick(&n.ctx)
	return out
}

// ProcessBatch runs the chain for n samples.
func (n *ChainNode) ProcessBatch(frames int) []Sample {
	return batch(n, frames)
}

// SaveState snapshots both children.
func (n *ChainNode) SaveState() {
	if n.source != nil {
		n.source.SaveState()
	}
	if n.target != nil {
		n.target.SaveState()
	}
	n.core.MarkStateSaved(true)
}

// RestoreState restores both children.
func (n *ChainNode) RestoreState() {
	if !n.core.StateSaved() {
		return
	}
	if n.source != nil {
		n.source.RestoreState()
	}
	if n.target != nil {
		n.target.RestoreState()
	}
	n.core.MarkStateSaved(false)
}

// Core exposes the shared node state block.
func (n *ChainNode) Core() *Core {
	return &n.core
}

// Source returns the upstream child.
func (n *ChainNode) Source() Node { return n.source }

// Target returns the downstream child.
func (n *ChainNode) Target() Node { return n.target }

// BinaryOpNode combines the outputs of two nodes with a pure function, e.g.
// addition or multiplication. Both children participate in the fan-in
// protocol.
type BinaryOpNode struct {
	core    Core
	lhs     Node
	rhs     Node
	combine CombineFunc
	ctx     Context
}

// NewBinaryOp constructs a node computing combine(lhs, rhs) per sample.
func NewBinaryOp(lhs, rhs Node, combine CombineFunc) *BinaryOpNode {
	n := &BinaryOpNode{lhs: lhs, rhs: rhs, combine: combine}
	n.ctx.NodeKind = "binary_op"
	return n
}

// ProcessSample feeds input to both children and combines their outputs.
// An already-processed child contributes its last output verbatim; the
// input is not added a second time.
func (n *BinaryOpNode) ProcessSample(input Sample) Sample {
	if n.lhs == nil || n.rhs == nil {
		return input
	}

	l, r := n.lhs.Core(), n.rhs.Core()
	l.AddModulator(1)
	r.AddModulator(1)

	var lv, rv Sample
	if l.HasState(StateProcessed) {
		lv = l.LastOutput()
	} else {
		lv = n.lhs.ProcessSample(input)
		l.AddState(StateProcessed)
	}

	if r.HasState(StateProcessed) {
		rv = r.LastOutput()
	} else {
		rv = n.rhs.ProcessSample(input)
		r.AddState(StateProcessed)
	}

	out := n.combine(lv, rv)
	n.core.SetLastOutput(out)
	n.ctx.Value = out
	n.core.NotifyTick(&n.ctx)

	l.AddModulator(-1)
	r.AddModulator(-1)

	TryResetProcessedState(n.lhs)
	TryResetProcessedState(n.rhs)

	return out
}

// ProcessBatch runs the combination for n samples.
func (n *BinaryOpNode) ProcessBatch(frames int) []Sample {
	return batch(n, frames)
}

// SaveState snapshots both children.
func (n *BinaryOpNode) SaveState() {
	if n.lhs != nil {
		n.lhs.SaveState()
	}
	if n.rhs != nil {
		n.rhs.SaveState()
	}
	n.core.MarkStateSaved(true)
}

// RestoreState restores both children.
func (n *BinaryOpNode) RestoreState() {
	if !n.core.StateSaved() {
		return
	}
	if n.lhs != nil {
		n.lhs.RestoreState()
	}
	if n.rhs != nil {
		n.rhs.RestoreState()
	}
	n.core.MarkStateSaved(false)
}

// Core exposes the shared node state block.
func (n *BinaryOpNode) Core() *Core {
	return &n.core
}

// LHS returns the left child.
func (n *BinaryOpNode) LHS() Node { return n.lhs }

// RHS returns the right child.
func (n *BinaryOpNode) RHS() Node { return n.rhs }
