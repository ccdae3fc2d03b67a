package buffers

import (
	"github.com/mayaflux/mayaflux-go/internal/graph"
)

// nodeSource is implemented by processors that directly drive a node; the
// isolated-processing path uses it to find snapshot targets.
type nodeSource interface {
	SourceNode() graph.Node
}

// NodeSourceProcessor writes a node's batch output into its target buffer,
// either replacing the contents or mixing at the configured level.
type NodeSourceProcessor struct {
	node        graph.Node
	mix         Sample
	clearBefore bool
}

// NewNodeSourceProcessor wraps node as a buffer processor. mix is clamped to
// [0, 1].
func NewNodeSourceProcessor(node graph.Node, mix Sample, clearBefore bool) *NodeSourceProcessor {
	switch {
	case mix < 0:
		mix = 0
	case mix > 1:
		mix = 1
	}
	p := &NodeSourceProcessor{node: node, mix: mix, clearBefore: clearBefore}
	node.Core().AddBufferReference()
	return p
}

// SourceNode returns the driven node.
func (p *NodeSourceProcessor) SourceNode() graph.Node { return p.node }

// Process renders one batch from the node into buf.
func (p *NodeSourceProcessor) Process(buf *AudioBuffer) {
	data := buf.Data()
	out := p.node.ProcessBatch(len(data))

	if p.clearBefore {
		for i := range data {
			data[i] = out[i] * p.mix
		}
	} else {
		for i := range data {
			data[i] += out[i] * p.mix
		}
	}

	buf.MarkDataForCycle()
	p.node.Core().MarkBufferProcessed()
}

// FinalLimiter hard-clamps every sample into [-1, +1]. Installed as the
// final processor on each root buffer so nothing past the mix point exceeds
// full scale.
type FinalLimiter struct{}

// NewFinalLimiter constructs the limiter.
func NewFinalLimiter() *FinalLimiter {
	return &FinalLimiter{}
}

// Process clamps buf in place.
func (l *FinalLimiter) Process(buf *AudioBuffer) {
	data := buf.Data()
	for i, s := range data {
		switch {
		case s > 1.0:
			data[i] = 1.0
		case s < -1.0:
			data[i] = -1.0
		}
	}
}

// ProcessingFunc adapts a plain closure to the processor interface.
type ProcessingFunc func(buf *AudioBuffer)

// QuickProcess wraps a closure into a trivial processor so callers can
// attach ad-hoc per-buffer work without defining a type.
type QuickProcess struct {
	fn ProcessingFunc
}

// NewQuickProcess wraps fn.
func NewQuickProcess(fn ProcessingFunc) *QuickProcess {
	return &QuickProcess{fn: fn}
}

// Process invokes the wrapped closure.
func (q *QuickProcess) Process(buf *AudioBuffer) {
	q.fn(buf)
}

// GainProcessor scales a buffer by a fixed factor.
type GainProcessor struct {
	gain Sample
}

// NewGainProcessor constructs a gain stage.
func NewGainProcessor(gain Sample) *GainProcessor {
	return &GainProcessor{gain: gain}
}

// SetGain replaces the scale factor.
func (g *GainProcessor) SetGain(gain Sample) { g.gain = gain }

// Process scales buf in place.
func (g *GainProcessor) Process(buf *AudioBuffer) {
	data := buf.Data()
	for i := range data {
		data[i] *= g.gain
	}
}
