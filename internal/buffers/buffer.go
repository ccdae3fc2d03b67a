// Package buffers implements the multi-channel buffer layer that drives the
// node graph: child and root audio buffers, processor chains, and the
// token-routed buffer manager that orchestrates a processing cycle.
package buffers

import (
	"github.com/mayaflux/mayaflux-go/internal/graph"
)

// Sample is the buffer layer's scalar type, shared with the graph.
type Sample = graph.Sample

// AudioBuffer owns one channel's worth of samples plus an optional
// processing chain and an optional source node that fills it each cycle.
// Child buffers are individually processed and then mixed into their root by
// the root's default processing.
type AudioBuffer struct {
	channelID uint32
	data      []Sample
	chain     *ProcessingChain
	source    graph.Node

	needsDefault bool
	hasData      bool
}

// NewAudioBuffer constructs a buffer for the given channel and frame count.
func NewAudioBuffer(channelID uint32, frames uint32) *AudioBuffer {
	return &AudioBuffer{
		channelID: channelID,
		data:      make([]Sample, frames),
	}
}

// ChannelID returns the channel this buffer is attached to.
func (b *AudioBuffer) ChannelID() uint32 { return b.channelID }

// SetChannelID re-homes the buffer to a channel; the manager assigns this
// when the buffer is attached.
func (b *AudioBuffer) SetChannelID(id uint32) { b.channelID = id }

// Data returns the sample storage. Owned by the buffer; read and written
// only on the audio thread between preprocess and postprocess.
func (b *AudioBuffer) Data() []Sample { return b.data }

// SetData replaces the sample storage.
func (b *AudioBuffer) SetData(data []Sample) {
	b.data = data
	b.hasData = len(data) > 0
}

// Frames returns the buffer length in samples.
func (b *AudioBuffer) Frames() int { return len(b.data) }

// Resize grows or shrinks the sample storage, preserving the prefix.
func (b *AudioBuffer) Resize(frames uint32) {
	if int(frames) == len(b.data) {
		return
	}
	next := make([]Sample, frames)
	copy(next, b.data)
	b.data = next
}

// Clear zeroes the sample storage and drops the cycle-data flag.
func (b *AudioBuffer) Clear() {
	for i := range b.data {
		b.data[i] = 0
	}
	b.hasData = false
}

// Chain returns the buffer's processing chain, or nil.
func (b *AudioBuffer) Chain() *ProcessingChain { return b.chain }

// SetChain attaches a processing chain.
func (b *AudioBuffer) SetChain(chain *ProcessingChain) { b.chain = chain }

// Source returns the node that fills this buffer each cycle, or nil.
func (b *AudioBuffer) Source() graph.Node { return b.source }

// SetSource installs a source node. The node is counted as buffer-driven
// for the buffer-reset protocol.
func (b *AudioBuffer) SetSource(n graph.Node) {
	if b.source != nil {
		b.source.Core().RemoveBufferReference()
	}
	b.source = n
	if n != nil {
		n.Core().AddBufferReference()
		b.needsDefault = true
	} else {
		b.needsDefault = false
	}
}

// NeedsDefaultProcessing reports whether the buffer fills itself from a
// source node at the start of each cycle.
func (b *AudioBuffer) NeedsDefaultProcessing() bool { return b.needsDefault }

// SetNeedsDefaultProcessing overrides the default-processing flag.
func (b *AudioBuffer) SetNeedsDefaultProcessing(v bool) { b.needsDefault = v }

// HasDataForCycle reports whether the buffer produced data this cycle.
func (b *AudioBuffer) HasDataForCycle() bool { return b.hasData }

// MarkDataForCycle flags the buffer as carrying data this cycle.
func (b *AudioBuffer) MarkDataForCycle() { b.hasData = true }

// ProcessDefault fills the buffer from its source node for one cycle.
func (b *AudioBuffer) ProcessDefault() {
	if b.source == nil {
		return
	}
	out := b.source.ProcessBatch(len(b.data))
	copy(b.data, out)
	b.hasData = true
	b.source.Core().MarkBufferProcessed()
}

// Clone returns a deep copy of the buffer for another channel. The clone
// shares the source node reference but owns its own sample storage; the
// chain is not carried over.
func (b *AudioBuffer) Clone(channelID uint32) *AudioBuffer {
	clone := NewAudioBuffer(channelID, uint32(len(b.data)))
	copy(clone.data, b.data)
	if b.source != nil {
		clone.SetSource(b.source)
	}
	clone.needsDefault = b.needsDefault
	return clone
}

// RootAudioBuffer is the per-channel mix point: it owns the channel's cycle
// data, the child buffers mixed into it, and the collector whose node
// outputs feed it.
type RootAudioBuffer struct {
	AudioBuffer
	children  []*AudioBuffer
	collector *graph.RootCollector
}

// NewRootAudioBuffer constructs a root for one channel.
func NewRootAudioBuffer(channelID, frames uint32, collector *graph.RootCollector) *RootAudioBuffer {
	return &RootAudioBuffer{
		AudioBuffer: AudioBuffer{
			channelID: channelID,
			data:      make([]Sample, frames),
		},
		collector: collector,
	}
}

// Collector returns the root collector feeding this buffer.
func (rb *RootAudioBuffer) Collector() *graph.RootCollector { return rb.collector }

// Children returns the attached child buffers. The root holds non-owning
// references; children own their sample storage.
func (rb *RootAudioBuffer) Children() []*AudioBuffer { return rb.children }

// AddChild attaches a child buffer to be mixed in at default processing.
func (rb *RootAudioBuffer) AddChild(child *AudioBuffer) {
	for _, existing := range rb.children {
		if existing == child {
			return
		}
	}
	rb.children = append(rb.children, child)
}

// RemoveChild detaches a child buffer. Returns false when absent.
func (rb *RootAudioBuffer) RemoveChild(child *AudioBuffer) bool {
	for i, existing := range rb.children {
		if existing == child {
			rb.children = append(rb.children[:i], rb.children[i+1:]...)
			return true
		}
	}
	return false
}

// ProcessDefault mixes the collector's node outputs and every child buffer
// with cycle data into the root's storage.
func (rb *RootAudioBuffer) ProcessDefault() {
	if rb.collector != nil {
		for i := range rb.data {
			rb.data[i] += rb.collector.ProcessSample()
		}
	}

	for _, child := range rb.children {
		if !child.hasData {
			continue
		}
		n := min(len(child.data), len(rb.data))
		for i := 0; i < n; i++ {
			rb.data[i] += child.data[i]
		}
		child.hasData = false
	}

	rb.hasData = true
}
