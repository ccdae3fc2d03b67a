// Package graph implements the real-time signal node graph: the node state
// machine, the fan-in evaluation protocol, structural nodes, and per-channel
// root collectors.
//
// All graph arithmetic is float64. A node is evaluated at most once per
// cycle regardless of how many consumers read it; consumers that find a node
// already processed reuse its last output.
package graph

import (
	"math"
	"sync/atomic"
)

// Sample is the engine's scalar sample type, nominal range [-1.0, +1.0].
type Sample = float64

// MaxChannels is the hard ceiling for mask-based fan-in reset. Domains may
// carry more channels, but channels at or above this index opt out of the
// channel-mask reset protocol and reset unconditionally at root postprocess.
const MaxChannels = 32

// Node state bitmask values.
const (
	StateInactive       uint32 = 0x00 // not in any root
	StateActive         uint32 = 0x01 // in at least one root's live list
	StatePendingRemoval uint32 = 0x02 // marked for removal at next safe point
	StateMockProcess    uint32 = 0x04 // process but discard output at root mixdown
	StateProcessed      uint32 = 0x08 // already evaluated this cycle
)

// Node is a polymorphic scalar sample producer.
//
// ProcessSample produces exactly one sample. ProcessBatch produces n samples;
// implementations typically loop ProcessSample but may vectorize.
// SaveState/RestoreState snapshot all sample-affecting internal state; a
// restore without a prior save is a no-op.
type Node interface {
	ProcessSample(input Sample) Sample
	ProcessBatch(n int) []Sample
	SaveState()
	RestoreState()
	Core() *Core
}

// GPUSource is an optional capability: a node exposing a read-only float32
// view of its last produced window for frame-rate consumers.
type GPUSource interface {
	Node
	GPUWindow() []float32
}

// Core holds the shared per-node state every Node embeds: the atomic state
// word, fan-in counters, channel masks, snapshot bookkeeping, and the
// callback lists. All fields are safe for concurrent access between the
// audio thread and control threads.
type Core struct {
	state          atomic.Uint32
	lastOutput     atomic.Uint64 // float64 bits
	modulatorCount atomic.Int32

	activeChannels atomic.Uint32
	pendingReset   atomic.Uint32

	snapshotContext atomic.Uint64 // 0 = no active snapshot

	bufferRefCount   atomic.Uint32
	bufferProcessed  atomic.Bool
	bufferResetCount atomic.Uint32

	stateSaved               atomic.Bool
	fireEventsDuringSnapshot atomic.Bool

	hooks hookSet

	gpuWindow atomic.Pointer[[]float32]
}

// LastOutput returns the most recently produced sample.
func (c *Core) LastOutput() Sample {
	return math.Float64frombits(c.lastOutput.Load())
}

// SetLastOutput records the most recently produced sample.
func (c *Core) SetLastOutput(v Sample) {
	c.lastOutput.Store(math.Float64bits(v))
}

// State returns the current state bitmask.
func (c *Core) State() uint32 {
	return c.state.Load()
}

// HasState reports whether every bit in flag is set.
func (c *Core) HasState(flag uint32) bool {
	return c.state.Load()&flag == flag
}

// AddState atomically ORs flag into the state word.
func (c *Core) AddState(flag uint32) {
	c.state.Or(flag)
}

// RemoveState atomically clears flag from the state word.
func (c *Core) RemoveState(flag uint32) {
	c.state.And(^flag)
}

// SetState replaces the whole state word.
func (c *Core) SetState(state uint32) {
	c.state.Store(state)
}

// AddModulator adjusts the in-flight consumer count by delta. Consumers
// increment before reading an upstream node and decrement after; a node with
// a nonzero count is held and may not have its processed flag cleared.
func (c *Core) AddModulator(delta int32) {
	c.modulatorCount.Add(delta)
}

// ModulatorCount returns the in-flight consumer count.
func (c *Core) ModulatorCount() int32 {
	return c.modulatorCount.Load()
}

// SetMockProcess marks the node for process-but-discard at root mixdown.
func (c *Core) SetMockProcess(mock bool) {
	if mock {
		c.AddState(StateMockProcess)
	} else {
		c.RemoveState(StateMockProcess)
	}
}

// StateSaved reports whether a snapshot is currently held.
func (c *Core) StateSaved() bool {
	return c.stateSaved.Load()
}

// MarkStateSaved records snapshot possession; concrete nodes call this from
// SaveState/RestoreState.
func (c *Core) MarkStateSaved(saved bool) {
	c.stateSaved.Store(saved)
}

// SetFireEventsDuringSnapshot controls whether tick hooks fire while a
// snapshot is held. Default is suppressed.
func (c *Core) SetFireEventsDuringSnapshot(fire bool) {
	c.fireEventsDuringSnapshot.Store(fire)
}

// shouldNotify reports whether tick hooks may fire right now.
func (c *Core) shouldNotify() bool {
	return !c.stateSaved.Load() || c.fireEventsDuringSnapshot.Load()
}

// RegisterChannelUsage marks channelID as a user of this node this cycle.
// Channels at or above MaxChannels are not tracked by the mask.
func (c *Core) RegisterChannelUsage(channelID uint32) {
	if channelID >= MaxChannels {
		return
	}
	c.activeChannels.Or(uint32(1) << channelID)
}

// UnregisterChannelUsage clears channelID from both masks.
func (c *Core) UnregisterChannelUsage(channelID uint32) {
	if channelID >= MaxChannels {
		return
	}
	bit := uint32(1) << channelID
	c.activeChannels.And(^bit)
	c.pendingReset.And(^bit)
}

// IsUsedByChannel reports whether channelID currently uses this node.
func (c *Core) IsUsedByChannel(channelID uint32) bool {
	if channelID >= MaxChannels {
		return false
	}
	return c.activeChannels.Load()&(uint32(1)<<channelID) != 0
}

// ActiveChannelsMask returns the raw usage mask.
func (c *Core) ActiveChannelsMask() uint32 {
	return c.activeChannels.Load()
}

// RequestResetFromChannel records that channelID finished its pass over this
// node. When every active channel has requested a reset, the processed flag
// is cleared and the pending mask zeroed, making the node eligible for
// re-evaluation next cycle. Channels outside the mask range clear the
// processed flag directly.
func (c *Core) RequestResetFromChannel(channelID uint32) {
	if channelID >= MaxChannels {
		c.resetProcessedInternal()
		return
	}
	bit := uint32(1) << channelID
	newPending := c.pendingReset.Or(bit) | bit
	active := c.activeChannels.Load()

	if newPending&active == active && active != 0 {
		if c.pendingReset.CompareAndSwap(newPending, 0) {
			c.resetProcessedInternal()
		}
	}
}

// ResetProcessedState clears the processed flag, but only when no channel
// owns the node; channel-owned nodes reset through the mask protocol.
func (c *Core) ResetProcessedState() {
	if c.activeChannels.Load() == 0 {
		c.resetProcessedInternal()
	}
}

func (c *Core) resetProcessedInternal() {
	c.RemoveState(StateProcessed)
}

// TryClaimSnapshotContext installs contextID if no snapshot is active.
// Returns false when another context already holds the claim; the caller
// must then reuse the in-flight snapshot rather than issue a second save.
func (c *Core) TryClaimSnapshotContext(contextID uint64) bool {
	return c.snapshotContext.CompareAndSwap(0, contextID)
}

// IsInSnapshotContext reports whether contextID currently holds the claim.
func (c *Core) IsInSnapshotContext(contextID uint64) bool {
	return c.snapshotContext.Load() == contextID
}

// ReleaseSnapshotContext clears the claim if contextID holds it.
func (c *Core) ReleaseSnapshotContext(contextID uint64) {
	c.snapshotContext.CompareAndSwap(contextID, 0)
}

// HasActiveSnapshot reports whether any snapshot claim is installed.
func (c *Core) HasActiveSnapshot() bool {
	return c.snapshotContext.Load() != 0
}

// AddBufferReference counts a buffer that drives this node directly.
func (c *Core) AddBufferReference() {
	c.bufferRefCount.Add(1)
}

// RemoveBufferReference drops a buffer reference.
func (c *Core) RemoveBufferReference() {
	c.bufferRefCount.Add(^uint32(0))
}

// BufferReferenceCount returns the number of buffers driving this node.
func (c *Core) BufferReferenceCount() uint32 {
	return c.bufferRefCount.Load()
}

// MarkBufferProcessed flags the node as evaluated through a buffer this
// cycle. Only applies to nodes outside any root (inactive); returns true on
// the first successful mark.
func (c *Core) MarkBufferProcessed() bool {
	count := c.bufferRefCount.Load()
	state := c.state.Load()

	if count >= 1 && state == StateInactive {
		if c.bufferProcessed.CompareAndSwap(false, true) {
			c.bufferResetCount.Add(1)
			return true
		}
	}
	return false
}

// RequestBufferReset is the buffer-side analogue of the channel reset mask:
// when every referencing buffer has requested a reset, the buffer-processed
// flag clears.
func (c *Core) RequestBufferReset() {
	resetCount := c.bufferResetCount.Add(1) - 1
	bufferCount := c.bufferRefCount.Load()

	if resetCount == bufferCount {
		c.bufferProcessed.Store(false)
		c.bufferResetCount.Store(0)
	}
}

// BufferProcessed reports the buffer-cycle evaluation flag.
func (c *Core) BufferProcessed() bool {
	return c.bufferProcessed.Load()
}

// StoreGPUWindow publishes a float32 view of the node's last produced
// window. A nil window withdraws the capability.
func (c *Core) StoreGPUWindow(window []float32) {
	if window == nil {
		c.gpuWindow.Store(nil)
		return
	}
	c.gpuWindow.Store(&window)
}

// GPUWindow returns the published window, or nil when the node has none.
func (c *Core) GPUWindow() []float32 {
	if p := c.gpuWindow.Load(); p != nil {
		return *p
	}
	return nil
}

// Evaluate runs the fan-in protocol for one read of upstream by a consumer:
// hold the node, reuse its last output when already processed this cycle,
// otherwise evaluate it and mark it processed, then release and offer a
// reset. This is what guarantees at-most-one evaluation per node per cycle
// without locking.
func Evaluate(n Node, input Sample) Sample {
	c := n.Core()
	c.AddModulator(1)

	var out Sample
	if c.HasState(StateProcessed) {
		out = c.LastOutput()
	} else {
		out = n.ProcessSample(input)
		c.AddState(StateProcessed)
	}

	c.AddModulator(-1)
	TryResetProcessedState(n)
	return out
}

// TryResetProcessedState clears a node's processed flag when it is no longer
// held by any in-flight consumer and no channel owns it. Channel-owned nodes
// are reset by their root collectors through the mask protocol instead.
func TryResetProcessedState(n Node) {
	c := n.Core()
	if c.ModulatorCount() == 0 {
		c.ResetProcessedState()
	}
}

// ActiveChannels expands a channel mask into a slice of channel indices.
// A zero mask yields the fallback channel alone.
func ActiveChannels(mask, fallback uint32) []uint32 {
	if mask == 0 {
		return []uint32{fallback}
	}
	channels := make([]uint32, 0, MaxChannels)
	for ch := uint32(0); ch < MaxChannels; ch++ {
		if mask&(uint32(1)<<ch) != 0 {
			channels = append(channels, ch)
		}
	}
	return channels
}

// batch produces n samples by looping a node's ProcessSample. Concrete nodes
// use it as their default ProcessBatch body.
func batch(n Node, frames int) []Sample {
	out := make([]Sample, frames)
	for i := range out {
		out[i] = n.ProcessSample(0)
	}
	return out
}
