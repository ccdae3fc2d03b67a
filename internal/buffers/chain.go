package buffers

import (
	"encoding/binary"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/mayaflux/mayaflux-go/internal/graph"
)

// BufferProcessor transforms a buffer in place. Processors are compared by
// identity for deduplication and removal.
type BufferProcessor interface {
	Process(buf *AudioBuffer)
}

// chainEntry pairs a processor with the buffer it targets.
type chainEntry struct {
	processor BufferProcessor
	target    *AudioBuffer
}

// ProcessingChain is an ordered list of (processor, target buffer) pairs
// plus a separate ordered list of final processors that run after the main
// list and the global chain.
type ProcessingChain struct {
	mu      sync.Mutex
	entries []chainEntry
	finals  []chainEntry
}

// NewProcessingChain constructs an empty chain.
func NewProcessingChain() *ProcessingChain {
	return &ProcessingChain{}
}

// AddProcessor appends a processor targeting buf. Duplicate
// (processor, target) pairs are skipped.
func (pc *ProcessingChain) AddProcessor(p BufferProcessor, target *AudioBuffer) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	for _, e := range pc.entries {
		if e.processor == p && e.target == target {
			return
		}
	}
	pc.entries = append(pc.entries, chainEntry{processor: p, target: target})
}

// RemoveProcessor removes the (processor, target) pair. Idempotent.
func (pc *ProcessingChain) RemoveProcessor(p BufferProcessor, target *AudioBuffer) bool {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	for i, e := range pc.entries {
		if e.processor == p && e.target == target {
			pc.entries = append(pc.entries[:i], pc.entries[i+1:]...)
			return true
		}
	}
	return false
}

// AddFinalProcessor appends a processor to the final list.
func (pc *ProcessingChain) AddFinalProcessor(p BufferProcessor, target *AudioBuffer) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	for _, e := range pc.finals {
		if e.processor == p && e.target == target {
			return
		}
	}
	pc.finals = append(pc.finals, chainEntry{processor: p, target: target})
}

// RemoveFinalProcessor removes a final (processor, target) pair.
func (pc *ProcessingChain) RemoveFinalProcessor(p BufferProcessor, target *AudioBuffer) bool {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	for i, e := range pc.finals {
		if e.processor == p && e.target == target {
			pc.finals = append(pc.finals[:i], pc.finals[i+1:]...)
			return true
		}
	}
	return false
}

// Process runs, in insertion order, every processor whose target is buf.
func (pc *ProcessingChain) Process(buf *AudioBuffer) {
	pc.mu.Lock()
	entries := make([]chainEntry, len(pc.entries))
	copy(entries, pc.entries)
	pc.mu.Unlock()

	for _, e := range entries {
		if e.target == buf {
			e.processor.Process(buf)
		}
	}
}

// ProcessFinal runs the final list for buf. Called by the manager after the
// main list and the global chain.
func (pc *ProcessingChain) ProcessFinal(buf *AudioBuffer) {
	pc.mu.Lock()
	finals := make([]chainEntry, len(pc.finals))
	copy(finals, pc.finals)
	pc.mu.Unlock()

	for _, e := range finals {
		if e.target == buf {
			e.processor.Process(buf)
		}
	}
}

// MergeChain appends other's processors into pc, preserving order and
// skipping duplicates. Merging a chain into itself is a no-op.
func (pc *ProcessingChain) MergeChain(other *ProcessingChain) {
	if other == nil || other == pc {
		return
	}

	other.mu.Lock()
	entries := make([]chainEntry, len(other.entries))
	copy(entries, other.entries)
	finals := make([]chainEntry, len(other.finals))
	copy(finals, other.finals)
	other.mu.Unlock()

	for _, e := range entries {
		pc.AddProcessor(e.processor, e.target)
	}
	for _, e := range finals {
		pc.AddFinalProcessor(e.processor, e.target)
	}
}

// Len returns the number of main-list entries.
func (pc *ProcessingChain) Len() int {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return len(pc.entries)
}

// FinalLen returns the number of final-list entries.
func (pc *ProcessingChain) FinalLen() int {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return len(pc.finals)
}

// snapshotContextCounter issues process-unique snapshot context ids, seeded
// from a random UUID so ids never collide with a stale zero.
var snapshotContextCounter = func() *atomic.Uint64 {
	var c atomic.Uint64
	u := uuid.New()
	c.Store(binary.BigEndian.Uint64(u[:8]) | 1)
	return &c
}()

// NextSnapshotContextID returns a fresh nonzero snapshot context id.
func NextSnapshotContextID() uint64 {
	for {
		id := snapshotContextCounter.Add(1)
		if id != 0 {
			return id
		}
	}
}

// ProcessIsolated evaluates buf outside its normal cycle position: every
// node directly driven by a processor targeting buf is snapshotted first and
// restored after, so the isolated evaluation does not disturb live state.
// When another chain already holds a snapshot claim on a node, the in-flight
// snapshot is reused rather than saving a second time.
func (pc *ProcessingChain) ProcessIsolated(buf *AudioBuffer) {
	contextID := NextSnapshotContextID()

	pc.mu.Lock()
	entries := make([]chainEntry, len(pc.entries))
	copy(entries, pc.entries)
	pc.mu.Unlock()

	var claimed []graph.Node

	for _, e := range entries {
		if e.target != buf {
			continue
		}
		src, ok := e.processor.(nodeSource)
		if !ok {
			continue
		}
		n := src.SourceNode()
		if n == nil {
			continue
		}
		if n.Core().TryClaimSnapshotContext(contextID) {
			n.SaveState()
			claimed = append(claimed, n)
		}
	}

	for _, e := range entries {
		if e.target == buf {
			e.processor.Process(buf)
		}
	}

	for _, n := range claimed {
		n.RestoreState()
		n.Core().ReleaseSnapshotContext(contextID)
	}
}
