package graph

import (
	"runtime"
	"sync/atomic"

	"github.com/mayaflux/mayaflux-go/internal/conf"
	"github.com/mayaflux/mayaflux-go/internal/errors"
)

// MaxPendingOps is the capacity of a root collector's pending-op ring.
const MaxPendingOps = 256

type nodeHolder struct {
	node Node
}

// pendingOp is one slot of the deferred-mutation ring. A control thread
// claims a slot by flipping active, publishes the node through the pointer,
// and bumps the pending count; the audio thread consumes the slot inside
// preprocess before any sample is produced.
type pendingOp struct {
	active atomic.Bool
	node   atomic.Pointer[nodeHolder]
}

// RootCollector aggregates the active top-level nodes of one
// (token, channel) pair and sums their outputs per sample. Mutations that
// arrive while a processing pass is in flight are deferred through a
// fixed-capacity ring and applied at the next pass boundary, so the audio
// path never takes a lock.
type RootCollector struct {
	token   conf.ProcessingToken
	channel uint32

	// nodes is touched only while isProcessing is held, by the audio thread
	// during a pass or by a control thread that claimed the collector for a
	// direct mutation.
	nodes []Node

	isProcessing atomic.Bool
	pendingOps   [MaxPendingOps]pendingOp
	pendingCount atomic.Int32

	// skipStateManagement bypasses pre/postprocess for collectors used
	// outside the engine context.
	skipStateManagement bool
}

// NewRootCollector constructs a collector for one (token, channel) pair.
func NewRootCollector(token conf.ProcessingToken, channel uint32) *RootCollector {
	return &RootCollector{token: token, channel: channel}
}

// Token returns the collector's processing domain.
func (rc *RootCollector) Token() conf.ProcessingToken { return rc.token }

// Channel returns the collector's channel index.
func (rc *RootCollector) Channel() uint32 { return rc.channel }

// SetSkipStateManagement bypasses pre/postprocess bookkeeping. Only for
// collectors driven outside the engine.
func (rc *RootCollector) SetSkipStateManagement(skip bool) {
	rc.skipStateManagement = skip
}

// NodeCount returns the size of the live list. Racy against an in-flight
// pass; informational only.
func (rc *RootCollector) NodeCount() int {
	return len(rc.nodes)
}

// RegisterNode adds a node to the live list. When a processing pass is in
// flight the registration is queued and applied at the next pass boundary;
// a full ring makes this call block until the pass completes, so it must
// not be used from the audio thread (use TryRegisterNode there).
func (rc *RootCollector) RegisterNode(n Node) {
	for {
		if rc.claim() {
			rc.registerDirect(n)
			rc.release()
			return
		}
		if rc.queueOp(n, false) {
			return
		}
		// Ring full: wait for the in-flight pass to retire.
		runtime.Gosched()
	}
}

// TryRegisterNode is the non-blocking variant for realtime callers. It
// returns CapacityExceeded when the pending ring is full; the caller must
// retry.
func (rc *RootCollector) TryRegisterNode(n Node) error {
	if rc.claim() {
		rc.registerDirect(n)
		rc.release()
		return nil
	}
	if rc.queueOp(n, false) {
		return nil
	}
	return errors.Newf("pending-op ring full on channel %d", rc.channel).
		Component("graph").
		Category(errors.CategoryCapacity).
		Context("token", rc.token.String()).
		Context("channel", rc.channel).
		Build()
}

// UnregisterNode removes a node from the live list, deferring while a pass
// is in flight. Idempotent for nodes not present.
func (rc *RootCollector) UnregisterNode(n Node) {
	core := n.Core()
	core.AddState(StatePendingRemoval)

	for {
		if rc.claim() {
			rc.unregisterDirect(n)
			rc.release()
			return
		}
		if rc.queueOp(n, true) {
			return
		}
		runtime.Gosched()
	}
}

// claim takes exclusive ownership of the live list by the same flag the
// audio thread uses for a pass. Fails when a pass (or another direct
// mutation) is in flight.
func (rc *RootCollector) claim() bool {
	return rc.isProcessing.CompareAndSwap(false, true)
}

func (rc *RootCollector) release() {
	rc.isProcessing.Store(false)
}

func (rc *RootCollector) registerDirect(n Node) {
	rc.dropQueuedOps(n)

	core := n.Core()
	core.RemoveState(StatePendingRemoval)
	for _, existing := range rc.nodes {
		if existing == n {
			core.AddState(StateActive)
			return
		}
	}
	rc.nodes = append(rc.nodes, n)
	core.AddState(StateActive)
	core.RegisterChannelUsage(rc.channel)
}

func (rc *RootCollector) unregisterDirect(n Node) {
	rc.dropQueuedOps(n)

	for i, existing := range rc.nodes {
		if existing == n {
			rc.nodes = append(rc.nodes[:i], rc.nodes[i+1:]...)
			break
		}
	}
	core := n.Core()
	core.UnregisterChannelUsage(rc.channel)
	core.ResetProcessedState()
	state := core.State()
	state &^= StatePendingRemoval
	state &^= StateActive
	core.SetState(state)
}

// dropQueuedOps neutralizes stale ring entries for a node that is now being
// mutated directly. The caller holds the processing claim, so no drain can
// touch these slots concurrently; queueOp only ever claims inactive slots.
func (rc *RootCollector) dropQueuedOps(n Node) {
	for i := range rc.pendingOps {
		op := &rc.pendingOps[i]
		if !op.active.Load() {
			continue
		}
		holder := op.node.Load()
		if holder == nil || holder.node != n {
			continue
		}
		op.node.Store(nil)
		op.active.Store(false)
		rc.pendingCount.Add(-1)
	}
}

// queueOp claims a ring slot and publishes the node for the next
// preprocess. Removal intent travels in the node's state word.
func (rc *RootCollector) queueOp(n Node, removal bool) bool {
	for i := range rc.pendingOps {
		op := &rc.pendingOps[i]
		if op.active.CompareAndSwap(false, true) {
			if !removal {
				core := n.Core()
				core.RemoveState(StateActive)
			}
			op.node.Store(&nodeHolder{node: n})
			rc.pendingCount.Add(1)
			return true
		}
	}
	return false
}

// Preprocess opens a processing pass. It returns false when another pass is
// already in flight, in which case the caller must skip. Queued
// registrations and removals are applied before any sample is produced.
func (rc *RootCollector) Preprocess() bool {
	if rc.skipStateManagement {
		return true
	}

	if !rc.claim() {
		return false
	}

	if rc.pendingCount.Load() > 0 {
		rc.processPendingOperations()
	}

	return true
}

// ProcessSample evaluates one sample: the sum of every live node's output.
// Nodes already processed this cycle contribute their last output; nodes
// marked for mock processing are evaluated but excluded from the sum.
func (rc *RootCollector) ProcessSample() Sample {
	if !rc.Preprocess() {
		return 0
	}

	var sample Sample

	for _, n := range rc.nodes {
		core := n.Core()
		if !core.HasState(StateProcessed) {
			if core.HasState(StateMockProcess) {
				n.ProcessSample(0)
			} else {
				sample += n.ProcessSample(0)
			}
			core.AddState(StateProcessed)
		} else if !core.HasState(StateMockProcess) {
			sample += core.LastOutput()
		}
	}

	rc.Postprocess()

	return sample
}

// ProcessBatch evaluates n consecutive samples.
func (rc *RootCollector) ProcessBatch(n int) []Sample {
	out := make([]Sample, n)
	for i := range out {
		out[i] = rc.ProcessSample()
	}
	return out
}

// Postprocess closes the pass: every live node is offered a channel reset,
// and the processing flag is released so deferred mutations can land.
func (rc *RootCollector) Postprocess() {
	if rc.skipStateManagement {
		return
	}

	for _, n := range rc.nodes {
		n.Core().RequestResetFromChannel(rc.channel)
	}

	rc.release()
}

// processPendingOperations drains the ring inside an open pass. Nodes not
// yet active are added; nodes flagged for removal are erased.
func (rc *RootCollector) processPendingOperations() {
	for i := range rc.pendingOps {
		op := &rc.pendingOps[i]
		if !op.active.Load() {
			continue
		}
		holder := op.node.Load()
		if holder == nil {
			continue
		}
		n := holder.node
		state := n.Core().State()

		// Branch order matters for queued register+unregister pairs: the
		// registration op lands first (the node is not yet active), then the
		// removal op sees ACTIVE|PENDING_REMOVAL and erases it.
		if state&StateActive == 0 {
			rc.addPending(n)
		} else if state&StatePendingRemoval != 0 {
			rc.removePending(n)
		}

		op.node.Store(nil)
		op.active.Store(false)
		rc.pendingCount.Add(-1)
	}
}

func (rc *RootCollector) addPending(n Node) {
	core := n.Core()
	found := false
	for _, existing := range rc.nodes {
		if existing == n {
			found = true
			break
		}
	}
	if !found {
		rc.nodes = append(rc.nodes, n)
	}
	core.AddState(StateActive)
	core.RegisterChannelUsage(rc.channel)
}

func (rc *RootCollector) removePending(n Node) {
	for i, existing := range rc.nodes {
		if existing == n {
			rc.nodes = append(rc.nodes[:i], rc.nodes[i+1:]...)
			break
		}
	}
	core := n.Core()
	core.UnregisterChannelUsage(rc.channel)
	core.ResetProcessedState()
	state := core.State()
	state &^= StatePendingRemoval
	state &^= StateActive
	core.SetState(state)
}

// ClearAllNodes empties the live list. Blocks until no pass is in flight.
func (rc *RootCollector) ClearAllNodes() {
	for !rc.claim() {
		runtime.Gosched()
	}
	for _, n := range rc.nodes {
		core := n.Core()
		core.UnregisterChannelUsage(rc.channel)
		core.ResetProcessedState()
		core.SetState(StateInactive)
	}
	rc.nodes = nil
	rc.release()
}

// Nodes returns a copy of the live list. Blocks until no pass is in flight.
func (rc *RootCollector) Nodes() []Node {
	for !rc.claim() {
		runtime.Gosched()
	}
	out := make([]Node, len(rc.nodes))
	copy(out, rc.nodes)
	rc.release()
	return out
}
