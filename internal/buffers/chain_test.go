package buffers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mayaflux/mayaflux-go/internal/graph"
)

func TestChainProcessesOnlyMatchingTarget(t *testing.T) {
	t.Parallel()

	chain := NewProcessingChain()
	target := NewAudioBuffer(0, 4)
	other := NewAudioBuffer(1, 4)

	touched := 0
	chain.AddProcessor(NewQuickProcess(func(*AudioBuffer) { touched++ }), target)

	chain.Process(other)
	assert.Equal(t, 0, touched)

	chain.Process(target)
	assert.Equal(t, 1, touched)
}

func TestChainPreservesInsertionOrder(t *testing.T) {
	t.Parallel()

	chain := NewProcessingChain()
	buf := NewAudioBuffer(0, 4)

	var order []string
	chain.AddProcessor(NewQuickProcess(func(*AudioBuffer) { order = append(order, "first") }), buf)
	chain.AddProcessor(NewQuickProcess(func(*AudioBuffer) { order = append(order, "second") }), buf)
	chain.AddFinalProcessor(NewQuickProcess(func(*AudioBuffer) { order = append(order, "final") }), buf)

	chain.Process(buf)
	chain.ProcessFinal(buf)

	assert.Equal(t, []string{"first", "second", "final"}, order)
}

func TestMergeChainIsIdempotent(t *testing.T) {
	t.Parallel()

	chain := NewProcessingChain()
	buf := NewAudioBuffer(0, 4)
	chain.AddProcessor(NewGainProcessor(0.5), buf)
	chain.AddFinalProcessor(NewFinalLimiter(), buf)

	chain.MergeChain(chain)
	assert.Equal(t, 1, chain.Len())
	assert.Equal(t, 1, chain.FinalLen())

	other := NewProcessingChain()
	other.AddProcessor(NewGainProcessor(2.0), buf)

	chain.MergeChain(other)
	require.Equal(t, 2, chain.Len())
	chain.MergeChain(other)
	assert.Equal(t, 2, chain.Len(), "re-merging the same chain adds nothing")
}

func TestChainDuplicatePairSkipped(t *testing.T) {
	t.Parallel()

	chain := NewProcessingChain()
	buf := NewAudioBuffer(0, 4)
	gain := NewGainProcessor(0.5)

	chain.AddProcessor(gain, buf)
	chain.AddProcessor(gain, buf)
	assert.Equal(t, 1, chain.Len())

	// Same processor on a different target is a distinct pair.
	chain.AddProcessor(gain, NewAudioBuffer(1, 4))
	assert.Equal(t, 2, chain.Len())
}

func TestNodeSourceProcessorReplacesAndMixes(t *testing.T) {
	t.Parallel()

	buf := NewAudioBuffer(0, 4)
	for i := range buf.Data() {
		buf.Data()[i] = 1.0
	}

	replace := NewNodeSourceProcessor(graph.NewConstant(0.5), 1.0, true)
	replace.Process(buf)
	for _, v := range buf.Data() {
		assert.InDelta(t, 0.5, v, 1e-12)
	}

	mix := NewNodeSourceProcessor(graph.NewConstant(0.5), 0.5, false)
	mix.Process(buf)
	for _, v := range buf.Data() {
		assert.InDelta(t, 0.75, v, 1e-12)
	}
}

func TestFinalLimiterClamps(t *testing.T) {
	t.Parallel()

	buf := NewAudioBuffer(0, 4)
	data := buf.Data()
	data[0], data[1], data[2], data[3] = 3.0, -3.0, 0.25, 1.0

	NewFinalLimiter().Process(buf)

	assert.Equal(t, []Sample{1.0, -1.0, 0.25, 1.0}, buf.Data())
}

func TestProcessIsolatedRestoresNodeState(t *testing.T) {
	t.Parallel()

	acc := graph.NewAccumulator(1)
	buf := NewAudioBuffer(0, 8)

	chain := NewProcessingChain()
	chain.AddProcessor(NewNodeSourceProcessor(acc, 1.0, true), buf)

	// The isolated evaluation consumes eight counter steps, then rewinds.
	chain.ProcessIsolated(buf)
	assert.InDelta(t, 7.0, buf.Data()[7], 1e-12)

	assert.InDelta(t, 0.0, acc.ProcessSample(0), 1e-12, "live state untouched")
	assert.False(t, acc.Core().HasActiveSnapshot())
}

func TestProcessIsolatedReusesForeignSnapshot(t *testing.T) {
	t.Parallel()

	acc := graph.NewAccumulator(1)
	buf := NewAudioBuffer(0, 4)

	chain := NewProcessingChain()
	chain.AddProcessor(NewNodeSourceProcessor(acc, 1.0, true), buf)

	// Another chain already snapshotting this node: the claim fails and the
	// isolated pass must not save or restore.
	foreign := NextSnapshotContextID()
	require.True(t, acc.Core().TryClaimSnapshotContext(foreign))
	acc.SaveState()

	chain.ProcessIsolated(buf)

	// The foreign snapshot is still in place and untouched.
	assert.True(t, acc.Core().IsInSnapshotContext(foreign))
	acc.RestoreState()
	acc.Core().ReleaseSnapshotContext(foreign)
	assert.InDelta(t, 0.0, acc.ProcessSample(0), 1e-12)
}

func TestSnapshotContextIDsAreUnique(t *testing.T) {
	t.Parallel()

	seen := make(map[uint64]bool)
	for i := 0; i < 1000; i++ {
		id := NextSnapshotContextID()
		require.NotZero(t, id)
		require.False(t, seen[id])
		seen[id] = true
	}
}
