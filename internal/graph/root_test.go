package graph

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mayaflux/mayaflux-go/internal/conf"
)

func TestSharedUpstreamEvaluatedOnce(t *testing.T) {
	t.Parallel()

	rc := NewRootCollector(conf.TokenAudioRate, 0)

	shared := NewConstant(0.7)
	evaluations := 0
	shared.Core().OnTick(func(*Context) { evaluations++ })

	doubled := NewBinaryOp(shared, NewConstant(2.0), func(a, b Sample) Sample { return a * b })

	rc.RegisterNode(shared)
	rc.RegisterNode(doubled)

	sample := rc.ProcessSample()

	assert.Equal(t, 1, evaluations, "shared upstream must evaluate exactly once per cycle")
	assert.InDelta(t, 0.7+0.7*2.0, sample, 1e-12)
}

func TestRootSumMatchesLastOutputs(t *testing.T) {
	t.Parallel()

	rc := NewRootCollector(conf.TokenAudioRate, 0)
	nodes := []Node{NewConstant(0.1), NewConstant(0.25), NewConstant(-0.4)}
	for _, n := range nodes {
		rc.RegisterNode(n)
	}

	for i := 0; i < 16; i++ {
		sample := rc.ProcessSample()
		var sum Sample
		for _, n := range nodes {
			sum += n.Core().LastOutput()
		}
		assert.InDelta(t, sum, sample, 1e-12)
	}
}

func TestRegisterUnregisterRoundTrip(t *testing.T) {
	t.Parallel()

	rc := NewRootCollector(conf.TokenAudioRate, 0)
	base := NewConstant(1)
	rc.RegisterNode(base)
	require.Equal(t, 1, rc.NodeCount())

	added := []Node{NewConstant(2), NewConstant(3), NewConstant(4)}
	for _, n := range added {
		rc.RegisterNode(n)
		rc.ProcessSample()
	}
	require.Equal(t, 4, rc.NodeCount())

	for i := len(added) - 1; i >= 0; i-- {
		rc.UnregisterNode(added[i])
		rc.ProcessSample()
	}

	assert.Equal(t, 1, rc.NodeCount())
	assert.Equal(t, []Node{base}, rc.Nodes())
	for _, n := range added {
		assert.False(t, n.Core().HasState(StateActive))
	}
}

func TestRegisterTwiceKeepsSingleEntry(t *testing.T) {
	t.Parallel()

	rc := NewRootCollector(conf.TokenAudioRate, 0)
	n := NewConstant(0.5)
	rc.RegisterNode(n)
	rc.RegisterNode(n)

	assert.Equal(t, 1, rc.NodeCount())
	assert.InDelta(t, 0.5, rc.ProcessSample(), 1e-12)
}

func TestStateTransitions(t *testing.T) {
	t.Parallel()

	rc := NewRootCollector(conf.TokenAudioRate, 0)
	n := NewConstant(1)

	assert.Equal(t, StateInactive, n.Core().State())

	rc.RegisterNode(n)
	assert.True(t, n.Core().HasState(StateActive))

	rc.ProcessSample()
	assert.False(t, n.Core().HasState(StateProcessed), "cycle reset clears the processed flag")

	rc.UnregisterNode(n)
	assert.False(t, n.Core().HasState(StateActive))
	assert.False(t, n.Core().HasState(StatePendingRemoval))
}

func TestMockProcessExcludedFromSum(t *testing.T) {
	t.Parallel()

	rc := NewRootCollector(conf.TokenAudioRate, 0)

	audible := NewConstant(0.25)
	silent := NewAccumulator(1)
	silent.Core().SetMockProcess(true)

	rc.RegisterNode(audible)
	rc.RegisterNode(silent)

	assert.InDelta(t, 0.25, rc.ProcessSample(), 1e-12)
	assert.InDelta(t, 0.25, rc.ProcessSample(), 1e-12)

	// The mock node was still evaluated each cycle.
	assert.InDelta(t, 1.0, silent.Core().LastOutput(), 1e-12)
}

func TestRegisterDuringProcessingDefers(t *testing.T) {
	t.Parallel()

	rc := NewRootCollector(conf.TokenAudioRate, 0)
	rc.RegisterNode(NewConstant(0.5))

	// Hold a pass open, as the audio thread would mid-block.
	require.True(t, rc.Preprocess())

	late := NewConstant(0.25)
	require.NoError(t, rc.TryRegisterNode(late))
	assert.Equal(t, 1, rc.NodeCount(), "registration deferred while pass in flight")

	rc.Postprocess()

	// The queued registration lands in the next preprocess, before any
	// sample is produced.
	assert.InDelta(t, 0.75, rc.ProcessSample(), 1e-12)
	assert.Equal(t, 2, rc.NodeCount())
}

func TestUnregisterDuringProcessingDefers(t *testing.T) {
	t.Parallel()

	rc := NewRootCollector(conf.TokenAudioRate, 0)
	doomed := NewConstant(0.5)
	rc.RegisterNode(doomed)

	require.True(t, rc.Preprocess())
	rc.queueRemoval(t, doomed)
	assert.Equal(t, 1, rc.NodeCount())
	rc.Postprocess()

	assert.InDelta(t, 0.0, rc.ProcessSample(), 1e-12)
	assert.Equal(t, 0, rc.NodeCount())
	assert.Equal(t, StateInactive, doomed.Core().State())
}

// queueRemoval queues an unregister while a pass is held open, without the
// blocking fallback of UnregisterNode.
func (rc *RootCollector) queueRemoval(t *testing.T, n Node) {
	t.Helper()
	n.Core().AddState(StatePendingRemoval)
	require.True(t, rc.queueOp(n, true))
}

func TestPendingRingCapacity(t *testing.T) {
	t.Parallel()

	rc := NewRootCollector(conf.TokenAudioRate, 0)
	require.True(t, rc.Preprocess())

	for i := 0; i < MaxPendingOps; i++ {
		require.NoError(t, rc.TryRegisterNode(NewConstant(1)))
	}

	err := rc.TryRegisterNode(NewConstant(1))
	require.Error(t, err, "full ring must refuse realtime registration")

	rc.Postprocess()
	rc.ProcessSample()
	assert.Equal(t, MaxPendingOps, rc.NodeCount())
}

func TestConcurrentRemoveWhileProcessing(t *testing.T) {
	t.Parallel()

	rc := NewRootCollector(conf.TokenAudioRate, 0)
	keep := NewConstant(0.1)
	rc.RegisterNode(keep)

	var wg sync.WaitGroup
	stop := make(chan struct{})

	// Audio thread: continuous passes.
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				rc.ProcessBatch(64)
			}
		}
	}()

	// Control thread: churn registrations.
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			n := NewConstant(0.01)
			rc.RegisterNode(n)
			rc.UnregisterNode(n)
		}
		close(stop)
	}()

	wg.Wait()

	// Everything churned is gone; the survivor still sounds.
	rc.ProcessSample()
	assert.Equal(t, 1, rc.NodeCount())
}
