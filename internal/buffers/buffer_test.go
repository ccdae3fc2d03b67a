package buffers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mayaflux/mayaflux-go/internal/conf"
	"github.com/mayaflux/mayaflux-go/internal/graph"
)

func TestAudioBufferBasics(t *testing.T) {
	t.Parallel()

	buf := NewAudioBuffer(3, 16)
	assert.Equal(t, uint32(3), buf.ChannelID())
	assert.Equal(t, 16, buf.Frames())
	assert.False(t, buf.HasDataForCycle())

	buf.Data()[0] = 0.5
	buf.MarkDataForCycle()
	assert.True(t, buf.HasDataForCycle())

	buf.Clear()
	assert.Zero(t, buf.Data()[0])
	assert.False(t, buf.HasDataForCycle())

	buf.Resize(32)
	assert.Equal(t, 32, buf.Frames())
}

func TestAudioBufferSourceLifecycle(t *testing.T) {
	t.Parallel()

	buf := NewAudioBuffer(0, 8)
	n := graph.NewConstant(0.25)

	buf.SetSource(n)
	assert.True(t, buf.NeedsDefaultProcessing())
	assert.Equal(t, uint32(1), n.Core().BufferReferenceCount())

	buf.ProcessDefault()
	assert.True(t, buf.HasDataForCycle())
	assert.InDelta(t, 0.25, buf.Data()[0], 1e-12)

	buf.SetSource(nil)
	assert.False(t, buf.NeedsDefaultProcessing())
	assert.Equal(t, uint32(0), n.Core().BufferReferenceCount())
}

func TestRootMixesChildrenAndCollector(t *testing.T) {
	t.Parallel()

	collector := graph.NewRootCollector(conf.TokenAudioRate, 0)
	collector.RegisterNode(graph.NewConstant(0.1))

	root := NewRootAudioBuffer(0, 4, collector)

	child := NewAudioBuffer(0, 4)
	for i := range child.Data() {
		child.Data()[i] = 0.2
	}
	child.MarkDataForCycle()
	root.AddChild(child)

	root.Clear()
	root.ProcessDefault()

	for _, v := range root.Data() {
		assert.InDelta(t, 0.3, v, 1e-12)
	}
	assert.False(t, child.HasDataForCycle(), "child data consumed by the mixdown")
}

func TestRootChildManagement(t *testing.T) {
	t.Parallel()

	root := NewRootAudioBuffer(0, 4, nil)
	child := NewAudioBuffer(0, 4)

	root.AddChild(child)
	root.AddChild(child) // duplicate ignored
	require.Len(t, root.Children(), 1)

	assert.True(t, root.RemoveChild(child))
	assert.False(t, root.RemoveChild(child))
	assert.Empty(t, root.Children())
}

func TestCloneSharesSourceNotStorage(t *testing.T) {
	t.Parallel()

	src := NewAudioBuffer(0, 4)
	n := graph.NewConstant(0.5)
	src.SetSource(n)
	src.Data()[0] = 0.9

	clone := src.Clone(2)
	assert.Equal(t, uint32(2), clone.ChannelID())
	assert.InDelta(t, 0.9, clone.Data()[0], 1e-12)

	clone.Data()[0] = 0.1
	assert.InDelta(t, 0.9, src.Data()[0], 1e-12, "storage is independent")
	assert.Same(t, n, clone.Source())
}
