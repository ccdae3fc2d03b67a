package backend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mayaflux/mayaflux-go/internal/conf"
)

func TestNullStreamLifecycle(t *testing.T) {
	t.Parallel()

	be := NewNullBackend()
	settings := conf.Default()

	stream, err := be.CreateStream(-1, -1, &settings.Stream)
	require.NoError(t, err)

	assert.False(t, stream.IsOpen())
	assert.Error(t, stream.Start(), "starting an unopened stream must fail")

	require.NoError(t, stream.Open())
	assert.True(t, stream.IsOpen())
	assert.False(t, stream.IsRunning())

	require.NoError(t, stream.Start())
	assert.True(t, stream.IsRunning())

	require.NoError(t, stream.Stop())
	assert.False(t, stream.IsRunning())
	assert.True(t, stream.IsOpen())

	require.NoError(t, stream.Close())
	assert.False(t, stream.IsOpen())
}

func TestNullStreamRender(t *testing.T) {
	t.Parallel()

	be := NewNullBackend()
	settings := conf.Default()
	settings.Stream.Output.Channels = 2

	stream, err := be.CreateStream(-1, -1, &settings.Stream)
	require.NoError(t, err)
	ns := stream.(*NullStream)

	rendered := 0
	stream.SetProcessCallback(func(out, in []float64, frames uint32) int {
		rendered++
		for i := range out {
			out[i] = 0.5
		}
		return 0
	})

	// Not running: silence, callback not invoked.
	out, status := ns.Render(64, nil)
	assert.Equal(t, 0, status)
	assert.Equal(t, 0, rendered)
	assert.Zero(t, out[0])

	require.NoError(t, stream.Open())
	require.NoError(t, stream.Start())

	out, status = ns.Render(64, nil)
	assert.Equal(t, 0, status)
	assert.Equal(t, 1, rendered)
	assert.Len(t, out, 128)
	assert.InDelta(t, 0.5, out[0], 1e-12)
}

func TestFloatConversionRoundTrip(t *testing.T) {
	t.Parallel()

	src := []float64{0, 0.5, -0.5, 1, -1, 0.123456}
	bytes := make([]byte, len(src)*4)
	f64ToF32(bytes, src)

	dst := make([]float64, len(src))
	f32ToF64(dst, bytes)

	for i := range src {
		assert.InDelta(t, src[i], dst[i], 1e-6, "f32 precision bound")
	}
}

func TestNullBackendDevices(t *testing.T) {
	t.Parallel()

	be := NewNullBackend()
	outputs, err := be.OutputDevices()
	require.NoError(t, err)
	require.Len(t, outputs, 1)
	assert.True(t, outputs[0].IsDefaultOutput)

	inputs, err := be.InputDevices()
	require.NoError(t, err)
	require.Len(t, inputs, 1)
	assert.True(t, inputs[0].IsDefaultInput)

	assert.NoError(t, be.Cleanup())
}
