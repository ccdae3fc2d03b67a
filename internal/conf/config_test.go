package conf

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultSettings(t *testing.T) {
	t.Parallel()

	s := Default()
	assert.Equal(t, uint32(48000), s.Stream.SampleRate)
	assert.Equal(t, uint32(512), s.Stream.BufferSize)
	assert.Equal(t, FormatF64, s.Stream.Format)
	assert.False(t, s.Stream.NonInterleaved)
	assert.True(t, s.Stream.Output.Enabled)
	assert.Equal(t, uint32(2), s.Stream.Output.Channels)
	assert.False(t, s.Stream.Input.Enabled)
	assert.Equal(t, PriorityRealtime, s.Stream.Priority)
	assert.Equal(t, DitherNone, s.Stream.Dither)
}

func TestStreamChannelTotals(t *testing.T) {
	t.Parallel()

	s := StreamInfo{
		Output: ChannelConfig{Enabled: true, Channels: 2},
		Input:  ChannelConfig{Enabled: true, Channels: 1},
	}
	assert.Equal(t, uint32(3), s.TotalChannels())
	assert.Equal(t, uint32(2), s.NumChannels())

	s.Input.Enabled = false
	assert.Equal(t, uint32(2), s.TotalChannels())
}

func TestProcessingTokens(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "audio_backend", TokenAudioBackend.String())
	assert.Equal(t, "visual_rate", TokenVisualRate.String())
	assert.Equal(t, "custom_7", CustomToken(7).String())

	assert.True(t, CustomToken(0).IsCustom())
	assert.False(t, TokenAudioRate.IsCustom())

	assert.True(t, TokenAudioBackend.AllowsChannelAutocreate())
	assert.True(t, TokenAudioRate.AllowsChannelAutocreate())
	assert.False(t, TokenGraphicsBackend.AllowsChannelAutocreate())
	assert.False(t, CustomToken(1).AllowsChannelAutocreate())
}
