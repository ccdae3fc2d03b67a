package conf

// SampleFormat defines the binary representation of audio sample data on the
// backend boundary. Graph arithmetic is always float64 internally.
type SampleFormat string

const (
	FormatF32 SampleFormat = "f32"
	FormatF64 SampleFormat = "f64"
	FormatI16 SampleFormat = "i16"
	FormatI24 SampleFormat = "i24"
	FormatI32 SampleFormat = "i32"
)

// StreamPriority is the processing priority requested for the audio thread.
type StreamPriority string

const (
	PriorityLow      StreamPriority = "low"
	PriorityNormal   StreamPriority = "normal"
	PriorityHigh     StreamPriority = "high"
	PriorityRealtime StreamPriority = "realtime"
)

// DitherMethod selects the noise shaping applied on format down-conversion.
type DitherMethod string

const (
	DitherNone        DitherMethod = "none"
	DitherRectangular DitherMethod = "rectangular"
	DitherTriangular  DitherMethod = "triangular"
	DitherGaussian    DitherMethod = "gaussian"
	DitherShaped      DitherMethod = "shaped"
)

// ChannelConfig describes one direction of a stream's channel set.
type ChannelConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Channels   uint32 `mapstructure:"channels"`
	DeviceID   int    `mapstructure:"device_id"`
	DeviceName string `mapstructure:"device_name"`
}

// StreamInfo is the full configuration for the audio stream: format
// specifications, buffer configuration, and I/O endpoint settings.
type StreamInfo struct {
	SampleRate     uint32         `mapstructure:"sample_rate"`
	BufferSize     uint32         `mapstructure:"buffer_size"`
	Format         SampleFormat   `mapstructure:"format"`
	NonInterleaved bool           `mapstructure:"non_interleaved"`
	Output         ChannelConfig  `mapstructure:"output"`
	Input          ChannelConfig  `mapstructure:"input"`
	Priority       StreamPriority `mapstructure:"priority"`
	BufferCount    float64        `mapstructure:"buffer_count"` // 0 = system default
	Dither         DitherMethod   `mapstructure:"dither"`
}

// TotalChannels returns the sum of all enabled input and output channels.
func (s *StreamInfo) TotalChannels() uint32 {
	var total uint32
	if s.Output.Enabled {
		total += s.Output.Channels
	}
	if s.Input.Enabled {
		total += s.Input.Channels
	}
	return total
}

// NumChannels returns the number of output channels.
func (s *StreamInfo) NumChannels() uint32 {
	return s.Output.Channels
}
