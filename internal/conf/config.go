// Package conf handles the engine configuration: stream parameters, logging
// settings, and their viper-backed loading.
package conf

import (
	"fmt"

	"github.com/spf13/viper"
)

// LogConfig controls the main application log file.
type LogConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age"`
}

// MainConfig holds the top-level application settings.
type MainConfig struct {
	Name  string    `mapstructure:"name"`
	Debug bool      `mapstructure:"debug"`
	Log   LogConfig `mapstructure:"log"`
}

// EventBusConfig controls the async event bus sizing.
type EventBusConfig struct {
	Enabled    bool `mapstructure:"enabled"`
	BufferSize int  `mapstructure:"buffer_size"`
	Workers    int  `mapstructure:"workers"`
	RingBytes  int  `mapstructure:"ring_bytes"`
}

// MetricsConfig controls the Prometheus metrics surface.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
}

// Settings is the per-run configuration object passed explicitly to the
// engine and buffer manager at construction; the engine gives the clock its
// sample rate. There is no
// hidden process-wide settings singleton in the core; the CLI layer owns the
// one it loads.
type Settings struct {
	Main    MainConfig     `mapstructure:"main"`
	Stream  StreamInfo     `mapstructure:"stream"`
	Events  EventBusConfig `mapstructure:"events"`
	Metrics MetricsConfig  `mapstructure:"metrics"`
}

// setDefaultConfig sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("main.name", "MayaFlux")
	viper.SetDefault("main.debug", false)
	viper.SetDefault("main.log.enabled", true)
	viper.SetDefault("main.log.path", "logs/engine.log")
	viper.SetDefault("main.log.max_size", 100)
	viper.SetDefault("main.log.max_backups", 3)
	viper.SetDefault("main.log.max_age", 28)

	viper.SetDefault("stream.sample_rate", 48000)
	viper.SetDefault("stream.buffer_size", 512)
	viper.SetDefault("stream.format", string(FormatF64))
	viper.SetDefault("stream.non_interleaved", false)
	viper.SetDefault("stream.output.enabled", true)
	viper.SetDefault("stream.output.channels", 2)
	viper.SetDefault("stream.output.device_id", -1)
	viper.SetDefault("stream.input.enabled", false)
	viper.SetDefault("stream.input.channels", 2)
	viper.SetDefault("stream.input.device_id", -1)
	viper.SetDefault("stream.priority", string(PriorityRealtime))
	viper.SetDefault("stream.buffer_count", 0)
	viper.SetDefault("stream.dither", string(DitherNone))

	viper.SetDefault("events.enabled", true)
	viper.SetDefault("events.buffer_size", 10000)
	viper.SetDefault("events.workers", 2)
	viper.SetDefault("events.ring_bytes", 1<<16)

	viper.SetDefault("metrics.enabled", false)
	viper.SetDefault("metrics.listen", "127.0.0.1:9090")
}

// Load reads the configuration from disk (if present) and returns the
// unmarshalled settings. A missing config file is not an error; defaults
// apply.
func Load() (*Settings, error) {
	setDefaultConfig()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.config/mayaflux")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("fatal error reading config file: %w", err)
		}
	}

	settings := &Settings{}
	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return settings, nil
}

// Default returns settings with all defaults applied and no file I/O.
// Used by tests and embedded callers.
func Default() *Settings {
	return &Settings{
		Main: MainConfig{
			Name: "MayaFlux",
			Log: LogConfig{
				Enabled:    true,
				Path:       "logs/engine.log",
				MaxSizeMB:  100,
				MaxBackups: 3,
				MaxAgeDays: 28,
			},
		},
		Stream: StreamInfo{
			SampleRate: 48000,
			BufferSize: 512,
			Format:     FormatF64,
			Output:     ChannelConfig{Enabled: true, Channels: 2, DeviceID: -1},
			Input:      ChannelConfig{Enabled: false, Channels: 2, DeviceID: -1},
			Priority:   PriorityRealtime,
			Dither:     DitherNone,
		},
		Events: EventBusConfig{
			Enabled:    true,
			BufferSize: 10000,
			Workers:    2,
			RingBytes:  1 << 16,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Listen:  "127.0.0.1:9090",
		},
	}
}
