// Package backend abstracts the audio hardware layer behind narrow
// interfaces: a backend creates streams against devices, a stream moves
// interleaved float64 blocks between the engine and the hardware.
package backend

import (
	"github.com/mayaflux/mayaflux-go/internal/conf"
)

// DeviceInfo describes one audio endpoint.
type DeviceInfo struct {
	ID              int
	Name            string
	InputChannels   uint32
	OutputChannels  uint32
	PreferredRate   uint32
	IsDefaultOutput bool
	IsDefaultInput  bool
}

// ProcessCallback renders one block. out and in are interleaved float64
// buffers of frames*channels samples; in is nil when capture is disabled.
// A nonzero return tells the backend the cycle failed; the backend decides
// whether to continue.
type ProcessCallback func(out, in []float64, frames uint32) int

// Stream is one open audio pipeline between the engine and a device.
type Stream interface {
	Open() error
	Start() error
	Stop() error
	Close() error
	IsOpen() bool
	IsRunning() bool
	SetProcessCallback(cb ProcessCallback)
}

// AudioBackend creates streams and enumerates devices.
type AudioBackend interface {
	CreateStream(outDevice, inDevice int, info *conf.StreamInfo) (Stream, error)
	OutputDevices() ([]DeviceInfo, error)
	InputDevices() ([]DeviceInfo, error)
	Version() string
	Cleanup() error
}
