package backend

import (
	"sync/atomic"

	"github.com/mayaflux/mayaflux-go/internal/conf"
	"github.com/mayaflux/mayaflux-go/internal/errors"
)

// NullBackend is a hardware-free backend whose streams are driven manually.
// Tests and offline callers call Render on the stream to pull blocks.
type NullBackend struct{}

// NewNullBackend constructs the backend.
func NewNullBackend() *NullBackend {
	return &NullBackend{}
}

// Version returns the backend identifier.
func (b *NullBackend) Version() string { return "null" }

// OutputDevices reports one virtual endpoint.
func (b *NullBackend) OutputDevices() ([]DeviceInfo, error) {
	return []DeviceInfo{{ID: 0, Name: "null-output", OutputChannels: 2, IsDefaultOutput: true}}, nil
}

// InputDevices reports one virtual endpoint.
func (b *NullBackend) InputDevices() ([]DeviceInfo, error) {
	return []DeviceInfo{{ID: 0, Name: "null-input", InputChannels: 2, IsDefaultInput: true}}, nil
}

// CreateStream builds a manually driven stream.
func (b *NullBackend) CreateStream(outDevice, inDevice int, info *conf.StreamInfo) (Stream, error) {
	return &NullStream{info: info}, nil
}

// Cleanup is a no-op.
func (b *NullBackend) Cleanup() error { return nil }

// NullStream satisfies Stream without hardware. Render drives the process
// callback directly.
type NullStream struct {
	info    *conf.StreamInfo
	cb      atomic.Pointer[ProcessCallback]
	open    atomic.Bool
	running atomic.Bool
}

// SetProcessCallback registers the render callback.
func (s *NullStream) SetProcessCallback(cb ProcessCallback) {
	s.cb.Store(&cb)
}

// Open marks the stream open.
func (s *NullStream) Open() error {
	s.open.Store(true)
	return nil
}

// Start marks the stream running.
func (s *NullStream) Start() error {
	if !s.open.Load() {
		return errors.Newf("stream not open").
			Component("backend").
			Category(errors.CategoryBackend).
			Context("operation", "start").
			Build()
	}
	s.running.Store(true)
	return nil
}

// Stop marks the stream stopped.
func (s *NullStream) Stop() error {
	s.running.Store(false)
	return nil
}

// Close tears the stream down.
func (s *NullStream) Close() error {
	s.running.Store(false)
	s.open.Store(false)
	return nil
}

// IsOpen reports whether Open has been called.
func (s *NullStream) IsOpen() bool { return s.open.Load() }

// IsRunning reports whether the stream is started.
func (s *NullStream) IsRunning() bool { return s.running.Load() }

// Render pulls one block through the process callback, as the hardware
// would. Returns the callback's status and the rendered samples.
func (s *NullStream) Render(frames uint32, in []float64) ([]float64, int) {
	cbPtr := s.cb.Load()
	out := make([]float64, int(frames)*int(s.info.Output.Channels))
	if cbPtr == nil || !s.running.Load() {
		return out, 0
	}
	status := (*cbPtr)(out, in, frames)
	return out, status
}
