package backend

import (
	"encoding/binary"
	"math"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"

	"github.com/mayaflux/mayaflux-go/internal/conf"
	"github.com/mayaflux/mayaflux-go/internal/errors"
)

// MalgoBackend drives audio through miniaudio for cross-platform playback
// and capture.
type MalgoBackend struct {
	ctx *malgo.AllocatedContext
	mu  sync.Mutex
}

// NewMalgoBackend initializes the miniaudio context for the platform's
// native backend.
func NewMalgoBackend() (*MalgoBackend, error) {
	ctx, err := malgo.InitContext([]malgo.Backend{platformBackend()}, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, errors.New(err).
			Component("backend").
			Category(errors.CategoryBackend).
			Context("backend", runtime.GOOS).
			Context("operation", "init_context").
			Build()
	}
	return &MalgoBackend{ctx: ctx}, nil
}

func platformBackend() malgo.Backend {
	switch runtime.GOOS {
	case "linux":
		return malgo.BackendAlsa
	case "windows":
		return malgo.BackendWasapi
	case "darwin":
		return malgo.BackendCoreaudio
	default:
		return malgo.BackendNull
	}
}

// Version returns the backend identifier.
func (b *MalgoBackend) Version() string {
	return "miniaudio/" + runtime.GOOS
}

// OutputDevices enumerates playback endpoints.
func (b *MalgoBackend) OutputDevices() ([]DeviceInfo, error) {
	return b.devices(malgo.Playback)
}

// InputDevices enumerates capture endpoints.
func (b *MalgoBackend) InputDevices() ([]DeviceInfo, error) {
	return b.devices(malgo.Capture)
}

func (b *MalgoBackend) devices(kind malgo.DeviceType) ([]DeviceInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	infos, err := b.ctx.Devices(kind)
	if err != nil {
		return nil, errors.New(err).
			Component("backend").
			Category(errors.CategoryBackend).
			Context("operation", "enumerate_devices").
			Build()
	}

	out := make([]DeviceInfo, 0, len(infos))
	for i := range infos {
		info := DeviceInfo{
			ID:   i,
			Name: infos[i].Name(),
		}
		if kind == malgo.Playback {
			info.IsDefaultOutput = infos[i].IsDefault == 1
		} else {
			info.IsDefaultInput = infos[i].IsDefault == 1
		}
		out = append(out, info)
	}
	return out, nil
}

// CreateStream builds a duplex or playback-only stream per the stream info.
// The device ids are kept on the stream but not applied when it opens: the
// stream always uses the system default devices.
func (b *MalgoBackend) CreateStream(outDevice, inDevice int, info *conf.StreamInfo) (Stream, error) {
	return &malgoStream{
		backend:   b,
		info:      info,
		outDevice: outDevice,
		inDevice:  inDevice,
	}, nil
}

// Cleanup releases the miniaudio context. Call only at shutdown.
func (b *MalgoBackend) Cleanup() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ctx == nil {
		return nil
	}
	err := b.ctx.Uninit()
	b.ctx.Free()
	b.ctx = nil
	if err != nil {
		return errors.New(err).
			Component("backend").
			Category(errors.CategoryBackend).
			Context("operation", "uninit_context").
			Build()
	}
	return nil
}

// malgoStream adapts a miniaudio device to the Stream interface. Samples
// cross the boundary as f32 and are widened to the engine's float64 at the
// callback edge.
type malgoStream struct {
	backend   *MalgoBackend
	info      *conf.StreamInfo
	outDevice int
	inDevice  int

	device  *malgo.Device
	cb      atomic.Pointer[ProcessCallback]
	open    atomic.Bool
	running atomic.Bool

	outScratch []float64
	inScratch  []float64
}

// SetProcessCallback registers the render callback. Safe to call before
// Open.
func (s *malgoStream) SetProcessCallback(cb ProcessCallback) {
	s.cb.Store(&cb)
}

// Open initializes the device without starting data flow.
func (s *malgoStream) Open() error {
	if s.open.Load() {
		return nil
	}

	duplex := s.info.Input.Enabled && s.info.Input.Channels > 0
	deviceType := malgo.Playback
	if duplex {
		deviceType = malgo.Duplex
	}

	cfg := malgo.DefaultDeviceConfig(deviceType)
	cfg.SampleRate = s.info.SampleRate
	cfg.PeriodSizeInFrames = s.info.BufferSize
	cfg.Playback.Channels = s.info.Output.Channels
	cfg.Playback.Format = malgo.FormatF32
	if duplex {
		cfg.Capture.Channels = s.info.Input.Channels
		cfg.Capture.Format = malgo.FormatF32
	}
	cfg.Alsa.NoMMap = 1

	outChannels := int(s.info.Output.Channels)
	inChannels := int(s.info.Input.Channels)
	s.outScratch = make([]float64, int(s.info.BufferSize)*outChannels)
	if duplex {
		s.inScratch = make([]float64, int(s.info.BufferSize)*inChannels)
	}

	callbacks := malgo.DeviceCallbacks{
		Data: s.onData,
	}

	s.backend.mu.Lock()
	device, err := malgo.InitDevice(s.backend.ctx.Context, cfg, callbacks)
	s.backend.mu.Unlock()
	if err != nil {
		return errors.New(err).
			Component("backend").
			Category(errors.CategoryBackend).
			Context("operation", "init_device").
			Context("out_device", s.outDevice).
			Build()
	}

	s.device = device
	s.open.Store(true)
	return nil
}

// Start begins data flow.
func (s *malgoStream) Start() error {
	if !s.open.Load() {
		return errors.Newf("stream not open").
			Component("backend").
			Category(errors.CategoryBackend).
			Context("operation", "start").
			Build()
	}
	if s.running.Load() {
		return nil
	}
	if err := s.device.Start(); err != nil {
		return errors.New(err).
			Component("backend").
			Category(errors.CategoryBackend).
			Context("operation", "start_device").
			Build()
	}
	s.running.Store(true)
	return nil
}

// Stop suspends data flow, keeping the device configured.
func (s *malgoStream) Stop() error {
	if !s.running.Load() {
		return nil
	}
	if err := s.device.Stop(); err != nil {
		return errors.New(err).
			Component("backend").
			Category(errors.CategoryBackend).
			Context("operation", "stop_device").
			Build()
	}
	s.running.Store(false)
	return nil
}

// Close tears the device down.
func (s *malgoStream) Close() error {
	if !s.open.Load() {
		return nil
	}
	_ = s.Stop()
	s.device.Uninit()
	s.device = nil
	s.open.Store(false)
	return nil
}

// IsOpen reports whether the device is initialized.
func (s *malgoStream) IsOpen() bool { return s.open.Load() }

// IsRunning reports whether data is flowing.
func (s *malgoStream) IsRunning() bool { return s.running.Load() }

// onData is the miniaudio data callback: widen capture to float64, render,
// narrow the result back to f32.
func (s *malgoStream) onData(outBytes, inBytes []byte, frames uint32) {
	cbPtr := s.cb.Load()
	if cbPtr == nil {
		zeroBytes(outBytes)
		return
	}

	outChannels := int(s.info.Output.Channels)
	needed := int(frames) * outChannels
	if len(s.outScratch) < needed {
		s.outScratch = make([]float64, needed)
	}
	out := s.outScratch[:needed]
	for i := range out {
		out[i] = 0
	}

	var in []float64
	if inBytes != nil && s.inScratch != nil {
		inChannels := int(s.info.Input.Channels)
		inNeeded := int(frames) * inChannels
		if len(s.inScratch) < inNeeded {
			s.inScratch = make([]float64, inNeeded)
		}
		in = s.inScratch[:inNeeded]
		f32ToF64(in, inBytes)
	}

	(*cbPtr)(out, in, frames)

	f64ToF32(outBytes, out)
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// f32ToF64 widens little-endian f32 bytes into the float64 slice.
func f32ToF64(dst []float64, src []byte) {
	n := len(src) / 4
	if len(dst) < n {
		n = len(dst)
	}
	for i := 0; i < n; i++ {
		bits := binary.LittleEndian.Uint32(src[i*4:])
		dst[i] = float64(math.Float32frombits(bits))
	}
}

// f64ToF32 narrows float64 samples into little-endian f32 bytes.
func f64ToF32(dst []byte, src []float64) {
	n := len(dst) / 4
	if len(src) < n {
		n = len(src)
	}
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(float32(src[i])))
	}
}
