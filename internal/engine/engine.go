// Package engine wires the run context together: configuration, node graph,
// buffer manager, sample clock, scheduler, event delivery, and the audio
// backend stream. There are no hidden singletons; everything hangs off the
// Engine value.
package engine

import (
	"log/slog"
	"time"

	"github.com/mayaflux/mayaflux-go/internal/backend"
	"github.com/mayaflux/mayaflux-go/internal/buffers"
	"github.com/mayaflux/mayaflux-go/internal/conf"
	"github.com/mayaflux/mayaflux-go/internal/errors"
	"github.com/mayaflux/mayaflux-go/internal/events"
	"github.com/mayaflux/mayaflux-go/internal/graph"
	"github.com/mayaflux/mayaflux-go/internal/logging"
	"github.com/mayaflux/mayaflux-go/internal/observability"
	"github.com/mayaflux/mayaflux-go/internal/sched"
)

// Engine is the per-run context object owning the whole signal runtime.
type Engine struct {
	settings *conf.Settings

	graph     *graph.Graph
	manager   *buffers.Manager
	clock     *sched.SampleClock
	scheduler *sched.Scheduler

	bus     *events.Bus
	ring    *events.AudioRing
	metrics *observability.Metrics

	backend backend.AudioBackend
	stream  backend.Stream

	logger *slog.Logger
}

// Option tweaks engine construction.
type Option func(*Engine)

// WithMetrics enables the Prometheus metrics surface.
func WithMetrics(m *observability.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// New constructs the engine against a backend. The backend may be nil for
// callers that drive blocks manually.
func New(settings *conf.Settings, be backend.AudioBackend, opts ...Option) *Engine {
	logger := logging.ForService("engine")
	if logger == nil {
		logger = slog.Default()
	}

	e := &Engine{
		settings: settings,
		backend:  be,
		logger:   logger,
	}

	for _, opt := range opts {
		opt(e)
	}

	e.graph = graph.NewGraph(graph.DefaultConfig())
	e.graph.SetDefaultRoute(conf.TokenAudioBackend, 0)

	e.manager = buffers.NewManager(settings, e.graph, e.metrics)
	e.clock = sched.NewSampleClock(settings.Stream.SampleRate)
	e.scheduler = sched.NewScheduler(e.clock, e.metrics)

	e.bus = events.NewBus(&settings.Events)
	if e.bus != nil {
		events.InstallErrorReporting(e.bus)
		e.ring = events.NewAudioRing(settings.Events.RingBytes, e.metrics)
		e.ring.StartDrain(e.bus, 0)
	}

	logger.Info("engine created",
		"sample_rate", settings.Stream.SampleRate,
		"buffer_size", settings.Stream.BufferSize,
		"out_channels", settings.Stream.Output.Channels)

	return e
}

// Graph returns the node graph.
func (e *Engine) Graph() *graph.Graph { return e.graph }

// Manager returns the buffer manager.
func (e *Engine) Manager() *buffers.Manager { return e.manager }

// Clock returns the shared sample clock.
func (e *Engine) Clock() *sched.SampleClock { return e.clock }

// Scheduler returns the sample scheduler.
func (e *Engine) Scheduler() *sched.Scheduler { return e.scheduler }

// Bus returns the event bus, or nil when disabled.
func (e *Engine) Bus() *events.Bus { return e.bus }

// Settings returns the run configuration.
func (e *Engine) Settings() *conf.Settings { return e.settings }

// RegisterAudioNode adds a node to the default output route.
func (e *Engine) RegisterAudioNode(n graph.Node) {
	e.graph.RegisterAudioNode(n)
}

// UnregisterAudioNode removes a node from the default output route.
func (e *Engine) UnregisterAudioNode(n graph.Node) {
	e.graph.UnregisterAudioNode(n)
}

// OpenStream creates, opens, and wires the backend stream without starting
// data flow.
func (e *Engine) OpenStream() error {
	if e.backend == nil {
		return errors.Newf("no audio backend configured").
			Component("engine").
			Category(errors.CategoryBackend).
			Context("operation", "open_stream").
			Build()
	}

	stream, err := e.backend.CreateStream(
		e.settings.Stream.Output.DeviceID,
		e.settings.Stream.Input.DeviceID,
		&e.settings.Stream)
	if err != nil {
		return err
	}

	stream.SetProcessCallback(e.RenderCallback)
	if err := stream.Open(); err != nil {
		return err
	}

	e.stream = stream
	return nil
}

// Start opens the stream if needed and begins data flow.
func (e *Engine) Start() error {
	if e.stream == nil {
		if err := e.OpenStream(); err != nil {
			return err
		}
	}
	if err := e.stream.Start(); err != nil {
		return err
	}
	e.logger.Info("stream started")
	return nil
}

// Stop suspends data flow, keeping the stream open.
func (e *Engine) Stop() error {
	if e.stream == nil {
		return nil
	}
	return e.stream.Stop()
}

// Close tears the run down: stream, event delivery, backend.
func (e *Engine) Close() error {
	var errs []error

	if e.stream != nil {
		if err := e.stream.Close(); err != nil {
			errs = append(errs, err)
		}
		e.stream = nil
	}

	if e.ring != nil {
		e.ring.Close()
		e.ring = nil
	}
	if e.bus != nil {
		events.InstallErrorReporting(nil)
		if err := e.bus.Shutdown(2 * time.Second); err != nil {
			errs = append(errs, err)
		}
		e.bus = nil
	}

	if e.backend != nil {
		if err := e.backend.Cleanup(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// Stream returns the open stream, or nil.
func (e *Engine) Stream() backend.Stream { return e.stream }

// RenderCallback is the audio callback: capture in, run the audio domain's
// cycle, interleave out, tick the clock, advance the scheduler. Any panic is
// caught and reported through the audio event ring; the callback then
// returns nonzero and the backend decides whether to continue.
func (e *Engine) RenderCallback(out, in []float64, frames uint32) (status int) {
	start := time.Now()

	defer func() {
		if rec := recover(); rec != nil {
			status = 1
			if e.ring != nil {
				e.ring.Publish(&events.EngineEvent{
					Kind:       events.KindCycleError,
					SampleTime: e.clock.Current(),
				})
			}
		}
		if e.metrics != nil {
			e.metrics.CallbackDuration.Observe(time.Since(start).Seconds())
		}
	}()

	inChannels := e.settings.Stream.Input.Channels
	if in != nil && inChannels > 0 {
		e.manager.ProcessInput(in, inChannels, frames)
	}

	if err := e.manager.ProcessToken(conf.TokenAudioBackend, frames); err != nil {
		if e.ring != nil {
			e.ring.Publish(&events.EngineEvent{
				Kind:       events.KindCycleError,
				SampleTime: e.clock.Current(),
			})
		}
		return 1
	}

	outChannels := e.settings.Stream.Output.Channels
	if err := e.manager.FillInterleaved(out, frames, conf.TokenAudioBackend, outChannels); err != nil {
		return 1
	}

	e.clock.Tick(frames)
	e.scheduler.Advance(e.clock.Current())

	return 0
}
