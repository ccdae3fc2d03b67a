package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mayaflux/mayaflux-go/internal/conf"
	"github.com/mayaflux/mayaflux-go/internal/errors"
	"github.com/mayaflux/mayaflux-go/internal/logging"
)

// Bus provides asynchronous event processing with non-blocking publish.
// Workers drain a buffered channel and fan events out to registered
// consumers; a full buffer drops rather than blocks.
type Bus struct {
	eventChan chan Event

	bufferSize int
	workers    int

	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	initialized atomic.Bool
	running     atomic.Bool
	mu          sync.Mutex

	consumers []Consumer

	stats BusStats

	logger *slog.Logger
}

// NewBus constructs a bus from configuration. Returns nil when disabled.
func NewBus(cfg *conf.EventBusConfig) *Bus {
	if cfg == nil || !cfg.Enabled {
		return nil
	}

	bufferSize := cfg.BufferSize
	if bufferSize <= 0 {
		bufferSize = 10000
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 2
	}

	ctx, cancel := context.WithCancel(context.Background())

	logger := logging.ForService("events")
	if logger == nil {
		logger = slog.Default()
	}

	b := &Bus{
		eventChan:  make(chan Event, bufferSize),
		bufferSize: bufferSize,
		workers:    workers,
		ctx:        ctx,
		cancel:     cancel,
		logger:     logger,
	}
	b.initialized.Store(true)

	logger.Info("event bus initialized",
		"buffer_size", bufferSize,
		"workers", workers)

	return b
}

// RegisterConsumer adds a consumer; the first registration starts the
// worker pool.
func (b *Bus) RegisterConsumer(consumer Consumer) error {
	if b == nil {
		return fmt.Errorf("event bus not initialized")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, existing := range b.consumers {
		if existing.Name() == consumer.Name() {
			return fmt.Errorf("consumer %s already registered", consumer.Name())
		}
	}

	b.consumers = append(b.consumers, consumer)

	b.logger.Info("registered event consumer", "consumer", consumer.Name())

	if len(b.consumers) == 1 && !b.running.Load() {
		b.start()
	}

	return nil
}

// TryPublish attempts to publish without blocking. Returns true if the
// event was accepted, false if dropped.
func (b *Bus) TryPublish(event Event) bool {
	if b == nil || !b.initialized.Load() || !b.running.Load() {
		return false
	}

	b.mu.Lock()
	hasConsumers := len(b.consumers) > 0
	b.mu.Unlock()

	if !hasConsumers {
		return false
	}

	select {
	case b.eventChan <- event:
		atomic.AddUint64(&b.stats.EventsReceived, 1)
		return true
	default:
		atomic.AddUint64(&b.stats.EventsDropped, 1)
		return false
	}
}

func (b *Bus) start() {
	if b.running.Swap(true) {
		return
	}

	b.logger.Info("starting event bus workers", "count", b.workers)

	for i := 0; i < b.workers; i++ {
		b.wg.Add(1)
		go b.worker(i)
	}
}

func (b *Bus) worker(id int) {
	defer b.wg.Done()

	logger := b.logger.With("worker_id", id)
	logger.Debug("worker started")

	for {
		select {
		case <-b.ctx.Done():
			logger.Debug("worker stopping due to context cancellation")
			return

		case event, ok := <-b.eventChan:
			if !ok {
				logger.Debug("worker stopping due to channel closure")
				return
			}

			b.processEvent(event, logger)
		}
	}
}

// processEvent fans one event out to every consumer under panic recovery.
func (b *Bus) processEvent(event Event, logger *slog.Logger) {
	b.mu.Lock()
	consumers := make([]Consumer, len(b.consumers))
	copy(consumers, b.consumers)
	b.mu.Unlock()

	for _, consumer := range consumers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					atomic.AddUint64(&b.stats.ConsumerErrors, 1)
					logger.Error("consumer panicked",
						"consumer", consumer.Name(),
						"panic", r,
						"component", event.GetComponent(),
						"category", event.GetCategory())
				}
			}()

			if err := consumer.ProcessEvent(event); err != nil {
				atomic.AddUint64(&b.stats.ConsumerErrors, 1)
				logger.Error("consumer error",
					"consumer", consumer.Name(),
					"error", err,
					"component", event.GetComponent(),
					"category", event.GetCategory())
			} else {
				atomic.AddUint64(&b.stats.EventsProcessed, 1)
			}
		}()
	}
}

// Shutdown stops accepting events and waits for workers up to timeout.
func (b *Bus) Shutdown(timeout time.Duration) error {
	if b == nil || !b.initialized.Load() {
		return nil
	}

	b.logger.Info("shutting down event bus", "timeout", timeout)

	b.running.Store(false)
	b.cancel()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		b.logger.Info("event bus shutdown complete")
		return nil
	case <-time.After(timeout):
		b.logger.Warn("event bus shutdown timeout exceeded")
		return fmt.Errorf("shutdown timeout exceeded")
	}
}

// Stats returns a snapshot of bus counters.
func (b *Bus) Stats() BusStats {
	if b == nil {
		return BusStats{}
	}

	return BusStats{
		EventsReceived:  atomic.LoadUint64(&b.stats.EventsReceived),
		EventsProcessed: atomic.LoadUint64(&b.stats.EventsProcessed),
		EventsDropped:   atomic.LoadUint64(&b.stats.EventsDropped),
		ConsumerErrors:  atomic.LoadUint64(&b.stats.ConsumerErrors),
	}
}

// InstallErrorReporting routes every enhanced error built while the bus is
// alive onto the bus. Call with a nil bus to uninstall.
func InstallErrorReporting(b *Bus) {
	if b == nil {
		errors.SetReportingHook(nil)
		return
	}
	errors.SetReportingHook(func(ee *errors.EnhancedError) {
		b.TryPublish(NewErrorEvent(ee))
	})
}
