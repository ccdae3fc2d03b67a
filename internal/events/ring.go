package events

import (
	"encoding/binary"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"github.com/smallnest/ringbuffer"

	"github.com/mayaflux/mayaflux-go/internal/logging"
	"github.com/mayaflux/mayaflux-go/internal/observability"
)

// EngineEventKind tags a fixed-size audio-thread event record.
type EngineEventKind uint8

const (
	KindXRun EngineEventKind = iota + 1
	KindPeak
	KindCycleError
	KindRoutineFault
	KindCapacity
)

func (k EngineEventKind) String() string {
	switch k {
	case KindXRun:
		return "xrun"
	case KindPeak:
		return "peak"
	case KindCycleError:
		return "cycle_error"
	case KindRoutineFault:
		return "routine_fault"
	case KindCapacity:
		return "capacity"
	default:
		return "unknown"
	}
}

// EngineEvent is the audio thread's event record. It is fixed-size so the
// producer can serialize it into the ring without allocation.
type EngineEvent struct {
	Kind       EngineEventKind
	Code       uint32
	SampleTime uint64
	Value      float64
}

// recordSize is the wire size of one EngineEvent: kind(1) + pad(3) +
// code(4) + sample(8) + value(8).
const recordSize = 24

func (e *EngineEvent) encode(dst []byte) {
	dst[0] = byte(e.Kind)
	dst[1], dst[2], dst[3] = 0, 0, 0
	binary.LittleEndian.PutUint32(dst[4:8], e.Code)
	binary.LittleEndian.PutUint64(dst[8:16], e.SampleTime)
	binary.LittleEndian.PutUint64(dst[16:24], math.Float64bits(e.Value))
}

func decodeRecord(src []byte) EngineEvent {
	return EngineEvent{
		Kind:       EngineEventKind(src[0]),
		Code:       binary.LittleEndian.Uint32(src[4:8]),
		SampleTime: binary.LittleEndian.Uint64(src[8:16]),
		Value:      math.Float64frombits(binary.LittleEndian.Uint64(src[16:24])),
	}
}

// GetComponent implements Event.
func (e EngineEvent) GetComponent() string { return "engine" }

// GetCategory implements Event.
func (e EngineEvent) GetCategory() string { return e.Kind.String() }

// GetMessage implements Event.
func (e EngineEvent) GetMessage() string { return e.Kind.String() }

// GetTimestamp implements Event. Audio records carry sample time, not wall
// time; it returns the zero time, and the drain does not stamp records.
func (e EngineEvent) GetTimestamp() time.Time { return time.Time{} }

// GetContext implements Event.
func (e EngineEvent) GetContext() map[string]any {
	return map[string]any{
		"sample_time": e.SampleTime,
		"code":        e.Code,
		"value":       e.Value,
	}
}

// AudioRing is the single-producer single-consumer bridge from the audio
// thread to the event workers. Publish is wait-free for the producer: a
// full ring drops the record and counts it, never blocks.
type AudioRing struct {
	ring    *ringbuffer.RingBuffer
	drops   atomic.Uint64
	metrics *observability.Metrics
	logger  *slog.Logger

	stop chan struct{}
	done chan struct{}
}

// NewAudioRing sizes the ring to capacityBytes, rounded down to whole
// records, with a floor of 16 records.
func NewAudioRing(capacityBytes int, metrics *observability.Metrics) *AudioRing {
	if capacityBytes < recordSize*16 {
		capacityBytes = recordSize * 16
	}
	capacityBytes = (capacityBytes / recordSize) * recordSize

	logger := logging.ForService("events")
	if logger == nil {
		logger = slog.Default()
	}

	return &AudioRing{
		ring:    ringbuffer.New(capacityBytes),
		metrics: metrics,
		logger:  logger.With("component", "audio_ring"),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Publish serializes one record into the ring. Audio-thread safe: no locks,
// no allocation, drops on a full ring.
func (ar *AudioRing) Publish(ev *EngineEvent) bool {
	var buf [recordSize]byte
	ev.encode(buf[:])

	if ar.ring.Free() < recordSize {
		ar.drops.Add(1)
		ar.metrics.ObserveRingDrop()
		return false
	}

	if _, err := ar.ring.Write(buf[:]); err != nil {
		ar.drops.Add(1)
		ar.metrics.ObserveRingDrop()
		return false
	}
	return true
}

// Drops returns the number of records dropped at publish.
func (ar *AudioRing) Drops() uint64 {
	return ar.drops.Load()
}

// StartDrain launches the consumer goroutine that decodes records and
// republishes them on the bus. Stop with Close.
func (ar *AudioRing) StartDrain(bus *Bus, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Millisecond
	}

	go func() {
		defer close(ar.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		var buf [recordSize]byte
		for {
			select {
			case <-ar.stop:
				return
			case <-ticker.C:
				for ar.ring.Length() >= recordSize {
					if _, err := ar.ring.Read(buf[:]); err != nil {
						ar.logger.Warn("ring read failed", "error", err)
						break
					}
					ev := decodeRecord(buf[:])
					bus.TryPublish(ev)
				}
			}
		}
	}()
}

// Close stops the drain goroutine and waits for it to exit.
func (ar *AudioRing) Close() {
	select {
	case <-ar.stop:
	default:
		close(ar.stop)
	}
	<-ar.done
}
