package buffers

import (
	"github.com/mayaflux/mayaflux-go/internal/errors"
)

// Component identifier for buffer-layer errors
const ComponentBuffers = "buffers"

var (
	// ErrChannelOutOfRange is returned for invalid channel indexing.
	ErrChannelOutOfRange = errors.New(nil).
				Component(ComponentBuffers).
				Category(errors.CategoryOutOfRange).
				Context("resource", "channel").
				Build()

	// ErrDomainNotInitialized is returned when an operation targets a token
	// with no unit and the caller is not allowed to autocreate it.
	ErrDomainNotInitialized = errors.New(nil).
				Component(ComponentBuffers).
				Category(errors.CategoryDomainState).
				Context("resource", "processing_domain").
				Build()

	// ErrBufferNotFound is returned when a buffer is absent from the
	// targeted channel.
	ErrBufferNotFound = errors.New(nil).
				Component(ComponentBuffers).
				Category(errors.CategoryNotFound).
				Context("resource", "audio_buffer").
				Build()

	// ErrSnapshotConflict identifies a refused snapshot claim on a node. No
	// buffer-layer operation returns it: ProcessIsolated reuses the in-flight
	// snapshot when its claim is refused.
	ErrSnapshotConflict = errors.New(nil).
				Component(ComponentBuffers).
				Category(errors.CategoryStateConflict).
				Context("resource", "snapshot_context").
				Build()
)
