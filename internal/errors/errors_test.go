package errors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilderCarriesMetadata(t *testing.T) {
	err := Newf("channel %d out of range", 5).
		Component("buffers").
		Category(CategoryOutOfRange).
		Context("channel", 5).
		Build()

	require.NotNil(t, err)
	assert.Equal(t, "channel 5 out of range", err.Error())
	assert.Equal(t, "buffers", err.GetComponent())
	assert.Equal(t, string(CategoryOutOfRange), err.GetCategory())
	assert.Equal(t, 5, err.GetContext()["channel"])
	assert.False(t, err.GetTimestamp().IsZero())
}

func TestCategoryChecks(t *testing.T) {
	oor := Newf("bad index").Category(CategoryOutOfRange).Build()
	assert.True(t, IsOutOfRange(oor))
	assert.False(t, IsStateConflict(oor))

	conflict := Newf("snapshot busy").Category(CategoryStateConflict).Build()
	assert.True(t, IsStateConflict(conflict))
	assert.True(t, IsCategory(conflict, CategoryStateConflict))
}

func TestUncategorizedDefaultsToGeneric(t *testing.T) {
	err := Newf("something odd").Build()
	assert.Equal(t, string(CategoryGeneric), err.GetCategory())
}

func TestUnwrapPreservesCause(t *testing.T) {
	cause := NewStd("root cause")
	err := New(cause).Category(CategoryBackend).Build()

	assert.True(t, Is(err, cause))
	assert.Equal(t, cause, Unwrap(err))
}

func TestReportingHookReceivesBuiltErrors(t *testing.T) {
	var received *EnhancedError
	SetReportingHook(func(ee *EnhancedError) { received = ee })
	defer SetReportingHook(nil)

	err := Newf("ring full").
		Component("graph").
		Category(CategoryCapacity).
		Build()

	require.NotNil(t, received)
	assert.Equal(t, err, received)
	assert.True(t, err.IsReported())
}
