package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstantEmitsFixedValue(t *testing.T) {
	t.Parallel()

	c := NewConstant(0.7)
	assert.InDelta(t, 0.7, c.ProcessSample(0), 1e-12)
	assert.InDelta(t, 0.7, c.ProcessSample(123.0), 1e-12, "input must be ignored")
	assert.InDelta(t, 0.7, c.Core().LastOutput(), 1e-12)

	out := c.ProcessBatch(8)
	require.Len(t, out, 8)
	for _, v := range out {
		assert.InDelta(t, 0.7, v, 1e-12)
	}
}

func TestAccumulatorCounts(t *testing.T) {
	t.Parallel()

	acc := NewAccumulator(1)
	assert.InDelta(t, 0.0, acc.ProcessSample(0), 1e-12)
	assert.InDelta(t, 1.0, acc.ProcessSample(0), 1e-12)
	assert.InDelta(t, 2.0, acc.ProcessSample(0), 1e-12)
}

func TestSnapshotRestoreRewindsState(t *testing.T) {
	t.Parallel()

	acc := NewAccumulator(1)
	for i := 0; i < 3; i++ {
		acc.ProcessSample(0)
	}

	acc.SaveState()
	for i := 0; i < 3; i++ {
		acc.ProcessSample(0)
	}
	acc.RestoreState()

	// The three post-save samples leave no trace.
	assert.InDelta(t, 3.0, acc.ProcessSample(0), 1e-12)
}

func TestRestoreWithoutSaveIsNoOp(t *testing.T) {
	t.Parallel()

	acc := NewAccumulator(1)
	acc.ProcessSample(0)
	acc.ProcessSample(0)
	acc.RestoreState()

	assert.InDelta(t, 2.0, acc.ProcessSample(0), 1e-12)
}

func TestHooksSuppressedWhileSnapshotted(t *testing.T) {
	t.Parallel()

	c := NewConstant(1)
	fired := 0
	c.Core().OnTick(func(*Context) { fired++ })

	c.ProcessSample(0)
	assert.Equal(t, 1, fired)

	c.SaveState()
	c.ProcessSample(0)
	assert.Equal(t, 1, fired, "hooks must not fire while a snapshot is held")

	c.Core().SetFireEventsDuringSnapshot(true)
	c.ProcessSample(0)
	assert.Equal(t, 2, fired)

	c.RestoreState()
	c.Core().SetFireEventsDuringSnapshot(false)
	c.ProcessSample(0)
	assert.Equal(t, 3, fired)
}

func TestHookDeduplication(t *testing.T) {
	t.Parallel()

	c := NewConstant(1)
	fired := 0
	hook := func(*Context) { fired++ }

	c.Core().OnTick(hook)
	c.Core().OnTick(hook) // silently deduplicated

	c.ProcessSample(0)
	assert.Equal(t, 1, fired)

	require.True(t, c.Core().RemoveHook(hook))
	c.ProcessSample(0)
	assert.Equal(t, 1, fired)
}

func TestConditionalHooks(t *testing.T) {
	t.Parallel()

	acc := NewAccumulator(1)
	fired := 0
	hook := func(*Context) { fired++ }
	above := func(ctx *Context) bool { return ctx.Value > 1.5 }

	acc.Core().OnTickIf(hook, above)

	acc.ProcessSample(0) // 0
	acc.ProcessSample(0) // 1
	assert.Equal(t, 0, fired)

	acc.ProcessSample(0) // 2
	assert.Equal(t, 1, fired)

	require.True(t, acc.Core().RemoveConditionalHook(above))
	acc.ProcessSample(0)
	assert.Equal(t, 1, fired)
}

func TestRemoveAllHooks(t *testing.T) {
	t.Parallel()

	c := NewConstant(1)
	fired := 0
	c.Core().OnTick(func(*Context) { fired++ })
	c.Core().OnTickIf(func(*Context) { fired++ }, func(*Context) bool { return true })

	c.Core().RemoveAllHooks()
	c.ProcessSample(0)
	assert.Equal(t, 0, fired)
}

func TestSnapshotContextClaims(t *testing.T) {
	t.Parallel()

	c := NewConstant(1)
	core := c.Core()

	require.True(t, core.TryClaimSnapshotContext(7))
	assert.True(t, core.HasActiveSnapshot())
	assert.True(t, core.IsInSnapshotContext(7))

	assert.False(t, core.TryClaimSnapshotContext(9), "second claim must fail while first is held")

	core.ReleaseSnapshotContext(9) // wrong id: no effect
	assert.True(t, core.HasActiveSnapshot())

	core.ReleaseSnapshotContext(7)
	assert.False(t, core.HasActiveSnapshot())
	assert.True(t, core.TryClaimSnapshotContext(9))
	core.ReleaseSnapshotContext(9)
}

func TestChannelMaskReset(t *testing.T) {
	t.Parallel()

	c := NewConstant(1)
	core := c.Core()

	core.RegisterChannelUsage(0)
	core.RegisterChannelUsage(3)
	core.AddState(StateProcessed)

	core.RequestResetFromChannel(0)
	assert.True(t, core.HasState(StateProcessed), "one of two channels is not enough")

	core.RequestResetFromChannel(3)
	assert.False(t, core.HasState(StateProcessed), "all channels reported: flag clears")
	assert.Equal(t, uint32(0), core.pendingReset.Load())
}

func TestChannelMaskCeiling(t *testing.T) {
	t.Parallel()

	c := NewConstant(1)
	core := c.Core()

	core.RegisterChannelUsage(40) // beyond the mask: not tracked
	assert.False(t, core.IsUsedByChannel(40))
	assert.Equal(t, uint32(0), core.ActiveChannelsMask())

	// High channels reset unconditionally.
	core.AddState(StateProcessed)
	core.RequestResetFromChannel(40)
	assert.False(t, core.HasState(StateProcessed))
}

func TestEvaluateReusesProcessedOutput(t *testing.T) {
	t.Parallel()

	acc := NewAccumulator(1)
	core := acc.Core()
	core.RegisterChannelUsage(0) // owned by a channel so Evaluate cannot reset it

	first := Evaluate(acc, 0)
	assert.InDelta(t, 0.0, first, 1e-12)
	assert.True(t, core.HasState(StateProcessed))

	second := Evaluate(acc, 0)
	assert.InDelta(t, 0.0, second, 1e-12, "second read reuses last output, no re-evaluation")

	core.RequestResetFromChannel(0)
	third := Evaluate(acc, 0)
	assert.InDelta(t, 1.0, third, 1e-12)
}

func TestActiveChannelsExpansion(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []uint32{5}, ActiveChannels(0, 5))
	assert.Equal(t, []uint32{0, 2}, ActiveChannels(0b101, 0))
}
