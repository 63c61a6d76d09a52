package resource

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExclusive_AcquireRelease(t *testing.T) {
	mic := NewExclusive("microphone")
	assert.Equal(t, "microphone", mic.Name())
	assert.False(t, mic.Held())

	require.NoError(t, mic.Acquire("coordinator"))
	assert.True(t, mic.Held())
	assert.True(t, mic.HeldBy("coordinator"))

	// Re-acquire by the same owner is idempotent.
	require.NoError(t, mic.Acquire("coordinator"))

	err := mic.Acquire("page")
	assert.ErrorIs(t, err, ErrBusy)
	assert.Contains(t, err.Error(), "microphone")

	assert.ErrorIs(t, mic.Release("page"), ErrNotHeld)
	require.NoError(t, mic.Release("coordinator"))
	assert.False(t, mic.Held())

	assert.ErrorIs(t, mic.Release("coordinator"), ErrNotHeld)
}

func TestExclusive_HandOff(t *testing.T) {
	speaker := NewExclusive("speaker")
	require.NoError(t, speaker.Acquire("a"))
	require.NoError(t, speaker.Release("a"))
	require.NoError(t, speaker.Acquire("b"))
	assert.True(t, speaker.HeldBy("b"))
	assert.False(t, speaker.HeldBy("a"))
}
