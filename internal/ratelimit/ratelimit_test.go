package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConnectionLimiter_AllowUpToLimit(t *testing.T) {
	cl := NewConnectionLimiter(2)

	assert.True(t, cl.Allow("user-1"))
	assert.True(t, cl.Allow("user-1"))
	assert.False(t, cl.Allow("user-1"), "third connection exceeds the limit")
}

func TestConnectionLimiter_ReleaseFreesSlot(t *testing.T) {
	cl := NewConnectionLimiter(1)

	assert.True(t, cl.Allow("user-1"))
	assert.False(t, cl.Allow("user-1"))

	cl.Release("user-1")
	assert.True(t, cl.Allow("user-1"))
}

func TestConnectionLimiter_PerUserIsolation(t *testing.T) {
	cl := NewConnectionLimiter(1)

	assert.True(t, cl.Allow("user-1"))
	assert.True(t, cl.Allow("user-2"), "limits are per user")
}

func TestConnectionLimiter_ReleaseUnknownUserIsNoop(t *testing.T) {
	cl := NewConnectionLimiter(1)
	cl.Release("never-seen")
	assert.Equal(t, 0, cl.Count("never-seen"))
}

func TestEventLimiter_AllowUpToLimit(t *testing.T) {
	el := NewEventLimiter(time.Minute, 3)

	for i := 0; i < 3; i++ {
		assert.True(t, el.Allow("user-1"), "event %d within limit", i)
	}
	assert.False(t, el.Allow("user-1"))
}

func TestEventLimiter_WindowSlides(t *testing.T) {
	el := NewEventLimiter(50*time.Millisecond, 1)

	assert.True(t, el.Allow("user-1"))
	assert.False(t, el.Allow("user-1"))

	time.Sleep(60 * time.Millisecond)
	assert.True(t, el.Allow("user-1"), "old events age out of the window")
}

func TestEventLimiter_ResetClearsState(t *testing.T) {
	el := NewEventLimiter(time.Minute, 1)

	assert.True(t, el.Allow("user-1"))
	assert.False(t, el.Allow("user-1"))

	el.Reset("user-1")
	assert.True(t, el.Allow("user-1"))
}

func TestEventLimiter_StartStopCleanupIsIdempotent(t *testing.T) {
	el := NewEventLimiter(time.Minute, 1)

	el.StartCleanup()
	el.StopCleanup()
	el.StopCleanup()
}
