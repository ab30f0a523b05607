package test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const eventTimeout = 3 * time.Second

// Receive waits for the next value on the channel and returns it.
// The test fails if nothing arrives within a few seconds.
func Receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v, ok := <-ch:
		require.True(t, ok, "channel closed while waiting for an event")
		return v
	case <-time.After(eventTimeout):
		require.FailNow(t, "timeout waiting for an event")
		panic("unreachable")
	}
}

// AssertEvents asserts that the expected list of values is received on the
// channel, in order, and that no further value is immediately available.
func AssertEvents[T any](t *testing.T, ch <-chan T, expected ...T) {
	t.Helper()
	for _, e := range expected {
		assert.Equal(t, e, Receive(t, ch))
	}
	NoEvent(t, ch)
}

// NoEvent asserts that no value is waiting on the channel
func NoEvent[T any](t *testing.T, ch <-chan T) {
	t.Helper()
	select {
	case v := <-ch:
		assert.Fail(t, "unexpected event", "%#v", v)
	default:
	}
}
