package ratecontrol

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLimiterAllowsBurstThenLimits(t *testing.T) {
	l := New(3, time.Minute)

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("conn-1"), "burst request %d should pass", i)
	}
	assert.False(t, l.Allow("conn-1"), "request beyond the burst must be limited")
}

func TestLimiterKeysAreIndependent(t *testing.T) {
	l := New(1, time.Minute)

	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
	assert.True(t, l.Allow("b"), "one key's exhaustion must not affect another")
}

func TestLimiterRefills(t *testing.T) {
	l := New(50, time.Second)

	for i := 0; i < 50; i++ {
		l.Allow("k")
	}
	assert.False(t, l.Allow("k"))

	time.Sleep(60 * time.Millisecond)
	assert.True(t, l.Allow("k"), "tokens refill over the interval")
}

func TestLimiterForget(t *testing.T) {
	l := New(1, time.Minute)

	l.Allow("gone")
	assert.Equal(t, 1, l.Len())
	l.Forget("gone")
	assert.Equal(t, 0, l.Len())

	// A forgotten key starts with a fresh bucket.
	assert.True(t, l.Allow("gone"))
}

func TestLimiterZeroConfigDefaults(t *testing.T) {
	l := New(0, 0)
	assert.True(t, l.Allow("k"), "degenerate config still admits at least one request")
}
