package backoff

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIncreaseIsNonDecreasingAndCapped(t *testing.T) {
	c := New(5*time.Second, 30*time.Minute)

	var prev time.Duration
	for i := 0; i < 20; i++ {
		d := c.Increase()
		require.GreaterOrEqual(t, d, prev, "delay shrank on failure %d", i)
		require.LessOrEqual(t, d, 30*time.Minute)
		prev = d
	}

	assert.Equal(t, 30*time.Minute, c.CurrentDelay(), "repeated failures should pin the delay at the ceiling")
}

func TestIncreaseJitterStaysInWindow(t *testing.T) {
	for i := 0; i < 50; i++ {
		c := New(time.Second, time.Hour)
		d := c.Increase()
		assert.GreaterOrEqual(t, d, 750*time.Millisecond)
		assert.LessOrEqual(t, d, 1250*time.Millisecond)
	}
}

func TestResetClearsDelayAndAttempts(t *testing.T) {
	c := New(time.Second, time.Hour)

	c.Increase()
	c.Increase()
	require.NotZero(t, c.CurrentDelay())

	c.Reset()
	assert.Zero(t, c.CurrentDelay())

	// After a reset escalation starts over from the base.
	d := c.Increase()
	assert.LessOrEqual(t, d, 1250*time.Millisecond)
}

func TestLastFailureAtTracksIncrease(t *testing.T) {
	c := New(time.Second, time.Hour)
	assert.True(t, c.LastFailureAt().IsZero())

	before := time.Now()
	c.Increase()
	assert.False(t, c.LastFailureAt().Before(before))
}
