// Package backoff holds the global exponential-backoff state shared by all
// failure sources in a bot.
package backoff

import (
	"math/rand"
	"sync"
	"time"
)

const (
	defaultBase    = 5 * time.Second
	defaultCeiling = 30 * time.Minute
)

// Controller escalates a shared delay on failure and clears it on success.
// Any successful operation anywhere in the cycle should call Reset.
type Controller struct {
	mu            sync.Mutex
	base          time.Duration
	ceiling       time.Duration
	attempt       int
	currentDelay  time.Duration
	lastFailureAt time.Time

	rng *rand.Rand
}

func New(base, ceiling time.Duration) *Controller {
	if base <= 0 {
		base = defaultBase
	}
	if ceiling <= 0 {
		ceiling = defaultCeiling
	}
	return &Controller{
		base:    base,
		ceiling: ceiling,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Increase records a failure and returns the new delay. Successive calls
// without an intervening Reset escalate exponentially with jitter in
// [0.75, 1.25], capped at the ceiling.
func (c *Controller) Increase() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	d := c.base << c.attempt
	if d > c.ceiling || d <= 0 { // shift overflow guard
		d = c.ceiling
	}

	jitter := 0.75 + c.rng.Float64()*0.5
	d = time.Duration(float64(d) * jitter)
	if d > c.ceiling {
		d = c.ceiling
	}
	// Jitter must not let the delay shrink between consecutive failures.
	if d < c.currentDelay {
		d = c.currentDelay
	}

	c.attempt++
	c.currentDelay = d
	c.lastFailureAt = time.Now()
	return d
}

func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attempt = 0
	c.currentDelay = 0
}

func (c *Controller) CurrentDelay() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentDelay
}

// LastFailureAt returns when Increase was last called.
func (c *Controller) LastFailureAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastFailureAt
}
