// Package quota tracks the content provider's daily credit budget and the
// ideal pacing curve through the day.
package quota

import (
	"sync"
	"time"

	"github.com/ezyy-cloud/newsbot/internal/logger"
)

// nearCeilingMargin is the hard guard: once usage comes within this many
// credits of the daily ceiling, no more requests go out until the next
// calendar day.
const nearCeilingMargin = 5

// Tracker counts credits spent against a calendar-day ceiling. The counter
// resets implicitly when the stored day key no longer matches today.
type Tracker struct {
	mu           sync.Mutex
	ceiling      int
	safetyBuffer int
	dateKey      string
	creditsUsed  int

	now func() time.Time // overridable in tests
}

func New(ceiling, safetyBuffer int) *Tracker {
	return &Tracker{
		ceiling:      ceiling,
		safetyBuffer: safetyBuffer,
		now:          time.Now,
	}
}

// RecordUsage counts one spent credit for the current day.
func (t *Tracker) RecordUsage() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.rolloverLocked()
	t.creditsUsed++
	if t.creditsUsed%25 == 0 {
		logger.Info("credit usage", "used", t.creditsUsed, "ceiling", t.ceiling)
	}
}

// CreditsUsed returns usage for the current day.
func (t *Tracker) CreditsUsed() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.rolloverLocked()
	return t.creditsUsed
}

// ShouldUseCache reports whether current usage is ahead of the ideal daily
// curve by more than the safety buffer. Ahead-of-curve callers should serve
// cached data instead of spending credits.
func (t *Tracker) ShouldUseCache() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.rolloverLocked()
	return float64(t.creditsUsed) > t.targetByNowLocked()+float64(t.safetyBuffer)
}

// Exhausted reports whether the near-ceiling guard has tripped. This is a
// hard rule: no fetch may spend a credit until the next calendar day.
func (t *Tracker) Exhausted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.rolloverLocked()
	return t.creditsUsed >= t.ceiling-nearCeilingMargin
}

// AheadOfCurve returns how many credits usage is above (positive) or below
// (negative) the ideal pacing curve right now.
func (t *Tracker) AheadOfCurve() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.rolloverLocked()
	return float64(t.creditsUsed) - t.targetByNowLocked()
}

// targetByNowLocked interpolates the ceiling linearly by fraction of the
// day elapsed.
func (t *Tracker) targetByNowLocked() float64 {
	now := t.now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	dayProgress := now.Sub(midnight).Seconds() / (24 * time.Hour).Seconds()
	return float64(t.ceiling) * dayProgress
}

func (t *Tracker) rolloverLocked() {
	today := t.now().Format("2006-01-02")
	if t.dateKey != today {
		if t.dateKey != "" {
			logger.Info("daily quota reset", "previous_day", t.dateKey, "used", t.creditsUsed)
		}
		t.dateKey = today
		t.creditsUsed = 0
	}
}
