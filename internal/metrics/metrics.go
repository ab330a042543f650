package metrics

import (
	"sync"
	"time"
)

type Metrics struct {
	mu sync.RWMutex

	// Counters
	CyclesCompleted    int64
	CyclesFailed       int64
	WatchdogRecovered  int64
	ItemsFetched       int64
	ItemsPublished     int64
	ItemsSkipped       int64
	DuplicatesFiltered int64
	CacheHits          int64
	CacheMisses        int64
	CreditsSpent       int64
	RateLimitHits      int64
	GeocodeCalls       int64

	// Timings
	LastCycleDuration time.Duration
	TotalCycleTime    time.Duration
	CycleCount        int64

	// Status
	LastRunTime   time.Time
	LastErrorTime time.Time
	LastError     string
	IsHealthy     bool
}

var Global = &Metrics{IsHealthy: true}

func (m *Metrics) IncrementCyclesCompleted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CyclesCompleted++
}

func (m *Metrics) IncrementCyclesFailed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CyclesFailed++
}

func (m *Metrics) IncrementWatchdogRecovered() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.WatchdogRecovered++
}

func (m *Metrics) IncrementItemsPublished() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ItemsPublished++
}

func (m *Metrics) IncrementItemsSkipped() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ItemsSkipped++
}

func (m *Metrics) IncrementDuplicatesFiltered() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DuplicatesFiltered++
}

func (m *Metrics) IncrementCacheHits() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CacheHits++
}

func (m *Metrics) IncrementCacheMisses() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CacheMisses++
}

func (m *Metrics) IncrementRateLimitHits() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RateLimitHits++
}

func (m *Metrics) IncrementGeocodeCalls() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GeocodeCalls++
}

func (m *Metrics) AddItemsFetched(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ItemsFetched += int64(n)
}

func (m *Metrics) AddCreditsSpent(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CreditsSpent += int64(n)
}

func (m *Metrics) RecordCycleDuration(duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.LastCycleDuration = duration
	m.TotalCycleTime += duration
	m.CycleCount++
}

func (m *Metrics) SetLastRun() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastRunTime = time.Now()
	m.IsHealthy = true
}

func (m *Metrics) SetError(err string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastError = err
	m.LastErrorTime = time.Now()
	m.IsHealthy = false
}

func (m *Metrics) GetStats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	avg := time.Duration(0)
	if m.CycleCount > 0 {
		avg = m.TotalCycleTime / time.Duration(m.CycleCount)
	}

	return map[string]interface{}{
		"cycles_completed":          m.CyclesCompleted,
		"cycles_failed":             m.CyclesFailed,
		"watchdog_recovered":        m.WatchdogRecovered,
		"items_fetched":             m.ItemsFetched,
		"items_published":           m.ItemsPublished,
		"items_skipped":             m.ItemsSkipped,
		"duplicates_filtered":       m.DuplicatesFiltered,
		"cache_hits":                m.CacheHits,
		"cache_misses":              m.CacheMisses,
		"credits_spent":             m.CreditsSpent,
		"rate_limit_hits":           m.RateLimitHits,
		"geocode_calls":             m.GeocodeCalls,
		"last_cycle_duration_ms":    m.LastCycleDuration.Milliseconds(),
		"average_cycle_duration_ms": avg.Milliseconds(),
		"last_run_time":             m.LastRunTime.Format(time.RFC3339),
		"last_error_time":           m.LastErrorTime.Format(time.RFC3339),
		"last_error":                m.LastError,
		"is_healthy":                m.IsHealthy,
	}
}
