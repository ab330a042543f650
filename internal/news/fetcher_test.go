package news

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ezyy-cloud/newsbot/internal/backoff"
	"github.com/ezyy-cloud/newsbot/internal/cache"
	"github.com/ezyy-cloud/newsbot/internal/quota"
)

func newTestFetcher(t *testing.T, handler http.Handler) (*Fetcher, *cache.Cache[Item], *quota.Tracker, *backoff.Controller, *httptest.Server) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := NewClient("test-key", "en", "top", 10, 5*time.Second)
	client.SetBaseURL(server.URL)

	responseCache := cache.New[Item](time.Hour, 16)
	t.Cleanup(responseCache.Stop)

	tracker := quota.New(200, 10)
	controller := backoff.New(time.Millisecond, time.Second)

	fetcher := NewFetcher(client, responseCache, tracker, controller, 45*time.Minute, 3, time.Millisecond)
	return fetcher, responseCache, tracker, controller, server
}

func successBody(titles ...string) string {
	results := ""
	for i, title := range titles {
		if i > 0 {
			results += ","
		}
		results += fmt.Sprintf(`{"article_id":"id-%d","title":%q,"link":"https://example.com/%d"}`, i, title, i)
	}
	return `{"status":"success","results":[` + results + `]}`
}

func TestFetchRecoversFromTransientFailure(t *testing.T) {
	var calls atomic.Int32
	fetcher, _, tracker, controller, _ := newTestFetcher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, successBody("first story"))
	}))

	items := fetcher.Fetch(context.Background(), "au,br")

	require.Len(t, items, 1)
	assert.Equal(t, "first story", items[0].Title)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, 1, tracker.CreditsUsed(), "a retried success costs one credit")
	assert.Zero(t, controller.CurrentDelay(), "transient failures do not escalate publish backoff")
}

func TestFetchRateLimitedFallsBackToCache(t *testing.T) {
	var rateLimit atomic.Bool
	fetcher, _, _, _, _ := newTestFetcher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rateLimit.Load() {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, successBody("cached story"))
	}))

	ctx := context.Background()

	first := fetcher.Fetch(ctx, "au,br")
	require.Len(t, first, 1)

	rateLimit.Store(true)
	second := fetcher.Fetch(ctx, "au,br")
	require.Len(t, second, 1)
	assert.Equal(t, "cached story", second[0].Title)
}

func TestFetchRateLimitedEscalatesBackoff(t *testing.T) {
	fetcher, responseCache, _, controller, _ := newTestFetcher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))

	responseCache.Put("au,br", []Item{{ID: "old", Title: "stale story"}}, time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	items := fetcher.Fetch(context.Background(), "au,br")

	require.Len(t, items, 1, "expired cache still serves as rate-limit fallback")
	assert.Equal(t, "stale story", items[0].Title)
	assert.Positive(t, controller.CurrentDelay(), "rate limit escalates backoff")
}

func TestFetchExhaustedQuotaServesStale(t *testing.T) {
	var calls atomic.Int32
	fetcher, responseCache, tracker, _, _ := newTestFetcher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, successBody("fresh story"))
	}))

	for tracker.CreditsUsed() < 195 {
		tracker.RecordUsage()
	}
	responseCache.Put("au,br", []Item{{ID: "old", Title: "stale story"}}, time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	items := fetcher.Fetch(context.Background(), "au,br")

	require.Len(t, items, 1)
	assert.Equal(t, "stale story", items[0].Title)
	assert.Zero(t, calls.Load(), "no provider call near the ceiling")
}

func TestFetchExhaustedQuotaWithoutCacheSkips(t *testing.T) {
	var calls atomic.Int32
	fetcher, _, tracker, _, _ := newTestFetcher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, successBody("fresh story"))
	}))

	for tracker.CreditsUsed() < 195 {
		tracker.RecordUsage()
	}

	items := fetcher.Fetch(context.Background(), "au,br")

	assert.Empty(t, items)
	assert.Zero(t, calls.Load())
}

func TestFetchMalformedResponseIsEmptyNotFatal(t *testing.T) {
	fetcher, _, tracker, _, _ := newTestFetcher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":`)
	}))

	items := fetcher.Fetch(context.Background(), "au,br")

	assert.Empty(t, items)
	assert.Equal(t, 1, tracker.CreditsUsed(), "a malformed success response still spent a credit")
}

func TestFetchEmptyBatchIsNoop(t *testing.T) {
	var calls atomic.Int32
	fetcher, _, _, _, _ := newTestFetcher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))

	assert.Empty(t, fetcher.Fetch(context.Background(), ""))
	assert.Zero(t, calls.Load())
}
