package news

import (
	"context"
	"errors"
	"time"

	"github.com/ezyy-cloud/newsbot/internal/backoff"
	"github.com/ezyy-cloud/newsbot/internal/cache"
	"github.com/ezyy-cloud/newsbot/internal/logger"
	"github.com/ezyy-cloud/newsbot/internal/metrics"
	"github.com/ezyy-cloud/newsbot/internal/quota"
	"github.com/ezyy-cloud/newsbot/internal/retry"
)

// Fetcher decides whether a batch is served from cache or the provider.
// Every failure path resolves to an empty slice; a fetch never fails the
// cycle.
type Fetcher struct {
	client  *Client
	cache   *cache.Cache[Item]
	quota   *quota.Tracker
	backoff *backoff.Controller

	cacheTTL      time.Duration
	retryAttempts int
	retryDelay    time.Duration
}

func NewFetcher(
	client *Client,
	responseCache *cache.Cache[Item],
	tracker *quota.Tracker,
	controller *backoff.Controller,
	cacheTTL time.Duration,
	retryAttempts int,
	retryDelay time.Duration,
) *Fetcher {
	return &Fetcher{
		client:        client,
		cache:         responseCache,
		quota:         tracker,
		backoff:       controller,
		cacheTTL:      cacheTTL,
		retryAttempts: retryAttempts,
		retryDelay:    retryDelay,
	}
}

// Fetch returns items for the batch of country codes. Order of preference:
// fresh cache when pacing says to save credits, stale cache when the daily
// budget is gone, otherwise a live request with retries and a cached
// fallback on rate limiting.
func (f *Fetcher) Fetch(ctx context.Context, countries string) []Item {
	if countries == "" {
		return nil
	}

	// Hard guard: near the ceiling nothing may spend a credit. Stale data
	// beats no data here; quota exhaustion is a skip, not an error.
	if f.quota.Exhausted() {
		if items, ok := f.cache.GetStale(countries); ok {
			logger.Info("daily budget exhausted, serving stale cache", "batch", countries)
			metrics.Global.IncrementCacheHits()
			return items
		}
		logger.Info("daily budget exhausted, no cache for batch", "batch", countries)
		return nil
	}

	// Ahead of the pacing curve: prefer a fresh cache entry over spending.
	if f.quota.ShouldUseCache() {
		if items, ok := f.cache.Get(countries); ok {
			logger.Debug("ahead of quota curve, serving cached batch", "batch", countries)
			metrics.Global.IncrementCacheHits()
			return items
		}
	}
	metrics.Global.IncrementCacheMisses()

	var items []Item
	err := retry.WithRetry(ctx, retry.Config{
		MaxAttempts: f.retryAttempts,
		Delay:       f.retryDelay,
		Backoff:     true,
	}, func() error {
		fetched, ferr := f.client.Latest(ctx, countries)
		if ferr != nil {
			if errors.Is(ferr, ErrTransient) {
				return ferr
			}
			// Rate limit and fatal provider errors are not retried here.
			return retry.Permanent(ferr)
		}
		items = fetched
		return nil
	})

	if err != nil {
		return f.fallback(countries, err)
	}

	f.quota.RecordUsage()
	metrics.Global.AddCreditsSpent(1)
	metrics.Global.AddItemsFetched(len(items))
	if len(items) > 0 {
		f.cache.Put(countries, items, f.cacheTTL)
	}
	return items
}

func (f *Fetcher) fallback(countries string, cause error) []Item {
	if errors.Is(cause, ErrRateLimited) {
		delay := f.backoff.Increase()
		metrics.Global.IncrementRateLimitHits()
		logger.Warn("provider rate limited", "batch", countries, "next_backoff", delay)
	} else {
		logger.Warn("fetch failed", "batch", countries, "error", cause)
	}

	if items, ok := f.cache.GetStale(countries); ok {
		logger.Info("serving cached fallback after fetch failure", "batch", countries)
		metrics.Global.IncrementCacheHits()
		return items
	}
	return nil
}
