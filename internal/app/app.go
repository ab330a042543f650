// Package app wires the bot together and drives one publish cycle at a
// time.
package app

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/ezyy-cloud/newsbot/internal/backoff"
	"github.com/ezyy-cloud/newsbot/internal/cache"
	"github.com/ezyy-cloud/newsbot/internal/config"
	"github.com/ezyy-cloud/newsbot/internal/format"
	"github.com/ezyy-cloud/newsbot/internal/gemini"
	"github.com/ezyy-cloud/newsbot/internal/geo"
	"github.com/ezyy-cloud/newsbot/internal/logger"
	"github.com/ezyy-cloud/newsbot/internal/metrics"
	"github.com/ezyy-cloud/newsbot/internal/news"
	"github.com/ezyy-cloud/newsbot/internal/publish"
	"github.com/ezyy-cloud/newsbot/internal/quota"
	"github.com/ezyy-cloud/newsbot/internal/rss"
	"github.com/ezyy-cloud/newsbot/internal/scheduler"
	"github.com/ezyy-cloud/newsbot/internal/scraper"
)

// defaultRotation is the provider country rotation when none is
// configured. Codes must exist in the geo country table.
var defaultRotation = []string{
	"us", "gb", "au", "ca", "in", "za", "nz", "sg", "ke", "ph",
	"de", "fr", "it", "es", "jp", "br", "mx", "ng", "cn",
}

const historySize = 50

// ContentSource yields the items for one cycle's batch.
type ContentSource interface {
	Fetch(ctx context.Context, batch string) []news.Item
}

// LocationResolver attaches coordinates to an item when it can.
type LocationResolver interface {
	Resolve(ctx context.Context, item news.Item) (geo.Location, bool)
}

// Publisher delivers one formatted item.
type Publisher interface {
	Publish(ctx context.Context, item news.Item, loc *geo.Location, message string) publish.Result
}

// Bot owns all orchestration state for one bot identity. Everything here
// is in-memory and resets on restart.
type Bot struct {
	cfg       *config.Config
	rotator   *news.Rotator
	fetcher   ContentSource
	respCache *cache.Cache[news.Item]
	quota     *quota.Tracker
	backoff   *backoff.Controller
	resolver  LocationResolver
	geocoder  *geo.Geocoder
	scraper   *scraper.Scraper
	formatter *format.Formatter
	publisher Publisher
	ai        *gemini.Client
	history   *news.History
	feeds     []string
	pace      *rate.Limiter
	sched     *scheduler.Scheduler
}

func New(ctx context.Context, cfg *config.Config) (*Bot, error) {
	b := &Bot{
		cfg:       cfg,
		rotator:   news.NewRotator(defaultRotation, 0),
		respCache: cache.New[news.Item](cfg.CacheSweep, cfg.CacheMaxItems),
		quota:     quota.New(cfg.DailyCreditLimit, cfg.SafetyBuffer),
		backoff:   backoff.New(0, 0),
		scraper:   scraper.New(cfg.RequestTimeout),
		history:   news.NewHistory(historySize),
		pace:      rate.NewLimiter(rate.Every(cfg.PublishSpacing), 1),
	}

	client := news.NewClient(cfg.NewsAPIKey, cfg.NewsLanguage, cfg.NewsCategory, cfg.PageSize, cfg.RequestTimeout)
	b.fetcher = news.NewFetcher(client, b.respCache, b.quota, b.backoff, cfg.CacheTTL, cfg.RetryAttempts, cfg.RetryDelay)

	b.geocoder = geo.NewGeocoder(cfg.GeocodeAPIKey, cfg.RequestTimeout)
	b.resolver = geo.NewResolver(b.geocoder)
	if cfg.LocationMapsPath != "" {
		if err := geo.LoadMaps(cfg.LocationMapsPath); err != nil {
			logger.Warn("location maps unavailable, using built-ins", "path", cfg.LocationMapsPath, "error", err)
		}
	}

	if cfg.GeminiAPIKey != "" {
		ai, err := gemini.NewClient(ctx, cfg.GeminiAPIKey)
		if err != nil {
			logger.Warn("gemini disabled", "error", err)
		} else {
			b.ai = ai
		}
	}
	var condenser format.Condenser
	if b.ai != nil {
		condenser = b.ai
	}
	b.formatter = format.New(cfg.MessageBudget, condenser)

	auth := publish.NewBotAuthenticator(cfg.BaseURL, cfg.BotID, cfg.PlatformKey, cfg.RequestTimeout)
	b.publisher = publish.New(cfg.BaseURL, cfg.PlatformKey, cfg.BotUsername, uuid.NewString(), auth, b.backoff, cfg.RequestTimeout)

	if cfg.FeedsConfigPath != "" {
		feeds, err := rss.LoadFeeds(cfg.FeedsConfigPath)
		if err != nil {
			logger.Warn("feeds config unavailable, side channel disabled", "path", cfg.FeedsConfigPath, "error", err)
		} else {
			b.feeds = feeds
		}
	}

	b.sched = scheduler.New(scheduler.Config{
		BaseInterval: cfg.PostFrequency,
	}, b.Cycle, b.backoff, b.quota, cfg.SafetyBuffer)

	return b, nil
}

// Start arms the scheduler. Publishing begins after the initial delay.
func (b *Bot) Start(ctx context.Context) {
	b.sched.Start(ctx)
}

func (b *Bot) Close() {
	b.sched.Stop()
	b.respCache.Stop()
	b.geocoder.Close()
	if b.ai != nil {
		b.ai.Close()
	}
}

// Scheduler exposes the state machine for health reporting.
func (b *Bot) Scheduler() *scheduler.Scheduler {
	return b.sched
}

// Cycle runs one fetch-resolve-publish pass. Items are processed
// sequentially with an explicit gap between publishes; a rate-limited
// publish halts the rest of the cycle.
func (b *Bot) Cycle(ctx context.Context) error {
	batch := b.rotator.NextBatch(b.cfg.BatchSize)
	items := b.fetcher.Fetch(ctx, batch)

	if len(b.feeds) > 0 {
		items = append(items, rss.FetchAll(ctx, b.feeds, 24*time.Hour)...)
	}
	if len(items) == 0 {
		logger.Info("cycle found nothing to publish", "batch", batch)
		return ctx.Err()
	}

	seenThisCycle := make(map[string]bool)
	published := 0

	for _, item := range items {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if published >= b.cfg.MaxItemsPerCycle {
			break
		}

		title := item.NormalizedTitle()
		if title == "" || seenThisCycle[title] || b.history.Contains(title) {
			metrics.Global.IncrementDuplicatesFiltered()
			continue
		}
		seenThisCycle[title] = true

		if halt := b.processItem(ctx, item, &published); halt {
			break
		}
	}

	logger.Info("cycle finished", "batch", batch, "candidates", len(items), "published", published)
	return ctx.Err()
}

// processItem enriches, resolves, formats and publishes one item. The
// returned flag tells the cycle to stop publishing (rate limited).
func (b *Bot) processItem(ctx context.Context, item news.Item, published *int) bool {
	b.enrich(item.CanonicalURL, &item)

	var loc *geo.Location
	if resolved, ok := b.resolver.Resolve(ctx, item); ok {
		loc = &resolved
	} else if b.cfg.LocationRequired {
		metrics.Global.IncrementItemsSkipped()
		logger.Debug("skipping item without location", "title", item.Title)
		return false
	}

	msg := b.formatter.Format(ctx, item)

	// Deliberate serialization: the platform has its own rate limits.
	if err := b.pace.Wait(ctx); err != nil {
		return true
	}

	result := b.publisher.Publish(ctx, item, loc, msg)
	switch result.Status {
	case publish.StatusSuccess:
		b.history.Add(item.NormalizedTitle())
		b.backoff.Reset()
		metrics.Global.IncrementItemsPublished()
		*published++
		logger.Info("published", "title", item.Title, "message_id", result.MessageID)
		return false
	case publish.StatusRateLimited:
		// Caller halts the rest of the cycle; backoff was already
		// escalated by the publisher.
		logger.Warn("halting cycle after rate limit", "retry_after", result.RetryAfter)
		return true
	case publish.StatusSkipped:
		metrics.Global.IncrementItemsSkipped()
		logger.Debug("item skipped", "title", item.Title, "reason", result.Reason)
		return false
	default:
		// Fatal for this item only; the cycle continues.
		metrics.Global.IncrementItemsSkipped()
		logger.Warn("publish failed", "title", item.Title, "error", result.Err)
		return false
	}
}

// enrich backfills a missing image or body from the article page itself.
func (b *Bot) enrich(pageURL string, item *news.Item) {
	if pageURL == "" || (item.ImageURL != "" && item.Body != "") {
		return
	}
	meta, err := b.scraper.Extract(pageURL)
	if err != nil {
		logger.Debug("page enrichment failed", "url", pageURL, "error", err)
		return
	}
	if item.ImageURL == "" {
		item.ImageURL = meta.ImageURL
	}
	if item.Body == "" {
		item.Body = meta.Description
	}
}

// Run is the blocking entrypoint used by main.
func Run() error {
	logger.Init()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bot, err := New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("build bot: %w", err)
	}
	defer bot.Close()

	bot.Start(ctx)
	logger.Info("newsbot running", "post_frequency", cfg.PostFrequency, "daily_credit_limit", cfg.DailyCreditLimit)

	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}
