// Package rss pulls items from configured feeds as a zero-credit side
// channel next to the content provider.
package rss

import (
	"context"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"gopkg.in/yaml.v3"

	"github.com/ezyy-cloud/newsbot/internal/logger"
	"github.com/ezyy-cloud/newsbot/internal/news"
)

// FeedsConfig is the YAML config structure:
//
// feeds:
//   - https://...
type FeedsConfig struct {
	Feeds []string `yaml:"feeds"`
}

// LoadFeeds reads the feed URL list from a YAML file.
func LoadFeeds(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg FeedsConfig
	dec := yaml.NewDecoder(f)
	if err := dec.Decode(&cfg); err != nil {
		return nil, err
	}
	return cfg.Feeds, nil
}

// FetchAll downloads and parses all feeds. A broken feed is logged and
// skipped, never fatal. The context bounds every fetch so a stalled feed
// cannot outlive the cycle.
func FetchAll(ctx context.Context, urls []string, maxAge time.Duration) []news.Item {
	parser := gofeed.NewParser()
	var all []news.Item
	successCount := 0

	for _, feedURL := range urls {
		if ctx.Err() != nil {
			break
		}
		feed, err := parser.ParseURLWithContext(feedURL, ctx)
		if err != nil {
			logger.Warn("error parsing feed", "url", feedURL, "error", err)
			continue
		}
		for _, item := range feed.Items {
			if item.PublishedParsed != nil && time.Since(*item.PublishedParsed) > maxAge {
				continue
			}
			all = append(all, toItem(item, feedURL))
		}
		successCount++
	}

	logger.Info("processed feeds", "ok", successCount, "total", len(urls), "items", len(all))
	return all
}

func toItem(item *gofeed.Item, feedURL string) news.Item {
	out := news.Item{
		ID:           item.GUID,
		Title:        item.Title,
		Body:         item.Description,
		CanonicalURL: item.Link,
		SourceID:     feedHost(feedURL),
		PublishedAt:  item.Published,
		FetchedAt:    time.Now(),
	}
	if item.Image != nil {
		out.ImageURL = item.Image.URL
	}
	return out
}

func feedHost(feedURL string) string {
	u, err := url.Parse(feedURL)
	if err != nil || u.Host == "" {
		return "rss"
	}
	return strings.TrimPrefix(strings.ToLower(u.Host), "www.")
}
