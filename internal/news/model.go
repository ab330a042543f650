// Package news fetches content items from the provider within the daily
// credit budget.
package news

import (
	"strings"
	"time"
)

// Item is a single piece of content as fetched. Immutable once built.
type Item struct {
	ID            string    `json:"article_id"`
	Title         string    `json:"title"`
	Body          string    `json:"description"`
	CanonicalURL  string    `json:"link"`
	SourceID      string    `json:"source_id"`
	OriginCountry []string  `json:"country"`
	Category      []string  `json:"category"`
	PublishedAt   string    `json:"pubDate"`
	ImageURL      string    `json:"image_url"`

	FetchedAt time.Time `json:"-"`
}

// NormalizedTitle is the dedup key: lowercased, whitespace collapsed.
func (i Item) NormalizedTitle() string {
	return strings.Join(strings.Fields(strings.ToLower(i.Title)), " ")
}

// History is a bounded ring of recently published titles, oldest evicted
// first. It backs cross-cycle dedup; in-cycle dedup is a plain set.
type History struct {
	limit int
	order []string
	seen  map[string]struct{}
}

func NewHistory(limit int) *History {
	return &History{
		limit: limit,
		seen:  make(map[string]struct{}),
	}
}

func (h *History) Contains(title string) bool {
	_, ok := h.seen[title]
	return ok
}

func (h *History) Add(title string) {
	if _, ok := h.seen[title]; ok {
		return
	}
	if len(h.order) >= h.limit {
		oldest := h.order[0]
		h.order = h.order[1:]
		delete(h.seen, oldest)
	}
	h.order = append(h.order, title)
	h.seen[title] = struct{}{}
}

func (h *History) Len() int {
	return len(h.order)
}
