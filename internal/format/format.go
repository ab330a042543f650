// Package format renders a bounded-length message for publishing.
package format

import (
	"context"
	"strings"

	"github.com/ezyy-cloud/newsbot/internal/news"
)

const ellipsis = "…"

// Condenser rewrites an over-budget title into fewer characters. It is
// optional; the formatter always has a plain truncation fallback.
type Condenser interface {
	Condense(ctx context.Context, title string, budget int) (string, error)
}

// Formatter renders a message within a fixed character budget. The
// canonical URL is appended after truncation and never counts against the
// budget: link shortening downstream gives it a constant display length.
type Formatter struct {
	budget    int
	condenser Condenser
}

func New(budget int, condenser Condenser) *Formatter {
	return &Formatter{budget: budget, condenser: condenser}
}

// Format produces "body | via source url". Body is the title, truncated
// with an ellipsis if it would overflow the budget left after the
// attribution suffix.
func (f *Formatter) Format(ctx context.Context, item news.Item) string {
	suffix := attribution(item.SourceID)
	bodyBudget := f.budget - len([]rune(suffix))
	if bodyBudget < 1 {
		bodyBudget = 1
	}

	body := strings.TrimSpace(item.Title)
	if len([]rune(body)) > bodyBudget {
		body = f.shorten(ctx, body, bodyBudget)
	}

	msg := body + suffix
	if item.CanonicalURL != "" {
		msg += " " + item.CanonicalURL
	}
	return msg
}

// BodyLength reports the budgeted length of a formatted message, i.e. the
// part before the appended URL.
func (f *Formatter) BodyLength(msg string, item news.Item) int {
	if item.CanonicalURL != "" {
		msg = strings.TrimSuffix(msg, " "+item.CanonicalURL)
	}
	return len([]rune(msg))
}

func (f *Formatter) shorten(ctx context.Context, body string, budget int) string {
	if f.condenser != nil {
		if condensed, err := f.condenser.Condense(ctx, body, budget); err == nil {
			condensed = strings.TrimSpace(condensed)
			if condensed != "" && len([]rune(condensed)) <= budget {
				return condensed
			}
		}
	}
	return truncate(body, budget)
}

func truncate(s string, budget int) string {
	runes := []rune(s)
	keep := budget - len([]rune(ellipsis))
	if keep < 0 {
		keep = 0
	}
	if keep > len(runes) {
		keep = len(runes)
	}
	return strings.TrimRight(string(runes[:keep]), " ") + ellipsis
}

func attribution(sourceID string) string {
	if sourceID == "" {
		return ""
	}
	return " | via " + sourceID
}
