// Package scraper fills gaps in fetched items by reading the article page.
package scraper

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// PageMeta is what the article page itself declares about the story.
type PageMeta struct {
	ImageURL    string
	Description string
}

type Scraper struct {
	client *http.Client
}

func New(timeout time.Duration) *Scraper {
	return &Scraper{
		client: &http.Client{Timeout: timeout},
	}
}

// Extract loads the page and reads og:image and the meta description.
// Callers use it only when the provider item is missing those fields.
func (s *Scraper) Extract(pageURL string) (*PageMeta, error) {
	resp, err := s.client.Get(pageURL)
	if err != nil {
		return nil, fmt.Errorf("error loading page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error parsing HTML: %w", err)
	}

	meta := &PageMeta{}
	if v, ok := doc.Find(`meta[property="og:image"]`).Attr("content"); ok {
		meta.ImageURL = strings.TrimSpace(v)
	}
	if v, ok := doc.Find(`meta[property="og:description"]`).Attr("content"); ok {
		meta.Description = strings.TrimSpace(v)
	}
	if meta.Description == "" {
		if v, ok := doc.Find(`meta[name="description"]`).Attr("content"); ok {
			meta.Description = strings.TrimSpace(v)
		}
	}

	if meta.ImageURL == "" && meta.Description == "" {
		return nil, fmt.Errorf("page declares no usable metadata")
	}
	return meta, nil
}
