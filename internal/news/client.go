package news

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/ezyy-cloud/newsbot/internal/logger"
)

// ErrRateLimited is returned when the provider answers with a rate-limit
// class response. The caller decides whether a cached fallback applies.
var ErrRateLimited = errors.New("provider rate limited")

// ErrTransient marks failures worth retrying: network errors and a fixed
// set of status codes.
var ErrTransient = errors.New("transient provider failure")

var retryableStatus = map[int]bool{
	http.StatusRequestTimeout:      true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// Client queries the content provider's latest-news endpoint.
type Client struct {
	apiKey   string
	language string
	category string
	pageSize int
	baseURL  string
	http     *http.Client
}

func NewClient(apiKey, language, category string, pageSize int, timeout time.Duration) *Client {
	return &Client{
		apiKey:   apiKey,
		language: language,
		category: category,
		pageSize: pageSize,
		baseURL:  "https://newsdata.io/api/1/latest",
		http:     &http.Client{Timeout: timeout},
	}
}

// SetBaseURL points the client at a different endpoint. Tests use this.
func (c *Client) SetBaseURL(u string) {
	c.baseURL = u
}

type providerResponse struct {
	Status  string `json:"status"`
	Results []Item `json:"results"`
	Message string `json:"message"`
}

// Latest issues one query for the given comma-joined country codes. One
// call costs one provider credit regardless of batch size.
func (c *Client) Latest(ctx context.Context, countries string) ([]Item, error) {
	q := url.Values{}
	q.Set("apikey", c.apiKey)
	q.Set("country", countries)
	q.Set("language", c.language)
	q.Set("category", c.category)
	q.Set("image", "1")
	q.Set("size", fmt.Sprintf("%d", c.pageSize))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransient, err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			logger.Warn("failed to close provider response body", "error", cerr)
		}
	}()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, ErrRateLimited
	case retryableStatus[resp.StatusCode]:
		return nil, fmt.Errorf("%w: status %d", ErrTransient, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("provider error: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrTransient, err)
	}

	var parsed providerResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		// Malformed response: treated as empty, logged, never fatal.
		logger.Warn("malformed provider response", "error", err)
		return nil, nil
	}
	if parsed.Status != "success" {
		logger.Warn("provider rejected query", "status", parsed.Status, "message", parsed.Message)
		return nil, nil
	}

	now := time.Now()
	for i := range parsed.Results {
		parsed.Results[i].FetchedAt = now
	}
	return parsed.Results, nil
}
