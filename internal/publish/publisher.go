package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/ezyy-cloud/newsbot/internal/backoff"
	"github.com/ezyy-cloud/newsbot/internal/geo"
	"github.com/ezyy-cloud/newsbot/internal/logger"
	"github.com/ezyy-cloud/newsbot/internal/metrics"
	"github.com/ezyy-cloud/newsbot/internal/news"
)

// Status classifies one publish attempt. RateLimited and Skipped are
// normal outcomes, not errors: the caller decides how to react.
type Status int

const (
	StatusSuccess Status = iota
	StatusRateLimited
	StatusSkipped
	StatusFailed
)

const defaultRetryAfter = 30 * time.Second

// Result is the full outcome of a publish attempt.
type Result struct {
	Status     Status
	MessageID  string
	RetryAfter time.Duration // set when Status is StatusRateLimited
	Reason     string        // set when Status is StatusSkipped
	Err        error         // set when Status is StatusFailed
}

// imageBuffers recycles the transient download buffers. Every exit path
// of Publish returns the buffer it took.
var imageBuffers = sync.Pool{
	New: func() any { return new(bytes.Buffer) },
}

// Publisher assembles and posts one multipart image message per item.
type Publisher struct {
	baseURL   string
	apiKey    string
	username  string
	socketID  string
	auth      Authenticator
	backoff   *backoff.Controller
	http      *http.Client
	imageHTTP *http.Client
}

func New(baseURL, apiKey, username, socketID string, auth Authenticator, controller *backoff.Controller, timeout time.Duration) *Publisher {
	return &Publisher{
		baseURL:   baseURL,
		apiKey:    apiKey,
		username:  username,
		socketID:  socketID,
		auth:      auth,
		backoff:   controller,
		http:      &http.Client{Timeout: timeout},
		imageHTTP: &http.Client{Timeout: timeout},
	}
}

// Publish sends the formatted message with the item's image and location.
// An item with neither an image nor a location is skipped: the platform
// requires at least an attachment. A 401 triggers exactly one token
// refresh and resend; a 429 escalates backoff and reports the provider's
// retry hint without retrying.
func (p *Publisher) Publish(ctx context.Context, item news.Item, loc *geo.Location, message string) Result {
	if item.ImageURL == "" && loc == nil {
		return Result{Status: StatusSkipped, Reason: "no image and no location"}
	}

	token, err := p.auth.Token(ctx)
	if err != nil {
		return Result{Status: StatusFailed, Err: fmt.Errorf("authenticate: %w", err)}
	}

	buf := imageBuffers.Get().(*bytes.Buffer)
	buf.Reset()
	defer imageBuffers.Put(buf)

	if item.ImageURL != "" {
		if err := p.downloadImage(ctx, item.ImageURL, buf); err != nil {
			// A dead image link downgrades to a location-only message when
			// possible, otherwise the item is skipped.
			logger.Warn("image download failed", "url", item.ImageURL, "error", err)
			buf.Reset()
			if loc == nil {
				return Result{Status: StatusSkipped, Reason: "image unavailable and no location"}
			}
		}
	}

	payload, contentType, err := buildPayload(message, p.username, p.socketID, loc, buf.Bytes())
	if err != nil {
		return Result{Status: StatusFailed, Err: fmt.Errorf("build payload: %w", err)}
	}

	resp, err := p.post(ctx, payload, contentType, token)
	if err != nil {
		return Result{Status: StatusFailed, Err: err}
	}

	if resp.status == http.StatusUnauthorized {
		// Expired token: refresh once and resend the same payload. A
		// second 401 is fatal for this item only.
		token, err = p.auth.Refresh(ctx)
		if err != nil {
			return Result{Status: StatusFailed, Err: fmt.Errorf("token refresh: %w", err)}
		}
		resp, err = p.post(ctx, payload, contentType, token)
		if err != nil {
			return Result{Status: StatusFailed, Err: err}
		}
		if resp.status == http.StatusUnauthorized {
			return Result{Status: StatusFailed, Err: fmt.Errorf("still unauthorized after token refresh")}
		}
	}

	switch {
	case resp.status == http.StatusTooManyRequests:
		retryAfter := parseRetryAfter(resp.retryAfter)
		delay := p.backoff.Increase()
		metrics.Global.IncrementRateLimitHits()
		logger.Warn("publish rate limited", "retry_after", retryAfter, "next_backoff", delay)
		return Result{Status: StatusRateLimited, RetryAfter: retryAfter}
	case resp.status >= 200 && resp.status < 300:
		return Result{Status: StatusSuccess, MessageID: resp.messageID}
	default:
		return Result{Status: StatusFailed, Err: fmt.Errorf("publish endpoint error: status %d", resp.status)}
	}
}

func (p *Publisher) downloadImage(ctx context.Context, imageURL string, buf *bytes.Buffer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return fmt.Errorf("build image request: %w", err)
	}
	resp, err := p.imageHTTP.Do(req)
	if err != nil {
		return fmt.Errorf("image request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("image HTTP error: %d", resp.StatusCode)
	}
	if _, err := io.Copy(buf, resp.Body); err != nil {
		return fmt.Errorf("read image: %w", err)
	}
	return nil
}

// buildPayload renders the multipart body once so a 401 retry can resend
// the identical bytes.
func buildPayload(message, username, socketID string, loc *geo.Location, image []byte) ([]byte, string, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	if err := w.WriteField("message", message); err != nil {
		return nil, "", err
	}
	if err := w.WriteField("username", username); err != nil {
		return nil, "", err
	}
	if err := w.WriteField("socketId", socketID); err != nil {
		return nil, "", err
	}

	// Zero is a valid coordinate (equator, prime meridian); presence of a
	// resolved location is what gates the field.
	if loc != nil {
		locJSON, err := json.Marshal(map[string]any{
			"latitude":      loc.Latitude,
			"longitude":     loc.Longitude,
			"fuzzyLocation": !loc.Precise,
		})
		if err != nil {
			return nil, "", err
		}
		if err := w.WriteField("location", string(locJSON)); err != nil {
			return nil, "", err
		}
	}

	if len(image) > 0 {
		part, err := w.CreateFormFile("image", "image.jpg")
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(image); err != nil {
			return nil, "", err
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return body.Bytes(), w.FormDataContentType(), nil
}

type postResult struct {
	status     int
	retryAfter string
	messageID  string
}

func (p *Publisher) post(ctx context.Context, payload []byte, contentType, token string) (postResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/messages/with-image", bytes.NewReader(payload))
	if err != nil {
		return postResult{}, fmt.Errorf("build publish request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("x-api-key", p.apiKey)

	resp, err := p.http.Do(req)
	if err != nil {
		return postResult{}, fmt.Errorf("publish request: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			logger.Warn("failed to close publish response body", "error", cerr)
		}
	}()

	out := postResult{
		status:     resp.StatusCode,
		retryAfter: resp.Header.Get("Retry-After"),
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		var parsed struct {
			ID string `json:"id"`
		}
		if body, rerr := io.ReadAll(resp.Body); rerr == nil {
			_ = json.Unmarshal(body, &parsed)
		}
		out.messageID = parsed.ID
	}
	return out, nil
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return defaultRetryAfter
	}
	secs, err := strconv.Atoi(header)
	if err != nil || secs <= 0 {
		return defaultRetryAfter
	}
	return time.Duration(secs) * time.Second
}
