// Package publish delivers formatted items to the chat platform.
package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/ezyy-cloud/newsbot/internal/logger"
)

// Authenticator supplies and refreshes the bearer token used for publish
// calls. There is a default HTTP implementation; tests substitute fakes.
type Authenticator interface {
	Token(ctx context.Context) (string, error)
	Refresh(ctx context.Context) (string, error)
}

// BotAuthenticator trades the bot id and platform key for a bearer token
// at the platform's auth endpoint, caching the token until a refresh is
// forced.
type BotAuthenticator struct {
	baseURL string
	botID   string
	apiKey  string
	http    *http.Client

	mu    sync.Mutex
	token string
}

func NewBotAuthenticator(baseURL, botID, apiKey string, timeout time.Duration) *BotAuthenticator {
	return &BotAuthenticator{
		baseURL: baseURL,
		botID:   botID,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
}

func (a *BotAuthenticator) Token(ctx context.Context) (string, error) {
	a.mu.Lock()
	cached := a.token
	a.mu.Unlock()
	if cached != "" {
		return cached, nil
	}
	return a.Refresh(ctx)
}

func (a *BotAuthenticator) Refresh(ctx context.Context) (string, error) {
	payload, err := json.Marshal(map[string]string{
		"botId":  a.botID,
		"apiKey": a.apiKey,
	})
	if err != nil {
		return "", fmt.Errorf("error make JSON: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/api/bots/auth", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build auth request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", a.apiKey)

	resp, err := a.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("auth request: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			logger.Warn("failed to close auth response body", "error", cerr)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("auth endpoint error: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read auth response: %w", err)
	}

	var parsed struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil || parsed.Token == "" {
		return "", fmt.Errorf("auth endpoint returned no token")
	}

	a.mu.Lock()
	a.token = parsed.Token
	a.mu.Unlock()

	logger.Debug("bot token refreshed")
	return parsed.Token, nil
}
