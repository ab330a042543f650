// Package gemini condenses over-budget headlines with the Gemini API.
package gemini

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

type Client struct {
	client *genai.Client
}

func NewClient(ctx context.Context, apiKey string) (*Client, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &Client{client: client}, nil
}

func (c *Client) Close() {
	if c.client != nil {
		c.client.Close()
	}
}

// Condense rewrites a headline to fit the budget. The caller validates the
// result length and falls back to plain truncation on any failure.
func (c *Client) Condense(ctx context.Context, title string, budget int) (string, error) {
	model := c.client.GenerativeModel("gemini-1.5-flash")

	prompt := fmt.Sprintf(
		"Shorten this news headline to at most %d characters. Keep proper nouns and place names. Reply with the shortened headline only, no quotes.\n\nHeadline: %s",
		budget, title,
	)

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("gemini request: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("gemini returned no candidates")
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}

	out := strings.TrimSpace(strings.Trim(strings.TrimSpace(b.String()), `"`))
	if out == "" {
		return "", fmt.Errorf("gemini returned empty text")
	}
	return out, nil
}
