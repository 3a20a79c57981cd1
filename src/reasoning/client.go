// REST client for the external reasoning service. The engine consumes it
// as a black box: prompt in, natural-language text out. Tool access is
// never granted on these calls.
package reasoning

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	defaultRetryAttempts   = 3
	defaultRetryBaseDelay  = 500 * time.Millisecond
	defaultRetryMaxBackoff = 8 * time.Second
)

var ErrNotConfigured = errors.New("reasoning service not configured (missing API key)")

type request struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	System    string    `json:"system,omitempty"`
	Messages  []message `json:"messages"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type response struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func isRetryableResp(r *resty.Response, err error) bool {
	if err != nil {
		return true
	}
	if r == nil {
		return false
	}
	code := r.StatusCode()
	return (code >= 500 && code <= 599) || code == 429 || code == 408
}

// Client talks to an Anthropic-compatible messages endpoint.
type Client struct {
	cfg  Config
	http *resty.Client
}

// NewClient builds a reasoning client from configuration.
func NewClient(cfg Config) *Client {
	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(defaultRetryAttempts - 1).
		SetRetryWaitTime(defaultRetryBaseDelay).
		SetRetryMaxWaitTime(defaultRetryMaxBackoff).
		AddRetryCondition(isRetryableResp)

	return &Client{cfg: cfg, http: httpClient}
}

// IsConfigured reports whether the client has credentials to work with.
func (c *Client) IsConfigured() bool {
	return c.cfg.APIKey != ""
}

// Generate sends one completion request and returns the raw text.
func (c *Client) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if !c.IsConfigured() {
		return "", ErrNotConfigured
	}

	body := request{
		Model:     c.cfg.Model,
		MaxTokens: c.cfg.MaxTokens,
		System:    systemPrompt,
		Messages:  []message{{Role: "user", Content: userPrompt}},
	}

	var decoded response
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("x-api-key", c.cfg.APIKey).
		SetHeader("anthropic-version", "2023-06-01").
		SetBody(body).
		SetResult(&decoded).
		SetError(&decoded).
		Post("/v1/messages")
	if err != nil {
		return "", fmt.Errorf("reasoning request failed: %w", err)
	}

	if decoded.Error != nil {
		return "", fmt.Errorf("reasoning API error: %s - %s", decoded.Error.Type, decoded.Error.Message)
	}
	if resp.StatusCode() != 200 {
		return "", fmt.Errorf("reasoning HTTP %d: %s", resp.StatusCode(), resp.String())
	}
	if len(decoded.Content) == 0 {
		return "", errors.New("empty response from reasoning service")
	}

	return decoded.Content[0].Text, nil
}
