// Package notion is the bot's gateway to the Notion REST API: database
// schema, page reads and writes, user lookup and webhook payload parsing.
package notion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const (
	defaultBaseURL    = "https://api.notion.com"
	defaultAPIVersion = "2022-06-28"
)

// APIError is the single error type returned for any failed Notion call.
// Message is safe to show to Discord users.
type APIError struct {
	StatusCode int    `json:"status"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("notion api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("notion api error: status=%d message=%s", e.StatusCode, e.Message)
	}
	return "notion api error: " + e.Message
}

// ErrInvalidDatabaseURL is returned when no database id can be found in a URL.
var ErrInvalidDatabaseURL = errors.New("no notion database id found in url")

// Config holds the Notion client settings.
type Config struct {
	Token      string
	BaseURL    string
	APIVersion string
	Timeout    time.Duration
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// Client talks to the Notion API.
type Client struct {
	http   *resty.Client
	logger *zap.Logger
}

// NewClient creates a Notion client. Requests that fail with 429 or 5xx are
// retried with exponential backoff, honoring Retry-After. Page creation and
// block appends are retried on 429 only.
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, fmt.Errorf("NOTION_TOKEN is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = defaultAPIVersion
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 100 * time.Millisecond
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 2 * time.Second
	}

	rc := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetAuthToken(cfg.Token).
		SetHeader("Notion-Version", cfg.APIVersion).
		SetHeader("Content-Type", "application/json").
		SetHeader("User-Agent", "cardbot/1.0").
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.MaxRetries).
		SetRetryWaitTime(cfg.BaseDelay).
		SetRetryMaxWaitTime(cfg.MaxDelay).
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			if resp != nil && resp.StatusCode() == http.StatusTooManyRequests {
				return true
			}
			// a failed create or append may already have been applied
			if resp != nil && resp.Request != nil && resp.Request.Context().Value(noReplayKey{}) != nil {
				return false
			}
			return err != nil || (resp != nil && resp.StatusCode() >= 500)
		}).
		SetRetryAfter(func(_ *resty.Client, resp *resty.Response) (time.Duration, error) {
			if resp == nil {
				return 0, nil
			}
			if d := parseRetryAfter(resp.Header().Get("Retry-After")); d > 0 {
				if d > cfg.MaxDelay {
					return cfg.MaxDelay, nil
				}
				return d, nil
			}
			// zero falls back to resty's own backoff
			return 0, nil
		})

	return &Client{http: rc, logger: logger}, nil
}

// noReplayKey marks requests that are retried only when rate limited.
type noReplayKey struct{}

// replayable reports whether repeating a request cannot duplicate its effect.
// Database queries are POSTs but read-only.
func replayable(method, path string) bool {
	switch method {
	case http.MethodPost:
		return strings.HasSuffix(path, "/query")
	case http.MethodPatch:
		return !strings.HasSuffix(path, "/children")
	}
	return true
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if !replayable(method, path) {
		ctx = context.WithValue(ctx, noReplayKey{}, true)
	}
	req := c.http.R().SetContext(ctx)
	if body != nil {
		req.SetBody(body)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		c.logger.Warn("notion request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return &APIError{Message: err.Error()}
	}

	if resp.IsError() {
		apiErr := &APIError{StatusCode: resp.StatusCode(), Message: strings.TrimSpace(resp.String())}
		var parsed APIError
		if json.Unmarshal(resp.Body(), &parsed) == nil {
			apiErr.Code = parsed.Code
			if strings.TrimSpace(parsed.Message) != "" {
				apiErr.Message = parsed.Message
			}
		}
		c.logger.Warn("notion request rejected",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", apiErr.StatusCode),
			zap.String("code", apiErr.Code),
		)
		return apiErr
	}

	if out != nil {
		if err := json.Unmarshal(resp.Body(), out); err != nil {
			return &APIError{StatusCode: resp.StatusCode(), Message: "malformed response: " + err.Error()}
		}
	}
	return nil
}

func parseRetryAfter(header string) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}
	seconds, err := strconv.Atoi(header)
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
