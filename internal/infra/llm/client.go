package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is Groq's OpenAI-compatible endpoint.
	DefaultBaseURL = "https://api.groq.com/openai/v1"
	DefaultModel   = "llama3-8b-8192"
	DefaultTimeout = 25 * time.Second
)

// Config holds completion client configuration.
type Config struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`

	// RequestsPerMinute caps outgoing calls; 0 disables the local budget.
	RequestsPerMinute int `yaml:"requests_per_minute"`
}

// Client calls an OpenAI-compatible chat completions endpoint. Each
// Complete is exactly one HTTP request; retries are the caller's decision.
type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a client, filling defaults for empty fields.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), cfg.RequestsPerMinute)
	}

	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{},
		limiter:    limiter,
	}
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.cfg.Model
}

// ChatRequest is a single-turn prompt.
type ChatRequest struct {
	Prompt      string
	Temperature float64
	MaxTokens   int
}

// ChatResponse is the trimmed text of the first choice.
type ChatResponse struct {
	Content string
	Model   string
	Usage   Usage
	Latency time.Duration
}

// Usage represents token usage information
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type completionResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message      message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
	Usage Usage `json:"usage"`
}

type errorEnvelope struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error"`
}

// Complete sends req and waits at most the configured timeout.
//
// Errors: *RateLimitError for 429 or an exhausted local budget, *APIError for
// any other non-200 status or an unusable body, and an error marked with
// ErrTransport when the request or response did not make it (timeouts
// included).
func (c *Client) Complete(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if c.limiter != nil && !c.limiter.Allow() {
		return nil, &RateLimitError{StatusCode: http.StatusTooManyRequests, Local: true}
	}

	body, err := json.Marshal(completionRequest{
		Model:       c.cfg.Model,
		Messages:    []message{{Role: "user", Content: req.Prompt}},
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal request")
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, errors.Mark(
			errors.Wrapf(err, "completion request failed after %s", time.Since(start).Round(time.Millisecond)),
			ErrTransport)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "failed to read response"), ErrTransport)
	}
	latency := time.Since(start)

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &RateLimitError{
			StatusCode: resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			Message:    errorMessage(respBody),
		}
	}
	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: errorMessage(respBody)}
		var env errorEnvelope
		if json.Unmarshal(respBody, &env) == nil {
			apiErr.Type = env.Error.Type
		}
		return nil, apiErr
	}

	var out completionResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, errors.WithDetail(
			&APIError{StatusCode: resp.StatusCode, Type: "invalid_response", Message: "response is not valid JSON"},
			err.Error(),
		)
	}
	if len(out.Choices) == 0 {
		return nil, &APIError{StatusCode: resp.StatusCode, Type: "invalid_response", Message: "no choices in response"}
	}

	slog.Debug("Completion received",
		"model", out.Model,
		"latency", latency,
		"prompt_tokens", out.Usage.PromptTokens,
		"completion_tokens", out.Usage.CompletionTokens,
	)

	return &ChatResponse{
		Content: strings.TrimSpace(out.Choices[0].Message.Content),
		Model:   out.Model,
		Usage:   out.Usage,
		Latency: latency,
	}, nil
}

func errorMessage(body []byte) string {
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err == nil && env.Error.Message != "" {
		return env.Error.Message
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}
