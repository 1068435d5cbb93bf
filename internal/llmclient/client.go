// Package llmclient implements the Language Model Client: text completion
// with system+user messages and deterministic retries. It wraps
// langchaingo's llms.Model over an OpenAI-compatible endpoint with
// the house's own rate-limit and backoff decorator, rather than calling the
// provider raw.
package llmclient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
	"golang.org/x/time/rate"
)

// ErrorKind classifies why Complete failed, matching the external interface's
// {timeout, rate_limited, upstream_error, permanent_error} taxonomy.
type ErrorKind string

const (
	ErrorKindTimeout        ErrorKind = "timeout"
	ErrorKindRateLimited    ErrorKind = "rate_limited"
	ErrorKindUpstreamError  ErrorKind = "upstream_error"
	ErrorKindPermanentError ErrorKind = "permanent_error"
)

// Error carries the classified error kind alongside the underlying cause.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string { return fmt.Sprintf("llmclient: %s: %v", e.Kind, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

func retryable(kind ErrorKind) bool {
	return kind == ErrorKindRateLimited || kind == ErrorKindUpstreamError
}

// Config configures the client.
type Config struct {
	Provider     string // openai, anthropic (routed through an OpenAI-compatible base URL)
	Model        string
	BaseURL      string
	APIKey       string
	Timeout      time.Duration
	RateLimitRPS float64
	MaxRetries   int
}

// Client is the Language Model Client. It is stateless across calls and
// safe for concurrent use by multiple techniques in the same fan-out.
type Client struct {
	model      llms.Model
	timeout    time.Duration
	limiter    *rate.Limiter
	maxRetries int
}

// New constructs a Client from Config.
func New(cfg Config) (*Client, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("llmclient: model required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 5
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}

	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = "placeholder"
	}

	opts := []openai.Option{
		openai.WithModel(cfg.Model),
		openai.WithToken(apiKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}

	model, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("llmclient: creating model client: %w", err)
	}

	return &Client{
		model:      model,
		timeout:    cfg.Timeout,
		limiter:    rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), int(cfg.RateLimitRPS)+1),
		maxRetries: cfg.MaxRetries,
	}, nil
}

// Complete issues one system+user completion with retries. temperature and
// maxTokens follow langchaingo's option conventions; a zero maxTokens leaves
// the provider default in place.
func (c *Client) Complete(ctx context.Context, system, user string, temperature float64, maxTokens int) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.limiter.Wait(ctx); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", &Error{Kind: ErrorKindTimeout, Err: err}
		}
		return "", &Error{Kind: ErrorKindPermanentError, Err: err}
	}

	messages := []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeSystem, system),
		llms.TextParts(schema.ChatMessageTypeHuman, user),
	}

	callOpts := []llms.CallOption{llms.WithTemperature(temperature)}
	if maxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(maxTokens))
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<(attempt-1)) * 250 * time.Millisecond
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", &Error{Kind: ErrorKindTimeout, Err: ctx.Err()}
			}
		}

		resp, err := c.model.GenerateContent(ctx, messages, callOpts...)
		if err == nil {
			if len(resp.Choices) == 0 {
				return "", &Error{Kind: ErrorKindUpstreamError, Err: fmt.Errorf("empty response")}
			}
			return resp.Choices[0].Content, nil
		}

		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", &Error{Kind: ErrorKindTimeout, Err: err}
		}

		kind := classify(err)
		lastErr = &Error{Kind: kind, Err: err}
		if !retryable(kind) {
			return "", lastErr
		}
	}

	return "", fmt.Errorf("llmclient: max retries exceeded: %w", lastErr)
}

// classify maps a raw langchaingo/HTTP error onto the external error
// taxonomy. langchaingo does not export typed HTTP errors, so this inspects
// the message the same way the house's own hand-rolled HTTP clients do.
func classify(err error) ErrorKind {
	msg := err.Error()
	switch {
	case containsAny(msg, "429", "rate limit", "Too Many Requests"):
		return ErrorKindRateLimited
	case containsAny(msg, "500", "502", "503", "504", "connection reset", "timeout"):
		return ErrorKindUpstreamError
	default:
		return ErrorKindPermanentError
	}
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
