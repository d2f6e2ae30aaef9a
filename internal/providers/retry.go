package providers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const defaultMaxAttempts = 3

// RetryProvider wraps a Provider with retry on transport failures: up to
// maxAttempts tries with exponential backoff (1s, 2s, ...). API-level errors
// (4xx) are returned immediately.
type RetryProvider struct {
	inner       Provider
	maxAttempts int
	baseDelay   time.Duration
}

func NewRetryProvider(inner Provider) *RetryProvider {
	return &RetryProvider{
		inner:       inner,
		maxAttempts: defaultMaxAttempts,
		baseDelay:   time.Second,
	}
}

func (p *RetryProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	var lastErr error
	for attempt := 0; attempt < p.maxAttempts; attempt++ {
		if attempt > 0 {
			delay := p.baseDelay << (attempt - 1)
			slog.Warn("retrying provider call", "attempt", attempt+1, "delay", delay, "err", lastErr)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		resp, err := p.inner.Chat(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !retryable(err) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("provider unreachable after %d attempts: %w", p.maxAttempts, lastErr)
}

// retryable reports whether err looks like a transient transport failure
// rather than a request the API rejected.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		// retry rate limits and server errors, not client errors
		return apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500
	}
	return true
}
