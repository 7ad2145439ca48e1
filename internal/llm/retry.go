package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"
)

// RetryConfig bounds the retries added by WithRetry.
type RetryConfig struct {
	MaxRetries int           // retries after the first attempt
	BaseDelay  time.Duration // first backoff, doubled per attempt; 0 = 1s
	Logger     *zap.Logger
}

type retryProvider struct {
	next  Provider
	cfg   RetryConfig
	log   *zap.Logger
	sleep func(ctx context.Context, d time.Duration) error
}

// WithRetry wraps p so transient failures (HTTP 429 and 5xx, network
// errors) are retried with exponential backoff. A 429 Retry-After value
// replaces the computed backoff. Other errors are returned immediately.
func WithRetry(p Provider, cfg RetryConfig) Provider {
	if cfg.MaxRetries <= 0 {
		return p
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &retryProvider{next: p, cfg: cfg, log: log, sleep: sleepCtx}
}

func (r *retryProvider) Name() string { return r.next.Name() }

func (r *retryProvider) Complete(ctx context.Context, prompt string, opts CompletionOpts) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= r.cfg.MaxRetries; attempt++ {
		out, err := r.next.Complete(ctx, prompt, opts)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if !IsTransient(err) || attempt == r.cfg.MaxRetries {
			break
		}

		backoff := r.cfg.BaseDelay * time.Duration(1<<attempt)
		var httpErr *HTTPError
		if errors.As(err, &httpErr) && httpErr.RetryAfter > 0 {
			backoff = httpErr.RetryAfter
		}
		r.log.Debug("retrying completion",
			zap.String("provider", r.next.Name()),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", backoff),
			zap.Error(err))

		if err := r.sleep(ctx, backoff); err != nil {
			return "", err
		}
	}
	if !IsTransient(lastErr) {
		return "", lastErr
	}
	return "", fmt.Errorf("completion failed after %d attempts: %w", r.cfg.MaxRetries+1, lastErr)
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Transient()
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
