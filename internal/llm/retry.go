package llm

import (
	"context"
	"math"
	"math/rand"
	"time"

	"prospect/internal/core"
	"prospect/internal/logger"
)

// RetryConfig bounds the backoff loop around rate-limited provider calls.
type RetryConfig struct {
	MaxRetries   int           // Attempts beyond the first call
	BaseDelay    time.Duration // First backoff step
	MaxDelay     time.Duration // Backoff ceiling
	JitterFactor float64       // Fraction of the delay randomized each way
}

// DefaultRetryConfig matches the pipeline's LLM budget: two retries with
// exponential backoff, so a single quota blip costs three calls at most.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   2,
		BaseDelay:    time.Second,
		MaxDelay:     30 * time.Second,
		JitterFactor: 0.1,
	}
}

// CompleteWithRetry runs provider.Complete, retrying only rate-limit
// failures with exponential backoff. Other provider errors return
// immediately; context cancellation wins over any pending backoff.
func CompleteWithRetry(ctx context.Context, provider Provider, req Request, cfg RetryConfig) (Response, error) {
	log := logger.Get()

	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return Response{}, ctx.Err()
		default:
		}

		resp, err := provider.Complete(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if core.KindOf(err) != core.KindLLMRateLimited {
			return Response{}, err
		}
		if attempt >= cfg.MaxRetries {
			break
		}

		delay := backoffDelay(cfg, attempt)
		log.Debug("LLM call rate limited, backing off",
			"attempt", attempt+1,
			"max_attempts", cfg.MaxRetries+1,
			"delay", delay)

		select {
		case <-ctx.Done():
			return Response{}, ctx.Err()
		case <-time.After(delay):
		}
	}

	return Response{}, lastErr
}

// backoffDelay computes baseDelay * 2^attempt with jitter, clamped to MaxDelay.
func backoffDelay(cfg RetryConfig, attempt int) time.Duration {
	delay := time.Duration(math.Pow(2, float64(attempt))) * cfg.BaseDelay

	jitter := time.Duration(rand.Float64() * float64(delay) * cfg.JitterFactor)
	if rand.Float64() < 0.5 {
		delay -= jitter
	} else {
		delay += jitter
	}

	if delay > cfg.MaxDelay {
		delay = cfg.MaxDelay
	}
	if delay < 0 {
		delay = 0
	}
	return delay
}
