package llm

import (
	"context"
	"errors"
	"math/rand/v2"
	"net"
	"strings"
	"time"
)

const (
	outerTimeout  = 120 * time.Second
	maxRetries    = 3
	initialDelay  = 1 * time.Second
	maxDelay      = 30 * time.Second
)

// isTransient reports whether err represents a retryable failure: HTTP
// 408/429/5xx, connection reset/refused/timeout, or a "rate limit"
// message. Mirrors the teacher's storage.isRetriable classifier, adapted
// from Postgres error codes to HTTP/network failure modes.
func isTransient(err error) bool {
	var apiErr *apiError
	if errors.As(err, &apiErr) {
		if apiErr.statusCode == 408 || apiErr.statusCode == 429 {
			return true
		}
		if apiErr.statusCode >= 500 {
			return true
		}
		if strings.Contains(strings.ToLower(apiErr.body), "rate limit") {
			return true
		}
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, substr := range []string{"connection reset", "connection refused", "rate limit"} {
		if strings.Contains(msg, substr) {
			return true
		}
	}
	return false
}

// retryAfter extracts the Retry-After duration from err, if present.
func retryAfter(err error) (time.Duration, bool) {
	var apiErr *apiError
	if errors.As(err, &apiErr) && apiErr.retryAfter > 0 {
		return apiErr.retryAfter, true
	}
	return 0, false
}

// withRetry executes fn, retrying up to maxRetries times on transient
// errors with jittered exponential backoff, honoring a Retry-After delay
// when the error carries one, and bounded by an outer timeout applied to
// ctx by the caller (see Orchestrator.Chat).
func withRetry(ctx context.Context, fn func(ctx context.Context) (Response, error)) (Response, error) {
	delay := initialDelay
	var resp Response
	var err error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		resp, err = fn(ctx)
		if err == nil || !isTransient(err) {
			return resp, err
		}
		if attempt == maxRetries {
			break
		}

		wait := delay
		if ra, ok := retryAfter(err); ok {
			wait = ra
		} else {
			jitter := time.Duration(rand.Int64N(int64(delay)))
			wait = delay + jitter
		}
		if wait > maxDelay {
			wait = maxDelay
		}

		select {
		case <-ctx.Done():
			return Response{}, ctx.Err()
		case <-time.After(wait):
		}
		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
	return resp, err
}
