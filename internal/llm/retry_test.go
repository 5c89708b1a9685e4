package llm

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestIsTransientClassifiesAPIErrors(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{&apiError{statusCode: 429}, true},
		{&apiError{statusCode: 500}, true},
		{&apiError{statusCode: 503}, true},
		{&apiError{statusCode: 400}, false},
		{&apiError{statusCode: 404}, false},
		{errors.New("connection reset by peer"), true},
		{errors.New("connection refused"), true},
		{errors.New("boom"), false},
	}
	for _, c := range cases {
		if got := isTransient(c.err); got != c.want {
			t.Errorf("isTransient(%v) = %v, want %v", c.err, got, c.want)
		}
	}
}

func TestRetryAfterExtractsDuration(t *testing.T) {
	err := &apiError{statusCode: 429, retryAfter: 5 * time.Second}
	d, ok := retryAfter(err)
	if !ok || d != 5*time.Second {
		t.Fatalf("expected 5s retry-after, got %v ok=%v", d, ok)
	}

	_, ok = retryAfter(errors.New("plain"))
	if ok {
		t.Fatal("expected no retry-after for a plain error")
	}
}

func TestWithRetrySucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	resp, err := withRetry(context.Background(), func(ctx context.Context) (Response, error) {
		attempts++
		if attempts < 3 {
			return Response{}, &apiError{statusCode: 503}
		}
		return Response{StopReason: StopEndTurn}, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
	if resp.StopReason != StopEndTurn {
		t.Fatalf("expected end_turn, got %s", resp.StopReason)
	}
}

func TestWithRetryGivesUpOnNonTransientError(t *testing.T) {
	attempts := 0
	_, err := withRetry(context.Background(), func(ctx context.Context) (Response, error) {
		attempts++
		return Response{}, &apiError{statusCode: 400}
	})
	if err == nil {
		t.Fatal("expected error to propagate")
	}
	if attempts != 1 {
		t.Fatalf("expected exactly 1 attempt for a non-transient error, got %d", attempts)
	}
}

func TestWithRetryExhaustsMaxRetries(t *testing.T) {
	attempts := 0
	_, err := withRetry(context.Background(), func(ctx context.Context) (Response, error) {
		attempts++
		return Response{}, &apiError{statusCode: 503}
	})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if attempts != maxRetries+1 {
		t.Fatalf("expected %d attempts, got %d", maxRetries+1, attempts)
	}
}

func TestWithRetryHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := withRetry(ctx, func(ctx context.Context) (Response, error) {
		attempts++
		return Response{}, &apiError{statusCode: 503}
	})
	if err == nil {
		t.Fatal("expected error after context cancellation")
	}
}
