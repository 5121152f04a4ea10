package llm

import (
	"context"
	"iter"
	"log"
	"time"
)

const (
	defaultRetryAttempts = 2
	defaultRetryBackoff  = 500 * time.Millisecond
)

// retryingClient re-issues completions that failed with a retryable LLMError.
type retryingClient struct {
	next     Client
	attempts int
	backoff  time.Duration
	logger   *log.Logger
}

// WithRetry wraps client so retryable failures are attempted up to attempts
// times with exponential backoff. Streams are retried only while no chunk has
// been delivered.
func WithRetry(client Client, attempts int, backoff time.Duration) Client {
	if attempts <= 1 || client == nil {
		return client
	}
	return &retryingClient{
		next:     client,
		attempts: attempts,
		backoff:  backoff,
		logger:   log.New(log.Default().Writer(), "llm/retry ", log.LstdFlags),
	}
}

func (r *retryingClient) Complete(ctx context.Context, messages []ChatMessage, model string) (string, error) {
	var lastErr error
	for attempt := 0; attempt < r.attempts; attempt++ {
		text, err := r.next.Complete(ctx, messages, model)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if !r.shouldRetry(ctx, attempt, err) {
			break
		}
		r.logger.Printf("RetryingClient: retrying completion model=%s attempt=%d err=%v", model, attempt+1, err)
		if err := r.wait(ctx, attempt); err != nil {
			return "", err
		}
	}
	return "", lastErr
}

func (r *retryingClient) CompleteStream(ctx context.Context, messages []ChatMessage, model string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for attempt := 0; attempt < r.attempts; attempt++ {
			delivered := false
			var streamErr error
			for chunk, err := range r.next.CompleteStream(ctx, messages, model) {
				if err != nil {
					streamErr = err
					break
				}
				delivered = true
				if !yield(chunk, nil) {
					return
				}
			}
			if streamErr == nil {
				return
			}
			if delivered || !r.shouldRetry(ctx, attempt, streamErr) {
				yield("", streamErr)
				return
			}
			r.logger.Printf("RetryingClient: retrying stream model=%s attempt=%d err=%v", model, attempt+1, streamErr)
			if err := r.wait(ctx, attempt); err != nil {
				yield("", err)
				return
			}
		}
	}
}

func (r *retryingClient) shouldRetry(ctx context.Context, attempt int, err error) bool {
	return attempt < r.attempts-1 && ctx.Err() == nil && IsRetryable(err)
}

func (r *retryingClient) wait(ctx context.Context, attempt int) error {
	timer := time.NewTimer(r.backoff * time.Duration(1<<attempt))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
