package llm

import (
	"context"
	"errors"
	"iter"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedClient struct {
	completeErrs []error
	streams      [][]streamItem
	calls        int
}

type streamItem struct {
	text string
	err  error
}

func (s *scriptedClient) Complete(ctx context.Context, messages []ChatMessage, model string) (string, error) {
	idx := s.calls
	s.calls++
	if idx < len(s.completeErrs) && s.completeErrs[idx] != nil {
		return "", s.completeErrs[idx]
	}
	return "ok", nil
}

func (s *scriptedClient) CompleteStream(ctx context.Context, messages []ChatMessage, model string) iter.Seq2[string, error] {
	idx := s.calls
	s.calls++
	return func(yield func(string, error) bool) {
		for _, item := range s.streams[idx] {
			if !yield(item.text, item.err) {
				return
			}
		}
	}
}

var (
	throttled = &LLMError{Type: ErrorTypeRateLimit, Message: "throttled", Retryable: true}
	tooLong   = &LLMError{Type: ErrorTypeContextLength, Message: "too long"}
)

func TestWithRetry_SingleAttemptReturnsClient(t *testing.T) {
	inner := &scriptedClient{}
	assert.Same(t, inner, WithRetry(inner, 1, time.Millisecond))
}

func TestWithRetry_CompleteRetriesRetryable(t *testing.T) {
	inner := &scriptedClient{completeErrs: []error{throttled}}
	client := WithRetry(inner, 2, time.Millisecond)

	text, err := client.Complete(context.Background(), []ChatMessage{User("hi")}, "m")
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.Equal(t, 2, inner.calls)
}

func TestWithRetry_CompleteStopsOnPermanentError(t *testing.T) {
	inner := &scriptedClient{completeErrs: []error{tooLong}}
	client := WithRetry(inner, 3, time.Millisecond)

	_, err := client.Complete(context.Background(), []ChatMessage{User("hi")}, "m")
	require.Error(t, err)
	assert.True(t, IsContextLengthError(err))
	assert.Equal(t, 1, inner.calls)
}

func TestWithRetry_CompleteGivesUpAfterAttempts(t *testing.T) {
	inner := &scriptedClient{completeErrs: []error{throttled, throttled, throttled}}
	client := WithRetry(inner, 2, time.Millisecond)

	_, err := client.Complete(context.Background(), []ChatMessage{User("hi")}, "m")
	assert.True(t, errors.Is(err, throttled))
	assert.Equal(t, 2, inner.calls)
}

func TestWithRetry_StreamRetriesBeforeFirstChunk(t *testing.T) {
	inner := &scriptedClient{streams: [][]streamItem{
		{{err: throttled}},
		{{text: "a"}, {text: "b"}},
	}}
	client := WithRetry(inner, 2, time.Millisecond)

	var chunks []string
	for chunk, err := range client.CompleteStream(context.Background(), []ChatMessage{User("hi")}, "m") {
		require.NoError(t, err)
		chunks = append(chunks, chunk)
	}
	assert.Equal(t, []string{"a", "b"}, chunks)
	assert.Equal(t, 2, inner.calls)
}

func TestWithRetry_StreamDoesNotRetryAfterDelivery(t *testing.T) {
	inner := &scriptedClient{streams: [][]streamItem{
		{{text: "a"}, {err: throttled}},
		{{text: "never"}},
	}}
	client := WithRetry(inner, 2, time.Millisecond)

	var chunks []string
	var streamErr error
	for chunk, err := range client.CompleteStream(context.Background(), []ChatMessage{User("hi")}, "m") {
		if err != nil {
			streamErr = err
			continue
		}
		chunks = append(chunks, chunk)
	}
	assert.Equal(t, []string{"a"}, chunks)
	assert.True(t, errors.Is(streamErr, throttled))
	assert.Equal(t, 1, inner.calls)
}

func TestWithRetry_CanceledContextStopsRetrying(t *testing.T) {
	inner := &scriptedClient{completeErrs: []error{throttled, throttled}}
	client := WithRetry(inner, 3, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := client.Complete(ctx, []ChatMessage{User("hi")}, "m")
	require.Error(t, err)
	assert.Equal(t, 1, inner.calls)
}
