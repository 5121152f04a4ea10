package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
)

func TestIsContextLengthError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "typed", err: &LLMError{Type: ErrorTypeContextLength, Message: "too big"}, want: true},
		{name: "wrapped typed", err: fmt.Errorf("report: %w", &LLMError{Type: ErrorTypeContextLength}), want: true},
		{name: "smithy message", err: &smithy.GenericAPIError{Code: "ValidationException", Message: "Input is too long for requested model."}, want: true},
		{name: "plain message", err: errors.New("This model's maximum context length is 8192 tokens"), want: true},
		{name: "other", err: errors.New("connection reset"), want: false},
		{name: "rate limit", err: &LLMError{Type: ErrorTypeRateLimit, Message: "slow down"}, want: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsContextLengthError(tc.err))
		})
	}
}

func TestClassifyHTTPError(t *testing.T) {
	assert.Equal(t, ErrorTypeRateLimit, classifyHTTPError(http.StatusTooManyRequests, "").Type)
	assert.Equal(t, ErrorTypeAuth, classifyHTTPError(http.StatusUnauthorized, "").Type)
	assert.Equal(t, ErrorTypeUnavailable, classifyHTTPError(http.StatusBadGateway, "").Type)
	assert.Equal(t, ErrorTypeContextLength, classifyHTTPError(http.StatusBadRequest, `{"code":"context_length_exceeded"}`).Type)
	assert.Equal(t, ErrorTypeUnknown, classifyHTTPError(http.StatusBadRequest, "bad").Type)
}

func TestClassifyAPIError(t *testing.T) {
	err := classifyAPIError(context.DeadlineExceeded)
	var llmErr *LLMError
	assert.ErrorAs(t, err, &llmErr)
	assert.Equal(t, ErrorTypeTimeout, llmErr.Type)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	plain := errors.New("boom")
	assert.Same(t, plain, classifyAPIError(plain))
}

func TestLLMError_NilSafe(t *testing.T) {
	var e *LLMError
	assert.Equal(t, "", e.Error())
	assert.Nil(t, e.Unwrap())
	assert.Equal(t, "context_length", ErrorTypeContextLength.String())
}
