package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/aws/smithy-go"
)

// LLMErrorType represents classification for completion failures.
type LLMErrorType int

const (
	ErrorTypeUnknown LLMErrorType = iota
	ErrorTypeRateLimit
	ErrorTypeTimeout
	ErrorTypeContextLength
	ErrorTypeAuth
	ErrorTypeUnavailable
	ErrorTypeInvalidResponse
)

// String returns the snake_case name used in span status and logs.
func (t LLMErrorType) String() string {
	switch t {
	case ErrorTypeRateLimit:
		return "rate_limit"
	case ErrorTypeTimeout:
		return "timeout"
	case ErrorTypeContextLength:
		return "context_length"
	case ErrorTypeAuth:
		return "auth"
	case ErrorTypeUnavailable:
		return "unavailable"
	case ErrorTypeInvalidResponse:
		return "invalid_response"
	default:
		return "unknown"
	}
}

// LLMError describes an error returned by a completion backend.
type LLMError struct {
	Type      LLMErrorType `json:"type"`
	Message   string       `json:"message"`
	Cause     error        `json:"-"`
	Retryable bool         `json:"retryable"`
}

// Error implements the error interface.
func (e *LLMError) Error() string {
	if e == nil {
		return ""
	}

	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}

	return e.Message
}

// Unwrap exposes the underlying cause for errors.Unwrap compatibility.
func (e *LLMError) Unwrap() error {
	if e == nil {
		return nil
	}

	return e.Cause
}

var contextLengthMarkers = []string{
	"context_length_exceeded",
	"maximum context length",
	"context length",
	"input is too long",
	"too many tokens",
	"prompt is too long",
	"exceeds the maximum number of tokens",
}

// IsContextLengthError reports whether err was caused by evidence exceeding
// the model's context window.
func IsContextLengthError(err error) bool {
	if err == nil {
		return false
	}

	var llmErr *LLMError
	if errors.As(err, &llmErr) && llmErr.Type == ErrorTypeContextLength {
		return true
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && containsAny(strings.ToLower(apiErr.ErrorMessage()), contextLengthMarkers) {
		return true
	}

	return containsAny(strings.ToLower(err.Error()), contextLengthMarkers)
}

// IsRetryable reports whether the completion may succeed when retried.
func IsRetryable(err error) bool {
	var llmErr *LLMError
	if errors.As(err, &llmErr) {
		return llmErr.Retryable
	}
	return false
}

// classifyHTTPError maps an HTTP status and provider body into an LLMError.
func classifyHTTPError(status int, body string) *LLMError {
	message := fmt.Sprintf("LLM request failed: %d %s", status, http.StatusText(status))
	lowered := strings.ToLower(body)
	switch {
	case containsAny(lowered, contextLengthMarkers):
		return &LLMError{Type: ErrorTypeContextLength, Message: message, Cause: errors.New(strings.TrimSpace(body))}
	case status == http.StatusTooManyRequests:
		return &LLMError{Type: ErrorTypeRateLimit, Message: message, Retryable: true}
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &LLMError{Type: ErrorTypeAuth, Message: message}
	case status >= 500:
		return &LLMError{Type: ErrorTypeUnavailable, Message: message, Retryable: true}
	default:
		var cause error
		if strings.TrimSpace(body) != "" {
			cause = errors.New(strings.TrimSpace(body))
		}
		return &LLMError{Type: ErrorTypeUnknown, Message: message, Cause: cause}
	}
}

// classifyAPIError maps an AWS API error into an LLMError.
func classifyAPIError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &LLMError{Type: ErrorTypeTimeout, Message: "completion timed out", Cause: err, Retryable: true}
	}

	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return err
	}

	switch apiErr.ErrorCode() {
	case "ThrottlingException", "TooManyRequestsException", "ServiceQuotaExceededException":
		return &LLMError{Type: ErrorTypeRateLimit, Message: "bedrock throttled the request", Cause: err, Retryable: true}
	case "AccessDeniedException", "UnrecognizedClientException":
		return &LLMError{Type: ErrorTypeAuth, Message: "bedrock rejected credentials", Cause: err}
	case "ModelTimeoutException":
		return &LLMError{Type: ErrorTypeTimeout, Message: "bedrock model timed out", Cause: err, Retryable: true}
	case "ServiceUnavailableException", "InternalServerException", "ModelNotReadyException":
		return &LLMError{Type: ErrorTypeUnavailable, Message: "bedrock unavailable", Cause: err, Retryable: true}
	case "ValidationException":
		if containsAny(strings.ToLower(apiErr.ErrorMessage()), contextLengthMarkers) {
			return &LLMError{Type: ErrorTypeContextLength, Message: "bedrock input exceeds context window", Cause: err}
		}
	}
	return err
}

func containsAny(haystack string, needles []string) bool {
	for _, needle := range needles {
		if strings.Contains(haystack, needle) {
			return true
		}
	}
	return false
}
