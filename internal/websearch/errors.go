package websearch

import (
	"fmt"
	"net/http"
	"strings"
)

// SearchErrorType represents classification for provider failures.
type SearchErrorType int

const (
	ErrorTypeTransport SearchErrorType = iota
	ErrorTypeHTTPStatus
	ErrorTypeRateLimit
	ErrorTypeDecode
	ErrorTypeConfig
	ErrorTypeParse
)

// SearchError describes a failure of a single provider call.
type SearchError struct {
	Type       SearchErrorType `json:"type"`
	Provider   ProviderName    `json:"provider"`
	StatusCode int             `json:"status_code,omitempty"`
	Message    string          `json:"message"`
	Cause      error           `json:"-"`
	Retryable  bool            `json:"retryable"`
}

// Error implements the error interface.
func (e *SearchError) Error() string {
	if e == nil {
		return ""
	}

	prefix := string(e.Provider)
	if prefix == "" {
		prefix = "websearch"
	}

	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.Message, e.Cause)
	}

	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

// Unwrap exposes the underlying cause for errors.Unwrap compatibility.
func (e *SearchError) Unwrap() error {
	if e == nil {
		return nil
	}

	return e.Cause
}

func newStatusError(provider ProviderName, status int, body string) *SearchError {
	err := &SearchError{
		Type:       ErrorTypeHTTPStatus,
		Provider:   provider,
		StatusCode: status,
		Message:    fmt.Sprintf("http %d %s", status, http.StatusText(status)),
	}
	if body = strings.TrimSpace(body); body != "" {
		err.Message = fmt.Sprintf("%s: %s", err.Message, body)
	}
	switch {
	case status == http.StatusTooManyRequests:
		err.Type = ErrorTypeRateLimit
		err.Retryable = true
	case status >= 500:
		err.Retryable = true
	}
	return err
}
