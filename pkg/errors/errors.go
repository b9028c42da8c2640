package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"google.golang.org/api/googleapi"
)

// ErrorType represents different types of errors that can occur
type ErrorType string

const (
	ErrorTypeNetwork     ErrorType = "network"
	ErrorTypeRateLimit   ErrorType = "rate_limit"
	ErrorTypeAuth        ErrorType = "auth"
	ErrorTypeParsing     ErrorType = "parsing"
	ErrorTypeNotFound    ErrorType = "not_found"
	ErrorTypeServerError ErrorType = "server_error"
	ErrorTypeUnknown     ErrorType = "unknown"
)

// Error represents a remote API error with type information
type Error struct {
	Type    ErrorType
	Message string
	Code    int
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s error (code %d): %s", e.Type, e.Code, e.Message)
}

// IsRetryable checks if an error type should be retried
func IsRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeNetwork, ErrorTypeRateLimit, ErrorTypeServerError:
		return true
	default:
		return false
	}
}

// IsRetryableStatusCode checks if an HTTP status code indicates a retryable error
func IsRetryableStatusCode(statusCode int) bool {
	switch statusCode {
	case 0: // Network error
		return true
	case http.StatusTooManyRequests:
		return true
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return false
	default:
		return statusCode >= 500
	}
}

// TypeForStatus maps an HTTP status code to an ErrorType
func TypeForStatus(statusCode int) ErrorType {
	switch {
	case statusCode == 0:
		return ErrorTypeNetwork
	case statusCode == http.StatusTooManyRequests:
		return ErrorTypeRateLimit
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return ErrorTypeAuth
	case statusCode == http.StatusNotFound:
		return ErrorTypeNotFound
	case statusCode >= 500:
		return ErrorTypeServerError
	default:
		return ErrorTypeUnknown
	}
}

// FromStatus builds a typed error for a non-2xx HTTP response
func FromStatus(statusCode int, message string) *Error {
	return &Error{Type: TypeForStatus(statusCode), Message: message, Code: statusCode}
}

// Classify turns errors coming out of the Google API client or net/http
// into a typed *Error. Errors that are already typed, and context errors,
// are returned unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var typed *Error
	if errors.As(err, &typed) {
		return err
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return &Error{
			Type:    TypeForStatus(apiErr.Code),
			Message: apiErr.Message,
			Code:    apiErr.Code,
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return &Error{Type: ErrorTypeNetwork, Message: err.Error()}
	}

	return err
}

// Sentinel causes carried by ConfigError
var (
	ErrInvalidRange       = errors.New("invalid range")
	ErrMissingCredentials = errors.New("missing credentials")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidConfig      = errors.New("invalid configuration")
)

// ConfigError is fatal: it aborts the run before any bucket is processed
type ConfigError struct {
	Err    error
	Detail string
}

func (e *ConfigError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("configuration error: %v", e.Err)
	}
	return fmt.Sprintf("configuration error: %v: %s", e.Err, e.Detail)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// NewConfigError wraps a sentinel cause with a detail message
func NewConfigError(cause error, format string, args ...interface{}) *ConfigError {
	return &ConfigError{Err: cause, Detail: fmt.Sprintf(format, args...)}
}

// FetchFailedError is returned when listing a month exhausted its retries.
// It aborts only that month.
type FetchFailedError struct {
	Bucket   string
	Attempts int
	Err      error
}

func (e *FetchFailedError) Error() string {
	return fmt.Sprintf("fetch failed for %s after %d attempt(s): %v", e.Bucket, e.Attempts, e.Err)
}

func (e *FetchFailedError) Unwrap() error { return e.Err }

// CacheCorruptError reports a cache file that exists but cannot be trusted.
// It is never repaired automatically.
type CacheCorruptError struct {
	Bucket string
	Key    string
	Reason string
}

func (e *CacheCorruptError) Error() string {
	return fmt.Sprintf("cache for %s is corrupt (%s): %s; delete it (gphotofetch cache rm %s) and re-run",
		e.Bucket, e.Key, e.Reason, e.Bucket)
}

// ParseError reports a remote item that does not match the ItemRecord schema
type ParseError struct {
	ItemID string
	Field  string
	Reason string
}

func (e *ParseError) Error() string {
	id := e.ItemID
	if id == "" {
		id = "<unknown>"
	}
	return fmt.Sprintf("parse item %s: field %q %s", id, e.Field, e.Reason)
}

// DownloadError is recorded per item and never aborts the bucket
type DownloadError struct {
	ItemID string
	Path   string
	Err    error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("download %s to %s: %v", e.ItemID, e.Path, e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }

// IsConfigError reports whether err is fatal configuration trouble
func IsConfigError(err error) bool {
	var cfgErr *ConfigError
	return errors.As(err, &cfgErr)
}
