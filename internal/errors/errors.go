package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

// Error categories
const (
	// Session errors (AUTH-001 to AUTH-099)
	ErrCodeInvalidCredentials ErrorCode = "AUTH-001"
	ErrCodeRateLimited        ErrorCode = "AUTH-002"
	ErrCodeServerUnavailable  ErrorCode = "AUTH-003"
	ErrCodeUnreachable        ErrorCode = "AUTH-004"
	ErrCodeSessionExpired     ErrorCode = "AUTH-005"
	ErrCodeRefreshUnavailable ErrorCode = "AUTH-006"
	ErrCodeLoginFailed        ErrorCode = "AUTH-007"
	ErrCodeNotAuthenticated   ErrorCode = "AUTH-008"

	// API errors (API-001 to API-099)
	ErrCodeNotFound     ErrorCode = "API-001"
	ErrCodeValidation   ErrorCode = "API-002"
	ErrCodeConflict     ErrorCode = "API-003"
	ErrCodeUnauthorized ErrorCode = "API-004"
	ErrCodeServer       ErrorCode = "API-005"
	ErrCodeUnavailable  ErrorCode = "API-006"
	ErrCodeRequest      ErrorCode = "API-007"

	// Configuration errors (CONFIG-001 to CONFIG-099)
	ErrCodeConfigInvalid ErrorCode = "CONFIG-001"
	ErrCodeConfigWrite   ErrorCode = "CONFIG-002"

	// File I/O errors (IO-001 to IO-099)
	ErrCodeFileNotFound   ErrorCode = "IO-001"
	ErrCodeFileReadFailed ErrorCode = "IO-002"
)

const docsBase = "https://github.com/felixgeelhaar/tirecode"

// TirecodeError represents an enhanced error with code, suggestions, and documentation
type TirecodeError struct {
	Code        ErrorCode
	Message     string
	Suggestions []string
	DocsURL     string
	Cause       error

	// Details carries machine-readable context (host, backend error code, retry-after).
	Details map[string]string
}

// Error implements the error interface
func (e *TirecodeError) Error() string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))

	if e.Cause != nil {
		b.WriteString(fmt.Sprintf(": %v", e.Cause))
	}

	if len(e.Suggestions) > 0 {
		b.WriteString("\n\nSuggestions:")
		for _, suggestion := range e.Suggestions {
			b.WriteString(fmt.Sprintf("\n  • %s", suggestion))
		}
	}

	if e.DocsURL != "" {
		b.WriteString(fmt.Sprintf("\n\nDocumentation: %s", e.DocsURL))
	}

	return b.String()
}

// Unwrap implements error unwrapping for errors.Is and errors.As
func (e *TirecodeError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a TirecodeError carrying the same code.
// This lets callers compare against the sentinel values below with errors.Is.
func (e *TirecodeError) Is(target error) bool {
	t, ok := target.(*TirecodeError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// New creates a new TirecodeError
func New(code ErrorCode, message string) *TirecodeError {
	return &TirecodeError{
		Code:    code,
		Message: message,
	}
}

// Wrap creates a new TirecodeError wrapping an existing error
func Wrap(code ErrorCode, message string, cause error) *TirecodeError {
	return &TirecodeError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// WithSuggestion adds a suggestion to the error
func (e *TirecodeError) WithSuggestion(suggestion string) *TirecodeError {
	e.Suggestions = append(e.Suggestions, suggestion)
	return e
}

// WithSuggestions adds multiple suggestions to the error
func (e *TirecodeError) WithSuggestions(suggestions ...string) *TirecodeError {
	e.Suggestions = append(e.Suggestions, suggestions...)
	return e
}

// WithDocs adds a documentation URL to the error
func (e *TirecodeError) WithDocs(url string) *TirecodeError {
	e.DocsURL = url
	return e
}

// WithDetail attaches a key/value detail to the error
func (e *TirecodeError) WithDetail(key, value string) *TirecodeError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// Detail returns a previously attached detail value
func (e *TirecodeError) Detail(key string) string {
	if e.Details == nil {
		return ""
	}
	return e.Details[key]
}

// CodeOf returns the code of the first TirecodeError in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var te *TirecodeError
	if errors.As(err, &te) {
		return te.Code
	}
	return ""
}

// HasCode reports whether err's chain contains a TirecodeError with the given code.
func HasCode(err error, code ErrorCode) bool {
	return errors.Is(err, &TirecodeError{Code: code})
}

// Sentinels for errors.Is comparisons. Only the code is compared.
var (
	ErrInvalidCredentials = New(ErrCodeInvalidCredentials, "invalid credentials")
	ErrRateLimited        = New(ErrCodeRateLimited, "rate limited")
	ErrServerUnavailable  = New(ErrCodeServerUnavailable, "server unavailable")
	ErrUnreachable        = New(ErrCodeUnreachable, "server unreachable")
	ErrSessionExpired     = New(ErrCodeSessionExpired, "session expired")
	ErrRefreshUnavailable = New(ErrCodeRefreshUnavailable, "refresh unavailable")
	ErrLoginFailed        = New(ErrCodeLoginFailed, "login failed")
	ErrNotAuthenticated   = New(ErrCodeNotAuthenticated, "not authenticated")
	ErrNotFound           = New(ErrCodeNotFound, "not found")
	ErrValidation         = New(ErrCodeValidation, "validation failed")
	ErrConflict           = New(ErrCodeConflict, "conflict")
	ErrUnauthorized       = New(ErrCodeUnauthorized, "unauthorized")
	ErrServer             = New(ErrCodeServer, "server error")
	ErrUnavailable        = New(ErrCodeUnavailable, "service unavailable")
)

// Common error constructors for frequently used errors

// NewInvalidCredentialsError creates a login rejection error.
// The server's message is preserved when it sent one.
func NewInvalidCredentialsError(serverMessage string) *TirecodeError {
	msg := "invalid credentials"
	if serverMessage != "" {
		msg = serverMessage
	}
	return New(ErrCodeInvalidCredentials, msg).
		WithSuggestion("Check the email address and password and try again").
		WithDocs(docsBase + "#authentication")
}

// NewRateLimitedError creates a too-many-attempts error
func NewRateLimitedError(retryAfter string) *TirecodeError {
	msg := "too many login attempts, please try again later"
	if retryAfter != "" {
		msg += fmt.Sprintf(" (retry after: %s)", retryAfter)
	}

	e := New(ErrCodeRateLimited, msg).
		WithSuggestion("Wait before retrying the login")
	if retryAfter != "" {
		e.WithDetail("retry_after", retryAfter)
	}
	return e
}

// NewServerUnavailableError creates a 5xx error for the auth endpoint
func NewServerUnavailableError(status int) *TirecodeError {
	return New(ErrCodeServerUnavailable, fmt.Sprintf("server error (status %d), please try again later", status)).
		WithDetail("status", fmt.Sprint(status)).
		WithSuggestion("Try again in a few minutes")
}

// NewUnreachableError creates a transport failure error carrying the target host
func NewUnreachableError(host string, cause error) *TirecodeError {
	return Wrap(ErrCodeUnreachable, fmt.Sprintf("cannot connect to server at %s", host), cause).
		WithDetail("host", host).
		WithSuggestion("Check that the backend is running and reachable").
		WithSuggestion("Verify the API URL with 'tirecode config show'").
		WithDocs(docsBase + "#configuration")
}

// NewSessionExpiredError creates the terminal refresh rejection error
func NewSessionExpiredError(status int) *TirecodeError {
	return New(ErrCodeSessionExpired, fmt.Sprintf("session expired (status %d)", status)).
		WithDetail("status", fmt.Sprint(status)).
		WithSuggestion("Run 'tirecode auth login' to sign in again")
}

// NewRefreshUnavailableError creates the non-terminal refresh failure error
func NewRefreshUnavailableError(reason string, cause error) *TirecodeError {
	return Wrap(ErrCodeRefreshUnavailable, fmt.Sprintf("token refresh unavailable: %s", reason), cause)
}

// NewLoginFailedError creates a generic login failure for unmapped statuses
func NewLoginFailedError(status int, serverMessage string) *TirecodeError {
	msg := "login failed"
	if serverMessage != "" {
		msg = serverMessage
	}
	return New(ErrCodeLoginFailed, msg).
		WithDetail("status", fmt.Sprint(status))
}

// NewNotAuthenticatedError creates the guard rejection error
func NewNotAuthenticatedError() *TirecodeError {
	return New(ErrCodeNotAuthenticated, "not logged in").
		WithSuggestion("Run 'tirecode auth login' first").
		WithDocs(docsBase + "#authentication")
}

// FormatRetryAfter formats a Retry-After header value for display.
// Numeric values are rendered as durations; dates are returned unchanged.
func FormatRetryAfter(header string) string {
	if header == "" {
		return ""
	}
	var secs int
	if _, err := fmt.Sscanf(header, "%d", &secs); err == nil && secs >= 0 {
		return (time.Duration(secs) * time.Second).String()
	}
	return header
}

// NewValidationError creates a request validation error
func NewValidationError(message string) *TirecodeError {
	return New(ErrCodeValidation, message)
}

// NewAPIUnreachableError creates a transport failure error for REST calls
func NewAPIUnreachableError(host string, cause error) *TirecodeError {
	return Wrap(ErrCodeUnavailable, fmt.Sprintf("cannot connect to server at %s", host), cause).
		WithDetail("host", host).
		WithSuggestion("Check that the backend is running and reachable").
		WithSuggestion("Verify the API URL with 'tirecode config show'")
}

// NewCircuitOpenError creates the error returned while the circuit breaker rejects calls
func NewCircuitOpenError(name string, cause error) *TirecodeError {
	return Wrap(ErrCodeUnavailable, "backend temporarily unavailable, requests are paused", cause).
		WithDetail("breaker", name).
		WithSuggestion("Wait 30 seconds and try again")
}

// NewFileNotFoundError creates a file not found error
func NewFileNotFoundError(path string) *TirecodeError {
	return New(ErrCodeFileNotFound, fmt.Sprintf("file not found: %s", path)).
		WithSuggestion("Check if the file path is correct").
		WithSuggestion("Verify the file exists and you have read permissions")
}
