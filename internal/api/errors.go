package api

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/felixgeelhaar/tirecode/internal/errors"
)

// Backend error codes the CLI reacts to.
const (
	BackendTireCodeNotFound  = "TIRE_CODE_NOT_FOUND"
	BackendTireSizeNotFound  = "TIRE_SIZE_NOT_FOUND"
	BackendTireSizeExists    = "TIRE_SIZE_ALREADY_EXISTS"
	BackendVariantNotFound   = "TIRE_VARIANT_NOT_FOUND"
	BackendInvalidSizeFormat = "INVALID_TIRE_SIZE_FORMAT"
	BackendInvalidCodeFormat = "INVALID_TIRE_CODE_FORMAT"
	BackendMissingFields     = "MISSING_REQUIRED_FIELDS"
	BackendInternalError     = "INTERNAL_SERVER_ERROR"
)

// ErrorResponse is the error envelope of the REST API.
type ErrorResponse struct {
	Error *struct {
		Code    string          `json:"code"`
		Message string          `json:"message"`
		Details json.RawMessage `json:"details,omitempty"`
	} `json:"error"`
	RequestID string `json:"requestId,omitempty"`
}

// responseError maps a non-2xx response onto an API-* error. The backend
// code and request id are preserved as details.
func responseError(status int, header http.Header, body []byte) error {
	var env ErrorResponse
	backendCode, message, requestID := "", "", ""
	if json.Unmarshal(body, &env) == nil {
		if env.Error != nil {
			backendCode = env.Error.Code
			message = env.Error.Message
		}
		requestID = env.RequestID
	}
	if message == "" {
		message = fmt.Sprintf("request failed with status %d", status)
		if text := strings.TrimSpace(http.StatusText(status)); text != "" {
			message = strings.ToLower(text)
		}
	}

	e := errors.New(codeForStatus(status), message).
		WithDetail("status", fmt.Sprint(status))
	if backendCode != "" {
		e.WithDetail("backend_code", backendCode)
	}
	if requestID != "" {
		e.WithDetail("request_id", requestID)
	}

	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		e.WithSuggestion("Run 'tirecode auth login' to sign in again")
	case http.StatusTooManyRequests:
		if retry := errors.FormatRetryAfter(header.Get("Retry-After")); retry != "" {
			e.WithDetail("retry_after", retry)
			e.WithSuggestion("Retry after " + retry)
		}
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		e.WithSuggestion("Try again in a few minutes")
	}
	return e
}

func codeForStatus(status int) errors.ErrorCode {
	switch {
	case status == http.StatusNotFound:
		return errors.ErrCodeNotFound
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return errors.ErrCodeValidation
	case status == http.StatusConflict:
		return errors.ErrCodeConflict
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return errors.ErrCodeUnauthorized
	case status == http.StatusTooManyRequests,
		status == http.StatusServiceUnavailable,
		status == http.StatusBadGateway,
		status == http.StatusGatewayTimeout:
		return errors.ErrCodeUnavailable
	case status >= 500:
		return errors.ErrCodeServer
	default:
		return errors.ErrCodeRequest
	}
}

// BackendCode returns the backend error code carried by err, if any.
func BackendCode(err error) string {
	for err != nil {
		var te *errors.TirecodeError
		if !stderrors.As(err, &te) {
			return ""
		}
		if code := te.Detail("backend_code"); code != "" {
			return code
		}
		err = te.Cause
	}
	return ""
}
