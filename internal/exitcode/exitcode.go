package exitcode

import (
	"context"
	stderrors "errors"
	"os"
	"strings"

	"github.com/felixgeelhaar/tirecode/internal/errors"
)

// Exit codes for consistent error handling across the CLI
const (
	// Success indicates successful execution
	Success = 0

	// GeneralError indicates a general error condition
	GeneralError = 1

	// UsageError indicates invalid command usage (bad flags, missing args, etc.)
	UsageError = 2

	// NotFound indicates the requested tire code, size or mapping does not exist
	NotFound = 3

	// ConfigError indicates an unreadable or invalid configuration
	ConfigError = 4

	// AuthError indicates an authentication or authorization failure
	AuthError = 5

	// NetworkError indicates a network connectivity issue
	NetworkError = 6

	// Interrupted indicates the command was canceled (Ctrl-C)
	Interrupted = 130
)

// Exit terminates the program with the given exit code
func Exit(code int) {
	os.Exit(code)
}

// ExitWithError exits with an appropriate code based on error type
func ExitWithError(err error) {
	Exit(DetermineExitCode(err))
}

// DetermineExitCode maps err to an exit code. Coded errors map by code;
// plain errors fall back to cobra's usage messages.
func DetermineExitCode(err error) int {
	if err == nil {
		return Success
	}
	if stderrors.Is(err, context.Canceled) {
		return Interrupted
	}

	switch errors.CodeOf(err) {
	case errors.ErrCodeInvalidCredentials,
		errors.ErrCodeSessionExpired,
		errors.ErrCodeLoginFailed,
		errors.ErrCodeNotAuthenticated,
		errors.ErrCodeUnauthorized:
		return AuthError
	case errors.ErrCodeRateLimited,
		errors.ErrCodeServerUnavailable,
		errors.ErrCodeUnreachable,
		errors.ErrCodeRefreshUnavailable,
		errors.ErrCodeUnavailable,
		errors.ErrCodeServer:
		return NetworkError
	case errors.ErrCodeValidation:
		return UsageError
	case errors.ErrCodeNotFound, errors.ErrCodeFileNotFound:
		return NotFound
	case errors.ErrCodeConfigInvalid, errors.ErrCodeConfigWrite:
		return ConfigError
	case "":
		// uncoded, see below
	default:
		return GeneralError
	}

	if stderrors.Is(err, context.DeadlineExceeded) {
		return NetworkError
	}

	errMsg := strings.ToLower(err.Error())
	for _, usage := range []string{"unknown flag", "invalid argument", "unknown command", "required flag", "accepts ", "requires at least"} {
		if strings.Contains(errMsg, usage) {
			return UsageError
		}
	}
	return GeneralError
}

// GetExitCodeDescription returns a human-readable description of an exit code
func GetExitCodeDescription(code int) string {
	switch code {
	case Success:
		return "Success"
	case GeneralError:
		return "General error"
	case UsageError:
		return "Usage error (invalid flags or arguments)"
	case NotFound:
		return "Not found"
	case ConfigError:
		return "Configuration error"
	case AuthError:
		return "Authentication error"
	case NetworkError:
		return "Network error"
	case Interrupted:
		return "Interrupted"
	default:
		return "Unknown error"
	}
}
