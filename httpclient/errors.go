package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	apperrors "github.com/kbukum/wasmfetch/errors"
	"github.com/kbukum/wasmfetch/fetch"
	"github.com/kbukum/wasmfetch/resilience"
)

// ErrorCode classifies client errors.
type ErrorCode int

const (
	// ErrCodeTimeout indicates the request ran out of time.
	ErrCodeTimeout ErrorCode = iota
	// ErrCodeCanceled indicates the caller cancelled the request.
	ErrCodeCanceled
	// ErrCodeConnection indicates the host could not complete the request.
	ErrCodeConnection
	// ErrCodeAuth indicates an authentication/authorization failure (401/403).
	ErrCodeAuth
	// ErrCodeNotFound indicates the resource was not found (404).
	ErrCodeNotFound
	// ErrCodeRateLimit indicates rate limiting (429).
	ErrCodeRateLimit
	// ErrCodeValidation indicates a rejected request (other 4xx) or one
	// that could not be built.
	ErrCodeValidation
	// ErrCodeServer indicates a server-side error (5xx).
	ErrCodeServer
	// ErrCodeUnavailable indicates the client refused the request locally:
	// open circuit or full bulkhead.
	ErrCodeUnavailable
)

// String returns the error code name.
func (c ErrorCode) String() string {
	switch c {
	case ErrCodeTimeout:
		return "timeout"
	case ErrCodeCanceled:
		return "canceled"
	case ErrCodeConnection:
		return "connection"
	case ErrCodeAuth:
		return "auth"
	case ErrCodeNotFound:
		return "not_found"
	case ErrCodeRateLimit:
		return "rate_limit"
	case ErrCodeValidation:
		return "validation"
	case ErrCodeServer:
		return "server"
	case ErrCodeUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Error is a classified client error.
type Error struct {
	// StatusCode is the HTTP status (0 when no response was received).
	StatusCode int
	Code       ErrorCode
	Message    string
	Retryable  bool
	// RetryAfter is the server's requested delay, if it sent one.
	RetryAfter time.Duration
	// Body is the response body, if any.
	Body []byte
	// Err is the underlying error: a *fetch.Error, an *errors.AppError
	// decoded from the body, or a resilience error.
	Err error
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("httpclient: %s (HTTP %d): %s", e.Code, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("httpclient: %s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// NewValidationError creates an error for a request that could not be built.
func NewValidationError(msg string) *Error {
	return &Error{Code: ErrCodeValidation, Message: msg}
}

// classifyError converts a transport or resilience failure.
func classifyError(ctx context.Context, err error) *Error {
	var ce *Error
	if errors.As(err, &ce) {
		return ce
	}

	e := &Error{Message: err.Error(), Err: err}
	var fe *fetch.Error
	switch {
	case errors.Is(err, resilience.ErrCircuitOpen),
		errors.Is(err, resilience.ErrBulkheadFull),
		errors.Is(err, resilience.ErrBulkheadTimeout):
		e.Code = ErrCodeUnavailable
	case errors.As(err, &fe):
		switch {
		case fe.Timeout():
			e.Code, e.Retryable = ErrCodeTimeout, true
		case fe.Code == fetch.ErrCodeCanceled:
			e.Code = ErrCodeCanceled
		case fe.Code == fetch.ErrCodeRequestFailed:
			e.Code, e.Retryable = ErrCodeConnection, true
		default:
			e.Code = ErrCodeValidation
		}
	case errors.Is(err, context.DeadlineExceeded):
		e.Code, e.Retryable = ErrCodeTimeout, true
	case errors.Is(err, context.Canceled) || ctx.Err() != nil:
		e.Code = ErrCodeCanceled
	default:
		e.Code, e.Retryable = ErrCodeConnection, true
	}
	return e
}

// ClassifyStatusCode converts a status into an error, or nil for 2xx and
// for opaque responses, which carry status 0.
func ClassifyStatusCode(statusCode int, header http.Header, body []byte) *Error {
	e := &Error{
		StatusCode: statusCode,
		Message:    fmt.Sprintf("HTTP %d", statusCode),
		Body:       body,
	}
	switch {
	case statusCode == 0 || (statusCode >= 200 && statusCode < 300):
		return nil
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		e.Code = ErrCodeAuth
	case statusCode == http.StatusNotFound:
		e.Code = ErrCodeNotFound
	case statusCode == http.StatusTooManyRequests:
		e.Code, e.Retryable = ErrCodeRateLimit, true
	case statusCode >= 400 && statusCode < 500:
		e.Code = ErrCodeValidation
	case statusCode >= 500:
		e.Code, e.Retryable = ErrCodeServer, true
	default:
		e.Code = ErrCodeServer
	}

	if appErr, ok := apperrors.ParseResponse(statusCode, body); ok {
		e.Message = appErr.Message
		e.Err = appErr
	}
	if d, ok := parseRetryAfter(header.Get("Retry-After"), time.Now()); ok {
		e.RetryAfter = d
	}
	return e
}

// parseRetryAfter reads delay-seconds or an HTTP date.
func parseRetryAfter(v string, now time.Time) (time.Duration, bool) {
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second, true
	}
	if t, err := http.ParseTime(v); err == nil {
		return max(t.Sub(now), 0), true
	}
	return 0, false
}

// retryDelay feeds a server-requested delay into the retry backoff.
func retryDelay(err error) (time.Duration, bool) {
	var e *Error
	if errors.As(err, &e) && e.RetryAfter > 0 {
		return e.RetryAfter, true
	}
	return 0, false
}

// IsTimeout checks if an error is a timeout error.
func IsTimeout(err error) bool { return hasCode(err, ErrCodeTimeout) }

// IsCanceled checks if the caller cancelled the request.
func IsCanceled(err error) bool { return hasCode(err, ErrCodeCanceled) }

// IsConnection checks if an error is a connection error.
func IsConnection(err error) bool { return hasCode(err, ErrCodeConnection) }

// IsAuth checks if an error is an authentication error.
func IsAuth(err error) bool { return hasCode(err, ErrCodeAuth) }

// IsNotFound checks if an error is a not-found error.
func IsNotFound(err error) bool { return hasCode(err, ErrCodeNotFound) }

// IsRateLimit checks if an error is a rate-limit error.
func IsRateLimit(err error) bool { return hasCode(err, ErrCodeRateLimit) }

// IsServerError checks if an error is a server error.
func IsServerError(err error) bool { return hasCode(err, ErrCodeServer) }

// IsUnavailable checks if the client refused the request locally.
func IsUnavailable(err error) bool { return hasCode(err, ErrCodeUnavailable) }

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Retryable
}

func hasCode(err error, code ErrorCode) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}
