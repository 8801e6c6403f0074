package fetch

import (
	"context"
	"errors"
	"fmt"

	"github.com/kbukum/wasmfetch/host"
)

// ErrorCode classifies transport errors.
type ErrorCode int

const (
	// ErrCodeCanceled indicates the request was canceled by the caller or
	// aborted by the host.
	ErrCodeCanceled ErrorCode = iota
	// ErrCodeRequestFailed indicates any other host-side failure (network
	// error, CORS rejection, etc).
	ErrCodeRequestFailed
	// ErrCodeUnsupported indicates a setting the host cannot honor.
	ErrCodeUnsupported
	// ErrCodeInvalidRequest indicates a request that cannot be sent.
	ErrCodeInvalidRequest
)

// String returns the error code name.
func (c ErrorCode) String() string {
	switch c {
	case ErrCodeCanceled:
		return "canceled"
	case ErrCodeRequestFailed:
		return "request_failed"
	case ErrCodeUnsupported:
		return "unsupported"
	case ErrCodeInvalidRequest:
		return "invalid_request"
	default:
		return "unknown"
	}
}

// ErrBodyClosed is returned when reading a response body after Close.
var ErrBodyClosed = errors.New("fetch: read on closed body")

// Error is a classified transport error.
type Error struct {
	// Code classifies the error.
	Code ErrorCode
	// Message describes the error.
	Message string
	// Err is the host error, if any.
	Err error

	cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("fetch: %s: %s", e.Code, e.Message)
}

// Unwrap returns the host error and, for cancellations, the context error.
func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	if e.cause != nil {
		errs = append(errs, e.cause)
	}
	return errs
}

// Timeout reports whether the cancellation came from a deadline.
func (e *Error) Timeout() bool {
	return errors.Is(e.cause, context.DeadlineExceeded)
}

func newCanceledError(err, cause error) *Error {
	if cause == nil {
		cause = context.Canceled
	}
	if err == cause {
		err = nil
	}
	return &Error{
		Code:    ErrCodeCanceled,
		Message: "the request was canceled",
		Err:     err,
		cause:   cause,
	}
}

func newUnsupportedError(setting string) *Error {
	return &Error{
		Code:    ErrCodeUnsupported,
		Message: setting + " is not supported by the fetch transport",
	}
}

func newInvalidRequestError(msg string) *Error {
	return &Error{
		Code:    ErrCodeInvalidRequest,
		Message: msg,
	}
}

// translate maps a host or context failure onto the transport taxonomy. It
// is the only place where that mapping happens.
func translate(err error, ctx context.Context) error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) {
		return err
	}
	if host.IsAbort(err) {
		return newCanceledError(err, contextCause(ctx))
	}
	if ctx.Err() != nil {
		return newCanceledError(err, context.Cause(ctx))
	}
	return &Error{
		Code:    ErrCodeRequestFailed,
		Message: err.Error(),
		Err:     err,
	}
}

func contextCause(ctx context.Context) error {
	if ctx.Err() == nil {
		return nil
	}
	return context.Cause(ctx)
}

// IsCanceled checks if an error is a cancellation.
func IsCanceled(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == ErrCodeCanceled
}

// IsRequestFailed checks if an error is a host request failure.
func IsRequestFailed(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == ErrCodeRequestFailed
}

// IsUnsupported checks if an error rejects an unsupported setting.
func IsUnsupported(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == ErrCodeUnsupported
}

// IsInvalidRequest checks if an error rejects a malformed request.
func IsInvalidRequest(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == ErrCodeInvalidRequest
}
