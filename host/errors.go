package host

import (
	"errors"
	"strings"
)

// AbortErrorName is the exception name a host uses for aborted operations.
const AbortErrorName = "AbortError"

// Error is an exception raised by the host.
type Error struct {
	// Name is the exception name, e.g. "TypeError" or "AbortError".
	Name string
	// Message is the exception message.
	Message string
}

func (e *Error) Error() string {
	if e.Name == "" {
		return e.Message
	}
	if strings.HasPrefix(e.Message, e.Name) {
		return e.Message
	}
	return e.Name + ": " + e.Message
}

// IsAbort reports whether err is a host abort exception.
func IsAbort(err error) bool {
	var he *Error
	if !errors.As(err, &he) {
		return false
	}
	return he.Name == AbortErrorName || strings.HasPrefix(he.Message, AbortErrorName)
}

// NewAbortError returns the error a host raises when a signal fires.
func NewAbortError() *Error {
	return &Error{Name: AbortErrorName, Message: "The operation was aborted."}
}
