package domain

import (
	"errors"
	"fmt"
)

// Sentinel error kinds. Every error produced while reading or applying a
// workspace sync wraps exactly one of these.
var (
	// ErrConfiguration indicates missing topic, bfsNumber, credentials or
	// other required settings
	ErrConfiguration = errors.New("configuration error")

	// ErrRemoteQuery indicates a failed, rejected or malformed service query
	ErrRemoteQuery = errors.New("remote query failed")

	// ErrStorage indicates a failed login or a rejected upload
	ErrStorage = errors.New("storage error")

	// ErrLocalIO indicates a local file could not be read or written
	ErrLocalIO = errors.New("local io error")

	// ErrAborted indicates the user declined a confirmation prompt
	ErrAborted = errors.New("aborted by user")
)

// Error carries a kind, a human-readable note and the underlying cause.
type Error struct {
	Kind      error
	Note      string
	Err       error
	Retryable bool
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Kind.Error()
	if e.Note != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Note)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// ConfigurationError builds an ErrConfiguration error.
func ConfigurationError(format string, args ...any) error {
	return &Error{Kind: ErrConfiguration, Note: fmt.Sprintf(format, args...)}
}

// RemoteQueryError builds an ErrRemoteQuery error wrapping cause.
func RemoteQueryError(cause error, format string, args ...any) error {
	return &Error{Kind: ErrRemoteQuery, Note: fmt.Sprintf(format, args...), Err: cause}
}

// StorageError builds an ErrStorage error wrapping cause (may be nil).
func StorageError(cause error, format string, args ...any) error {
	return &Error{Kind: ErrStorage, Note: fmt.Sprintf(format, args...), Err: cause}
}

// LocalIOError builds an ErrLocalIO error wrapping cause.
func LocalIOError(cause error, format string, args ...any) error {
	return &Error{Kind: ErrLocalIO, Note: fmt.Sprintf(format, args...), Err: cause}
}

// IsRetryable reports whether err was marked as safe to retry, such as a
// request that timed out.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}
