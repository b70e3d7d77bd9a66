// Package exitcode maps run failures to process exit codes
package exitcode

import (
	"errors"

	"github.com/schaermu/dfoursync/internal/domain"
)

// Exit codes for the dfour CLI
const (
	Success        = 0
	GeneralError   = 1
	ConfigError    = 2
	LocalIOError   = 4
	RemoteQuery    = 5
	StorageFailure = 6
)

// String returns a human-readable description of the exit code
func String(code int) string {
	switch code {
	case Success:
		return "Success"
	case GeneralError:
		return "General error"
	case ConfigError:
		return "Configuration error"
	case LocalIOError:
		return "Local file error"
	case RemoteQuery:
		return "Remote query error"
	case StorageFailure:
		return "Storage error"
	default:
		return "Unknown error"
	}
}

// For returns the exit code for err. The kind of the outermost typed
// error decides; an aborted run is a general error.
func For(err error) int {
	if err == nil {
		return Success
	}
	if errors.Is(err, domain.ErrAborted) {
		return GeneralError
	}

	var derr *domain.Error
	if !errors.As(err, &derr) {
		return GeneralError
	}
	switch derr.Kind {
	case domain.ErrConfiguration:
		return ConfigError
	case domain.ErrLocalIO:
		return LocalIOError
	case domain.ErrRemoteQuery:
		return RemoteQuery
	case domain.ErrStorage:
		return StorageFailure
	default:
		return GeneralError
	}
}
