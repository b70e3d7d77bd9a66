package exitcode

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/schaermu/dfoursync/internal/domain"
)

func TestFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, Success},
		{"plain", errors.New("boom"), GeneralError},
		{"aborted", domain.ErrAborted, GeneralError},
		{"configuration", domain.ConfigurationError("missing topic for %q", "a"), ConfigError},
		{"local io", domain.LocalIOError(nil, "cannot read %s", "a.json"), LocalIOError},
		{"remote query", domain.RemoteQueryError(nil, "workspace not found"), RemoteQuery},
		{"storage", domain.StorageError(nil, "upload rejected"), StorageFailure},
		{"wrapped", fmt.Errorf("sync failed: %w", domain.StorageError(nil, "login")), StorageFailure},
		{"joined", errors.Join(errors.New("other"), domain.LocalIOError(nil, "write")), LocalIOError},
		{"outermost kind wins", domain.StorageError(domain.RemoteQueryError(nil, "mutation"), "create snapshot"), StorageFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, For(tt.err))
		})
	}
}

func TestString(t *testing.T) {
	assert.Equal(t, "Success", String(Success))
	assert.Equal(t, "Configuration error", String(ConfigError))
	assert.Equal(t, "Storage error", String(StorageFailure))
	assert.Equal(t, "Unknown error", String(42))
}
