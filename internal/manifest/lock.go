package manifest

import (
	"fmt"
	"path/filepath"

	"github.com/gofrs/flock"
)

// LockName is the advisory lock file guarding a folder during a sync run
const LockName = ".dfour.lock"

// Lock takes the folder's run lock without blocking. The returned function
// releases it.
func Lock(folder string) (func() error, error) {
	lock := flock.New(filepath.Join(folder, LockName))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire sync lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("another sync is in progress for %s", folder)
	}
	return lock.Unlock, nil
}
