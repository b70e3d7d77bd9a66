package sync

import (
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"github.com/schaermu/dfoursync/internal/datapackage"
)

// WritePackageFile writes pkg pretty-printed to path with an atomic rename.
// A non-zero modTime becomes the file's access and modification time.
func WritePackageFile(fs afero.Fs, path string, pkg datapackage.Descriptor, modTime time.Time) error {
	data, err := datapackage.MarshalPretty(pkg)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := fs.MkdirAll(dir, 0755); err != nil {
		return err
	}

	// Create temp file in destination directory
	tmpFile, err := afero.TempFile(fs, dir, ".dfour-tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = fs.Remove(tmpPath)
	}() // cleanup on error

	if _, err := tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Close(); err != nil {
		return err
	}

	if err := fs.Chmod(tmpPath, 0644); err != nil {
		return err
	}

	// Atomic rename
	if err := fs.Rename(tmpPath, path); err != nil {
		return err
	}

	if !modTime.IsZero() {
		if err := fs.Chtimes(path, modTime, modTime); err != nil {
			return err
		}
	}
	return nil
}
