package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// ModuleRoot returns the directory holding go.mod above the calling test's
// source file. It fails the test when there is none.
func ModuleRoot(t testing.TB) string {
	t.Helper()

	_, filename, _, ok := runtime.Caller(1)
	if !ok {
		t.Fatal("failed to get caller information")
	}

	root, err := FindUp(filepath.Dir(filename), "go.mod")
	if err != nil {
		t.Fatal(err)
	}
	return root
}

// FindUp returns the first directory from dir upwards that contains name
func FindUp(dir, name string) (string, error) {
	for {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("%s not found above %s", name, dir)
		}
		dir = parent
	}
}
