//go:build integration

package live

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/schaermu/dfoursync/internal/testutil"
)

const defaultTimeout = 5 * time.Minute

// Env holds the instance a live run talks to. Endpoint and Workspace come
// from DFOUR_ENDPOINT and DFOUR_TEST_WORKSPACE; Snapshot from
// DFOUR_TEST_SNAPSHOT is optional.
type Env struct {
	Endpoint  string
	Workspace string
	Snapshot  string
}

// LoadEnv skips the test unless a live instance is configured
func LoadEnv(t *testing.T) Env {
	t.Helper()
	env := Env{
		Endpoint:  os.Getenv("DFOUR_ENDPOINT"),
		Workspace: os.Getenv("DFOUR_TEST_WORKSPACE"),
		Snapshot:  os.Getenv("DFOUR_TEST_SNAPSHOT"),
	}
	if env.Endpoint == "" || env.Workspace == "" {
		t.Skip("DFOUR_ENDPOINT and DFOUR_TEST_WORKSPACE are required for live tests")
	}
	return env
}

// Harness builds the dfour binary once and runs it against a live instance
type Harness struct {
	t      *testing.T
	binary string
}

// NewHarness builds cmd/dfour into a temporary directory
func NewHarness(ctx context.Context, t *testing.T) *Harness {
	t.Helper()

	root := testutil.ModuleRoot(t)
	binary := filepath.Join(t.TempDir(), "dfour")

	t.Logf("Building %s", binary)
	cmd := exec.CommandContext(ctx, "go", "build", "-o", binary, "./cmd/dfour")
	cmd.Dir = root
	cmd.Stdout = &testWriter{t: t, prefix: "[build] "}
	cmd.Stderr = &testWriter{t: t, prefix: "[build] "}
	if err := cmd.Run(); err != nil {
		t.Fatalf("go build: %v", err)
	}

	return &Harness{t: t, binary: binary}
}

// Run executes dfour with args and returns its output and exit code
func (h *Harness) Run(ctx context.Context, args ...string) (string, string, int, error) {
	h.t.Helper()
	cmd := exec.CommandContext(ctx, h.binary, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return "", "", 0, fmt.Errorf("run failed: %w", err)
		}
		exitCode = exitErr.ExitCode()
	}

	return stdout.String(), stderr.String(), exitCode, nil
}

// MustRun runs dfour and fails the test on a non-zero exit code
func (h *Harness) MustRun(ctx context.Context, args ...string) string {
	h.t.Helper()
	stdout, stderr, exitCode, err := h.Run(ctx, args...)
	if err != nil {
		h.t.Fatalf("run failed: %v", err)
	}
	if exitCode != 0 {
		h.t.Fatalf("dfour exited with %d\nstdout: %s\nstderr: %s\nargs: %v", exitCode, stdout, stderr, args)
	}
	return stdout
}

// testWriter wraps test logging for command output
type testWriter struct {
	t      *testing.T
	prefix string
}

func (w *testWriter) Write(p []byte) (n int, err error) {
	for _, line := range strings.Split(string(p), "\n") {
		if line != "" {
			w.t.Log(w.prefix + line)
		}
	}
	return len(p), nil
}

var _ io.Writer = (*testWriter)(nil)
