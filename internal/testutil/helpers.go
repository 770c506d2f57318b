package testutil

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// SocketPath returns a unix socket path in a fresh short directory.
// t.TempDir paths can exceed the 104/108 byte sun_path limit on some systems.
func SocketPath(t *testing.T, name string) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "dw")
	if err != nil {
		t.Fatalf("creating socket dir: %v", err)
	}
	t.Cleanup(func() {
		os.RemoveAll(dir)
	})
	return filepath.Join(dir, name)
}

// TempFile creates a temporary file with content.
func TempFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing temp file: %v", err)
	}
	return path
}

// CreateAfter creates path with content after delay, from a new goroutine.
// The returned channel is closed once the file exists.
func CreateAfter(t *testing.T, path, content string, delay time.Duration) <-chan struct{} {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		time.Sleep(delay)
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Errorf("creating %s: %v", path, err)
		}
	}()
	return done
}

// AssertExists fails if path does not exist.
func AssertExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Lstat(path); err != nil {
		t.Fatalf("expected %s to exist: %v", path, err)
	}
}

// AssertNotExists fails if path exists.
func AssertNotExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Lstat(path); err == nil {
		t.Fatalf("expected %s not to exist", path)
	}
}
