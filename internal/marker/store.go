// Package marker implements the filesystem signals of the handshake: the ping
// marker ("I am ready"), the pong marker ("you may proceed") and the
// gdbserver socket path that must appear once the helper listens.
//
// Markers are single-use. Whoever observes a marker while waiting for it
// deletes it before returning, so a later run never sees a stale signal.
package marker

import (
	"errors"
	"io/fs"
	"os"

	"github.com/hugo-lorenzo-mato/debugwait/internal/core"
	"github.com/hugo-lorenzo-mato/debugwait/internal/logging"
)

// DefaultMode is owner read/write/execute.
const DefaultMode os.FileMode = 0o700

// Store creates, checks and removes markers.
type Store struct {
	mode   os.FileMode
	logger *logging.Logger
}

// NewStore creates a store applying mode to written markers. A zero mode
// means DefaultMode.
func NewStore(mode os.FileMode, logger *logging.Logger) *Store {
	if mode == 0 {
		mode = DefaultMode
	}
	return &Store{
		mode:   mode.Perm(),
		logger: logging.OrNop(logger).WithComponent("marker"),
	}
}

// Mode returns the permission bits applied by Write and MakeAccessible.
func (s *Store) Mode() os.FileMode {
	return s.mode
}

// Clear removes path if present. Failures are logged and otherwise ignored.
func (s *Store) Clear(path string) {
	if path == "" {
		return
	}
	err := os.Remove(path)
	switch {
	case err == nil:
		s.logger.Debug("removed marker", "path", path)
	case errors.Is(err, fs.ErrNotExist):
	default:
		s.logger.Warn("marker cannot be deleted", "path", path, "error", err)
	}
}

// Exists reports whether something exists at path. Sockets and dangling
// symlinks count.
func (s *Store) Exists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Lstat(path)
	return err == nil
}

// Write atomically replaces path with content and applies the store mode.
func (s *Store) Write(path, content string) error {
	if err := atomicWriteFile(path, []byte(content), s.mode); err != nil {
		return core.ErrIO(core.CodeMarkerWriteFailed, "writing marker "+path).WithCause(err)
	}
	// The umask may have narrowed the bits at creation time.
	if err := os.Chmod(path, s.mode); err != nil {
		return core.ErrIO(core.CodeChmodFailed, "setting permissions on "+path).WithCause(err)
	}
	return nil
}

// Consume deletes path if it exists and reports whether it did.
func (s *Store) Consume(path string) bool {
	if !s.Exists(path) {
		return false
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false
		}
		s.logger.Warn("consumed marker cannot be deleted", "path", path, "error", err)
	}
	return true
}

// MakeAccessible applies the store mode to an existing path, typically the
// socket created by the helper process.
func (s *Store) MakeAccessible(path string) error {
	if err := os.Chmod(path, s.mode); err != nil {
		return core.ErrIO(core.CodeChmodFailed, "setting permissions on "+path).WithCause(err)
	}
	return nil
}
