package marker

import (
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/hugo-lorenzo-mato/debugwait/internal/core"
	"github.com/hugo-lorenzo-mato/debugwait/internal/logging"
)

// Watcher turns filesystem events on a set of marker paths into wake
// signals for a poller. Signals are coalesced: at most one is pending.
type Watcher struct {
	fw        *fsnotify.Watcher
	names     map[string]bool
	wake      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	logger    *logging.Logger
}

// Watch watches the parent directories of paths. Empty paths are skipped.
// The directories must exist.
func (s *Store) Watch(paths ...string) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, core.ErrIO(core.CodeWatchFailed, "creating watcher").WithCause(err)
	}

	w := &Watcher{
		fw:     fw,
		names:  make(map[string]bool),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		logger: s.logger,
	}

	dirs := make(map[string]bool)
	for _, p := range paths {
		if p == "" {
			continue
		}
		abs, err := filepath.Abs(p)
		if err != nil {
			_ = fw.Close()
			return nil, core.ErrIO(core.CodeWatchFailed, "resolving "+p).WithCause(err)
		}
		w.names[abs] = true
		dirs[filepath.Dir(abs)] = true
	}
	for dir := range dirs {
		if err := fw.Add(dir); err != nil {
			_ = fw.Close()
			return nil, core.ErrIO(core.CodeWatchFailed, "watching "+dir).WithCause(err)
		}
	}

	go w.loop()
	return w, nil
}

// Wake returns the channel signalled when a watched path changes.
func (w *Watcher) Wake() <-chan struct{} {
	return w.wake
}

// Close stops the watcher. Safe to call more than once.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		err = w.fw.Close()
	})
	return err
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if !w.names[filepath.Clean(ev.Name)] {
				continue
			}
			select {
			case w.wake <- struct{}{}:
			default:
			}
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			w.logger.Debug("watch error", "error", err)
		}
	}
}
