package repocontext

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/planify/internal/logging"
)

// ErrWatcherFailed indicates the filesystem watcher could not start.
var ErrWatcherFailed = errors.New("failed to initialize filesystem watcher")

// Watcher marks a snapshot stale when files under the repository change.
// Directories in skipDirs, including the session directory, are not watched.
type Watcher struct {
	root    string
	watcher *fsnotify.Watcher
	logger  *logging.Logger

	stale   atomic.Bool
	changes chan struct{}
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
}

// NewWatcher starts watching every directory under root.
func NewWatcher(ctx context.Context, root string, logger *logging.Logger) (*Watcher, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWatcherFailed, err)
	}

	w := &Watcher{
		root:    root,
		watcher: fw,
		logger:  logger,
		changes: make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	if err := w.addTree(root); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("%w: %v", ErrWatcherFailed, err)
	}

	go w.processEvents(ctx)
	return w, nil
}

// Stale reports whether anything changed since the last Reset.
func (w *Watcher) Stale() bool {
	return w.stale.Load()
}

// Reset clears the stale flag after a reload.
func (w *Watcher) Reset() {
	w.stale.Store(false)
}

// Changes receives a value after a change is seen. Bursts coalesce.
func (w *Watcher) Changes() <-chan struct{} {
	return w.changes
}

// Close stops the watcher and waits for its goroutine. It is idempotent.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.stop)
		err = w.watcher.Close()
		<-w.done
	})
	return err
}

func (w *Watcher) processEvents(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(ctx, event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn(ctx, "filesystem watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handle(ctx context.Context, event fsnotify.Event) {
	if event.Op == fsnotify.Chmod || w.skipped(event.Name) {
		return
	}

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addTree(event.Name); err != nil {
				w.logger.Debug(ctx, "cannot watch new directory", zap.String("dir", event.Name), zap.Error(err))
			}
		}
	}

	if !w.stale.Swap(true) {
		w.logger.Debug(ctx, "repository changed", zap.String("path", event.Name), zap.String("op", event.Op.String()))
	}
	select {
	case w.changes <- struct{}{}:
	default:
	}
}

// skipped reports whether path lies inside a directory that is never watched.
func (w *Watcher) skipped(path string) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return false
	}
	dir := rel
	for dir != "." && dir != "" && dir != string(filepath.Separator) {
		if skipDirs[filepath.Base(dir)] {
			return true
		}
		dir = filepath.Dir(dir)
	}
	return false
}

// addTree watches dir and every directory below it.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == dir {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if p != w.root && skipDirs[d.Name()] {
			return fs.SkipDir
		}
		return w.watcher.Add(p)
	})
}
