package espexec

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// Watcher reports changes of one local file by comparing its modification
// time against a baseline. fsnotify events only wake WaitForChange early;
// the modification time stays the source of truth.
type Watcher struct {
	path     string
	baseline time.Time
	log      logrus.FieldLogger

	notify *fsnotify.Watcher
	wake   chan struct{}
	done   chan struct{}
}

// NewWatcher records the current modification time of path as baseline.
func NewWatcher(path string, log logrus.FieldLogger) (*Watcher, error) {
	path = filepath.Clean(path)
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	w := &Watcher{
		path:     path,
		baseline: info.ModTime(),
		log:      log,
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}

	// Editors often replace the file instead of writing it in place, so
	// the directory is watched rather than the file.
	notify, err := fsnotify.NewWatcher()
	if err != nil {
		log.WithError(err).Debug("file events unavailable, polling only")
		return w, nil
	}
	if err := notify.Add(filepath.Dir(path)); err != nil {
		notify.Close()
		log.WithError(err).Debug("file events unavailable, polling only")
		return w, nil
	}
	w.notify = notify
	go w.pump()
	return w, nil
}

// pump forwards events about the watched file to wake.
func (w *Watcher) pump() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.notify.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			select {
			case w.wake <- struct{}{}:
			default:
			}
		case err, ok := <-w.notify.Errors:
			if !ok {
				return
			}
			w.log.WithError(err).Debug("file watch error")
		}
	}
}

// Path returns the watched file.
func (w *Watcher) Path() string {
	return w.path
}

// Changed polls the modification time once. A change moves the baseline.
// A file that is missing (e.g. in the middle of an editor save) counts as
// unchanged.
func (w *Watcher) Changed() (bool, error) {
	info, err := os.Stat(w.path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if info.ModTime().Equal(w.baseline) {
		return false, nil
	}
	w.baseline = info.ModTime()
	return true, nil
}

// WaitForChange blocks until the file changes or ctx is done.
func (w *Watcher) WaitForChange(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		changed, err := w.Changed()
		if err != nil {
			return err
		}
		if changed {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.wake:
		case <-ticker.C:
		}
	}
}

// Close stops the event pump.
func (w *Watcher) Close() error {
	select {
	case <-w.done:
		return nil
	default:
	}
	close(w.done)
	if w.notify != nil {
		return w.notify.Close()
	}
	return nil
}
