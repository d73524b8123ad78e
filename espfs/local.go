package espfs

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"

	"github.com/spf13/afero"
)

// Local is the host filesystem. Tests use an in-memory afero.Fs.
type Local struct {
	fs afero.Fs
}

var _ Filesystem = (*Local)(nil)

// NewLocal wraps an afero filesystem.
func NewLocal(fsys afero.Fs) *Local {
	return &Local{fs: fsys}
}

// NewOSLocal returns the real host filesystem.
func NewOSLocal() *Local {
	return NewLocal(afero.NewOsFs())
}

// mapError converts host errors to this package's sentinels.
func mapError(op, p string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, fs.ErrNotExist):
		return &PathError{Op: op, Path: p, Err: ErrNotFound}
	case errors.Is(err, fs.ErrExist):
		return &PathError{Op: op, Path: p, Err: ErrAlreadyExists}
	case errors.Is(err, syscall.ENOTDIR):
		return &PathError{Op: op, Path: p, Err: ErrNotADirectory}
	default:
		return &PathError{Op: op, Path: p, Err: err}
	}
}

// List returns the entries of dir.
func (l *Local) List(ctx context.Context, dir string) ([]Entry, error) {
	info, err := l.fs.Stat(dir)
	if err != nil {
		return nil, mapError("list", dir, err)
	}
	if !info.IsDir() {
		return nil, &PathError{Op: "list", Path: dir, Err: ErrNotADirectory}
	}

	infos, err := afero.ReadDir(l.fs, dir)
	if err != nil {
		return nil, mapError("list", dir, err)
	}
	entries := make([]Entry, 0, len(infos))
	for _, info := range infos {
		if !info.IsDir() && !info.Mode().IsRegular() {
			continue
		}
		entries = append(entries, entryFromInfo(info))
	}
	sortEntries(entries)
	return entries, nil
}

// Stat describes p.
func (l *Local) Stat(ctx context.Context, p string) (Entry, error) {
	info, err := l.fs.Stat(p)
	if err != nil {
		return Entry{}, mapError("stat", p, err)
	}
	return entryFromInfo(info), nil
}

func entryFromInfo(info os.FileInfo) Entry {
	if info.IsDir() {
		return Entry{Name: info.Name(), IsDir: true}
	}
	return Entry{Name: info.Name(), Size: info.Size()}
}

// Mkdir creates one directory whose parent must exist.
func (l *Local) Mkdir(ctx context.Context, p string) error {
	if _, err := l.fs.Stat(p); err == nil {
		return &PathError{Op: "mkdir", Path: p, Err: ErrAlreadyExists}
	}
	if err := l.requireDir("mkdir", p, filepath.Dir(p)); err != nil {
		return err
	}
	return mapError("mkdir", p, l.fs.Mkdir(p, 0o755))
}

// MakeDirs creates p and any missing parents, one component at a time so
// that a file in the way is reported as ErrNotADirectory.
func (l *Local) MakeDirs(ctx context.Context, p string) error {
	p = filepath.Clean(p)
	info, err := l.fs.Stat(p)
	switch {
	case err == nil && info.IsDir():
		return nil
	case err == nil:
		return &PathError{Op: "makedirs", Path: p, Err: ErrNotADirectory}
	case !errors.Is(err, fs.ErrNotExist):
		return mapError("makedirs", p, err)
	}

	if parent := filepath.Dir(p); parent != p {
		if err := l.MakeDirs(ctx, parent); err != nil {
			return err
		}
	}
	return mapError("makedirs", p, l.fs.Mkdir(p, 0o755))
}

// Remove deletes a file.
func (l *Local) Remove(ctx context.Context, p string) error {
	info, err := l.fs.Stat(p)
	if err != nil {
		return mapError("remove", p, err)
	}
	if info.IsDir() {
		return &PathError{Op: "remove", Path: p, Err: ErrIsADirectory}
	}
	return mapError("remove", p, l.fs.Remove(p))
}

// RemoveTree deletes p and its descendants. A filesystem root is emptied
// instead of deleted.
func (l *Local) RemoveTree(ctx context.Context, p string) error {
	info, err := l.fs.Stat(p)
	if err != nil {
		return mapError("removetree", p, err)
	}
	if !info.IsDir() || filepath.Dir(p) != p {
		return mapError("removetree", p, l.fs.RemoveAll(p))
	}
	infos, err := afero.ReadDir(l.fs, p)
	if err != nil {
		return mapError("removetree", p, err)
	}
	for _, info := range infos {
		child := filepath.Join(p, info.Name())
		if err := l.fs.RemoveAll(child); err != nil {
			return mapError("removetree", child, err)
		}
	}
	return nil
}

// ReadFile returns the content of a file.
func (l *Local) ReadFile(ctx context.Context, p string) ([]byte, error) {
	info, err := l.fs.Stat(p)
	if err != nil {
		return nil, mapError("read", p, err)
	}
	if info.IsDir() {
		return nil, &PathError{Op: "read", Path: p, Err: ErrIsADirectory}
	}
	data, err := afero.ReadFile(l.fs, p)
	if err != nil {
		return nil, mapError("read", p, err)
	}
	return data, nil
}

// WriteFile writes data to p. The parent directory must exist.
func (l *Local) WriteFile(ctx context.Context, p string, data []byte, overwrite bool) error {
	info, err := l.fs.Stat(p)
	switch {
	case err == nil && info.IsDir():
		return &PathError{Op: "write", Path: p, Err: ErrIsADirectory}
	case err == nil && !overwrite:
		return &PathError{Op: "write", Path: p, Err: ErrAlreadyExists}
	}
	if err := l.requireDir("write", p, filepath.Dir(p)); err != nil {
		return err
	}
	return mapError("write", p, afero.WriteFile(l.fs, p, data, 0o644))
}

// requireDir fails unless dir exists and is a directory.
func (l *Local) requireDir(op, p, dir string) error {
	info, err := l.fs.Stat(dir)
	if err != nil {
		return mapError(op, p, err)
	}
	if !info.IsDir() {
		return &PathError{Op: op, Path: p, Err: ErrNotADirectory}
	}
	return nil
}

// Join joins host path elements.
func (l *Local) Join(elem ...string) string {
	return filepath.Join(elem...)
}

// Base returns the last element of a host path.
func (l *Local) Base(p string) string {
	return filepath.Base(p)
}
