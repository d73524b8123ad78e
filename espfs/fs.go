package espfs

import (
	"context"
	"path"
	"sort"
	"strings"
)

// Entry describes one file or directory.
type Entry struct {
	Name  string
	IsDir bool
	Size  int64
}

// Filesystem is implemented by Remote (the device) and Local (the host).
// Transfers are written once against it.
type Filesystem interface {
	// List returns the entries of dir: directories first, then files,
	// each sorted by name.
	List(ctx context.Context, dir string) ([]Entry, error)

	// Stat describes p. Missing paths fail with ErrNotFound.
	Stat(ctx context.Context, p string) (Entry, error)

	// Mkdir creates one directory whose parent must exist.
	Mkdir(ctx context.Context, p string) error

	// MakeDirs creates p and any missing parents. Existing directories
	// are not an error.
	MakeDirs(ctx context.Context, p string) error

	// Remove deletes a file.
	Remove(ctx context.Context, p string) error

	// RemoveTree deletes p and everything below it. The root directory
	// itself is emptied but never deleted.
	RemoveTree(ctx context.Context, p string) error

	// ReadFile returns the exact content of a file.
	ReadFile(ctx context.Context, p string) ([]byte, error)

	// WriteFile replaces the content of a file. Without overwrite an
	// existing file fails with ErrAlreadyExists.
	WriteFile(ctx context.Context, p string, data []byte, overwrite bool) error

	// Join joins path elements using this filesystem's separator.
	Join(elem ...string) string

	// Base returns the last element of p.
	Base(p string) string
}

// CleanRemotePath validates and normalises a device path. The result always
// begins with "/" and has no trailing slash unless it is the root. A
// relative path is returned unchanged together with ErrRelativePath.
func CleanRemotePath(p string) (string, error) {
	if !strings.HasPrefix(p, "/") {
		return p, ErrRelativePath
	}
	return path.Clean(p), nil
}

// sortEntries orders directories first, then files, each by name.
func sortEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].IsDir != entries[j].IsDir {
			return entries[i].IsDir
		}
		return entries[i].Name < entries[j].Name
	})
}
