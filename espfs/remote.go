package espfs

import (
	"context"
	"fmt"
	"path"

	"github.com/sirupsen/logrus"

	"github.com/nagylzs/espsyncer/espprotocol"
)

const (
	// DefaultChunkSize is the number of raw bytes sent per write transaction.
	DefaultChunkSize = 128
	// MaxChunkSize keeps one encoded chunk well below the device's paste
	// buffer.
	MaxChunkSize = 1024
	// DefaultReadChunkSize is the number of raw bytes fetched per read
	// transaction.
	DefaultReadChunkSize = 512
	// MaxReadChunkSize bounds one read transaction.
	MaxReadChunkSize = 4096
)

// Transactor runs paste-mode transactions. *espprotocol.Session implements it.
type Transactor interface {
	Submit(ctx context.Context, lines []string) (espprotocol.Response, error)
	Generation() uint64
}

// Options configures a Remote.
type Options struct {
	// ChunkSize is the write chunk size, clamped to [1, MaxChunkSize].
	ChunkSize int

	// ReadChunkSize is the read chunk size, clamped to [1, MaxReadChunkSize].
	ReadChunkSize int

	// Logger receives progress at info level and chunk traces at debug
	// level. Defaults to the logrus standard logger.
	Logger logrus.FieldLogger
}

func (o Options) withDefaults() Options {
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	o.ChunkSize = min(o.ChunkSize, MaxChunkSize)
	if o.ReadChunkSize <= 0 {
		o.ReadChunkSize = DefaultReadChunkSize
	}
	o.ReadChunkSize = min(o.ReadChunkSize, MaxReadChunkSize)
	if o.Logger == nil {
		o.Logger = logrus.StandardLogger()
	}
	return o
}

// Remote is the device filesystem. It is not safe for concurrent use.
type Remote struct {
	t    Transactor
	opts Options
	log  logrus.FieldLogger

	installed  bool
	generation uint64
}

var _ Filesystem = (*Remote)(nil)

// NewRemote creates a Remote running its helpers through t.
func NewRemote(t Transactor, opts Options) *Remote {
	opts = opts.withDefaults()
	return &Remote{t: t, opts: opts, log: opts.Logger}
}

// ensurePrelude installs the helpers unless they were installed during the
// current session generation.
func (r *Remote) ensurePrelude(ctx context.Context) error {
	generation := r.t.Generation()
	if r.installed && r.generation == generation {
		return nil
	}
	r.log.WithField("generation", generation).Debug("installing helpers")
	if _, err := r.t.Submit(ctx, preludeLines()); err != nil {
		return fmt.Errorf("failed to install helpers: %w", err)
	}
	r.installed = true
	r.generation = generation
	return nil
}

// call runs one helper and returns its output lines.
func (r *Remote) call(ctx context.Context, cmd Command) ([]string, error) {
	if err := r.ensurePrelude(ctx); err != nil {
		return nil, err
	}
	resp, err := r.t.Submit(ctx, cmd.Lines())
	if err != nil {
		return nil, err
	}
	return resp.Lines(), nil
}

// List returns the entries of dir.
func (r *Remote) List(ctx context.Context, dir string) ([]Entry, error) {
	dir, err := CleanRemotePath(dir)
	if err != nil {
		return nil, &PathError{Op: "list", Path: dir, Err: err}
	}
	cmd := NewListCommand(dir)
	lines, err := r.call(ctx, cmd)
	if err != nil {
		return nil, &PathError{Op: "list", Path: dir, Err: err}
	}
	entries, err := parseList(cmd.Name(), lines)
	if err != nil {
		return nil, &PathError{Op: "list", Path: dir, Err: err}
	}
	return entries, nil
}

// Stat describes p.
func (r *Remote) Stat(ctx context.Context, p string) (Entry, error) {
	p, err := CleanRemotePath(p)
	if err != nil {
		return Entry{}, &PathError{Op: "stat", Path: p, Err: err}
	}
	cmd := NewStatCommand(p)
	lines, err := r.call(ctx, cmd)
	if err != nil {
		return Entry{}, &PathError{Op: "stat", Path: p, Err: err}
	}
	entry, err := parseStat(cmd.Name(), lines)
	if err != nil {
		return Entry{}, &PathError{Op: "stat", Path: p, Err: err}
	}
	entry.Name = path.Base(p)
	return entry, nil
}

// Mkdir creates one directory.
func (r *Remote) Mkdir(ctx context.Context, p string) error {
	return r.mkdir(ctx, "mkdir", p, false)
}

// MakeDirs creates p and any missing parents.
func (r *Remote) MakeDirs(ctx context.Context, p string) error {
	return r.mkdir(ctx, "makedirs", p, true)
}

func (r *Remote) mkdir(ctx context.Context, op, p string, parents bool) error {
	return r.simple(ctx, op, p, func(p string) Command { return NewMkdirCommand(p, parents) })
}

// Remove deletes a file.
func (r *Remote) Remove(ctx context.Context, p string) error {
	return r.simple(ctx, "remove", p, NewRemoveCommand)
}

func (r *Remote) rmdir(ctx context.Context, p string) error {
	return r.simple(ctx, "rmdir", p, NewRmdirCommand)
}

// simple runs a helper that only prints a status line.
func (r *Remote) simple(ctx context.Context, op, p string, build func(string) Command) error {
	p, err := CleanRemotePath(p)
	if err != nil {
		return &PathError{Op: op, Path: p, Err: err}
	}
	cmd := build(p)
	lines, err := r.call(ctx, cmd)
	if err != nil {
		return &PathError{Op: op, Path: p, Err: err}
	}
	if err := parseStatus(cmd.Name(), lines); err != nil {
		return &PathError{Op: op, Path: p, Err: err}
	}
	return nil
}

// RemoveTree deletes p and all its descendants. Removing "/" empties the
// filesystem but keeps the root.
func (r *Remote) RemoveTree(ctx context.Context, p string) error {
	p, err := CleanRemotePath(p)
	if err != nil {
		return &PathError{Op: "removetree", Path: p, Err: err}
	}
	entry, err := r.Stat(ctx, p)
	if err != nil {
		return err
	}
	if !entry.IsDir {
		r.log.WithField("path", p).Info("RM")
		return r.Remove(ctx, p)
	}
	return r.removeDir(ctx, p)
}

func (r *Remote) removeDir(ctx context.Context, dir string) error {
	entries, err := r.List(ctx, dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		child := r.Join(dir, entry.Name)
		if entry.IsDir {
			if err := r.removeDir(ctx, child); err != nil {
				return err
			}
			continue
		}
		r.log.WithField("path", child).Info("RM")
		if err := r.Remove(ctx, child); err != nil {
			return err
		}
	}
	if dir == "/" {
		return nil
	}
	r.log.WithField("path", dir).Info("RMDIR")
	return r.rmdir(ctx, dir)
}

// ReadFile returns the content of a file, fetched in ReadChunkSize pieces.
func (r *Remote) ReadFile(ctx context.Context, p string) ([]byte, error) {
	p, err := CleanRemotePath(p)
	if err != nil {
		return nil, &PathError{Op: "read", Path: p, Err: err}
	}

	var data []byte
	for {
		cmd := NewGetCommand(p, int64(len(data)), r.opts.ReadChunkSize)
		lines, err := r.call(ctx, cmd)
		if err != nil {
			return nil, &PathError{Op: "read", Path: p, Err: err}
		}
		chunk, err := parsePayload(cmd.Name(), lines)
		if err != nil {
			return nil, &PathError{Op: "read", Path: p, Err: err}
		}
		data = append(data, chunk...)
		r.log.WithFields(logrus.Fields{"path": p, "bytes": len(data)}).Debug("read chunk")
		if len(chunk) < r.opts.ReadChunkSize {
			break
		}
	}
	if data == nil {
		data = []byte{}
	}
	return data, nil
}

// WriteFile writes data to p in ChunkSize pieces: the first chunk truncates
// the file, the rest append. Without overwrite an existing file is an error.
func (r *Remote) WriteFile(ctx context.Context, p string, data []byte, overwrite bool) error {
	p, err := CleanRemotePath(p)
	if err != nil {
		return &PathError{Op: "write", Path: p, Err: err}
	}

	if !overwrite {
		entry, err := r.Stat(ctx, p)
		switch {
		case err == nil && entry.IsDir:
			return &PathError{Op: "write", Path: p, Err: ErrIsADirectory}
		case err == nil:
			return &PathError{Op: "write", Path: p, Err: ErrAlreadyExists}
		case !IsNotFound(err):
			return err
		}
	}

	offset := 0
	for first := true; first || offset < len(data); first = false {
		end := min(offset+r.opts.ChunkSize, len(data))
		cmd := NewPutCommand(p, !first, data[offset:end])
		lines, err := r.call(ctx, cmd)
		if err != nil {
			return &PathError{Op: "write", Path: p, Err: err}
		}
		n, err := parseCount(cmd.Name(), lines)
		if err != nil {
			return &PathError{Op: "write", Path: p, Err: err}
		}
		if n != end-offset {
			return &PathError{Op: "write", Path: p, Err: fmt.Errorf("short write: %d of %d bytes", n, end-offset)}
		}
		offset = end
		r.log.WithFields(logrus.Fields{"path": p, "bytes": offset, "total": len(data)}).Debug("write chunk")
	}
	return nil
}

// Join joins device path elements.
func (r *Remote) Join(elem ...string) string {
	return path.Join(elem...)
}

// Base returns the last element of a device path.
func (r *Remote) Base(p string) string {
	return path.Base(p)
}
