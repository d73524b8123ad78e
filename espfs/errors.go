package espfs

import (
	"errors"
	"fmt"
	"strings"
)

// Filesystem errors. Operations wrap them in *PathError.
var (
	// ErrNotFound indicates the path does not exist.
	ErrNotFound = errors.New("no such file or directory")

	// ErrAlreadyExists indicates the path exists and may not be replaced.
	ErrAlreadyExists = errors.New("file already exists")

	// ErrIsADirectory indicates a file operation was applied to a directory.
	ErrIsADirectory = errors.New("is a directory")

	// ErrNotADirectory indicates a directory operation was applied to a file.
	ErrNotADirectory = errors.New("not a directory")

	// ErrRelativePath indicates a remote path that does not start with "/".
	ErrRelativePath = errors.New("remote path must be absolute")

	// ErrTransferAborted indicates a transfer plan had conflicts.
	ErrTransferAborted = errors.New("transfer aborted")
)

// PathError records an error and the operation and path that caused it.
type PathError struct {
	Op   string
	Path string
	Err  error
}

// Error implements the error interface.
func (e *PathError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *PathError) Unwrap() error {
	return e.Err
}

// ParseError indicates the device printed something the helper protocol
// does not allow.
type ParseError struct {
	Kind   ParseErrorKind
	Value  string // The offending output
	Helper string // The helper call that produced it
}

// ParseErrorKind categorizes parsing errors.
type ParseErrorKind int

const (
	// ErrKindUnexpectedStatus indicates an unknown "!" status line.
	ErrKindUnexpectedStatus ParseErrorKind = iota
	// ErrKindInvalidStat indicates a malformed stat result.
	ErrKindInvalidStat
	// ErrKindInvalidEntry indicates a malformed listing line.
	ErrKindInvalidEntry
	// ErrKindInvalidCount indicates a malformed byte count.
	ErrKindInvalidCount
	// ErrKindInvalidPayload indicates undecodable base64 data.
	ErrKindInvalidPayload
	// ErrKindMissingResult indicates the helper printed nothing.
	ErrKindMissingResult
)

// Error implements the error interface.
func (e *ParseError) Error() string {
	var msg string
	switch e.Kind {
	case ErrKindUnexpectedStatus:
		msg = fmt.Sprintf("unexpected status '%s'", e.Value)
	case ErrKindInvalidStat:
		msg = fmt.Sprintf("invalid stat result '%s'", e.Value)
	case ErrKindInvalidEntry:
		msg = fmt.Sprintf("invalid directory entry '%s'", e.Value)
	case ErrKindInvalidCount:
		msg = fmt.Sprintf("invalid byte count '%s'", e.Value)
	case ErrKindInvalidPayload:
		msg = fmt.Sprintf("invalid payload '%s'", e.Value)
	case ErrKindMissingResult:
		msg = "missing result"
	default:
		msg = fmt.Sprintf("parse error: %s", e.Value)
	}
	if e.Helper != "" {
		return e.Helper + ": " + msg
	}
	return msg
}

// Conflict is one reason a transfer plan cannot run.
type Conflict struct {
	Source      string
	Destination string
	Err         error
}

// String describes the conflict.
func (c Conflict) String() string {
	return fmt.Sprintf("%s -> %s: %v", c.Source, c.Destination, c.Err)
}

// TransferAbortedError lists every conflict found while planning a transfer.
// Nothing has been written when it is returned.
type TransferAbortedError struct {
	Conflicts []Conflict
}

// Error implements the error interface.
func (e *TransferAbortedError) Error() string {
	parts := make([]string, len(e.Conflicts))
	for i, c := range e.Conflicts {
		parts[i] = c.String()
	}
	return fmt.Sprintf("%v: %s", ErrTransferAborted, strings.Join(parts, "; "))
}

// Unwrap returns ErrTransferAborted.
func (e *TransferAbortedError) Unwrap() error {
	return ErrTransferAborted
}

// IsNotFound reports whether err indicates a missing path.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists reports whether err indicates an existing path.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}
