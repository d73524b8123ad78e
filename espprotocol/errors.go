package espprotocol

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the REPL protocol.
var (
	// ErrTimeout indicates the prompt did not come back within the timeout.
	ErrTimeout = errors.New("timed out waiting for the prompt")

	// ErrResetTimeout indicates the prompt was not seen after a reset.
	ErrResetTimeout = errors.New("prompt not seen after reset")

	// ErrNoPasteBanner indicates the interpreter did not confirm paste mode.
	ErrNoPasteBanner = errors.New("paste mode banner not seen")

	// ErrUnexpectedEcho indicates the interpreter did not echo what was sent.
	ErrUnexpectedEcho = errors.New("unexpected echo")

	// ErrRemoteExecution indicates the generated code raised on the device.
	ErrRemoteExecution = errors.New("remote execution failed")

	// ErrInvalidLine indicates a line contains bytes that would corrupt
	// paste-mode framing.
	ErrInvalidLine = errors.New("line contains control characters")

	// ErrClosed indicates an operation on a closed session.
	ErrClosed = errors.New("session closed")
)

// ConnectionError represents a failure to open or drive the serial port.
type ConnectionError struct {
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *ConnectionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("connection failed: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("connection failed: %s", e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *ConnectionError) Unwrap() error {
	return e.Cause
}

// NewConnectionError creates a new connection error.
func NewConnectionError(message string, cause error) error {
	return &ConnectionError{Message: message, Cause: cause}
}

// ResetError is returned when the device did not show its prompt after a
// reset. Output holds whatever the device printed meanwhile.
type ResetError struct {
	Output []byte
}

// Error implements the error interface.
func (e *ResetError) Error() string {
	if len(e.Output) == 0 {
		return ErrResetTimeout.Error() + " (no output from device)"
	}
	return fmt.Sprintf("%s (received %d bytes)", ErrResetTimeout.Error(), len(e.Output))
}

// Unwrap returns ErrResetTimeout.
func (e *ResetError) Unwrap() error {
	return ErrResetTimeout
}

// ProtocolError reports a framing failure at a given stage of a paste-mode
// transaction.
type ProtocolError struct {
	Stage  string
	Output []byte
	Err    error
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

// Unwrap returns the underlying sentinel.
func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// RemoteExecutionError carries the raw output of generated code that raised
// an exception on the device.
type RemoteExecutionError struct {
	Marker string
	Output string
}

// Error implements the error interface.
func (e *RemoteExecutionError) Error() string {
	if last := e.LastLine(); last != "" {
		return fmt.Sprintf("%s: %s", ErrRemoteExecution.Error(), last)
	}
	return ErrRemoteExecution.Error()
}

// Unwrap returns ErrRemoteExecution.
func (e *RemoteExecutionError) Unwrap() error {
	return ErrRemoteExecution
}

// LastLine returns the last non-empty output line, which for a MicroPython
// traceback is the exception itself (e.g. "OSError: [Errno 2] ENOENT").
func (e *RemoteExecutionError) LastLine() string {
	lines := strings.Split(strings.TrimRight(e.Output, "\n"), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}
