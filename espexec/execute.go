// Package espexec runs programs on the device and streams their output,
// once or in a hot-reload loop that redeploys a local file on every change.
package espexec

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nagylzs/espsyncer/espprotocol"
)

// DefaultPollInterval is how often the watched file is checked while
// streaming.
const DefaultPollInterval = 250 * time.Millisecond

// Session is the part of *espprotocol.Session used here.
type Session interface {
	Reset(ctx context.Context) error
	Push(ctx context.Context, lines []string) error
	Scanner() *espprotocol.Scanner
	SetMirror(w io.Writer)
	Mirror() io.Writer
}

// Options configures execution.
type Options struct {
	// Output receives every byte the device prints, echo included.
	// Nil discards it.
	Output io.Writer

	// StopOnTerminator ends streaming when the prompt comes back.
	StopOnTerminator bool

	// Timeout bounds streaming; non-positive streams until cancelled.
	Timeout time.Duration

	// PollInterval is how often a hot-reloaded file is checked.
	PollInterval time.Duration

	// Logger defaults to the logrus standard logger.
	Logger logrus.FieldLogger
}

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.Logger == nil {
		o.Logger = logrus.StandardLogger()
	}
	return o
}

func (o Options) patterns() [][]byte {
	if !o.StopOnTerminator {
		return nil
	}
	return [][]byte{[]byte(espprotocol.Prompt)}
}

// Execute pushes source in paste mode and streams the device output until
// the prompt returns (with StopOnTerminator) or the timeout expires. Running
// out of time is not an error for free-form code.
func Execute(ctx context.Context, s Session, source string, opts Options) (espprotocol.StreamEnd, error) {
	opts = opts.withDefaults()

	restore := mirrorTo(s, opts.Output)
	defer restore()

	if err := s.Push(ctx, espprotocol.SplitSource(source)); err != nil {
		return espprotocol.EndStopped, fmt.Errorf("failed to send program: %w", err)
	}

	end, err := s.Scanner().Stream(ctx, espprotocol.StreamOptions{
		Patterns: opts.patterns(),
		Timeout:  opts.Timeout,
	})
	if err != nil {
		return end, err
	}
	if end == espprotocol.EndTimeout && opts.StopOnTerminator {
		opts.Logger.WithField("timeout", opts.Timeout).Warn("prompt did not return before the timeout")
	}
	return end, nil
}

// ExecuteFile runs the contents of a local file like Execute.
func ExecuteFile(ctx context.Context, s Session, path string, opts Options) (espprotocol.StreamEnd, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return espprotocol.EndStopped, err
	}
	return Execute(ctx, s, string(source), opts)
}

// mirrorTo routes device output to w and returns a function restoring the
// previous sink.
func mirrorTo(s Session, w io.Writer) func() {
	prev := s.Mirror()
	s.SetMirror(w)
	return func() { s.SetMirror(prev) }
}
