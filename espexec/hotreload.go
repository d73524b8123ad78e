package espexec

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/nagylzs/espsyncer/espprotocol"
)

// ErrStdinNotWatchable is returned when hot reload is asked to watch "-".
var ErrStdinNotWatchable = errors.New("cannot hot reload standard input")

// State is a hot-reload loop state.
type State int

const (
	StateIdle State = iota
	StateResetting
	StatePushing
	StateStreaming
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateResetting:
		return "RESETTING"
	case StatePushing:
		return "PUSHING"
	case StateStreaming:
		return "STREAMING"
	default:
		return "UNKNOWN"
	}
}

// HotReload resets the device, runs path on it and streams its output,
// starting over whenever the file changes. It returns when streaming ends
// on the terminator or timeout while the file is unchanged, or when ctx is
// cancelled.
//
// A failed reset or push is reported to the output and the log; the loop
// then waits for the next change instead of retrying.
func HotReload(ctx context.Context, s Session, path string, opts Options) error {
	if path == "-" {
		return ErrStdinNotWatchable
	}
	opts = opts.withDefaults()
	log := opts.Logger.WithField("path", path)

	watcher, err := NewWatcher(path, opts.Logger)
	if err != nil {
		return err
	}
	defer watcher.Close()

	for cycle := 1; ; cycle++ {
		log := log.WithField("cycle", cycle)

		end, err := runCycle(ctx, s, watcher, opts, log)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var connErr *espprotocol.ConnectionError
		if errors.As(err, &connErr) {
			return err
		}
		if err != nil {
			report(opts, log, err)
			log.Info("waiting for the next change")
			if err := watcher.WaitForChange(ctx, opts.PollInterval); err != nil {
				return err
			}
			continue
		}

		if end != espprotocol.EndStopped {
			log.WithField("end", end).Debug("streaming finished")
			return nil
		}
		log.Info("change detected, reloading")
	}
}

// runCycle performs RESETTING, PUSHING and STREAMING once. EndStopped with
// a nil error means the file changed.
func runCycle(ctx context.Context, s Session, watcher *Watcher, opts Options, log logrus.FieldLogger) (espprotocol.StreamEnd, error) {
	log.WithField("state", StateResetting).Debug("hot reload")
	if err := s.Reset(ctx); err != nil {
		return espprotocol.EndStopped, fmt.Errorf("reset failed: %w", err)
	}

	log.WithField("state", StatePushing).Debug("hot reload")
	source, err := os.ReadFile(watcher.Path())
	if err != nil {
		return espprotocol.EndStopped, fmt.Errorf("failed to read program: %w", err)
	}

	restore := mirrorTo(s, opts.Output)
	defer restore()

	if err := s.Push(ctx, espprotocol.SplitSource(string(source))); err != nil {
		return espprotocol.EndStopped, fmt.Errorf("push failed: %w", err)
	}

	log.WithField("state", StateStreaming).Debug("hot reload")
	return s.Scanner().Stream(ctx, espprotocol.StreamOptions{
		Patterns:     opts.patterns(),
		Timeout:      opts.Timeout,
		TickInterval: opts.PollInterval,
		OnTick:       watcher.Changed,
	})
}

// report writes a cycle failure to the output sink and the log.
func report(opts Options, log logrus.FieldLogger, err error) {
	log.WithError(err).Error("hot reload cycle failed")
	if opts.Output != nil {
		fmt.Fprintf(opts.Output, "\r\n[hot reload] %v\r\n", err)
	}
}
