package main

import (
	"fmt"
	"io"
	"os"
)

// stdoutName selects standard output as the output sink.
const stdoutName = "-"

// outputSink is where device output of the execute family goes. It is
// owned by one command and must be closed on every exit path.
type outputSink struct {
	w      io.Writer
	closer io.Closer
}

// openOutput opens the sink named by the --output flag. "-" is stdout and
// an empty name discards the output. Files are opened for appending so
// consecutive runs accumulate in one log.
func openOutput(name string, stdout io.Writer) (*outputSink, error) {
	switch name {
	case "":
		return &outputSink{}, nil
	case stdoutName:
		return &outputSink{w: stdout}, nil
	}

	f, err := os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open output: %w", err)
	}
	return &outputSink{w: f, closer: f}, nil
}

// Writer returns the sink, nil when output is discarded.
func (o *outputSink) Writer() io.Writer {
	return o.w
}

// Close closes a file sink. Stdout is left open. Safe to call twice.
func (o *outputSink) Close() error {
	if o.closer == nil {
		return nil
	}
	err := o.closer.Close()
	o.closer = nil
	return err
}
