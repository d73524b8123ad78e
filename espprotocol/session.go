package espprotocol

import (
	"context"
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"go.bug.st/serial"
)

// Port is the duplex byte channel to the device with control-line access.
// go.bug.st/serial ports satisfy it; tests use a synthetic device.
//
// Read must return (0, nil) when the read timeout expires without data.
type Port interface {
	io.ReadWriteCloser
	SetDTR(dtr bool) error
	SetRTS(rts bool) error
	SetReadTimeout(t time.Duration) error
	ResetInputBuffer() error
}

// Options configures a Session.
type Options struct {
	// BaudRate is the serial speed used by Open.
	BaudRate int

	// Timeout bounds every wait for the prompt. Non-positive means infinite.
	Timeout time.Duration

	// ResetHold is how long the reset line is held. Values below
	// MinResetHold are raised to it.
	ResetHold time.Duration

	// HoldDTR asserts DTR together with RTS during reset. On the usual
	// ESP32 auto-reset circuit DTR high with RTS low pulls IO0 low, so the
	// board boots into its ROM loader; leave it off for such boards.
	HoldDTR bool

	// PollInterval is the port read timeout.
	PollInterval time.Duration

	// FaultMarkers are line prefixes that mark a remote exception.
	FaultMarkers []string

	// Mirror receives a copy of every byte read from the device.
	Mirror io.Writer

	// Logger receives protocol traces. Defaults to the logrus standard logger.
	Logger logrus.FieldLogger
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		BaudRate:     DefaultBaudRate,
		Timeout:      DefaultTimeout,
		ResetHold:    MinResetHold,
		PollInterval: DefaultPollInterval,
		FaultMarkers: []string{DefaultFaultMarker},
	}
}

func (o Options) withDefaults() Options {
	if o.BaudRate <= 0 {
		o.BaudRate = DefaultBaudRate
	}
	if o.ResetHold < MinResetHold {
		o.ResetHold = MinResetHold
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.FaultMarkers == nil {
		o.FaultMarkers = []string{DefaultFaultMarker}
	}
	if o.Logger == nil {
		o.Logger = logrus.StandardLogger()
	}
	return o
}

// Session is an open channel to one device. It is owned by a single command
// invocation and is not safe for concurrent use.
type Session struct {
	port    Port
	name    string
	opts    Options
	scanner *Scanner
	log     logrus.FieldLogger

	// generation is bumped on every successful reset; device-side state
	// defined by earlier transactions is gone after a reset.
	generation uint64
	closed     bool

	sleep func(ctx context.Context, d time.Duration) error
}

// Open opens the named serial port and wraps it in a Session.
// The port is not reset; call Reset before the first transaction.
func Open(name string, opts Options) (*Session, error) {
	opts = opts.withDefaults()

	port, err := serial.Open(name, &serial.Mode{BaudRate: opts.BaudRate})
	if err != nil {
		return nil, NewConnectionError("failed to open "+name, err)
	}

	session, err := NewSession(port, opts)
	if err != nil {
		port.Close()
		return nil, err
	}
	session.name = name
	return session, nil
}

// NewSession wraps an already open port.
func NewSession(port Port, opts Options) (*Session, error) {
	opts = opts.withDefaults()

	if err := port.SetReadTimeout(opts.PollInterval); err != nil {
		return nil, NewConnectionError("failed to set read timeout", err)
	}

	scanner := NewScanner(port)
	scanner.SetMirror(opts.Mirror)

	return &Session{
		port:    port,
		opts:    opts,
		scanner: scanner,
		log:     opts.Logger,
		sleep:   sleepContext,
	}, nil
}

// Name returns the port name given to Open.
func (s *Session) Name() string {
	return s.name
}

// Timeout returns the configured prompt timeout.
func (s *Session) Timeout() time.Duration {
	return s.opts.Timeout
}

// PollInterval returns the port read timeout.
func (s *Session) PollInterval() time.Duration {
	return s.opts.PollInterval
}

// Generation returns the number of successful resets so far.
func (s *Session) Generation() uint64 {
	return s.generation
}

// Scanner returns the session's scanner for streaming reads.
func (s *Session) Scanner() *Scanner {
	return s.scanner
}

// SetMirror replaces the output sink.
func (s *Session) SetMirror(w io.Writer) {
	s.opts.Mirror = w
	s.scanner.SetMirror(w)
}

// Mirror returns the output sink, nil if none.
func (s *Session) Mirror() io.Writer {
	return s.opts.Mirror
}

// Close releases the port. It is safe to call more than once.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.port.Close()
}

// Reset hard-resets the device and waits for the interpreter prompt.
//
// RTS (EN low) is asserted and held for at least MinResetHold, then
// released. DTR (IO0) stays released unless Options.HoldDTR is set. Opening
// a port asserts these lines as a side effect on most adapters, so every
// command starts with a reset to bring the device to a known state.
func (s *Session) Reset(ctx context.Context) error {
	if s.closed {
		return ErrClosed
	}

	s.log.WithField("dtr", s.opts.HoldDTR).Debug("reset: asserting RTS")
	if err := s.port.SetDTR(s.opts.HoldDTR); err != nil {
		return NewConnectionError("failed to set DTR", err)
	}
	if err := s.port.SetRTS(true); err != nil {
		return NewConnectionError("failed to set RTS", err)
	}

	if err := s.sleep(ctx, s.opts.ResetHold); err != nil {
		return err
	}

	// Anything received so far predates the reset.
	if err := s.port.ResetInputBuffer(); err != nil {
		return NewConnectionError("failed to flush input", err)
	}
	s.scanner.Discard()

	s.log.Debug("reset: releasing RTS")
	if err := s.port.SetRTS(false); err != nil {
		return NewConnectionError("failed to clear RTS", err)
	}

	m, err := s.scanner.ReadUntil(ctx, s.opts.Timeout, []byte(Prompt))
	if err != nil {
		return err
	}
	if !m.Matched() {
		return &ResetError{Output: m.Data}
	}

	s.generation++
	s.log.WithField("generation", s.generation).Debug("reset: prompt seen")
	return nil
}

// Interrupt sends Ctrl-C twice and waits for the prompt, stopping whatever
// program is running without a hard reset.
func (s *Session) Interrupt(ctx context.Context) error {
	if err := s.write([]byte{CtrlC, CtrlC}); err != nil {
		return err
	}
	m, err := s.scanner.ReadUntil(ctx, s.opts.Timeout, []byte(Prompt))
	if err != nil {
		return err
	}
	if !m.Matched() {
		return &ProtocolError{Stage: "interrupt", Output: m.Data, Err: ErrTimeout}
	}
	return nil
}

// write sends all of data, looping over short writes.
func (s *Session) write(data []byte) error {
	if s.closed {
		return ErrClosed
	}
	for len(data) > 0 {
		n, err := s.port.Write(data)
		if err != nil {
			return NewConnectionError("write failed", err)
		}
		if n == 0 {
			return NewConnectionError("write failed", io.ErrShortWrite)
		}
		data = data[n:]
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
