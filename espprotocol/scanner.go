package espprotocol

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"
)

// Match is the result of Scanner.ReadUntil.
type Match struct {
	// Data holds the bytes preceding the matched pattern, or everything
	// accumulated when no pattern matched before the timeout.
	Data []byte

	// Index is the index of the matched pattern, -1 if none matched.
	Index int
}

// Matched reports whether a pattern was found.
func (m Match) Matched() bool {
	return m.Index >= 0
}

// StreamEnd tells why Scanner.Stream returned.
type StreamEnd int

const (
	// EndTerminator means one of the patterns was seen.
	EndTerminator StreamEnd = iota
	// EndTimeout means the timeout expired without a match.
	EndTimeout
	// EndStopped means OnTick asked to stop.
	EndStopped
)

// String returns a short name for the stream end reason.
func (e StreamEnd) String() string {
	switch e {
	case EndTerminator:
		return "terminator"
	case EndTimeout:
		return "timeout"
	case EndStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// StreamOptions configures Scanner.Stream.
type StreamOptions struct {
	// Patterns end the stream when seen. Empty means stream until timeout.
	Patterns [][]byte

	// Timeout is the wall-clock limit; non-positive means infinite.
	Timeout time.Duration

	// TickInterval is how often OnTick is called.
	TickInterval time.Duration

	// OnTick is polled between reads. Returning stop=true ends the stream
	// with EndStopped; an error ends it with that error.
	OnTick func() (stop bool, err error)
}

// Scanner incrementally reads bytes from the device and matches them
// against prompt and terminator patterns. Bytes following a match are kept
// for the next call. Every byte read is mirrored once to the mirror writer.
type Scanner struct {
	r      io.Reader
	mirror io.Writer
	buf    []byte
	chunk  []byte
	now    func() time.Time
}

// NewScanner creates a scanner reading from r. The reader is expected to
// return (0, nil) when its own read timeout expires, as serial ports do.
func NewScanner(r io.Reader) *Scanner {
	return &Scanner{
		r:     r,
		chunk: make([]byte, readChunkSize),
		now:   time.Now,
	}
}

// SetMirror sets the writer that receives a copy of every byte read.
// A nil writer disables mirroring.
func (s *Scanner) SetMirror(w io.Writer) {
	s.mirror = w
}

// Discard drops any buffered bytes.
func (s *Scanner) Discard() {
	s.buf = s.buf[:0]
}

// Buffered returns the number of bytes read but not yet consumed.
func (s *Scanner) Buffered() int {
	return len(s.buf)
}

// ReadUntil reads until one of the patterns appears or the timeout expires.
//
// A non-positive timeout waits forever. On expiry the accumulated bytes are
// returned with Index -1 and a nil error; the caller decides whether that is
// fatal. Only the newly arrived region (plus a pattern-length overlap) is
// searched after every read.
func (s *Scanner) ReadUntil(ctx context.Context, timeout time.Duration, patterns ...[]byte) (Match, error) {
	started := s.now()
	overlap := max(0, maxLen(patterns)-1)
	searchFrom := 0

	for {
		if idx, at := indexAny(s.buf, searchFrom, patterns); idx >= 0 {
			return Match{Data: s.consume(at, len(patterns[idx])), Index: idx}, nil
		}
		searchFrom = max(0, len(s.buf)-overlap)

		if err := ctx.Err(); err != nil {
			return Match{Data: s.consume(len(s.buf), 0), Index: -1}, err
		}
		if timeout > 0 && s.now().Sub(started) >= timeout {
			return Match{Data: s.consume(len(s.buf), 0), Index: -1}, nil
		}
		if err := s.fill(); err != nil {
			return Match{Data: s.consume(len(s.buf), 0), Index: -1}, err
		}
	}
}

// Stream forwards device output to the mirror until a pattern is seen, the
// timeout expires, OnTick asks to stop or ctx is cancelled. Only a
// pattern-length tail is retained, so it can run indefinitely.
func (s *Scanner) Stream(ctx context.Context, opts StreamOptions) (StreamEnd, error) {
	started := s.now()
	lastTick := started
	keep := max(0, maxLen(opts.Patterns)-1)

	for {
		if idx, at := indexAny(s.buf, 0, opts.Patterns); idx >= 0 {
			s.consume(at, len(opts.Patterns[idx]))
			return EndTerminator, nil
		}
		if len(s.buf) > keep {
			s.buf = append(s.buf[:0], s.buf[len(s.buf)-keep:]...)
		}

		if err := ctx.Err(); err != nil {
			return EndStopped, err
		}
		now := s.now()
		if opts.Timeout > 0 && now.Sub(started) >= opts.Timeout {
			return EndTimeout, nil
		}
		if opts.OnTick != nil && now.Sub(lastTick) >= opts.TickInterval {
			lastTick = now
			stop, err := opts.OnTick()
			if err != nil {
				return EndStopped, err
			}
			if stop {
				return EndStopped, nil
			}
		}
		if err := s.fill(); err != nil {
			return EndStopped, err
		}
	}
}

// fill performs one bounded read and appends the result to the buffer.
func (s *Scanner) fill() error {
	n, err := s.r.Read(s.chunk)
	if n > 0 {
		data := s.chunk[:n]
		if s.mirror != nil {
			if _, werr := s.mirror.Write(data); werr != nil {
				return fmt.Errorf("failed to write output: %w", werr)
			}
		}
		s.buf = append(s.buf, data...)
	}
	if err != nil {
		return NewConnectionError("read failed", err)
	}
	return nil
}

// consume returns a copy of buf[:at] and drops buf[:at+skip].
func (s *Scanner) consume(at, skip int) []byte {
	data := bytes.Clone(s.buf[:at])
	if data == nil {
		data = []byte{}
	}
	rest := s.buf[at+skip:]
	s.buf = append(s.buf[:0], rest...)
	return data
}

// indexAny returns the index of the earliest matching pattern and its
// position in buf, searching from the given offset.
func indexAny(buf []byte, from int, patterns [][]byte) (idx, at int) {
	idx, at = -1, -1
	for i, p := range patterns {
		if len(p) == 0 {
			continue
		}
		pos := bytes.Index(buf[from:], p)
		if pos < 0 {
			continue
		}
		if at < 0 || from+pos < at {
			idx, at = i, from+pos
		}
	}
	return idx, at
}

func maxLen(patterns [][]byte) int {
	n := 0
	for _, p := range patterns {
		n = max(n, len(p))
	}
	return n
}
