package espprotocol

import (
	"bytes"
	"context"
	"strings"
)

// Submit runs lines as one paste-mode unit and returns the captured output.
//
// The transaction is: Ctrl-E, confirm banner, every line followed by CR LF
// (each echo verified before the next line goes out), Ctrl-D, read until the
// prompt. Output containing a fault marker at the start of a line fails with
// *RemoteExecutionError; the Response is returned alongside so callers can
// inspect it.
func (s *Session) Submit(ctx context.Context, lines []string) (Response, error) {
	if err := s.Push(ctx, lines); err != nil {
		return Response{}, err
	}

	m, err := s.scanner.ReadUntil(ctx, s.opts.Timeout, []byte(Prompt))
	if err != nil {
		return Response{Raw: m.Data}, err
	}
	if !m.Matched() {
		return Response{Raw: m.Data}, &ProtocolError{Stage: "prompt", Output: m.Data, Err: ErrTimeout}
	}

	resp := newResponse(m.Data, stripEcho(m.Data, len(lines) > 0))
	if marker, ok := resp.fault(s.opts.FaultMarkers); ok {
		return resp, &RemoteExecutionError{Marker: marker, Output: resp.Output}
	}
	return resp, nil
}

// Push enters paste mode, sends lines and finishes with Ctrl-D without
// waiting for the result. The device starts executing immediately; the
// caller reads its output from the Scanner.
//
// Each line is sent only after the echo of the previous one came back, which
// keeps the device's small receive buffer from overflowing and checks the
// echo byte for byte.
func (s *Session) Push(ctx context.Context, lines []string) error {
	for _, line := range lines {
		if err := validateLine(line); err != nil {
			return err
		}
	}

	if err := s.write([]byte{CtrlE}); err != nil {
		return err
	}
	m, err := s.scanner.ReadUntil(ctx, s.opts.Timeout, []byte(PasteBanner))
	if err != nil {
		return err
	}
	if !m.Matched() {
		return &ProtocolError{Stage: "paste banner", Output: m.Data, Err: ErrNoPasteBanner}
	}

	s.log.WithField("lines", len(lines)).Debug("paste: sending")
	for i, line := range lines {
		if err := s.write([]byte(line + EOL)); err != nil {
			return err
		}
		m, err := s.scanner.ReadUntil(ctx, s.opts.Timeout, []byte(PasteContinuation))
		if err != nil {
			return err
		}
		if !m.Matched() {
			return &ProtocolError{Stage: "echo", Output: m.Data, Err: ErrTimeout}
		}
		// The line feed of the previous line is echoed after its
		// continuation marker.
		echo := m.Data
		if i > 0 {
			echo = bytes.TrimPrefix(echo, []byte("\n"))
		}
		if string(echo) != line {
			return &ProtocolError{Stage: "echo", Output: m.Data, Err: ErrUnexpectedEcho}
		}
	}

	return s.write([]byte{CtrlD})
}

// SplitSource splits program text into paste-mode lines. Line endings are
// normalised and a trailing newline does not produce an empty last line.
func SplitSource(source string) []string {
	source = strings.ReplaceAll(source, "\r\n", "\n")
	source = strings.ReplaceAll(source, "\r", "\n")
	source = strings.TrimSuffix(source, "\n")
	if source == "" {
		return nil
	}
	return strings.Split(source, "\n")
}

// stripEcho drops what is left of the echo once the prompt is back: the line
// feed of the last line, then the line break that acknowledges Ctrl-D.
func stripEcho(data []byte, sentLines bool) string {
	if sentLines {
		data = bytes.TrimPrefix(data, []byte("\n"))
	}
	data = bytes.TrimPrefix(data, []byte(EOL))
	return string(data)
}

// validateLine rejects bytes that paste mode would interpret as control
// input. Tabs are allowed.
func validateLine(line string) error {
	for i := 0; i < len(line); i++ {
		c := line[i]
		if c == '\t' {
			continue
		}
		if c < 0x20 || c == 0x7f {
			return &ProtocolError{Stage: "encode", Output: []byte(line), Err: ErrInvalidLine}
		}
	}
	return nil
}
