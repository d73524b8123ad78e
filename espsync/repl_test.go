package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/nagylzs/espsyncer/espprotocol"
	"github.com/nagylzs/espsyncer/esptest"
)

// scriptedInput feeds fixed lines to the REPL and records the prompts.
type scriptedInput struct {
	lines   []string
	prompts []string
}

func (s *scriptedInput) GetLine(prompt string) (string, error) {
	s.prompts = append(s.prompts, prompt)
	if len(s.lines) == 0 {
		return "", io.EOF
	}
	line := s.lines[0]
	s.lines = s.lines[1:]
	return line, nil
}

// fakeREPLSession answers Submit from a function and counts the other calls.
type fakeREPLSession struct {
	submit     func(lines []string) (espprotocol.Response, error)
	submitted  [][]string
	resets     int
	interrupts int
}

func (f *fakeREPLSession) Reset(context.Context) error {
	f.resets++
	return nil
}

func (f *fakeREPLSession) Submit(_ context.Context, lines []string) (espprotocol.Response, error) {
	f.submitted = append(f.submitted, lines)
	if f.submit == nil {
		return espprotocol.Response{}, nil
	}
	return f.submit(lines)
}

func (f *fakeREPLSession) Interrupt(context.Context) error {
	f.interrupts++
	return nil
}

func quietLog() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// =============================================================================
// Statement Reading
// =============================================================================

func TestReadStatementSingleLine(t *testing.T) {
	in := &scriptedInput{lines: []string{"x = 1"}}
	lines, err := readStatement(in)
	if err != nil || len(lines) != 1 || lines[0] != "x = 1" {
		t.Errorf("readStatement() = %q, %v", lines, err)
	}
}

func TestReadStatementBlock(t *testing.T) {
	in := &scriptedInput{lines: []string{"for i in range(2):", "    print(i)", "", "after"}}
	lines, err := readStatement(in)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"for i in range(2):", "    print(i)"}
	if strings.Join(lines, "|") != strings.Join(want, "|") {
		t.Errorf("readStatement() = %q, want %q", lines, want)
	}
	wantPrompts := []string{primaryPrompt, continuationPrompt, continuationPrompt}
	if strings.Join(in.prompts, "|") != strings.Join(wantPrompts, "|") {
		t.Errorf("prompts = %q, want %q", in.prompts, wantPrompts)
	}
}

func TestReadStatementBlockEndsAtEOF(t *testing.T) {
	in := &scriptedInput{lines: []string{"def f():", "    return 1"}}
	lines, err := readStatement(in)
	if err != nil || len(lines) != 2 {
		t.Errorf("readStatement() = %q, %v", lines, err)
	}
}

func TestReadStatementBlankLine(t *testing.T) {
	in := &scriptedInput{lines: []string{"   "}}
	lines, err := readStatement(in)
	if err != nil || lines != nil {
		t.Errorf("readStatement() = %q, %v, want nothing", lines, err)
	}
}

// =============================================================================
// REPL Loop
// =============================================================================

func TestREPLPrintsOutput(t *testing.T) {
	s := &fakeREPLSession{submit: func(lines []string) (espprotocol.Response, error) {
		return espprotocol.Response{Output: "12"}, nil
	}}
	in := &scriptedInput{lines: []string{"print(12)"}}
	var out bytes.Buffer

	if err := runREPL(context.Background(), s, in, &out, quietLog()); err != nil {
		t.Fatal(err)
	}
	if out.String() != "12\n\n" {
		t.Errorf("output = %q", out.String())
	}
	if len(s.submitted) != 1 || s.submitted[0][0] != "print(12)" {
		t.Errorf("submitted = %q", s.submitted)
	}
}

func TestREPLKeepsGoingAfterRemoteError(t *testing.T) {
	traceback := "Traceback (most recent call last):\n  File \"<stdin>\", line 1\nNameError: name 'x' isn't defined\n"
	s := &fakeREPLSession{submit: func(lines []string) (espprotocol.Response, error) {
		if lines[0] == "x" {
			resp := espprotocol.Response{Output: traceback}
			return resp, &espprotocol.RemoteExecutionError{Marker: espprotocol.DefaultFaultMarker, Output: traceback}
		}
		return espprotocol.Response{Output: "ok\n"}, nil
	}}
	in := &scriptedInput{lines: []string{"x", "print('ok')"}}
	var out bytes.Buffer

	if err := runREPL(context.Background(), s, in, &out, quietLog()); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "NameError") || !strings.Contains(out.String(), "ok\n") {
		t.Errorf("output = %q", out.String())
	}
}

func TestREPLInterruptsOnTimeout(t *testing.T) {
	s := &fakeREPLSession{submit: func(lines []string) (espprotocol.Response, error) {
		return espprotocol.Response{Raw: []byte("working\r\n")},
			&espprotocol.ProtocolError{Stage: "prompt", Err: espprotocol.ErrTimeout}
	}}
	in := &scriptedInput{lines: []string{"while True: pass"}}
	var out bytes.Buffer

	if err := runREPL(context.Background(), s, in, &out, quietLog()); err != nil {
		t.Fatal(err)
	}
	if s.interrupts != 1 {
		t.Errorf("interrupts = %d, want 1", s.interrupts)
	}
	if !strings.Contains(out.String(), "working\nInterrupted.\n") {
		t.Errorf("output = %q", out.String())
	}
}

func TestREPLStopsOnConnectionError(t *testing.T) {
	lost := espprotocol.NewConnectionError("read failed", io.ErrUnexpectedEOF)
	s := &fakeREPLSession{submit: func([]string) (espprotocol.Response, error) {
		return espprotocol.Response{}, lost
	}}
	in := &scriptedInput{lines: []string{"1", "2"}}

	err := runREPL(context.Background(), s, in, io.Discard, quietLog())
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("err = %v, want the connection error", err)
	}
	if len(s.submitted) != 1 {
		t.Errorf("submitted %d statements after the connection was lost", len(s.submitted))
	}
}

func TestREPLDotCommands(t *testing.T) {
	s := &fakeREPLSession{}
	in := &scriptedInput{lines: []string{".help", ".help .reset", ".reset", ".bogus", ".quit", "print(1)"}}
	var out bytes.Buffer

	if err := runREPL(context.Background(), s, in, &out, quietLog()); err != nil {
		t.Fatal(err)
	}
	if s.resets != 1 {
		t.Errorf("resets = %d, want 1", s.resets)
	}
	if len(s.submitted) != 0 {
		t.Errorf("statements after .quit were run: %q", s.submitted)
	}
	for _, want := range []string{"Local Commands:", "Hard-reset the device.", "Device reset.", "Unknown command '.bogus'"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output does not contain %q:\n%s", want, out.String())
		}
	}
}

func TestREPLOnDevice(t *testing.T) {
	dev := esptest.NewDevice()
	dev.PowerOn()
	opts := espprotocol.DefaultOptions()
	opts.Logger = quietLog()
	s, err := espprotocol.NewSession(dev, opts)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	in := &scriptedInput{lines: []string{"print('hello')", "nope", "print(2)"}}
	var out bytes.Buffer
	if err := runREPL(context.Background(), s, in, &out, quietLog()); err != nil {
		t.Fatal(err)
	}

	got := out.String()
	for _, want := range []string{"hello\n", "NameError: name 'nope' isn't defined", "2\n"} {
		if !strings.Contains(got, want) {
			t.Errorf("output does not contain %q:\n%s", want, got)
		}
	}
}

func TestPrintHelpUnknownTopic(t *testing.T) {
	var out bytes.Buffer
	printHelp(&out, "flash")
	if !strings.Contains(out.String(), "No help for 'flash'") {
		t.Errorf("output = %q", out.String())
	}
}
