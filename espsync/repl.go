// =============================================================================
// repl.go - Interactive Prompt on the Device
// =============================================================================
//
// The repl command forwards what the user types to the device interpreter,
// one paste-mode transaction per statement, and prints what comes back.
// A line ending in ":" opens a block that is collected with the "... "
// prompt until an empty line, the way the interpreter's own prompt works.
//
// Lines starting with a dot are handled locally:
//
//	.help [topic]   Show help
//	.reset          Hard-reset the device
//	.quit           Leave the REPL
//
// A statement that does not return within the timeout is interrupted with
// Ctrl-C so the prompt comes back without a reset.
//
// =============================================================================

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/nagylzs/espsyncer/espprotocol"
)

const (
	primaryPrompt      = ">>> "
	continuationPrompt = "... "
)

// replSession is the part of *espprotocol.Session the REPL drives.
type replSession interface {
	Reset(ctx context.Context) error
	Submit(ctx context.Context, lines []string) (espprotocol.Response, error)
	Interrupt(ctx context.Context) error
}

// lineReader is satisfied by *LineEditor.
type lineReader interface {
	GetLine(prompt string) (string, error)
}

// replHelp holds the local dot-commands and their help text.
var replHelp = map[string]string{
	"help": `.help [topic]
  Show the list of local commands, or help for one of them.`,
	"reset": `.reset
  Hard-reset the device. Everything defined so far is lost.`,
	"quit": `.quit
  Leave the REPL. Ctrl-D does the same.`,
}

// runREPL reads statements until .quit or end of input.
func runREPL(ctx context.Context, s replSession, in lineReader, out io.Writer, log logrus.FieldLogger) error {
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		lines, err := readStatement(in)
		if err == io.EOF {
			fmt.Fprintln(out)
			return nil
		}
		if err != nil {
			return err
		}
		if len(lines) == 0 {
			continue
		}

		if first := strings.TrimSpace(lines[0]); strings.HasPrefix(first, ".") {
			quit, err := runDotCommand(ctx, s, first, out)
			if err != nil {
				return err
			}
			if quit {
				return nil
			}
			continue
		}

		if err := submitStatement(ctx, s, lines, out, log); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
	}
}

// readStatement reads one line, or a whole block when the line opens one.
func readStatement(in lineReader) ([]string, error) {
	line, err := in.GetLine(primaryPrompt)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(line) == "" {
		return nil, nil
	}

	lines := []string{line}
	if !strings.HasSuffix(strings.TrimRight(line, " \t"), ":") {
		return lines, nil
	}
	for {
		next, err := in.GetLine(continuationPrompt)
		if err == io.EOF {
			return lines, nil
		}
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(next) == "" {
			return lines, nil
		}
		lines = append(lines, next)
	}
}

// submitStatement runs lines on the device and prints the result. Failures
// the user can recover from are printed and swallowed.
func submitStatement(ctx context.Context, s replSession, lines []string, out io.Writer, log logrus.FieldLogger) error {
	resp, err := s.Submit(ctx, lines)

	var remoteErr *espprotocol.RemoteExecutionError
	switch {
	case err == nil, errors.As(err, &remoteErr):
		printOutput(out, resp.Output)
		return nil
	case errors.Is(err, espprotocol.ErrInvalidLine):
		fmt.Fprintf(out, "Error: %v\n", err)
		return nil
	case errors.Is(err, espprotocol.ErrTimeout):
		printOutput(out, strings.ReplaceAll(string(resp.Raw), espprotocol.EOL, "\n"))
		log.WithError(err).Info("statement still running, interrupting")
		if err := s.Interrupt(ctx); err != nil {
			return fmt.Errorf("failed to interrupt: %w", err)
		}
		fmt.Fprintln(out, "Interrupted.")
		return nil
	default:
		return err
	}
}

func printOutput(out io.Writer, text string) {
	if text == "" {
		return
	}
	fmt.Fprint(out, text)
	if !strings.HasSuffix(text, "\n") {
		fmt.Fprintln(out)
	}
}

// runDotCommand handles a local command. It reports whether to quit.
func runDotCommand(ctx context.Context, s replSession, line string, out io.Writer) (bool, error) {
	fields := strings.Fields(line)
	switch strings.ToLower(fields[0]) {
	case ".quit", ".exit":
		return true, nil
	case ".reset":
		if err := s.Reset(ctx); err != nil {
			return false, err
		}
		fmt.Fprintln(out, "Device reset.")
		return false, nil
	case ".help":
		topic := ""
		if len(fields) > 1 {
			topic = fields[1]
		}
		printHelp(out, topic)
		return false, nil
	default:
		fmt.Fprintf(out, "Error: Unknown command '%s'. Type .help to see available commands.\n", fields[0])
		return false, nil
	}
}

// printHelp shows the overview or the help for one topic. A leading dot in
// the topic is ignored.
func printHelp(out io.Writer, topic string) {
	if topic == "" {
		fmt.Fprint(out, `Local Commands:
  .help [topic]     Show help
  .reset            Hard-reset the device
  .quit             Leave the REPL

Anything else is run on the device. A line ending in ':' starts a block
that ends with an empty line.
`)
		return
	}

	key := strings.TrimPrefix(strings.ToLower(topic), ".")
	if text, ok := replHelp[key]; ok {
		fmt.Fprintln(out, text)
		return
	}
	fmt.Fprintf(out, "Error: No help for '%s'. Type .help to see available commands.\n", topic)
}
