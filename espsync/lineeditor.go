// =============================================================================
// lineeditor.go - Line Editor with Dual-Mode Operation
// =============================================================================
//
// The line editor reads program text typed by the user, for the repl
// command and for "execute_file -". It picks its input method from stdin:
//
//   - Interactive mode: ergochat/readline with Emacs keybindings and
//     persistent history in ~/.espsync_history.
//   - Non-interactive mode: bufio.Scanner over piped stdin. Prompts are
//     still printed so comint-style front ends can find them.
//
// Running under Emacs (INSIDE_EMACS set) always selects non-interactive
// mode because Emacs does its own line editing.
//
// =============================================================================

package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ergochat/readline"
	"golang.org/x/term"
)

const (
	// historyFileName is the history file in the user's home directory.
	historyFileName = ".espsync_history"

	// historySize is the maximum number of history entries kept.
	historySize = 500
)

// LineEditor reads lines from the terminal or from piped stdin.
type LineEditor struct {
	// interactive is true when stdin is a TTY outside Emacs.
	interactive bool

	// rl is the readline instance; nil in non-interactive mode.
	rl *readline.Instance

	// scanner reads piped stdin; nil in interactive mode.
	scanner *bufio.Scanner

	// out receives prompts in non-interactive mode.
	out io.Writer
}

// NewLineEditor creates a LineEditor, detecting the mode from stdin.
func NewLineEditor() *LineEditor {
	isInteractive := term.IsTerminal(int(os.Stdin.Fd())) &&
		os.Getenv("INSIDE_EMACS") == ""

	if !isInteractive {
		return newPipedEditor(os.Stdin, os.Stdout)
	}

	rl, err := readline.NewFromConfig(&readline.Config{
		HistoryFile:            filepath.Join(homeDir(), historyFileName),
		HistoryLimit:           historySize,
		DisableAutoSaveHistory: true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: readline init failed (%v), using basic input\n", err)
		return newPipedEditor(os.Stdin, os.Stdout)
	}

	return &LineEditor{
		interactive: true,
		rl:          rl,
	}
}

func newPipedEditor(in io.Reader, out io.Writer) *LineEditor {
	return &LineEditor{
		scanner: bufio.NewScanner(in),
		out:     out,
	}
}

// GetLine reads one line without its line terminator. It returns io.EOF at
// the end of input, and also on Ctrl-C in interactive mode.
func (le *LineEditor) GetLine(prompt string) (string, error) {
	if le.interactive {
		return le.getInteractiveLine(prompt)
	}
	return le.getNonInteractiveLine(prompt)
}

func (le *LineEditor) getInteractiveLine(prompt string) (string, error) {
	le.rl.SetPrompt(prompt)

	line, err := le.rl.Readline()
	if err != nil {
		if err == readline.ErrInterrupt {
			return "", io.EOF
		}
		return "", err
	}

	if trimmed := strings.TrimSpace(line); trimmed != "" {
		le.rl.SaveToHistory(trimmed)
	}
	return line, nil
}

func (le *LineEditor) getNonInteractiveLine(prompt string) (string, error) {
	if prompt != "" {
		fmt.Fprint(le.out, prompt)
	}

	if !le.scanner.Scan() {
		if err := le.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return le.scanner.Text(), nil
}

// ReadSource reads lines until end of input (Ctrl-D on a terminal) and
// returns them as one program text.
func (le *LineEditor) ReadSource(prompt string) (string, error) {
	var b strings.Builder
	for {
		line, err := le.GetLine(prompt)
		if err == io.EOF {
			return b.String(), nil
		}
		if err != nil {
			return "", err
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
}

// Close saves the history and releases the terminal. It is idempotent.
func (le *LineEditor) Close() {
	if le.rl != nil {
		le.rl.Close()
		le.rl = nil
	}
}

// IsInteractive reports whether full line editing is active.
func (le *LineEditor) IsInteractive() bool {
	return le.interactive
}

// homeDir returns the user's home directory, or "." when unknown.
func homeDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return home
	}
	return "."
}
