package espexec

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nagylzs/espsyncer/espprotocol"
)

func TestExecuteStopsOnTerminator(t *testing.T) {
	s, _ := runningSession(t)
	var out bytes.Buffer

	end, err := Execute(context.Background(), s, "print(12)", Options{
		Output:           &out,
		StopOnTerminator: true,
		Timeout:          2 * time.Second,
		Logger:           quietLogger(),
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if end != espprotocol.EndTerminator {
		t.Errorf("end = %v, want terminator", end)
	}
	if !strings.Contains(out.String(), "\r\n12\r\n>>> ") {
		t.Errorf("output = %q, want the line 12 followed by the prompt", out.String())
	}
}

func TestExecuteTimeoutIsNotAnError(t *testing.T) {
	s, _ := runningSession(t)
	var out bytes.Buffer

	end, err := Execute(context.Background(), s, "print('x')", Options{
		Output:  &out,
		Timeout: 50 * time.Millisecond,
		Logger:  quietLogger(),
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if end != espprotocol.EndTimeout {
		t.Errorf("end = %v, want timeout", end)
	}
	if !strings.Contains(out.String(), "x\r\n>>> ") {
		t.Errorf("output = %q", out.String())
	}
}

func TestExecuteRestoresMirror(t *testing.T) {
	s, _ := runningSession(t)
	var before, during bytes.Buffer
	s.SetMirror(&before)

	_, err := Execute(context.Background(), s, "print(1)", Options{
		Output:           &during,
		StopOnTerminator: true,
		Timeout:          time.Second,
		Logger:           quietLogger(),
	})
	if err != nil {
		t.Fatal(err)
	}
	if s.Mirror() != &before {
		t.Error("mirror was not restored")
	}
	if before.Len() != 0 {
		t.Errorf("previous sink received %q", before.String())
	}
}

func TestExecuteCancelled(t *testing.T) {
	s, _ := runningSession(t)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := Execute(ctx, s, "print(1)", Options{Logger: quietLogger()})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
}

func TestExecuteFile(t *testing.T) {
	s, dev := runningSession(t)
	path := filepath.Join(t.TempDir(), "main.py")
	if err := os.WriteFile(path, []byte("print('from file')\r\nprint(2)\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer

	_, err := ExecuteFile(context.Background(), s, path, Options{
		Output:           &out,
		StopOnTerminator: true,
		Timeout:          time.Second,
		Logger:           quietLogger(),
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "from file\r\n2\r\n>>> ") {
		t.Errorf("output = %q", out.String())
	}
	submitted := dev.Submitted()
	if got := submitted[len(submitted)-1]; got != "print('from file')\nprint(2)\n" {
		t.Errorf("device received %q", got)
	}
}

func TestExecuteFileMissing(t *testing.T) {
	s, _ := runningSession(t)
	_, err := ExecuteFile(context.Background(), s, filepath.Join(t.TempDir(), "nope.py"), Options{})
	if !os.IsNotExist(err) {
		t.Errorf("err = %v, want not exist", err)
	}
}
