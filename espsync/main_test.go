package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/nagylzs/espsyncer/espexec"
	"github.com/nagylzs/espsyncer/espfs"
	"github.com/nagylzs/espsyncer/espprotocol"
	"github.com/nagylzs/espsyncer/esptest"
)

// =============================================================================
// Test Harness
// =============================================================================

// sharedDevice lets every command of a test dial the same board. Each
// command closes its session; the board itself stays connected.
type sharedDevice struct {
	*esptest.Device
}

func (sharedDevice) Close() error { return nil }

// newTestApp returns an app wired to a synthetic device and an in-memory
// host filesystem holding /work.
func newTestApp(t *testing.T) (*app, *esptest.Device, afero.Fs) {
	t.Helper()
	t.Setenv("ESP_PORT", "")

	dev := esptest.NewDevice()
	host := afero.NewMemMapFs()
	if err := host.MkdirAll("/work", 0o755); err != nil {
		t.Fatal(err)
	}

	a := newApp()
	a.local = espfs.NewLocal(host)
	a.dial = func(cfg *Config, log logrus.FieldLogger) (*espprotocol.Session, error) {
		opts := cfg.SessionOptions(log)
		opts.PollInterval = 2 * time.Millisecond
		return espprotocol.NewSession(sharedDevice{dev}, opts)
	}
	return a, dev, host
}

// runCLI executes the command line and returns what went to stdout.
func runCLI(t *testing.T, a *app, args ...string) (string, error) {
	t.Helper()
	root := newRootCommand(a)
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return stdout.String(), err
}

// =============================================================================
// Listing
// =============================================================================

func TestListRoot(t *testing.T) {
	a, dev, _ := newTestApp(t)
	dev.FS.WriteFile("/webrepl_cfg.py", []byte("PASS = 'x'\n"))
	dev.FS.WriteFile("/boot.py", []byte("# boot\n"))

	got, err := runCLI(t, a, "ls", "/")
	if err != nil {
		t.Fatalf("ls: %v", err)
	}
	if want := "boot.py\nwebrepl_cfg.py\n"; got != want {
		t.Errorf("ls / = %q, want %q", got, want)
	}
	if dev.Resets() != 1 {
		t.Errorf("device resets = %d, want 1", dev.Resets())
	}
}

func TestListLong(t *testing.T) {
	a, dev, _ := newTestApp(t)
	dev.FS.WriteFile("/main.py", []byte("print(1)\n"))
	dev.FS.MkdirAll("/lib")

	got, err := runCLI(t, a, "lsl", "/")
	if err != nil {
		t.Fatalf("lsl: %v", err)
	}
	if want := "lib/\t0\nmain.py\t9\n"; got != want {
		t.Errorf("lsl / = %q, want %q", got, want)
	}
}

func TestListMissingDirectory(t *testing.T) {
	a, _, _ := newTestApp(t)

	_, err := runCLI(t, a, "ls", "/nope")
	if !espfs.IsNotFound(err) {
		t.Errorf("err = %v, want not found", err)
	}
}

func TestListRequiresPath(t *testing.T) {
	a, dev, _ := newTestApp(t)

	if _, err := runCLI(t, a, "ls"); err == nil {
		t.Error("ls without a path should fail")
	}
	if dev.Resets() != 0 {
		t.Error("argument errors must not touch the device")
	}
}

func TestCommandsReuseDevice(t *testing.T) {
	a, dev, _ := newTestApp(t)
	dev.FS.WriteFile("/main.py", []byte("print(1)\n"))

	for i := range 3 {
		got, err := runCLI(t, a, "ls", "/")
		if err != nil {
			t.Fatalf("ls #%d: %v", i+1, err)
		}
		if got != "main.py\n" {
			t.Errorf("ls #%d = %q", i+1, got)
		}
	}
	if dev.Resets() != 3 {
		t.Errorf("device resets = %d, want one per command", dev.Resets())
	}
}

// =============================================================================
// Filesystem Commands
// =============================================================================

func TestPathCommands(t *testing.T) {
	a, dev, _ := newTestApp(t)
	dev.FS.WriteFile("/old/a.py", []byte("a"))
	dev.FS.WriteFile("/junk.txt", []byte("x"))

	steps := [][]string{
		{"mkdir", "/lib"},
		{"makedirs", "/data/logs/2024"},
		{"rm", "/junk.txt"},
		{"rmtree", "/old"},
	}
	for _, args := range steps {
		if _, err := runCLI(t, a, args...); err != nil {
			t.Fatalf("%v: %v", args, err)
		}
	}

	want := []string{"/data", "/data/logs", "/data/logs/2024", "/lib"}
	if got := dev.FS.Paths(); strings.Join(got, " ") != strings.Join(want, " ") {
		t.Errorf("device paths = %v, want %v", got, want)
	}
}

func TestUploadAndDownload(t *testing.T) {
	a, dev, host := newTestApp(t)
	afero.WriteFile(host, "/work/app/main.py", []byte("print('hi')\n"), 0o644)

	if _, err := runCLI(t, a, "upload", "/work/app", "/"); err != nil {
		t.Fatalf("upload: %v", err)
	}
	data, ok := dev.FS.ReadFile("/app/main.py")
	if !ok || string(data) != "print('hi')\n" {
		t.Fatalf("device /app/main.py = %q, %v", data, ok)
	}

	// A second upload conflicts unless overwriting.
	_, err := runCLI(t, a, "upload", "/work/app", "/")
	if !errors.Is(err, espfs.ErrTransferAborted) {
		t.Fatalf("second upload err = %v, want transfer aborted", err)
	}
	if _, err := runCLI(t, a, "-o", "upload", "/work/app", "/"); err != nil {
		t.Fatalf("upload -o: %v", err)
	}

	if err := host.MkdirAll("/work/back", 0o755); err != nil {
		t.Fatal(err)
	}
	if _, err := runCLI(t, a, "-c", "download", "/app", "/work/back"); err != nil {
		t.Fatalf("download -c: %v", err)
	}
	got, err := afero.ReadFile(host, "/work/back/main.py")
	if err != nil || string(got) != "print('hi')\n" {
		t.Errorf("downloaded main.py = %q, %v", got, err)
	}
}

// =============================================================================
// Execute Commands
// =============================================================================

func TestExecuteStopOnTerminator(t *testing.T) {
	a, dev, _ := newTestApp(t)

	got, err := runCLI(t, a, "-s", "execute", "print(12)")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(got, "\r\n12\r\n>>> ") {
		t.Errorf("output = %q, want the printed 12 followed by the prompt", got)
	}
	if strings.Contains(got, esptest.BootBanner) {
		t.Error("the reset banner must not reach the output")
	}
	if submitted := dev.Submitted(); len(submitted) != 1 || submitted[0] != "print(12)\n" {
		t.Errorf("device ran %q", submitted)
	}
}

func TestExecuteOutputFile(t *testing.T) {
	a, _, _ := newTestApp(t)
	logPath := filepath.Join(t.TempDir(), "device.log")

	for range 2 {
		got, err := runCLI(t, a, "-s", "--output", logPath, "execute", "print('x')")
		if err != nil {
			t.Fatalf("execute: %v", err)
		}
		if got != "" {
			t.Errorf("stdout = %q, want nothing when output goes to a file", got)
		}
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatal(err)
	}
	if n := strings.Count(string(data), "\r\nx\r\n"); n != 2 {
		t.Errorf("output file holds %d runs, want 2 (appended): %q", n, data)
	}
}

func TestExecuteFile(t *testing.T) {
	a, _, _ := newTestApp(t)
	path := filepath.Join(t.TempDir(), "prog.py")
	if err := os.WriteFile(path, []byte("print('a')\nprint('b')\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := runCLI(t, a, "-s", "execute_file", path)
	if err != nil {
		t.Fatalf("execute_file: %v", err)
	}
	if !strings.Contains(got, "\r\na\r\nb\r\n>>> ") {
		t.Errorf("output = %q", got)
	}
}

func TestExecuteFileFromStdin(t *testing.T) {
	a, dev, _ := newTestApp(t)
	a.newEditor = func() *LineEditor {
		return newPipedEditor(strings.NewReader("print(1)\nprint(2)\n"), &bytes.Buffer{})
	}

	if _, err := runCLI(t, a, "-s", "execute_file", "-"); err != nil {
		t.Fatalf("execute_file -: %v", err)
	}
	if submitted := dev.Submitted(); len(submitted) != 1 || submitted[0] != "print(1)\nprint(2)\n" {
		t.Errorf("device ran %q", submitted)
	}
}

func TestHotReloadRejectsStdin(t *testing.T) {
	a, dev, _ := newTestApp(t)

	_, err := runCLI(t, a, "hot_reload", "-")
	if !errors.Is(err, espexec.ErrStdinNotWatchable) {
		t.Errorf("err = %v, want ErrStdinNotWatchable", err)
	}
	if dev.Resets() != 0 {
		t.Error("the device must not be touched")
	}
}

func TestHotReloadEndsOnTerminator(t *testing.T) {
	a, _, _ := newTestApp(t)
	path := filepath.Join(t.TempDir(), "test.py")
	if err := os.WriteFile(path, []byte("print('a')\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := runCLI(t, a, "-s", "hot_reload", path)
	if err != nil {
		t.Fatalf("hot_reload: %v", err)
	}
	if !strings.Contains(got, "\r\na\r\n>>> ") {
		t.Errorf("output = %q", got)
	}
}

func TestExecuteCancelledIsNotAnError(t *testing.T) {
	a, _, _ := newTestApp(t)
	root := newRootCommand(a)
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"-t", "0", "execute", "print(1)"})

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(time.Second, cancel)
	if err := root.ExecuteContext(ctx); err != nil {
		t.Errorf("cancelled execute returned %v", err)
	}
}

// =============================================================================
// Other Commands
// =============================================================================

func TestVersion(t *testing.T) {
	a, _, _ := newTestApp(t)

	got, err := runCLI(t, a, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(got, appName+" ") {
		t.Errorf("version = %q", got)
	}
}

func TestVerboseReportsElapsedTime(t *testing.T) {
	a, _, _ := newTestApp(t)

	got, err := runCLI(t, a, "-v", "reset")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(got, "Total time elapsed: ") {
		t.Errorf("stdout = %q", got)
	}
}

func TestUnknownCommand(t *testing.T) {
	a, _, _ := newTestApp(t)
	if _, err := runCLI(t, a, "format"); err == nil {
		t.Error("unknown command should fail")
	}
}
