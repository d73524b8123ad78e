// =============================================================================
// main.go - espsync CLI Entry Point
// =============================================================================
//
// espsync synchronizes files with a MicroPython board and runs code on it,
// using nothing but the interpreter prompt on the serial line.
//
// Usage:
//
//	espsync [flags] ls /
//	espsync -o upload ./lib /lib
//	espsync -s execute "print(12)"
//	espsync hot_reload main.py
//
// Every command that talks to the board opens the port and hard-resets the
// device first, so it always starts from a known state. The port comes
// from --port, ESP_PORT (environment or .env), or the only USB serial
// adapter attached.
//
// =============================================================================

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/nagylzs/espsyncer/espfs"
	"github.com/nagylzs/espsyncer/espprotocol"
)

const (
	// version is reported when the binary carries no module version.
	version = "0.3.0"

	// appName is the binary name.
	appName = "espsync"
)

// dialFunc opens a session to the device described by cfg.
type dialFunc func(cfg *Config, log logrus.FieldLogger) (*espprotocol.Session, error)

// app is the state shared by all commands of one invocation.
type app struct {
	cfg     *Config
	log     *logrus.Logger
	started time.Time

	dial      dialFunc
	local     espfs.Filesystem
	newEditor func() *LineEditor
}

func newApp() *app {
	return &app{
		dial:      dialSerial,
		local:     espfs.NewOSLocal(),
		newEditor: NewLineEditor,
	}
}

// dialSerial opens the configured serial port.
func dialSerial(cfg *Config, log logrus.FieldLogger) (*espprotocol.Session, error) {
	port, err := cfg.ResolvePort()
	if err != nil {
		return nil, err
	}
	log.WithFields(logrus.Fields{"port": port, "baudrate": cfg.BaudRate}).Debug("opening port")
	return espprotocol.Open(port, cfg.SessionOptions(log))
}

// fullTitle returns the application name with version.
func fullTitle() string {
	v := version
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		v = info.Main.Version
	}
	return fmt.Sprintf("%s %s", appName, v)
}

// newRootCommand builds the command tree around a.
func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   appName,
		Short: "Synchronize files and run code on MicroPython devices",
		Long: `Synchronize data between the local computer and MicroPython devices.

All communication goes through the interpreter prompt on the serial line;
nothing has to be installed on the device. Every command resets the device
before it starts.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.preRun,
		PersistentPostRun: a.postRun,
	}

	flags := root.PersistentFlags()
	flags.CountP("verbose", "v", "Be verbose; repeat for protocol traces")
	flags.BoolP("overwrite", "o", false, "Overwrite existing files (upload/download)")
	flags.BoolP("contents", "c", false, "Copy the contents of the source directory instead of the directory itself")
	flags.BoolP("quick", "q", false, "With --overwrite, copy only files whose size differs")
	flags.BoolP("stop-on-terminator", "s", false, "Stop streaming when the prompt returns")
	flags.IntP("baudrate", "b", espprotocol.DefaultBaudRate, "Baud rate")
	flags.IntP("timeout", "t", int(espprotocol.DefaultTimeout/time.Second), "Timeout in seconds; non-positive means infinite")
	flags.StringP("port", "p", "", "Serial port (default $ESP_PORT)")
	flags.String("output", stdoutName, "Where device output goes: a file (appended), '-' for stdout, '' to discard")
	flags.String("config", "", "Config file (default ./espsync.yaml or ~/.config/espsync/espsync.yaml)")

	addCommands(root, a)
	return root
}

// preRun resolves the configuration and sets up logging before any command.
func (a *app) preRun(cmd *cobra.Command, _ []string) error {
	a.started = time.Now()

	verbosity, _ := cmd.Flags().GetCount("verbose")
	a.log = setupLogging(verbosity, cmd.ErrOrStderr())

	configFile, err := cmd.Flags().GetString("config")
	if err != nil {
		return fmt.Errorf("failed to get config flag: %w", err)
	}
	cfg, err := LoadConfig(configFile, cmd.Flags())
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	cfg.Verbosity = verbosity
	a.cfg = cfg
	return nil
}

// postRun reports the total time in verbose mode.
func (a *app) postRun(cmd *cobra.Command, _ []string) {
	if a.cfg != nil && a.cfg.Verbosity > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "Total time elapsed: %.2fs\n", time.Since(a.started).Seconds())
	}
}

// printError prints an error message to stderr.
func printError(message string) {
	fmt.Fprintf(os.Stderr, "Error: %s\n", message)
}

func main() {
	// Ctrl-C cancels the context; streaming commands treat that as a
	// normal end.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := newRootCommand(newApp()).ExecuteContext(ctx)
	stop()
	if err != nil {
		printError(err.Error())
		os.Exit(1)
	}
}
