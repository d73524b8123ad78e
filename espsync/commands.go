package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/nagylzs/espsyncer/espexec"
	"github.com/nagylzs/espsyncer/espfs"
	"github.com/nagylzs/espsyncer/espprotocol"
)

// stdinName makes execute_file read the program from standard input.
const stdinName = "-"

func addCommands(root *cobra.Command, a *app) {
	root.AddCommand(
		a.resetCommand(),
		a.listCommand("ls", false),
		a.listCommand("lsl", true),
		a.pathCommand("mkdir", "Create a directory on the device", "MKDIR", (*espfs.Remote).Mkdir),
		a.pathCommand("makedirs", "Create a directory and its parents on the device", "MAKEDIRS", (*espfs.Remote).MakeDirs),
		a.pathCommand("rm", "Remove a file from the device", "RM", (*espfs.Remote).Remove),
		a.pathCommand("rmtree", "Remove a directory tree from the device", "RMTREE", (*espfs.Remote).RemoveTree),
		a.transferCommand("upload", "Copy local files to the device", espfs.Upload, true),
		a.transferCommand("download", "Copy files from the device", espfs.Download, false),
		a.executeCommand(),
		a.executeFileCommand(),
		a.hotReloadCommand(),
		a.portsCommand(),
		a.replCommand(),
		a.versionCommand(),
	)
}

// =============================================================================
// Session Helpers
// =============================================================================

// withSession opens the port, resets the device and runs fn. The port is
// closed on every path.
func (a *app) withSession(cmd *cobra.Command, fn func(ctx context.Context, s *espprotocol.Session) error) error {
	ctx := cmd.Context()

	s, err := a.dial(a.cfg, a.log)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.Reset(ctx); err != nil {
		return fmt.Errorf("reset failed: %w", err)
	}
	return fn(ctx, s)
}

// withRemote is withSession for commands working on the device filesystem.
func (a *app) withRemote(cmd *cobra.Command, fn func(ctx context.Context, r *espfs.Remote) error) error {
	return a.withSession(cmd, func(ctx context.Context, s *espprotocol.Session) error {
		return fn(ctx, espfs.NewRemote(s, a.cfg.RemoteOptions(a.log)))
	})
}

// withOutput is withSession for the execute family: device output goes to
// the --output sink, and cancellation is a normal end.
func (a *app) withOutput(cmd *cobra.Command, fn func(ctx context.Context, s *espprotocol.Session, opts espexec.Options) error) (err error) {
	sink, err := openOutput(a.cfg.Output, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer func() {
		if cerr := sink.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close output: %w", cerr)
		}
	}()

	opts := a.cfg.ExecOptions(a.log)
	opts.Output = sink.Writer()

	err = a.withSession(cmd, func(ctx context.Context, s *espprotocol.Session) error {
		return fn(ctx, s, opts)
	})
	if errors.Is(err, context.Canceled) {
		a.log.Debug("stopped by user")
		return nil
	}
	return err
}

// =============================================================================
// Filesystem Commands
// =============================================================================

func (a *app) resetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Hard-reset the device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withSession(cmd, func(context.Context, *espprotocol.Session) error {
				a.log.Info("RESET")
				return nil
			})
		},
	}
}

// listCommand prints directory entries, one per line. Directory names end
// in "/"; long mode adds the size after a tab.
func (a *app) listCommand(name string, long bool) *cobra.Command {
	short := "List a directory on the device"
	if long {
		short = "List a directory on the device with sizes"
	}
	return &cobra.Command{
		Use:   name + " PATH",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withRemote(cmd, func(ctx context.Context, r *espfs.Remote) error {
				entries, err := r.List(ctx, args[0])
				if err != nil {
					return err
				}
				printEntries(cmd.OutOrStdout(), entries, long)
				return nil
			})
		},
	}
}

func printEntries(w io.Writer, entries []espfs.Entry, long bool) {
	for _, e := range entries {
		name := e.Name
		if e.IsDir {
			name += "/"
		}
		if long {
			fmt.Fprintf(w, "%s\t%d\n", name, e.Size)
		} else {
			fmt.Fprintln(w, name)
		}
	}
}

// pathCommand builds a command applying op to one device path.
func (a *app) pathCommand(name, short, label string, op func(*espfs.Remote, context.Context, string) error) *cobra.Command {
	return &cobra.Command{
		Use:   name + " PATH",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withRemote(cmd, func(ctx context.Context, r *espfs.Remote) error {
				a.log.WithField("path", args[0]).Info(label)
				return op(r, ctx, args[0])
			})
		},
	}
}

// transferFunc is espfs.Upload or espfs.Download.
type transferFunc func(ctx context.Context, src espfs.Filesystem, source string, dst espfs.Filesystem, destination string, opts espfs.TransferOptions) error

func (a *app) transferCommand(name, short string, transfer transferFunc, upload bool) *cobra.Command {
	return &cobra.Command{
		Use:   name + " SOURCE DESTINATION",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withRemote(cmd, func(ctx context.Context, r *espfs.Remote) error {
				opts := a.cfg.TransferOptions(a.log)
				if upload {
					return transfer(ctx, a.local, args[0], r, args[1], opts)
				}
				return transfer(ctx, r, args[0], a.local, args[1], opts)
			})
		},
	}
}

// =============================================================================
// Execute Commands
// =============================================================================

func (a *app) executeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "execute CODE",
		Short: "Run code on the device and stream its output",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withOutput(cmd, func(ctx context.Context, s *espprotocol.Session, opts espexec.Options) error {
				_, err := espexec.Execute(ctx, s, args[0], opts)
				return err
			})
		},
	}
}

func (a *app) executeFileCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "execute_file FILE",
		Aliases: []string{"execute-file"},
		Short:   "Run a local file on the device ('-' reads stdin)",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if args[0] != stdinName {
				return a.withOutput(cmd, func(ctx context.Context, s *espprotocol.Session, opts espexec.Options) error {
					_, err := espexec.ExecuteFile(ctx, s, args[0], opts)
					return err
				})
			}

			// The whole program is read before the device is touched.
			editor := a.newEditor()
			source, err := editor.ReadSource("")
			editor.Close()
			if err != nil {
				return fmt.Errorf("failed to read standard input: %w", err)
			}
			return a.withOutput(cmd, func(ctx context.Context, s *espprotocol.Session, opts espexec.Options) error {
				_, err := espexec.Execute(ctx, s, source, opts)
				return err
			})
		},
	}
}

func (a *app) hotReloadCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "hot_reload FILE",
		Aliases: []string{"hot-reload"},
		Short:   "Run a local file on the device and rerun it on every change",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if args[0] == stdinName {
				return espexec.ErrStdinNotWatchable
			}
			return a.withOutput(cmd, func(ctx context.Context, s *espprotocol.Session, opts espexec.Options) error {
				return espexec.HotReload(ctx, s, args[0], opts)
			})
		},
	}
}

// =============================================================================
// Other Commands
// =============================================================================

func (a *app) portsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ports",
		Short: "List USB serial ports, most recently attached first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ports, err := espprotocol.DiscoverPorts()
			if err != nil {
				return err
			}
			if len(ports) == 0 {
				a.log.Warn("no USB serial ports found")
			}
			for _, port := range ports {
				fmt.Fprintln(cmd.OutOrStdout(), port)
			}
			return nil
		},
	}
}

func (a *app) replCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Type statements into the device interpreter",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			editor := a.newEditor()
			defer editor.Close()

			return a.withSession(cmd, func(ctx context.Context, s *espprotocol.Session) error {
				out := cmd.OutOrStdout()
				if editor.IsInteractive() {
					fmt.Fprintf(out, "%s - connected to %s\nType '.help' for available commands.\n\n", fullTitle(), s.Name())
				}
				return runREPL(ctx, s, editor, out, a.log)
			})
		},
	}
}

func (a *app) versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), fullTitle())
		},
	}
}
