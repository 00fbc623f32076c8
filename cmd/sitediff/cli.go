package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/hpungsan/sitediff/internal/errors"
	"github.com/hpungsan/sitediff/internal/ops"
	"github.com/hpungsan/sitediff/internal/schedule"
	"github.com/hpungsan/sitediff/internal/web"
)

// cliState opens the environment on first use so that help and version
// never touch the base directory.
type cliState struct {
	env      *ops.Env
	closeEnv func()
}

func (s *cliState) open(c *cli.Context) (*ops.Env, error) {
	if s.env != nil {
		return s.env, nil
	}
	baseDir := c.String("home")
	if baseDir == "" {
		d, err := defaultBaseDir()
		if err != nil {
			return nil, err
		}
		baseDir = d
	}
	env, closeEnv, err := openEnv(baseDir, c.App.ErrWriter)
	if err != nil {
		return nil, err
	}
	s.env, s.closeEnv = env, closeEnv
	return env, nil
}

func (s *cliState) close() {
	if s.closeEnv != nil {
		s.closeEnv()
		s.closeEnv = nil
	}
}

// withEnv adapts an action that needs the environment.
func (s *cliState) withEnv(action func(c *cli.Context, env *ops.Env) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		env, err := s.open(c)
		if err != nil {
			return cli.Exit(err.Error(), 1)
		}
		return action(c, env)
	}
}

// newCLIApp creates the CLI application with all commands. A nil env is
// opened from --home on first use.
func newCLIApp(env *ops.Env) *cli.App {
	st := &cliState{env: env}
	app := &cli.App{
		Name:      "sitediff",
		Usage:     "Track web pages and report what changed",
		Version:   Version,
		Writer:    os.Stdout,
		ErrWriter: os.Stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "home",
				EnvVars: []string{"SITEDIFF_HOME"},
				Usage:   "Base directory for snapshots, history and config (default: ~/.sitediff)",
			},
		},
		Commands: []*cli.Command{
			addCmd(st),
			removeCmd(st),
			runCmd(st),
			listCmd(st),
			reconcileCmd(st),
			historyCmd(st),
			exportCmd(st),
			importCmd(st),
			daemonCmd(st),
			uiCmd(st),
		},
		After: func(*cli.Context) error {
			st.close()
			return nil
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// addCmd creates the add command.
func addCmd(st *cliState) *cli.Command {
	return &cli.Command{
		Name:      "add",
		Usage:     "Track a URL, or check it now if already tracked",
		ArgsUsage: "<url>",
		Action: st.withEnv(func(c *cli.Context, env *ops.Env) error {
			output, err := ops.Add(c.Context, env, ops.AddInput{URL: c.Args().First()})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, output)
		}),
	}
}

// removeCmd creates the remove command.
func removeCmd(st *cliState) *cli.Command {
	return &cli.Command{
		Name:      "remove",
		Usage:     "Stop tracking a URL and delete its snapshot",
		ArgsUsage: "<url>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "keep-history", Usage: "Keep recorded checks for the URL"},
		},
		Action: st.withEnv(func(c *cli.Context, env *ops.Env) error {
			output, err := ops.Remove(env, ops.RemoveInput{
				URL:         c.Args().First(),
				KeepHistory: c.Bool("keep-history"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, output)
		}),
	}
}

// runCmd creates the run command.
func runCmd(st *cliState) *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Check every tracked URL once",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "notify", Usage: "Mail changed results (requires smtp config)"},
			&cli.BoolFlag{Name: "digest", Usage: "Mail one digest instead of one message per change (implies --notify)"},
		},
		Action: st.withEnv(func(c *cli.Context, env *ops.Env) error {
			output, err := ops.Run(c.Context, env, ops.RunInput{
				Notify: c.Bool("notify") || c.Bool("digest"),
				Digest: c.Bool("digest"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, output)
		}),
	}
}

// listCmd creates the list command.
func listCmd(st *cliState) *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List tracked URLs with their last check",
		Action: st.withEnv(func(c *cli.Context, env *ops.Env) error {
			output, err := ops.List(env)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, output)
		}),
	}
}

// reconcileCmd creates the reconcile command.
func reconcileCmd(st *cliState) *cli.Command {
	return &cli.Command{
		Name:  "reconcile",
		Usage: "Drop registry entries without a snapshot and snapshots without an entry",
		Action: st.withEnv(func(c *cli.Context, env *ops.Env) error {
			output, err := ops.Reconcile(env)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, output)
		}),
	}
}

// historyCmd creates the history command.
func historyCmd(st *cliState) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "List recorded checks, newest first",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "url", Aliases: []string{"u"}, Usage: "Only checks of this URL"},
			&cli.StringFlag{Name: "id", Usage: "Show one check, including its diff"},
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: ops.DefaultHistoryLimit, Usage: "Maximum items to return"},
			&cli.IntFlag{Name: "offset", Aliases: []string{"o"}, Value: 0, Usage: "Items to skip"},
		},
		Action: st.withEnv(func(c *cli.Context, env *ops.Env) error {
			if id := c.String("id"); id != "" {
				check, err := ops.GetCheck(env, id)
				if err != nil {
					return outputError(err)
				}
				return outputJSON(c, check)
			}

			output, err := ops.History(env, ops.HistoryInput{
				URL:    c.String("url"),
				Limit:  c.Int("limit"),
				Offset: c.Int("offset"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, output)
		}),
	}
}

// exportCmd creates the export command.
func exportCmd(st *cliState) *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Write tracked URLs to a YAML watchlist",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Usage: "Export file path (default: ~/.sitediff/exports/watchlist-<timestamp>.yaml)"},
		},
		Action: st.withEnv(func(c *cli.Context, env *ops.Env) error {
			output, err := ops.Export(env, ops.ExportInput{Path: c.String("path")})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, output)
		}),
	}
}

// importCmd creates the import command.
func importCmd(st *cliState) *cli.Command {
	return &cli.Command{
		Name:  "import",
		Usage: "Track every URL of a YAML watchlist",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Required: true, Usage: "Import file path"},
		},
		Action: st.withEnv(func(c *cli.Context, env *ops.Env) error {
			output, err := ops.Import(c.Context, env, ops.ImportInput{Path: c.String("path")})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, output)
		}),
	}
}

// daemonCmd creates the daemon command.
func daemonCmd(st *cliState) *cli.Command {
	return &cli.Command{
		Name:  "daemon",
		Usage: "Check every tracked URL on a cron schedule and mail changes",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "schedule", Aliases: []string{"s"}, Usage: "Cron expression (default: config schedule)"},
			&cli.BoolFlag{Name: "digest", Usage: "Mail one digest per run instead of one message per change"},
		},
		Action: st.withEnv(func(c *cli.Context, env *ops.Env) error {
			expr := c.String("schedule")
			if expr == "" {
				expr = env.Config.Schedule
			}
			if env.Notifier == nil {
				env.Log.Warn().Msg("smtp is not configured; changes will only be recorded")
			}

			runner, err := schedule.New(expr, runJob(env, c.Bool("digest")), env.Log)
			if err != nil {
				return outputError(err)
			}

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := runner.Run(ctx); err != nil {
				return outputError(err)
			}
			return nil
		}),
	}
}

// runJob is one scheduled batch. A held run lock skips the tick.
func runJob(env *ops.Env, digest bool) schedule.Job {
	return func(ctx context.Context) error {
		output, err := ops.Run(ctx, env, ops.RunInput{Notify: true, Digest: digest})
		if errors.Is(err, errors.ErrLocked) {
			env.Log.Warn().Err(err).Msg("previous run still holds the lock, skipping")
			return nil
		}
		if err != nil {
			return err
		}
		if output.NotifyError != "" {
			env.Log.Warn().Str("run_id", output.RunID).Str("error", output.NotifyError).Msg("notification failed")
		}
		return nil
	}
}

// uiCmd creates the ui command.
func uiCmd(st *cliState) *cli.Command {
	return &cli.Command{
		Name:  "ui",
		Usage: "Serve the web UI",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "port", Value: 8787, Usage: "Port to listen on"},
			&cli.StringFlag{Name: "bind", Value: "127.0.0.1", Usage: "Address to bind"},
		},
		Action: st.withEnv(func(c *cli.Context, env *ops.Env) error {
			srv, err := web.NewServer(env, Version, c.String("bind"), c.Int("port"))
			if err != nil {
				return outputError(err)
			}

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := web.Run(ctx, srv, env.Log); err != nil {
				return outputError(err)
			}
			return nil
		}),
	}
}

// Helper functions

// outputJSON writes v to the app's writer as indented JSON.
func outputJSON(c *cli.Context, v any) error {
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	if sErr, ok := errors.As(err); ok {
		return cli.Exit(fmt.Sprintf("[%s] %s", sErr.Code, sErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}
