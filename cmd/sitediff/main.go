package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/hpungsan/sitediff/internal/config"
	"github.com/hpungsan/sitediff/internal/db"
	"github.com/hpungsan/sitediff/internal/fetch"
	"github.com/hpungsan/sitediff/internal/mcp"
	"github.com/hpungsan/sitediff/internal/notify"
	"github.com/hpungsan/sitediff/internal/ops"
	"github.com/hpungsan/sitediff/internal/registry"
	"github.com/hpungsan/sitediff/internal/snapshot"
	"github.com/hpungsan/sitediff/internal/tracker"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// cliCommands contains known CLI subcommands.
var cliCommands = map[string]bool{
	"add": true, "remove": true, "run": true, "list": true,
	"reconcile": true, "history": true, "export": true, "import": true,
	"daemon": true, "ui": true,
	"help": true,
}

// isCLIMode determines if we should run CLI vs MCP server.
func isCLIMode(args []string) bool {
	if len(args) < 2 {
		return false
	}
	arg := args[1]
	if cliCommands[arg] {
		return true
	}
	// Global flags come before the subcommand.
	if strings.HasPrefix(arg, "-") {
		return true
	}
	return false
}

// isTerminal returns true if stdin is a terminal (not piped).
func isTerminal() bool {
	stat, _ := os.Stdin.Stat()
	return (stat.Mode() & os.ModeCharDevice) != 0
}

// printBanner displays a friendly banner when run interactively without args.
func printBanner() {
	fmt.Println(`
       _ _              _ _  __  __
   ___(_) |_ ___    __| (_)/ _|/ _|
  / __| | __/ _ \  / _' | | |_| |_
  \__ \ | ||  __/ | (_| | |  _|  _|
  |___/_|\__\___|  \__,_|_|_| |_|

  Track web pages and report what changed

  Usage: sitediff <command> [options]
         sitediff --help

  MCP server mode requires piped input.`)
}

// defaultBaseDir returns $SITEDIFF_HOME, or ~/.sitediff.
func defaultBaseDir() (string, error) {
	if home := os.Getenv("SITEDIFF_HOME"); home != "" {
		return home, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".sitediff"), nil
}

// newLogger writes human-readable lines to w at the named level.
// An unknown level falls back to info.
func newLogger(w io.Writer, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}).
		Level(lvl).
		With().
		Timestamp().
		Logger()
}

// openEnv loads config from baseDir and wires the history database, the
// snapshot store, the fetcher and the optional mail notifier.
func openEnv(baseDir string, logOut io.Writer) (*ops.Env, func(), error) {
	cfg, err := config.Load(baseDir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	log := newLogger(logOut, cfg.LogLevel)

	if unknown := mcp.ValidateDisabledTools(cfg.DisabledTools); len(unknown) > 0 {
		log.Warn().Strs("tools", unknown).Msg("disabled_tools lists unknown tool names")
	}

	database, err := db.Init(baseDir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	db.ConfigurePool(database, cfg)

	fetcher, err := fetch.New(fetch.Config{
		Timeout:   cfg.FetchTimeout(),
		MaxBytes:  cfg.MaxBodyBytes,
		UserAgent: cfg.UserAgent,
		Proxy:     cfg.Proxy,
		Selector:  cfg.Selector,
	})
	if err != nil {
		database.Close()
		return nil, nil, err
	}

	store := snapshot.New(cfg.ResolveSnapshotDir(baseDir))
	reg := registry.New(store, log)

	env := &ops.Env{
		BaseDir: baseDir,
		Config:  cfg,
		DB:      database,
		Tracker: tracker.New(store, reg, fetcher, log),
		Log:     log,
	}
	if cfg.SMTP.Enabled() {
		env.Notifier = notify.New(notify.NewSMTPSender(cfg.SMTP), cfg.SMTP, log)
	}

	return env, func() { database.Close() }, nil
}

func main() {
	// No args + interactive terminal → show banner and exit
	if len(os.Args) < 2 && isTerminal() {
		printBanner()
		return
	}

	if isCLIMode(os.Args) {
		app := newCLIApp(nil)
		if err := app.Run(os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Unknown argument + terminal → show error (don't start MCP server)
	if len(os.Args) >= 2 && isTerminal() {
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n", os.Args[1])
		fmt.Fprintf(os.Stderr, "Run 'sitediff --help' for usage.\n")
		os.Exit(1)
	}

	baseDir, err := defaultBaseDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	env, closeEnv, err := openEnv(baseDir, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer closeEnv()

	// MCP server mode (default). stdout carries the protocol; logs stay on stderr.
	if err := mcp.Run(env, Version); err != nil {
		env.Log.Error().Err(err).Msg("mcp server stopped")
		closeEnv()
		os.Exit(1)
	}
}
