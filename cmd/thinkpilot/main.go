// cmd/thinkpilot/main.go
//
// This is the entry point for the thinkpilot CLI.
//
// Flow:
// 1. Resolve the data directory and load config.yaml
// 2. Open the diagnostic log and the session journal
// 3. Build the decomposer and hand it to a fresh board
// 4. Run the requested front-end (TUI by default, web with "serve")

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/sync/errgroup"

	"github.com/kingrea/thinkpilot/internal/config"
	"github.com/kingrea/thinkpilot/internal/decompose"
	"github.com/kingrea/thinkpilot/internal/exitcode"
	"github.com/kingrea/thinkpilot/internal/logbook"
	"github.com/kingrea/thinkpilot/internal/logging"
	"github.com/kingrea/thinkpilot/internal/task"
	"github.com/kingrea/thinkpilot/internal/tui"
	"github.com/kingrea/thinkpilot/internal/version"
	"github.com/kingrea/thinkpilot/internal/web"
)

const usage = `Usage: thinkpilot [command] [flags]

Commands:
  (none)     open the Magic ToDo terminal UI
  serve      serve the landing page and Magic ToDo over HTTP
  log        print recent session journal entries
  version    print the version

Run "thinkpilot <command> -h" for command flags.
`

const sweepInterval = time.Minute

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := ""
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd, args = args[0], args[1:]
	}
	switch cmd {
	case "", "tui":
		return runTUI(ctx, args, stderr)
	case "serve":
		return runServe(ctx, args, stderr)
	case "log":
		return runLog(args, stdout, stderr)
	case "version":
		fmt.Fprintf(stdout, "thinkpilot %s\n", version.Version)
		return exitcode.Success
	case "help":
		fmt.Fprint(stdout, usage)
		return exitcode.Success
	default:
		fmt.Fprintf(stderr, "thinkpilot: unknown command %q\n\n%s", cmd, usage)
		return exitcode.UsageError
	}
}

// parseFlags reports whether the command should stop and with which code.
// -h and --help print usage and succeed.
func parseFlags(fs *flag.FlagSet, args []string) (int, bool) {
	err := fs.Parse(args)
	switch {
	case err == nil:
		return exitcode.Success, false
	case errors.Is(err, flag.ErrHelp):
		return exitcode.Success, true
	default:
		return exitcode.UsageError, true
	}
}

// env is everything a front-end needs once config has been loaded.
type env struct {
	cfg     *config.Config
	logger  *logging.Logger
	journal *logbook.Logbook
}

func (e *env) Close() {
	if e.logger != nil {
		_ = e.logger.Close()
	}
}

func setup(dir string, console io.Writer) (*env, error) {
	if strings.TrimSpace(dir) == "" {
		dir = config.DefaultDir()
	}
	if err := config.InitDir(dir); err != nil {
		return nil, err
	}
	cfg, err := config.Load(dir)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.LogPath(), logging.Options{
		Level:   cfg.Settings.Logging.Level,
		Format:  cfg.Settings.Logging.Format,
		Prefix:  config.AppName,
		Console: console,
	})
	if err != nil {
		return nil, err
	}
	journal, err := logbook.New(cfg.JournalPath())
	if err != nil {
		_ = logger.Close()
		return nil, err
	}
	return &env{cfg: cfg, logger: logger, journal: journal}, nil
}

func (e *env) boardFactory(ctx context.Context) (func() *task.Board, error) {
	d, err := decompose.FromConfig(ctx, e.cfg)
	if err != nil {
		return nil, err
	}
	e.logger.Info("decomposer ready", "kind", e.cfg.Settings.Decomposer.Kind)
	return func() *task.Board {
		return task.NewBoard(task.WithDecomposer(d))
	}, nil
}

func runTUI(ctx context.Context, args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("thinkpilot", flag.ContinueOnError)
	fs.SetOutput(stderr)
	dir := fs.String("dir", "", "data directory (default $THINKPILOT_HOME or ~/.config/thinkpilot)")
	if code, done := parseFlags(fs, args); done {
		return code
	}
	e, err := setup(*dir, nil)
	if err != nil {
		fmt.Fprintf(stderr, "Error loading configuration: %v\n", err)
		return exitcode.UsageError
	}
	defer e.Close()
	newBoard, err := e.boardFactory(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "Error configuring decomposer: %v\n", err)
		return exitcode.UsageError
	}

	app := tui.NewApp(
		tui.WithBoard(newBoard()),
		tui.WithLogbook(e.journal.ForSession("tui")),
		tui.WithLogger(e.logger),
		tui.WithContext(ctx),
	)
	p := tea.NewProgram(app,
		tea.WithAltScreen(), // Use alternate screen buffer (like vim does)
		tea.WithContext(ctx),
	)
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		e.logger.Error("tui exited", "err", err)
		fmt.Fprintf(stderr, "Error running TUI: %v\n", err)
		return exitcode.RuntimeError
	}
	return exitcode.Success
}

func runServe(ctx context.Context, args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	dir := fs.String("dir", "", "data directory (default $THINKPILOT_HOME or ~/.config/thinkpilot)")
	host := fs.String("host", "", "listen host (overrides config)")
	port := fs.Int("port", -1, "listen port, 0 picks a free one (overrides config)")
	if code, done := parseFlags(fs, args); done {
		return code
	}
	e, err := setup(*dir, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Error loading configuration: %v\n", err)
		return exitcode.UsageError
	}
	defer e.Close()
	newBoard, err := e.boardFactory(ctx)
	if err != nil {
		e.logger.Error("decomposer", "err", err)
		return exitcode.UsageError
	}

	settings := web.SettingsFromConfig(e.cfg)
	if *host != "" {
		settings.Host = *host
	}
	if *port >= 0 && *port <= 65535 {
		settings.Port = *port
	}
	srv := web.NewServer(settings,
		web.WithBoardFactory(newBoard),
		web.WithLogger(e.logger),
		web.WithLogbook(e.journal),
	)

	g, gctx := errgroup.WithContext(ctx)
	if err := srv.Start(gctx); err != nil {
		e.logger.Error("start server", "err", err)
		return exitcode.RuntimeError
	}
	e.logger.Info("magic todo ready", "url", srv.BaseURL()+"/todo-pilot")
	g.Go(func() error {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				srv.ExpireSessions()
			}
		}
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		e.logger.Error("shutdown", "err", err)
		return exitcode.RuntimeError
	}
	return exitcode.Success
}

func runLog(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("log", flag.ContinueOnError)
	fs.SetOutput(stderr)
	dir := fs.String("dir", "", "data directory (default $THINKPILOT_HOME or ~/.config/thinkpilot)")
	n := fs.Int("n", 20, "number of entries to show")
	if code, done := parseFlags(fs, args); done {
		return code
	}
	if *n <= 0 {
		fmt.Fprintln(stderr, "thinkpilot: -n must be positive")
		return exitcode.UsageError
	}
	e, err := setup(*dir, nil)
	if err != nil {
		fmt.Fprintf(stderr, "Error loading configuration: %v\n", err)
		return exitcode.UsageError
	}
	defer e.Close()
	lines, total := e.journal.Tail(*n)
	if total == 0 {
		fmt.Fprintln(stdout, "No journal entries yet.")
		return exitcode.Success
	}
	for _, line := range lines {
		fmt.Fprintln(stdout, line)
	}
	if total > len(lines) {
		fmt.Fprintf(stdout, "(showing %d of %d entries)\n", len(lines), total)
	}
	return exitcode.Success
}
