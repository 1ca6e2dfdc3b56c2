package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hochfrequenz/checklist-orch/internal/config"
	"github.com/hochfrequenz/checklist-orch/internal/ctxlog"
	"github.com/hochfrequenz/checklist-orch/internal/observability"
)

var (
	configPath string
	verbose    bool
	logFormat  string

	// set in PersistentPreRunE
	fileCfg        *config.File
	logger         *slog.Logger
	rollbarEnabled bool
	flushRollbar   = func() {}

	rootCmd = &cobra.Command{
		Use:   "checklist-orch",
		Short: "Checklist Orchestrator - run verification checklists through coding agents",
		Long: `Checklist Orchestrator reads a tiered checklist of verification items and
hands each item to an external coding agent (claude or opencode), running a
bounded number of agents in parallel and reporting which items passed.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: setup,
	}
)

// exitError carries a process exit code without an error message
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging and progress reports")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format: text or json")
}

func setup(cmd *cobra.Command, args []string) error {
	level := "info"
	if verbose {
		level = "debug"
	}
	logger = newLogger(level, logFormat, cmd.ErrOrStderr())
	slog.SetDefault(logger)

	cfg, path, err := config.LoadWithLocalFallback(configPath)
	if err != nil {
		return err
	}
	logger.Debug("configuration loaded", "path", path)
	fileCfg = cfg

	rollbarEnabled, flushRollbar = observability.SetupRollbar(logger)
	cmd.SetContext(ctxlog.WithLogger(cmd.Context(), logger))
	return nil
}

// newLogger creates a logger without touching the global default
func newLogger(levelStr, formatStr string, outW io.Writer) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if formatStr == "json" {
		handler = slog.NewJSONHandler(outW, handlerOpts)
	} else {
		handler = slog.NewTextHandler(outW, handlerOpts)
	}
	return slog.New(handler)
}

func main() {
	os.Exit(execute())
}

func execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer func() { flushRollbar() }()

	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		return 0
	}

	var exit *exitError
	if errors.As(err, &exit) {
		return exit.code
	}
	fmt.Fprintln(os.Stderr, "Error:", err)
	return 1
}
