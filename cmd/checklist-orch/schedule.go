package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hochfrequenz/checklist-orch/internal/batch"
	"github.com/hochfrequenz/checklist-orch/internal/config"
	"github.com/hochfrequenz/checklist-orch/internal/observability"
)

func init() {
	scheduleCmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run finite checklist passes on the [[schedule]] entries of the config",
		Long: `Run the checklist on cron schedules until interrupted.

Each [[schedule]] entry in the config file names a five-field cron expression
and an optional max_duration. Every pass behaves like "checklist-orch run"
with the [run] settings of the config; passes of the same entry never overlap.`,
		Args: cobra.NoArgs,
		RunE: runSchedule,
	}
	rootCmd.AddCommand(scheduleCmd)
}

func runSchedule(cmd *cobra.Command, args []string) error {
	configs, err := batch.FromSchedule(fileCfg.Schedule)
	if err != nil {
		return err
	}
	if len(configs) == 0 {
		return fmt.Errorf("no [[schedule]] entries configured")
	}

	opts, err := fileCfg.RunOptions()
	if err != nil {
		return err
	}
	if opts.Root == "" {
		opts.Root = "."
	}
	// scheduled passes always drain and stop
	opts.Mode = string(config.ModeFinite)
	opts.Verbose = verbose
	runCfg, err := config.NewRunConfig(opts)
	if err != nil {
		return err
	}

	sched, err := batch.NewScheduler(configs, batch.WithLogger(logger))
	if err != nil {
		return err
	}

	reporter := observability.NewReporter(rollbarEnabled)
	runPass := func(ctx context.Context, cfg batch.BatchConfig) error {
		p := &pass{
			cfg:         runCfg,
			dbPath:      fileCfg.Store.DatabasePath,
			metricsPath: fileCfg.Metrics.TextfilePath,
			notifier:    notifierFromConfig(fileCfg),
			reporter:    reporter,
			logger:      logger.With("batch", cfg.Name),
			out:         cmd.OutOrStdout(),
		}
		report, err := p.execute(ctx)
		if err != nil {
			reporter.ReportRunError("", err)
			return err
		}
		if report.RunID != "" {
			renderReport(cmd.OutOrStdout(), report, p.usage)
		}
		if report.Failed > 0 {
			return fmt.Errorf("%d of %d items failed", report.Failed, report.Total())
		}
		return nil
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Scheduling %d batches, press Ctrl+C to stop\n", len(configs))
	sched.Start(cmd.Context(), runPass)
	return nil
}
