package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/hochfrequenz/checklist-orch/internal/config"
	"github.com/hochfrequenz/checklist-orch/internal/observability"
)

var (
	runDryRun        bool
	runBatchSize     int
	runMaxIterations int
	runRuntime       string
	runModel         string
	runTimeoutMS     int64
	runRoot          string
	runChecklist     string
	runAgentRes      string
	runMode          string
	runPollInterval  time.Duration
	runIdleTimeout   time.Duration
	runOnlyFailed    bool
	runSkipPassed    bool
	runTiers         []int
	runItems         []string
	runDBPath        string
	runMetricsFile   string
	runNoHistory     bool
)

func init() {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the checklist through the coding agent",
		Long: `Run every pending checklist item through the configured agent runtime.

Items are dispatched in tier order, at most --batch-size at a time, and never
more than --max-iterations in total. The exit code is non-zero if any item
failed or the run was interrupted.

Examples:
  # Preview what would run
  checklist-orch run --dry-run

  # Run tier 1 only with claude, three agents at a time
  checklist-orch run --tier 1 -r claude-code -b 3

  # Retry the items that failed last time
  checklist-orch run --only-failed`,
		Args: cobra.NoArgs,
		RunE: runRun,
	}

	f := runCmd.Flags()
	f.BoolVar(&runDryRun, "dry-run", false, "show what would be dispatched without running agents")
	f.IntVarP(&runBatchSize, "batch-size", "b", config.DefaultBatchSize, "maximum concurrent agent invocations")
	f.IntVar(&runMaxIterations, "max-iterations", config.DefaultMaxIterations, "maximum number of items dispatched in this run")
	f.StringVarP(&runRuntime, "runtime", "r", "", "agent runtime: claude-code or opencode")
	f.StringVar(&runModel, "model", "", "model passed to the agent (default depends on runtime)")
	f.Int64Var(&runTimeoutMS, "timeout", config.DefaultTimeout.Milliseconds(), "per-item timeout in milliseconds")
	f.StringVar(&runRoot, "root", "", "project root (default: current directory)")
	f.StringVar(&runChecklist, "checklist", "", "checklist file, relative to the root (default: checklist.md)")
	f.StringVar(&runAgentRes, "agent-resources", "", "agent resources directory, relative to the root (default: agent-resources)")
	f.StringVar(&runMode, "mode", "", "processing mode: finite or continuous")
	f.DurationVar(&runPollInterval, "poll-interval", config.DefaultPollInterval, "checklist poll interval in continuous mode")
	f.DurationVar(&runIdleTimeout, "idle-timeout", 0, "stop continuous mode after this long without new items (0 = never)")
	f.BoolVar(&runOnlyFailed, "only-failed", false, "run only the items that failed in the latest recorded run")
	f.BoolVar(&runSkipPassed, "skip-passed", false, "skip items already marked passed in the checklist or history")
	f.IntSliceVar(&runTiers, "tier", nil, "run only these tier numbers (repeatable)")
	f.StringSliceVar(&runItems, "item", nil, "run only these item IDs (repeatable)")
	f.StringVar(&runDBPath, "db", "", "run history database (default from config)")
	f.StringVar(&runMetricsFile, "metrics-file", "", "write Prometheus textfile metrics here")
	f.BoolVar(&runNoHistory, "no-history", false, "do not record this run in the history database")

	rootCmd.AddCommand(runCmd)
}

// runOptionsFromFlags layers explicitly set flags over the config file
func runOptionsFromFlags(cmd *cobra.Command, file *config.File) (config.RunOptions, error) {
	opts, err := file.RunOptions()
	if err != nil {
		return config.RunOptions{}, err
	}

	f := cmd.Flags()
	if f.Changed("root") {
		opts.Root = runRoot
	}
	if opts.Root == "" {
		opts.Root = "."
	}
	if f.Changed("checklist") {
		opts.ChecklistPath = runChecklist
	}
	if f.Changed("agent-resources") {
		opts.AgentResourcesDir = runAgentRes
	}
	if f.Changed("runtime") {
		opts.Runtime = runRuntime
		// a model configured for another runtime rarely makes sense
		if !f.Changed("model") {
			opts.Model = ""
		}
	}
	if f.Changed("model") {
		opts.Model = runModel
	}
	if f.Changed("timeout") {
		opts.Timeout = time.Duration(runTimeoutMS) * time.Millisecond
	}
	if f.Changed("batch-size") {
		opts.BatchSize = runBatchSize
	}
	if f.Changed("max-iterations") {
		opts.MaxIterations = runMaxIterations
	}
	if f.Changed("mode") {
		opts.Mode = runMode
	}
	if f.Changed("poll-interval") || opts.PollInterval == 0 {
		opts.PollInterval = runPollInterval
	}
	if f.Changed("idle-timeout") {
		opts.IdleTimeout = runIdleTimeout
	}
	opts.DryRun = runDryRun
	opts.Verbose = verbose
	return opts, nil
}

func runRun(cmd *cobra.Command, args []string) error {
	defer observability.CapturePanic(logger, rollbarEnabled)()

	opts, err := runOptionsFromFlags(cmd, fileCfg)
	if err != nil {
		return err
	}
	runCfg, err := config.NewRunConfig(opts)
	if err != nil {
		return err
	}

	dbPath := fileCfg.Store.DatabasePath
	if cmd.Flags().Changed("db") {
		dbPath = config.ExpandPath(runDBPath)
	}
	if runNoHistory {
		dbPath = ""
	}
	metricsPath := fileCfg.Metrics.TextfilePath
	if cmd.Flags().Changed("metrics-file") {
		metricsPath = config.ExpandPath(runMetricsFile)
	}

	p := &pass{
		cfg:         runCfg,
		dbPath:      dbPath,
		metricsPath: metricsPath,
		notifier:    notifierFromConfig(fileCfg),
		reporter:    observability.NewReporter(rollbarEnabled),
		logger:      logger,
		out:         cmd.OutOrStdout(),
		selection: selection{
			tiers:      runTiers,
			items:      runItems,
			onlyFailed: runOnlyFailed,
			skipPassed: runSkipPassed,
		},
	}

	report, err := p.execute(cmd.Context())
	if err != nil {
		return err
	}
	if report.RunID == "" {
		// nothing was selected
		return nil
	}

	renderReport(cmd.OutOrStdout(), report, p.usage)

	switch {
	case report.Cancelled:
		fmt.Fprintln(cmd.ErrOrStderr(), "run interrupted")
		return &exitError{code: 130}
	case report.ExitCode() != 0:
		return &exitError{code: report.ExitCode()}
	}
	return nil
}
