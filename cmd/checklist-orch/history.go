package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/hochfrequenz/checklist-orch/internal/config"
	"github.com/hochfrequenz/checklist-orch/internal/domain"
)

var historyLimit int

func init() {
	historyCmd := &cobra.Command{
		Use:   "history [RUN_ID]",
		Short: "Show recorded runs, or the items of one run",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runHistory,
	}
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of runs to show (0 = all)")
	historyCmd.Flags().StringVar(&runDBPath, "db", "", "run history database (default from config)")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	dbPath := fileCfg.Store.DatabasePath
	if cmd.Flags().Changed("db") {
		dbPath = config.ExpandPath(runDBPath)
	}
	if dbPath == "" {
		return fmt.Errorf("no run history database configured")
	}
	store, err := openStore(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	out := cmd.OutOrStdout()
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	defer w.Flush()

	if len(args) == 1 {
		items, err := store.GetRunItems(args[0])
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return fmt.Errorf("run %s not found", args[0])
		}
		fmt.Fprintln(w, "ITEM\tTIER\tSTATUS\tDURATION\tDETAIL")
		for _, item := range items {
			detail := item.Note
			if item.Error != "" {
				detail = firstLine(item.Error)
			}
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\n", item.ID, item.Tier.Index, item.Status, shorten(item.Duration), detail)
		}
		return nil
	}

	runs, err := store.ListRuns(historyLimit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded")
		return nil
	}

	fmt.Fprintln(w, "RUN\tSTARTED\tDURATION\tRUNTIME\tCOMPLETED\tFAILED\tSKIPPED\t")
	for _, run := range runs {
		flags := ""
		switch {
		case run.DryRun:
			flags = "dry run"
		case run.Cancelled:
			flags = "cancelled"
		case run.Failed > 0:
			flags = string(domain.StatusFailed)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
			run.ID, humanize.Time(run.StartedAt), shorten(run.Duration()), run.Runtime,
			run.Completed, run.Failed, run.Skipped, flags)
	}
	return nil
}
