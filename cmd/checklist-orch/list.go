package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/hochfrequenz/checklist-orch/internal/checklist"
	"github.com/hochfrequenz/checklist-orch/internal/config"
	"github.com/hochfrequenz/checklist-orch/internal/domain"
)

var (
	listTiers   []int
	listHistory bool
)

func init() {
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List checklist items",
		Long: `List the items of the checklist grouped by tier.

The STATUS column shows the mark recorded in the checklist itself; with
--history it also shows the latest verdict from the run history.`,
		Args: cobra.NoArgs,
		RunE: runList,
	}
	listCmd.Flags().StringVar(&runRoot, "root", "", "project root (default: current directory)")
	listCmd.Flags().StringVar(&runChecklist, "checklist", "", "checklist file, relative to the root")
	listCmd.Flags().IntSliceVar(&listTiers, "tier", nil, "show only these tier numbers")
	listCmd.Flags().BoolVar(&listHistory, "history", false, "show the latest recorded verdict per item")
	rootCmd.AddCommand(listCmd)
}

func statusColor(s domain.ItemStatus) *color.Color {
	switch s {
	case domain.StatusCompleted:
		return color.New(color.FgGreen)
	case domain.StatusFailed:
		return color.New(color.FgRed)
	case domain.StatusSkipped:
		return color.New(color.FgYellow)
	default:
		return color.New(color.Faint)
	}
}

func runList(cmd *cobra.Command, args []string) error {
	opts, err := fileCfg.RunOptions()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("root") {
		opts.Root = runRoot
	}
	if opts.Root == "" {
		opts.Root = "."
	}
	if cmd.Flags().Changed("checklist") {
		opts.ChecklistPath = runChecklist
	}
	runCfg, err := config.NewRunConfig(opts)
	if err != nil {
		return err
	}

	items, err := checklist.Load(runCfg.ChecklistPath())
	if err != nil {
		return err
	}
	items = checklist.Filter(items, checklist.FilterOptions{Tiers: listTiers})

	var latest map[string]domain.ItemStatus
	if listHistory && fileCfg.Store.DatabasePath != "" {
		store, err := openStore(fileCfg.Store.DatabasePath)
		if err != nil {
			return err
		}
		defer store.Close()
		if latest, err = store.LatestItemStatuses(); err != nil {
			return err
		}
	}

	if content, err := os.ReadFile(runCfg.ChecklistPath()); err == nil {
		if fm := checklist.ReadFrontmatter(content); fm != nil && fm.Title != "" {
			color.New(color.Bold).Fprintln(cmd.OutOrStdout(), fm.Title)
		}
	}

	out := cmd.OutOrStdout()
	header := color.New(color.Bold, color.FgCyan)
	var current domain.Tier
	var w *tabwriter.Writer
	for i, item := range items {
		if i == 0 || item.Tier != current {
			if w != nil {
				w.Flush()
			}
			current = item.Tier
			fmt.Fprintln(out)
			header.Fprintln(out, current.String())
			w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		}
		prior := item.PriorStatus
		if prior == "" {
			prior = domain.StatusPending
		}
		row := fmt.Sprintf("  %s\t%s", item.ID, statusColor(prior).Sprint(prior))
		if latest != nil {
			if s, ok := latest[item.ID]; ok {
				row += "\t" + statusColor(s).Sprint("last: "+string(s))
			} else {
				row += "\t" + color.New(color.Faint).Sprint("never run")
			}
		}
		fmt.Fprintln(w, row)
	}
	if w != nil {
		w.Flush()
	}

	fmt.Fprintf(out, "\n%d items in %d tiers\n", len(items), len(checklist.Tiers(items)))
	return nil
}
