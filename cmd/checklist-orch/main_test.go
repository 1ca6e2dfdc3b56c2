package main

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hochfrequenz/checklist-orch/internal/config"
	"github.com/hochfrequenz/checklist-orch/internal/domain"
	"github.com/hochfrequenz/checklist-orch/internal/observer"
	"github.com/hochfrequenz/checklist-orch/internal/taskstore"
)

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	l := newLogger("warn", "json", &buf)
	l.Info("dropped")
	l.Warn("kept", "item", "A1")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1, buf.String())
	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "kept", rec["msg"])
	assert.Equal(t, "A1", rec["item"])
}

func TestRunOptionsFromFlags(t *testing.T) {
	cmd, _, err := rootCmd.Find([]string{"run"})
	require.NoError(t, err)
	file := config.Default()
	file.Run.Root = "/from/config"
	file.Run.Runtime = "claude-code"
	file.Run.Model = "opus"
	file.Run.BatchSize = 4

	opts, err := runOptionsFromFlags(cmd, file)
	require.NoError(t, err)
	// unset flags must not override config
	assert.Equal(t, "/from/config", opts.Root)
	assert.Equal(t, 4, opts.BatchSize)
	assert.Equal(t, "opus", opts.Model)

	require.NoError(t, cmd.Flags().Set("batch-size", "7"))
	require.NoError(t, cmd.Flags().Set("runtime", "opencode"))
	t.Cleanup(func() {
		cmd.Flags().Lookup("batch-size").Changed = false
		cmd.Flags().Lookup("runtime").Changed = false
		runBatchSize = config.DefaultBatchSize
		runRuntime = ""
	})

	opts, err = runOptionsFromFlags(cmd, file)
	require.NoError(t, err)
	assert.Equal(t, 7, opts.BatchSize)
	assert.Equal(t, "opencode", opts.Runtime)
	assert.Empty(t, opts.Model, "switching runtime falls back to its default model")
}

func TestIntersect(t *testing.T) {
	assert.Len(t, intersect(nil, []string{"A", "B"}), 2)
	assert.Equal(t, []string{"B"}, intersect([]string{"B", "C"}, []string{"A", "B"}))
	assert.Empty(t, intersect([]string{"C"}, []string{"A"}))
}

func TestFilterOptions_History(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "h.db")
	store, err := taskstore.New(dbPath)
	require.NoError(t, err)
	defer store.Close()

	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	err = store.SaveReport(domain.RunReport{
		RunID:      "r1",
		StartedAt:  start,
		FinishedAt: start.Add(time.Minute),
		Items: []domain.ItemSummary{
			{ID: "A", Status: domain.StatusCompleted},
			{ID: "B", Status: domain.StatusFailed},
			{ID: "C", Status: domain.StatusFailed},
		},
	}, taskstore.RunInfo{})
	require.NoError(t, err)

	p := &pass{
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		selection: selection{onlyFailed: true, skipPassed: true, items: []string{"C", "D"}},
	}
	filter, err := p.filterOptions(store)
	require.NoError(t, err)
	assert.Equal(t, []string{"C"}, filter.IDs)
	assert.Equal(t, []string{"A"}, filter.ExcludeIDs)

	p.selection = selection{onlyFailed: true, items: []string{"A"}}
	_, err = p.filterOptions(store)
	assert.ErrorIs(t, err, errNothingSelected)

	p.selection = selection{onlyFailed: true}
	_, err = p.filterOptions(nil)
	assert.Error(t, err, "--only-failed without a store should fail")
}

func TestRenderReport(t *testing.T) {
	var buf bytes.Buffer
	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	report := domain.RunReport{
		RunID:      "run-42",
		Processed:  2,
		Completed:  1,
		Failed:     1,
		Skipped:    1,
		StartedAt:  start,
		FinishedAt: start.Add(90 * time.Second),
		Items: []domain.ItemSummary{
			{ID: "A1", Tier: domain.Tier{Index: 1, Name: "Setup"}, Status: domain.StatusCompleted, Duration: 12 * time.Second},
			{ID: "A2", Tier: domain.Tier{Index: 1, Name: "Setup"}, Status: domain.StatusFailed, Error: "agent exited with code 1\nmore"},
			{ID: "B1", Tier: domain.Tier{Index: 2, Name: "Usage"}, Status: domain.StatusSkipped, Note: "iteration budget exhausted"},
		},
	}
	renderReport(&buf, report, observer.Metrics{TotalTokensInput: 12345, TotalTokensOutput: 678})
	out := buf.String()

	for _, want := range []string{"run-42", "Tier 1: Setup", "Tier 2: Usage", "A1", "agent exited with code 1", "iteration budget exhausted", "12,345"} {
		assert.Contains(t, out, want)
	}
	assert.NotContains(t, out, "more", "only the first error line should be shown")
	assert.Equal(t, 1, strings.Count(out, "Tier 1: Setup"), "tier header repeated:\n%s", out)
}
