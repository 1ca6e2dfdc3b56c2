package observer

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/common/expfmt"

	"github.com/hochfrequenz/checklist-orch/internal/domain"
)

func TestWriteTextfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics", "checklist.prom")
	start := time.Unix(1700000000, 0)
	report := domain.RunReport{
		RunID:      "run-1",
		Processed:  3,
		Completed:  2,
		Failed:     1,
		Skipped:    4,
		StartedAt:  start,
		FinishedAt: start.Add(90 * time.Second),
	}

	if err := WriteTextfile(path, report, "opencode"); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	var parser expfmt.TextParser
	families, err := parser.TextToMetricFamilies(f)
	if err != nil {
		t.Fatalf("output is not valid exposition format: %v", err)
	}

	items := families["checklist_orch_items"]
	if items == nil || len(items.GetMetric()) != 3 {
		t.Fatalf("checklist_orch_items = %v", items)
	}
	byStatus := map[string]float64{}
	for _, m := range items.GetMetric() {
		for _, l := range m.GetLabel() {
			if l.GetName() == "status" {
				byStatus[l.GetValue()] = m.GetGauge().GetValue()
			}
		}
	}
	if byStatus["completed"] != 2 || byStatus["failed"] != 1 || byStatus["skipped"] != 4 {
		t.Errorf("items by status = %v", byStatus)
	}

	if got := families["checklist_orch_run_duration_seconds"].GetMetric()[0].GetGauge().GetValue(); got != 90 {
		t.Errorf("run_duration_seconds = %v, want 90", got)
	}
	if got := families["checklist_orch_run_exit_code"].GetMetric()[0].GetGauge().GetValue(); got != 1 {
		t.Errorf("run_exit_code = %v, want 1", got)
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("temp files left behind: %v", entries)
	}
}
