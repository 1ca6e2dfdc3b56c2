package observer

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"

	"github.com/hochfrequenz/checklist-orch/internal/domain"
)

const metricPrefix = "checklist_orch_"

// MetricFamilies converts a run report into Prometheus metric families
func MetricFamilies(report domain.RunReport, runtime string) []*dto.MetricFamily {
	runLabels := []*dto.LabelPair{
		{Name: proto.String("runtime"), Value: proto.String(runtime)},
	}

	items := &dto.MetricFamily{
		Name: proto.String(metricPrefix + "items"),
		Help: proto.String("Checklist items of the last run by final status."),
		Type: dto.MetricType_GAUGE.Enum(),
	}
	for _, s := range []struct {
		status domain.ItemStatus
		value  int
	}{
		{domain.StatusCompleted, report.Completed},
		{domain.StatusFailed, report.Failed},
		{domain.StatusSkipped, report.Skipped},
	} {
		labels := append([]*dto.LabelPair{
			{Name: proto.String("status"), Value: proto.String(string(s.status))},
		}, runLabels...)
		items.Metric = append(items.Metric, &dto.Metric{
			Label: labels,
			Gauge: &dto.Gauge{Value: proto.Float64(float64(s.value))},
		})
	}

	return []*dto.MetricFamily{
		items,
		gauge("items_processed", "Items dispatched and finished in the last run.", float64(report.Processed), runLabels),
		gauge("run_duration_seconds", "Wall-clock duration of the last run.", report.Duration().Seconds(), runLabels),
		gauge("run_finished_timestamp_seconds", "Unix time the last run finished.", float64(report.FinishedAt.Unix()), runLabels),
		gauge("run_dry_run", "1 if the last run was a dry run.", boolFloat(report.DryRun), runLabels),
		gauge("run_cancelled", "1 if the last run was cancelled.", boolFloat(report.Cancelled), runLabels),
		gauge("run_exit_code", "Exit code of the last run.", float64(report.ExitCode()), runLabels),
	}
}

func gauge(name, help string, value float64, labels []*dto.LabelPair) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name: proto.String(metricPrefix + name),
		Help: proto.String(help),
		Type: dto.MetricType_GAUGE.Enum(),
		Metric: []*dto.Metric{{
			Label: labels,
			Gauge: &dto.Gauge{Value: proto.Float64(value)},
		}},
	}
}

func boolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// WriteTextfile writes the report in Prometheus text exposition format for
// the node-exporter textfile collector. The file is replaced atomically.
func WriteTextfile(path string, report domain.RunReport, runtime string) error {
	var buf bytes.Buffer
	for _, mf := range MetricFamilies(report, runtime) {
		if _, err := expfmt.MetricFamilyToText(&buf, mf); err != nil {
			return fmt.Errorf("encoding %s: %w", mf.GetName(), err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".checklist-orch-*.prom")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
