package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hochfrequenz/checklist-orch/internal/domain"
)

func TestSlack_Send(t *testing.T) {
	var got slackMessage
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decoding payload: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	err := NewSlack(server.URL).Send(context.Background(), Notification{
		Title:     "Checklist run finished: 1 failed",
		Message:   "2 completed, 1 failed",
		Level:     LevelError,
		RunID:     "run-1",
		Completed: 2,
		Failed:    []string{"A2"},
		Duration:  90 * time.Second,
	})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if got.Text != "Checklist run finished: 1 failed" {
		t.Errorf("Text = %q", got.Text)
	}
	if len(got.Attachments) != 1 {
		t.Fatalf("len(Attachments) = %d, want 1", len(got.Attachments))
	}
	att := got.Attachments[0]
	if att.Color != "danger" || att.Title != "Run run-1" || att.Footer != "checklist-orch" {
		t.Errorf("attachment = %+v", att)
	}
	fields := map[string]string{}
	for _, f := range att.Fields {
		fields[f.Title] = f.Value
	}
	if fields["Completed"] != "2" || fields["Failed"] != "1" || fields["Skipped"] != "0" || fields["Duration"] != "1m30s" {
		t.Errorf("Fields = %v", fields)
	}
}

func TestSlack_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid_token", http.StatusForbidden)
	}))
	defer server.Close()

	err := NewSlack(server.URL).Send(context.Background(), Notification{Title: "x"})
	if err == nil || !strings.Contains(err.Error(), "403") || !strings.Contains(err.Error(), "invalid_token") {
		t.Errorf("Send() error = %v, want 403 with body", err)
	}
}

func TestSlack_Disabled(t *testing.T) {
	if err := NewSlack("").Send(context.Background(), Notification{Title: "x"}); err != nil {
		t.Errorf("disabled notifier returned %v", err)
	}
}

func TestSlackColor(t *testing.T) {
	tests := []struct {
		level Level
		want  string
	}{
		{LevelSuccess, "good"},
		{LevelWarning, "warning"},
		{LevelError, "danger"},
		{LevelInfo, "#439FE0"},
	}
	for _, tt := range tests {
		if got := slackColor(tt.level); got != tt.want {
			t.Errorf("slackColor(%v) = %s, want %s", tt.level, got, tt.want)
		}
	}
}

func TestFromReport(t *testing.T) {
	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	base := domain.RunReport{RunID: "r", StartedAt: start, FinishedAt: start.Add(3 * time.Minute)}

	tests := []struct {
		name      string
		mut       func(*domain.RunReport)
		wantLevel Level
		wantIn    string
	}{
		{"passed", func(r *domain.RunReport) { r.Completed = 3; r.Processed = 3 }, LevelSuccess, "3 completed, 0 failed, 0 skipped in 3 minutes"},
		{"failed", func(r *domain.RunReport) {
			r.Completed, r.Failed, r.Processed = 1, 1, 2
			r.Items = []domain.ItemSummary{{ID: "A1", Status: domain.StatusCompleted}, {ID: "A2", Status: domain.StatusFailed}}
		}, LevelError, "Failed: A2"},
		{"cancelled", func(r *domain.RunReport) { r.Cancelled = true; r.Skipped = 2 }, LevelWarning, "2 skipped"},
		{"dry run", func(r *domain.RunReport) { r.DryRun = true; r.Skipped = 4 }, LevelInfo, "4 skipped"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := base
			tt.mut(&r)
			n := FromReport(r)
			if n.Level != tt.wantLevel {
				t.Errorf("Level = %v, want %v", n.Level, tt.wantLevel)
			}
			if !strings.Contains(n.Message, tt.wantIn) {
				t.Errorf("Message = %q, want it to contain %q", n.Message, tt.wantIn)
			}
			if n.RunID != "r" || n.Duration != 3*time.Minute {
				t.Errorf("RunID = %q, Duration = %v", n.RunID, n.Duration)
			}
		})
	}
}

func TestFromReport_ShortRun(t *testing.T) {
	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	for _, d := range []time.Duration{0, 400 * time.Millisecond} {
		n := FromReport(domain.RunReport{Completed: 1, Processed: 1, StartedAt: start, FinishedAt: start.Add(d)})
		if !strings.HasSuffix(n.Message, "0 skipped in under a second") {
			t.Errorf("duration %v: Message = %q", d, n.Message)
		}
	}
}

func TestElapsed(t *testing.T) {
	tests := map[time.Duration]string{
		0:                      "under a second",
		999 * time.Millisecond: "under a second",
		time.Second:            "1 second",
		45 * time.Second:       "45 seconds",
		3 * time.Minute:        "3 minutes",
	}
	for d, want := range tests {
		if got := elapsed(d); got != want {
			t.Errorf("elapsed(%v) = %q, want %q", d, got, want)
		}
	}
}

func TestFromReport_TruncatesFailures(t *testing.T) {
	var r domain.RunReport
	for i := 0; i < maxListedFailures+3; i++ {
		r.Items = append(r.Items, domain.ItemSummary{ID: string(rune('a' + i)), Status: domain.StatusFailed})
		r.Failed++
	}
	n := FromReport(r)
	if len(n.Failed) != maxListedFailures+3 {
		t.Errorf("len(Failed) = %d", len(n.Failed))
	}
	if !strings.HasSuffix(n.Message, "j and 3 more") {
		t.Errorf("Message = %q, want truncation suffix", n.Message)
	}
}

func TestDesktopCommand(t *testing.T) {
	n := Notification{Title: `say "hi"`, Message: "a\\b\nc", Level: LevelError}

	name, args, ok := desktopCommand("darwin", n)
	want := `display notification "a\\b c" with title "say \"hi\""`
	if !ok || name != "osascript" || len(args) != 2 || args[1] != want {
		t.Errorf("darwin = %s %q", name, args)
	}

	name, args, ok = desktopCommand("linux", n)
	if !ok || name != "notify-send" {
		t.Fatalf("linux = %s, %v", name, ok)
	}
	joined := strings.Join(args, " ")
	if !strings.Contains(joined, "--icon dialog-error") || !strings.Contains(joined, "--urgency critical") {
		t.Errorf("linux args = %q", args)
	}
	if args[len(args)-2] != n.Title || args[len(args)-1] != n.Message {
		t.Errorf("title and message must be the last arguments: %q", args)
	}

	if _, _, ok := desktopCommand("plan9", n); ok {
		t.Error("unsupported platform should be skipped")
	}
}

func TestDesktop_Send(t *testing.T) {
	var ran []string
	d := &Desktop{goos: "linux", run: func(ctx context.Context, name string, args ...string) error {
		ran = append(ran, name)
		return nil
	}}
	if err := d.Send(context.Background(), Notification{Title: "t"}); err != nil {
		t.Fatal(err)
	}
	if len(ran) != 1 || ran[0] != "notify-send" {
		t.Errorf("ran = %v", ran)
	}

	d.goos = "windows"
	d.Send(context.Background(), Notification{Title: "t"})
	if len(ran) != 1 {
		t.Errorf("unsupported platform ran %v", ran)
	}
}

func TestMulti(t *testing.T) {
	var called []string
	multi := Multi{
		&mockNotifier{name: "a", calls: &called},
		&mockNotifier{name: "b", calls: &called, err: errors.New("boom")},
		&mockNotifier{name: "c", calls: &called},
	}
	err := multi.Send(context.Background(), Notification{Title: "Test"})

	if len(called) != 3 {
		t.Errorf("calls = %v, want all three", called)
	}
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Errorf("Send() error = %v, want boom", err)
	}
}

func TestNoop(t *testing.T) {
	var n Notifier = Noop{}
	if err := n.Send(context.Background(), Notification{}); err != nil {
		t.Error(err)
	}
}

type mockNotifier struct {
	name  string
	calls *[]string
	err   error
}

func (m *mockNotifier) Send(_ context.Context, n Notification) error {
	*m.calls = append(*m.calls, m.name)
	return m.err
}
