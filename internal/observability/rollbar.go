// Package observability wires error reporting to Rollbar.
package observability

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/rollbar/rollbar-go"

	"github.com/hochfrequenz/checklist-orch/internal/domain"
)

// SetupRollbar configures the Rollbar SDK if the access token is present.
// It returns a boolean indicating whether Rollbar was enabled and a cleanup
// function that should be deferred to flush pending items.
func SetupRollbar(logger *slog.Logger) (bool, func()) {
	token := strings.TrimSpace(os.Getenv("ROLLBAR_ACCESS_TOKEN"))
	if token == "" {
		rollbar.SetEnabled(false)
		logger.Debug("rollbar disabled", "reason", "missing access token")
		return false, func() {}
	}

	rollbar.SetEnabled(true)
	rollbar.SetToken(token)

	env := strings.TrimSpace(os.Getenv("ROLLBAR_ENVIRONMENT"))
	if env == "" {
		env = "development"
	}
	rollbar.SetEnvironment(env)

	if codeVersion := strings.TrimSpace(os.Getenv("ROLLBAR_CODE_VERSION")); codeVersion != "" {
		rollbar.SetCodeVersion(codeVersion)
	}
	if hostname, err := os.Hostname(); err == nil && hostname != "" {
		rollbar.SetServerHost(hostname)
	}
	if wd, err := os.Getwd(); err == nil {
		rollbar.SetServerRoot(filepath.Clean(wd))
	}
	rollbar.SetCaptureIp(rollbar.CaptureIpNone)

	logger.Info("rollbar enabled", "environment", env)

	return true, func() {
		rollbar.Wait()
	}
}

// CapturePanic reports panics to Rollbar when enabled and re-panics.
// Use as: defer CapturePanic(logger, enabled)()
func CapturePanic(logger *slog.Logger, enabled bool) func() {
	if !enabled {
		return func() {}
	}

	return func() {
		if rec := recover(); rec != nil {
			switch err := rec.(type) {
			case error:
				rollbar.Critical(err)
			default:
				rollbar.Critical(fmt.Errorf("panic: %v", rec))
			}
			rollbar.Wait()
			logger.Error("panic captured", "panic", rec)
			panic(rec)
		}
	}
}

// Reporter sends run and item failures to Rollbar
type Reporter struct {
	enabled bool
	send    func(level string, err error, extras map[string]interface{})
}

// NewReporter returns a Reporter; a disabled Reporter drops everything
func NewReporter(enabled bool) *Reporter {
	return &Reporter{enabled: enabled, send: rollbar.ErrorWithExtras}
}

// ReportRunError reports an error that aborted a run
func (r *Reporter) ReportRunError(runID string, err error) {
	if r == nil || !r.enabled || err == nil {
		return
	}
	r.send(rollbar.ERR, err, map[string]interface{}{"run_id": runID})
}

// ReportItemFailure reports a failed item at warning level
func (r *Reporter) ReportItemFailure(runID string, item domain.ItemSummary) {
	if r == nil || !r.enabled || item.Status != domain.StatusFailed {
		return
	}
	msg := item.Error
	if msg == "" {
		msg = "item failed"
	}
	r.send(rollbar.WARN, errors.New(msg), map[string]interface{}{
		"run_id":      runID,
		"item_id":     item.ID,
		"tier":        item.Tier.String(),
		"note":        item.Note,
		"duration_ms": item.Duration.Milliseconds(),
	})
}
