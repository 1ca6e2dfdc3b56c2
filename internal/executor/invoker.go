package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/hochfrequenz/checklist-orch/internal/config"
	"github.com/hochfrequenz/checklist-orch/internal/ctxlog"
	"github.com/hochfrequenz/checklist-orch/internal/domain"
	"github.com/hochfrequenz/checklist-orch/internal/prompts"
)

// sessionNamespace scopes deterministic agent session IDs to this tool
var sessionNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/hochfrequenz/checklist-orch/session"))

const (
	// LogFileName is written into every item's working directory
	LogFileName = ".agent.log"

	defaultWaitDelay = 5 * time.Second
)

// AgentInvoker launches the configured agent runtime as a subprocess
type AgentInvoker struct {
	cfg       *config.RunConfig
	prompts   *prompts.Loader
	logger    *slog.Logger
	runID     string
	waitDelay time.Duration
}

// InvokerOption configures an AgentInvoker
type InvokerOption func(*AgentInvoker)

// WithRunID scopes session IDs to a run so that re-running an item gets a new session
func WithRunID(id string) InvokerOption {
	return func(a *AgentInvoker) { a.runID = id }
}

// WithWaitDelay bounds how long output is drained after the agent is killed
func WithWaitDelay(d time.Duration) InvokerOption {
	return func(a *AgentInvoker) { a.waitDelay = d }
}

// NewInvoker creates an invoker for cfg. A nil loader uses the embedded
// templates overridden by cfg's agent resources; a nil logger uses slog.Default().
func NewInvoker(cfg *config.RunConfig, loader *prompts.Loader, logger *slog.Logger, opts ...InvokerOption) *AgentInvoker {
	if loader == nil {
		loader = prompts.DefaultLoader(cfg.AgentResourcesDir())
	}
	if logger == nil {
		logger = slog.Default()
	}
	a := &AgentInvoker{
		cfg:       cfg,
		prompts:   loader,
		logger:    logger,
		waitDelay: defaultWaitDelay,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// WorkDir returns <root>/runs/<tier slug>/<item id>
func (a *AgentInvoker) WorkDir(item *domain.ChecklistItem) string {
	return filepath.Join(a.cfg.RunsDir(), item.Tier.Slug(), item.ID)
}

// SessionID returns the deterministic agent session ID for item
func (a *AgentInvoker) SessionID(item *domain.ChecklistItem) string {
	name := item.ID
	if a.runID != "" {
		name = a.runID + "/" + item.ID
	}
	return uuid.NewSHA1(sessionNamespace, []byte(name)).String()
}

// Invoke runs the agent for item and waits for it, bounded by the configured
// timeout. It never panics; every failure is reported through the Outcome.
func (a *AgentInvoker) Invoke(ctx context.Context, item *domain.ChecklistItem) (out Outcome) {
	start := time.Now()
	logger := ctxlog.FromContextOr(ctx, a.logger).With("item", item.ID, "runtime", a.cfg.Runtime())

	defer func() {
		if r := recover(); r != nil {
			logger.Error("agent invocation panicked", "panic", r)
			out = Outcome{
				Kind: OutcomeLaunchError,
				Err:  &LaunchError{Runtime: a.cfg.Runtime(), Err: fmt.Errorf("panic: %v", r)},
			}
		}
		out.Duration = time.Since(start)
	}()
	// every path that returns before the process starts still releases the caller
	defer Launched(ctx)

	if ctx.Err() != nil {
		return Outcome{Kind: OutcomeCancelled, Err: ErrCancelled}
	}

	workDir := a.WorkDir(item)
	launchErr := func(err error) Outcome {
		logger.Warn("agent launch failed", "error", err)
		return Outcome{
			Kind:     OutcomeLaunchError,
			Err:      &LaunchError{Runtime: a.cfg.Runtime(), Err: err},
			ExitCode: -1,
			WorkDir:  workDir,
		}
	}

	if err := os.MkdirAll(workDir, 0755); err != nil {
		return launchErr(fmt.Errorf("creating work dir: %w", err))
	}

	l := launch{
		workDir:   workDir,
		sessionID: a.SessionID(item),
		model:     a.cfg.EffectiveModel(),
	}
	prompt, err := a.prompts.BuildItemPrompt(prompts.ItemData{
		ItemID:            item.ID,
		Tier:              item.Tier.String(),
		TierSlug:          item.Tier.Slug(),
		Instructions:      item.Instructions,
		WorkDir:           workDir,
		AgentResourcesDir: a.cfg.AgentResourcesDir(),
		SessionID:         l.sessionID,
		Runtime:           string(a.cfg.Runtime()),
		Model:             l.model,
	})
	if err != nil {
		return launchErr(fmt.Errorf("building prompt: %w", err))
	}
	l.prompt = prompt

	logFile, err := os.Create(filepath.Join(workDir, LogFileName))
	if err != nil {
		return launchErr(fmt.Errorf("creating log file: %w", err))
	}
	defer logFile.Close()

	runCtx, cancel := context.WithTimeout(ctx, a.cfg.Timeout())
	defer cancel()

	cmd, err := a.buildCommand(runCtx, l)
	if err != nil {
		return launchErr(err)
	}
	setProcessGroup(cmd)
	cmd.WaitDelay = a.waitDelay

	sink := newOutputSink(logFile)
	cmd.Stdout = sink
	cmd.Stderr = sink
	fmt.Fprintf(logFile, "[checklist-orch] executing: %s (model %s, session %s)\n",
		cmd.Path, l.model, l.sessionID)

	if err := cmd.Start(); err != nil {
		// Start fails with the context error when it expired first
		if out, ok := a.interrupted(ctx, runCtx); ok {
			out.WorkDir = workDir
			return out
		}
		return launchErr(fmt.Errorf("starting %s: %w", a.cfg.AgentBinary(), err))
	}
	Launched(ctx)
	logger.Debug("agent started", "pid", cmd.Process.Pid, "dir", workDir)

	waitErr := cmd.Wait()
	sink.Close()

	out = Outcome{
		Output:  sink.String(),
		WorkDir: workDir,
		Usage:   sink.Usage(),
	}
	if cmd.ProcessState != nil {
		out.ExitCode = cmd.ProcessState.ExitCode()
	}

	if waitErr == nil {
		out.Kind = OutcomeSuccess
	} else if stopped, ok := a.interrupted(ctx, runCtx); ok {
		out.Kind, out.Err = stopped.Kind, stopped.Err
	} else {
		out.Kind = OutcomeFailure
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			out.Err = &ExitError{Code: exitErr.ExitCode(), Detail: extractErrorFromOutput(sink.Lines())}
		} else {
			out.Err = fmt.Errorf("waiting for agent: %w", waitErr)
		}
	}

	logger.Debug("agent finished", "outcome", out.Kind, "exit_code", out.ExitCode)
	return out
}

// interrupted classifies a stop caused by the parent context (cancelled)
// or by the per-item deadline (timeout). Parent cancellation wins.
func (a *AgentInvoker) interrupted(ctx, runCtx context.Context) (Outcome, bool) {
	switch {
	case ctx.Err() != nil:
		return Outcome{Kind: OutcomeCancelled, Err: ErrCancelled}, true
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		return Outcome{Kind: OutcomeTimeout, Err: fmt.Errorf("%w after %s", ErrTimeout, a.cfg.Timeout())}, true
	default:
		return Outcome{}, false
	}
}

// ReportsLaunch tells the processor that Invoke calls Launched after the agent starts
func (a *AgentInvoker) ReportsLaunch() bool { return true }
