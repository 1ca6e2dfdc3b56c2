// Package executor launches an external coding agent for one checklist item
// and classifies how the process ended.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hochfrequenz/checklist-orch/internal/config"
	"github.com/hochfrequenz/checklist-orch/internal/domain"
)

// OutcomeKind classifies how an invocation ended
type OutcomeKind string

const (
	OutcomeSuccess     OutcomeKind = "success"
	OutcomeFailure     OutcomeKind = "failure"
	OutcomeTimeout     OutcomeKind = "timeout"
	OutcomeLaunchError OutcomeKind = "launch_error"
	OutcomeCancelled   OutcomeKind = "cancelled"
)

var (
	// ErrTimeout is the error of an OutcomeTimeout
	ErrTimeout = errors.New("agent timed out")
	// ErrCancelled is the error of an OutcomeCancelled
	ErrCancelled = errors.New("agent cancelled")
)

// LaunchError reports that the agent process could not be started
type LaunchError struct {
	Runtime config.Runtime
	Err     error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launching %s agent: %v", e.Runtime, e.Err)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}

// ExitError reports a non-zero exit of the agent process.
// Detail holds the error extracted from the agent's output, if any.
type ExitError struct {
	Code   int
	Detail string
}

func (e *ExitError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("agent exited with code %d: %s", e.Code, e.Detail)
	}
	return fmt.Sprintf("agent exited with code %d", e.Code)
}

// Usage is the token accounting reported by the agent, when available
type Usage struct {
	InputTokens  int
	OutputTokens int
	CostUSD      float64
}

// Outcome is the result of invoking the agent for one item
type Outcome struct {
	Kind     OutcomeKind
	Output   string
	Err      error
	ExitCode int
	Duration time.Duration
	WorkDir  string
	Usage    Usage
}

// Status maps the outcome to the item's terminal status
func (o Outcome) Status() domain.ItemStatus {
	switch o.Kind {
	case OutcomeSuccess:
		return domain.StatusCompleted
	case OutcomeCancelled:
		return domain.StatusSkipped
	default:
		return domain.StatusFailed
	}
}

// Invoker runs one checklist item to completion.
// Implementations must be safe for concurrent use and must not panic.
type Invoker interface {
	Invoke(ctx context.Context, item *domain.ChecklistItem) Outcome
}

// InvokerFunc adapts a function to the Invoker interface
type InvokerFunc func(ctx context.Context, item *domain.ChecklistItem) Outcome

func (f InvokerFunc) Invoke(ctx context.Context, item *domain.ChecklistItem) Outcome {
	return f(ctx, item)
}
