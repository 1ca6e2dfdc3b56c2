package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

const (
	DefaultBatchSize     = 5
	DefaultMaxIterations = 50
	DefaultTimeout       = 10 * time.Minute
	DefaultPollInterval  = 30 * time.Second
)

// ErrInvalidConfig matches every ConfigurationError via errors.Is
var ErrInvalidConfig = errors.New("invalid configuration")

// ConfigurationError reports an invalid run parameter
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

func (e *ConfigurationError) Is(target error) bool {
	return target == ErrInvalidConfig
}

// Runtime selects the external agent executable
type Runtime string

const (
	RuntimeClaudeCode Runtime = "claude-code"
	RuntimeOpenCode   Runtime = "opencode"
)

// ParseRuntime converts a selector string into a Runtime
func ParseRuntime(s string) (Runtime, error) {
	switch Runtime(strings.ToLower(strings.TrimSpace(s))) {
	case RuntimeClaudeCode, "claude":
		return RuntimeClaudeCode, nil
	case RuntimeOpenCode:
		return RuntimeOpenCode, nil
	default:
		return "", &ConfigurationError{Field: "runtime", Reason: fmt.Sprintf("unknown runtime %q (want claude-code or opencode)", s)}
	}
}

// Executable returns the binary name launched for the runtime
func (r Runtime) Executable() string {
	switch r {
	case RuntimeOpenCode:
		return "opencode"
	default:
		return "claude"
	}
}

// DefaultModel returns the model used when none is configured
func (r Runtime) DefaultModel() string {
	switch r {
	case RuntimeOpenCode:
		return "zai-coding-plan/glm-4.7"
	default:
		return "claude-sonnet-4-20250514"
	}
}

// ProcessingMode controls whether the processor stops when the backlog drains
type ProcessingMode string

const (
	ModeFinite     ProcessingMode = "finite"
	ModeContinuous ProcessingMode = "continuous"
)

// ParseMode converts a mode string into a ProcessingMode
func ParseMode(s string) (ProcessingMode, error) {
	switch ProcessingMode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeFinite, "":
		return ModeFinite, nil
	case ModeContinuous:
		return ModeContinuous, nil
	default:
		return "", &ConfigurationError{Field: "mode", Reason: fmt.Sprintf("unknown processing mode %q (want finite or continuous)", s)}
	}
}

// RunOptions are the raw inputs to NewRunConfig
type RunOptions struct {
	Root              string
	ChecklistPath     string
	AgentResourcesDir string
	AgentBinary       string
	Runtime           string
	Model             string
	Timeout           time.Duration
	BatchSize         int
	MaxIterations     int
	Mode              string
	PollInterval      time.Duration
	IdleTimeout       time.Duration
	DryRun            bool
	Verbose           bool
}

// RunConfig is the validated, read-only configuration of one run.
// It is safe for concurrent use because nothing mutates it after NewRunConfig.
type RunConfig struct {
	root              string
	checklistPath     string
	agentResourcesDir string
	agentBinary       string
	runtime           Runtime
	model             string
	timeout           time.Duration
	batchSize         int
	maxIterations     int
	mode              ProcessingMode
	pollInterval      time.Duration
	idleTimeout       time.Duration
	dryRun            bool
	verbose           bool
}

// NewRunConfig validates opts and returns a frozen RunConfig.
// Paths are resolved but their existence is not checked.
func NewRunConfig(opts RunOptions) (*RunConfig, error) {
	if strings.TrimSpace(opts.Root) == "" {
		return nil, &ConfigurationError{Field: "root", Reason: "must not be empty"}
	}
	if opts.BatchSize < 1 {
		return nil, &ConfigurationError{Field: "batch_size", Reason: fmt.Sprintf("must be >= 1, got %d", opts.BatchSize)}
	}
	if opts.MaxIterations < 1 {
		return nil, &ConfigurationError{Field: "max_iterations", Reason: fmt.Sprintf("must be >= 1, got %d", opts.MaxIterations)}
	}
	if opts.Timeout <= 0 {
		return nil, &ConfigurationError{Field: "timeout", Reason: fmt.Sprintf("must be > 0, got %s", opts.Timeout)}
	}
	runtime, err := ParseRuntime(opts.Runtime)
	if err != nil {
		return nil, err
	}
	mode, err := ParseMode(opts.Mode)
	if err != nil {
		return nil, err
	}
	pollInterval := opts.PollInterval
	if mode == ModeContinuous && pollInterval <= 0 {
		return nil, &ConfigurationError{Field: "poll_interval", Reason: "must be > 0 in continuous mode"}
	}
	if opts.IdleTimeout < 0 {
		return nil, &ConfigurationError{Field: "idle_timeout", Reason: "must not be negative"}
	}

	root, err := resolvePath(opts.Root)
	if err != nil {
		return nil, &ConfigurationError{Field: "root", Reason: err.Error()}
	}

	cfg := &RunConfig{
		root:          root,
		runtime:       runtime,
		model:         strings.TrimSpace(opts.Model),
		timeout:       opts.Timeout,
		batchSize:     opts.BatchSize,
		maxIterations: opts.MaxIterations,
		mode:          mode,
		pollInterval:  pollInterval,
		idleTimeout:   opts.IdleTimeout,
		dryRun:        opts.DryRun,
		verbose:       opts.Verbose,
	}

	cfg.checklistPath = filepath.Join(root, "checklist.md")
	if opts.ChecklistPath != "" {
		if cfg.checklistPath, err = resolveUnder(root, opts.ChecklistPath); err != nil {
			return nil, &ConfigurationError{Field: "checklist", Reason: err.Error()}
		}
	}
	cfg.agentResourcesDir = filepath.Join(root, "agent-resources")
	if opts.AgentResourcesDir != "" {
		if cfg.agentResourcesDir, err = resolveUnder(root, opts.AgentResourcesDir); err != nil {
			return nil, &ConfigurationError{Field: "agent_resources", Reason: err.Error()}
		}
	}
	if opts.AgentBinary != "" {
		cfg.agentBinary = ExpandPath(opts.AgentBinary)
	}

	return cfg, nil
}

func resolvePath(p string) (string, error) {
	return filepath.Abs(ExpandPath(p))
}

func resolveUnder(root, p string) (string, error) {
	p = ExpandPath(p)
	if filepath.IsAbs(p) {
		return filepath.Clean(p), nil
	}
	return filepath.Join(root, p), nil
}

func (c *RunConfig) RootPath() string { return c.root }
func (c *RunConfig) ChecklistPath() string { return c.checklistPath }
func (c *RunConfig) AgentResourcesDir() string { return c.agentResourcesDir }
func (c *RunConfig) Runtime() Runtime { return c.runtime }
func (c *RunConfig) Model() string { return c.model }
func (c *RunConfig) Timeout() time.Duration { return c.timeout }
func (c *RunConfig) BatchSize() int { return c.batchSize }
func (c *RunConfig) MaxIterations() int { return c.maxIterations }
func (c *RunConfig) Mode() ProcessingMode { return c.mode }
func (c *RunConfig) PollInterval() time.Duration { return c.pollInterval }
func (c *RunConfig) IdleTimeout() time.Duration { return c.idleTimeout }
func (c *RunConfig) DryRun() bool { return c.dryRun }
func (c *RunConfig) Verbose() bool { return c.verbose }

// RunsDir is where per-item working directories are created
func (c *RunConfig) RunsDir() string {
	return filepath.Join(c.root, "runs")
}

// EffectiveModel returns the configured model or the runtime's default
func (c *RunConfig) EffectiveModel() string {
	if c.model != "" {
		return c.model
	}
	return c.runtime.DefaultModel()
}

// AgentBinary returns the executable to launch for the configured runtime
func (c *RunConfig) AgentBinary() string {
	if c.agentBinary != "" {
		return c.agentBinary
	}
	return c.runtime.Executable()
}
