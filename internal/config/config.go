package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// LocalConfigName is the project-local config file searched for by FindLocalConfig
const LocalConfigName = ".checklist-orch.toml"

// File holds all configuration read from a TOML file
type File struct {
	Run           RunSection          `toml:"run"`
	Store         StoreConfig         `toml:"store"`
	Notifications NotificationsConfig `toml:"notifications"`
	Metrics       MetricsConfig       `toml:"metrics"`
	Schedule      []ScheduleEntry     `toml:"schedule"`
}

// RunSection holds the defaults for a processing run
type RunSection struct {
	Root           string `toml:"root"`
	Checklist      string `toml:"checklist"`
	AgentResources string `toml:"agent_resources"`
	AgentBinary    string `toml:"agent_binary"`
	Runtime        string `toml:"runtime"`
	Model          string `toml:"model"`
	TimeoutMS      int64  `toml:"timeout_ms"`
	BatchSize      int    `toml:"batch_size"`
	MaxIterations  int    `toml:"max_iterations"`
	Mode           string `toml:"mode"`
	PollInterval   string `toml:"poll_interval"`
	IdleTimeout    string `toml:"idle_timeout"`
}

// StoreConfig holds run history settings
type StoreConfig struct {
	DatabasePath string `toml:"database_path"`
}

// NotificationsConfig holds notification settings
type NotificationsConfig struct {
	Desktop      bool   `toml:"desktop"`
	SlackWebhook string `toml:"slack_webhook"`
}

// MetricsConfig holds Prometheus textfile settings
type MetricsConfig struct {
	TextfilePath string `toml:"textfile_path"`
}

// ScheduleEntry describes a cron-scheduled run
type ScheduleEntry struct {
	Name        string `toml:"name"`
	Cron        string `toml:"cron"`
	MaxDuration string `toml:"max_duration"`
}

// Default returns a File with sensible defaults
func Default() *File {
	home, _ := os.UserHomeDir()
	return &File{
		Run: RunSection{
			Runtime:       string(RuntimeOpenCode),
			TimeoutMS:     DefaultTimeout.Milliseconds(),
			BatchSize:     DefaultBatchSize,
			MaxIterations: DefaultMaxIterations,
			Mode:          string(ModeFinite),
			PollInterval:  DefaultPollInterval.String(),
		},
		Store: StoreConfig{
			DatabasePath: filepath.Join(home, ".checklist-orch", "history.db"),
		},
	}
}

// Load reads configuration from a TOML file, falling back to defaults
func Load(path string) (*File, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, &ConfigurationError{Field: "file", Reason: path + ": " + err.Error()}
	}

	// Expand paths; root and output files are relative to the config file
	dir := filepath.Dir(path)
	cfg.Run.Root = relativeTo(dir, ExpandPath(cfg.Run.Root))
	cfg.Run.Checklist = ExpandPath(cfg.Run.Checklist)
	cfg.Run.AgentResources = ExpandPath(cfg.Run.AgentResources)
	cfg.Run.AgentBinary = ExpandPath(cfg.Run.AgentBinary)
	cfg.Store.DatabasePath = relativeTo(dir, ExpandPath(cfg.Store.DatabasePath))
	cfg.Metrics.TextfilePath = relativeTo(dir, ExpandPath(cfg.Metrics.TextfilePath))

	return cfg, nil
}

func relativeTo(dir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}

// LoadWithLocalFallback loads the explicit path if given, otherwise the nearest
// project-local config, otherwise the user config.
func LoadWithLocalFallback(explicit string) (*File, string, error) {
	path := explicit
	if path == "" {
		path = FindLocalConfig()
	}
	if path == "" {
		path = DefaultConfigPath()
	}
	cfg, err := Load(path)
	return cfg, path, err
}

// Save writes the configuration to path
func (c *File) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := toml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// RunOptions converts the [run] section into constructor options
func (c *File) RunOptions() (RunOptions, error) {
	opts := RunOptions{
		Root:              c.Run.Root,
		ChecklistPath:     c.Run.Checklist,
		AgentResourcesDir: c.Run.AgentResources,
		AgentBinary:       c.Run.AgentBinary,
		Runtime:           c.Run.Runtime,
		Model:             c.Run.Model,
		Timeout:           time.Duration(c.Run.TimeoutMS) * time.Millisecond,
		BatchSize:         c.Run.BatchSize,
		MaxIterations:     c.Run.MaxIterations,
		Mode:              c.Run.Mode,
	}
	var err error
	if opts.PollInterval, err = parseDuration("poll_interval", c.Run.PollInterval); err != nil {
		return RunOptions{}, err
	}
	if opts.IdleTimeout, err = parseDuration("idle_timeout", c.Run.IdleTimeout); err != nil {
		return RunOptions{}, err
	}
	return opts, nil
}

func parseDuration(field, s string) (time.Duration, error) {
	if strings.TrimSpace(s) == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, &ConfigurationError{Field: field, Reason: err.Error()}
	}
	return d, nil
}

// ExpandPath expands ~ to the user's home directory
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// DefaultConfigPath returns the default config file location
func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "checklist-orch", "config.toml")
}

// FindLocalConfig walks up from the working directory looking for LocalConfigName.
// Returns an empty string if none is found.
func FindLocalConfig() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		candidate := filepath.Join(dir, LocalConfigName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}
