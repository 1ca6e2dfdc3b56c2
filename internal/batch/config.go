package batch

import (
	"fmt"
	"time"

	"github.com/hochfrequenz/checklist-orch/internal/config"
)

// DefaultMaxDuration bounds a scheduled pass when none is configured
const DefaultMaxDuration = 4 * time.Hour

// BatchConfig describes one cron-scheduled checklist pass
type BatchConfig struct {
	Name        string
	Cron        string
	MaxDuration time.Duration
}

// Validate checks the config and fills in defaults
func (c *BatchConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("batch name is required")
	}
	if c.Cron == "" {
		return fmt.Errorf("cron expression is required")
	}
	if _, err := ParseCron(c.Cron); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}
	if c.MaxDuration <= 0 {
		c.MaxDuration = DefaultMaxDuration
	}
	return nil
}

// FromSchedule converts the [[schedule]] entries of a config file
func FromSchedule(entries []config.ScheduleEntry) ([]BatchConfig, error) {
	configs := make([]BatchConfig, 0, len(entries))
	for i, e := range entries {
		cfg := BatchConfig{Name: e.Name, Cron: e.Cron}
		if e.MaxDuration != "" {
			d, err := time.ParseDuration(e.MaxDuration)
			if err != nil {
				return nil, fmt.Errorf("schedule %d: max_duration: %w", i, err)
			}
			cfg.MaxDuration = d
		}
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("schedule %d: %w", i, err)
		}
		configs = append(configs, cfg)
	}
	return configs, nil
}
