// Package batch runs finite checklist passes on cron schedules.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// RunFunc executes one scheduled pass. ctx expires after the batch's MaxDuration.
type RunFunc func(ctx context.Context, cfg BatchConfig) error

// Scheduler manages scheduled batch runs
type Scheduler struct {
	configs   map[string]BatchConfig
	schedules map[string]cron.Schedule
	lastRun   map[string]time.Time
	running   map[string]bool
	mu        sync.RWMutex

	logger       *slog.Logger
	now          func() time.Time
	tickInterval time.Duration

	wg       sync.WaitGroup
	stopOnce sync.Once
	stopChan chan struct{}
}

// Option configures a Scheduler
type Option func(*Scheduler)

// WithLogger sets the scheduler's logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = logger }
}

// WithClock overrides the clock used to evaluate schedules
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithTickInterval sets how often schedules are evaluated
func WithTickInterval(d time.Duration) Option {
	return func(s *Scheduler) { s.tickInterval = d }
}

// NewScheduler creates a new batch scheduler
func NewScheduler(configs []BatchConfig, opts ...Option) (*Scheduler, error) {
	s := &Scheduler{
		configs:      make(map[string]BatchConfig),
		schedules:    make(map[string]cron.Schedule),
		lastRun:      make(map[string]time.Time),
		running:      make(map[string]bool),
		logger:       slog.Default(),
		now:          time.Now,
		tickInterval: time.Minute,
		stopChan:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	for _, cfg := range configs {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		if _, dup := s.configs[cfg.Name]; dup {
			return nil, fmt.Errorf("duplicate batch name %q", cfg.Name)
		}
		sched, err := ParseCron(cfg.Cron)
		if err != nil {
			return nil, err
		}
		s.configs[cfg.Name] = cfg
		s.schedules[cfg.Name] = sched
	}

	return s, nil
}

// ParseCron parses a standard five-field cron expression
func ParseCron(expr string) (cron.Schedule, error) {
	return cronParser.Parse(expr)
}

// NextRun returns the next scheduled run time for a batch
func (s *Scheduler) NextRun(name string) time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sched, ok := s.schedules[name]
	if !ok {
		return time.Time{}
	}
	from := s.lastRun[name]
	if now := s.now(); from.Before(now) {
		from = now
	}
	return sched.Next(from)
}

// ShouldRun returns true if a batch is due and not already running
func (s *Scheduler) ShouldRun(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sched, ok := s.schedules[name]
	if !ok || s.running[name] {
		return false
	}

	lastRun := s.lastRun[name]
	if lastRun.IsZero() {
		// never ran: only fire from the next boundary on
		return false
	}
	return !s.now().Before(sched.Next(lastRun))
}

// tryMarkRunning claims a batch; false if it is already running
func (s *Scheduler) tryMarkRunning(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running[name] {
		return false
	}
	s.running[name] = true
	return true
}

// markComplete marks a batch as complete
func (s *Scheduler) markComplete(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running[name] = false
	s.lastRun[name] = s.now()
}

// IsRunning reports whether a pass of the batch is in progress
func (s *Scheduler) IsRunning(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running[name]
}

// GetConfig returns the config for a batch
func (s *Scheduler) GetConfig(name string) (BatchConfig, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.configs[name]
	return cfg, ok
}

// ListBatches returns all batch names, sorted
func (s *Scheduler) ListBatches() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.configs))
	for name := range s.configs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Start runs the scheduler loop until ctx is done or Stop is called.
// Passes of the same batch never overlap. Start waits for in-flight
// passes before returning.
func (s *Scheduler) Start(ctx context.Context, runFunc RunFunc) {
	started := s.now()
	s.mu.Lock()
	for name := range s.configs {
		if s.lastRun[name].IsZero() {
			s.lastRun[name] = started
		}
	}
	s.mu.Unlock()

	for _, name := range s.ListBatches() {
		s.logger.Info("batch scheduled", "batch", name, "next_run", s.NextRun(name))
	}

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()
	defer s.wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopChan:
			return
		case <-ticker.C:
			for _, name := range s.ListBatches() {
				if !s.ShouldRun(name) || !s.tryMarkRunning(name) {
					continue
				}
				cfg, _ := s.GetConfig(name)
				s.wg.Add(1)
				go s.runBatch(ctx, cfg, runFunc)
			}
		}
	}
}

func (s *Scheduler) runBatch(ctx context.Context, cfg BatchConfig, runFunc RunFunc) {
	defer s.wg.Done()
	defer s.markComplete(cfg.Name)

	runCtx, cancel := context.WithTimeout(ctx, cfg.MaxDuration)
	defer cancel()

	s.logger.Info("batch started", "batch", cfg.Name, "max_duration", cfg.MaxDuration)
	begin := time.Now()
	if err := runFunc(runCtx, cfg); err != nil {
		s.logger.Error("batch failed", "batch", cfg.Name, "error", err)
		return
	}
	s.logger.Info("batch finished", "batch", cfg.Name, "duration", time.Since(begin).Round(time.Second))
}

// Stop stops the scheduler. It is safe to call more than once.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
}
