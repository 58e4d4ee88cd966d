// Package schedule runs the periodic reminder sweep on a cron expression.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/kirillkom/termination-portal/internal/core/ports"
)

const defaultSweepTimeout = 10 * time.Minute

// SweepObserver is told about every finished sweep.
type SweepObserver func(report ports.ReminderReport, err error)

type Options struct {
	Location     *time.Location
	SweepTimeout time.Duration
	Observer     SweepObserver
	Logger       *slog.Logger
}

// ReminderScheduler triggers a ReminderRunner on a five-field cron schedule
// (descriptors such as @hourly are accepted). A sweep still running when the
// next tick fires causes that tick to be skipped.
type ReminderScheduler struct {
	spec    string
	runner  ports.ReminderRunner
	cron    *cron.Cron
	timeout time.Duration
	observe SweepObserver
	logger  *slog.Logger

	mu      sync.Mutex
	baseCtx context.Context
}

func ParseSpec(spec string) (cron.Schedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	schedule, err := parser.Parse(strings.TrimSpace(spec))
	if err != nil {
		return nil, fmt.Errorf("parse reminder schedule %q: %w", spec, err)
	}
	return schedule, nil
}

func NewReminderScheduler(spec string, runner ports.ReminderRunner, opts Options) (*ReminderScheduler, error) {
	if runner == nil {
		return nil, fmt.Errorf("reminder runner is nil")
	}
	if _, err := ParseSpec(spec); err != nil {
		return nil, err
	}
	location := opts.Location
	if location == nil {
		location = time.UTC
	}
	timeout := opts.SweepTimeout
	if timeout <= 0 {
		timeout = defaultSweepTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &ReminderScheduler{
		spec:    strings.TrimSpace(spec),
		runner:  runner,
		timeout: timeout,
		observe: opts.Observer,
		logger:  logger,
		baseCtx: context.Background(),
	}
	s.cron = cron.New(
		cron.WithParser(cron.NewParser(cron.Minute|cron.Hour|cron.Dom|cron.Month|cron.Dow|cron.Descriptor)),
		cron.WithLocation(location),
		cron.WithChain(cron.Recover(cron.DiscardLogger), cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	if _, err := s.cron.AddFunc(s.spec, s.tick); err != nil {
		return nil, fmt.Errorf("register reminder sweep: %w", err)
	}
	return s, nil
}

// Run starts the scheduler and blocks until ctx is done. It waits for a sweep
// in progress to finish before returning.
func (s *ReminderScheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	s.baseCtx = ctx
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info("reminder_scheduler_started", "schedule", s.spec)

	<-ctx.Done()
	stopped := s.cron.Stop()
	<-stopped.Done()
	s.logger.Info("reminder_scheduler_stopped")
	return nil
}

// Next reports when the next sweep fires.
func (s *ReminderScheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

func (s *ReminderScheduler) tick() {
	s.mu.Lock()
	base := s.baseCtx
	s.mu.Unlock()
	if base.Err() != nil {
		return
	}
	s.RunOnce(base)
}

// RunOnce performs a single sweep.
func (s *ReminderScheduler) RunOnce(ctx context.Context) (ports.ReminderReport, error) {
	sweepCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	report, err := s.runner.Run(sweepCtx)
	attrs := []any{
		"candidates", report.Candidates,
		"sent", report.Sent,
		"failed", report.Failed,
		"duration_ms", time.Since(start).Milliseconds(),
	}
	if err != nil {
		s.logger.Error("reminder_sweep_failed", append(attrs, "error", err)...)
	} else {
		s.logger.Info("reminder_sweep_finished", attrs...)
	}
	if s.observe != nil {
		s.observe(report, err)
	}
	return report, err
}
