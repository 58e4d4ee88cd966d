package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/termination-portal/internal/core/domain"
	"github.com/kirillkom/termination-portal/internal/core/ports"
)

const (
	DefaultReminderInterval  = 72 * time.Hour
	DefaultReminderBatchSize = 100
)

// ReminderSweep nudges clients whose intake has been idle for longer than
// the interval. One failing case does not stop the sweep.
type ReminderSweep struct {
	store     ports.Store
	sender    ports.CaseManager
	interval  time.Duration
	batchSize int
	logger    *slog.Logger
	now       func() time.Time
}

func NewReminderSweep(store ports.Store, sender ports.CaseManager, interval time.Duration, batchSize int, logger *slog.Logger) *ReminderSweep {
	if interval <= 0 {
		interval = DefaultReminderInterval
	}
	if batchSize <= 0 {
		batchSize = DefaultReminderBatchSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ReminderSweep{
		store:     store,
		sender:    sender,
		interval:  interval,
		batchSize: batchSize,
		logger:    logger,
		now:       utcNow,
	}
}

func (s *ReminderSweep) Run(ctx context.Context) (ports.ReminderReport, error) {
	cutoff := s.now().Add(-s.interval)
	cases, err := s.store.Cases().ListAwaitingReminder(ctx, cutoff, s.batchSize)
	if err != nil {
		return ports.ReminderReport{}, fmt.Errorf("list cases awaiting reminder: %w", err)
	}

	report := ports.ReminderReport{Candidates: len(cases)}
	for _, c := range cases {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if _, err := s.sender.SendReminder(ctx, domain.SystemActor, c.ID); err != nil {
			report.Failed++
			s.logger.Warn("reminder_failed", "case_id", c.ID, "error", err)
			continue
		}
		report.Sent++
	}
	s.logger.Info("reminder_sweep_done",
		"candidates", report.Candidates,
		"sent", report.Sent,
		"failed", report.Failed,
	)
	return report, nil
}
