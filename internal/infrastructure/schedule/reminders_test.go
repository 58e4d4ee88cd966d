package schedule

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kirillkom/termination-portal/internal/core/ports"
	"github.com/kirillkom/termination-portal/internal/observability/logging"
)

type fakeRunner struct {
	calls  atomic.Int32
	report ports.ReminderReport
	err    error
}

func (f *fakeRunner) Run(context.Context) (ports.ReminderReport, error) {
	f.calls.Add(1)
	return f.report, f.err
}

func quietLogger() *slog.Logger {
	return logging.Discard()
}

func TestParseSpec(t *testing.T) {
	for _, spec := range []string{"0 9 * * *", "*/15 * * * 1-5", "@hourly", " @every 1h "} {
		if _, err := ParseSpec(spec); err != nil {
			t.Fatalf("ParseSpec(%q): %v", spec, err)
		}
	}
	for _, spec := range []string{"", "61 * * * *", "0 0 9 * * *", "tomorrow"} {
		if _, err := ParseSpec(spec); err == nil {
			t.Fatalf("ParseSpec(%q) expected error", spec)
		}
	}
}

func TestNewReminderSchedulerRejectsBadInput(t *testing.T) {
	if _, err := NewReminderScheduler("0 9 * * *", nil, Options{}); err == nil {
		t.Fatalf("expected error for nil runner")
	}
	if _, err := NewReminderScheduler("not a schedule", &fakeRunner{}, Options{}); err == nil {
		t.Fatalf("expected error for bad schedule")
	}
}

func TestRunOnceReportsToObserver(t *testing.T) {
	runner := &fakeRunner{report: ports.ReminderReport{Candidates: 3, Sent: 2, Failed: 1}}
	var observed ports.ReminderReport
	s, err := NewReminderScheduler("0 9 * * *", runner, Options{
		Logger:   quietLogger(),
		Observer: func(report ports.ReminderReport, _ error) { observed = report },
	})
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}

	report, err := s.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if report != runner.report || observed != runner.report {
		t.Fatalf("unexpected reports: got %+v observed %+v", report, observed)
	}

	runner.err = errors.New("store down")
	var observedErr error
	s.observe = func(_ ports.ReminderReport, err error) { observedErr = err }
	if _, err := s.RunOnce(context.Background()); err == nil || observedErr == nil {
		t.Fatalf("expected sweep error to be returned and observed")
	}
}

func TestNextUsesConfiguredLocation(t *testing.T) {
	s, err := NewReminderScheduler("0 9 * * *", &fakeRunner{}, Options{Logger: quietLogger()})
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	deadline := time.Now().Add(time.Second)
	for s.Next().IsZero() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	next := s.Next().UTC()
	if next.Hour() != 9 || next.Minute() != 0 {
		t.Fatalf("expected next run at 09:00 UTC, got %s", next)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("scheduler did not stop")
	}
}

func TestRunFiresSweeps(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for a real cron tick")
	}
	runner := &fakeRunner{}
	s, err := NewReminderScheduler("@every 1s", runner, Options{Logger: quietLogger()})
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Run(ctx) }()

	deadline := time.Now().Add(3 * time.Second)
	for runner.calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	if runner.calls.Load() == 0 {
		t.Fatalf("expected at least one sweep")
	}
}
