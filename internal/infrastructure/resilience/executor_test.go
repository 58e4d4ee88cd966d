package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/kirillkom/termination-portal/internal/core/domain"
)

var (
	errThrottled = errors.New("mail provider throttled")
	errRejected  = errors.New("recipient rejected")
)

type recordingObserver struct {
	retries     []int
	transitions []string
}

func (o *recordingObserver) Retry(_ string, attempt int) {
	o.retries = append(o.retries, attempt)
}

func (o *recordingObserver) BreakerStateChanged(_, from, to string) {
	o.transitions = append(o.transitions, from+"->"+to)
}

func fastRetries(attempts int) Config {
	return Config{
		RetryMaxAttempts:    attempts,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     2 * time.Millisecond,
		RetryMultiplier:     2,
	}
}

func classifyMail(err error) ErrorClassification {
	switch {
	case errors.Is(err, errThrottled):
		return Transient
	case errors.Is(err, errRejected):
		return CallerError
	default:
		return Permanent
	}
}

// failing returns an operation that fails with err for the first n calls.
func failing(n int, err error, calls *int) func(context.Context) error {
	return func(context.Context) error {
		*calls++
		if *calls <= n {
			return err
		}
		return nil
	}
}

func TestExecuteRetries(t *testing.T) {
	tests := []struct {
		name      string
		failures  int
		err       error
		wantCalls int
		wantErr   error
	}{
		{name: "throttling recovers", failures: 2, err: errThrottled, wantCalls: 3},
		{name: "throttling exhausts attempts", failures: 5, err: errThrottled, wantCalls: 3, wantErr: errThrottled},
		{name: "rejection is not retried", failures: 5, err: errRejected, wantCalls: 1, wantErr: errRejected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			observer := &recordingObserver{}
			exec := NewExecutor(fastRetries(3), WithObserver(observer))

			calls := 0
			err := exec.Execute(context.Background(), "ses.send_email", failing(tt.failures, tt.err, &calls), classifyMail)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Execute() error = %v, want %v", err, tt.wantErr)
			}
			if calls != tt.wantCalls {
				t.Fatalf("calls = %d, want %d", calls, tt.wantCalls)
			}
			if len(observer.retries) != tt.wantCalls-1 {
				t.Fatalf("observed retries %v for %d calls", observer.retries, calls)
			}
		})
	}
}

func TestExecuteOpensCircuitAfterFailures(t *testing.T) {
	observer := &recordingObserver{}
	cfg := fastRetries(1)
	cfg.BreakerEnabled = true
	cfg.BreakerMinRequests = 2
	cfg.BreakerFailureRatio = 0.5
	cfg.BreakerOpenTimeout = time.Minute
	cfg.BreakerHalfOpenMaxCalls = 1
	exec := NewExecutor(cfg, WithObserver(observer))

	outage := errors.New("s3 unavailable")
	for i := 0; i < 2; i++ {
		calls := 0
		if err := exec.Execute(context.Background(), "s3.put_object", failing(1, outage, &calls), nil); !errors.Is(err, outage) {
			t.Fatalf("call %d: expected outage error, got %v", i, err)
		}
	}

	err := exec.Execute(context.Background(), "s3.put_object", func(context.Context) error {
		t.Fatalf("open circuit must not call the operation")
		return nil
	}, nil)
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("expected open state error, got %v", err)
	}
	if len(observer.transitions) != 1 || observer.transitions[0] != "closed->open" {
		t.Fatalf("expected closed->open transition, got %v", observer.transitions)
	}
	if wrapped := WrapTemporary("s3 put object", err, nil); !domain.IsKind(wrapped, domain.ErrTemporary) {
		t.Fatalf("expected open circuit to surface as temporary, got %v", wrapped)
	}

	calls := 0
	if err := exec.Execute(context.Background(), "ses.send_email", failing(0, nil, &calls), nil); err != nil || calls != 1 {
		t.Fatalf("breakers must be per operation: err=%v calls=%d", err, calls)
	}
}

func TestCallerErrorsDoNotTripBreaker(t *testing.T) {
	cfg := fastRetries(1)
	cfg.BreakerEnabled = true
	cfg.BreakerMinRequests = 1
	cfg.BreakerFailureRatio = 0.1
	exec := NewExecutor(cfg)

	for i := 0; i < 5; i++ {
		calls := 0
		err := exec.Execute(context.Background(), "ses.send_email", failing(1, errRejected, &calls), classifyMail)
		if !errors.Is(err, errRejected) || calls != 1 {
			t.Fatalf("call %d: err=%v calls=%d", i, err, calls)
		}
	}
}

func TestExecuteStopsRetryingWhenContextEnds(t *testing.T) {
	cfg := fastRetries(5)
	cfg.RetryInitialBackoff = 50 * time.Millisecond
	cfg.RetryMaxBackoff = 50 * time.Millisecond
	exec := NewExecutor(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := exec.Execute(ctx, "render.remote", func(context.Context) error {
		calls++
		cancel()
		return errThrottled
	}, classifyMail)
	if !errors.Is(err, errThrottled) {
		t.Fatalf("expected last attempt error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 attempt after cancel, got %d", calls)
	}
}

func TestNormalizeFillsDefaults(t *testing.T) {
	got := Config{RetryInitialBackoff: time.Second, RetryMultiplier: 0.5}.normalize()
	def := DefaultConfig()
	if got.RetryMaxAttempts != def.RetryMaxAttempts || got.RetryMultiplier != def.RetryMultiplier {
		t.Fatalf("unexpected retry defaults %+v", got)
	}
	if got.RetryMaxBackoff != time.Second {
		t.Fatalf("max backoff must not undercut the initial backoff, got %s", got.RetryMaxBackoff)
	}
	if got.BreakerMinRequests != def.BreakerMinRequests || got.BreakerOpenTimeout != def.BreakerOpenTimeout {
		t.Fatalf("unexpected breaker defaults %+v", got)
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassifyCommon(t *testing.T) {
	var _ net.Error = timeoutErr{}
	tests := []struct {
		err    error
		want   ErrorClassification
		wantOK bool
	}{
		{err: context.Canceled, want: CallerError, wantOK: true},
		{err: fmt.Errorf("wrapped: %w", context.DeadlineExceeded), want: CallerError, wantOK: true},
		{err: gobreaker.ErrOpenState, want: Transient, wantOK: true},
		{err: &net.OpError{Op: "dial", Err: timeoutErr{}}, want: Transient, wantOK: true},
		{err: errRejected, wantOK: false},
	}
	for _, tt := range tests {
		got, ok := ClassifyCommon(tt.err)
		if ok != tt.wantOK || (ok && got != tt.want) {
			t.Fatalf("ClassifyCommon(%v) = %+v, %t; want %+v, %t", tt.err, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestClassifyHTTPStatus(t *testing.T) {
	for code, want := range map[int]ErrorClassification{
		http.StatusTooManyRequests:     Transient,
		http.StatusRequestTimeout:      Transient,
		http.StatusBadGateway:          Transient,
		http.StatusInternalServerError: Transient,
		http.StatusBadRequest:          CallerError,
		http.StatusForbidden:           CallerError,
		http.StatusNotFound:            CallerError,
	} {
		if got := ClassifyHTTPStatus(code); got != want {
			t.Fatalf("ClassifyHTTPStatus(%d) = %+v, want %+v", code, got, want)
		}
	}
}

func TestWrapTemporaryLeavesPermanentErrors(t *testing.T) {
	if got := WrapTemporary("ses send email", errRejected, classifyMail); domain.IsKind(got, domain.ErrTemporary) {
		t.Fatalf("permanent error must not be marked temporary: %v", got)
	}
	if got := WrapTemporary("ses send email", errThrottled, classifyMail); !domain.IsKind(got, domain.ErrTemporary) {
		t.Fatalf("retryable error must be marked temporary: %v", got)
	}
	if WrapTemporary("ses send email", nil, classifyMail) != nil {
		t.Fatalf("nil error must stay nil")
	}
}
