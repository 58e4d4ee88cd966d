package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/termination-portal/internal/core/domain"
	"github.com/kirillkom/termination-portal/internal/core/ports"
	"github.com/kirillkom/termination-portal/internal/infrastructure/resilience"
)

const defaultQueueGroup = "workers"

// Bus publishes lifecycle events on <prefix>.<event type with dots> and
// delivers them to one member of the queue group.
type Bus struct {
	conn           *nats.Conn
	prefix         string
	queueGroup     string
	handlerTimeout time.Duration
	executor       *resilience.Executor
	logger         *slog.Logger
}

type Options struct {
	Name                 string
	QueueGroup           string
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	HandlerTimeout       time.Duration
	ResilienceExecutor   *resilience.Executor
	Logger               *slog.Logger
}

func New(url, prefix string, options Options) (*Bus, error) {
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}
	name := options.Name
	if name == "" {
		name = "termination-portal"
	}

	conn, err := nats.Connect(
		url,
		nats.Name(name),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return newBus(conn, prefix, options, logger), nil
}

func newBus(conn *nats.Conn, prefix string, options Options, logger *slog.Logger) *Bus {
	group := options.QueueGroup
	if group == "" {
		group = defaultQueueGroup
	}
	timeout := options.HandlerTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Bus{
		conn:           conn,
		prefix:         strings.TrimSuffix(strings.TrimSpace(prefix), "."),
		queueGroup:     group,
		handlerTimeout: timeout,
		executor:       options.ResilienceExecutor,
		logger:         logger,
	}
}

func (b *Bus) Close() {
	if b.conn != nil {
		b.conn.Close()
	}
}

// Subject maps an event type such as signature_bound to <prefix>.signature.bound.
func (b *Bus) Subject(eventType domain.CaseEventType) string {
	name := strings.ReplaceAll(string(eventType), "_", ".")
	if b.prefix == "" {
		return name
	}
	return b.prefix + "." + name
}

func (b *Bus) Publish(ctx context.Context, event ports.LifecycleEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal lifecycle event: %w", err)
	}
	subject := b.Subject(event.Type)

	call := func(_ context.Context) error {
		if err := b.conn.Publish(subject, payload); err != nil {
			return fmt.Errorf("nats publish %s: %w", subject, err)
		}
		return nil
	}

	if b.executor != nil {
		err = b.executor.Execute(ctx, "nats.publish", call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	return publishError(err)
}

// Subscribe blocks until ctx is cancelled, then drains the subscription.
// Handler failures are logged; core NATS does not redeliver.
func (b *Bus) Subscribe(ctx context.Context, eventType domain.CaseEventType, handler func(context.Context, ports.LifecycleEvent) error) error {
	subject := b.Subject(eventType)
	sub, err := b.conn.QueueSubscribe(subject, b.queueGroup, func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}
		b.dispatch(ctx, subject, msg.Data, handler)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", subject, err)
	}

	if err := b.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}
	b.logger.Info("nats_subscribed", "subject", subject, "queue_group", b.queueGroup)

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := b.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

func (b *Bus) dispatch(ctx context.Context, subject string, data []byte, handler func(context.Context, ports.LifecycleEvent) error) {
	event, err := decodeEvent(data)
	if err != nil {
		b.logger.Error("nats_event_decode_failed", "subject", subject, "error", err)
		return
	}

	handlerCtx, cancel := context.WithTimeout(ctx, b.handlerTimeout)
	defer cancel()
	if err := handler(handlerCtx, event); err != nil {
		b.logger.Error("nats_handler_failed",
			"subject", subject,
			"case_id", event.CaseID,
			"error", err,
		)
	}
}

func decodeEvent(data []byte) (ports.LifecycleEvent, error) {
	var event ports.LifecycleEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return ports.LifecycleEvent{}, fmt.Errorf("decode lifecycle event: %w", err)
	}
	if strings.TrimSpace(event.CaseID) == "" {
		return ports.LifecycleEvent{}, domain.WrapError(domain.ErrInvalidInput, "decode lifecycle event", errors.New("case_id is required"))
	}
	return event, nil
}
