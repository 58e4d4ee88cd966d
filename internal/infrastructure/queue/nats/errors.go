package nats

import (
	"errors"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/termination-portal/internal/infrastructure/resilience"
)

// transientConnErrors are the connection states a reconnecting client
// recovers from on its own.
var transientConnErrors = []error{
	nats.ErrNoServers,
	nats.ErrTimeout,
	nats.ErrConnectionClosed,
	nats.ErrConnectionReconnecting,
	nats.ErrDisconnected,
}

func classifyNATSError(err error) resilience.ErrorClassification {
	if class, ok := resilience.ClassifyCommon(err); ok {
		return class
	}
	for _, target := range transientConnErrors {
		if errors.Is(err, target) {
			return resilience.Transient
		}
	}
	return resilience.Permanent
}

// publishError turns an exhausted or rejected publish into ErrTemporary so
// callers can tell a broker outage from a malformed event.
func publishError(err error) error {
	return resilience.WrapTemporary("nats publish", err, classifyNATSError)
}
