package nats

import (
	"context"
	"errors"

	"github.com/nats-io/nats.go"

	"github.com/trustdoc/custody/internal/core/domain"
	"github.com/trustdoc/custody/internal/infrastructure/resilience"
)

func classifyNATSError(err error) resilience.Verdict {
	if err == nil {
		return resilience.Verdict{}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.Verdict{Retry: false, CountFailure: false}
	}
	if resilience.IsCircuitOpen(err) {
		return resilience.Verdict{Retry: true, CountFailure: true}
	}
	if errors.Is(err, nats.ErrNoServers) ||
		errors.Is(err, nats.ErrTimeout) ||
		errors.Is(err, nats.ErrConnectionClosed) ||
		errors.Is(err, nats.ErrDisconnected) {
		return resilience.Verdict{Retry: true, CountFailure: true}
	}

	return resilience.Verdict{Retry: false, CountFailure: true}
}

func wrapTemporaryIfNeeded(err error) error {
	if err == nil {
		return nil
	}
	if domain.IsKind(err, domain.ErrTemporary) {
		return err
	}
	verdict := classifyNATSError(err)
	if verdict.Retry || resilience.IsCircuitOpen(err) {
		return domain.WrapError(domain.ErrTemporary, "publish reconcile", err)
	}
	return err
}
