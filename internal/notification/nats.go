package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sony/gobreaker"
)

// DefaultSubject is the subject payment events are published on.
const DefaultSubject = "galoy.intraledger.paid"

// ErrBrokerUnavailable is returned while the breaker rejects publishes.
var ErrBrokerUnavailable = errors.New("notification: broker unavailable")

// BreakerSettings tune when publishing to a failing broker is short-circuited.
type BreakerSettings struct {
	ConsecutiveFailures uint32
	OpenTimeout         time.Duration
	FlushTimeout        time.Duration
}

// DefaultBreakerSettings trips after five failures and probes every 30s.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{ConsecutiveFailures: 5, OpenTimeout: 30 * time.Second, FlushTimeout: 2 * time.Second}
}

// NATSNotifier publishes JSON events to NATS behind a circuit breaker.
type NATSNotifier struct {
	conn         *nats.Conn
	subject      string
	flushTimeout time.Duration
	breaker      *gobreaker.CircuitBreaker
}

// NewNATSNotifier builds a notifier on an established connection.
func NewNATSNotifier(conn *nats.Conn, subject string, settings BreakerSettings, logger *slog.Logger) *NATSNotifier {
	if subject == "" {
		subject = DefaultSubject
	}
	if settings.ConsecutiveFailures == 0 {
		settings.ConsecutiveFailures = DefaultBreakerSettings().ConsecutiveFailures
	}
	if settings.FlushTimeout <= 0 {
		settings.FlushTimeout = DefaultBreakerSettings().FlushTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "notification-nats",
		Timeout: settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= settings.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return &NATSNotifier{conn: conn, subject: subject, flushTimeout: settings.FlushTimeout, breaker: breaker}
}

// IntraLedgerPaid publishes event and waits for the server to acknowledge the
// flush.
func (n *NATSNotifier) IntraLedgerPaid(ctx context.Context, event IntraLedgerPaid) error {
	event.Kind = KindIntraLedgerPaid
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("notification: encode: %w", err)
	}

	msg := nats.NewMsg(n.subject)
	msg.Data = payload
	msg.Header.Set(nats.MsgIdHdr, event.JournalID)

	_, err = n.breaker.Execute(func() (interface{}, error) {
		if err := n.conn.PublishMsg(msg); err != nil {
			return nil, err
		}
		flushCtx, cancel := context.WithTimeout(ctx, n.flushTimeout)
		defer cancel()
		return nil, n.conn.FlushWithContext(flushCtx)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %w", ErrBrokerUnavailable, err)
	}
	if err != nil {
		return fmt.Errorf("notification: publish %s: %w", n.subject, err)
	}
	return nil
}

// State exposes the breaker state for health reporting.
func (n *NATSNotifier) State() string {
	return n.breaker.State().String()
}
