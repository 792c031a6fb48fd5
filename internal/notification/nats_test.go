package notification

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/PuraVida-Technologies/galoy/internal/logging"
)

func newConn(t *testing.T) *nats.Conn {
	t.Helper()
	s := natsserver.RunRandClientPortServer()
	conn, err := nats.Connect(s.ClientURL())
	require.NoError(t, err)
	t.Cleanup(func() {
		conn.Close()
		s.Shutdown()
	})
	return conn
}

func TestNATSNotifierPublishesEvent(t *testing.T) {
	conn := newConn(t)
	sub, err := conn.SubscribeSync("payments.test")
	require.NoError(t, err)

	n := NewNATSNotifier(conn, "payments.test", DefaultBreakerSettings(), logging.Discard())
	event := IntraLedgerPaid{
		JournalID:         "journal-1",
		SenderWalletID:    "w1",
		RecipientWalletID: "w2",
		Amount:            1_000,
		Currency:          "BTC",
		DisplayAmount:     decimal.RequireFromString("0.50"),
		DisplayCurrency:   "USD",
		PaidAt:            time.Now().UTC(),
	}
	require.NoError(t, n.IntraLedgerPaid(context.Background(), event))

	msg, err := sub.NextMsg(time.Second)
	require.NoError(t, err)
	require.Equal(t, "journal-1", msg.Header.Get(nats.MsgIdHdr))

	var got IntraLedgerPaid
	require.NoError(t, json.Unmarshal(msg.Data, &got))
	require.Equal(t, KindIntraLedgerPaid, got.Kind)
	require.Equal(t, int64(1_000), got.Amount)
	require.True(t, got.DisplayAmount.Equal(decimal.RequireFromString("0.5")))
	require.Equal(t, "closed", n.State())
}

func TestNATSNotifierTripsBreaker(t *testing.T) {
	conn := newConn(t)
	settings := BreakerSettings{ConsecutiveFailures: 2, OpenTimeout: time.Minute, FlushTimeout: 100 * time.Millisecond}
	n := NewNATSNotifier(conn, "", settings, logging.Discard())
	conn.Close()

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		err := n.IntraLedgerPaid(ctx, IntraLedgerPaid{JournalID: "j"})
		require.ErrorIs(t, err, nats.ErrConnectionClosed)
	}
	err := n.IntraLedgerPaid(ctx, IntraLedgerPaid{JournalID: "j"})
	require.ErrorIs(t, err, ErrBrokerUnavailable)
	require.Equal(t, "open", n.State())
}

func TestLoggerNotifierNeverFails(t *testing.T) {
	require.NoError(t, NewLoggerNotifier(logging.Discard()).IntraLedgerPaid(context.Background(), IntraLedgerPaid{}))
	var nilNotifier *LoggerNotifier
	require.NoError(t, nilNotifier.IntraLedgerPaid(context.Background(), IntraLedgerPaid{}))
}
