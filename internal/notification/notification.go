package notification

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// KindIntraLedgerPaid is published once an intraledger payment committed.
	KindIntraLedgerPaid = "intraledger.paid"
)

// IntraLedgerPaid describes a committed intraledger payment.
type IntraLedgerPaid struct {
	Kind               string          `json:"kind"`
	JournalID          string          `json:"journal_id"`
	SenderAccountID    string          `json:"sender_account_id"`
	SenderWalletID     string          `json:"sender_wallet_id"`
	RecipientAccountID string          `json:"recipient_account_id"`
	RecipientWalletID  string          `json:"recipient_wallet_id"`
	Amount             int64           `json:"amount"`
	Currency           string          `json:"currency"`
	DisplayAmount      decimal.Decimal `json:"display_amount"`
	DisplayCurrency    string          `json:"display_currency"`
	PricePerSat        decimal.Decimal `json:"price_per_sat"`
	Memo               string          `json:"memo,omitempty"`
	PaidAt             time.Time       `json:"paid_at"`
}

// Notifier delivers payment events to downstream systems.
type Notifier interface {
	IntraLedgerPaid(ctx context.Context, event IntraLedgerPaid) error
}

// LoggerNotifier writes notifications to the logger. Used when no broker is
// configured.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// IntraLedgerPaid writes the event to the structured logger.
func (n *LoggerNotifier) IntraLedgerPaid(_ context.Context, event IntraLedgerPaid) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("notification",
		"kind", KindIntraLedgerPaid,
		"journal_id", event.JournalID,
		"recipient_account_id", event.RecipientAccountID,
		"amount", event.Amount,
		"currency", event.Currency,
		"display_amount", event.DisplayAmount.String(),
	)
	return nil
}
