package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrInsufficientFunds occurs when the sender account lacks the balance
	// to cover a posting.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrDuplicateTransaction indicates the sender wallet already recorded the
	// client transaction identifier; the existing journal is returned
	// alongside it.
	ErrDuplicateTransaction = errors.New("duplicate transaction")

	// ErrJournalNotFound is returned by FindByClientTxID when nothing matches.
	ErrJournalNotFound = errors.New("journal not found")

	// ErrAccountNotFound is returned when a wallet has no ledger account.
	ErrAccountNotFound = errors.New("ledger account not found")

	// ErrInvalidAmount rejects non-positive postings.
	ErrInvalidAmount = errors.New("amount must be positive")
)

// KindIntraledger tags journals produced by wallet to wallet payments.
const KindIntraledger = "intraledger"

// WalletAccountCode maps a wallet to its ledger account.
func WalletAccountCode(walletID string) string {
	return "wallet:" + walletID
}

// IntraledgerTransfer describes a payment between two wallets of the ledger.
type IntraledgerTransfer struct {
	SenderWalletID    string
	RecipientWalletID string
	SenderCurrency    string
	RecipientCurrency string
	Amount            int64
	DisplayAmount     decimal.Decimal
	DisplayCurrency   string
	Memo              string
	SenderUsername    string
	RecipientUsername string
	// ClientTxID deduplicates retried requests of the sender wallet. Empty
	// disables deduplication.
	ClientTxID string
}

// Journal is the recorded outcome of a transfer.
type Journal struct {
	ID                string
	Kind              string
	ClientTxID        string
	SenderWalletID    string
	RecipientWalletID string
	Amount            int64
	SenderBalance     int64
	RecipientBalance  int64
	CreatedAt         time.Time
}

// Ledger defines the contract implemented by ledger backends.
type Ledger interface {
	EnsureAccount(ctx context.Context, walletID string) error
	Balance(ctx context.Context, walletID string) (int64, error)
	RecordIntraledgerTransfer(ctx context.Context, t IntraledgerTransfer) (Journal, error)
	// FindByClientTxID returns the journal senderWalletID recorded under
	// clientTxID, with balances as of now.
	FindByClientTxID(ctx context.Context, senderWalletID, clientTxID string) (Journal, error)
}
