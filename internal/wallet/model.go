package wallet

import (
	"errors"
	"time"
)

// Supported wallet currencies. Amounts are stored in base units (sats, cents).
const (
	CurrencyBTC = "BTC"
	CurrencyUSD = "USD"
)

var (
	// ErrNotFound is returned when no wallet matches the identifier.
	ErrNotFound = errors.New("wallet not found")
	// ErrExists is returned when a wallet id is already taken.
	ErrExists = errors.New("wallet exists")
	// ErrUnsupportedCurrency rejects currencies other than BTC and USD.
	ErrUnsupportedCurrency = errors.New("unsupported wallet currency")
	// ErrInvalidID rejects identifiers that are not UUIDs.
	ErrInvalidID = errors.New("invalid wallet id")
)

// Wallet is a ledger-backed balance owned by exactly one account.
type Wallet struct {
	ID        string
	AccountID string
	Currency  string
	CreatedAt time.Time
}

// Balance encapsulates available funds for a wallet.
type Balance struct {
	WalletID string
	Currency string
	Amount   int64
	AsOf     time.Time
}

// SupportedCurrency reports whether c can back a wallet.
func SupportedCurrency(c string) bool {
	return c == CurrencyBTC || c == CurrencyUSD
}
