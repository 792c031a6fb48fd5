package payments

import (
	"errors"
	"fmt"
)

// ValidationError rejects a payment request before any lock is taken.
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// Validation failures. Compare with errors.Is; errors.As with a
// *ValidationError matches any of them.
var (
	ErrInvalidAmount        = &ValidationError{Code: "INVALID_AMOUNT", Message: "amount must be positive"}
	ErrInvalidAccountStatus = &ValidationError{Code: "INVALID_ACCOUNT_STATUS", Message: "account is not active"}
	ErrInvalidWalletID      = &ValidationError{Code: "INVALID_WALLET_ID", Message: "invalid wallet id"}
	ErrSelfPayment          = &ValidationError{Code: "SELF_PAYMENT", Message: "cannot pay to the sending wallet"}
	ErrUnknownRecipient     = &ValidationError{Code: "UNKNOWN_RECIPIENT", Message: "recipient not found"}
)

var (
	// ErrInsufficientBalance is returned when the balance read under the lock
	// does not cover the amount.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrNotImplemented covers payments between wallets of different
	// currencies.
	ErrNotImplemented = errors.New("cross currency intraledger payments are not implemented")
	// ErrIdempotencyKeyReused is returned when the sender wallet already paid
	// a different recipient or amount under the same idempotency key.
	ErrIdempotencyKeyReused = errors.New("idempotency key was used for a different payment")
)

func invalid(base *ValidationError, format string, args ...any) error {
	return fmt.Errorf("%w: %s", base, fmt.Sprintf(format, args...))
}
