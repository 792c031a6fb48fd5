package payments

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/PuraVida-Technologies/galoy/internal/account"
	"github.com/PuraVida-Technologies/galoy/internal/wallet"
)

// WalletLookup loads a wallet by id.
type WalletLookup func(ctx context.Context, id string) (wallet.Wallet, error)

// ValidateInput is the unchecked shape of a payment.
type ValidateInput struct {
	Amount            int64
	SenderAccount     account.Account
	SenderWalletID    string
	RecipientWalletID string
}

// ValidatedPayment holds the wallets a payment was checked against.
// RecipientWallet is nil when no recipient was given.
type ValidatedPayment struct {
	Amount          int64
	SenderWallet    wallet.Wallet
	RecipientWallet *wallet.Wallet
}

// Validator checks payment inputs. It performs no writes.
type Validator struct {
	lookup WalletLookup
}

// NewValidator builds a validator over lookup.
func NewValidator(lookup WalletLookup) *Validator {
	return &Validator{lookup: lookup}
}

// Validate applies the checks in order: amount, sender account status, sender
// wallet, wallet ownership, recipient wallet, self payment.
func (v *Validator) Validate(ctx context.Context, in ValidateInput) (ValidatedPayment, error) {
	if in.Amount <= 0 {
		return ValidatedPayment{}, invalid(ErrInvalidAmount, "got %d", in.Amount)
	}
	if !in.SenderAccount.Active() {
		return ValidatedPayment{}, invalid(ErrInvalidAccountStatus, "account %s is %s", in.SenderAccount.ID, in.SenderAccount.Status)
	}

	sender, err := v.wallet(ctx, in.SenderWalletID)
	if err != nil {
		return ValidatedPayment{}, err
	}
	if sender.AccountID != in.SenderAccount.ID {
		return ValidatedPayment{}, invalid(ErrInvalidWalletID, "wallet %s does not belong to the sender", sender.ID)
	}

	out := ValidatedPayment{Amount: in.Amount, SenderWallet: sender}
	if in.RecipientWalletID == "" {
		return out, nil
	}
	recipient, err := v.wallet(ctx, in.RecipientWalletID)
	if err != nil {
		return ValidatedPayment{}, err
	}
	if recipient.ID == sender.ID {
		return ValidatedPayment{}, ErrSelfPayment
	}
	out.RecipientWallet = &recipient
	return out, nil
}

func (v *Validator) wallet(ctx context.Context, id string) (wallet.Wallet, error) {
	if err := checkedToWalletID(id); err != nil {
		return wallet.Wallet{}, err
	}
	w, err := v.lookup(ctx, id)
	if errors.Is(err, wallet.ErrNotFound) || errors.Is(err, wallet.ErrInvalidID) {
		return wallet.Wallet{}, invalid(ErrInvalidWalletID, "wallet %s not found", id)
	}
	return w, err
}

func checkedToWalletID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return invalid(ErrInvalidWalletID, "%q is not a wallet id", id)
	}
	return nil
}
