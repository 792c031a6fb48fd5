package wallet

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/PuraVida-Technologies/galoy/internal/ledger"
)

// AccountBinder is notified of every new wallet so the owning account can
// adopt it as its default.
type AccountBinder interface {
	BindDefaultWallet(ctx context.Context, accountID, walletID string) error
}

// Service exposes wallet operations backed by the ledger.
type Service struct {
	repo   Repository
	ledger ledger.Ledger
	binder AccountBinder
}

// NewService builds a wallet service instance. binder may be nil.
func NewService(repo Repository, ledger ledger.Ledger, binder AccountBinder) *Service {
	return &Service{repo: repo, ledger: ledger, binder: binder}
}

// CreateInput captures data required to create a wallet.
type CreateInput struct {
	AccountID string
	Currency  string
}

// Create provisions a wallet and its ledger account.
func (s *Service) Create(ctx context.Context, input CreateInput) (Wallet, error) {
	if _, err := uuid.Parse(input.AccountID); err != nil {
		return Wallet{}, fmt.Errorf("account id: %w", err)
	}

	currency := input.Currency
	if currency == "" {
		currency = CurrencyBTC
	}
	if !SupportedCurrency(currency) {
		return Wallet{}, fmt.Errorf("%w: %s", ErrUnsupportedCurrency, currency)
	}

	wallet := Wallet{
		ID:        uuid.New().String(),
		AccountID: input.AccountID,
		Currency:  currency,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.ledger.EnsureAccount(ctx, wallet.ID); err != nil {
		return Wallet{}, err
	}
	if err := s.repo.Create(ctx, wallet); err != nil {
		return Wallet{}, err
	}
	if s.binder != nil {
		if err := s.binder.BindDefaultWallet(ctx, wallet.AccountID, wallet.ID); err != nil {
			return Wallet{}, err
		}
	}

	return wallet, nil
}

// Get retrieves wallet metadata.
func (s *Service) Get(ctx context.Context, id string) (Wallet, error) {
	return s.repo.FindByID(ctx, id)
}

// ListByAccount returns every wallet owned by the account.
func (s *Service) ListByAccount(ctx context.Context, accountID string) ([]Wallet, error) {
	return s.repo.ListByAccount(ctx, accountID)
}

// Balance returns the ledger balance for the wallet.
func (s *Service) Balance(ctx context.Context, id string) (Balance, error) {
	wallet, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return Balance{}, err
	}
	amount, err := s.ledger.Balance(ctx, wallet.ID)
	if err != nil {
		return Balance{}, err
	}
	return Balance{WalletID: wallet.ID, Currency: wallet.Currency, Amount: amount, AsOf: time.Now().UTC()}, nil
}
