package account

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Service manages the account lifecycle.
type Service struct {
	repo Repository
}

// NewService creates a new account service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// CreateInput captures data required to open an account.
type CreateInput struct {
	Username string
	Level    int
}

// Create opens an active account. The username is optional.
func (s *Service) Create(ctx context.Context, input CreateInput) (Account, error) {
	var username string
	if input.Username != "" {
		u, err := NormalizeUsername(input.Username)
		if err != nil {
			return Account{}, err
		}
		username = u
	}
	level := input.Level
	if level <= 0 {
		level = 1
	}

	a := Account{
		ID:        uuid.New().String(),
		Username:  username,
		Status:    StatusActive,
		Level:     level,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, a); err != nil {
		return Account{}, err
	}
	return a, nil
}

// Get fetches an account by id.
func (s *Service) Get(ctx context.Context, id string) (Account, error) {
	return s.repo.FindByID(ctx, id)
}

// FindByUsername resolves a username, case-insensitively.
func (s *Service) FindByUsername(ctx context.Context, username string) (Account, error) {
	u, err := NormalizeUsername(username)
	if err != nil {
		return Account{}, err
	}
	return s.repo.FindByUsername(ctx, u)
}

// SetStatus moves the account to status.
func (s *Service) SetStatus(ctx context.Context, id, status string) error {
	if !validStatus(status) {
		return fmt.Errorf("%w: %s", ErrInvalidStatus, status)
	}
	return s.repo.UpdateStatus(ctx, id, status)
}

// BindDefaultWallet makes walletID the default of an account that has none.
func (s *Service) BindDefaultWallet(ctx context.Context, accountID, walletID string) error {
	a, err := s.repo.FindByID(ctx, accountID)
	if err != nil {
		return err
	}
	if a.DefaultWalletID != "" {
		return nil
	}
	return s.repo.SetDefaultWallet(ctx, accountID, walletID)
}

// Contacts lists the counterparties of an account.
func (s *Service) Contacts(ctx context.Context, accountID string) ([]Contact, error) {
	return s.repo.Contacts(ctx, accountID)
}
