package account

import (
	"context"
	"sort"
	"sync"
	"time"
)

type memoryRepository struct {
	mu         sync.RWMutex
	accounts   map[string]Account
	byUsername map[string]string
	contacts   map[string]map[string]Contact
}

// NewMemoryRepository builds an in-memory account store for tests.
func NewMemoryRepository() Repository {
	return &memoryRepository{
		accounts:   make(map[string]Account),
		byUsername: make(map[string]string),
		contacts:   make(map[string]map[string]Contact),
	}
}

func (r *memoryRepository) Create(_ context.Context, a Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a.Username != "" {
		if _, exists := r.byUsername[a.Username]; exists {
			return ErrUsernameTaken
		}
		r.byUsername[a.Username] = a.ID
	}
	r.accounts[a.ID] = a
	return nil
}

func (r *memoryRepository) FindByID(_ context.Context, id string) (Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.accounts[id]
	if !ok {
		return Account{}, ErrNotFound
	}
	return a, nil
}

func (r *memoryRepository) FindByUsername(_ context.Context, username string) (Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byUsername[username]
	if !ok {
		return Account{}, ErrNotFound
	}
	return r.accounts[id], nil
}

func (r *memoryRepository) SetDefaultWallet(_ context.Context, accountID, walletID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[accountID]
	if !ok {
		return ErrNotFound
	}
	a.DefaultWalletID = walletID
	r.accounts[accountID] = a
	return nil
}

func (r *memoryRepository) UpdateStatus(_ context.Context, accountID, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[accountID]
	if !ok {
		return ErrNotFound
	}
	a.Status = status
	r.accounts[accountID] = a
	return nil
}

func (r *memoryRepository) AddContact(_ context.Context, accountID, username string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.accounts[accountID]; !ok {
		return ErrNotFound
	}
	book, ok := r.contacts[accountID]
	if !ok {
		book = make(map[string]Contact)
		r.contacts[accountID] = book
	}
	c := book[username]
	c.Username = username
	c.TransactionsCount++
	c.UpdatedAt = time.Now().UTC()
	book[username] = c
	return nil
}

func (r *memoryRepository) Contacts(_ context.Context, accountID string) ([]Contact, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Contact, 0, len(r.contacts[accountID]))
	for _, c := range r.contacts[accountID] {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}
