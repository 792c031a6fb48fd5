package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type inMemoryLedger struct {
	mu       sync.RWMutex
	balances map[string]int64
	byClient map[string]Journal
	journals []recorded
}

type recorded struct {
	Journal
	transfer IntraledgerTransfer
}

// NewInMemory creates a concurrency-safe in-memory ledger useful for unit
// tests and local development.
func NewInMemory() Ledger {
	return &inMemoryLedger{
		balances: make(map[string]int64),
		byClient: make(map[string]Journal),
	}
}

func (l *inMemoryLedger) EnsureAccount(_ context.Context, walletID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	code := WalletAccountCode(walletID)
	if _, exists := l.balances[code]; !exists {
		l.balances[code] = 0
	}
	return nil
}

func (l *inMemoryLedger) Balance(_ context.Context, walletID string) (int64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	balance, exists := l.balances[WalletAccountCode(walletID)]
	if !exists {
		return 0, ErrAccountNotFound
	}
	return balance, nil
}

func (l *inMemoryLedger) RecordIntraledgerTransfer(_ context.Context, t IntraledgerTransfer) (Journal, error) {
	if t.Amount <= 0 {
		return Journal{}, ErrInvalidAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if t.ClientTxID != "" {
		if j, exists := l.byClient[clientKey(t.SenderWalletID, t.ClientTxID)]; exists {
			return l.withBalances(j), ErrDuplicateTransaction
		}
	}

	fromCode := WalletAccountCode(t.SenderWalletID)
	toCode := WalletAccountCode(t.RecipientWalletID)
	fromBalance, ok := l.balances[fromCode]
	if !ok {
		return Journal{}, ErrAccountNotFound
	}
	toBalance, ok := l.balances[toCode]
	if !ok {
		return Journal{}, ErrAccountNotFound
	}
	if fromBalance < t.Amount {
		return Journal{}, ErrInsufficientFunds
	}

	fromBalance -= t.Amount
	toBalance += t.Amount
	l.balances[fromCode] = fromBalance
	l.balances[toCode] = toBalance

	j := Journal{
		ID:                uuid.NewString(),
		Kind:              KindIntraledger,
		ClientTxID:        t.ClientTxID,
		SenderWalletID:    t.SenderWalletID,
		RecipientWalletID: t.RecipientWalletID,
		Amount:            t.Amount,
		SenderBalance:     fromBalance,
		RecipientBalance:  toBalance,
		CreatedAt:         time.Now().UTC(),
	}
	if t.ClientTxID != "" {
		l.byClient[clientKey(t.SenderWalletID, t.ClientTxID)] = j
	}
	l.journals = append(l.journals, recorded{Journal: j, transfer: t})
	return j, nil
}

func (l *inMemoryLedger) FindByClientTxID(_ context.Context, senderWalletID, clientTxID string) (Journal, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	j, exists := l.byClient[clientKey(senderWalletID, clientTxID)]
	if !exists || clientTxID == "" {
		return Journal{}, ErrJournalNotFound
	}
	return l.withBalances(j), nil
}

// withBalances refreshes the balances of a stored journal. Callers hold mu.
func (l *inMemoryLedger) withBalances(j Journal) Journal {
	j.SenderBalance = l.balances[WalletAccountCode(j.SenderWalletID)]
	j.RecipientBalance = l.balances[WalletAccountCode(j.RecipientWalletID)]
	return j
}

func clientKey(senderWalletID, clientTxID string) string {
	return senderWalletID + ":" + clientTxID
}

// OutgoingVolumeSince sums what walletID sent in journals created at or after
// since.
func (l *inMemoryLedger) OutgoingVolumeSince(_ context.Context, walletID string, since time.Time) (int64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var total int64
	for _, j := range l.journals {
		if j.transfer.SenderWalletID == walletID && !j.CreatedAt.Before(since) {
			total += j.Amount
		}
	}
	return total, nil
}
