package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func newSeeded(t *testing.T, balance int64) Ledger {
	t.Helper()
	l := NewInMemory()
	ctx := context.Background()
	if err := l.EnsureAccount(ctx, "a"); err != nil {
		t.Fatalf("ensure account a: %v", err)
	}
	if err := l.EnsureAccount(ctx, "b"); err != nil {
		t.Fatalf("ensure account b: %v", err)
	}
	SeedBalance(l, "a", balance)
	return l
}

func transfer(clientTxID string, amount int64) IntraledgerTransfer {
	return IntraledgerTransfer{
		SenderWalletID:    "a",
		RecipientWalletID: "b",
		SenderCurrency:    "BTC",
		RecipientCurrency: "BTC",
		Amount:            amount,
		DisplayAmount:     decimal.NewFromInt(amount).Shift(-2),
		DisplayCurrency:   "USD",
		ClientTxID:        clientTxID,
	}
}

func TestInMemoryLedger_TransferMaintainsBalance(t *testing.T) {
	l := newSeeded(t, 10_000)
	ctx := context.Background()

	j, err := l.RecordIntraledgerTransfer(ctx, transfer("client-1", 1_500))
	if err != nil {
		t.Fatalf("transfer failed: %v", err)
	}
	if j.SenderBalance != 8_500 {
		t.Fatalf("expected sender balance 8500, got %d", j.SenderBalance)
	}
	if j.RecipientBalance != 1_500 {
		t.Fatalf("expected recipient balance 1500, got %d", j.RecipientBalance)
	}
	if j.Kind != KindIntraledger || j.ID == "" {
		t.Fatalf("unexpected journal %+v", j)
	}

	a, _ := l.Balance(ctx, "a")
	b, _ := l.Balance(ctx, "b")
	if a+b != 10_000 {
		t.Fatalf("ledger not balanced, total=%d", a+b)
	}

	last, ok := LastTransfer(l)
	if !ok || last.DisplayCurrency != "USD" || !last.DisplayAmount.Equal(decimal.RequireFromString("15")) {
		t.Fatalf("unexpected stored transfer %+v", last)
	}
}

func TestInMemoryLedger_DuplicateTransaction(t *testing.T) {
	l := newSeeded(t, 5_000)
	ctx := context.Background()

	first, err := l.RecordIntraledgerTransfer(ctx, transfer("dup", 500))
	if err != nil {
		t.Fatalf("initial transfer failed: %v", err)
	}
	again, err := l.RecordIntraledgerTransfer(ctx, transfer("dup", 500))
	if !errors.Is(err, ErrDuplicateTransaction) {
		t.Fatalf("expected duplicate error, got %v", err)
	}
	if again.ID != first.ID {
		t.Fatalf("duplicate must return the stored journal, got %s want %s", again.ID, first.ID)
	}
	if n := JournalCount(l); n != 1 {
		t.Fatalf("expected one journal, got %d", n)
	}
}

func TestInMemoryLedger_ClientTxIDScopedToSender(t *testing.T) {
	l := newSeeded(t, 5_000)
	ctx := context.Background()
	if err := l.EnsureAccount(ctx, "c"); err != nil {
		t.Fatalf("ensure account: %v", err)
	}
	SeedBalance(l, "c", 5_000)

	first, err := l.RecordIntraledgerTransfer(ctx, transfer("k1", 500))
	if err != nil {
		t.Fatalf("transfer from a: %v", err)
	}
	other := transfer("k1", 700)
	other.SenderWalletID = "c"
	second, err := l.RecordIntraledgerTransfer(ctx, other)
	if err != nil {
		t.Fatalf("same key from another wallet must record, got %v", err)
	}
	if second.ID == first.ID || JournalCount(l) != 2 {
		t.Fatalf("expected two journals, got %d", JournalCount(l))
	}

	found, err := l.FindByClientTxID(ctx, "a", "k1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if found.ID != first.ID || found.RecipientWalletID != "b" || found.Amount != 500 {
		t.Fatalf("unexpected journal %+v", found)
	}
	if found.SenderBalance != 4_500 || found.RecipientBalance != 1_200 {
		t.Fatalf("expected current balances, got %d/%d", found.SenderBalance, found.RecipientBalance)
	}
	if _, err := l.FindByClientTxID(ctx, "b", "k1"); !errors.Is(err, ErrJournalNotFound) {
		t.Fatalf("expected not found for another sender, got %v", err)
	}
	if _, err := l.FindByClientTxID(ctx, "a", ""); !errors.Is(err, ErrJournalNotFound) {
		t.Fatalf("empty key never matches, got %v", err)
	}
}

func TestInMemoryLedger_RejectsBadInput(t *testing.T) {
	l := newSeeded(t, 1_000)
	ctx := context.Background()

	if _, err := l.RecordIntraledgerTransfer(ctx, transfer("", 0)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
	if _, err := l.RecordIntraledgerTransfer(ctx, transfer("", 1_500)); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	missing := transfer("", 10)
	missing.RecipientWalletID = "nope"
	if _, err := l.RecordIntraledgerTransfer(ctx, missing); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected account not found, got %v", err)
	}
	if _, err := l.Balance(ctx, "nope"); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected account not found, got %v", err)
	}
	if n := JournalCount(l); n != 0 {
		t.Fatalf("rejected transfers must not record journals, got %d", n)
	}
}

func TestInMemoryLedger_ConcurrentTransfers(t *testing.T) {
	l := newSeeded(t, 100_000)
	ctx := context.Background()

	const workers = 10
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := l.RecordIntraledgerTransfer(ctx, transfer(fmt.Sprintf("tx-%d", i), 500)); err != nil {
				t.Errorf("transfer %d failed: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	a, _ := l.Balance(ctx, "a")
	b, _ := l.Balance(ctx, "b")
	if a+b != 100_000 {
		t.Fatalf("ledger not balanced after concurrency, total=%d", a+b)
	}
	if b != workers*500 {
		t.Fatalf("expected recipient balance %d, got %d", workers*500, b)
	}
}

func TestInMemoryLedger_OutgoingVolumeSince(t *testing.T) {
	l := newSeeded(t, 10_000)
	ctx := context.Background()
	start := time.Now().Add(-time.Minute)

	for i, amount := range []int64{1_000, 2_500} {
		if _, err := l.RecordIntraledgerTransfer(ctx, transfer(fmt.Sprintf("vol-%d", i), amount)); err != nil {
			t.Fatalf("transfer %d: %v", i, err)
		}
	}

	vol := l.(interface {
		OutgoingVolumeSince(context.Context, string, time.Time) (int64, error)
	})
	sent, err := vol.OutgoingVolumeSince(ctx, "a", start)
	if err != nil {
		t.Fatalf("volume: %v", err)
	}
	if sent != 3_500 {
		t.Fatalf("expected 3500 sent, got %d", sent)
	}
	if received, _ := vol.OutgoingVolumeSince(ctx, "b", start); received != 0 {
		t.Fatalf("recipient has no outgoing volume, got %d", received)
	}
	if later, _ := vol.OutgoingVolumeSince(ctx, "a", time.Now().Add(time.Minute)); later != 0 {
		t.Fatalf("expected empty window, got %d", later)
	}
}
