package payments

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/PuraVida-Technologies/galoy/internal/account"
	"github.com/PuraVida-Technologies/galoy/internal/ledger"
	"github.com/PuraVida-Technologies/galoy/internal/limits"
	"github.com/PuraVida-Technologies/galoy/internal/lock"
	"github.com/PuraVida-Technologies/galoy/internal/logging"
	"github.com/PuraVida-Technologies/galoy/internal/notification"
	"github.com/PuraVida-Technologies/galoy/internal/price"
	"github.com/PuraVida-Technologies/galoy/internal/wallet"
)

// countingStore counts every call that reaches a lock node.
type countingStore struct {
	lock.Store
	calls *atomic.Int32
}

func (s countingStore) SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	s.calls.Add(1)
	return s.Store.SetIfAbsent(ctx, key, value, ttl)
}

func (s countingStore) ExtendIfOwner(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	s.calls.Add(1)
	return s.Store.ExtendIfOwner(ctx, key, value, ttl)
}

func (s countingStore) DeleteIfOwner(ctx context.Context, key, value string) (bool, error) {
	s.calls.Add(1)
	return s.Store.DeleteIfOwner(ctx, key, value)
}

// refusingExtendStore accepts locks but never extends them.
type refusingExtendStore struct {
	lock.Store
}

func (refusingExtendStore) ExtendIfOwner(context.Context, string, string, time.Duration) (bool, error) {
	return false, errors.New("node lost the key")
}

// countingLedger counts ledger calls and can slow down balance reads.
type countingLedger struct {
	ledger.Ledger
	balanceCalls atomic.Int32
	recordCalls  atomic.Int32
	balanceDelay time.Duration
}

func (l *countingLedger) Balance(ctx context.Context, walletID string) (int64, error) {
	l.balanceCalls.Add(1)
	time.Sleep(l.balanceDelay)
	return l.Ledger.Balance(ctx, walletID)
}

func (l *countingLedger) RecordIntraledgerTransfer(ctx context.Context, t ledger.IntraledgerTransfer) (ledger.Journal, error) {
	l.recordCalls.Add(1)
	return l.Ledger.RecordIntraledgerTransfer(ctx, t)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notification.IntraLedgerPaid
	err    error
}

func (n *recordingNotifier) IntraLedgerPaid(_ context.Context, e notification.IntraLedgerPaid) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
	return n.err
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.events)
}

type harness struct {
	svc       *Service
	ledger    *countingLedger
	wallets   *wallet.Service
	accounts  *account.Service
	accountDB account.Repository
	notifier  *recordingNotifier
	nodes     []*miniredis.Miniredis
	lockCalls *atomic.Int32
}

type harnessOption func(*harnessConfig)

type harnessConfig struct {
	lockCfg    lock.Config
	wrapStore  func(lock.Store) lock.Store
	limits     map[int]decimal.Decimal
	balanceLag time.Duration
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	cfg := harnessConfig{lockCfg: lock.DefaultConfig("regtest")}
	cfg.lockCfg.RetryCount = 100
	cfg.lockCfg.RetryDelay = 5 * time.Millisecond
	cfg.lockCfg.RetryJitter = 5 * time.Millisecond
	for _, opt := range opts {
		opt(&cfg)
	}

	h := &harness{lockCalls: &atomic.Int32{}, notifier: &recordingNotifier{}}
	var stores []lock.Store
	for i := 0; i < 3; i++ {
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
		t.Cleanup(func() { _ = client.Close() })
		var store lock.Store = lock.NewRedisStore(client)
		if cfg.wrapStore != nil {
			store = cfg.wrapStore(store)
		}
		stores = append(stores, countingStore{Store: store, calls: h.lockCalls})
		h.nodes = append(h.nodes, mr)
	}
	manager, err := lock.NewManager(stores, cfg.lockCfg, lock.WithLogger(logging.Discard()))
	require.NoError(t, err)

	h.ledger = &countingLedger{Ledger: ledger.NewInMemory(), balanceDelay: cfg.balanceLag}
	h.accountDB = account.NewMemoryRepository()
	walletRepo := wallet.NewMemoryRepository()
	h.accounts = account.NewService(h.accountDB)
	h.wallets = wallet.NewService(walletRepo, h.ledger, h.accounts)

	prices, err := price.NewStaticProvider("USD", decimal.RequireFromString("0.0005"), decimal.RequireFromString("0.01"))
	require.NoError(t, err)

	h.svc, err = NewService(Deps{
		Wallets:  walletRepo,
		Accounts: h.accountDB,
		Ledger:   h.ledger,
		Limits:   limits.NewLevelChecker(cfg.limits, nil),
		Prices:   prices,
		Locker:   manager,
		Notifier: h.notifier,
		Logger:   logging.Discard(),
		LockTTL:  5 * time.Second,
	})
	require.NoError(t, err)
	return h
}

func (h *harness) openAccount(t *testing.T, username, currency string, balance int64) (account.Account, wallet.Wallet) {
	t.Helper()
	ctx := context.Background()
	a, err := h.accounts.Create(ctx, account.CreateInput{Username: username})
	require.NoError(t, err)
	w, err := h.wallets.Create(ctx, wallet.CreateInput{AccountID: a.ID, Currency: currency})
	require.NoError(t, err)
	ledger.SeedBalance(h.ledger.Ledger, w.ID, balance)
	a, err = h.accounts.Get(ctx, a.ID)
	require.NoError(t, err)
	return a, w
}

func (h *harness) lockKeyExists(walletID string) bool {
	for _, mr := range h.nodes {
		if mr.Exists(lock.DefaultKeyPrefix + lock.WalletResource(walletID)) {
			return true
		}
	}
	return false
}

func balanceOf(t *testing.T, h *harness, walletID string) int64 {
	t.Helper()
	b, err := h.ledger.Balance(context.Background(), walletID)
	require.NoError(t, err)
	return b
}

func TestSendToWalletIDSuccess(t *testing.T) {
	h := newHarness(t)
	sender, from := h.openAccount(t, "alice", wallet.CurrencyBTC, 10_000)
	_, to := h.openAccount(t, "bob", wallet.CurrencyBTC, 0)

	out, err := h.svc.SendToWalletID(context.Background(), SendInput{
		SenderAccount:     sender,
		SenderWalletID:    from.ID,
		RecipientWalletID: to.ID,
		Amount:            2_000,
		Memo:              "lunch",
	})
	require.NoError(t, err)
	require.Equal(t, StatusSuccess, out.Status)
	require.NotEmpty(t, out.JournalID)
	require.Equal(t, int64(8_000), out.SenderBalance)
	require.True(t, out.DisplayAmount.Equal(decimal.NewFromInt(1)), out.DisplayAmount.String())
	require.Equal(t, "USD", out.DisplayCurrency)

	require.Equal(t, int64(8_000), balanceOf(t, h, from.ID))
	require.Equal(t, int64(2_000), balanceOf(t, h, to.ID))
	require.False(t, h.lockKeyExists(from.ID), "lock released after success")

	stored, ok := ledger.LastTransfer(h.ledger.Ledger)
	require.True(t, ok)
	require.Equal(t, "lunch", stored.Memo)
	require.Equal(t, "alice", stored.SenderUsername)

	require.Equal(t, 1, h.notifier.count())
	require.Equal(t, out.JournalID, h.notifier.events[0].JournalID)
	require.Equal(t, to.AccountID, h.notifier.events[0].RecipientAccountID)
}

func TestSendRejectsSelfPayment(t *testing.T) {
	h := newHarness(t)
	sender, from := h.openAccount(t, "alice", wallet.CurrencyBTC, 10_000)

	_, err := h.svc.SendToWalletID(context.Background(), SendInput{
		SenderAccount:     sender,
		SenderWalletID:    from.ID,
		RecipientWalletID: from.ID,
		Amount:            100,
	})
	require.ErrorIs(t, err, ErrSelfPayment)
	require.Zero(t, h.lockCalls.Load(), "validation failures never touch the lock")
	require.Zero(t, h.ledger.recordCalls.Load())
}

func TestSendInsufficientBalance(t *testing.T) {
	h := newHarness(t)
	sender, from := h.openAccount(t, "alice", wallet.CurrencyBTC, 1_000)
	_, to := h.openAccount(t, "bob", wallet.CurrencyBTC, 0)

	_, err := h.svc.SendToWalletID(context.Background(), SendInput{
		SenderAccount:     sender,
		SenderWalletID:    from.ID,
		RecipientWalletID: to.ID,
		Amount:            1_500,
	})
	require.ErrorIs(t, err, ErrInsufficientBalance)
	require.Zero(t, h.ledger.recordCalls.Load())
	require.Equal(t, int64(1_000), balanceOf(t, h, from.ID))
	require.False(t, h.lockKeyExists(from.ID), "lock released after an error")
	require.Zero(t, h.notifier.count())
}

func TestConcurrentPaymentsCannotOverdraw(t *testing.T) {
	h := newHarness(t, func(c *harnessConfig) { c.balanceLag = 20 * time.Millisecond })
	sender, from := h.openAccount(t, "alice", wallet.CurrencyBTC, 1_000)
	_, to := h.openAccount(t, "bob", wallet.CurrencyBTC, 0)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = h.svc.SendToWalletID(context.Background(), SendInput{
				SenderAccount:     sender,
				SenderWalletID:    from.ID,
				RecipientWalletID: to.ID,
				Amount:            600,
			})
		}(i)
	}
	wg.Wait()

	var ok, insufficient int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrInsufficientBalance):
			insufficient++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	require.Equal(t, 1, ok)
	require.Equal(t, 1, insufficient)
	require.Equal(t, int64(400), balanceOf(t, h, from.ID))
	require.Equal(t, 1, ledger.JournalCount(h.ledger.Ledger))
}

func TestCrossCurrencyIsNotImplemented(t *testing.T) {
	h := newHarness(t)
	sender, from := h.openAccount(t, "alice", wallet.CurrencyBTC, 10_000)
	_, to := h.openAccount(t, "bob", wallet.CurrencyUSD, 0)

	_, err := h.svc.SendToWalletID(context.Background(), SendInput{
		SenderAccount:     sender,
		SenderWalletID:    from.ID,
		RecipientWalletID: to.ID,
		Amount:            100,
	})
	require.ErrorIs(t, err, ErrNotImplemented)
	require.Zero(t, h.lockCalls.Load())
	require.Zero(t, h.ledger.balanceCalls.Load())
	require.Zero(t, h.ledger.recordCalls.Load())
}

func TestExtensionFailureAbortsBeforeCommit(t *testing.T) {
	h := newHarness(t, func(c *harnessConfig) {
		c.wrapStore = func(s lock.Store) lock.Store { return refusingExtendStore{Store: s} }
	})
	sender, from := h.openAccount(t, "alice", wallet.CurrencyBTC, 10_000)
	_, to := h.openAccount(t, "bob", wallet.CurrencyBTC, 0)

	_, err := h.svc.SendToWalletID(context.Background(), SendInput{
		SenderAccount:     sender,
		SenderWalletID:    from.ID,
		RecipientWalletID: to.ID,
		Amount:            100,
	})
	require.ErrorIs(t, err, lock.ErrExtensionFailed)
	require.Equal(t, int32(1), h.ledger.balanceCalls.Load())
	require.Zero(t, h.ledger.recordCalls.Load())
	require.Equal(t, 0, ledger.JournalCount(h.ledger.Ledger))
	require.Equal(t, int64(10_000), balanceOf(t, h, from.ID))
	require.False(t, h.lockKeyExists(from.ID))
}

func TestLockContentionSurfaces(t *testing.T) {
	h := newHarness(t, func(c *harnessConfig) {
		c.lockCfg.RetryCount = 1
		c.lockCfg.RetryDelay = time.Millisecond
	})
	sender, from := h.openAccount(t, "alice", wallet.CurrencyBTC, 10_000)
	_, to := h.openAccount(t, "bob", wallet.CurrencyBTC, 0)

	for _, mr := range h.nodes {
		require.NoError(t, mr.Set(lock.DefaultKeyPrefix+from.ID, "another-process"))
	}

	_, err := h.svc.SendToWalletID(context.Background(), SendInput{
		SenderAccount:     sender,
		SenderWalletID:    from.ID,
		RecipientWalletID: to.ID,
		Amount:            100,
	})
	require.ErrorIs(t, err, lock.ErrLockContention)
	require.Zero(t, h.ledger.balanceCalls.Load())
}

func TestLimitExceededSurfacesVerbatim(t *testing.T) {
	h := newHarness(t, func(c *harnessConfig) {
		c.limits = map[int]decimal.Decimal{1: decimal.NewFromInt(1)}
	})
	sender, from := h.openAccount(t, "alice", wallet.CurrencyBTC, 10_000)
	_, to := h.openAccount(t, "bob", wallet.CurrencyBTC, 0)

	// 4000 sats at 0.0005 USD is 2 USD
	_, err := h.svc.SendToWalletID(context.Background(), SendInput{
		SenderAccount:     sender,
		SenderWalletID:    from.ID,
		RecipientWalletID: to.ID,
		Amount:            4_000,
	})
	var limitErr *limits.LimitExceededError
	require.ErrorAs(t, err, &limitErr)
	require.Equal(t, 1, limitErr.Level)
	require.Zero(t, h.lockCalls.Load())
}

func TestValidationOrder(t *testing.T) {
	h := newHarness(t)
	sender, from := h.openAccount(t, "alice", wallet.CurrencyBTC, 10_000)
	other, otherWallet := h.openAccount(t, "bob", wallet.CurrencyBTC, 0)
	ctx := context.Background()

	locked := sender
	locked.Status = account.StatusLocked

	cases := []struct {
		name string
		in   SendInput
		want error
	}{
		{"zero amount beats everything", SendInput{SenderAccount: locked, SenderWalletID: "junk", RecipientWalletID: from.ID}, ErrInvalidAmount},
		{"inactive account", SendInput{SenderAccount: locked, SenderWalletID: from.ID, RecipientWalletID: otherWallet.ID, Amount: 1}, ErrInvalidAccountStatus},
		{"malformed sender wallet", SendInput{SenderAccount: sender, SenderWalletID: "junk", RecipientWalletID: otherWallet.ID, Amount: 1}, ErrInvalidWalletID},
		{"unknown sender wallet", SendInput{SenderAccount: sender, SenderWalletID: uuid.NewString(), RecipientWalletID: otherWallet.ID, Amount: 1}, ErrInvalidWalletID},
		{"foreign sender wallet", SendInput{SenderAccount: other, SenderWalletID: from.ID, RecipientWalletID: otherWallet.ID, Amount: 1}, ErrInvalidWalletID},
		{"unknown recipient wallet", SendInput{SenderAccount: sender, SenderWalletID: from.ID, RecipientWalletID: uuid.NewString(), Amount: 1}, ErrInvalidWalletID},
		{"missing recipient", SendInput{SenderAccount: sender, SenderWalletID: from.ID, Amount: 1}, ErrInvalidWalletID},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.svc.SendToWalletID(ctx, tc.in)
			require.ErrorIs(t, err, tc.want)
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
		})
	}
	require.Zero(t, h.lockCalls.Load())
}

func TestSendToUsernameRecordsContacts(t *testing.T) {
	h := newHarness(t)
	sender, from := h.openAccount(t, "alice", wallet.CurrencyBTC, 10_000)
	recipient, to := h.openAccount(t, "bob", wallet.CurrencyBTC, 0)
	ctx := context.Background()

	out, err := h.svc.SendToUsername(ctx, SendInput{
		SenderAccount:     sender,
		SenderWalletID:    from.ID,
		RecipientUsername: "BOB",
		Amount:            500,
	})
	require.NoError(t, err)
	require.Equal(t, StatusSuccess, out.Status)
	require.Equal(t, int64(500), balanceOf(t, h, to.ID))

	stored, _ := ledger.LastTransfer(h.ledger.Ledger)
	require.Equal(t, "bob", stored.RecipientUsername)

	senderContacts, err := h.accounts.Contacts(ctx, sender.ID)
	require.NoError(t, err)
	require.Len(t, senderContacts, 1)
	require.Equal(t, "bob", senderContacts[0].Username)

	recipientContacts, err := h.accounts.Contacts(ctx, recipient.ID)
	require.NoError(t, err)
	require.Len(t, recipientContacts, 1)
	require.Equal(t, "alice", recipientContacts[0].Username)

	_, err = h.svc.SendToUsername(ctx, SendInput{
		SenderAccount:     sender,
		SenderWalletID:    from.ID,
		RecipientUsername: "nobody_here",
		Amount:            500,
	})
	require.ErrorIs(t, err, ErrUnknownRecipient)
}

func TestIdempotencyKeyReplaysJournal(t *testing.T) {
	h := newHarness(t)
	sender, from := h.openAccount(t, "alice", wallet.CurrencyBTC, 10_000)
	_, to := h.openAccount(t, "bob", wallet.CurrencyBTC, 0)
	in := SendInput{
		SenderAccount:     sender,
		SenderWalletID:    from.ID,
		RecipientWalletID: to.ID,
		Amount:            1_000,
		IdempotencyKey:    "req-1",
	}

	first, err := h.svc.SendToWalletID(context.Background(), in)
	require.NoError(t, err)
	again, err := h.svc.SendToWalletID(context.Background(), in)
	require.NoError(t, err)

	require.True(t, again.Replayed)
	require.Equal(t, first.JournalID, again.JournalID)
	require.Equal(t, 1, ledger.JournalCount(h.ledger.Ledger))
	require.Equal(t, int64(9_000), balanceOf(t, h, from.ID))
	require.Equal(t, 1, h.notifier.count(), "replays are not notified twice")
}

func TestIdempotencyKeyIsScopedToSenderWallet(t *testing.T) {
	h := newHarness(t)
	alice, aliceWallet := h.openAccount(t, "alice", wallet.CurrencyBTC, 10_000)
	carol, carolWallet := h.openAccount(t, "carol", wallet.CurrencyBTC, 10_000)
	_, to := h.openAccount(t, "bob", wallet.CurrencyBTC, 0)
	ctx := context.Background()

	first, err := h.svc.SendToWalletID(ctx, SendInput{
		SenderAccount: alice, SenderWalletID: aliceWallet.ID, RecipientWalletID: to.ID, Amount: 1_000, IdempotencyKey: "k1",
	})
	require.NoError(t, err)
	second, err := h.svc.SendToWalletID(ctx, SendInput{
		SenderAccount: carol, SenderWalletID: carolWallet.ID, RecipientWalletID: to.ID, Amount: 3_000, IdempotencyKey: "k1",
	})
	require.NoError(t, err)

	require.False(t, second.Replayed)
	require.NotEqual(t, first.JournalID, second.JournalID)
	require.Equal(t, int64(7_000), balanceOf(t, h, carolWallet.ID))
	require.Equal(t, int64(4_000), balanceOf(t, h, to.ID))
	require.Equal(t, 2, ledger.JournalCount(h.ledger.Ledger))
}

func TestIdempotencyKeyReusedForDifferentPayment(t *testing.T) {
	h := newHarness(t)
	sender, from := h.openAccount(t, "alice", wallet.CurrencyBTC, 10_000)
	_, bob := h.openAccount(t, "bob", wallet.CurrencyBTC, 0)
	_, carol := h.openAccount(t, "carol", wallet.CurrencyBTC, 0)
	ctx := context.Background()

	_, err := h.svc.SendToWalletID(ctx, SendInput{
		SenderAccount: sender, SenderWalletID: from.ID, RecipientWalletID: bob.ID, Amount: 1_000, IdempotencyKey: "k1",
	})
	require.NoError(t, err)

	cases := map[string]SendInput{
		"other amount":    {SenderAccount: sender, SenderWalletID: from.ID, RecipientWalletID: bob.ID, Amount: 5_000, IdempotencyKey: "k1"},
		"other recipient": {SenderAccount: sender, SenderWalletID: from.ID, RecipientWalletID: carol.ID, Amount: 1_000, IdempotencyKey: "k1"},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := h.svc.SendToWalletID(ctx, in)
			require.ErrorIs(t, err, ErrIdempotencyKeyReused)
		})
	}
	require.Equal(t, int64(9_000), balanceOf(t, h, from.ID))
	require.Equal(t, int64(0), balanceOf(t, h, carol.ID))
	require.Equal(t, 1, ledger.JournalCount(h.ledger.Ledger))
}

func TestReplayAfterBalanceDropped(t *testing.T) {
	h := newHarness(t)
	sender, from := h.openAccount(t, "alice", wallet.CurrencyBTC, 1_000)
	_, to := h.openAccount(t, "bob", wallet.CurrencyBTC, 0)
	in := SendInput{
		SenderAccount:     sender,
		SenderWalletID:    from.ID,
		RecipientWalletID: to.ID,
		Amount:            1_000,
		IdempotencyKey:    "all-in",
	}

	first, err := h.svc.SendToWalletID(context.Background(), in)
	require.NoError(t, err)
	require.Equal(t, int64(0), balanceOf(t, h, from.ID))
	balanceReads, lockCalls := h.ledger.balanceCalls.Load(), h.lockCalls.Load()

	again, err := h.svc.SendToWalletID(context.Background(), in)
	require.NoError(t, err)
	require.True(t, again.Replayed)
	require.Equal(t, first.JournalID, again.JournalID)
	require.Equal(t, int64(0), again.SenderBalance)
	require.Equal(t, balanceReads, h.ledger.balanceCalls.Load(), "a replay reads no balance")
	require.Equal(t, lockCalls, h.lockCalls.Load(), "a replay takes no lock")
}

func TestNotificationFailureDoesNotFailPayment(t *testing.T) {
	h := newHarness(t)
	h.notifier.err = errors.New("broker down")
	sender, from := h.openAccount(t, "alice", wallet.CurrencyBTC, 10_000)
	_, to := h.openAccount(t, "bob", wallet.CurrencyBTC, 0)

	out, err := h.svc.SendToWalletID(context.Background(), SendInput{
		SenderAccount:     sender,
		SenderWalletID:    from.ID,
		RecipientWalletID: to.ID,
		Amount:            100,
	})
	require.NoError(t, err)
	require.Equal(t, StatusSuccess, out.Status)
	require.Equal(t, int64(100), balanceOf(t, h, to.ID))
}

func TestNewServiceRequiresCollaborators(t *testing.T) {
	_, err := NewService(Deps{})
	require.Error(t, err)
}
