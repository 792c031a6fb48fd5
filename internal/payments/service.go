package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/PuraVida-Technologies/galoy/internal/account"
	"github.com/PuraVida-Technologies/galoy/internal/ledger"
	"github.com/PuraVida-Technologies/galoy/internal/limits"
	"github.com/PuraVida-Technologies/galoy/internal/lock"
	"github.com/PuraVida-Technologies/galoy/internal/logging"
	"github.com/PuraVida-Technologies/galoy/internal/metrics"
	"github.com/PuraVida-Technologies/galoy/internal/notification"
	"github.com/PuraVida-Technologies/galoy/internal/price"
	"github.com/PuraVida-Technologies/galoy/internal/wallet"
)

var tracer = otel.Tracer("app.payments")

// StatusSuccess is the only non-error payment status.
const StatusSuccess = "success"

const (
	stateValidating       = "validating"
	stateLimitChecking    = "limit_checking"
	stateLockAcquiring    = "lock_acquiring"
	stateBalanceVerifying = "balance_verifying"
	stateCommitting       = "committing"
	stateCompleted        = "completed"
)

// Locker is the part of lock.Manager the payment pipeline relies on.
type Locker interface {
	WithLock(ctx context.Context, resource string, ttl time.Duration, body lock.Body) error
	Extend(ctx context.Context, token *lock.Token, ttl time.Duration) (*lock.Token, error)
}

// Deps aggregates the collaborators of the payment service.
type Deps struct {
	Wallets  wallet.Repository
	Accounts account.Repository
	Ledger   ledger.Ledger
	Limits   limits.Checker
	Prices   price.Provider
	Locker   Locker
	Notifier notification.Notifier
	Logger   *slog.Logger
	// LockTTL bounds how long the sender wallet stays locked; zero uses the
	// locker default.
	LockTTL time.Duration
}

// Service executes intraledger payments under the sender wallet lock.
type Service struct {
	deps      Deps
	validator *Validator
	logger    *slog.Logger
}

// NewService constructs a payment service.
func NewService(deps Deps) (*Service, error) {
	switch {
	case deps.Wallets == nil:
		return nil, errors.New("payments: wallet repository is required")
	case deps.Accounts == nil:
		return nil, errors.New("payments: account repository is required")
	case deps.Ledger == nil:
		return nil, errors.New("payments: ledger is required")
	case deps.Limits == nil:
		return nil, errors.New("payments: limit checker is required")
	case deps.Prices == nil:
		return nil, errors.New("payments: price provider is required")
	case deps.Locker == nil:
		return nil, errors.New("payments: locker is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		deps:      deps,
		validator: NewValidator(deps.Wallets.FindByID),
		logger:    logging.Component(logger, "payments"),
	}, nil
}

// SendInput captures an intraledger payment request.
type SendInput struct {
	SenderAccount     account.Account
	SenderWalletID    string
	RecipientWalletID string
	RecipientUsername string
	Amount            int64
	Memo              string
	// IdempotencyKey is stored as the ledger client transaction id.
	IdempotencyKey string
}

// Outcome describes a completed payment.
type Outcome struct {
	Status          string
	JournalID       string
	SenderBalance   int64
	Amount          int64
	Currency        string
	DisplayAmount   decimal.Decimal
	DisplayCurrency string
	// Replayed is set when the idempotency key matched an earlier journal.
	Replayed    bool
	CompletedAt time.Time
}

// SendToWalletID pays RecipientWalletID from SenderWalletID.
func (s *Service) SendToWalletID(ctx context.Context, in SendInput) (Outcome, error) {
	ctx, span := tracer.Start(ctx, "app.payments.send_to_wallet_id")
	defer span.End()

	if in.RecipientWalletID == "" {
		err := invalid(ErrInvalidWalletID, "recipient wallet is required")
		s.fail(ctx, span, stateValidating, in, err)
		return Outcome{}, err
	}
	return s.send(ctx, span, in, nil)
}

// SendToUsername resolves RecipientUsername to the default wallet of its
// account and pays it. Both sides record each other as contacts once the
// payment committed.
func (s *Service) SendToUsername(ctx context.Context, in SendInput) (Outcome, error) {
	ctx, span := tracer.Start(ctx, "app.payments.send_to_username")
	defer span.End()

	recipient, err := s.resolveUsername(ctx, in.RecipientUsername)
	if err != nil {
		s.fail(ctx, span, stateValidating, in, err)
		return Outcome{}, err
	}
	in.RecipientWalletID = recipient.DefaultWalletID
	return s.send(ctx, span, in, &recipient)
}

func (s *Service) resolveUsername(ctx context.Context, username string) (account.Account, error) {
	normalized, err := account.NormalizeUsername(username)
	if err != nil {
		return account.Account{}, invalid(ErrUnknownRecipient, "%q is not a username", username)
	}
	recipient, err := s.deps.Accounts.FindByUsername(ctx, normalized)
	if errors.Is(err, account.ErrNotFound) {
		return account.Account{}, invalid(ErrUnknownRecipient, "no account for %s", normalized)
	}
	if err != nil {
		return account.Account{}, err
	}
	if recipient.DefaultWalletID == "" {
		return account.Account{}, invalid(ErrUnknownRecipient, "%s has no wallet", normalized)
	}
	return recipient, nil
}

func (s *Service) send(ctx context.Context, span trace.Span, in SendInput, recipientAccount *account.Account) (Outcome, error) {
	state := stateValidating
	span.SetAttributes(
		attribute.String("payment.sender_wallet_id", in.SenderWalletID),
		attribute.Int64("payment.amount", in.Amount),
	)

	validated, err := s.validator.Validate(ctx, ValidateInput{
		Amount:            in.Amount,
		SenderAccount:     in.SenderAccount,
		SenderWalletID:    in.SenderWalletID,
		RecipientWalletID: in.RecipientWalletID,
	})
	if err == nil && validated.RecipientWallet == nil {
		err = invalid(ErrInvalidWalletID, "recipient wallet is required")
	}
	if err != nil {
		s.fail(ctx, span, state, in, err)
		return Outcome{}, err
	}
	sender, recipient := validated.SenderWallet, *validated.RecipientWallet
	if sender.Currency != recipient.Currency {
		err := fmt.Errorf("%w: %s to %s", ErrNotImplemented, sender.Currency, recipient.Currency)
		s.fail(ctx, span, state, in, err)
		return Outcome{}, err
	}

	state = stateLimitChecking
	snapshot, err := s.deps.Prices.Snapshot(ctx)
	if err != nil {
		s.fail(ctx, span, state, in, err)
		return Outcome{}, fmt.Errorf("price snapshot: %w", err)
	}
	converter := price.NewConverter(snapshot)
	displayAmount, err := converter.ToDisplay(in.Amount, sender.Currency)
	if err != nil {
		s.fail(ctx, span, state, in, err)
		return Outcome{}, err
	}

	// A retry already counted in the sender volume must not trip the limit.
	journal, replayed, err := s.priorJournal(ctx, sender.ID, recipient.ID, in)
	if err != nil {
		s.fail(ctx, span, state, in, err)
		return Outcome{}, err
	}
	if !replayed {
		if err := s.deps.Limits.Check(ctx, limits.Input{
			Amount:         in.Amount,
			WalletID:       sender.ID,
			WalletCurrency: sender.Currency,
			Account:        in.SenderAccount,
			Converter:      converter,
		}); err != nil {
			s.fail(ctx, span, state, in, err)
			return Outcome{}, err
		}

		state = stateLockAcquiring
		err = s.deps.Locker.WithLock(ctx, lock.WalletResource(sender.ID), s.deps.LockTTL, func(ctx context.Context, token *lock.Token) error {
			state = stateBalanceVerifying
			var err error
			if journal, replayed, err = s.priorJournal(ctx, sender.ID, recipient.ID, in); err != nil || replayed {
				return err
			}
			balance, err := s.deps.Ledger.Balance(ctx, sender.ID)
			if err != nil {
				return err
			}
			if balance < in.Amount {
				return fmt.Errorf("%w: amount %d, balance %d", ErrInsufficientBalance, in.Amount, balance)
			}

			state = stateCommitting
			if _, err := s.deps.Locker.Extend(ctx, token, s.deps.LockTTL); err != nil {
				return err
			}
			journal, err = s.deps.Ledger.RecordIntraledgerTransfer(ctx, ledger.IntraledgerTransfer{
				SenderWalletID:    sender.ID,
				RecipientWalletID: recipient.ID,
				SenderCurrency:    sender.Currency,
				RecipientCurrency: recipient.Currency,
				Amount:            in.Amount,
				DisplayAmount:     displayAmount,
				DisplayCurrency:   converter.DisplayCurrency(),
				Memo:              in.Memo,
				SenderUsername:    in.SenderAccount.Username,
				RecipientUsername: usernameOf(recipientAccount),
				ClientTxID:        in.IdempotencyKey,
			})
			if errors.Is(err, ledger.ErrDuplicateTransaction) {
				replayed = true
				return sameTransfer(journal, recipient.ID, in.Amount)
			}
			return err
		})
		if err != nil {
			s.fail(ctx, span, state, in, err)
			return Outcome{}, err
		}
	}

	state = stateCompleted
	outcome := Outcome{
		Status:          StatusSuccess,
		JournalID:       journal.ID,
		SenderBalance:   journal.SenderBalance,
		Amount:          journal.Amount,
		Currency:        sender.Currency,
		DisplayAmount:   displayAmount,
		DisplayCurrency: converter.DisplayCurrency(),
		Replayed:        replayed,
		CompletedAt:     time.Now().UTC(),
	}
	metrics.Payments.WithLabelValues(StatusSuccess).Inc()
	span.SetAttributes(attribute.String("payment.journal_id", journal.ID), attribute.Bool("payment.replayed", replayed))
	s.logger.InfoContext(ctx, "intraledger payment completed",
		"state", state,
		"journal_id", journal.ID,
		"sender_wallet_id", sender.ID,
		"recipient_wallet_id", recipient.ID,
		"amount", in.Amount,
		"replayed", replayed,
	)
	if replayed {
		return outcome, nil
	}

	if recipientAccount != nil {
		s.recordContacts(ctx, in.SenderAccount, *recipientAccount)
	}
	s.notify(ctx, notification.IntraLedgerPaid{
		JournalID:          journal.ID,
		SenderAccountID:    in.SenderAccount.ID,
		SenderWalletID:     sender.ID,
		RecipientAccountID: recipient.AccountID,
		RecipientWalletID:  recipient.ID,
		Amount:             in.Amount,
		Currency:           sender.Currency,
		DisplayAmount:      displayAmount,
		DisplayCurrency:    converter.DisplayCurrency(),
		PricePerSat:        snapshot.PerSat,
		Memo:               in.Memo,
		PaidAt:             outcome.CompletedAt,
	})
	return outcome, nil
}

// priorJournal looks up the journal the sender wallet recorded under the
// idempotency key. A journal for another recipient or amount is an error.
func (s *Service) priorJournal(ctx context.Context, senderWalletID, recipientWalletID string, in SendInput) (ledger.Journal, bool, error) {
	if in.IdempotencyKey == "" {
		return ledger.Journal{}, false, nil
	}
	j, err := s.deps.Ledger.FindByClientTxID(ctx, senderWalletID, in.IdempotencyKey)
	if errors.Is(err, ledger.ErrJournalNotFound) {
		return ledger.Journal{}, false, nil
	}
	if err != nil {
		return ledger.Journal{}, false, err
	}
	if err := sameTransfer(j, recipientWalletID, in.Amount); err != nil {
		return ledger.Journal{}, false, err
	}
	return j, true, nil
}

// sameTransfer rejects a replayed journal that does not describe the request.
func sameTransfer(j ledger.Journal, recipientWalletID string, amount int64) error {
	if j.RecipientWalletID != recipientWalletID || j.Amount != amount {
		return fmt.Errorf("%w: journal %s paid %d to %s", ErrIdempotencyKeyReused, j.ID, j.Amount, j.RecipientWalletID)
	}
	return nil
}

func (s *Service) recordContacts(ctx context.Context, sender, recipient account.Account) {
	if err := s.deps.Accounts.AddContact(ctx, sender.ID, recipient.Username); err != nil {
		s.logger.WarnContext(ctx, "add recipient contact", "account_id", sender.ID, "error", err)
	}
	if sender.Username == "" {
		return
	}
	if err := s.deps.Accounts.AddContact(ctx, recipient.ID, sender.Username); err != nil {
		s.logger.WarnContext(ctx, "add sender contact", "account_id", recipient.ID, "error", err)
	}
}

func (s *Service) notify(ctx context.Context, event notification.IntraLedgerPaid) {
	if s.deps.Notifier == nil {
		return
	}
	if err := s.deps.Notifier.IntraLedgerPaid(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "payment notification failed", "journal_id", event.JournalID, "error", err)
	}
}

func (s *Service) fail(ctx context.Context, span trace.Span, state string, in SendInput, err error) {
	result := resultOf(err)
	metrics.Payments.WithLabelValues(result).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, result)

	level := slog.LevelWarn
	if result == "error" || result == "lock_unavailable" {
		level = slog.LevelError
	}
	s.logger.Log(ctx, level, "intraledger payment failed",
		"state", state,
		"result", result,
		"sender_wallet_id", in.SenderWalletID,
		"amount", in.Amount,
		"error", err,
	)
}

func resultOf(err error) string {
	var (
		validation *ValidationError
		limit      *limits.LimitExceededError
		unknown    *lock.UnknownLockServiceError
	)
	switch {
	case errors.As(err, &validation):
		return "invalid"
	case errors.Is(err, ErrNotImplemented):
		return "not_implemented"
	case errors.As(err, &limit):
		return "limit_exceeded"
	case errors.Is(err, ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, ErrIdempotencyKeyReused):
		return "idempotency_conflict"
	case lock.IsContention(err):
		return "lock_contention"
	case errors.As(err, &unknown):
		return "lock_unavailable"
	case errors.Is(err, lock.ErrLockExpired), errors.Is(err, lock.ErrExtensionFailed):
		return "lock_lost"
	default:
		return "error"
	}
}

func usernameOf(a *account.Account) string {
	if a == nil {
		return ""
	}
	return a.Username
}
