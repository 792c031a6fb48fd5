package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresLedger persists double-entry journals in PostgreSQL.
type PostgresLedger struct {
	db *pgxpool.Pool
}

// NewPostgresLedger constructs a Postgres-backed ledger implementation.
func NewPostgresLedger(db *pgxpool.Pool) *PostgresLedger {
	return &PostgresLedger{db: db}
}

// EnsureAccount guarantees a ledger account exists for the wallet.
func (l *PostgresLedger) EnsureAccount(ctx context.Context, walletID string) error {
	_, err := l.db.Exec(ctx, `INSERT INTO accounts (id, code) VALUES ($1, $2)
        ON CONFLICT (code) DO NOTHING`, uuid.New(), WalletAccountCode(walletID))
	return err
}

// Balance returns the summed entries of the wallet account.
func (l *PostgresLedger) Balance(ctx context.Context, walletID string) (int64, error) {
	const query = `
        SELECT a.id, COALESCE(SUM(e.amount), 0)
        FROM accounts a
        LEFT JOIN entries e ON e.account_id = a.id
        WHERE a.code = $1
        GROUP BY a.id`
	var (
		id      uuid.UUID
		balance int64
	)
	if err := l.db.QueryRow(ctx, query, WalletAccountCode(walletID)).Scan(&id, &balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("%w: wallet %s", ErrAccountNotFound, walletID)
		}
		return 0, err
	}
	return balance, nil
}

// RecordIntraledgerTransfer writes one transaction and its two balanced
// entries. A repeated ClientTxID returns the stored journal with
// ErrDuplicateTransaction.
func (l *PostgresLedger) RecordIntraledgerTransfer(ctx context.Context, t IntraledgerTransfer) (Journal, error) {
	if t.Amount <= 0 {
		return Journal{}, ErrInvalidAmount
	}

	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Journal{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	fromAccountID, err := accountIDForCode(ctx, tx, WalletAccountCode(t.SenderWalletID))
	if err != nil {
		return Journal{}, err
	}
	toAccountID, err := accountIDForCode(ctx, tx, WalletAccountCode(t.RecipientWalletID))
	if err != nil {
		return Journal{}, err
	}

	if t.ClientTxID != "" {
		existing, err := findByClientTxID(ctx, tx, t.SenderWalletID, t.ClientTxID)
		switch {
		case err == nil:
			return existing, ErrDuplicateTransaction
		case !errors.Is(err, ErrJournalNotFound):
			return Journal{}, err
		}
	}

	fromBalance, err := balanceForAccount(ctx, tx, fromAccountID)
	if err != nil {
		return Journal{}, err
	}
	if fromBalance < t.Amount {
		return Journal{}, ErrInsufficientFunds
	}
	toBalance, err := balanceForAccount(ctx, tx, toAccountID)
	if err != nil {
		return Journal{}, err
	}

	var clientTxID *string
	if t.ClientTxID != "" {
		clientTxID = &t.ClientTxID
	}
	txID := uuid.New()
	createdAt := time.Now().UTC()
	const insertTx = `INSERT INTO transactions
        (id, client_tx_id, sender_wallet_id, recipient_wallet_id, kind, status, amount, currency,
         display_amount, display_currency, memo, sender_username, recipient_username, created_at)
        VALUES ($1, $2, $3, $4, $5, 'completed', $6, $7, $8::numeric, $9, $10, $11, $12, $13)`
	if _, err := tx.Exec(ctx, insertTx, txID, clientTxID, t.SenderWalletID, t.RecipientWalletID, KindIntraledger,
		t.Amount, t.SenderCurrency, t.DisplayAmount.String(), t.DisplayCurrency, t.Memo, t.SenderUsername,
		t.RecipientUsername, createdAt); err != nil {
		return Journal{}, err
	}

	const insertEntry = `INSERT INTO entries (id, transaction_id, account_id, amount) VALUES ($1, $2, $3, $4)`
	if _, err := tx.Exec(ctx, insertEntry, uuid.New(), txID, fromAccountID, -t.Amount); err != nil {
		return Journal{}, err
	}
	if _, err := tx.Exec(ctx, insertEntry, uuid.New(), txID, toAccountID, t.Amount); err != nil {
		return Journal{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Journal{}, err
	}

	return Journal{
		ID:                txID.String(),
		Kind:              KindIntraledger,
		ClientTxID:        t.ClientTxID,
		SenderWalletID:    t.SenderWalletID,
		RecipientWalletID: t.RecipientWalletID,
		Amount:            t.Amount,
		SenderBalance:     fromBalance - t.Amount,
		RecipientBalance:  toBalance + t.Amount,
		CreatedAt:         createdAt,
	}, nil
}

// FindByClientTxID returns the journal the sender wallet recorded under
// clientTxID.
func (l *PostgresLedger) FindByClientTxID(ctx context.Context, senderWalletID, clientTxID string) (Journal, error) {
	if clientTxID == "" {
		return Journal{}, ErrJournalNotFound
	}
	return findByClientTxID(ctx, l.db, senderWalletID, clientTxID)
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func findByClientTxID(ctx context.Context, q querier, senderWalletID, clientTxID string) (Journal, error) {
	const query = `
        SELECT t.id, t.recipient_wallet_id, t.amount, t.created_at,
            (SELECT COALESCE(SUM(e.amount), 0) FROM entries e JOIN accounts a ON a.id = e.account_id WHERE a.code = $4),
            (SELECT COALESCE(SUM(e.amount), 0) FROM entries e JOIN accounts a ON a.id = e.account_id WHERE a.code = 'wallet:' || t.recipient_wallet_id)
        FROM transactions t
        WHERE t.sender_wallet_id = $1 AND t.client_tx_id = $2 AND t.kind = $3`
	j := Journal{Kind: KindIntraledger, ClientTxID: clientTxID, SenderWalletID: senderWalletID}
	var id uuid.UUID
	err := q.QueryRow(ctx, query, senderWalletID, clientTxID, KindIntraledger, WalletAccountCode(senderWalletID)).
		Scan(&id, &j.RecipientWalletID, &j.Amount, &j.CreatedAt, &j.SenderBalance, &j.RecipientBalance)
	if errors.Is(err, pgx.ErrNoRows) {
		return Journal{}, ErrJournalNotFound
	}
	if err != nil {
		return Journal{}, err
	}
	j.ID = id.String()
	return j, nil
}

func accountIDForCode(ctx context.Context, tx pgx.Tx, code string) (uuid.UUID, error) {
	const query = `SELECT id FROM accounts WHERE code = $1 FOR UPDATE`
	var id uuid.UUID
	if err := tx.QueryRow(ctx, query, code).Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, fmt.Errorf("%w: %s", ErrAccountNotFound, code)
		}
		return uuid.Nil, err
	}
	return id, nil
}

func balanceForAccount(ctx context.Context, tx pgx.Tx, accountID uuid.UUID) (int64, error) {
	const query = `SELECT COALESCE(SUM(amount), 0) FROM entries WHERE account_id = $1`
	var balance int64
	if err := tx.QueryRow(ctx, query, accountID).Scan(&balance); err != nil {
		return 0, err
	}
	return balance, nil
}

// OutgoingVolumeSince sums the intraledger debits of walletID since the given
// instant.
func (l *PostgresLedger) OutgoingVolumeSince(ctx context.Context, walletID string, since time.Time) (int64, error) {
	const query = `
        SELECT COALESCE(SUM(-e.amount), 0)
        FROM entries e
        INNER JOIN accounts a ON a.id = e.account_id
        INNER JOIN transactions t ON t.id = e.transaction_id
        WHERE a.code = $1 AND t.kind = $2 AND e.amount < 0 AND t.created_at >= $3`
	var total int64
	if err := l.db.QueryRow(ctx, query, WalletAccountCode(walletID), KindIntraledger, since.UTC()).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}
