package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists wallet metadata.
type Repository interface {
	Create(ctx context.Context, wallet Wallet) error
	FindByID(ctx context.Context, id string) (Wallet, error)
	ListByAccount(ctx context.Context, accountID string) ([]Wallet, error)
}

// PostgresRepository stores wallets in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a wallet record.
func (r *PostgresRepository) Create(ctx context.Context, wallet Wallet) error {
	walletID, err := uuid.Parse(wallet.ID)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidID, wallet.ID)
	}
	accountID, err := uuid.Parse(wallet.AccountID)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO wallets (id, account_id, currency, created_at)
        VALUES ($1, $2, $3, $4)`, walletID, accountID, wallet.Currency, wallet.CreatedAt.UTC())
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrExists
	}
	return err
}

// FindByID fetches wallet metadata by identifier.
func (r *PostgresRepository) FindByID(ctx context.Context, id string) (Wallet, error) {
	walletUUID, err := uuid.Parse(id)
	if err != nil {
		return Wallet{}, fmt.Errorf("%w: %s", ErrInvalidID, id)
	}
	row := r.db.QueryRow(ctx, `SELECT id, account_id, currency, created_at
        FROM wallets WHERE id = $1`, walletUUID)
	w, err := scanWallet(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Wallet{}, ErrNotFound
	}
	return w, err
}

// ListByAccount returns the wallets of an account, oldest first.
func (r *PostgresRepository) ListByAccount(ctx context.Context, accountID string) ([]Wallet, error) {
	accountUUID, err := uuid.Parse(accountID)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.Query(ctx, `SELECT id, account_id, currency, created_at
        FROM wallets WHERE account_id = $1 ORDER BY created_at`, accountUUID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Wallet
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func scanWallet(row pgx.Row) (Wallet, error) {
	var (
		w         Wallet
		idVal     uuid.UUID
		accountID uuid.UUID
		createdAt time.Time
	)
	if err := row.Scan(&idVal, &accountID, &w.Currency, &createdAt); err != nil {
		return Wallet{}, err
	}
	w.ID = idVal.String()
	w.AccountID = accountID.String()
	w.CreatedAt = createdAt.UTC()
	return w, nil
}
