package account

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists accounts and their contact books.
type Repository interface {
	Create(ctx context.Context, a Account) error
	FindByID(ctx context.Context, id string) (Account, error)
	FindByUsername(ctx context.Context, username string) (Account, error)
	SetDefaultWallet(ctx context.Context, accountID, walletID string) error
	UpdateStatus(ctx context.Context, accountID, status string) error
	AddContact(ctx context.Context, accountID, username string) error
	Contacts(ctx context.Context, accountID string) ([]Contact, error)
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed account repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a new account.
func (r *PostgresRepository) Create(ctx context.Context, a Account) error {
	id, err := uuid.Parse(a.ID)
	if err != nil {
		return err
	}
	var username *string
	if a.Username != "" {
		username = &a.Username
	}
	_, err = r.db.Exec(ctx, `INSERT INTO user_accounts (id, username, status, level, created_at)
        VALUES ($1, $2, $3, $4, $5)`, id, username, a.Status, a.Level, a.CreatedAt.UTC())
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrUsernameTaken
	}
	return err
}

const selectAccount = `SELECT id, COALESCE(username, ''), status, level, default_wallet_id, created_at FROM user_accounts`

// FindByID fetches an account by identifier.
func (r *PostgresRepository) FindByID(ctx context.Context, id string) (Account, error) {
	accountID, err := uuid.Parse(id)
	if err != nil {
		return Account{}, ErrNotFound
	}
	return scanAccount(r.db.QueryRow(ctx, selectAccount+` WHERE id = $1`, accountID))
}

// FindByUsername fetches an account by its normalized username.
func (r *PostgresRepository) FindByUsername(ctx context.Context, username string) (Account, error) {
	return scanAccount(r.db.QueryRow(ctx, selectAccount+` WHERE username = $1`, username))
}

// SetDefaultWallet points the account at walletID.
func (r *PostgresRepository) SetDefaultWallet(ctx context.Context, accountID, walletID string) error {
	wid, err := uuid.Parse(walletID)
	if err != nil {
		return err
	}
	return r.update(ctx, `UPDATE user_accounts SET default_wallet_id = $1 WHERE id = $2`, wid, accountID)
}

// UpdateStatus changes the account status.
func (r *PostgresRepository) UpdateStatus(ctx context.Context, accountID, status string) error {
	return r.update(ctx, `UPDATE user_accounts SET status = $1 WHERE id = $2`, status, accountID)
}

func (r *PostgresRepository) update(ctx context.Context, query string, value any, accountID string) error {
	id, err := uuid.Parse(accountID)
	if err != nil {
		return ErrNotFound
	}
	cmd, err := r.db.Exec(ctx, query, value, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AddContact records a payment with username, bumping the counter.
func (r *PostgresRepository) AddContact(ctx context.Context, accountID, username string) error {
	id, err := uuid.Parse(accountID)
	if err != nil {
		return ErrNotFound
	}
	_, err = r.db.Exec(ctx, `INSERT INTO account_contacts (account_id, username, transactions_count, updated_at)
        VALUES ($1, $2, 1, now())
        ON CONFLICT (account_id, username)
        DO UPDATE SET transactions_count = account_contacts.transactions_count + 1, updated_at = now()`, id, username)
	return err
}

// Contacts lists the contact book of an account.
func (r *PostgresRepository) Contacts(ctx context.Context, accountID string) ([]Contact, error) {
	id, err := uuid.Parse(accountID)
	if err != nil {
		return nil, ErrNotFound
	}
	rows, err := r.db.Query(ctx, `SELECT username, transactions_count, updated_at
        FROM account_contacts WHERE account_id = $1 ORDER BY username`, id)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Contact, error) {
		var c Contact
		err := row.Scan(&c.Username, &c.TransactionsCount, &c.UpdatedAt)
		return c, err
	})
}

func scanAccount(row pgx.Row) (Account, error) {
	var (
		id              uuid.UUID
		defaultWalletID *uuid.UUID
		createdAt       time.Time
		a               Account
	)
	if err := row.Scan(&id, &a.Username, &a.Status, &a.Level, &defaultWalletID, &createdAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrNotFound
		}
		return Account{}, err
	}
	a.ID = id.String()
	if defaultWalletID != nil {
		a.DefaultWalletID = defaultWalletID.String()
	}
	a.CreatedAt = createdAt.UTC()
	return a, nil
}
