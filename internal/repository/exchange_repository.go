// Package repository holds the single-account persistence layer for
// the exchange credentials this agent authenticates with. Grounded on
// internal/ledger.Ledger's plain database/sql style, scoped down to
// one row since this agent trades through exactly one exchange
// account at a time.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/dome/adamant-tradebot/internal/models"
)

// ErrNotFound is returned when no exchange account row exists yet.
var ErrNotFound = errors.New("repository: exchange account not found")

// ExchangeRepository persists the encrypted credentials for the
// configured exchange account (internal/models.ExchangeAccount).
// APIKey/SecretKey/Passphrase are expected to already be
// AES-256-GCM-encrypted (pkg/crypto) by the caller; this layer never
// encrypts or decrypts.
type ExchangeRepository struct {
	db *sql.DB
}

// NewExchangeRepository wraps an already-open database handle.
func NewExchangeRepository(db *sql.DB) *ExchangeRepository {
	return &ExchangeRepository{db: db}
}

const exchangeAccountColumns = `
	id, name, api_key, secret_key, passphrase, connected, last_error,
	created_at, updated_at`

func scanExchangeAccount(row interface{ Scan(...interface{}) error }) (*models.ExchangeAccount, error) {
	a := &models.ExchangeAccount{}
	err := row.Scan(
		&a.ID, &a.Name, &a.APIKey, &a.SecretKey, &a.Passphrase, &a.Connected, &a.LastError,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Create inserts a new exchange account row and assigns its ID.
func (r *ExchangeRepository) Create(ctx context.Context, a *models.ExchangeAccount) error {
	now := time.Now()
	a.CreatedAt = now
	a.UpdatedAt = now

	const query = `
		INSERT INTO exchange_accounts (name, api_key, secret_key, passphrase, connected, last_error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`

	return r.db.QueryRowContext(ctx, query,
		a.Name, a.APIKey, a.SecretKey, a.Passphrase, a.Connected, a.LastError, a.CreatedAt, a.UpdatedAt,
	).Scan(&a.ID)
}

// GetByName returns the account for an exchange id (e.g. "bitget").
func (r *ExchangeRepository) GetByName(ctx context.Context, name string) (*models.ExchangeAccount, error) {
	query := `SELECT ` + exchangeAccountColumns + ` FROM exchange_accounts WHERE name = $1`
	a, err := scanExchangeAccount(r.db.QueryRowContext(ctx, query, name))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return a, nil
}

// GetAll returns every configured exchange account.
func (r *ExchangeRepository) GetAll(ctx context.Context) ([]*models.ExchangeAccount, error) {
	query := `SELECT ` + exchangeAccountColumns + ` FROM exchange_accounts ORDER BY name`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.ExchangeAccount
	for rows.Next() {
		a, err := scanExchangeAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// UpsertCredentials creates or replaces the stored credentials for
// name, keyed by the unique exchange name rather than by row ID, since
// the operator supplies the exchange id, not a row id.
func (r *ExchangeRepository) UpsertCredentials(ctx context.Context, a *models.ExchangeAccount) error {
	now := time.Now()
	a.UpdatedAt = now

	const query = `
		INSERT INTO exchange_accounts (name, api_key, secret_key, passphrase, connected, last_error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		ON CONFLICT (name) DO UPDATE SET
			api_key = EXCLUDED.api_key,
			secret_key = EXCLUDED.secret_key,
			passphrase = EXCLUDED.passphrase,
			connected = EXCLUDED.connected,
			last_error = EXCLUDED.last_error,
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at`

	return r.db.QueryRowContext(ctx, query,
		a.Name, a.APIKey, a.SecretKey, a.Passphrase, a.Connected, a.LastError, now,
	).Scan(&a.ID, &a.CreatedAt)
}

// SetConnectionState records the adapter's last-known connectivity, so
// read paths can report it without an extra round trip to the exchange.
func (r *ExchangeRepository) SetConnectionState(ctx context.Context, name string, connected bool, lastError string) error {
	const query = `UPDATE exchange_accounts SET connected = $2, last_error = $3, updated_at = $4 WHERE name = $1`
	result, err := r.db.ExecContext(ctx, query, name, connected, lastError, time.Now())
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes the stored account for name.
func (r *ExchangeRepository) Delete(ctx context.Context, name string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM exchange_accounts WHERE name = $1`, name)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}
