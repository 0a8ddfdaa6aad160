package auth

import (
	"context"
	"database/sql"
	"errors"
)

// PostgresStore persists API keys in PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed auth store
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Create stores a new API key
func (p *PostgresStore) Create(ctx context.Context, key *APIKey) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO api_keys (id, hash, account_number, role, created_at, expires_at, revoked)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, key.ID, key.Hash, key.AccountNumber, key.Role, key.CreatedAt, key.ExpiresAt, key.Revoked)
	return err
}

// GetByHash retrieves a live API key by its hash
func (p *PostgresStore) GetByHash(ctx context.Context, hash string) (*APIKey, error) {
	key := &APIKey{}
	err := p.db.QueryRowContext(ctx, `
		SELECT id, hash, account_number, role, created_at, expires_at, revoked
		FROM api_keys
		WHERE hash = $1 AND revoked = FALSE AND expires_at > NOW()
	`, hash).Scan(&key.ID, &key.Hash, &key.AccountNumber, &key.Role,
		&key.CreatedAt, &key.ExpiresAt, &key.Revoked)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, err
	}
	return key, nil
}

// RevokeAccount revokes every key belonging to the account
func (p *PostgresStore) RevokeAccount(ctx context.Context, accountNumber string) error {
	_, err := p.db.ExecContext(ctx,
		`UPDATE api_keys SET revoked = TRUE WHERE account_number = $1 AND revoked = FALSE`,
		accountNumber)
	return err
}
