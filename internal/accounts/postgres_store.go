package accounts

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

// PostgresStore persists accounts in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed account store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const accountColumns = `account_number, name, email, age, gender, occupation, region, contact,
	pin_hash, balance, blocked, role, saved_contacts, created_at, updated_at`

func (p *PostgresStore) Create(ctx context.Context, a *Account) error {
	contacts, err := json.Marshal(nonNilContacts(a.SavedContacts))
	if err != nil {
		return fmt.Errorf("encode contacts: %w", err)
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO accounts (`+accountColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`, a.AccountNumber, a.Name, strings.ToLower(a.Email), a.Age, a.Gender, a.Occupation,
		a.Region, a.Contact, a.PinHash, a.Balance, a.Blocked, string(a.Role), contacts,
		a.CreatedAt, a.UpdatedAt)
	if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
		if pqErr.Constraint == "accounts_email_key" {
			return ErrEmailExists
		}
		return ErrAccountExists
	}
	return err
}

func (p *PostgresStore) Get(ctx context.Context, accountNumber string) (*Account, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE account_number = $1`, accountNumber)
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	return a, err
}

func (p *PostgresStore) List(ctx context.Context) ([]*Account, error) {
	return p.query(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY account_number`)
}

func (p *PostgresStore) ListByRegion(ctx context.Context, region string) ([]*Account, error) {
	return p.query(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE region = $1 ORDER BY account_number`, region)
}

func (p *PostgresStore) query(ctx context.Context, q string, args ...any) ([]*Account, error) {
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := []*Account{}
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (p *PostgresStore) Update(ctx context.Context, accountNumber string, fn func(*Account) error) (*Account, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE account_number = $1 FOR UPDATE`, accountNumber)
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := fn(a); err != nil {
		return nil, err
	}
	contacts, err := json.Marshal(nonNilContacts(a.SavedContacts))
	if err != nil {
		return nil, fmt.Errorf("encode contacts: %w", err)
	}
	a.UpdatedAt = time.Now().UTC()

	_, err = tx.ExecContext(ctx, `
		UPDATE accounts
		SET name = $2, age = $3, gender = $4, occupation = $5, region = $6, contact = $7,
		    pin_hash = $8, blocked = $9, role = $10, saved_contacts = $11, updated_at = $12
		WHERE account_number = $1
	`, a.AccountNumber, a.Name, a.Age, a.Gender, a.Occupation, a.Region, a.Contact,
		a.PinHash, a.Blocked, string(a.Role), contacts, a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return a, nil
}

func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(s scanner) (*Account, error) {
	a := &Account{}
	var role string
	var contacts []byte
	var gender, occupation, region, contact sql.NullString

	err := s.Scan(&a.AccountNumber, &a.Name, &a.Email, &a.Age, &gender, &occupation, &region,
		&contact, &a.PinHash, &a.Balance, &a.Blocked, &role, &contacts, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}

	a.Role = Role(role)
	a.Gender = gender.String
	a.Occupation = occupation.String
	a.Region = region.String
	a.Contact = contact.String
	a.SavedContacts = []Contact{}
	if len(contacts) > 0 {
		if err := json.Unmarshal(contacts, &a.SavedContacts); err != nil {
			return nil, fmt.Errorf("decode contacts for %s: %w", a.AccountNumber, err)
		}
	}
	return a, nil
}

func nonNilContacts(c []Contact) []Contact {
	if c == nil {
		return []Contact{}
	}
	return c
}
