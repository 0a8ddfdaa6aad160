package transactions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/JaiSehgal007/FutureForce-Hackathon/internal/pagination"
	"github.com/JaiSehgal007/FutureForce-Hackathon/internal/retry"
)

const (
	commitAttempts  = 4
	commitBaseDelay = 20 * time.Millisecond
)

// PostgresStore keeps the log in PostgreSQL. Commits lock both account rows
// with SELECT ... FOR UPDATE in account-number order.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed transaction store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const transactionColumns = `id, sender_account_number, receiver_account_number, amount, type,
	location, device_id, fraud_percentage, COALESCE(idempotency_key, ''),
	COALESCE(reversal_of, ''), created_at`

func (p *PostgresStore) Commit(ctx context.Context, tx *Transaction) (*Transaction, bool, error) {
	var (
		result   *Transaction
		replayed bool
	)
	err := retry.DoIf(ctx, commitAttempts, commitBaseDelay, isRetryable, func() error {
		var err error
		result, replayed, err = p.commitOnce(ctx, tx)
		return err
	})
	if errors.Is(err, errReplay) {
		prev, err := p.FindByIdempotencyKey(ctx, tx.SenderAccountNumber, tx.IdempotencyKey)
		if err != nil {
			return nil, false, err
		}
		return prev, true, nil
	}
	if err != nil {
		return nil, false, err
	}
	return result, replayed, nil
}

func (p *PostgresStore) commitOnce(ctx context.Context, tx *Transaction) (*Transaction, bool, error) {
	sqlTx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, err
	}
	defer func() { _ = sqlTx.Rollback() }()

	sender, receiver := tx.SenderAccountNumber, tx.ReceiverAccountNumber
	var numbers []string
	if !isSystem(sender) {
		numbers = append(numbers, sender)
	}
	if !isSystem(receiver) {
		numbers = append(numbers, receiver)
	}
	slices.Sort(numbers)

	type row struct {
		balance decimal.Decimal
		blocked bool
	}
	rows := make(map[string]row, len(numbers))
	for _, n := range numbers {
		var r row
		err := sqlTx.QueryRowContext(ctx,
			`SELECT balance, blocked FROM accounts WHERE account_number = $1 FOR UPDATE`, n,
		).Scan(&r.balance, &r.blocked)
		if errors.Is(err, sql.ErrNoRows) {
			if n == sender {
				return nil, false, ErrSenderNotFound
			}
			return nil, false, ErrReceiverNotFound
		}
		if err != nil {
			return nil, false, fmt.Errorf("lock account: %w", err)
		}
		rows[n] = r
	}

	if tx.IdempotencyKey != "" {
		prev, err := scanTransaction(sqlTx.QueryRowContext(ctx,
			`SELECT `+transactionColumns+` FROM transactions
			 WHERE sender_account_number = $1 AND idempotency_key = $2`,
			sender, tx.IdempotencyKey))
		if err == nil {
			return prev, true, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, false, fmt.Errorf("idempotency lookup: %w", err)
		}
	}

	if tx.ReversalOf != "" {
		var one int
		err := sqlTx.QueryRowContext(ctx,
			`SELECT 1 FROM transactions WHERE reversal_of = $1`, tx.ReversalOf).Scan(&one)
		if err == nil {
			return nil, false, retry.Permanent(ErrAlreadyReversed)
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, false, fmt.Errorf("reversal lookup: %w", err)
		}
	}

	for _, r := range rows {
		if r.blocked {
			return nil, false, ErrAccountBlocked
		}
	}
	if r, ok := rows[sender]; ok && r.balance.LessThan(tx.Amount) {
		return nil, false, ErrInsufficientBalance
	}

	for _, n := range numbers {
		delta := tx.Amount
		if n == sender {
			delta = delta.Neg()
		}
		if _, err := sqlTx.ExecContext(ctx,
			`UPDATE accounts SET balance = balance + $1, updated_at = NOW() WHERE account_number = $2`,
			delta, n); err != nil {
			return nil, false, fmt.Errorf("update balance: %w", err)
		}
	}

	stored := tx.clone()
	stored.CreatedAt = time.Now().UTC()
	_, err = sqlTx.ExecContext(ctx, `
		INSERT INTO transactions (id, sender_account_number, receiver_account_number, amount, type,
			location, device_id, fraud_percentage, idempotency_key, reversal_of, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''), NULLIF($10, ''), $11)
	`, stored.ID, stored.SenderAccountNumber, stored.ReceiverAccountNumber, stored.Amount,
		string(stored.Type), stored.Location, stored.DeviceID, stored.FraudPercentage,
		stored.IdempotencyKey, stored.ReversalOf, stored.CreatedAt)
	if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
		switch pqErr.Constraint {
		case "transactions_reversal_of_key":
			return nil, false, retry.Permanent(ErrAlreadyReversed)
		case "transactions_sender_idempotency_key":
			return nil, false, retry.Permanent(errReplay)
		}
	}
	if err != nil {
		return nil, false, fmt.Errorf("insert transaction: %w", err)
	}

	if err := sqlTx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit: %w", err)
	}
	return stored, false, nil
}

// isRetryable reports serialization failures and deadlocks.
func isRetryable(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == "40001" || pqErr.Code == "40P01"
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Transaction, error) {
	tx, err := scanTransaction(p.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTransactionNotFound
	}
	return tx, err
}

func (p *PostgresStore) FindByIdempotencyKey(ctx context.Context, sender, key string) (*Transaction, error) {
	tx, err := scanTransaction(p.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions
		 WHERE sender_account_number = $1 AND idempotency_key = $2`, sender, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTransactionNotFound
	}
	return tx, err
}

func (p *PostgresStore) ListByAccount(ctx context.Context, accountNumber string) ([]*Transaction, error) {
	return p.query(ctx, `SELECT `+transactionColumns+` FROM transactions
		WHERE sender_account_number = $1 OR receiver_account_number = $1
		ORDER BY created_at DESC, id DESC`, accountNumber)
}

func (p *PostgresStore) RecentBySender(ctx context.Context, sender string, limit int) ([]*Transaction, error) {
	return p.query(ctx, `SELECT `+transactionColumns+` FROM transactions
		WHERE sender_account_number = $1
		ORDER BY created_at DESC, id DESC LIMIT $2`, sender, limit)
}

func (p *PostgresStore) ListByLocation(ctx context.Context, location string) ([]*Transaction, error) {
	return p.query(ctx, `SELECT `+transactionColumns+` FROM transactions
		WHERE location = $1
		ORDER BY created_at DESC, id DESC`, location)
}

func (p *PostgresStore) List(ctx context.Context, page pagination.Page) ([]*Transaction, int, error) {
	var total int
	if err := p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count transactions: %w", err)
	}
	txs, err := p.query(ctx, `SELECT `+transactionColumns+` FROM transactions
		ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2`, page.Limit, page.Offset())
	if err != nil {
		return nil, 0, err
	}
	return txs, total, nil
}

func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *PostgresStore) query(ctx context.Context, q string, args ...any) ([]*Transaction, error) {
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := []*Transaction{}
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTransaction(s scanner) (*Transaction, error) {
	tx := &Transaction{}
	var typ string
	err := s.Scan(&tx.ID, &tx.SenderAccountNumber, &tx.ReceiverAccountNumber, &tx.Amount, &typ,
		&tx.Location, &tx.DeviceID, &tx.FraudPercentage, &tx.IdempotencyKey, &tx.ReversalOf,
		&tx.CreatedAt)
	if err != nil {
		return nil, err
	}
	tx.Type = Type(typ)
	tx.CreatedAt = tx.CreatedAt.UTC()
	return tx, nil
}
