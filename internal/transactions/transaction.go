// Package transactions moves money between accounts and keeps the
// append-only transaction log.
//
// A transfer is validated, PIN-checked and funds-checked against a snapshot,
// scored by the risk oracle with no locks held, and then committed: the
// store re-checks the latest balances and applies both balance changes and
// the log append as one atomic unit.
package transactions

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/JaiSehgal007/FutureForce-Hackathon/internal/accounts"
	"github.com/JaiSehgal007/FutureForce-Hackathon/internal/pagination"
)

var (
	ErrMissingField        = errors.New("required fields missing")
	ErrInvalidType         = errors.New("invalid transaction type, must be Credit or Debit")
	ErrNonPositiveAmount   = errors.New("amount must be greater than zero")
	ErrAmountPrecision     = errors.New("amount has too many decimal places")
	ErrSelfTransfer        = errors.New("sender and receiver must differ")
	ErrSenderNotFound      = errors.New("sender account not found")
	ErrReceiverNotFound    = errors.New("receiver account not found")
	ErrAccountBlocked      = errors.New("transaction not allowed for blocked accounts")
	ErrIncorrectPIN        = errors.New("incorrect PIN")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrAlreadyReversed     = errors.New("transaction already reversed")
	ErrReversalOfReversal  = errors.New("a reversal cannot itself be reversed")
	ErrIdempotencyMismatch = errors.New("idempotency key was used for a different transfer")
)

// MaxAmountScale is the number of decimal places amounts may carry.
const MaxAmountScale = 6

// Type is the transaction type recorded on the log.
type Type string

const (
	TypeCredit Type = "Credit"
	TypeDebit  Type = "Debit"
)

// Valid reports whether t is Credit or Debit.
func (t Type) Valid() bool {
	return t == TypeCredit || t == TypeDebit
}

// Transaction is an immutable log entry. Sender or receiver may be
// accounts.SystemAccount.
type Transaction struct {
	ID                    string          `json:"id"`
	SenderAccountNumber   string          `json:"senderAccountNumber"`
	ReceiverAccountNumber string          `json:"receiverAccountNumber"`
	Amount                decimal.Decimal `json:"amount"`
	Type                  Type            `json:"type"`
	Location              string          `json:"location"`
	DeviceID              string          `json:"deviceId"`
	FraudPercentage       float64         `json:"fraudPercentage"`
	IdempotencyKey        string          `json:"idempotencyKey,omitempty"`
	ReversalOf            string          `json:"reversalOf,omitempty"`
	CreatedAt             time.Time       `json:"createdAt"`
}

// Involves reports whether the account is sender or receiver.
func (t *Transaction) Involves(accountNumber string) bool {
	return t.SenderAccountNumber == accountNumber || t.ReceiverAccountNumber == accountNumber
}

func (t *Transaction) clone() *Transaction {
	cp := *t
	return &cp
}

// Store is the transaction log plus the atomic balance commit.
type Store interface {
	// Commit re-validates tx against the latest committed balances and
	// applies it: the sender is debited, the receiver credited and tx
	// appended, all or nothing. accounts.SystemAccount on either side is
	// neither checked nor mutated. If tx carries an idempotency key already
	// used by the same sender, nothing is applied and the original
	// transaction is returned with replayed set.
	// CreatedAt is stamped at commit time.
	Commit(ctx context.Context, tx *Transaction) (committed *Transaction, replayed bool, err error)

	Get(ctx context.Context, id string) (*Transaction, error)
	FindByIdempotencyKey(ctx context.Context, sender, key string) (*Transaction, error)
	// ListByAccount returns every transaction involving the account, newest first.
	ListByAccount(ctx context.Context, accountNumber string) ([]*Transaction, error)
	// RecentBySender returns up to limit transactions sent by the account, newest first.
	RecentBySender(ctx context.Context, sender string, limit int) ([]*Transaction, error)
	// ListByLocation returns every transaction recorded at location, newest first.
	ListByLocation(ctx context.Context, location string) ([]*Transaction, error)
	// List returns one page of the whole log, newest first, and the total count.
	List(ctx context.Context, page pagination.Page) ([]*Transaction, int, error)
	Ping(ctx context.Context) error
}

// Notifier is told about every newly committed transaction. Notifiers run
// after the commit and must not block for long; failures are theirs to log.
type Notifier interface {
	Notify(ctx context.Context, tx *Transaction)
}

// isSystem reports whether n is the top-up sentinel account.
func isSystem(n string) bool {
	return n == accounts.SystemAccount
}
