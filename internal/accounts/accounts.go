// Package accounts manages wallet holders: identity, PIN credentials, block
// state and balances.
//
// Balances are only ever changed by the transactions package, which commits
// the balance update and the log entry together. Everything else here is
// profile data.
package accounts

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrAccountExists   = errors.New("account number already in use")
	ErrEmailExists     = errors.New("email already registered")
	ErrContactExists   = errors.New("contact already saved")
	ErrIncorrectPIN    = errors.New("incorrect PIN")
	ErrAccountBlocked  = errors.New("account is blocked")
	ErrInvalidInput    = errors.New("invalid input")
)

// SystemAccount is the sentinel counterparty for wallet top-ups. It never
// exists as a stored account.
const SystemAccount = "System"

// Role controls which API surfaces an account may use.
type Role string

const (
	RoleUser     Role = "user"
	RoleEmployee Role = "employee"
	RoleAdmin    Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleEmployee, RoleAdmin:
		return true
	}
	return false
}

// Contact is a saved payee.
type Contact struct {
	Name    string `json:"name"`
	Contact string `json:"contact"`
}

// Account is a wallet holder.
type Account struct {
	AccountNumber string          `json:"accountNumber"`
	Name          string          `json:"name"`
	Email         string          `json:"email"`
	Age           int             `json:"age"`
	Gender        string          `json:"gender,omitempty"`
	Occupation    string          `json:"occupation,omitempty"`
	Region        string          `json:"region,omitempty"`
	Contact       string          `json:"contact,omitempty"`
	PinHash       string          `json:"-"`
	Balance       decimal.Decimal `json:"accountBalance"`
	Blocked       bool            `json:"blocked"`
	Role          Role            `json:"role"`
	SavedContacts []Contact       `json:"savedContacts"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// Clone returns a deep copy safe to hand out of a store.
func (a *Account) Clone() *Account {
	cp := *a
	cp.SavedContacts = slices.Clone(a.SavedContacts)
	if cp.SavedContacts == nil {
		cp.SavedContacts = []Contact{}
	}
	return &cp
}

// Store persists accounts.
type Store interface {
	Create(ctx context.Context, a *Account) error
	Get(ctx context.Context, accountNumber string) (*Account, error)
	List(ctx context.Context) ([]*Account, error)
	ListByRegion(ctx context.Context, region string) ([]*Account, error)
	// Update applies fn to the current account under the store's lock or
	// row lock and persists the result. fn must not change Balance.
	Update(ctx context.Context, accountNumber string, fn func(*Account) error) (*Account, error)
	Ping(ctx context.Context) error
}
