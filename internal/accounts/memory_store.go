package accounts

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/JaiSehgal007/FutureForce-Hackathon/internal/syncutil"
)

// MemoryStore is an in-memory account store for development and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	accounts map[string]*Account
	emails   map[string]string // lowercased email -> account number

	// rows serializes read-modify-write cycles per account number.
	rows syncutil.ShardedMutex
}

// NewMemoryStore creates a new in-memory account store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[string]*Account),
		emails:   make(map[string]string),
	}
}

func (m *MemoryStore) Create(_ context.Context, a *Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.accounts[a.AccountNumber]; ok {
		return ErrAccountExists
	}
	email := strings.ToLower(a.Email)
	if _, ok := m.emails[email]; ok {
		return ErrEmailExists
	}
	m.accounts[a.AccountNumber] = a.Clone()
	m.emails[email] = a.AccountNumber
	return nil
}

func (m *MemoryStore) Get(_ context.Context, accountNumber string) (*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.accounts[accountNumber]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return a.Clone(), nil
}

func (m *MemoryStore) List(_ context.Context) ([]*Account, error) {
	return m.filter(func(*Account) bool { return true }), nil
}

func (m *MemoryStore) ListByRegion(_ context.Context, region string) ([]*Account, error) {
	return m.filter(func(a *Account) bool { return a.Region == region }), nil
}

func (m *MemoryStore) filter(keep func(*Account) bool) []*Account {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Account, 0, len(m.accounts))
	for _, a := range m.accounts {
		if keep(a) {
			out = append(out, a.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].AccountNumber < out[j].AccountNumber
	})
	return out
}

func (m *MemoryStore) Update(ctx context.Context, accountNumber string, fn func(*Account) error) (*Account, error) {
	var updated *Account
	err := m.Mutate(ctx, []string{accountNumber}, func(accts map[string]*Account) error {
		a := accts[accountNumber]
		balance := a.Balance
		if err := fn(a); err != nil {
			return err
		}
		a.Balance = balance
		updated = a.Clone()
		return nil
	})
	return updated, err
}

// Mutate locks the named accounts, hands fn working copies keyed by account
// number, and installs every copy if fn returns nil. Missing accounts fail
// with ErrAccountNotFound before fn runs. The locks are held until the
// copies are installed. Mutate returns only after the copies are visible to
// Get, so a caller lock taken inside fn and released after Mutate covers
// both its own records and the new balances.
func (m *MemoryStore) Mutate(_ context.Context, numbers []string, fn func(map[string]*Account) error) error {
	unlock := m.rows.LockMany(numbers...)
	defer unlock()

	work := make(map[string]*Account, len(numbers))
	m.mu.RLock()
	for _, n := range numbers {
		a, ok := m.accounts[n]
		if !ok {
			m.mu.RUnlock()
			return ErrAccountNotFound
		}
		work[n] = a.Clone()
	}
	m.mu.RUnlock()

	if err := fn(work); err != nil {
		return err
	}

	now := time.Now().UTC()
	m.mu.Lock()
	for n, a := range work {
		a.UpdatedAt = now
		m.accounts[n] = a
	}
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Ping(context.Context) error { return nil }
