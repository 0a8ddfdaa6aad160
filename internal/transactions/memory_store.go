package transactions

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/JaiSehgal007/FutureForce-Hackathon/internal/accounts"
	"github.com/JaiSehgal007/FutureForce-Hackathon/internal/pagination"
)

// errReplay aborts an account mutation when the idempotency key was seen.
var errReplay = errors.New("idempotent replay")

// MemoryStore keeps the log in memory and commits through the account
// store's per-account locks.
type MemoryStore struct {
	accounts *accounts.MemoryStore

	mu        sync.RWMutex
	log       []*Transaction // append order, oldest first
	byID      map[string]*Transaction
	byIdemKey map[string]*Transaction
	reversed  map[string]string // original id -> reversal id
}

// NewMemoryStore creates a log whose commits mutate accts.
func NewMemoryStore(accts *accounts.MemoryStore) *MemoryStore {
	return &MemoryStore{
		accounts:  accts,
		byID:      make(map[string]*Transaction),
		byIdemKey: make(map[string]*Transaction),
		reversed:  make(map[string]string),
	}
}

func idemKey(sender, key string) string {
	return sender + "\x00" + key
}

func (m *MemoryStore) Commit(ctx context.Context, tx *Transaction) (*Transaction, bool, error) {
	sender, receiver := tx.SenderAccountNumber, tx.ReceiverAccountNumber

	var locked []string
	if !isSystem(sender) {
		if _, err := m.accounts.Get(ctx, sender); err != nil {
			return nil, false, mapAccountErr(err, ErrSenderNotFound)
		}
		locked = append(locked, sender)
	}
	if !isSystem(receiver) {
		if _, err := m.accounts.Get(ctx, receiver); err != nil {
			return nil, false, mapAccountErr(err, ErrReceiverNotFound)
		}
		locked = append(locked, receiver)
	}

	// m.mu is taken inside fn and held until Mutate has installed the new
	// balances, so log readers never see an entry ahead of its balances.
	var (
		result *Transaction
		held   bool
	)
	err := m.accounts.Mutate(ctx, locked, func(accts map[string]*accounts.Account) error {
		m.mu.Lock()
		held = true

		if tx.IdempotencyKey != "" {
			if prev, ok := m.byIdemKey[idemKey(sender, tx.IdempotencyKey)]; ok {
				result = prev.clone()
				return errReplay
			}
		}

		if tx.ReversalOf != "" {
			if _, done := m.reversed[tx.ReversalOf]; done {
				return ErrAlreadyReversed
			}
		}
		from, to := accts[sender], accts[receiver]
		if (from != nil && from.Blocked) || (to != nil && to.Blocked) {
			return ErrAccountBlocked
		}
		if from != nil && from.Balance.LessThan(tx.Amount) {
			return ErrInsufficientBalance
		}

		if from != nil {
			from.Balance = from.Balance.Sub(tx.Amount)
		}
		if to != nil {
			to.Balance = to.Balance.Add(tx.Amount)
		}

		stored := tx.clone()
		stored.CreatedAt = time.Now().UTC()
		m.log = append(m.log, stored)
		m.byID[stored.ID] = stored
		if stored.IdempotencyKey != "" {
			m.byIdemKey[idemKey(sender, stored.IdempotencyKey)] = stored
		}
		if stored.ReversalOf != "" {
			m.reversed[stored.ReversalOf] = stored.ID
		}
		result = stored.clone()
		return nil
	})
	if held {
		m.mu.Unlock()
	}

	switch {
	case errors.Is(err, errReplay):
		return result, true, nil
	case err != nil:
		return nil, false, mapAccountErr(err, ErrReceiverNotFound)
	}
	return result, false, nil
}

func mapAccountErr(err, notFound error) error {
	if errors.Is(err, accounts.ErrAccountNotFound) {
		return notFound
	}
	return err
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tx, ok := m.byID[id]
	if !ok {
		return nil, ErrTransactionNotFound
	}
	return tx.clone(), nil
}

func (m *MemoryStore) FindByIdempotencyKey(_ context.Context, sender, key string) (*Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tx, ok := m.byIdemKey[idemKey(sender, key)]
	if !ok {
		return nil, ErrTransactionNotFound
	}
	return tx.clone(), nil
}

func (m *MemoryStore) ListByAccount(_ context.Context, accountNumber string) ([]*Transaction, error) {
	return m.newestFirst(0, func(tx *Transaction) bool { return tx.Involves(accountNumber) }), nil
}

func (m *MemoryStore) RecentBySender(_ context.Context, sender string, limit int) ([]*Transaction, error) {
	return m.newestFirst(limit, func(tx *Transaction) bool { return tx.SenderAccountNumber == sender }), nil
}

func (m *MemoryStore) ListByLocation(_ context.Context, location string) ([]*Transaction, error) {
	return m.newestFirst(0, func(tx *Transaction) bool { return tx.Location == location }), nil
}

func (m *MemoryStore) List(_ context.Context, page pagination.Page) ([]*Transaction, int, error) {
	all := m.newestFirst(0, func(*Transaction) bool { return true })
	return pagination.Slice(all, page), len(all), nil
}

// newestFirst walks the log backwards, keeping up to limit matches (0 = all).
func (m *MemoryStore) newestFirst(limit int, keep func(*Transaction) bool) []*Transaction {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []*Transaction{}
	for _, tx := range slices.Backward(m.log) {
		if !keep(tx) {
			continue
		}
		out = append(out, tx.clone())
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

func (m *MemoryStore) Ping(context.Context) error { return nil }
