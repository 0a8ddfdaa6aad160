// Package auth issues and validates API keys for wallet accounts.
//
// Authentication model:
// - Register and login are public and return a fresh API key
// - Every other endpoint requires "Authorization: Bearer sk_..."
// - Keys carry the account's role; admin and employee routes check it
package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/JaiSehgal007/FutureForce-Hackathon/internal/idgen"
)

// Errors
var (
	ErrNoAPIKey      = errors.New("API key required")
	ErrInvalidAPIKey = errors.New("invalid or expired API key")
	ErrKeyNotFound   = errors.New("API key not found")
)

// DefaultTTL bounds how long an issued key stays valid.
const DefaultTTL = 24 * time.Hour

// APIKey is an issued credential. Only the hash of the raw key is stored.
type APIKey struct {
	ID            string    `json:"id"`
	Hash          string    `json:"-"`
	AccountNumber string    `json:"accountNumber"`
	Role          string    `json:"role"`
	CreatedAt     time.Time `json:"createdAt"`
	ExpiresAt     time.Time `json:"expiresAt"`
	Revoked       bool      `json:"revoked"`
}

// Store persists API keys
type Store interface {
	Create(ctx context.Context, key *APIKey) error
	GetByHash(ctx context.Context, hash string) (*APIKey, error)
	RevokeAccount(ctx context.Context, accountNumber string) error
}

// Manager handles authentication
type Manager struct {
	store Store
	ttl   time.Duration
	now   func() time.Time
}

// NewManager creates a new auth manager. A zero ttl uses DefaultTTL.
func NewManager(store Store, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{store: store, ttl: ttl, now: time.Now}
}

// GenerateKey issues a key for the account. The raw key is returned once.
func (m *Manager) GenerateKey(ctx context.Context, accountNumber, role string) (rawKey string, key *APIKey, err error) {
	rawKey = idgen.Secret("sk_", 32)
	now := m.now().UTC()
	key = &APIKey{
		ID:            idgen.Secret("ak_", 8),
		Hash:          hashKey(rawKey),
		AccountNumber: accountNumber,
		Role:          role,
		CreatedAt:     now,
		ExpiresAt:     now.Add(m.ttl),
	}
	if err := m.store.Create(ctx, key); err != nil {
		return "", nil, err
	}
	return rawKey, key, nil
}

// Issue returns a fresh raw key for the account.
func (m *Manager) Issue(ctx context.Context, accountNumber, role string) (string, error) {
	raw, _, err := m.GenerateKey(ctx, accountNumber, role)
	return raw, err
}

// ValidateKey validates a raw or "Bearer "-prefixed key
func (m *Manager) ValidateKey(ctx context.Context, rawKey string) (*APIKey, error) {
	rawKey = strings.TrimSpace(strings.TrimPrefix(rawKey, "Bearer "))
	if rawKey == "" {
		return nil, ErrNoAPIKey
	}
	if !strings.HasPrefix(rawKey, "sk_") {
		return nil, ErrInvalidAPIKey
	}

	key, err := m.store.GetByHash(ctx, hashKey(rawKey))
	if err != nil {
		return nil, ErrInvalidAPIKey
	}
	if key.Revoked || !m.now().Before(key.ExpiresAt) {
		return nil, ErrInvalidAPIKey
	}
	return key, nil
}

// Revoke revokes every key issued to the account.
func (m *Manager) Revoke(ctx context.Context, accountNumber string) error {
	return m.store.RevokeAccount(ctx, accountNumber)
}

func hashKey(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}

// MemoryStore is an in-memory implementation of Store
type MemoryStore struct {
	mu     sync.RWMutex
	byHash map[string]*APIKey
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byHash: make(map[string]*APIKey)}
}

func (s *MemoryStore) Create(_ context.Context, key *APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *key
	s.byHash[key.Hash] = &cp
	return nil
}

func (s *MemoryStore) GetByHash(_ context.Context, hash string) (*APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	k, ok := s.byHash[hash]
	if !ok {
		return nil, ErrKeyNotFound
	}
	cp := *k
	return &cp, nil
}

func (s *MemoryStore) RevokeAccount(_ context.Context, accountNumber string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range s.byHash {
		if k.AccountNumber == accountNumber {
			k.Revoked = true
		}
	}
	return nil
}
