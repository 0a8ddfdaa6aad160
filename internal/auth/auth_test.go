package auth

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestGenerateKey(t *testing.T) {
	mgr := NewManager(NewMemoryStore(), 0)

	rawKey, key, err := mgr.GenerateKey(context.Background(), "ACC100", "user")
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}
	if !strings.HasPrefix(rawKey, "sk_") || len(rawKey) != 67 {
		t.Errorf("unexpected raw key shape %q", rawKey)
	}
	if !strings.HasPrefix(key.ID, "ak_") {
		t.Errorf("Expected key ID to start with ak_, got %s", key.ID)
	}
	if key.AccountNumber != "ACC100" || key.Role != "user" {
		t.Errorf("unexpected key metadata %+v", key)
	}
	if got := key.ExpiresAt.Sub(key.CreatedAt); got != DefaultTTL {
		t.Errorf("ttl = %v, want %v", got, DefaultTTL)
	}
}

func TestValidateKey(t *testing.T) {
	mgr := NewManager(NewMemoryStore(), time.Hour)
	ctx := context.Background()

	rawKey, _, err := mgr.GenerateKey(ctx, "ACC100", "admin")
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}

	key, err := mgr.ValidateKey(ctx, rawKey)
	if err != nil {
		t.Fatalf("ValidateKey failed for valid key: %v", err)
	}
	if key.AccountNumber != "ACC100" {
		t.Errorf("Expected ACC100, got %s", key.AccountNumber)
	}

	if _, err := mgr.ValidateKey(ctx, "Bearer "+rawKey); err != nil {
		t.Errorf("ValidateKey failed with Bearer prefix: %v", err)
	}
	if _, err := mgr.ValidateKey(ctx, "sk_"+strings.Repeat("0", 64)); err != ErrInvalidAPIKey {
		t.Errorf("Expected ErrInvalidAPIKey for unknown key, got: %v", err)
	}
	if _, err := mgr.ValidateKey(ctx, ""); err != ErrNoAPIKey {
		t.Errorf("Expected ErrNoAPIKey for empty key, got: %v", err)
	}
	if _, err := mgr.ValidateKey(ctx, "not_a_valid_key"); err != ErrInvalidAPIKey {
		t.Errorf("Expected ErrInvalidAPIKey for malformed key, got: %v", err)
	}
}

func TestValidateKey_Expired(t *testing.T) {
	mgr := NewManager(NewMemoryStore(), time.Minute)
	ctx := context.Background()

	issued := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	mgr.now = func() time.Time { return issued }
	rawKey, _, _ := mgr.GenerateKey(ctx, "ACC100", "user")

	mgr.now = func() time.Time { return issued.Add(2 * time.Minute) }
	if _, err := mgr.ValidateKey(ctx, rawKey); err != ErrInvalidAPIKey {
		t.Errorf("Expected ErrInvalidAPIKey for expired key, got: %v", err)
	}
}

func TestRevoke_AllKeysForAccount(t *testing.T) {
	mgr := NewManager(NewMemoryStore(), 0)
	ctx := context.Background()

	k1, _, _ := mgr.GenerateKey(ctx, "ACC100", "user")
	k2, _, _ := mgr.GenerateKey(ctx, "ACC100", "user")
	other, _, _ := mgr.GenerateKey(ctx, "ACC200", "user")

	if err := mgr.Revoke(ctx, "ACC100"); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	for _, k := range []string{k1, k2} {
		if _, err := mgr.ValidateKey(ctx, k); err != ErrInvalidAPIKey {
			t.Errorf("expected revoked key to fail, got %v", err)
		}
	}
	if _, err := mgr.ValidateKey(ctx, other); err != nil {
		t.Errorf("other account's key should survive revocation: %v", err)
	}
}
