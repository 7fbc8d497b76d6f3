package crypto

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/Raj-Manghani/terminus-prime/internal/database"
)

func newTestVault(t *testing.T) (*Vault, *database.Store) {
	t.Helper()
	store, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return NewVault(store, MinIterations), store
}

func TestVaultLockedOperations(t *testing.T) {
	v, _ := newTestVault(t)
	if v.Ready() {
		t.Fatal("new vault should be locked")
	}
	if _, err := v.Seal([]byte("x")); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Seal while locked: got %v", err)
	}
	if _, err := v.Open("00:00:00"); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Open while locked: got %v", err)
	}
}

func TestVaultUnlockPersistsSalt(t *testing.T) {
	v, store := newTestVault(t)
	ctx := context.Background()

	if _, ok, _ := store.GetSetting(ctx, database.KeySalt); ok {
		t.Fatal("fresh store should have no salt")
	}
	if err := v.Unlock(ctx, []byte("password")); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	salt, ok, _ := store.GetSetting(ctx, database.KeySalt)
	if !ok || len(salt) != SaltSize*2 {
		t.Fatalf("expected hex salt of %d chars, got %q", SaltSize*2, salt)
	}

	sealed, err := v.Seal([]byte("hello"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	// A second vault over the same store derives the same key.
	other := NewVault(store, MinIterations)
	if err := other.Unlock(ctx, []byte("password")); err != nil {
		t.Fatalf("Unlock other: %v", err)
	}
	got, err := other.Open(sealed)
	if err != nil {
		t.Fatalf("Open with re-derived key: %v", err)
	}
	if string(got) != "hello" {
		t.Errorf("got %q, want hello", got)
	}

	// Wrong passphrase cannot open it.
	wrong := NewVault(store, MinIterations)
	if err := wrong.Unlock(ctx, []byte("not-the-password")); err != nil {
		t.Fatalf("Unlock wrong: %v", err)
	}
	if _, err := wrong.Open(sealed); !errors.Is(err, ErrIntegrity) {
		t.Errorf("wrong passphrase: got %v, want ErrIntegrity", err)
	}
}

func TestVaultConcurrentUnlockSharesSalt(t *testing.T) {
	_, store := newTestVault(t)
	ctx := context.Background()

	vaults := []*Vault{NewVault(store, MinIterations), NewVault(store, MinIterations)}
	var wg sync.WaitGroup
	for _, v := range vaults {
		wg.Add(1)
		go func(v *Vault) {
			defer wg.Done()
			if err := v.Unlock(ctx, []byte("pw")); err != nil {
				t.Errorf("Unlock: %v", err)
			}
		}(v)
	}
	wg.Wait()

	sealed, err := vaults[0].Seal([]byte("shared"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if _, err := vaults[1].Open(sealed); err != nil {
		t.Errorf("vaults derived different keys: %v", err)
	}
}

func TestVaultUnlockEmptyPassphrase(t *testing.T) {
	v, store := newTestVault(t)
	if err := v.Unlock(context.Background(), nil); !errors.Is(err, ErrDerivation) {
		t.Fatalf("got %v, want ErrDerivation", err)
	}
	if v.Ready() {
		t.Error("vault should stay locked")
	}
	if _, ok, _ := store.GetSetting(context.Background(), database.KeySalt); ok {
		t.Error("salt should not be created for a rejected passphrase")
	}
}

func TestVaultLock(t *testing.T) {
	v, _ := newTestVault(t)
	if err := v.Unlock(context.Background(), []byte("pw")); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	v.Lock()
	if v.Ready() {
		t.Error("vault should be locked after Lock")
	}
	if _, err := v.Seal([]byte("x")); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Seal after Lock: got %v", err)
	}
}
