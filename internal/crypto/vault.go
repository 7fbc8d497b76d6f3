package crypto

import (
	"context"
	"encoding/hex"
	"fmt"
	"log"
	"sync"

	"github.com/Raj-Manghani/terminus-prime/internal/database"
)

// SaltStore persists the installation salt. EnsureSetting must create the
// value at most once and hand every caller the stored value.
type SaltStore interface {
	EnsureSetting(ctx context.Context, key string, generate func() (string, error)) (string, error)
}

// Vault holds the master key for the lifetime of the process. It is the only
// place the key exists; Lock zeroes it.
type Vault struct {
	salts      SaltStore
	iterations int

	mu  sync.RWMutex
	key []byte
}

// NewVault creates a locked vault. iterations below MinIterations are raised
// by DeriveKey.
func NewVault(salts SaltStore, iterations int) *Vault {
	return &Vault{salts: salts, iterations: iterations}
}

// Unlock derives the master key from passphrase and the persisted salt,
// generating and storing the salt first on a fresh install. Unlocking an
// already unlocked vault is a no-op.
func (v *Vault) Unlock(ctx context.Context, passphrase []byte) error {
	if len(passphrase) == 0 {
		return fmt.Errorf("%w: passphrase is empty", ErrDerivation)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.key != nil {
		return nil
	}

	saltHex, err := v.salts.EnsureSetting(ctx, database.KeySalt, func() (string, error) {
		log.Printf("[vault] no salt found, generating a new one")
		salt, err := NewSalt()
		if err != nil {
			return "", err
		}
		return hex.EncodeToString(salt), nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDerivation, err)
	}
	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return fmt.Errorf("%w: stored salt is not hex: %v", ErrDerivation, err)
	}

	key, err := DeriveKey(passphrase, salt, v.iterations)
	if err != nil {
		return err
	}
	v.key = key
	log.Printf("[vault] master key derived")
	return nil
}

// Ready reports whether the vault holds a master key.
func (v *Vault) Ready() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.key != nil
}

// Lock zeroes and drops the master key.
func (v *Vault) Lock() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.key != nil {
		zero(v.key)
		v.key = nil
	}
}

// Seal encrypts plaintext and returns the encoded blob.
func (v *Vault) Seal(plaintext []byte) (string, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.key == nil {
		return "", ErrNotInitialized
	}
	blob, err := Seal(v.key, plaintext)
	if err != nil {
		return "", err
	}
	return blob.String(), nil
}

// Open parses and decrypts an encoded blob.
func (v *Vault) Open(encoded string) ([]byte, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.key == nil {
		return nil, ErrNotInitialized
	}
	blob, err := ParseSealedBlob(encoded)
	if err != nil {
		return nil, err
	}
	return Open(v.key, blob)
}
