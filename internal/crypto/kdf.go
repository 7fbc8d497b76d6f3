package crypto

import (
	"crypto/rand"
	"crypto/sha512"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// KeySize is the AES-256 key length in bytes.
	KeySize = 32
	// SaltSize is the length of a freshly generated salt.
	SaltSize = 16
	// MinIterations is the lowest PBKDF2 iteration count DeriveKey will use.
	MinIterations = 100000
)

// DeriveKey stretches passphrase into a KeySize-byte key using
// PBKDF2-HMAC-SHA512. Iteration counts below MinIterations are raised to it.
// The result is deterministic for a given (passphrase, salt, iterations).
func DeriveKey(passphrase, salt []byte, iterations int) ([]byte, error) {
	if len(passphrase) == 0 {
		return nil, fmt.Errorf("%w: passphrase is empty", ErrDerivation)
	}
	if len(salt) < SaltSize {
		return nil, fmt.Errorf("%w: salt is %d bytes, need at least %d", ErrDerivation, len(salt), SaltSize)
	}
	if iterations < MinIterations {
		iterations = MinIterations
	}
	return pbkdf2.Key(passphrase, salt, iterations, KeySize, sha512.New), nil
}

// NewSalt returns SaltSize random bytes.
func NewSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("%w: generate salt: %v", ErrDerivation, err)
	}
	return salt, nil
}

// zero overwrites b in place.
func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
