// Package crypto protects persisted profile data with a passphrase-derived
// AES-256-GCM key.
//
// The master key is derived with PBKDF2-HMAC-SHA512 from the user's
// passphrase and a per-installation salt, and lives only inside a [Vault].
// Payloads are sealed into a [SealedBlob] whose encoded form is
// hex(iv):hex(tag):hex(ciphertext).
package crypto

import "errors"

var (
	// ErrDerivation is returned when the master key cannot be derived
	// (empty passphrase, short salt, salt storage failure).
	ErrDerivation = errors.New("key derivation failed")
	// ErrIntegrity is returned when a sealed blob fails authentication:
	// tampered or corrupted data, or the wrong key.
	ErrIntegrity = errors.New("sealed data failed integrity check")
	// ErrFormat is returned when an encoded blob cannot be parsed.
	ErrFormat = errors.New("malformed sealed data")
	// ErrNotInitialized is returned when sealing or opening is attempted
	// before the vault holds a master key.
	ErrNotInitialized = errors.New("encryption key not initialized")
)
