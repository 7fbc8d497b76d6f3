package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
)

const (
	// NonceSize is the GCM nonce (IV) length.
	NonceSize = 12
	// TagSize is the GCM authentication tag length.
	TagSize = 16

	blobSeparator = ":"
)

// SealedBlob is one AES-256-GCM encrypted payload.
type SealedBlob struct {
	IV         [NonceSize]byte
	Tag        [TagSize]byte
	Ciphertext []byte
}

// String encodes the blob as hex(iv):hex(tag):hex(ciphertext).
func (b SealedBlob) String() string {
	return hex.EncodeToString(b.IV[:]) + blobSeparator +
		hex.EncodeToString(b.Tag[:]) + blobSeparator +
		hex.EncodeToString(b.Ciphertext)
}

// ParseSealedBlob decodes the String form. Anything other than exactly three
// hex components with the right iv and tag lengths is ErrFormat.
func ParseSealedBlob(s string) (SealedBlob, error) {
	var b SealedBlob

	parts := strings.Split(s, blobSeparator)
	if len(parts) != 3 {
		return b, fmt.Errorf("%w: expected 3 components, got %d", ErrFormat, len(parts))
	}

	iv, err := hex.DecodeString(parts[0])
	if err != nil {
		return b, fmt.Errorf("%w: iv: %v", ErrFormat, err)
	}
	if len(iv) != NonceSize {
		return b, fmt.Errorf("%w: iv is %d bytes, want %d", ErrFormat, len(iv), NonceSize)
	}
	tag, err := hex.DecodeString(parts[1])
	if err != nil {
		return b, fmt.Errorf("%w: tag: %v", ErrFormat, err)
	}
	if len(tag) != TagSize {
		return b, fmt.Errorf("%w: tag is %d bytes, want %d", ErrFormat, len(tag), TagSize)
	}
	ct, err := hex.DecodeString(parts[2])
	if err != nil {
		return b, fmt.Errorf("%w: ciphertext: %v", ErrFormat, err)
	}

	copy(b.IV[:], iv)
	copy(b.Tag[:], tag)
	b.Ciphertext = ct
	return b, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("invalid key length %d, want %d", len(key), KeySize)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}
	return gcm, nil
}

// Seal encrypts plaintext under key with a fresh random nonce.
func Seal(key, plaintext []byte) (SealedBlob, error) {
	var b SealedBlob

	gcm, err := newGCM(key)
	if err != nil {
		return b, err
	}
	if _, err := io.ReadFull(rand.Reader, b.IV[:]); err != nil {
		return b, fmt.Errorf("generate nonce: %w", err)
	}

	out := gcm.Seal(nil, b.IV[:], plaintext, nil)
	split := len(out) - TagSize
	b.Ciphertext = out[:split:split]
	copy(b.Tag[:], out[split:])
	return b, nil
}

// Open authenticates and decrypts blob. Plaintext is only returned after the
// tag verifies; every verification failure is ErrIntegrity.
func Open(key []byte, blob SealedBlob) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIntegrity, err)
	}

	sealed := make([]byte, 0, len(blob.Ciphertext)+TagSize)
	sealed = append(sealed, blob.Ciphertext...)
	sealed = append(sealed, blob.Tag[:]...)

	plaintext, err := gcm.Open(nil, blob.IV[:], sealed, nil)
	if err != nil {
		return nil, ErrIntegrity
	}
	return plaintext, nil
}
