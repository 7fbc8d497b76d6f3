package crypto

import (
	"bytes"
	"errors"
	"testing"
)

func TestDeriveKeyDeterministic(t *testing.T) {
	salt := bytes.Repeat([]byte{0x42}, SaltSize)

	k1, err := DeriveKey([]byte("hunter2"), salt, MinIterations)
	if err != nil {
		t.Fatalf("DeriveKey: %v", err)
	}
	k2, err := DeriveKey([]byte("hunter2"), salt, MinIterations)
	if err != nil {
		t.Fatalf("DeriveKey: %v", err)
	}
	if len(k1) != KeySize {
		t.Fatalf("key length = %d, want %d", len(k1), KeySize)
	}
	if !bytes.Equal(k1, k2) {
		t.Error("same passphrase and salt produced different keys")
	}
}

func TestDeriveKeyDifferentSalts(t *testing.T) {
	s1, err := NewSalt()
	if err != nil {
		t.Fatalf("NewSalt: %v", err)
	}
	s2, err := NewSalt()
	if err != nil {
		t.Fatalf("NewSalt: %v", err)
	}
	if bytes.Equal(s1, s2) {
		t.Fatal("two fresh salts are identical")
	}

	k1, _ := DeriveKey([]byte("pw"), s1, MinIterations)
	k2, _ := DeriveKey([]byte("pw"), s2, MinIterations)
	if bytes.Equal(k1, k2) {
		t.Error("different salts produced the same key")
	}
}

func TestDeriveKeyClampsIterations(t *testing.T) {
	salt := bytes.Repeat([]byte{1}, SaltSize)
	low, _ := DeriveKey([]byte("pw"), salt, 1)
	min, _ := DeriveKey([]byte("pw"), salt, MinIterations)
	if !bytes.Equal(low, min) {
		t.Error("iteration counts below the minimum should be raised to MinIterations")
	}
}

func TestDeriveKeyErrors(t *testing.T) {
	salt := bytes.Repeat([]byte{1}, SaltSize)
	if _, err := DeriveKey(nil, salt, MinIterations); !errors.Is(err, ErrDerivation) {
		t.Errorf("empty passphrase: got %v, want ErrDerivation", err)
	}
	if _, err := DeriveKey([]byte("pw"), salt[:8], MinIterations); !errors.Is(err, ErrDerivation) {
		t.Errorf("short salt: got %v, want ErrDerivation", err)
	}
}
