package crypto

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"log"
	"math/big"
	"net"
	"time"

	"github.com/Raj-Manghani/terminus-prime/internal/database"
)

// CertStore persists the server certificate.
type CertStore interface {
	GetSetting(ctx context.Context, key string) (string, bool, error)
	SetSetting(ctx context.Context, key, value string) error
}

// GenerateServerCertPair creates a self-signed ECDSA P-256 server
// certificate valid for hosts, which may be names or IP addresses.
func GenerateServerCertPair(hosts []string) (certPEM, keyPEM string, err error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return "", "", fmt.Errorf("generate ECDSA key: %w", err)
	}

	serialNumber, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return "", "", fmt.Errorf("generate serial number: %w", err)
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber: serialNumber,
		Subject: pkix.Name{
			CommonName: "terminus-prime",
		},
		NotBefore:             now,
		NotAfter:              now.Add(10 * 365 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}
	for _, h := range hosts {
		if ip := net.ParseIP(h); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		} else if h != "" {
			template.DNSNames = append(template.DNSNames, h)
		}
	}

	certDER, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return "", "", fmt.Errorf("create certificate: %w", err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return "", "", fmt.Errorf("marshal private key: %w", err)
	}

	certPEMBytes := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})
	keyPEMBytes := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})
	return string(certPEMBytes), string(keyPEMBytes), nil
}

// ServerCertificate returns the persisted HTTPS certificate, generating one
// on first use. The private key is stored sealed, so the vault must be
// unlocked. A stored pair that no longer opens is replaced.
func (v *Vault) ServerCertificate(ctx context.Context, store CertStore, hosts []string) (*tls.Certificate, error) {
	if !v.Ready() {
		return nil, ErrNotInitialized
	}

	certPEM, ok, err := store.GetSetting(ctx, database.KeyServerCert)
	if err != nil {
		return nil, err
	}
	if ok {
		parsed, err := v.openServerCert(ctx, store, certPEM)
		if err == nil {
			return parsed, nil
		}
		log.Printf("[vault] stored server certificate unusable, generating a new one: %v", err)
	}

	certPEM, keyPEM, err := GenerateServerCertPair(hosts)
	if err != nil {
		return nil, fmt.Errorf("generate server cert: %w", err)
	}
	sealedKey, err := v.Seal([]byte(keyPEM))
	if err != nil {
		return nil, fmt.Errorf("seal server key: %w", err)
	}
	if err := store.SetSetting(ctx, database.KeyServerCert, certPEM); err != nil {
		return nil, fmt.Errorf("save server cert: %w", err)
	}
	if err := store.SetSetting(ctx, database.KeyServerCertKey, sealedKey); err != nil {
		return nil, fmt.Errorf("save server key: %w", err)
	}

	parsed, err := tls.X509KeyPair([]byte(certPEM), []byte(keyPEM))
	if err != nil {
		return nil, fmt.Errorf("parse server cert: %w", err)
	}
	log.Printf("[vault] generated self-signed server certificate")
	return &parsed, nil
}

func (v *Vault) openServerCert(ctx context.Context, store CertStore, certPEM string) (*tls.Certificate, error) {
	sealedKey, ok, err := store.GetSetting(ctx, database.KeyServerCertKey)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("no stored key")
	}
	keyPEM, err := v.Open(sealedKey)
	if err != nil {
		return nil, err
	}
	defer zero(keyPEM)
	parsed, err := tls.X509KeyPair([]byte(certPEM), keyPEM)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}
