package database

import "time"

// Keys of the independently stored records.
const (
	// KeySettings holds the plaintext JSON settings record.
	KeySettings = "settings"
	// KeySalt holds the hex-encoded PBKDF2 salt.
	KeySalt = "pbkdf2_salt"
	// KeyProfiles holds the sealed profile list.
	KeyProfiles = "profiles"
	// KeyServerCert and KeyServerCertKey hold the self-signed HTTPS
	// certificate and its sealed private key.
	KeyServerCert    = "server_cert"
	KeyServerCertKey = "server_cert_key"
)

type Setting struct {
	Key       string    `gorm:"primaryKey" json:"key"`
	Value     string    `gorm:"not null" json:"value"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
