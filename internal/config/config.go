package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Prefix is the environment variable prefix for all settings.
const Prefix = "TERMINUS"

type Settings struct {
	DataPath     string `envconfig:"DATA_PATH" default:"./data"`
	DatabasePath string `envconfig:"DATABASE_PATH" default:""`
	LogPath      string `envconfig:"LOG_PATH" default:""`
	ListenAddr   string `envconfig:"LISTEN_ADDR" default:"127.0.0.1:8000"`
	APIToken     string `envconfig:"API_TOKEN" default:""`
	TLS          bool   `envconfig:"TLS" default:"false"`

	// AllowedOrigins are host patterns accepted on the shell WebSocket in
	// addition to the request's own host.
	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS" default:""`

	// MasterPassphrase unlocks the profile vault. Left empty, the CLI prompts
	// on the terminal. It has no default.
	MasterPassphrase string `envconfig:"MASTER_PASSPHRASE" default:""`
	PBKDF2Iterations int    `envconfig:"PBKDF2_ITERATIONS" default:"100000"`

	// Shell bridge settings
	ConnectTimeout  time.Duration `envconfig:"CONNECT_TIMEOUT" default:"20s"`
	ConnectAttempts int           `envconfig:"CONNECT_ATTEMPTS_PER_MINUTE" default:"10"`
	KnownHostsPath  string        `envconfig:"KNOWN_HOSTS" default:""`
	TermType        string        `envconfig:"TERM_TYPE" default:"xterm-256color"`
	RequestQueue    int           `envconfig:"REQUEST_QUEUE" default:"64"`
	EventQueue      int           `envconfig:"EVENT_QUEUE" default:"256"`
	MaxPendingWrite int           `envconfig:"MAX_PENDING_WRITE" default:"1048576"`
	ScrollbackBytes int           `envconfig:"SCROLLBACK_BYTES" default:"1048576"`

	// Log maintenance
	LogTrimSchedule string `envconfig:"LOG_TRIM_SCHEDULE" default:"@every 1h"`
	LogKeepLines    int    `envconfig:"LOG_KEEP_LINES" default:"5000"`
}

// Load reads settings from the environment and fills in paths derived from
// DataPath.
func Load() (*Settings, error) {
	var s Settings
	if err := envconfig.Process(Prefix, &s); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if s.DatabasePath == "" {
		s.DatabasePath = filepath.Join(s.DataPath, "terminus.db")
	}
	if s.LogPath == "" {
		s.LogPath = filepath.Join(s.DataPath, "terminus.log")
	}
	return &s, nil
}
