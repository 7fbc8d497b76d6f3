// Package gateway is the single entry point the display surface and the CLI
// use: profile management, settings and the shell session.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/Raj-Manghani/terminus-prime/internal/database"
	"github.com/Raj-Manghani/terminus-prime/internal/logutil"
	"github.com/Raj-Manghani/terminus-prime/internal/profiles"
	"github.com/Raj-Manghani/terminus-prime/internal/shellbridge"
)

var (
	// ErrInvalidRequest is returned for requests missing required fields.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrProfileNotFound is returned when a profile id does not exist.
	ErrProfileNotFound = errors.New("profile not found")
)

// DefaultPort is used when a request leaves the port at zero.
const DefaultPort = 22

// DefaultTheme is the theme of a fresh install.
const DefaultTheme = "default-dark"

// ConnectRequest carries an ad-hoc connection target and its secret.
type ConnectRequest struct {
	Host     string `json:"host"`
	Port     uint16 `json:"port"`
	Username string `json:"username"`
	Secret   string `json:"secret"`
}

// Settings is the user preference record, stored unencrypted.
type Settings struct {
	Theme string `json:"theme"`
}

// Registry is the profile list the gateway delegates to.
type Registry interface {
	List() ([]profiles.Profile, error)
	Get(id string) (profiles.Profile, bool, error)
	Add(ctx context.Context, d profiles.Draft) (profiles.Profile, error)
	Update(ctx context.Context, p profiles.Profile) (bool, error)
	Delete(ctx context.Context, id string) (bool, error)
}

// Shell is the session bridge the gateway delegates to.
type Shell interface {
	Connect(target shellbridge.Target)
	Send(data []byte)
	Resize(cols, rows uint16)
	Disconnect()
	State() shellbridge.ConnectionState
	FailureReason() string
	Transitions() []shellbridge.StateTransition
}

// SettingsStore persists the settings record.
type SettingsStore interface {
	GetSetting(ctx context.Context, key string) (string, bool, error)
	SetSetting(ctx context.Context, key, value string) error
}

// Gateway validates requests and forwards them. It holds no state of its own.
type Gateway struct {
	registry Registry
	shell    Shell
	settings SettingsStore
	limiter  *AttemptLimiter
}

func New(registry Registry, shell Shell, settings SettingsStore) *Gateway {
	return &Gateway{
		registry: registry,
		shell:    shell,
		settings: settings,
		limiter:  NewAttemptLimiter(DefaultMaxAttemptsPerMinute),
	}
}

// SetConnectLimit replaces the per-target attempt limit. Zero disables it.
func (g *Gateway) SetConnectLimit(maxPerMinute int) {
	g.limiter = NewAttemptLimiter(maxPerMinute)
}

// ListProfiles returns all profiles in insertion order.
func (g *Gateway) ListProfiles() ([]profiles.Profile, error) {
	return g.registry.List()
}

// GetProfile returns the profile with id or ErrProfileNotFound.
func (g *Gateway) GetProfile(id string) (profiles.Profile, error) {
	p, ok, err := g.registry.Get(id)
	if err != nil {
		return profiles.Profile{}, err
	}
	if !ok {
		return profiles.Profile{}, fmt.Errorf("%w: %s", ErrProfileNotFound, id)
	}
	return p, nil
}

// AddProfile validates and stores a new profile.
func (g *Gateway) AddProfile(ctx context.Context, d profiles.Draft) (profiles.Profile, error) {
	d, err := normalizeDraft(d)
	if err != nil {
		return profiles.Profile{}, err
	}
	return g.registry.Add(ctx, d)
}

// UpdateProfile replaces the stored profile with the same id. It reports
// false when no profile has that id.
func (g *Gateway) UpdateProfile(ctx context.Context, p profiles.Profile) (bool, error) {
	if strings.TrimSpace(p.ID) == "" {
		return false, fmt.Errorf("%w: id is required", ErrInvalidRequest)
	}
	d, err := normalizeDraft(p.Draft())
	if err != nil {
		return false, err
	}
	return g.registry.Update(ctx, profiles.Profile{ID: p.ID, Name: d.Name, Host: d.Host, Port: d.Port, Username: d.Username})
}

// DeleteProfile removes the profile with id. Deleting a missing id is not an
// error and reports false.
func (g *Gateway) DeleteProfile(ctx context.Context, id string) (bool, error) {
	return g.registry.Delete(ctx, id)
}

func normalizeDraft(d profiles.Draft) (profiles.Draft, error) {
	d.Name = strings.TrimSpace(d.Name)
	d.Host = strings.TrimSpace(d.Host)
	d.Username = strings.TrimSpace(d.Username)
	var missing []string
	if d.Name == "" {
		missing = append(missing, "name")
	}
	if d.Host == "" {
		missing = append(missing, "host")
	}
	if d.Username == "" {
		missing = append(missing, "username")
	}
	if len(missing) > 0 {
		return d, fmt.Errorf("%w: %s required", ErrInvalidRequest, strings.Join(missing, ", "))
	}
	if d.Port == 0 {
		d.Port = DefaultPort
	}
	return d, nil
}

// Normalize trims host and username, applies DefaultPort and checks that
// host, username and secret are present.
func (r ConnectRequest) Normalize() (ConnectRequest, error) {
	r.Host = strings.TrimSpace(r.Host)
	r.Username = strings.TrimSpace(r.Username)
	var missing []string
	if r.Host == "" {
		missing = append(missing, "host")
	}
	if r.Username == "" {
		missing = append(missing, "username")
	}
	if r.Secret == "" {
		missing = append(missing, "secret")
	}
	if len(missing) > 0 {
		return r, fmt.Errorf("%w: %s required", ErrInvalidRequest, strings.Join(missing, ", "))
	}
	if r.Port == 0 {
		r.Port = DefaultPort
	}
	return r, nil
}

// Connect validates req and asks the bridge to connect, superseding any live
// session. Invalid and rate limited requests never reach the bridge.
func (g *Gateway) Connect(req ConnectRequest) error {
	req, err := req.Normalize()
	if err != nil {
		return err
	}
	target := logutil.Target(req.Username, req.Host, req.Port)
	if err := g.limiter.Allow(target); err != nil {
		return err
	}
	log.Printf("[gateway] connect %s (secret %s)", target, logutil.Mask(req.Secret))
	g.shell.Connect(shellbridge.Target{Host: req.Host, Port: req.Port, Username: req.Username, Secret: req.Secret})
	return nil
}

// ProfileRequest builds a connect request for a saved profile.
func (g *Gateway) ProfileRequest(id, secret string) (ConnectRequest, error) {
	p, err := g.GetProfile(id)
	if err != nil {
		return ConnectRequest{}, err
	}
	return ConnectRequest{Host: p.Host, Port: p.Port, Username: p.Username, Secret: secret}, nil
}

// ConnectProfile connects to a saved profile with the given secret.
func (g *Gateway) ConnectProfile(id, secret string) error {
	req, err := g.ProfileRequest(id, secret)
	if err != nil {
		return err
	}
	return g.Connect(req)
}

func (g *Gateway) Send(data []byte) { g.shell.Send(data) }

func (g *Gateway) Resize(cols, rows uint16) { g.shell.Resize(cols, rows) }

func (g *Gateway) Disconnect() { g.shell.Disconnect() }

// ShellStatus summarizes the bridge for status endpoints.
type ShellStatus struct {
	State         shellbridge.ConnectionState   `json:"state"`
	FailureReason string                        `json:"failure_reason,omitempty"`
	Transitions   []shellbridge.StateTransition `json:"transitions"`
}

func (g *Gateway) ShellStatus() ShellStatus {
	return ShellStatus{
		State:         g.shell.State(),
		FailureReason: g.shell.FailureReason(),
		Transitions:   g.shell.Transitions(),
	}
}

// Settings returns the stored settings, or the defaults on a fresh install.
func (g *Gateway) Settings(ctx context.Context) (Settings, error) {
	raw, ok, err := g.settings.GetSetting(ctx, database.KeySettings)
	if err != nil {
		return Settings{}, fmt.Errorf("load settings: %w", err)
	}
	s := Settings{Theme: DefaultTheme}
	if !ok {
		return s, nil
	}
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return Settings{}, fmt.Errorf("decode settings: %w", err)
	}
	if s.Theme == "" {
		s.Theme = DefaultTheme
	}
	return s, nil
}

// SetSettings stores s.
func (g *Gateway) SetSettings(ctx context.Context, s Settings) error {
	s.Theme = strings.TrimSpace(s.Theme)
	if s.Theme == "" {
		return fmt.Errorf("%w: theme required", ErrInvalidRequest)
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := g.settings.SetSetting(ctx, database.KeySettings, string(raw)); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	log.Printf("[gateway] theme set to %s", logutil.SanitizeForLog(s.Theme))
	return nil
}
