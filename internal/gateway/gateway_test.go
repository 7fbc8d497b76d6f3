package gateway

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/Raj-Manghani/terminus-prime/internal/crypto"
	"github.com/Raj-Manghani/terminus-prime/internal/database"
	"github.com/Raj-Manghani/terminus-prime/internal/profiles"
	"github.com/Raj-Manghani/terminus-prime/internal/shellbridge"
)

type recordingShell struct {
	mu       sync.Mutex
	targets  []shellbridge.Target
	sent     [][]byte
	resizes  [][2]uint16
	disconns int
}

func (s *recordingShell) Connect(t shellbridge.Target) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.targets = append(s.targets, t)
}

func (s *recordingShell) Send(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, data)
}

func (s *recordingShell) Resize(cols, rows uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resizes = append(s.resizes, [2]uint16{cols, rows})
}

func (s *recordingShell) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disconns++
}

func (s *recordingShell) State() shellbridge.ConnectionState { return shellbridge.StateIdle }
func (s *recordingShell) FailureReason() string              { return "" }
func (s *recordingShell) Transitions() []shellbridge.StateTransition {
	return nil
}

func setupGateway(t *testing.T, unlock bool) (*Gateway, *recordingShell, *database.Store) {
	t.Helper()
	store, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	vault := crypto.NewVault(store, crypto.MinIterations)
	reg := profiles.New(vault, store)
	if unlock {
		if err := vault.Unlock(context.Background(), []byte("pw")); err != nil {
			t.Fatalf("unlock: %v", err)
		}
		if err := reg.Load(context.Background()); err != nil {
			t.Fatalf("load: %v", err)
		}
	}
	shell := &recordingShell{}
	return New(reg, shell, store), shell, store
}

func TestConnectRejectsMissingFields(t *testing.T) {
	g, shell, _ := setupGateway(t, true)

	cases := []ConnectRequest{
		{Host: "", Username: "alice", Secret: "pw"},
		{Host: "   ", Username: "alice", Secret: "pw"},
		{Host: "h", Username: "", Secret: "pw"},
		{Host: "h", Username: "alice", Secret: ""},
	}
	for _, req := range cases {
		if err := g.Connect(req); !errors.Is(err, ErrInvalidRequest) {
			t.Errorf("Connect(%+v) = %v, want ErrInvalidRequest", req, err)
		}
	}
	if len(shell.targets) != 0 {
		t.Errorf("bridge should be untouched, got %+v", shell.targets)
	}
}

func TestConnectDefaultsPortAndTrims(t *testing.T) {
	g, shell, _ := setupGateway(t, true)

	if err := g.Connect(ConnectRequest{Host: " 10.0.0.5 ", Username: "alice", Secret: "pw"}); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	want := shellbridge.Target{Host: "10.0.0.5", Port: 22, Username: "alice", Secret: "pw"}
	if len(shell.targets) != 1 || shell.targets[0] != want {
		t.Errorf("targets = %+v, want [%+v]", shell.targets, want)
	}
}

func TestConnectProfile(t *testing.T) {
	g, shell, _ := setupGateway(t, true)
	ctx := context.Background()

	p, err := g.AddProfile(ctx, profiles.Draft{Name: "box1", Host: "10.0.0.5", Port: 2222, Username: "alice"})
	if err != nil {
		t.Fatalf("AddProfile: %v", err)
	}
	if err := g.ConnectProfile(p.ID, "pw"); err != nil {
		t.Fatalf("ConnectProfile: %v", err)
	}
	if len(shell.targets) != 1 || shell.targets[0].Port != 2222 || shell.targets[0].Secret != "pw" {
		t.Errorf("targets = %+v", shell.targets)
	}

	if err := g.ConnectProfile("missing", "pw"); !errors.Is(err, ErrProfileNotFound) {
		t.Errorf("missing profile: got %v", err)
	}
	if err := g.ConnectProfile(p.ID, ""); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("empty secret: got %v", err)
	}
}

func TestProfileCRUD(t *testing.T) {
	g, _, _ := setupGateway(t, true)
	ctx := context.Background()

	if _, err := g.AddProfile(ctx, profiles.Draft{Name: "x", Host: "", Username: "u"}); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("AddProfile without host: got %v", err)
	}

	p, err := g.AddProfile(ctx, profiles.Draft{Name: "box1", Host: "10.0.0.5", Username: "alice"})
	if err != nil {
		t.Fatalf("AddProfile: %v", err)
	}
	if p.Port != DefaultPort {
		t.Errorf("port = %d, want default", p.Port)
	}

	p.Name = "renamed"
	if ok, err := g.UpdateProfile(ctx, p); err != nil || !ok {
		t.Fatalf("UpdateProfile: %v %v", ok, err)
	}
	got, err := g.GetProfile(p.ID)
	if err != nil || got.Name != "renamed" {
		t.Errorf("GetProfile = %+v, %v", got, err)
	}
	if ok, err := g.UpdateProfile(ctx, profiles.Profile{ID: "nope", Name: "a", Host: "h", Username: "u"}); err != nil || ok {
		t.Errorf("UpdateProfile missing: got %v %v, want false", ok, err)
	}
	if _, err := g.UpdateProfile(ctx, profiles.Profile{Name: "a", Host: "h", Username: "u"}); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("UpdateProfile without id: got %v", err)
	}

	ok, err := g.DeleteProfile(ctx, p.ID)
	if err != nil || !ok {
		t.Fatalf("DeleteProfile: %v %v", ok, err)
	}
	list, _ := g.ListProfiles()
	if len(list) != 0 {
		t.Errorf("list after delete = %+v", list)
	}
}

func TestProfilesBeforeUnlock(t *testing.T) {
	g, _, _ := setupGateway(t, false)
	ctx := context.Background()

	if _, err := g.ListProfiles(); !errors.Is(err, crypto.ErrNotInitialized) {
		t.Errorf("ListProfiles: %v", err)
	}
	if _, err := g.AddProfile(ctx, profiles.Draft{Name: "a", Host: "h", Username: "u"}); !errors.Is(err, crypto.ErrNotInitialized) {
		t.Errorf("AddProfile: %v", err)
	}
	if _, err := g.DeleteProfile(ctx, "x"); !errors.Is(err, crypto.ErrNotInitialized) {
		t.Errorf("DeleteProfile: %v", err)
	}
}

func TestShellDelegation(t *testing.T) {
	g, shell, _ := setupGateway(t, true)

	g.Send([]byte("ls\r"))
	g.Resize(120, 40)
	g.Disconnect()

	if len(shell.sent) != 1 || string(shell.sent[0]) != "ls\r" {
		t.Errorf("sent = %q", shell.sent)
	}
	if len(shell.resizes) != 1 || shell.resizes[0] != [2]uint16{120, 40} {
		t.Errorf("resizes = %v", shell.resizes)
	}
	if shell.disconns != 1 {
		t.Errorf("disconnects = %d", shell.disconns)
	}
	if st := g.ShellStatus(); st.State != shellbridge.StateIdle {
		t.Errorf("status = %+v", st)
	}
}

func TestSettingsDefaultAndRoundTrip(t *testing.T) {
	g, _, store := setupGateway(t, false)
	ctx := context.Background()

	s, err := g.Settings(ctx)
	if err != nil {
		t.Fatalf("Settings: %v", err)
	}
	if s.Theme != DefaultTheme {
		t.Errorf("theme = %q, want default", s.Theme)
	}

	if err := g.SetSettings(ctx, Settings{Theme: "solarized"}); err != nil {
		t.Fatalf("SetSettings: %v", err)
	}
	s, _ = g.Settings(ctx)
	if s.Theme != "solarized" {
		t.Errorf("theme = %q", s.Theme)
	}
	if raw, _, _ := store.GetSetting(ctx, database.KeySettings); raw != `{"theme":"solarized"}` {
		t.Errorf("stored = %q", raw)
	}

	if err := g.SetSettings(ctx, Settings{Theme: " "}); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("empty theme: got %v", err)
	}
}
