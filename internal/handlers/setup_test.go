package handlers

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"

	"github.com/Raj-Manghani/terminus-prime/internal/crypto"
	"github.com/Raj-Manghani/terminus-prime/internal/database"
	"github.com/Raj-Manghani/terminus-prime/internal/display"
	"github.com/Raj-Manghani/terminus-prime/internal/gateway"
	"github.com/Raj-Manghani/terminus-prime/internal/logging"
	"github.com/Raj-Manghani/terminus-prime/internal/profiles"
	"github.com/Raj-Manghani/terminus-prime/internal/shellbridge"
)

// echoDialer connects to any host except bad-host. Its shells echo input.
type echoDialer struct{}

func (echoDialer) Dial(ctx context.Context, t shellbridge.Target) (shellbridge.Conn, error) {
	if t.Host == "bad-host" {
		return nil, errors.New("no such host")
	}
	return echoConn{}, nil
}

type echoConn struct{}

func (echoConn) OpenShell(ctx context.Context, pty shellbridge.PTY) (shellbridge.Shell, error) {
	r, w := io.Pipe()
	return &echoShell{r: r, w: w}, nil
}

func (echoConn) Close() error { return nil }

type echoShell struct {
	r *io.PipeReader
	w *io.PipeWriter
}

func (s *echoShell) Stdout() io.Reader { return s.r }
func (s *echoShell) Stderr() io.Reader { return nil }
func (s *echoShell) Write(p []byte) (int, error) { return s.w.Write(p) }
func (s *echoShell) Resize(cols, rows uint16) error { return nil }
func (s *echoShell) Close() error { s.r.Close(); return s.w.Close() }

type testEnv struct {
	store *database.Store
	vault *crypto.Vault
}

// setupTestEnv wires the package globals to an in-memory store, an unlocked
// vault and a running bridge over echoDialer.
func setupTestEnv(t *testing.T, unlock bool) *testEnv {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	store, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	vault := crypto.NewVault(store, crypto.MinIterations)
	reg := profiles.New(vault, store)
	if unlock {
		if err := vault.Unlock(ctx, []byte("test-passphrase")); err != nil {
			t.Fatalf("unlock: %v", err)
		}
		if err := reg.Load(ctx); err != nil {
			t.Fatalf("load: %v", err)
		}
	}

	bridge := shellbridge.New(echoDialer{}, shellbridge.Options{})
	bridge.Start(ctx)
	hub := display.NewHub(bridge.Events(), 0)
	go hub.Run(ctx)

	lf, err := logging.Init(filepath.Join(t.TempDir(), "test.log"))
	if err != nil {
		t.Fatalf("init log: %v", err)
	}

	Store = store
	Vault = vault
	Gateway = gateway.New(reg, bridge, store)
	Hub = hub
	LogFile = lf

	t.Cleanup(func() {
		bridge.Stop()
		cancel()
		<-hub.Done()
		lf.Close()
		store.Close()
		Store, Vault, Gateway, Hub, LogFile = nil, nil, nil, nil, nil
	})
	return &testEnv{store: store, vault: vault}
}
