package main

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/Raj-Manghani/terminus-prime/internal/config"
	"github.com/Raj-Manghani/terminus-prime/internal/crypto"
	"github.com/Raj-Manghani/terminus-prime/internal/database"
	"github.com/Raj-Manghani/terminus-prime/internal/profiles"
)

// app holds the unlocked profile store shared by serve and the profile
// commands.
type app struct {
	cfg      *config.Settings
	store    *database.Store
	vault    *crypto.Vault
	registry *profiles.Registry
}

// openApp opens the database, unlocks the vault and loads the registry.
func openApp(ctx context.Context, cfg *config.Settings) (*app, error) {
	store, err := database.Open(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}

	_, hasSalt, err := store.GetSetting(ctx, database.KeySalt)
	if err != nil {
		store.Close()
		return nil, err
	}
	passphrase, err := obtainPassphrase(cfg.MasterPassphrase, !hasSalt)
	if err != nil {
		store.Close()
		return nil, err
	}
	defer zeroBytes(passphrase)

	vault := crypto.NewVault(store, cfg.PBKDF2Iterations)
	if err := vault.Unlock(ctx, passphrase); err != nil {
		store.Close()
		return nil, err
	}

	registry := profiles.New(vault, store)
	if err := registry.Load(ctx); err != nil {
		vault.Lock()
		store.Close()
		if errors.Is(err, crypto.ErrIntegrity) {
			return nil, fmt.Errorf("profile store could not be decrypted (wrong passphrase?): %w", err)
		}
		return nil, err
	}
	list, _ := registry.List()
	log.Printf("[app] profile store unlocked, %d profiles", len(list))

	return &app{cfg: cfg, store: store, vault: vault, registry: registry}, nil
}

// Close zeroes the master key and closes the database.
func (a *app) Close() error {
	a.vault.Lock()
	return a.store.Close()
}
