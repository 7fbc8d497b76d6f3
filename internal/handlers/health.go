package handlers

import (
	"context"
	"net/http"
)

// Store and Vault are set from main.go.
var (
	Store interface {
		Ping(ctx context.Context) error
	}
	Vault interface {
		Ready() bool
	}
)

func HealthCheck(w http.ResponseWriter, r *http.Request) {
	dbStatus := "disconnected"
	if Store != nil {
		if err := Store.Ping(r.Context()); err == nil {
			dbStatus = "connected"
		}
	}

	vaultStatus := "locked"
	if Vault != nil && Vault.Ready() {
		vaultStatus = "unlocked"
	}

	shellState := "unavailable"
	if Gateway != nil {
		shellState = Gateway.ShellStatus().State.String()
	}

	status := "healthy"
	if dbStatus != "connected" || vaultStatus != "unlocked" {
		status = "unhealthy"
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":   status,
		"database": dbStatus,
		"vault":    vaultStatus,
		"shell":    shellState,
	})
}
