package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/Raj-Manghani/terminus-prime/internal/crypto"
	"github.com/Raj-Manghani/terminus-prime/internal/gateway"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

// writeGatewayError maps gateway and vault errors to HTTP statuses.
func writeGatewayError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, crypto.ErrNotInitialized):
		writeError(w, http.StatusServiceUnavailable, "Profile store is locked")
	case errors.Is(err, gateway.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, gateway.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, gateway.ErrProfileNotFound):
		writeError(w, http.StatusNotFound, "Profile not found")
	case errors.Is(err, crypto.ErrIntegrity), errors.Is(err, crypto.ErrFormat):
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		log.Printf("[api] internal error: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal error")
	}
}

const maxBodySize = 1 << 20

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(v)
}
