package handlers

import (
	"net/http"

	"github.com/Raj-Manghani/terminus-prime/internal/gateway"
)

func GetSettings(w http.ResponseWriter, r *http.Request) {
	s, err := Gateway.Settings(r.Context())
	if err != nil {
		writeGatewayError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var s gateway.Settings
	if err := decodeJSON(w, r, &s); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := Gateway.SetSettings(r.Context(), s); err != nil {
		writeGatewayError(w, err)
		return
	}
	GetSettings(w, r)
}
