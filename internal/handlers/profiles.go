package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Raj-Manghani/terminus-prime/internal/gateway"
	"github.com/Raj-Manghani/terminus-prime/internal/profiles"
)

// Gateway is set from main.go.
var Gateway *gateway.Gateway

func ListProfiles(w http.ResponseWriter, r *http.Request) {
	list, err := Gateway.ListProfiles()
	if err != nil {
		writeGatewayError(w, err)
		return
	}
	if list == nil {
		list = []profiles.Profile{}
	}
	writeJSON(w, http.StatusOK, list)
}

func CreateProfile(w http.ResponseWriter, r *http.Request) {
	var d profiles.Draft
	if err := decodeJSON(w, r, &d); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	p, err := Gateway.AddProfile(r.Context(), d)
	if err != nil {
		writeGatewayError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func UpdateProfile(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var p profiles.Profile
	if err := decodeJSON(w, r, &p); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	p.ID = id
	ok, err := Gateway.UpdateProfile(r.Context(), p)
	if err != nil {
		writeGatewayError(w, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "Profile not found")
		return
	}
	updated, err := Gateway.GetProfile(id)
	if err != nil {
		writeGatewayError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func DeleteProfile(w http.ResponseWriter, r *http.Request) {
	ok, err := Gateway.DeleteProfile(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeGatewayError(w, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "Profile not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
