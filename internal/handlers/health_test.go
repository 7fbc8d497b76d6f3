package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func healthResponse(t *testing.T) map[string]string {
	t.Helper()
	rec := httptest.NewRecorder()
	HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return body
}

func TestHealthCheck(t *testing.T) {
	setupTestEnv(t, true)

	body := healthResponse(t)
	if body["status"] != "healthy" || body["database"] != "connected" || body["vault"] != "unlocked" {
		t.Errorf("health = %v", body)
	}
	if body["shell"] != "idle" {
		t.Errorf("shell = %q", body["shell"])
	}
}

func TestHealthCheckLocked(t *testing.T) {
	setupTestEnv(t, false)

	body := healthResponse(t)
	if body["status"] != "unhealthy" || body["vault"] != "locked" {
		t.Errorf("health = %v", body)
	}
}

func TestServerLogs(t *testing.T) {
	setupTestEnv(t, false)
	log.Printf("[test] marker line")

	rec := httptest.NewRecorder()
	GetServerLogs(rec, httptest.NewRequest(http.MethodGet, "/api/v1/logs?lines=5", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]string
	json.Unmarshal(rec.Body.Bytes(), &body)
	if !strings.Contains(body["logs"], "marker line") {
		t.Errorf("logs = %q", body["logs"])
	}

	rec = httptest.NewRecorder()
	ClearServerLogs(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/logs", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	content, _ := LogFile.ReadTail(10)
	if strings.Contains(content, "marker line") {
		t.Error("log should be cleared")
	}
}
