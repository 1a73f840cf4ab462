package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func getJSON(t *testing.T, handler http.HandlerFunc, path string) map[string]interface{} {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	handler(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 for %s, got %d: %s", path, w.Code, w.Body.String())
	}

	var body map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode %s response: %v", path, err)
	}
	return body
}

func TestModelsEndpoint(t *testing.T) {
	h := newTestServer(t, &fakeEngine{}, 4)

	body := getJSON(t, h.handleModels, "/v1/models")

	if body["object"] != "list" {
		t.Errorf("Expected object list, got %v", body["object"])
	}

	data, ok := body["data"].([]interface{})
	if !ok || len(data) != 1 {
		t.Fatalf("Expected one model entry, got %v", body["data"])
	}

	model := data[0].(map[string]interface{})
	if model["id"] != "parakeet-tdt-0.6b-v3" {
		t.Errorf("Expected configured model id, got %v", model["id"])
	}
	if model["owned_by"] != "local" {
		t.Errorf("Expected owned_by local, got %v", model["owned_by"])
	}
	if model["object"] != "model" {
		t.Errorf("Expected object model, got %v", model["object"])
	}
}

func TestHealthEndpoint(t *testing.T) {
	h := newTestServer(t, &fakeEngine{}, 4)

	body := getJSON(t, h.handleHealth, "/health")

	if body["status"] != "healthy" {
		t.Errorf("Expected healthy status, got %v", body["status"])
	}

	// The fake engine has no Ping, so the model probe reports not loaded
	if body["model_loaded"] != false {
		t.Errorf("Expected model_loaded false, got %v", body["model_loaded"])
	}

	components, ok := body["components"].(map[string]interface{})
	if !ok {
		t.Fatal("Expected components section")
	}

	sessions := components["sessions"].(map[string]interface{})
	if sessions["active_count"] != float64(0) {
		t.Errorf("Expected 0 active sessions, got %v", sessions["active_count"])
	}
}

func TestSessionsEndpoint(t *testing.T) {
	h := newTestServer(t, &fakeEngine{}, 4)

	if _, err := h.registry.Create("conn-1", "en"); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	body := getJSON(t, h.handleSessions, "/v1/realtime/sessions")

	if body["total_sessions"] != float64(1) {
		t.Errorf("Expected 1 session, got %v", body["total_sessions"])
	}

	sessions, ok := body["sessions"].([]interface{})
	if !ok || len(sessions) != 1 {
		t.Fatalf("Expected one session entry, got %v", body["sessions"])
	}

	entry := sessions[0].(map[string]interface{})
	if entry["id"] != "conn-1" {
		t.Errorf("Expected session id conn-1, got %v", entry["id"])
	}
	if entry["language"] != "en" {
		t.Errorf("Expected language en, got %v", entry["language"])
	}
}

func TestStatsEndpoint(t *testing.T) {
	h := newTestServer(t, &fakeEngine{}, 4)

	body := getJSON(t, h.handleStats, "/stats")

	if body["uptime"] == nil {
		t.Error("Expected uptime in stats")
	}

	sessions, ok := body["sessions"].(map[string]interface{})
	if !ok {
		t.Fatal("Expected sessions section in stats")
	}
	if sessions["active_count"] != float64(0) {
		t.Errorf("Expected 0 active sessions, got %v", sessions["active_count"])
	}
}

func TestRootEndpoint(t *testing.T) {
	h := newTestServer(t, &fakeEngine{}, 4)

	body := getJSON(t, h.handleRoot, "/")
	if body["endpoints"] == nil {
		t.Error("Expected endpoint listing at root")
	}

	// Unknown paths fall through to 404 rather than the API doc
	req := httptest.NewRequest(http.MethodGet, "/no/such/path", nil)
	w := httptest.NewRecorder()
	h.handleRoot(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown path, got %d", w.Code)
	}
}
