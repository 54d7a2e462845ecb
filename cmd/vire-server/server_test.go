package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bobmcallan/vire-engine/internal/app"
	"github.com/bobmcallan/vire-engine/internal/server"
)

// testServer creates an httptest.Server with the full vire-server handler for testing.
func testServer(t *testing.T) *httptest.Server {
	t.Helper()
	handler := newServerHandler(t)
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return ts
}

// newServerHandler builds the HTTP handler the same way main() does, using a test App.
func newServerHandler(t *testing.T) http.Handler {
	t.Helper()
	configPath := writeTestConfig(t)
	a, err := app.NewApp(configPath)
	if err != nil {
		t.Fatalf("NewApp failed: %v", err)
	}
	t.Cleanup(a.Close)
	return server.NewServer(a).Handler()
}

func TestHealthEndpoint(t *testing.T) {
	ts := testServer(t)

	resp, err := http.Get(ts.URL + "/api/health")
	if err != nil {
		t.Fatalf("GET /api/health failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if body["status"] != "ok" {
		t.Errorf("Expected status=ok, got %q", body["status"])
	}
}

func TestVersionEndpoint(t *testing.T) {
	ts := testServer(t)

	resp, err := http.Get(ts.URL + "/api/version")
	if err != nil {
		t.Fatalf("GET /api/version failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if body["version"] == "" {
		t.Error("Expected non-empty version field")
	}
}

func TestHealthEndpoint_MethodNotAllowed(t *testing.T) {
	ts := testServer(t)

	resp, err := http.Post(ts.URL+"/api/health", "application/json", strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("POST /api/health failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405 for POST /api/health, got %d", resp.StatusCode)
	}
}

// TestEngineQueuesRequiresAuth verifies a dashboard route is rejected without
// a bearer token and accepted once the admin token is exchanged for one.
func TestEngineQueuesRequiresAuth(t *testing.T) {
	ts := testServer(t)

	resp, err := http.Get(ts.URL + "/api/engine/queues")
	if err != nil {
		t.Fatalf("GET /api/engine/queues failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected 401 without bearer token, got %d", resp.StatusCode)
	}

	tokenResp, err := http.Post(ts.URL+"/api/auth/token", "application/json",
		strings.NewReader(`{"admin_token":"test-admin-token"}`))
	if err != nil {
		t.Fatalf("POST /api/auth/token failed: %v", err)
	}
	defer tokenResp.Body.Close()
	if tokenResp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200 from token exchange, got %d", tokenResp.StatusCode)
	}
	var tokenBody map[string]string
	if err := json.NewDecoder(tokenResp.Body).Decode(&tokenBody); err != nil {
		t.Fatalf("Failed to decode token response: %v", err)
	}

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/engine/queues", nil)
	req.Header.Set("Authorization", "Bearer "+tokenBody["token"])
	authedResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /api/engine/queues with token failed: %v", err)
	}
	defer authedResp.Body.Close()
	if authedResp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200 with valid token, got %d", authedResp.StatusCode)
	}
}

// --- test helpers ---

func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	os.MkdirAll(filepath.Join(dir, "logs"), 0755)

	config := `
environment = "development"

[server]
host = "127.0.0.1"
port = 0

[engine]
string_comparer = "ordinal"
max_expiration_time = "24h"
max_state_history_length = 25
command_timeout = "10s"
inbox_capacity = 1024
eviction_interval = "5s"
mirror_enabled = false

[auth]
jwt_secret = "test-jwt-secret"
token_expiry = "1h"
admin_token = "test-admin-token"

[logging]
level = "error"
format = "json"
outputs = ["console"]
file_path = "` + filepath.Join(dir, "logs", "vire-engine.log") + `"
`
	configPath := filepath.Join(dir, "vire.toml")
	if err := os.WriteFile(configPath, []byte(config), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	return configPath
}
