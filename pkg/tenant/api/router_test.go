//go:build integration

package api_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/groundplane/groundplane/pkg/bootstrap"
	"github.com/groundplane/groundplane/pkg/changelog"
	logmem "github.com/groundplane/groundplane/pkg/changelog/memory"
	"github.com/groundplane/groundplane/pkg/coordination"
	coordmem "github.com/groundplane/groundplane/pkg/coordination/memory"
	"github.com/groundplane/groundplane/pkg/metrics"
	"github.com/groundplane/groundplane/pkg/provision"
	"github.com/groundplane/groundplane/pkg/tenant/api"
	"github.com/groundplane/groundplane/pkg/tenant/api/auth"
	"github.com/groundplane/groundplane/pkg/tenant/api/handlers"
	"github.com/groundplane/groundplane/pkg/tenant/store"
)

// testEnv wires the full management path: sqlite store behind the change
// trigger, memory change log, and a bootstrapper over a memory coordination
// store.
type testEnv struct {
	server    *httptest.Server
	log       changelog.Log
	coord     coordination.Store
	adminPass string
}

func setupRouterTest(t *testing.T) *testEnv {
	t.Helper()

	tenantStore, err := store.New(&store.Config{
		Type: store.DatabaseTypeSQLite,
		SQLite: store.SQLiteConfig{
			Path: ":memory:",
		},
	})
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = tenantStore.Close() })

	log := logmem.New()
	t.Cleanup(func() { _ = log.Close() })
	trigger := provision.NewTrigger(tenantStore, log, nil)

	coordStore := coordmem.New()
	t.Cleanup(func() { _ = coordStore.Close() })
	bootstrapper := bootstrap.New(coordStore, nil, nil, "default", nil)

	const adminPass = "correct-horse-battery"
	hash, err := auth.HashPassword(adminPass)
	if err != nil {
		t.Fatalf("Failed to hash password: %v", err)
	}

	cfg := api.Config{}
	cfg.ApplyDefaults()
	cfg.JWT.Secret = "test-secret-that-is-at-least-32-characters-long"
	cfg.Admin.Username = "admin"
	cfg.Admin.PasswordHash = hash

	jwtService, err := auth.NewJWTService(auth.JWTConfig{Secret: cfg.JWT.Secret})
	if err != nil {
		t.Fatalf("Failed to create JWT service: %v", err)
	}

	router := api.NewRouter(&cfg, jwtService, trigger, bootstrapper)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &testEnv{
		server:    server,
		log:       log,
		coord:     coordStore,
		adminPass: adminPass,
	}
}

func (e *testEnv) request(t *testing.T, method, path, token, body string) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, e.server.URL+path, reader)
	if err != nil {
		t.Fatalf("Failed to build request: %v", err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Request %s %s failed: %v", method, path, err)
	}
	data, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("Failed to read response body: %v", err)
	}
	return resp, data
}

func (e *testEnv) login(t *testing.T) string {
	t.Helper()

	resp, body := e.request(t, http.MethodPost, "/api/v1/auth/login", "",
		`{"username":"admin","password":"`+e.adminPass+`"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Login failed with status %d: %s", resp.StatusCode, body)
	}

	var loginResp handlers.LoginResponse
	if err := json.Unmarshal(body, &loginResp); err != nil {
		t.Fatalf("Failed to decode login response: %v", err)
	}
	return loginResp.AccessToken
}

func TestRouter_HealthEndpoints(t *testing.T) {
	env := setupRouterTest(t)

	resp, _ := env.request(t, http.MethodGet, "/health", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET /health status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	// Not ready until the instance bootstrap marker exists
	resp, body := env.request(t, http.MethodGet, "/health/ready", "", "")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("GET /health/ready status = %d, want %d: %s",
			resp.StatusCode, http.StatusServiceUnavailable, body)
	}

	if _, err := env.coord.CreateIfAbsent(context.Background(), coordination.InstanceBootstrappedPath, nil); err != nil {
		t.Fatalf("Failed to create bootstrap marker: %v", err)
	}

	resp, body = env.request(t, http.MethodGet, "/health/ready", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET /health/ready after bootstrap status = %d, want %d: %s",
			resp.StatusCode, http.StatusOK, body)
	}
}

func TestRouter_MetricsEndpoint(t *testing.T) {
	env := setupRouterTest(t)

	metrics.InitRegistry()

	resp, body := env.request(t, http.MethodGet, "/metrics", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET /metrics status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if !strings.Contains(string(body), "go_goroutines") {
		t.Error("Expected Go runtime metrics in scrape output")
	}
}

func TestRouter_AuthRequired(t *testing.T) {
	env := setupRouterTest(t)

	for _, path := range []string{"/api/v1/tenants", "/api/v1/auth/me"} {
		resp, _ := env.request(t, http.MethodGet, path, "", "")
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("GET %s without token status = %d, want %d",
				path, resp.StatusCode, http.StatusUnauthorized)
		}
	}

	resp, _ := env.request(t, http.MethodPost, "/api/v1/auth/login", "",
		`{"username":"admin","password":"wrong"}`)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Login with wrong password status = %d, want %d",
			resp.StatusCode, http.StatusUnauthorized)
	}
}

func TestRouter_TenantLifecycle(t *testing.T) {
	env := setupRouterTest(t)
	token := env.login(t)

	// Empty list to start
	resp, body := env.request(t, http.MethodGet, "/api/v1/tenants", token, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("List status = %d: %s", resp.StatusCode, body)
	}
	var list []handlers.TenantResponse
	if err := json.Unmarshal(body, &list); err != nil {
		t.Fatalf("Failed to decode list: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("Expected empty tenant list, got %d", len(list))
	}

	// Create publishes exactly one event through the trigger
	resp, body = env.request(t, http.MethodPost, "/api/v1/tenants", token, `{"name":"acme"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Create status = %d: %s", resp.StatusCode, body)
	}
	var created handlers.TenantResponse
	if err := json.Unmarshal(body, &created); err != nil {
		t.Fatalf("Failed to decode created tenant: %v", err)
	}
	if created.TemplateID != "default" {
		t.Errorf("Created tenant template = %s, want default", created.TemplateID)
	}

	events, err := env.log.Fetch(context.Background(), "inspect", 100)
	if err != nil {
		t.Fatalf("Fetch() failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("Expected 1 change event after create, got %d", len(events))
	}
	if events[0].Op != changelog.OpCreate || events[0].TenantID != created.ID {
		t.Errorf("Unexpected event: op=%s tenant=%s", events[0].Op, events[0].TenantID)
	}

	// Get and update
	resp, body = env.request(t, http.MethodGet, "/api/v1/tenants/"+created.ID, token, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Get status = %d: %s", resp.StatusCode, body)
	}

	resp, body = env.request(t, http.MethodPut, "/api/v1/tenants/"+created.ID, token,
		`{"name":"acme-renamed"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Update status = %d: %s", resp.StatusCode, body)
	}

	// Delete leaves a delete event keyed by the tenant id
	resp, _ = env.request(t, http.MethodDelete, "/api/v1/tenants/"+created.ID, token, "")
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("Delete status = %d", resp.StatusCode)
	}

	events, err = env.log.Fetch(context.Background(), "inspect2", 100)
	if err != nil {
		t.Fatalf("Fetch() failed: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("Expected create+update+delete events, got %d", len(events))
	}
	if events[2].Op != changelog.OpDelete || events[2].TenantID != created.ID {
		t.Errorf("Unexpected final event: op=%s tenant=%s", events[2].Op, events[2].TenantID)
	}

	resp, _ = env.request(t, http.MethodGet, "/api/v1/tenants/"+created.ID, token, "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Get after delete status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
}

func TestRouter_RootRedirectsToHealth(t *testing.T) {
	env := setupRouterTest(t)

	client := &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	resp, err := client.Get(env.server.URL + "/")
	if err != nil {
		t.Fatalf("GET / failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusTemporaryRedirect {
		t.Errorf("GET / status = %d, want %d", resp.StatusCode, http.StatusTemporaryRedirect)
	}
	if loc := resp.Header.Get("Location"); loc != "/health" {
		t.Errorf("Redirect location = %q, want /health", loc)
	}
}
