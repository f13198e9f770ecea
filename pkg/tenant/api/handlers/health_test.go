package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/groundplane/groundplane/pkg/tenant"
)

// stubBootstrap implements BootstrapChecker for testing.
type stubBootstrap struct {
	bootstrapped bool
	err          error
}

func (s *stubBootstrap) Bootstrapped(ctx context.Context) (bool, error) {
	return s.bootstrapped, s.err
}

// stubStore implements store.Store with a configurable healthcheck result.
type stubStore struct {
	healthErr error
}

func (s *stubStore) CreateTenant(ctx context.Context, t *tenant.Tenant) (string, error) {
	return "", errors.New("not implemented")
}

func (s *stubStore) GetTenant(ctx context.Context, id string) (*tenant.Tenant, error) {
	return nil, tenant.ErrTenantNotFound
}

func (s *stubStore) ListTenants(ctx context.Context) ([]*tenant.Tenant, error) {
	return nil, nil
}

func (s *stubStore) UpdateTenant(ctx context.Context, t *tenant.Tenant) error {
	return tenant.ErrTenantNotFound
}

func (s *stubStore) UpdateTenantStatus(ctx context.Context, id string, status tenant.Status) error {
	return tenant.ErrTenantNotFound
}

func (s *stubStore) DeleteTenant(ctx context.Context, id string) error {
	return tenant.ErrTenantNotFound
}

func (s *stubStore) Healthcheck(ctx context.Context) error { return s.healthErr }
func (s *stubStore) Close() error                          { return nil }

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return resp
}

func TestLiveness_ReturnsOK(t *testing.T) {
	handler := NewHealthHandler(nil, nil)
	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()

	handler.Liveness(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, w.Code)
	}

	resp := decodeResponse(t, w)
	if resp.Status != "healthy" {
		t.Errorf("Expected status 'healthy', got '%s'", resp.Status)
	}

	data, ok := resp.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("Expected Data to be a map, got %T", resp.Data)
	}

	if data["service"] != "groundplane" {
		t.Errorf("Expected service 'groundplane', got '%s'", data["service"])
	}
	if data["uptime"] == nil || data["uptime"] == "" {
		t.Error("Expected uptime to be set")
	}
}

func TestReadiness_NoChecker_Returns503(t *testing.T) {
	handler := NewHealthHandler(nil, &stubStore{})
	req := httptest.NewRequest("GET", "/health/ready", nil)
	w := httptest.NewRecorder()

	handler.Readiness(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status %d, got %d", http.StatusServiceUnavailable, w.Code)
	}

	resp := decodeResponse(t, w)
	if resp.Error != "bootstrap checker not initialized" {
		t.Errorf("Expected error 'bootstrap checker not initialized', got '%s'", resp.Error)
	}
}

func TestReadiness_NoStore_Returns503(t *testing.T) {
	handler := NewHealthHandler(&stubBootstrap{bootstrapped: true}, nil)
	req := httptest.NewRequest("GET", "/health/ready", nil)
	w := httptest.NewRecorder()

	handler.Readiness(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status %d, got %d", http.StatusServiceUnavailable, w.Code)
	}

	resp := decodeResponse(t, w)
	if resp.Error != "tenant store not initialized" {
		t.Errorf("Expected error 'tenant store not initialized', got '%s'", resp.Error)
	}
}

func TestReadiness_NotBootstrapped_Returns503(t *testing.T) {
	handler := NewHealthHandler(&stubBootstrap{bootstrapped: false}, &stubStore{})
	req := httptest.NewRequest("GET", "/health/ready", nil)
	w := httptest.NewRecorder()

	handler.Readiness(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status %d, got %d", http.StatusServiceUnavailable, w.Code)
	}

	resp := decodeResponse(t, w)
	if resp.Status != "unhealthy" {
		t.Errorf("Expected status 'unhealthy', got '%s'", resp.Status)
	}
	if resp.Error != "instance not bootstrapped" {
		t.Errorf("Expected error 'instance not bootstrapped', got '%s'", resp.Error)
	}
}

func TestReadiness_BootstrapCheckFails_Returns503(t *testing.T) {
	handler := NewHealthHandler(&stubBootstrap{err: errors.New("store offline")}, &stubStore{})
	req := httptest.NewRequest("GET", "/health/ready", nil)
	w := httptest.NewRecorder()

	handler.Readiness(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status %d, got %d", http.StatusServiceUnavailable, w.Code)
	}

	resp := decodeResponse(t, w)
	if resp.Error != "bootstrap check failed: store offline" {
		t.Errorf("Unexpected error message: '%s'", resp.Error)
	}
}

func TestReadiness_StoreUnhealthy_Returns503(t *testing.T) {
	handler := NewHealthHandler(
		&stubBootstrap{bootstrapped: true},
		&stubStore{healthErr: errors.New("connection refused")},
	)
	req := httptest.NewRequest("GET", "/health/ready", nil)
	w := httptest.NewRecorder()

	handler.Readiness(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status %d, got %d", http.StatusServiceUnavailable, w.Code)
	}

	resp := decodeResponse(t, w)
	if resp.Error != "tenant store unhealthy: connection refused" {
		t.Errorf("Unexpected error message: '%s'", resp.Error)
	}
}

func TestReadiness_Ready_ReturnsOK(t *testing.T) {
	handler := NewHealthHandler(&stubBootstrap{bootstrapped: true}, &stubStore{})
	req := httptest.NewRequest("GET", "/health/ready", nil)
	w := httptest.NewRecorder()

	handler.Readiness(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, w.Code)
	}

	resp := decodeResponse(t, w)
	if resp.Status != "healthy" {
		t.Errorf("Expected status 'healthy', got '%s'", resp.Status)
	}

	data, ok := resp.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("Expected Data to be a map, got %T", resp.Data)
	}

	if data["bootstrapped"] != true {
		t.Errorf("Expected bootstrapped true, got %v", data["bootstrapped"])
	}
	if data["store"] != "healthy" {
		t.Errorf("Expected store 'healthy', got '%s'", data["store"])
	}
	if data["store_latency"] == nil || data["store_latency"] == "" {
		t.Error("Expected store_latency to be set")
	}
}
