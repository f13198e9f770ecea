//go:build integration

package microservice_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	clmemory "github.com/groundplane/groundplane/pkg/changelog/memory"
	"github.com/groundplane/groundplane/pkg/coordination"
	coordmemory "github.com/groundplane/groundplane/pkg/coordination/memory"
	"github.com/groundplane/groundplane/pkg/lifecycle"
	"github.com/groundplane/groundplane/pkg/microservice"
	"github.com/groundplane/groundplane/pkg/provision"
	"github.com/groundplane/groundplane/pkg/template"
	"github.com/groundplane/groundplane/pkg/tenant/api"
	"github.com/groundplane/groundplane/pkg/tenant/api/auth"
	"github.com/groundplane/groundplane/pkg/tenant/store"
)

const (
	operatorPassword = "correct-horse-battery"
	signingSecret    = "test-secret-that-is-at-least-32-characters-long"
)

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to reserve a port: %v", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

// newTenantConfig builds a service config over a temp sqlite file and a
// free port.
func newTenantConfig(t *testing.T) microservice.TenantManagementConfig {
	t.Helper()

	hash, err := auth.HashPassword(operatorPassword)
	if err != nil {
		t.Fatalf("HashPassword() failed: %v", err)
	}

	return microservice.TenantManagementConfig{
		Database: store.Config{
			Type:   store.DatabaseTypeSQLite,
			SQLite: store.SQLiteConfig{Path: filepath.Join(t.TempDir(), "tenants.db")},
		},
		API: api.Config{
			Port:              freePort(t),
			DefaultTemplateID: "default",
			JWT:               api.JWTConfig{Secret: signingSecret},
			Admin:             api.AdminConfig{Username: "admin", PasswordHash: hash},
		},
		Consumer: provision.ConsumerConfig{
			Group:        "provisioner",
			PollInterval: 20 * time.Millisecond,
			FetchBatch:   16,
		},
	}
}

// newTenantService wires a tenant-management service over in-memory
// coordination and changelog backends and a directory template source.
func newTenantService(t *testing.T) (*microservice.TenantManagement, *coordmemory.Store) {
	t.Helper()

	root := t.TempDir()
	writeTemplate(t, root, "default", map[string]string{
		"template.yaml":           instanceDescriptor,
		"scripts/seed-users.json": `{"users":[]}`,
	})

	registry := template.NewRegistry()
	registry.Register("user-management", &countLoader{})

	coord := coordmemory.New()
	log := clmemory.New()
	t.Cleanup(func() {
		log.Close()
		coord.Close()
	})

	svc := microservice.NewTenantManagement(newTenantConfig(t), coord, log, template.NewDirSource(root), registry)

	t.Cleanup(func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = svc.Stop(stopCtx, nil)
	})
	return svc, coord
}

func httpJSON(t *testing.T, method, url, token, body string) (*http.Response, []byte) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, rd)
	if err != nil {
		t.Fatalf("failed to build %s %s: %v", method, url, err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, url, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return resp, data
}

func login(t *testing.T, base string) string {
	t.Helper()
	resp, body := httpJSON(t, http.MethodPost, base+"/api/v1/auth/login", "",
		fmt.Sprintf(`{"username":"admin","password":%q}`, operatorPassword))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login returned %d: %s", resp.StatusCode, body)
	}
	var out struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("failed to decode login response: %v", err)
	}
	return out.AccessToken
}

// TestTenantManagementLifecycle drives the whole service end to end: bring
// it up, flip readiness via the instance marker, create a tenant through
// the API and watch the consumer provision it off the change log.
func TestTenantManagementLifecycle(t *testing.T) {
	svc, coord := newTenantService(t)
	ctx := context.Background()

	if err := svc.Initialize(ctx, nil); err != nil {
		t.Fatalf("Initialize() failed: %v", err)
	}
	if err := svc.Start(ctx, nil); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	base := fmt.Sprintf("http://127.0.0.1:%d", svc.APIPort())

	waitFor(t, "api listening", func() bool {
		resp, err := http.Get(base + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	})

	// Readiness requires the instance bootstrap marker, which this service
	// does not own.
	resp, _ := httpJSON(t, http.MethodGet, base+"/health/ready", "", "")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 before instance bootstrap, got %d", resp.StatusCode)
	}
	if _, err := coord.CreateIfAbsent(ctx, coordination.InstanceBootstrappedPath, nil); err != nil {
		t.Fatalf("CreateIfAbsent() failed: %v", err)
	}
	resp, body := httpJSON(t, http.MethodGet, base+"/health/ready", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 after instance bootstrap, got %d: %s", resp.StatusCode, body)
	}

	token := login(t, base)

	resp, body = httpJSON(t, http.MethodPost, base+"/api/v1/tenants", token, `{"name":"acme"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create returned %d: %s", resp.StatusCode, body)
	}
	var created struct {
		ID         string `json:"id"`
		TemplateID string `json:"template_id"`
		Status     string `json:"status"`
	}
	if err := json.Unmarshal(body, &created); err != nil {
		t.Fatalf("failed to decode create response: %v", err)
	}
	if created.TemplateID != "default" {
		t.Errorf("expected the default template, got %q", created.TemplateID)
	}

	// The consumer picks the create event up and provisions the tenant.
	waitFor(t, "tenant provisioned", func() bool {
		resp, body := httpJSON(t, http.MethodGet, base+"/api/v1/tenants/"+created.ID, token, "")
		if resp.StatusCode != http.StatusOK {
			return false
		}
		var got struct {
			Status string `json:"status"`
		}
		return json.Unmarshal(body, &got) == nil && got.Status == "active"
	})

	exists, err := coord.Exists(ctx, coordination.TenantBootstrappedPath(created.ID))
	if err != nil {
		t.Fatalf("Exists() failed: %v", err)
	}
	if !exists {
		t.Error("expected the tenant bootstrap marker")
	}

	if err := svc.Stop(ctx, nil); err != nil {
		t.Fatalf("Stop() failed: %v", err)
	}
	if _, err := http.Get(base + "/health"); err == nil {
		t.Error("expected the API to be down after stop")
	}
}

func TestTenantManagementStartBeforeInitialize(t *testing.T) {
	svc, _ := newTenantService(t)

	err := svc.Start(context.Background(), nil)
	if err == nil || !strings.Contains(err.Error(), "Start before Initialize") {
		t.Fatalf("expected an initialization-order error, got %v", err)
	}
}

func TestTenantManagementStopWithoutStart(t *testing.T) {
	svc, _ := newTenantService(t)
	ctx := context.Background()

	// Stop on a never-initialized service has nothing to release.
	if err := svc.Stop(ctx, nil); err != nil {
		t.Fatalf("Stop() before Initialize failed: %v", err)
	}

	if err := svc.Initialize(ctx, nil); err != nil {
		t.Fatalf("Initialize() failed: %v", err)
	}
	if err := svc.Stop(ctx, nil); err != nil {
		t.Fatalf("Stop() after Initialize failed: %v", err)
	}
}

func TestTenantManagementInitializeFailureNamesStep(t *testing.T) {
	root := t.TempDir()
	writeTemplate(t, root, "default", map[string]string{
		"template.yaml":           instanceDescriptor,
		"scripts/seed-users.json": `{"users":[]}`,
	})
	coord := coordmemory.New()
	defer coord.Close()
	log := clmemory.New()
	defer log.Close()

	cfg := newTenantConfig(t)
	cfg.API.Admin.PasswordHash = ""

	svc := microservice.NewTenantManagement(cfg, coord, log, template.NewDirSource(root), template.NewRegistry())
	err := svc.Initialize(context.Background(), nil)
	if err == nil {
		t.Fatal("expected Initialize() to fail without an operator credential")
	}
	var stepErr *lifecycle.StepError
	if !errors.As(err, &stepErr) {
		t.Fatalf("expected a step error, got %T", err)
	}
	if stepErr.Step != "api-server" {
		t.Errorf("expected the api-server step to fail, got %q", stepErr.Step)
	}

	// The store opened before the failure is still released by Stop.
	if err := svc.Stop(context.Background(), nil); err != nil {
		t.Errorf("Stop() after failed Initialize failed: %v", err)
	}
}
