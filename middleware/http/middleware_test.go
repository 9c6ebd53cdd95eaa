package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/libra-dev/subscription-limits/pkg/limits"
	"github.com/libra-dev/subscription-limits/storage/memory"
)

// Test helper to create a test manager
func setupTestManager(t *testing.T) *limits.Manager {
	t.Helper()

	store := memory.New()
	manager, err := limits.NewManager(store, limits.Config{
		Catalog: limits.NewStaticCatalog(limits.DefaultPlans()),
	})
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}
	return manager
}

// Test helper to provision an organization
func setupOrganization(t *testing.T, manager *limits.Manager, orgID string, plan limits.PlanName) {
	t.Helper()

	now := time.Now().UTC()
	err := manager.CreateOrUpdateSubscriptionLimit(context.Background(), &limits.UpsertRequest{
		OrganizationID: orgID,
		PlanName:       plan,
		PeriodStart:    now,
		PeriodEnd:      now.AddDate(0, 1, 0),
	})
	if err != nil {
		t.Fatalf("Failed to provision %s: %v", plan, err)
	}
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
}

func TestMiddleware_Success(t *testing.T) {
	manager := setupTestManager(t)
	setupOrganization(t, manager, "org1", limits.PlanPro)

	mw := Middleware(Config{
		Manager:           manager,
		GetOrganizationID: FromHeader("X-Organization-ID"),
		GetResource:       FixedResource(limits.ResourceAIMessage),
	})

	req := httptest.NewRequest(http.MethodPost, "/chat", nil)
	req.Header.Set("X-Organization-ID", "org1")
	rec := httptest.NewRecorder()
	mw(okHandler()).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	usage, err := manager.GetSubscriptionUsage(context.Background(), "org1")
	if err != nil {
		t.Fatalf("GetSubscriptionUsage failed: %v", err)
	}
	if usage.AINums != 149 {
		t.Errorf("Expected one AI message deducted (149 left), got %d", usage.AINums)
	}
}

func TestMiddleware_QuotaExhausted(t *testing.T) {
	manager := setupTestManager(t)
	setupOrganization(t, manager, "org1", limits.PlanFree)

	mw := Middleware(Config{
		Manager:           manager,
		GetOrganizationID: FromHeader("X-Organization-ID"),
		GetResource:       FixedResource(limits.ResourceProject),
	})
	handler := mw(okHandler())

	// FREE allows one project: first request passes, second is refused.
	req := httptest.NewRequest(http.MethodPost, "/projects", nil)
	req.Header.Set("X-Organization-ID", "org1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("First request expected 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("Second request expected 403, got %d", rec.Code)
	}

	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode error body: %v", err)
	}
	if body["error"] != "quota exhausted" || body["resource"] != "project" {
		t.Errorf("Unexpected error body: %v", body)
	}
}

func TestMiddleware_Unauthorized(t *testing.T) {
	manager := setupTestManager(t)

	mw := Middleware(Config{
		Manager:           manager,
		GetOrganizationID: FromHeader("X-Organization-ID"),
		GetResource:       FixedResource(limits.ResourceAIMessage),
	})

	req := httptest.NewRequest(http.MethodPost, "/chat", nil)
	rec := httptest.NewRecorder()
	mw(okHandler()).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %d", rec.Code)
	}
}

func TestMiddleware_CustomCallbacks(t *testing.T) {
	manager := setupTestManager(t)
	// No records at all: deduction denied, OnExhausted fires.

	exhausted := false
	mw := Middleware(Config{
		Manager:           manager,
		GetOrganizationID: FromHeader("X-Organization-ID"),
		GetResource:       FixedResource(limits.ResourceAIMessage),
		OnExhausted: func(w http.ResponseWriter, r *http.Request, resource limits.Resource) {
			exhausted = true
			w.WriteHeader(http.StatusPaymentRequired)
		},
	})

	req := httptest.NewRequest(http.MethodPost, "/chat", nil)
	req.Header.Set("X-Organization-ID", "org_empty")
	rec := httptest.NewRecorder()
	mw(okHandler()).ServeHTTP(rec, req)

	if !exhausted {
		t.Error("Expected OnExhausted callback")
	}
	if rec.Code != http.StatusPaymentRequired {
		t.Errorf("Expected custom status 402, got %d", rec.Code)
	}
}

func TestMiddleware_PanicsOnMissingConfig(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Expected panic for missing manager")
		}
	}()
	Middleware(Config{})
}

func TestFromHeader(t *testing.T) {
	extract := FromHeader("X-Organization-ID")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if got := extract(req); got != "" {
		t.Errorf("Expected empty for missing header, got %q", got)
	}

	req.Header.Set("X-Organization-ID", "org42")
	if got := extract(req); got != "org42" {
		t.Errorf("Expected org42, got %q", got)
	}
}
