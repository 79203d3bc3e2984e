package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lishushu94/provider-console/internal/domain"
)

func testProvider(id string) *Provider {
	return &Provider{
		Provider: domain.Provider{
			ID:         id,
			Name:       "acme",
			Visibility: domain.VisibilityPublic,
			Audit:      domain.AuditTesting,
			Operation:  domain.OperationActive,
			Models:     []domain.ProviderModel{{Name: "gpt-x"}},
		},
	}
}

func TestRejectBlankReasonNeverHitsServer(t *testing.T) {
	var requests int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&requests, 1)
	}))
	defer srv.Close()

	c := New(srv.URL)
	for _, reason := range []string{"", "   ", "\t\n"} {
		_, err := c.Reject(context.Background(), "p-1", reason, "")
		if !errors.Is(err, domain.ErrReasonRequired) {
			t.Fatalf("reason %q: err = %v, want ErrReasonRequired", reason, err)
		}
	}

	if n := atomic.LoadInt64(&requests); n != 0 {
		t.Errorf("server received %d requests for blank reasons, want 0", n)
	}
}

func TestSingleFlightPerProvider(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		json.NewEncoder(w).Encode(testProvider("p-1"))
	}))
	defer srv.Close()

	c := New(srv.URL)

	var wg sync.WaitGroup
	wg.Add(1)
	firstStarted := make(chan struct{})
	go func() {
		defer wg.Done()
		close(firstStarted)
		if _, err := c.Approve(context.Background(), "p-1", ""); err != nil {
			t.Errorf("first action failed: %v", err)
		}
	}()

	<-firstStarted
	// Give the first goroutine time to take the in-flight slot.
	time.Sleep(50 * time.Millisecond)

	_, err := c.Reject(context.Background(), "p-1", "dup decision", "")
	if !errors.Is(err, domain.ErrActionInFlight) {
		t.Fatalf("concurrent action: err = %v, want ErrActionInFlight", err)
	}

	// A different provider is not blocked; its request must go through
	// while p-1 is still held. Release both at once.
	close(release)
	if _, err := c.Pause(context.Background(), "p-2", ""); err != nil {
		t.Fatalf("action on second provider failed: %v", err)
	}
	wg.Wait()

	// The slot frees after completion.
	if _, err := c.Test(context.Background(), "p-1", ""); err != nil {
		t.Fatalf("action after release failed: %v", err)
	}
}

func TestMutationRefreshesSnapshot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := testProvider("p-1")
		if r.Method == http.MethodPost {
			p.Audit = domain.AuditApproved
		}
		json.NewEncoder(w).Encode(p)
	}))
	defer srv.Close()

	c := New(srv.URL)
	if _, err := c.GetProvider(context.Background(), "p-1"); err != nil {
		t.Fatalf("GetProvider() error = %v", err)
	}
	if got := c.Snapshot("p-1").Audit; got != domain.AuditTesting {
		t.Fatalf("initial snapshot audit = %q, want testing", got)
	}

	if _, err := c.Approve(context.Background(), "p-1", ""); err != nil {
		t.Fatalf("Approve() error = %v", err)
	}
	if got := c.Snapshot("p-1").Audit; got != domain.AuditApproved {
		t.Errorf("snapshot audit after approve = %q, want approved", got)
	}
}

func TestToggleModelRollsBackOnFailure(t *testing.T) {
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && fail.Load() {
			w.WriteHeader(http.StatusForbidden)
			json.NewEncoder(w).Encode(map[string]string{"error": "operation not permitted"})
			return
		}
		p := testProvider("p-1")
		if r.Method == http.MethodPost {
			p.Models[0].Disabled = true
		}
		json.NewEncoder(w).Encode(p)
	}))
	defer srv.Close()

	c := New(srv.URL)
	if _, err := c.GetProvider(context.Background(), "p-1"); err != nil {
		t.Fatalf("GetProvider() error = %v", err)
	}

	// Success path: optimistic state confirmed by the response.
	if _, err := c.ToggleModel(context.Background(), "p-1", "gpt-x", true); err != nil {
		t.Fatalf("ToggleModel() error = %v", err)
	}
	if !c.Snapshot("p-1").Models[0].Disabled {
		t.Fatal("model not disabled after successful toggle")
	}

	// Failure path: the optimistic flip must be rolled back.
	fail.Store(true)
	_, err := c.ToggleModel(context.Background(), "p-1", "gpt-x", false)
	if err == nil {
		t.Fatal("expected toggle failure")
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusForbidden {
		t.Fatalf("err = %v, want 403 APIError", err)
	}
	if !c.Snapshot("p-1").Models[0].Disabled {
		t.Error("rollback lost: model should still be disabled")
	}
}

func TestAPIErrorDecoding(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]string{"error": "status already changed by another decision"})
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.Approve(context.Background(), "p-1", "")

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want APIError", err)
	}
	if apiErr.Status != http.StatusConflict {
		t.Errorf("status = %d, want 409", apiErr.Status)
	}
	if apiErr.Message != "status already changed by another decision" {
		t.Errorf("message = %q", apiErr.Message)
	}
}

func TestLoginSendsBearerOnSubsequentCalls(t *testing.T) {
	var sawAuth atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/auth/token" {
			json.NewEncoder(w).Encode(domain.TokenResponse{AccessToken: "tok-123", TokenType: "Bearer"})
			return
		}
		sawAuth.Store(r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode([]*Provider{})
	}))
	defer srv.Close()

	c := New(srv.URL)
	if err := c.Login(context.Background(), "admin", "secret"); err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if _, err := c.ListProviders(context.Background()); err != nil {
		t.Fatalf("ListProviders() error = %v", err)
	}

	if got, _ := sawAuth.Load().(string); got != "Bearer tok-123" {
		t.Errorf("Authorization header = %q, want Bearer tok-123", got)
	}
}
