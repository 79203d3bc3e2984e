package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/lishushu94/provider-console/internal/audit"
	"github.com/lishushu94/provider-console/internal/domain"
	"github.com/lishushu94/provider-console/internal/upstream"
)

type fakeRepo struct {
	mu        sync.Mutex
	providers map[string]*domain.Provider

	auditCalls     int
	operationCalls int
	toggleCalls    int
}

func newFakeRepo(providers ...*domain.Provider) *fakeRepo {
	m := make(map[string]*domain.Provider)
	for _, p := range providers {
		m[p.ID] = p
	}
	return &fakeRepo{providers: m}
}

func (f *fakeRepo) GetProvider(_ context.Context, id string) (*domain.Provider, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.providers[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakeRepo) ListProviders(_ context.Context) ([]*domain.Provider, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*domain.Provider, 0, len(f.providers))
	for _, p := range f.providers {
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}

func (f *fakeRepo) UpdateAuditStatus(_ context.Context, id string, from, to domain.AuditStatus, limitQPS *int, rejectReason *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.auditCalls++
	p, ok := f.providers[id]
	if !ok || p.Audit != from {
		return domain.ErrAlreadyDecided
	}
	p.Audit = to
	p.LimitQPS = limitQPS
	p.RejectReason = rejectReason
	if to == domain.AuditApproved || to == domain.AuditApprovedLimited {
		p.Operation = domain.OperationActive
	}
	return nil
}

func (f *fakeRepo) UpdateOperationStatus(_ context.Context, id string, fromAny []domain.OperationStatus, to domain.OperationStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.operationCalls++
	p, ok := f.providers[id]
	if !ok {
		return domain.ErrAlreadyDecided
	}
	for _, from := range fromAny {
		if p.Operation == from {
			p.Operation = to
			return nil
		}
	}
	return domain.ErrAlreadyDecided
}

func (f *fakeRepo) SetModelDisabled(_ context.Context, providerID, model string, disabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.toggleCalls++
	p, ok := f.providers[providerID]
	if !ok {
		return domain.ErrNotFound
	}
	for i := range p.Models {
		if p.Models[i].Name == model {
			p.Models[i].Disabled = disabled
			return nil
		}
	}
	return domain.ErrNotFound
}

type fakeTrail struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (f *fakeTrail) Log(e audit.Entry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, e)
}

func (f *fakeTrail) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}

type fakeProber struct{ result upstream.ProbeResult }

func (f *fakeProber) Probe(context.Context, *domain.Provider) upstream.ProbeResult {
	return f.result
}

var (
	adminViewer = domain.Viewer{UserID: "u-admin", Role: "admin"}
	ownerViewer = domain.Viewer{UserID: "u-owner", Role: "user"}
)

func sharedProvider(auditStatus domain.AuditStatus, op domain.OperationStatus) *domain.Provider {
	return &domain.Provider{
		ID:         "p-1",
		Name:       "acme",
		OwnerID:    "u-owner",
		Visibility: domain.VisibilityPublic,
		Audit:      auditStatus,
		Operation:  op,
		Models:     []domain.ProviderModel{{Name: "gpt-x"}},
	}
}

func newService(repo *fakeRepo, trail *fakeTrail) *ProviderService {
	// Unreachable Redis: Publish fails and the service must treat that as
	// a warning, never an error.
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 10 * time.Millisecond})
	return NewProviderService(repo, rdb, trail, &fakeProber{result: upstream.ProbeResult{OK: true, LatencyMs: 42}}, time.Second, zap.NewNop())
}

func TestRejectRequiresReasonBeforeAnyCall(t *testing.T) {
	repo := newFakeRepo(sharedProvider(domain.AuditTesting, domain.OperationActive))
	svc := newService(repo, &fakeTrail{})

	for _, reason := range []string{"", "   ", "\n\t"} {
		_, err := svc.Reject(context.Background(), adminViewer, "p-1", reason, "")
		if !errors.Is(err, domain.ErrReasonRequired) {
			t.Fatalf("reason %q: err = %v, want ErrReasonRequired", reason, err)
		}
	}

	if repo.auditCalls != 0 {
		t.Errorf("repository touched %d times for blank reasons, want 0", repo.auditCalls)
	}
}

func TestRejectPersistsTrimmedReason(t *testing.T) {
	repo := newFakeRepo(sharedProvider(domain.AuditTesting, domain.OperationActive))
	trail := &fakeTrail{}
	svc := newService(repo, trail)

	view, err := svc.Reject(context.Background(), adminViewer, "p-1", "  unstable upstream  ", "")
	if err != nil {
		t.Fatalf("Reject() error = %v", err)
	}
	if view.Audit != domain.AuditRejected {
		t.Errorf("audit status = %q, want rejected", view.Audit)
	}
	if view.RejectReason == nil || *view.RejectReason != "unstable upstream" {
		t.Errorf("reject reason = %v, want trimmed text", view.RejectReason)
	}
	if trail.count() != 1 {
		t.Errorf("trail entries = %d, want 1", trail.count())
	}
}

func TestApproveLimitedValidatesCap(t *testing.T) {
	repo := newFakeRepo(sharedProvider(domain.AuditTesting, domain.OperationActive))
	svc := newService(repo, &fakeTrail{})

	zero, negative := 0, -5
	for _, qps := range []*int{nil, &zero, &negative} {
		_, err := svc.Approve(context.Background(), adminViewer, "p-1", true, qps, "")
		if !errors.Is(err, domain.ErrInvalidQPSCap) {
			t.Fatalf("qps %v: err = %v, want ErrInvalidQPSCap", qps, err)
		}
	}
	if repo.auditCalls != 0 {
		t.Errorf("repository touched %d times for invalid caps, want 0", repo.auditCalls)
	}
}

func TestApproveLimitedSetsCapAndActivates(t *testing.T) {
	repo := newFakeRepo(sharedProvider(domain.AuditTesting, domain.OperationActive))
	svc := newService(repo, &fakeTrail{})

	qps := 50
	view, err := svc.Approve(context.Background(), adminViewer, "p-1", true, &qps, "limited rollout")
	if err != nil {
		t.Fatalf("Approve() error = %v", err)
	}
	if view.Audit != domain.AuditApprovedLimited {
		t.Errorf("audit status = %q, want approved_limited", view.Audit)
	}
	if view.LimitQPS == nil || *view.LimitQPS != 50 {
		t.Errorf("limit qps = %v, want 50", view.LimitQPS)
	}
	if view.Operation != domain.OperationActive {
		t.Errorf("operation status = %q, want active after approval", view.Operation)
	}
}

func TestAuditActionsRejectInvalidTransitions(t *testing.T) {
	repo := newFakeRepo(sharedProvider(domain.AuditPending, domain.OperationActive))
	svc := newService(repo, &fakeTrail{})

	// approve straight from pending skips the mandatory testing step
	_, err := svc.Approve(context.Background(), adminViewer, "p-1", false, nil, "")
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("Approve from pending: err = %v, want ErrInvalidTransition", err)
	}
	if repo.auditCalls != 0 {
		t.Errorf("repository touched on invalid transition")
	}
}

func TestAuditSurfaceGuards(t *testing.T) {
	private := sharedProvider(domain.AuditPending, domain.OperationActive)
	private.Visibility = domain.VisibilityPrivate
	repo := newFakeRepo(private)
	svc := newService(repo, &fakeTrail{})

	// Private providers expose no audit surface, even to admins.
	_, err := svc.Test(context.Background(), adminViewer, "p-1", "")
	if !errors.Is(err, domain.ErrNotShared) {
		t.Fatalf("Test on private: err = %v, want ErrNotShared", err)
	}

	// Shared providers require the admin role, owner is not enough.
	repo2 := newFakeRepo(sharedProvider(domain.AuditPending, domain.OperationActive))
	svc2 := newService(repo2, &fakeTrail{})
	_, err = svc2.Test(context.Background(), ownerViewer, "p-1", "")
	if !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("Test as owner: err = %v, want ErrForbidden", err)
	}
}

func TestTestTransitionFiresProbe(t *testing.T) {
	repo := newFakeRepo(sharedProvider(domain.AuditPending, domain.OperationActive))
	trail := &fakeTrail{}
	svc := newService(repo, trail)

	view, err := svc.Test(context.Background(), adminViewer, "p-1", "starting review")
	if err != nil {
		t.Fatalf("Test() error = %v", err)
	}
	if view.Audit != domain.AuditTesting {
		t.Errorf("audit status = %q, want testing", view.Audit)
	}

	// The probe is async; wait for its trail entry.
	deadline := time.Now().Add(2 * time.Second)
	for trail.count() < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	trail.mu.Lock()
	defer trail.mu.Unlock()
	var probeSeen bool
	for _, e := range trail.entries {
		if e.Kind == audit.KindProbe && e.Status == "SUCCESS" {
			probeSeen = true
		}
	}
	if !probeSeen {
		t.Error("no successful probe entry recorded in trail")
	}
}

func TestOperationTransitions(t *testing.T) {
	tests := []struct {
		name    string
		start   domain.OperationStatus
		act     func(*ProviderService) (*ProviderView, error)
		want    domain.OperationStatus
		wantErr error
	}{
		{
			name:  "pause active",
			start: domain.OperationActive,
			act: func(s *ProviderService) (*ProviderView, error) {
				return s.Pause(context.Background(), adminViewer, "p-1", "")
			},
			want: domain.OperationPaused,
		},
		{
			name:  "resume paused",
			start: domain.OperationPaused,
			act: func(s *ProviderService) (*ProviderView, error) {
				return s.Resume(context.Background(), adminViewer, "p-1", "")
			},
			want: domain.OperationActive,
		},
		{
			name:  "offline from paused",
			start: domain.OperationPaused,
			act: func(s *ProviderService) (*ProviderView, error) {
				return s.Offline(context.Background(), adminViewer, "p-1", "decommissioned")
			},
			want: domain.OperationOffline,
		},
		{
			name:  "resume active is invalid",
			start: domain.OperationActive,
			act: func(s *ProviderService) (*ProviderView, error) {
				return s.Resume(context.Background(), adminViewer, "p-1", "")
			},
			wantErr: domain.ErrInvalidTransition,
		},
		{
			name:  "offline is terminal",
			start: domain.OperationOffline,
			act: func(s *ProviderService) (*ProviderView, error) {
				return s.Resume(context.Background(), adminViewer, "p-1", "")
			},
			wantErr: domain.ErrInvalidTransition,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newFakeRepo(sharedProvider(domain.AuditApproved, tt.start))
			svc := newService(repo, &fakeTrail{})

			view, err := tt.act(svc)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if view.Operation != tt.want {
				t.Errorf("operation status = %q, want %q", view.Operation, tt.want)
			}
		})
	}
}

func TestToggleModelOwnerAllowed(t *testing.T) {
	repo := newFakeRepo(sharedProvider(domain.AuditApproved, domain.OperationActive))
	svc := newService(repo, &fakeTrail{})

	view, err := svc.ToggleModel(context.Background(), ownerViewer, "p-1", "gpt-x", true)
	if err != nil {
		t.Fatalf("ToggleModel() error = %v", err)
	}
	if !view.Models[0].Disabled {
		t.Error("model not disabled after toggle")
	}

	// A stranger gets forbidden without touching storage.
	stranger := domain.Viewer{UserID: "u-other", Role: "user"}
	before := repo.toggleCalls
	_, err = svc.ToggleModel(context.Background(), stranger, "p-1", "gpt-x", false)
	if !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("stranger toggle: err = %v, want ErrForbidden", err)
	}
	if repo.toggleCalls != before {
		t.Error("storage touched by forbidden toggle")
	}
}
