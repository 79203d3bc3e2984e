package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/lishushu94/provider-console/internal/audit"
	"github.com/lishushu94/provider-console/internal/domain"
	"github.com/lishushu94/provider-console/internal/infra"
	"github.com/lishushu94/provider-console/internal/permissions"
	"github.com/lishushu94/provider-console/internal/upstream"
)

// ProviderRepository is the storage contract for provider lifecycle state.
type ProviderRepository interface {
	GetProvider(ctx context.Context, id string) (*domain.Provider, error)
	ListProviders(ctx context.Context) ([]*domain.Provider, error)
	UpdateAuditStatus(ctx context.Context, id string, from, to domain.AuditStatus, limitQPS *int, rejectReason *string) error
	UpdateOperationStatus(ctx context.Context, id string, fromAny []domain.OperationStatus, to domain.OperationStatus) error
	SetModelDisabled(ctx context.Context, providerID, model string, disabled bool) error
}

// UpstreamProber runs the connectivity check when a provider enters testing.
type UpstreamProber interface {
	Probe(ctx context.Context, provider *domain.Provider) upstream.ProbeResult
}

// ProviderView is a provider plus what the current viewer may do with it.
type ProviderView struct {
	*domain.Provider
	Capabilities permissions.Capabilities `json:"capabilities"`
}

type ProviderService struct {
	repo         ProviderRepository
	rdb          *redis.Client
	trail        audit.Logger
	prober       UpstreamProber
	probeTimeout time.Duration
	logger       *zap.Logger
}

func NewProviderService(
	repo ProviderRepository,
	rdb *redis.Client,
	trail audit.Logger,
	prober UpstreamProber,
	probeTimeout time.Duration,
	logger *zap.Logger,
) *ProviderService {
	if probeTimeout <= 0 {
		probeTimeout = 10 * time.Second
	}
	return &ProviderService{
		repo:         repo,
		rdb:          rdb,
		trail:        trail,
		prober:       prober,
		probeTimeout: probeTimeout,
		logger:       logger.Named("provider-service"),
	}
}

func (s *ProviderService) GetProvider(ctx context.Context, viewer domain.Viewer, id string) (*ProviderView, error) {
	p, err := s.repo.GetProvider(ctx, id)
	if err != nil {
		return nil, err
	}
	return &ProviderView{Provider: p, Capabilities: permissions.Evaluate(viewer, p)}, nil
}

func (s *ProviderService) ListProviders(ctx context.Context, viewer domain.Viewer) ([]*ProviderView, error) {
	providers, err := s.repo.ListProviders(ctx)
	if err != nil {
		s.logger.Error("failed to list providers from repository", zap.Error(err))
		return nil, fmt.Errorf("service: could not fetch providers: %w", err)
	}

	// Empty array for the frontend, never null.
	views := make([]*ProviderView, 0, len(providers))
	for _, p := range providers {
		views = append(views, &ProviderView{Provider: p, Capabilities: permissions.Evaluate(viewer, p)})
	}
	return views, nil
}

// guardAudit enforces the audit surface rule: shared providers only, and
// only for reviewers. ErrNotShared before ErrForbidden so an owner of a
// private provider learns the surface does not exist, not that they lack a
// role.
func (s *ProviderService) guardAudit(viewer domain.Viewer, p *domain.Provider) error {
	if !p.Visibility.Shared() {
		return domain.ErrNotShared
	}
	if !permissions.Evaluate(viewer, p).CanAudit {
		return domain.ErrForbidden
	}
	return nil
}

// Test moves a pending provider into testing and fires the connectivity
// probe in the background. The transition does not wait for the probe; its
// result lands in the trail for the reviewer.
func (s *ProviderService) Test(ctx context.Context, viewer domain.Viewer, id, remark string) (*ProviderView, error) {
	p, err := s.repo.GetProvider(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.guardAudit(viewer, p); err != nil {
		return nil, err
	}

	next, err := domain.NextAuditStatus(p.Audit, domain.ActionTest)
	if err != nil {
		return nil, err
	}

	if err := s.repo.UpdateAuditStatus(ctx, id, p.Audit, next, p.LimitQPS, nil); err != nil {
		return nil, err
	}

	s.publishSignal(ctx, infra.RedisChanAuditDecisions, id, string(next), "audit-test")
	s.logTransition(viewer, p, string(domain.ActionTest), string(p.Audit), string(next), remark)
	s.probeAsync(viewer, p)

	return s.GetProvider(ctx, viewer, id)
}

// Approve clears a testing provider for traffic. When limited is set the
// QPS cap is mandatory and must be positive; an unlimited approval ignores
// the cap entirely.
func (s *ProviderService) Approve(ctx context.Context, viewer domain.Viewer, id string, limited bool, limitQPS *int, remark string) (*ProviderView, error) {
	p, err := s.repo.GetProvider(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.guardAudit(viewer, p); err != nil {
		return nil, err
	}

	action := domain.ActionApprove
	var qpsCap *int
	if limited {
		action = domain.ActionApproveLimited
		if limitQPS == nil || *limitQPS <= 0 {
			return nil, domain.ErrInvalidQPSCap
		}
		qpsCap = limitQPS
	}

	next, err := domain.NextAuditStatus(p.Audit, action)
	if err != nil {
		return nil, err
	}

	if err := s.repo.UpdateAuditStatus(ctx, id, p.Audit, next, qpsCap, nil); err != nil {
		return nil, err
	}

	// Approval also flips the provider active; the gateway needs both signals.
	s.publishSignal(ctx, infra.RedisChanAuditDecisions, id, string(next), "audit-approve")
	s.publishSignal(ctx, infra.RedisChanOpsSignal, id, string(domain.OperationActive), "audit-approve")
	s.logTransition(viewer, p, string(action), string(p.Audit), string(next), remark)

	return s.GetProvider(ctx, viewer, id)
}

// Reject requires a non-blank reason. The check runs before any storage
// call: a blank reason must not leave a trace anywhere.
func (s *ProviderService) Reject(ctx context.Context, viewer domain.Viewer, id, reason, remark string) (*ProviderView, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, domain.ErrReasonRequired
	}

	p, err := s.repo.GetProvider(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.guardAudit(viewer, p); err != nil {
		return nil, err
	}

	next, err := domain.NextAuditStatus(p.Audit, domain.ActionReject)
	if err != nil {
		return nil, err
	}

	if err := s.repo.UpdateAuditStatus(ctx, id, p.Audit, next, nil, &reason); err != nil {
		return nil, err
	}

	s.publishSignal(ctx, infra.RedisChanAuditDecisions, id, string(next), "audit-reject")
	s.logTransition(viewer, p, string(domain.ActionReject), string(p.Audit), string(next), reason)

	return s.GetProvider(ctx, viewer, id)
}

func (s *ProviderService) Pause(ctx context.Context, viewer domain.Viewer, id, remark string) (*ProviderView, error) {
	return s.updateOperationState(ctx, viewer, id, domain.ActionPause, remark)
}

func (s *ProviderService) Resume(ctx context.Context, viewer domain.Viewer, id, remark string) (*ProviderView, error) {
	return s.updateOperationState(ctx, viewer, id, domain.ActionResume, remark)
}

// Offline is terminal; no console action brings the provider back.
func (s *ProviderService) Offline(ctx context.Context, viewer domain.Viewer, id, remark string) (*ProviderView, error) {
	return s.updateOperationState(ctx, viewer, id, domain.ActionOffline, remark)
}

// updateOperationState is the unified operation-axis mechanism: validate the
// transition, persist with the current status as the guard, broadcast to the
// gateways, record the trail entry.
func (s *ProviderService) updateOperationState(
	ctx context.Context,
	viewer domain.Viewer,
	id string,
	action domain.OperationAction,
	remark string,
) (*ProviderView, error) {
	p, err := s.repo.GetProvider(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.guardAudit(viewer, p); err != nil {
		return nil, err
	}

	next, err := domain.NextOperationStatus(p.Operation, action)
	if err != nil {
		return nil, err
	}

	if err := s.repo.UpdateOperationStatus(ctx, id, []domain.OperationStatus{p.Operation}, next); err != nil {
		return nil, err
	}

	s.publishSignal(ctx, infra.RedisChanOpsSignal, id, string(next), string(action))
	s.logTransition(viewer, p, string(action), string(p.Operation), string(next), remark)

	return s.GetProvider(ctx, viewer, id)
}

// ToggleModel flips a single model's availability. Owner-level action, not
// part of the audit surface.
func (s *ProviderService) ToggleModel(ctx context.Context, viewer domain.Viewer, id, model string, disabled bool) (*ProviderView, error) {
	p, err := s.repo.GetProvider(ctx, id)
	if err != nil {
		return nil, err
	}
	if !permissions.Evaluate(viewer, p).CanEdit {
		return nil, domain.ErrForbidden
	}

	if err := s.repo.SetModelDisabled(ctx, id, model, disabled); err != nil {
		return nil, err
	}

	s.logger.Info("model toggled",
		zap.String("provider_id", id),
		zap.String("model", model),
		zap.Bool("disabled", disabled))

	return s.GetProvider(ctx, viewer, id)
}

// publishSignal broadcasts a state change to the data plane. Delivery is
// best effort: the DB write already succeeded, and gateways resync on every
// reconnect, so a lost signal degrades freshness, not correctness.
func (s *ProviderService) publishSignal(ctx context.Context, channel, providerID, value, actionName string) {
	payload := fmt.Sprintf("%s:%s", providerID, value)
	if err := s.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		s.logger.Warn("runtime signal delivery failed",
			zap.String("action", actionName),
			zap.String("channel", channel),
			zap.Error(err))
		return
	}
	s.logger.Info("provider state updated",
		zap.String("provider_id", providerID),
		zap.String("action", actionName),
		zap.String("new_state", value))
}

func (s *ProviderService) logTransition(viewer domain.Viewer, p *domain.Provider, action, from, to, remark string) {
	s.trail.Log(audit.Entry{
		ID:         uuid.New().String(),
		ProviderID: p.ID,
		Kind:       audit.KindTransition,
		Actor:      viewer.UserID,
		Action:     action,
		FromStatus: from,
		ToStatus:   to,
		Remark:     remark,
		Status:     "SUCCESS",
		Timestamp:  time.Now(),
	})
}

// probeAsync runs the connectivity check off the request path and records
// the outcome in the trail.
func (s *ProviderService) probeAsync(viewer domain.Viewer, p *domain.Provider) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.probeTimeout)
		defer cancel()

		result := s.prober.Probe(ctx, p)

		status := "SUCCESS"
		if !result.OK {
			status = "FAILED"
		}
		s.trail.Log(audit.Entry{
			ID:         uuid.New().String(),
			ProviderID: p.ID,
			Kind:       audit.KindProbe,
			Actor:      viewer.UserID,
			Action:     "probe",
			Status:     status,
			Error:      result.Error,
			DurationMs: result.LatencyMs,
			Timestamp:  time.Now(),
		})

		s.logger.Info("upstream probe finished",
			zap.String("provider_id", p.ID),
			zap.Bool("ok", result.OK),
			zap.Int64("latency_ms", result.LatencyMs))
	}()
}
