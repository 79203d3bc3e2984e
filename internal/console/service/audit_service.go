package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/lishushu94/provider-console/internal/audit"
)

// AuditHistoryRepository is the read side of the trail.
type AuditHistoryRepository interface {
	FetchRecent(ctx context.Context, providerID string, limit int) ([]audit.Entry, error)
}

type AuditService struct {
	repo   AuditHistoryRepository
	logger *zap.Logger
}

func NewAuditService(repo AuditHistoryRepository, logger *zap.Logger) *AuditService {
	return &AuditService{
		repo:   repo,
		logger: logger.Named("audit-service"),
	}
}

// History is best effort: the trail is a supporting panel on the provider
// page, and a storage hiccup there must not break the page. Failures are
// logged and an empty list is returned.
func (s *AuditService) History(ctx context.Context, providerID string, limit int) ([]audit.Entry, error) {
	entries, err := s.repo.FetchRecent(ctx, providerID, limit)
	if err != nil {
		s.logger.Warn("audit history unavailable",
			zap.String("provider_id", providerID),
			zap.Error(err))
		return []audit.Entry{}, nil
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	return entries, nil
}
