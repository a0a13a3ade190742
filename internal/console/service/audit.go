package service

import (
	"context"
	"fmt"

	"github.com/xela07ax/novel-moderation/internal/audit"
)

// RunHistoryProvider - чтение журнала прогонов модерации.
type RunHistoryProvider interface {
	ByTask(ctx context.Context, taskID string) ([]audit.RunEvent, error)
}

type AuditService struct {
	repo RunHistoryProvider
}

func NewAuditService(repo RunHistoryProvider) *AuditService {
	return &AuditService{
		repo: repo,
	}
}

// FetchRuns возвращает все прогоны (включая ручные решения) по task id.
func (s *AuditService) FetchRuns(ctx context.Context, taskID string) ([]audit.RunEvent, error) {
	runs, err := s.repo.ByTask(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("audit_service: failed to fetch runs: %w", err)
	}
	return runs, nil
}
