package service

import (
	"context"
	"fmt"
	"time"

	"github.com/xela07ax/novel-moderation/internal/domain"
	"go.uber.org/zap"
)

const (
	defaultQueueLimit = 50
	maxQueueLimit     = 500
)

type LedgerReader interface {
	GetByID(ctx context.Context, id int64) (*domain.LedgerEntry, error)
	ListByStatus(ctx context.Context, status domain.AuditStatus, limit int) ([]domain.LedgerEntry, error)
}

// Decider - ручной аудит (реализован оркестратором модерации).
type Decider interface {
	ManualAudit(ctx context.Context, ledgerID int64, decision int, reason, operator string) (*domain.LedgerEntry, error)
}

type DashboardProvider interface {
	GetDashboard(ctx context.Context, window time.Duration) (*domain.ModerationDashboard, error)
}

// LedgerService - очередь human review и решения операторов.
type LedgerService struct {
	ledger  LedgerReader
	decider Decider
	dash    DashboardProvider
	logger  *zap.Logger
}

func NewLedgerService(ledger LedgerReader, decider Decider, dash DashboardProvider, logger *zap.Logger) *LedgerService {
	return &LedgerService{
		ledger:  ledger,
		decider: decider,
		dash:    dash,
		logger:  logger.Named("ledger-service"),
	}
}

// Queue - записи в статусе status, самые старые первыми.
func (s *LedgerService) Queue(ctx context.Context, status domain.AuditStatus, limit int) ([]domain.LedgerView, error) {
	if !status.Valid() {
		return nil, domain.ErrInvalidStatus
	}
	if limit <= 0 {
		limit = defaultQueueLimit
	}
	limit = min(limit, maxQueueLimit)

	entries, err := s.ledger.ListByStatus(ctx, status, limit)
	if err != nil {
		return nil, fmt.Errorf("ledger_service: list: %w", err)
	}
	views := make([]domain.LedgerView, 0, len(entries))
	for i := range entries {
		views = append(views, entries[i].View())
	}
	return views, nil
}

func (s *LedgerService) Get(ctx context.Context, id int64) (*domain.LedgerView, error) {
	e, err := s.ledger.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	v := e.View()
	return &v, nil
}

func (s *LedgerService) Decide(ctx context.Context, id int64, decision int, reason, operator string) error {
	entry, err := s.decider.ManualAudit(ctx, id, decision, reason, operator)
	if err != nil {
		return err
	}
	s.logger.Info("operator decision recorded",
		zap.Int64("ledger_id", id),
		zap.String("operator", operator),
		zap.String("status", entry.Status.String()))
	return nil
}

// GetGlobalStats - сводка за последний час.
func (s *LedgerService) GetGlobalStats(ctx context.Context) (*domain.ModerationDashboard, error) {
	return s.dash.GetDashboard(ctx, time.Hour)
}
