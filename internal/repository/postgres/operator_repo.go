package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/xela07ax/novel-moderation/internal/domain"
)

type OperatorRepo struct {
	*Store
}

func NewOperatorRepo(s *Store) *OperatorRepo {
	return &OperatorRepo{Store: s}
}

// GetOperatorByUsername возвращает nil, nil если оператора нет.
func (r *OperatorRepo) GetOperatorByUsername(ctx context.Context, username string) (*domain.Operator, error) {
	var (
		o      domain.Operator
		scopes string
	)
	err := r.db.QueryRowContext(ctx, r.q(`
		SELECT id, username, password_hash, scopes, created_at
		FROM operators WHERE username = ?`), username).
		Scan(&o.ID, &o.Username, &o.PasswordHash, &scopes, &o.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(scopes), &o.Scopes); err != nil {
		return nil, fmt.Errorf("operator %s scopes: %w", o.ID, err)
	}
	return &o, nil
}

func (r *OperatorRepo) CreateOperator(ctx context.Context, o *domain.Operator) error {
	scopes, err := json.Marshal(o.Scopes)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, r.q(`
		INSERT INTO operators (id, username, password_hash, scopes, created_at)
		VALUES (?, ?, ?, ?, ?)`),
		o.ID, o.Username, o.PasswordHash, string(scopes), o.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("create operator %s: %w", o.Username, err)
	}
	return nil
}
