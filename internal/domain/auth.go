package domain

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Права операторов модерации
const (
	ScopeLedgerRead   = "ledger.read"   // Просмотр очереди и записей леджера
	ScopeLedgerDecide = "ledger.decide" // Ручной аудит
)

type OperatorClaims struct {
	OperatorID string          `json:"operator_id"`
	Scopes     map[string]bool `json:"scopes"`
	jwt.RegisteredClaims
}

func (c *OperatorClaims) Has(scope string) bool {
	return c != nil && (c.Scopes[scope] || c.Scopes["admin"])
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"` // Всегда "Bearer"
	ExpiresIn   int64  `json:"expires_in"`
}

// Operator - сотрудник модерации, который разбирает очередь human review.
type Operator struct {
	ID           string          `json:"id"`
	Username     string          `json:"username"`
	PasswordHash string          `json:"-"` // Никогда не отправляем на фронт
	Scopes       map[string]bool `json:"scopes"`
	CreatedAt    time.Time       `json:"created_at"`
}
