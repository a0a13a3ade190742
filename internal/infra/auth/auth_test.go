package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/novel-moderation/internal/domain"
	"go.uber.org/zap/zaptest"
)

func signed(t *testing.T, key *rsa.PrivateKey, claims *domain.OperatorClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	require.NoError(t, err)
	return tok
}

func TestVerifyToken(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	v := NewBaseValidator(&key.PublicKey)

	good := signed(t, key, &domain.OperatorClaims{
		OperatorID: "op-1",
		Scopes:     map[string]bool{domain.ScopeLedgerRead: true},
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	claims, err := v.VerifyToken("Bearer " + good)
	require.NoError(t, err)
	assert.Equal(t, "op-1", claims.OperatorID)
	assert.True(t, claims.Has(domain.ScopeLedgerRead))
	assert.False(t, claims.Has(domain.ScopeLedgerDecide))

	expired := signed(t, key, &domain.OperatorClaims{
		OperatorID: "op-1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	})
	_, err = v.VerifyToken(expired)
	assert.Error(t, err)

	other, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	_, err = v.VerifyToken(signed(t, other, &domain.OperatorClaims{OperatorID: "op-1"}))
	assert.Error(t, err)
}

type staticValidator struct {
	claims *domain.OperatorClaims
	err    error
}

func (s staticValidator) VerifyToken(string) (*domain.OperatorClaims, error) {
	return s.claims, s.err
}

func TestMiddlewareAndScope(t *testing.T) {
	logger := zaptest.NewLogger(t)
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "op-7", ClaimsFrom(r.Context()).OperatorID)
		w.WriteHeader(http.StatusNoContent)
	})

	reader := staticValidator{claims: &domain.OperatorClaims{
		OperatorID: "op-7",
		Scopes:     map[string]bool{domain.ScopeLedgerRead: true},
	}}
	h := NewMiddleware(reader, logger)(RequireScope(domain.ScopeLedgerDecide)(ok))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer x")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	h = NewMiddleware(reader, logger)(RequireScope(domain.ScopeLedgerRead)(ok))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
