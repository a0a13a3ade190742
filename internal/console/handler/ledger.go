package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/xela07ax/novel-moderation/internal/domain"
	"github.com/xela07ax/novel-moderation/internal/infra/auth"
)

// LedgerService Описываем, что нам нужно от сервиса
type LedgerService interface {
	Queue(ctx context.Context, status domain.AuditStatus, limit int) ([]domain.LedgerView, error)
	Get(ctx context.Context, id int64) (*domain.LedgerView, error)
	Decide(ctx context.Context, id int64, decision int, reason, operator string) error
}

type LedgerHandler struct {
	service LedgerService
}

func NewLedgerHandler(s LedgerService) *LedgerHandler {
	return &LedgerHandler{service: s}
}

// List - очередь human review. GET /v1/ledger?status=0&limit=50
func (h *LedgerHandler) List(w http.ResponseWriter, r *http.Request) {
	status := domain.StatusPending // Дефолт для удобства оператора
	if s := r.URL.Query().Get("status"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil {
			http.Error(w, "invalid status", http.StatusBadRequest)
			return
		}
		status = domain.AuditStatus(v)
	}
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = v
	}

	list, err := h.service.Queue(r.Context(), status, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *LedgerHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := ledgerID(w, r)
	if !ok {
		return
	}
	v, err := h.service.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

type DecideRequest struct {
	Status int    `json:"status"`
	Reason string `json:"reason"`
}

// Decide - ручной аудит. Оператор берется из токена.
func (h *LedgerHandler) Decide(w http.ResponseWriter, r *http.Request) {
	id, ok := ledgerID(w, r)
	if !ok {
		return
	}
	var req DecideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	claims := auth.ClaimsFrom(r.Context())
	if claims == nil || claims.OperatorID == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	if err := h.service.Decide(r.Context(), id, req.Status, req.Reason, claims.OperatorID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func ledgerID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, domain.ErrInvalidStatus), errors.Is(err, domain.ErrInvalidTransition):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
