package handler

import (
	"context"
	"net/http"

	"github.com/xela07ax/novel-moderation/internal/audit"
)

type RunHistory interface {
	FetchRuns(ctx context.Context, taskID string) ([]audit.RunEvent, error)
}

type AuditHandler struct {
	service RunHistory
}

func NewAuditHandler(s RunHistory) *AuditHandler {
	return &AuditHandler{service: s}
}

// GetRuns возвращает журнал прогонов по задаче
// GET /v1/audit?task_id=...
func (h *AuditHandler) GetRuns(w http.ResponseWriter, r *http.Request) {
	taskID := r.URL.Query().Get("task_id")
	if taskID == "" {
		http.Error(w, "task_id is required", http.StatusBadRequest)
		return
	}

	runs, err := h.service.FetchRuns(r.Context(), taskID)
	if err != nil {
		http.Error(w, "Failed to fetch audit runs", http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []audit.RunEvent{}
	}
	writeJSON(w, http.StatusOK, runs)
}
