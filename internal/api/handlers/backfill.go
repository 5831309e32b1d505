package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/diviner-ai/diviner/internal/api"
	"github.com/diviner-ai/diviner/internal/service"
)

type BackfillService interface {
	Run(ctx context.Context, limit int) (*service.BackfillReport, error)
}

type BackfillHandler struct {
	svc BackfillService
}

func NewBackfillHandler(svc BackfillService) *BackfillHandler {
	return &BackfillHandler{svc: svc}
}

type BackfillRequest struct {
	Limit int `json:"limit"`
}

type BackfillResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Processed int    `json:"processed"`
	Failed    int    `json:"failed"`
	Remaining int64  `json:"remaining"`
}

// Run handles POST /admin/backfill. The body is optional; a positive limit
// overrides the configured batch size for this run.
func (h *BackfillHandler) Run(w http.ResponseWriter, r *http.Request) {
	var req BackfillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	report, err := h.svc.Run(r.Context(), req.Limit)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.JSON(w, http.StatusOK, BackfillResponse{
		Success:   true,
		Message:   fmt.Sprintf("embedded %d chunks, %d failed", report.Processed, report.Failed),
		Processed: report.Processed,
		Failed:    report.Failed,
		Remaining: report.Remaining,
	})
}
