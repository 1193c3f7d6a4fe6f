package api

import (
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/okian/agentmatch/internal/domain/model"
)

// dispatchRequest mirrors the OpenAPI schema for POST /dispatch.
type dispatchRequest struct {
	MatchID string `json:"match_id" validate:"required,max=128"`
	AgentID string `json:"agent_id" validate:"omitempty,max=128"`
}

type dispatchResponse struct {
	ID     string         `json:"id"`
	Status model.JobState `json:"status"`
}

// DispatchHandler serves dispatch creation, polling and reports.
type DispatchHandler struct {
	deps     Dependencies
	validate *validator.Validate
}

// NewDispatchHandler creates a new dispatch handler.
func NewDispatchHandler(deps Dependencies, v *validator.Validate) *DispatchHandler {
	return &DispatchHandler{deps: deps, validate: v}
}

// HandleDispatch handles POST /dispatch.
func (h *DispatchHandler) HandleDispatch(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_dispatch"
	var req dispatchRequest
	if err := decodeBody(r, h.validate, &req); err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	job, err := h.deps.Dispatch(r.Context(), userFrom(r.Context()), strings.TrimSpace(req.MatchID), req.AgentID)
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusAccepted, dispatchResponse{ID: job.ID, Status: job.State})
}

// HandleStatus handles GET /dispatch/{id}.
func (h *DispatchHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_dispatch_status"
	st, err := h.deps.Status(r.Context(), userFrom(r.Context()), r.PathValue("id"))
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// HandleReport handles GET /dispatch/{id}/report.
func (h *DispatchHandler) HandleReport(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_dispatch_report"
	report, err := h.deps.Report(r.Context(), userFrom(r.Context()), r.PathValue("id"))
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// HandleAutoDispatch handles POST /dispatch/auto.
func (h *DispatchHandler) HandleAutoDispatch(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_auto_dispatch"
	res, err := h.deps.AutoDispatch(r.Context(), userFrom(r.Context()))
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	if res.JobIDs == nil {
		res.JobIDs = []string{}
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleStats handles GET /dispatch/stats.
func (h *DispatchHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_dispatch_stats"
	stats, err := h.deps.DispatchStats(r.Context(), userFrom(r.Context()))
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	if stats.Recent == nil {
		stats.Recent = []model.HistoryEntry{}
	}
	writeJSON(w, http.StatusOK, stats)
}
