package api

import (
	"net/http"

	service "github.com/okian/agentmatch/internal/app"
)

// StatsProvider exposes the service-wide snapshot: queue depth, worker
// activity and job counts by state.
type StatsProvider interface {
	GetStats() map[string]interface{}
}

// StatsHandler serves GET /stats. Unlike /dispatch/stats it is not scoped to
// a caller and needs no X-User-ID.
type StatsHandler struct {
	provider StatsProvider
}

func NewStatsHandler(provider StatsProvider) *StatsHandler {
	return &StatsHandler{provider: provider}
}

func (h *StatsHandler) HandleStats(w http.ResponseWriter, _ *http.Request) {
	if h.provider == nil {
		writeError(w, WrapKind("api.stats", KindUnavailable, service.ErrNotStarted))
		return
	}
	writeJSON(w, http.StatusOK, h.provider.GetStats())
}
