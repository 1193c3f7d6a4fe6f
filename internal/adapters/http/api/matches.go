package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/okian/agentmatch/internal/domain/ranking"
)

// defaultMatchLimit applies when no limit is given.
const defaultMatchLimit = 10

// matchStatusNew is the only status a freshly ranked candidate can have.
const matchStatusNew = "new"

// matchView is the list shape of GET /matches.
type matchView struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Role        string `json:"role"`
	Company     string `json:"company"`
	Avatar      string `json:"avatar"`
	MatchScore  int    `json:"match_score"`
	MatchReason string `json:"match_reason"`
	Status      string `json:"status"`
}

type calculateResponse struct {
	Count int `json:"count"`
}

// MatchesHandler serves ranked candidates.
type MatchesHandler struct {
	deps Dependencies
}

// NewMatchesHandler creates a new matches handler.
func NewMatchesHandler(deps Dependencies) *MatchesHandler {
	return &MatchesHandler{deps: deps}
}

// HandleList handles GET /matches?limit=N requests.
func (h *MatchesHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_matches"
	limit, err := parseLimit(r.URL.Query().Get("limit"), h.deps.MaxMatchLimit())
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	ranked, err := h.deps.Matches(r.Context(), userFrom(r.Context()), limit)
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, toMatchViews(ranked))
}

// HandleCalculate handles POST /matches/calculate.
func (h *MatchesHandler) HandleCalculate(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_matches_calculate"
	n, err := h.deps.Calculate(r.Context(), userFrom(r.Context()))
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, calculateResponse{Count: n})
}

// parseLimit defaults an absent limit and caps it at maxLimit.
func parseLimit(raw string, maxLimit int) (int, error) {
	if raw == "" {
		return min(defaultMatchLimit, maxLimit), nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%w: limit must be a positive integer", ErrBadRequest)
	}
	return min(n, maxLimit), nil
}

func toMatchViews(ranked []ranking.Ranked) []matchView {
	out := make([]matchView, 0, len(ranked))
	for _, r := range ranked {
		out = append(out, matchView{
			ID:          r.Profile.ID,
			Name:        r.Profile.DisplayName(),
			Role:        r.Profile.Role,
			Company:     r.Profile.Company,
			Avatar:      r.Profile.Avatar,
			MatchScore:  r.Score.Total,
			MatchReason: r.Score.PrimaryReason(),
			Status:      matchStatusNew,
		})
	}
	return out
}
