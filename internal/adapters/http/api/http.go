// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	service "github.com/okian/agentmatch/internal/app"
	"github.com/okian/agentmatch/internal/domain/dispatch"
	"github.com/okian/agentmatch/internal/domain/model"
	"github.com/okian/agentmatch/internal/domain/ranking"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	Dispatch(ctx context.Context, userID, candidateID, agentID string) (model.DispatchJob, error)
	Status(ctx context.Context, userID, jobID string) (dispatch.Status, error)
	Report(ctx context.Context, userID, jobID string) (model.Report, error)
	AutoDispatch(ctx context.Context, userID string) (service.AutoDispatchResult, error)
	DispatchStats(ctx context.Context, userID string) (model.DispatchStats, error)

	Matches(ctx context.Context, userID string, limit int) ([]ranking.Ranked, error)
	Calculate(ctx context.Context, userID string) (int, error)
	MaxMatchLimit() int

	Settings(ctx context.Context, userID string) (model.Settings, error)
	UpdateSettings(ctx context.Context, userID string, patch service.SettingsPatch) (model.Settings, error)
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler   *HealthHandler
	statsHandler    *StatsHandler
	dispatchHandler *DispatchHandler
	matchesHandler  *MatchesHandler
	settingsHandler *SettingsHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	v := newValidator()
	return &Server{
		healthHandler:   NewHealthHandler(),
		statsHandler:    NewStatsHandler(statsProvider),
		dispatchHandler: NewDispatchHandler(deps, v),
		matchesHandler:  NewMatchesHandler(deps),
		settingsHandler: NewSettingsHandler(deps, v),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	mux.HandleFunc("POST /dispatch", MetricsMiddleware(RequireUser(s.dispatchHandler.HandleDispatch), "dispatch"))
	mux.HandleFunc("POST /dispatch/auto", MetricsMiddleware(RequireUser(s.dispatchHandler.HandleAutoDispatch), "dispatch_auto"))
	mux.HandleFunc("GET /dispatch/stats", MetricsMiddleware(RequireUser(s.dispatchHandler.HandleStats), "dispatch_stats"))
	mux.HandleFunc("GET /dispatch/{id}", MetricsMiddleware(RequireUser(s.dispatchHandler.HandleStatus), "dispatch_status"))
	mux.HandleFunc("GET /dispatch/{id}/report", MetricsMiddleware(RequireUser(s.dispatchHandler.HandleReport), "dispatch_report"))

	mux.HandleFunc("GET /matches", MetricsMiddleware(RequireUser(s.matchesHandler.HandleList), "matches"))
	mux.HandleFunc("POST /matches/calculate", MetricsMiddleware(RequireUser(s.matchesHandler.HandleCalculate), "matches_calculate"))

	mux.HandleFunc("GET /settings", MetricsMiddleware(RequireUser(s.settingsHandler.HandleGet), "settings"))
	mux.HandleFunc("PUT /settings", MetricsMiddleware(RequireUser(s.settingsHandler.HandlePut), "settings"))
}

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// errorResponse carries the kind twice: error is what clients switch on,
// code is kept for older clients.
type errorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	kind := KindOf(err)
	writeJSON(w, kind.Status(), errorResponse{Error: string(kind), Code: string(kind), Message: message(err)})
}

// decodeBody reads a JSON body into dst and validates it. An empty body is
// accepted as the zero value.
func decodeBody(r *http.Request, v *validator.Validate, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	if err := v.Struct(dst); err != nil {
		return fmt.Errorf("%w: %s", ErrBadRequest, validationMessage(err))
	}
	return nil
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	if fe.Param() != "" {
		return fmt.Sprintf("%s must satisfy %s=%s", fe.Field(), fe.Tag(), fe.Param())
	}
	return fmt.Sprintf("%s is %s", fe.Field(), fe.Tag())
}
