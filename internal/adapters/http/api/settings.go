package api

import (
	"net/http"

	"github.com/go-playground/validator/v10"

	service "github.com/okian/agentmatch/internal/app"
	"github.com/okian/agentmatch/internal/domain/model"
)

// settingsRequest mirrors the OpenAPI schema for PUT /settings. Absent
// fields keep their stored value.
type settingsRequest struct {
	DailyLimit   *int               `json:"daily_limit" validate:"omitempty,min=1,max=10"`
	AutoDispatch *bool              `json:"auto_dispatch"`
	Preferences  *model.Preferences `json:"preferences"`
}

// SettingsHandler serves per-user dispatch settings.
type SettingsHandler struct {
	deps     Dependencies
	validate *validator.Validate
}

// NewSettingsHandler creates a new settings handler.
func NewSettingsHandler(deps Dependencies, v *validator.Validate) *SettingsHandler {
	return &SettingsHandler{deps: deps, validate: v}
}

// HandleGet handles GET /settings.
func (h *SettingsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_settings"
	st, err := h.deps.Settings(r.Context(), userFrom(r.Context()))
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// HandlePut handles PUT /settings.
func (h *SettingsHandler) HandlePut(w http.ResponseWriter, r *http.Request) {
	const op = "api.put_settings"
	var req settingsRequest
	if err := decodeBody(r, h.validate, &req); err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	st, err := h.deps.UpdateSettings(r.Context(), userFrom(r.Context()), service.SettingsPatch{
		DailyLimit:   req.DailyLimit,
		AutoDispatch: req.AutoDispatch,
		Preferences:  req.Preferences,
	})
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, st)
}
