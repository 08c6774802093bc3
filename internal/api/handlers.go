package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"animepresence/internal/bridge"
	"animepresence/internal/bus"
	"animepresence/internal/protocol"
	"animepresence/internal/storage"
)

const Version = "0.1.0"

type Handler struct {
	bridge BridgeInterface
	store  DisplayStore
	hub    *bus.Hub
	logger zerolog.Logger
}

type BridgeInterface interface {
	State(ctx context.Context) (bridge.Status, error)
	Settings(ctx context.Context) (protocol.Settings, error)
	Toggle(ctx context.Context, enabled bool) error
	Retry(ctx context.Context) error
	UpdateSettings(ctx context.Context, patch protocol.SettingsPatch) error
	Control(ctx context.Context, action protocol.ControlAction, value *float64) error
}

// DisplayStore holds the display-only preferences; they bypass the bridge.
type DisplayStore interface {
	LoadPreferences() (storage.Preferences, error)
	SaveDisplay(patch storage.DisplayPatch) error
	Entries() ([]storage.Entry, error)
}

func NewHandler(b BridgeInterface, store DisplayStore, hub *bus.Hub, logger zerolog.Logger) *Handler {
	return &Handler{
		bridge: b,
		store:  store,
		hub:    hub,
		logger: logger,
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:  "ok",
		Version: Version,
	}
	if h.hub != nil {
		resp.Pages = h.hub.Count(bus.RolePage)
		resp.Displays = h.hub.Count(bus.RoleDisplay)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) GetState(w http.ResponseWriter, r *http.Request) {
	status, err := h.bridge.State(r.Context())
	if err != nil {
		h.bridgeError(w, err, "failed to get state")
		return
	}
	writeJSON(w, http.StatusOK, StateResponse{Status: status})
}

func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.bridge.Settings(r.Context())
	if err != nil {
		h.bridgeError(w, err, "failed to get settings")
		return
	}
	writeJSON(w, http.StatusOK, SettingsResponse{Settings: settings})
}

func (h *Handler) SetEnabled(w http.ResponseWriter, r *http.Request) {
	var req EnabledRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "Invalid request body")
		return
	}
	if req.Enabled == nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "enabled is required")
		return
	}

	if err := h.bridge.Toggle(r.Context(), *req.Enabled); err != nil {
		h.bridgeError(w, err, "failed to toggle presence")
		return
	}

	h.logger.Info().Bool("enabled", *req.Enabled).Msg("presence toggled from display")
	writeJSON(w, http.StatusAccepted, EnabledResponse{Enabled: *req.Enabled})
}

func (h *Handler) RetryConnection(w http.ResponseWriter, r *http.Request) {
	if err := h.bridge.Retry(r.Context()); err != nil {
		h.bridgeError(w, err, "failed to retry connection")
		return
	}
	writeJSON(w, http.StatusAccepted, AcceptedResponse{Status: "retrying"})
}

func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var patch protocol.SettingsPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "Invalid request body")
		return
	}
	if patch.Empty() {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "No settings to update")
		return
	}

	if err := h.bridge.UpdateSettings(r.Context(), patch); err != nil {
		h.bridgeError(w, err, "failed to update settings")
		return
	}

	// read back so the response reflects the merged result
	settings, err := h.bridge.Settings(r.Context())
	if err != nil {
		h.bridgeError(w, err, "failed to get settings")
		return
	}
	writeJSON(w, http.StatusOK, SettingsResponse{Settings: settings})
}

func (h *Handler) Control(w http.ResponseWriter, r *http.Request) {
	var req ControlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "Invalid request body")
		return
	}

	if err := h.bridge.Control(r.Context(), req.Action, req.Value); err != nil {
		h.bridgeError(w, err, "failed to send control")
		return
	}
	writeJSON(w, http.StatusAccepted, AcceptedResponse{Status: "sent"})
}

func (h *Handler) GetDisplay(w http.ResponseWriter, r *http.Request) {
	prefs, err := h.store.LoadPreferences()
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to load display preferences")
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load display preferences")
		return
	}
	writeJSON(w, http.StatusOK, DisplayResponse{Display: prefs.Display()})
}

func (h *Handler) UpdateDisplay(w http.ResponseWriter, r *http.Request) {
	var patch storage.DisplayPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "Invalid request body")
		return
	}

	if err := h.store.SaveDisplay(patch); err != nil {
		h.logger.Error().Err(err).Msg("failed to save display preferences")
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to save display preferences")
		return
	}

	h.GetDisplay(w, r)
}

// ListPreferences dumps the raw preference rows for troubleshooting.
func (h *Handler) ListPreferences(w http.ResponseWriter, r *http.Request) {
	entries, err := h.store.Entries()
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list preferences")
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list preferences")
		return
	}

	resp := PreferencesResponse{Entries: make([]PreferenceEntry, 0, len(entries))}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, PreferenceEntry{
			Key:       e.Key,
			Value:     json.RawMessage(e.Value),
			UpdatedAt: e.UpdatedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) bridgeError(w http.ResponseWriter, err error, msg string) {
	switch {
	case errors.Is(err, bridge.ErrBadRequest):
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
	case errors.Is(err, bridge.ErrStopped):
		writeError(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "Bridge not running")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "Bridge busy")
	default:
		h.logger.Error().Err(err).Msg(msg)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", msg)
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}
