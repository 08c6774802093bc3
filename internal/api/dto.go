package api

import (
	"encoding/json"
	"time"

	"animepresence/internal/bridge"
	"animepresence/internal/protocol"
	"animepresence/internal/storage"
)

type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Pages    int    `json:"pages"`
	Displays int    `json:"displays"`
}

type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type StateResponse struct {
	bridge.Status
}

type SettingsResponse struct {
	Settings protocol.Settings `json:"settings"`
}

type EnabledRequest struct {
	Enabled *bool `json:"enabled"`
}

type EnabledResponse struct {
	Enabled bool `json:"enabled"`
}

type ControlRequest struct {
	Action protocol.ControlAction `json:"action"`
	Value  *float64               `json:"value,omitempty"`
}

type AcceptedResponse struct {
	Status string `json:"status"`
}

type DisplayResponse struct {
	storage.Display
}

// PreferencesResponse lists every stored preference as persisted.
type PreferencesResponse struct {
	Entries []PreferenceEntry `json:"entries"`
}

type PreferenceEntry struct {
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
	UpdatedAt time.Time       `json:"updatedAt"`
}
