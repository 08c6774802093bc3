package protocol

import "encoding/json"

// Runtime bus message types (page <-> background <-> display).
const (
	MsgAnimeState      = "ANIME_STATE"
	MsgGetState        = "GET_STATE"
	MsgToggleEnabled   = "TOGGLE_ENABLED"
	MsgRetryConnection = "RETRY_CONNECTION"
	MsgSettingsUpdate  = "SETTINGS_UPDATE"
	MsgGetSettings     = "GET_SETTINGS"
	MsgVideoControl    = "VIDEO_CONTROL"

	MsgEnabledChanged  = "ENABLED_CHANGED"
	MsgSettingsChanged = "SETTINGS_CHANGED"
	MsgStateChanged    = "STATE_CHANGED"
	MsgReply           = "REPLY"
)

// RuntimeMessage is the single envelope used on the runtime bus. Only the
// fields relevant to Type are set.
type RuntimeMessage struct {
	Type          string          `json:"type"`
	ID            string          `json:"id,omitempty"` // request/reply correlation
	Data          json.RawMessage `json:"data,omitempty"`
	StateForPopup *DisplayState   `json:"stateForPopup,omitempty"`
	Enabled       *bool           `json:"enabled,omitempty"`
	Settings      *SettingsPatch  `json:"settings,omitempty"`
	Action        ControlAction   `json:"action,omitempty"`
	Value         *float64        `json:"value,omitempty"`
	Error         string          `json:"error,omitempty"`
}

func NewAnimeStateMessage(state AnimeState) (RuntimeMessage, error) {
	data, err := json.Marshal(state)
	if err != nil {
		return RuntimeMessage{}, err
	}
	display := state.Display()
	return RuntimeMessage{
		Type:          MsgAnimeState,
		Data:          data,
		StateForPopup: &display,
	}, nil
}

func Reply(id string, v any) (RuntimeMessage, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return RuntimeMessage{}, err
	}
	return RuntimeMessage{Type: MsgReply, ID: id, Data: data}, nil
}

func ReplyError(id string, err error) RuntimeMessage {
	return RuntimeMessage{Type: MsgReply, ID: id, Error: err.Error()}
}
