package protocol

import "animepresence/internal/playback"

// Cross-frame message types.
const (
	TypeVideoState   = "VIDEO_STATE"
	TypeVideoControl = "VIDEO_CONTROL"
	TypeAutoSkip     = "AUTOSKIP"

	SourceFrameRelay   = "frame-relay"
	SourceContentRelay = "content-relay"
)

type ControlAction string

const (
	ActionPlay        ControlAction = "play"
	ActionPause       ControlAction = "pause"
	ActionTogglePlay  ControlAction = "togglePlay"
	ActionSeekForward ControlAction = "seekForward"
	ActionSeekBack    ControlAction = "seekBack"
	ActionSetSpeed    ControlAction = "setSpeed"
)

func (a ControlAction) Valid() bool {
	switch a {
	case ActionPlay, ActionPause, ActionTogglePlay, ActionSeekForward, ActionSeekBack, ActionSetSpeed:
		return true
	}
	return false
}

// RelayMessage travels between browsing contexts (player frame <-> page).
type RelayMessage struct {
	Type      string             `json:"type"`
	Source    string             `json:"source,omitempty"`
	Data      *playback.Snapshot `json:"data,omitempty"`
	Action    ControlAction      `json:"action,omitempty"`
	Value     *float64           `json:"value,omitempty"`
	Enabled   *bool              `json:"enabled,omitempty"`
	Timestamp int64              `json:"timestamp,omitempty"`
}

func VideoControl(action ControlAction, value *float64) RelayMessage {
	return RelayMessage{
		Type:   TypeVideoControl,
		Source: SourceContentRelay,
		Action: action,
		Value:  value,
	}
}

func AutoSkip(enabled bool) RelayMessage {
	return RelayMessage{Type: TypeAutoSkip, Enabled: &enabled}
}
