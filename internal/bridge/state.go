package bridge

import "animepresence/internal/protocol"

// Phase is the state of the native host connection.
type Phase string

const (
	PhaseDisconnected Phase = "disconnected"
	PhaseConnected    Phase = "connected"
	PhaseNotInstalled Phase = "not_installed"
)

const ErrorNotInstalled = "not_installed"

// Status is what the status display renders: connection state plus the last
// display fields reported by a page.
type Status struct {
	Connected       bool   `json:"connected"`
	Enabled         bool   `json:"enabled"`
	Phase           Phase  `json:"phase"`
	NativeHostError string `json:"nativeHostError,omitempty"`
	protocol.DisplayState
}

func initialStatus() Status {
	return Status{
		Enabled:      true,
		Phase:        PhaseDisconnected,
		DisplayState: protocol.DisplayState{PageState: protocol.PageIdle},
	}
}

type event interface {
	bridgeEvent()
}

type animeStateEvent struct{ msg protocol.RuntimeMessage }
type getStateEvent struct{ reply chan Status }
type getSettingsEvent struct{ reply chan protocol.Settings }
type toggleEvent struct{ enabled bool }
type retryEvent struct{}
type settingsEvent struct{ patch protocol.SettingsPatch }
type controlEvent struct {
	action protocol.ControlAction
	value  *float64
}
type hostMessageEvent struct {
	conn uint64
	data []byte
}
type hostDisconnectEvent struct {
	conn uint64
	err  error
}
type reconnectEvent struct{ gen uint64 }
type keepaliveEvent struct{ gen uint64 }

func (animeStateEvent) bridgeEvent()     {}
func (getStateEvent) bridgeEvent()       {}
func (getSettingsEvent) bridgeEvent()    {}
func (toggleEvent) bridgeEvent()         {}
func (retryEvent) bridgeEvent()          {}
func (settingsEvent) bridgeEvent()       {}
func (controlEvent) bridgeEvent()        {}
func (hostMessageEvent) bridgeEvent()    {}
func (hostDisconnectEvent) bridgeEvent() {}
func (reconnectEvent) bridgeEvent()      {}
func (keepaliveEvent) bridgeEvent()      {}
