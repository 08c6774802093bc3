package protocol

const DefaultIdleStatus = "Browsing Anime"

type Settings struct {
	ShowProgressBar bool   `json:"showProgressBar"`
	ShowPlayState   bool   `json:"showPlayState"`
	IdleStatus      string `json:"idleStatus"`
	ClientID        string `json:"clientId"`
	AutoSkip        bool   `json:"autoSkip"`
}

func DefaultSettings() Settings {
	return Settings{
		ShowProgressBar: true,
		ShowPlayState:   true,
		IdleStatus:      DefaultIdleStatus,
	}
}

// SettingsPatch is a partial settings update; nil fields are left untouched.
type SettingsPatch struct {
	ShowProgressBar *bool   `json:"showProgressBar,omitempty"`
	ShowPlayState   *bool   `json:"showPlayState,omitempty"`
	IdleStatus      *string `json:"idleStatus,omitempty"`
	ClientID        *string `json:"clientId,omitempty"`
	AutoSkip        *bool   `json:"autoSkip,omitempty"`
}

// Apply merges p into s field by field, last write wins.
func (s Settings) Apply(p SettingsPatch) Settings {
	if p.ShowProgressBar != nil {
		s.ShowProgressBar = *p.ShowProgressBar
	}
	if p.ShowPlayState != nil {
		s.ShowPlayState = *p.ShowPlayState
	}
	if p.IdleStatus != nil {
		s.IdleStatus = *p.IdleStatus
	}
	if p.ClientID != nil {
		s.ClientID = *p.ClientID
	}
	if p.AutoSkip != nil {
		s.AutoSkip = *p.AutoSkip
	}
	return s
}

func (p SettingsPatch) Empty() bool {
	return p.ShowProgressBar == nil && p.ShowPlayState == nil && p.IdleStatus == nil &&
		p.ClientID == nil && p.AutoSkip == nil
}
