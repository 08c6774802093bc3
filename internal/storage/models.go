package storage

import "time"

// Persisted keys.
const (
	KeyEnabled         = "enabled"
	KeyClientID        = "clientId"
	KeyShowProgressBar = "showProgressBar"
	KeyShowPlayState   = "showPlayState"
	KeyIdleStatus      = "idleStatus"
	KeyCompactMode     = "compactMode"
	KeyShowThumbnails  = "showThumbnails"
	KeyAccentColor     = "accentColor"
	KeyAutoSkip        = "autoSkip"
)

// Preferences is everything the extension persists between runs.
type Preferences struct {
	Enabled         bool   `json:"enabled"`
	ClientID        string `json:"clientId"`
	ShowProgressBar bool   `json:"showProgressBar"`
	ShowPlayState   bool   `json:"showPlayState"`
	IdleStatus      string `json:"idleStatus"`
	CompactMode     bool   `json:"compactMode"`
	ShowThumbnails  bool   `json:"showThumbnails"`
	AccentColor     string `json:"accentColor"`
	AutoSkip        bool   `json:"autoSkip"`
}

// Display preferences only matter to the status display.
type Display struct {
	CompactMode    bool   `json:"compactMode"`
	ShowThumbnails bool   `json:"showThumbnails"`
	AccentColor    string `json:"accentColor"`
}

type DisplayPatch struct {
	CompactMode    *bool   `json:"compactMode,omitempty"`
	ShowThumbnails *bool   `json:"showThumbnails,omitempty"`
	AccentColor    *string `json:"accentColor,omitempty"`
}

func (p Preferences) Display() Display {
	return Display{
		CompactMode:    p.CompactMode,
		ShowThumbnails: p.ShowThumbnails,
		AccentColor:    p.AccentColor,
	}
}

// Entry is one stored key.
type Entry struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"` // JSON-encoded
	UpdatedAt time.Time `json:"updatedAt"`
}

var defaults = map[string]any{
	KeyEnabled:         true,
	KeyShowProgressBar: true,
	KeyShowPlayState:   true,
	KeyIdleStatus:      "Browsing Anime",
	KeyCompactMode:     false,
	KeyShowThumbnails:  true,
	KeyAccentColor:     "orange",
	KeyClientID:        "",
	KeyAutoSkip:        false,
}
