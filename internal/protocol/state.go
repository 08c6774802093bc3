package protocol

import (
	"animepresence/internal/playback"
)

type PageState string

const (
	PageIdle              PageState = "idle"
	PageWatching          PageState = "watching"
	PageBrowsingSeries    PageState = "browsing_series"
	PageBrowsingHome      PageState = "browsing_home"
	PageSearching         PageState = "searching"
	PageBrowsingHistory   PageState = "browsing_history"
	PageBrowsingWatchlist PageState = "browsing_watchlist"
	PageBrowsingCalendar  PageState = "browsing_calendar"
	PageBrowsing          PageState = "browsing"
)

// VideoState is a snapshot plus whether any media source was located at all.
type VideoState struct {
	playback.Snapshot
	Found bool `json:"found"`
}

// NotFoundVideo is reported when no media element with a known duration exists.
func NotFoundVideo() VideoState {
	return VideoState{
		Snapshot: playback.Snapshot{
			Paused:               true,
			CurrentTimeFormatted: "0:00",
			DurationFormatted:    "0:00",
		},
	}
}

// AnimeState is the canonical "now watching" record built by a page collector.
// The same struct is sent to the native host as the anime_state message, with
// Settings attached by the bridge.
type AnimeState struct {
	Type          string     `json:"type"`
	PageState     PageState  `json:"pageState"`
	Anime         string     `json:"anime,omitempty"`
	EpisodeTitle  string     `json:"episodeTitle,omitempty"`
	EpisodeNumber string     `json:"episodeNumber,omitempty"`
	SeasonTitle   string     `json:"seasonTitle,omitempty"`
	Thumbnail     string     `json:"thumbnail,omitempty"`
	EpisodeURL    string     `json:"episodeUrl,omitempty"`
	URL           string     `json:"url,omitempty"`
	Video         VideoState `json:"video"`
	Timestamp     int64      `json:"timestamp"` // epoch ms
	Settings      *Settings  `json:"settings,omitempty"`
}

// DisplayState is the reduced subset a status display needs.
type DisplayState struct {
	Anime        string    `json:"anime,omitempty"`
	Episode      string    `json:"episode,omitempty"`
	EpisodeTitle string    `json:"episodeTitle,omitempty"`
	Progress     string    `json:"progress,omitempty"`
	PageState    PageState `json:"pageState"`
	Thumbnail    string    `json:"thumbnail,omitempty"`
	Playing      bool      `json:"playing"`
}

func (s AnimeState) Display() DisplayState {
	return DisplayState{
		Anime:        s.Anime,
		Episode:      s.EpisodeNumber,
		EpisodeTitle: s.EpisodeTitle,
		Progress:     s.Video.CurrentTimeFormatted + " / " + s.Video.DurationFormatted,
		PageState:    s.PageState,
		Thumbnail:    s.Thumbnail,
		Playing:      s.Video.Playing,
	}
}
