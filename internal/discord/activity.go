package discord

import (
	"strings"
	"time"
	"unicode/utf8"

	"animepresence/internal/protocol"
)

const (
	maxField     = 128
	maxURL       = 512
	maxTitle     = 22
	defaultImage = "logo"
	appName      = "Anime Discord Presence"
	siteURL      = "https://www.crunchyroll.com"
)

type Activity struct {
	Details    string      `json:"details,omitempty"`
	State      string      `json:"state,omitempty"`
	Timestamps *Timestamps `json:"timestamps,omitempty"`
	Assets     *Assets     `json:"assets,omitempty"`
	Buttons    []Button    `json:"buttons,omitempty"`
}

type Timestamps struct {
	Start int64 `json:"start,omitempty"`
}

type Assets struct {
	LargeImage string `json:"large_image,omitempty"`
	LargeText  string `json:"large_text,omitempty"`
}

type Button struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

var browsingStates = map[protocol.PageState]string{
	protocol.PageBrowsingSeries:    "Viewing a series",
	protocol.PageBrowsingHome:      "On the home page",
	protocol.PageBrowsingHistory:   "Checking watch history",
	protocol.PageBrowsingWatchlist: "Browsing watchlist",
	protocol.PageBrowsingCalendar:  "Checking release calendar",
	protocol.PageBrowsing:          "Exploring",
}

// Builder turns anime states into activities. It remembers which show is
// playing so the elapsed timer survives episode updates.
type Builder struct {
	now     func() time.Time
	current string
	started int64
}

func NewBuilder() *Builder {
	return &Builder{now: time.Now}
}

// Build returns the activity for state. clear is true when presence should be
// removed instead.
func (b *Builder) Build(state protocol.AnimeState, settings protocol.Settings) (activity *Activity, clear bool) {
	switch {
	case state.PageState == protocol.PageWatching && state.Anime != "":
		return b.watching(state, settings), false
	case strings.HasPrefix(string(state.PageState), "browsing"):
		b.Reset()
		return b.browsing(state.PageState, settings), false
	case state.PageState == protocol.PageSearching:
		return &Activity{
			Details: "Searching",
			State:   "Looking for anime",
			Assets:  &Assets{LargeImage: defaultImage, LargeText: appName},
		}, false
	case state.PageState == "disconnected":
		b.Reset()
		return nil, true
	}
	return nil, false
}

// Reset forgets the current show.
func (b *Builder) Reset() {
	b.current = ""
	b.started = 0
}

func (b *Builder) watching(s protocol.AnimeState, settings protocol.Settings) *Activity {
	if b.current != s.Anime {
		b.current = s.Anime
		b.started = b.now().Unix()
	}

	video := s.Video
	icon := "⏸"
	if video.Playing && !video.Paused {
		icon = "▶"
	}

	var state string
	if settings.ShowProgressBar && video.Duration > 0 {
		cur := orDefault(video.CurrentTimeFormatted, "0:00")
		dur := orDefault(video.DurationFormatted, "0:00")
		state = icon + " " + cur + " " + ProgressBar(video.Progress, 12) + " " + dur
	} else {
		parts := []string{icon}
		if s.EpisodeNumber != "" {
			parts = append(parts, "E"+s.EpisodeNumber)
		}
		if s.EpisodeTitle != "" && s.EpisodeTitle != s.Anime {
			parts = append(parts, ellipsize(s.EpisodeTitle, maxTitle))
		}
		state = strings.Join(parts, " • ")
	}

	largeText := s.Anime
	if s.EpisodeTitle != "" && s.EpisodeTitle != s.Anime {
		largeText = s.EpisodeTitle
		if s.EpisodeNumber != "" {
			largeText = "E" + s.EpisodeNumber + " - " + s.EpisodeTitle
		}
	}

	episodeURL := orDefault(s.EpisodeURL, siteURL)

	return &Activity{
		Details:    truncate(s.Anime, maxField),
		State:      truncate(state, maxField),
		Timestamps: &Timestamps{Start: b.started},
		Assets: &Assets{
			LargeImage: orDefault(s.Thumbnail, defaultImage),
			LargeText:  truncate(largeText, maxField),
		},
		Buttons: []Button{{Label: "Watch Now", URL: truncate(episodeURL, maxURL)}},
	}
}

func (b *Builder) browsing(page protocol.PageState, settings protocol.Settings) *Activity {
	state, ok := browsingStates[page]
	if !ok {
		state = "Looking around"
	}
	return &Activity{
		Details: truncate(orDefault(settings.IdleStatus, protocol.DefaultIdleStatus), maxField),
		State:   state,
		Assets:  &Assets{LargeImage: defaultImage, LargeText: appName},
		Buttons: []Button{{Label: "Visit Crunchyroll", URL: siteURL}},
	}
}

// ProgressBar renders progress (0-100) as filled cells, a head and the rest.
func ProgressBar(progress, length int) string {
	progress = max(0, min(100, progress))
	filled := progress * length / 100
	switch {
	case filled >= length:
		return strings.Repeat("━", length)
	case filled <= 0:
		return "●" + strings.Repeat("─", length-1)
	}
	return strings.Repeat("━", filled) + "●" + strings.Repeat("─", length-filled-1)
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

func ellipsize(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
