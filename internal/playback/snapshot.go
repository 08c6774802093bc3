package playback

import (
	"fmt"
	"math"
)

// Media is the subset of a live media element a snapshot is derived from.
type Media interface {
	CurrentTime() float64
	Duration() float64
	Paused() bool
	Ended() bool
	PlaybackRate() float64
}

// Snapshot is the normalized playback state of one media element.
type Snapshot struct {
	Playing              bool    `json:"playing"`
	Paused               bool    `json:"paused"`
	CurrentTime          float64 `json:"currentTime"`
	Duration             float64 `json:"duration"`
	Progress             int     `json:"progress"` // 0 - 100
	CurrentTimeFormatted string  `json:"currentTimeFormatted"`
	DurationFormatted    string  `json:"durationFormatted"`
	PlaybackRate         float64 `json:"playbackRate,omitempty"`
}

func FromMedia(m Media) Snapshot {
	current := finite(m.CurrentTime())
	duration := finite(m.Duration())
	paused := m.Paused()

	snap := Snapshot{
		Playing:              !paused && !m.Ended() && duration > 0,
		Paused:               paused,
		CurrentTime:          current,
		Duration:             duration,
		Progress:             Progress(current, duration),
		CurrentTimeFormatted: FormatTime(current),
		DurationFormatted:    FormatTime(duration),
	}

	if rate := finite(m.PlaybackRate()); rate > 0 {
		snap.PlaybackRate = rate
	}

	return snap
}

// Progress returns floor(current/duration*100) clamped to [0, 100], or 0 when
// the duration is unknown.
func Progress(current, duration float64) int {
	if duration <= 0 || !isFinite(duration) || !isFinite(current) {
		return 0
	}
	p := int(math.Floor(current / duration * 100))
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// FormatTime renders seconds as m:ss or h:mm:ss.
func FormatTime(seconds float64) string {
	if !isFinite(seconds) || seconds <= 0 {
		return "0:00"
	}

	total := int64(math.Floor(seconds))
	hrs := total / 3600
	mins := (total % 3600) / 60
	secs := total % 60

	if hrs > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hrs, mins, secs)
	}
	return fmt.Sprintf("%d:%02d", mins, secs)
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func finite(f float64) float64 {
	if !isFinite(f) || f < 0 {
		return 0
	}
	return f
}
