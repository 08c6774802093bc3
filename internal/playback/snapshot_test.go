package playback

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeMedia struct {
	current, duration, rate float64
	paused, ended           bool
}

func (m fakeMedia) CurrentTime() float64  { return m.current }
func (m fakeMedia) Duration() float64     { return m.duration }
func (m fakeMedia) Paused() bool          { return m.paused }
func (m fakeMedia) Ended() bool           { return m.ended }
func (m fakeMedia) PlaybackRate() float64 { return m.rate }

func TestFormatTime(t *testing.T) {
	cases := []struct {
		in   float64
		want string
	}{
		{0, "0:00"},
		{5, "0:05"},
		{65, "1:05"},
		{1300, "21:40"},
		{3661, "1:01:01"},
		{59.9, "0:59"},
		{-3, "0:00"},
		{math.NaN(), "0:00"},
		{math.Inf(1), "0:00"},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, FormatTime(tc.in), "FormatTime(%v)", tc.in)
	}
}

func TestProgressBounds(t *testing.T) {
	for _, duration := range []float64{1, 7, 23.5, 1300, 86400} {
		for _, frac := range []float64{0, 0.001, 0.25, 0.5, 0.999, 1} {
			current := duration * frac
			p := Progress(current, duration)
			assert.GreaterOrEqual(t, p, 0)
			assert.LessOrEqual(t, p, 100)
			assert.Equal(t, int(math.Floor(current/duration*100)), p)
		}
	}

	assert.Equal(t, 0, Progress(10, 0))
	assert.Equal(t, 100, Progress(120, 100))
}

func TestFromMedia(t *testing.T) {
	snap := FromMedia(fakeMedia{current: 65, duration: 1300, rate: 1})

	assert.True(t, snap.Playing)
	assert.False(t, snap.Paused)
	assert.Equal(t, 5, snap.Progress)
	assert.Equal(t, "1:05", snap.CurrentTimeFormatted)
	assert.Equal(t, "21:40", snap.DurationFormatted)
	assert.Equal(t, 1.0, snap.PlaybackRate)
}

func TestFromMediaNotPlaying(t *testing.T) {
	assert.False(t, FromMedia(fakeMedia{current: 10, duration: 100, paused: true}).Playing)
	assert.False(t, FromMedia(fakeMedia{current: 100, duration: 100, ended: true}).Playing)

	// metadata not loaded yet
	snap := FromMedia(fakeMedia{current: 0, duration: math.NaN()})
	assert.False(t, snap.Playing)
	assert.Equal(t, 0.0, snap.Duration)
	assert.Equal(t, "0:00", snap.DurationFormatted)
	assert.Zero(t, snap.PlaybackRate)
}
