package collector

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"animepresence/internal/dom"
	"animepresence/internal/protocol"
)

type fakeMedia struct {
	current, duration float64
	paused            bool
}

func (m *fakeMedia) CurrentTime() float64       { return m.current }
func (m *fakeMedia) Duration() float64          { return m.duration }
func (m *fakeMedia) Paused() bool               { return m.paused }
func (m *fakeMedia) Ended() bool                { return false }
func (m *fakeMedia) PlaybackRate() float64      { return 1 }
func (m *fakeMedia) Play() error                { m.paused = false; return nil }
func (m *fakeMedia) Pause()                     { m.paused = true }
func (m *fakeMedia) Seek(s float64)             { m.current = s }
func (m *fakeMedia) SetPlaybackRate(float64)    {}
func (m *fakeMedia) AddListener(string, func()) {}

// fakePage wraps a static document and adds media elements and frames.
type fakePage struct {
	dom.Document
	url    string
	media  map[string]dom.Media
	frames []dom.Frame
}

func (p *fakePage) URL() string { return p.url }

func (p *fakePage) QueryMedia(sel string) (dom.Media, error) {
	return p.media[sel], nil
}

func (p *fakePage) Frames() []dom.Frame { return p.frames }

type fakeFrame struct {
	src     string
	content dom.Page
	err     error
	posted  []protocol.RelayMessage
}

func (f *fakeFrame) Src() string                    { return f.src }
func (f *fakeFrame) Content() (dom.Page, error)     { return f.content, f.err }
func (f *fakeFrame) Post(msg protocol.RelayMessage) { f.posted = append(f.posted, msg) }

type fakeRuntime struct {
	sent []protocol.RuntimeMessage
}

func (r *fakeRuntime) Send(msg protocol.RuntimeMessage) error {
	r.sent = append(r.sent, msg)
	return nil
}

// fakeRequester answers requests from canned replies keyed by message type.
type fakeRequester struct {
	fakeRuntime
	replies map[string]any
}

func (r *fakeRequester) RequestInto(_ context.Context, msg protocol.RuntimeMessage, v any) error {
	reply, ok := r.replies[msg.Type]
	if !ok {
		return errors.New("no reply")
	}
	data, err := json.Marshal(reply)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// emptyDoc matches nothing.
type emptyDoc struct{ title string }

func (d emptyDoc) URL() string                                    { return "" }
func (d emptyDoc) Title() string                                  { return d.title }
func (d emptyDoc) QuerySelector(string) (dom.Element, error)      { return nil, nil }
func (d emptyDoc) QuerySelectorAll(string) ([]dom.Element, error) { return nil, nil }

type scheduled struct {
	d time.Duration
	f func()
}

type fakeTimers struct {
	pending []scheduled
}

func (ft *fakeTimers) after(d time.Duration, f func()) *time.Timer {
	ft.pending = append(ft.pending, scheduled{d, f})
	t := time.NewTimer(time.Hour)
	t.Stop()
	return t
}

func contains(haystack, needle string) bool { return strings.Contains(haystack, needle) }
