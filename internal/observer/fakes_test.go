package observer

import (
	"errors"
	"strings"
	"sync"

	"animepresence/internal/dom"
	"animepresence/internal/protocol"
)

type fakeMedia struct {
	current, duration, rate float64
	paused, ended           bool
	listeners               map[string][]func()
	playErr                 error
}

func newMedia(current, duration float64) *fakeMedia {
	return &fakeMedia{current: current, duration: duration, rate: 1, paused: true, listeners: map[string][]func(){}}
}

func (m *fakeMedia) CurrentTime() float64  { return m.current }
func (m *fakeMedia) Duration() float64     { return m.duration }
func (m *fakeMedia) Paused() bool          { return m.paused }
func (m *fakeMedia) Ended() bool           { return m.ended }
func (m *fakeMedia) PlaybackRate() float64 { return m.rate }
func (m *fakeMedia) Pause()                { m.paused = true }
func (m *fakeMedia) Seek(s float64)        { m.current = s }
func (m *fakeMedia) SetPlaybackRate(r float64) {
	m.rate = r
}

func (m *fakeMedia) Play() error {
	if m.playErr != nil {
		return m.playErr
	}
	m.paused = false
	return nil
}

func (m *fakeMedia) AddListener(event string, fn func()) {
	m.listeners[event] = append(m.listeners[event], fn)
}

func (m *fakeMedia) fire(event string) {
	for _, fn := range m.listeners[event] {
		fn()
	}
}

type fakeDoc struct {
	mu    sync.Mutex
	media map[string]dom.Media
	root  dom.Node
}

func (d *fakeDoc) setMedia(sel string, m dom.Media) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.media[sel] = m
}

func (d *fakeDoc) QueryMedia(sel string) (dom.Media, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if sel == "bad[" {
		return nil, errors.New("invalid selector")
	}
	if m, ok := d.media[sel]; ok {
		return m, nil
	}
	return nil, nil
}

func (d *fakeDoc) Root() dom.Node { return d.root }

type fakeRelay struct {
	mu     sync.Mutex
	nested bool
	parent []protocol.RelayMessage
	top    []protocol.RelayMessage
}

func (r *fakeRelay) PostParent(msg protocol.RelayMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.parent = append(r.parent, msg)
}

func (r *fakeRelay) PostTop(msg protocol.RelayMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.top = append(r.top, msg)
}

func (r *fakeRelay) Nested() bool { return r.nested }

func (r *fakeRelay) parentCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.parent)
}

type fakeNode struct {
	tag      string
	text     string
	attrs    map[string]string
	layout   dom.Layout
	children []dom.Node
	shadow   []dom.Node
	clicks   int
}

func (n *fakeNode) Text() string {
	var b strings.Builder
	b.WriteString(n.text)
	for _, c := range n.children {
		b.WriteString(c.Text())
	}
	return b.String()
}

func (n *fakeNode) Attr(name string) (string, bool) {
	v, ok := n.attrs[name]
	return v, ok
}

func (n *fakeNode) Tag() string          { return n.tag }
func (n *fakeNode) Layout() dom.Layout   { return n.layout }
func (n *fakeNode) Click() error         { n.clicks++; return nil }
func (n *fakeNode) Children() []dom.Node { return n.children }
func (n *fakeNode) Shadow() []dom.Node   { return n.shadow }

var shown = dom.Layout{Width: 80, Height: 30, Opacity: 1}
