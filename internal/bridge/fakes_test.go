package bridge

import (
	"encoding/json"
	"sync"
	"time"

	"animepresence/internal/nativehost"
	"animepresence/internal/protocol"
	"animepresence/internal/storage"
)

type manualTimer struct {
	d       time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (t *manualTimer) Stop() bool {
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

type manualClock struct {
	timers []*manualTimer
}

func (c *manualClock) AfterFunc(d time.Duration, f func()) Timer {
	t := &manualTimer{d: d, f: f}
	c.timers = append(c.timers, t)
	return t
}

// active returns pending timers with the given delay.
func (c *manualClock) active(d time.Duration) []*manualTimer {
	var out []*manualTimer
	for _, t := range c.timers {
		if t.d == d && !t.stopped && !t.fired {
			out = append(out, t)
		}
	}
	return out
}

func (t *manualTimer) fire() {
	t.fired = true
	t.f()
}

type fakePort struct {
	mu     sync.Mutex
	sent   []json.RawMessage
	closed bool
}

func (p *fakePort) Send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, data)
	return nil
}

func (p *fakePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakePort) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.sent))
	for _, m := range p.sent {
		out = append(out, protocol.PeekType(m))
	}
	return out
}

func (p *fakePort) last() json.RawMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.sent) == 0 {
		return nil
	}
	return p.sent[len(p.sent)-1]
}

type fakeConnector struct {
	err      error
	ports    []*fakePort
	handlers []nativehost.Handler
}

func (c *fakeConnector) Connect(name string, h nativehost.Handler) (nativehost.Port, error) {
	if c.err != nil {
		return nil, c.err
	}
	p := &fakePort{}
	c.ports = append(c.ports, p)
	c.handlers = append(c.handlers, h)
	return p, nil
}

func (c *fakeConnector) current() *fakePort {
	if len(c.ports) == 0 {
		return nil
	}
	return c.ports[len(c.ports)-1]
}

type fakeStore struct {
	prefs   storage.Preferences
	enabled []bool
	patches []protocol.SettingsPatch
}

func newFakeStore() *fakeStore {
	return &fakeStore{prefs: storage.Preferences{
		Enabled:         true,
		ShowProgressBar: true,
		ShowPlayState:   true,
		IdleStatus:      protocol.DefaultIdleStatus,
	}}
}

func (s *fakeStore) LoadPreferences() (storage.Preferences, error) { return s.prefs, nil }
func (s *fakeStore) SaveEnabled(enabled bool) error {
	s.enabled = append(s.enabled, enabled)
	return nil
}
func (s *fakeStore) SaveSettings(p protocol.SettingsPatch) error {
	s.patches = append(s.patches, p)
	return nil
}

type fakeBus struct {
	mu      sync.Mutex
	pages   []protocol.RuntimeMessage
	display []protocol.RuntimeMessage
}

func (b *fakeBus) BroadcastPages(msg protocol.RuntimeMessage) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pages = append(b.pages, msg)
}

func (b *fakeBus) NotifyDisplay(msg protocol.RuntimeMessage) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.display = append(b.display, msg)
}

func (b *fakeBus) pagesOfType(typ string) []protocol.RuntimeMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []protocol.RuntimeMessage
	for _, m := range b.pages {
		if m.Type == typ {
			out = append(out, m)
		}
	}
	return out
}
