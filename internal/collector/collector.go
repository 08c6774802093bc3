// Package collector runs in the hosting page. It reconciles the relayed player
// state, direct media queries and page metadata into one canonical record and
// forwards it to the background bridge when it changes.
package collector

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"animepresence/internal/dom"
	"animepresence/internal/playback"
	"animepresence/internal/protocol"
)

// Runtime is the page's side of the runtime message bus.
type Runtime interface {
	Send(msg protocol.RuntimeMessage) error
}

// Requester is implemented by runtimes that can ask the bridge for its
// current state. When the runtime is one, Run seeds enabled and settings
// from the bridge before the first send.
type Requester interface {
	RequestInto(ctx context.Context, msg protocol.RuntimeMessage, v any) error
}

type Config struct {
	Interval           time.Duration
	LoadDelay          time.Duration
	NavigationDelay    time.Duration
	FrameProbeInterval time.Duration
	FrameProbeAttempts int
	PlayerFrameMarker  string // substring of the player iframe src
	TrustedOrigin      string // relay messages from other hosts are dropped
	SeedTimeout        time.Duration
	MediaSelectors     []string
	Selectors          Selectors
}

func DefaultConfig() Config {
	return Config{
		Interval:           3 * time.Second,
		LoadDelay:          time.Second,
		NavigationDelay:    time.Second,
		FrameProbeInterval: 200 * time.Millisecond,
		FrameProbeAttempts: 50,
		PlayerFrameMarker:  "static.crunchyroll.com",
		TrustedOrigin:      "crunchyroll.com",
		SeedTimeout:        2 * time.Second,
		MediaSelectors: []string{
			"video",
			"#player0",
			".vjs-tech",
			`[class*="video-player"] video`,
		},
		Selectors: DefaultSelectors(),
	}
}

type eventKind int

const (
	evSend eventKind = iota
	evMutation
	evHistory
	evRelay
	evRuntime
	evProbe
)

type event struct {
	kind    eventKind
	origin  string
	relay   protocol.RelayMessage
	runtime protocol.RuntimeMessage
}

type Collector struct {
	cfg     Config
	page    dom.Page
	runtime Runtime
	logger  zerolog.Logger
	now     func() time.Time
	after   func(d time.Duration, f func()) *time.Timer

	events chan event

	// owned by the Run goroutine
	enabled       bool
	settings      protocol.Settings
	relayed       *playback.Snapshot
	lastSent      string
	lastURL       string
	player        dom.Frame
	probeAttempts int
	probeTimer    *time.Timer
}

func New(cfg Config, page dom.Page, runtime Runtime, logger zerolog.Logger) *Collector {
	return &Collector{
		cfg:      cfg,
		page:     page,
		runtime:  runtime,
		logger:   logger.With().Str("component", "collector").Logger(),
		now:      time.Now,
		after:    time.AfterFunc,
		events:   make(chan event, 64),
		enabled:  true,
		settings: protocol.DefaultSettings(),
	}
}

// NotifyMutation signals a DOM change; the URL is re-checked.
func (c *Collector) NotifyMutation() { c.post(event{kind: evMutation}) }

// NotifyHistory signals a history navigation (popstate).
func (c *Collector) NotifyHistory() { c.post(event{kind: evHistory}) }

// ReceiveRelay accepts a cross-frame message posted to the page window.
func (c *Collector) ReceiveRelay(origin string, msg protocol.RelayMessage) {
	c.post(event{kind: evRelay, origin: origin, relay: msg})
}

// HandleRuntime accepts a message broadcast by the bridge.
func (c *Collector) HandleRuntime(msg protocol.RuntimeMessage) {
	c.post(event{kind: evRuntime, runtime: msg})
}

func (c *Collector) post(ev event) {
	select {
	case c.events <- ev:
	default:
		c.logger.Debug().Int("kind", int(ev.kind)).Msg("event queue full, dropping")
	}
}

func (c *Collector) schedule(d time.Duration, kind eventKind) *time.Timer {
	return c.after(d, func() { c.post(event{kind: kind}) })
}

func (c *Collector) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()
	defer func() {
		if c.probeTimer != nil {
			c.probeTimer.Stop()
		}
	}()

	c.seed(ctx)
	c.lastURL = c.page.URL()
	c.probePlayer()
	c.schedule(c.cfg.LoadDelay, evSend)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.sendUpdate()
		case ev := <-c.events:
			c.handle(ev)
		}
	}
}

// seed asks the bridge for the persisted enabled flag and settings. Failures
// keep the defaults; later deltas still apply.
func (c *Collector) seed(ctx context.Context) {
	req, ok := c.runtime.(Requester)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.SeedTimeout)
	defer cancel()

	var status struct {
		Enabled bool `json:"enabled"`
	}
	if err := req.RequestInto(ctx, protocol.RuntimeMessage{Type: protocol.MsgGetState}, &status); err != nil {
		c.logger.Debug().Err(err).Msg("could not load enabled state")
	} else {
		c.enabled = status.Enabled
	}

	var settings protocol.Settings
	if err := req.RequestInto(ctx, protocol.RuntimeMessage{Type: protocol.MsgGetSettings}, &settings); err != nil {
		c.logger.Debug().Err(err).Msg("could not load settings")
		return
	}
	c.settings = settings
}

func (c *Collector) handle(ev event) {
	switch ev.kind {
	case evSend:
		c.sendUpdate()
	case evMutation:
		if url := c.page.URL(); url != c.lastURL {
			c.navigate(url)
		}
	case evHistory:
		c.relayed = nil
		if url := c.page.URL(); url != c.lastURL {
			c.navigate(url)
			return
		}
		c.schedule(c.cfg.NavigationDelay, evSend)
	case evRelay:
		c.receiveRelay(ev.origin, ev.relay)
	case evRuntime:
		c.handleRuntime(ev.runtime)
	case evProbe:
		c.probePlayer()
	}
}

// navigate drops everything tied to the previous page and forces one send
// after the new page had time to load its metadata.
func (c *Collector) navigate(url string) {
	c.logger.Debug().Str("url", url).Msg("navigation")
	c.lastURL = url
	c.relayed = nil
	c.player = nil
	c.probeAttempts = 0
	if c.probeTimer != nil {
		c.probeTimer.Stop()
		c.probeTimer = nil
	}
	c.probePlayer()
	c.schedule(c.cfg.NavigationDelay, evSend)
}

func (c *Collector) probePlayer() {
	if c.player != nil || c.probeAttempts >= c.cfg.FrameProbeAttempts {
		return
	}
	if f := c.findPlayerFrame(); f != nil {
		c.attachPlayer(f)
		return
	}
	c.probeAttempts++
	c.probeTimer = c.schedule(c.cfg.FrameProbeInterval, evProbe)
}

// attachPlayer remembers the player frame and hands it the current auto-skip
// setting, since a fresh frame starts with auto-skip off.
func (c *Collector) attachPlayer(f dom.Frame) {
	c.player = f
	c.logger.Debug().Str("src", f.Src()).Msg("player frame found")
	if c.settings.AutoSkip {
		f.Post(protocol.AutoSkip(true))
	}
}

func (c *Collector) findPlayerFrame() dom.Frame {
	for _, f := range c.page.Frames() {
		if strings.Contains(f.Src(), c.cfg.PlayerFrameMarker) {
			return f
		}
	}
	return nil
}

func (c *Collector) receiveRelay(origin string, msg protocol.RelayMessage) {
	if !trustedOrigin(origin, c.cfg.TrustedOrigin) {
		return
	}
	if msg.Type != protocol.TypeVideoState || msg.Source != protocol.SourceFrameRelay || msg.Data == nil {
		return
	}
	snap := *msg.Data
	c.relayed = &snap
	c.sendUpdate()
}

// trustedOrigin reports whether origin's host is trusted or a subdomain of it.
func trustedOrigin(origin, trusted string) bool {
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := u.Hostname()
	return host == trusted || strings.HasSuffix(host, "."+trusted)
}

func (c *Collector) handleRuntime(msg protocol.RuntimeMessage) {
	switch msg.Type {
	case protocol.MsgEnabledChanged:
		if msg.Enabled != nil {
			c.enabled = *msg.Enabled
		}
	case protocol.MsgSettingsChanged:
		if msg.Settings == nil {
			return
		}
		c.settings = c.settings.Apply(*msg.Settings)
		if msg.Settings.AutoSkip != nil {
			c.postPlayer(protocol.AutoSkip(*msg.Settings.AutoSkip))
		}
	case protocol.MsgVideoControl:
		if !msg.Action.Valid() {
			return
		}
		c.postPlayer(protocol.VideoControl(msg.Action, msg.Value))
	}
}

func (c *Collector) postPlayer(msg protocol.RelayMessage) {
	if c.player == nil {
		if f := c.findPlayerFrame(); f != nil {
			c.attachPlayer(f)
		}
	}
	if c.player == nil {
		c.logger.Debug().Str("type", msg.Type).Msg("no player frame, message dropped")
		return
	}
	c.player.Post(msg)
}

// Collect builds the canonical state for the page as it is right now. It must
// run on the collector's goroutine, or before Run.
func (c *Collector) Collect() protocol.AnimeState {
	meta := ExtractMetadata(c.page, c.cfg.Selectors)
	settings := c.settings

	return protocol.AnimeState{
		Type:          protocol.HostAnimeState,
		PageState:     PageStateFor(meta.URL),
		Anime:         meta.Anime,
		EpisodeTitle:  meta.EpisodeTitle,
		EpisodeNumber: meta.EpisodeNumber,
		SeasonTitle:   meta.SeasonTitle,
		Thumbnail:     meta.Thumbnail,
		EpisodeURL:    meta.URL,
		URL:           meta.URL,
		Video:         c.resolveVideo(),
		Timestamp:     c.now().UnixMilli(),
		Settings:      &settings,
	}
}

func (c *Collector) sendUpdate() {
	if !c.enabled {
		return
	}

	state := c.Collect()
	key, err := dedupKey(state)
	if err != nil {
		c.logger.Warn().Err(err).Msg("failed to encode state")
		return
	}
	if key == c.lastSent {
		return
	}
	c.lastSent = key

	msg, err := protocol.NewAnimeStateMessage(state)
	if err != nil {
		c.logger.Warn().Err(err).Msg("failed to encode state")
		return
	}
	if err := c.runtime.Send(msg); err != nil {
		c.logger.Debug().Err(err).Msg("state not delivered")
	}
}

// dedupKey serializes the state without its timestamp.
func dedupKey(s protocol.AnimeState) (string, error) {
	s.Timestamp = 0
	data, err := json.Marshal(s)
	return string(data), err
}
