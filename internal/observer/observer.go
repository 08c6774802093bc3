// Package observer runs inside an embedded player frame. It finds the video
// element, relays its playback state to the hosting page and applies remote
// control commands.
package observer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"animepresence/internal/dom"
	"animepresence/internal/playback"
	"animepresence/internal/protocol"
)

// Relay posts messages to the parent and top browsing contexts.
type Relay interface {
	PostParent(msg protocol.RelayMessage)
	PostTop(msg protocol.RelayMessage)
	// Nested reports whether top differs from parent.
	Nested() bool
}

// Document is the player frame's document.
type Document interface {
	QueryMedia(selector string) (dom.Media, error)
	Root() dom.Node
}

type Config struct {
	Selectors        []string
	RetryDelay       time.Duration
	MaxAttempts      int // 0 retries forever
	PollInterval     time.Duration
	AutoSkipInterval time.Duration
	SeekStep         float64 // seconds
}

func DefaultConfig() Config {
	return Config{
		Selectors: []string{
			"#player0",
			"video",
			"#velocity-player-package video",
			".video-player video",
			".vjs-tech",
		},
		RetryDelay:       300 * time.Millisecond,
		PollInterval:     1500 * time.Millisecond,
		AutoSkipInterval: time.Second,
		SeekStep:         10,
	}
}

// mediaEvents are the element events that trigger a snapshot.
var mediaEvents = []string{
	"play", "pause", "playing", "timeupdate", "seeked", "ended", "loadedmetadata", "durationchange",
}

type eventKind int

const (
	evMedia eventKind = iota
	evMutation
	evMessage
)

type event struct {
	kind eventKind
	msg  protocol.RelayMessage
}

type Observer struct {
	cfg    Config
	doc    Document
	relay  Relay
	logger zerolog.Logger
	now    func() time.Time

	events chan event

	// owned by the Run goroutine
	media    dom.Media
	last     string
	autoSkip bool
}

func New(cfg Config, doc Document, relay Relay, logger zerolog.Logger) *Observer {
	return &Observer{
		cfg:    cfg,
		doc:    doc,
		relay:  relay,
		logger: logger.With().Str("component", "observer").Logger(),
		now:    time.Now,
		events: make(chan event, 64),
	}
}

// NotifyMutation signals a structural DOM change.
func (o *Observer) NotifyMutation() {
	o.post(event{kind: evMutation})
}

// Receive accepts a cross-frame message addressed to the player frame.
func (o *Observer) Receive(msg protocol.RelayMessage) {
	o.post(event{kind: evMessage, msg: msg})
}

// post never blocks; a dropped event is covered by the next poll.
func (o *Observer) post(ev event) {
	select {
	case o.events <- ev:
	default:
	}
}

// Run locates the media element and relays its state until ctx is done. Never
// finding an element is a valid idle outcome.
func (o *Observer) Run(ctx context.Context) error {
	locate := time.NewTimer(0)
	defer locate.Stop()
	locateC := locate.C

	skip := time.NewTicker(o.cfg.AutoSkipInterval)
	defer skip.Stop()

	var poll *time.Ticker
	var pollC <-chan time.Time
	defer func() {
		if poll != nil {
			poll.Stop()
		}
	}()
	found := func() {
		locate.Stop()
		locateC = nil
		poll = time.NewTicker(o.cfg.PollInterval)
		pollC = poll.C
	}

	attempts := 0
	for {
		select {
		case <-ctx.Done():
			return nil

		case <-locateC:
			if o.locate() {
				found()
				continue
			}
			attempts++
			if o.cfg.MaxAttempts > 0 && attempts >= o.cfg.MaxAttempts {
				o.logger.Debug().Int("attempts", attempts).Msg("no media element, staying idle")
				locateC = nil
				continue
			}
			locate.Reset(o.cfg.RetryDelay)

		case <-pollC:
			o.emit(false)

		case <-skip.C:
			o.scanSkip()

		case ev := <-o.events:
			if ev.kind == evMutation && o.media == nil && o.locate() {
				found()
				continue
			}
			o.handle(ev)
		}
	}
}

// locate tries each selector in order and wires listeners on the first hit.
func (o *Observer) locate() bool {
	if o.media != nil {
		return true
	}
	for _, sel := range o.cfg.Selectors {
		m, err := o.doc.QueryMedia(sel)
		if err != nil || m == nil {
			continue
		}
		o.media = m
		for _, name := range mediaEvents {
			m.AddListener(name, func() { o.post(event{kind: evMedia}) })
		}
		o.logger.Info().Str("selector", sel).Msg("media element found")
		o.emit(false)
		return true
	}
	return false
}

func (o *Observer) handle(ev event) {
	switch ev.kind {
	case evMedia:
		o.emit(false)
	case evMutation:
		o.scanSkip()
	case evMessage:
		o.handleMessage(ev.msg)
	}
}

func (o *Observer) handleMessage(msg protocol.RelayMessage) {
	switch msg.Type {
	case protocol.TypeVideoControl:
		if msg.Source != protocol.SourceContentRelay {
			return
		}
		o.control(msg.Action, msg.Value)
	case protocol.TypeAutoSkip:
		if msg.Enabled == nil {
			return
		}
		o.autoSkip = *msg.Enabled
		o.logger.Debug().Bool("enabled", o.autoSkip).Msg("auto-skip toggled")
		o.scanSkip()
	}
}

// emit relays the current snapshot unless it serializes identically to the
// last one. force bypasses that check.
func (o *Observer) emit(force bool) {
	if o.media == nil {
		return
	}

	snap := playback.FromMedia(o.media)
	data, err := json.Marshal(snap)
	if err != nil {
		return
	}
	key := string(data)
	if !force && key == o.last {
		return
	}
	o.last = key

	msg := protocol.RelayMessage{
		Type:      protocol.TypeVideoState,
		Source:    protocol.SourceFrameRelay,
		Data:      &snap,
		Timestamp: o.now().UnixMilli(),
	}
	o.relay.PostParent(msg)
	if o.relay.Nested() {
		o.relay.PostTop(msg)
	}
}
