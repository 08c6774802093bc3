// Package host is the companion process loop: it reads framed messages from
// the browser on stdin and mirrors them into Discord rich presence.
package host

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/rs/zerolog"

	"animepresence/internal/discord"
	"animepresence/internal/protocol"
)

// Presence is the Discord side.
type Presence interface {
	Connect(ctx context.Context) error
	Connected() bool
	ClientID() string
	SetClientID(id string) bool
	SetActivity(a *discord.Activity) error
	ClearActivity() error
	Close() error
}

type Host struct {
	in       io.Reader
	out      io.Writer
	presence Presence
	builder  *discord.Builder
	interval time.Duration
	logger   zerolog.Logger
	now      func() time.Time

	settings   protocol.Settings
	lastUpdate time.Time
}

func New(in io.Reader, out io.Writer, presence Presence, interval time.Duration, logger zerolog.Logger) *Host {
	return &Host{
		in:       in,
		out:      out,
		presence: presence,
		builder:  discord.NewBuilder(),
		interval: interval,
		logger:   logger,
		now:      time.Now,
		settings: protocol.DefaultSettings(),
	}
}

// Run serves until stdin ends. Presence is cleared on the way out.
func (h *Host) Run(ctx context.Context) error {
	h.logger.Info().Msg("Native host starting")

	if err := h.presence.Connect(ctx); err != nil {
		h.logger.Warn().Err(err).Msg("Discord not running")
		h.sendStatus("Discord not running")
	} else {
		h.sendStatus("")
	}

	defer func() {
		h.logger.Info().Msg("Shutting down")
		h.clear()
		h.presence.Close()
	}()

	for {
		data, err := protocol.ReadFrame(h.in)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		h.handle(ctx, data)
	}
}

func (h *Host) handle(ctx context.Context, data []byte) {
	switch typ := protocol.PeekType(data); typ {
	case protocol.HostAnimeState:
		var state protocol.AnimeState
		if err := json.Unmarshal(data, &state); err != nil {
			h.logger.Warn().Err(err).Msg("Malformed anime state")
			return
		}
		h.update(ctx, state)
		h.sendStatus("")

	case protocol.HostSettingsUpdate:
		msg, err := decode(data)
		if err != nil || msg.Settings == nil {
			h.logger.Warn().Err(err).Msg("Malformed settings update")
			return
		}
		h.switchClient(ctx, msg.Settings.ClientID)
		h.settings = *msg.Settings

	case protocol.HostSetClientID:
		msg, err := decode(data)
		if err != nil {
			h.logger.Warn().Err(err).Msg("Malformed client id")
			return
		}
		h.switchClient(ctx, msg.ClientID)

	case protocol.HostPing:
		h.send(protocol.HostMessage{Type: protocol.HostPong})

	case protocol.HostDisconnect:
		h.clear()

	default:
		h.logger.Debug().Str("type", typ).Msg("Ignoring message")
	}
}

// update is rate limited to one activity per interval.
func (h *Host) update(ctx context.Context, state protocol.AnimeState) {
	if !h.presence.Connected() {
		if err := h.presence.Connect(ctx); err != nil {
			h.logger.Debug().Err(err).Msg("Discord still unavailable")
			return
		}
	}

	now := h.now()
	if now.Sub(h.lastUpdate) < h.interval {
		return
	}
	h.lastUpdate = now

	if state.Settings != nil {
		h.settings = *state.Settings
	}

	activity, clear := h.builder.Build(state, h.settings)
	switch {
	case clear:
		h.presence.ClearActivity()
	case activity != nil:
		if err := h.presence.SetActivity(activity); err != nil {
			h.logger.Warn().Err(err).Msg("Failed to set activity")
			return
		}
		if state.PageState == protocol.PageWatching {
			h.logger.Debug().Str("anime", state.Anime).Msg("Activity updated")
		}
	}
}

func (h *Host) switchClient(ctx context.Context, id string) {
	if !h.presence.SetClientID(id) {
		return
	}
	h.builder.Reset()
	if err := h.presence.Connect(ctx); err != nil {
		h.logger.Warn().Err(err).Msg("Reconnect with new client id failed")
	}
	h.sendStatus("")
}

func (h *Host) clear() {
	if h.presence.Connected() {
		if err := h.presence.ClearActivity(); err != nil {
			h.logger.Debug().Err(err).Msg("Failed to clear activity")
		}
	}
	h.builder.Reset()
}

func (h *Host) sendStatus(errMsg string) {
	connected := h.presence.Connected()
	h.send(protocol.HostMessage{Type: protocol.HostStatus, Connected: &connected, Error: errMsg})
}

func (h *Host) send(msg protocol.HostMessage) {
	if err := protocol.WriteFrame(h.out, msg); err != nil {
		h.logger.Error().Err(err).Msg("Failed to write to browser")
	}
}

func decode(data []byte) (protocol.HostMessage, error) {
	var msg protocol.HostMessage
	err := json.Unmarshal(data, &msg)
	return msg, err
}
