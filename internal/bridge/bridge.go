// Package bridge owns the connection to the native host and the user
// settings. A single goroutine handles every event, so the connection state
// is never shared.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"animepresence/internal/nativehost"
	"animepresence/internal/protocol"
	"animepresence/internal/storage"
)

var (
	ErrStopped        = errors.New("bridge stopped")
	ErrUnknownMessage = errors.New("unknown message type")
	ErrBadRequest     = errors.New("malformed request")
)

type Store interface {
	LoadPreferences() (storage.Preferences, error)
	SaveEnabled(enabled bool) error
	SaveSettings(patch protocol.SettingsPatch) error
}

// Broadcaster fans messages out to pages and status displays.
type Broadcaster interface {
	BroadcastPages(msg protocol.RuntimeMessage)
	NotifyDisplay(msg protocol.RuntimeMessage)
}

type Config struct {
	HostName          string
	KeepaliveInterval time.Duration
	ReconnectDelay    time.Duration
}

func DefaultConfig() Config {
	return Config{
		HostName:          "com.animepresence.discord",
		KeepaliveInterval: 25 * time.Second,
		ReconnectDelay:    5 * time.Second,
	}
}

type Bridge struct {
	cfg       Config
	connector nativehost.Connector
	store     Store
	bus       Broadcaster
	clock     Clock
	logger    zerolog.Logger

	events chan event
	done   chan struct{}

	// owned by the Run goroutine
	status       Status
	settings     protocol.Settings
	port         nativehost.Port
	conn         uint64
	reconnect    Timer
	reconnectGen uint64
	keepalive    Timer
	keepaliveGen uint64
}

func New(cfg Config, connector nativehost.Connector, store Store, bus Broadcaster, logger zerolog.Logger) *Bridge {
	return &Bridge{
		cfg:       cfg,
		connector: connector,
		store:     store,
		bus:       bus,
		clock:     realClock{},
		logger:    logger.With().Str("component", "bridge").Logger(),
		events:    make(chan event, 64),
		done:      make(chan struct{}),
		status:    initialStatus(),
		settings:  protocol.DefaultSettings(),
	}
}

func (b *Bridge) Run(ctx context.Context) error {
	defer close(b.done)

	b.start()
	defer b.shutdown()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-b.events:
			b.handle(ev)
		}
	}
}

// start loads persisted state and connects when enabled.
func (b *Bridge) start() {
	prefs, err := b.store.LoadPreferences()
	if err != nil {
		b.logger.Error().Err(err).Msg("Failed to load preferences, using defaults")
	} else {
		b.status.Enabled = prefs.Enabled
		b.settings = prefs.Settings()
	}

	b.logger.Info().
		Bool("enabled", b.status.Enabled).
		Str("host", b.cfg.HostName).
		Msg("Bridge started")

	b.connect()
}

func (b *Bridge) shutdown() {
	b.stopReconnect()
	b.stopKeepalive()
	if b.port != nil {
		b.sendNative(protocol.HostMessage{Type: protocol.HostDisconnect})
		b.port.Close()
		b.port = nil
	}
}

// Public API. Each call is queued for the Run goroutine.

func (b *Bridge) PublishState(ctx context.Context, msg protocol.RuntimeMessage) error {
	return b.send(ctx, animeStateEvent{msg: msg})
}

func (b *Bridge) Toggle(ctx context.Context, enabled bool) error {
	return b.send(ctx, toggleEvent{enabled: enabled})
}

func (b *Bridge) Retry(ctx context.Context) error {
	return b.send(ctx, retryEvent{})
}

func (b *Bridge) UpdateSettings(ctx context.Context, patch protocol.SettingsPatch) error {
	return b.send(ctx, settingsEvent{patch: patch})
}

func (b *Bridge) Control(ctx context.Context, action protocol.ControlAction, value *float64) error {
	if !action.Valid() {
		return fmt.Errorf("%w: unknown control action %q", ErrBadRequest, action)
	}
	return b.send(ctx, controlEvent{action: action, value: value})
}

func (b *Bridge) State(ctx context.Context) (Status, error) {
	reply := make(chan Status, 1)
	if err := b.send(ctx, getStateEvent{reply: reply}); err != nil {
		return Status{}, err
	}
	return await(ctx, b.done, reply)
}

func (b *Bridge) Settings(ctx context.Context) (protocol.Settings, error) {
	reply := make(chan protocol.Settings, 1)
	if err := b.send(ctx, getSettingsEvent{reply: reply}); err != nil {
		return protocol.Settings{}, err
	}
	return await(ctx, b.done, reply)
}

// Dispatch routes a runtime bus message. GET_STATE and GET_SETTINGS return
// the value to reply with; every other type returns nil.
func (b *Bridge) Dispatch(ctx context.Context, msg protocol.RuntimeMessage) (any, error) {
	switch msg.Type {
	case protocol.MsgAnimeState:
		return nil, b.PublishState(ctx, msg)
	case protocol.MsgGetState:
		return b.State(ctx)
	case protocol.MsgGetSettings:
		return b.Settings(ctx)
	case protocol.MsgToggleEnabled:
		if msg.Enabled == nil {
			return nil, fmt.Errorf("%w: enabled is required", ErrBadRequest)
		}
		return nil, b.Toggle(ctx, *msg.Enabled)
	case protocol.MsgRetryConnection:
		return nil, b.Retry(ctx)
	case protocol.MsgSettingsUpdate:
		if msg.Settings == nil {
			return nil, fmt.Errorf("%w: settings are required", ErrBadRequest)
		}
		return nil, b.UpdateSettings(ctx, *msg.Settings)
	case protocol.MsgVideoControl:
		return nil, b.Control(ctx, msg.Action, msg.Value)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessage, msg.Type)
	}
}

func (b *Bridge) send(ctx context.Context, ev event) error {
	select {
	case b.events <- ev:
		return nil
	case <-b.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post is used by timer and port callbacks.
func (b *Bridge) post(ev event) {
	select {
	case b.events <- ev:
	case <-b.done:
	}
}

func await[T any](ctx context.Context, done <-chan struct{}, reply <-chan T) (T, error) {
	var zero T
	select {
	case v := <-reply:
		return v, nil
	case <-done:
		return zero, ErrStopped
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func (b *Bridge) handle(ev event) {
	switch ev := ev.(type) {
	case animeStateEvent:
		b.forwardState(ev.msg)
	case getStateEvent:
		ev.reply <- b.status
	case getSettingsEvent:
		ev.reply <- b.settings
	case toggleEvent:
		b.toggle(ev.enabled)
	case retryEvent:
		b.retry()
	case settingsEvent:
		b.updateSettings(ev.patch)
	case controlEvent:
		b.bus.BroadcastPages(protocol.RuntimeMessage{
			Type:   protocol.MsgVideoControl,
			Action: ev.action,
			Value:  ev.value,
		})
	case hostMessageEvent:
		b.hostMessage(ev.conn, ev.data)
	case hostDisconnectEvent:
		b.hostDisconnected(ev.conn, ev.err)
	case reconnectEvent:
		b.reconnectFired(ev.gen)
	case keepaliveEvent:
		b.keepaliveFired(ev.gen)
	default:
		b.logger.Error().Str("event", fmt.Sprintf("%T", ev)).Msg("Unhandled bridge event")
	}
}

// connect is a no-op while a port is open or the bridge is disabled.
func (b *Bridge) connect() {
	if b.port != nil || !b.status.Enabled {
		return
	}

	b.conn++
	conn := b.conn
	port, err := b.connector.Connect(b.cfg.HostName, nativehost.Handler{
		OnMessage:    func(data []byte) { b.post(hostMessageEvent{conn: conn, data: data}) },
		OnDisconnect: func(err error) { b.post(hostDisconnectEvent{conn: conn, err: err}) },
	})
	if err != nil {
		b.logger.Warn().Err(err).Str("host", b.cfg.HostName).Msg("Native host unavailable")
		b.status.Connected = false
		b.status.Phase = PhaseNotInstalled
		b.status.NativeHostError = ErrorNotInstalled
		b.notifyDisplay()
		return
	}

	b.port = port
	b.status.Phase = PhaseConnected
	b.status.NativeHostError = ""
	b.startKeepalive()
	b.sendNative(protocol.HostMessage{Type: protocol.HostSettingsUpdate, Settings: &b.settings})

	b.logger.Info().Str("host", b.cfg.HostName).Msg("Native host connected")
	b.notifyDisplay()
}

func (b *Bridge) hostDisconnected(conn uint64, err error) {
	if b.port == nil || conn != b.conn {
		b.logger.Debug().Uint64("conn", conn).Msg("Ignoring disconnect from stale port")
		return
	}

	b.port = nil
	b.status.Connected = false
	b.stopKeepalive()

	if nativehost.IsNotFound(err) {
		b.logger.Warn().Err(err).Msg("Native host not installed")
		b.status.Phase = PhaseNotInstalled
		b.status.NativeHostError = ErrorNotInstalled
		b.notifyDisplay()
		return
	}

	b.logger.Info().Err(err).Dur("retry_in", b.cfg.ReconnectDelay).Msg("Native host disconnected")
	b.status.Phase = PhaseDisconnected
	b.status.NativeHostError = ""
	b.notifyDisplay()
	b.scheduleReconnect()
}

func (b *Bridge) hostMessage(conn uint64, data []byte) {
	if b.port == nil || conn != b.conn {
		return
	}

	switch protocol.PeekType(data) {
	case protocol.HostStatus:
		var msg protocol.HostMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			b.logger.Warn().Err(err).Msg("Malformed status from native host")
			return
		}
		b.status.Connected = msg.Connected != nil && *msg.Connected
		b.status.NativeHostError = ""
		b.notifyDisplay()
	case protocol.HostPong:
	default:
		b.logger.Debug().Str("type", protocol.PeekType(data)).Msg("Ignoring native host message")
	}
}

func (b *Bridge) toggle(enabled bool) {
	b.status.Enabled = enabled
	if err := b.store.SaveEnabled(enabled); err != nil {
		b.logger.Error().Err(err).Msg("Failed to persist enabled flag")
	}
	b.bus.BroadcastPages(protocol.RuntimeMessage{Type: protocol.MsgEnabledChanged, Enabled: &enabled})

	b.logger.Info().Bool("enabled", enabled).Msg("Presence toggled")

	if enabled {
		b.connect()
		return
	}

	b.closePort(true)
	b.stopReconnect()
	b.status.Connected = false
	b.status.NativeHostError = ""
	b.status.Phase = PhaseDisconnected
	b.notifyDisplay()
}

func (b *Bridge) retry() {
	b.status.NativeHostError = ""
	b.closePort(false)
	b.stopReconnect()
	b.status.Connected = false
	b.status.Phase = PhaseDisconnected

	b.connect()
	if b.port == nil && b.status.Phase == PhaseDisconnected {
		b.notifyDisplay()
	}
}

func (b *Bridge) closePort(polite bool) {
	b.stopKeepalive()
	if b.port == nil {
		return
	}
	if polite {
		b.sendNative(protocol.HostMessage{Type: protocol.HostDisconnect})
	}
	if err := b.port.Close(); err != nil {
		b.logger.Debug().Err(err).Msg("Closing native port")
	}
	b.port = nil
}

func (b *Bridge) updateSettings(patch protocol.SettingsPatch) {
	oldClientID := b.settings.ClientID
	b.settings = b.settings.Apply(patch)

	if err := b.store.SaveSettings(patch); err != nil {
		b.logger.Error().Err(err).Msg("Failed to persist settings")
	}

	b.bus.BroadcastPages(protocol.RuntimeMessage{Type: protocol.MsgSettingsChanged, Settings: &patch})

	settings := b.settings
	b.sendNative(protocol.HostMessage{Type: protocol.HostSettingsUpdate, Settings: &settings})
	if b.settings.ClientID != "" && b.settings.ClientID != oldClientID {
		b.sendNative(protocol.HostMessage{Type: protocol.HostSetClientID, ClientID: b.settings.ClientID})
	}
}

func (b *Bridge) forwardState(msg protocol.RuntimeMessage) {
	if len(msg.Data) > 0 {
		var state protocol.AnimeState
		if err := json.Unmarshal(msg.Data, &state); err != nil {
			b.logger.Warn().Err(err).Msg("Dropping malformed anime state")
		} else {
			settings := b.settings
			state.Type = protocol.HostAnimeState
			state.Settings = &settings
			b.sendNative(state)
		}
	}

	if msg.StateForPopup != nil {
		b.status.DisplayState = *msg.StateForPopup
		b.notifyDisplay()
	}
}

func (b *Bridge) sendNative(v any) {
	if b.port == nil {
		return
	}
	if err := b.port.Send(v); err != nil {
		b.logger.Debug().Err(err).Msg("Native send failed")
	}
}

func (b *Bridge) notifyDisplay() {
	data, err := json.Marshal(b.status)
	if err != nil {
		b.logger.Error().Err(err).Msg("Failed to encode status")
		return
	}
	b.bus.NotifyDisplay(protocol.RuntimeMessage{Type: protocol.MsgStateChanged, Data: data})
}

// Timers

func (b *Bridge) scheduleReconnect() {
	if b.reconnect != nil || !b.status.Enabled {
		return
	}
	b.reconnectGen++
	gen := b.reconnectGen
	b.reconnect = b.clock.AfterFunc(b.cfg.ReconnectDelay, func() { b.post(reconnectEvent{gen: gen}) })
}

func (b *Bridge) stopReconnect() {
	if b.reconnect == nil {
		return
	}
	b.reconnect.Stop()
	b.reconnect = nil
	b.reconnectGen++
}

func (b *Bridge) reconnectFired(gen uint64) {
	if b.reconnect == nil || gen != b.reconnectGen {
		return
	}
	b.reconnect = nil
	b.connect()
}

func (b *Bridge) startKeepalive() {
	b.stopKeepalive()
	b.keepaliveGen++
	b.armKeepalive()
}

func (b *Bridge) armKeepalive() {
	gen := b.keepaliveGen
	b.keepalive = b.clock.AfterFunc(b.cfg.KeepaliveInterval, func() { b.post(keepaliveEvent{gen: gen}) })
}

func (b *Bridge) stopKeepalive() {
	if b.keepalive == nil {
		return
	}
	b.keepalive.Stop()
	b.keepalive = nil
	b.keepaliveGen++
}

func (b *Bridge) keepaliveFired(gen uint64) {
	if b.keepalive == nil || gen != b.keepaliveGen || b.port == nil {
		return
	}
	b.sendNative(protocol.HostMessage{Type: protocol.HostPing})
	b.armKeepalive()
}
