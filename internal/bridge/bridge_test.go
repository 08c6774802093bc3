package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"animepresence/internal/nativehost"
	"animepresence/internal/protocol"
)

type harness struct {
	b     *Bridge
	conn  *fakeConnector
	store *fakeStore
	bus   *fakeBus
	clock *manualClock
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		conn:  &fakeConnector{},
		store: newFakeStore(),
		bus:   &fakeBus{},
		clock: &manualClock{},
	}
	h.b = New(DefaultConfig(), h.conn, h.store, h.bus, zerolog.Nop())
	h.b.clock = h.clock
	return h
}

// drain processes events posted by callbacks.
func (h *harness) drain() {
	for {
		select {
		case ev := <-h.b.events:
			h.b.handle(ev)
		default:
			return
		}
	}
}

func (h *harness) status() Status { return h.b.status }

func TestStartConnectsWhenEnabled(t *testing.T) {
	h := newHarness(t)
	h.b.start()

	require.Len(t, h.conn.ports, 1)
	assert.Equal(t, PhaseConnected, h.status().Phase)
	assert.Equal(t, []string{protocol.HostSettingsUpdate}, h.conn.current().types())
	assert.Len(t, h.clock.active(25*time.Second), 1)
}

func TestStartStaysIdleWhenDisabled(t *testing.T) {
	h := newHarness(t)
	h.store.prefs.Enabled = false
	h.b.start()

	assert.Empty(t, h.conn.ports)
	assert.False(t, h.status().Enabled)
	assert.Equal(t, PhaseDisconnected, h.status().Phase)
}

func TestStartLoadsPersistedSettings(t *testing.T) {
	h := newHarness(t)
	h.store.prefs.ClientID = "42"
	h.store.prefs.IdleStatus = "Resting"
	h.b.start()

	assert.Equal(t, "42", h.b.settings.ClientID)
	assert.Equal(t, "Resting", h.b.settings.IdleStatus)
}

func TestConnectErrorIsNotInstalled(t *testing.T) {
	h := newHarness(t)
	h.conn.err = nativehost.ErrNotFound
	h.b.start()

	assert.Equal(t, PhaseNotInstalled, h.status().Phase)
	assert.Equal(t, ErrorNotInstalled, h.status().NativeHostError)
	assert.Empty(t, h.clock.active(5*time.Second), "no automatic reconnect")
}

func TestNotFoundDisconnectSchedulesNothing(t *testing.T) {
	h := newHarness(t)
	h.b.start()

	h.conn.handlers[0].OnDisconnect(errors.New("Specified native messaging host not found."))
	h.drain()

	assert.Equal(t, PhaseNotInstalled, h.status().Phase)
	assert.Empty(t, h.clock.active(5*time.Second))
	assert.Empty(t, h.clock.active(25*time.Second), "keepalive cleared")
}

func TestTransientDisconnectSchedulesOneReconnect(t *testing.T) {
	h := newHarness(t)
	h.b.start()
	require.Len(t, h.clock.active(25*time.Second), 1)

	h.conn.handlers[0].OnDisconnect(nativehost.ErrExited)
	h.drain()

	assert.Equal(t, PhaseDisconnected, h.status().Phase)
	assert.Empty(t, h.status().NativeHostError)
	assert.Empty(t, h.clock.active(25*time.Second), "keepalive cleared first")
	require.Len(t, h.clock.active(5*time.Second), 1)

	// a duplicate notice from the same port changes nothing
	h.conn.handlers[0].OnDisconnect(nativehost.ErrExited)
	h.drain()
	assert.Len(t, h.clock.active(5*time.Second), 1)

	h.clock.active(5 * time.Second)[0].fire()
	h.drain()

	assert.Len(t, h.conn.ports, 2)
	assert.Equal(t, PhaseConnected, h.status().Phase)
	assert.Len(t, h.clock.active(25*time.Second), 1)
}

func TestKeepalivePings(t *testing.T) {
	h := newHarness(t)
	h.b.start()
	port := h.conn.current()

	for range 3 {
		timers := h.clock.active(25 * time.Second)
		require.Len(t, timers, 1)
		timers[0].fire()
		h.drain()
	}

	assert.Equal(t, []string{
		protocol.HostSettingsUpdate,
		protocol.HostPing, protocol.HostPing, protocol.HostPing,
	}, port.types())
}

func TestStaleKeepaliveIgnored(t *testing.T) {
	h := newHarness(t)
	h.b.start()
	old := h.clock.active(25 * time.Second)[0]

	h.b.handle(retryEvent{})
	port := h.conn.current()

	old.fire()
	h.drain()

	assert.NotContains(t, port.types(), protocol.HostPing)
}

func TestDisableTearsDown(t *testing.T) {
	h := newHarness(t)
	h.b.start()
	port := h.conn.current()
	h.conn.handlers[0].OnMessage([]byte(`{"type":"status","connected":true}`))
	h.drain()
	require.True(t, h.status().Connected)

	h.b.handle(toggleEvent{enabled: false})

	assert.True(t, port.closed)
	assert.Equal(t, protocol.HostDisconnect, protocol.PeekType(port.last()))
	assert.False(t, h.status().Connected)
	assert.False(t, h.status().Enabled)
	assert.Empty(t, h.clock.active(25*time.Second))
	assert.Empty(t, h.clock.active(5*time.Second))
	assert.Len(t, h.bus.pagesOfType(protocol.MsgEnabledChanged), 1)
	assert.Equal(t, []bool{false}, h.store.enabled)
}

func TestDisableCancelsPendingReconnect(t *testing.T) {
	h := newHarness(t)
	h.b.start()
	h.conn.handlers[0].OnDisconnect(nativehost.ErrExited)
	h.drain()
	pending := h.clock.active(5 * time.Second)
	require.Len(t, pending, 1)

	h.b.handle(toggleEvent{enabled: false})
	assert.Empty(t, h.clock.active(5*time.Second))

	// a timer that already fired before the stop is ignored
	pending[0].f()
	h.drain()
	assert.Len(t, h.conn.ports, 1)
}

func TestEnableConnects(t *testing.T) {
	h := newHarness(t)
	h.store.prefs.Enabled = false
	h.b.start()

	h.b.handle(toggleEvent{enabled: true})

	assert.Len(t, h.conn.ports, 1)
	msgs := h.bus.pagesOfType(protocol.MsgEnabledChanged)
	require.Len(t, msgs, 1)
	assert.True(t, *msgs[0].Enabled)
}

func TestConnectIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.b.start()
	h.b.connect()
	h.b.handle(toggleEvent{enabled: true})

	assert.Len(t, h.conn.ports, 1)
	assert.Len(t, h.clock.active(25*time.Second), 1)
}

func TestRetryFromNotInstalled(t *testing.T) {
	h := newHarness(t)
	h.conn.err = nativehost.ErrNotFound
	h.b.start()
	require.Equal(t, PhaseNotInstalled, h.status().Phase)

	h.conn.err = nil
	h.b.handle(retryEvent{})

	assert.Equal(t, PhaseConnected, h.status().Phase)
	assert.Empty(t, h.status().NativeHostError)
}

func TestRetryReplacesStalePort(t *testing.T) {
	h := newHarness(t)
	h.b.start()
	stale := h.conn.current()

	h.b.handle(retryEvent{})

	assert.True(t, stale.closed)
	assert.Len(t, h.conn.ports, 2)

	// the replaced port's late disconnect must not tear down the new one
	h.conn.handlers[0].OnDisconnect(nativehost.ErrExited)
	h.drain()
	assert.Equal(t, PhaseConnected, h.status().Phase)
	assert.Empty(t, h.clock.active(5*time.Second))
}

func TestStatusMessageSetsConnected(t *testing.T) {
	h := newHarness(t)
	h.b.start()

	h.conn.handlers[0].OnMessage([]byte(`{"type":"status","connected":true}`))
	h.drain()

	assert.True(t, h.status().Connected)
	last := h.bus.display[len(h.bus.display)-1]
	assert.Equal(t, protocol.MsgStateChanged, last.Type)

	var st Status
	require.NoError(t, json.Unmarshal(last.Data, &st))
	assert.True(t, st.Connected)
	assert.Equal(t, PhaseConnected, st.Phase)
}

func TestAnimeStateForwardedWithSettings(t *testing.T) {
	h := newHarness(t)
	h.b.start()

	state := protocol.AnimeState{
		Type:      protocol.HostAnimeState,
		PageState: protocol.PageWatching,
		Anime:     "Frieren",
		Timestamp: 1,
	}
	msg, err := protocol.NewAnimeStateMessage(state)
	require.NoError(t, err)

	h.b.handle(animeStateEvent{msg: msg})
	h.b.handle(animeStateEvent{msg: msg})

	port := h.conn.current()
	assert.Equal(t, []string{protocol.HostSettingsUpdate, protocol.HostAnimeState, protocol.HostAnimeState}, port.types())

	var sent protocol.AnimeState
	require.NoError(t, json.Unmarshal(port.last(), &sent))
	require.NotNil(t, sent.Settings)
	assert.Equal(t, protocol.DefaultIdleStatus, sent.Settings.IdleStatus)
	assert.Equal(t, "Frieren", h.status().Anime)
	assert.Equal(t, protocol.PageWatching, h.status().PageState)
}

func TestAnimeStateDroppedWithoutPort(t *testing.T) {
	h := newHarness(t)
	h.store.prefs.Enabled = false
	h.b.start()

	msg, err := protocol.NewAnimeStateMessage(protocol.AnimeState{PageState: protocol.PageIdle})
	require.NoError(t, err)
	h.b.handle(animeStateEvent{msg: msg})

	assert.Empty(t, h.conn.ports)
	assert.Equal(t, protocol.PageIdle, h.status().PageState)
}

func TestSettingsUpdate(t *testing.T) {
	h := newHarness(t)
	h.store.prefs.ClientID = "111"
	h.b.start()
	port := h.conn.current()

	off := false
	h.b.handle(settingsEvent{patch: protocol.SettingsPatch{ShowPlayState: &off}})

	idle := "x"
	h.b.handle(settingsEvent{patch: protocol.SettingsPatch{IdleStatus: &idle}})

	assert.True(t, h.b.settings.ShowProgressBar)
	assert.False(t, h.b.settings.ShowPlayState)
	assert.Equal(t, "x", h.b.settings.IdleStatus)
	assert.Equal(t, "111", h.b.settings.ClientID)
	assert.Len(t, h.store.patches, 2)

	changed := h.bus.pagesOfType(protocol.MsgSettingsChanged)
	require.Len(t, changed, 2)
	assert.Nil(t, changed[1].Settings.ShowPlayState, "broadcast carries only the delta")
	assert.Equal(t, "x", *changed[1].Settings.IdleStatus)

	assert.NotContains(t, port.types(), protocol.HostSetClientID)
}

func TestClientIDChangeNotifiesHost(t *testing.T) {
	h := newHarness(t)
	h.b.start()
	port := h.conn.current()

	id := "999"
	h.b.handle(settingsEvent{patch: protocol.SettingsPatch{ClientID: &id}})
	assert.Equal(t, []string{
		protocol.HostSettingsUpdate,
		protocol.HostSettingsUpdate,
		protocol.HostSetClientID,
	}, port.types())

	var msg protocol.HostMessage
	require.NoError(t, json.Unmarshal(port.last(), &msg))
	assert.Equal(t, "999", msg.ClientID)

	// same id again, and clearing it, send no extra notice
	h.b.handle(settingsEvent{patch: protocol.SettingsPatch{ClientID: &id}})
	empty := ""
	h.b.handle(settingsEvent{patch: protocol.SettingsPatch{ClientID: &empty}})
	assert.Len(t, port.types(), 5)
	assert.NotEqual(t, protocol.HostSetClientID, protocol.PeekType(port.last()))
}

func TestControlBroadcastToPages(t *testing.T) {
	h := newHarness(t)
	h.b.start()

	v := 1.5
	h.b.handle(controlEvent{action: protocol.ActionSetSpeed, value: &v})

	msgs := h.bus.pagesOfType(protocol.MsgVideoControl)
	require.Len(t, msgs, 1)
	assert.Equal(t, protocol.ActionSetSpeed, msgs[0].Action)
	assert.Equal(t, 1.5, *msgs[0].Value)
}

func TestRunServesRequests(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())

	errc := make(chan error, 1)
	go func() { errc <- h.b.Run(ctx) }()

	st, err := h.b.State(ctx)
	require.NoError(t, err)
	assert.True(t, st.Enabled)
	assert.Equal(t, PhaseConnected, st.Phase)

	reply, err := h.b.Dispatch(ctx, protocol.RuntimeMessage{Type: protocol.MsgGetSettings})
	require.NoError(t, err)
	assert.Equal(t, protocol.DefaultIdleStatus, reply.(protocol.Settings).IdleStatus)

	_, err = h.b.Dispatch(ctx, protocol.RuntimeMessage{Type: "NOPE"})
	assert.ErrorIs(t, err, ErrUnknownMessage)

	_, err = h.b.Dispatch(ctx, protocol.RuntimeMessage{Type: protocol.MsgToggleEnabled})
	assert.ErrorIs(t, err, ErrBadRequest)

	assert.ErrorIs(t, h.b.Control(ctx, "rewind", nil), ErrBadRequest)

	cancel()
	require.NoError(t, <-errc)

	_, err = h.b.State(context.Background())
	assert.ErrorIs(t, err, ErrStopped)
}
