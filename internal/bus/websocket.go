package bus

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"animepresence/internal/protocol"
)

const (
	writeTimeout   = 10 * time.Second
	pingInterval   = 30 * time.Second
	pongTimeout    = 10 * time.Second
	requestTimeout = 5 * time.Second
	maxMessageSize = 1 << 20
)

// Dispatcher handles inbound runtime messages. A non-nil reply is sent back
// to requests that carry an id.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg protocol.RuntimeMessage) (any, error)
}

// Handler upgrades /runtime requests and pumps messages between the socket
// and the hub.
type Handler struct {
	hub        *Hub
	dispatcher Dispatcher
	upgrader   websocket.Upgrader
	logger     zerolog.Logger
}

func NewHandler(hub *Hub, dispatcher Dispatcher, logger zerolog.Logger) *Handler {
	return &Handler{
		hub:        hub,
		dispatcher: dispatcher,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: logger.With().Str("component", "runtime-ws").Logger(),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	role := Role(r.URL.Query().Get("role"))
	if role == "" {
		role = RolePage
	}
	if !role.Valid() {
		http.Error(w, "invalid role", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}

	sub := h.hub.Subscribe(role, r.URL.Query().Get("url"))
	replies := make(chan protocol.RuntimeMessage, 16)

	h.logger.Info().
		Str("id", sub.ID).
		Str("role", string(role)).
		Str("remote", r.RemoteAddr).
		Msg("Runtime client connected")

	go h.writeLoop(conn, sub, replies)
	h.readLoop(r.Context(), conn, sub, replies)

	h.hub.Unsubscribe(sub.ID)
	h.logger.Info().Str("id", sub.ID).Msg("Runtime client disconnected")
}

func (h *Handler) readLoop(ctx context.Context, conn *websocket.Conn, sub *Subscriber, replies chan<- protocol.RuntimeMessage) {
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pingInterval + pongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pingInterval + pongTimeout))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug().Err(err).Str("id", sub.ID).Msg("Runtime read failed")
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(pingInterval + pongTimeout))

		var msg protocol.RuntimeMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.logger.Warn().Err(err).Str("id", sub.ID).Msg("Malformed runtime message")
			continue
		}

		// pages report their URL on navigation through ANIME_STATE
		if sub.Role == RolePage && msg.Type == protocol.MsgAnimeState {
			if url := stateURL(msg); url != "" {
				h.hub.Update(sub.ID, url)
			}
		}

		reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
		reply, err := h.dispatcher.Dispatch(reqCtx, msg)
		cancel()

		if msg.ID == "" {
			if err != nil {
				h.logger.Warn().Err(err).Str("type", msg.Type).Msg("Runtime message rejected")
			}
			continue
		}

		var out protocol.RuntimeMessage
		if err != nil {
			out = protocol.ReplyError(msg.ID, err)
		} else if out, err = protocol.Reply(msg.ID, reply); err != nil {
			out = protocol.ReplyError(msg.ID, err)
		}

		select {
		case replies <- out:
		default:
			h.logger.Debug().Str("id", sub.ID).Msg("Reply queue full, dropping")
		}
	}
}

func (h *Handler) writeLoop(conn *websocket.Conn, sub *Subscriber, replies <-chan protocol.RuntimeMessage) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	write := func(msg protocol.RuntimeMessage) bool {
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteJSON(msg); err != nil {
			h.logger.Debug().Err(err).Str("id", sub.ID).Msg("Runtime write failed")
			return false
		}
		return true
	}

	for {
		select {
		case msg, ok := <-sub.Messages():
			if !ok {
				conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if !write(msg) {
				return
			}
		case msg := <-replies:
			if !write(msg) {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func stateURL(msg protocol.RuntimeMessage) string {
	if len(msg.Data) == 0 {
		return ""
	}
	var head struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(msg.Data, &head); err != nil {
		return ""
	}
	return head.URL
}
