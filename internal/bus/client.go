package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"animepresence/internal/protocol"
)

var ErrClientClosed = errors.New("runtime client closed")

// Client is the page or display side of the runtime bus. It satisfies the
// collector's Runtime interface.
type Client struct {
	conn   *websocket.Conn
	logger zerolog.Logger

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan protocol.RuntimeMessage
	closed  bool
}

// Dial connects to the runtime endpoint, e.g. ws://127.0.0.1:8765/api/v1/runtime.
func Dial(ctx context.Context, endpoint string, role Role, pageURL string, logger zerolog.Logger) (*Client, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse runtime endpoint: %w", err)
	}
	q := u.Query()
	q.Set("role", string(role))
	if pageURL != "" {
		q.Set("url", pageURL)
	}
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial runtime: %w", err)
	}

	return &Client{
		conn:    conn,
		logger:  logger.With().Str("component", "runtime-client").Logger(),
		pending: make(map[string]chan protocol.RuntimeMessage),
	}, nil
}

func (c *Client) Send(msg protocol.RuntimeMessage) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(msg)
}

// Request sends msg with a fresh id and waits for the reply. Listen must be
// running.
func (c *Client) Request(ctx context.Context, msg protocol.RuntimeMessage) (protocol.RuntimeMessage, error) {
	msg.ID = uuid.NewString()
	reply := make(chan protocol.RuntimeMessage, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return protocol.RuntimeMessage{}, ErrClientClosed
	}
	c.pending[msg.ID] = reply
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, msg.ID)
		c.mu.Unlock()
	}()

	if err := c.Send(msg); err != nil {
		return protocol.RuntimeMessage{}, err
	}

	select {
	case r, ok := <-reply:
		if !ok {
			return protocol.RuntimeMessage{}, ErrClientClosed
		}
		if r.Error != "" {
			return r, errors.New(r.Error)
		}
		return r, nil
	case <-ctx.Done():
		return protocol.RuntimeMessage{}, ctx.Err()
	}
}

// RequestInto is Request followed by decoding the reply payload into v.
func (c *Client) RequestInto(ctx context.Context, msg protocol.RuntimeMessage, v any) error {
	r, err := c.Request(ctx, msg)
	if err != nil {
		return err
	}
	return json.Unmarshal(r.Data, v)
}

// Listen reads until the connection ends or ctx is done. Replies resolve
// pending requests; every other message goes to fn.
func (c *Client) Listen(ctx context.Context, fn func(protocol.RuntimeMessage)) error {
	go func() {
		<-ctx.Done()
		c.Close()
	}()

	defer func() {
		c.mu.Lock()
		c.closed = true
		for id, ch := range c.pending {
			close(ch)
			delete(c.pending, id)
		}
		c.mu.Unlock()
	}()

	for {
		var msg protocol.RuntimeMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return fmt.Errorf("read runtime: %w", err)
		}

		if msg.Type == protocol.MsgReply {
			c.mu.Lock()
			ch, ok := c.pending[msg.ID]
			c.mu.Unlock()
			if ok {
				select {
				case ch <- msg:
				default:
				}
			}
			continue
		}

		if fn != nil {
			fn(msg)
		}
	}
}

func (c *Client) Close() error {
	c.writeMu.Lock()
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()
	return c.conn.Close()
}
