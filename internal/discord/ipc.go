// Package discord talks to the local Discord client over its IPC socket and
// builds rich presence activities.
package discord

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	retry "github.com/avast/retry-go/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// IPC opcodes.
const (
	OpHandshake uint32 = 0
	OpFrame     uint32 = 1
	OpClose     uint32 = 2
)

const maxPayload = 64 << 10

var (
	ErrNotConnected = errors.New("discord: not connected")
	ErrNoClientID   = errors.New("discord: no client id")
)

// PipePath returns the IPC socket path: the first of XDG_RUNTIME_DIR, TMPDIR,
// TMP, TEMP that is set, else /tmp.
func PipePath() string {
	for _, env := range []string{"XDG_RUNTIME_DIR", "TMPDIR", "TMP", "TEMP"} {
		if dir := os.Getenv(env); dir != "" {
			return filepath.Join(dir, "discord-ipc-0")
		}
	}
	return "/tmp/discord-ipc-0"
}

func WriteFrame(w io.Writer, op uint32, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode ipc payload: %w", err)
	}
	buf := make([]byte, 8+len(data))
	binary.LittleEndian.PutUint32(buf[0:4], op)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(data)))
	copy(buf[8:], data)
	_, err = w.Write(buf)
	return err
}

func ReadFrame(r io.Reader) (uint32, json.RawMessage, error) {
	var header [8]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return 0, nil, err
	}
	op := binary.LittleEndian.Uint32(header[0:4])
	length := binary.LittleEndian.Uint32(header[4:8])
	if length > maxPayload {
		return 0, nil, fmt.Errorf("ipc frame of %d bytes exceeds limit", length)
	}
	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return 0, nil, err
	}
	return op, data, nil
}

type command struct {
	Cmd   string `json:"cmd"`
	Args  any    `json:"args"`
	Nonce string `json:"nonce"`
}

type activityArgs struct {
	PID      int       `json:"pid"`
	Activity *Activity `json:"activity"`
}

type response struct {
	Cmd  string          `json:"cmd"`
	Evt  string          `json:"evt"`
	Data json.RawMessage `json:"data"`
}

type Client struct {
	path     string
	attempts uint
	delay    time.Duration
	timeout  time.Duration
	logger   zerolog.Logger

	mu       sync.Mutex
	clientID string
	conn     net.Conn
}

func NewClient(clientID, path string, logger zerolog.Logger) *Client {
	if path == "" {
		path = PipePath()
	}
	return &Client{
		path:     path,
		attempts: 3,
		delay:    500 * time.Millisecond,
		timeout:  5 * time.Second,
		clientID: clientID,
		logger:   logger.With().Str("component", "discord").Logger(),
	}
}

func (c *Client) ClientID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clientID
}

func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Connect dials the socket and performs the handshake, retrying a few times.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return nil
	}
	if c.clientID == "" {
		return ErrNoClientID
	}

	return retry.New(
		retry.Attempts(c.attempts),
		retry.Delay(c.delay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
	).Do(func() error {
		conn, err := (&net.Dialer{Timeout: c.timeout}).DialContext(ctx, "unix", c.path)
		if err != nil {
			return err
		}
		if err := c.handshake(conn); err != nil {
			conn.Close()
			return err
		}
		c.conn = conn
		c.logger.Info().Str("path", c.path).Msg("Connected to Discord")
		return nil
	})
}

func (c *Client) handshake(conn net.Conn) error {
	conn.SetDeadline(time.Now().Add(c.timeout))
	defer conn.SetDeadline(time.Time{})

	if err := WriteFrame(conn, OpHandshake, map[string]any{"v": 1, "client_id": c.clientID}); err != nil {
		return fmt.Errorf("handshake: %w", err)
	}
	op, data, err := ReadFrame(conn)
	if err != nil {
		return fmt.Errorf("handshake: %w", err)
	}
	if op == OpClose {
		return fmt.Errorf("handshake rejected: %s", data)
	}
	return nil
}

// SetClientID switches applications; the connection is dropped so the next
// Connect handshakes with the new id.
func (c *Client) SetClientID(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if id == "" || id == c.clientID {
		return false
	}
	c.closeLocked()
	c.clientID = id
	c.logger.Info().Str("client_id", id).Msg("Switching client id")
	return true
}

func (c *Client) SetActivity(a *Activity) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return ErrNotConnected
	}

	cmd := command{
		Cmd:   "SET_ACTIVITY",
		Args:  activityArgs{PID: os.Getpid(), Activity: a},
		Nonce: uuid.NewString(),
	}

	c.conn.SetDeadline(time.Now().Add(c.timeout))
	defer func() {
		if c.conn != nil {
			c.conn.SetDeadline(time.Time{})
		}
	}()

	if err := WriteFrame(c.conn, OpFrame, cmd); err != nil {
		c.closeLocked()
		return fmt.Errorf("set activity: %w", err)
	}
	op, data, err := ReadFrame(c.conn)
	if err != nil {
		c.closeLocked()
		return fmt.Errorf("set activity: %w", err)
	}
	if op == OpClose {
		c.closeLocked()
		return fmt.Errorf("discord closed the connection: %s", data)
	}

	var resp response
	if err := json.Unmarshal(data, &resp); err == nil && resp.Evt == "ERROR" {
		return fmt.Errorf("set activity rejected: %s", resp.Data)
	}
	return nil
}

func (c *Client) ClearActivity() error {
	return c.SetActivity(nil)
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
	return nil
}

func (c *Client) closeLocked() {
	if c.conn == nil {
		return
	}
	c.conn.Close()
	c.conn = nil
}
