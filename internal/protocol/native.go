package protocol

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Native host channel message types.
const (
	HostPing           = "ping"
	HostPong           = "pong"
	HostSettingsUpdate = "settings_update"
	HostSetClientID    = "set_client_id"
	HostAnimeState     = "anime_state"
	HostDisconnect     = "disconnect"
	HostStatus         = "status"
)

// MaxFrameSize bounds a single native messaging frame.
const MaxFrameSize = 64 << 20

var ErrFrameTooLarge = errors.New("native message frame too large")

// HostMessage is the envelope for every non-state message on the host channel.
type HostMessage struct {
	Type      string    `json:"type"`
	Settings  *Settings `json:"settings,omitempty"`
	ClientID  string    `json:"clientId,omitempty"`
	Connected *bool     `json:"connected,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// WriteFrame writes v as a little-endian length-prefixed JSON frame.
func WriteFrame(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	if len(data) > MaxFrameSize {
		return ErrFrameTooLarge
	}

	buf := make([]byte, 4+len(data))
	binary.LittleEndian.PutUint32(buf, uint32(len(data)))
	copy(buf[4:], data)

	_, err = w.Write(buf)
	return err
}

// ReadFrame reads one frame. A zero-length frame yields "{}". io.EOF is returned
// only when the stream ends on a frame boundary; a partial header is an error.
func ReadFrame(r io.Reader) ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("read frame header: %w", err)
	}

	length := binary.LittleEndian.Uint32(header[:])
	if length == 0 {
		return []byte("{}"), nil
	}
	if length > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, fmt.Errorf("read frame body: %w", err)
	}
	return data, nil
}

// PeekType returns the "type" field of a JSON message.
func PeekType(data []byte) string {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return ""
	}
	return head.Type
}
