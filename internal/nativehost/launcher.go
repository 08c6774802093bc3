// Package nativehost opens the native messaging channel to the companion
// process: it resolves the host manifest, starts the executable and speaks
// length-prefixed JSON over its stdin/stdout.
package nativehost

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"animepresence/internal/protocol"
)

var (
	ErrNotFound  = errors.New("specified native messaging host not found")
	ErrForbidden = errors.New("access to the specified native messaging host is forbidden")
	ErrExited    = errors.New("native host has exited")
	ErrClosed    = errors.New("native port closed")
)

// IsNotFound reports whether err means the host is not installed.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNotFound) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "not found")
}

// Port is an open channel to the host.
type Port interface {
	Send(v any) error
	Close() error
}

// Handler receives inbound frames and the disconnect notice. OnDisconnect is
// called at most once and never after a local Close.
type Handler struct {
	OnMessage    func(data []byte)
	OnDisconnect func(err error)
}

type Connector interface {
	Connect(name string, h Handler) (Port, error)
}

type Launcher struct {
	dirs   []string
	origin string
	grace  time.Duration
	logger zerolog.Logger
}

func NewLauncher(dirs []string, origin string, logger zerolog.Logger) *Launcher {
	return &Launcher{
		dirs:   dirs,
		origin: origin,
		grace:  2 * time.Second,
		logger: logger.With().Str("component", "nativehost").Logger(),
	}
}

func (l *Launcher) Connect(name string, h Handler) (Port, error) {
	m, err := FindManifest(l.dirs, name)
	if err != nil {
		return nil, err
	}
	if !m.Allows(l.origin) {
		return nil, ErrForbidden
	}

	cmd := exec.Command(m.Executable(), l.origin)
	cmd.Stderr = l.logger.With().Str("host", name).Logger()

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}

	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %v", ErrNotFound, err)
		}
		return nil, fmt.Errorf("start native host: %w", err)
	}

	p := &processPort{
		cmd:    cmd,
		stdin:  stdin,
		grace:  l.grace,
		logger: l.logger,
	}

	l.logger.Info().
		Str("host", name).
		Str("path", m.Executable()).
		Int("pid", cmd.Process.Pid).
		Msg("Native host started")

	go p.readLoop(stdout, h)

	return p, nil
}

type processPort struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	grace  time.Duration
	logger zerolog.Logger

	mu     sync.Mutex
	closed atomic.Bool
	exited atomic.Bool
}

func (p *processPort) Send(v any) error {
	if p.closed.Load() {
		return ErrClosed
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return protocol.WriteFrame(p.stdin, v)
}

// Close ends stdin so the host can exit on its own; it is killed if still
// running after the grace period.
func (p *processPort) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	p.mu.Lock()
	err := p.stdin.Close()
	p.mu.Unlock()

	time.AfterFunc(p.grace, func() {
		if !p.exited.Load() {
			p.cmd.Process.Kill()
		}
	})
	return err
}

func (p *processPort) readLoop(r io.Reader, h Handler) {
	var readErr error
	for {
		data, err := protocol.ReadFrame(r)
		if err != nil {
			readErr = err
			break
		}
		if h.OnMessage != nil {
			h.OnMessage(data)
		}
	}

	waitErr := p.cmd.Wait()
	p.exited.Store(true)

	if p.closed.Load() {
		return
	}

	err := ErrExited
	switch {
	case !errors.Is(readErr, io.EOF):
		err = fmt.Errorf("read native message: %w", readErr)
	case waitErr != nil:
		err = fmt.Errorf("%w: %v", ErrExited, waitErr)
	}

	p.logger.Warn().Err(err).Msg("Native host disconnected")
	if h.OnDisconnect != nil {
		h.OnDisconnect(err)
	}
}
