// Package bus is the runtime message bus between pages, the bridge and
// status displays. Delivery is at-most-once: a subscriber whose queue is
// full misses the message.
package bus

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"animepresence/internal/protocol"
)

type Role string

const (
	RolePage    Role = "page"
	RoleDisplay Role = "display"
)

func (r Role) Valid() bool {
	return r == RolePage || r == RoleDisplay
}

type Subscriber struct {
	ID   string
	Role Role
	URL  string

	queue   chan protocol.RuntimeMessage
	dropped atomic.Uint64
}

func (s *Subscriber) Messages() <-chan protocol.RuntimeMessage { return s.queue }

func (s *Subscriber) Dropped() uint64 { return s.dropped.Load() }

func (s *Subscriber) deliver(msg protocol.RuntimeMessage) bool {
	select {
	case s.queue <- msg:
		return true
	default:
		s.dropped.Add(1)
		return false
	}
}

type Hub struct {
	pattern   *Pattern
	queueSize int
	logger    zerolog.Logger

	mu   sync.RWMutex
	subs map[string]*Subscriber
}

func NewHub(pattern *Pattern, queueSize int, logger zerolog.Logger) *Hub {
	if queueSize <= 0 {
		queueSize = 32
	}
	return &Hub{
		pattern:   pattern,
		queueSize: queueSize,
		logger:    logger.With().Str("component", "bus").Logger(),
		subs:      make(map[string]*Subscriber),
	}
}

func (h *Hub) Subscribe(role Role, url string) *Subscriber {
	s := &Subscriber{
		ID:    uuid.NewString(),
		Role:  role,
		URL:   url,
		queue: make(chan protocol.RuntimeMessage, h.queueSize),
	}

	h.mu.Lock()
	h.subs[s.ID] = s
	h.mu.Unlock()

	h.logger.Debug().Str("id", s.ID).Str("role", string(role)).Str("url", url).Msg("Subscriber joined")
	return s
}

// Unsubscribe removes the subscriber and closes its queue.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := h.subs[id]
	if !ok {
		return
	}
	delete(h.subs, id)
	close(s.queue)

	h.logger.Debug().Str("id", id).Uint64("dropped", s.Dropped()).Msg("Subscriber left")
}

// Update changes a page's URL after navigation.
func (h *Hub) Update(id, url string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s, ok := h.subs[id]; ok {
		s.URL = url
	}
}

// BroadcastPages delivers msg to every page whose URL matches the site pattern.
func (h *Hub) BroadcastPages(msg protocol.RuntimeMessage) {
	h.deliver(msg, func(s *Subscriber) bool {
		return s.Role == RolePage && (h.pattern == nil || h.pattern.Match(s.URL))
	})
}

func (h *Hub) NotifyDisplay(msg protocol.RuntimeMessage) {
	h.deliver(msg, func(s *Subscriber) bool { return s.Role == RoleDisplay })
}

func (h *Hub) deliver(msg protocol.RuntimeMessage, match func(*Subscriber) bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	targets := lo.Filter(lo.Values(h.subs), func(s *Subscriber, _ int) bool { return match(s) })
	for _, s := range targets {
		if !s.deliver(msg) {
			h.logger.Debug().Str("id", s.ID).Str("type", msg.Type).Msg("Subscriber queue full, dropping")
		}
	}
}

func (h *Hub) Count(role Role) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return lo.CountBy(lo.Values(h.subs), func(s *Subscriber) bool { return s.Role == role })
}
