// Package delivery fans events out to the clients connected to this
// instance.
package delivery

import (
	"sync"

	"github.com/yndnr/chatmesh-go/internal/telemetry/logger"
	"github.com/yndnr/chatmesh-go/internal/telemetry/metric"
)

// DefaultBufferSize is the per-subscriber queue length.
const DefaultBufferSize = 64

// Event is one delivered event.
type Event struct {
	Name    string
	Payload any
}

// Subscriber is one connected client stream. It receives events for its
// room and for its user.
type Subscriber struct {
	RoomID string
	UserID string

	ch   chan Event
	once sync.Once
}

// Events returns the subscriber's queue. It is closed by Leave.
func (s *Subscriber) Events() <-chan Event {
	return s.ch
}

// Hub tracks local subscribers by room and by user. Delivery never blocks:
// an event for a subscriber whose queue is full is dropped for that
// subscriber only.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*Subscriber]struct{}
	users map[string]map[*Subscriber]struct{}

	bufferSize int
	metrics    *metric.Registry
	log        logger.Logger
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithBufferSize sets the per-subscriber queue length.
func WithBufferSize(n int) HubOption {
	return func(h *Hub) {
		if n > 0 {
			h.bufferSize = n
		}
	}
}

// WithMetrics sets the metrics registry and registers the subscriber gauge.
func WithMetrics(m *metric.Registry) HubOption {
	return func(h *Hub) { h.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) HubOption {
	return func(h *Hub) { h.log = l }
}

// NewHub creates an empty Hub.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		rooms:      make(map[string]map[*Subscriber]struct{}),
		users:      make(map[string]map[*Subscriber]struct{}),
		bufferSize: DefaultBufferSize,
		log:        logger.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.log = h.log.With("component", "delivery")
	if h.metrics == nil {
		h.metrics = metric.NewRegistry()
	}
	if err := h.metrics.GaugeFunc("delivery", "subscribers", "Client streams connected to this instance.",
		func() float64 { return float64(h.Count()) }); err != nil {
		h.log.Warn("subscriber gauge not registered", "error", err)
	}
	return h
}

// Join adds a subscriber for userID in roomID. An empty roomID receives
// only user-addressed events.
func (h *Hub) Join(roomID, userID string) *Subscriber {
	sub := &Subscriber{RoomID: roomID, UserID: userID, ch: make(chan Event, h.bufferSize)}

	h.mu.Lock()
	defer h.mu.Unlock()
	if roomID != "" {
		add(h.rooms, roomID, sub)
	}
	if userID != "" {
		add(h.users, userID, sub)
	}
	h.log.Debug("subscriber joined", "room_id", roomID, "user_id", userID)
	return sub
}

// Leave removes sub and closes its queue. It is idempotent.
func (h *Hub) Leave(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	remove(h.rooms, sub.RoomID, sub)
	remove(h.users, sub.UserID, sub)
	sub.once.Do(func() { close(sub.ch) })
}

// DeliverToRoom queues an event for every subscriber in roomID.
func (h *Hub) DeliverToRoom(roomID, event string, payload any) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	h.fanOut(h.rooms[roomID], Event{Name: event, Payload: payload})
}

// DeliverToUser queues an event for every stream of userID.
func (h *Hub) DeliverToUser(userID, event string, payload any) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	h.fanOut(h.users[userID], Event{Name: event, Payload: payload})
}

// fanOut must be called with h.mu held.
func (h *Hub) fanOut(set map[*Subscriber]struct{}, ev Event) {
	for sub := range set {
		select {
		case sub.ch <- ev:
		default:
			h.metrics.DeliveriesDropped.Inc()
			h.log.Debug("subscriber queue full, event dropped", "room_id", sub.RoomID, "user_id", sub.UserID, "event", ev.Name)
		}
	}
}

// Count returns the number of connected subscribers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	seen := make(map[*Subscriber]struct{})
	for _, set := range h.rooms {
		for sub := range set {
			seen[sub] = struct{}{}
		}
	}
	for _, set := range h.users {
		for sub := range set {
			seen[sub] = struct{}{}
		}
	}
	return len(seen)
}

func add(index map[string]map[*Subscriber]struct{}, key string, sub *Subscriber) {
	set, ok := index[key]
	if !ok {
		set = make(map[*Subscriber]struct{})
		index[key] = set
	}
	set[sub] = struct{}{}
}

func remove(index map[string]map[*Subscriber]struct{}, key string, sub *Subscriber) {
	set, ok := index[key]
	if !ok {
		return
	}
	delete(set, sub)
	if len(set) == 0 {
		delete(index, key)
	}
}
