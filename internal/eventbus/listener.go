package eventbus

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/yndnr/chatmesh-go/internal/core/domain"
	"github.com/yndnr/chatmesh-go/internal/sharedstore"
	"github.com/yndnr/chatmesh-go/internal/telemetry/logger"
	"github.com/yndnr/chatmesh-go/internal/telemetry/metric"
)

// Deliverer pushes an event to the clients connected to this instance.
// Implementations must not block.
type Deliverer interface {
	DeliverToRoom(roomID, event string, payload any)
	DeliverToUser(userID, event string, payload any)
}

// Drop reasons for the events_dropped_total metric.
const (
	dropDecode  = "decode"
	dropUnknown = "unknown_type"
	dropPanic   = "panic"
	dropNoRoute = "no_route"
)

// ErrListenerStarted is returned by a second Start.
var ErrListenerStarted = errors.New("eventbus: listener already started")

// Listener subscribes to every event topic and dispatches received events
// to a Deliverer.
type Listener struct {
	store     sharedstore.Store
	deliverer Deliverer
	metrics   *metric.Registry
	log       logger.Logger

	mu      sync.Mutex
	started bool
	subs    []sharedstore.Subscription
}

// NewListener creates a Listener. Call Start once the deliverer is ready.
func NewListener(store sharedstore.Store, deliverer Deliverer, metrics *metric.Registry, log logger.Logger) *Listener {
	if metrics == nil {
		metrics = metric.NewRegistry()
	}
	if log == nil {
		log = logger.Default()
	}
	return &Listener{
		store:     store,
		deliverer: deliverer,
		metrics:   metrics,
		log:       log.With("component", "eventbus"),
	}
}

// Start subscribes once per topic. Subscriptions stay active until ctx is
// done or Close is called. If any subscription fails, those already made
// are closed and the error is returned.
func (l *Listener) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.started {
		return ErrListenerStarted
	}

	topics := domain.AllTopics()
	subs := make([]sharedstore.Subscription, len(topics))

	var g errgroup.Group
	for i, topic := range topics {
		g.Go(func() error {
			sub, err := l.store.Subscribe(ctx, topic, l.handle)
			if err != nil {
				return fmt.Errorf("subscribe %s: %w", topic, err)
			}
			subs[i] = sub
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, sub := range subs {
			if sub != nil {
				_ = sub.Close()
			}
		}
		l.log.Error("event listener start failed", "error", err)
		return err
	}

	l.subs = subs
	l.started = true
	l.log.Info("event listener started", "topics", topics)
	return nil
}

// Close stops every subscription.
func (l *Listener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	var errs []error
	for _, sub := range l.subs {
		if err := sub.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	l.subs = nil
	return errors.Join(errs...)
}

// handle processes one raw message. A failure affects only that message.
func (l *Listener) handle(ctx context.Context, data []byte) {
	defer func() {
		if r := recover(); r != nil {
			l.metrics.EventsDropped.WithLabelValues(dropPanic).Inc()
			l.log.Error("event delivery panicked", "panic", r)
		}
	}()

	env, err := domain.DecodeEnvelope(data)
	if err != nil {
		l.metrics.EventsDropped.WithLabelValues(dropDecode).Inc()
		l.log.Warn("undecodable event dropped", "error", err)
		return
	}
	l.metrics.EventsReceived.WithLabelValues(env.Topic).Inc()

	if err := l.dispatch(env); err != nil {
		reason := dropDecode
		if errors.Is(err, errUnknownEvent) {
			reason = dropUnknown
		} else if errors.Is(err, errNoRoute) {
			reason = dropNoRoute
		}
		l.metrics.EventsDropped.WithLabelValues(reason).Inc()
		logger.L(ctx).Warn("event dropped", "component", "eventbus", "event_type", env.EventType, "reason", reason, "error", err)
	}
}

var (
	errUnknownEvent = errors.New("unknown event type")
	errNoRoute      = errors.New("event has no delivery target")
)

// dispatch routes an envelope by event type. The payload is decoded into
// the type's concrete payload so malformed events never reach clients.
func (l *Listener) dispatch(env *domain.Envelope) error {
	name := string(env.EventType)

	switch env.EventType {
	case domain.EventMessage:
		var p domain.MessagePayload
		if err := env.DecodePayload(&p); err != nil {
			return err
		}
		return l.toRoom(p.RoomID, name, p)

	case domain.EventMessageReactionUpdate:
		var p domain.ReactionUpdatePayload
		if err := env.DecodePayload(&p); err != nil {
			return err
		}
		return l.toRoom(p.RoomID, name, p)

	case domain.EventParticipantsUpdate:
		var p domain.ParticipantsUpdatePayload
		if err := env.DecodePayload(&p); err != nil {
			return err
		}
		return l.toRoom(p.RoomID, name, p)

	case domain.EventUserLeft:
		var p domain.UserLeftPayload
		if err := env.DecodePayload(&p); err != nil {
			return err
		}
		return l.toRoom(p.RoomID, name, p)

	case domain.EventMessagesRead:
		var p domain.MessagesReadPayload
		if err := env.DecodePayload(&p); err != nil {
			return err
		}
		return l.toRoom(p.RoomID, name, p)

	case domain.EventRoomUpdate:
		var p domain.RoomUpdatePayload
		if err := env.DecodePayload(&p); err != nil {
			return err
		}
		return l.toRoom(p.RoomID, name, p)

	case domain.EventRoomCreated:
		var p domain.RoomCreatedPayload
		if err := env.DecodePayload(&p); err != nil {
			return err
		}
		l.deliverer.DeliverToRoom(domain.RoomListRoom, name, p)
		return nil

	case domain.EventSessionEnded:
		var p domain.SessionEndedPayload
		if err := env.DecodePayload(&p); err != nil {
			return err
		}
		if p.UserID == "" {
			return errNoRoute
		}
		l.deliverer.DeliverToUser(p.UserID, name, p)
		return nil

	default:
		return fmt.Errorf("%w: %s", errUnknownEvent, env.EventType)
	}
}

func (l *Listener) toRoom(roomID, name string, payload any) error {
	if roomID == "" {
		return errNoRoute
	}
	l.deliverer.DeliverToRoom(roomID, name, payload)
	return nil
}
