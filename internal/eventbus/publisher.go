package eventbus

import (
	"context"
	"encoding/json"

	"github.com/yndnr/chatmesh-go/internal/core/domain"
	"github.com/yndnr/chatmesh-go/internal/sharedstore"
	"github.com/yndnr/chatmesh-go/internal/telemetry/logger"
	"github.com/yndnr/chatmesh-go/internal/telemetry/metric"
)

// Publisher sends events to every instance through the shared store.
type Publisher struct {
	store   sharedstore.Store
	metrics *metric.Registry
	log     logger.Logger
}

// NewPublisher creates a Publisher. A nil metrics registry gets a private one.
func NewPublisher(store sharedstore.Store, metrics *metric.Registry, log logger.Logger) *Publisher {
	if metrics == nil {
		metrics = metric.NewRegistry()
	}
	if log == nil {
		log = logger.Default()
	}
	return &Publisher{store: store, metrics: metrics, log: log.With("component", "eventbus")}
}

// Publish resolves the topic for eventType and publishes payload on it.
// Failures are logged and returned as ErrEventPublishFailed.
func (p *Publisher) Publish(ctx context.Context, eventType domain.EventType, payload any) error {
	env, err := domain.NewEnvelope(eventType, payload)
	if err != nil {
		p.metrics.EventsPublishFailed.WithLabelValues(domain.ResolveTopic(eventType)).Inc()
		p.log.Error("event encode failed", "event_type", eventType, "error", err)
		return domain.ErrEventPublishFailed.WithCause(err)
	}
	data, err := json.Marshal(env)
	if err != nil {
		p.metrics.EventsPublishFailed.WithLabelValues(env.Topic).Inc()
		return domain.ErrEventPublishFailed.WithCause(err)
	}

	if err := p.store.Publish(ctx, env.Topic, data); err != nil {
		p.metrics.EventsPublishFailed.WithLabelValues(env.Topic).Inc()
		logger.L(ctx).Error("event publish failed", "component", "eventbus", "event_type", eventType, "topic", env.Topic, "error", err)
		return domain.ErrEventPublishFailed.WithDetails(env.Topic).WithCause(err)
	}

	p.metrics.EventsPublished.WithLabelValues(env.Topic).Inc()
	p.log.Debug("event published", "event_type", eventType, "topic", env.Topic, "bytes", len(data))
	return nil
}
