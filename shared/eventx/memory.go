package eventx

import (
	"context"
	"log/slog"

	"user-platform/shared/logx"
	"user-platform/shared/metricsx"
)

// InMemoryBus fans out without durability. The right choice when audit and
// replay are not required (local development, isolated tests).
type InMemoryBus struct {
	subs   *subscriptions
	logger logx.Logger
}

var _ Bus = (*InMemoryBus)(nil)

func NewInMemoryBus(logger logx.Logger) *InMemoryBus {
	return &InMemoryBus{
		subs:   newSubscriptions(logger),
		logger: logger,
	}
}

func (b *InMemoryBus) Publish(ctx context.Context, event *Event) {
	if event == nil {
		return
	}
	metricsx.IncEventPublished(event.EventType)

	handlers := b.subs.snapshot(event.EventType)
	if len(handlers) == 0 {
		b.logger.Debug(ctx, "no_event_handlers", "no handlers registered for event type",
			slog.String("event_type", event.EventType),
		)
		return
	}
	b.subs.fanOut(ctx, event, handlers)
}

func (b *InMemoryBus) Subscribe(eventType string, handler Handler) {
	b.subs.subscribe(eventType, handler)
}

func (b *InMemoryBus) Unsubscribe(eventType string, handler Handler) {
	b.subs.unsubscribe(eventType, handler)
}

func (b *InMemoryBus) HandlerCount(eventType string) int {
	return b.subs.count(eventType)
}
