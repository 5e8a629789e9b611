package eventx

import (
	"context"
	"log/slog"

	"user-platform/shared/logx"
	"user-platform/shared/metricsx"
)

// PersistentBus appends every published event to the Store before fanning
// out. The append is best-effort: subscriber delivery is favored over audit
// completeness, so a store failure is logged and fan-out proceeds.
type PersistentBus struct {
	subs   *subscriptions
	store  Store
	logger logx.Logger
}

var _ Bus = (*PersistentBus)(nil)

func NewPersistentBus(store Store, logger logx.Logger) *PersistentBus {
	return &PersistentBus{
		subs:   newSubscriptions(logger),
		store:  store,
		logger: logger,
	}
}

func (b *PersistentBus) Publish(ctx context.Context, event *Event) {
	if event == nil {
		return
	}
	metricsx.IncEventPublished(event.EventType)

	if b.store == nil {
		b.logger.Warn(ctx, "event_store_unavailable", "event store not configured, skipping persistence",
			slog.String("event_type", event.EventType),
		)
	} else if err := b.store.Append(ctx, event); err != nil {
		metricsx.IncEventStoreAppendFailure()
		b.logger.Error(ctx, "event_store_append_failed", "failed to persist event",
			slog.String("event_id", event.EventID.String()),
			slog.String("event_type", event.EventType),
			logx.Err(err),
		)
	}

	handlers := b.subs.snapshot(event.EventType)
	if len(handlers) == 0 {
		b.logger.Debug(ctx, "no_event_handlers", "no handlers registered for event type",
			slog.String("event_type", event.EventType),
		)
		return
	}
	b.subs.fanOut(ctx, event, handlers)
}

func (b *PersistentBus) Subscribe(eventType string, handler Handler) {
	b.subs.subscribe(eventType, handler)
}

func (b *PersistentBus) Unsubscribe(eventType string, handler Handler) {
	b.subs.unsubscribe(eventType, handler)
}

func (b *PersistentBus) HandlerCount(eventType string) int {
	return b.subs.count(eventType)
}
