package eventx

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"user-platform/shared/logx"
	"user-platform/shared/metricsx"
)

// Handler reacts to a single domain event. Handlers are registered per
// event type; the same instance may serve several types.
type Handler interface {
	Handle(ctx context.Context, event *Event) error
}

// Bus is the in-process publish/subscribe contract shared by both
// strategies. Publish never fails because of handler failures; those are
// contained and logged.
type Bus interface {
	Publish(ctx context.Context, event *Event)
	Subscribe(eventType string, handler Handler)
	Unsubscribe(eventType string, handler Handler)
	HandlerCount(eventType string) int
}

// subscriptions is the instance-owned handler registry. The map is bounded
// by active subscriptions: removing a type's last handler prunes the key.
type subscriptions struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	logger   logx.Logger
}

func newSubscriptions(logger logx.Logger) *subscriptions {
	return &subscriptions{
		handlers: make(map[string][]Handler),
		logger:   logger,
	}
}

func (s *subscriptions) subscribe(eventType string, handler Handler) {
	if handler == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.handlers[eventType] {
		if existing == handler {
			s.logger.Warn(context.Background(), "handler_already_registered", "handler already registered for event type",
				slog.String("event_type", eventType),
				slog.String("handler", handlerName(handler)),
			)
			return
		}
	}
	s.handlers[eventType] = append(s.handlers[eventType], handler)
}

func (s *subscriptions) unsubscribe(eventType string, handler Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()

	registered, ok := s.handlers[eventType]
	if !ok {
		s.logger.Warn(context.Background(), "no_handlers_registered", "no handlers registered for event type",
			slog.String("event_type", eventType),
		)
		return
	}

	for i, existing := range registered {
		if existing == handler {
			registered = append(registered[:i], registered[i+1:]...)
			if len(registered) == 0 {
				delete(s.handlers, eventType)
			} else {
				s.handlers[eventType] = registered
			}
			return
		}
	}
	s.logger.Warn(context.Background(), "handler_not_found", "handler not registered for event type",
		slog.String("event_type", eventType),
		slog.String("handler", handlerName(handler)),
	)
}

func (s *subscriptions) snapshot(eventType string) []Handler {
	s.mu.RLock()
	defer s.mu.RUnlock()
	registered := s.handlers[eventType]
	if len(registered) == 0 {
		return nil
	}
	out := make([]Handler, len(registered))
	copy(out, registered)
	return out
}

func (s *subscriptions) count(eventType string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.handlers[eventType])
}

// fanOut starts every matched handler before awaiting any of them and
// returns once all have settled. A failing or panicking handler never
// prevents its siblings from running.
func (s *subscriptions) fanOut(ctx context.Context, event *Event, handlers []Handler) {
	var wg sync.WaitGroup
	for _, handler := range handlers {
		wg.Add(1)
		go func(h Handler) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					metricsx.IncEventHandlerFailure(event.EventType)
					s.logger.Error(ctx, "event_handler_panic", "event handler panicked",
						slog.String("event_id", event.EventID.String()),
						slog.String("event_type", event.EventType),
						slog.String("handler", handlerName(h)),
						slog.Any("panic", r),
					)
				}
			}()
			if err := h.Handle(ctx, event); err != nil {
				metricsx.IncEventHandlerFailure(event.EventType)
				s.logger.Error(ctx, "event_handler_failed", "event handler failed",
					slog.String("event_id", event.EventID.String()),
					slog.String("event_type", event.EventType),
					slog.String("handler", handlerName(h)),
					logx.Err(err),
				)
			}
		}(handler)
	}
	wg.Wait()
}

func handlerName(h Handler) string {
	return fmt.Sprintf("%T", h)
}
