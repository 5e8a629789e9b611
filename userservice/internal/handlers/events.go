package handlers

import (
	"context"
	"log/slog"

	"user-platform/shared/eventx"
	"user-platform/shared/logx"
)

// AuditLogger records every domain event it sees. It subscribes to all user
// event types so the structured log doubles as a human-readable audit trail
// next to the event store.
type AuditLogger struct {
	logger logx.Logger
}

func NewAuditLogger(logger logx.Logger) *AuditLogger {
	return &AuditLogger{logger: logger}
}

func (a *AuditLogger) Handle(ctx context.Context, event *eventx.Event) error {
	a.logger.Info(ctx, "domain_event", "domain event observed",
		slog.String("event_id", event.EventID.String()),
		slog.String("event_type", event.EventType),
		slog.String("aggregate_id", event.AggregateID),
		slog.String("aggregate_type", event.AggregateType),
		slog.String("user_id", event.UserID),
	)
	return nil
}

func (a *AuditLogger) SubscribeAll(bus eventx.Bus) {
	bus.Subscribe(eventx.EventTypeUserCreated, a)
	bus.Subscribe(eventx.EventTypeUserDeleted, a)
}

// WelcomeEnqueuer is the slice of the notification queue the subscriber
// needs.
type WelcomeEnqueuer interface {
	EnqueueWelcomeEmail(ctx context.Context, email string, username string) error
}

// WelcomeNotifier reacts to UserCreatedEvent by queueing a welcome email.
// Delivery is best-effort by construction: a failed enqueue is contained by
// the bus and never reaches the registration caller.
type WelcomeNotifier struct {
	enqueuer WelcomeEnqueuer
	logger   logx.Logger
}

func NewWelcomeNotifier(enqueuer WelcomeEnqueuer, logger logx.Logger) *WelcomeNotifier {
	return &WelcomeNotifier{enqueuer: enqueuer, logger: logger}
}

func (n *WelcomeNotifier) Handle(ctx context.Context, event *eventx.Event) error {
	email, _ := event.Payload["email"].(string)
	username, _ := event.Payload["username"].(string)
	if email == "" {
		n.logger.Warn(ctx, "welcome_email_skipped", "event carries no email",
			slog.String("event_id", event.EventID.String()),
		)
		return nil
	}
	return n.enqueuer.EnqueueWelcomeEmail(ctx, email, username)
}
