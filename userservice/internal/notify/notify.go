package notify

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"user-platform/shared/config"
	"user-platform/shared/logx"
)

const TaskWelcomeEmail = "notify:welcome_email"

type WelcomeEmailPayload struct {
	Email    string `json:"email"`
	Username string `json:"username"`
}

// Enqueuer hands notification work to the asynq queue. The user service
// treats it as optional: when the queue is unreachable the caller logs and
// moves on.
type Enqueuer struct {
	client *asynq.Client
	queue  string
}

func NewEnqueuer(cfg config.Config) (*Enqueuer, error) {
	if cfg.AsynqRedisAddr == "" {
		return nil, errors.New("ASYNQ_REDIS_ADDR is required")
	}
	client := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.AsynqRedisAddr,
		Password: cfg.AsynqRedisPass,
		DB:       cfg.AsynqRedisDB,
	})
	return &Enqueuer{client: client, queue: cfg.AsynqQueue}, nil
}

func (e *Enqueuer) EnqueueWelcomeEmail(ctx context.Context, email string, username string) error {
	payload, err := json.Marshal(WelcomeEmailPayload{Email: email, Username: username})
	if err != nil {
		return err
	}
	task := asynq.NewTask(TaskWelcomeEmail, payload,
		asynq.Queue(e.queue),
		asynq.MaxRetry(5),
		asynq.Timeout(30*time.Second),
	)
	_, err = e.client.EnqueueContext(ctx, task)
	return err
}

func (e *Enqueuer) Close() error {
	if e == nil || e.client == nil {
		return nil
	}
	return e.client.Close()
}

// NewServeMux wires the worker-side task handlers. Delivery here is a log
// line standing in for the mail provider call; the provider integration
// plugs into handleWelcomeEmail.
func NewServeMux(logger logx.Logger) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskWelcomeEmail, func(ctx context.Context, t *asynq.Task) error {
		var payload WelcomeEmailPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return err
		}
		logger.Info(ctx, "welcome_email_sent", "welcome email delivered",
			slog.String("email", payload.Email),
			slog.String("username", payload.Username),
		)
		return nil
	})
	return mux
}
