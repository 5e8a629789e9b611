package rpcx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"user-platform/shared/errx"
	"user-platform/shared/logx"
	"user-platform/shared/metricsx"
)

type ServerConfig struct {
	Brokers        []string
	GroupID        string
	Queue          string
	ClientID       string
	RetryMax       int
	WriteTimeoutMS int
}

// Server consumes a request queue, dispatches each message through the
// Router, and writes the reply envelope back to the topic named in the
// reply_to header. Messages without reply coordinates are treated as events:
// handled, never answered.
type Server struct {
	cfg    ServerConfig
	router *Router
	logger logx.Logger
	reader *kafka.Reader
	writer *kafka.Writer
}

func NewServer(cfg ServerConfig, router *Router, logger logx.Logger) (*Server, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required")
	}
	if cfg.Queue == "" {
		return nil, errors.New("request queue is required")
	}
	if cfg.GroupID == "" {
		return nil, errors.New("consumer group is required")
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		GroupID:  cfg.GroupID,
		Topic:    cfg.Queue,
		MinBytes: 1e3,
		MaxBytes: 10e6,
	})
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
		MaxAttempts:  maxInt(cfg.RetryMax, 1),
		BatchTimeout: time.Duration(cfg.WriteTimeoutMS) * time.Millisecond,
		Transport: &kafka.Transport{
			ClientID: cfg.ClientID,
		},
	}
	return &Server{
		cfg:    cfg,
		router: router,
		logger: logger,
		reader: reader,
		writer: writer,
	}, nil
}

// Run blocks until ctx is canceled. Each message is committed after its
// handler completes so a crashed handler redelivers rather than drops.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info(ctx, "rpc_server_started", "consuming request queue",
		slog.String("queue", s.cfg.Queue),
		slog.String("group", s.cfg.GroupID),
	)
	for {
		msg, err := s.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			s.logger.Error(ctx, "fetch_failed", "failed to fetch message", logx.Err(err))
			time.Sleep(time.Second)
			continue
		}
		s.handle(ctx, msg)
		if err := s.reader.CommitMessages(ctx, msg); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error(ctx, "commit_failed", "failed to commit offset", logx.Err(err))
		}
	}
}

func (s *Server) Close() error {
	err := s.reader.Close()
	if werr := s.writer.Close(); err == nil {
		err = werr
	}
	return err
}

func (s *Server) handle(ctx context.Context, msg kafka.Message) {
	pattern := headerValue(msg.Headers, headerPattern)
	cid := headerValue(msg.Headers, headerCorrelationID)
	replyTo := headerValue(msg.Headers, headerReplyTo)
	if pattern == "" {
		s.logger.Warn(ctx, "missing_pattern", "dropping message without pattern header",
			slog.String("queue", s.cfg.Queue),
		)
		return
	}

	ctx, span := otel.Tracer("rpcx").Start(ctx, "rpc.handle")
	span.SetAttributes(
		attribute.String("messaging.system", "kafka"),
		attribute.String("rpc.pattern", pattern),
	)
	defer span.End()

	result, err := s.dispatch(ctx, pattern, msg.Value)

	if cid == "" || replyTo == "" {
		// Event delivery, no reply channel.
		if err != nil {
			s.logger.Error(ctx, "event_handler_failed", "event message handler returned error",
				slog.String("pattern", pattern),
				logx.Err(err),
			)
		}
		return
	}

	var resp response
	isErr := "0"
	if err != nil {
		remote := errx.Translate(err)
		metricsx.IncRPCServerError(pattern, remote.StatusCode)
		s.logger.Error(ctx, "rpc_handler_failed", "replying with error envelope",
			slog.String("pattern", pattern),
			slog.Int("status_code", remote.StatusCode),
			logx.Err(err),
		)
		resp.Error = remote
		isErr = "1"
	} else {
		raw, mErr := json.Marshal(result)
		if mErr != nil {
			resp.Error = errx.Translate(fmt.Errorf("marshal result: %w", mErr))
			isErr = "1"
		} else {
			resp.Data = raw
		}
	}

	payload, mErr := json.Marshal(resp)
	if mErr != nil {
		s.logger.Error(ctx, "reply_marshal_failed", "dropping reply", logx.Err(mErr))
		return
	}
	reply := kafka.Message{
		Topic: replyTo,
		Key:   []byte(cid),
		Value: payload,
		Headers: []kafka.Header{
			{Key: headerCorrelationID, Value: []byte(cid)},
			{Key: headerError, Value: []byte(isErr)},
		},
	}
	if err := s.writer.WriteMessages(ctx, reply); err != nil {
		s.logger.Error(ctx, "reply_write_failed", "failed to write reply",
			slog.String("pattern", pattern),
			slog.String("reply_to", replyTo),
			logx.Err(err),
		)
	}
}

// dispatch wraps Router.Dispatch with panic containment so a broken handler
// answers with a translated 500 instead of killing the consume loop.
func (s *Server) dispatch(ctx context.Context, pattern string, body []byte) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return s.router.Dispatch(ctx, pattern, body)
}
