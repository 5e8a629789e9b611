package rpcx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"user-platform/shared/logx"
)

const (
	headerPattern       = "pattern"
	headerCorrelationID = "correlation_id"
	headerReplyTo       = "reply_to"
	headerError         = "error"
)

// Transport moves envelopes to one destination service. Request blocks for a
// correlated reply; Emit is fire-and-forget.
type Transport interface {
	Connect(ctx context.Context) error
	Request(ctx context.Context, pattern string, body []byte) ([]byte, error)
	Emit(ctx context.Context, pattern string, body []byte) error
	Close() error
}

type KafkaConfig struct {
	Brokers        []string
	ClientID       string
	Queue          string
	ReplyTopic     string
	RequestTimeout time.Duration
	RetryMax       int
	WriteTimeoutMS int
}

// KafkaTransport implements request/response over a pair of topics: requests
// go to Queue, replies come back on ReplyTopic keyed by correlation id. A
// single background loop drains the reply topic and routes each reply to the
// waiting caller.
type KafkaTransport struct {
	cfg    KafkaConfig
	logger logx.Logger

	writer *kafka.Writer
	reader *kafka.Reader

	mu      sync.Mutex
	pending map[string]chan []byte

	done      chan struct{}
	closeOnce sync.Once
}

var _ Transport = (*KafkaTransport)(nil)

func NewKafkaTransport(cfg KafkaConfig, logger logx.Logger) (*KafkaTransport, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required")
	}
	if cfg.Queue == "" {
		return nil, errors.New("destination queue is required")
	}
	if cfg.ReplyTopic == "" {
		cfg.ReplyTopic = cfg.Queue + ".reply"
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	return &KafkaTransport{
		cfg:     cfg,
		logger:  logger,
		pending: make(map[string]chan []byte),
		done:    make(chan struct{}),
	}, nil
}

// Connect dials the broker, builds the producer and the reply consumer, and
// starts the reply loop. The reply consumer group is unique per process so
// every instance observes all replies and picks out its own by correlation id.
func (t *KafkaTransport) Connect(ctx context.Context) error {
	conn, err := kafka.DialContext(ctx, "tcp", t.cfg.Brokers[0])
	if err != nil {
		return fmt.Errorf("dial kafka: %w", err)
	}
	_ = conn.Close()

	t.writer = &kafka.Writer{
		Addr:         kafka.TCP(t.cfg.Brokers...),
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
		MaxAttempts:  maxInt(t.cfg.RetryMax, 1),
		BatchTimeout: time.Duration(t.cfg.WriteTimeoutMS) * time.Millisecond,
		Transport: &kafka.Transport{
			ClientID: t.cfg.ClientID,
		},
	}
	t.reader = kafka.NewReader(kafka.ReaderConfig{
		Brokers:  t.cfg.Brokers,
		GroupID:  t.cfg.ClientID + "-reply-" + uuid.NewString(),
		Topic:    t.cfg.ReplyTopic,
		MinBytes: 1e3,
		MaxBytes: 10e6,
	})
	go t.replyLoop()
	return nil
}

func (t *KafkaTransport) replyLoop() {
	ctx := context.Background()
	for {
		select {
		case <-t.done:
			return
		default:
		}
		msg, err := t.reader.ReadMessage(ctx)
		if err != nil {
			select {
			case <-t.done:
				return
			default:
			}
			t.logger.Warn(ctx, "reply_read_failed", "failed to read reply message", logx.Err(err))
			time.Sleep(500 * time.Millisecond)
			continue
		}
		cid := headerValue(msg.Headers, headerCorrelationID)
		if cid == "" {
			continue
		}
		t.mu.Lock()
		ch, ok := t.pending[cid]
		if ok {
			delete(t.pending, cid)
		}
		t.mu.Unlock()
		if !ok {
			// Reply for another instance, or for a caller that timed out.
			continue
		}
		ch <- msg.Value
	}
}

func (t *KafkaTransport) Request(ctx context.Context, pattern string, body []byte) ([]byte, error) {
	if t.writer == nil {
		return nil, errors.New("transport not connected")
	}
	ctx, span := otel.Tracer("rpcx").Start(ctx, "rpc.request")
	span.SetAttributes(
		attribute.String("messaging.system", "kafka"),
		attribute.String("messaging.destination", t.cfg.Queue),
		attribute.String("rpc.pattern", pattern),
	)
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, t.cfg.RequestTimeout)
	defer cancel()

	cid := uuid.NewString()
	ch := make(chan []byte, 1)
	t.mu.Lock()
	t.pending[cid] = ch
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		delete(t.pending, cid)
		t.mu.Unlock()
	}()

	msg := kafka.Message{
		Topic: t.cfg.Queue,
		Key:   []byte(cid),
		Value: body,
		Headers: []kafka.Header{
			{Key: headerPattern, Value: []byte(pattern)},
			{Key: headerCorrelationID, Value: []byte(cid)},
			{Key: headerReplyTo, Value: []byte(t.cfg.ReplyTopic)},
		},
	}
	if err := t.writer.WriteMessages(ctx, msg); err != nil {
		return nil, fmt.Errorf("write request: %w", err)
	}

	select {
	case reply := <-ch:
		return reply, nil
	case <-ctx.Done():
		t.logger.Warn(ctx, "rpc_timeout", "no reply before deadline",
			slog.String("pattern", pattern),
			slog.String("queue", t.cfg.Queue),
		)
		return nil, fmt.Errorf("rpc %s: %w", pattern, ctx.Err())
	}
}

func (t *KafkaTransport) Emit(ctx context.Context, pattern string, body []byte) error {
	if t.writer == nil {
		return errors.New("transport not connected")
	}
	ctx, span := otel.Tracer("rpcx").Start(ctx, "rpc.emit")
	span.SetAttributes(
		attribute.String("messaging.system", "kafka"),
		attribute.String("messaging.destination", t.cfg.Queue),
		attribute.String("rpc.pattern", pattern),
	)
	defer span.End()

	msg := kafka.Message{
		Topic: t.cfg.Queue,
		Value: body,
		Headers: []kafka.Header{
			{Key: headerPattern, Value: []byte(pattern)},
		},
	}
	return t.writer.WriteMessages(ctx, msg)
}

func (t *KafkaTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.done)
		if t.reader != nil {
			err = t.reader.Close()
		}
		if t.writer != nil {
			if werr := t.writer.Close(); err == nil {
				err = werr
			}
		}
	})
	return err
}

func headerValue(headers []kafka.Header, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func maxInt(a int, b int) int {
	if a > b {
		return a
	}
	return b
}
