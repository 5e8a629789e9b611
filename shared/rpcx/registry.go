package rpcx

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"user-platform/shared/logx"
	"user-platform/shared/metricsx"
)

// Registry owns the named transports a caller can reach. Destinations are
// registered up front and looked up by service name on every send.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]Transport
	logger  logx.Logger
}

func NewRegistry(logger logx.Logger) *Registry {
	return &Registry{
		clients: make(map[string]Transport),
		logger:  logger,
	}
}

// Register binds a service name to a transport. Registering the same name
// twice keeps the first binding.
func (r *Registry) Register(name string, t Transport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.clients[name]; ok {
		r.logger.Warn(context.Background(), "destination_already_registered", "keeping existing destination",
			slog.String("service", name),
		)
		return
	}
	r.clients[name] = t
}

// ConnectAll connects every registered transport. A failed connection is
// logged and skipped so the process can come up while the broker is down;
// sends to that destination fail at call time instead.
func (r *Registry) ConnectAll(ctx context.Context) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for name, t := range r.clients {
		if err := t.Connect(ctx); err != nil {
			r.logger.Warn(ctx, "destination_connect_failed", "continuing without destination",
				slog.String("service", name),
				logx.Err(err),
			)
			continue
		}
		r.logger.Info(ctx, "destination_connected", "rpc destination ready",
			slog.String("service", name),
		)
	}
}

func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, t := range r.clients {
		if err := t.Close(); err != nil {
			r.logger.Warn(context.Background(), "destination_close_failed", "error closing destination",
				slog.String("service", name),
				logx.Err(err),
			)
		}
	}
}

func (r *Registry) transport(service string) (Transport, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.clients[service]
	if !ok {
		return nil, destinationNotFound(service)
	}
	return t, nil
}

// Send issues a request to a destination service and decodes the reply data
// into R. A remote error envelope comes back as *errx.RemoteError.
func Send[R any](ctx context.Context, r *Registry, service string, pattern string, data any, meta Metadata) (R, error) {
	var out R
	t, err := r.transport(service)
	if err != nil {
		return out, err
	}
	body, err := MarshalEnvelope(data, meta)
	if err != nil {
		return out, fmt.Errorf("marshal request: %w", err)
	}

	start := time.Now()
	reply, err := t.Request(ctx, pattern, body)
	metricsx.ObserveRPCRequest(service, pattern, time.Since(start), err)
	if err != nil {
		return out, err
	}

	var resp response
	if err := json.Unmarshal(reply, &resp); err != nil {
		return out, fmt.Errorf("decode reply: %w", err)
	}
	if resp.Error != nil {
		return out, resp.Error
	}
	if len(resp.Data) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(resp.Data, &out); err != nil {
		return out, fmt.Errorf("decode reply data: %w", err)
	}
	return out, nil
}

// Emit publishes an event-style message with no reply expected.
func Emit(ctx context.Context, r *Registry, service string, pattern string, data any, meta Metadata) error {
	t, err := r.transport(service)
	if err != nil {
		return err
	}
	body, err := MarshalEnvelope(data, meta)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return t.Emit(ctx, pattern, body)
}
