package rpcx

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"user-platform/shared/authx"
	"user-platform/shared/contracts"
	"user-platform/shared/errx"
	"user-platform/shared/logx"
)

// Handler processes one dispatched message. data is the normalized payload,
// meta the envelope metadata (nil for bare legacy payloads).
type Handler func(ctx context.Context, data json.RawMessage, meta Metadata) (any, error)

type route struct {
	handler   Handler
	protected bool
}

// Router maps pattern names to handlers. Protected routes pass through the
// identity gate before the handler runs: the gate verifies the bearer token
// from metadata and places the resulting Identity on the context.
type Router struct {
	mu       sync.RWMutex
	routes   map[string]route
	verifier authx.Verifier
	logger   logx.Logger
}

func NewRouter(verifier authx.Verifier, logger logx.Logger) *Router {
	return &Router{
		routes:   make(map[string]route),
		verifier: verifier,
		logger:   logger,
	}
}

func (r *Router) Handle(pattern string, h Handler) {
	r.register(pattern, route{handler: h})
}

func (r *Router) HandleProtected(pattern string, h Handler) {
	r.register(pattern, route{handler: h, protected: true})
}

func (r *Router) register(pattern string, rt route) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.routes[pattern]; ok {
		r.logger.Warn(context.Background(), "pattern_replaced", "replacing existing handler",
			slog.String("pattern", pattern),
		)
	}
	r.routes[pattern] = rt
}

func (r *Router) Patterns() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.routes))
	for p := range r.routes {
		out = append(out, p)
	}
	return out
}

// Dispatch normalizes the body and runs the handler registered for pattern.
// For protected patterns the identity gate rejects before the handler is
// ever invoked.
func (r *Router) Dispatch(ctx context.Context, pattern string, body []byte) (any, error) {
	r.mu.RLock()
	rt, ok := r.routes[pattern]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no handler registered for pattern %q", pattern)
	}

	data, meta := Normalize(body)
	if rt.protected {
		authed, err := r.authenticate(ctx, meta)
		if err != nil {
			return nil, err
		}
		ctx = authed
	}
	return rt.handler(ctx, data, meta)
}

func (r *Router) authenticate(ctx context.Context, meta Metadata) (context.Context, error) {
	raw := strings.TrimSpace(meta.Get(contracts.MetadataAuthorization))
	if raw == "" {
		return nil, errx.ErrMissingCredential
	}
	token := raw
	if len(token) > 7 && strings.EqualFold(token[:7], "bearer ") {
		token = strings.TrimSpace(token[7:])
	}
	if r.verifier == nil {
		return nil, errx.ErrInvalidCredential
	}
	id, err := r.verifier.Verify(ctx, token)
	if err != nil {
		return nil, errx.ErrInvalidCredential
	}
	return authx.WithIdentity(ctx, id), nil
}
