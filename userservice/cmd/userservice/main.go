package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"user-platform/shared/authx"
	"user-platform/shared/cachex"
	"user-platform/shared/config"
	"user-platform/shared/contracts"
	"user-platform/shared/dbx"
	"user-platform/shared/eventx"
	"user-platform/shared/httpx"
	"user-platform/shared/logx"
	"user-platform/shared/metricsx"
	"user-platform/shared/observability"
	"user-platform/shared/rpcx"
	"user-platform/userservice/internal/handlers"
	"user-platform/userservice/internal/notify"
	"user-platform/userservice/internal/repos"
	"user-platform/userservice/internal/service"
)

type statusResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Env     string `json:"env,omitempty"`
	Version string `json:"version,omitempty"`
}

func main() {
	cfg, readyProblems := config.Load("user-service", 8081)
	version := strings.TrimSpace(os.Getenv("VERSION"))
	logger := logx.New(cfg.ServiceName, cfg.Env, version, cfg.LogLevel)
	metricsx.Register()

	if len(cfg.KafkaBrokers) == 0 {
		readyProblems = append(readyProblems, config.Problem{Field: "KAFKA_BROKERS", Message: "KAFKA_BROKERS is required"})
	}
	if cfg.DatabaseURL == "" {
		readyProblems = append(readyProblems, config.Problem{Field: "DATABASE_URL", Message: "DATABASE_URL is required"})
	}
	if len(readyProblems) > 0 {
		logger.Error(context.Background(), "config_invalid", "invalid config",
			slog.Any("problems", readyProblems),
		)
		os.Exit(1)
	}

	var shutdownTracer func(context.Context) error
	if cfg.OtelEnabled {
		var err error
		shutdownTracer, err = observability.InitTracer(context.Background(), observability.TracerConfig{
			ServiceName: cfg.ServiceName,
			Env:         cfg.Env,
			Endpoint:    cfg.OtelEndpoint,
			Insecure:    cfg.OtelInsecure,
			SampleRatio: cfg.OtelSampleRatio,
		})
		if err != nil {
			logger.Error(context.Background(), "otel_init_failed", "otel init failed", logx.Err(err))
		}
	}

	dbPool, err := dbx.NewPool(cfg)
	if err != nil {
		logger.Error(context.Background(), "db_init_failed", "db init failed", logx.Err(err))
		os.Exit(1)
	}
	defer dbPool.Close()

	usersRepo := repos.NewUsersRepo(dbPool)
	eventStore := repos.NewEventStoreRepo(dbPool)

	var bus eventx.Bus
	switch cfg.EventBusMode {
	case config.EventBusModeMemory:
		bus = eventx.NewInMemoryBus(logger)
	default:
		bus = eventx.NewPersistentBus(eventStore, logger)
	}
	logger.Info(context.Background(), "event_bus_ready", "event bus configured",
		slog.String("mode", cfg.EventBusMode),
	)
	handlers.NewAuditLogger(logger).SubscribeAll(bus)

	var cache service.Cache
	if cfg.RedisAddr != "" {
		redisCache, err := cachex.New(cfg)
		if err != nil {
			logger.Warn(context.Background(), "cache_init_failed", "continuing without cache", logx.Err(err))
		} else {
			defer redisCache.Close()
			cache = redisCache
		}
	}

	if cfg.AsynqEnabled {
		enqueuer, err := notify.NewEnqueuer(cfg)
		if err != nil {
			logger.Warn(context.Background(), "notify_init_failed", "continuing without notifications", logx.Err(err))
		} else {
			defer enqueuer.Close()
			bus.Subscribe(eventx.EventTypeUserCreated, handlers.NewWelcomeNotifier(enqueuer, logger))
		}
	}

	signer, err := authx.NewTokenSigner(cfg.JWTSecret, cfg.JWTIssuer, time.Duration(cfg.JWTTTLSeconds)*time.Second)
	if err != nil {
		logger.Error(context.Background(), "signer_init_failed", "token signer init failed", logx.Err(err))
		os.Exit(1)
	}
	verifier, err := buildVerifier(cfg)
	if err != nil {
		logger.Error(context.Background(), "verifier_init_failed", "token verifier init failed", logx.Err(err))
		os.Exit(1)
	}

	users := service.NewUsers(usersRepo, bus, signer, logger, service.Options{
		Cache:    cache,
		CacheTTL: time.Duration(cfg.CacheTTLSeconds) * time.Second,
	})

	router := rpcx.NewRouter(verifier, logger)
	handlers.NewRPC(users, logger).Register(router)

	server, err := rpcx.NewServer(rpcx.ServerConfig{
		Brokers:        cfg.KafkaBrokers,
		GroupID:        cfg.ServiceName,
		Queue:          contracts.UserQueue,
		ClientID:       cfg.KafkaClientID,
		RetryMax:       cfg.KafkaRetryMax,
		WriteTimeoutMS: cfg.KafkaWriteMS,
	}, router, logger)
	if err != nil {
		logger.Error(context.Background(), "rpc_server_init_failed", "rpc server init failed", logx.Err(err))
		os.Exit(1)
	}

	runCtx, stop := context.WithCancel(context.Background())
	defer stop()

	rpcErrCh := make(chan error, 1)
	go func() {
		rpcErrCh <- server.Run(runCtx)
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, statusResponse{
			Status:  "ok",
			Service: cfg.ServiceName,
			Env:     cfg.Env,
			Version: version,
		})
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := dbx.Ping(r.Context(), dbPool); err != nil {
			httpx.WriteError(w, http.StatusServiceUnavailable, "database unavailable", "Service Unavailable")
			return
		}
		httpx.WriteJSON(w, http.StatusOK, statusResponse{
			Status:  "ready",
			Service: cfg.ServiceName,
			Env:     cfg.Env,
			Version: version,
		})
	})
	mux.Handle("GET /metrics", metricsx.Handler())

	httpServer := &http.Server{
		Addr:              net.JoinHostPort("", strconv.Itoa(cfg.HTTPPort)),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	httpErrCh := make(chan error, 1)
	go func() {
		logger.Info(context.Background(), "service_start", "starting service",
			slog.String("addr", httpServer.Addr),
			slog.String("queue", contracts.UserQueue),
			slog.String("event_bus_mode", cfg.EventBusMode),
		)
		httpErrCh <- httpServer.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info(context.Background(), "shutdown_signal", "received signal", slog.String("signal", sig.String()))
	case err := <-httpErrCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error(context.Background(), "server_failed", "http server failed", logx.Err(err))
		}
	case err := <-rpcErrCh:
		if err != nil {
			logger.Error(context.Background(), "rpc_server_failed", "rpc server failed", logx.Err(err))
		}
	}

	stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error(context.Background(), "shutdown_failed", "http shutdown failed", logx.Err(err))
	}
	if err := server.Close(); err != nil {
		logger.Error(context.Background(), "rpc_close_failed", "rpc server close failed", logx.Err(err))
	}
	if shutdownTracer != nil {
		_ = shutdownTracer(context.Background())
	}
	logger.Info(context.Background(), "service_stop", "service stopped")
}

func buildVerifier(cfg config.Config) (authx.Verifier, error) {
	if cfg.OIDCIssuer != "" {
		return authx.NewOIDCVerifier(cfg.OIDCIssuer, cfg.OIDCAudience, cfg.OIDCJWKSURL, cfg.JWKSTTLSeconds, cfg.JWTClockSkewSec)
	}
	return authx.NewSecretVerifier(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTClockSkewSec)
}
