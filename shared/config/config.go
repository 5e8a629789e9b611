package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Problem describes a single configuration defect. Mains collect problems
// and decide whether to refuse startup; /readyz reports them.
type Problem struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

const (
	EventBusModeMemory     = "memory"
	EventBusModePersistent = "persistent"
)

type Config struct {
	Env              string
	ServiceName      string
	HTTPPort         int
	LogLevel         string
	RequestTimeoutMS int
	RequestTimeout   time.Duration

	// Broker (RPC substrate).
	KafkaBrokers  []string
	KafkaClientID string
	KafkaRetryMax int
	KafkaWriteMS  int

	// Credential verification. HS256 secret is the default; when an OIDC
	// issuer is configured the JWKS verifier takes over.
	JWTSecret       string
	JWTIssuer       string
	JWTTTLSeconds   int
	OIDCIssuer      string
	OIDCAudience    string
	OIDCJWKSURL     string
	JWKSTTLSeconds  int
	JWTClockSkewSec int

	// Primary store + event store.
	DatabaseURL      string
	DBMaxConns       int
	DBMinConns       int
	DBConnMaxIdleSec int
	DBConnMaxLifeSec int

	// Event bus strategy.
	EventBusMode string

	// Redis read cache.
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	CacheTTLSeconds int

	// Notification queue.
	AsynqRedisAddr   string
	AsynqRedisPass   string
	AsynqRedisDB     int
	AsynqQueue       string
	AsynqConcurrency int
	AsynqEnabled     bool

	// Tracing.
	OtelEnabled     bool
	OtelEndpoint    string
	OtelInsecure    bool
	OtelSampleRatio float64
}

func Load(serviceNameDefault string, httpPortDefault int) (Config, []Problem) {
	cfg := Config{
		Env:              strings.TrimSpace(os.Getenv("ENV")),
		ServiceName:      serviceNameDefault,
		HTTPPort:         httpPortDefault,
		LogLevel:         "info",
		RequestTimeoutMS: 30000,
		KafkaClientID:    serviceNameDefault,
		KafkaRetryMax:    5,
		KafkaWriteMS:     5000,
		JWTSecret:        strings.TrimSpace(os.Getenv("JWT_SECRET")),
		JWTIssuer:        "user-platform",
		JWTTTLSeconds:    3600,
		OIDCIssuer:       strings.TrimSpace(os.Getenv("OIDC_ISSUER")),
		OIDCAudience:     strings.TrimSpace(os.Getenv("OIDC_AUDIENCE")),
		OIDCJWKSURL:      strings.TrimSpace(os.Getenv("OIDC_JWKS_URL")),
		JWKSTTLSeconds:   300,
		JWTClockSkewSec:  60,
		DatabaseURL:      strings.TrimSpace(os.Getenv("DATABASE_URL")),
		DBMaxConns:       10,
		DBMinConns:       1,
		DBConnMaxIdleSec: 300,
		DBConnMaxLifeSec: 1800,
		EventBusMode:     EventBusModePersistent,
		RedisAddr:        strings.TrimSpace(os.Getenv("REDIS_ADDR")),
		RedisPassword:    os.Getenv("REDIS_PASSWORD"),
		CacheTTLSeconds:  300,
		AsynqRedisAddr:   strings.TrimSpace(os.Getenv("ASYNQ_REDIS_ADDR")),
		AsynqRedisPass:   os.Getenv("ASYNQ_REDIS_PASSWORD"),
		AsynqQueue:       "default",
		AsynqConcurrency: 10,
		OtelEndpoint:     strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")),
		OtelInsecure:     true,
		OtelSampleRatio:  1.0,
	}

	problems := make([]Problem, 0, 4)

	if v := strings.TrimSpace(os.Getenv("SERVICE_NAME")); v != "" {
		cfg.ServiceName = v
	}
	if v := strings.TrimSpace(os.Getenv("LOG_LEVEL")); v != "" {
		cfg.LogLevel = v
	}
	readInt(&cfg.HTTPPort, "HTTP_PORT", &problems)
	readInt(&cfg.RequestTimeoutMS, "REQUEST_TIMEOUT_MS", &problems)

	if v := strings.TrimSpace(os.Getenv("KAFKA_BROKERS")); v != "" {
		for _, broker := range strings.Split(v, ",") {
			if b := strings.TrimSpace(broker); b != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
			}
		}
	}
	if v := strings.TrimSpace(os.Getenv("KAFKA_CLIENT_ID")); v != "" {
		cfg.KafkaClientID = v
	}
	readInt(&cfg.KafkaRetryMax, "KAFKA_RETRY_MAX", &problems)
	readInt(&cfg.KafkaWriteMS, "KAFKA_WRITE_TIMEOUT_MS", &problems)

	if v := strings.TrimSpace(os.Getenv("JWT_ISSUER")); v != "" {
		cfg.JWTIssuer = v
	}
	readInt(&cfg.JWTTTLSeconds, "JWT_TTL_SECONDS", &problems)
	readInt(&cfg.JWKSTTLSeconds, "JWKS_CACHE_TTL_SECONDS", &problems)
	readInt(&cfg.JWTClockSkewSec, "JWT_CLOCK_SKEW_SECONDS", &problems)

	readInt(&cfg.DBMaxConns, "DB_MAX_CONNS", &problems)
	readInt(&cfg.DBMinConns, "DB_MIN_CONNS", &problems)
	readInt(&cfg.DBConnMaxIdleSec, "DB_CONN_MAX_IDLE_SECONDS", &problems)
	readInt(&cfg.DBConnMaxLifeSec, "DB_CONN_MAX_LIFE_SECONDS", &problems)

	if v := strings.ToLower(strings.TrimSpace(os.Getenv("EVENT_BUS_MODE"))); v != "" {
		cfg.EventBusMode = v
	}

	readInt(&cfg.RedisDB, "REDIS_DB", &problems)
	readInt(&cfg.CacheTTLSeconds, "CACHE_TTL_SECONDS", &problems)

	readInt(&cfg.AsynqRedisDB, "ASYNQ_REDIS_DB", &problems)
	if v := strings.TrimSpace(os.Getenv("ASYNQ_QUEUE")); v != "" {
		cfg.AsynqQueue = v
	}
	readInt(&cfg.AsynqConcurrency, "ASYNQ_CONCURRENCY", &problems)
	readBool(&cfg.AsynqEnabled, "ASYNQ_ENABLED", &problems)

	readBool(&cfg.OtelEnabled, "OTEL_ENABLED", &problems)
	readBool(&cfg.OtelInsecure, "OTEL_INSECURE", &problems)
	readFloat(&cfg.OtelSampleRatio, "OTEL_SAMPLE_RATIO", &problems)

	if cfg.OIDCIssuer != "" && cfg.OIDCJWKSURL == "" {
		cfg.OIDCJWKSURL = strings.TrimRight(cfg.OIDCIssuer, "/") + "/.well-known/jwks.json"
	}

	if cfg.Env == "" {
		cfg.Env = "dev"
		problems = append(problems, Problem{Field: "ENV", Message: "ENV is required"})
	}
	if cfg.HTTPPort <= 0 || cfg.HTTPPort > 65535 {
		problems = append(problems, Problem{Field: "HTTP_PORT", Message: "HTTP_PORT must be 1-65535"})
		cfg.HTTPPort = httpPortDefault
	}
	if cfg.RequestTimeoutMS <= 0 {
		problems = append(problems, Problem{Field: "REQUEST_TIMEOUT_MS", Message: "REQUEST_TIMEOUT_MS must be > 0"})
		cfg.RequestTimeoutMS = 30000
	}
	cfg.RequestTimeout = time.Duration(cfg.RequestTimeoutMS) * time.Millisecond

	if cfg.EventBusMode != EventBusModeMemory && cfg.EventBusMode != EventBusModePersistent {
		problems = append(problems, Problem{Field: "EVENT_BUS_MODE", Message: "EVENT_BUS_MODE must be memory or persistent"})
		cfg.EventBusMode = EventBusModePersistent
	}
	if cfg.JWTSecret == "" && cfg.OIDCIssuer == "" {
		problems = append(problems, Problem{Field: "JWT_SECRET", Message: "JWT_SECRET or OIDC_ISSUER is required"})
	}
	if cfg.DBMinConns > cfg.DBMaxConns {
		problems = append(problems, Problem{Field: "DB_MIN_CONNS", Message: "DB_MIN_CONNS must be <= DB_MAX_CONNS"})
		cfg.DBMinConns = cfg.DBMaxConns
	}

	return cfg, problems
}

func readInt(dst *int, field string, problems *[]Problem) {
	raw := strings.TrimSpace(os.Getenv(field))
	if raw == "" {
		return
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		*problems = append(*problems, Problem{Field: field, Message: fmt.Sprintf("%s must be an integer", field)})
		return
	}
	*dst = v
}

func readBool(dst *bool, field string, problems *[]Problem) {
	raw := strings.TrimSpace(os.Getenv(field))
	if raw == "" {
		return
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		*problems = append(*problems, Problem{Field: field, Message: fmt.Sprintf("%s must be a boolean", field)})
		return
	}
	*dst = v
}

func readFloat(dst *float64, field string, problems *[]Problem) {
	raw := strings.TrimSpace(os.Getenv(field))
	if raw == "" {
		return
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		*problems = append(*problems, Problem{Field: field, Message: fmt.Sprintf("%s must be a number", field)})
		return
	}
	*dst = v
}
