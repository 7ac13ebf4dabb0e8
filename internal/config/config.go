package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/SARVESHVARADKAR123/RealChat/services/chat/internal/reconciler"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	ServiceName string `env:"SERVICE_NAME" envDefault:"chat-service"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	InstanceID  string `env:"INSTANCE_ID"`

	HTTPAddr    string `env:"HTTP_ADDR" envDefault:":8080"`
	ObsHTTPAddr string `env:"OBS_HTTP_ADDR" envDefault:":8090"`
	GRPCAddr    string `env:"GRPC_ADDR" envDefault:":50060"`

	StoreDriver string `env:"STORE_DRIVER" envDefault:"postgres"`
	DatabaseURL string `env:"DATABASE_URL"`

	// Empty disables the Redis presence mirror.
	RedisAddr string `env:"REDIS_ADDR"`

	// Empty disables outbox publishing.
	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `env:"KAFKA_TOPIC" envDefault:"message-events"`

	// Empty trusts the user_id query parameter; for local development only.
	JWTSecret string `env:"JWT_SECRET"`
	JWTIssuer string `env:"JWT_ISSUER"`

	TracingEnabled bool   `env:"TRACING_ENABLED" envDefault:"false"`
	JaegerURL      string `env:"JAEGER_URL" envDefault:"http://localhost:14268/api/traces"`

	SweepInterval  time.Duration `env:"SWEEP_INTERVAL" envDefault:"1m"`
	SweepSchedule  string        `env:"SWEEP_SCHEDULE"`
	SweepBatchSize int           `env:"SWEEP_BATCH_SIZE" envDefault:"100"`

	OutboxBatchSize  int           `env:"OUTBOX_BATCH_SIZE" envDefault:"50"`
	OutboxPollDelay  time.Duration `env:"OUTBOX_POLL_DELAY" envDefault:"500ms"`
	OutboxMaxRetries int           `env:"OUTBOX_MAX_RETRIES" envDefault:"3"`

	RateLimitRequests int           `env:"RATE_LIMIT_REQUESTS" envDefault:"20"`
	RateLimitWindow   time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"1m"`
}

// Load reads the configuration from the environment and validates it.
func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.HTTPAddr = fixPort(cfg.HTTPAddr)
	cfg.ObsHTTPAddr = fixPort(cfg.ObsHTTPAddr)
	cfg.GRPCAddr = fixPort(cfg.GRPCAddr)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	switch c.StoreDriver {
	case DriverPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required when STORE_DRIVER=postgres"))
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver))
	}

	if c.SweepSchedule != "" {
		if _, err := reconciler.Cron(c.SweepSchedule); err != nil {
			errs = append(errs, fmt.Errorf("SWEEP_SCHEDULE: %w", err))
		}
	}
	if c.SweepBatchSize <= 0 {
		errs = append(errs, errors.New("SWEEP_BATCH_SIZE must be positive"))
	}
	if c.RateLimitRequests <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_REQUESTS must be positive"))
	}

	return errors.Join(errs...)
}

// Schedule returns the sweep schedule: the cron expression when set,
// otherwise the fixed interval.
func (c *Config) Schedule() reconciler.Schedule {
	if c.SweepSchedule != "" {
		if s, err := reconciler.Cron(c.SweepSchedule); err == nil {
			return s
		}
	}
	return reconciler.Every(c.SweepInterval)
}

func fixPort(port string) string {
	if port != "" && !strings.Contains(port, ":") {
		return ":" + port
	}
	return port
}
