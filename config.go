package flowops

import (
	"os"
	"strconv"
	"time"
)

// Config holds service-level configuration.
type Config struct {
	// HTTPAddr is the listen address for the HTTP API.
	HTTPAddr string

	// RedisURL is the Redis connection URL. When empty the service falls
	// back to the in-memory store (single-process, non-durable).
	RedisURL string

	// QueueName is the backlog queue the ingestion layer pushes every
	// envelope onto.
	QueueName string

	// IdempotencyTTL is how long a processed event's dedup record lives.
	IdempotencyTTL time.Duration

	// CheckpointTTL is how long step checkpoints live.
	CheckpointTTL time.Duration

	// RunTTL is how long run records live. Runs are never deleted
	// explicitly; they expire.
	RunTTL time.Duration

	// DrainConcurrency bounds the background workers draining the backlog.
	DrainConcurrency int

	// WebhookRateLimit is the max webhook batches accepted per source per
	// WebhookRateWindow. Zero disables limiting.
	WebhookRateLimit  int64
	WebhookRateWindow time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:          ":8080",
		QueueName:         "event_backlog",
		IdempotencyTTL:    1 * time.Hour,
		CheckpointTTL:     24 * time.Hour,
		RunTTL:            7 * 24 * time.Hour,
		DrainConcurrency:  4,
		WebhookRateLimit:  0,
		WebhookRateWindow: 1 * time.Minute,
	}
}

// LoadConfig builds a Config from defaults overlaid with FLOWOPS_* env vars.
func LoadConfig() Config {
	cfg := DefaultConfig()
	if v := os.Getenv("FLOWOPS_HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	if v := os.Getenv("FLOWOPS_REDIS_URL"); v != "" {
		cfg.RedisURL = v
	}
	if v := os.Getenv("FLOWOPS_QUEUE"); v != "" {
		cfg.QueueName = v
	}
	if d, ok := envDuration("FLOWOPS_IDEMPOTENCY_TTL"); ok {
		cfg.IdempotencyTTL = d
	}
	if d, ok := envDuration("FLOWOPS_CHECKPOINT_TTL"); ok {
		cfg.CheckpointTTL = d
	}
	if d, ok := envDuration("FLOWOPS_RUN_TTL"); ok {
		cfg.RunTTL = d
	}
	if v := os.Getenv("FLOWOPS_DRAIN_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.DrainConcurrency = n
		}
	}
	if v := os.Getenv("FLOWOPS_WEBHOOK_RATE_LIMIT"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n >= 0 {
			cfg.WebhookRateLimit = n
		}
	}
	if d, ok := envDuration("FLOWOPS_WEBHOOK_RATE_WINDOW"); ok {
		cfg.WebhookRateWindow = d
	}
	return cfg
}

func envDuration(name string) (time.Duration, bool) {
	v := os.Getenv(name)
	if v == "" {
		return 0, false
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, false
	}
	return d, true
}
