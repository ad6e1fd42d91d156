package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Oracle providers understood by the command layer.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
)

// Snapshot backends.
const (
	BackendPostgres = "postgres"
	BackendS3       = "s3"
)

// Config is the process configuration, read from NEWSDIGEST_* environment
// variables.
type Config struct {
	DatabaseURL string // NEWSDIGEST_DATABASE_URL (required)
	HTTPAddr    string // NEWSDIGEST_HTTP_ADDR (default ":8080")
	NATSURL     string // NEWSDIGEST_NATS_URL (optional, empty = no events)
	AuthToken   string // NEWSDIGEST_AUTH_TOKEN (optional, empty = auth disabled)
	LogFormat   string // NEWSDIGEST_LOG_FORMAT ("text" or "json", default "text")

	// Oracle settings
	OracleProvider string  // NEWSDIGEST_ORACLE_PROVIDER (default "anthropic")
	OracleModel    string  // NEWSDIGEST_ORACLE_MODEL (provider default when empty)
	OracleAPIKey   string  // NEWSDIGEST_ORACLE_API_KEY (SDK env lookup when empty)
	OracleRPS      float64 // NEWSDIGEST_ORACLE_RPS (default 2, 0 = unlimited)

	// Run settings
	WindowDays  int            // NEWSDIGEST_WINDOW_DAYS (default 3)
	RunBudget   time.Duration  // NEWSDIGEST_RUN_BUDGET (default 10m)
	RunInterval time.Duration  // NEWSDIGEST_RUN_INTERVAL (default 0 = no schedule)
	Location    *time.Location // NEWSDIGEST_TIMEZONE (default UTC)
	Incremental bool           // NEWSDIGEST_INCREMENTAL (default true)
	PolicyFile  string         // NEWSDIGEST_POLICY_FILE (optional TOML digest policy)

	// TriggerDebounce coalesces bursts of source-translated notifications.
	TriggerDebounce time.Duration // NEWSDIGEST_TRIGGER_DEBOUNCE (default 30s)

	// Snapshot storage
	SnapshotBackend string // NEWSDIGEST_SNAPSHOT_BACKEND (default "postgres")
	S3Bucket        string // NEWSDIGEST_S3_BUCKET (required for s3 backend or sync)
	S3Endpoint      string // NEWSDIGEST_S3_ENDPOINT (custom endpoint for MinIO)
	S3Region        string // NEWSDIGEST_S3_REGION (default "us-east-1")
	S3Prefix        string // NEWSDIGEST_S3_PREFIX (default "newsdigest/snapshots")

	// Backup export
	SyncInterval time.Duration // NEWSDIGEST_SYNC_INTERVAL (default 0 = disabled)
	SyncKey      string        // NEWSDIGEST_SYNC_KEY (default "newsdigest/events.jsonl")
}

// Load reads and validates the configuration.
func Load() (*Config, error) {
	c := &Config{
		DatabaseURL:     os.Getenv("NEWSDIGEST_DATABASE_URL"),
		HTTPAddr:        envOrDefault("NEWSDIGEST_HTTP_ADDR", ":8080"),
		NATSURL:         os.Getenv("NEWSDIGEST_NATS_URL"),
		AuthToken:       os.Getenv("NEWSDIGEST_AUTH_TOKEN"),
		LogFormat:       envOrDefault("NEWSDIGEST_LOG_FORMAT", "text"),
		OracleProvider:  envOrDefault("NEWSDIGEST_ORACLE_PROVIDER", ProviderAnthropic),
		OracleModel:     os.Getenv("NEWSDIGEST_ORACLE_MODEL"),
		OracleAPIKey:    os.Getenv("NEWSDIGEST_ORACLE_API_KEY"),
		PolicyFile:      os.Getenv("NEWSDIGEST_POLICY_FILE"),
		SnapshotBackend: envOrDefault("NEWSDIGEST_SNAPSHOT_BACKEND", BackendPostgres),
		S3Bucket:        os.Getenv("NEWSDIGEST_S3_BUCKET"),
		S3Endpoint:      os.Getenv("NEWSDIGEST_S3_ENDPOINT"),
		S3Region:        envOrDefault("NEWSDIGEST_S3_REGION", "us-east-1"),
		S3Prefix:        envOrDefault("NEWSDIGEST_S3_PREFIX", "newsdigest/snapshots"),
		SyncKey:         envOrDefault("NEWSDIGEST_SYNC_KEY", "newsdigest/events.jsonl"),
	}
	if c.DatabaseURL == "" {
		return nil, fmt.Errorf("NEWSDIGEST_DATABASE_URL is required")
	}

	switch c.OracleProvider {
	case ProviderAnthropic, ProviderOpenAI:
	default:
		return nil, fmt.Errorf("NEWSDIGEST_ORACLE_PROVIDER: unknown provider %q", c.OracleProvider)
	}
	switch c.SnapshotBackend {
	case BackendPostgres:
	case BackendS3:
		if c.S3Bucket == "" {
			return nil, fmt.Errorf("NEWSDIGEST_S3_BUCKET is required for the s3 snapshot backend")
		}
	default:
		return nil, fmt.Errorf("NEWSDIGEST_SNAPSHOT_BACKEND: unknown backend %q", c.SnapshotBackend)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return nil, fmt.Errorf("NEWSDIGEST_LOG_FORMAT: unknown format %q", c.LogFormat)
	}

	var err error
	if c.WindowDays, err = envInt("NEWSDIGEST_WINDOW_DAYS", 3); err != nil {
		return nil, err
	}
	if c.WindowDays < 1 {
		return nil, fmt.Errorf("NEWSDIGEST_WINDOW_DAYS must be at least 1")
	}
	if c.RunBudget, err = envDuration("NEWSDIGEST_RUN_BUDGET", "10m"); err != nil {
		return nil, err
	}
	if c.RunInterval, err = envDuration("NEWSDIGEST_RUN_INTERVAL", "0"); err != nil {
		return nil, err
	}
	if c.TriggerDebounce, err = envDuration("NEWSDIGEST_TRIGGER_DEBOUNCE", "30s"); err != nil {
		return nil, err
	}
	if c.SyncInterval, err = envDuration("NEWSDIGEST_SYNC_INTERVAL", "0"); err != nil {
		return nil, err
	}
	if c.SyncInterval > 0 && c.S3Bucket == "" {
		return nil, fmt.Errorf("NEWSDIGEST_S3_BUCKET is required when NEWSDIGEST_SYNC_INTERVAL is set")
	}

	rps := envOrDefault("NEWSDIGEST_ORACLE_RPS", "2")
	if c.OracleRPS, err = strconv.ParseFloat(rps, 64); err != nil {
		return nil, fmt.Errorf("NEWSDIGEST_ORACLE_RPS: %w", err)
	}
	if c.OracleRPS < 0 {
		return nil, fmt.Errorf("NEWSDIGEST_ORACLE_RPS must not be negative")
	}

	incremental := envOrDefault("NEWSDIGEST_INCREMENTAL", "true")
	if c.Incremental, err = strconv.ParseBool(incremental); err != nil {
		return nil, fmt.Errorf("NEWSDIGEST_INCREMENTAL: %w", err)
	}

	tz := envOrDefault("NEWSDIGEST_TIMEZONE", "UTC")
	if c.Location, err = time.LoadLocation(tz); err != nil {
		return nil, fmt.Errorf("NEWSDIGEST_TIMEZONE: %w", err)
	}

	return c, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func envDuration(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(envOrDefault(key, fallback))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
