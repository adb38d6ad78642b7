package domain

import (
	"fmt"
	"strconv"
	"time"
)

// Config holds the complete LedgerLens configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Tier determines which backends are used by default
	Tier Tier `json:"tier"`

	// Component configurations
	Ledger     LedgerConfig     `json:"ledger"`
	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`

	// Observability
	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
	Metrics MetricsConfig `json:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`  // seconds
	WriteTimeout int    `json:"writeTimeout"` // seconds
}

// LedgerConfig describes where the ledger and its fraud labels come from.
type LedgerConfig struct {
	// Source is "file", "gcs" or "sql"
	Source string `json:"source"`

	// Local file paths (Source == "file")
	Path       string `json:"path"`
	LabelsPath string `json:"labelsPath"`

	// Cloud Storage objects (Source == "gcs")
	GCSBucket       string `json:"gcsBucket"`
	GCSObject       string `json:"gcsObject"`
	GCSLabelsObject string `json:"gcsLabelsObject"`
	GCSEndpoint     string `json:"gcsEndpoint"` // emulator override

	// Schema is "auto", "banking" or "card"
	Schema string `json:"schema"`

	// FraudRule overrides the schema default ("column", "labels", "errors")
	FraudRule string `json:"fraudRule"`

	// WarmOnStart loads the snapshot before the server accepts traffic
	WarmOnStart bool `json:"warmOnStart"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `json:"enabled"`
	ServiceName string `json:"serviceName"`
}

// MetricsConfig holds Prometheus exposition settings.
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// Tier represents the deployment tier.
type Tier string

const (
	// TierCommunity reads a local file with an in-process cache and bus
	TierCommunity Tier = "community"

	// TierPro reads from PostgreSQL with Redis and NATS
	TierPro Tier = "pro"
)

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8000,
			ReadTimeout:  30,
			WriteTimeout: 60,
		},
		Tier: TierCommunity,
		Ledger: LedgerConfig{
			Source:      "file",
			Path:        "./data/transactions.csv",
			LabelsPath:  "./data/train_fraud_labels.json",
			Schema:      string(SchemaAuto),
			WarmOnStart: true,
		},
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./ledgerlens.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 1000,
			LocalTTL:     5 * time.Minute,
			ResultTTL:    5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 64,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "ledgerlens",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// ProConfig returns a configuration for Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Ledger.Source = "sql"
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "ledgerlens",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   500,
		LocalTTL:       time.Minute,
		ResultTTL:      5 * time.Minute,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Tracing.Enabled = true
	return cfg
}

// FromEnv builds the configuration for the tier named by LEDGERLENS_TIER and
// applies the remaining LEDGERLENS_* overrides. getenv is usually os.Getenv.
func FromEnv(getenv func(string) string) (*Config, error) {
	var cfg *Config
	switch tier := Tier(getenv("LEDGERLENS_TIER")); tier {
	case "", TierCommunity:
		cfg = DefaultConfig()
	case TierPro:
		cfg = ProConfig()
	default:
		return nil, fmt.Errorf("%w: unknown tier %q", ErrInvalidArgument, tier)
	}

	if getenv("LEDGERLENS_DEBUG") == "true" {
		cfg.Logging.Level = "debug"
	}
	if v := getenv("LEDGERLENS_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port < 1 || port > 65535 {
			return nil, fmt.Errorf("%w: LEDGERLENS_PORT must be a port number, got %q", ErrInvalidArgument, v)
		}
		cfg.Server.Port = port
	}

	strs := []struct {
		env string
		dst *string
	}{
		{"LEDGERLENS_LEDGER_SOURCE", &cfg.Ledger.Source},
		{"LEDGERLENS_LEDGER_PATH", &cfg.Ledger.Path},
		{"LEDGERLENS_LABELS_PATH", &cfg.Ledger.LabelsPath},
		{"LEDGERLENS_SCHEMA", &cfg.Ledger.Schema},
		{"LEDGERLENS_FRAUD_RULE", &cfg.Ledger.FraudRule},
		{"LEDGERLENS_GCS_BUCKET", &cfg.Ledger.GCSBucket},
		{"LEDGERLENS_GCS_OBJECT", &cfg.Ledger.GCSObject},
		{"LEDGERLENS_GCS_LABELS_OBJECT", &cfg.Ledger.GCSLabelsObject},
		{"LEDGERLENS_GCS_ENDPOINT", &cfg.Ledger.GCSEndpoint},
		{"LEDGERLENS_SQLITE_PATH", &cfg.Repository.SQLitePath},
		{"LEDGERLENS_POSTGRES_HOST", &cfg.Repository.PostgresHost},
		{"LEDGERLENS_POSTGRES_USER", &cfg.Repository.PostgresUser},
		{"LEDGERLENS_POSTGRES_PASSWORD", &cfg.Repository.PostgresPassword},
		{"LEDGERLENS_REDIS_ADDR", &cfg.Cache.RedisAddr},
		{"LEDGERLENS_NATS_URL", &cfg.EventBus.NATSUrl},
	}
	for _, s := range strs {
		if v := getenv(s.env); v != "" {
			*s.dst = v
		}
	}

	schema, err := ParseLedgerSchema(cfg.Ledger.Schema)
	if err != nil {
		return nil, err
	}
	rule, err := ParseFraudRule(cfg.Ledger.FraudRule)
	if err != nil {
		return nil, err
	}
	if rule != "" && schema != SchemaAuto && !schema.Supports(rule) {
		return nil, fmt.Errorf("%w: fraud rule %q is not available for %s ledgers", ErrInvalidArgument, rule, schema)
	}
	cfg.Ledger.FraudRule = string(rule)
	return cfg, nil
}
