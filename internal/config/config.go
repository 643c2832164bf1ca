package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/RoeeEidan/Chain-Prices/internal/models"
)

// ErrMissingConfig marks configuration without which no task may run.
var ErrMissingConfig = errors.New("missing required configuration")

const (
	BackendPostgres   = "postgres"
	BackendBadger     = "badger"
	BackendClickHouse = "clickhouse"
	BackendMemory     = "memory"
)

type Config struct {
	// Chain
	RPCURL     string
	RPCTimeout time.Duration

	// Store
	StoreBackend  string
	TableName     string
	StoreTimeout  time.Duration
	RetentionDays int
	QueryPageSize int
	BadgerDir     string
	ClickHouseDSN string
	DBHost        string
	DBPort        int
	DBName        string
	DBUser        string
	DBPassword    string

	// Publishing
	KafkaBrokers []string
	KafkaTopic   string
	WebhookURL   string

	// Timing
	IngestInterval time.Duration

	// Presentation
	PricePrecision int
	DefaultDays    int

	// API
	APIPort         int
	CORSAllowOrigin string

	LogLevel    string
	CatalogPath string

	Catalog []models.Asset
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		RPCURL:     envStr("RPC_URL", ""),
		RPCTimeout: envDuration("RPC_TIMEOUT", 10*time.Second),

		StoreBackend:  strings.ToLower(envStr("STORE_BACKEND", BackendPostgres)),
		TableName:     envStr("PRICES_TABLE_NAME", "price_points"),
		StoreTimeout:  envDuration("STORE_TIMEOUT", 10*time.Second),
		RetentionDays: envInt("RETENTION_DAYS", 0),
		QueryPageSize: envInt("QUERY_PAGE_SIZE", 100),
		BadgerDir:     envStr("BADGER_DIR", "data/badger"),
		ClickHouseDSN: envStr("CLICKHOUSE_DSN", ""),
		DBHost:        envStr("DB_HOST", "localhost"),
		DBPort:        envInt("DB_PORT", 5432),
		DBName:        envStr("DB_NAME", "chain_prices"),
		DBUser:        envStr("DB_USER", ""),
		DBPassword:    envStr("DB_PASSWORD", ""),

		KafkaBrokers: envList("KAFKA_BROKERS"),
		KafkaTopic:   envStr("KAFKA_TOPIC", "price-points"),
		WebhookURL:   envStr("WEBHOOK_URL", ""),

		IngestInterval: envDuration("INGEST_INTERVAL", time.Minute),

		PricePrecision: envInt("PRICE_PRECISION", 6),
		DefaultDays:    envInt("DEFAULT_WINDOW_DAYS", 7),

		APIPort:         envInt("API_PORT", 3001),
		CORSAllowOrigin: envStr("CORS_ALLOW_ORIGIN", "*"),

		LogLevel:    envStr("LOG_LEVEL", "info"),
		CatalogPath: envStr("CATALOG_PATH", "catalog.yaml"),
	}

	catalog, err := LoadCatalog(cfg.CatalogPath)
	if err != nil {
		return nil, err
	}
	cfg.Catalog = catalog

	return cfg, nil
}

// Validate reports every hard problem at once. Soft problems are logged.
func (c *Config) Validate() error { return c.validate(true) }

// ValidateReadOnly is Validate for processes that only read the store and
// never dial the chain.
func (c *Config) ValidateReadOnly() error { return c.validate(false) }

func (c *Config) validate(needsChain bool) error {
	var errs []string

	if needsChain && c.RPCURL == "" {
		errs = append(errs, "RPC_URL is required")
	}
	if c.TableName == "" {
		errs = append(errs, "PRICES_TABLE_NAME is required")
	}

	switch c.StoreBackend {
	case BackendPostgres:
		if c.DBUser == "" {
			errs = append(errs, "DB_USER is required for the postgres store")
		}
	case BackendBadger:
		if c.BadgerDir == "" {
			errs = append(errs, "BADGER_DIR is required for the badger store")
		}
	case BackendClickHouse:
		if c.ClickHouseDSN == "" {
			errs = append(errs, "CLICKHOUSE_DSN is required for the clickhouse store")
		}
	case BackendMemory:
		log.Warn("STORE_BACKEND=memory - points are lost on restart")
	default:
		errs = append(errs, fmt.Sprintf("STORE_BACKEND %q is not one of postgres, badger, clickhouse, memory", c.StoreBackend))
	}

	if c.PricePrecision < 2 || c.PricePrecision > 8 {
		errs = append(errs, "PRICE_PRECISION must be between 2 and 8")
	}
	if c.IngestInterval <= 0 {
		errs = append(errs, "INGEST_INTERVAL must be positive")
	}
	if c.QueryPageSize <= 0 {
		errs = append(errs, "QUERY_PAGE_SIZE must be positive")
	}
	if err := ValidateCatalog(c.Catalog); err != nil {
		errs = append(errs, err.Error())
	}

	if c.RetentionDays <= 0 {
		log.Warn("RETENTION_DAYS not set - stored points are never pruned")
	}
	if len(c.KafkaBrokers) == 0 {
		log.Info("KAFKA_BROKERS not set - point publishing disabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w:\n  %s", ErrMissingConfig, strings.Join(errs, "\n  "))
	}
	return nil
}

func (c *Config) Print() {
	fmt.Println("=== Chain Prices Configuration ===")
	fmt.Printf("RPC: %s\n", redactURL(c.RPCURL))
	fmt.Printf("Store: %s (table %s)\n", c.StoreBackend, c.TableName)
	fmt.Printf("Ingest interval: %s\n", c.IngestInterval)
	fmt.Printf("Retention: %s\n", boolLabel(c.RetentionDays > 0, fmt.Sprintf("%d days", c.RetentionDays), "unbounded"))
	fmt.Printf("Kafka: %s\n", boolLabel(len(c.KafkaBrokers) > 0, strings.Join(c.KafkaBrokers, ","), "disabled"))
	fmt.Printf("Webhook: %s\n", boolLabel(c.WebhookURL != "", redactURL(c.WebhookURL), "disabled"))
	fmt.Println("--------------------------------------")
	fmt.Printf("Catalog (%d assets):\n", len(c.Catalog))
	for _, a := range c.Catalog {
		fmt.Printf("  %-5s %-14s feed %s...%s\n", a.ID, a.Name, truncAddr(a.PriceFeed), boolLabel(a.HasToken(), " +supply", ""))
	}
	fmt.Println("======================================")
}

func (c *Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName)
}

// Retention returns how long points are kept, or 0 for forever.
func (c *Config) Retention() time.Duration {
	if c.RetentionDays <= 0 {
		return 0
	}
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

// --- helpers ---

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		if secs, err := strconv.Atoi(v); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return fallback
}

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func redactURL(u string) string {
	if u == "" {
		return "(not set)"
	}
	// Provider URLs usually carry the API key in the last path segment.
	if i := strings.LastIndex(u, "/"); i > len("https://") && i < len(u)-1 {
		return u[:i+1] + "***"
	}
	return u
}

func truncAddr(addr string) string {
	if len(addr) > 10 {
		return addr[:10]
	}
	return addr
}

func boolLabel(cond bool, ifTrue, ifFalse string) string {
	if cond {
		return ifTrue
	}
	return ifFalse
}
