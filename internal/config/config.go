package config

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"

	maxQuoteTimeout = 30 * time.Second
)

type Config struct {
	// API
	APIPort         int
	APIKey          string
	CORSAllowOrigin string
	LogLevel        string

	// Storage
	Store      string
	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	// AutoMigrate applies the schema at startup.
	AutoMigrate bool

	// Quote providers
	FMPAPIKey              string
	FMPBaseURL             string
	SecondaryQuoteURL      string
	SecondaryQuoteName     string
	SecondaryPricePath     string
	SecondaryChangePath    string
	SecondaryPrevClosePath string
	QuoteTimeout           time.Duration
	QuoteCacheTTL          time.Duration
	QuoteCacheSweep        time.Duration

	// Ledger
	InitialCashCents int64
	SectorsFile      string

	// Streaming
	StreamInterval time.Duration

	// Rate limiting
	RedisAddr          string
	RateLimitPerMinute int

	// Trade events
	KafkaBrokers []string
	KafkaTopic   string

	// Notifications
	WebhookURL string
	AppName    string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		APIPort:         envInt("API_PORT", 3001),
		APIKey:          envStr("API_KEY", ""),
		CORSAllowOrigin: envStr("CORS_ALLOW_ORIGIN", "*"),
		LogLevel:        envStr("LOG_LEVEL", "info"),

		Store:       strings.ToLower(envStr("STORE", StorePostgres)),
		DBHost:      envStr("DB_HOST", "localhost"),
		DBPort:      envInt("DB_PORT", 5432),
		DBName:      envStr("DB_NAME", "stonks"),
		DBUser:      envStr("DB_USER", ""),
		DBPassword:  envStr("DB_PASSWORD", ""),
		AutoMigrate: envBool("DB_AUTO_MIGRATE", true),

		FMPAPIKey:              envStr("FMP_API_KEY", ""),
		FMPBaseURL:             envStr("FMP_BASE_URL", "https://financialmodelingprep.com/api/v3"),
		SecondaryQuoteURL:      envStr("SECONDARY_QUOTE_URL", ""),
		SecondaryQuoteName:     envStr("SECONDARY_QUOTE_NAME", "secondary"),
		SecondaryPricePath:     envStr("SECONDARY_PRICE_PATH", "$.c"),
		SecondaryChangePath:    envStr("SECONDARY_CHANGE_PATH", "$.dp"),
		SecondaryPrevClosePath: envStr("SECONDARY_PREV_CLOSE_PATH", "$.pc"),
		QuoteTimeout:           envDuration("QUOTE_TIMEOUT", 6*time.Second),
		QuoteCacheTTL:          envDuration("QUOTE_CACHE_TTL", 15*time.Second),
		QuoteCacheSweep:        envDuration("QUOTE_CACHE_SWEEP", time.Minute),

		InitialCashCents: int64(envInt("INITIAL_CASH_CENTS", 1_000_000)),
		SectorsFile:      envStr("SECTORS_FILE", ""),

		StreamInterval: envDuration("STREAM_INTERVAL", 10*time.Second),

		RedisAddr:          envStr("REDIS_ADDR", ""),
		RateLimitPerMinute: envInt("RATE_LIMIT_PER_MINUTE", 120),

		KafkaBrokers: envList("KAFKA_BROKERS"),
		KafkaTopic:   envStr("KAFKA_TOPIC", "trades"),

		WebhookURL: envStr("WEBHOOK_URL", ""),
		AppName:    envStr("APP_NAME", "Stonks"),
	}

	return cfg, nil
}

// Validate returns every hard problem at once.
func (c *Config) Validate() error {
	var errs []string

	if c.Store != StorePostgres && c.Store != StoreMemory {
		errs = append(errs, fmt.Sprintf("STORE must be %q or %q, got %q", StorePostgres, StoreMemory, c.Store))
	}
	if c.APIPort <= 0 || c.APIPort > 65535 {
		errs = append(errs, fmt.Sprintf("API_PORT out of range: %d", c.APIPort))
	}
	if c.QuoteTimeout <= 0 || c.QuoteTimeout > maxQuoteTimeout {
		errs = append(errs, fmt.Sprintf("QUOTE_TIMEOUT must be in (0, %s], got %s", maxQuoteTimeout, c.QuoteTimeout))
	}
	if c.QuoteCacheTTL <= 0 {
		errs = append(errs, "QUOTE_CACHE_TTL must be positive")
	}
	if c.StreamInterval <= 0 {
		errs = append(errs, "STREAM_INTERVAL must be positive")
	}
	if c.InitialCashCents < 0 {
		errs = append(errs, "INITIAL_CASH_CENTS cannot be negative")
	}
	if c.SecondaryQuoteURL != "" && !strings.Contains(c.SecondaryQuoteURL, "{symbol}") {
		errs = append(errs, "SECONDARY_QUOTE_URL must contain {symbol}")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  %s", strings.Join(errs, "\n  "))
	}
	return nil
}

// Warnings lists soft problems worth logging at startup.
func (c *Config) Warnings() []string {
	var w []string
	if c.FMPAPIKey == "" && c.SecondaryQuoteURL == "" {
		w = append(w, "no quote provider configured, every quote will be a stub price")
	} else if c.FMPAPIKey == "" {
		w = append(w, "FMP_API_KEY not set, primary provider disabled")
	}
	if c.APIKey == "" {
		w = append(w, "API_KEY not set, REST API has no authentication")
	}
	if c.Store == StoreMemory {
		w = append(w, "STORE=memory, ledger state is lost on restart")
	}
	return w
}

func (c *Config) Print(w io.Writer) {
	fmt.Fprintln(w, "=== Stonks Configuration ===")
	fmt.Fprintf(w, "API Port: %d\n", c.APIPort)
	fmt.Fprintf(w, "API Auth: %s\n", boolLabel(c.APIKey != "", "enabled", "disabled"))
	fmt.Fprintf(w, "Store: %s\n", c.Store)
	if c.Store == StorePostgres {
		fmt.Fprintf(w, "Database: %s@%s:%d/%s\n", c.DBUser, c.DBHost, c.DBPort, c.DBName)
	}
	fmt.Fprintln(w, "--------------------------------------")
	fmt.Fprintln(w, "Quotes:")
	fmt.Fprintf(w, "  FMP: %s\n", boolLabel(c.FMPAPIKey != "", "configured ("+mask(c.FMPAPIKey)+")", "not set"))
	fmt.Fprintf(w, "  Secondary: %s\n", boolLabel(c.SecondaryQuoteURL != "", c.SecondaryQuoteName, "not set"))
	fmt.Fprintf(w, "  Timeout: %s\n", c.QuoteTimeout)
	fmt.Fprintf(w, "  Cache TTL: %s\n", c.QuoteCacheTTL)
	fmt.Fprintf(w, "  Stream Interval: %s\n", c.StreamInterval)
	fmt.Fprintln(w, "--------------------------------------")
	fmt.Fprintf(w, "Initial Cash: %d cents\n", c.InitialCashCents)
	fmt.Fprintf(w, "Rate Limit: %s\n", boolLabel(c.RedisAddr != "", fmt.Sprintf("%d/min via %s", c.RateLimitPerMinute, c.RedisAddr), "disabled"))
	fmt.Fprintf(w, "Trade Events: %s\n", boolLabel(len(c.KafkaBrokers) > 0, c.KafkaTopic+" on "+strings.Join(c.KafkaBrokers, ","), "disabled"))
	fmt.Fprintf(w, "Webhook: %s\n", boolLabel(c.WebhookURL != "", "configured", "not set"))
	fmt.Fprintln(w, "======================================")
}

func (c *Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName)
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

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		v = strings.ToLower(v)
		return v == "true" || v == "1" || v == "yes"
	}
	return fallback
}

// envDuration accepts Go durations ("15s") or a bare number of seconds.
func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}

func envList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func mask(secret string) string {
	if len(secret) <= 4 {
		return "****"
	}
	return secret[:2] + "****" + secret[len(secret)-2:]
}

func boolLabel(cond bool, ifTrue, ifFalse string) string {
	if cond {
		return ifTrue
	}
	return ifFalse
}
