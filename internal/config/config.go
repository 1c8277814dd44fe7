package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	RPC         RPCConfig
	Wallet      WalletConfig
	Inscription InscriptionConfig
	Store       StoreConfig
	Redis       RedisConfig
	Retry       RetryConfig
	Server      ServerConfig
	Tracing     TracingConfig
	Alert       AlertConfig
	Log         LogConfig
}

type RPCConfig struct {
	URL                     string
	SubmitTimeout           time.Duration
	QueryTimeout            time.Duration
	RateLimitRPS            float64
	RateLimitBurst          int
	BreakerFailureThreshold int
	BreakerOpenTimeout      time.Duration
}

type WalletConfig struct {
	PrivateKey   string
	AllowMainnet bool
}

// InscriptionConfig collects the message fields and the run size. The full
// JSON form wins over the discrete fields; a plan file wins over both.
type InscriptionConfig struct {
	JSON     string
	Op       string
	Protocol string
	Tick     string
	Amt      uint64
	ID       string
	Max      uint64
	Lim      uint64

	Count    int
	PlanFile string
}

type StoreConfig struct {
	Backend string // sqlite or postgres

	SQLitePath string

	DBURL           string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	// MigrationsDir, when set, applies pending *.up.sql migrations at
	// startup. Only meaningful for the postgres backend; sqlite bootstraps
	// its own schema.
	MigrationsDir string
}

// RedisConfig is optional: an empty URL disables the per-sender run lock.
type RedisConfig struct {
	URL        string
	RunLockTTL time.Duration
}

type RetryConfig struct {
	MaxAttempts    int
	BackoffInitial time.Duration
	BackoffMax     time.Duration
}

type ServerConfig struct {
	HealthPort int // 0 disables the health/metrics listener
}

type TracingConfig struct {
	Enabled     bool
	Endpoint    string
	Insecure    bool
	SampleRatio float64
}

type AlertConfig struct {
	SlackWebhookURL string
	WebhookURL      string
	Cooldown        time.Duration
}

type LogConfig struct {
	Level string
}

func Load() (*Config, error) {
	cfg := &Config{
		RPC: RPCConfig{
			URL:                     getEnv("RPC_URL", ""),
			SubmitTimeout:           time.Duration(getEnvInt("RPC_SUBMIT_TIMEOUT_SEC", 30)) * time.Second,
			QueryTimeout:            time.Duration(getEnvInt("RPC_QUERY_TIMEOUT_SEC", 15)) * time.Second,
			RateLimitRPS:            getEnvFloat("RPC_RATE_LIMIT_RPS", 0),
			RateLimitBurst:          getEnvInt("RPC_RATE_LIMIT_BURST", 1),
			BreakerFailureThreshold: getEnvInt("RPC_BREAKER_FAILURE_THRESHOLD", 5),
			BreakerOpenTimeout:      time.Duration(getEnvInt("RPC_BREAKER_OPEN_TIMEOUT_SEC", 30)) * time.Second,
		},
		Wallet: WalletConfig{
			PrivateKey:   getEnv("PRIVATE_KEY", ""),
			AllowMainnet: getEnvBool("INSCRIBER_ALLOW_MAINNET", false),
		},
		Inscription: InscriptionConfig{
			JSON:     getEnv("INSCRIPTION_JSON", ""),
			Op:       getEnv("INSCRIPTION_OP", "mint"),
			Protocol: getEnv("INSCRIPTION_PROTOCOL", ""),
			Tick:     getEnv("INSCRIPTION_TICK", ""),
			Amt:      getEnvUint64("INSCRIPTION_AMT", 0),
			ID:       getEnv("INSCRIPTION_ID", ""),
			Max:      getEnvUint64("INSCRIPTION_MAX", 0),
			Lim:      getEnvUint64("INSCRIPTION_LIM", 0),
			Count:    getEnvInt("INSCRIBER_COUNT", 1),
			PlanFile: getEnv("INSCRIBER_PLAN", ""),
		},
		Store: StoreConfig{
			Backend:         getEnv("STORE_BACKEND", "sqlite"),
			SQLitePath:      getEnv("SQLITE_PATH", "inscribememaybe.sqlite"),
			DBURL:           getEnv("DB_URL", ""),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: time.Duration(getEnvInt("DB_CONN_MAX_LIFETIME_MIN", 30)) * time.Minute,
			MigrationsDir:   getEnv("STORE_MIGRATIONS_DIR", ""),
		},
		Redis: RedisConfig{
			URL:        getEnv("REDIS_URL", ""),
			RunLockTTL: time.Duration(getEnvInt("RUN_LOCK_TTL_SEC", 600)) * time.Second,
		},
		Retry: RetryConfig{
			MaxAttempts:    getEnvInt("RETRY_MAX_ATTEMPTS", 5),
			BackoffInitial: time.Duration(getEnvInt("RETRY_BACKOFF_INITIAL_MS", 500)) * time.Millisecond,
			BackoffMax:     time.Duration(getEnvInt("RETRY_BACKOFF_MAX_MS", 8000)) * time.Millisecond,
		},
		Server: ServerConfig{
			HealthPort: getEnvInt("HEALTH_PORT", 8080),
		},
		Tracing: TracingConfig{
			Enabled:     getEnvBool("TRACING_ENABLED", false),
			Endpoint:    getEnv("TRACING_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getEnvBool("TRACING_INSECURE", true),
			SampleRatio: getEnvFloat("TRACING_SAMPLE_RATIO", 1),
		},
		Alert: AlertConfig{
			SlackWebhookURL: getEnv("ALERT_SLACK_WEBHOOK_URL", ""),
			WebhookURL:      getEnv("ALERT_WEBHOOK_URL", ""),
			Cooldown:        time.Duration(getEnvInt("ALERT_COOLDOWN_SEC", 300)) * time.Second,
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.RPC.URL == "" {
		return fmt.Errorf("RPC_URL is required")
	}
	if c.Wallet.PrivateKey == "" {
		return fmt.Errorf("PRIVATE_KEY is required")
	}
	switch c.Store.Backend {
	case "sqlite":
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required when STORE_BACKEND=sqlite")
		}
	case "postgres":
		if c.Store.DBURL == "" {
			return fmt.Errorf("DB_URL is required when STORE_BACKEND=postgres")
		}
	default:
		return fmt.Errorf("STORE_BACKEND must be sqlite or postgres, got %q", c.Store.Backend)
	}
	if c.Inscription.Count < 1 {
		return fmt.Errorf("INSCRIBER_COUNT must be at least 1")
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("RETRY_MAX_ATTEMPTS must be at least 1")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvUint64(key string, fallback uint64) uint64 {
	if v := os.Getenv(key); v != "" {
		if u, err := strconv.ParseUint(v, 10, 64); err == nil {
			return u
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
