package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	LogLevel    string

	HTTPAddr string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// DefaultControlPlugins is the configured control-plugin chain applied
	// when a request does not carry its own list.
	DefaultControlPlugins []string

	// PluginCallTimeout bounds gateway Execute and QueryStatus calls.
	PluginCallTimeout time.Duration

	Janitor JanitorConfig
}

// JanitorConfig tunes the reconciliation worker.
type JanitorConfig struct {
	RunInterval time.Duration
	BatchSize   int
	// DelayBeforeNow keeps freshly created transactions out of a pass so an
	// in-flight call can finish on its own.
	DelayBeforeNow time.Duration
	// GiveUpHorizon bounds how far back a pass looks for stuck transactions.
	GiveUpHorizon time.Duration
	// MaxAttempts is the reconciliation retry ceiling per transaction.
	MaxAttempts int
	// QueryRetries bounds plugin status re-queries within a single pass.
	QueryRetries int
	LockTTL      time.Duration
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:     getenv("APP_SERVICE", "paycore"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		LogLevel:    getenv("LOG_LEVEL", "info"),

		HTTPAddr: getenv("HTTP_ADDR", ":8080"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "paycore"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 3600),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 600),

		RedisAddr:     getenv("REDIS_ADDR", ""),
		RedisPassword: getenv("REDIS_PASSWORD", ""),
		RedisDB:       getenvInt("REDIS_DB", 0),

		DefaultControlPlugins: splitList(getenv("CONTROL_PLUGINS", "")),
		PluginCallTimeout:     getenvDuration("PLUGIN_CALL_TIMEOUT", 30*time.Second),

		Janitor: JanitorConfig{
			RunInterval:    getenvDuration("JANITOR_RUN_INTERVAL", time.Minute),
			BatchSize:      getenvInt("JANITOR_BATCH_SIZE", 100),
			DelayBeforeNow: getenvDuration("JANITOR_DELAY_BEFORE_NOW", 5*time.Minute),
			GiveUpHorizon:  getenvDuration("JANITOR_GIVE_UP_HORIZON", 7*24*time.Hour),
			MaxAttempts:    getenvInt("JANITOR_MAX_ATTEMPTS", 20),
			QueryRetries:   getenvInt("JANITOR_QUERY_RETRIES", 3),
			LockTTL:        getenvDuration("JANITOR_LOCK_TTL", time.Minute),
		},
	}
}

// WithDefaults fills zero janitor settings with their defaults. Tests build
// partial configs; this keeps them runnable.
func (c JanitorConfig) WithDefaults() JanitorConfig {
	out := c
	if out.RunInterval <= 0 {
		out.RunInterval = time.Minute
	}
	if out.BatchSize <= 0 {
		out.BatchSize = 100
	}
	if out.GiveUpHorizon <= 0 {
		out.GiveUpHorizon = 7 * 24 * time.Hour
	}
	if out.MaxAttempts <= 0 {
		out.MaxAttempts = 20
	}
	if out.QueryRetries <= 0 {
		out.QueryRetries = 3
	}
	if out.LockTTL <= 0 {
		out.LockTTL = time.Minute
	}
	return out
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

// Module provides the application configuration.
var Module = fx.Module("config",
	fx.Provide(Load),
)
