package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Notification NotificationConfig
	SLA          SLAConfig
	Store        StoreConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
	// EmbeddedWorkers runs the sweep and redelivery loops inside the API
	// process. Disable it when slaguard-worker runs separately.
	EmbeddedWorkers bool
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values. When disabled the level tracker
// and retry queue fall back to process memory.
type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
	BcryptCost            int
}

// NotificationConfig selects the outbound sinks. Every notification is always
// stored for the in-app inbox; the other sinks are enabled when configured.
type NotificationConfig struct {
	WebhookURL           string
	KafkaBrokers         []string
	KafkaTopic           string
	RedisChannel         string
	RetryIntervalSeconds int
	MaxAttempts          int
}

// SLAConfig holds per-priority limits and escalation thresholds.
type SLAConfig struct {
	CriticalHours        float64
	HighHours            float64
	MediumHours          float64
	LowHours             float64
	AutoEscalatePercent  float64
	WarningPercent       float64
	SweepIntervalMinutes int
}

// StoreConfig bounds every persistence call.
type StoreConfig struct {
	TimeoutMillis int
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2))
	runMigrations := getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true)
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "sla-guard"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
			EmbeddedWorkers:       getEnvAsBool("APP_EMBEDDED_WORKERS", true),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       maxConns,
			MinConns:       minConns,
			RunMigrations:  runMigrations,
			ConnMaxIdleSec: connMaxIdle,
			ConnMaxLifeSec: connMaxLife,
		},
		Redis: RedisConfig{
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
			BcryptCost:            getEnvAsInt("AUTH_BCRYPT_COST", 12),
		},
		Notification: NotificationConfig{
			WebhookURL:           getEnv("NOTIFY_WEBHOOK_URL", ""),
			KafkaBrokers:         getEnvAsList("NOTIFY_KAFKA_BROKERS"),
			KafkaTopic:           getEnv("NOTIFY_KAFKA_TOPIC", "sla-guard.notifications"),
			RedisChannel:         getEnv("NOTIFY_REDIS_CHANNEL", ""),
			RetryIntervalSeconds: getEnvAsInt("NOTIFY_RETRY_INTERVAL_SECONDS", 60),
			MaxAttempts:          getEnvAsInt("NOTIFY_MAX_ATTEMPTS", 5),
		},
		SLA: SLAConfig{
			CriticalHours:        getEnvAsFloat("SLA_CRITICAL_HOURS", 4),
			HighHours:            getEnvAsFloat("SLA_HIGH_HOURS", 8),
			MediumHours:          getEnvAsFloat("SLA_MEDIUM_HOURS", 24),
			LowHours:             getEnvAsFloat("SLA_LOW_HOURS", 48),
			AutoEscalatePercent:  getEnvAsFloat("SLA_AUTO_ESCALATE_PERCENT", 90),
			WarningPercent:       getEnvAsFloat("SLA_WARNING_PERCENT", 50),
			SweepIntervalMinutes: getEnvAsInt("SLA_SWEEP_INTERVAL_MINUTES", 5),
		},
		Store: StoreConfig{
			TimeoutMillis: getEnvAsInt("STORE_TIMEOUT_MS", 3000),
		},
	}

	if cfg.SLA.AutoEscalatePercent <= 0 || cfg.SLA.AutoEscalatePercent > 100 {
		return nil, fmt.Errorf("invalid SLA_AUTO_ESCALATE_PERCENT: %v", cfg.SLA.AutoEscalatePercent)
	}
	if cfg.SLA.WarningPercent <= 0 || cfg.SLA.WarningPercent > cfg.SLA.AutoEscalatePercent {
		return nil, fmt.Errorf("invalid SLA_WARNING_PERCENT: %v", cfg.SLA.WarningPercent)
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// SweepInterval returns how often the escalation sweep runs.
func (s SLAConfig) SweepInterval() time.Duration {
	if s.SweepIntervalMinutes <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(s.SweepIntervalMinutes) * time.Minute
}

// Timeout returns the per-call store deadline.
func (s StoreConfig) Timeout() time.Duration {
	if s.TimeoutMillis <= 0 {
		return 3 * time.Second
	}
	return time.Duration(s.TimeoutMillis) * time.Millisecond
}

// RetryInterval returns the delay between notification redelivery passes.
func (n NotificationConfig) RetryInterval() time.Duration {
	if n.RetryIntervalSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(n.RetryIntervalSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsFloat(key string, fallback float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsList(key string) []string {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
