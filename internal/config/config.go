package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Telegram transport modes.
const (
	TelegramModePolling = "polling"
	TelegramModeWebhook = "webhook"
)

// Config aggregates runtime configuration for the bot.
type Config struct {
	App      AppConfig
	Telegram TelegramConfig
	Roles    RolesConfig
	Catalog  CatalogConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Session  SessionConfig
	Worker   WorkerConfig
	Export   ExportConfig
	Logger   LoggerConfig
}

// AppConfig controls process level behavior and the HTTP sidecar.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
	PublicBaseURL         string
}

// TelegramConfig holds bot transport values.
type TelegramConfig struct {
	Token                string
	Mode                 string
	WebhookSecret        string
	PollTimeoutSeconds   int
	DropPendingOnStartup bool
}

// RolesConfig seeds the immutable role sets.
type RolesConfig struct {
	AdminIDs      []int64
	TechnicianIDs []int64
}

// CatalogConfig lists the choices offered by the creation dialog.
type CatalogConfig struct {
	Locations []string
	Equipment []string
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

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// SessionConfig controls dialog session expiry.
type SessionConfig struct {
	TTLMinutes int
}

// WorkerConfig sizes the notification delivery pool.
type WorkerConfig struct {
	Count             int
	QueueSize         int
	JobTimeoutSeconds int
}

// ExportConfig signs CSV download links.
type ExportConfig struct {
	JWTSecret      string
	LinkTTLMinutes int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level  string
	Format string
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
			Name:                  getEnv("APP_NAME", "deskbot"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
			PublicBaseURL:         strings.TrimRight(getEnv("PUBLIC_BASE_URL", ""), "/"),
		},
		Telegram: TelegramConfig{
			Token:                strings.TrimSpace(os.Getenv("BOT_TOKEN")),
			Mode:                 getEnv("TELEGRAM_MODE", TelegramModePolling),
			WebhookSecret:        os.Getenv("TELEGRAM_WEBHOOK_SECRET"),
			PollTimeoutSeconds:   getEnvAsInt("TELEGRAM_POLL_TIMEOUT_SECONDS", 30),
			DropPendingOnStartup: getEnvAsBool("TELEGRAM_DROP_PENDING", false),
		},
		Roles: RolesConfig{
			AdminIDs:      getEnvAsIDSet("ADMIN_IDS"),
			TechnicianIDs: getEnvAsIDSet("TECH_IDS"),
		},
		Catalog: CatalogConfig{
			Locations: getEnvAsList("CATALOG_LOCATIONS", []string{"Цех 1", "Цех 2", "Склад", "Офис"}),
			Equipment: getEnvAsList("CATALOG_EQUIPMENT", []string{"Станок", "Сушилка", "Компрессор", "Электрика"}),
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
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Session: SessionConfig{
			TTLMinutes: getEnvAsInt("SESSION_TTL_MINUTES", 30),
		},
		Worker: WorkerConfig{
			Count:             getEnvAsInt("WORKER_COUNT", 4),
			QueueSize:         getEnvAsInt("WORKER_QUEUE_SIZE", 64),
			JobTimeoutSeconds: getEnvAsInt("WORKER_JOB_TIMEOUT_SECONDS", 10),
		},
		Export: ExportConfig{
			JWTSecret:      getEnv("EXPORT_JWT_SECRET", "dev-secret"),
			LinkTTLMinutes: getEnvAsInt("EXPORT_LINK_TTL_MINUTES", 15),
		},
		Logger: LoggerConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if cfg.Telegram.Mode != TelegramModePolling && cfg.Telegram.Mode != TelegramModeWebhook {
		return nil, fmt.Errorf("invalid TELEGRAM_MODE: %q", cfg.Telegram.Mode)
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

// TTL returns the session expiry duration, zero when disabled.
func (s SessionConfig) TTL() time.Duration {
	if s.TTLMinutes <= 0 {
		return 0
	}
	return time.Duration(s.TTLMinutes) * time.Minute
}

// JobTimeout returns the per delivery deadline, zero when disabled.
func (w WorkerConfig) JobTimeout() time.Duration {
	if w.JobTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(w.JobTimeoutSeconds) * time.Second
}

// LinkTTL returns the export link validity duration.
func (e ExportConfig) LinkTTL() time.Duration {
	if e.LinkTTLMinutes <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(e.LinkTTLMinutes) * time.Minute
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

// getEnvAsIDSet parses numeric IDs separated by commas or whitespace,
// skipping anything that does not parse.
func getEnvAsIDSet(key string) []int64 {
	val := strings.ReplaceAll(os.Getenv(key), ",", " ")
	var ids []int64
	for _, field := range strings.Fields(val) {
		id, err := strconv.ParseInt(field, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

func getEnvAsList(key string, fallback []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	var items []string
	for _, part := range strings.Split(val, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	if len(items) == 0 {
		return fallback
	}
	return items
}
