package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all runtime configuration loaded from environment variables.
// Every field has a sensible default; only DATABASE_URL is required.
type Config struct {
	// Server
	HTTPPort        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	// Database. The pool is shared by every repository; scheduled jobs,
	// the dispatcher, and the HTTP surface all draw from it, so sizing
	// is process-level configuration.
	DatabaseURL    string
	DBMaxConns     int32
	DBMinConns     int32
	DBConnLifetime time.Duration
	DBConnIdleTime time.Duration

	// Redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// MongoDB
	MongoURI      string
	MongoDatabase string

	// Scheduling
	Timezone      string
	ShutdownGrace time.Duration
	QueueDrainMax int

	// Feature flags
	ExternalSyncEnabled bool
	MLServiceURL        string // empty disables syncMLPredictions

	// Retention overrides
	TrackingRetention   time.Duration
	TelemetryRetention  time.Duration
	AuditRetention      time.Duration
	SoftDeleteRetention time.Duration
	SessionMaxIdle      time.Duration

	// File retention paths
	LogDir  string
	TempDir string

	// Providers. Missing credentials disable the channel silently.
	EmailWebhookURL string
	EmailAPIKey     string
	SMSWebhookURL   string
	SMSAPIKey       string
	PushAPIKey      string

	// Rate limiting: maximum sends per second per channel
	RateLimit int
}

func Load() (*Config, error) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return &Config{
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		ReadTimeout:     getDuration("READ_TIMEOUT", 5*time.Second),
		WriteTimeout:    getDuration("WRITE_TIMEOUT", 10*time.Second),
		ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", 30*time.Second),

		DatabaseURL:    dbURL,
		DBMaxConns:     int32(getInt("DB_MAX_CONNS", 25)),
		DBMinConns:     int32(getInt("DB_MIN_CONNS", 5)),
		DBConnLifetime: getDuration("DB_CONN_LIFETIME", 30*time.Minute),
		DBConnIdleTime: getDuration("DB_CONN_IDLE_TIME", 5*time.Minute),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getInt("REDIS_DB", 0),

		MongoURI:      getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase: getEnv("MONGO_DATABASE", "trackfleet"),

		Timezone:      getEnv("CRON_TIMEZONE", "UTC"),
		ShutdownGrace: getDuration("SHUTDOWN_GRACE", 30*time.Second),
		QueueDrainMax: getInt("QUEUE_DRAIN_MAX", 100),

		ExternalSyncEnabled: getBool("EXTERNAL_SYNC_ENABLED", false),
		MLServiceURL:        getEnv("ML_SERVICE_URL", ""),

		TrackingRetention:   getDuration("TRACKING_RETENTION", 30*24*time.Hour),
		TelemetryRetention:  getDuration("TELEMETRY_RETENTION", 30*24*time.Hour),
		AuditRetention:      getDuration("AUDIT_RETENTION", 365*24*time.Hour),
		SoftDeleteRetention: getDuration("SOFT_DELETE_RETENTION", 90*24*time.Hour),
		SessionMaxIdle:      getDuration("SESSION_MAX_IDLE", 30*time.Minute),

		LogDir:  getEnv("LOG_DIR", "logs"),
		TempDir: getEnv("TEMP_DIR", "tmp"),

		EmailWebhookURL: getEnv("EMAIL_WEBHOOK_URL", ""),
		EmailAPIKey:     getEnv("EMAIL_API_KEY", ""),
		SMSWebhookURL:   getEnv("SMS_WEBHOOK_URL", ""),
		SMSAPIKey:       getEnv("SMS_API_KEY", ""),
		PushAPIKey:      getEnv("PUSH_API_KEY", ""),

		RateLimit: getInt("RATE_LIMIT_PER_CHANNEL", 100),
	}, nil
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func getBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
