package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Environment string
	Port        string
	LogLevel    slog.Level

	DatabaseURL      string
	DBMaxOpenConns   int
	DBMaxIdleConns   int
	DBConnMaxLife    time.Duration
	DBRunMigrations  bool
	RedisURL         string
	UserDirectory    string
	CartTTL          time.Duration
	MaxUploadSizeMB  int
	PublicServiceURL string

	Casdoor    CasdoorConfig
	Kafka      KafkaConfig
	Razorpay   RazorpayConfig
	Storage    StorageConfig
	Completion CompletionConfig
	Reconcile  ReconcileConfig
}

type CasdoorConfig struct {
	Endpoint     string
	ClientID     string
	ClientSecret string
	Cert         string
	Organization string
	Application  string
}

type KafkaConfig struct {
	Brokers     []string
	TopicPrefix string
}

type RazorpayConfig struct {
	BaseURL       string
	KeyID         string
	KeySecret     string
	WebhookSecret string
	Currency      string
	Timeout       time.Duration
}

// Enabled reports whether gateway credentials are present.
func (c RazorpayConfig) Enabled() bool {
	return c.KeyID != "" && c.KeySecret != ""
}

type StorageConfig struct {
	Endpoint      string
	AccessKey     string
	SecretKey     string
	Bucket        string
	UseSSL        bool
	PublicBaseURL string
}

func (c StorageConfig) Enabled() bool {
	return c.Endpoint != "" && c.Bucket != ""
}

// CompletionConfig selects the rule that flips an enrollment to completed.
type CompletionConfig struct {
	Mode             string
	Threshold        int
	QuizPassingScore float64
}

type ReconcileConfig struct {
	Enabled       bool
	Schedule      string
	PaidGrace     time.Duration
	PendingAfter  time.Duration
	PendingWindow time.Duration
}

// LoadConfig reads .env (if present) and the process environment.
func LoadConfig() (*Config, error) {
	// .env is optional outside local development
	_ = godotenv.Load()

	cfg := &Config{
		Environment:      getEnv("ENVIRONMENT", "development"),
		Port:             getEnv("PORT", "8080"),
		LogLevel:         parseLogLevel(getEnv("LOG_LEVEL", "info")),
		DatabaseURL:      getEnv("DATABASE_URL", ""),
		DBMaxOpenConns:   getEnvInt("DB_MAX_OPEN_CONNS", 25),
		DBMaxIdleConns:   getEnvInt("DB_MAX_IDLE_CONNS", 5),
		DBConnMaxLife:    getEnvDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
		DBRunMigrations:  getEnvBool("DB_RUN_MIGRATIONS", true),
		RedisURL:         getEnv("REDIS_URL", ""),
		UserDirectory:    getEnv("USER_DIRECTORY", "postgres"),
		CartTTL:          getEnvDuration("CART_TTL", 24*time.Hour),
		MaxUploadSizeMB:  getEnvInt("MAX_UPLOAD_SIZE_MB", 50),
		PublicServiceURL: getEnv("PUBLIC_SERVICE_URL", ""),
		Casdoor: CasdoorConfig{
			Endpoint:     getEnv("CASDOOR_ENDPOINT", ""),
			ClientID:     getEnv("CASDOOR_CLIENT_ID", ""),
			ClientSecret: getEnv("CASDOOR_CLIENT_SECRET", ""),
			Cert:         getEnv("CASDOOR_CERT", ""),
			Organization: getEnv("CASDOOR_ORGANIZATION", ""),
			Application:  getEnv("CASDOOR_APPLICATION", ""),
		},
		Kafka: KafkaConfig{
			Brokers:     splitList(getEnv("KAFKA_BROKERS", "")),
			TopicPrefix: getEnv("KAFKA_TOPIC_PREFIX", "enrollment"),
		},
		Razorpay: RazorpayConfig{
			BaseURL:       getEnv("RAZORPAY_BASE_URL", "https://api.razorpay.com/v1"),
			KeyID:         getEnv("RAZORPAY_KEY_ID", ""),
			KeySecret:     getEnv("RAZORPAY_KEY_SECRET", ""),
			WebhookSecret: getEnv("RAZORPAY_WEBHOOK_SECRET", ""),
			Currency:      getEnv("PAYMENT_CURRENCY", "INR"),
			Timeout:       getEnvDuration("RAZORPAY_TIMEOUT", 15*time.Second),
		},
		Storage: StorageConfig{
			Endpoint:      getEnv("STORAGE_ENDPOINT", ""),
			AccessKey:     getEnv("STORAGE_ACCESS_KEY", ""),
			SecretKey:     getEnv("STORAGE_SECRET_KEY", ""),
			Bucket:        getEnv("STORAGE_BUCKET", ""),
			UseSSL:        getEnvBool("STORAGE_USE_SSL", true),
			PublicBaseURL: getEnv("STORAGE_PUBLIC_BASE_URL", ""),
		},
		Completion: CompletionConfig{
			Mode:             getEnv("COMPLETION_POLICY", "all_lessons"),
			Threshold:        getEnvInt("COMPLETION_THRESHOLD", 100),
			QuizPassingScore: getEnvFloat("QUIZ_PASSING_SCORE", 0),
		},
		Reconcile: ReconcileConfig{
			Enabled:       getEnvBool("RECONCILE_ENABLED", true),
			Schedule:      getEnv("RECONCILE_SCHEDULE", "@every 5m"),
			PaidGrace:     getEnvDuration("RECONCILE_PAID_GRACE", time.Minute),
			PendingAfter:  getEnvDuration("RECONCILE_PENDING_AFTER", 10*time.Minute),
			PendingWindow: getEnvDuration("RECONCILE_PENDING_WINDOW", 24*time.Hour),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	switch c.UserDirectory {
	case "postgres", "casdoor":
	default:
		return fmt.Errorf("USER_DIRECTORY must be postgres or casdoor, got %q", c.UserDirectory)
	}

	switch c.Completion.Mode {
	case "all_lessons", "required_lessons":
	case "threshold":
		if c.Completion.Threshold < 1 || c.Completion.Threshold > 100 {
			return fmt.Errorf("COMPLETION_THRESHOLD must be between 1 and 100")
		}
	default:
		return fmt.Errorf("unknown COMPLETION_POLICY %q", c.Completion.Mode)
	}

	if c.Completion.QuizPassingScore < 0 || c.Completion.QuizPassingScore > 100 {
		return fmt.Errorf("QUIZ_PASSING_SCORE must be between 0 and 100")
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value, err := strconv.ParseBool(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, err := time.ParseDuration(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
