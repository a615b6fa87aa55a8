package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the service
type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	App          AppConfig
	Wizard       WizardConfig
	Metrics      MetricsConfig
	Notification NotificationConfig
	NATS         NATSConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host string
	Port string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// AppConfig holds application configuration
type AppConfig struct {
	Environment string
	LogLevel    string
	// StaffToken gates the internal metrics endpoints. The gateway performs
	// the real superuser check; this is a second factor for direct access.
	StaffToken string
}

// WizardConfig holds onboarding wizard behavior configuration
type WizardConfig struct {
	// SessionTTLHours is how long an idle wizard session survives in Redis
	SessionTTLHours int
	// PreserveSessionOnError keeps accumulated step data when the finish
	// transaction fails with an unexpected error, so the user can retry
	// without re-entering everything
	PreserveSessionOnError bool
	MaxExtraAddresses      int
	MaxContacts            int
	MaxSocialLinks         int
	MaxAdmins              int
	// GeneratedPasswordLength is the length of auto-generated admin passwords
	GeneratedPasswordLength int
}

// MetricsConfig holds wizard metrics store configuration
type MetricsConfig struct {
	// AbandonThresholdSeconds: sessions idle longer than this are counted as
	// abandoned on the next snapshot
	AbandonThresholdSeconds int
	// LatencyWarnP95Seconds triggers a log warning when the p95 finish
	// latency exceeds it (0 disables)
	LatencyWarnP95Seconds float64
	// LatencyWindowSize is the capacity of each latency sample window
	LatencyWindowSize int
	// ErrorRingSize is the capacity of the last-errors ring buffer
	ErrorRingSize int
}

// NotificationConfig holds the outbound email collaborator configuration
type NotificationConfig struct {
	ServiceURL string
	APIKey     string
}

// NATSConfig holds event publishing configuration
type NATSConfig struct {
	URL string
}

// New creates a new configuration instance
func New() *Config {
	return &Config{
		Server: ServerConfig{
			Host: getEnvWithDefault("SERVER_HOST", "0.0.0.0"),
			Port: getEnvWithDefault("SERVER_PORT", "8090"),
		},
		Database: DatabaseConfig{
			Host:     getEnvWithDefault("DB_HOST", "localhost"),
			Port:     getEnvWithDefault("DB_PORT", "5432"),
			User:     getEnvWithDefault("DB_USER", "postgres"),
			Password: getEnvWithDefault("DB_PASSWORD", "postgres"),
			Name:     getEnvWithDefault("DB_NAME", "empresa_db"),
			SSLMode:  getEnvWithDefault("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Host:     getEnvWithDefault("REDIS_HOST", "localhost"),
			Port:     getEnvWithDefault("REDIS_PORT", "6379"),
			Password: getEnvWithDefault("REDIS_PASSWORD", ""),
			DB:       getEnvAsIntWithDefault("REDIS_DB", 0),
		},
		App: AppConfig{
			Environment: getEnvWithDefault("APP_ENV", "development"),
			LogLevel:    getEnvWithDefault("LOG_LEVEL", "info"),
			StaffToken:  getEnvWithDefault("STAFF_TOKEN", ""),
		},
		Wizard: WizardConfig{
			SessionTTLHours:         getEnvAsIntWithDefault("WIZARD_SESSION_TTL_HOURS", 48),
			PreserveSessionOnError:  getEnvAsBoolWithDefault("WIZARD_PRESERVE_SESSION_ON_ERROR", true),
			MaxExtraAddresses:       getEnvAsIntWithDefault("WIZARD_MAX_EXTRA_ADDRESSES", 50),
			MaxContacts:             getEnvAsIntWithDefault("WIZARD_MAX_CONTACTS", 100),
			MaxSocialLinks:          getEnvAsIntWithDefault("WIZARD_MAX_SOCIAL_LINKS", 50),
			MaxAdmins:               getEnvAsIntWithDefault("WIZARD_MAX_ADMINS", 50),
			GeneratedPasswordLength: getEnvAsIntWithDefault("WIZARD_GENERATED_PASSWORD_LENGTH", 12),
		},
		Metrics: MetricsConfig{
			AbandonThresholdSeconds: getEnvAsIntWithDefault("WIZARD_ABANDON_THRESHOLD_SECONDS", 1800),
			LatencyWarnP95Seconds:   getEnvAsFloatWithDefault("WIZARD_LATENCY_WARN_P95_SECONDS", 2.0),
			LatencyWindowSize:       getEnvAsIntWithDefault("WIZARD_LATENCY_WINDOW_SIZE", 500),
			ErrorRingSize:           getEnvAsIntWithDefault("WIZARD_ERROR_RING_SIZE", 50),
		},
		Notification: NotificationConfig{
			ServiceURL: getEnvWithDefault("NOTIFICATION_SERVICE_URL", "http://localhost:8087"),
			APIKey:     getEnvWithDefault("NOTIFICATION_SERVICE_API_KEY", ""),
		},
		NATS: NATSConfig{
			URL: getEnvWithDefault("NATS_URL", "nats://localhost:4222"),
		},
	}
}

// SessionTTL returns the wizard session TTL as a duration
func (w WizardConfig) SessionTTL() time.Duration {
	return time.Duration(w.SessionTTLHours) * time.Hour
}

// AbandonThreshold re-reads the abandonment threshold from the environment on
// every call. Snapshot pruning depends on this being fresh, not cached at
// construction time.
func (m MetricsConfig) AbandonThreshold() time.Duration {
	secs := getEnvAsIntWithDefault("WIZARD_ABANDON_THRESHOLD_SECONDS", m.AbandonThresholdSeconds)
	return time.Duration(secs) * time.Second
}

// getEnvWithDefault gets environment variable with a default fallback
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntWithDefault gets environment variable as integer with default fallback
func getEnvAsIntWithDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvAsBoolWithDefault gets environment variable as boolean with default fallback
func getEnvAsBoolWithDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvAsFloatWithDefault gets environment variable as float with default fallback
func getEnvAsFloatWithDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
