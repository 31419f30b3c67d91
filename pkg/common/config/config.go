package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Server
	ServerPort   string
	ServerHost   string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Database
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Redis
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// Kafka
	KafkaBrokers   []string
	KafkaSyncTopic string

	// Session auth
	SessionSecret   string
	SessionIssuer   string
	SessionAudience string
	SessionTTL      time.Duration

	// OIDC (optional alternative to local login)
	OIDCIssuer       string
	OIDCClientID     string
	OIDCClientSecret string

	// App Store Connect
	ASCIssuerID     string
	ASCKeyID        string
	ASCPrivateKey   string
	ASCVendorNumber string
	ASCBaseURL      string
	ASCHTTPTimeout  time.Duration

	// Dashboard
	MetricsCacheTTL time.Duration
}

func Load() *Config {
	return &Config{
		ServerPort:   getEnv("SERVER_PORT", "8080"),
		ServerHost:   getEnv("SERVER_HOST", "0.0.0.0"),
		ReadTimeout:  getDuration("READ_TIMEOUT", 30*time.Second),
		WriteTimeout: getDuration("WRITE_TIMEOUT", 30*time.Second),

		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "pulseboard"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "pulseboard123"),
		PostgresDB:       getEnv("POSTGRES_DB", "pulseboard"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),

		KafkaBrokers:   getStringSliceEnv("KAFKA_BROKERS", []string{"localhost:9092"}),
		KafkaSyncTopic: getEnv("KAFKA_SYNC_TOPIC", "appstore-sync-events"),

		SessionSecret:   getEnv("SESSION_SECRET", ""),
		SessionIssuer:   getEnv("SESSION_ISSUER", "pulseboard"),
		SessionAudience: getEnv("SESSION_AUDIENCE", "pulseboard-dashboard"),
		SessionTTL:      getDuration("SESSION_TTL", 12*time.Hour),

		OIDCIssuer:       getEnv("OIDC_ISSUER", ""),
		OIDCClientID:     getEnv("OIDC_CLIENT_ID", ""),
		OIDCClientSecret: getEnv("OIDC_CLIENT_SECRET", ""),

		ASCIssuerID:     getEnv("ASC_ISSUER_ID", ""),
		ASCKeyID:        getEnv("ASC_KEY_ID", ""),
		ASCPrivateKey:   getEnv("ASC_PRIVATE_KEY", ""),
		ASCVendorNumber: getEnv("ASC_VENDOR_NUMBER", ""),
		ASCBaseURL:      getEnv("ASC_BASE_URL", "https://api.appstoreconnect.apple.com"),
		ASCHTTPTimeout:  getDuration("ASC_HTTP_TIMEOUT", 60*time.Second),

		MetricsCacheTTL: getDuration("METRICS_CACHE_TTL", 5*time.Minute),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getStringSliceEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return []string{value}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
