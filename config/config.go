package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// RabbitMQConfig holds the connection settings for the message broker.
type RabbitMQConfig struct {
	Host                 string
	Port                 string
	User                 string
	Password             string
	Exchange             string
	ReportRoutingKey     string
	NotifyRoutingKeyBase string
}

// GetAMQPURL builds the AMQP connection URL.
func (c *RabbitMQConfig) GetAMQPURL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%s/", c.User, c.Password, c.Host, c.Port)
}

// Config holds all configuration for the report ingestion service
type Config struct {
	// Database configuration
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Server configuration
	Port string

	// Classifier configuration
	ClassifierProvider string
	OpenAIAPIKey       string
	OpenAIModel        string
	ClassifierTimeout  time.Duration

	// Deduplication configuration
	DedupWindow        time.Duration
	DedupSpatialFilter bool
	DedupCellLevel     int

	// Diff cycle configuration
	DiffInterval time.Duration

	// Users holding a manager role, recipients of high-priority alerts
	Managers []string

	// SendGrid configuration
	SendGridAPIKey    string
	SendGridFromName  string
	SendGridFromEmail string

	// RabbitMQ configuration
	RabbitMQ RabbitMQConfig

	// Logging
	LogLevel string
}

// Load loads configuration from environment variables
func Load() *Config {
	config := &Config{
		// Database defaults
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "server"),
		DBPassword: getEnv("DB_PASSWORD", "secret_app"),
		DBName:     getEnv("DB_NAME", "civicreport"),

		// Server defaults
		Port: getEnv("PORT", "8080"),

		// Classifier defaults
		ClassifierProvider: getEnv("CLASSIFIER_PROVIDER", "openai"),
		OpenAIAPIKey:       getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:        getEnv("OPENAI_MODEL", "gpt-4o"),
		ClassifierTimeout:  getDurationEnv("CLASSIFIER_TIMEOUT", 5*time.Second),

		// Deduplication defaults (48 hour candidate window)
		DedupWindow:        getDurationEnv("DEDUP_WINDOW", 48*time.Hour),
		DedupSpatialFilter: getBoolEnv("DEDUP_SPATIAL_FILTER", false),
		DedupCellLevel:     getIntEnv("DEDUP_CELL_LEVEL", 16),

		// Diff cycle defaults
		DiffInterval: getDurationEnv("DIFF_INTERVAL", 30*time.Second),

		Managers: getStringSliceEnv("MANAGERS", ""),

		// SendGrid defaults
		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "CivicReport"),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", "noreply@civicreport.io"),

		RabbitMQ: RabbitMQConfig{
			Host:                 getEnv("RABBITMQ_HOST", ""),
			Port:                 getEnv("RABBITMQ_PORT", "5672"),
			User:                 getEnv("RABBITMQ_USER", "guest"),
			Password:             getEnv("RABBITMQ_PASSWORD", "guest"),
			Exchange:             getEnv("RABBITMQ_EXCHANGE", "civicreport"),
			ReportRoutingKey:     getEnv("RABBITMQ_REPORT_ROUTING_KEY", "report.ingested"),
			NotifyRoutingKeyBase: getEnv("RABBITMQ_NOTIFY_ROUTING_KEY_BASE", "notify"),
		},

		// Logging defaults
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	return config
}

// getStringSliceEnv gets a comma-separated string environment variable
// and returns it as a trimmed string slice
func getStringSliceEnv(key, defaultValue string) []string {
	value := getEnv(key, defaultValue)
	if value == "" {
		return []string{}
	}

	parts := strings.Split(value, ",")
	var out []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getDurationEnv gets a duration environment variable or returns a default value
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getIntEnv gets an integer environment variable or returns a default value
func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getBoolEnv gets a boolean environment variable or returns a default value
func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
