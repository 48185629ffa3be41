package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all service configuration
type Config struct {
	Service   ServiceConfig
	Database  DatabaseConfig
	Broker    BrokerConfig
	Providers ProviderConfig
}

// ServiceConfig holds service-specific settings
type ServiceConfig struct {
	Name        string
	Port        int
	Environment string
	LogLevel    string
	LogFormat   string
	UploadDir   string
}

// DatabaseConfig holds Postgres connection settings
type DatabaseConfig struct {
	Host        string
	Port        int
	Database    string
	User        string
	Password    string
	MaxConns    int
	MinConns    int
	MaxIdleTime time.Duration
	MaxLifetime time.Duration
}

// BrokerConfig holds message broker settings.
// MaxRetries bounds redeliveries per message; MaxMessageAge drops messages
// that have been sitting in a queue for too long.
type BrokerConfig struct {
	RedisHost     string
	RedisPort     int
	RedisPassword string
	RedisDB       int
	MaxRetries    int
	MaxMessageAge time.Duration
	Concurrency   map[string]int
}

// ProviderConfig holds third-party provider credentials. A missing token
// puts the corresponding node handler into fallback mode rather than
// failing runs.
type ProviderConfig struct {
	OpenAIKey      string
	SlackToken     string
	SheetsToken    string
	NotionToken    string
	TwilioSID      string
	TwilioToken    string
	TwilioFrom     string
	SMTPHost       string
	SMTPPort       string
	SMTPUsername   string
	SMTPPassword   string
	SMTPFrom       string
	RequestTimeout time.Duration
}

// Load loads configuration from environment variables
func Load(serviceName string) (*Config, error) {
	cfg := &Config{
		Service: ServiceConfig{
			Name:        serviceName,
			Port:        getEnvInt("PORT", 8080),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
			LogFormat:   getEnv("LOG_FORMAT", "text"),
			UploadDir:   getEnv("UPLOAD_DIR", "uploads"),
		},
		Database: DatabaseConfig{
			Host:        getEnv("POSTGRES_HOST", "localhost"),
			Port:        getEnvInt("POSTGRES_PORT", 5432),
			Database:    getEnv("POSTGRES_DB", "aiwf"),
			User:        getEnv("POSTGRES_USER", "aiwf"),
			Password:    getEnv("POSTGRES_PASSWORD", "aiwf"),
			MaxConns:    getEnvInt("POSTGRES_MAX_CONNS", 50),
			MinConns:    getEnvInt("POSTGRES_MIN_CONNS", 10),
			MaxIdleTime: getEnvDuration("POSTGRES_MAX_IDLE_TIME", 30*time.Minute),
			MaxLifetime: getEnvDuration("POSTGRES_MAX_LIFETIME", 1*time.Hour),
		},
		Broker: BrokerConfig{
			RedisHost:     getEnv("REDIS_HOST", "localhost"),
			RedisPort:     getEnvInt("REDIS_PORT", 6379),
			RedisPassword: getEnv("REDIS_PASSWORD", ""),
			RedisDB:       getEnvInt("REDIS_DB", 0),
			MaxRetries:    getEnvInt("BROKER_MAX_RETRIES", 3),
			MaxMessageAge: getEnvDuration("BROKER_MAX_MESSAGE_AGE", 3600*time.Second),
			Concurrency: map[string]int{
				"default": getEnvInt("QUEUE_DEFAULT_CONCURRENCY", 4),
				"ingest":  getEnvInt("QUEUE_INGEST_CONCURRENCY", 4),
				"ai":      getEnvInt("QUEUE_AI_CONCURRENCY", 2),
				"actions": getEnvInt("QUEUE_ACTIONS_CONCURRENCY", 4),
			},
		},
		Providers: ProviderConfig{
			OpenAIKey:      getEnv("OPENAI_API_KEY", ""),
			SlackToken:     getEnv("SLACK_BOT_TOKEN", ""),
			SheetsToken:    getEnv("SHEETS_API_TOKEN", ""),
			NotionToken:    getEnv("NOTION_API_TOKEN", ""),
			TwilioSID:      getEnv("TWILIO_ACCOUNT_SID", ""),
			TwilioToken:    getEnv("TWILIO_AUTH_TOKEN", ""),
			TwilioFrom:     getEnv("TWILIO_FROM_NUMBER", ""),
			SMTPHost:       getEnv("SMTP_HOST", ""),
			SMTPPort:       getEnv("SMTP_PORT", "587"),
			SMTPUsername:   getEnv("SMTP_USERNAME", ""),
			SMTPPassword:   getEnv("SMTP_PASSWORD", ""),
			SMTPFrom:       getEnv("SMTP_FROM", "workflows@localhost"),
			RequestTimeout: getEnvDuration("PROVIDER_REQUEST_TIMEOUT", 30*time.Second),
		},
	}

	return cfg, cfg.Validate()
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.Service.Port < 1 || c.Service.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Service.Port)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.MaxConns < c.Database.MinConns {
		return fmt.Errorf("max_conns must be >= min_conns")
	}

	if c.Broker.MaxRetries < 0 {
		return fmt.Errorf("broker max retries must be >= 0")
	}

	return nil
}

// DatabaseURL returns the PostgreSQL connection string
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
	)
}

// RedisAddr returns the broker address in host:port form
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Broker.RedisHost, c.Broker.RedisPort)
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
