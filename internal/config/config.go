package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port        string
	Env         string
	LogLevel    string
	LogFormat   string
	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	AuthJWTSecret      string
	CORSAllowedOrigins []string

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	// Proposal lifecycle events
	ProposalEventsQueueURL string
	OutboxPollInterval     time.Duration
	OutboxBatchSize        int
	OutboxMaxAttempts      int

	// Notification delivery
	EmailProvider        string
	SendGridAPIKey       string
	SendGridFromEmail    string
	EmailFromName        string
	SESFromEmail         string
	SESConfigurationSet  string
	NotificationFeedSize int
	NotificationSweep    time.Duration

	// Contract documents
	ContractDocumentsBucket string

	ProposalRateLimitRPS   float64
	ProposalRateLimitBurst int
}

// Load reads configuration from environment variables
func Load() *Config {
	env := getEnv("ENV", "development")
	defaultFormat := "json"
	if env == "development" {
		defaultFormat = "text"
	}
	return &Config{
		Port:        getEnv("PORT", "8080"),
		Env:         env,
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogFormat:   strings.ToLower(getEnv("LOG_FORMAT", defaultFormat)),
		DatabaseURL: getEnv("DATABASE_URL", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		AuthJWTSecret:      getEnv("AUTH_JWT_SECRET", ""),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:4200"}),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		ProposalEventsQueueURL: getEnv("PROPOSAL_EVENTS_QUEUE_URL", ""),
		OutboxPollInterval:     getEnvAsDuration("OUTBOX_POLL_INTERVAL", 5*time.Second),
		OutboxBatchSize:        getEnvAsInt("OUTBOX_BATCH_SIZE", 50),
		OutboxMaxAttempts:      getEnvAsInt("OUTBOX_MAX_ATTEMPTS", 10),

		EmailProvider:        strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", "stub"))),
		SendGridAPIKey:       getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail:    getEnv("SENDGRID_FROM_EMAIL", ""),
		EmailFromName:        getEnv("EMAIL_FROM_NAME", "Marketplace"),
		SESFromEmail:         getEnv("SES_FROM_EMAIL", ""),
		SESConfigurationSet:  getEnv("SES_CONFIGURATION_SET", ""),
		NotificationFeedSize: getEnvAsInt("NOTIFICATION_FEED_SIZE", 100),
		NotificationSweep:    getEnvAsDuration("NOTIFICATION_SWEEP_INTERVAL", time.Hour),

		ContractDocumentsBucket: getEnv("CONTRACT_DOCUMENTS_BUCKET", ""),

		ProposalRateLimitRPS:   getEnvAsFloat("PROPOSAL_RATE_LIMIT_RPS", 0.2),
		ProposalRateLimitBurst: getEnvAsInt("PROPOSAL_RATE_LIMIT_BURST", 5),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma separated variable, dropping blanks.
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
