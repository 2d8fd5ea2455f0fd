package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all runtime configuration loaded from environment variables.
type Config struct {
	AppPort string
	AppEnv  string

	AWSRegion      string
	AWSEndpointURL string // empty in prod, set to LocalStack URL in dev
	AWSAccessKeyID string
	AWSSecretKey   string
	DynamoTables   DynamoTables

	SNSRegion                 string
	SNSPlatformApplicationARN string

	JWTPrivateKeyPath string
	JWTPublicKeyPath  string
	JWTExpiry         time.Duration

	// Sweep cadence and retry behaviour of the notification engine.
	ScheduleSweepInterval time.Duration
	RetrySweepInterval    time.Duration
	RetryBackoffBase      time.Duration
	RetryBackoffFactor    int
	MaxRetries            int
	PushTimeout           time.Duration
	DispatchTimeout       time.Duration

	AllowedOrigins []string // CORS allowed origins
}

// DynamoTables holds the DynamoDB table name for each entity.
type DynamoTables struct {
	Users         string
	Devices       string
	Notifications string
}

// Load reads all configuration from environment variables.
func Load() *Config {
	return &Config{
		AppPort: getEnv("APP_PORT", "3000"),
		AppEnv:  getEnv("APP_ENV", "development"),

		AWSRegion:      getEnv("AWS_REGION", "us-east-1"),
		AWSEndpointURL: getEnv("AWS_ENDPOINT_URL", ""),
		AWSAccessKeyID: getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),
		DynamoTables: DynamoTables{
			Users:         getEnv("DYNAMO_TABLE_USERS", "users"),
			Devices:       getEnv("DYNAMO_TABLE_DEVICES", "devices"),
			Notifications: getEnv("DYNAMO_TABLE_NOTIFICATIONS", "notifications"),
		},

		SNSRegion:                 getEnv("SNS_REGION", "us-east-1"),
		SNSPlatformApplicationARN: getEnv("SNS_PLATFORM_APPLICATION_ARN", ""),

		JWTPrivateKeyPath: getEnv("JWT_PRIVATE_KEY_PATH", "./private_key.pem"),
		JWTPublicKeyPath:  getEnv("JWT_PUBLIC_KEY_PATH", "./public_key.pem"),
		JWTExpiry:         getEnvDuration("JWT_EXPIRY", 7*24*time.Hour),

		ScheduleSweepInterval: getEnvDuration("SWEEP_SCHEDULE_INTERVAL", time.Minute),
		RetrySweepInterval:    getEnvDuration("SWEEP_RETRY_INTERVAL", 5*time.Minute),
		RetryBackoffBase:      getEnvDuration("RETRY_BACKOFF_BASE", 5*time.Minute),
		RetryBackoffFactor:    getEnvInt("RETRY_BACKOFF_FACTOR", 2),
		MaxRetries:            getEnvInt("NOTIFICATION_MAX_RETRIES", 3),
		PushTimeout:           getEnvDuration("PUSH_TIMEOUT", 10*time.Second),
		DispatchTimeout:       getEnvDuration("DISPATCH_TIMEOUT", 30*time.Second),

		AllowedOrigins: strings.Split(getEnv("ALLOWED_ORIGINS", "*"), ","),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
