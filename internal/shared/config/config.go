package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for our application
type Config struct {
	// Server configuration
	Port           string
	GinMode        string
	APIVersion     string
	APIPrefix      string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int

	// Database configuration
	Database DatabaseConfig

	// Redis configuration
	Redis RedisConfig

	// Kafka configuration
	Kafka KafkaConfig

	// JWT configuration
	JWT JWTConfig

	// Rate limiting
	RateLimit RateLimitConfig

	// Waterfall engine tuning
	Waterfall WaterfallConfig

	// Candidate ranking
	Ranking RankingConfig

	// SMS provider
	SMS SMSConfig

	// Inbound webhook
	Webhook WebhookConfig

	// Logging
	LogLevel string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	Name     string
	User     string
	Password string
	SSLMode  string
	DSN      string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Addr     string

	// TTL values for different operations
	JobLockTTL  time.Duration
	StatsTTL    time.Duration
	TempDataTTL time.Duration
}

// KafkaConfig holds Kafka configuration for the messaging pipeline
type KafkaConfig struct {
	Brokers         []string
	MessageTopic    string
	DeadLetterTopic string
	ConsumerGroupID string
	NumWorkers      int
}

// JWTConfig holds JWT verification configuration. Tokens are issued by the
// hosted auth service; this application only verifies them.
type JWTConfig struct {
	Secret string
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Enabled         bool          `json:"enabled"`
	WindowDuration  time.Duration `json:"window_duration"`
	DefaultRequests int           `json:"default_requests"`
	WebhookRequests int           `json:"webhook_requests"`
	StaffRequests   int           `json:"staff_requests"`
	AdminRequests   int           `json:"admin_requests"`
	HealthRequests  int           `json:"health_requests"`
	WhitelistedIPs  []string      `json:"whitelisted_ips"`
}

// WaterfallConfig holds all tuning for the offer waterfall engine.
// Response window and offer interval are deliberately distinct: the window
// bounds one patient's time to reply, the interval spaces consecutive
// timed-out offers.
type WaterfallConfig struct {
	ResponseWindow      time.Duration
	OfferInterval       time.Duration
	TickInterval        time.Duration
	SendRetryLimit      int
	ExpirySweepInterval time.Duration
}

// RankingConfig holds candidate ranking tuning
type RankingConfig struct {
	HighFlexibilityThreshold int
}

// SMSConfig holds SMS provider configuration
type SMSConfig struct {
	BaseURL    string
	AccountID  string
	AuthToken  string
	FromNumber string
	// StaffNumber receives the terminal job outcome reports.
	StaffNumber string
	Timeout     time.Duration
}

// WebhookConfig holds inbound webhook configuration
type WebhookConfig struct {
	SharedSecret string
}

// Load loads configuration from environment variables
func Load() *Config {
	cfg := &Config{
		// Server configuration
		Port:           getEnv("PORT", "8080"),
		GinMode:        getEnv("GIN_MODE", "debug"),
		APIVersion:     getEnv("API_VERSION", "v1"),
		APIPrefix:      getEnv("API_PREFIX", "/api"),
		ReadTimeout:    getDurationEnv("READ_TIMEOUT", 15*time.Second),
		WriteTimeout:   getDurationEnv("WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:    getDurationEnv("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes: getIntEnv("MAX_HEADER_BYTES", 1<<20), // 1 MB

		// Database configuration
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			Name:     getEnv("DB_NAME", "mindline_db"),
			User:     getEnv("DB_USER", "mindline_user"),
			Password: getEnv("DB_PASSWORD", "mindline_password"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},

		// Redis configuration
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),

			JobLockTTL:  getDurationEnv("REDIS_JOB_LOCK_TTL", 10*time.Second),
			StatsTTL:    getDurationEnv("REDIS_STATS_TTL", 24*time.Hour),
			TempDataTTL: getDurationEnv("REDIS_TEMP_DATA_TTL", 5*time.Minute),
		},

		// Kafka configuration
		Kafka: KafkaConfig{
			Brokers:         getStringSliceEnv("KAFKA_BROKERS", []string{"localhost:9092"}),
			MessageTopic:    getEnv("KAFKA_MESSAGE_TOPIC", "outbound-messages"),
			DeadLetterTopic: getEnv("KAFKA_DLQ_TOPIC", "outbound-messages-dlq"),
			ConsumerGroupID: getEnv("KAFKA_CONSUMER_GROUP_ID", "mindline-message-workers"),
			NumWorkers:      getIntEnv("KAFKA_NUM_WORKERS", 3),
		},

		// JWT configuration
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", "your-super-secret-jwt-key"),
		},

		// Rate limiting
		RateLimit: RateLimitConfig{
			Enabled:         getBoolEnv("RATE_LIMIT_ENABLED", true),
			WindowDuration:  getDurationEnv("RATE_LIMIT_WINDOW_DURATION", 60*time.Second),
			DefaultRequests: getIntEnv("RATE_LIMIT_DEFAULT_REQUESTS", 60),
			WebhookRequests: getIntEnv("RATE_LIMIT_WEBHOOK_REQUESTS", 120),
			StaffRequests:   getIntEnv("RATE_LIMIT_STAFF_REQUESTS", 100),
			AdminRequests:   getIntEnv("RATE_LIMIT_ADMIN_REQUESTS", 200),
			HealthRequests:  getIntEnv("RATE_LIMIT_HEALTH_REQUESTS", 300),
			WhitelistedIPs:  getStringSliceEnv("RATE_LIMIT_WHITELISTED_IPS", []string{}),
		},

		// Waterfall engine
		Waterfall: WaterfallConfig{
			ResponseWindow:      getDurationEnv("WATERFALL_RESPONSE_WINDOW", 15*time.Minute),
			OfferInterval:       getDurationEnv("WATERFALL_OFFER_INTERVAL", 5*time.Minute),
			TickInterval:        getDurationEnv("WATERFALL_TICK_INTERVAL", 30*time.Second),
			SendRetryLimit:      getIntEnv("WATERFALL_SEND_RETRY_LIMIT", 3),
			ExpirySweepInterval: getDurationEnv("WAITLIST_EXPIRY_SWEEP_INTERVAL", 1*time.Minute),
		},

		// Ranking
		Ranking: RankingConfig{
			HighFlexibilityThreshold: getIntEnv("RANKING_HIGH_FLEXIBILITY_THRESHOLD", 75),
		},

		// SMS provider
		SMS: SMSConfig{
			BaseURL:     getEnv("SMS_BASE_URL", ""),
			AccountID:   getEnv("SMS_ACCOUNT_ID", ""),
			AuthToken:   getEnv("SMS_AUTH_TOKEN", ""),
			FromNumber:  getEnv("SMS_FROM_NUMBER", ""),
			StaffNumber: getEnv("SMS_STAFF_NUMBER", ""),
			Timeout:     getDurationEnv("SMS_TIMEOUT", 10*time.Second),
		},

		// Inbound webhook
		Webhook: WebhookConfig{
			SharedSecret: getEnv("WEBHOOK_SHARED_SECRET", ""),
		},

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "debug"),
	}

	// Build composite values
	cfg.Database.DSN = buildDatabaseDSN(cfg.Database)
	cfg.Redis.Addr = cfg.Redis.Host + ":" + cfg.Redis.Port

	return cfg
}

// buildDatabaseDSN builds the database connection string
func buildDatabaseDSN(db DatabaseConfig) string {
	return "host=" + db.Host +
		" port=" + db.Port +
		" user=" + db.User +
		" password=" + db.Password +
		" dbname=" + db.Name +
		" sslmode=" + db.SSLMode
}

// getEnv gets an environment variable with a fallback value
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// getIntEnv gets an integer environment variable with a fallback value
func getIntEnv(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return fallback
}

// getDurationEnv gets a duration environment variable with a fallback value
func getDurationEnv(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return fallback
}

// getBoolEnv gets a boolean environment variable with a fallback value
func getBoolEnv(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return fallback
}

// getStringSliceEnv gets a comma-separated string environment variable as a slice
func getStringSliceEnv(key string, fallback []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		var result []string
		for _, part := range parts {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return fallback
}

// IsProduction returns true if the application is running in production mode
func (c *Config) IsProduction() bool {
	return c.GinMode == "release"
}

// IsDevelopment returns true if the application is running in development mode
func (c *Config) IsDevelopment() bool {
	return c.GinMode == "debug"
}

// GetServerAddress returns the full server address
func (c *Config) GetServerAddress() string {
	return ":" + c.Port
}

// GetAPIBasePath returns the API base path
func (c *Config) GetAPIBasePath() string {
	return c.APIPrefix + "/" + c.APIVersion
}
