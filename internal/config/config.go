package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Server
	Port        string
	Env         string
	APIUrl      string
	FrontendURL string

	// Database
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string
	DBTimeZone string

	// Redis
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// JWT
	JWTSecret               string
	JWTAccessTokenDuration  time.Duration
	JWTRefreshTokenDuration time.Duration

	// Admin
	AdminUsername string
	AdminPassword string
	AdminEmail    string

	// Stripe
	StripeSecretKey     string
	StripeWebhookSecret string
	StripeSuccessURL    string
	StripeCancelURL     string

	// SMTP
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
	SMTPFromName string

	// Object store
	ObjectChunkSize  int
	MaxUploadSize    int64
	MaxThumbnailSize int64

	// Purchase ledger
	PurchasePendingTTL   time.Duration
	PurchaseGraceWindow  time.Duration
	PurchaseCleanupEvery time.Duration

	// Archive S3 (optional mirror of committed objects)
	ArchiveEnabled        bool
	ArchiveS3Endpoint     string
	ArchiveS3Region       string
	ArchiveS3AccessKeyID  string
	ArchiveS3SecretAccess string
	ArchiveS3UsePathStyle bool
	ArchiveBucket         string

	// Security
	BcryptCost        int
	RateLimitRequests int
	RateLimitDuration time.Duration
	UploadRateLimit   int
	UploadRateWindow  time.Duration

	// CORS
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

func New() *Config {
	return &Config{
		// Server
		Port:        getEnv("PORT", "8080"),
		Env:         getEnv("ENV", "development"),
		APIUrl:      getEnv("API_URL", "http://localhost:8080"),
		FrontendURL: getEnv("FRONTEND_URL", "http://localhost:3000"),

		// Database
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "beatvault"),
		DBPassword: getEnv("DB_PASSWORD", "password"),
		DBName:     getEnv("DB_NAME", "beatvault_db"),
		DBSSLMode:  getEnv("DB_SSL_MODE", "disable"),
		DBTimeZone: getEnv("DB_TIMEZONE", "UTC"),

		// Redis
		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		// JWT
		JWTSecret:               getEnv("JWT_SECRET", "your-secret-key"),
		JWTAccessTokenDuration:  getEnvAsDuration("JWT_ACCESS_TOKEN_DURATION", "1h"),
		JWTRefreshTokenDuration: getEnvAsDuration("JWT_REFRESH_TOKEN_DURATION", "168h"),

		// Admin
		AdminUsername: getEnv("ADMIN_USERNAME", "admin"),
		AdminPassword: getEnv("ADMIN_PASSWORD", "admin123"),
		AdminEmail:    getEnv("ADMIN_EMAIL", "admin@beatvault.io"),

		// Stripe
		StripeSecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
		StripeSuccessURL:    getEnv("STRIPE_SUCCESS_URL", "https://beatvault.io/purchase/success"),
		StripeCancelURL:     getEnv("STRIPE_CANCEL_URL", "https://beatvault.io/purchase/cancel"),

		// SMTP
		SMTPHost:     getEnv("SMTP_HOST", "smtp.beatvault.io"),
		SMTPPort:     getEnvAsInt("SMTP_PORT", 465),
		SMTPUsername: getEnv("SMTP_USERNAME", "noreply@beatvault.io"),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		SMTPFrom:     getEnv("SMTP_FROM", "noreply@beatvault.io"),
		SMTPFromName: getEnv("SMTP_FROM_NAME", "BeatVault"),

		// Object store: 255KiB chunks bound per-write memory and keep range
		// reads from loading whole objects
		ObjectChunkSize:  getEnvAsInt("OBJECT_CHUNK_SIZE", 255*1024),
		MaxUploadSize:    int64(getEnvAsInt("MAX_UPLOAD_SIZE", 50*1024*1024)),
		MaxThumbnailSize: int64(getEnvAsInt("MAX_THUMBNAIL_SIZE", 5*1024*1024)),

		// Purchase ledger
		PurchasePendingTTL:   getEnvAsDuration("PURCHASE_PENDING_TTL", "30m"),
		PurchaseGraceWindow:  getEnvAsDuration("PURCHASE_GRACE_WINDOW", "2m"),
		PurchaseCleanupEvery: getEnvAsDuration("PURCHASE_CLEANUP_EVERY", "5m"),

		// Archive S3
		ArchiveEnabled:        getEnv("ARCHIVE_ENABLED", "false") == "true",
		ArchiveS3Endpoint:     getEnv("ARCHIVE_S3_ENDPOINT", ""),
		ArchiveS3Region:       getEnv("ARCHIVE_S3_REGION", "us-east-1"),
		ArchiveS3AccessKeyID:  getEnv("ARCHIVE_S3_ACCESS_KEY_ID", ""),
		ArchiveS3SecretAccess: getEnv("ARCHIVE_S3_SECRET_ACCESS_KEY", ""),
		ArchiveS3UsePathStyle: getEnv("ARCHIVE_S3_USE_PATH_STYLE", "true") == "true",
		ArchiveBucket:         getEnv("ARCHIVE_BUCKET", "beatvault-archive"),

		// Security
		BcryptCost:        getEnvAsInt("BCRYPT_COST", 12),
		RateLimitRequests: getEnvAsInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitDuration: getEnvAsDuration("RATE_LIMIT_DURATION", "1m"),
		UploadRateLimit:   getEnvAsInt("UPLOAD_RATE_LIMIT", 20),
		UploadRateWindow:  getEnvAsDuration("UPLOAD_RATE_WINDOW", "1h"),

		// CORS
		AllowedOrigins: getEnvAsSlice("ALLOWED_ORIGINS", []string{"http://localhost:3000", "https://beatvault.io"}),
		AllowedMethods: getEnvAsSlice("ALLOWED_METHODS", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		AllowedHeaders: getEnvAsSlice("ALLOWED_HEADERS", []string{"Content-Type", "Authorization"}),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := getEnv(key, defaultValue)
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}
	if duration, err := time.ParseDuration(defaultValue); err == nil {
		return duration
	}
	return time.Hour
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	return strings.Split(valueStr, ",")
}
