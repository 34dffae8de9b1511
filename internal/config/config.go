// internal/config/config.go
package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerPort string

	// RFMS remote API
	RFMSBaseURL   string
	RFMSStoreCode string
	RFMSAPIKey    string

	// Dispatcher/session tunables — documented defaults, overridable via env
	RFMSRequestTimeout time.Duration // per-request timeout, distinct from retry budget
	RFMSTokenMargin    time.Duration // renew session token this close to expiry
	RFMSPollMax        int           // max polls of a "waiting" response
	RFMSPollDelay      time.Duration // base delay between polls
	RFMSRetryMax       int           // max transport-level retries
	RFMSRetryBase      time.Duration // base for exponential transport backoff

	// Attachment uploads
	UploadConcurrency int
	MaxAttachmentMB   int

	// SMTP
	SMTPUser     string
	SMTPPass     string
	SMTPFrom     string
	SMTPHost     string
	SMTPPort     int
	SMTPFromName string
	ReportEmail  string // back-office address for sync summaries; empty disables

	// DB
	DBHost    string
	DBPort    string
	DBUser    string
	DBPass    string
	DBName    string
	DBSSLMode string

	// Auth
	ServiceExpectedToken string

	// R2 Storage (invoice photos)
	R2AccountID       string
	R2AccessKeyID     string
	R2AccessKeySecret string
	R2BucketName      string
	R2PublicURL       string

	// CORS
	AllowedOrigins string
}

func Load() *Config {
	if os.Getenv("ENV") != "production" {
		_ = godotenv.Load() // optional .env for local
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8086"
	}

	smtpPort := getEnvInt("SMTP_PORT", 587)

	cfg := &Config{
		ServerPort: port,

		RFMSBaseURL:   getEnv("RFMS_BASE_URL", "https://api.rfms.online"),
		RFMSStoreCode: os.Getenv("RFMS_STORE_CODE"),
		RFMSAPIKey:    os.Getenv("RFMS_API_KEY"),

		RFMSRequestTimeout: getEnvDuration("RFMS_REQUEST_TIMEOUT", 30*time.Second),
		RFMSTokenMargin:    getEnvDuration("RFMS_TOKEN_MARGIN", 60*time.Second),
		RFMSPollMax:        getEnvInt("RFMS_POLL_MAX", 5),
		RFMSPollDelay:      getEnvDuration("RFMS_POLL_DELAY", 2*time.Second),
		RFMSRetryMax:       getEnvInt("RFMS_RETRY_MAX", 3),
		RFMSRetryBase:      getEnvDuration("RFMS_RETRY_BASE", 1*time.Second),

		UploadConcurrency: getEnvInt("UPLOAD_CONCURRENCY", 4),
		MaxAttachmentMB:   getEnvInt("MAX_ATTACHMENT_MB", 10),

		SMTPUser:     os.Getenv("SMTP_USER"),
		SMTPPass:     os.Getenv("SMTP_PASS"),
		SMTPFrom:     os.Getenv("SMTP_FROM"),
		SMTPHost:     os.Getenv("SMTP_HOST"),
		SMTPPort:     smtpPort,
		SMTPFromName: "RFMS Invoicing",
		ReportEmail:  os.Getenv("SYNC_REPORT_EMAIL"),

		DBHost:    getEnv("DB_HOST", "localhost"),
		DBPort:    getEnv("DB_PORT", "5432"),
		DBUser:    getEnv("DB_USER", "postgres"),
		DBPass:    getEnv("DB_PASS", "postgres"),
		DBName:    getEnv("DB_NAME", "rfms_invoicing_db"),
		DBSSLMode: getEnv("DB_SSLMODE", "disable"),

		ServiceExpectedToken: getEnv("SERVICE_TOKEN", "your-secret-service-token"),

		R2AccountID:       os.Getenv("R2_ACCOUNT_ID"),
		R2AccessKeyID:     os.Getenv("R2_ACCESS_KEY_ID"),
		R2AccessKeySecret: os.Getenv("R2_ACCESS_KEY_SECRET"),
		R2BucketName:      os.Getenv("R2_BUCKET_NAME"),
		R2PublicURL:       os.Getenv("R2_PUBLIC_URL"),

		AllowedOrigins: getEnv("ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:3001"),
	}

	if cfg.RFMSStoreCode == "" || cfg.RFMSAPIKey == "" {
		log.Println("⚠️ RFMS_STORE_CODE / RFMS_API_KEY not set — remote sync will fail until configured")
	}

	return cfg
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("⚠️ Invalid %s=%q, using default %d", key, raw, fallback)
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		log.Printf("⚠️ Invalid %s=%q, using default %v", key, raw, fallback)
		return fallback
	}
	return d
}
