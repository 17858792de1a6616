package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Token / Session
	TokenSigningKey      string
	TokenIssuer          string
	TokenTTL             time.Duration
	VerificationTokenTTL time.Duration

	// OAuth
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string

	// Webhook
	WebhookSignatureKey string

	// Billing products
	ProProductID        int64
	ProMonthlyVariantID int64
	ProAnnualVariantID  int64

	// Brevo
	BrevoAPIKey         string
	BrevoBaseURL        string
	BrevoSenderName     string
	BrevoSenderEmail    string
	BrevoVerifyTemplate int
	BrevoListID         int64

	// Rate Limit
	RateLimitGeneral int
	RateLimitAuth    int

	// Worker
	CleanupInterval time.Duration

	// Server
	ServerPort string
	BaseURL    string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数の未設定・形式不正はすべて収集し、1つのエラーにまとめて返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var problems []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		problems = append(problems, "DATABASE_URL is not set")
	}

	cfg.TokenSigningKey = os.Getenv("TOKEN_SIGNING_KEY")
	if cfg.TokenSigningKey == "" {
		problems = append(problems, "TOKEN_SIGNING_KEY is not set")
	}

	cfg.WebhookSignatureKey = os.Getenv("WEBHOOK_SIGNATURE_KEY")
	if cfg.WebhookSignatureKey == "" {
		problems = append(problems, "WEBHOOK_SIGNATURE_KEY is not set")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		problems = append(problems, "BASE_URL is not set")
	}

	var err error
	cfg.ProProductID, err = requireEnvInt64("PRO_PRODUCT_ID")
	if err != nil {
		problems = append(problems, err.Error())
	}
	cfg.ProMonthlyVariantID, err = requireEnvInt64("PRO_MONTHLY_VARIANT_ID")
	if err != nil {
		problems = append(problems, err.Error())
	}
	cfg.ProAnnualVariantID, err = requireEnvInt64("PRO_ANNUALLY_VARIANT_ID")
	if err != nil {
		problems = append(problems, err.Error())
	}

	if len(problems) > 0 {
		return nil, fmt.Errorf("invalid environment configuration: %s", strings.Join(problems, "; "))
	}

	// Optional fields with defaults
	cfg.TokenIssuer = getEnvString("TOKEN_ISSUER", "customerd")
	cfg.TokenTTL = getEnvDuration("TOKEN_TTL", 24*time.Hour)
	cfg.VerificationTokenTTL = getEnvDuration("VERIFICATION_TOKEN_TTL", 1*time.Hour)
	cfg.GoogleClientID = getEnvString("GOOGLE_CLIENT_ID", "")
	cfg.GoogleClientSecret = getEnvString("GOOGLE_CLIENT_SECRET", "")
	cfg.GoogleRedirectURL = getEnvString("GOOGLE_REDIRECT_URL", "")
	cfg.BrevoAPIKey = getEnvString("BREVO_API_KEY", "")
	cfg.BrevoBaseURL = getEnvString("BREVO_BASE_URL", "https://api.brevo.com/v3")
	cfg.BrevoSenderName = getEnvString("BREVO_SENDER_NAME", "Customer Service")
	cfg.BrevoSenderEmail = getEnvString("BREVO_SENDER_EMAIL", "no-reply@example.com")
	cfg.BrevoVerifyTemplate = getEnvInt("BREVO_VERIFY_TEMPLATE", 0)
	cfg.BrevoListID = int64(getEnvInt("BREVO_LIST_ID", 0))
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitAuth = getEnvInt("RATE_LIMIT_AUTH", 10)
	cfg.CleanupInterval = getEnvDuration("CLEANUP_INTERVAL", 10*time.Minute)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

func requireEnvInt64(key string) (int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return 0, fmt.Errorf("%s is not set", key)
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s is not a valid integer: %w", key, err)
	}
	return i, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
