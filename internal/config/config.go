package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config contains runtime configuration values.
type Config struct {
	Environment          string
	HTTPPort             string
	DatabaseURL          string
	EncryptionSecret     string
	GoogleClientID       string
	GoogleClientSecret   string
	GoogleAuthURL        string
	GoogleTokenURL       string
	GoogleRevokeURL      string
	SessionJWTSecret     string
	SessionIssuer        string
	RedisAddr            string
	RedisPassword        string
	RedisDB              int
	ProviderTimeout      time.Duration
	ConsentStateTTL      time.Duration
	BridgeInterval       time.Duration
	ServiceName          string
	RateLimitRPM         int
	TelemetryEndpoint    string
	TelemetryInsecure    bool
	CORSAllowedOrigins   []string
	CORSAllowedMethods   []string
	CORSAllowedHeaders   []string
	CORSAllowCredentials bool
}

// Load reads configuration from environment variables with sane defaults.
// The encryption secret and Google client credentials are required; the
// process refuses to serve token operations without them.
func Load() (Config, error) {
	_ = godotenv.Load()

	encryptionSecret := strings.TrimSpace(os.Getenv("ENCRYPTION_SECRET"))
	if encryptionSecret == "" {
		return Config{}, fmt.Errorf("ENCRYPTION_SECRET is required")
	}
	googleClientID := strings.TrimSpace(os.Getenv("GOOGLE_CLIENT_ID"))
	if googleClientID == "" {
		return Config{}, fmt.Errorf("GOOGLE_CLIENT_ID is required")
	}
	googleClientSecret := strings.TrimSpace(os.Getenv("GOOGLE_CLIENT_SECRET"))
	if googleClientSecret == "" {
		return Config{}, fmt.Errorf("GOOGLE_CLIENT_SECRET is required")
	}

	cfg := Config{
		Environment:          getEnv("APP_ENV", "development"),
		HTTPPort:             getEnv("HTTP_PORT", "8080"),
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		EncryptionSecret:     encryptionSecret,
		GoogleClientID:       googleClientID,
		GoogleClientSecret:   googleClientSecret,
		GoogleAuthURL:        getEnv("GOOGLE_AUTH_URL", "https://accounts.google.com/o/oauth2/v2/auth"),
		GoogleTokenURL:       getEnv("GOOGLE_TOKEN_URL", "https://oauth2.googleapis.com/token"),
		GoogleRevokeURL:      getEnv("GOOGLE_REVOKE_URL", "https://oauth2.googleapis.com/revoke"),
		SessionJWTSecret:     os.Getenv("SESSION_JWT_SECRET"),
		SessionIssuer:        getEnv("SESSION_ISSUER", "https://auth.metricshub.dev"),
		RedisAddr:            getEnv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword:        os.Getenv("REDIS_PASSWORD"),
		RedisDB:              getInt("REDIS_DB", 0),
		ProviderTimeout:      getDuration("PROVIDER_TIMEOUT", 10*time.Second),
		ConsentStateTTL:      getDuration("CONSENT_STATE_TTL", 5*time.Minute),
		BridgeInterval:       getDuration("BRIDGE_INTERVAL", 30*time.Second),
		ServiceName:          getEnv("SERVICE_NAME", "metricshub-connect"),
		RateLimitRPM:         getInt("RATE_LIMIT_RPM", 600),
		TelemetryEndpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		TelemetryInsecure:    getBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		CORSAllowedOrigins:   getList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		CORSAllowedMethods:   getList("CORS_ALLOWED_METHODS", []string{"GET", "POST", "DELETE", "OPTIONS"}),
		CORSAllowedHeaders:   getList("CORS_ALLOWED_HEADERS", []string{"Authorization", "Content-Type", "X-Company-ID"}),
		CORSAllowCredentials: getBool("CORS_ALLOW_CREDENTIALS", false),
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.SessionJWTSecret == "" {
		return Config{}, fmt.Errorf("SESSION_JWT_SECRET is required")
	}

	if cfg.ProviderTimeout <= 0 {
		cfg.ProviderTimeout = 10 * time.Second
	}
	if cfg.BridgeInterval <= 0 {
		cfg.BridgeInterval = 30 * time.Second
	}

	return cfg, nil
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		d, err := time.ParseDuration(v)
		if err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(v) {
		case "1", "true", "t", "yes", "y", "on":
			return true
		case "0", "false", "f", "no", "n", "off":
			return false
		}
	}
	return def
}

func getList(key string, def []string) []string {
	if v, ok := os.LookupEnv(key); ok {
		parts := strings.Split(v, ",")
		var cleaned []string
		for _, p := range parts {
			trimmed := strings.TrimSpace(p)
			if trimmed != "" {
				cleaned = append(cleaned, trimmed)
			}
		}
		if len(cleaned) > 0 {
			return cleaned
		}
	}
	return def
}
