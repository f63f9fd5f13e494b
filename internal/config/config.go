package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv         string
	Port           string
	AllowedOrigins string
	JWTSecret      string

	DatabaseURL string
	DBHost      string
	DBUser      string
	DBPass      string
	DBName      string
	DBPort      string

	RedisURL string

	MeiliSearchHost string
	MeiliMasterKey  string

	GeminiAPIKey string
	GeminiModel  string

	CloudinaryURL          string
	CloudinaryUploadFolder string

	HeartbeatInterval time.Duration
	PresenceWindow    time.Duration
	RateLimitMessage  time.Duration
	FeedMaxBackoff    time.Duration

	NotificationRetention time.Duration
	PruneSchedule         string

	FanoutWorkers int
	FanoutQueue   int
}

func Load() (*Config, error) {
	// Don't fail if .env doesn't exist (might be prod env vars)
	_ = godotenv.Load()

	cfg := &Config{
		AppEnv:         getEnv("APP_ENV", "development"),
		Port:           getEnv("PORT", "8080"),
		AllowedOrigins: getEnv("ALLOWED_ORIGINS", "http://localhost:3000"),
		JWTSecret:      os.Getenv("JWT_SECRET"),

		DatabaseURL: os.Getenv("DATABASE_URL"),
		DBHost:      getEnv("DB_HOST", "localhost"),
		DBUser:      getEnv("DB_USER", "postgres"),
		DBPass:      os.Getenv("DB_PASS"),
		DBName:      getEnv("DB_NAME", "friendline"),
		DBPort:      getEnv("DB_PORT", "5432"),

		RedisURL: os.Getenv("REDIS_URL"),

		MeiliSearchHost: getEnv("MEILISEARCH_HOST", "http://localhost:7700"),
		MeiliMasterKey:  os.Getenv("MEILI_MASTER_KEY"),

		GeminiAPIKey: os.Getenv("GEMINI_API_KEY"),
		GeminiModel:  getEnv("GEMINI_MODEL", "gemini-2.5-flash"),

		PruneSchedule: getEnv("PRUNE_SCHEDULE", "@every 12h"),

		CloudinaryURL:          os.Getenv("CLOUDINARY_URL"),
		CloudinaryUploadFolder: getEnv("CLOUDINARY_UPLOAD_FOLDER", "friendline"),
	}

	if cfg.JWTSecret == "" {
		if cfg.AppEnv == "production" {
			return nil, fmt.Errorf("JWT_SECRET is required in production")
		}
		cfg.JWTSecret = "dev-secret"
	}

	durations := []struct {
		key      string
		fallback string
		dst      *time.Duration
	}{
		{"HEARTBEAT_INTERVAL", "60s", &cfg.HeartbeatInterval},
		{"PRESENCE_WINDOW", "90s", &cfg.PresenceWindow},
		{"RATE_LIMIT_MESSAGE", "1s", &cfg.RateLimitMessage},
		{"FEED_MAX_BACKOFF", "30s", &cfg.FeedMaxBackoff},
		{"NOTIFICATION_RETENTION", "720h", &cfg.NotificationRetention},
	}
	for _, d := range durations {
		v, err := time.ParseDuration(getEnv(d.key, d.fallback))
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", d.key, err)
		}
		*d.dst = v
	}

	ints := []struct {
		key      string
		fallback string
		dst      *int
	}{
		{"FANOUT_WORKERS", "4", &cfg.FanoutWorkers},
		{"FANOUT_QUEUE", "256", &cfg.FanoutQueue},
	}
	for _, i := range ints {
		v, err := strconv.Atoi(getEnv(i.key, i.fallback))
		if err != nil || v <= 0 {
			return nil, fmt.Errorf("invalid %s: must be a positive integer", i.key)
		}
		*i.dst = v
	}

	return cfg, nil
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}
