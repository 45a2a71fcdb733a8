package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds configuration for the chat service, the notifier and the seed tool
type Config struct {
	Env          string
	Port         string
	NotifierPort string

	MongoURI      string
	MongoDatabase string
	RoomStore     string // "mongo" or "memory"

	RedisURL      string
	NotifyChannel string

	PatientMarker  string
	AllowedOrigins string
	RequestTimeout time.Duration

	// Per-connection realtime rate limit
	WSEventsPerSecond float64
	WSEventBurst      int

	// Pending notifications for offline users
	InboxMax int
	InboxTTL time.Duration
}

// Load reads configuration from environment variables.
// A .env file is loaded first when present. Production panics on missing
// connection strings.
func Load() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		Env:               getEnv("ENV", "development"),
		Port:              getEnv("PORT", "3002"),
		NotifierPort:      getEnv("NOTIFIER_PORT", "3003"),
		MongoURI:          getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase:     getEnv("MONGO_DB", "chat-app"),
		RoomStore:         getEnv("ROOM_STORE", "mongo"),
		RedisURL:          getEnv("REDIS_URL", "redis://localhost:6379"),
		NotifyChannel:     getEnv("NOTIFY_CHANNEL", "notifications"),
		PatientMarker:     getEnv("PATIENT_MARKER", "patient"),
		AllowedOrigins:    getEnv("CORS_ALLOWED_ORIGINS", "*"),
		RequestTimeout:    getDuration("REQUEST_TIMEOUT", 10*time.Second),
		WSEventsPerSecond: getFloat("WS_EVENTS_PER_SECOND", 5),
		WSEventBurst:      getInt("WS_EVENT_BURST", 10),
		InboxMax:          getInt("INBOX_MAX", 50),
		InboxTTL:          getDuration("INBOX_TTL", 72*time.Hour),
	}

	if cfg.Env == "production" {
		if os.Getenv("MONGO_URI") == "" && cfg.RoomStore == "mongo" {
			panic("MONGO_URI is required in production")
		}
		if os.Getenv("REDIS_URL") == "" {
			panic("REDIS_URL is required in production")
		}
	}

	return cfg
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getInt(key string, defaultVal int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

func getFloat(key string, defaultVal float64) float64 {
	if f, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil && f > 0 {
		return f
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil && d > 0 {
		return d
	}
	return defaultVal
}
