package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server configuration
	Port        string
	Environment string

	// Redis configuration
	RedisURL string

	// PubNub configuration
	PubNubPublishKey   string
	PubNubSubscribeKey string
	PubNubSecretKey    string
	PubNubUserID       string

	// Spotify configuration
	SpotifyClientID     string
	SpotifyClientSecret string
	SpotifyRedirectURL  string

	// Watcher configuration
	WatcherInterval     time.Duration
	QueueInterval       time.Duration
	StatsInterval       time.Duration
	FetchTimeout        time.Duration
	WatcherConcurrency  int
	WatcherAutoStart    bool
	WatcherControlToken string
	ApprovedLookupLimit int

	// Guest request configuration
	DefaultMaxRequests int
	SubmitRateLimit    int

	// Monitoring
	EnableMetrics bool
}

func LoadConfig() *Config {
	loadDotEnv(".env", ".env.local")

	return &Config{
		// Server
		Port:        getEnv("PORT", "8090"),
		Environment: getEnv("ENVIRONMENT", "development"),

		// Redis
		RedisURL: getEnv("REDIS_URL", "localhost:6379"),

		// PubNub
		PubNubPublishKey:   getEnv("PUBNUB_PUBLISH_KEY", ""),
		PubNubSubscribeKey: getEnv("PUBNUB_SUBSCRIBE_KEY", ""),
		PubNubSecretKey:    getEnv("PUBNUB_SECRET_KEY", ""),
		PubNubUserID:       getEnv("PUBNUB_USER_ID", "playback-watcher"),

		// Spotify
		SpotifyClientID:     getEnv("SPOTIFY_CLIENT_ID", ""),
		SpotifyClientSecret: getEnv("SPOTIFY_CLIENT_SECRET", ""),
		SpotifyRedirectURL:  getEnv("SPOTIFY_REDIRECT_URL", "http://localhost:8090/api/v1/spotify/callback"),

		// Watcher
		WatcherInterval:     getEnvAsDuration("WATCHER_INTERVAL", "2s"),
		QueueInterval:       getEnvAsDuration("QUEUE_INTERVAL", "15s"),
		StatsInterval:       getEnvAsDuration("STATS_INTERVAL", "30s"),
		FetchTimeout:        getEnvAsDuration("FETCH_TIMEOUT", "2s"),
		WatcherConcurrency:  getEnvAsInt("WATCHER_CONCURRENCY", 8),
		WatcherAutoStart:    getEnvAsBool("WATCHER_AUTO_START", false),
		WatcherControlToken: getEnv("WATCHER_CONTROL_TOKEN", ""),
		ApprovedLookupLimit: getEnvAsInt("APPROVED_LOOKUP_LIMIT", 200),

		// Guest requests
		DefaultMaxRequests: getEnvAsInt("DEFAULT_MAX_REQUESTS", 3),
		SubmitRateLimit:    getEnvAsInt("SUBMIT_RATE_LIMIT", 10),

		// Monitoring
		EnableMetrics: getEnvAsBool("ENABLE_METRICS", true),
	}
}

// loadDotEnv overlays env files that exist; the process environment still wins
// for keys not present in them.
func loadDotEnv(files ...string) {
	for _, file := range files {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := godotenv.Overload(file); err != nil {
			slog.Warn("failed to load env file", "file", file, "error", err)
		}
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

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := getEnv(key, defaultValue)
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}
	// If parsing fails, try to parse default value
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}
