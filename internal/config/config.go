// Package config provides configuration for the chat client.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds the chat client configuration.
type Config struct {
	// Backend endpoints
	APIBaseURL    string // REST base, e.g. http://localhost:8000/api/v1
	StreamBaseURL string // SSE base, e.g. http://localhost:8000
	WSBaseURL     string // websocket base, e.g. ws://localhost:8000

	// Auth
	AuthToken string

	// Stream transport: "sse" or "ws"
	StreamTransport string

	// Reconnect policy
	ReconnectBaseDelay time.Duration
	MaxRetries         int

	// Local snapshot
	SnapshotDSN string

	// Request context
	SellerNo int
}

// Load loads configuration from environment variables.
func Load() *Config {
	return &Config{
		APIBaseURL:         getEnv("API_BASE_URL", "http://localhost:8000/api/v1"),
		StreamBaseURL:      getEnv("SSE_BASE_URL", "http://localhost:8000"),
		WSBaseURL:          getEnv("WS_BASE_URL", "ws://localhost:8000"),
		AuthToken:          getEnv("AUTH_TOKEN", ""),
		StreamTransport:    getEnv("STREAM_TRANSPORT", "sse"),
		ReconnectBaseDelay: time.Duration(getEnvInt("RECONNECT_BASE_DELAY_MS", 1000)) * time.Millisecond,
		MaxRetries:         getEnvInt("RECONNECT_MAX_RETRIES", 5),
		SnapshotDSN:        getEnv("SNAPSHOT_DSN", "file:chat.db?cache=shared&mode=rwc"),
		SellerNo:           getEnvInt("TEST_SELLER_NO", 1),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}
