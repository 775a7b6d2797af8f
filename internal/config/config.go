package config

import (
	"errors"
	"os"
	"time"
)

type Config struct {
	ServerPort  string
	DatabaseURL string
	RedisURL    string
	RabbitURL   string // optional; empty disables sold-out notifications

	// Realtime tuning. Defaults match the documented subscription contract.
	StaleThreshold    time.Duration
	StalePollInterval time.Duration
	RetryOnError      bool
	RetryDelay        time.Duration
	ConnectGrace      time.Duration
}

func LoadConfig() (*Config, error) {
	staleThreshold, err := getDurationEnv("STALE_THRESHOLD", "60s")
	if err != nil {
		return nil, errors.New("invalid STALE_THRESHOLD format")
	}
	stalePoll, err := getDurationEnv("STALE_POLL_INTERVAL", "10s")
	if err != nil {
		return nil, errors.New("invalid STALE_POLL_INTERVAL format")
	}
	retryDelay, err := getDurationEnv("RETRY_DELAY", "3s")
	if err != nil {
		return nil, errors.New("invalid RETRY_DELAY format")
	}
	connectGrace, err := getDurationEnv("CONNECT_GRACE", "100ms")
	if err != nil {
		return nil, errors.New("invalid CONNECT_GRACE format")
	}

	cfg := &Config{
		ServerPort:        getEnv("SERVER_PORT", "8080"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		RedisURL:          os.Getenv("REDIS_URL"),
		RabbitURL:         os.Getenv("RABBITMQ_URL"),
		StaleThreshold:    staleThreshold,
		StalePollInterval: stalePoll,
		RetryOnError:      getEnv("RETRY_ON_ERROR", "true") != "false",
		RetryDelay:        retryDelay,
		ConnectGrace:      connectGrace,
	}

	// Validate required fields
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}

	return cfg, nil
}

// Helper: get env with default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationEnv(key, defaultValue string) (time.Duration, error) {
	return time.ParseDuration(getEnv(key, defaultValue))
}
