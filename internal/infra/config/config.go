package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Config aggregates application configuration values loaded from environment variables.
type Config struct {
	Env              string
	LogLevel         string
	HTTPAddr         string
	BackendBaseURL   string
	KafkaBrokers     []string
	KafkaTopicPrefix string
	KafkaGroupPrefix string
	LiveRetryDelay   time.Duration
	SnapshotTimeout  time.Duration
	SubmitTimeout    time.Duration
	MongoURI         string
	MongoDB          string
	ClientID         string
}

// Load parses configuration from the current environment.
func Load() (Config, error) {
	cfg := Config{
		Env:              getEnv("APP_ENV", "dev"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		HTTPAddr:         getEnv("HTTP_ADDR", ":8080"),
		BackendBaseURL:   os.Getenv("BACKEND_BASE_URL"),
		KafkaTopicPrefix: getEnv("KAFKA_TOPIC_PREFIX", ""),
		KafkaGroupPrefix: getEnv("KAFKA_GROUP_PREFIX", "zarp-availability"),
		MongoURI:         os.Getenv("MONGO_URI"),
		MongoDB:          getEnv("MONGO_DB", "zarp"),
		ClientID:         getEnv("CLIENT_ID", "zarp-availability"),
	}
	brokers := getEnv("KAFKA_BROKERS", "")
	if brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}

	retryDelay, err := parseDurationEnv("LIVE_RETRY_DELAY", 5*time.Second)
	if err != nil {
		return Config{}, err
	}
	cfg.LiveRetryDelay = retryDelay

	snapshotTimeout, err := parseDurationEnv("SNAPSHOT_TIMEOUT", 10*time.Second)
	if err != nil {
		return Config{}, err
	}
	cfg.SnapshotTimeout = snapshotTimeout

	submitTimeout, err := parseDurationEnv("SUBMIT_TIMEOUT", 15*time.Second)
	if err != nil {
		return Config{}, err
	}
	cfg.SubmitTimeout = submitTimeout

	if cfg.BackendBaseURL == "" {
		return Config{}, fmt.Errorf("BACKEND_BASE_URL is required")
	}
	if len(cfg.KafkaBrokers) == 0 {
		return Config{}, fmt.Errorf("KAFKA_BROKERS is required")
	}
	return cfg, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseDurationEnv(key string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s duration: %w", key, err)
	}
	return d, nil
}
