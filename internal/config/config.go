// Package config loads engine settings from the environment, with an
// optional .env file for local development.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config carries every tunable the commands need.
type Config struct {
	DBPath            string
	UserID            string
	CourseID          string
	Strategy          string
	SessionSeconds    int
	ContentLimit      int
	TargetAccuracy    float64
	LearningRate      float64
	OptimizerInterval time.Duration
	LogLevel          slog.Level
}

// Load reads the environment, preloading a .env file when one exists. A
// missing .env is not an error.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		DBPath:            os.Getenv("STUDYFLOW_DB"),
		UserID:            getEnv("STUDYFLOW_USER", "local"),
		CourseID:          getEnv("STUDYFLOW_COURSE", "default"),
		Strategy:          getEnv("STUDYFLOW_STRATEGY", "adaptive"),
		SessionSeconds:    getEnvInt("STUDYFLOW_SESSION_SECONDS", 600),
		ContentLimit:      getEnvInt("STUDYFLOW_CONTENT_LIMIT", 30),
		TargetAccuracy:    getEnvFloat("STUDYFLOW_TARGET_ACCURACY", 0.85),
		LearningRate:      getEnvFloat("STUDYFLOW_LEARNING_RATE", 0.1),
		OptimizerInterval: getEnvDuration("STUDYFLOW_OPTIMIZER_INTERVAL", 24*time.Hour),
		LogLevel:          parseLevel(getEnv("STUDYFLOW_LOG_LEVEL", "info")),
	}
}

// Logger builds the process logger at the configured level.
func (c Config) Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: c.LogLevel,
	}))
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
