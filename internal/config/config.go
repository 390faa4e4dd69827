package config

import (
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultListenAddr   = ":8080"
	defaultDBPath       = "stoker.db"
	defaultPollInterval = 500 * time.Millisecond

	envListenAddr     = "STOKER_LISTEN_ADDR"
	envDBPath         = "STOKER_DB_PATH"
	envLogLevel       = "STOKER_LOG_LEVEL"
	envMaxConcurrency = "STOKER_MAX_CONCURRENCY"
	envJobCapacity    = "STOKER_JOB_CAPACITY"
	envPollInterval   = "STOKER_STREAM_POLL_INTERVAL"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	ListenAddr string
	// DBPath is the SQLite database file. An empty value (set
	// STOKER_DB_PATH=memory) selects the in-memory registry.
	DBPath         string
	LogLevel       slog.Level
	MaxConcurrency int
	JobCapacity    int
	PollInterval   time.Duration
}

// Load reads configuration from environment variables with sensible defaults.
// Malformed numeric or duration values fall back to their defaults.
func Load() Config {
	cfg := Config{
		ListenAddr:   defaultListenAddr,
		DBPath:       defaultDBPath,
		LogLevel:     slog.LevelInfo,
		PollInterval: defaultPollInterval,
	}

	if v := os.Getenv(envListenAddr); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(envDBPath); v != "" {
		if strings.EqualFold(v, "memory") {
			cfg.DBPath = ""
		} else {
			cfg.DBPath = v
		}
	}
	if v := os.Getenv(envLogLevel); v != "" {
		cfg.LogLevel = parseLogLevel(v)
	}
	if v := os.Getenv(envMaxConcurrency); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxConcurrency = n
		}
	}
	if v := os.Getenv(envJobCapacity); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.JobCapacity = n
		}
	}
	if v := os.Getenv(envPollInterval); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.PollInterval = d
		}
	}

	return cfg
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a structured JSON logger writing to w at the configured level.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}
