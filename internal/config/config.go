package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const megabyte = 1 << 20

// Config stores runtime configuration for the desktop app and the CLI.
type Config struct {
	Backend BackendConfig
	Session SessionConfig
	Blob    BlobConfig
	Log     LogConfig
	UI      UIConfig
}

type BackendConfig struct {
	BaseURL          string
	Timeout          time.Duration
	MaxResponseBytes int64
}

type SessionConfig struct {
	LoopingEnabled       bool
	DefaultLoopMinutes   int
	DefaultRegionSeconds float64
	ProgressInterval     time.Duration
	MaxUploadBytes       int64
}

type BlobConfig struct {
	TTL             time.Duration
	CleanupInterval time.Duration
}

type LogConfig struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

type UIConfig struct {
	FrontendDir string
}

// Load reads an optional .env file and resolves configuration from
// environment variables and sensible defaults. Variables already set in the
// environment win over the file.
func Load() (Config, error) {
	envFile := envOrDefault("LOOPY_ENV_FILE", ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("read %s: %w", envFile, err)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, errors.New("could not determine home directory")
	}

	logFile := envOrDefault("LOOPY_LOG_FILE", filepath.Join(home, ".local", "state", "loopy", "loopy.log"))
	if strings.EqualFold(logFile, "off") {
		logFile = ""
	}

	cfg := Config{
		Backend: BackendConfig{
			BaseURL:          strings.TrimRight(envOrDefault("LOOPY_BACKEND_URL", "http://localhost:3000"), "/"),
			Timeout:          time.Duration(envOrDefaultInt("LOOPY_BACKEND_TIMEOUT_SEC", 900)) * time.Second,
			MaxResponseBytes: int64(envOrDefaultInt("LOOPY_MAX_RESPONSE_MB", 512)) * megabyte,
		},
		Session: SessionConfig{
			LoopingEnabled:       envOrDefaultBool("LOOPY_LOOPING_ENABLED", true),
			DefaultLoopMinutes:   envOrDefaultInt("LOOPY_DEFAULT_LOOP_MINUTES", 30),
			DefaultRegionSeconds: envOrDefaultFloat("LOOPY_DEFAULT_REGION_SECONDS", 15),
			ProgressInterval:     time.Duration(envOrDefaultInt("LOOPY_PROGRESS_INTERVAL_MS", 3000)) * time.Millisecond,
			MaxUploadBytes:       int64(envOrDefaultInt("LOOPY_MAX_UPLOAD_MB", 200)) * megabyte,
		},
		Blob: BlobConfig{
			TTL:             time.Duration(envOrDefaultInt("LOOPY_BLOB_TTL_MIN", 720)) * time.Minute,
			CleanupInterval: 10 * time.Minute,
		},
		Log: LogConfig{
			Level:      envOrDefault("LOOPY_LOG_LEVEL", "info"),
			File:       logFile,
			MaxSizeMB:  envOrDefaultInt("LOOPY_LOG_MAX_SIZE_MB", 10),
			MaxBackups: envOrDefaultInt("LOOPY_LOG_MAX_BACKUPS", 5),
			MaxAgeDays: envOrDefaultInt("LOOPY_LOG_MAX_AGE_DAYS", 30),
			Compress:   envOrDefaultBool("LOOPY_LOG_COMPRESS", true),
		},
		UI: UIConfig{
			FrontendDir: envOrDefault("LOOPY_FRONTEND_DIR", filepath.Join("frontend", "dist")),
		},
	}

	if cfg.Backend.Timeout <= 0 {
		cfg.Backend.Timeout = 900 * time.Second
	}
	if cfg.Backend.MaxResponseBytes <= 0 {
		cfg.Backend.MaxResponseBytes = 512 * megabyte
	}
	if cfg.Session.DefaultLoopMinutes <= 0 {
		cfg.Session.DefaultLoopMinutes = 30
	}
	if cfg.Session.DefaultRegionSeconds <= 0 {
		cfg.Session.DefaultRegionSeconds = 15
	}
	if cfg.Session.ProgressInterval < 100*time.Millisecond {
		cfg.Session.ProgressInterval = 3 * time.Second
	}
	if cfg.Session.MaxUploadBytes <= 0 {
		cfg.Session.MaxUploadBytes = 200 * megabyte
	}
	if cfg.Blob.TTL < 0 {
		cfg.Blob.TTL = 720 * time.Minute
	}
	if cfg.Log.MaxSizeMB <= 0 {
		cfg.Log.MaxSizeMB = 10
	}

	return cfg, nil
}

func envOrDefault(key string, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrDefaultInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDefaultFloat(key string, fallback float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDefaultBool(key string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
