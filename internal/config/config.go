// Package config loads daemon configuration from flags, environment variables, and .env files.
package config

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds the application configuration.
type Config struct {
	App     AppConfig
	Logger  LoggerConfig
	Storage StorageConfig
	Remote  RemoteConfig
	Sync    SyncConfig
	Server  ServerConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level string
}

// StorageConfig holds on-device storage locations.
type StorageConfig struct {
	DataPath      string // Root directory (default: ~/ListenUp/offline)
	DatabasePath  string // SQLite file (default: {data}/library.db)
	KVPath        string // Badger directory (default: {data}/kv)
	DownloadsPath string // Downloaded assets (default: {data}/downloads)
}

// RemoteConfig holds the remote data service connection settings.
type RemoteConfig struct {
	BaseURL     string
	APIKey      string
	AccessToken string        // Optional; also settable at runtime through the session
	Timeout     time.Duration // Per-request transport timeout (default: 30s)
	RateLimit   float64       // Requests per second per resource (default: 10)
	RateBurst   int           // Burst size (default: 20)
}

// SyncConfig holds sync and retry tuning.
type SyncConfig struct {
	MinVisibleDuration  time.Duration // Floor for the visible syncing period (default: 1s)
	AutoInterval        time.Duration // Periodic sync interval, 0 disables (default: 15m)
	ProbeInterval       time.Duration // Connectivity probe interval (default: 30s)
	RecommendationLimit int           // Items requested from get_recommendations (default: 20)
	TrendingLimit       int           // Items kept in the trending section (default: 20)
	RetryMax            int           // Total attempts per remote write (default: 3)
	RetryBaseDelay      time.Duration // Base backoff delay (default: 1s)
}

// ServerConfig holds control API configuration.
type ServerConfig struct {
	Enabled      bool
	Addr         string        // Listen address (default: 127.0.0.1:8765)
	ReadTimeout  time.Duration // default: 15s
	WriteTimeout time.Duration // default: 15s
	IdleTimeout  time.Duration // default: 60s
}

// LoadConfig loads configuration from multiple sources with precedence:
// 1. Command-line flags (highest priority).
// 2. Environment variables.
// 3. .env file.
// 4. Default values (lowest priority).
func LoadConfig() (*Config, error) {
	return load(flag.CommandLine, os.Args[1:])
}

func load(fs *flag.FlagSet, args []string) (*Config, error) {
	env := fs.String("env", "", "Environment (development, staging, production)")
	logLevel := fs.String("log-level", "", "Log level (debug, info, warn, error)")
	dataPath := fs.String("data-path", "", "Base path for on-device data")
	dbPath := fs.String("db-path", "", "Path to the SQLite database")
	downloadsPath := fs.String("downloads-path", "", "Directory for downloaded assets")
	remoteURL := fs.String("remote-url", "", "Remote data service base URL")
	apiKey := fs.String("api-key", "", "Remote data service API key")
	remoteTimeout := fs.String("remote-timeout", "", "Remote request timeout (default: 30s)")
	minVisible := fs.String("sync-min-visible", "", "Minimum visible sync duration (default: 1s)")
	autoInterval := fs.String("sync-interval", "", "Automatic sync interval, 0 disables (default: 15m)")
	probeInterval := fs.String("probe-interval", "", "Connectivity probe interval (default: 30s)")
	retryMax := fs.String("retry-max", "", "Attempts per remote write (default: 3)")
	retryBase := fs.String("retry-base-delay", "", "Base retry delay (default: 1s)")
	serverAddr := fs.String("addr", "", "Control API listen address (default: 127.0.0.1:8765)")
	serverEnabled := fs.String("control-api", "", "Serve the control API (default: true)")
	envFile := fs.String("env-file", ".env", "Path to .env file")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}

	// Load .env file if it exists (silently ignore if not found).
	_ = loadEnvFile(*envFile)

	cfg := &Config{
		App: AppConfig{
			Environment: getConfigValue(*env, "ENV", "development"),
		},
		Logger: LoggerConfig{
			Level: getConfigValue(*logLevel, "LOG_LEVEL", "info"),
		},
		Storage: StorageConfig{
			DataPath:      getConfigValue(*dataPath, "DATA_PATH", ""),
			DatabasePath:  getConfigValue(*dbPath, "DB_PATH", ""),
			KVPath:        getConfigValue("", "KV_PATH", ""),
			DownloadsPath: getConfigValue(*downloadsPath, "DOWNLOADS_PATH", ""),
		},
		Remote: RemoteConfig{
			BaseURL:     getConfigValue(*remoteURL, "REMOTE_URL", ""),
			APIKey:      getConfigValue(*apiKey, "REMOTE_API_KEY", ""),
			AccessToken: getConfigValue("", "REMOTE_ACCESS_TOKEN", ""),
			RateLimit:   getFloatConfigValue("", "REMOTE_RATE_LIMIT", 10),
			RateBurst:   getIntConfigValue("", "REMOTE_RATE_BURST", 20),
		},
		Sync: SyncConfig{
			RecommendationLimit: getIntConfigValue("", "SYNC_RECOMMENDATION_LIMIT", 20),
			TrendingLimit:       getIntConfigValue("", "SYNC_TRENDING_LIMIT", 20),
			RetryMax:            getIntConfigValue(*retryMax, "RETRY_MAX", 3),
		},
		Server: ServerConfig{
			Enabled: getBoolConfigValue(*serverEnabled, "CONTROL_API", true),
			Addr:    getConfigValue(*serverAddr, "CONTROL_API_ADDR", "127.0.0.1:8765"),
		},
	}

	durations := []struct {
		flagValue string
		envKey    string
		def       string
		target    *time.Duration
	}{
		{*remoteTimeout, "REMOTE_TIMEOUT", "30s", &cfg.Remote.Timeout},
		{*minVisible, "SYNC_MIN_VISIBLE", "1s", &cfg.Sync.MinVisibleDuration},
		{*autoInterval, "SYNC_INTERVAL", "15m", &cfg.Sync.AutoInterval},
		{*probeInterval, "PROBE_INTERVAL", "30s", &cfg.Sync.ProbeInterval},
		{*retryBase, "RETRY_BASE_DELAY", "1s", &cfg.Sync.RetryBaseDelay},
		{"", "CONTROL_API_READ_TIMEOUT", "15s", &cfg.Server.ReadTimeout},
		{"", "CONTROL_API_WRITE_TIMEOUT", "15s", &cfg.Server.WriteTimeout},
		{"", "CONTROL_API_IDLE_TIMEOUT", "60s", &cfg.Server.IdleTimeout},
	}
	for _, d := range durations {
		raw := getConfigValue(d.flagValue, d.envKey, d.def)
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", strings.ToLower(d.envKey), raw, err)
		}
		*d.target = parsed
	}

	if err := cfg.expandStoragePaths(); err != nil {
		return nil, fmt.Errorf("invalid storage path: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required config values are present and valid.
func (c *Config) Validate() error {
	validEnvs := map[string]bool{
		"development": true,
		"staging":     true,
		"production":  true,
	}
	if !validEnvs[c.App.Environment] {
		return fmt.Errorf("invalid environment: %q (must be development, staging, or production)", c.App.Environment)
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[strings.ToLower(c.Logger.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logger.Level)
	}

	if c.Storage.DataPath == "" {
		return errors.New("data path cannot be empty after expansion")
	}

	if c.Remote.BaseURL == "" {
		return errors.New("REMOTE_URL is required")
	}
	if !strings.HasPrefix(c.Remote.BaseURL, "http://") && !strings.HasPrefix(c.Remote.BaseURL, "https://") {
		return fmt.Errorf("invalid remote url: %s", c.Remote.BaseURL)
	}

	if c.Sync.RetryMax < 1 {
		return fmt.Errorf("retry max must be at least 1, got %d", c.Sync.RetryMax)
	}
	if c.Sync.MinVisibleDuration < 0 {
		return errors.New("sync min visible duration cannot be negative")
	}

	return nil
}

// expandPath expands ~ and makes the path absolute.
// If path is empty, defaultPath is returned unchanged.
func expandPath(path, defaultPath string) (string, error) {
	if path == "" {
		return defaultPath, nil
	}

	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}

	if !filepath.IsAbs(path) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		path = absPath
	}

	return filepath.Clean(path), nil
}

// expandStoragePaths resolves the data root and derives the per-store defaults from it.
func (c *Config) expandStoragePaths() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	root, err := expandPath(c.Storage.DataPath, filepath.Join(homeDir, "ListenUp", "offline"))
	if err != nil {
		return err
	}
	c.Storage.DataPath = root

	if c.Storage.DatabasePath, err = expandPath(c.Storage.DatabasePath, filepath.Join(root, "library.db")); err != nil {
		return err
	}
	if c.Storage.KVPath, err = expandPath(c.Storage.KVPath, filepath.Join(root, "kv")); err != nil {
		return err
	}
	if c.Storage.DownloadsPath, err = expandPath(c.Storage.DownloadsPath, filepath.Join(root, "downloads")); err != nil {
		return err
	}
	return nil
}

// getConfigValue returns the first non-empty value from flag, env var, or default.
func getConfigValue(flagValue, envKey, defaultValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if envValue := os.Getenv(envKey); envValue != "" {
		return envValue
	}
	return defaultValue
}

// getBoolConfigValue accepts "true", "1", "yes" (case-insensitive) as true.
func getBoolConfigValue(flagValue, envKey string, defaultValue bool) bool {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	strValue = strings.ToLower(strValue)
	return strValue == "true" || strValue == "1" || strValue == "yes"
}

// getIntConfigValue returns an int from flag, env var, or default.
func getIntConfigValue(flagValue, envKey string, defaultValue int) int {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	result, err := strconv.Atoi(strValue)
	if err != nil {
		return defaultValue
	}
	return result
}

// getFloatConfigValue returns a float from flag, env var, or default.
func getFloatConfigValue(flagValue, envKey string, defaultValue float64) float64 {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	result, err := strconv.ParseFloat(strValue, 64)
	if err != nil {
		return defaultValue
	}
	return result
}

// loadEnvFile loads environment variables from a .env file.
// Format: KEY=value (one per line, # for comments).
func loadEnvFile(path string) error {
	file, err := os.Open(path) //#nosec G304 -- Config file path from user input is expected
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return fmt.Errorf("invalid format at line %d: %s", lineNum, line)
		}
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"'`)

		// Real environment variables win over the file.
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("failed to set env var %s: %w", key, err)
			}
		}
	}

	return scanner.Err()
}
