package config

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		App:     AppConfig{Environment: "development"},
		Logger:  LoggerConfig{Level: "info"},
		Storage: StorageConfig{DataPath: "/data"},
		Remote:  RemoteConfig{BaseURL: "https://api.example.com"},
		Sync:    SyncConfig{RetryMax: 3, MinVisibleDuration: time.Second},
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidate_Environments(t *testing.T) {
	tests := []struct {
		env   string
		valid bool
	}{
		{"development", true},
		{"staging", true},
		{"production", true},
		{"test", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			cfg := validConfig()
			cfg.App.Environment = tt.env
			if tt.valid {
				assert.NoError(t, cfg.Validate())
			} else {
				assert.Error(t, cfg.Validate())
			}
		})
	}
}

func TestValidate_RemoteURL(t *testing.T) {
	cfg := validConfig()
	cfg.Remote.BaseURL = ""
	assert.Error(t, cfg.Validate())

	cfg.Remote.BaseURL = "ftp://nope"
	assert.Error(t, cfg.Validate())
}

func TestValidate_RetryMax(t *testing.T) {
	cfg := validConfig()
	cfg.Sync.RetryMax = 0
	assert.Error(t, cfg.Validate())
}

func TestLoad_DefaultsAndDerivedPaths(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("REMOTE_URL", "https://api.example.com")
	t.Setenv("DATA_PATH", dir)

	cfg, err := load(flag.NewFlagSet("test", flag.ContinueOnError), []string{"-env-file", filepath.Join(dir, "missing.env")})
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.App.Environment)
	assert.Equal(t, filepath.Join(dir, "library.db"), cfg.Storage.DatabasePath)
	assert.Equal(t, filepath.Join(dir, "kv"), cfg.Storage.KVPath)
	assert.Equal(t, filepath.Join(dir, "downloads"), cfg.Storage.DownloadsPath)
	assert.Equal(t, time.Second, cfg.Sync.MinVisibleDuration)
	assert.Equal(t, 3, cfg.Sync.RetryMax)
	assert.Equal(t, 30*time.Second, cfg.Remote.Timeout)
	assert.True(t, cfg.Server.Enabled)
}

func TestLoad_FlagsOverrideEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("REMOTE_URL", "https://env.example.com")
	t.Setenv("DATA_PATH", dir)
	t.Setenv("RETRY_MAX", "5")

	cfg, err := load(flag.NewFlagSet("test", flag.ContinueOnError), []string{
		"-remote-url", "https://flag.example.com",
		"-retry-max", "7",
		"-env-file", filepath.Join(dir, "missing.env"),
	})
	require.NoError(t, err)

	assert.Equal(t, "https://flag.example.com", cfg.Remote.BaseURL)
	assert.Equal(t, 7, cfg.Sync.RetryMax)
}

func TestLoad_InvalidDuration(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("REMOTE_URL", "https://api.example.com")
	t.Setenv("DATA_PATH", dir)
	t.Setenv("SYNC_MIN_VISIBLE", "soon")

	_, err := load(flag.NewFlagSet("test", flag.ContinueOnError), []string{"-env-file", filepath.Join(dir, "missing.env")})
	assert.Error(t, err)
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "# comment\nLISTENUP_TEST_A=one\nLISTENUP_TEST_B=\"two\"\n\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("LISTENUP_TEST_A", "")
	t.Setenv("LISTENUP_TEST_B", "preset")

	require.NoError(t, loadEnvFile(path))

	assert.Equal(t, "one", os.Getenv("LISTENUP_TEST_A"))
	assert.Equal(t, "preset", os.Getenv("LISTENUP_TEST_B"))
}

func TestLoadEnvFile_InvalidLine(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("NOT_A_PAIR\n"), 0o600))

	assert.Error(t, loadEnvFile(path))
}

func TestExpandPath(t *testing.T) {
	got, err := expandPath("", "/default")
	require.NoError(t, err)
	assert.Equal(t, "/default", got)

	home, err := os.UserHomeDir()
	require.NoError(t, err)
	got, err = expandPath("~/offline", "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "offline"), got)
}
