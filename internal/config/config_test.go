package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, data string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(data), 0o600))
	return p
}

// chdir switches the working directory and restores it on cleanup.
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

const sampleYAML = `
env: "prod"
http:
  host: "127.0.0.1"
  port: "9000"
  shutdown_timeout: "5s"
db:
  path: "/var/lib/game-saviour/prod.db"
log:
  level: "debug"
  format: "json"
auth:
  jwt_secret: "a-very-long-production-secret"
  token_ttl: "2h"
  google_client_id: "id"
  google_client_secret: "secret"
redis:
  addr: "localhost:6379"
  ttl: "1m"
`

func TestLoad_ExplicitPath(t *testing.T) {
	cfgPath := writeFile(t, t.TempDir(), "config.yaml", sampleYAML)

	cfg, err := Load(cfgPath)
	require.NoError(t, err)

	assert.Equal(t, "prod", cfg.Env)
	assert.Equal(t, "127.0.0.1:9000", cfg.HTTP.Addr())
	assert.Equal(t, 5*time.Second, cfg.HTTP.ShutdownTimeout)
	assert.Equal(t, 15*time.Second, cfg.HTTP.ReadTimeout, "unset fields take defaults")
	assert.Equal(t, "/var/lib/game-saviour/prod.db", cfg.DB.Path)
	assert.Equal(t, 2*time.Hour, cfg.Auth.TokenTTL)
	assert.True(t, cfg.Auth.GoogleEnabled())
	assert.Equal(t, "http://localhost:9000/auth/google/callback", cfg.Auth.GoogleCallbackURL)
	assert.True(t, cfg.Redis.Enabled())
	assert.Equal(t, time.Minute, cfg.Redis.TTL)
}

func TestLoad_EnvOverlaysFile(t *testing.T) {
	cfgPath := writeFile(t, t.TempDir(), "config.yaml", sampleYAML)
	t.Setenv("DB_PATH", "/tmp/override.db")

	cfg, err := Load(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/override.db", cfg.DB.Path)
}

func TestLoad_ConfigPathEnv(t *testing.T) {
	cfgPath := writeFile(t, t.TempDir(), "config.yaml", sampleYAML)
	t.Setenv("CONFIG_PATH", cfgPath)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "prod", cfg.Env)
}

func TestLoad_LocalYAML(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "local.yaml", "auth:\n  jwt_secret: \"local-dev-secret-1234\"\n")
	chdir(t, dir)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "local", cfg.Env)
	assert.Equal(t, "8080", cfg.HTTP.Port)
	assert.False(t, cfg.Auth.GoogleEnabled())
	assert.False(t, cfg.Redis.Enabled())
}

func TestLoad_EnvOnly(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("JWT_SECRET", "env-only-secret-123456")
	t.Setenv("PORT", "7070")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "7070", cfg.HTTP.Port)
	assert.Equal(t, "data/game-saviour.db", cfg.DB.Path)
	assert.Equal(t, 24*time.Hour, cfg.Auth.TokenTTL)
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	tests := map[string]string{
		"missing file": filepath.Join(dir, "nope.yaml"),
		"broken yaml":  writeFile(t, dir, "broken.yaml", "env: [unclosed\n"),
		"short secret": writeFile(t, dir, "short.yaml", "auth:\n  jwt_secret: \"short\"\n"),
		"bad level":    writeFile(t, dir, "level.yaml", "auth:\n  jwt_secret: \"long-enough-secret-value\"\nlog:\n  level: \"loud\"\n"),
		"bad format":   writeFile(t, dir, "format.yaml", "auth:\n  jwt_secret: \"long-enough-secret-value\"\nlog:\n  format: \"xml\"\n"),
	}

	for name, path := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestMustLoad_Panics(t *testing.T) {
	assert.Panics(t, func() { MustLoad(filepath.Join(t.TempDir(), "missing.yaml")) })
}

func TestParseLevel(t *testing.T) {
	level, err := ParseLevel("warn")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, level)

	_, err = ParseLevel("verbose")
	assert.Error(t, err)
}

func TestLogConfig_NewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := LogConfig{Level: "warn", Format: "json"}.NewLogger(&buf)

	logger.Info("hidden")
	logger.Warn("shown", slog.String("k", "v"))

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)
	assert.Contains(t, out, `"k":"v"`)
}
