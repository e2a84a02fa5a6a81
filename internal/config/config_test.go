package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeYAML(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "flashdeck.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write yaml: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load(Options{})
	require.NoError(t, err)
	assert.Equal(t, Default(), *cfg)
	assert.Equal(t, ":3000", cfg.Server.Addr)
	assert.Equal(t, 720*time.Hour, cfg.Auth.SessionTTL)
	assert.True(t, cfg.Content.ImportOnStart)
}

func TestLoadPriority(t *testing.T) {
	t.Chdir(t.TempDir())
	path := writeYAML(t, `
server:
  addr: ":8080"
  shutdown_timeout: "3s"
database:
  path: "/var/lib/flashdeck/app.db"
auth:
  admin_email: "yaml@example.com"
  session_ttl: "48h"
log:
  level: "debug"
`)
	t.Setenv("FLASHDECK_AUTH__ADMIN_EMAIL", "env@example.com")
	t.Setenv("FLASHDECK_CONTENT__IMPORT_ON_START", "false")
	t.Setenv("FLASHDECK_SERVER__ADDR", ":9000")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("addr", ":3000", "")
	flags.String("db", "", "")
	require.NoError(t, flags.Parse([]string{"--addr", ":7000"}))

	cfg, err := Load(Options{
		File:     path,
		Flags:    flags,
		FlagKeys: map[string]string{"addr": "server.addr", "db": "database.path"},
	})
	require.NoError(t, err)

	assert.Equal(t, ":7000", cfg.Server.Addr, "flag beats env and file")
	assert.Equal(t, "env@example.com", cfg.Auth.AdminEmail, "env beats file")
	assert.False(t, cfg.Content.ImportOnStart)
	assert.Equal(t, "/var/lib/flashdeck/app.db", cfg.Database.Path, "unset flag does not override")
	assert.Equal(t, 48*time.Hour, cfg.Auth.SessionTTL)
	assert.Equal(t, 3*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "/media/", cfg.Content.MediaPrefix, "default kept")
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(Options{File: filepath.Join(t.TempDir(), "absent.yaml")})
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"valid", func(*Config) {}, ""},
		{"bad admin email", func(c *Config) { c.Auth.AdminEmail = "nope" }, "auth.admin_email"},
		{"short admin password", func(c *Config) { c.Auth.AdminPassword = "short" }, "auth.admin_password"},
		{"media prefix", func(c *Config) { c.Content.MediaPrefix = "media" }, "content.media_prefix"},
		{"fetch attempts", func(c *Config) { c.Import.FetchAttempts = 0 }, "import.fetch_attempts"},
		{"log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"bcrypt cost", func(c *Config) { c.Auth.BcryptCost = 50 }, "auth.bcrypt_cost"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.want == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, LogConfig{Level: "warn", Format: "json"})

	logger.Info("hidden")
	logger.Warn("shown", "key", "value")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.True(t, strings.Contains(out, `"msg":"shown"`), out)
	assert.Contains(t, out, `"key":"value"`)

	assert.Equal(t, "debug", strings.ToLower(parseLevel("DEBUG").String()))
	assert.Equal(t, "INFO", parseLevel("bogus").String())
}
