package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Len(t, cfg.Items, 6)
	assert.Equal(t, "1", cfg.Items[0].ID)
	assert.Equal(t, "Cilindro de GNC revisiones CRPC", cfg.Items[5].Name)
	assert.Equal(t, "statistic-type", cfg.Portal.Filters[0].Name)
	assert.Equal(t, "period", cfg.Portal.Filters[1].Name)
	assert.Equal(t, 60*time.Second, cfg.Download.PollTimeout)
	assert.Equal(t, 10*time.Second, cfg.Download.Cooldown)
}

func TestLoadConfig_OverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
download:
  dir: out
  poll_timeout: 90s
items:
  - id: "3"
    name: Revisiones periódicas de vehículos
log:
  level: debug
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "out", cfg.Download.Dir)
	assert.Equal(t, 90*time.Second, cfg.Download.PollTimeout)
	// 未出现的字段保留默认值
	assert.Equal(t, time.Second, cfg.Download.PollInterval)
	assert.Equal(t, ".xls", cfg.Download.FinalExt)
	require.Len(t, cfg.Items, 1)
	assert.Equal(t, "3", cfg.Items[0].ID)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Len(t, cfg.Portal.Filters, 2)
}

func TestLoadConfig_ExpandsEnv(t *testing.T) {
	t.Setenv("GNC_PERIOD", "2025")
	path := writeConfig(t, `
portal:
  filters:
    - name: statistic-type
      control_id: tipo-consulta-gnc
      value: "5;2"
    - name: period
      control_id: periodo
      value: "${GNC_PERIOD}"
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "2025", cfg.Portal.Filters[1].Value)
}

func TestLoadConfig_DotEnvDoesNotOverride(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("GNC_DB_PASSWORD=from-file\nGNC_DB_USER=from-file\n"), 0o644))
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("db:\n  user: ${GNC_DB_USER}\n  password: ${GNC_DB_PASSWORD}\n"), 0o644))

	t.Setenv("GNC_DB_USER", "from-env")
	// godotenv 写入的变量不会被 t.Setenv 清理
	t.Cleanup(func() { os.Unsetenv("GNC_DB_PASSWORD") })

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.DB.User)
	assert.Equal(t, "from-file", cfg.DB.Password)
}

func TestLoadConfig_Errors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = LoadConfig(writeConfig(t, "download: [1, 2"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"no items", func(c *Config) { c.Items = nil }, "at least one report item"},
		{"duplicate id", func(c *Config) { c.Items[1].ID = "1" }, `duplicate id "1"`},
		{"zero timeout", func(c *Config) { c.Download.PollTimeout = 0 }, "poll_timeout"},
		{"zero interval", func(c *Config) { c.Download.PollInterval = 0 }, "poll_interval"},
		{"unknown mode", func(c *Config) { c.Browser.Mode = "firefox" }, `unknown mode "firefox"`},
		{"remote without url", func(c *Config) { c.Browser.Mode = BrowserRemote }, "remote_url"},
		{"no attempts", func(c *Config) { c.Session.MaxAttempts = 0 }, "max_attempts"},
		{"filter without value", func(c *Config) { c.Portal.Filters[1].Value = "" }, "portal.filters[1]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
