package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"WALLEX_API_KEY", "DB_CONN_STR", "TELEGRAM_TOKEN", "TELEGRAM_CHAT_ID", "EXECUTOR_MODE", "COMMISSION_PERCENT"} {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("WALLEX_API_KEY", "key")

	cfg, err := Load(nil)
	require.NoError(t, err)

	want := defaults()
	want.WallexAPIKey = "key"
	assert.Equal(t, want, cfg)
}

func TestLoad_Precedence(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode: paper
wallex_api_key: from-file
poll_interval: 30s
commission_percent: 0.1
listen_addr: ":9000"
allowed_origins: ["http://a.example"]
`), 0644))
	t.Setenv("WALLEX_API_KEY", "from-env")
	t.Setenv("DB_CONN_STR", "postgres://localhost/executor")

	cfg, err := Load([]string{"-config", path, "-poll-interval", "2s", "-allowed-origins", "http://b.example, http://c.example"})
	require.NoError(t, err)

	assert.Equal(t, ModePaper, cfg.Mode)
	assert.Equal(t, "from-env", cfg.WallexAPIKey)
	assert.Equal(t, "postgres://localhost/executor", cfg.DBConnStr)
	assert.Equal(t, 2*time.Second, cfg.PollInterval)
	assert.Equal(t, 0.1, cfg.CommissionPercent)
	assert.Equal(t, ":9000", cfg.ListenAddr)
	assert.Equal(t, []string{"http://b.example", "http://c.example"}, cfg.AllowedOrigins)
	assert.Equal(t, 10, cfg.DBMaxOpen, "unset values keep their defaults")
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		args []string
	}{
		{name: "missing api key", args: nil},
		{name: "bad mode", env: map[string]string{"WALLEX_API_KEY": "k"}, args: []string{"-mode", "backtest"}},
		{name: "zero interval", env: map[string]string{"WALLEX_API_KEY": "k"}, args: []string{"-poll-interval", "0s"}},
		{name: "negative commission", env: map[string]string{"WALLEX_API_KEY": "k"}, args: []string{"-commission-percent", "-1"}},
		{name: "migration without db", env: map[string]string{"WALLEX_API_KEY": "k"}, args: []string{"-run-migration"}},
		{name: "bad env number", env: map[string]string{"WALLEX_API_KEY": "k", "COMMISSION_PERCENT": "lots"}},
		{name: "unknown flag", env: map[string]string{"WALLEX_API_KEY": "k"}, args: []string{"-symbol", "BTCIRT"}},
		{name: "missing file", env: map[string]string{"WALLEX_API_KEY": "k"}, args: []string{"-config", "/nonexistent/config.yaml"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load(tt.args)
			assert.Error(t, err)
		})
	}
}
