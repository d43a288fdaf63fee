package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"satsync/internal/constants"
	"satsync/internal/models"
)

const validYAML = `
log_level: debug
database:
  path: /var/lib/satsync/satsync.db
gateways:
  - name: primary
    url: https://gateway.example.com/GLGW/2/RestMessages.svc/JSON/
mailboxes:
  - access_id: "70000934"
    password: secret-password
    gateway: primary
    description: Fleet A
  - access_id: "70000935"
    password: other-password
    gateway: primary
    enabled: false
sync:
  max_pages: 5
retention:
  max_call_logs: 3
`

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, "config.yaml", validYAML)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "sqlite3", cfg.Database.Driver)
	assert.Equal(t, "/var/lib/satsync/satsync.db", cfg.Database.Path)
	require.Len(t, cfg.Gateways, 1)
	assert.Equal(t, "primary", cfg.Gateways[0].Name)
	require.Len(t, cfg.Mailboxes, 2)
	assert.True(t, cfg.Mailboxes[0].IsEnabled())
	assert.False(t, cfg.Mailboxes[1].IsEnabled())

	assert.Equal(t, 5, cfg.Sync.MaxPages)
	assert.Equal(t, constants.DefaultOriginatedIntervalSec, cfg.Sync.OriginatedIntervalSec)
	assert.Equal(t, constants.DefaultMailboxConcurrency, cfg.Sync.MailboxConcurrency)
	assert.Equal(t, constants.MinMaxCallLogs, cfg.Retention.MaxCallLogs, "call log limit has a floor")
	assert.Equal(t, constants.DefaultMessageTTLDays, cfg.Retention.MessageTTLDays)
	assert.Equal(t, constants.DefaultServerPort, cfg.Server.Port)
}

func TestLoadConfigJSON(t *testing.T) {
	path := writeConfig(t, "config.json", `{
		"database": {"driver": "postgres", "path": "postgres://satsync@localhost/satsync"},
		"gateways": [{"name": "gw", "url": "https://gw.example.com/"}],
		"mailboxes": [{"access_id": "1", "password": "p", "gateway": "gw"}]
	}`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Database.Driver)
}

func TestLoadConfigEnvironmentOverrides(t *testing.T) {
	path := writeConfig(t, "config.yaml", validYAML)
	t.Setenv("SATSYNC_DATABASE_PATH", "/tmp/override.db")
	t.Setenv("SATSYNC_SYNC_MAX_PAGES", "7")
	t.Setenv("SATSYNC_SERVER_JWT_SECRET", "0123456789abcdef0123456789abcdef")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/override.db", cfg.Database.Path)
	assert.Equal(t, 7, cfg.Sync.MaxPages)
	assert.Equal(t, "0123456789abcdef0123456789abcdef", cfg.Server.JWTSecret)
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		errMsg  string
	}{
		{
			name:    "no gateways",
			content: "mailboxes:\n  - {access_id: a, password: p, gateway: gw}\n",
			errMsg:  ErrMissingGateways.Message,
		},
		{
			name:    "no mailboxes",
			content: "gateways:\n  - {name: gw, url: 'https://gw.example.com/'}\n",
			errMsg:  ErrMissingMailboxes.Message,
		},
		{
			name:    "unknown gateway",
			content: "gateways:\n  - {name: gw, url: 'https://gw.example.com/'}\nmailboxes:\n  - {access_id: a, password: p, gateway: other}\n",
			errMsg:  "unknown gateway",
		},
		{
			name:    "duplicate gateway",
			content: "gateways:\n  - {name: gw, url: 'https://gw.example.com/'}\n  - {name: gw, url: 'https://gw2.example.com/'}\nmailboxes:\n  - {access_id: a, password: p, gateway: gw}\n",
			errMsg:  "duplicate gateway name",
		},
		{
			name:    "duplicate mailbox",
			content: "gateways:\n  - {name: gw, url: 'https://gw.example.com/'}\nmailboxes:\n  - {access_id: a, password: p, gateway: gw}\n  - {access_id: a, password: q, gateway: gw}\n",
			errMsg:  "duplicate mailbox",
		},
		{
			name:    "gateway url invalid",
			content: "gateways:\n  - {name: gw, url: 'not a url'}\nmailboxes:\n  - {access_id: a, password: p, gateway: gw}\n",
			errMsg:  "url",
		},
		{
			name:    "mailbox password missing",
			content: "gateways:\n  - {name: gw, url: 'https://gw.example.com/'}\nmailboxes:\n  - {access_id: a, gateway: gw}\n",
			errMsg:  "password",
		},
		{
			name:    "unsupported driver",
			content: "database: {driver: mysql}\ngateways:\n  - {name: gw, url: 'https://gw.example.com/'}\nmailboxes:\n  - {access_id: a, password: p, gateway: gw}\n",
			errMsg:  "driver",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, "config.yaml", tt.content)
			_, err := LoadConfig(path)
			require.Error(t, err)
			var cfgErr models.ConfigError
			assert.ErrorAs(t, err, &cfgErr)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestLoadConfigRejectsTraversal(t *testing.T) {
	_, err := LoadConfig("../../etc/satsync.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config path")
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidateSecurity(t *testing.T) {
	t.Run("short secret rejected", func(t *testing.T) {
		err := validateSecurity(&models.Config{Server: models.ServerConfig{JWTSecret: "short"}})
		assert.Error(t, err)
	})

	t.Run("production requires secret", func(t *testing.T) {
		t.Setenv("SATSYNC_ENV", "production")
		err := validateSecurity(&models.Config{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "JWT secret")
	})

	t.Run("production forbids debug logging", func(t *testing.T) {
		t.Setenv("SATSYNC_ENV", "production")
		err := validateSecurity(&models.Config{
			LogLevel: "debug",
			Server:   models.ServerConfig{JWTSecret: "0123456789abcdef0123456789abcdef"},
		})
		assert.Error(t, err)
	})

	t.Run("development allows missing secret", func(t *testing.T) {
		t.Setenv("SATSYNC_ENV", "")
		assert.NoError(t, validateSecurity(&models.Config{}))
	})
}
