package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks deployment variables so the host environment cannot leak into tests
func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"PORT", "IMAP_HOST", "IMAP_PORT", "IMAP_USER", "IMAP_PASSWORD", "IMAP_TLS",
		"OPENAI_API_KEY", "OPENAI_MODEL", "GOOGLE_SPREADSHEET_ID", "GOOGLE_SHEET_RANGE",
		"INGEST_INTERVAL", "INGEST_DELIVERY", "INGEST_DATE_FORMAT",
		"DASHBOARD_FALLBACK", "DASHBOARD_USER", "DASHBOARD_PASSWORD",
		"FORCE_SSL", "RATE_LIMIT",
	} {
		t.Setenv(name, "")
	}
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "INBOX", cfg.IMAP.Mailbox)
	assert.Equal(t, 30*time.Second, cfg.IMAP.DialTimeout)
	assert.Equal(t, "gpt-4o-mini", cfg.OpenAI.Model)
	assert.Equal(t, "GT Invoices!A:F", cfg.Sheets.Range)
	assert.Equal(t, time.Minute, cfg.Ingest.Interval)
	assert.Equal(t, DeliveryAtMostOnce, cfg.Ingest.Delivery)
	assert.Equal(t, FallbackSample, cfg.Dashboard.Fallback)
	assert.Equal(t, 300, cfg.Server.RateLimit)
	assert.False(t, cfg.Server.ForceSSL)
}

func TestLoad_TOMLFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "invoicebot.toml")
	content := `
[server]
port = 8081
rate_limit = 0

[ingest]
delivery = "at_least_once"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8081, cfg.Server.Port)
	assert.Zero(t, cfg.Server.RateLimit)
	assert.Equal(t, DeliveryAtLeastOnce, cfg.Ingest.Delivery)
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
imap:
  host: imap.file.example
  user: file-user
ingest:
  interval: 5m
  delivery: at_least_once
`)
	require.NoError(t, os.WriteFile(path, content, 0644))

	clearEnv(t)
	t.Setenv("IMAP_HOST", "imap.env.example")
	t.Setenv("IMAP_PORT", "143")
	t.Setenv("IMAP_TLS", "false")
	t.Setenv("PORT", "8081")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "imap.env.example", cfg.IMAP.Host)
	assert.Equal(t, "file-user", cfg.IMAP.User)
	assert.Equal(t, 143, cfg.IMAP.Port)
	assert.False(t, cfg.IMAP.TLS)
	assert.Equal(t, 8081, cfg.Server.Port)
	assert.Equal(t, 5*time.Minute, cfg.Ingest.Interval)
	assert.Equal(t, DeliveryAtLeastOnce, cfg.Ingest.Delivery)
	assert.Equal(t, "imap.env.example:143", cfg.IMAP.Address())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidateIngest(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	require.NoError(t, err)

	err = cfg.ValidateIngest()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "imap.host")
	assert.Contains(t, err.Error(), "openai.api_key")

	cfg.IMAP.Host = "imap.example.com"
	cfg.IMAP.User = "bot@example.com"
	cfg.IMAP.Password = "secret"
	cfg.OpenAI.APIKey = "sk-test"
	cfg.Sheets.SpreadsheetID = "sheet-id"
	assert.NoError(t, cfg.ValidateIngest())

	cfg.Ingest.Delivery = "exactly_once"
	assert.Error(t, cfg.ValidateIngest())

	cfg.Ingest.Delivery = DeliveryAtLeastOnce
	cfg.Ingest.DateFormat = "mdy"
	assert.Error(t, cfg.ValidateIngest())
}

func TestValidateDashboard(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	require.NoError(t, err)
	assert.NoError(t, cfg.ValidateDashboard())
	assert.False(t, cfg.Dashboard.Auth.Enabled())

	cfg.Dashboard.Auth.Username = "admin"
	assert.Error(t, cfg.ValidateDashboard())

	cfg.Dashboard.Auth.Password = "pw"
	assert.NoError(t, cfg.ValidateDashboard())
	assert.True(t, cfg.Dashboard.Auth.Enabled())
}
