package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"outreach-engine/internal/models"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const sqliteConfig = `
database:
  driver: sqlite
  sqlite:
    path: /tmp/outreach-test.db
channels:
  email:
    enabled: true
    adapter: smtp
    max_concurrent: 2
    window: 1000
    max_starts_per_window: 5
  reddit:
    enabled: false
    adapter: reddit
campaign:
  constants:
    company: Acme
`

// ==========================
// Loading
// ==========================

func TestLoadFromFile_AppliesDefaults(t *testing.T) {
	cfg, err := LoadFromFile(writeConfig(t, sqliteConfig))
	require.NoError(t, err)

	assert.Equal(t, "outreach-engine", cfg.App.Name)
	assert.Equal(t, DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, "/tmp/outreach-test.db", cfg.Database.SQLite.Path)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, 3, cfg.Campaign.AuditRetries)
	assert.Equal(t, 100, cfg.Campaign.DefaultLimit)
	assert.Equal(t, "outreach.campaign.run", cfg.Integrations.AMQP.Queue)
	assert.Equal(t, "Acme", cfg.Campaign.Constants["company"])

	email := cfg.Channels["email"]
	assert.Equal(t, 30000, email.Timeout, "timeout defaulted")
	assert.Equal(t, 2, email.MaxConcurrent)
}

func TestLoadFromFile_ExpandsEnvPlaceholders(t *testing.T) {
	t.Setenv("OUTREACH_TEST_SMTP_HOST", "smtp.example.test")

	cfg, err := LoadFromFile(writeConfig(t, sqliteConfig+`
integrations:
  smtp:
    host: ${OUTREACH_TEST_SMTP_HOST}
`))
	require.NoError(t, err)
	assert.Equal(t, "smtp.example.test", cfg.Integrations.SMTP.Host)
}

func TestLoadFromFile_SecretsFallBackToEnv(t *testing.T) {
	t.Setenv("REDDIT_CLIENT_SECRET", "shh")

	cfg, err := LoadFromFile(writeConfig(t, sqliteConfig))
	require.NoError(t, err)
	assert.Equal(t, "shh", cfg.Integrations.Reddit.ClientSecret)
}

func TestLoadFromFile_MissingFile(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

// ==========================
// Validation
// ==========================

func validConfig() *Config {
	cfg := &Config{
		Database: DatabaseConfig{Driver: DriverSQLite, SQLite: SQLiteConfig{Path: "x.db"}},
		Channels: map[string]ChannelConfig{
			"email": {Enabled: true, Adapter: AdapterDryRun},
		},
	}
	applyDefaults(cfg)
	return cfg
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(cfg *Config)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(cfg *Config) {},
		},
		{
			name:    "unknown driver",
			mutate:  func(cfg *Config) { cfg.Database.Driver = "mysql" },
			wantErr: "database.driver",
		},
		{
			name: "postgres requires host",
			mutate: func(cfg *Config) {
				cfg.Database.Driver = DriverPostgres
			},
			wantErr: "database.postgres.host",
		},
		{
			name: "camunda enabled without broker",
			mutate: func(cfg *Config) {
				cfg.Camunda.Enabled = true
			},
			wantErr: "camunda.broker_address",
		},
		{
			name: "unknown channel",
			mutate: func(cfg *Config) {
				cfg.Channels["fax"] = ChannelConfig{Enabled: true, Adapter: AdapterDryRun, MaxConcurrent: 1, Window: 1, MaxStartsPerWindow: 1, Timeout: 1}
			},
			wantErr: "channels.fax",
		},
		{
			name: "unknown adapter",
			mutate: func(cfg *Config) {
				ch := cfg.Channels["email"]
				ch.Adapter = "pigeon"
				cfg.Channels["email"] = ch
			},
			wantErr: "unknown adapter",
		},
		{
			name: "negative window",
			mutate: func(cfg *Config) {
				ch := cfg.Channels["email"]
				ch.Window = -5
				cfg.Channels["email"] = ch
			},
			wantErr: "window must be positive",
		},
		{
			name: "cooldown without redis",
			mutate: func(cfg *Config) {
				ch := cfg.Channels["email"]
				ch.Cooldown = 1000
				cfg.Channels["email"] = ch
			},
			wantErr: "requires database.redis.enabled",
		},
		{
			name: "lease without redis",
			mutate: func(cfg *Config) {
				cfg.Campaign.LeaseTTL = 1000
			},
			wantErr: "campaign.lease_ttl",
		},
		{
			name: "disabled channels are not validated",
			mutate: func(cfg *Config) {
				cfg.Channels["fax"] = ChannelConfig{Enabled: false}
			},
		},
		{
			name: "amqp without url",
			mutate: func(cfg *Config) {
				cfg.Integrations.AMQP.Enabled = true
			},
			wantErr: "integrations.amqp.url",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := validateConfig(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

// ==========================
// Helpers
// ==========================

func TestChannelConfig_SchedulerConfig(t *testing.T) {
	sc := ChannelConfig{MaxConcurrent: 3, Window: 1500, MaxStartsPerWindow: 7}.SchedulerConfig()
	assert.Equal(t, 3, sc.MaxConcurrent)
	assert.Equal(t, 1500*time.Millisecond, sc.Window)
	assert.Equal(t, 7, sc.MaxStartsPerWindow)
	assert.NoError(t, sc.Validate())
}

func TestEnabledChannels(t *testing.T) {
	cfg := &Config{Channels: map[string]ChannelConfig{
		"Email":  {Enabled: true},
		"reddit": {Enabled: false},
		"fax":    {Enabled: true},
	}}
	got := EnabledChannels(cfg)
	assert.Len(t, got, 1)
	assert.Contains(t, got, models.ChannelEmail)
}

func TestGetWorkerConfig_Fallback(t *testing.T) {
	cfg := &Config{}
	wc := GetWorkerConfig(cfg, "run-campaign")
	assert.True(t, wc.Enabled)
	assert.Equal(t, 30000, wc.Timeout)
	assert.True(t, IsWorkerEnabled(cfg, "run-campaign"))

	cfg.Workers = map[string]WorkerConfig{"run-campaign": {Enabled: false}}
	assert.False(t, IsWorkerEnabled(cfg, "run-campaign"))
}

func TestPostgresConfig_GetDSN(t *testing.T) {
	dsn := PostgresConfig{Host: "db", Port: 5432, User: "u", Password: "p", Database: "outreach", SSLMode: "disable"}.GetDSN()
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=outreach sslmode=disable", dsn)
}
