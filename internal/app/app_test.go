package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"outreach-engine/internal/campaign"
	"outreach-engine/internal/common/config"
	apperrors "outreach-engine/internal/common/errors"
	"outreach-engine/internal/common/logger"
	"outreach-engine/internal/models"
)

// ==========================
// Test Helper Functions
// ==========================

func sqliteConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Database: config.DatabaseConfig{
			Driver: config.DriverSQLite,
			SQLite: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "outreach.db")},
		},
		Channels: map[string]config.ChannelConfig{
			"email": {Enabled: true, Adapter: config.AdapterDryRun, MaxConcurrent: 2, Window: 1000, MaxStartsPerWindow: 50, Timeout: 1000},
			"sms":   {Enabled: false, Adapter: config.AdapterSNS},
		},
		Campaign: config.CampaignConfig{
			Constants:    map[string]string{"company": "Acme"},
			AuditRetries: 1,
			AuditBackoff: 1,
			DefaultLimit: 10,
		},
	}
}

func buildTestApp(t *testing.T, cfg *config.Config, opts ...Option) *App {
	t.Helper()
	a, err := Build(context.Background(), cfg, logger.NewTestLogger(t), append([]Option{WithMigrate()}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, a.Close()) })
	return a
}

func seed(t *testing.T, a *App, ids ...string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, a.Store.UpsertTemplate(ctx, models.Template{
		ID: "welcome", Name: "Welcome", Channel: models.ChannelEmail, Kind: models.KindDirectMessage,
		BodyPattern: "Hello {{name}} from {{company}}",
	}))
	for _, id := range ids {
		require.NoError(t, a.Store.UpsertTarget(ctx, models.Target{
			ID: id, Channel: models.ChannelEmail, Handle: id + "@example.com", Status: models.TargetPending,
		}))
	}
}

// ==========================
// Build
// ==========================

func TestBuild_SQLiteDryRunLane(t *testing.T) {
	a := buildTestApp(t, sqliteConfig(t))
	seed(t, a, "t1", "t2", "t3")

	require.NotNil(t, a.Live)
	assert.Equal(t, []models.Channel{models.ChannelEmail}, a.Live.Channels())
	assert.Equal(t, []models.Channel{models.ChannelEmail}, a.Adapters.Channels())
	assert.Len(t, a.Checks, 1)

	result, err := a.Dispatcher.Dispatch(context.Background(), campaign.Request{TemplateID: "welcome", Channel: "email", RunID: "run-live"})
	require.NoError(t, err)
	assert.Equal(t, 3, result.Sent)
	assert.True(t, result.Consistent())

	pending, err := a.Store.GetPendingTargets(context.Background(), models.ChannelEmail, 0)
	require.NoError(t, err)
	assert.Empty(t, pending)

	entries, err := a.Store.AuditEntries(context.Background(), "run-live")
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestBuild_DryRunLeavesTargetsPending(t *testing.T) {
	a := buildTestApp(t, sqliteConfig(t), WithoutLiveAdapters())
	seed(t, a, "t1", "t2")
	assert.Nil(t, a.Live)

	result, err := a.Dispatcher.Dispatch(context.Background(), campaign.Request{TemplateID: "welcome", Channel: "email", DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Sent)

	pending, err := a.Store.GetPendingTargets(context.Background(), models.ChannelEmail, 0)
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	_, err = a.Dispatcher.Dispatch(context.Background(), campaign.Request{TemplateID: "welcome", Channel: "email"})
	assert.Equal(t, apperrors.ErrCodeChannelNotConfigured, apperrors.CodeOf(err))
}

func TestBuild_CatalogTemplates(t *testing.T) {
	cfg := sqliteConfig(t)
	path := filepath.Join(t.TempDir(), "templates.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`version: "1"
templates:
  - id: intro
    name: Intro
    channel: email
    kind: direct-message
    subject: "Hi {{first_name}}"
    body: "Welcome to {{company}}"
`), 0o600))
	cfg.Template.CatalogPath = path

	a := buildTestApp(t, cfg)
	require.NotNil(t, a.Catalog)

	tpl, err := a.Templates.GetTemplate(context.Background(), "intro")
	require.NoError(t, err)
	assert.Equal(t, "Welcome to {{company}}", tpl.BodyPattern)
}

func TestBuild_Errors(t *testing.T) {
	cfg := sqliteConfig(t)
	cfg.Template.CatalogPath = filepath.Join(t.TempDir(), "missing.json")
	_, err := Build(context.Background(), cfg, logger.NewNoOpLogger())
	assert.Error(t, err)

	cfg = sqliteConfig(t)
	cfg.Channels["email"] = config.ChannelConfig{Enabled: true, Adapter: "carrier-pigeon", MaxConcurrent: 1, Window: 1000, MaxStartsPerWindow: 1, Timeout: 1000}
	_, err = Build(context.Background(), cfg, logger.NewNoOpLogger())
	assert.ErrorContains(t, err, "unknown adapter")

	cfg = sqliteConfig(t)
	cfg.Database.Driver = "oracle"
	_, err = Build(context.Background(), cfg, logger.NewNoOpLogger())
	assert.ErrorContains(t, err, "unsupported database driver")
}

// ==========================
// Retry
// ==========================

func TestRetryWithBackoff(t *testing.T) {
	calls := 0
	err := retryWithBackoff(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("not yet")
		}
		return nil
	}, 5, time.Millisecond, logger.NewTestLogger(t), "op")
	require.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	err = retryWithBackoff(context.Background(), func() error {
		calls++
		return errors.New("down")
	}, 2, time.Millisecond, logger.NewNoOpLogger(), "op")
	assert.ErrorContains(t, err, "op failed after 2 attempts")
	assert.Equal(t, 2, calls)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = retryWithBackoff(ctx, func() error { return errors.New("down") }, 5, time.Hour, logger.NewNoOpLogger(), "op")
	assert.ErrorIs(t, err, context.Canceled)
}
