package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"outreach-engine/internal/common/config"
	"outreach-engine/internal/common/logger"
	"outreach-engine/internal/models"
)

// ==========================
// Test Helper Functions
// ==========================

const catalogYAML = `version: "1"
templates:
  - id: welcome
    name: Welcome
    channel: email
    kind: direct-message
    subject: "Hi {{first_name}}"
    body: "Hello {{name}}, welcome to {{company}}. Code: {{coupon}}"
  - id: launch
    channel: reddit
    kind: post
    subject: "We launched"
    body: "Come say hi"
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func writeConfig(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "outreach.db")
	cfg := fmt.Sprintf(`database:
  driver: sqlite
  sqlite:
    path: %s
  redis:
    enabled: false
channels:
  email:
    enabled: true
    adapter: dry-run
    max_concurrent: 2
    window: 1000
    max_starts_per_window: 100
    timeout: 1000
campaign:
  constants:
    company: Acme
logging:
  level: error
`, dbPath)
	return writeFile(t, dir, "config.yaml", cfg), dbPath
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

// ==========================
// Templates
// ==========================

func TestTemplatesValidate(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, dir, "good.yaml", catalogYAML)
	dup := writeFile(t, dir, "dup.json", `{"templates":[
		{"id":"a","channel":"sms","kind":"direct-message","bodyPattern":"x"},
		{"id":"a","channel":"sms","kind":"direct-message","bodyPattern":"y"}]}`)

	out, err := execute(t, "templates", "validate", good)
	require.NoError(t, err)
	assert.Contains(t, out, "2 templates ok")

	_, err = execute(t, "templates", "validate", dup)
	assert.Error(t, err)

	_, err = execute(t, "templates", "validate")
	assert.ErrorContains(t, err, "no catalog given")
}

func TestTemplatesList(t *testing.T) {
	path := writeFile(t, t.TempDir(), "catalog.yaml", catalogYAML)

	out, err := execute(t, "templates", "list", "--catalog", path)
	require.NoError(t, err)
	assert.Contains(t, out, "welcome")
	assert.Contains(t, out, "coupon")
	assert.Contains(t, out, "launch")
}

func TestTemplatesPreview(t *testing.T) {
	path := writeFile(t, t.TempDir(), "catalog.yaml", catalogYAML)

	out, err := execute(t, "templates", "preview", "welcome", "--catalog", path, "--name", "Ada Lovelace", "--var", "company=Initech")
	require.NoError(t, err)
	assert.Contains(t, out, "Subject: Hi Ada")
	assert.Contains(t, out, "Hello Ada Lovelace, welcome to Initech. Code: {{coupon}}")
	assert.Contains(t, out, "unresolved: coupon")

	_, err = execute(t, "templates", "preview", "nope", "--catalog", path)
	assert.ErrorContains(t, err, "not found")
}

// ==========================
// Migrate and Run
// ==========================

func TestMigrateAndDryRun(t *testing.T) {
	cfgPath, _ := writeConfig(t)

	out, err := execute(t, "migrate", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "schema ready (sqlite)")

	cfg, err := config.LoadFromFile(cfgPath)
	require.NoError(t, err)
	st, closeDB, err := openStore(cfg.Database, logger.NewNoOpLogger())
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, st.UpsertTemplate(ctx, models.Template{
		ID: "welcome", Channel: models.ChannelEmail, Kind: models.KindDirectMessage, BodyPattern: "Hi {{name}} from {{company}}",
	}))
	for _, id := range []string{"a", "b"} {
		require.NoError(t, st.UpsertTarget(ctx, models.Target{ID: id, Channel: models.ChannelEmail, Handle: id + "@example.com", Status: models.TargetPending}))
	}
	require.NoError(t, closeDB())

	out, err = execute(t, "run", "--config", cfgPath, "-t", "welcome", "--channel", "email", "--dry-run")
	require.NoError(t, err)

	var result models.CampaignResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, 2, result.Total)
	assert.Equal(t, 2, result.Sent)

	_, err = execute(t, "run", "--config", cfgPath, "-t", "missing", "--channel", "email", "--dry-run")
	assert.Error(t, err)

	_, err = execute(t, "run", "--config", cfgPath, "--channel", "email")
	assert.ErrorContains(t, err, "required flag")
}
