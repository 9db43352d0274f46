package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"outreach-engine/internal/common/config"
	"outreach-engine/internal/common/database"
	apperrors "outreach-engine/internal/common/errors"
	"outreach-engine/internal/common/logger"
	"outreach-engine/internal/models"
)

// ==========================
// Test Helper Functions
// ==========================

func newMockStore(t *testing.T) (*SQLStore, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewSQLStore(db, DialectPostgres, logger.NewTestLogger(t)), mock
}

// newSQLiteStore opens a migrated database whose clock advances one
// second per call so created_at ordering is deterministic.
func newSQLiteStore(t *testing.T) *SQLStore {
	t.Helper()
	client, err := database.NewSQLite(config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "outreach.db")})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	s := NewSQLStore(client.GetDB(), DialectSQLite, logger.NewTestLogger(t))
	clock := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func strPtr(s string) *string { return &s }

// ==========================
// Postgres (sqlmock)
// ==========================

func TestRebind(t *testing.T) {
	pg := &SQLStore{dialect: DialectPostgres}
	lite := &SQLStore{dialect: DialectSQLite}

	q := `SELECT a FROM t WHERE b = ? AND c = ? LIMIT ?`
	assert.Equal(t, `SELECT a FROM t WHERE b = $1 AND c = $2 LIMIT $3`, pg.rebind(q))
	assert.Equal(t, q, lite.rebind(q))
}

func TestSQLStore_GetTemplate_Postgres(t *testing.T) {
	s, mock := newMockStore(t)
	updated := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT id, name, channel, kind, subject_pattern, body_pattern, updated_at FROM templates WHERE id = \$1`).
		WithArgs("welcome").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "channel", "kind", "subject_pattern", "body_pattern", "updated_at"}).
			AddRow("welcome", "Welcome", "email", "direct-message", "Hi {{name}}", "Hello {{name}}", updated))

	tpl, err := s.GetTemplate(context.Background(), "welcome")
	require.NoError(t, err)
	assert.Equal(t, models.ChannelEmail, tpl.Channel)
	assert.Equal(t, models.KindDirectMessage, tpl.Kind)
	require.NotNil(t, tpl.SubjectPattern)
	assert.Equal(t, "Hi {{name}}", *tpl.SubjectPattern)
	assert.Equal(t, updated, tpl.UpdatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_GetTemplate_NotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`FROM templates WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := s.GetTemplate(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLStore_GetPendingTargets_Postgres(t *testing.T) {
	tests := []struct {
		name      string
		limit     int
		wantQuery string
		wantArgs  []driver.Value
	}{
		{
			name:      "capped",
			limit:     2,
			wantQuery: `FROM targets\s+WHERE channel = \$1 AND status = \$2\s+ORDER BY created_at, id LIMIT \$3`,
			wantArgs:  []driver.Value{"reddit", "pending", 2},
		},
		{
			name:      "uncapped",
			limit:     0,
			wantQuery: `FROM targets\s+WHERE channel = \$1 AND status = \$2\s+ORDER BY created_at, id$`,
			wantArgs:  []driver.Value{"reddit", "pending"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, mock := newMockStore(t)
			contacted := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

			mock.ExpectQuery(tt.wantQuery).
				WithArgs(tt.wantArgs...).
				WillReturnRows(sqlmock.NewRows([]string{"id", "channel", "handle", "display_name", "status", "tags", "last_contacted_at"}).
					AddRow("t1", "reddit", "r/golang", nil, "pending", "{dev,go}", nil).
					AddRow("t2", "reddit", "spez", "Steve", "pending", "{}", contacted))

			targets, err := s.GetPendingTargets(context.Background(), models.ChannelReddit, tt.limit)
			require.NoError(t, err)
			require.Len(t, targets, 2)

			assert.Equal(t, []string{"dev", "go"}, targets[0].Tags)
			assert.Nil(t, targets[0].DisplayName)
			assert.Nil(t, targets[0].LastContactedAt)
			assert.Equal(t, "Steve", targets[1].Name())
			require.NotNil(t, targets[1].LastContactedAt)
			assert.Equal(t, contacted, *targets[1].LastContactedAt)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestSQLStore_GetPendingTargets_QueryError(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`FROM targets`).WillReturnError(errors.New("connection reset"))

	_, err := s.GetPendingTargets(context.Background(), models.ChannelEmail, 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestSQLStore_GetPendingTargets_Timeout(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`FROM targets`).WillReturnError(context.DeadlineExceeded)

	_, err := s.GetPendingTargets(context.Background(), models.ChannelEmail, 10)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeQueryTimeout, apperrors.CodeOf(err))
}

func TestSQLStore_UpdateTargetStatus_Postgres(t *testing.T) {
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		status    models.TargetStatus
		contacted *time.Time
		setup     func(mock sqlmock.Sqlmock)
		wantErr   error
	}{
		{
			name:      "sent with contact time",
			status:    models.TargetSent,
			contacted: &now,
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`UPDATE targets SET status = \$1, last_contacted_at = \$2 WHERE id = \$3 AND status = \$4`).
					WithArgs("sent", now, "t1", "pending").
					WillReturnResult(sqlmock.NewResult(0, 1))
			},
		},
		{
			name:   "failed keeps contact time",
			status: models.TargetFailed,
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`UPDATE targets SET status = \$1 WHERE id = \$2 AND status = \$3`).
					WithArgs("failed", "t1", "pending").
					WillReturnResult(sqlmock.NewResult(0, 1))
			},
		},
		{
			name:   "already transitioned",
			status: models.TargetSkipped,
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`UPDATE targets SET status = \$1 WHERE id = \$2 AND status = \$3`).
					WithArgs("skipped", "t1", "pending").
					WillReturnResult(sqlmock.NewResult(0, 0))
			},
			wantErr: ErrStatusConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, mock := newMockStore(t)
			tt.setup(mock)

			err := s.UpdateTargetStatus(context.Background(), "t1", tt.status, tt.contacted)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestSQLStore_UpdateTargetStatus_RejectsPending(t *testing.T) {
	s, mock := newMockStore(t)

	err := s.UpdateTargetStatus(context.Background(), "t1", models.TargetPending, nil)
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_LogAction_Postgres(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`INSERT INTO audit_log \(id, run_id, channel, action, succeeded, target_ref, metadata, error_message, created_at\)`).
		WithArgs(sqlmock.AnyArg(), "run-1", "email", "message.send", false, "t1",
			`{"error_kind":"recipient-invalid","template_id":"welcome"}`, "bounced", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.LogAction(context.Background(), models.AuditEntry{
		RunID:        "run-1",
		Channel:      models.ChannelEmail,
		Action:       models.ActionMessageSend,
		TargetRef:    strPtr("t1"),
		Metadata:     models.AuditMetadata{TemplateID: "welcome", ErrorKind: models.ErrorKindRecipientInvalid},
		ErrorMessage: strPtr("bounced"),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ==========================
// SQLite (embedded)
// ==========================

func TestSQLStore_SQLite_Lifecycle(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)

	require.NoError(t, s.UpsertTemplate(ctx, models.Template{
		ID:             "launch",
		Channel:        models.ChannelReddit,
		Kind:           models.KindPost,
		SubjectPattern: strPtr("Launch {{product}}"),
		BodyPattern:    "We built {{product}}",
	}))
	tpl, err := s.GetTemplate(ctx, "launch")
	require.NoError(t, err)
	assert.Equal(t, "We built {{product}}", tpl.BodyPattern)

	_, err = s.GetTemplate(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)

	for _, tgt := range []models.Target{
		{ID: "a", Channel: models.ChannelReddit, Handle: "r/golang", Tags: []string{"dev"}},
		{ID: "b", Channel: models.ChannelReddit, Handle: "spez", DisplayName: strPtr("Steve")},
		{ID: "c", Channel: models.ChannelReddit, Handle: "r/rust"},
		{ID: "d", Channel: models.ChannelEmail, Handle: "x@example.com"},
	} {
		require.NoError(t, s.UpsertTarget(ctx, tgt))
	}

	pending, err := s.GetPendingTargets(ctx, models.ChannelReddit, 2)
	require.NoError(t, err)
	ids := []string{}
	for _, p := range pending {
		ids = append(ids, p.ID)
	}
	if diff := cmp.Diff([]string{"a", "b"}, ids); diff != "" {
		t.Fatalf("pending targets mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []string{"dev"}, pending[0].Tags)
	assert.Equal(t, "Steve", pending[1].Name())

	contacted := time.Date(2026, 5, 1, 8, 30, 0, 0, time.UTC)
	require.NoError(t, s.UpdateTargetStatus(ctx, "a", models.TargetSent, &contacted))
	assert.ErrorIs(t, s.UpdateTargetStatus(ctx, "a", models.TargetFailed, nil), ErrStatusConflict)

	var lastContacted sql.NullTime
	require.NoError(t, s.db.QueryRowContext(ctx, `SELECT last_contacted_at FROM targets WHERE id = 'a'`).Scan(&lastContacted))
	assert.True(t, lastContacted.Valid)

	pending, err = s.GetPendingTargets(ctx, models.ChannelReddit, 0)
	require.NoError(t, err)
	assert.Len(t, pending, 2)
}

func TestSQLStore_SQLite_AuditLog(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)

	require.NoError(t, s.LogAction(ctx, models.AuditEntry{
		RunID:     "run-9",
		Channel:   models.ChannelSMS,
		Action:    models.ActionMessageSend,
		Succeeded: true,
		TargetRef: strPtr("t1"),
		Metadata:  models.AuditMetadata{TemplateID: "promo", ExternalID: "msg-1", UnresolvedTokens: []string{"coupon"}},
	}))
	require.NoError(t, s.LogAction(ctx, models.AuditEntry{
		RunID:    "run-9",
		Channel:  models.ChannelSMS,
		Action:   models.ActionTargetSkip,
		Metadata: models.AuditMetadata{SkipReason: models.SkipReasonCooldown},
	}))

	entries, err := s.AuditEntries(ctx, "run-9")
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.True(t, entries[0].Succeeded)
	assert.Equal(t, "msg-1", entries[0].Metadata.ExternalID)
	assert.Equal(t, []string{"coupon"}, entries[0].Metadata.UnresolvedTokens)
	assert.Equal(t, models.ActionTargetSkip, entries[1].Action)
	assert.Nil(t, entries[1].TargetRef)
	assert.Equal(t, models.SkipReasonCooldown, entries[1].Metadata.SkipReason)
}

func TestSQLStore_Migrate_Idempotent(t *testing.T) {
	s := newSQLiteStore(t)
	assert.NoError(t, s.Migrate(context.Background()))
}
