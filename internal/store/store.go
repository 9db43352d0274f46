// Package store persists templates, targets and the audit trail in
// Postgres or SQLite through database/sql.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	apperrors "outreach-engine/internal/common/errors"
	"outreach-engine/internal/common/logger"
	"outreach-engine/internal/models"
)

var (
	ErrNotFound       = errors.New("store: not found")
	ErrStatusConflict = errors.New("store: target is no longer pending")
)

type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	logger  logger.Logger
	now     func() time.Time
}

func NewSQLStore(db *sql.DB, dialect Dialect, log logger.Logger) *SQLStore {
	return &SQLStore{
		db:      db,
		dialect: dialect,
		logger:  log.WithFields(map[string]interface{}{"component": "store", "dialect": string(dialect)}),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// rebind rewrites ? placeholders to $n for Postgres.
func (s *SQLStore) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// ==========================
// Templates
// ==========================

const templateColumns = `id, name, channel, kind, subject_pattern, body_pattern, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTemplate(row rowScanner) (*models.Template, error) {
	var (
		t       models.Template
		name    sql.NullString
		subject sql.NullString
	)
	if err := row.Scan(&t.ID, &name, &t.Channel, &t.Kind, &subject, &t.BodyPattern, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.Name = name.String
	if subject.Valid {
		s := subject.String
		t.SubjectPattern = &s
	}
	return &t, nil
}

func (s *SQLStore) GetTemplate(ctx context.Context, id string) (*models.Template, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+templateColumns+` FROM templates WHERE id = ?`), id)
	t, err := scanTemplate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return nil, apperrors.NewQueryTimeoutError("get_template")
	}
	if err != nil {
		return nil, fmt.Errorf("get template %s: %w", id, err)
	}
	return t, nil
}

func (s *SQLStore) ListTemplates(ctx context.Context) ([]models.Template, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+templateColumns+` FROM templates ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	var out []models.Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (s *SQLStore) UpsertTemplate(ctx context.Context, t models.Template) error {
	if err := t.Validate(); err != nil {
		return err
	}
	var subject interface{}
	if t.SubjectPattern != nil {
		subject = *t.SubjectPattern
	}
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO templates (id, name, channel, kind, subject_pattern, body_pattern, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			channel = excluded.channel,
			kind = excluded.kind,
			subject_pattern = excluded.subject_pattern,
			body_pattern = excluded.body_pattern,
			updated_at = excluded.updated_at`),
		t.ID, t.Name, string(t.Channel), string(t.Kind), subject, t.BodyPattern, s.now())
	if err != nil {
		return fmt.Errorf("upsert template %s: %w", t.ID, err)
	}
	return nil
}

// ==========================
// Targets
// ==========================

// tagsArg encodes tags as text[] on Postgres and a JSON array on SQLite.
func (s *SQLStore) tagsArg(tags []string) (interface{}, error) {
	if tags == nil {
		tags = []string{}
	}
	if s.dialect == DialectPostgres {
		return pq.Array(tags), nil
	}
	raw, err := json.Marshal(tags)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

// GetPendingTargets returns pending targets oldest first. limit <= 0 means
// no cap.
func (s *SQLStore) GetPendingTargets(ctx context.Context, ch models.Channel, limit int) ([]models.Target, error) {
	query := `SELECT id, channel, handle, display_name, status, tags, last_contacted_at
		FROM targets
		WHERE channel = ? AND status = ?
		ORDER BY created_at, id`
	args := []interface{}{string(ch), string(models.TargetPending)}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if errors.Is(err, context.DeadlineExceeded) {
		return nil, apperrors.NewQueryTimeoutError("get_pending_targets")
	}
	if err != nil {
		return nil, fmt.Errorf("query pending targets: %w", err)
	}
	defer rows.Close()

	targets := make([]models.Target, 0)
	for rows.Next() {
		var (
			t           models.Target
			displayName sql.NullString
			lastContact sql.NullTime
		)
		dest := []interface{}{&t.ID, &t.Channel, &t.Handle, &displayName, &t.Status}
		var rawTags sql.NullString
		if s.dialect == DialectPostgres {
			dest = append(dest, pq.Array(&t.Tags))
		} else {
			dest = append(dest, &rawTags)
		}
		dest = append(dest, &lastContact)

		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan target: %w", err)
		}
		if rawTags.Valid && rawTags.String != "" {
			if err := json.Unmarshal([]byte(rawTags.String), &t.Tags); err != nil {
				return nil, fmt.Errorf("decode tags for %s: %w", t.ID, err)
			}
		}
		if displayName.Valid {
			n := displayName.String
			t.DisplayName = &n
		}
		if lastContact.Valid {
			at := lastContact.Time
			t.LastContactedAt = &at
		}
		targets = append(targets, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate targets: %w", err)
	}
	return targets, nil
}

// UpsertTarget inserts a target, or refreshes handle, name and tags of an
// existing one without touching its status.
func (s *SQLStore) UpsertTarget(ctx context.Context, t models.Target) error {
	if !t.Channel.Valid() {
		return fmt.Errorf("target %s: unknown channel %q", t.ID, t.Channel)
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	status := t.Status
	if status == "" {
		status = models.TargetPending
	}
	tags, err := s.tagsArg(t.Tags)
	if err != nil {
		return err
	}
	var displayName interface{}
	if t.DisplayName != nil {
		displayName = *t.DisplayName
	}

	_, err = s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO targets (id, channel, handle, display_name, status, tags, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			handle = excluded.handle,
			display_name = excluded.display_name,
			tags = excluded.tags`),
		t.ID, string(t.Channel), t.Handle, displayName, string(status), tags, s.now())
	if err != nil {
		return fmt.Errorf("upsert target %s: %w", t.ID, err)
	}
	return nil
}

// UpdateTargetStatus moves a pending target into a terminal status. It
// returns ErrStatusConflict when the row is no longer pending.
func (s *SQLStore) UpdateTargetStatus(ctx context.Context, targetID string, status models.TargetStatus, lastContactedAt *time.Time) error {
	if !models.TargetPending.CanTransitionTo(status) {
		return fmt.Errorf("update target %s: invalid status %q", targetID, status)
	}

	query := `UPDATE targets SET status = ? WHERE id = ? AND status = ?`
	args := []interface{}{string(status), targetID, string(models.TargetPending)}
	if lastContactedAt != nil {
		query = `UPDATE targets SET status = ?, last_contacted_at = ? WHERE id = ? AND status = ?`
		args = []interface{}{string(status), lastContactedAt.UTC(), targetID, string(models.TargetPending)}
	}

	res, err := s.db.ExecContext(ctx, s.rebind(query), args...)
	if err != nil {
		return fmt.Errorf("update target %s: %w", targetID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update target %s: %w", targetID, err)
	}
	if n == 0 {
		return ErrStatusConflict
	}
	return nil
}

// ==========================
// Audit log
// ==========================

// LogAction appends an entry to audit_log.
func (s *SQLStore) LogAction(ctx context.Context, entry models.AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = s.now()
	}
	meta, err := json.Marshal(entry.Metadata.Map())
	if err != nil {
		return fmt.Errorf("encode audit metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO audit_log (id, run_id, channel, action, succeeded, target_ref, metadata, error_message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		entry.ID, entry.RunID, string(entry.Channel), string(entry.Action), entry.Succeeded,
		nullable(entry.TargetRef), string(meta), nullable(entry.ErrorMessage), entry.Timestamp.UTC())
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// AuditEntries returns the entries of one run in write order.
func (s *SQLStore) AuditEntries(ctx context.Context, runID string) ([]models.AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT id, run_id, channel, action, succeeded, target_ref, metadata, error_message, created_at
		FROM audit_log WHERE run_id = ? ORDER BY created_at, id`), runID)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()

	var out []models.AuditEntry
	for rows.Next() {
		var (
			e         models.AuditEntry
			targetRef sql.NullString
			meta      string
			errMsg    sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.RunID, &e.Channel, &e.Action, &e.Succeeded, &targetRef, &meta, &errMsg, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		if err := json.Unmarshal([]byte(meta), &e.Metadata); err != nil {
			return nil, fmt.Errorf("decode audit metadata: %w", err)
		}
		if targetRef.Valid {
			e.TargetRef = &targetRef.String
		}
		if errMsg.Valid {
			e.ErrorMessage = &errMsg.String
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullable(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}
