package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// SQLiteStore implements Store on the share_access_events table. The schema
// is owned by internal/db/migrations.
type SQLiteStore struct {
	db     *sql.DB
	logger *logrus.Logger
}

// NewSQLiteStore creates a new SQLite-backed access log store
func NewSQLiteStore(db *sql.DB, logger *logrus.Logger) *SQLiteStore {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &SQLiteStore{db: db, logger: logger}
}

// InsertEvent appends an access event
func (s *SQLiteStore) InsertEvent(ctx context.Context, event *AccessEvent) error {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO share_access_events (share_id, occurred_at, action, ok, remote_ip, user_agent)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		event.ShareID,
		event.OccurredAt.UnixMilli(),
		string(event.Action),
		boolToInt(event.OK),
		nullString(event.RemoteIP),
		nullString(event.UserAgent),
	)
	if err != nil {
		return fmt.Errorf("failed to insert access event: %w", err)
	}

	if id, err := result.LastInsertId(); err == nil {
		event.ID = id
	}
	return nil
}

// CountEvents counts events for a share matching action and outcome
func (s *SQLiteStore) CountEvents(ctx context.Context, shareID string, action Action, ok bool) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM share_access_events
		WHERE share_id = ? AND action = ? AND ok = ?
	`, shareID, string(action), boolToInt(ok)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count access events: %w", err)
	}
	return count, nil
}

// Aggregate computes statistics for a share in a single pass
func (s *SQLiteStore) Aggregate(ctx context.Context, shareID string) (*Statistics, error) {
	var lastAccess sql.NullInt64
	stats := &Statistics{ShareID: shareID}

	err := s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN action = 'view' AND ok = 1 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN action = 'download' AND ok = 1 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN ok = 0 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN action = 'password_failed' THEN 1 ELSE 0 END), 0),
			MAX(occurred_at)
		FROM share_access_events
		WHERE share_id = ?
	`, shareID).Scan(
		&stats.Views,
		&stats.Downloads,
		&stats.FailedAttempts,
		&stats.PasswordFailures,
		&lastAccess,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate access events: %w", err)
	}

	if lastAccess.Valid {
		t := time.UnixMilli(lastAccess.Int64).UTC()
		stats.LastAccessAt = &t
	}
	return stats, nil
}

// ListEvents returns a page of events for a share, newest first
func (s *SQLiteStore) ListEvents(ctx context.Context, filters *EventFilters) ([]*AccessEvent, int, error) {
	whereClause, args := buildWhereClause(filters)

	var total int
	countQuery := "SELECT COUNT(*) FROM share_access_events " + whereClause
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count access events: %w", err)
	}

	offset := (filters.Page - 1) * filters.PageSize
	query := `
		SELECT id, share_id, occurred_at, action, ok, remote_ip, user_agent
		FROM share_access_events ` + whereClause + `
		ORDER BY occurred_at DESC, id DESC
		LIMIT ? OFFSET ?`
	args = append(args, filters.PageSize, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query access events: %w", err)
	}
	defer rows.Close()

	var events []*AccessEvent
	for rows.Next() {
		var (
			event      AccessEvent
			occurredAt int64
			action     string
			ok         int
			remoteIP   sql.NullString
			userAgent  sql.NullString
		)
		if err := rows.Scan(&event.ID, &event.ShareID, &occurredAt, &action, &ok, &remoteIP, &userAgent); err != nil {
			return nil, 0, fmt.Errorf("failed to scan access event: %w", err)
		}
		event.OccurredAt = time.UnixMilli(occurredAt).UTC()
		event.Action = Action(action)
		event.OK = ok == 1
		event.RemoteIP = remoteIP.String
		event.UserAgent = userAgent.String
		events = append(events, &event)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating access events: %w", err)
	}

	return events, total, nil
}

// ShareIDsWithActivitySince lists shares with events at or after since
func (s *SQLiteStore) ShareIDsWithActivitySince(ctx context.Context, since time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT share_id FROM share_access_events WHERE occurred_at >= ? ORDER BY share_id
	`, since.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("failed to query active shares: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan share id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func buildWhereClause(filters *EventFilters) (string, []interface{}) {
	conditions := []string{"share_id = ?"}
	args := []interface{}{filters.ShareID}

	if filters.Action != "" {
		conditions = append(conditions, "action = ?")
		args = append(args, string(filters.Action))
	}
	if filters.OK != nil {
		conditions = append(conditions, "ok = ?")
		args = append(args, boolToInt(*filters.OK))
	}
	if !filters.Since.IsZero() {
		conditions = append(conditions, "occurred_at >= ?")
		args = append(args, filters.Since.UnixMilli())
	}
	if !filters.Until.IsZero() {
		conditions = append(conditions, "occurred_at <= ?")
		args = append(args, filters.Until.UnixMilli())
	}

	return "WHERE " + strings.Join(conditions, " AND "), args
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// nullString stores empty optional strings as NULL
func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
