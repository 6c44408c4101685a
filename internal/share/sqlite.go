package share

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrCodeInUse is returned by Create when the code is already taken
var ErrCodeInUse = errors.New("share code already in use")

// SQLiteStore implements Store on the share_links table. The schema is owned
// by internal/db/migrations.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

const selectColumns = `
	SELECT id, code, owner_user_id, document_id, version_id, subject_type, subject_id, permissions,
		valid_from, valid_to, max_views, max_downloads, password_hash, allowed_ips,
		file_name, file_extension, file_content_type, file_size_bytes, file_created_at,
		watermark, created_at, revoked_at
	FROM share_links`

// Create inserts a new share link
func (s *SQLiteStore) Create(ctx context.Context, link *ShareLink) error {
	if err := link.Validate(); err != nil {
		return err
	}

	allowedIPs, err := encodeIPs(link.AllowedIPs)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO share_links (
			id, code, owner_user_id, document_id, version_id, subject_type, subject_id, permissions,
			valid_from, valid_to, max_views, max_downloads, password_hash, allowed_ips,
			file_name, file_extension, file_content_type, file_size_bytes, file_created_at,
			watermark, created_at, revoked_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		link.ID,
		link.Code,
		link.OwnerUserID,
		link.DocumentID,
		nullString(link.VersionID),
		string(link.SubjectType),
		nullString(link.SubjectID),
		int(link.Permissions),
		link.ValidFrom.UnixNano(),
		nullTime(link.ValidTo),
		nullInt(link.MaxViews),
		nullInt(link.MaxDownloads),
		nullString(link.PasswordHash),
		allowedIPs,
		link.File.Name,
		link.File.Extension,
		link.File.ContentType,
		link.File.SizeBytes,
		nullTime(link.File.CreatedAt),
		nullString(link.Watermark),
		link.CreatedAt.UnixNano(),
		nullTime(link.RevokedAt),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: share_links.code") {
			return ErrCodeInUse
		}
		return fmt.Errorf("failed to create share link: %w", err)
	}
	return nil
}

// GetByCode retrieves a share link by its code
func (s *SQLiteStore) GetByCode(ctx context.Context, code string) (*ShareLink, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE code = ?`, code)
	return s.scanLink(row)
}

// GetByID retrieves a share link by id
func (s *SQLiteStore) GetByID(ctx context.Context, id string) (*ShareLink, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id)
	return s.scanLink(row)
}

// ListByOwner lists an owner's share links, newest first
func (s *SQLiteStore) ListByOwner(ctx context.Context, ownerUserID string) ([]*ShareLink, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+` WHERE owner_user_id = ? ORDER BY created_at DESC, id`, ownerUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to list share links: %w", err)
	}
	defer rows.Close()

	var links []*ShareLink
	for rows.Next() {
		link, err := s.scanLink(rows)
		if err != nil {
			return nil, err
		}
		links = append(links, link)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating share links: %w", err)
	}
	return links, nil
}

// Update persists every mutable attribute of link. A stored revocation is
// never cleared.
func (s *SQLiteStore) Update(ctx context.Context, link *ShareLink) error {
	if err := link.Validate(); err != nil {
		return err
	}

	allowedIPs, err := encodeIPs(link.AllowedIPs)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE share_links SET
			version_id = ?,
			subject_type = ?,
			subject_id = ?,
			permissions = ?,
			valid_from = ?,
			valid_to = ?,
			max_views = ?,
			max_downloads = ?,
			password_hash = ?,
			allowed_ips = ?,
			file_name = ?,
			file_extension = ?,
			file_content_type = ?,
			file_size_bytes = ?,
			file_created_at = ?,
			watermark = ?,
			revoked_at = COALESCE(revoked_at, ?)
		WHERE id = ?
	`,
		nullString(link.VersionID),
		string(link.SubjectType),
		nullString(link.SubjectID),
		int(link.Permissions),
		link.ValidFrom.UnixNano(),
		nullTime(link.ValidTo),
		nullInt(link.MaxViews),
		nullInt(link.MaxDownloads),
		nullString(link.PasswordHash),
		allowedIPs,
		link.File.Name,
		link.File.Extension,
		link.File.ContentType,
		link.File.SizeBytes,
		nullTime(link.File.CreatedAt),
		nullString(link.Watermark),
		nullTime(link.RevokedAt),
		link.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update share link: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update share link: %w", err)
	}
	if affected == 0 {
		return ErrShareNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func (s *SQLiteStore) scanLink(row scanner) (*ShareLink, error) {
	var (
		link          ShareLink
		versionID     sql.NullString
		subjectType   string
		subjectID     sql.NullString
		permissions   int
		validFrom     int64
		validTo       sql.NullInt64
		maxViews      sql.NullInt64
		maxDownloads  sql.NullInt64
		passwordHash  sql.NullString
		allowedIPs    string
		fileCreatedAt sql.NullInt64
		watermark     sql.NullString
		createdAt     int64
		revokedAt     sql.NullInt64
	)

	err := row.Scan(
		&link.ID,
		&link.Code,
		&link.OwnerUserID,
		&link.DocumentID,
		&versionID,
		&subjectType,
		&subjectID,
		&permissions,
		&validFrom,
		&validTo,
		&maxViews,
		&maxDownloads,
		&passwordHash,
		&allowedIPs,
		&link.File.Name,
		&link.File.Extension,
		&link.File.ContentType,
		&link.File.SizeBytes,
		&fileCreatedAt,
		&watermark,
		&createdAt,
		&revokedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrShareNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan share link: %w", err)
	}

	link.VersionID = versionID.String
	link.SubjectType = SubjectType(subjectType)
	link.SubjectID = subjectID.String
	link.Permissions = Permission(permissions)
	link.ValidFrom = time.Unix(0, validFrom).UTC()
	link.ValidTo = timePtr(validTo)
	link.MaxViews = intPtr(maxViews)
	link.MaxDownloads = intPtr(maxDownloads)
	link.PasswordHash = passwordHash.String
	link.File.CreatedAt = timePtr(fileCreatedAt)
	link.Watermark = watermark.String
	link.CreatedAt = time.Unix(0, createdAt).UTC()
	link.RevokedAt = timePtr(revokedAt)

	if err := json.Unmarshal([]byte(allowedIPs), &link.AllowedIPs); err != nil {
		return nil, fmt.Errorf("failed to decode allowed ips for share %s: %w", link.ID, err)
	}
	if len(link.AllowedIPs) == 0 {
		link.AllowedIPs = nil
	}

	return &link, nil
}

func encodeIPs(ips []string) (string, error) {
	if len(ips) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(ips)
	if err != nil {
		return "", fmt.Errorf("failed to encode allowed ips: %w", err)
	}
	return string(data), nil
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UnixNano()
}

func nullInt(n *int64) interface{} {
	if n == nil {
		return nil
	}
	return *n
}

func timePtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(0, v.Int64).UTC()
	return &t
}

func intPtr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}
