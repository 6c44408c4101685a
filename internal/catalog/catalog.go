package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrInvalidVersion is returned by Put for a version without id or storage key
var ErrInvalidVersion = errors.New("document version id and storage key are required")

// DocumentVersion is the read-only view of one stored document version
type DocumentVersion struct {
	ID          string    `json:"id"`
	DocumentID  string    `json:"document_id"`
	StorageKey  string    `json:"storage_key"`
	FileName    string    `json:"file_name"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	CreatedAt   time.Time `json:"created_at"`
}

// SQLiteCatalog resolves document versions from the document_versions table.
// Rows are written by the document service that owns the catalog.
type SQLiteCatalog struct {
	db *sql.DB
}

// NewSQLiteCatalog creates a catalog reader over an already migrated database
func NewSQLiteCatalog(db *sql.DB) *SQLiteCatalog {
	return &SQLiteCatalog{db: db}
}

// GetByID returns the version with the given id, or nil when it does not exist
func (c *SQLiteCatalog) GetByID(ctx context.Context, versionID string) (*DocumentVersion, error) {
	var (
		v         DocumentVersion
		createdAt int64
	)
	err := c.db.QueryRowContext(ctx, `
		SELECT id, document_id, storage_key, file_name, content_type, size_bytes, created_at
		FROM document_versions
		WHERE id = ?
	`, versionID).Scan(&v.ID, &v.DocumentID, &v.StorageKey, &v.FileName, &v.ContentType, &v.SizeBytes, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document version: %w", err)
	}

	v.CreatedAt = time.UnixMilli(createdAt).UTC()
	return &v, nil
}

// Put inserts or replaces a version. It is used to seed the read model.
func (c *SQLiteCatalog) Put(ctx context.Context, v *DocumentVersion) error {
	if v.ID == "" || v.StorageKey == "" {
		return ErrInvalidVersion
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}

	_, err := c.db.ExecContext(ctx, `
		INSERT INTO document_versions (id, document_id, storage_key, file_name, content_type, size_bytes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			document_id = excluded.document_id,
			storage_key = excluded.storage_key,
			file_name = excluded.file_name,
			content_type = excluded.content_type,
			size_bytes = excluded.size_bytes
	`, v.ID, v.DocumentID, v.StorageKey, v.FileName, v.ContentType, v.SizeBytes, v.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to put document version: %w", err)
	}
	return nil
}
