package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/sharegate/sharegate/internal/db"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestCatalog(t *testing.T) *SQLiteCatalog {
	t.Helper()

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	conn, err := db.Open(t.TempDir(), logger)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return NewSQLiteCatalog(conn)
}

func TestGetByID_Missing(t *testing.T) {
	c := setupTestCatalog(t)

	v, err := c.GetByID(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestPutAndGetByID(t *testing.T) {
	c := setupTestCatalog(t)
	ctx := context.Background()

	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, c.Put(ctx, &DocumentVersion{
		ID:          "ver-1",
		DocumentID:  "doc-1",
		StorageKey:  "tenants/a/doc-1/ver-1",
		FileName:    "report.pdf",
		ContentType: "application/pdf",
		SizeBytes:   2048,
		CreatedAt:   created,
	}))

	v, err := c.GetByID(ctx, "ver-1")
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, "doc-1", v.DocumentID)
	assert.Equal(t, "tenants/a/doc-1/ver-1", v.StorageKey)
	assert.Equal(t, "report.pdf", v.FileName)
	assert.Equal(t, int64(2048), v.SizeBytes)
	assert.Equal(t, created, v.CreatedAt)

	// Upsert keeps the original creation time
	require.NoError(t, c.Put(ctx, &DocumentVersion{ID: "ver-1", DocumentID: "doc-1", StorageKey: "moved"}))
	v, err = c.GetByID(ctx, "ver-1")
	require.NoError(t, err)
	assert.Equal(t, "moved", v.StorageKey)
	assert.Equal(t, created, v.CreatedAt)
}

func TestPut_Validation(t *testing.T) {
	c := setupTestCatalog(t)

	assert.ErrorIs(t, c.Put(context.Background(), &DocumentVersion{ID: "v"}), ErrInvalidVersion)
	assert.ErrorIs(t, c.Put(context.Background(), &DocumentVersion{StorageKey: "k"}), ErrInvalidVersion)
}
