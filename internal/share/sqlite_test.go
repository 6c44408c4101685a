package share

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteStore_RoundTrip(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	fileCreated := testNow.Add(-48 * time.Hour)

	link := env.newLink(t, func(l *ShareLink) {
		l.SubjectType = SubjectGroup
		l.SubjectID = "finance"
		l.MaxViews = int64p(0)
		l.MaxDownloads = int64p(3)
		l.AllowedIPs = []string{"10.0.0.1", "2001:db8::/32"}
		l.File.CreatedAt = &fileCreated
		l.Watermark = `{"text":"confidential"}`
		l.PasswordHash = "hash"
	})

	got, err := env.store.GetByID(ctx, link.ID)
	require.NoError(t, err)
	assert.Equal(t, link, got)

	got, err = env.store.GetByCode(ctx, link.Code)
	require.NoError(t, err)
	assert.Equal(t, link, got)
}

func TestSQLiteStore_OptionalFieldsStayNil(t *testing.T) {
	env := newTestEnv(t)
	link := env.newLink(t, func(l *ShareLink) {
		l.VersionID = ""
		l.ValidTo = nil
	})

	got, err := env.store.GetByID(context.Background(), link.ID)
	require.NoError(t, err)
	assert.Empty(t, got.VersionID)
	assert.Nil(t, got.ValidTo)
	assert.Nil(t, got.MaxViews, "unlimited is distinct from zero")
	assert.Nil(t, got.MaxDownloads)
	assert.Nil(t, got.AllowedIPs)
	assert.Nil(t, got.File.CreatedAt)
	assert.Nil(t, got.RevokedAt)
	assert.False(t, got.HasPassword())
}

func TestSQLiteStore_CreateErrors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	link := env.newLink(t, nil)

	dup := *link
	dup.ID = "share-other"
	assert.ErrorIs(t, env.store.Create(ctx, &dup), ErrCodeInUse)

	invalid := *link
	invalid.ID = "share-invalid"
	invalid.Code = "other-code"
	invalid.SubjectType = SubjectUser
	assert.ErrorIs(t, env.store.Create(ctx, &invalid), ErrInvalidSubject)
}

func TestSQLiteStore_NotFound(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.store.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrShareNotFound)

	_, err = env.store.GetByCode(ctx, "missing")
	assert.ErrorIs(t, err, ErrShareNotFound)

	link := &ShareLink{ID: "missing", Code: "x", SubjectType: SubjectPublic, ValidFrom: testNow}
	assert.ErrorIs(t, env.store.Update(ctx, link), ErrShareNotFound)
}

func TestSQLiteStore_Update(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	link := env.newLink(t, nil)

	link.Permissions = PermissionView
	link.MaxViews = int64p(7)
	link.AllowedIPs = []string{"192.168.1.0/24"}
	link.Code = "ignored-on-update"
	require.NoError(t, env.store.Update(ctx, link))

	got, err := env.store.GetByID(ctx, link.ID)
	require.NoError(t, err)
	assert.Equal(t, PermissionView, got.Permissions)
	assert.Equal(t, int64(7), *got.MaxViews)
	assert.Equal(t, []string{"192.168.1.0/24"}, got.AllowedIPs)
	assert.Equal(t, "code001", got.Code, "code is immutable")
}

func TestSQLiteStore_TimestampsKeepFullPrecision(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	from := testNow.Add(123456789 * time.Nanosecond)
	to := from.Add(time.Hour + 987*time.Nanosecond)
	link := env.newLink(t, func(l *ShareLink) {
		l.ValidFrom = from
		l.ValidTo = &to
	})

	got, err := env.store.GetByID(ctx, link.ID)
	require.NoError(t, err)
	assert.True(t, from.Equal(got.ValidFrom), "valid_from %s", got.ValidFrom)
	require.NotNil(t, got.ValidTo)
	assert.True(t, to.Equal(*got.ValidTo), "valid_to %s", got.ValidTo)
}

func TestSQLiteStore_RevokedAtNeverCleared(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	link := env.newLink(t, nil)

	revokedAt := testNow
	link.RevokedAt = &revokedAt
	require.NoError(t, env.store.Update(ctx, link))

	later := testNow.Add(time.Hour)
	link.RevokedAt = &later
	require.NoError(t, env.store.Update(ctx, link))

	got, err := env.store.GetByID(ctx, link.ID)
	require.NoError(t, err)
	require.NotNil(t, got.RevokedAt)
	assert.Equal(t, testNow, *got.RevokedAt, "first revocation time is kept")

	got.RevokedAt = nil
	require.NoError(t, env.store.Update(ctx, got))

	got, err = env.store.GetByID(ctx, link.ID)
	require.NoError(t, err)
	assert.NotNil(t, got.RevokedAt)
}

func TestSQLiteStore_ListByOwner(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	older := env.newLink(t, func(l *ShareLink) { l.CreatedAt = testNow.Add(-2 * time.Hour) })
	newer := env.newLink(t, func(l *ShareLink) { l.CreatedAt = testNow.Add(-time.Hour) })

	links, err := env.store.ListByOwner(ctx, "owner-1")
	require.NoError(t, err)
	require.Len(t, links, 2)
	assert.Equal(t, newer.ID, links[0].ID)
	assert.Equal(t, older.ID, links[1].ID)
}
