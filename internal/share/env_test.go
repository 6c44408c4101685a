package share

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sharegate/sharegate/internal/audit"
	"github.com/sharegate/sharegate/internal/auth"
	"github.com/sharegate/sharegate/internal/catalog"
	"github.com/sharegate/sharegate/internal/clock"
	"github.com/sharegate/sharegate/internal/db"
	"github.com/sharegate/sharegate/internal/presigned"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

var testNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	clock     *clock.FakeClock
	store     *SQLiteStore
	accessLog *audit.Manager
	catalog   *catalog.SQLiteCatalog
	issuer    *fakeIssuer
	hasher    *auth.BcryptHasher
	evaluator *Evaluator
	access    *AccessService
	manager   *Manager

	seq int
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel) // Reduce noise in tests

	conn, err := db.Open(t.TempDir(), logger)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	env := &testEnv{
		clock:     clock.Fake(testNow),
		store:     NewSQLiteStore(conn),
		accessLog: audit.NewManager(audit.NewSQLiteStore(conn, logger), logger),
		catalog:   catalog.NewSQLiteCatalog(conn),
		hasher:    auth.NewBcryptHasher(bcrypt.MinCost),
	}
	env.accessLog.SetClock(env.clock)
	env.issuer = &fakeIssuer{clock: env.clock}
	env.evaluator = NewEvaluator(env.store, env.accessLog, env.hasher, env.clock, nil, logger)
	env.access = NewAccessService(env.evaluator, env.accessLog, env.catalog, env.issuer, 15*time.Minute, nil, logger)
	env.manager = NewManager(env.store, env.accessLog, env.hasher, env.clock, logger)

	require.NoError(t, env.catalog.Put(context.Background(), &catalog.DocumentVersion{
		ID:          "ver-1",
		DocumentID:  "doc-1",
		StorageKey:  "documents/doc-1/ver-1",
		FileName:    "stored-name.pdf",
		ContentType: "application/pdf",
		SizeBytes:   1024,
	}))

	return env
}

// newLink stores a public view+download link valid for an hour around now
func (env *testEnv) newLink(t *testing.T, mutate func(l *ShareLink)) *ShareLink {
	t.Helper()

	env.seq++
	validTo := testNow.Add(time.Hour)
	link := &ShareLink{
		ID:          fmt.Sprintf("share-%d", env.seq),
		Code:        fmt.Sprintf("code%03d", env.seq),
		OwnerUserID: "owner-1",
		DocumentID:  "doc-1",
		VersionID:   "ver-1",
		SubjectType: SubjectPublic,
		Permissions: PermissionView | PermissionDownload,
		ValidFrom:   testNow.Add(-time.Hour),
		ValidTo:     &validTo,
		File: FileSnapshot{
			Name:        "report.pdf",
			Extension:   "pdf",
			ContentType: "application/pdf",
			SizeBytes:   1024,
		},
		CreatedAt: testNow.Add(-2 * time.Hour),
	}
	if mutate != nil {
		mutate(link)
	}
	require.NoError(t, env.store.Create(context.Background(), link))
	return link
}

func (env *testEnv) withPassword(t *testing.T, password string) func(l *ShareLink) {
	t.Helper()
	hash, err := env.hasher.Hash(password)
	require.NoError(t, err)
	return func(l *ShareLink) { l.PasswordHash = hash }
}

// events lists a share's access events, newest first
func (env *testEnv) events(t *testing.T, shareID string) []*audit.AccessEvent {
	t.Helper()
	events, _, err := env.accessLog.ListEvents(context.Background(), &audit.EventFilters{ShareID: shareID, PageSize: 100})
	require.NoError(t, err)
	return events
}

func int64p(n int64) *int64 { return &n }

func timep(t time.Time) *time.Time { return &t }

type fakeIssuer struct {
	mu    sync.Mutex
	clock clock.Clock
	err   error
	calls []issueCall
}

type issueCall struct {
	storageKey string
	ttl        time.Duration
	fileName   string
}

func (f *fakeIssuer) GetDownloadLink(ctx context.Context, storageKey string, ttl time.Duration, fileName string) (*presigned.Link, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, issueCall{storageKey: storageKey, ttl: ttl, fileName: fileName})
	if f.err != nil {
		return nil, f.err
	}
	return &presigned.Link{
		URL:       "https://storage.test/" + storageKey + "?sig=abc",
		Method:    "GET",
		ExpiresAt: f.clock.Now().Add(ttl),
	}, nil
}

// failingAccessLog fails writes while still serving counts
type failingAccessLog struct {
	AccessLog
	addErr error
}

func (f *failingAccessLog) AddAccessEvent(ctx context.Context, event *audit.AccessEvent) error {
	return f.addErr
}

var errStoreDown = errors.New("store unavailable")

// staticCodes hands out codes from a fixed list
type staticCodes struct {
	codes []string
}

func (s *staticCodes) NewCode(ctx context.Context) (string, error) {
	if len(s.codes) == 0 {
		return "", errors.New("out of codes")
	}
	code := s.codes[0]
	s.codes = s.codes[1:]
	return code, nil
}

// memoryStatsCache is a StatsCache backed by a map
type memoryStatsCache struct {
	entries map[string]*audit.Statistics
	puts    int
}

func newMemoryStatsCache() *memoryStatsCache {
	return &memoryStatsCache{entries: map[string]*audit.Statistics{}}
}

func (c *memoryStatsCache) Get(ctx context.Context, shareID string) (*audit.Statistics, error) {
	return c.entries[shareID], nil
}

func (c *memoryStatsCache) Put(ctx context.Context, stats *audit.Statistics) error {
	c.puts++
	c.entries[stats.ShareID] = stats
	return nil
}
