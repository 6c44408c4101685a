package share

import (
	"context"
	"time"

	"github.com/sharegate/sharegate/internal/audit"
	"github.com/sharegate/sharegate/internal/catalog"
	"github.com/sharegate/sharegate/internal/presigned"
)

// Store defines the interface for share link persistence
type Store interface {
	Create(ctx context.Context, link *ShareLink) error
	GetByCode(ctx context.Context, code string) (*ShareLink, error) // ErrShareNotFound when absent
	GetByID(ctx context.Context, id string) (*ShareLink, error)     // ErrShareNotFound when absent
	ListByOwner(ctx context.Context, ownerUserID string) ([]*ShareLink, error)
	Update(ctx context.Context, link *ShareLink) error
}

// AccessLog is the append-only record of access attempts
type AccessLog interface {
	AddAccessEvent(ctx context.Context, event *audit.AccessEvent) error
	CountSuccessfulViews(ctx context.Context, shareID string) (int64, error)
	CountSuccessfulDownloads(ctx context.Context, shareID string) (int64, error)
	GetStatistics(ctx context.Context, shareID string) (*audit.Statistics, error)
}

// PasswordHasher hashes and verifies share passwords
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, hash string) bool
}

// VersionLookup resolves a document version. A missing version is (nil, nil).
type VersionLookup interface {
	GetByID(ctx context.Context, versionID string) (*catalog.DocumentVersion, error)
}

// LinkIssuer issues presigned download URLs
type LinkIssuer interface {
	GetDownloadLink(ctx context.Context, storageKey string, ttl time.Duration, fileName string) (*presigned.Link, error)
}

// Principal is an authenticated caller. Anonymous callers are a nil Principal.
type Principal interface {
	SubjectID() (string, bool)
	GroupIDs() []string
}

// CodeProvider hands out unused share codes
type CodeProvider interface {
	NewCode(ctx context.Context) (string, error)
}

// StatsCache holds precomputed statistics
type StatsCache interface {
	Get(ctx context.Context, shareID string) (*audit.Statistics, error) // nil when absent
	Put(ctx context.Context, stats *audit.Statistics) error
}
