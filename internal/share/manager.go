package share

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sharegate/sharegate/internal/audit"
	"github.com/sharegate/sharegate/internal/clock"
	"github.com/sharegate/sharegate/internal/metrics"
	"github.com/sirupsen/logrus"
)

// ErrCodeProviderMissing is returned by Create when no code provider is set
var ErrCodeProviderMissing = errors.New("share code provider is not configured")

// CreateRequest describes a new share link
type CreateRequest struct {
	OwnerUserID  string
	DocumentID   string
	VersionID    string
	SubjectType  SubjectType
	SubjectID    string
	Permissions  Permission
	ValidFrom    *time.Time // nil = now
	ValidTo      *time.Time
	MaxViews     *int64
	MaxDownloads *int64
	Password     string
	AllowedIPs   []string
	File         FileSnapshot
	Watermark    string
}

// ValidityUpdate changes the validity window. Nil fields are unchanged.
type ValidityUpdate struct {
	ValidFrom    *time.Time
	ValidTo      *time.Time
	ClearValidTo bool
}

// QuotaUpdate changes quotas. Nil fields are unchanged; Clear flags make the
// quota unlimited.
type QuotaUpdate struct {
	MaxViews          *int64
	ClearMaxViews     bool
	MaxDownloads      *int64
	ClearMaxDownloads bool
}

// FileMetadataUpdate changes the file snapshot. Nil fields are unchanged.
type FileMetadataUpdate struct {
	Name        *string
	Extension   *string
	ContentType *string
	SizeBytes   *int64
	CreatedAt   *time.Time
}

// Manager handles share link lifecycle and management reads
type Manager struct {
	store     Store
	accessLog AccessLog
	hasher    PasswordHasher
	clock     clock.Clock
	metrics   metrics.Manager
	logger    *logrus.Logger

	codes       CodeProvider
	statsCache  StatsCache
	statsMaxAge time.Duration
}

// NewManager creates a new share manager
func NewManager(store Store, accessLog AccessLog, hasher PasswordHasher, clk clock.Clock, logger *logrus.Logger) *Manager {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Manager{
		store:     store,
		accessLog: accessLog,
		hasher:    hasher,
		clock:     clk,
		metrics:   metrics.NewNoop(),
		logger:    logger,
	}
}

// SetCodeProvider sets the provider used by Create
func (m *Manager) SetCodeProvider(codes CodeProvider) {
	m.codes = codes
}

// SetStatsCache serves GetStatistics from cache while entries are younger
// than maxAge
func (m *Manager) SetStatsCache(cache StatsCache, maxAge time.Duration) {
	m.statsCache = cache
	m.statsMaxAge = maxAge
}

// SetMetrics sets the metrics manager
func (m *Manager) SetMetrics(mm metrics.Manager) {
	if mm != nil {
		m.metrics = mm
	}
}

// Create creates a share link with a fresh id and code
func (m *Manager) Create(ctx context.Context, req CreateRequest) (*ShareLinkView, error) {
	if m.codes == nil {
		return nil, ErrCodeProviderMissing
	}

	now := m.clock.Now()
	link := &ShareLink{
		ID:           uuid.NewString(),
		OwnerUserID:  req.OwnerUserID,
		DocumentID:   req.DocumentID,
		VersionID:    req.VersionID,
		SubjectType:  req.SubjectType,
		SubjectID:    req.SubjectID,
		Permissions:  req.Permissions,
		ValidFrom:    now,
		ValidTo:      req.ValidTo,
		MaxViews:     req.MaxViews,
		MaxDownloads: req.MaxDownloads,
		File:         req.File,
		Watermark:    req.Watermark,
		CreatedAt:    now,
	}
	if req.ValidFrom != nil {
		link.ValidFrom = *req.ValidFrom
	}

	ips, err := normalizeIPs(req.AllowedIPs)
	if err != nil {
		return nil, err
	}
	link.AllowedIPs = ips

	if req.Password != "" {
		hash, err := m.hasher.Hash(req.Password)
		if err != nil {
			return nil, fmt.Errorf("failed to hash share password: %w", err)
		}
		link.PasswordHash = hash
	}

	code, err := m.codes.NewCode(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to generate share code: %w", err)
	}
	link.Code = code

	if err := m.store.Create(ctx, link); err != nil {
		return nil, err
	}

	m.logger.WithFields(logrus.Fields{
		"share_id":     link.ID,
		"code":         link.Code,
		"document_id":  link.DocumentID,
		"subject_type": link.SubjectType,
	}).Info("Share link created")

	return NewShareLinkView(link, now), nil
}

// GetByID returns the management view of a share link
func (m *Manager) GetByID(ctx context.Context, id string) (*ShareLinkView, error) {
	link, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return NewShareLinkView(link, m.clock.Now()), nil
}

// GetByCode returns the management view of the share link with code
func (m *Manager) GetByCode(ctx context.Context, code string) (*ShareLinkView, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, ErrCodeRequired
	}
	link, err := m.store.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	return NewShareLinkView(link, m.clock.Now()), nil
}

// ListByOwner lists an owner's share links, newest first
func (m *Manager) ListByOwner(ctx context.Context, ownerUserID string) ([]*ShareLinkView, error) {
	links, err := m.store.ListByOwner(ctx, ownerUserID)
	if err != nil {
		return nil, err
	}

	now := m.clock.Now()
	views := make([]*ShareLinkView, 0, len(links))
	for _, link := range links {
		views = append(views, NewShareLinkView(link, now))
	}
	return views, nil
}

// Revoke revokes a share link. Revoking an already revoked link succeeds
// without changing it.
func (m *Manager) Revoke(ctx context.Context, id string) (*ShareLinkView, error) {
	link, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}

	now := m.clock.Now()
	if link.RevokedAt != nil {
		return NewShareLinkView(link, now), nil
	}

	link.RevokedAt = &now
	if err := m.store.Update(ctx, link); err != nil {
		return nil, err
	}

	m.logger.WithField("share_id", link.ID).Info("Share link revoked")
	return NewShareLinkView(link, now), nil
}

// GetStatistics returns aggregated access statistics. A cached aggregate is
// used while it is younger than the configured max age.
func (m *Manager) GetStatistics(ctx context.Context, id string) (*audit.Statistics, error) {
	link, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}

	if m.statsCache != nil {
		cached, err := m.statsCache.Get(ctx, link.ID)
		if err != nil {
			m.logger.WithError(err).WithField("share_id", link.ID).Warn("Failed to read statistics cache")
		}
		if cached != nil && m.clock.Now().Sub(cached.ComputedAt) <= m.statsMaxAge {
			m.metrics.RecordStatsLookup(true)
			return cached, nil
		}
		m.metrics.RecordStatsLookup(false)
	}

	stats, err := m.accessLog.GetStatistics(ctx, link.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to compute share statistics: %w", err)
	}

	if m.statsCache != nil {
		if err := m.statsCache.Put(ctx, stats); err != nil {
			m.logger.WithError(err).WithField("share_id", link.ID).Warn("Failed to write statistics cache")
		}
	}
	return stats, nil
}

// UpdateValidity changes the validity window
func (m *Manager) UpdateValidity(ctx context.Context, id string, req ValidityUpdate) (*ShareLinkView, error) {
	return m.mutate(ctx, id, "validity", func(link *ShareLink) error {
		validFrom := link.ValidFrom
		if req.ValidFrom != nil {
			validFrom = *req.ValidFrom
		}

		validTo := link.ValidTo
		if req.ClearValidTo {
			validTo = nil
		} else if req.ValidTo != nil {
			validTo = req.ValidTo
		}

		if validTo != nil && validTo.Before(validFrom) {
			return ErrInvalidValidityWindow
		}
		link.ValidFrom = validFrom
		link.ValidTo = validTo
		return nil
	})
}

// UpdateQuotas changes view and download quotas
func (m *Manager) UpdateQuotas(ctx context.Context, id string, req QuotaUpdate) (*ShareLinkView, error) {
	return m.mutate(ctx, id, "quotas", func(link *ShareLink) error {
		if req.MaxViews != nil && *req.MaxViews < 0 {
			return ErrMaxViewsInvalid
		}
		if req.MaxDownloads != nil && *req.MaxDownloads < 0 {
			return ErrMaxDownloadsInvalid
		}

		if req.ClearMaxViews {
			link.MaxViews = nil
		} else if req.MaxViews != nil {
			link.MaxViews = int64Ptr(*req.MaxViews)
		}
		if req.ClearMaxDownloads {
			link.MaxDownloads = nil
		} else if req.MaxDownloads != nil {
			link.MaxDownloads = int64Ptr(*req.MaxDownloads)
		}
		return nil
	})
}

// UpdatePermissions replaces the permission bitmask
func (m *Manager) UpdatePermissions(ctx context.Context, id string, permissions Permission) (*ShareLinkView, error) {
	if !permissions.Valid() {
		return nil, ErrPermissionsInvalid
	}
	return m.mutate(ctx, id, "permissions", func(link *ShareLink) error {
		link.Permissions = permissions
		return nil
	})
}

// SetPassword protects the link with password
func (m *Manager) SetPassword(ctx context.Context, id, password string) (*ShareLinkView, error) {
	if password == "" {
		return nil, ErrPasswordRequired
	}
	return m.mutate(ctx, id, "password", func(link *ShareLink) error {
		hash, err := m.hasher.Hash(password)
		if err != nil {
			return fmt.Errorf("failed to hash share password: %w", err)
		}
		link.PasswordHash = hash
		return nil
	})
}

// RemovePassword removes password protection
func (m *Manager) RemovePassword(ctx context.Context, id string) (*ShareLinkView, error) {
	return m.mutate(ctx, id, "password", func(link *ShareLink) error {
		link.PasswordHash = ""
		return nil
	})
}

// UpdateFileMetadata changes the file snapshot
func (m *Manager) UpdateFileMetadata(ctx context.Context, id string, req FileMetadataUpdate) (*ShareLinkView, error) {
	if req.SizeBytes != nil && *req.SizeBytes < 0 {
		return nil, ErrFileSizeInvalid
	}
	return m.mutate(ctx, id, "file", func(link *ShareLink) error {
		if req.Name != nil {
			link.File.Name = *req.Name
		}
		if req.Extension != nil {
			link.File.Extension = *req.Extension
		}
		if req.ContentType != nil {
			link.File.ContentType = *req.ContentType
		}
		if req.SizeBytes != nil {
			link.File.SizeBytes = *req.SizeBytes
		}
		if req.CreatedAt != nil {
			createdAt := *req.CreatedAt
			link.File.CreatedAt = &createdAt
		}
		return nil
	})
}

// UpdateWatermark replaces the watermark payload. An empty payload removes it.
func (m *Manager) UpdateWatermark(ctx context.Context, id, watermark string) (*ShareLinkView, error) {
	return m.mutate(ctx, id, "watermark", func(link *ShareLink) error {
		link.Watermark = watermark
		return nil
	})
}

// UpdateAllowedIPs replaces the IP allow-list. An empty list removes the
// restriction.
func (m *Manager) UpdateAllowedIPs(ctx context.Context, id string, ips []string) (*ShareLinkView, error) {
	normalized, err := normalizeIPs(ips)
	if err != nil {
		return nil, err
	}
	return m.mutate(ctx, id, "allowed_ips", func(link *ShareLink) error {
		link.AllowedIPs = normalized
		return nil
	})
}

func (m *Manager) load(ctx context.Context, id string) (*ShareLink, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrShareIDRequired
	}
	return m.store.GetByID(ctx, id)
}

// mutate loads a link, applies fn and persists the result
func (m *Manager) mutate(ctx context.Context, id, field string, fn func(link *ShareLink) error) (*ShareLinkView, error) {
	link, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := fn(link); err != nil {
		return nil, err
	}

	if err := m.store.Update(ctx, link); err != nil {
		m.logger.WithError(err).WithFields(logrus.Fields{
			"share_id": link.ID,
			"field":    field,
		}).Error("Failed to update share link")
		return nil, err
	}

	m.logger.WithFields(logrus.Fields{
		"share_id": link.ID,
		"field":    field,
	}).Debug("Share link updated")

	return NewShareLinkView(link, m.clock.Now()), nil
}

// normalizeIPs validates, canonicalises and de-duplicates allow-list entries
func normalizeIPs(ips []string) ([]string, error) {
	if len(ips) == 0 {
		return nil, nil
	}

	seen := make(map[string]struct{}, len(ips))
	out := make([]string, 0, len(ips))
	for _, ip := range ips {
		normalized, err := NormalizeIP(ip)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[normalized]; dup {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
	}
	return out, nil
}

func int64Ptr(n int64) *int64 {
	return &n
}
