package share

import (
	"errors"
	"time"
)

// SubjectType is who a share link is scoped to
type SubjectType string

const (
	SubjectPublic SubjectType = "public"
	SubjectUser   SubjectType = "user"
	SubjectGroup  SubjectType = "group"
)

// Valid reports whether t is one of the known subject types
func (t SubjectType) Valid() bool {
	switch t {
	case SubjectPublic, SubjectUser, SubjectGroup:
		return true
	}
	return false
}

// Permission is a bitmask of what a share link grants
type Permission uint8

const (
	PermissionView Permission = 1 << iota
	PermissionDownload

	permissionMask = PermissionView | PermissionDownload
)

// Has reports whether every bit of q is set in p
func (p Permission) Has(q Permission) bool {
	return p&q == q
}

// Valid reports whether p only uses known bits
func (p Permission) Valid() bool {
	return p&^permissionMask == 0
}

// Status is derived from the revocation marker and validity window
type Status string

const (
	StatusActive      Status = "active"
	StatusNotYetValid Status = "not_yet_valid"
	StatusExpired     Status = "expired"
	StatusRevoked     Status = "revoked"
)

// FileSnapshot is the descriptive metadata of the shared version, copied at
// creation so the interstitial never touches the catalog.
type FileSnapshot struct {
	Name        string     `json:"name"`
	Extension   string     `json:"extension"`
	ContentType string     `json:"content_type"`
	SizeBytes   int64      `json:"size_bytes"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
}

// ShareLink is a capability granting access to one document version via a
// short code
type ShareLink struct {
	ID          string `json:"id"`
	Code        string `json:"code"`
	OwnerUserID string `json:"owner_user_id"`
	DocumentID  string `json:"document_id"`
	VersionID   string `json:"version_id,omitempty"` // required for download

	SubjectType SubjectType `json:"subject_type"`
	SubjectID   string      `json:"subject_id,omitempty"`
	Permissions Permission  `json:"permissions"`

	ValidFrom time.Time  `json:"valid_from"`         // inclusive
	ValidTo   *time.Time `json:"valid_to,omitempty"` // inclusive, nil = open ended

	MaxViews     *int64 `json:"max_views,omitempty"` // nil = unlimited
	MaxDownloads *int64 `json:"max_downloads,omitempty"`

	PasswordHash string   `json:"-"` // Never expose in JSON
	AllowedIPs   []string `json:"allowed_ips,omitempty"`

	File      FileSnapshot `json:"file"`
	Watermark string       `json:"watermark,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
}

// ErrInvalidSubject is returned by Validate for an unknown subject type or a
// subject id that does not match the type
var ErrInvalidSubject = errors.New("share subject is invalid")

// Status derives the link status at now. Revocation wins over the window.
func (l *ShareLink) Status(now time.Time) Status {
	switch {
	case l.RevokedAt != nil:
		return StatusRevoked
	case now.Before(l.ValidFrom):
		return StatusNotYetValid
	case l.ValidTo != nil && now.After(*l.ValidTo):
		return StatusExpired
	default:
		return StatusActive
	}
}

// HasPassword reports whether the link is password protected
func (l *ShareLink) HasPassword() bool {
	return l.PasswordHash != ""
}

// Validate checks the structural invariants of a link
func (l *ShareLink) Validate() error {
	if l.ID == "" {
		return ErrShareIDRequired
	}
	if l.Code == "" {
		return ErrCodeRequired
	}

	switch l.SubjectType {
	case SubjectPublic:
		if l.SubjectID != "" {
			return ErrInvalidSubject
		}
	case SubjectUser, SubjectGroup:
		if l.SubjectID == "" {
			return ErrInvalidSubject
		}
	default:
		return ErrInvalidSubject
	}

	if !l.Permissions.Valid() {
		return ErrPermissionsInvalid
	}
	if l.ValidTo != nil && l.ValidTo.Before(l.ValidFrom) {
		return ErrInvalidValidityWindow
	}
	if l.MaxViews != nil && *l.MaxViews < 0 {
		return ErrMaxViewsInvalid
	}
	if l.MaxDownloads != nil && *l.MaxDownloads < 0 {
		return ErrMaxDownloadsInvalid
	}
	if l.File.SizeBytes < 0 {
		return ErrFileSizeInvalid
	}
	return nil
}

// ShareLinkView is the management projection of a link. It carries the
// derived status and never the password hash.
type ShareLinkView struct {
	ID                string       `json:"id"`
	Code              string       `json:"code"`
	OwnerUserID       string       `json:"owner_user_id"`
	DocumentID        string       `json:"document_id"`
	VersionID         string       `json:"version_id,omitempty"`
	SubjectType       SubjectType  `json:"subject_type"`
	SubjectID         string       `json:"subject_id,omitempty"`
	CanView           bool         `json:"can_view"`
	CanDownload       bool         `json:"can_download"`
	ValidFrom         time.Time    `json:"valid_from"`
	ValidTo           *time.Time   `json:"valid_to,omitempty"`
	MaxViews          *int64       `json:"max_views,omitempty"`
	MaxDownloads      *int64       `json:"max_downloads,omitempty"`
	PasswordProtected bool         `json:"password_protected"`
	AllowedIPs        []string     `json:"allowed_ips,omitempty"`
	File              FileSnapshot `json:"file"`
	Watermark         string       `json:"watermark,omitempty"`
	CreatedAt         time.Time    `json:"created_at"`
	RevokedAt         *time.Time   `json:"revoked_at,omitempty"`
	Status            Status       `json:"status"`
}

// NewShareLinkView projects l at now
func NewShareLinkView(l *ShareLink, now time.Time) *ShareLinkView {
	return &ShareLinkView{
		ID:                l.ID,
		Code:              l.Code,
		OwnerUserID:       l.OwnerUserID,
		DocumentID:        l.DocumentID,
		VersionID:         l.VersionID,
		SubjectType:       l.SubjectType,
		SubjectID:         l.SubjectID,
		CanView:           l.Permissions.Has(PermissionView),
		CanDownload:       l.Permissions.Has(PermissionDownload),
		ValidFrom:         l.ValidFrom,
		ValidTo:           l.ValidTo,
		MaxViews:          l.MaxViews,
		MaxDownloads:      l.MaxDownloads,
		PasswordProtected: l.HasPassword(),
		AllowedIPs:        append([]string(nil), l.AllowedIPs...),
		File:              l.File,
		Watermark:         l.Watermark,
		CreatedAt:         l.CreatedAt,
		RevokedAt:         l.RevokedAt,
		Status:            l.Status(now),
	}
}
