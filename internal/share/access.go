package share

import (
	"context"
	"fmt"
	"time"

	"github.com/sharegate/sharegate/internal/audit"
	"github.com/sharegate/sharegate/internal/metrics"
	"github.com/sirupsen/logrus"
)

// AccessRequest is what a caller presents when opening a share code
type AccessRequest struct {
	Code      string
	Principal Principal
	Password  string
	RemoteIP  string
	UserAgent string
}

// Interstitial is shown before download. Quota fields are nil while a
// password is still pending.
type Interstitial struct {
	ShareID          string       `json:"share_id"`
	Code             string       `json:"code"`
	File             FileSnapshot `json:"file"`
	Watermark        string       `json:"watermark,omitempty"`
	ValidTo          *time.Time   `json:"valid_to,omitempty"`
	PasswordRequired bool         `json:"password_required"`
	PasswordValid    bool         `json:"password_valid"`
	CanDownload      bool         `json:"can_download"`
	ViewsUsed        *int64       `json:"views_used,omitempty"`
	MaxViews         *int64       `json:"max_views,omitempty"`
	DownloadsUsed    *int64       `json:"downloads_used,omitempty"`
	MaxDownloads     *int64       `json:"max_downloads,omitempty"`
}

// DownloadLink is an issued presigned download
type DownloadLink struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
	FileName  string    `json:"file_name"`
}

const (
	opInterstitial   = "interstitial"
	opVerifyPassword = "verify_password"
	opDownload       = "download"
)

// AccessService serves the three public share use cases. It never mutates a
// share link; its only side effects are access events.
type AccessService struct {
	evaluator *Evaluator
	accessLog AccessLog
	versions  VersionLookup
	issuer    LinkIssuer
	linkTTL   time.Duration
	metrics   metrics.Manager
	logger    *logrus.Logger
}

// NewAccessService creates an access service issuing download links valid
// for linkTTL
func NewAccessService(evaluator *Evaluator, accessLog AccessLog, versions VersionLookup, issuer LinkIssuer, linkTTL time.Duration, mm metrics.Manager, logger *logrus.Logger) *AccessService {
	if mm == nil {
		mm = metrics.NewNoop()
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &AccessService{
		evaluator: evaluator,
		accessLog: accessLog,
		versions:  versions,
		issuer:    issuer,
		linkTTL:   linkTTL,
		metrics:   mm,
		logger:    logger,
	}
}

// GetInterstitial evaluates a view. A protected link without a password
// yields a pending interstitial and records nothing; otherwise one successful
// view is recorded.
func (s *AccessService) GetInterstitial(ctx context.Context, req AccessRequest) (resp *Interstitial, err error) {
	start := time.Now()
	defer func() { s.observe(opInterstitial, start, err) }()

	eval, err := s.evaluator.Evaluate(ctx, EvaluateRequest{
		Code:      req.Code,
		Principal: req.Principal,
		Password:  req.Password,
		RemoteIP:  req.RemoteIP,
		UserAgent: req.UserAgent,
	})
	if err != nil {
		return nil, err
	}

	link := eval.Link
	resp = &Interstitial{
		ShareID:          link.ID,
		Code:             link.Code,
		File:             link.File,
		Watermark:        link.Watermark,
		ValidTo:          link.ValidTo,
		PasswordRequired: link.HasPassword(),
	}

	if !eval.PasswordValidated {
		return resp, nil
	}

	if err := s.record(ctx, eval, req, audit.ActionView); err != nil {
		return nil, err
	}

	viewsUsed := eval.ViewsUsed + 1
	downloadsUsed := eval.DownloadsUsed
	resp.PasswordValid = true
	resp.CanDownload = link.Permissions.Has(PermissionDownload)
	resp.ViewsUsed = &viewsUsed
	resp.MaxViews = link.MaxViews
	resp.DownloadsUsed = &downloadsUsed
	resp.MaxDownloads = link.MaxDownloads
	return resp, nil
}

// VerifyPassword checks a password against the full policy. It never counts
// as a view.
func (s *AccessService) VerifyPassword(ctx context.Context, req AccessRequest) (err error) {
	start := time.Now()
	defer func() { s.observe(opVerifyPassword, start, err) }()

	if req.Password == "" {
		return ErrPasswordRequired
	}

	_, err = s.evaluator.Evaluate(ctx, EvaluateRequest{
		Code:            req.Code,
		Principal:       req.Principal,
		Password:        req.Password,
		RemoteIP:        req.RemoteIP,
		UserAgent:       req.UserAgent,
		RequirePassword: true,
	})
	return err
}

// CreateDownloadLink issues a presigned URL for the shared version and
// records one successful download
func (s *AccessService) CreateDownloadLink(ctx context.Context, req AccessRequest) (link *DownloadLink, err error) {
	start := time.Now()
	defer func() { s.observe(opDownload, start, err) }()

	eval, err := s.evaluator.Evaluate(ctx, EvaluateRequest{
		Code:               req.Code,
		Principal:          req.Principal,
		Password:           req.Password,
		RemoteIP:           req.RemoteIP,
		UserAgent:          req.UserAgent,
		RequirePassword:    true,
		CheckDownloadQuota: true,
	})
	if err != nil {
		return nil, err
	}

	share := eval.Link
	if !share.Permissions.Has(PermissionDownload) {
		return nil, ErrDownloadNotAllowed
	}
	if share.VersionID == "" {
		return nil, ErrVersionRequired
	}

	version, err := s.versions.GetByID(ctx, share.VersionID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up document version: %w", err)
	}
	if version == nil {
		return nil, ErrDocumentVersionNotFound
	}

	fileName := share.File.Name
	if fileName == "" {
		fileName = version.FileName
	}

	issued, err := s.issuer.GetDownloadLink(ctx, version.StorageKey, s.linkTTL, fileName)
	if err != nil {
		return nil, fmt.Errorf("failed to issue download link: %w", err)
	}

	if err := s.record(ctx, eval, req, audit.ActionDownload); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"share_id":   share.ID,
		"version_id": share.VersionID,
		"remote_ip":  req.RemoteIP,
		"expires_at": issued.ExpiresAt,
	}).Info("Share download link issued")

	return &DownloadLink{
		URL:       issued.URL,
		ExpiresAt: issued.ExpiresAt,
		FileName:  fileName,
	}, nil
}

func (s *AccessService) record(ctx context.Context, eval *Evaluation, req AccessRequest, action audit.Action) error {
	event := &audit.AccessEvent{
		ShareID:    eval.Link.ID,
		OccurredAt: eval.EvaluatedAt,
		Action:     action,
		OK:         true,
		RemoteIP:   req.RemoteIP,
		UserAgent:  req.UserAgent,
	}
	if err := s.accessLog.AddAccessEvent(ctx, event); err != nil {
		return fmt.Errorf("failed to record %s event: %w", action, err)
	}
	s.metrics.RecordAccessEvent(string(action), true)
	return nil
}

func (s *AccessService) observe(operation string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
		if reason, ok := ReasonOf(err); ok {
			outcome = string(reason)
		}
	}
	s.metrics.RecordEvaluation(operation, outcome, time.Since(start))
}
