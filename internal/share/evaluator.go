package share

import (
	"context"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/sharegate/sharegate/internal/audit"
	"github.com/sharegate/sharegate/internal/clock"
	"github.com/sharegate/sharegate/internal/metrics"
	"github.com/sirupsen/logrus"
)

// EvaluateRequest is one access attempt against a share code
type EvaluateRequest struct {
	Code      string
	Principal Principal // nil for anonymous callers
	Password  string
	RemoteIP  string
	UserAgent string

	// RequirePassword fails a protected link with no password instead of
	// returning a pending evaluation.
	RequirePassword    bool
	CheckDownloadQuota bool

	Now time.Time // zero = evaluator clock
}

// Evaluation is a successful evaluation. PasswordValidated is false only for a
// protected link evaluated without a password and without RequirePassword.
type Evaluation struct {
	Link              *ShareLink
	PasswordValidated bool
	ViewsUsed         int64
	DownloadsUsed     int64
	EvaluatedAt       time.Time
}

// evaluation is the state threaded through the check chain
type evaluation struct {
	req    *EvaluateRequest
	code   string
	now    time.Time
	result Evaluation
}

// check is one step of the policy chain. A non-nil error stops the chain.
type check struct {
	name string
	run  func(ctx context.Context, st *evaluation) error
}

// Evaluator runs the ordered share access policy
type Evaluator struct {
	store     Store
	accessLog AccessLog
	hasher    PasswordHasher
	clock     clock.Clock
	metrics   metrics.Manager
	logger    *logrus.Logger

	chain []check
}

// NewEvaluator creates an evaluator. A nil clock, metrics manager or logger is
// replaced with the real clock, a no-op manager and the standard logger.
func NewEvaluator(store Store, accessLog AccessLog, hasher PasswordHasher, clk clock.Clock, mm metrics.Manager, logger *logrus.Logger) *Evaluator {
	if clk == nil {
		clk = clock.Real()
	}
	if mm == nil {
		mm = metrics.NewNoop()
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	e := &Evaluator{
		store:     store,
		accessLog: accessLog,
		hasher:    hasher,
		clock:     clk,
		metrics:   mm,
		logger:    logger,
	}
	e.chain = []check{
		{name: "code", run: checkCode},
		{name: "resolve", run: e.resolve},
		{name: "revocation", run: checkRevocation},
		{name: "not_before", run: checkNotBefore},
		{name: "not_after", run: checkNotAfter},
		{name: "subject", run: e.checkSubject},
		{name: "remote_ip", run: e.checkRemoteIP},
		{name: "view_quota", run: e.checkViewQuota},
		{name: "download_quota", run: e.checkDownloadQuota},
		{name: "password", run: e.checkPassword},
	}
	return e
}

// Evaluate runs the policy chain for req. Policy failures are *Error values;
// any other error comes from a collaborator.
func (e *Evaluator) Evaluate(ctx context.Context, req EvaluateRequest) (*Evaluation, error) {
	st := &evaluation{req: &req, now: req.Now}
	if st.now.IsZero() {
		st.now = e.clock.Now()
	}
	st.result.EvaluatedAt = st.now

	for _, c := range e.chain {
		if err := c.run(ctx, st); err != nil {
			e.logFailure(st, c.name, err)
			return nil, err
		}
	}

	return &st.result, nil
}

func (e *Evaluator) logFailure(st *evaluation, step string, err error) {
	fields := logrus.Fields{
		"code":      st.code,
		"step":      step,
		"remote_ip": st.req.RemoteIP,
	}
	if st.result.Link != nil {
		fields["share_id"] = st.result.Link.ID
	}

	if reason, ok := ReasonOf(err); ok {
		fields["reason"] = reason
		e.logger.WithFields(fields).Info("Share access denied")
		return
	}
	e.logger.WithError(err).WithFields(fields).Error("Share evaluation failed")
}

func checkCode(_ context.Context, st *evaluation) error {
	st.code = strings.TrimSpace(st.req.Code)
	if st.code == "" {
		return ErrCodeRequired
	}
	return nil
}

func (e *Evaluator) resolve(ctx context.Context, st *evaluation) error {
	link, err := e.store.GetByCode(ctx, st.code)
	if err != nil {
		return err
	}
	if link == nil {
		return ErrShareNotFound
	}
	st.result.Link = link
	return nil
}

func checkRevocation(_ context.Context, st *evaluation) error {
	if st.result.Link.RevokedAt != nil {
		return ErrShareRevoked
	}
	return nil
}

func checkNotBefore(_ context.Context, st *evaluation) error {
	if st.now.Before(st.result.Link.ValidFrom) {
		return ErrShareNotYetValid
	}
	return nil
}

func checkNotAfter(_ context.Context, st *evaluation) error {
	if to := st.result.Link.ValidTo; to != nil && st.now.After(*to) {
		return ErrShareExpired
	}
	return nil
}

func (e *Evaluator) checkSubject(ctx context.Context, st *evaluation) error {
	if authorizeSubject(st.result.Link, st.req.Principal) {
		return nil
	}
	return e.deny(ctx, st, audit.ActionView, ErrShareNotAuthorized)
}

// authorizeSubject has one predicate per subject type. Unknown types are
// never authorized.
func authorizeSubject(link *ShareLink, p Principal) bool {
	switch link.SubjectType {
	case SubjectPublic:
		return true
	case SubjectUser:
		if p == nil {
			return false
		}
		sub, ok := p.SubjectID()
		return ok && sub == link.SubjectID
	case SubjectGroup:
		if p == nil {
			return false
		}
		for _, g := range p.GroupIDs() {
			if g == link.SubjectID {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func (e *Evaluator) checkRemoteIP(ctx context.Context, st *evaluation) error {
	if len(st.result.Link.AllowedIPs) == 0 || ipAllowed(st.result.Link.AllowedIPs, st.req.RemoteIP) {
		return nil
	}
	return e.deny(ctx, st, audit.ActionView, ErrShareIPNotAllowed)
}

func (e *Evaluator) checkViewQuota(ctx context.Context, st *evaluation) error {
	used, err := e.accessLog.CountSuccessfulViews(ctx, st.result.Link.ID)
	if err != nil {
		return fmt.Errorf("failed to count share views: %w", err)
	}
	st.result.ViewsUsed = used

	if limit := st.result.Link.MaxViews; limit != nil && used >= *limit {
		return ErrShareViewQuotaExceeded
	}
	return nil
}

func (e *Evaluator) checkDownloadQuota(ctx context.Context, st *evaluation) error {
	used, err := e.accessLog.CountSuccessfulDownloads(ctx, st.result.Link.ID)
	if err != nil {
		return fmt.Errorf("failed to count share downloads: %w", err)
	}
	st.result.DownloadsUsed = used

	if !st.req.CheckDownloadQuota {
		return nil
	}
	if limit := st.result.Link.MaxDownloads; limit != nil && used >= *limit {
		return ErrShareDownloadQuotaExceeded
	}
	return nil
}

func (e *Evaluator) checkPassword(ctx context.Context, st *evaluation) error {
	link := st.result.Link
	if !link.HasPassword() {
		st.result.PasswordValidated = true
		return nil
	}

	if st.req.Password == "" {
		if st.req.RequirePassword {
			return ErrPasswordRequired
		}
		st.result.PasswordValidated = false
		return nil
	}

	if !e.hasher.Verify(st.req.Password, link.PasswordHash) {
		return e.deny(ctx, st, audit.ActionPasswordFailed, ErrPasswordInvalid)
	}
	st.result.PasswordValidated = true
	return nil
}

// deny records a failed access event and returns reason. If the event cannot
// be written the store error is returned instead.
func (e *Evaluator) deny(ctx context.Context, st *evaluation, action audit.Action, reason *Error) error {
	event := &audit.AccessEvent{
		ShareID:    st.result.Link.ID,
		OccurredAt: st.now,
		Action:     action,
		OK:         false,
		RemoteIP:   st.req.RemoteIP,
		UserAgent:  st.req.UserAgent,
	}
	if err := e.accessLog.AddAccessEvent(ctx, event); err != nil {
		return fmt.Errorf("failed to record %s event: %w", action, err)
	}
	e.metrics.RecordAccessEvent(string(action), false)
	return reason
}

// NormalizeIP canonicalises an allow-list entry. Entries are single
// addresses or CIDR prefixes; IPv4-mapped IPv6 addresses become IPv4.
func NormalizeIP(entry string) (string, error) {
	entry = strings.TrimSpace(entry)
	if strings.Contains(entry, "/") {
		prefix, err := netip.ParsePrefix(entry)
		if err != nil {
			return "", ErrInvalidIPAddress
		}
		if prefix.Addr().Is4In6() {
			bits := prefix.Bits() - 96
			if bits < 0 {
				return "", ErrInvalidIPAddress
			}
			prefix = netip.PrefixFrom(prefix.Addr().Unmap(), bits)
		}
		return prefix.Masked().String(), nil
	}

	addr, err := parseAddr(entry)
	if err != nil {
		return "", ErrInvalidIPAddress
	}
	return addr.String(), nil
}

// parseAddr accepts a bare address or address:port and strips zones and
// IPv4 mapping
func parseAddr(s string) (netip.Addr, error) {
	s = strings.TrimSpace(s)
	addr, err := netip.ParseAddr(s)
	if err != nil {
		ap, perr := netip.ParseAddrPort(s)
		if perr != nil {
			return netip.Addr{}, err
		}
		addr = ap.Addr()
	}
	return addr.WithZone("").Unmap(), nil
}

func ipAllowed(allowed []string, remote string) bool {
	if strings.TrimSpace(remote) == "" {
		return false
	}
	addr, err := parseAddr(remote)
	if err != nil {
		return false
	}

	for _, entry := range allowed {
		if strings.Contains(entry, "/") {
			prefix, err := netip.ParsePrefix(strings.TrimSpace(entry))
			if err == nil && prefix.Contains(addr) {
				return true
			}
			continue
		}
		if a, err := parseAddr(entry); err == nil && a == addr {
			return true
		}
	}
	return false
}
