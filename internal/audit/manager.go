package audit

import (
	"context"
	"time"

	"github.com/sharegate/sharegate/internal/clock"
	"github.com/sirupsen/logrus"
)

// Manager is the access log used by the share engine. Events are appended and
// counted, never updated or deleted.
type Manager struct {
	store  Store
	clock  clock.Clock
	logger *logrus.Logger
}

// NewManager creates a new access log manager
func NewManager(store Store, logger *logrus.Logger) *Manager {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Manager{
		store:  store,
		clock:  clock.Real(),
		logger: logger,
	}
}

// SetClock sets the clock used for default event times and ComputedAt
func (m *Manager) SetClock(clk clock.Clock) {
	if clk != nil {
		m.clock = clk
	}
}

// AddAccessEvent records an access attempt. Unlike administrative audit
// logging, a failed insert is returned to the caller.
func (m *Manager) AddAccessEvent(ctx context.Context, event *AccessEvent) error {
	if event == nil || event.ShareID == "" {
		return ErrShareIDRequired
	}
	if !event.Action.Valid() {
		return ErrInvalidAction
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = m.clock.Now()
	}

	if err := m.store.InsertEvent(ctx, event); err != nil {
		m.logger.WithError(err).WithFields(logrus.Fields{
			"share_id": event.ShareID,
			"action":   event.Action,
			"ok":       event.OK,
		}).Error("Failed to record share access event")
		return err
	}

	m.logger.WithFields(logrus.Fields{
		"share_id":  event.ShareID,
		"action":    event.Action,
		"ok":        event.OK,
		"remote_ip": event.RemoteIP,
	}).Debug("Share access event recorded")

	return nil
}

// CountSuccessfulViews counts ok=true view events for a share
func (m *Manager) CountSuccessfulViews(ctx context.Context, shareID string) (int64, error) {
	return m.store.CountEvents(ctx, shareID, ActionView, true)
}

// CountSuccessfulDownloads counts ok=true download events for a share
func (m *Manager) CountSuccessfulDownloads(ctx context.Context, shareID string) (int64, error) {
	return m.store.CountEvents(ctx, shareID, ActionDownload, true)
}

// GetStatistics aggregates a share's events at read time
func (m *Manager) GetStatistics(ctx context.Context, shareID string) (*Statistics, error) {
	if shareID == "" {
		return nil, ErrShareIDRequired
	}

	stats, err := m.store.Aggregate(ctx, shareID)
	if err != nil {
		m.logger.WithError(err).WithField("share_id", shareID).Error("Failed to aggregate share statistics")
		return nil, err
	}
	stats.ComputedAt = m.clock.Now()
	return stats, nil
}

// ListEvents retrieves a page of events for one share
func (m *Manager) ListEvents(ctx context.Context, filters *EventFilters) ([]*AccessEvent, int, error) {
	if filters == nil || filters.ShareID == "" {
		return nil, 0, ErrShareIDRequired
	}

	if filters.Page <= 0 {
		filters.Page = 1
	}
	if filters.PageSize <= 0 {
		filters.PageSize = 50
	}
	if filters.PageSize > 100 {
		filters.PageSize = 100
	}

	events, total, err := m.store.ListEvents(ctx, filters)
	if err != nil {
		m.logger.WithError(err).WithField("share_id", filters.ShareID).Error("Failed to list share access events")
		return nil, 0, err
	}
	return events, total, nil
}

// ActiveShareIDs lists shares with any event at or after since
func (m *Manager) ActiveShareIDs(ctx context.Context, since time.Time) ([]string, error) {
	return m.store.ShareIDsWithActivitySince(ctx, since)
}
