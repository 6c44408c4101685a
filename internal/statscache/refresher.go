package statscache

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/sharegate/sharegate/internal/audit"
	"github.com/sharegate/sharegate/internal/clock"
	"github.com/sharegate/sharegate/internal/metrics"
	"github.com/sirupsen/logrus"
)

// Source computes statistics from the access log
type Source interface {
	ActiveShareIDs(ctx context.Context, since time.Time) ([]string, error)
	GetStatistics(ctx context.Context, shareID string) (*audit.Statistics, error)
}

// Sink receives refreshed statistics
type Sink interface {
	Put(ctx context.Context, stats *audit.Statistics) error
}

// watermarkOverlap re-scans events stamped shortly before the previous run
// started, since an event is stamped at evaluation and inserted afterwards.
const watermarkOverlap = 30 * time.Second

// Refresher recomputes statistics for recently accessed shares
type Refresher struct {
	source  Source
	sink    Sink
	clock   clock.Clock
	metrics metrics.Manager
	logger  *logrus.Logger
	cron    *cron.Cron

	mu      sync.Mutex
	lastRun time.Time // zero until the first successful run
}

// NewRefresher creates a refresher. Nil clock, metrics and logger get defaults.
func NewRefresher(source Source, sink Sink, clk clock.Clock, mm metrics.Manager, logger *logrus.Logger) *Refresher {
	if clk == nil {
		clk = clock.Real()
	}
	if mm == nil {
		mm = metrics.NewNoop()
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	r := &Refresher{
		source:  source,
		sink:    sink,
		clock:   clk,
		metrics: mm,
		logger:  logger,
	}
	r.cron = cron.New(
		cron.WithSeconds(),
		cron.WithChain(
			cron.DelayIfStillRunning(cron.DiscardLogger),
			recoverWrapper(logger),
			loggingWrapper(logger),
		),
	)
	return r
}

// Start schedules RunOnce with a six-field cron expression and starts the scheduler
func (r *Refresher) Start(schedule string) error {
	if _, err := r.cron.AddJob(schedule, &refreshJob{r: r}); err != nil {
		return fmt.Errorf("invalid refresh schedule %q: %w", schedule, err)
	}
	r.cron.Start()
	r.logger.WithField("schedule", schedule).Info("Statistics refresher started")
	return nil
}

// Stop stops the scheduler and waits for a running refresh or ctx
func (r *Refresher) Stop(ctx context.Context) {
	done := r.cron.Stop().Done()
	select {
	case <-done:
	case <-ctx.Done():
		r.logger.Warn("Statistics refresher did not stop in time")
	}
}

// RunOnce refreshes every share with access events since the last
// successful run and returns how many were refreshed. The watermark only
// advances when every share succeeds.
func (r *Refresher) RunOnce(ctx context.Context) (int, error) {
	start := r.clock.Now()
	began := time.Now()

	r.mu.Lock()
	since := r.lastRun
	r.mu.Unlock()
	if !since.IsZero() {
		since = since.Add(-watermarkOverlap)
	}

	ids, err := r.source.ActiveShareIDs(ctx, since)
	if err != nil {
		r.metrics.RecordStatsRefresh(0, time.Since(began), false)
		return 0, fmt.Errorf("failed to list active shares: %w", err)
	}

	var errs []error
	refreshed := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		stats, err := r.source.GetStatistics(ctx, id)
		if err == nil {
			err = r.sink.Put(ctx, stats)
		}
		if err != nil {
			r.logger.WithError(err).WithField("share_id", id).Error("Failed to refresh share statistics")
			errs = append(errs, fmt.Errorf("share %s: %w", id, err))
			continue
		}
		refreshed++
	}

	ok := len(errs) == 0
	r.metrics.RecordStatsRefresh(refreshed, time.Since(began), ok)
	if !ok {
		return refreshed, errors.Join(errs...)
	}

	r.mu.Lock()
	r.lastRun = start
	r.mu.Unlock()

	r.logger.WithFields(logrus.Fields{
		"shares": refreshed,
		"since":  since,
	}).Debug("Statistics refreshed")
	return refreshed, nil
}

type refreshJob struct {
	r *Refresher
}

func (j *refreshJob) Name() string { return "refresh_share_statistics" }

func (j *refreshJob) Run() {
	// errors are logged per share inside RunOnce
	_, _ = j.r.RunOnce(context.Background())
}

func jobName(j cron.Job) string {
	if named, ok := j.(interface{ Name() string }); ok {
		return named.Name()
	}
	return fmt.Sprintf("%T", j)
}

// loggingWrapper logs each execution with a unique id and its duration
func loggingWrapper(logger *logrus.Logger) cron.JobWrapper {
	return func(j cron.Job) cron.Job {
		return cron.FuncJob(func() {
			entry := logger.WithFields(logrus.Fields{
				"job_name":     jobName(j),
				"execution_id": uuid.NewString(),
			})

			start := time.Now()
			entry.Debug("Job execution started")
			j.Run()
			entry.WithField("duration", time.Since(start)).Debug("Job execution finished")
		})
	}
}

// recoverWrapper keeps a panicking job from killing the scheduler
func recoverWrapper(logger *logrus.Logger) cron.JobWrapper {
	return func(j cron.Job) cron.Job {
		return cron.FuncJob(func() {
			defer func() {
				if rec := recover(); rec != nil {
					logger.WithFields(logrus.Fields{
						"panic":       rec,
						"stack_trace": string(debug.Stack()),
					}).Error("Job panicked")
				}
			}()
			j.Run()
		})
	}
}
