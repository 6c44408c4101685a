package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sharegate/sharegate/internal/audit"
	"github.com/sharegate/sharegate/internal/auth"
	"github.com/sharegate/sharegate/internal/catalog"
	"github.com/sharegate/sharegate/internal/clock"
	"github.com/sharegate/sharegate/internal/codegen"
	"github.com/sharegate/sharegate/internal/config"
	"github.com/sharegate/sharegate/internal/db"
	"github.com/sharegate/sharegate/internal/metrics"
	"github.com/sharegate/sharegate/internal/presigned"
	"github.com/sharegate/sharegate/internal/share"
	"github.com/sharegate/sharegate/internal/statscache"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
)

// app wires the share engine from configuration
type app struct {
	cfg     *config.Config
	logger  *logrus.Logger
	db      *sql.DB
	clock   clock.Clock
	metrics metrics.Manager

	shares    *share.SQLiteStore
	accessLog *audit.Manager
	catalog   *catalog.SQLiteCatalog
	evaluator *share.Evaluator
	access    *share.AccessService
	manager   *share.Manager
	tokens    *auth.TokenVerifier // nil without auth.jwt_secret

	statsCache *statscache.BadgerCache
}

// newApp loads configuration and opens the database. Metrics are recorded
// only when withMetrics is set.
func newApp(cmd *cobra.Command, withMetrics bool) (*app, error) {
	cfg, err := config.Load(cmd)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	setupLogging(cfg.LogLevel)
	logger := logrus.StandardLogger()
	mm := metrics.NewNoop()
	if withMetrics {
		mm = metrics.NewManager(cfg.Metrics)
	}

	conn, err := db.Open(cfg.DataDir, logger)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:       cfg,
		logger:    logger,
		db:        conn,
		clock:     clock.Real(),
		metrics:   mm,
		shares:    share.NewSQLiteStore(conn),
		accessLog: audit.NewManager(audit.NewSQLiteStore(conn, logger), logger),
		catalog:   catalog.NewSQLiteCatalog(conn),
	}

	var issuer share.LinkIssuer = unconfiguredStorage{}
	s3Issuer, err := presigned.NewS3Issuer(cfg.Storage, a.clock, logger)
	switch {
	case err == nil:
		issuer = s3Issuer
	case errors.Is(err, presigned.ErrBucketRequired):
		logger.Debug("No storage bucket configured, downloads are disabled")
	default:
		conn.Close()
		return nil, err
	}

	hasher := auth.NewBcryptHasher(bcrypt.DefaultCost)
	a.evaluator = share.NewEvaluator(a.shares, a.accessLog, hasher, a.clock, mm, logger)
	a.access = share.NewAccessService(a.evaluator, a.accessLog, a.catalog, issuer, cfg.Share.DownloadLinkTTL, mm, logger)
	a.manager = share.NewManager(a.shares, a.accessLog, hasher, a.clock, logger)
	a.manager.SetMetrics(mm)

	codes, err := codegen.NewGenerator(codegen.Options{
		MinLength:    cfg.Share.CodeMinLength,
		MaxLength:    cfg.Share.CodeMaxLength,
		AlphabetSeed: cfg.Share.CodeAlphabetSeed,
	}, a.shares, logger)
	if err != nil {
		conn.Close()
		return nil, err
	}
	a.manager.SetCodeProvider(codes)

	if cfg.Auth.JWTSecret != "" {
		a.tokens, err = auth.NewTokenVerifier(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer)
		if err != nil {
			conn.Close()
			return nil, err
		}
	}

	return a, nil
}

// openStatsCache attaches the badger statistics cache to the manager
func (a *app) openStatsCache() error {
	if !a.cfg.Stats.Enable {
		return nil
	}
	cache, err := statscache.NewBadgerCache(statscache.BadgerOptions{
		DataDir: a.cfg.DataDir,
		TTL:     a.cfg.Stats.MaxAge,
		Logger:  a.logger,
	})
	if err != nil {
		return err
	}
	a.statsCache = cache
	a.manager.SetStatsCache(cache, a.cfg.Stats.MaxAge)
	return nil
}

func (a *app) close() {
	if a.statsCache != nil {
		if err := a.statsCache.Close(); err != nil {
			a.logger.WithError(err).Warn("Failed to close statistics cache")
		}
	}
	if err := a.db.Close(); err != nil {
		a.logger.WithError(err).Warn("Failed to close database")
	}
}

// principal verifies a bearer token. No token means an anonymous caller.
func (a *app) principal(token string) (share.Principal, error) {
	if token == "" {
		return nil, nil
	}
	if a.tokens == nil {
		return nil, auth.ErrSecretRequired
	}
	identity, err := a.tokens.Verify(token)
	if err != nil {
		return nil, err
	}
	return identity, nil
}

// unconfiguredStorage rejects downloads when no bucket is configured
type unconfiguredStorage struct{}

func (unconfiguredStorage) GetDownloadLink(ctx context.Context, storageKey string, ttl time.Duration, fileName string) (*presigned.Link, error) {
	return nil, presigned.ErrBucketRequired
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
