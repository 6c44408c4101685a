package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sharegate/sharegate/internal/db/migrations"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

// FileName is the SQLite database file created under <data_dir>/db.
const FileName = "sharegate.db"

// Open opens the unified SQLite database under dataDir and brings its schema
// up to date.
func Open(dataDir string, logger *logrus.Logger) (*sql.DB, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	dbDir := filepath.Join(dataDir, "db")
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}

	dbPath := filepath.Join(dbDir, FileName)
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := migrations.NewMigrationManager(db, logger).Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run database migrations: %w", err)
	}

	logger.WithField("db_path", dbPath).Info("SQLite store initialized")
	return db, nil
}
