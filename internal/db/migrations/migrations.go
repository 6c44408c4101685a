package migrations

import (
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
)

// Migration represents a single schema change
type Migration struct {
	Version     int
	Description string
	Up          func(*sql.Tx) error
}

// MigrationRecord represents a migration that has been applied
type MigrationRecord struct {
	Version     int
	Description string
	AppliedAt   time.Time
}

// MigrationManager applies pending migrations in version order
type MigrationManager struct {
	db         *sql.DB
	migrations []Migration
	logger     *logrus.Logger
}

// NewMigrationManager creates a new migration manager
func NewMigrationManager(db *sql.DB, logger *logrus.Logger) *MigrationManager {
	if logger == nil {
		logger = logrus.New()
	}

	all := getAllMigrations()
	sort.Slice(all, func(i, j int) bool {
		return all[i].Version < all[j].Version
	})

	return &MigrationManager{
		db:         db,
		migrations: all,
		logger:     logger,
	}
}

// Initialize creates the schema_version table if it doesn't exist
func (m *MigrationManager) Initialize() error {
	_, err := m.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}
	return nil
}

// GetCurrentVersion returns the current database schema version
func (m *MigrationManager) GetCurrentVersion() (int, error) {
	var version int
	err := m.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to get current version: %w", err)
	}
	return version, nil
}

// GetTargetVersion returns the highest migration version available
func (m *MigrationManager) GetTargetVersion() int {
	if len(m.migrations) == 0 {
		return 0
	}
	return m.migrations[len(m.migrations)-1].Version
}

// Migrate runs all pending migrations
func (m *MigrationManager) Migrate() error {
	if err := m.Initialize(); err != nil {
		return err
	}

	current, err := m.GetCurrentVersion()
	if err != nil {
		return err
	}
	target := m.GetTargetVersion()

	if current == target {
		m.logger.WithField("version", current).Debug("Database schema is up to date")
		return nil
	}
	if current > target {
		return fmt.Errorf("database schema version (%d) is newer than this binary supports (%d)", current, target)
	}

	m.logger.WithFields(logrus.Fields{
		"from": current,
		"to":   target,
	}).Info("Migrating database schema")

	for _, migration := range m.migrations {
		if migration.Version <= current {
			continue
		}
		if err := m.runMigration(migration); err != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", migration.Version, migration.Description, err)
		}
		m.logger.WithFields(logrus.Fields{
			"version":     migration.Version,
			"description": migration.Description,
		}).Info("Applied migration")
	}

	return nil
}

// runMigration executes a single migration within a transaction
func (m *MigrationManager) runMigration(migration Migration) (err error) {
	tx, err := m.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if err = migration.Up(tx); err != nil {
		return err
	}

	_, err = tx.Exec(
		"INSERT INTO schema_version (version, description, applied_at) VALUES (?, ?, ?)",
		migration.Version,
		migration.Description,
		time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}

	return tx.Commit()
}

// GetMigrationHistory returns the list of applied migrations
func (m *MigrationManager) GetMigrationHistory() ([]MigrationRecord, error) {
	rows, err := m.db.Query(`SELECT version, description, applied_at FROM schema_version ORDER BY version ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query migration history: %w", err)
	}
	defer rows.Close()

	var history []MigrationRecord
	for rows.Next() {
		var record MigrationRecord
		var appliedAt int64
		if err := rows.Scan(&record.Version, &record.Description, &appliedAt); err != nil {
			return nil, fmt.Errorf("failed to scan migration record: %w", err)
		}
		record.AppliedAt = time.Unix(appliedAt, 0)
		history = append(history, record)
	}

	return history, rows.Err()
}
