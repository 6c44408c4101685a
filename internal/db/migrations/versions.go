package migrations

import (
	"database/sql"
)

func getAllMigrations() []Migration {
	return []Migration{
		migration1ShareLinks(),
		migration2AccessEvents(),
		migration3DocumentVersions(),
	}
}

func execAll(tx *sql.Tx, statements ...string) error {
	for _, stmt := range statements {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func migration1ShareLinks() Migration {
	return Migration{
		Version:     1,
		Description: "Create share_links table",
		Up: func(tx *sql.Tx) error {
			return execAll(tx,
				`CREATE TABLE IF NOT EXISTS share_links (
					id TEXT PRIMARY KEY,
					code TEXT NOT NULL UNIQUE,
					owner_user_id TEXT NOT NULL,
					document_id TEXT NOT NULL,
					version_id TEXT,
					subject_type TEXT NOT NULL,
					subject_id TEXT,
					permissions INTEGER NOT NULL DEFAULT 1,
					valid_from INTEGER NOT NULL,
					valid_to INTEGER,
					max_views INTEGER,
					max_downloads INTEGER,
					password_hash TEXT,
					allowed_ips TEXT NOT NULL DEFAULT '[]',
					file_name TEXT NOT NULL DEFAULT '',
					file_extension TEXT NOT NULL DEFAULT '',
					file_content_type TEXT NOT NULL DEFAULT '',
					file_size_bytes INTEGER NOT NULL DEFAULT 0,
					file_created_at INTEGER,
					watermark TEXT,
					created_at INTEGER NOT NULL,
					revoked_at INTEGER
				)`,
				`CREATE INDEX IF NOT EXISTS idx_share_links_owner ON share_links(owner_user_id)`,
				`CREATE INDEX IF NOT EXISTS idx_share_links_document ON share_links(document_id)`,
			)
		},
	}
}

func migration2AccessEvents() Migration {
	return Migration{
		Version:     2,
		Description: "Create share_access_events table",
		Up: func(tx *sql.Tx) error {
			return execAll(tx,
				`CREATE TABLE IF NOT EXISTS share_access_events (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					share_id TEXT NOT NULL,
					occurred_at INTEGER NOT NULL,
					action TEXT NOT NULL,
					ok INTEGER NOT NULL,
					remote_ip TEXT,
					user_agent TEXT
				)`,
				`CREATE INDEX IF NOT EXISTS idx_share_access_events_counts ON share_access_events(share_id, action, ok)`,
				`CREATE INDEX IF NOT EXISTS idx_share_access_events_occurred ON share_access_events(occurred_at)`,
			)
		},
	}
}

func migration3DocumentVersions() Migration {
	return Migration{
		Version:     3,
		Description: "Create document_versions read model",
		Up: func(tx *sql.Tx) error {
			return execAll(tx,
				`CREATE TABLE IF NOT EXISTS document_versions (
					id TEXT PRIMARY KEY,
					document_id TEXT NOT NULL,
					storage_key TEXT NOT NULL,
					file_name TEXT NOT NULL DEFAULT '',
					content_type TEXT NOT NULL DEFAULT '',
					size_bytes INTEGER NOT NULL DEFAULT 0,
					created_at INTEGER NOT NULL
				)`,
				`CREATE INDEX IF NOT EXISTS idx_document_versions_document ON document_versions(document_id)`,
			)
		},
	}
}
