package sqlite

import (
	"database/sql"
	"fmt"
)

type migration struct {
	version int
	name    string
	sql     string
}

// migrations is append-only. Applied versions are recorded in schema_migrations
// and skipped on later starts.
var migrations = []migration{
	{1, "create_watches_table", createWatchesTable},
	{2, "create_sync_history_table", createSyncHistoryTable},
	{3, "create_metadata_table", createMetadataTable},
	{4, "create_indices", createIndices},
	{5, "create_leases_table", createLeasesTable},
}

// applyMigrations applies all database migrations in order.
func applyMigrations(db *sql.DB) error {
	if err := createMigrationsTable(db); err != nil {
		return fmt.Errorf("could not create migrations table: %w", err)
	}

	for _, m := range migrations {
		applied, err := isMigrationApplied(db, m.version)
		if err != nil {
			return fmt.Errorf("could not check migration %d: %w", m.version, err)
		}
		if applied {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("could not begin migration %d: %w", m.version, err)
		}
		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("could not apply migration %d (%s): %w", m.version, m.name, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (version, name) VALUES (?, ?)", m.version, m.name); err != nil {
			tx.Rollback()
			return fmt.Errorf("could not record migration %d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("could not commit migration %d: %w", m.version, err)
		}
	}

	return nil
}

func createMigrationsTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	return err
}

func isMigrationApplied(db *sql.DB, version int) (bool, error) {
	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE version = ?", version).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func currentVersion(db *sql.DB) (int, error) {
	var version sql.NullInt64
	if err := db.QueryRow("SELECT MAX(version) FROM schema_migrations").Scan(&version); err != nil {
		return 0, err
	}
	return int(version.Int64), nil
}

const createWatchesTable = `
CREATE TABLE watches (
	profile_id TEXT NOT NULL,
	file_id TEXT NOT NULL,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (profile_id, file_id)
);
`

// synced_at holds fixed-width UTC text so that string order equals time order.
const createSyncHistoryTable = `
CREATE TABLE sync_history (
	profile_id TEXT NOT NULL,
	file_id TEXT NOT NULL,
	synced_at TEXT NOT NULL,
	PRIMARY KEY (profile_id, file_id)
);
`

const createMetadataTable = `
CREATE TABLE metadata (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
`

const createIndices = `
CREATE INDEX IF NOT EXISTS idx_watches_profile ON watches(profile_id);
CREATE INDEX IF NOT EXISTS idx_sync_history_profile ON sync_history(profile_id);
`

// expires_at uses the same fixed-width UTC text as synced_at.
const createLeasesTable = `
CREATE TABLE leases (
	name TEXT PRIMARY KEY,
	holder TEXT NOT NULL,
	expires_at TEXT NOT NULL
);
`
