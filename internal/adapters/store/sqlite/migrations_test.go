package sqlite

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("sql.Open() error = %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func countMigrations(t *testing.T, db *sql.DB) int {
	t.Helper()
	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
		t.Fatalf("QueryRow() error = %v", err)
	}
	return count
}

func TestApplyMigrations(t *testing.T) {
	db := openTestDB(t)

	if err := applyMigrations(db); err != nil {
		t.Fatalf("applyMigrations() error = %v", err)
	}

	if count := countMigrations(t, db); count != len(migrations) {
		t.Errorf("migrations count = %d, want %d", count, len(migrations))
	}

	for _, table := range []string{"watches", "sync_history", "metadata", "leases"} {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %s missing: %v", table, err)
		}
	}
}

func TestApplyMigrations_Idempotent(t *testing.T) {
	db := openTestDB(t)

	if err := applyMigrations(db); err != nil {
		t.Fatalf("first applyMigrations() error = %v", err)
	}
	if _, err := db.Exec("INSERT INTO watches (profile_id, file_id) VALUES ('p', 'f')"); err != nil {
		t.Fatalf("INSERT watches error = %v", err)
	}
	if err := applyMigrations(db); err != nil {
		t.Fatalf("second applyMigrations() error = %v", err)
	}

	if count := countMigrations(t, db); count != len(migrations) {
		t.Errorf("migrations count = %d after idempotent run, want %d", count, len(migrations))
	}

	var rows int
	if err := db.QueryRow("SELECT COUNT(*) FROM watches").Scan(&rows); err != nil {
		t.Fatalf("QueryRow() error = %v", err)
	}
	if rows != 1 {
		t.Errorf("watches rows = %d after rerun, want 1", rows)
	}
}

func TestApplyMigrations_PartialSchema(t *testing.T) {
	db := openTestDB(t)

	// A database created by an older build that stopped at version 2.
	if err := createMigrationsTable(db); err != nil {
		t.Fatalf("createMigrationsTable() error = %v", err)
	}
	for _, m := range migrations[:2] {
		if _, err := db.Exec(m.sql); err != nil {
			t.Fatalf("Exec(%s) error = %v", m.name, err)
		}
		if _, err := db.Exec("INSERT INTO schema_migrations (version, name) VALUES (?, ?)", m.version, m.name); err != nil {
			t.Fatalf("record %s error = %v", m.name, err)
		}
	}

	if err := applyMigrations(db); err != nil {
		t.Fatalf("applyMigrations() error = %v", err)
	}

	version, err := currentVersion(db)
	if err != nil {
		t.Fatalf("currentVersion() error = %v", err)
	}
	if version != len(migrations) {
		t.Errorf("currentVersion() = %d, want %d", version, len(migrations))
	}
}

func TestHistoryPrimaryKey(t *testing.T) {
	db := openTestDB(t)
	if err := applyMigrations(db); err != nil {
		t.Fatalf("applyMigrations() error = %v", err)
	}

	insert := "INSERT INTO sync_history (profile_id, file_id, synced_at) VALUES ('p', 'f', '2024-01-01T00:00:00.000000000Z')"
	if _, err := db.Exec(insert); err != nil {
		t.Fatalf("first insert error = %v", err)
	}
	if _, err := db.Exec(insert); err == nil {
		t.Error("duplicate (profile_id, file_id) should violate the primary key")
	}
}
