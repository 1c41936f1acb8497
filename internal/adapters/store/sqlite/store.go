package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jbctechsolutions/docsync/internal/application/ports"
	domainErrors "github.com/jbctechsolutions/docsync/internal/domain/errors"
)

// timeLayout is fixed width so stored values compare correctly as strings.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

var (
	_ ports.StateStore    = (*Store)(nil)
	_ ports.StateImporter = (*Store)(nil)
	_ ports.LeaseStore    = (*Store)(nil)
)

// Store implements StateStore and StateImporter on SQLite.
type Store struct {
	conn *Connection
}

// NewStore opens (and migrates) the database at dbPath.
func NewStore(dbPath string) (*Store, error) {
	conn, err := NewConnection(dbPath)
	if err != nil {
		return nil, err
	}

	if err := conn.Open(); err != nil {
		return nil, err
	}

	return &Store{conn: conn}, nil
}

// Connection returns the underlying connection.
func (s *Store) Connection() *Connection {
	return s.conn
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// ToggleWatch flips membership of fileID in the profile's watch set.
func (s *Store) ToggleWatch(ctx context.Context, profileID, fileID string) (bool, error) {
	if err := validateKeys(profileID, fileID); err != nil {
		return false, err
	}

	db, err := s.conn.DB()
	if err != nil {
		return false, err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("could not begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, "DELETE FROM watches WHERE profile_id = ? AND file_id = ?", profileID, fileID)
	if err != nil {
		return false, fmt.Errorf("could not toggle watch: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("could not toggle watch: %w", err)
	}

	watched := removed == 0
	if watched {
		if _, err := tx.ExecContext(ctx, "INSERT INTO watches (profile_id, file_id) VALUES (?, ?)", profileID, fileID); err != nil {
			return false, fmt.Errorf("could not toggle watch: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("could not commit watch toggle: %w", err)
	}
	return watched, nil
}

// SetWatched sets membership explicitly.
func (s *Store) SetWatched(ctx context.Context, profileID, fileID string, watched bool) error {
	if err := validateKeys(profileID, fileID); err != nil {
		return err
	}

	db, err := s.conn.DB()
	if err != nil {
		return err
	}

	if watched {
		_, err = db.ExecContext(ctx, "INSERT OR IGNORE INTO watches (profile_id, file_id) VALUES (?, ?)", profileID, fileID)
	} else {
		_, err = db.ExecContext(ctx, "DELETE FROM watches WHERE profile_id = ? AND file_id = ?", profileID, fileID)
	}
	if err != nil {
		return fmt.Errorf("could not set watch: %w", err)
	}
	return nil
}

// IsWatched reports whether fileID is watched by the profile.
func (s *Store) IsWatched(ctx context.Context, profileID, fileID string) (bool, error) {
	db, err := s.conn.DB()
	if err != nil {
		return false, err
	}

	var count int
	err = db.QueryRowContext(ctx, "SELECT COUNT(*) FROM watches WHERE profile_id = ? AND file_id = ?", profileID, fileID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("could not read watch: %w", err)
	}
	return count > 0, nil
}

// Watched returns the profile's watch set.
func (s *Store) Watched(ctx context.Context, profileID string) (map[string]struct{}, error) {
	db, err := s.conn.DB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, "SELECT file_id FROM watches WHERE profile_id = ?", profileID)
	if err != nil {
		return nil, fmt.Errorf("could not list watches: %w", err)
	}
	defer rows.Close()

	watched := make(map[string]struct{})
	for rows.Next() {
		var fileID string
		if err := rows.Scan(&fileID); err != nil {
			return nil, fmt.Errorf("could not scan watch: %w", err)
		}
		watched[fileID] = struct{}{}
	}
	return watched, rows.Err()
}

// RecordSync upserts the last push time of fileID. A single statement keeps
// concurrent calls for sibling files from losing each other's updates.
func (s *Store) RecordSync(ctx context.Context, profileID, fileID string, at time.Time) error {
	if err := validateKeys(profileID, fileID); err != nil {
		return err
	}

	db, err := s.conn.DB()
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO sync_history (profile_id, file_id, synced_at)
		VALUES (?, ?, ?)
		ON CONFLICT(profile_id, file_id) DO UPDATE SET synced_at = excluded.synced_at
	`, profileID, fileID, formatTime(at))
	if err != nil {
		return fmt.Errorf("could not record sync: %w", err)
	}
	return nil
}

// History returns the profile's last push times.
func (s *Store) History(ctx context.Context, profileID string) (map[string]time.Time, error) {
	db, err := s.conn.DB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, "SELECT file_id, synced_at FROM sync_history WHERE profile_id = ?", profileID)
	if err != nil {
		return nil, fmt.Errorf("could not list history: %w", err)
	}
	defer rows.Close()

	history := make(map[string]time.Time)
	for rows.Next() {
		var fileID, raw string
		if err := rows.Scan(&fileID, &raw); err != nil {
			return nil, fmt.Errorf("could not scan history: %w", err)
		}
		at, err := time.Parse(timeLayout, raw)
		if err != nil {
			return nil, fmt.Errorf("invalid sync time for %s: %w", fileID, err)
		}
		history[fileID] = at
	}
	return history, rows.Err()
}

// PruneHistory removes entries of the profile whose file id is not in keep.
func (s *Store) PruneHistory(ctx context.Context, profileID string, keep map[string]struct{}) (int, error) {
	history, err := s.History(ctx, profileID)
	if err != nil {
		return 0, err
	}

	db, err := s.conn.DB()
	if err != nil {
		return 0, err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("could not begin transaction: %w", err)
	}
	defer tx.Rollback()

	removed := 0
	for fileID := range history {
		if _, ok := keep[fileID]; ok {
			continue
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM sync_history WHERE profile_id = ? AND file_id = ?", profileID, fileID); err != nil {
			return 0, fmt.Errorf("could not prune history: %w", err)
		}
		removed++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("could not commit prune: %w", err)
	}
	return removed, nil
}

// MergeWatched adds fileIDs to the profile's watch set and returns how many were new.
func (s *Store) MergeWatched(ctx context.Context, profileID string, fileIDs []string) (int, error) {
	db, err := s.conn.DB()
	if err != nil {
		return 0, err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("could not begin transaction: %w", err)
	}
	defer tx.Rollback()

	added := 0
	for _, fileID := range fileIDs {
		if err := validateKeys(profileID, fileID); err != nil {
			return 0, err
		}
		res, err := tx.ExecContext(ctx, "INSERT OR IGNORE INTO watches (profile_id, file_id) VALUES (?, ?)", profileID, fileID)
		if err != nil {
			return 0, fmt.Errorf("could not merge watch %s: %w", fileID, err)
		}
		n, _ := res.RowsAffected()
		added += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("could not commit watch merge: %w", err)
	}
	return added, nil
}

// MergeHistory keeps the later of the stored and supplied time per file and
// returns how many entries changed.
func (s *Store) MergeHistory(ctx context.Context, profileID string, history map[string]time.Time) (int, error) {
	db, err := s.conn.DB()
	if err != nil {
		return 0, err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("could not begin transaction: %w", err)
	}
	defer tx.Rollback()

	changed := 0
	for fileID, at := range history {
		if err := validateKeys(profileID, fileID); err != nil {
			return 0, err
		}
		res, err := tx.ExecContext(ctx, `
			INSERT INTO sync_history (profile_id, file_id, synced_at)
			VALUES (?, ?, ?)
			ON CONFLICT(profile_id, file_id) DO UPDATE SET synced_at = excluded.synced_at
			WHERE excluded.synced_at > sync_history.synced_at
		`, profileID, fileID, formatTime(at))
		if err != nil {
			return 0, fmt.Errorf("could not merge history %s: %w", fileID, err)
		}
		n, _ := res.RowsAffected()
		changed += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("could not commit history merge: %w", err)
	}
	return changed, nil
}

// Marker reads a metadata value.
func (s *Store) Marker(ctx context.Context, key string) (string, bool, error) {
	db, err := s.conn.DB()
	if err != nil {
		return "", false, err
	}

	var value string
	err = db.QueryRowContext(ctx, "SELECT value FROM metadata WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("could not read marker %s: %w", key, err)
	}
	return value, true, nil
}

// SetMarker writes a metadata value.
func (s *Store) SetMarker(ctx context.Context, key, value string) error {
	db, err := s.conn.DB()
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO metadata (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`, key, value)
	if err != nil {
		return fmt.Errorf("could not write marker %s: %w", key, err)
	}
	return nil
}

// AcquireLease takes name for holder when it is free, expired or already
// holder's. The conditional upsert and the read back share one transaction.
func (s *Store) AcquireLease(ctx context.Context, name, holder string, ttl time.Duration) (string, bool, error) {
	db, err := s.conn.DB()
	if err != nil {
		return "", false, err
	}

	now := time.Now()
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return "", false, fmt.Errorf("could not begin lease %s: %w", name, err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO leases (name, holder, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET holder = excluded.holder, expires_at = excluded.expires_at
		WHERE leases.holder = excluded.holder OR leases.expires_at <= ?
	`, name, holder, formatTime(now.Add(ttl)), formatTime(now))
	if err != nil {
		return "", false, fmt.Errorf("could not take lease %s: %w", name, err)
	}

	var current string
	if err := tx.QueryRowContext(ctx, "SELECT holder FROM leases WHERE name = ?", name).Scan(&current); err != nil {
		return "", false, fmt.Errorf("could not read lease %s: %w", name, err)
	}
	if err := tx.Commit(); err != nil {
		return "", false, fmt.Errorf("could not commit lease %s: %w", name, err)
	}
	return current, current == holder, nil
}

// ReleaseLease deletes name when holder owns it.
func (s *Store) ReleaseLease(ctx context.Context, name, holder string) error {
	db, err := s.conn.DB()
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, "DELETE FROM leases WHERE name = ? AND holder = ?", name, holder); err != nil {
		return fmt.Errorf("could not release lease %s: %w", name, err)
	}
	return nil
}

func validateKeys(profileID, fileID string) error {
	if profileID == "" {
		return domainErrors.NewError(domainErrors.CodeValidation, "profile ID is required", domainErrors.ErrProfileIDRequired)
	}
	if fileID == "" {
		return domainErrors.NewError(domainErrors.CodeValidation, "file ID is required", domainErrors.ErrFileIDRequired)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}
