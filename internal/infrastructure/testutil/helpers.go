// Package testutil provides test helpers and in-memory fakes of the docsync ports.
package testutil

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// envDriveToken mirrors drive.EnvToken; importing the adapter here would cycle.
const envDriveToken = "DOCSYNC_DRIVE_TOKEN"

// IsolateHome points HOME at a fresh temp dir and clears the Drive token
// override, so default paths (~/.docsync/...) never touch the real home.
func IsolateHome(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv(envDriveToken, "")
	return dir
}

// WriteLegacyState writes a legacy state document into dir and returns its path.
func WriteLegacyState(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "legacy.json")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write legacy state %s: %v", path, err)
	}
	return path
}

// Time parses an RFC 3339 timestamp or fails the test.
func Time(t *testing.T, value string) time.Time {
	t.Helper()
	at, err := time.Parse(time.RFC3339, value)
	if err != nil {
		t.Fatalf("bad timestamp %q: %v", value, err)
	}
	return at
}

// AssertErrorIs fails the test unless errors.Is(err, target).
func AssertErrorIs(t *testing.T, err, target error) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Fatalf("error = %v, want %v", err, target)
	}
}
