package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/cobra"

	"github.com/jbctechsolutions/docsync/internal/adapters/store/sqlite"
	"github.com/jbctechsolutions/docsync/internal/application/ports"
	"github.com/jbctechsolutions/docsync/internal/application/reconcile"
	"github.com/jbctechsolutions/docsync/internal/infrastructure/config"
	"github.com/jbctechsolutions/docsync/internal/infrastructure/testutil"
	"github.com/jbctechsolutions/docsync/internal/presentation/cli/output"
)

// executeCommand executes a cobra command with the given args.
func executeCommand(root *cobra.Command, args ...string) error {
	_, err := executeCommandOutput(root, args...)
	return err
}

// executeCommandOutput executes a cobra command and returns what it printed.
// The app context is released afterwards so the next run opens the store again.
func executeCommandOutput(root *cobra.Command, args ...string) (string, error) {
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.Execute()
	Shutdown()
	return buf.String(), err
}

// newTestHome isolates HOME and returns a config path inside it.
func newTestHome(t *testing.T) string {
	t.Helper()
	tmpDir := testutil.IsolateHome(t)
	t.Cleanup(Shutdown)
	return filepath.Join(tmpDir, "config.yaml")
}

func TestNewRootCmd(t *testing.T) {
	cmd := NewRootCmd()

	if cmd == nil {
		t.Fatal("NewRootCmd returned nil")
	}

	if cmd.Use != "docsync" {
		t.Errorf("expected Use='docsync', got %q", cmd.Use)
	}

	wantSubcmds := []string{"version", "status", "files", "watch", "sync", "daemon", "profile", "auth", "migrate", "history"}
	subcmds := make(map[string]bool)
	for _, sub := range cmd.Commands() {
		subcmds[sub.Name()] = true
	}

	for _, want := range wantSubcmds {
		if !subcmds[want] {
			t.Errorf("missing subcommand: %s", want)
		}
	}

	wantFlags := []string{"config", "output", "verbose"}
	for _, flag := range wantFlags {
		if cmd.PersistentFlags().Lookup(flag) == nil {
			t.Errorf("missing persistent flag: %s", flag)
		}
	}
}

func TestVersionCmd_NoError(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr bool
	}{
		{"basic", []string{"version"}, false},
		{"short", []string{"version", "--short"}, false},
		{"json", []string{"version", "-o", "json"}, false},
		{"bad format", []string{"version", "-o", "yaml"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := NewRootCmd()
			err := executeCommand(cmd, tt.args...)
			if (err != nil) != tt.wantErr {
				t.Errorf("error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestVersionCmd_JSONOutput(t *testing.T) {
	out, err := executeCommandOutput(NewRootCmd(), "version", "-o", "json")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if got["version"] != Version {
		t.Errorf("version = %v, want %s", got["version"], Version)
	}
}

func TestSyncCmd_Validation(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"neither", []string{"sync"}, "requires a file id or --all"},
		{"both", []string{"sync", "1AbC", "--all"}, "not both"},
		{"match without all", []string{"sync", "1AbC", "--match", "*.pdf"}, "--match only applies with --all"},
		{"two ids", []string{"sync", "1AbC", "2DeF"}, "requires a file id or --all"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := newTestHome(t)
			args := append(tt.args, "-c", configPath)
			err := executeCommand(NewRootCmd(), args...)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestWatchCmd(t *testing.T) {
	configPath := newTestHome(t)

	t.Run("on and off rejected", func(t *testing.T) {
		err := executeCommand(NewRootCmd(), "watch", "1AbC", "--on", "--off", "-c", configPath)
		if err == nil || !strings.Contains(err.Error(), "mutually exclusive") {
			t.Errorf("error = %v, want mutually exclusive", err)
		}
	})

	t.Run("requires a file id", func(t *testing.T) {
		if err := executeCommand(NewRootCmd(), "watch", "-c", configPath); err == nil {
			t.Error("expected error without file ids")
		}
	})

	steps := []struct {
		name string
		args []string
		want []WatchChange
	}{
		{
			name: "toggle on",
			args: []string{"watch", "1AbC", "2DeF"},
			want: []WatchChange{
				{FileID: "1AbC", ProfileID: "default-trade", Watched: true},
				{FileID: "2DeF", ProfileID: "default-trade", Watched: true},
			},
		},
		{
			name: "toggle off",
			args: []string{"watch", "1AbC"},
			want: []WatchChange{{FileID: "1AbC", ProfileID: "default-trade", Watched: false}},
		},
		{
			name: "explicit on is idempotent",
			args: []string{"watch", "2DeF", "--on"},
			want: []WatchChange{{FileID: "2DeF", ProfileID: "default-trade", Watched: true}},
		},
	}

	for _, step := range steps {
		t.Run(step.name, func(t *testing.T) {
			args := append(step.args, "-c", configPath, "-o", "json")
			out, err := executeCommandOutput(NewRootCmd(), args...)
			if err != nil {
				t.Fatalf("watch failed: %v", err)
			}
			var got []WatchChange
			if err := json.Unmarshal([]byte(out), &got); err != nil {
				t.Fatalf("output is not JSON: %v\n%s", err, out)
			}
			if diff := cmp.Diff(step.want, got); diff != "" {
				t.Errorf("changes mismatch (-want +got):\n%s", diff)
			}
		})
	}

	t.Run("unknown profile", func(t *testing.T) {
		err := executeCommand(NewRootCmd(), "watch", "1AbC", "--profile", "missing", "-c", configPath)
		if err == nil {
			t.Error("expected error for unknown profile")
		}
	})
}

func TestStatusCmd_JSONOutput(t *testing.T) {
	configPath := newTestHome(t)

	if err := executeCommand(NewRootCmd(), "watch", "1AbC", "--on", "-c", configPath); err != nil {
		t.Fatalf("watch failed: %v", err)
	}

	out, err := executeCommandOutput(NewRootCmd(), "status", "-c", configPath, "-o", "json")
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	var got SystemStatus
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}

	if got.Connection != "disconnected" {
		t.Errorf("Connection = %q, want disconnected", got.Connection)
	}
	if got.ActiveProfile != "default-trade" {
		t.Errorf("ActiveProfile = %q, want default-trade", got.ActiveProfile)
	}
	if got.ConfigPath != configPath {
		t.Errorf("ConfigPath = %q, want %q", got.ConfigPath, configPath)
	}
	if len(got.Profiles) != 1 {
		t.Fatalf("expected 1 profile, got %d", len(got.Profiles))
	}
	if p := got.Profiles[0]; p.Watched != 1 || p.Synced != 0 || !p.Active || p.Credentials {
		t.Errorf("unexpected profile status: %+v", p)
	}
}

func TestStatusCmd_TextOutput(t *testing.T) {
	configPath := newTestHome(t)

	out, err := executeCommandOutput(NewRootCmd(), "status", "-c", configPath)
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	for _, want := range []string{"disconnected", "default-trade"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestProfileCmd(t *testing.T) {
	configPath := newTestHome(t)

	t.Run("add requires name", func(t *testing.T) {
		err := executeCommand(NewRootCmd(), "profile", "add", "--dataset", "ds-1", "-c", configPath)
		if err == nil || !strings.Contains(err.Error(), "--name is required") {
			t.Errorf("error = %v, want --name is required", err)
		}
	})

	t.Run("add and use", func(t *testing.T) {
		err := executeCommand(NewRootCmd(), "profile", "add",
			"--id", "support-kb", "--name", "Support KB", "--dataset", "ds-1",
			"--api-key", "dataset-secret", "--use", "-c", configPath)
		if err != nil {
			t.Fatalf("profile add failed: %v", err)
		}

		data, err := os.ReadFile(configPath)
		if err != nil {
			t.Fatalf("config not written: %v", err)
		}
		if strings.Contains(string(data), "dataset-secret") {
			t.Error("API key stored in plain text")
		}
		if !strings.Contains(string(data), "enc:") {
			t.Error("expected a sealed API key in the config file")
		}
	})

	t.Run("duplicate id rejected", func(t *testing.T) {
		err := executeCommand(NewRootCmd(), "profile", "add", "--id", "support-kb", "--name", "Again", "-c", configPath)
		if err == nil {
			t.Error("expected error for duplicate profile id")
		}
	})

	t.Run("list", func(t *testing.T) {
		out, err := executeCommandOutput(NewRootCmd(), "profile", "list", "-c", configPath, "-o", "json")
		if err != nil {
			t.Fatalf("profile list failed: %v", err)
		}
		var got []ProfileEntry
		if err := json.Unmarshal([]byte(out), &got); err != nil {
			t.Fatalf("output is not JSON: %v\n%s", err, out)
		}
		if len(got) != 2 {
			t.Fatalf("expected 2 profiles, got %d", len(got))
		}
		active := map[string]bool{}
		for _, e := range got {
			active[e.ID] = e.Active
		}
		if diff := cmp.Diff(map[string]bool{"default-trade": false, "support-kb": true}, active); diff != "" {
			t.Errorf("active flags mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("use unknown", func(t *testing.T) {
		if err := executeCommand(NewRootCmd(), "profile", "use", "missing", "-c", configPath); err == nil {
			t.Error("expected error for unknown profile")
		}
	})

	t.Run("use", func(t *testing.T) {
		if err := executeCommand(NewRootCmd(), "profile", "use", "default-trade", "-c", configPath); err != nil {
			t.Fatalf("profile use failed: %v", err)
		}
	})

	t.Run("remove", func(t *testing.T) {
		if err := executeCommand(NewRootCmd(), "profile", "rm", "support-kb", "-c", configPath); err != nil {
			t.Fatalf("profile remove failed: %v", err)
		}
		if err := executeCommand(NewRootCmd(), "profile", "rm", "default-trade", "-c", configPath); err == nil {
			t.Error("expected error removing the last profile")
		}
	})
}

func TestHistoryShowCmd_Empty(t *testing.T) {
	configPath := newTestHome(t)

	out, err := executeCommandOutput(NewRootCmd(), "history", "show", "-c", configPath, "-o", "json")
	if err != nil {
		t.Fatalf("history show failed: %v", err)
	}
	var got []HistoryEntry
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if len(got) != 0 {
		t.Errorf("expected no history, got %v", got)
	}
}

func TestHistoryPruneCmd_KeepsUnlistableFiles(t *testing.T) {
	configPath := newTestHome(t)
	t.Setenv("DOCSYNC_DRIVE_TOKEN", "ya29.test")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"files":[
			{"id":"f1","name":"Plan.docx","mimeType":"application/pdf","modifiedTime":"2024-05-02T08:30:00Z"},
			{"id":"f3","name":"bad time","mimeType":"application/pdf","modifiedTime":"yesterday"}
		]}`))
	}))
	defer server.Close()

	cfg := config.NewDefaultConfig()
	cfg.Drive.BaseURL = server.URL
	loader, err := config.NewLoader(filepath.Dir(configPath))
	if err != nil {
		t.Fatalf("NewLoader() error = %v", err)
	}
	if err := loader.Save(cfg, configPath); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	store, err := sqlite.NewStore(config.ExpandPath(cfg.Storage.Path))
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	at := testutil.Time(t, "2024-05-03T10:00:00Z")
	for _, id := range []string{"f1", "f3", "gone"} {
		if err := store.RecordSync(context.Background(), cfg.ActiveProfile, id, at); err != nil {
			t.Fatalf("RecordSync(%s) error = %v", id, err)
		}
	}
	store.Close()

	out, err := executeCommandOutput(NewRootCmd(), "history", "prune", "-c", configPath, "-o", "json")
	if err != nil {
		t.Fatalf("history prune failed: %v\n%s", err, out)
	}
	var reports []PruneReport
	if err := json.Unmarshal([]byte(out), &reports); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if diff := cmp.Diff([]PruneReport{{ProfileID: cfg.ActiveProfile, Removed: 1}}, reports); diff != "" {
		t.Errorf("prune report mismatch (-want +got):\n%s", diff)
	}

	out, err = executeCommandOutput(NewRootCmd(), "history", "show", "-c", configPath, "-o", "json")
	if err != nil {
		t.Fatalf("history show failed: %v", err)
	}
	var entries []HistoryEntry
	if err := json.Unmarshal([]byte(out), &entries); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	kept := map[string]bool{}
	for _, e := range entries {
		kept[e.FileID] = true
	}
	if !kept["f1"] || !kept["f3"] || kept["gone"] {
		t.Errorf("history after prune = %v, want f1 and f3", entries)
	}
}

func TestMigrateCmd(t *testing.T) {
	configPath := newTestHome(t)
	legacy := filepath.Join(filepath.Dir(configPath), "legacy.json")

	t.Run("missing document", func(t *testing.T) {
		out, err := executeCommandOutput(NewRootCmd(), "migrate", "--legacy", legacy, "-c", configPath, "-o", "json")
		if err != nil {
			t.Fatalf("migrate failed: %v", err)
		}
		var got MigrateReport
		if err := json.Unmarshal([]byte(out), &got); err != nil {
			t.Fatalf("output is not JSON: %v\n%s", err, out)
		}
		if !got.Import.Skipped {
			t.Error("expected import to be skipped")
		}
		if got.SchemaVersion == 0 {
			t.Error("expected the sqlite schema version")
		}
	})

	testutil.WriteLegacyState(t, filepath.Dir(configPath), `{"docsync_watched_files": ["1AbC", "2DeF"]}`)

	t.Run("flat watch list", func(t *testing.T) {
		out, err := executeCommandOutput(NewRootCmd(), "migrate", "--legacy", legacy, "-c", configPath, "-o", "json")
		if err != nil {
			t.Fatalf("migrate failed: %v", err)
		}
		var got MigrateReport
		if err := json.Unmarshal([]byte(out), &got); err != nil {
			t.Fatalf("output is not JSON: %v\n%s", err, out)
		}
		if got.Import.Skipped {
			t.Fatal("import skipped")
		}
		if got.Import.WatchesAdded != 2 || got.Import.ActiveProfileID != "default-trade" {
			t.Errorf("unexpected import result: %+v", got.Import)
		}
	})

	t.Run("second run skipped", func(t *testing.T) {
		out, err := executeCommandOutput(NewRootCmd(), "migrate", "--legacy", legacy, "-c", configPath)
		if err != nil {
			t.Fatalf("migrate failed: %v", err)
		}
		if !strings.Contains(out, "already imported") {
			t.Errorf("expected already imported message, got:\n%s", out)
		}
	})
}

func TestDaemonCmd_OnceDisconnected(t *testing.T) {
	configPath := newTestHome(t)

	out, err := executeCommandOutput(NewRootCmd(), "daemon", "--once", "-c", configPath, "-o", "json")
	if err != nil {
		t.Fatalf("daemon --once failed: %v", err)
	}
	var got tickLine
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if !got.Skipped {
		t.Error("expected a skipped tick while disconnected")
	}
	if got.Pushed != 0 || got.Failed != 0 {
		t.Errorf("pushed/failed = %d/%d, want 0/0", got.Pushed, got.Failed)
	}
}

func TestPrintTick(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 30, 0, 0, time.Local)
	failed := reconcile.TickReport{
		StartedAt:  start,
		FinishedAt: start.Add(1500 * time.Millisecond),
		Profiles: []reconcile.BatchReport{{
			ProfileID: "support-kb",
			Pushed:    1,
			Failed:    1,
			Results: []reconcile.PushResult{
				{FileID: "1AbC", FileName: "Relatório.docx"},
				{FileID: "2DeF", FileName: "Notes", Err: errors.New("file not found")},
			},
		}},
	}

	tests := []struct {
		name   string
		report reconcile.TickReport
		want   []string
	}{
		{
			name:   "skipped",
			report: reconcile.TickReport{StartedAt: start, Skipped: true, SkipReason: "busy"},
			want:   []string{"09:30:00", "tick skipped: busy"},
		},
		{
			name:   "done with failure",
			report: failed,
			want:   []string{"tick done: 1 pushed, 1 failed (1.5s)", "support-kb/Notes"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			printTick(output.NewFormatter(output.WithWriter(&buf)), tt.report)
			for _, want := range tt.want {
				if !strings.Contains(buf.String(), want) {
					t.Errorf("output missing %q:\n%s", want, buf.String())
				}
			}
		})
	}
}

func TestDescribeUser(t *testing.T) {
	tests := []struct {
		name string
		user ports.UserInfo
		want string
	}{
		{"name and email", ports.UserInfo{Name: "Ana Lima", Email: "ana@example.com"}, "Ana Lima <ana@example.com>"},
		{"email only", ports.UserInfo{Email: "ana@example.com"}, "ana@example.com"},
		{"name only", ports.UserInfo{Name: "Ana Lima"}, "Ana Lima"},
		{"empty", ports.UserInfo{}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := describeUser(tt.user); got != tt.want {
				t.Errorf("describeUser() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRequireApp_NotInitialized(t *testing.T) {
	Shutdown()
	if _, err := requireApp(); err == nil {
		t.Error("expected error before initialization")
	}
	if GetContainer() != nil {
		t.Error("GetContainer should be nil before initialization")
	}
	if GetFormatter() == nil {
		t.Error("GetFormatter should fall back to a default formatter")
	}
}
