package output

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jbctechsolutions/docsync/internal/domain/document"
)

func TestNewFormatter(t *testing.T) {
	t.Run("default options", func(t *testing.T) {
		f := NewFormatter()
		if f.format != FormatText {
			t.Errorf("expected format %v, got %v", FormatText, f.format)
		}
		if !f.colorEnabled {
			t.Error("expected color to be enabled by default")
		}
	})

	t.Run("with custom options", func(t *testing.T) {
		var buf bytes.Buffer
		f := NewFormatter(WithWriter(&buf), WithFormat(FormatJSON), WithColor(false))

		if f.Format() != FormatJSON {
			t.Errorf("expected format %v, got %v", FormatJSON, f.Format())
		}
		if f.colorEnabled {
			t.Error("expected color to be disabled")
		}
		if f.Writer() != &buf {
			t.Error("expected custom writer")
		}
	})
}

func TestFormatter_Colorize(t *testing.T) {
	colored := NewFormatter(WithColor(true)).Colorize("test", ColorRed)
	if colored != string(ColorRed)+"test"+string(ColorReset) {
		t.Errorf("Colorize() = %q", colored)
	}

	plain := NewFormatter(WithColor(false)).Colorize("test", ColorRed)
	if plain != "test" {
		t.Errorf("Colorize() without color = %q", plain)
	}

	if got := NewFormatter().Colorize("", ColorRed); got != "" {
		t.Errorf("empty text should stay empty, got %q", got)
	}
}

func TestFormatter_Messages(t *testing.T) {
	tests := []struct {
		name   string
		print  func(f *Formatter) error
		expect string
	}{
		{"success", func(f *Formatter) error { return f.Success("pushed %d", 2) }, "✓ pushed 2\n"},
		{"error", func(f *Formatter) error { return f.Error("failed") }, "✗ failed\n"},
		{"warning", func(f *Formatter) error { return f.Warning("careful") }, "⚠ careful\n"},
		{"info", func(f *Formatter) error { return f.Info("note") }, "ℹ note\n"},
		{"item", func(f *Formatter) error { return f.Item("Profile", "p1") }, "  Profile: p1\n"},
		{"header", func(f *Formatter) error { return f.Header("Perfis") }, "Perfis\n──────\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			f := NewFormatter(WithWriter(&buf), WithColor(false))
			if err := tt.print(f); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := buf.String(); got != tt.expect {
				t.Errorf("got %q, want %q", got, tt.expect)
			}
		})
	}
}

func TestFormatter_Table(t *testing.T) {
	var buf bytes.Buffer
	f := NewFormatter(WithWriter(&buf), WithColor(false))

	err := f.Table(TableData{
		Columns: []TableColumn{
			{Header: "NAME"},
			{Header: "N", Align: AlignRight},
		},
		Rows: [][]string{
			{"relatório", "1"},
			{"b", "10"},
		},
	})
	if err != nil {
		t.Fatalf("Table() error = %v", err)
	}

	want := "NAME        N\n" +
		"---------  --\n" +
		"relatório   1\n" +
		"b          10\n"
	if got := buf.String(); got != want {
		t.Errorf("Table() =\n%s\nwant\n%s", got, want)
	}
}

func TestFormatter_TableIgnoresColorCodes(t *testing.T) {
	var buf bytes.Buffer
	f := NewFormatter(WithWriter(&buf), WithColor(true))

	f.Table(TableData{
		Columns: []TableColumn{{Header: "STATUS"}, {Header: "X"}},
		Rows:    [][]string{{f.Colorize("ok", ColorGreen), "x"}},
	})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	last := lines[len(lines)-1]
	if !strings.HasSuffix(last, "ok"+string(ColorReset)+"      x") {
		t.Errorf("row padded by escape length: %q", last)
	}
}

func TestFormatter_TableEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := NewFormatter(WithWriter(&buf)).Table(TableData{}); err != nil || buf.Len() != 0 {
		t.Errorf("empty table wrote %q, err %v", buf.String(), err)
	}
}

func TestFormatter_Emit(t *testing.T) {
	payload := map[string]int{"pushed": 3}

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		f := NewFormatter(WithWriter(&buf), WithFormat(FormatJSON))
		called := false
		if err := f.Emit(payload, func() error { called = true; return nil }); err != nil {
			t.Fatal(err)
		}
		if called {
			t.Error("text renderer called in JSON mode")
		}
		var got map[string]int
		if err := json.Unmarshal(buf.Bytes(), &got); err != nil || got["pushed"] != 3 {
			t.Errorf("JSON output = %q (%v)", buf.String(), err)
		}
	})

	t.Run("text", func(t *testing.T) {
		f := NewFormatter(WithWriter(&bytes.Buffer{}))
		called := false
		f.Emit(payload, func() error { called = true; return nil })
		if !called {
			t.Error("text renderer not called")
		}
	})
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input   string
		want    Format
		wantErr bool
	}{
		{"table", FormatTable, false},
		{"JSON", FormatJSON, false},
		{" text ", FormatText, false},
		{"", FormatText, false},
		{"xml", FormatText, true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseFormat(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseFormat(%q) error = %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseFormat(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestColorSupported(t *testing.T) {
	env := func(vars map[string]string) func(string) (string, bool) {
		return func(k string) (string, bool) {
			v, ok := vars[k]
			return v, ok
		}
	}

	file, err := os.CreateTemp(t.TempDir(), "out")
	if err != nil {
		t.Fatal(err)
	}
	defer file.Close()

	if colorSupported(file, env(map[string]string{"NO_COLOR": "", "FORCE_COLOR": "1"})) {
		t.Error("NO_COLOR should win")
	}
	if !colorSupported(file, env(map[string]string{"FORCE_COLOR": "1"})) {
		t.Error("FORCE_COLOR should enable colors")
	}
	if colorSupported(file, env(map[string]string{"TERM": "xterm"})) {
		t.Error("a regular file is not a terminal")
	}
}

func TestStatusLabel(t *testing.T) {
	f := NewFormatter(WithColor(true))
	tests := []struct {
		status document.Status
		color  Color
	}{
		{document.StatusSynced, ColorGreen},
		{document.StatusPending, ColorYellow},
		{document.StatusSyncing, ColorCyan},
		{document.StatusError, ColorRed},
		{document.StatusIgnored, ColorDim},
	}
	for _, tt := range tests {
		if got := f.StatusLabel(tt.status); !strings.HasPrefix(got, string(tt.color)) {
			t.Errorf("StatusLabel(%s) = %q", tt.status, got)
		}
	}
}

func TestFilesTable(t *testing.T) {
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	synced := now.Add(-2 * time.Hour)
	views := []document.FileView{
		{
			File:       document.RemoteFile{ID: "f1", Name: "Plan", ModifiedAt: now.Add(-3 * time.Hour)},
			Status:     document.StatusSynced,
			LastSynced: &synced,
			Watched:    true,
		},
		{
			File:   document.RemoteFile{ID: "f2", Name: "Notes", ModifiedAt: now.Add(-30 * 24 * time.Hour)},
			Status: document.StatusIgnored,
		},
	}

	data := NewFormatter(WithColor(false)).FilesTable(views, now)
	want := [][]string{
		{"★", "synced", "Plan", "3h ago", "2h ago", "f1"},
		{"", "ignored", "Notes", "2024-05-11", "-", "f2"},
	}
	if len(data.Rows) != len(want) {
		t.Fatalf("rows = %d, want %d", len(data.Rows), len(want))
	}
	for i := range want {
		if strings.Join(data.Rows[i], "|") != strings.Join(want[i], "|") {
			t.Errorf("row %d = %v, want %v", i, data.Rows[i], want[i])
		}
	}
}

func TestAge(t *testing.T) {
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		at   time.Time
		want string
	}{
		{now.Add(10 * time.Second), "just now"},
		{now.Add(-30 * time.Second), "just now"},
		{now.Add(-5 * time.Minute), "5m ago"},
		{now.Add(-25 * time.Hour), "1d ago"},
		{now.Add(-8 * 24 * time.Hour), "2024-06-02"},
	}
	for _, tt := range tests {
		if got := Age(now, tt.at); got != tt.want {
			t.Errorf("Age(%v) = %q, want %q", tt.at, got, tt.want)
		}
	}
}
