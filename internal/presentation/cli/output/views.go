package output

import (
	"fmt"
	"time"

	"github.com/jbctechsolutions/docsync/internal/domain/document"
)

// StatusColor maps a file status to its display color.
func StatusColor(s document.Status) Color {
	switch s {
	case document.StatusSynced:
		return ColorGreen
	case document.StatusPending:
		return ColorYellow
	case document.StatusSyncing:
		return ColorCyan
	case document.StatusError:
		return ColorRed
	default:
		return ColorDim
	}
}

// StatusLabel returns the colored status name.
func (f *Formatter) StatusLabel(s document.Status) string {
	return f.Colorize(string(s), StatusColor(s))
}

// FilesTable lays out projected file views in the order given.
func (f *Formatter) FilesTable(views []document.FileView, now time.Time) TableData {
	data := TableData{
		Columns: []TableColumn{
			{Header: "W", Width: 1},
			{Header: "STATUS", Width: 7},
			{Header: "NAME"},
			{Header: "MODIFIED", Align: AlignRight},
			{Header: "LAST SYNC", Align: AlignRight},
			{Header: "ID"},
		},
	}
	for _, v := range views {
		watch := ""
		if v.Watched {
			watch = "★"
		}
		lastSync := "-"
		if v.LastSynced != nil {
			lastSync = Age(now, *v.LastSynced)
		}
		data.Rows = append(data.Rows, []string{
			watch,
			f.StatusLabel(v.Status),
			v.File.Name,
			Age(now, v.File.ModifiedAt),
			lastSync,
			f.Dim(v.File.ID),
		})
	}
	return data
}

// Age renders t relative to now: "just now", "5m ago", "3h ago", "2d ago", and
// a plain date past a week. Times in the future read as "just now".
func Age(now, t time.Time) string {
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	default:
		return t.Format("2006-01-02")
	}
}
