package commands

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/jbctechsolutions/docsync/internal/application/ports"
	"github.com/jbctechsolutions/docsync/internal/domain/document"
)

type filesOptions struct {
	search      string
	profileID   string
	watchedOnly bool
	limit       int
}

// NewFilesCmd creates the files command.
func NewFilesCmd() *cobra.Command {
	var opts filesOptions

	cmd := &cobra.Command{
		Use:     "files",
		Aliases: []string{"ls"},
		Short:   "List Drive files with their sync status",
		Long: `List supported Drive files (Google Docs, PDF, plain text, DOCX) with the
status they have for one profile:

  pending   watched, never pushed or changed since the last push
  synced    watched, destination copy is current
  ignored   not watched by the profile

Watched files come first, pending ones at the top, newest first.`,
		Example: `  docsync files
  docsync files --search budget
  docsync files --profile support-kb --watched`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFiles(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.search, "search", "s", "", "only files whose name contains this term")
	cmd.Flags().StringVarP(&opts.profileID, "profile", "p", "", "profile to show (default: active profile)")
	cmd.Flags().BoolVarP(&opts.watchedOnly, "watched", "w", false, "only watched files")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", ports.InteractivePageSize, "number of files to list")

	return cmd
}

func runFiles(cmd *cobra.Command, opts filesOptions) error {
	app, err := requireApp()
	if err != nil {
		return err
	}
	c := app.Container
	ctx := cmd.Context()

	profileID := opts.profileID
	if profileID == "" {
		profileID = c.Profiles().ActiveProfileID()
	}
	if _, err := resolveProfileID(app, profileID); err != nil {
		return err
	}

	files, err := c.Drive().List(ctx, ports.ListQuery{
		NameContains: opts.search,
		PageSize:     min(opts.limit, ports.SnapshotPageSize),
		MaxFiles:     opts.limit,
	})
	if err != nil {
		return disconnectOnAuth(app, err)
	}

	views, err := c.Projector().Project(ctx, files, profileID)
	if err != nil {
		return err
	}
	if opts.watchedOnly {
		kept := views[:0]
		for _, v := range views {
			if v.Watched {
				kept = append(kept, v)
			}
		}
		views = kept
	}

	f := app.Formatter
	return f.Emit(views, func() error {
		if len(views) == 0 {
			return f.Info("No files found")
		}
		if err := f.Table(f.FilesTable(views, time.Now())); err != nil {
			return err
		}
		pending := 0
		for _, v := range views {
			if v.Status == document.StatusPending {
				pending++
			}
		}
		return f.Println("\n%d files, %d pending for %s", len(views), pending, profileID)
	})
}
