package commands

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/jbctechsolutions/docsync/internal/application/ports"
	"github.com/jbctechsolutions/docsync/internal/application/reconcile"
)

// PushOutcome is a push result with its error spelled out for JSON output.
type PushOutcome struct {
	reconcile.PushResult
	Error string `json:"error,omitempty"`
}

// BatchOutcome is the JSON form of a batch report.
type BatchOutcome struct {
	ProfileID  string        `json:"profile_id"`
	Candidates int           `json:"candidates"`
	Pushed     int           `json:"pushed"`
	Failed     int           `json:"failed"`
	Aborted    bool          `json:"aborted,omitempty"`
	Results    []PushOutcome `json:"results"`
}

func outcomes(results []reconcile.PushResult) []PushOutcome {
	out := make([]PushOutcome, 0, len(results))
	for _, r := range results {
		o := PushOutcome{PushResult: r}
		if r.Err != nil {
			o.Error = r.Err.Error()
		}
		out = append(out, o)
	}
	return out
}

type syncOptions struct {
	all       bool
	match     string
	profileID string
}

// NewSyncCmd creates the sync command.
func NewSyncCmd() *cobra.Command {
	var opts syncOptions

	cmd := &cobra.Command{
		Use:   "sync [file-id]",
		Short: "Push files to a destination profile now",
		Long: `Push one file, or with --all every watched file of the profile that is
pending or failed last time, one after another.

A push fetches the file text, adds a short summary when enrichment is enabled,
and creates a document in the profile's knowledge base. Pushes never overlap:
while the daemon is reconciling, sync fails fast instead of waiting.`,
		Example: `  docsync sync 1AbC
  docsync sync --all
  docsync sync --all --match "**/*Relatório*" --profile support-kb`,
		Args: func(cmd *cobra.Command, args []string) error {
			switch {
			case opts.all && len(args) > 0:
				return errors.New("pass a file id or --all, not both")
			case !opts.all && len(args) != 1:
				return errors.New("requires a file id or --all")
			case !opts.all && opts.match != "":
				return errors.New("--match only applies with --all")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp()
			if err != nil {
				return err
			}
			if opts.all {
				return runSyncAll(cmd, app, opts)
			}
			return runSyncOne(cmd, app, args[0], opts.profileID)
		},
	}

	cmd.Flags().BoolVarP(&opts.all, "all", "a", false, "push every pending watched file")
	cmd.Flags().StringVarP(&opts.match, "match", "m", "", "with --all, only files whose name matches this glob")
	cmd.Flags().StringVarP(&opts.profileID, "profile", "p", "", "destination profile (default: active profile)")

	return cmd
}

func runSyncOne(cmd *cobra.Command, app *AppContext, fileID, profileID string) error {
	res, err := app.Container.Dispatcher().SyncFileByID(cmd.Context(), fileID, profileID)
	if err != nil && res.FileID == "" {
		return disconnectOnAuth(app, err)
	}

	f := app.Formatter
	if emitErr := f.Emit(outcomes([]reconcile.PushResult{res})[0], func() error {
		if !res.OK() {
			return nil
		}
		if res.SummaryFailed {
			f.Warning("Summary unavailable, pushed with placeholder")
		}
		return f.Success("%s pushed to %s (document %s)", res.FileName, res.ProfileID, res.DocumentID)
	}); emitErr != nil {
		return emitErr
	}
	return disconnectOnAuth(app, err)
}

func runSyncAll(cmd *cobra.Command, app *AppContext, opts syncOptions) error {
	c := app.Container
	ctx := cmd.Context()

	files, err := c.Drive().List(ctx, ports.ListQuery{
		PageSize: ports.SnapshotPageSize,
		MaxFiles: c.Config().Sync.SnapshotSize,
	})
	if err != nil {
		return disconnectOnAuth(app, err)
	}

	report, batchErr := c.Dispatcher().SyncPending(ctx, files, reconcile.BatchOptions{
		ProfileID: opts.profileID,
		Match:     opts.match,
	})
	if batchErr != nil && report.ProfileID == "" {
		return disconnectOnAuth(app, batchErr)
	}

	outcome := BatchOutcome{
		ProfileID:  report.ProfileID,
		Candidates: report.Candidates,
		Pushed:     report.Pushed,
		Failed:     report.Failed,
		Aborted:    report.Aborted,
		Results:    outcomes(report.Results),
	}

	f := app.Formatter
	err = f.Emit(outcome, func() error {
		if report.Candidates == 0 {
			return f.Info("Nothing pending for %s", report.ProfileID)
		}
		if err := f.Table(pushTable(f, report.Results)); err != nil {
			return err
		}
		f.Println("")
		if report.Aborted {
			return f.Warning("Stopped after %d of %d files: session expired", len(report.Results), report.Candidates)
		}
		if report.Failed > 0 {
			return f.Warning("%d pushed, %d failed", report.Pushed, report.Failed)
		}
		return f.Success("%d pushed to %s", report.Pushed, report.ProfileID)
	})
	if err != nil {
		return err
	}
	if batchErr != nil {
		return disconnectOnAuth(app, batchErr)
	}
	if report.Failed > 0 {
		return errors.New("some files failed to push")
	}
	return nil
}
