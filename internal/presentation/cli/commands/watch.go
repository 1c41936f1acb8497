package commands

import (
	"errors"

	"github.com/spf13/cobra"
)

// WatchChange reports the new membership of one file.
type WatchChange struct {
	FileID    string `json:"file_id"`
	ProfileID string `json:"profile_id"`
	Watched   bool   `json:"watched"`
}

// NewWatchCmd creates the watch command.
func NewWatchCmd() *cobra.Command {
	var (
		profileID string
		on, off   bool
	)

	cmd := &cobra.Command{
		Use:   "watch <file-id>...",
		Short: "Toggle whether a profile watches Drive files",
		Long: `Toggle the membership of each file in the profile's watch list. Use --on or
--off to set it explicitly. Sync history is never touched, so re-watching a
file that has not changed since its last push shows it as synced again.`,
		Example: `  docsync watch 1AbC
  docsync watch 1AbC 2DeF --profile support-kb --on`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if on && off {
				return errors.New("--on and --off are mutually exclusive")
			}
			app, err := requireApp()
			if err != nil {
				return err
			}
			target, err := resolveProfileID(app, profileID)
			if err != nil {
				return err
			}

			store := app.Container.Store()
			ctx := cmd.Context()
			changes := make([]WatchChange, 0, len(args))
			for _, fileID := range args {
				change := WatchChange{FileID: fileID, ProfileID: target.ID}
				switch {
				case on || off:
					change.Watched = on
					err = store.SetWatched(ctx, target.ID, fileID, on)
				default:
					change.Watched, err = store.ToggleWatch(ctx, target.ID, fileID)
				}
				if err != nil {
					return err
				}
				changes = append(changes, change)
			}

			f := app.Formatter
			return f.Emit(changes, func() error {
				for _, ch := range changes {
					if ch.Watched {
						f.Success("%s watched by %s", ch.FileID, ch.ProfileID)
					} else {
						f.Info("%s no longer watched by %s", ch.FileID, ch.ProfileID)
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&profileID, "profile", "p", "", "profile to change (default: active profile)")
	cmd.Flags().BoolVar(&on, "on", false, "watch regardless of the current state")
	cmd.Flags().BoolVar(&off, "off", false, "unwatch regardless of the current state")

	return cmd
}
