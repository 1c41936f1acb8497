package commands

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jbctechsolutions/docsync/internal/adapters/store/sqlite"
	"github.com/jbctechsolutions/docsync/internal/application/migration"
)

// MigrateReport is the output of the migrate command.
type MigrateReport struct {
	Source        string           `json:"source"`
	SchemaVersion int              `json:"schema_version,omitempty"`
	ProfilesAdded int              `json:"profiles_added"`
	Import        migration.Result `json:"import"`
}

// NewMigrateCmd creates the migrate command.
func NewMigrateCmd() *cobra.Command {
	var legacyPath string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Import state from earlier releases",
		Long: `Import a legacy state document: the pre-profile flat watch list, the
per-profile watch and history maps, and the profiles of the old configuration.

Nothing is removed. Watch lists are merged, history keeps the later timestamp,
and only profiles with new ids are added, so running it twice is harmless. The
same document is not imported again.

The configured storage.legacy_state_file is also imported on every start.`,
		Example: `  docsync migrate
  docsync migrate --legacy ./docsync-export.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp()
			if err != nil {
				return err
			}
			if legacyPath == "" {
				legacyPath = app.Config.Storage.LegacyStateFile
			}

			res, added, err := app.Container.ImportLegacy(cmd.Context(), legacyPath)
			if err != nil {
				return err
			}
			if added > 0 {
				if err := saveConfig(app); err != nil {
					return err
				}
			}

			report := MigrateReport{Source: legacyPath, ProfilesAdded: added, Import: res}
			if store, ok := app.Container.Store().(*sqlite.Store); ok {
				report.SchemaVersion, _ = store.Connection().SchemaVersion()
			}

			f := app.Formatter
			return f.Emit(report, func() error {
				if report.SchemaVersion > 0 {
					f.Item("Schema version", strconv.Itoa(report.SchemaVersion))
				}
				switch {
				case res.Skipped && res.Checksum == "":
					return f.Info("No legacy state at %s", legacyPath)
				case res.Skipped:
					return f.Info("%s was already imported", legacyPath)
				}
				for _, w := range res.Warnings {
					f.Warning("%s", w)
				}
				f.Item("Flat list owner", res.ActiveProfileID)
				f.Item("Watches added", strconv.Itoa(res.WatchesAdded))
				f.Item("History merged", strconv.Itoa(res.HistoryMerged))
				f.Item("Profiles added", strconv.Itoa(added))
				return f.Success("Imported %s", legacyPath)
			})
		},
	}

	cmd.Flags().StringVar(&legacyPath, "legacy", "", "legacy state document (default: storage.legacy_state_file)")

	return cmd
}
