package commands

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/jbctechsolutions/docsync/internal/application/ports"
	"github.com/jbctechsolutions/docsync/internal/domain/profile"
	"github.com/jbctechsolutions/docsync/internal/presentation/cli/output"
)

// pruneMaxFiles caps the listing used to decide which history entries are orphaned.
const pruneMaxFiles = 10000

// HistoryEntry is one recorded push.
type HistoryEntry struct {
	FileID   string    `json:"file_id"`
	SyncedAt time.Time `json:"synced_at"`
}

// PruneReport is the result of history prune for one profile.
type PruneReport struct {
	ProfileID string `json:"profile_id"`
	Removed   int    `json:"removed"`
}

// NewHistoryCmd creates the history command group.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect and prune sync history",
		Long: `Sync history records, per profile, when each file was last pushed. It is
what makes a watched file synced or pending. Entries of files that no longer
exist are kept until pruned explicitly.`,
	}

	cmd.AddCommand(newHistoryShowCmd())
	cmd.AddCommand(newHistoryPruneCmd())

	return cmd
}

func newHistoryShowCmd() *cobra.Command {
	var profileID string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "List recorded pushes of a profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp()
			if err != nil {
				return err
			}
			target, err := resolveProfileID(app, profileID)
			if err != nil {
				return err
			}
			history, err := app.Container.Store().History(cmd.Context(), target.ID)
			if err != nil {
				return err
			}

			entries := make([]HistoryEntry, 0, len(history))
			for id, at := range history {
				entries = append(entries, HistoryEntry{FileID: id, SyncedAt: at})
			}
			sort.Slice(entries, func(i, j int) bool {
				return entries[i].SyncedAt.After(entries[j].SyncedAt)
			})

			f := app.Formatter
			return f.Emit(entries, func() error {
				if len(entries) == 0 {
					return f.Info("No pushes recorded for %s", target.ID)
				}
				now := time.Now()
				table := output.TableData{
					Columns: []output.TableColumn{{Header: "FILE"}, {Header: "SYNCED", Align: output.AlignRight}, {Header: "AT"}},
				}
				for _, e := range entries {
					table.Rows = append(table.Rows, []string{e.FileID, output.Age(now, e.SyncedAt), e.SyncedAt.Local().Format(time.RFC3339)})
				}
				return f.Table(table)
			})
		},
	}

	cmd.Flags().StringVarP(&profileID, "profile", "p", "", "profile to show (default: active profile)")
	return cmd
}

func newHistoryPruneCmd() *cobra.Command {
	var (
		profileID   string
		allProfiles bool
	)

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove history of files no longer in Drive",
		Long: `List Drive and delete history entries whose file is not in the listing.
A file that reappears later shows as pending and is pushed again.`,
		Example: `  docsync history prune
  docsync history prune --all-profiles`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp()
			if err != nil {
				return err
			}
			c := app.Container
			ctx := cmd.Context()

			targets := c.Profiles().Profiles()
			if !allProfiles {
				p, err := resolveProfileID(app, profileID)
				if err != nil {
					return err
				}
				targets = profile.Set{p}
			}

			// Raw ids: a file List drops as malformed still exists and keeps its history.
			ids, err := c.Drive().ListIDs(ctx, ports.ListQuery{
				PageSize: ports.SnapshotPageSize,
				MaxFiles: pruneMaxFiles,
			})
			if err != nil {
				return disconnectOnAuth(app, err)
			}
			if len(ids) >= pruneMaxFiles {
				return fmt.Errorf("drive holds %d or more files; listing may be incomplete, nothing pruned", pruneMaxFiles)
			}
			keep := make(map[string]struct{}, len(ids))
			for _, id := range ids {
				keep[id] = struct{}{}
			}

			var reports []PruneReport
			for _, p := range targets {
				removed, err := c.Store().PruneHistory(ctx, p.ID, keep)
				if err != nil {
					return err
				}
				c.Logger().InfoContext(ctx, "history pruned", "profile_id", p.ID, "removed", removed)
				reports = append(reports, PruneReport{ProfileID: p.ID, Removed: removed})
			}

			f := app.Formatter
			return f.Emit(reports, func() error {
				for _, r := range reports {
					f.Item(r.ProfileID, strconv.Itoa(r.Removed)+" removed")
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&profileID, "profile", "p", "", "profile to prune (default: active profile)")
	cmd.Flags().BoolVar(&allProfiles, "all-profiles", false, "prune every profile")
	return cmd
}
