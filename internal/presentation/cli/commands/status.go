package commands

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jbctechsolutions/docsync/internal/presentation/cli/output"
)

// ProfileStatus summarizes one destination profile.
type ProfileStatus struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DatasetID   string `json:"dataset_id,omitempty"`
	Active      bool   `json:"active"`
	Credentials bool   `json:"credentials"`
	Watched     int    `json:"watched"`
	Synced      int    `json:"synced"`
}

// SystemStatus is the overview printed by the status command.
type SystemStatus struct {
	Version         string          `json:"version"`
	Connection      string          `json:"connection"`
	Holder          string          `json:"holder,omitempty"`
	ActiveProfile   string          `json:"active_profile"`
	AutoSync        bool            `json:"auto_sync"`
	IntervalMinutes int             `json:"interval_minutes"`
	Storage         string          `json:"storage"`
	Enrichment      string          `json:"enrichment"`
	ConfigPath      string          `json:"config_path"`
	Profiles        []ProfileStatus `json:"profiles"`
}

// NewStatusCmd creates the status command.
func NewStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show connection, scheduler and profile overview",
		Long: `Display the file store connection, the auto-sync settings and, for every
profile, how many files it watches and how many it has pushed.

Only local state is read; no remote call is made.`,
		Example: `  docsync status
  docsync status -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp()
			if err != nil {
				return err
			}
			status, err := collectStatus(cmd.Context(), app)
			if err != nil {
				return err
			}
			return app.Formatter.Emit(status, func() error {
				return printStatus(app.Formatter, status)
			})
		},
	}
}

func collectStatus(ctx context.Context, app *AppContext) (SystemStatus, error) {
	c := app.Container
	cfg := c.Config()

	enrichment := cfg.Enrichment.Provider
	if c.Summarizer() == nil {
		enrichment = "disabled"
	}

	status := SystemStatus{
		Version:         Version,
		Connection:      c.Controller().State().String(),
		Holder:          c.Controller().Holder(),
		ActiveProfile:   c.Profiles().ActiveProfileID(),
		AutoSync:        cfg.Sync.AutoSync,
		IntervalMinutes: cfg.Sync.IntervalMinutes,
		Storage:         cfg.Storage.Backend,
		Enrichment:      enrichment,
		ConfigPath:      app.ConfigPath,
	}

	store := c.Store()
	for _, p := range c.Profiles().Profiles() {
		watched, err := store.Watched(ctx, p.ID)
		if err != nil {
			return status, fmt.Errorf("profile %s: %w", p.ID, err)
		}
		history, err := store.History(ctx, p.ID)
		if err != nil {
			return status, fmt.Errorf("profile %s: %w", p.ID, err)
		}
		status.Profiles = append(status.Profiles, ProfileStatus{
			ID:          p.ID,
			Name:        p.Name,
			DatasetID:   p.DatasetID,
			Active:      p.ID == status.ActiveProfile,
			Credentials: p.HasCredentials(),
			Watched:     len(watched),
			Synced:      len(history),
		})
	}
	return status, nil
}

func printStatus(f *output.Formatter, s SystemStatus) error {
	f.Header("docsync status")
	connection := s.Connection
	if s.Holder != "" {
		connection += " (" + s.Holder + ")"
	}
	f.Item("Connection", connection)
	autoSync := "off"
	if s.AutoSync {
		autoSync = fmt.Sprintf("every %d min", s.IntervalMinutes)
	}
	f.Item("Auto-sync", autoSync)
	f.Item("Storage", s.Storage)
	f.Item("Enrichment", s.Enrichment)
	f.Item("Config", s.ConfigPath)
	f.Println("")

	table := output.TableData{
		Columns: []output.TableColumn{
			{Header: ""},
			{Header: "PROFILE"},
			{Header: "NAME"},
			{Header: "DATASET"},
			{Header: "WATCHED", Align: output.AlignRight},
			{Header: "SYNCED", Align: output.AlignRight},
		},
	}
	for _, p := range s.Profiles {
		marker := ""
		if p.Active {
			marker = "*"
		}
		dataset := p.DatasetID
		if !p.Credentials {
			dataset = f.Colorize("not configured", output.ColorYellow)
		}
		table.Rows = append(table.Rows, []string{
			marker, p.ID, p.Name, dataset,
			strconv.Itoa(p.Watched), strconv.Itoa(p.Synced),
		})
	}
	return f.Table(table)
}
