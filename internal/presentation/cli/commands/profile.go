package commands

import (
	"errors"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jbctechsolutions/docsync/internal/infrastructure/config"
	"github.com/jbctechsolutions/docsync/internal/presentation/cli/output"
)

// ProfileEntry is one row of profile list.
type ProfileEntry struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DatasetID   string `json:"dataset_id,omitempty"`
	BaseURL     string `json:"base_url"`
	Credentials bool   `json:"credentials"`
	Active      bool   `json:"active"`
}

// NewProfileCmd creates the profile command group.
func NewProfileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "profile",
		Aliases: []string{"profiles"},
		Short:   "Manage destination profiles",
		Long: `A profile is a destination knowledge base with its own credentials, watch
list and sync history. The active profile is the one files and sync use by
default; the daemon reconciles every profile.`,
	}

	cmd.AddCommand(newProfileListCmd())
	cmd.AddCommand(newProfileUseCmd())
	cmd.AddCommand(newProfileAddCmd())
	cmd.AddCommand(newProfileRemoveCmd())

	return cmd
}

func newProfileListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List profiles",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp()
			if err != nil {
				return err
			}
			book := app.Container.Profiles()
			active := book.ActiveProfileID()

			var entries []ProfileEntry
			for _, p := range book.Profiles() {
				entries = append(entries, ProfileEntry{
					ID:          p.ID,
					Name:        p.Name,
					DatasetID:   p.DatasetID,
					BaseURL:     p.Endpoint(),
					Credentials: p.HasCredentials(),
					Active:      p.ID == active,
				})
			}

			f := app.Formatter
			return f.Emit(entries, func() error {
				table := output.TableData{
					Columns: []output.TableColumn{
						{Header: ""}, {Header: "ID"}, {Header: "NAME"}, {Header: "DATASET"}, {Header: "ENDPOINT"},
					},
				}
				for _, e := range entries {
					marker, dataset := "", e.DatasetID
					if e.Active {
						marker = "*"
					}
					if !e.Credentials {
						dataset = f.Colorize("not configured", output.ColorYellow)
					}
					table.Rows = append(table.Rows, []string{marker, e.ID, e.Name, dataset, e.BaseURL})
				}
				return f.Table(table)
			})
		},
	}
}

func newProfileUseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "use <profile-id>",
		Short: "Switch the active profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp()
			if err != nil {
				return err
			}
			if err := app.Config.SetActiveProfile(args[0]); err != nil {
				return err
			}
			if err := saveConfig(app); err != nil {
				return err
			}
			return app.Formatter.Emit(map[string]string{"active_profile": args[0]}, func() error {
				return app.Formatter.Success("Active profile is now %s", args[0])
			})
		},
	}
}

type profileAddOptions struct {
	id        string
	name      string
	datasetID string
	baseURL   string
	apiKey    string
	use       bool
}

func newProfileAddCmd() *cobra.Command {
	var opts profileAddOptions

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a destination profile",
		Long: `Add a profile. The API key is stored encrypted in the config file. Without
--id a random id is assigned.`,
		Example: `  docsync profile add --name "Support KB" --dataset 3f2a... --api-key dataset-...
  docsync profile add --name Internal --dataset 91bc... --base-url https://dify.internal/v1 --use`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.name == "" {
				return errors.New("--name is required")
			}
			app, err := requireApp()
			if err != nil {
				return err
			}

			if opts.id == "" {
				opts.id = uuid.NewString()
			}
			key, err := app.Container.Encryptor().Seal(opts.apiKey)
			if err != nil {
				return err
			}
			pc := config.ProfileConfig{
				ID:        opts.id,
				Name:      opts.name,
				DatasetID: opts.datasetID,
				BaseURL:   opts.baseURL,
				APIKey:    key,
			}
			if err := app.Config.AddProfile(pc); err != nil {
				return err
			}
			if opts.use {
				app.Config.ActiveProfile = pc.ID
			}
			if err := saveConfig(app); err != nil {
				return err
			}

			return app.Formatter.Emit(map[string]string{"id": pc.ID}, func() error {
				return app.Formatter.Success("Added profile %s (%s)", pc.Name, pc.ID)
			})
		},
	}

	cmd.Flags().StringVar(&opts.id, "id", "", "profile id (default: random)")
	cmd.Flags().StringVar(&opts.name, "name", "", "display name")
	cmd.Flags().StringVar(&opts.datasetID, "dataset", "", "destination dataset id")
	cmd.Flags().StringVar(&opts.baseURL, "base-url", "", "destination API base URL (default: public Dify API)")
	cmd.Flags().StringVar(&opts.apiKey, "api-key", "", "destination API key")
	cmd.Flags().BoolVar(&opts.use, "use", false, "make the new profile active")

	return cmd
}

func newProfileRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "remove <profile-id>",
		Aliases: []string{"rm"},
		Short:   "Remove a profile",
		Long: `Remove a profile from the configuration. The last profile cannot be
removed. Its watch list and history stay in the store and come back if a
profile with the same id is added again.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp()
			if err != nil {
				return err
			}
			if err := app.Config.RemoveProfile(args[0]); err != nil {
				return err
			}
			if err := saveConfig(app); err != nil {
				return err
			}
			return app.Formatter.Emit(map[string]string{"removed": args[0], "active_profile": app.Config.ActiveProfile}, func() error {
				return app.Formatter.Success("Removed profile %s (active: %s)", args[0], app.Config.ActiveProfile)
			})
		},
	}
}
