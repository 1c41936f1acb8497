// Package commands implements the CLI commands for docsync.
package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jbctechsolutions/docsync/internal/application"
	"github.com/jbctechsolutions/docsync/internal/infrastructure/config"
	"github.com/jbctechsolutions/docsync/internal/presentation/cli/output"
)

// Version information - set at build time via ldflags.
var (
	Version   = "0.1.0-dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// GlobalFlags holds the global CLI flags.
type GlobalFlags struct {
	ConfigFile string
	Output     string
	Verbose    bool
}

// AppContext holds the application runtime context.
type AppContext struct {
	Config     *config.Config
	ConfigPath string
	Loader     *config.Loader
	Formatter  *output.Formatter
	Flags      *GlobalFlags
	Container  *application.Container
}

var (
	globalFlags GlobalFlags
	appCtx      *AppContext
	appCtxMu    sync.RWMutex // Protects appCtx for thread-safe access
)

// skipInit lists commands that run without the container.
var skipInit = map[string]bool{
	"help":       true,
	"version":    true,
	"completion": true,
}

// NewRootCmd creates the root command for the docsync CLI.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "docsync",
		Short: "docsync - keep knowledge bases in step with your Drive files",
		Long: `docsync pushes watched Google Drive files into Dify knowledge bases.

Every destination profile has its own watch list and sync history. A file is
pending when it changed after its last push, and the daemon pushes pending files
of every profile on an interval.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if skipInit[cmd.Name()] {
				return nil
			}
			return initializeApp(cmd)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&globalFlags.ConfigFile, "config", "c", "", "config file path (default: ~/.docsync/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&globalFlags.Output, "output", "o", "text", "output format: text, json, table")
	rootCmd.PersistentFlags().BoolVarP(&globalFlags.Verbose, "verbose", "v", false, "enable verbose output")

	rootCmd.AddCommand(NewVersionCmd())
	rootCmd.AddCommand(NewStatusCmd())
	rootCmd.AddCommand(NewFilesCmd())
	rootCmd.AddCommand(NewWatchCmd())
	rootCmd.AddCommand(NewSyncCmd())
	rootCmd.AddCommand(NewDaemonCmd())
	rootCmd.AddCommand(NewProfileCmd())
	rootCmd.AddCommand(NewAuthCmd())
	rootCmd.AddCommand(NewMigrateCmd())
	rootCmd.AddCommand(NewHistoryCmd())

	return rootCmd
}

// newFormatter builds the formatter for the --output flag.
func newFormatter(cmd *cobra.Command) (*output.Formatter, error) {
	format, err := output.ParseFormat(globalFlags.Output)
	if err != nil {
		return nil, err
	}
	color := format != output.FormatJSON && cmd.OutOrStdout() == os.Stdout && output.ColorSupported(os.Stdout)
	return output.NewFormatter(
		output.WithWriter(cmd.OutOrStdout()),
		output.WithFormat(format),
		output.WithColor(color),
	), nil
}

// initializeApp loads the configuration, builds the container and runs the
// startup migrations before any command touches state.
func initializeApp(cmd *cobra.Command) error {
	formatter, err := newFormatter(cmd)
	if err != nil {
		return err
	}

	loader, err := config.NewLoader("")
	if err != nil {
		return fmt.Errorf("failed to create config loader: %w", err)
	}
	configPath := globalFlags.ConfigFile
	if configPath == "" {
		configPath = loader.DefaultConfigPath()
	}

	cfg, err := loader.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	opts := application.Options{Verbose: globalFlags.Verbose}
	if f := cmd.Flags().Lookup("log-file"); f != nil {
		opts.LogFile = f.Value.String()
	}
	container, err := application.NewContainer(cfg, opts)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	// The migrate command reports the import itself.
	if cmd.Name() != "migrate" {
		if _, added, err := container.ImportLegacy(ctx, cfg.Storage.LegacyStateFile); err != nil {
			formatter.Warning("Legacy state import failed: %v", err)
		} else if added > 0 {
			if err := loader.Save(cfg, configPath); err != nil {
				formatter.Warning("Could not save imported profiles: %v", err)
			}
		}
	}

	container.Connect(ctx)

	appCtxMu.Lock()
	appCtx = &AppContext{
		Config:     cfg,
		ConfigPath: configPath,
		Loader:     loader,
		Formatter:  formatter,
		Flags:      &globalFlags,
		Container:  container,
	}
	appCtxMu.Unlock()

	return nil
}

// GetAppContext returns the current application context.
// Returns nil if the app hasn't been initialized.
func GetAppContext() *AppContext {
	appCtxMu.RLock()
	defer appCtxMu.RUnlock()
	return appCtx
}

// GetFormatter returns the output formatter.
// Creates a default formatter if app context is not initialized.
func GetFormatter() *output.Formatter {
	if ctx := GetAppContext(); ctx != nil {
		return ctx.Formatter
	}
	return output.NewFormatter(output.WithColor(output.ColorSupported(os.Stdout)))
}

// GetContainer returns the application container.
// Returns nil if the app hasn't been initialized.
func GetContainer() *application.Container {
	if ctx := GetAppContext(); ctx != nil {
		return ctx.Container
	}
	return nil
}

// requireApp returns the app context or an error when initialization was skipped.
func requireApp() (*AppContext, error) {
	ctx := GetAppContext()
	if ctx == nil || ctx.Container == nil {
		return nil, errors.New("application not initialized")
	}
	return ctx, nil
}

// saveConfig persists the current configuration and pushes it into the
// running container.
func saveConfig(app *AppContext) error {
	if err := app.Config.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := app.Loader.Save(app.Config, app.ConfigPath); err != nil {
		return err
	}
	return app.Container.ApplyConfig(app.Config)
}

// Shutdown releases the container.
func Shutdown() {
	appCtxMu.Lock()
	defer appCtxMu.Unlock()

	if appCtx != nil && appCtx.Container != nil {
		_ = appCtx.Container.Close()
	}
	appCtx = nil
}

// Execute runs the root command. SIGINT and SIGTERM cancel the command context,
// which stops the daemon and aborts in-flight requests.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := NewRootCmd().ExecuteContext(ctx)
	if err != nil {
		GetFormatter().Error("%s", err.Error())
	}
	Shutdown()

	switch {
	case ctx.Err() != nil:
		os.Exit(130) // Standard exit code for SIGINT
	case err != nil:
		os.Exit(1)
	}
}
