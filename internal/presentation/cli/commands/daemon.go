package commands

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/jbctechsolutions/docsync/internal/application/reconcile"
	"github.com/jbctechsolutions/docsync/internal/infrastructure/config"
	"github.com/jbctechsolutions/docsync/internal/presentation/cli/output"
)

// reconnectInterval is how often a disconnected daemon looks for a new token.
const reconnectInterval = time.Minute

type daemonOptions struct {
	logFile string
	once    bool
}

// NewDaemonCmd creates the daemon command.
func NewDaemonCmd() *cobra.Command {
	var opts daemonOptions

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the auto-sync scheduler in the foreground",
		Long: `Run the scheduler. Every interval it lists Drive once and pushes, profile
by profile, the watched files that changed since their last push.

The config file is watched: edits to profiles, the active profile, the interval
or sync.auto_sync apply without a restart. An expired session stops the
scheduler until a new token is saved with 'docsync auth login'.`,
		Example: `  docsync daemon
  docsync daemon --log-file ~/.docsync/daemon.log
  docsync daemon --once -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp()
			if err != nil {
				return err
			}
			if opts.once {
				return runTickOnce(cmd.Context(), app)
			}
			return runDaemon(cmd.Context(), app)
		},
	}

	cmd.Flags().StringVar(&opts.logFile, "log-file", "", "write logs to this rotating file instead of stderr")
	cmd.Flags().BoolVar(&opts.once, "once", false, "run a single reconciliation pass and exit")

	return cmd
}

func runTickOnce(ctx context.Context, app *AppContext) error {
	report := app.Container.Scheduler().RunTick(ctx)
	printTick(app.Formatter, report)
	return report.Err
}

func runDaemon(ctx context.Context, app *AppContext) error {
	c := app.Container
	f := app.Formatter
	scheduler := c.Scheduler()

	scheduler.OnTick(func(r reconcile.TickReport) { printTick(f, r) })
	if err := scheduler.Start(ctx); err != nil {
		return err
	}
	defer scheduler.Stop()

	watcher, err := config.NewWatcher(app.Loader, app.ConfigPath, config.DefaultDebounce)
	if err != nil {
		return err
	}
	defer watcher.Close()
	if err := watcher.Start(ctx); err != nil {
		return err
	}

	if !c.Controller().IsConnected() {
		f.Warning("Not connected to Drive; waiting for 'docsync auth login'")
	}
	if !c.Config().Sync.AutoSync {
		f.Warning("Auto-sync is off; set sync.auto_sync in %s", app.ConfigPath)
	}
	f.Info("Daemon running (interval %s)", scheduler.Config().Interval)

	reconnect := time.NewTicker(reconnectInterval)
	defer reconnect.Stop()

	for {
		select {
		case <-ctx.Done():
			f.Info("Shutting down")
			return nil

		case r, ok := <-watcher.Reloads():
			if !ok {
				return nil
			}
			applyReload(ctx, app, r)

		case <-reconnect.C:
			if c.Controller().IsConnected() {
				continue
			}
			if c.Reconnect(ctx) {
				f.Success("Drive session restored")
			}
		}
	}
}

func applyReload(ctx context.Context, app *AppContext, r config.Reload) {
	f := app.Formatter
	logger := app.Container.Logger()
	if r.Err == nil {
		r.Err = r.Config.Validate()
	}
	if r.Err != nil {
		logger.WarnContext(ctx, "config reload rejected", "error", r.Err)
		f.Warning("Config reload rejected: %v", r.Err)
		return
	}
	if err := app.Container.ApplyConfig(r.Config); err != nil {
		logger.WarnContext(ctx, "config reload failed", "error", err)
		f.Warning("Config reload failed: %v", err)
		return
	}
	app.Config = r.Config
	logger.InfoContext(ctx, "config reloaded", "profiles", len(r.Config.Profiles), "active_profile", r.Config.ActiveProfile)
	f.Info("Config reloaded")
}

// tickLine is the JSON form of a tick report.
type tickLine struct {
	reconcile.TickReport
	Pushed int    `json:"pushed"`
	Failed int    `json:"failed"`
	Error  string `json:"error,omitempty"`
}

func printTick(f *output.Formatter, r reconcile.TickReport) {
	line := tickLine{TickReport: r, Pushed: r.Pushed(), Failed: r.Failed()}
	if r.Err != nil {
		line.Error = r.Err.Error()
	}

	if f.Format() == output.FormatJSON {
		_ = f.JSON(line)
		return
	}

	stamp := f.Dim(r.StartedAt.Format(time.TimeOnly))
	switch {
	case r.Skipped:
		f.Println("%s tick skipped: %s", stamp, r.SkipReason)
	case r.Aborted:
		f.Println("%s %s after %d pushed: %v", stamp, f.Colorize("tick aborted", output.ColorRed), line.Pushed, r.Err)
	default:
		f.Println("%s tick done: %d pushed, %d failed (%s)", stamp, line.Pushed, line.Failed,
			r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
	}
	for _, p := range r.Profiles {
		for _, res := range p.Results {
			if res.Err != nil {
				f.Println("  %s %s/%s: %v", f.Colorize("✗", output.ColorRed), p.ProfileID, res.FileName, res.Err)
			}
		}
	}
}
