// Package application provides application-level services and dependency injection.
package application

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/jbctechsolutions/docsync/internal/adapters/dify"
	"github.com/jbctechsolutions/docsync/internal/adapters/drive"
	"github.com/jbctechsolutions/docsync/internal/adapters/enrichment"
	"github.com/jbctechsolutions/docsync/internal/adapters/enrichment/anthropic"
	"github.com/jbctechsolutions/docsync/internal/adapters/enrichment/gemini"
	"github.com/jbctechsolutions/docsync/internal/adapters/store/remote"
	"github.com/jbctechsolutions/docsync/internal/adapters/store/sqlite"
	"github.com/jbctechsolutions/docsync/internal/application/migration"
	"github.com/jbctechsolutions/docsync/internal/application/ports"
	"github.com/jbctechsolutions/docsync/internal/application/reconcile"
	"github.com/jbctechsolutions/docsync/internal/infrastructure/config"
	"github.com/jbctechsolutions/docsync/internal/infrastructure/crypto"
	"github.com/jbctechsolutions/docsync/internal/infrastructure/logging"
	"github.com/jbctechsolutions/docsync/internal/infrastructure/tracing"
)

// stateBackend is what the container needs from a storage adapter.
type stateBackend interface {
	ports.StateStore
	ports.StateImporter
	ports.LeaseStore
}

// Options tune container construction.
type Options struct {
	// Verbose forces the info level regardless of the configured one.
	Verbose bool

	// LogFile overrides logging.file. The daemon uses it for a rotating log.
	LogFile string

	// StateDir holds the encryption salt. Empty means ~/.docsync.
	StateDir string
}

// Container holds all application dependencies and provides a central
// point for dependency injection. It manages the lifecycle of services
// and ensures proper initialization order.
type Container struct {
	config *config.Config
	opts   Options

	// Storage
	store stateBackend

	// Secrets
	encryptor *crypto.Encryptor
	tokens    *drive.TokenStore

	// Adapters
	drive       *drive.Client
	destination *dify.Client
	enrichers   *enrichment.Registry
	summarizer  ports.Summarizer

	// Reconciliation
	profiles   *reconcile.ProfileBook
	controller *reconcile.Controller
	overlay    *reconcile.Overlay
	projector  *reconcile.Projector
	pusher     *reconcile.Pusher
	dispatcher *reconcile.Dispatcher
	scheduler  *reconcile.Scheduler
	migrator   *migration.Migrator

	// Observability
	logger *logging.Logger
	tracer *tracing.Tracer
}

// NewContainer creates a new dependency injection container with all services
// initialized based on the provided configuration.
func NewContainer(cfg *config.Config, opts Options) (*Container, error) {
	if cfg == nil {
		cfg = config.NewDefaultConfig()
	}

	c := &Container{
		config: cfg,
		opts:   opts,
	}

	if err := c.initObservability(); err != nil {
		return nil, fmt.Errorf("failed to initialize observability: %w", err)
	}

	if err := c.initStorage(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	if err := c.initAdapters(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to initialize adapters: %w", err)
	}

	if err := c.initServices(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	return c, nil
}

// initObservability initializes logging and tracing.
func (c *Container) initObservability() error {
	ctx := context.Background()

	logLevel := logging.LevelInfo
	if !c.opts.Verbose {
		switch c.config.Logging.Level {
		case "debug":
			logLevel = logging.LevelDebug
		case "warn":
			logLevel = logging.LevelWarn
		case "error":
			logLevel = logging.LevelError
		}
	}

	logFormat := logging.FormatText
	if c.config.Logging.Format == "json" {
		logFormat = logging.FormatJSON
	}

	logFile := c.config.Logging.File
	if c.opts.LogFile != "" {
		logFile = c.opts.LogFile
	}

	c.logger = logging.New(logging.Config{
		Level:      logLevel,
		Format:     logFormat,
		TimeFormat: time.RFC3339,
		File:       config.ExpandPath(logFile),
		MaxSizeMB:  c.config.Logging.MaxSizeMB,
		MaxBackups: c.config.Logging.MaxBackups,
		MaxAgeDays: c.config.Logging.MaxAgeDays,
	})

	if c.config.Observability.Tracing.Enabled {
		tracingCfg := tracing.Config{
			Enabled:      true,
			ExporterType: tracing.ExporterType(c.config.Observability.Tracing.ExporterType),
			OTLPEndpoint: c.config.Observability.Tracing.OTLPEndpoint,
			ServiceName:  c.config.Observability.Tracing.ServiceName,
			Environment:  "production",
			SampleRate:   c.config.Observability.Tracing.SampleRate,
		}
		tracer, err := tracing.New(ctx, tracingCfg)
		if err != nil {
			return fmt.Errorf("failed to create tracer: %w", err)
		}
		c.tracer = tracer
	} else {
		c.tracer = tracing.Default()
	}

	return nil
}

// initStorage opens the configured state backend. Opening the SQLite store
// applies pending schema migrations.
func (c *Container) initStorage() error {
	storage := c.config.Storage
	switch storage.Backend {
	case "remote":
		token, err := c.revealLater(storage.RemoteToken)
		if err != nil {
			return err
		}
		c.store = remote.NewStore(storage.RemoteURL, token)
	default:
		store, err := sqlite.NewStore(config.ExpandPath(storage.Path))
		if err != nil {
			return err
		}
		c.store = store
	}
	return nil
}

// revealLater opens a sealed value once the encryptor exists; plain values pass
// through untouched.
func (c *Container) revealLater(value string) (string, error) {
	if !crypto.IsSealed(value) {
		return value, nil
	}
	if err := c.initEncryptor(); err != nil {
		return "", err
	}
	return c.encryptor.Reveal(value)
}

func (c *Container) initEncryptor() error {
	if c.encryptor != nil {
		return nil
	}
	enc, err := crypto.NewEncryptor(c.opts.StateDir)
	if err != nil {
		return fmt.Errorf("failed to create encryptor: %w", err)
	}
	c.encryptor = enc
	return nil
}

// initAdapters builds the file store, destination and enrichment clients.
func (c *Container) initAdapters() error {
	if err := c.initEncryptor(); err != nil {
		return err
	}

	driveCfg := c.config.Drive
	c.tokens = drive.NewTokenStore(
		config.ExpandPath(driveCfg.TokenFile),
		c.encryptor,
		drive.WithRevokeURL(driveCfg.RevokeURL),
	)
	c.drive = drive.NewClient(c.tokens,
		drive.WithBaseURL(driveCfg.BaseURL),
		drive.WithUserInfoURL(driveCfg.UserInfoURL),
		drive.WithTimeout(driveCfg.Timeout),
		drive.WithLogger(c.logger),
		drive.WithTracer(c.tracer),
	)

	dest := c.config.Destination
	c.destination = dify.NewClient(dify.Config{
		Timeout:           dest.Timeout,
		MaxRetries:        dest.MaxRetries,
		RequestsPerSecond: dest.RequestsPerSecond,
		Burst:             dest.Burst,
	}, dify.WithTracer(c.tracer))

	c.enrichers = enrichment.NewRegistry()
	if err := c.enrichers.Register(gemini.Name, gemini.Factory); err != nil {
		return err
	}
	if err := c.enrichers.Register(anthropic.Name, anthropic.Factory); err != nil {
		return err
	}

	en := c.config.Enrichment
	apiKey, err := c.encryptor.Reveal(en.APIKey)
	if err != nil {
		return fmt.Errorf("enrichment api key: %w", err)
	}
	summarizer, err := c.enrichers.Build(en.Provider, enrichment.Settings{
		APIKey:  apiKey,
		Model:   en.Model,
		BaseURL: en.BaseURL,
		Timeout: en.Timeout,
	})
	if err != nil {
		return fmt.Errorf("failed to build summarizer: %w", err)
	}
	if summarizer == nil && en.Enabled() {
		c.logger.Warn("enrichment enabled without an api key; summaries disabled", "provider", en.Provider)
	}
	c.summarizer = summarizer

	return nil
}

// initServices wires the reconciliation engine.
func (c *Container) initServices() error {
	set, err := c.config.ProfileSet(c.encryptor.Reveal)
	if err != nil {
		return err
	}
	c.profiles = reconcile.NewProfileBook(set, c.config.ActiveProfile)

	// Every process opening the store gets its own lease owner.
	owner := fmt.Sprintf("pid%d-%s", os.Getpid(), uuid.NewString()[:8])
	c.controller = reconcile.NewController(reconcile.WithLease(c.store, owner, reconcile.DefaultLeaseTTL))
	c.overlay = reconcile.NewOverlay(c.config.ActiveProfile)
	c.projector = reconcile.NewProjector(c.store, c.overlay)

	pushOpts := []reconcile.PusherOption{
		reconcile.WithSummaryTimeout(c.config.Sync.SummaryTimeout),
		reconcile.WithPushLogger(c.logger),
		reconcile.WithPushTracer(c.tracer),
	}
	if c.summarizer != nil {
		pushOpts = append(pushOpts, reconcile.WithSummarizer(c.summarizer))
	}
	c.pusher = reconcile.NewPusher(c.drive, c.destination, c.store, pushOpts...)

	deps := reconcile.Deps{
		Controller: c.controller,
		Overlay:    c.overlay,
		Pusher:     c.pusher,
		Store:      c.store,
		Lister:     c.drive,
		Profiles:   c.profiles,
		Logger:     c.logger,
		Tracer:     c.tracer,
	}
	c.dispatcher = reconcile.NewDispatcher(deps)
	c.scheduler = reconcile.NewScheduler(deps, SchedulerConfig(c.config))
	c.migrator = migration.NewMigrator(c.store, c.logger)

	return nil
}

// SchedulerConfig maps the sync section onto scheduler settings.
func SchedulerConfig(cfg *config.Config) reconcile.SchedulerConfig {
	return reconcile.SchedulerConfig{
		Enabled:      cfg.Sync.AutoSync,
		Interval:     cfg.SyncInterval(),
		SnapshotSize: cfg.Sync.SnapshotSize,
	}
}

// Connect marks the session usable when a file store token is available. It
// reports whether the controller is now connected.
func (c *Container) Connect(ctx context.Context) bool {
	if _, err := c.tokens.Token(ctx); err != nil {
		c.logger.Debug("no file store session", "error", err)
		return false
	}
	c.controller.Connect()
	return true
}

// Reconnect reloads credentials after the session was lost and connects when a
// token other than the refused one is available.
func (c *Container) Reconnect(ctx context.Context) bool {
	if c.controller.IsConnected() {
		return true
	}
	if err := c.tokens.Reauthenticate(ctx); err != nil {
		c.logger.Debug("file store session still unavailable", "error", err)
		return false
	}
	return c.Connect(ctx)
}

// Disconnect revokes the stored token and blocks further pushes.
func (c *Container) Disconnect(ctx context.Context) error {
	c.controller.Disconnect()
	return c.tokens.Revoke(ctx)
}

// ApplyConfig swaps in a reloaded configuration: profiles, the displayed profile
// and the scheduler settings. Adapters keep their original settings.
func (c *Container) ApplyConfig(cfg *config.Config) error {
	if err := c.initEncryptor(); err != nil {
		return err
	}
	set, err := cfg.ProfileSet(c.encryptor.Reveal)
	if err != nil {
		return err
	}
	c.config = cfg
	c.profiles.Replace(set, cfg.ActiveProfile)
	c.overlay.SetDisplayed(cfg.ActiveProfile)
	c.scheduler.Reconfigure(SchedulerConfig(cfg))
	return nil
}

// ImportLegacy merges the legacy state document at path. Profiles found in the
// legacy config are added to the configuration when their id is new; the
// returned count tells the caller whether the configuration needs saving.
func (c *Container) ImportLegacy(ctx context.Context, path string) (migration.Result, int, error) {
	res, err := c.migrator.ImportFile(ctx, config.ExpandPath(path), c.config.ActiveProfile)
	if err != nil || res.Skipped {
		return res, 0, err
	}

	added := 0
	for _, p := range res.Profiles {
		key := p.APIKey
		if key != "" {
			if key, err = c.encryptor.Seal(key); err != nil {
				return res, added, fmt.Errorf("failed to seal api key for %s: %w", p.ID, err)
			}
		}
		pc := config.ProfileConfig{ID: p.ID, Name: p.Name, DatasetID: p.DatasetID, BaseURL: p.BaseURL, APIKey: key}
		if err := c.config.AddProfile(pc); err != nil {
			c.logger.DebugContext(ctx, "legacy profile not added", "profile_id", p.ID, "error", err)
			continue
		}
		added++
	}
	if added > 0 {
		if err := c.ApplyConfig(c.config); err != nil {
			return res, added, err
		}
	}
	return res, added, nil
}

// Config returns the application configuration.
func (c *Container) Config() *config.Config {
	return c.config
}

// Store returns the watch and history store.
func (c *Container) Store() ports.StateStore {
	return c.store
}

// Encryptor returns the secret sealer.
func (c *Container) Encryptor() *crypto.Encryptor {
	return c.encryptor
}

// Tokens returns the file store token store.
func (c *Container) Tokens() *drive.TokenStore {
	return c.tokens
}

// Drive returns the file store client.
func (c *Container) Drive() *drive.Client {
	return c.drive
}

// Summarizer returns the enrichment provider, or nil when disabled.
func (c *Container) Summarizer() ports.Summarizer {
	return c.summarizer
}

// EnrichmentProviders lists the registered enrichment providers.
func (c *Container) EnrichmentProviders() []string {
	return c.enrichers.List()
}

// Profiles returns the live profile book.
func (c *Container) Profiles() *reconcile.ProfileBook {
	return c.profiles
}

// Controller returns the connection controller.
func (c *Container) Controller() *reconcile.Controller {
	return c.controller
}

// Overlay returns the transient status overlay.
func (c *Container) Overlay() *reconcile.Overlay {
	return c.overlay
}

// Projector returns the view projector.
func (c *Container) Projector() *reconcile.Projector {
	return c.projector
}

// Dispatcher returns the manual sync dispatcher.
func (c *Container) Dispatcher() *reconcile.Dispatcher {
	return c.dispatcher
}

// Scheduler returns the auto-sync scheduler.
func (c *Container) Scheduler() *reconcile.Scheduler {
	return c.scheduler
}

// Migrator returns the legacy state migrator.
func (c *Container) Migrator() *migration.Migrator {
	return c.migrator
}

// Logger returns the application logger.
func (c *Container) Logger() *logging.Logger {
	return c.logger
}

// Tracer returns the application tracer.
func (c *Container) Tracer() *tracing.Tracer {
	return c.tracer
}

// Close releases all resources held by the container.
func (c *Container) Close() error {
	var firstErr error

	if c.scheduler != nil {
		c.scheduler.Stop()
	}

	if c.tracer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := c.tracer.Shutdown(ctx); err != nil {
			firstErr = err
		}
		cancel()
	}

	if c.store != nil {
		if err := c.store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if c.logger != nil {
		if err := c.logger.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}
