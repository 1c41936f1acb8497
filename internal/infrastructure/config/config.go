// Package config provides configuration structs and utilities for the docsync application.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	domainErrors "github.com/jbctechsolutions/docsync/internal/domain/errors"
	"github.com/jbctechsolutions/docsync/internal/domain/profile"
)

// CurrentVersion is the configuration schema version written by Save.
const CurrentVersion = 3

// Config represents the root configuration for the docsync application.
type Config struct {
	Version       int                 `yaml:"version"`
	Drive         DriveConfig         `yaml:"drive"`
	Profiles      []ProfileConfig     `yaml:"profiles"`
	ActiveProfile string              `yaml:"active_profile"`
	Sync          SyncConfig          `yaml:"sync"`
	Destination   DestinationConfig   `yaml:"destination"`
	Enrichment    EnrichmentConfig    `yaml:"enrichment"`
	Storage       StorageConfig       `yaml:"storage"`
	Logging       LoggingConfig       `yaml:"logging"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// DriveConfig holds the file-store connection settings.
type DriveConfig struct {
	ClientID    string        `yaml:"client_id,omitempty"`
	APIKey      string        `yaml:"api_key,omitempty"`
	BaseURL     string        `yaml:"base_url"`
	UserInfoURL string        `yaml:"user_info_url"`
	RevokeURL   string        `yaml:"revoke_url"`
	TokenFile   string        `yaml:"token_file"`
	Timeout     time.Duration `yaml:"timeout"`
}

// ProfileConfig is the persisted form of a destination profile.
// APIKey may hold a sealed ("enc:") value.
type ProfileConfig struct {
	ID        string `yaml:"id"`
	Name      string `yaml:"name"`
	DatasetID string `yaml:"dataset_id"`
	BaseURL   string `yaml:"base_url,omitempty"`
	APIKey    string `yaml:"api_key,omitempty"`
}

// SyncConfig holds the auto-sync scheduler settings.
type SyncConfig struct {
	AutoSync        bool          `yaml:"auto_sync"`
	IntervalMinutes int           `yaml:"interval_minutes"`
	SnapshotSize    int           `yaml:"snapshot_size"` // files per scheduler snapshot
	SummaryTimeout  time.Duration `yaml:"summary_timeout"`
}

// DestinationConfig holds settings shared by all destination pushes.
type DestinationConfig struct {
	Timeout           time.Duration `yaml:"timeout"`
	MaxRetries        int           `yaml:"max_retries"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
}

// EnrichmentConfig selects the optional summary provider.
type EnrichmentConfig struct {
	Provider string        `yaml:"provider"` // none, gemini, anthropic
	APIKey   string        `yaml:"api_key,omitempty"`
	Model    string        `yaml:"model,omitempty"`
	BaseURL  string        `yaml:"base_url,omitempty"`
	Timeout  time.Duration `yaml:"timeout"`
}

// StorageConfig selects where watch sets and history live.
type StorageConfig struct {
	Backend         string `yaml:"backend"` // sqlite, remote
	Path            string `yaml:"path"`
	RemoteURL       string `yaml:"remote_url,omitempty"`
	RemoteToken     string `yaml:"remote_token,omitempty"`
	LegacyStateFile string `yaml:"legacy_state_file"`
}

// LoggingConfig holds configuration for application logging.
type LoggingConfig struct {
	Level      string `yaml:"level"`  // debug, info, warn, error
	Format     string `yaml:"format"` // json, text
	File       string `yaml:"file,omitempty"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// ObservabilityConfig holds configuration for observability features.
type ObservabilityConfig struct {
	Tracing TracingConfig `yaml:"tracing"`
}

// TracingConfig holds configuration for distributed tracing.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	ExporterType string  `yaml:"exporter_type"` // none, stdout, otlp
	OTLPEndpoint string  `yaml:"otlp_endpoint"`
	SampleRate   float64 `yaml:"sample_rate"`
	ServiceName  string  `yaml:"service_name"`
}

// Default configuration values.
const (
	DefaultDriveBaseURL    = "https://www.googleapis.com/drive/v3"
	DefaultUserInfoURL     = "https://www.googleapis.com/oauth2/v1/userinfo"
	DefaultRevokeURL       = "https://oauth2.googleapis.com/revoke"
	DefaultTokenFile       = "~/.docsync/drive_token"
	DefaultTimeout         = 30 * time.Second
	DefaultSyncInterval    = 5 // minutes
	DefaultSnapshotSize    = 100
	DefaultSummaryTimeout  = 20 * time.Second
	DefaultMaxRetries      = 2
	DefaultRequestsPerSec  = 2.0
	DefaultBurst           = 1
	DefaultEnrichment      = "none"
	DefaultStorageBackend  = "sqlite"
	DefaultStoragePath     = "~/.docsync/docsync.db"
	DefaultLegacyStateFile = "~/.docsync/legacy_state.json"
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "text"
	DefaultLogMaxSizeMB    = 10
	DefaultLogMaxBackups   = 3
	DefaultLogMaxAgeDays   = 28

	DefaultTracingExporterType = "none"
	DefaultTracingSampleRate   = 1.0
	DefaultTracingServiceName  = "docsync"
)

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

var validLogFormats = map[string]bool{"json": true, "text": true}

var validTracingExporterTypes = map[string]bool{"none": true, "stdout": true, "otlp": true}

var validEnrichmentProviders = map[string]bool{"none": true, "gemini": true, "anthropic": true}

var validStorageBackends = map[string]bool{"sqlite": true, "remote": true}

// NewDefaultConfig creates a new Config with sensible default values.
func NewDefaultConfig() *Config {
	def := profile.Default()
	return &Config{
		Version: CurrentVersion,
		Drive: DriveConfig{
			BaseURL:     DefaultDriveBaseURL,
			UserInfoURL: DefaultUserInfoURL,
			RevokeURL:   DefaultRevokeURL,
			TokenFile:   DefaultTokenFile,
			Timeout:     DefaultTimeout,
		},
		Profiles:      []ProfileConfig{{ID: def.ID, Name: def.Name, BaseURL: def.BaseURL}},
		ActiveProfile: def.ID,
		Sync: SyncConfig{
			AutoSync:        false,
			IntervalMinutes: DefaultSyncInterval,
			SnapshotSize:    DefaultSnapshotSize,
			SummaryTimeout:  DefaultSummaryTimeout,
		},
		Destination: DestinationConfig{
			Timeout:           DefaultTimeout,
			MaxRetries:        DefaultMaxRetries,
			RequestsPerSecond: DefaultRequestsPerSec,
			Burst:             DefaultBurst,
		},
		Enrichment: EnrichmentConfig{
			Provider: DefaultEnrichment,
			Timeout:  DefaultSummaryTimeout,
		},
		Storage: StorageConfig{
			Backend:         DefaultStorageBackend,
			Path:            DefaultStoragePath,
			LegacyStateFile: DefaultLegacyStateFile,
		},
		Logging: LoggingConfig{
			Level:      DefaultLogLevel,
			Format:     DefaultLogFormat,
			MaxSizeMB:  DefaultLogMaxSizeMB,
			MaxBackups: DefaultLogMaxBackups,
			MaxAgeDays: DefaultLogMaxAgeDays,
		},
		Observability: ObservabilityConfig{
			Tracing: TracingConfig{
				ExporterType: DefaultTracingExporterType,
				SampleRate:   DefaultTracingSampleRate,
				ServiceName:  DefaultTracingServiceName,
			},
		},
	}
}

// SyncInterval returns the scheduler interval as a duration.
func (c *Config) SyncInterval() time.Duration {
	return time.Duration(c.Sync.IntervalMinutes) * time.Minute
}

// ProfileSet converts the persisted profiles to domain profiles. reveal turns
// stored API keys into usable ones; nil keeps them as stored.
func (c *Config) ProfileSet(reveal func(string) (string, error)) (profile.Set, error) {
	set := make(profile.Set, 0, len(c.Profiles))
	for _, pc := range c.Profiles {
		key := pc.APIKey
		if reveal != nil && key != "" {
			var err error
			if key, err = reveal(key); err != nil {
				return nil, fmt.Errorf("profile %s: api key: %w", pc.ID, err)
			}
		}
		set = append(set, profile.Profile{
			ID:        pc.ID,
			Name:      pc.Name,
			DatasetID: pc.DatasetID,
			BaseURL:   pc.BaseURL,
			APIKey:    key,
		})
	}
	return set, nil
}

// AddProfile appends a profile, enforcing unique ids.
func (c *Config) AddProfile(pc ProfileConfig) error {
	set, _ := c.ProfileSet(nil)
	if _, err := set.Add(profile.Profile{ID: pc.ID}); err != nil {
		return err
	}
	c.Profiles = append(c.Profiles, pc)
	return nil
}

// RemoveProfile deletes a profile. The last profile cannot be removed. When the
// active profile is removed the first remaining one becomes active.
func (c *Config) RemoveProfile(id string) error {
	set, _ := c.ProfileSet(nil)
	if _, err := set.Remove(id); err != nil {
		return err
	}
	kept := c.Profiles[:0]
	for _, pc := range c.Profiles {
		if pc.ID != id {
			kept = append(kept, pc)
		}
	}
	c.Profiles = kept
	if c.ActiveProfile == id {
		c.ActiveProfile = c.Profiles[0].ID
	}
	return nil
}

// SetActiveProfile switches the displayed profile.
func (c *Config) SetActiveProfile(id string) error {
	set, _ := c.ProfileSet(nil)
	if _, ok := set.Find(id); !ok {
		return fmt.Errorf("%w: %s", domainErrors.ErrProfileNotFound, id)
	}
	c.ActiveProfile = id
	return nil
}

// Validate checks if the configuration is valid and returns an error if not.
func (c *Config) Validate() error {
	var errs []error

	if err := c.validateProfiles(); err != nil {
		errs = append(errs, fmt.Errorf("profiles: %w", err))
	}
	if err := c.Drive.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("drive: %w", err))
	}
	if err := c.Sync.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("sync: %w", err))
	}
	if err := c.Destination.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("destination: %w", err))
	}
	if err := c.Enrichment.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("enrichment: %w", err))
	}
	if err := c.Storage.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("storage: %w", err))
	}
	if err := c.Logging.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("logging: %w", err))
	}
	if err := c.Observability.Tracing.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("observability: tracing: %w", err))
	}

	return errors.Join(errs...)
}

func (c *Config) validateProfiles() error {
	set, _ := c.ProfileSet(nil)
	if err := set.Validate(); err != nil {
		return err
	}
	if _, ok := set.Find(c.ActiveProfile); !ok {
		return fmt.Errorf("active profile %q is not configured", c.ActiveProfile)
	}
	var errs []error
	for _, pc := range c.Profiles {
		if pc.BaseURL != "" {
			if err := validateURL(pc.BaseURL); err != nil {
				errs = append(errs, fmt.Errorf("%s: base_url: %w", pc.ID, err))
			}
		}
	}
	return errors.Join(errs...)
}

// Validate checks if the DriveConfig is valid.
func (d *DriveConfig) Validate() error {
	var errs []error
	if err := validateURL(d.BaseURL); err != nil {
		errs = append(errs, fmt.Errorf("base_url: %w", err))
	}
	if d.Timeout < 0 {
		errs = append(errs, errors.New("timeout must be non-negative"))
	}
	return errors.Join(errs...)
}

// Validate checks if the SyncConfig is valid.
func (s *SyncConfig) Validate() error {
	var errs []error
	if s.IntervalMinutes < 1 {
		errs = append(errs, fmt.Errorf("interval_minutes must be at least 1, got %d", s.IntervalMinutes))
	}
	if s.SnapshotSize < 1 || s.SnapshotSize > 1000 {
		errs = append(errs, fmt.Errorf("snapshot_size must be between 1 and 1000, got %d", s.SnapshotSize))
	}
	if s.SummaryTimeout < 0 {
		errs = append(errs, errors.New("summary_timeout must be non-negative"))
	}
	return errors.Join(errs...)
}

// Validate checks if the DestinationConfig is valid.
func (d *DestinationConfig) Validate() error {
	var errs []error
	if d.MaxRetries < 0 {
		errs = append(errs, errors.New("max_retries must be non-negative"))
	}
	if d.RequestsPerSecond < 0 {
		errs = append(errs, errors.New("requests_per_second must be non-negative"))
	}
	if d.RequestsPerSecond > 0 && d.Burst < 1 {
		errs = append(errs, errors.New("burst must be at least 1 when rate limiting"))
	}
	return errors.Join(errs...)
}

// Validate checks if the EnrichmentConfig is valid.
func (e *EnrichmentConfig) Validate() error {
	if e.Provider != "" && !validEnrichmentProviders[e.Provider] {
		return fmt.Errorf("invalid provider %q: must be one of none, gemini, anthropic", e.Provider)
	}
	if e.BaseURL != "" {
		if err := validateURL(e.BaseURL); err != nil {
			return fmt.Errorf("base_url: %w", err)
		}
	}
	return nil
}

// Enabled reports whether a summary provider is configured.
func (e *EnrichmentConfig) Enabled() bool {
	return e.Provider != "" && e.Provider != "none"
}

// Validate checks if the StorageConfig is valid.
func (s *StorageConfig) Validate() error {
	if !validStorageBackends[s.Backend] {
		return fmt.Errorf("invalid backend %q: must be one of sqlite, remote", s.Backend)
	}
	if s.Backend == "remote" {
		if s.RemoteURL == "" {
			return errors.New("remote_url is required for the remote backend")
		}
		return validateURL(s.RemoteURL)
	}
	return nil
}

// Validate checks if the LoggingConfig is valid.
func (l *LoggingConfig) Validate() error {
	var errs []error
	if l.Level != "" && !validLogLevels[l.Level] {
		errs = append(errs, fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", l.Level))
	}
	if l.Format != "" && !validLogFormats[l.Format] {
		errs = append(errs, fmt.Errorf("invalid log format %q: must be one of json, text", l.Format))
	}
	return errors.Join(errs...)
}

// Validate checks if the TracingConfig is valid.
func (t *TracingConfig) Validate() error {
	var errs []error
	if t.ExporterType != "" && !validTracingExporterTypes[t.ExporterType] {
		errs = append(errs, fmt.Errorf("invalid exporter type %q: must be one of none, stdout, otlp", t.ExporterType))
	}
	if t.SampleRate < 0 || t.SampleRate > 1 {
		errs = append(errs, fmt.Errorf("sample rate must be between 0.0 and 1.0, got %f", t.SampleRate))
	}
	if t.Enabled && t.ExporterType == "otlp" && t.OTLPEndpoint == "" {
		errs = append(errs, errors.New("otlp_endpoint is required when using otlp exporter"))
	}
	return errors.Join(errs...)
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid URL %q: scheme must be http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid URL %q: missing host", raw)
	}
	return nil
}
