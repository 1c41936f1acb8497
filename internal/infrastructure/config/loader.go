package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jbctechsolutions/docsync/internal/domain/profile"
)

// EnvEnrichmentAPIKey overrides enrichment.api_key when set.
const EnvEnrichmentAPIKey = "DOCSYNC_ENRICHMENT_API_KEY"

// Loader handles loading configuration from files.
type Loader struct {
	configDir string
}

// NewLoader creates a new configuration loader.
// If configDir is empty, it defaults to ~/.docsync.
func NewLoader(configDir string) (*Loader, error) {
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(homeDir, ".docsync")
	}

	return &Loader{configDir: configDir}, nil
}

// Load loads configuration from the specified file or default location.
// If the file doesn't exist, returns the default configuration.
func (l *Loader) Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = l.DefaultConfigPath()
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := NewDefaultConfig()
		applyEnv(cfg)
		return cfg, nil
	}

	return l.LoadFromFile(configPath)
}

// LoadFromFile loads configuration from a specific file path.
// Returns an error if the file doesn't exist.
func (l *Loader) LoadFromFile(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", configPath)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	applyEnv(cfg)
	return cfg, nil
}

// Parse decodes YAML on top of the defaults and upgrades older layouts.
func Parse(data []byte) (*Config, error) {
	cfg := NewDefaultConfig()
	cfg.Version = 0
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if cfg.Version < CurrentVersion {
		var legacy legacyFields
		if err := yaml.Unmarshal(data, &legacy); err != nil {
			return nil, fmt.Errorf("failed to parse legacy config fields: %w", err)
		}
		upgrade(cfg, legacy)
	}

	return cfg, nil
}

// legacyFields is the flat single-destination layout used before profiles.
type legacyFields struct {
	DifyAPIKey    string `yaml:"dify_api_key"`
	DifyDatasetID string `yaml:"dify_dataset_id"`
	DifyBaseURL   string `yaml:"dify_base_url"`
	GeminiAPIKey  string `yaml:"gemini_api_key"`
	AutoSync      *bool  `yaml:"auto_sync"`
	SyncInterval  int    `yaml:"sync_interval"`
}

// upgrade folds the flat layout into the default profile. Values already
// present in the profile list win.
func upgrade(cfg *Config, legacy legacyFields) {
	if legacy.DifyAPIKey != "" || legacy.DifyDatasetID != "" || legacy.DifyBaseURL != "" {
		idx := -1
		for i, pc := range cfg.Profiles {
			if pc.ID == profile.DefaultID {
				idx = i
				break
			}
		}
		if idx < 0 {
			def := profile.Default()
			cfg.Profiles = append(cfg.Profiles, ProfileConfig{ID: def.ID, Name: def.Name, BaseURL: def.BaseURL})
			idx = len(cfg.Profiles) - 1
		}
		pc := &cfg.Profiles[idx]
		if pc.APIKey == "" {
			pc.APIKey = legacy.DifyAPIKey
		}
		if pc.DatasetID == "" {
			pc.DatasetID = legacy.DifyDatasetID
		}
		if legacy.DifyBaseURL != "" && (pc.BaseURL == "" || pc.BaseURL == profile.DefaultBaseURL) {
			pc.BaseURL = legacy.DifyBaseURL
		}
	}

	if legacy.GeminiAPIKey != "" && cfg.Enrichment.APIKey == "" {
		cfg.Enrichment.APIKey = legacy.GeminiAPIKey
		if !cfg.Enrichment.Enabled() {
			cfg.Enrichment.Provider = "gemini"
		}
	}
	if legacy.AutoSync != nil {
		cfg.Sync.AutoSync = *legacy.AutoSync
	}
	if legacy.SyncInterval > 0 {
		cfg.Sync.IntervalMinutes = legacy.SyncInterval
	}

	if cfg.ActiveProfile == "" && len(cfg.Profiles) > 0 {
		cfg.ActiveProfile = cfg.Profiles[0].ID
	}
	cfg.Version = CurrentVersion
}

func applyEnv(cfg *Config) {
	if key := os.Getenv(EnvEnrichmentAPIKey); key != "" {
		cfg.Enrichment.APIKey = key
	}
}

// Save saves configuration to the specified file or default location.
func (l *Loader) Save(cfg *Config, configPath string) error {
	if configPath == "" {
		configPath = l.DefaultConfigPath()
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	cfg.Version = CurrentVersion
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := `# docsync configuration
# Secrets prefixed with "enc:" are sealed to this machine.
#
`
	content := header + string(data)

	// Write to a sibling file and rename so watchers never see a partial file.
	tmp := configPath + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	if err := os.Rename(tmp, configPath); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace config file: %w", err)
	}

	return nil
}

// ConfigDir returns the configuration directory path.
func (l *Loader) ConfigDir() string {
	return l.configDir
}

// DefaultConfigPath returns the default configuration file path.
func (l *Loader) DefaultConfigPath() string {
	return filepath.Join(l.configDir, "config.yaml")
}

// ExpandPath resolves a leading "~/" against the user's home directory.
func ExpandPath(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(homeDir, strings.TrimPrefix(path, "~"))
}
