package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/oshokin/pybi-publisher/internal/domain/pybi"
	"github.com/oshokin/pybi-publisher/internal/logger"
	"github.com/oshokin/pybi-publisher/internal/tracing"
)

// Destination kinds.
const (
	// DestinationDirectory publishes into a local directory.
	DestinationDirectory = "directory"
	// DestinationRelease publishes as GitHub release assets.
	DestinationRelease = "release"
)

// Destination selects and configures the sink.
type Destination struct {
	// Kind is directory or release.
	Kind string `yaml:"kind" mapstructure:"kind"`
	// OutputDir is the target of the directory sink.
	OutputDir string `yaml:"output_dir,omitempty" mapstructure:"output_dir"`
	// Repository is the owner/name of the release sink.
	Repository string `yaml:"repository,omitempty" mapstructure:"repository"`
	// APIURL overrides the releases API root.
	APIURL string `yaml:"api_url,omitempty" mapstructure:"api_url"`
	// Token authenticates release uploads. It is read from the environment and never saved.
	Token string `yaml:"-" mapstructure:"token"`
}

// Config holds the settings of a publishing run.
type Config struct {
	// IndexURL is the page listing the base artifacts.
	IndexURL string `yaml:"index_url" mapstructure:"index_url"`
	// Destination is where finished artifacts go.
	Destination Destination `yaml:"destination" mapstructure:"destination"`
	// Platforms restricts the build to these platform tags; empty means every discovered artifact.
	Platforms []string `yaml:"platforms,omitempty" mapstructure:"platforms"`
	// CapabilitiesFile replaces the embedded capability rule table.
	CapabilitiesFile string `yaml:"capabilities_file,omitempty" mapstructure:"capabilities_file"`
	// WorkDir is the parent of temporary directories and the run marker.
	WorkDir string `yaml:"work_dir,omitempty" mapstructure:"work_dir"`
	// HistoryFile is the SQLite file recording attempts; empty disables history.
	HistoryFile string `yaml:"history_file,omitempty" mapstructure:"history_file"`
	// Extension is the artifact file extension.
	Extension string `yaml:"extension" mapstructure:"extension"`
	// Timeout bounds each HTTP request.
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
	// LogLevel is the zap level name.
	LogLevel string `yaml:"log_level" mapstructure:"log_level"`
	// Tracing configures span export.
	Tracing tracing.Config `yaml:"tracing" mapstructure:"tracing"`
}

const (
	// DefaultConfigFilename is read when no path is given.
	DefaultConfigFilename = "pybi-publisher.yaml"

	// DefaultIndexURL is the upstream index of base artifacts.
	DefaultIndexURL = "https://pybi.vorpus.org/cpython_unofficial/"

	// DefaultTimeout bounds each HTTP request.
	DefaultTimeout = 5 * time.Minute

	// DefaultLogLevel is used when no level is configured.
	DefaultLogLevel = "info"

	// DefaultFilePermissions is the mode of saved config files.
	DefaultFilePermissions = 0o600

	// envPrefix prefixes every environment override.
	envPrefix = "PYBI"
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errInvalidIndexURL is returned for index URLs that are not absolute http(s).
	errInvalidIndexURL = errors.New("index url must be an absolute http or https url")
	// errInvalidDestination is returned for unknown or incomplete destinations.
	errInvalidDestination = errors.New("invalid destination")
	// errInvalidExtension is returned for extensions without a leading dot.
	errInvalidExtension = errors.New("extension must start with a dot")
	// errInvalidLogLevel is returned for unknown level names.
	errInvalidLogLevel = errors.New("unknown log level")
)

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		IndexURL:    DefaultIndexURL,
		Destination: Destination{Kind: DestinationDirectory, OutputDir: "dist"},
		Extension:   pybi.DefaultExtension,
		Timeout:     DefaultTimeout,
		LogLevel:    DefaultLogLevel,
		Tracing:     tracing.DefaultConfig(),
	}
}

// Load reads configuration from path, overlays PYBI_* environment variables and validates it.
// An empty path reads DefaultConfigFilename when it exists.
func Load(path string) (*Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Read is Load without validation, for callers that apply overrides first.
func Read(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.BindEnv("destination.token", envPrefix+"_TOKEN", "GH_TOKEN", "GITHUB_TOKEN"); err != nil {
		return nil, fmt.Errorf("bind token: %w", err)
	}

	explicit := path != ""
	if !explicit {
		path = DefaultConfigFilename
	}

	v.SetConfigFile(filepath.Clean(path))

	if err := v.ReadInConfig(); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read settings: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("index_url", cfg.IndexURL)
	v.SetDefault("destination.kind", cfg.Destination.Kind)
	v.SetDefault("destination.output_dir", cfg.Destination.OutputDir)
	v.SetDefault("destination.repository", cfg.Destination.Repository)
	v.SetDefault("destination.api_url", cfg.Destination.APIURL)
	v.SetDefault("destination.token", "")
	v.SetDefault("platforms", cfg.Platforms)
	v.SetDefault("capabilities_file", cfg.CapabilitiesFile)
	v.SetDefault("work_dir", cfg.WorkDir)
	v.SetDefault("history_file", cfg.HistoryFile)
	v.SetDefault("extension", cfg.Extension)
	v.SetDefault("timeout", cfg.Timeout)
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("tracing.enabled", cfg.Tracing.Enabled)
	v.SetDefault("tracing.exporter", cfg.Tracing.Exporter)
	v.SetDefault("tracing.otlp_endpoint", cfg.Tracing.OTLPEndpoint)
	v.SetDefault("tracing.otlp_insecure", cfg.Tracing.OTLPInsecure)
	v.SetDefault("tracing.sample_rate", cfg.Tracing.SampleRate)
}

// Save writes cfg to path as YAML. The release token is never written.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// Restrict permissions.
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks cfg and fills in defaults for optional fields.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if cfg.IndexURL == "" {
		cfg.IndexURL = DefaultIndexURL
	}

	indexURL, err := url.ParseRequestURI(cfg.IndexURL)
	if err != nil || (indexURL.Scheme != "http" && indexURL.Scheme != "https") || indexURL.Host == "" {
		return fmt.Errorf("%q: %w", cfg.IndexURL, errInvalidIndexURL)
	}

	if err := validateDestination(&cfg.Destination); err != nil {
		return err
	}

	// Set default timeout if not specified
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	if cfg.Extension == "" {
		cfg.Extension = pybi.DefaultExtension
	}

	if !strings.HasPrefix(cfg.Extension, ".") || strings.Contains(cfg.Extension, "-") {
		return fmt.Errorf("%q: %w", cfg.Extension, errInvalidExtension)
	}

	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}

	if _, ok := logger.ParseLogLevel(cfg.LogLevel); !ok {
		return fmt.Errorf("%q: %w", cfg.LogLevel, errInvalidLogLevel)
	}

	return nil
}

func validateDestination(destination *Destination) error {
	if destination.Kind == "" {
		destination.Kind = DestinationDirectory
	}

	switch destination.Kind {
	case DestinationDirectory:
		if destination.OutputDir == "" {
			return fmt.Errorf("directory destination needs output_dir: %w", errInvalidDestination)
		}
	case DestinationRelease:
		owner, name, ok := strings.Cut(destination.Repository, "/")
		if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
			return fmt.Errorf("release destination needs repository as owner/name, got %q: %w",
				destination.Repository, errInvalidDestination)
		}
	default:
		return fmt.Errorf("kind %q: %w", destination.Kind, errInvalidDestination)
	}

	return nil
}
