package publisher

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/oshokin/pybi-publisher/internal/api/github"
	"github.com/oshokin/pybi-publisher/internal/capability"
	"github.com/oshokin/pybi-publisher/internal/config"
	"github.com/oshokin/pybi-publisher/internal/domain/pybi"
	"github.com/oshokin/pybi-publisher/internal/logger"
	"github.com/oshokin/pybi-publisher/internal/repository/history"
	"github.com/oshokin/pybi-publisher/internal/repository/ledger"
	"github.com/oshokin/pybi-publisher/internal/runner"
	"github.com/oshokin/pybi-publisher/internal/service/augmenter"
	"github.com/oshokin/pybi-publisher/internal/service/builder"
	"github.com/oshokin/pybi-publisher/internal/service/validator"
	"github.com/oshokin/pybi-publisher/internal/tracing"
)

// shutdownTimeout bounds flushing spans on exit.
const shutdownTimeout = 5 * time.Second

// Options contains inputs for a publishing run. Non-empty fields override the config file.
type Options struct {
	// ConfigPath is the YAML config file; empty reads the default file when present.
	ConfigPath string
	// IndexURL overrides index_url.
	IndexURL string
	// Destination overrides destination.kind.
	Destination string
	// OutputDir overrides destination.output_dir.
	OutputDir string
	// Repository overrides destination.repository.
	Repository string
	// Platforms overrides platforms.
	Platforms []string
	// DryRun stops after deciding which identities are new.
	DryRun bool
	// LogLevel overrides log_level.
	LogLevel string
	// Runner starts interpreter subprocesses; real processes when nil.
	Runner runner.Runner
	// HTTPClient is used for every HTTP call; a client with the configured timeout when nil.
	HTTPClient *http.Client
}

// Run executes a publishing run and returns its summary.
func Run(ctx context.Context, opts *Options) (*Summary, error) {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "publisher")

	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}

	if level, ok := logger.ParseLogLevel(cfg.LogLevel); ok {
		logger.SetLevel(level)
	}

	provider, err := tracing.NewProvider(ctx, cfg.Tracing)
	if err != nil {
		return nil, fmt.Errorf("initialize tracing: %w", err)
	}

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()

		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.WarnKV(ctx, "Failed to flush spans", "error", err)
		}
	}()

	engine, err := capability.Load(cfg.CapabilitiesFile)
	if err != nil {
		return nil, fmt.Errorf("load capability rules: %w", err)
	}

	workDir := WorkDir(cfg)

	release, err := acquireMarker(ctx, workDir)
	if err != nil {
		return nil, err
	}

	defer release()

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	sink, err := newLedger(cfg, httpClient)
	if err != nil {
		return nil, err
	}

	repo, err := OpenHistory(ctx, cfg)
	if err != nil {
		return nil, err
	}

	defer func() {
		_ = repo.Close()
	}()

	r := opts.Runner
	if r == nil {
		r = runner.NewExecRunner()
	}

	runID := uuid.NewString()

	logger.InfoKV(ctx, "Starting run", "run_id", runID, "index_url", cfg.IndexURL, "sink", sink.String(),
		"dry_run", opts.DryRun)

	p := New(Config{
		RunID:      runID,
		IndexURL:   cfg.IndexURL,
		Platforms:  cfg.Platforms,
		DryRun:     opts.DryRun,
		Extension:  cfg.Extension,
		HTTPClient: httpClient,
		Engine:     engine,
		Ledger:     sink,
		History:    repo,
		Tracer:     provider.Tracer(),
		Builder: builder.New(builder.Config{
			HTTPClient: httpClient,
			WorkDir:    workDir,
			Extension:  cfg.Extension,
			Tracer:     provider.Tracer(),
			Augmenter:  augmenter.New(r, workDir),
			Validator:  validator.New(r, engine, workDir),
			Sink:       sink,
		}),
	})

	return p.Publish(ctx)
}

// loadConfig reads the config file and applies option overrides.
func loadConfig(opts *Options) (*config.Config, error) {
	cfg, err := config.Read(opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	if opts.IndexURL != "" {
		cfg.IndexURL = opts.IndexURL
	}

	if opts.Destination != "" {
		cfg.Destination.Kind = opts.Destination
	}

	if opts.OutputDir != "" {
		cfg.Destination.OutputDir = opts.OutputDir
	}

	if opts.Repository != "" {
		cfg.Destination.Repository = opts.Repository
	}

	if len(opts.Platforms) > 0 {
		cfg.Platforms = opts.Platforms
	}

	if opts.LogLevel != "" {
		cfg.LogLevel = opts.LogLevel
	}

	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// WorkDir returns the directory holding temporary build state and the run marker.
func WorkDir(cfg *config.Config) string {
	if cfg.WorkDir != "" {
		return cfg.WorkDir
	}

	return filepath.Join(os.TempDir(), "pybi-publisher")
}

func newLedger(cfg *config.Config, httpClient *http.Client) (ledger.Ledger, error) {
	switch cfg.Destination.Kind {
	case config.DestinationRelease:
		client, err := github.NewClient(github.Config{
			BaseURL:    cfg.Destination.APIURL,
			Repository: cfg.Destination.Repository,
			Token:      cfg.Destination.Token,
			HTTPClient: httpClient,
		})
		if err != nil {
			return nil, err
		}

		return ledger.NewReleaseLedger(client, cfg.Extension), nil
	default:
		return ledger.NewDirectoryLedger(cfg.Destination.OutputDir, cfg.Extension), nil
	}
}

// OpenHistory opens the attempt history configured in cfg, or a no-op one when disabled.
func OpenHistory(ctx context.Context, cfg *config.Config) (history.Repository, error) {
	if cfg.HistoryFile == "" {
		return history.NopRepository{}, nil
	}

	repo, err := history.Open(ctx, cfg.HistoryFile)
	if err != nil {
		return nil, err
	}

	return repo, nil
}

// ListHistory returns the latest recorded attempts.
func ListHistory(ctx context.Context, configPath string, limit int) ([]history.Attempt, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	repo, err := OpenHistory(ctx, cfg)
	if err != nil {
		return nil, err
	}

	defer func() {
		_ = repo.Close()
	}()

	return repo.List(ctx, limit)
}

// Capabilities returns the checks that apply to the artifact named name.
func Capabilities(configPath, name string) ([]capability.Capability, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	identity, err := pybi.Parse(name)
	if err != nil {
		return nil, err
	}

	engine, err := capability.Load(cfg.CapabilitiesFile)
	if err != nil {
		return nil, err
	}

	return engine.ApplicableCapabilities(identity)
}

// InitConfig writes the default configuration to path.
func InitConfig(path string) error {
	return config.Save(path, config.Default())
}
