package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/oshokin/pybi-publisher/internal/config"
	"github.com/oshokin/pybi-publisher/internal/service/publisher"
	"github.com/oshokin/pybi-publisher/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// options collects flag overrides for the run.
	options publisher.Options

	// rootCmd represents the base command for publishing new artifacts.
	rootCmd = &cobra.Command{
		Use:   "pybi-publisher [out-dir]",
		Short: "Publish pip-augmented interpreter archives for new upstream builds",
		Long: `Reads the upstream index, compares it with what the destination already holds
and builds every missing artifact: download, digest check, pip installation,
capability checks and publication.

Already published artifacts are skipped, so running it again is safe.
Settings come from the config file (default ` + config.DefaultConfigFilename + ` when present),
PYBI_* environment variables and the flags below, in increasing priority.`,
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE: func(_ *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			options.ConfigPath = configPath

			// A positional output directory selects the directory sink.
			if len(args) > 0 {
				options.Destination = config.DestinationDirectory
				options.OutputDir = args[0]
			}

			_, err := publisher.Run(ctx, &options)

			return err
		},
	}
)

// Execute runs the pybi-publisher CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to configuration file")

	bindRunFlags(rootCmd.Flags(), &options)

	rootCmd.AddCommand(historyCmd, capabilitiesCmd, initConfigCmd)
}

// bindRunFlags registers the overrides of a publishing run on flags.
func bindRunFlags(flags *pflag.FlagSet, opts *publisher.Options) {
	flags.StringVar(&opts.IndexURL, "index-url", "", "upstream index page")
	flags.StringVar(&opts.Destination, "destination", "", "sink kind: directory or release")
	flags.StringVarP(&opts.OutputDir, "output-dir", "o", "", "directory sink target")
	flags.StringVarP(&opts.Repository, "repository", "r", "", "owner/name of the release sink")
	flags.StringSliceVarP(&opts.Platforms, "platform", "p", nil, "platform tags to build (repeatable)")
	flags.BoolVarP(&opts.DryRun, "dry-run", "n", false, "list new artifacts without building them")
	flags.StringVar(&opts.LogLevel, "log-level", "", "log level")
}
