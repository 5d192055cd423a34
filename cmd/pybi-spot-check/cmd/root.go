package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/pybi-publisher/internal/service/validator"
	"github.com/oshokin/pybi-publisher/internal/version"
)

var (
	// capabilitiesFile replaces the embedded capability rules.
	capabilitiesFile string
	// workDir is the parent of temporary directories.
	workDir string

	// rootCmd represents the base command for checking one artifact.
	rootCmd = &cobra.Command{
		Use:   "pybi-spot-check [artifact]",
		Short: "Run the capability checks against an interpreter archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			options := &validator.Options{
				Archive:          args[0],
				CapabilitiesFile: capabilitiesFile,
				WorkDir:          workDir,
			}

			return validator.Run(ctx, options)
		},
	}
)

// Execute runs the pybi-spot-check CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.Flags().StringVar(&capabilitiesFile, "capabilities", "", "capability rule file (YAML or JSONC)")
	rootCmd.Flags().StringVarP(&workDir, "work-dir", "w", "", "parent directory for temporary files")
}
