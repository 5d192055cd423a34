package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/pybi-publisher/internal/service/augmenter"
	"github.com/oshokin/pybi-publisher/internal/version"
)

var (
	// workDir is the parent of temporary directories.
	workDir string

	// rootCmd represents the base command for installing pip into one artifact.
	rootCmd = &cobra.Command{
		Use:   "pybi-add-pip [artifact] [output]",
		Short: "Install pip into a relocatable interpreter archive",
		Long: `Unpacks the artifact, bootstraps pip with the bundled interpreter and repacks the tree.

The artifact file name must follow <implementation>-<version>-<platform>.<ext>;
the platform decides where the interpreter and entry points live inside the archive.`,
		Args: cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			options := &augmenter.Options{
				Archive: args[0],
				Output:  args[1],
				WorkDir: workDir,
			}

			return augmenter.Run(ctx, options)
		},
	}
)

// Execute runs the pybi-add-pip CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.Flags().StringVarP(&workDir, "work-dir", "w", "", "parent directory for temporary files")
}
