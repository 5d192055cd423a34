package cmd

import (
	"github.com/spf13/cobra"

	"github.com/oshokin/pybi-publisher/internal/config"
	"github.com/oshokin/pybi-publisher/internal/service/publisher"
)

// initConfigCmd writes the default settings.
var initConfigCmd = &cobra.Command{
	Use:   "init-config [path]",
	Short: "Write a config file with default settings",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		path := config.DefaultConfigFilename
		if len(args) > 0 {
			path = args[0]
		}

		return publisher.InitConfig(path)
	},
}
