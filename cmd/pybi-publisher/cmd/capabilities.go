package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/oshokin/pybi-publisher/internal/service/publisher"
)

// capabilitiesCmd prints the checks applying to an artifact name.
var capabilitiesCmd = &cobra.Command{
	Use:   "capabilities [artifact-name]",
	Short: "List the capability checks for an artifact",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		capabilities, err := publisher.Capabilities(configPath, args[0])
		if err != nil {
			return err
		}

		for _, c := range capabilities {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", c.Kind, c.Name)
		}

		return nil
	},
}
