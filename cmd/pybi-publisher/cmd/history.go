package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/oshokin/pybi-publisher/internal/service/publisher"
)

// historyLimit is the number of attempts to print.
var historyLimit int

// historyCmd prints recorded attempts.
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the latest recorded build attempts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		attempts, err := publisher.ListHistory(cmd.Context(), configPath, historyLimit)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "STARTED\tRUN\tARTIFACT\tOUTCOME\tPHASE\tDURATION\tERROR")

		for _, attempt := range attempts {
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				attempt.StartedAt.Local().Format(time.DateTime),
				attempt.RunID,
				attempt.Artifact,
				attempt.Outcome,
				attempt.Phase,
				attempt.Duration,
				attempt.Error,
			)
		}

		return w.Flush()
	},
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "l", 20, "number of attempts, 0 for all")
}
