package main

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/docpipe/internal/model"
	"github.com/sells-group/docpipe/internal/pipeline"
)

var fetchTargets []string

var fetchCmd = &cobra.Command{
	Use:   "fetch <document-id>",
	Short: "Fetch comparator data from the configured targets",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		outcome, err := env.Coordinator.StartFetch(ctx, args[0], fetchTargets)
		var failed *pipeline.FetchFailedError
		if errors.As(err, &failed) {
			printOutcome(failed.Outcome)
			fmt.Fprintln(os.Stderr, "all targets failed, document left retryable")
			return err
		}
		if err != nil {
			return err
		}

		printOutcome(outcome)
		return nil
	},
}

func printOutcome(outcome *model.FetchOutcome) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TARGET\tSTATUS\tLATENCY\tFIELDS\tERROR")
	for _, r := range outcome.Results {
		fmt.Fprintf(w, "%s\t%s\t%dms\t%d\t%s\n", r.Target, r.Status, r.LatencyMS, len(r.Payload), r.Error)
	}
	w.Flush()
	fmt.Printf("aggregate: %s\n", outcome.Aggregate)
}

func init() {
	fetchCmd.Flags().StringArrayVar(&fetchTargets, "target", nil, "target name (repeatable, default all configured)")
	rootCmd.AddCommand(fetchCmd)
}
