package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/docpipe/internal/model"
)

var reconcileStrategy string

var reconcileCmd = &cobra.Command{
	Use:   "reconcile <document-id>",
	Short: "Compare document fields against fetched comparator data",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		result, err := env.Coordinator.Reconcile(ctx, args[0], reconcileStrategy)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "FIELD\tSTATUS\tSCORE\tSOURCE\tTARGET\tFROM")
		for _, d := range result.Diffs {
			fmt.Fprintf(w, "%s\t%s\t%.4f\t%s\t%s\t%s\n",
				d.Field, d.Status, d.Score, displayOrDash(d.Source), displayOrDash(d.Target), d.TargetName)
		}
		w.Flush()
		fmt.Printf("strategy: %s  overall: %.4f  matches: %d/%d\n",
			result.Strategy, result.OverallScore, result.Matches(), len(result.Diffs))
		return nil
	},
}

func displayOrDash(v *model.Value) string {
	if v == nil {
		return "-"
	}
	return v.Display()
}

func init() {
	reconcileCmd.Flags().StringVar(&reconcileStrategy, "strategy", "LOOSE", "comparison strategy: STRICT, LOOSE, or FUZZY")
	rootCmd.AddCommand(reconcileCmd)
}
