package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var auditCmd = &cobra.Command{
	Use:   "audit <document-id>",
	Short: "Print a document's audit trail, oldest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		entries, err := env.Coordinator.Audit(ctx, args[0])
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SEQ\tAT\tACTOR\tACTION\tFROM\tTO\tOUTCOME")
		for _, e := range entries {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
				e.Seq, e.At.Format("2006-01-02 15:04:05"), e.Actor, e.Action, e.FromStage, e.ToStage, e.Outcome)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(auditCmd)
}
