package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	finalizeDecision string
	finalizeDecider  string
	finalizeNotes    string
)

var finalizeCmd = &cobra.Command{
	Use:   "finalize <document-id>",
	Short: "Record the terminal decision for a document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		d, err := env.Coordinator.Finalize(ctx, args[0], finalizeDecision, finalizeDecider, finalizeNotes)
		if err != nil {
			return err
		}

		fmt.Printf("%s  %s  by %s at %s\n", args[0], d.Decision, d.Decider, d.DecidedAt.Format("2006-01-02 15:04:05"))
		return nil
	},
}

func init() {
	finalizeCmd.Flags().StringVar(&finalizeDecision, "decision", "", "APPROVED or REJECTED (required)")
	finalizeCmd.Flags().StringVar(&finalizeDecider, "decider", "", "decider identity (required)")
	finalizeCmd.Flags().StringVar(&finalizeNotes, "notes", "", "decision notes")
	_ = finalizeCmd.MarkFlagRequired("decision")
	_ = finalizeCmd.MarkFlagRequired("decider")
	rootCmd.AddCommand(finalizeCmd)
}
