package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/docpipe/internal/model"
)

var (
	listStage string
	listLimit int
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List documents, optionally filtered by stage",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		var stage model.Stage
		if listStage != "" {
			stage, err = model.ParseStage(listStage)
			if err != nil {
				return err
			}
		}

		docs, err := env.Coordinator.ListDocuments(ctx, stage, listLimit)
		if err != nil {
			return err
		}
		if len(docs) == 0 {
			fmt.Fprintln(os.Stderr, "No documents found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTYPE\tSTAGE\tFILENAME\tUPDATED")
		for _, d := range docs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				d.ID, d.DocType, d.Stage, d.Filename, d.UpdatedAt.Format("2006-01-02 15:04:05"))
		}
		return w.Flush()
	},
}

func init() {
	listCmd.Flags().StringVar(&listStage, "stage", "", "filter by stage")
	listCmd.Flags().IntVar(&listLimit, "limit", 50, "maximum documents to list")
	rootCmd.AddCommand(listCmd)
}
