package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/docpipe/internal/model"
)

var ingestDocType string

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>",
	Short: "Ingest a document and route it by extraction confidence",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		content, err := os.ReadFile(args[0])
		if err != nil {
			return eris.Wrapf(err, "read %s", args[0])
		}

		doc, err := env.Coordinator.Ingest(ctx, filepath.Base(args[0]), ingestDocType, content)
		if err != nil {
			return err
		}

		fmt.Printf("%s  %s\n", doc.ID, doc.Stage)
		if doc.Stage == model.StageHILRequired {
			fmt.Fprintln(os.Stderr, "low-confidence fields present, review with: docpipe correct "+doc.ID)
		}
		return nil
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestDocType, "type", "invoice", "document type")
	rootCmd.AddCommand(ingestCmd)
}
