package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/docpipe/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "docpipe",
	Short: "Document reconciliation pipeline",
	Long:  "Ingests documents, routes low-confidence extractions to human review, fetches comparator data from configured targets, and reconciles field by field with an auditable decision trail.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
