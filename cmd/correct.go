package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sells-group/docpipe/internal/model"
)

var (
	correctReviewer string
	correctReason   string
	correctSets     []string
)

var correctCmd = &cobra.Command{
	Use:   "correct <document-id>",
	Short: "Apply reviewer corrections and confirm a document",
	Long:  "Applies field overrides to a document awaiting review and moves it to HIL_CONFIRMED. With no --set flags the extracted snapshot is confirmed as is.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		now := time.Now().UTC()
		corrections := make([]model.Correction, 0, len(correctSets))
		for _, set := range correctSets {
			name, raw, ok := strings.Cut(set, "=")
			if !ok {
				return fmt.Errorf("invalid --set %q, want field=value", set)
			}
			corrections = append(corrections, model.Correction{
				Field: model.FieldValue{
					Name:       strings.TrimSpace(name),
					Value:      parseValue(strings.TrimSpace(raw)),
					Confidence: model.Confidence(1),
				},
				Reviewer: correctReviewer,
				Reason:   correctReason,
				At:       now,
			})
		}

		doc, err := env.Coordinator.SubmitCorrection(ctx, args[0], correctReviewer, corrections)
		if err != nil {
			return err
		}

		fmt.Printf("%s  %s  (%d corrections)\n", doc.ID, doc.Stage, len(corrections))
		return nil
	},
}

// parseValue types a command line value the same way extraction does:
// ISO date, boolean, number, else string.
func parseValue(s string) model.Value {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return model.Date(t)
	}
	switch strings.ToLower(s) {
	case "true":
		return model.Bool(true)
	case "false":
		return model.Bool(false)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return model.Number(f)
	}
	return model.String(s)
}

func init() {
	correctCmd.Flags().StringVar(&correctReviewer, "reviewer", "", "reviewer identity (required)")
	correctCmd.Flags().StringVar(&correctReason, "reason", "", "reason recorded with each correction")
	correctCmd.Flags().StringArrayVar(&correctSets, "set", nil, "field override as field=value (repeatable)")
	_ = correctCmd.MarkFlagRequired("reviewer")
	rootCmd.AddCommand(correctCmd)
}
