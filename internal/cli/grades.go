package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mlenz-dev/aibroker/internal/models"
	"github.com/mlenz-dev/aibroker/internal/store"
)

var gradesCmd = &cobra.Command{
	Use:   "grades <submission-id>",
	Short: "Inspect the grading record for a submission",
	Long: `Look up a submission's grading record and print its state.

A completed record prints the score and comment; a failed or skipped record
prints the reason; a pending or processing record prints only the status.

Examples:
  aibroker grades subm-4711`,
	Args: cobra.ExactArgs(1),
	RunE: runGrades,
}

func runGrades(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	rec, err := storeClient.QueryGetGradingRecord(ctx, args[0])
	if err != nil {
		return fmt.Errorf("get grading record: %w", err)
	}
	if rec == nil {
		return fmt.Errorf("grading record %q: %w", args[0], store.ErrNotFound)
	}

	printGradingRecord(cmd.OutOrStdout(), args[0], rec)
	return nil
}

func printGradingRecord(w io.Writer, submissionID string, rec *models.GradingRecord) {
	fmt.Fprintf(w, "Submission: %s\n", submissionID)
	fmt.Fprintf(w, "Status:     %s\n", rec.Status)

	switch rec.Status {
	case models.GradingCompleted:
		if rec.Score != nil {
			fmt.Fprintf(w, "Score:      %g / %g\n", *rec.Score, rec.MaxScore)
		}
		if rec.Similarity != nil {
			fmt.Fprintf(w, "Similarity: %g\n", *rec.Similarity)
		}
		if rec.Comment != nil {
			fmt.Fprintf(w, "\n%s\n", *rec.Comment)
		}
	case models.GradingFailed, models.GradingSkipped:
		if rec.Comment != nil {
			fmt.Fprintf(w, "Reason:     %s\n", *rec.Comment)
		}
	case models.GradingProcessing:
		if rec.JobID != nil {
			fmt.Fprintf(w, "Job:        %s\n", *rec.JobID)
		}
	}
}
