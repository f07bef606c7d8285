package cmd

import (
	"fmt"
	"io"

	"github.com/pseudomuto/dbchores/pkg/batch"
	"github.com/pseudomuto/dbchores/pkg/engine"
)

func reportResults(w io.Writer, report *batch.Report) {
	fmt.Fprintln(w)
	if report.Check {
		fmt.Fprintln(w, "Batch results (check mode, nothing recorded):")
	} else {
		fmt.Fprintln(w, "Batch results:")
	}
	fmt.Fprintln(w)

	var successCount, failedCount, skippedCount int

	for _, result := range report.Results {
		label := fmt.Sprintf("[%s/%s] %s", result.Phase, result.Group, engine.Truncate(result.Identity, 60))
		if result.Name != "" {
			label += " -> " + result.Name
		}

		switch result.Status {
		case batch.StatusExecuted:
			fmt.Fprintf(w, "  ✅ %s completed in %v (%s, %d rows)\n",
				label,
				result.Duration,
				result.Engine,
				result.Rows,
			)
			successCount++

		case batch.StatusFailed:
			fmt.Fprintf(w, "  ❌ %s failed after %v (%s)\n", label, result.Duration, result.Engine)
			if result.Err != nil {
				fmt.Fprintf(w, "     Error: %v\n", result.Err)
			}
			failedCount++

		case batch.StatusSkipped:
			fmt.Fprintf(w, "  ⏭  %s (already applied)\n", label)
			skippedCount++

		case batch.StatusSkippedCheck:
			fmt.Fprintf(w, "  ⏭  %s (check mode)\n", label)
			skippedCount++
		}
	}

	// failures before any query ran (bad config, unresolvable engines)
	if failedCount == 0 && report.Failure != nil {
		fmt.Fprintf(w, "  ❌ %v\n", report.Failure)
		failedCount++
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Summary: %d successful, %d failed, %d skipped\n",
		successCount, failedCount, skippedCount)

	switch {
	case report.State == batch.StateFailed:
		fmt.Fprintln(w)
		fmt.Fprintln(w, "❌ Batch failed. Please review the errors above.")
		fmt.Fprintln(w, "   Completed queries are in the history; re-run to resume.")
	case successCount > 0:
		fmt.Fprintln(w)
		fmt.Fprintln(w, "✅ All queries executed successfully.")
	case skippedCount > 0:
		fmt.Fprintln(w)
		fmt.Fprintln(w, "ℹ️  Nothing to do.")
	}
}
