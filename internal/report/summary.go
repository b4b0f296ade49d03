package report

import (
	"fmt"
	"strings"
)

// maxSummaryFindings caps the findings listed in a text summary
const maxSummaryFindings = 10

// Text renders a short plain-text summary of a report
func Text(rep Report) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Merchant dispersion report %s\n", rep.RunID)
	fmt.Fprintf(&sb, "Status: %s", rep.Status)
	if rep.Cancelled {
		sb.WriteString(" (cancelled)")
	}
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "Window: %s - %s\n",
		rep.Window.Start.Format("2006-01-02"), rep.Window.End.Format("2006-01-02"))
	fmt.Fprintf(&sb, "Merchants: %d total, %d flagged, %d analyzed\n",
		rep.Summary.TotalEntities, rep.Summary.FlaggedCount, rep.Summary.AnalyzedCount)
	fmt.Fprintf(&sb, "Findings: %d, skipped: %d, errors: %d\n",
		rep.Summary.FindingsCount, rep.Summary.SkippedCount, rep.Summary.ErrorCount)

	if len(rep.Flagged) > 0 {
		sb.WriteString("\nFlagged merchants:\n")
		for _, s := range rep.Flagged {
			fmt.Fprintf(&sb, "- %s ratio %.3f (median %.2f, avg %.2f, %d tx)\n",
				s.EntityID, s.Ratio, s.MedianAmount, s.AverageAmount, s.TransactionCount)
		}
	}

	if len(rep.Findings) > 0 {
		sb.WriteString("\nTop findings:\n")
		for i, f := range rep.Findings {
			if i == maxSummaryFindings {
				fmt.Fprintf(&sb, "... and %d more\n", len(rep.Findings)-maxSummaryFindings)
				break
			}
			fmt.Fprintf(&sb, "- %s/%s %.2f z=%.2f %s\n",
				f.EntityID, f.TransactionID, f.Amount, f.DeviationScore, f.Reason)
		}
	}

	if len(rep.Errors) > 0 {
		sb.WriteString("\nErrors:\n")
		for _, e := range rep.Errors {
			target := e.Stage
			if e.EntityID != "" {
				target += "/" + e.EntityID
			}
			fmt.Fprintf(&sb, "- %s [%s] %s\n", target, e.Kind, e.Message)
		}
	}

	return sb.String()
}
