package service

import (
	"fmt"
	"strings"
	"time"

	"inbox-triage/internal/model"
)

const (
	reportDeleteLimit = 10
	reportReviewLimit = 5
)

// Report is the human-readable summary of one classified page.
type Report struct {
	GeneratedAt time.Time             `json:"generated_at"`
	Model       string                `json:"model"`
	Summary     model.AnalysisSummary `json:"summary"`
	Delete      []model.AnalyzedEmail `json:"delete"`
	Review      []model.AnalyzedEmail `json:"review"`
	Keep        []model.AnalyzedEmail `json:"keep"`
}

func BuildReport(emails []model.AnalyzedEmail, modelName string, now time.Time) *Report {
	r := &Report{
		GeneratedAt: now,
		Model:       modelName,
		Summary:     model.Summarize(emails),
	}
	for _, e := range emails {
		switch e.Action {
		case model.ActionDelete:
			r.Delete = append(r.Delete, e)
		case model.ActionKeep:
			r.Keep = append(r.Keep, e)
		default:
			r.Review = append(r.Review, e)
		}
	}
	return r
}

func (r *Report) Text() string {
	var b strings.Builder
	b.WriteString("EMAIL ANALYSIS REPORT\n")
	fmt.Fprintf(&b, "Generated: %s\n", r.GeneratedAt.Format("2006-01-02 15:04:05"))
	if r.Model != "" {
		fmt.Fprintf(&b, "Model: %s\n", r.Model)
	}
	b.WriteString("\nSUMMARY:\n")
	fmt.Fprintf(&b, "- Total emails analyzed: %d\n", r.Summary.TotalEmails)
	fmt.Fprintf(&b, "- Recommended for deletion: %d\n", r.Summary.RecommendedDeletions)
	fmt.Fprintf(&b, "- Flagged for review: %d\n", r.Summary.NeedsReview)
	fmt.Fprintf(&b, "- Recommended to keep: %d\n", r.Summary.Keep)

	fmt.Fprintf(&b, "\nRECOMMENDED FOR DELETION (%d emails):\n", len(r.Delete))
	writeReportLines(&b, r.Delete, reportDeleteLimit)
	if len(r.Delete) > reportDeleteLimit {
		fmt.Fprintf(&b, "• ... and %d more\n", len(r.Delete)-reportDeleteLimit)
	}

	fmt.Fprintf(&b, "\nFLAGGED FOR REVIEW (%d emails):\n", len(r.Review))
	writeReportLines(&b, r.Review, reportReviewLimit)
	return b.String()
}

func writeReportLines(b *strings.Builder, emails []model.AnalyzedEmail, limit int) {
	for i, e := range emails {
		if i == limit {
			return
		}
		fmt.Fprintf(b, "• %s (from: %s)\n", Truncate(e.Subject, 60), Truncate(e.Sender, 30))
		fmt.Fprintf(b, "  Reason: %s\n", e.Reason)
	}
}

// Truncate shortens s to at most n runes, marking the cut with "...".
func Truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
