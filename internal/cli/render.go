// Package cli renders processor results for the terminal.
package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"inbox-triage/internal/model"
	"inbox-triage/internal/service"
)

func line(label string, value interface{}) string {
	return labelStyle.Render(label+":") + " " + valueStyle.Render(fmt.Sprint(value))
}

func section(title string, lines ...string) string {
	rule := labelStyle.Render(strings.Repeat("=", 40))
	return lipgloss.JoinVertical(lipgloss.Left, append([]string{titleStyle.Render(title), rule}, lines...)...)
}

// ProcessResult summarizes one "process next page" call.
func ProcessResult(result *service.ProcessResult, baseURL string) string {
	switch result.Outcome {
	case service.OutcomeNoEmails:
		return Warning("No emails found on this page")
	case service.OutcomeNothingToAnalyze:
		return Warning(fmt.Sprintf("All %d emails on this page are from protected senders", result.SkippedProtected))
	}

	lines := []string{
		Success(fmt.Sprintf("Page completed! Run ID: %d", result.RunID)),
		line("Analyzed", fmt.Sprintf("%d emails", result.EmailCount)),
	}
	if result.Outcome == service.OutcomeRecovered {
		lines = append(lines, line("Recovered from earlier run", result.RecoveredCount))
	}
	if result.SkippedProtected > 0 {
		lines = append(lines, line("Skipped (protected senders)", result.SkippedProtected))
	}
	if result.HasMorePages {
		lines = append(lines, hintStyle.Render("Run 'inbox-triage continue' for the next page"))
	}
	lines = append(lines, line("Review at", fmt.Sprintf("%s/review/%d", baseURL, result.RunID)))
	return strings.Join(lines, "\n")
}

// Stats renders overall processing statistics.
func Stats(stats *model.Stats, status *model.PaginationStatus, pageSize int) string {
	lines := []string{}
	if pageSize > 0 {
		lines = append(lines, line("Pages analyzed", fmt.Sprintf("%d (%d emails each)", stats.TotalEmails/pageSize, pageSize)))
		if rest := stats.TotalEmails % pageSize; rest > 0 {
			lines = append(lines, line("Current page", fmt.Sprintf("%d emails", rest)))
		}
	}
	lines = append(lines,
		line("Total emails analyzed", stats.TotalEmails),
		line("Total emails deleted", stats.TotalDeletions),
		line("Emails with decisions", stats.ProcessedEmails),
		line("Emails pending review", stats.PendingEmails),
		line("Recent runs (7 days)", stats.RecentRuns),
		line("Average emails per completed run", stats.AvgEmailsPerRun),
		line("Processing rate", fmt.Sprintf("%.1f%%", stats.ProcessingRate)),
		"",
	)
	if status.CanContinue {
		lines = append(lines, line("Can continue to next page", "YES"))
	} else {
		lines = append(lines, line("Can continue to next page", "NO (start from beginning)"))
	}
	return section("EMAIL PROCESSING STATISTICS", lines...)
}

// Status reports what is waiting for review and where the next page starts.
func Status(pending *model.RunWithEmails, status *model.PaginationStatus, baseURL string) string {
	var lines []string
	if pending != nil {
		lines = append(lines,
			line("Ready for review", fmt.Sprintf("%d emails (Run %d)", len(pending.Undecided()), pending.Run.ID)),
			line("Review at", fmt.Sprintf("%s/review/%d", baseURL, pending.Run.ID)),
		)
	} else {
		lines = append(lines, Success("No emails pending review"))
	}

	progress := status.Stats
	lines = append(lines, line("Overall progress", fmt.Sprintf("%d/%d emails (%.1f%%)",
		progress.TotalProcessedEmails, progress.TotalEmailsAllRuns, progress.OverallProgressPercentage)))
	if status.CanContinue {
		lines = append(lines, hintStyle.Render("Ready to analyze next page of emails"))
	} else {
		lines = append(lines, hintStyle.Render("Ready to start analyzing from beginning"))
	}
	return strings.Join(lines, "\n")
}

// Connections renders a connection test.
func Connections(report *service.ConnectionReport) string {
	check := func(name string, ok bool, errMsg string) string {
		if ok {
			return Success(name + ": connected")
		}
		return Error(name + ": " + errMsg)
	}
	lines := []string{
		check("Model ("+report.Model+")", report.AIOK, report.AIError),
		check("Mailbox", report.MailboxOK, report.MailboxError),
	}
	if report.OK() {
		lines = append(lines, Success("All API connections working correctly!"))
	} else {
		lines = append(lines, Error("Some API connections failed"))
	}
	return strings.Join(lines, "\n")
}

// History lists audit entries, newest first as the store returns them.
func History(entries []model.DeletionLogEntry, days int) string {
	if len(entries) == 0 {
		return hintStyle.Render(fmt.Sprintf("No deletions in the last %d days", days))
	}

	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		state := successStyle.Render("restorable")
		if !e.CanRestore {
			state = labelStyle.Render("restored")
		}
		lines = append(lines, fmt.Sprintf("%s  %s  %s  %s",
			labelStyle.Render(e.DeletedAt.Format("2006-01-02 15:04")),
			valueStyle.Render(e.EmailID),
			service.Truncate(e.Subject, 50),
			state,
		))
	}
	return section(fmt.Sprintf("DELETED EMAILS (last %d days)", days), lines...)
}

// Candidate describes the email the delete-one command is about to trash.
func Candidate(email model.EmailRecord) string {
	return strings.Join([]string{
		titleStyle.Render("Testing deletion of:"),
		line("Subject", email.Subject),
		line("From", email.Sender),
		line("Recommendation", fmt.Sprintf("%s (%s, %.0f%%)", email.RecommendedAction, email.Category, email.Confidence*100)),
	}, "\n")
}
