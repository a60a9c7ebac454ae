package model

import "math"

type Stats struct {
	TotalRuns       int     `json:"total_runs"`
	TotalEmails     int     `json:"total_emails"`
	ProcessedEmails int     `json:"processed_emails"`
	PendingEmails   int     `json:"pending_emails"`
	TotalDeletions  int     `json:"total_deletions"`
	RecentRuns      int     `json:"recent_runs"`
	AvgEmailsPerRun float64 `json:"avg_emails_per_run"`
	ProcessingRate  float64 `json:"processing_rate"`
}

type PaginationStats struct {
	TotalPages                int     `json:"total_pages"`
	CompletedPages            int     `json:"completed_pages"`
	PendingPages              int     `json:"pending_pages"`
	TotalEmailsAllRuns        int     `json:"total_emails_all_runs"`
	TotalProcessedEmails      int     `json:"total_processed_emails"`
	EmailsPendingReview       int     `json:"emails_pending_review"`
	OverallProgressPercentage float64 `json:"overall_progress_percentage"`
}

type PaginationStatus struct {
	Stats       PaginationStats `json:"stats"`
	CanContinue bool            `json:"can_continue"`
	LastToken   string          `json:"last_token,omitempty"`
}

type RunProgress struct {
	RunID              int64     `json:"run_id"`
	Status             RunStatus `json:"status"`
	TotalEmails        int       `json:"total_emails"`
	ProcessedCount     int       `json:"processed_count"`
	RemainingCount     int       `json:"remaining_count"`
	DeleteDecisions    int       `json:"delete_decisions"`
	KeepDecisions      int       `json:"keep_decisions"`
	ProgressPercentage float64   `json:"progress_percentage"`
	IsComplete         bool      `json:"is_complete"`
}

// IncompleteRunInfo is the recovery snapshot of the latest pending run.
type IncompleteRunInfo struct {
	RunID              int64         `json:"run_id"`
	Run                Run           `json:"run"`
	UnprocessedEmails  []EmailRecord `json:"unprocessed_emails"`
	CurrentPageToken   string        `json:"current_page_token,omitempty"`
	NextPageToken      string        `json:"next_page_token,omitempty"`
	TotalEmailsInRun   int           `json:"total_emails_in_run"`
	ProcessedCount     int           `json:"processed_count"`
	RemainingCount     int           `json:"remaining_count"`
	ProgressPercentage float64       `json:"progress_percentage"`
	NeedsReanalysis    bool          `json:"needs_reanalysis"`
}

// Percentage returns part/total as a percentage rounded to one decimal,
// or 0 when total is 0.
func Percentage(part, total int) float64 {
	if total <= 0 {
		return 0
	}
	return Round1(float64(part) / float64(total) * 100)
}

func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}
