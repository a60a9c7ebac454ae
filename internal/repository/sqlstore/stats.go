package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"inbox-triage/internal/model"
	"inbox-triage/internal/repository"
)

type deletionRow struct {
	ID         int64        `db:"id"`
	EmailID    string       `db:"email_id"`
	Subject    string       `db:"subject"`
	Sender     string       `db:"sender"`
	DeletedAt  time.Time    `db:"deleted_at"`
	CanRestore bool         `db:"can_restore"`
	RestoredAt sql.NullTime `db:"restored_at"`
}

func (s *Store) GetDeletionHistory(ctx context.Context, since time.Time) ([]model.DeletionLogEntry, error) {
	var rows []deletionRow
	err := s.db.SelectContext(ctx, &rows, s.rebind(`
		SELECT id, email_id, subject, sender, deleted_at, can_restore, restored_at
		FROM deleted_emails
		WHERE deleted_at >= ?
		ORDER BY deleted_at DESC, id DESC`), since.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to get deletion history: %w", err)
	}

	entries := make([]model.DeletionLogEntry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, model.DeletionLogEntry{
			ID:         r.ID,
			EmailID:    r.EmailID,
			Subject:    r.Subject,
			Sender:     r.Sender,
			DeletedAt:  r.DeletedAt,
			CanRestore: r.CanRestore,
			RestoredAt: timePtr(r.RestoredAt),
		})
	}
	return entries, nil
}

func (s *Store) GetStats(ctx context.Context, recentSince time.Time) (*model.Stats, error) {
	var stats model.Stats

	counts := []struct {
		dest  *int
		query string
		args  []interface{}
	}{
		{&stats.TotalRuns, `SELECT COUNT(*) FROM analysis_runs`, nil},
		{&stats.TotalEmails, `SELECT COUNT(*) FROM email_analysis`, nil},
		{&stats.ProcessedEmails, `SELECT COUNT(*) FROM email_analysis WHERE user_decision IS NOT NULL`, nil},
		{&stats.TotalDeletions, `SELECT COUNT(*) FROM deleted_emails`, nil},
		{&stats.RecentRuns, `SELECT COUNT(*) FROM analysis_runs WHERE created_at > ?`, []interface{}{recentSince.UTC()}},
	}
	for _, c := range counts {
		if err := s.db.GetContext(ctx, c.dest, s.rebind(c.query), c.args...); err != nil {
			return nil, fmt.Errorf("failed to get stats: %w", err)
		}
	}

	var avg sql.NullFloat64
	err := s.db.GetContext(ctx, &avg, s.rebind(`
		SELECT AVG(email_count) FROM (
			SELECT COUNT(*) AS email_count
			FROM email_analysis ea
			JOIN analysis_runs ar ON ea.run_id = ar.id
			WHERE ar.status = ?
			GROUP BY ea.run_id
		) per_run`), string(model.RunStatusCompleted))
	if err != nil {
		return nil, fmt.Errorf("failed to get average run size: %w", err)
	}

	stats.PendingEmails = stats.TotalEmails - stats.ProcessedEmails
	stats.AvgEmailsPerRun = model.Round1(avg.Float64)
	stats.ProcessingRate = model.Percentage(stats.ProcessedEmails, stats.TotalEmails)
	return &stats, nil
}

func (s *Store) GetPaginationStats(ctx context.Context) (*model.PaginationStats, error) {
	var pages struct {
		Total     int `db:"total_pages"`
		Completed int `db:"completed_pages"`
		Pending   int `db:"pending_pages"`
	}
	err := s.db.GetContext(ctx, &pages, s.rebind(`
		SELECT COUNT(*) AS total_pages,
		       COUNT(CASE WHEN status = ? THEN 1 END) AS completed_pages,
		       COUNT(CASE WHEN status = ? THEN 1 END) AS pending_pages
		FROM analysis_runs`),
		string(model.RunStatusCompleted), string(model.RunStatusPending))
	if err != nil {
		return nil, fmt.Errorf("failed to get pagination stats: %w", err)
	}

	var emails struct {
		Total     int `db:"total_emails"`
		Processed int `db:"processed_emails"`
	}
	err = s.db.GetContext(ctx, &emails, `
		SELECT COUNT(*) AS total_emails,
		       COUNT(user_decision) AS processed_emails
		FROM email_analysis`)
	if err != nil {
		return nil, fmt.Errorf("failed to get pagination email counts: %w", err)
	}

	return &model.PaginationStats{
		TotalPages:                pages.Total,
		CompletedPages:            pages.Completed,
		PendingPages:              pages.Pending,
		TotalEmailsAllRuns:        emails.Total,
		TotalProcessedEmails:      emails.Processed,
		EmailsPendingReview:       emails.Total - emails.Processed,
		OverallProgressPercentage: model.Percentage(emails.Processed, emails.Total),
	}, nil
}

func (s *Store) GetRunProgress(ctx context.Context, runID int64) (*model.RunProgress, error) {
	var status string
	err := s.db.GetContext(ctx, &status,
		s.rebind(`SELECT status FROM analysis_runs WHERE id = ?`), runID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %d", repository.ErrRunNotFound, runID)
		}
		return nil, fmt.Errorf("failed to get run %d: %w", runID, err)
	}

	var counts struct {
		Total     int `db:"total_emails"`
		Processed int `db:"processed_count"`
		Delete    int `db:"delete_decisions"`
		Keep      int `db:"keep_decisions"`
	}
	err = s.db.GetContext(ctx, &counts, s.rebind(`
		SELECT COUNT(*) AS total_emails,
		       COUNT(user_decision) AS processed_count,
		       COUNT(CASE WHEN user_decision = ? THEN 1 END) AS delete_decisions,
		       COUNT(CASE WHEN user_decision = ? THEN 1 END) AS keep_decisions
		FROM email_analysis
		WHERE run_id = ?`),
		string(model.DecisionDelete), string(model.DecisionKeep), runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get progress for run %d: %w", runID, err)
	}

	return &model.RunProgress{
		RunID:              runID,
		Status:             model.RunStatus(status),
		TotalEmails:        counts.Total,
		ProcessedCount:     counts.Processed,
		RemainingCount:     counts.Total - counts.Processed,
		DeleteDecisions:    counts.Delete,
		KeepDecisions:      counts.Keep,
		ProgressPercentage: model.Percentage(counts.Processed, counts.Total),
		IsComplete:         counts.Processed == counts.Total,
	}, nil
}
