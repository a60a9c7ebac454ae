package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"inbox-triage/internal/model"
	"inbox-triage/internal/repository"
)

type runRow struct {
	ID                   int64          `db:"id"`
	RunDate              string         `db:"run_date"`
	TotalEmails          int            `db:"total_emails"`
	RecommendedDeletions int            `db:"recommended_deletions"`
	NeedsReview          int            `db:"needs_review"`
	KeepEmails           int            `db:"keep_emails"`
	Status               string         `db:"status"`
	CurrentPageToken     sql.NullString `db:"current_page_token"`
	NextPageToken        sql.NullString `db:"next_page_token"`
	CreatedAt            time.Time      `db:"created_at"`
}

func (r runRow) toModel() model.Run {
	return model.Run{
		ID:                   r.ID,
		RunDate:              r.RunDate,
		TotalEmails:          r.TotalEmails,
		RecommendedDeletions: r.RecommendedDeletions,
		NeedsReview:          r.NeedsReview,
		KeepEmails:           r.KeepEmails,
		Status:               model.RunStatus(r.Status),
		CurrentPageToken:     r.CurrentPageToken.String,
		NextPageToken:        r.NextPageToken.String,
		CreatedAt:            r.CreatedAt,
	}
}

type emailRow struct {
	ID                int64          `db:"id"`
	RunID             int64          `db:"run_id"`
	EmailID           string         `db:"email_id"`
	Subject           string         `db:"subject"`
	Sender            string         `db:"sender"`
	Date              string         `db:"date"`
	Snippet           string         `db:"snippet"`
	IsUnread          bool           `db:"is_unread"`
	RecommendedAction string         `db:"recommended_action"`
	Category          string         `db:"category"`
	Confidence        float64        `db:"confidence"`
	Reason            string         `db:"reason"`
	UserDecision      sql.NullString `db:"user_decision"`
	ProcessedAt       sql.NullTime   `db:"processed_at"`
}

func (r emailRow) toModel() model.EmailRecord {
	return model.EmailRecord{
		ID:                r.ID,
		RunID:             r.RunID,
		EmailID:           r.EmailID,
		Subject:           r.Subject,
		Sender:            r.Sender,
		Date:              r.Date,
		Snippet:           r.Snippet,
		IsUnread:          r.IsUnread,
		RecommendedAction: model.Action(r.RecommendedAction),
		Category:          r.Category,
		Confidence:        r.Confidence,
		Reason:            r.Reason,
		UserDecision:      model.Decision(r.UserDecision.String),
		ProcessedAt:       timePtr(r.ProcessedAt),
	}
}

const runColumns = `id, run_date, total_emails, recommended_deletions, needs_review, keep_emails,
	status, current_page_token, next_page_token, created_at`

const emailColumns = `id, run_id, email_id, subject, sender, date, snippet, is_unread,
	recommended_action, category, confidence, reason, user_decision, processed_at`

func (s *Store) CreateRun(ctx context.Context, in repository.NewRunInput) (int64, error) {
	var runID int64
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		id, err := s.insertRun(ctx, tx, model.Summarize(in.Emails), in.PageToken, in.NextPageToken)
		if err != nil {
			return err
		}
		if err := s.insertEmails(ctx, tx, id, in.Emails); err != nil {
			return err
		}
		runID = id
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.logger.Infof("Saved page analysis run %d with %d emails", runID, len(in.Emails))
	return runID, nil
}

func (s *Store) MergeReanalysisWithNewPage(ctx context.Context, in repository.MergeInput) (int64, error) {
	all := make([]model.AnalyzedEmail, 0, len(in.Reanalyzed)+len(in.NewEmails))
	all = append(all, in.Reanalyzed...)
	all = append(all, in.NewEmails...)

	var runID int64
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		id, err := s.insertRun(ctx, tx, model.Summarize(all), in.CurrentPageToken, in.NextPageToken)
		if err != nil {
			return err
		}
		if err := s.insertEmails(ctx, tx, id, all); err != nil {
			return err
		}
		if in.SupersedeRunID != 0 {
			if err := s.supersede(ctx, tx, in.SupersedeRunID); err != nil {
				return err
			}
		}
		runID = id
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.logger.Infof("Merged analysis: %d recovered + %d new = %d total emails in run %d",
		len(in.Reanalyzed), len(in.NewEmails), len(all), runID)
	return runID, nil
}

func (s *Store) MarkRunSuperseded(ctx context.Context, runID int64) error {
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		return s.supersede(ctx, tx, runID)
	})
	if err != nil {
		return err
	}
	s.logger.Infof("Marked old run %d as superseded", runID)
	return nil
}

func (s *Store) insertRun(ctx context.Context, tx *sqlx.Tx, summary model.AnalysisSummary, pageToken, nextToken string) (int64, error) {
	now := s.now()
	query := s.rebind(`
		INSERT INTO analysis_runs
			(run_date, total_emails, recommended_deletions, needs_review, keep_emails,
			 status, current_page_token, next_page_token, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`)

	var id int64
	err := tx.QueryRowxContext(ctx, query,
		now.Format(model.RunDateLayout),
		summary.TotalEmails, summary.RecommendedDeletions, summary.NeedsReview, summary.Keep,
		string(model.RunStatusPending), nullString(pageToken), nullString(nextToken), now,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert run: %w", err)
	}
	return id, nil
}

func (s *Store) insertEmails(ctx context.Context, tx *sqlx.Tx, runID int64, emails []model.AnalyzedEmail) error {
	if len(emails) == 0 {
		return nil
	}

	stmt, err := tx.PreparexContext(ctx, s.rebind(`
		INSERT INTO email_analysis
			(run_id, email_id, subject, sender, date, snippet, is_unread,
			 recommended_action, category, confidence, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`))
	if err != nil {
		return fmt.Errorf("failed to prepare email insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range emails {
		_, err := stmt.ExecContext(ctx,
			runID, e.ID, e.Subject, e.Sender, e.Date, e.Snippet, e.IsUnread,
			string(e.Action), e.Category, e.Confidence, e.Reason,
		)
		if err != nil {
			return fmt.Errorf("failed to insert email %s: %w", e.ID, err)
		}
	}
	return nil
}

func (s *Store) supersede(ctx context.Context, tx *sqlx.Tx, runID int64) error {
	res, err := tx.ExecContext(ctx,
		s.rebind(`UPDATE analysis_runs SET status = ? WHERE id = ? AND status = ?`),
		string(model.RunStatusSuperseded), runID, string(model.RunStatusPending))
	if err != nil {
		return fmt.Errorf("failed to supersede run %d: %w", runID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: no pending run %d", repository.ErrRunNotFound, runID)
	}
	return nil
}

func (s *Store) GetRun(ctx context.Context, runID int64) (*model.RunWithEmails, error) {
	var row runRow
	err := s.db.GetContext(ctx, &row,
		s.rebind(`SELECT `+runColumns+` FROM analysis_runs WHERE id = ?`), runID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %d", repository.ErrRunNotFound, runID)
		}
		return nil, fmt.Errorf("failed to get run %d: %w", runID, err)
	}
	return s.withEmails(ctx, row)
}

func (s *Store) GetPendingRun(ctx context.Context) (*model.RunWithEmails, error) {
	row, err := s.latestPendingRun(ctx)
	if err != nil || row == nil {
		return nil, err
	}
	return s.withEmails(ctx, *row)
}

func (s *Store) GetIncompleteRunInfo(ctx context.Context) (*model.IncompleteRunInfo, error) {
	pending, err := s.GetPendingRun(ctx)
	if err != nil || pending == nil {
		return nil, err
	}

	unprocessed := pending.Undecided()
	total := len(pending.Emails)
	processed := total - len(unprocessed)

	return &model.IncompleteRunInfo{
		RunID:              pending.Run.ID,
		Run:                pending.Run,
		UnprocessedEmails:  unprocessed,
		CurrentPageToken:   pending.Run.CurrentPageToken,
		NextPageToken:      pending.Run.NextPageToken,
		TotalEmailsInRun:   total,
		ProcessedCount:     processed,
		RemainingCount:     len(unprocessed),
		ProgressPercentage: model.Percentage(processed, total),
		NeedsReanalysis:    len(unprocessed) > 0,
	}, nil
}

func (s *Store) GetLastPageToken(ctx context.Context) (string, error) {
	var token sql.NullString
	err := s.db.GetContext(ctx, &token, s.rebind(`
		SELECT next_page_token FROM analysis_runs
		WHERE status = ? AND next_page_token IS NOT NULL
		ORDER BY id DESC
		LIMIT 1`), string(model.RunStatusPending))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("failed to get last page token: %w", err)
	}
	return token.String, nil
}

func (s *Store) latestPendingRun(ctx context.Context) (*runRow, error) {
	var row runRow
	err := s.db.GetContext(ctx, &row, s.rebind(`
		SELECT `+runColumns+` FROM analysis_runs
		WHERE status = ?
		ORDER BY id DESC
		LIMIT 1`), string(model.RunStatusPending))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get pending run: %w", err)
	}
	return &row, nil
}

func (s *Store) withEmails(ctx context.Context, row runRow) (*model.RunWithEmails, error) {
	var rows []emailRow
	err := s.db.SelectContext(ctx, &rows, s.rebind(`
		SELECT `+emailColumns+` FROM email_analysis
		WHERE run_id = ?
		ORDER BY id`), row.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get emails for run %d: %w", row.ID, err)
	}

	out := &model.RunWithEmails{
		Run:    row.toModel(),
		Emails: make([]model.EmailRecord, 0, len(rows)),
	}
	for _, r := range rows {
		out.Emails = append(out.Emails, r.toModel())
	}
	return out, nil
}
