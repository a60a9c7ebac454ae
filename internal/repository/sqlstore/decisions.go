package sqlstore

import (
	"context"
	"fmt"
	"sort"

	"github.com/jmoiron/sqlx"

	"inbox-triage/internal/model"
	"inbox-triage/internal/repository"
)

// UpdateUserDecisions records decisions for the listed emails only. Rows that
// already carry a decision are left untouched.
func (s *Store) UpdateUserDecisions(ctx context.Context, runID int64, decisions map[string]model.Decision) error {
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		return s.writeDecisions(ctx, tx, runID, decisions)
	})
	if err != nil {
		return err
	}
	s.logger.Infof("Updated user decisions for run %d", runID)
	return nil
}

func (s *Store) MarkRunCompleted(ctx context.Context, runID int64) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		return s.complete(ctx, tx, runID)
	})
}

// FinalizeRun writes the audit entries, the decisions and the completed
// status in a single transaction.
func (s *Store) FinalizeRun(ctx context.Context, in repository.FinalizeInput) error {
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.insertDeletions(ctx, tx, in.Deleted); err != nil {
			return err
		}
		if err := s.writeDecisions(ctx, tx, in.RunID, in.Decisions); err != nil {
			return err
		}
		return s.complete(ctx, tx, in.RunID)
	})
	if err != nil {
		return fmt.Errorf("failed to finalize run %d: %w", in.RunID, err)
	}
	s.logger.Infof("Finalized run %d: %d decisions, %d deletions logged", in.RunID, len(in.Decisions), len(in.Deleted))
	return nil
}

func (s *Store) writeDecisions(ctx context.Context, tx *sqlx.Tx, runID int64, decisions map[string]model.Decision) error {
	if len(decisions) == 0 {
		return nil
	}

	stmt, err := tx.PreparexContext(ctx, s.rebind(`
		UPDATE email_analysis
		SET user_decision = ?, processed_at = ?
		WHERE run_id = ? AND email_id = ? AND user_decision IS NULL`))
	if err != nil {
		return fmt.Errorf("failed to prepare decision update: %w", err)
	}
	defer stmt.Close()

	now := s.now()
	for _, emailID := range sortedKeys(decisions) {
		decision := decisions[emailID]
		if !decision.Valid() {
			return fmt.Errorf("invalid decision %q for email %s", decision, emailID)
		}
		if _, err := stmt.ExecContext(ctx, string(decision), now, runID, emailID); err != nil {
			return fmt.Errorf("failed to record decision for email %s: %w", emailID, err)
		}
	}
	return nil
}

func (s *Store) complete(ctx context.Context, tx *sqlx.Tx, runID int64) error {
	var undecided int
	err := tx.GetContext(ctx, &undecided, s.rebind(`
		SELECT COUNT(*) FROM email_analysis
		WHERE run_id = ? AND user_decision IS NULL`), runID)
	if err != nil {
		return fmt.Errorf("failed to count undecided emails: %w", err)
	}
	if undecided > 0 {
		return fmt.Errorf("%w: run %d has %d undecided emails", repository.ErrRunNotCompletable, runID, undecided)
	}

	res, err := tx.ExecContext(ctx,
		s.rebind(`UPDATE analysis_runs SET status = ? WHERE id = ? AND status = ?`),
		string(model.RunStatusCompleted), runID, string(model.RunStatusPending))
	if err != nil {
		return fmt.Errorf("failed to complete run %d: %w", runID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: no pending run %d", repository.ErrRunNotFound, runID)
	}
	return nil
}

func (s *Store) LogDeletedEmails(ctx context.Context, entries []model.DeletionLogEntry) error {
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		return s.insertDeletions(ctx, tx, entries)
	})
	if err != nil {
		return err
	}
	s.logger.Infof("Logged %d deleted emails", len(entries))
	return nil
}

func (s *Store) insertDeletions(ctx context.Context, tx *sqlx.Tx, entries []model.DeletionLogEntry) error {
	if len(entries) == 0 {
		return nil
	}

	stmt, err := tx.PreparexContext(ctx, s.rebind(`
		INSERT INTO deleted_emails (email_id, subject, sender, deleted_at, can_restore)
		VALUES (?, ?, ?, ?, ?)`))
	if err != nil {
		return fmt.Errorf("failed to prepare deletion log insert: %w", err)
	}
	defer stmt.Close()

	now := s.now()
	for _, e := range entries {
		deletedAt := e.DeletedAt
		if deletedAt.IsZero() {
			deletedAt = now
		}
		if _, err := stmt.ExecContext(ctx, e.EmailID, e.Subject, e.Sender, deletedAt.UTC(), true); err != nil {
			return fmt.Errorf("failed to log deleted email %s: %w", e.EmailID, err)
		}
	}
	return nil
}

// MarkEmailsRestored stamps restored_at on the restorable audit rows of the
// given emails. The rows themselves are kept.
func (s *Store) MarkEmailsRestored(ctx context.Context, emailIDs []string) error {
	if len(emailIDs) == 0 {
		return nil
	}

	query, args, err := sqlx.In(`
		UPDATE deleted_emails
		SET can_restore = ?, restored_at = ?
		WHERE can_restore = ? AND email_id IN (?)`, false, s.now(), true, emailIDs)
	if err != nil {
		return fmt.Errorf("failed to build restore query: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, s.rebind(query), args...); err != nil {
		return fmt.Errorf("failed to mark emails restored: %w", err)
	}
	s.logger.Infof("Marked %d emails as restored", len(emailIDs))
	return nil
}

func sortedKeys(decisions map[string]model.Decision) []string {
	keys := make([]string, 0, len(decisions))
	for k := range decisions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
