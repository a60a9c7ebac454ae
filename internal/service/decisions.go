package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"inbox-triage/internal/metrics"
	"inbox-triage/internal/model"
	"inbox-triage/internal/repository"
)

type DecisionResult struct {
	RunID   int64    `json:"run_id"`
	Deleted []string `json:"deleted"`
	Kept    int      `json:"kept"`
	Decided int      `json:"decided"`
}

// ApplyDecisions executes the user's decisions for the pending run. The
// mailbox is asked to trash the approved emails first; decisions, audit
// entries and the completed status are written only once it succeeded.
func (p *Processor) ApplyDecisions(ctx context.Context, runID int64, decisions map[string]model.Decision) (*DecisionResult, error) {
	pending, err := p.repo.GetPendingRun(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load pending run: %w", err)
	}
	if pending == nil {
		return nil, ErrNoPendingRun
	}
	if pending.Run.ID != runID {
		return nil, fmt.Errorf("%w: got run %d, pending run is %d", ErrRunMismatch, runID, pending.Run.ID)
	}

	toDelete, err := checkDecisions(pending, decisions)
	if err != nil {
		return nil, err
	}

	// repeats of an already recorded decision are not written again
	result := &DecisionResult{RunID: runID, Deleted: []string{}}
	for id, d := range decisions {
		if email, _ := pending.Email(id); email.Decided() {
			continue
		}
		result.Decided++
		if d == model.DecisionKeep {
			result.Kept++
		}
	}

	var entries []model.DeletionLogEntry
	if len(toDelete) > 0 {
		ids := make([]string, 0, len(toDelete))
		for _, e := range toDelete {
			ids = append(ids, e.EmailID)
		}

		start := time.Now()
		trashed, err := p.mailbox.Trash(ctx, ids)
		metrics.RecordMailboxLatency("trash", metrics.Status(err), time.Since(start))
		if err != nil {
			metrics.IncrementDeleted("error", len(ids))
			if len(trashed) > 0 {
				p.logger.Warnf("Run %d: mailbox trashed %d of %d emails before failing, nothing recorded: %v",
					runID, len(trashed), len(ids), trashed)
			}
			return nil, fmt.Errorf("%w: %w", ErrDeletionFailed, err)
		}

		for _, e := range toDelete {
			entries = append(entries, model.NewDeletionLogEntry(e.EmailID, e.Subject, e.Sender))
		}
		result.Deleted = ids
	}

	err = p.repo.FinalizeRun(ctx, repository.FinalizeInput{
		RunID:     runID,
		Decisions: decisions,
		Deleted:   entries,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record decisions for run %d: %w", runID, err)
	}

	metrics.IncrementDeleted("ok", len(result.Deleted))
	p.logger.Infof("Run %d completed: %d deleted, %d kept", runID, len(result.Deleted), result.Kept)
	return result, nil
}

// checkDecisions validates the decision map against the run and returns the
// undecided emails that must be trashed.
func checkDecisions(run *model.RunWithEmails, decisions map[string]model.Decision) ([]model.EmailRecord, error) {
	ids := make([]string, 0, len(decisions))
	for id := range decisions {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var toDelete []model.EmailRecord
	for _, id := range ids {
		decision := decisions[id]
		if !decision.Valid() {
			return nil, fmt.Errorf("%w: %q for email %s", ErrInvalidDecision, decision, id)
		}
		email, ok := run.Email(id)
		if !ok {
			return nil, fmt.Errorf("%w: %s is not in run %d", ErrUnknownEmail, id, run.Run.ID)
		}
		if email.Decided() {
			if email.UserDecision != decision {
				return nil, fmt.Errorf("%w: %s is already %s", ErrDecisionConflict, id, email.UserDecision)
			}
			continue
		}
		if decision == model.DecisionDelete {
			toDelete = append(toDelete, email)
		}
	}

	var missing int
	for _, e := range run.Undecided() {
		if _, ok := decisions[e.EmailID]; !ok {
			missing++
		}
	}
	if missing > 0 {
		return nil, fmt.Errorf("%w: %d emails in run %d have no decision", ErrIncompleteDecisions, missing, run.Run.ID)
	}
	return toDelete, nil
}
