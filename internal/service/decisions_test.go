package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inbox-triage/internal/model"
	"inbox-triage/internal/service"
)

// pendingRun processes one page of n emails and returns its run id.
func pendingRun(t *testing.T, f *fixture, n int) int64 {
	t.Helper()
	f.mailbox.Pages[""] = &model.Page{Emails: snapshots(n, "e")}
	result, err := f.processor.ProcessNextPage(context.Background(), service.ProcessOptions{})
	require.NoError(t, err)
	require.Equal(t, service.OutcomeProcessed, result.Outcome)
	return result.RunID
}

func keepAllBut(n int, deleteIDs ...string) map[string]model.Decision {
	decisions := make(map[string]model.Decision, n)
	for _, e := range snapshots(n, "e") {
		decisions[e.ID] = model.DecisionKeep
	}
	for _, id := range deleteIDs {
		decisions[id] = model.DecisionDelete
	}
	return decisions
}

func TestApplyDecisionsCompletesRun(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	runID := pendingRun(t, f, 10)

	result, err := f.processor.ApplyDecisions(ctx, runID, keepAllBut(10, "e1"))
	require.NoError(t, err)
	assert.Equal(t, []string{"e1"}, result.Deleted)
	assert.Equal(t, 9, result.Kept)
	assert.Equal(t, [][]string{{"e1"}}, f.mailbox.TrashCalls())

	history, err := f.processor.GetDeletionHistory(ctx, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "e1", history[0].EmailID)
	assert.Equal(t, "Subject e1", history[0].Subject)
	assert.True(t, history[0].CanRestore)

	run, err := f.repo.GetRun(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusCompleted, run.Run.Status)
	for _, e := range run.Emails {
		require.True(t, e.Decided(), e.EmailID)
		if e.EmailID == "e1" {
			assert.Equal(t, model.DecisionDelete, e.UserDecision)
		} else {
			assert.Equal(t, model.DecisionKeep, e.UserDecision)
		}
	}

	pending, err := f.processor.GetPendingReview(ctx)
	require.NoError(t, err)
	assert.Nil(t, pending)
}

func TestApplyDecisionsKeepOnlySkipsMailbox(t *testing.T) {
	f := newFixture()
	runID := pendingRun(t, f, 3)

	result, err := f.processor.ApplyDecisions(context.Background(), runID, keepAllBut(3))
	require.NoError(t, err)
	assert.Empty(t, result.Deleted)
	assert.Empty(t, f.mailbox.TrashCalls())
}

func TestApplyDecisionsMailboxFailureRecordsNothing(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	runID := pendingRun(t, f, 4)

	f.mailbox.TrashFunc = func(_ context.Context, ids []string) ([]string, error) {
		return ids[:1], errors.New("quota exceeded")
	}

	_, err := f.processor.ApplyDecisions(ctx, runID, keepAllBut(4, "e1", "e2"))
	assert.ErrorIs(t, err, service.ErrDeletionFailed)

	history, err := f.repo.GetDeletionHistory(ctx, time.Time{})
	require.NoError(t, err)
	assert.Empty(t, history)

	run, err := f.repo.GetRun(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusPending, run.Run.Status)
	assert.Len(t, run.Undecided(), 4)

	// Retrying once the mailbox recovers goes through.
	f.mailbox.TrashFunc = nil
	result, err := f.processor.ApplyDecisions(ctx, runID, keepAllBut(4, "e1", "e2"))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"e1", "e2"}, result.Deleted)
}

func TestApplyDecisionsRunMismatchChangesNothing(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	runID := pendingRun(t, f, 3)

	before, err := f.repo.GetRun(ctx, runID)
	require.NoError(t, err)

	_, err = f.processor.ApplyDecisions(ctx, runID+1, keepAllBut(3, "e1"))
	assert.ErrorIs(t, err, service.ErrRunMismatch)

	after, err := f.repo.GetRun(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Empty(t, f.mailbox.TrashCalls())
}

func TestApplyDecisionsValidation(t *testing.T) {
	tests := []struct {
		name      string
		decisions map[string]model.Decision
		wantErr   error
	}{
		{"missing email", map[string]model.Decision{"e1": model.DecisionKeep}, service.ErrIncompleteDecisions},
		{"unknown email", func() map[string]model.Decision {
			d := keepAllBut(3)
			d["zzz"] = model.DecisionDelete
			return d
		}(), service.ErrUnknownEmail},
		{"invalid value", func() map[string]model.Decision {
			d := keepAllBut(3)
			d["e2"] = model.Decision("archive")
			return d
		}(), service.ErrInvalidDecision},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			runID := pendingRun(t, f, 3)

			_, err := f.processor.ApplyDecisions(context.Background(), runID, tt.decisions)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, f.mailbox.TrashCalls())
		})
	}
}

func TestApplyDecisionsConflictsWithRecordedDecision(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	runID := pendingRun(t, f, 2)
	require.NoError(t, f.repo.UpdateUserDecisions(ctx, runID, map[string]model.Decision{"e1": model.DecisionKeep}))

	_, err := f.processor.ApplyDecisions(ctx, runID, keepAllBut(2, "e1"))
	assert.ErrorIs(t, err, service.ErrDecisionConflict)

	// Already decided emails may be left out.
	result, err := f.processor.ApplyDecisions(ctx, runID, map[string]model.Decision{"e2": model.DecisionDelete})
	require.NoError(t, err)
	assert.Equal(t, []string{"e2"}, result.Deleted)
}

func TestApplyDecisionsCountsOnlyNewDecisions(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	runID := pendingRun(t, f, 3)
	require.NoError(t, f.repo.UpdateUserDecisions(ctx, runID, map[string]model.Decision{"e1": model.DecisionKeep}))

	result, err := f.processor.ApplyDecisions(ctx, runID, keepAllBut(3, "e3"))
	require.NoError(t, err)
	assert.Equal(t, 2, result.Decided)
	assert.Equal(t, 1, result.Kept)
	assert.Equal(t, []string{"e3"}, result.Deleted)
}

func TestApplyDecisionsWithoutPendingRun(t *testing.T) {
	f := newFixture()
	_, err := f.processor.ApplyDecisions(context.Background(), 1, map[string]model.Decision{})
	assert.ErrorIs(t, err, service.ErrNoPendingRun)
}
