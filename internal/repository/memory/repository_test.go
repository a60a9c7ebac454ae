package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inbox-triage/internal/model"
	"inbox-triage/internal/repository"
)

func email(id string, action model.Action) model.AnalyzedEmail {
	return model.AnalyzedEmail{
		EmailSnapshot:  model.EmailSnapshot{ID: id, Subject: "subject " + id, Sender: "a@example.com"},
		Recommendation: model.Recommendation{Action: action, Category: "other", Confidence: 0.8, Reason: "r"},
	}
}

func TestMergeSupersedesAtomically(t *testing.T) {
	repo := NewInMemoryRunRepository()
	ctx := context.Background()

	oldID, err := repo.CreateRun(ctx, repository.NewRunInput{
		Emails:        []model.AnalyzedEmail{email("a", model.ActionReview)},
		NextPageToken: "abc",
	})
	require.NoError(t, err)

	_, err = repo.MergeReanalysisWithNewPage(ctx, repository.MergeInput{
		Reanalyzed:     []model.AnalyzedEmail{email("a", model.ActionDelete)},
		NewEmails:      []model.AnalyzedEmail{email("a", model.ActionKeep)},
		SupersedeRunID: oldID,
	})
	require.Error(t, err)

	old, err := repo.GetRun(ctx, oldID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusPending, old.Run.Status)

	newID, err := repo.MergeReanalysisWithNewPage(ctx, repository.MergeInput{
		Reanalyzed:       []model.AnalyzedEmail{email("a", model.ActionDelete)},
		NewEmails:        []model.AnalyzedEmail{email("b", model.ActionKeep)},
		CurrentPageToken: "abc",
		SupersedeRunID:   oldID,
	})
	require.NoError(t, err)

	pending, err := repo.GetPendingRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, newID, pending.Run.ID)
	assert.Len(t, pending.Emails, 2)
	assert.Equal(t, 1, pending.Run.RecommendedDeletions)
	assert.Equal(t, 1, pending.Run.KeepEmails)

	old, err = repo.GetRun(ctx, oldID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusSuperseded, old.Run.Status)
}

func TestFinalizeRunLeavesNothingBehindOnFailure(t *testing.T) {
	repo := NewInMemoryRunRepository()
	ctx := context.Background()

	runID, err := repo.CreateRun(ctx, repository.NewRunInput{
		Emails: []model.AnalyzedEmail{email("a", model.ActionDelete), email("b", model.ActionKeep)},
	})
	require.NoError(t, err)

	err = repo.FinalizeRun(ctx, repository.FinalizeInput{
		RunID:     runID,
		Decisions: map[string]model.Decision{"a": model.DecisionDelete},
		Deleted:   []model.DeletionLogEntry{model.NewDeletionLogEntry("a", "s", "x")},
	})
	assert.ErrorIs(t, err, repository.ErrRunNotCompletable)

	run, err := repo.GetRun(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusPending, run.Run.Status)
	assert.False(t, run.Emails[0].Decided())

	history, err := repo.GetDeletionHistory(ctx, time.Time{})
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestDeletionHistoryAndRestore(t *testing.T) {
	repo := NewInMemoryRunRepository()
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo.SetClock(func() time.Time { return base })
	require.NoError(t, repo.LogDeletedEmails(ctx, []model.DeletionLogEntry{model.NewDeletionLogEntry("old", "s", "x")}))

	repo.SetClock(func() time.Time { return base.Add(40 * 24 * time.Hour) })
	require.NoError(t, repo.LogDeletedEmails(ctx, []model.DeletionLogEntry{model.NewDeletionLogEntry("new", "s", "x")}))
	require.NoError(t, repo.MarkEmailsRestored(ctx, []string{"new"}))

	history, err := repo.GetDeletionHistory(ctx, base.Add(10*24*time.Hour))
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "new", history[0].EmailID)
	assert.False(t, history[0].CanRestore)
	require.NotNil(t, history[0].RestoredAt)

	stats, err := repo.GetStats(ctx, base.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalDeletions)
}
