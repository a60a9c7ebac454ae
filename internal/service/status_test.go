package service_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inbox-triage/internal/model"
	"inbox-triage/internal/service"
)

func TestRestoreEmailsStampsOnlyRestoredIDs(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	runID := pendingRun(t, f, 3)
	_, err := f.processor.ApplyDecisions(ctx, runID, keepAllBut(3, "e1", "e2"))
	require.NoError(t, err)

	f.mailbox.UntrashFunc = func(_ context.Context, ids []string) ([]string, error) {
		return []string{"e1"}, errors.New("e2: not found")
	}

	restored, err := f.processor.RestoreEmails(ctx, []string{"e1", "e2"})
	require.Error(t, err)
	assert.Equal(t, []string{"e1"}, restored)

	history, err := f.processor.GetDeletionHistory(ctx, 30)
	require.NoError(t, err)
	require.Len(t, history, 2)
	for _, entry := range history {
		assert.Equal(t, entry.EmailID == "e2", entry.CanRestore, entry.EmailID)
	}
}

func TestRestoreEmailsOnlyAcceptsLoggedDeletions(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	runID := pendingRun(t, f, 2)
	_, err := f.processor.ApplyDecisions(ctx, runID, keepAllBut(2, "e1"))
	require.NoError(t, err)

	// e2 was kept, "stranger" was never deleted by us
	for _, ids := range [][]string{{"e2"}, {"e1", "stranger"}} {
		restored, err := f.processor.RestoreEmails(ctx, ids)
		assert.ErrorIs(t, err, service.ErrNotRestorable)
		assert.Empty(t, restored)
	}
	assert.Empty(t, f.mailbox.UntrashCalls())

	restored, err := f.processor.RestoreEmails(ctx, []string{"e1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"e1"}, restored)

	// already restored
	_, err = f.processor.RestoreEmails(ctx, []string{"e1"})
	assert.ErrorIs(t, err, service.ErrNotRestorable)
	assert.Len(t, f.mailbox.UntrashCalls(), 1)
}

func TestPaginationStatus(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.mailbox.Pages[""] = &model.Page{Emails: snapshots(4, "e"), NextPageToken: "next"}

	status, err := f.processor.GetPaginationStatus(ctx)
	require.NoError(t, err)
	assert.False(t, status.CanContinue)

	result, err := f.processor.ProcessNextPage(ctx, service.ProcessOptions{})
	require.NoError(t, err)

	status, err = f.processor.GetPaginationStatus(ctx)
	require.NoError(t, err)
	assert.True(t, status.CanContinue)
	assert.Equal(t, "next", status.LastToken)
	assert.Equal(t, 1, status.Stats.PendingPages)
	assert.Equal(t, 4, status.Stats.EmailsPendingReview)

	progress, err := f.processor.GetRunProgress(ctx, result.RunID)
	require.NoError(t, err)
	assert.Equal(t, 4, progress.RemainingCount)
	assert.False(t, progress.IsComplete)
}

func TestGetStatsCountsRecentRuns(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	now := time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)
	f.repo.SetClock(func() time.Time { return now.AddDate(0, 0, -10) })
	f.processor.SetClock(func() time.Time { return now })

	runID := pendingRun(t, f, 2)
	_, err := f.processor.ApplyDecisions(ctx, runID, keepAllBut(2))
	require.NoError(t, err)

	f.repo.SetClock(func() time.Time { return now })
	f.mailbox.Pages[""] = &model.Page{Emails: snapshots(4, "n")}
	_, err = f.processor.ProcessNextPage(ctx, service.ProcessOptions{})
	require.NoError(t, err)

	stats, err := f.processor.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalRuns)
	assert.Equal(t, 6, stats.TotalEmails)
	assert.Equal(t, 1, stats.RecentRuns)
	assert.Equal(t, 2.0, stats.AvgEmailsPerRun)
}

func TestTestConnections(t *testing.T) {
	f := newFixture()
	f.mailbox.PingFunc = func(context.Context) error { return errors.New("token expired") }

	report := f.processor.TestConnections(context.Background())
	assert.True(t, report.AIOK)
	assert.False(t, report.MailboxOK)
	assert.Equal(t, "token expired", report.MailboxError)
	assert.False(t, report.OK())
}

func TestReportText(t *testing.T) {
	var emails []model.AnalyzedEmail
	for i, e := range snapshots(12, "d") {
		action := model.ActionDelete
		if i >= 11 {
			action = model.ActionReview
		}
		emails = append(emails, model.AnalyzedEmail{
			EmailSnapshot:  e,
			Recommendation: model.Recommendation{Action: action, Reason: "newsletter"},
		})
	}

	report := service.BuildReport(emails, "llama", time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	text := report.Text()

	assert.Contains(t, text, "Generated: 2026-01-02 03:04:05")
	assert.Contains(t, text, "- Recommended for deletion: 11")
	assert.Contains(t, text, "RECOMMENDED FOR DELETION (11 emails):")
	assert.Contains(t, text, "• ... and 1 more")
	assert.Contains(t, text, "FLAGGED FOR REVIEW (1 emails):")
	assert.Equal(t, 11, strings.Count(text, "Reason: newsletter"))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "héllo", service.Truncate("héllo", 5))
	assert.Equal(t, "hé...", service.Truncate("héllo", 2))
}
