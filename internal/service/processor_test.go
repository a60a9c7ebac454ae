package service_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inbox-triage/internal/ai"
	"inbox-triage/internal/gmail"
	"inbox-triage/internal/logger"
	"inbox-triage/internal/model"
	"inbox-triage/internal/repository"
	"inbox-triage/internal/repository/memory"
	"inbox-triage/internal/repository/sqlstore"
	"inbox-triage/internal/service"
)

type fixture struct {
	repo      *memory.InMemoryRunRepository
	mailbox   *gmail.MockClient
	aiClient  *ai.MockAIClient
	processor *service.Processor
}

func newFixture(protected ...string) *fixture {
	f := &fixture{
		repo:     memory.NewInMemoryRunRepository(),
		mailbox:  gmail.NewMockClient(),
		aiClient: ai.NewMockAIClient(),
	}
	f.processor = service.NewProcessor(f.repo, f.mailbox, f.aiClient, service.Settings{
		PageSize: 50,
		DaysBack: 30,
		Rules:    model.RuleSet{ProtectedSenders: protected},
	}, logger.NewNop())
	return f
}

func snapshots(n int, prefix string) []model.EmailSnapshot {
	out := make([]model.EmailSnapshot, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, model.EmailSnapshot{
			ID:      fmt.Sprintf("%s%d", prefix, i),
			Subject: fmt.Sprintf("Subject %s%d", prefix, i),
			Sender:  fmt.Sprintf("sender%d@example.com", i),
			Date:    "Mon, 2 Mar 2026 10:00:00 +0000",
			Snippet: "hello",
		})
	}
	return out
}

// deleteEverything recommends deletion for every email it receives.
func deleteEverything(_ context.Context, emails []model.EmailSnapshot, _ model.RuleSet) (*model.AnalysisResult, error) {
	result := model.NewAnalysisResult()
	for _, e := range emails {
		result.Analysis[e.ID] = model.Recommendation{Action: model.ActionDelete, Category: "promotional", Confidence: 0.95, Reason: "promo"}
		result.Summary.Add(model.ActionDelete)
	}
	return result, nil
}

func TestProcessNextPageEmptyPageCreatesNoRun(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	result, err := f.processor.ProcessNextPage(ctx, service.ProcessOptions{})
	require.NoError(t, err)
	assert.Equal(t, service.OutcomeNoEmails, result.Outcome)
	assert.False(t, result.CreatedRun())
	assert.Zero(t, result.RunID)

	stats, err := f.repo.GetStats(ctx, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalRuns)
	assert.Empty(t, f.aiClient.Batches())
}

func TestProcessNextPageCreatesPendingRun(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.mailbox.Pages[""] = &model.Page{Emails: snapshots(3, "e"), NextPageToken: "p2"}

	result, err := f.processor.ProcessNextPage(ctx, service.ProcessOptions{})
	require.NoError(t, err)
	assert.Equal(t, service.OutcomeProcessed, result.Outcome)
	assert.Equal(t, 3, result.EmailCount)
	assert.True(t, result.HasMorePages)
	assert.Equal(t, "p2", result.NextPageToken)
	require.NotNil(t, result.Report)
	assert.Equal(t, 3, result.Report.Summary.Keep)

	pending, err := f.processor.GetPendingReview(ctx)
	require.NoError(t, err)
	require.NotNil(t, pending)
	assert.Equal(t, result.RunID, pending.Run.ID)
	assert.Equal(t, "p2", pending.Run.NextPageToken)
	assert.Len(t, pending.Emails, 3)
}

func TestRepeatedMessageIDsAreStoredOnce(t *testing.T) {
	sqlite, err := sqlstore.Open(context.Background(), sqlstore.DriverSQLite, ":memory:", logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlite.Close() })

	stores := []struct {
		name string
		repo repository.RunRepository
	}{
		{"memory", memory.NewInMemoryRunRepository()},
		{"sqlite", sqlite},
	}
	for _, tt := range stores {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			mailbox := gmail.NewMockClient()
			aiClient := ai.NewMockAIClient()
			processor := service.NewProcessor(tt.repo, mailbox, aiClient,
				service.Settings{PageSize: 50, DaysBack: 30}, logger.NewNop())

			page := snapshots(2, "e")
			page = append(page, page[0])
			mailbox.Pages[""] = &model.Page{Emails: page, NextPageToken: "p2"}

			result, err := processor.ProcessNextPage(ctx, service.ProcessOptions{})
			require.NoError(t, err)
			assert.Equal(t, service.OutcomeProcessed, result.Outcome)
			assert.Equal(t, 2, result.EmailCount)
			require.Len(t, aiClient.Batches(), 1)
			assert.Len(t, aiClient.Batches()[0], 2)

			pending, err := processor.GetPendingReview(ctx)
			require.NoError(t, err)
			require.NotNil(t, pending)
			assert.Len(t, pending.Emails, 2)
		})
	}
}

// failingStore refuses to create runs.
type failingStore struct {
	*memory.InMemoryRunRepository
	err error
}

func (f *failingStore) CreateRun(ctx context.Context, in repository.NewRunInput) (int64, error) {
	return 0, f.err
}

func TestSaveFailureIsWrappedOnce(t *testing.T) {
	repo := &failingStore{InMemoryRunRepository: memory.NewInMemoryRunRepository(), err: errors.New("disk full")}
	mailbox := gmail.NewMockClient()
	mailbox.Pages[""] = &model.Page{Emails: snapshots(1, "e")}
	processor := service.NewProcessor(repo, mailbox, ai.NewMockAIClient(), service.Settings{}, logger.NewNop())

	_, err := processor.ProcessNextPage(context.Background(), service.ProcessOptions{})
	require.Error(t, err)
	assert.Equal(t, "failed to save page analysis: disk full", err.Error())
}

func TestProtectedSendersNeverReachTheEngine(t *testing.T) {
	f := newFixture("@Bank.com", "")
	ctx := context.Background()
	f.aiClient.ClassifyFunc = deleteEverything

	emails := snapshots(3, "e")
	emails[1].Sender = "Alerts <alerts@bank.com>"
	f.mailbox.Pages[""] = &model.Page{Emails: emails}

	result, err := f.processor.ProcessNextPage(ctx, service.ProcessOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.SkippedProtected)
	assert.Equal(t, 2, result.EmailCount)

	for _, batch := range f.aiClient.Batches() {
		for _, e := range batch {
			assert.NotEqual(t, "e2", e.ID)
		}
	}

	run, err := f.repo.GetRun(ctx, result.RunID)
	require.NoError(t, err)
	_, found := run.Email("e2")
	assert.False(t, found)
}

func TestEverythingProtectedIsNothingToAnalyze(t *testing.T) {
	f := newFixture("example.com")
	ctx := context.Background()
	f.mailbox.Pages[""] = &model.Page{Emails: snapshots(2, "e"), NextPageToken: "p2"}

	result, err := f.processor.ProcessNextPage(ctx, service.ProcessOptions{})
	require.NoError(t, err)
	assert.Equal(t, service.OutcomeNothingToAnalyze, result.Outcome)
	assert.Equal(t, 2, result.SkippedProtected)
	assert.Empty(t, f.aiClient.Batches())

	pending, err := f.repo.GetPendingRun(ctx)
	require.NoError(t, err)
	assert.Nil(t, pending)
}

func TestClassifyFailureLeavesPageForRetry(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.mailbox.Pages[""] = &model.Page{Emails: snapshots(2, "e")}
	f.aiClient.ClassifyFunc = func(context.Context, []model.EmailSnapshot, model.RuleSet) (*model.AnalysisResult, error) {
		return nil, errors.New("rate limited")
	}

	_, err := f.processor.ProcessNextPage(ctx, service.ProcessOptions{})
	require.Error(t, err)

	pending, err := f.repo.GetPendingRun(ctx)
	require.NoError(t, err)
	assert.Nil(t, pending)

	f.aiClient.ClassifyFunc = nil
	result, err := f.processor.ProcessNextPage(ctx, service.ProcessOptions{})
	require.NoError(t, err)
	assert.Equal(t, service.OutcomeProcessed, result.Outcome)
	assert.Equal(t, []string{"", ""}, f.mailbox.FetchedTokens())
}

func TestMalformedAnalysisIsRejected(t *testing.T) {
	f := newFixture()
	f.mailbox.Pages[""] = &model.Page{Emails: snapshots(1, "e")}
	f.aiClient.ClassifyFunc = func(context.Context, []model.EmailSnapshot, model.RuleSet) (*model.AnalysisResult, error) {
		return &model.AnalysisResult{}, nil
	}

	_, err := f.processor.ProcessNextPage(context.Background(), service.ProcessOptions{})
	assert.ErrorIs(t, err, service.ErrInvalidAnalysis)
}

func TestMissingAnalysisDefaultsToReview(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.mailbox.Pages[""] = &model.Page{Emails: snapshots(2, "e")}
	f.aiClient.ClassifyFunc = func(_ context.Context, emails []model.EmailSnapshot, _ model.RuleSet) (*model.AnalysisResult, error) {
		result := model.NewAnalysisResult()
		result.Analysis["e1"] = model.Recommendation{Action: model.ActionDelete, Category: "spam", Confidence: 0.9, Reason: "spam"}
		return result, nil
	}

	result, err := f.processor.ProcessNextPage(ctx, service.ProcessOptions{})
	require.NoError(t, err)

	run, err := f.repo.GetRun(ctx, result.RunID)
	require.NoError(t, err)
	e2, ok := run.Email("e2")
	require.True(t, ok)
	assert.Equal(t, model.ActionReview, e2.RecommendedAction)
	assert.Equal(t, 0.5, e2.Confidence)
	assert.Equal(t, model.ReasonNoAnalysis, e2.Reason)
	assert.Equal(t, 1, run.Run.RecommendedDeletions)
	assert.Equal(t, 1, run.Run.NeedsReview)
}

func TestRecoveryMergesUndecidedEmailsWithNextPage(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.mailbox.Pages[""] = &model.Page{Emails: snapshots(50, "a"), NextPageToken: "abc"}
	f.mailbox.Pages["abc"] = &model.Page{Emails: snapshots(50, "b"), NextPageToken: "def"}

	first, err := f.processor.ProcessNextPage(ctx, service.ProcessOptions{})
	require.NoError(t, err)

	second, err := f.processor.ProcessNextPage(ctx, service.ProcessOptions{})
	require.NoError(t, err)
	assert.Equal(t, service.OutcomeRecovered, second.Outcome)
	assert.Equal(t, first.RunID, second.SupersededRunID)
	assert.Equal(t, 50, second.RecoveredCount)
	assert.Equal(t, 100, second.EmailCount)
	assert.Equal(t, "def", second.NextPageToken)

	old, err := f.repo.GetRun(ctx, first.RunID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusSuperseded, old.Run.Status)

	merged, err := f.repo.GetPendingRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, second.RunID, merged.Run.ID)
	assert.Equal(t, model.RunStatusPending, merged.Run.Status)
	assert.Len(t, merged.Emails, 100)
	assert.Equal(t, "abc", merged.Run.CurrentPageToken)
	assert.Equal(t, []string{"", "abc"}, f.mailbox.FetchedTokens())
}

func TestRecoveryDoesNotDuplicateEmails(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.mailbox.Pages[""] = &model.Page{Emails: snapshots(5, "a"), NextPageToken: "abc"}
	// The listing shifted, so the next page overlaps the interrupted one.
	overlap := append(snapshots(5, "a")[3:], snapshots(4, "b")...)
	f.mailbox.Pages["abc"] = &model.Page{Emails: overlap}

	_, err := f.processor.ProcessNextPage(ctx, service.ProcessOptions{})
	require.NoError(t, err)
	result, err := f.processor.ProcessNextPage(ctx, service.ProcessOptions{})
	require.NoError(t, err)
	assert.Equal(t, 9, result.EmailCount)

	merged, err := f.repo.GetRun(ctx, result.RunID)
	require.NoError(t, err)
	seen := map[string]bool{}
	for _, e := range merged.Emails {
		assert.False(t, seen[e.EmailID], "duplicate %s", e.EmailID)
		seen[e.EmailID] = true
	}
}

func TestRecoveryOfLastPageWithNothingLeft(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.mailbox.Pages[""] = &model.Page{Emails: snapshots(2, "a")}

	first, err := f.processor.ProcessNextPage(ctx, service.ProcessOptions{})
	require.NoError(t, err)

	// Run one stays undecided; with no next page only its emails are merged.
	second, err := f.processor.ProcessNextPage(ctx, service.ProcessOptions{})
	require.NoError(t, err)
	assert.Equal(t, service.OutcomeRecovered, second.Outcome)
	assert.Equal(t, 2, second.EmailCount)
	assert.False(t, second.HasMorePages)
	assert.Equal(t, []string{""}, f.mailbox.FetchedTokens())

	old, err := f.repo.GetRun(ctx, first.RunID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusSuperseded, old.Run.Status)
}

func TestRecoveryClassifyFailureKeepsOldRunPending(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.mailbox.Pages[""] = &model.Page{Emails: snapshots(2, "a"), NextPageToken: "abc"}
	f.mailbox.Pages["abc"] = &model.Page{Emails: snapshots(2, "b")}

	first, err := f.processor.ProcessNextPage(ctx, service.ProcessOptions{})
	require.NoError(t, err)

	f.aiClient.ClassifyFunc = func(context.Context, []model.EmailSnapshot, model.RuleSet) (*model.AnalysisResult, error) {
		return nil, errors.New("boom")
	}
	_, err = f.processor.ProcessNextPage(ctx, service.ProcessOptions{})
	require.Error(t, err)

	pending, err := f.repo.GetPendingRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.RunID, pending.Run.ID)
}

func TestFullyDecidedRunIsCompletedWhenContinuing(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.mailbox.Pages[""] = &model.Page{Emails: snapshots(2, "a"), NextPageToken: "p2"}
	f.mailbox.Pages["p2"] = &model.Page{Emails: snapshots(2, "b")}

	first, err := f.processor.ProcessNextPage(ctx, service.ProcessOptions{})
	require.NoError(t, err)
	require.NoError(t, f.repo.UpdateUserDecisions(ctx, first.RunID, map[string]model.Decision{
		"a1": model.DecisionKeep,
		"a2": model.DecisionKeep,
	}))

	second, err := f.processor.ProcessNextPage(ctx, service.ProcessOptions{})
	require.NoError(t, err)
	assert.Equal(t, service.OutcomeProcessed, second.Outcome)
	assert.Equal(t, "p2", second.PageToken)

	old, err := f.repo.GetRun(ctx, first.RunID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusCompleted, old.Run.Status)
}

func TestDedupeByID(t *testing.T) {
	in := []model.EmailSnapshot{{ID: "a"}, {ID: "b"}, {ID: "a"}, {ID: "c"}, {ID: "b"}}
	out, dropped := service.DedupeByID(in)
	assert.Equal(t, 2, dropped)
	assert.Equal(t, []model.EmailSnapshot{{ID: "a"}, {ID: "b"}, {ID: "c"}}, out)
}

func TestFilterProtected(t *testing.T) {
	emails := []model.EmailSnapshot{
		{ID: "1", Sender: "Boss <boss@Work.com>"},
		{ID: "2", Sender: "deals@shop.com"},
		{ID: "3", Sender: "mom@family.org"},
	}

	tests := []struct {
		name      string
		protected []string
		wantIDs   []string
	}{
		{"no patterns", nil, []string{"1", "2", "3"}},
		{"blank pattern ignored", []string{"  "}, []string{"1", "2", "3"}},
		{"case insensitive", []string{"work.COM"}, []string{"2", "3"}},
		{"several", []string{"family", "boss@"}, []string{"2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kept, skipped := service.FilterProtected(emails, tt.protected)
			var ids []string
			for _, e := range kept {
				ids = append(ids, e.ID)
			}
			assert.Equal(t, tt.wantIDs, ids)
			assert.Equal(t, len(emails)-len(tt.wantIDs), skipped)
		})
	}
}
