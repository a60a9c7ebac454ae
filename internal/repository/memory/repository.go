package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"inbox-triage/internal/model"
	"inbox-triage/internal/repository"
)

// InMemoryRunRepository keeps runs in process memory. Every method holds the
// mutex for its whole duration, so each call behaves like one transaction.
type InMemoryRunRepository struct {
	runs      []*model.Run
	emails    map[int64][]model.EmailRecord
	deletions []model.DeletionLogEntry
	nextRunID int64
	nextRowID int64
	nextLogID int64
	now       func() time.Time
	mutex     sync.RWMutex
}

func NewInMemoryRunRepository() *InMemoryRunRepository {
	return &InMemoryRunRepository{
		emails: make(map[int64][]model.EmailRecord),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the time source used for stored timestamps.
func (r *InMemoryRunRepository) SetClock(now func() time.Time) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.now = now
}

func (r *InMemoryRunRepository) CreateRun(ctx context.Context, in repository.NewRunInput) (int64, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if err := checkUnique(in.Emails); err != nil {
		return 0, err
	}
	return r.insertRun(in.Emails, in.PageToken, in.NextPageToken), nil
}

func (r *InMemoryRunRepository) MergeReanalysisWithNewPage(ctx context.Context, in repository.MergeInput) (int64, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	all := make([]model.AnalyzedEmail, 0, len(in.Reanalyzed)+len(in.NewEmails))
	all = append(all, in.Reanalyzed...)
	all = append(all, in.NewEmails...)
	if err := checkUnique(all); err != nil {
		return 0, err
	}

	var old *model.Run
	if in.SupersedeRunID != 0 {
		old = r.pendingRun(in.SupersedeRunID)
		if old == nil {
			return 0, fmt.Errorf("%w: no pending run %d", repository.ErrRunNotFound, in.SupersedeRunID)
		}
	}

	id := r.insertRun(all, in.CurrentPageToken, in.NextPageToken)
	if old != nil {
		old.Status = model.RunStatusSuperseded
	}
	return id, nil
}

func (r *InMemoryRunRepository) MarkRunSuperseded(ctx context.Context, runID int64) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	run := r.pendingRun(runID)
	if run == nil {
		return fmt.Errorf("%w: no pending run %d", repository.ErrRunNotFound, runID)
	}
	run.Status = model.RunStatusSuperseded
	return nil
}

func (r *InMemoryRunRepository) GetRun(ctx context.Context, runID int64) (*model.RunWithEmails, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	run := r.findRun(runID)
	if run == nil {
		return nil, fmt.Errorf("%w: %d", repository.ErrRunNotFound, runID)
	}
	return r.snapshot(run), nil
}

func (r *InMemoryRunRepository) GetPendingRun(ctx context.Context) (*model.RunWithEmails, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	run := r.latestPending()
	if run == nil {
		return nil, nil
	}
	return r.snapshot(run), nil
}

func (r *InMemoryRunRepository) GetIncompleteRunInfo(ctx context.Context) (*model.IncompleteRunInfo, error) {
	pending, err := r.GetPendingRun(ctx)
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

func (r *InMemoryRunRepository) GetLastPageToken(ctx context.Context) (string, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	for i := len(r.runs) - 1; i >= 0; i-- {
		run := r.runs[i]
		if run.Status == model.RunStatusPending && run.NextPageToken != "" {
			return run.NextPageToken, nil
		}
	}
	return "", nil
}

func (r *InMemoryRunRepository) UpdateUserDecisions(ctx context.Context, runID int64, decisions map[string]model.Decision) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	return r.writeDecisions(runID, decisions)
}

func (r *InMemoryRunRepository) MarkRunCompleted(ctx context.Context, runID int64) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	return r.complete(runID)
}

func (r *InMemoryRunRepository) FinalizeRun(ctx context.Context, in repository.FinalizeInput) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	run := r.pendingRun(in.RunID)
	if run == nil {
		return fmt.Errorf("%w: no pending run %d", repository.ErrRunNotFound, in.RunID)
	}

	// Stage the decisions on a copy so a failure leaves nothing behind.
	original := r.emails[in.RunID]
	staged := make([]model.EmailRecord, len(original))
	copy(staged, original)
	r.emails[in.RunID] = staged

	if err := r.writeDecisions(in.RunID, in.Decisions); err != nil {
		r.emails[in.RunID] = original
		return err
	}
	if err := r.complete(in.RunID); err != nil {
		r.emails[in.RunID] = original
		return err
	}

	r.appendDeletions(in.Deleted)
	return nil
}

func (r *InMemoryRunRepository) LogDeletedEmails(ctx context.Context, entries []model.DeletionLogEntry) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.appendDeletions(entries)
	return nil
}

func (r *InMemoryRunRepository) MarkEmailsRestored(ctx context.Context, emailIDs []string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	ids := make(map[string]bool, len(emailIDs))
	for _, id := range emailIDs {
		ids[id] = true
	}

	now := r.now()
	for i := range r.deletions {
		entry := &r.deletions[i]
		if ids[entry.EmailID] && entry.CanRestore {
			restoredAt := now
			entry.CanRestore = false
			entry.RestoredAt = &restoredAt
		}
	}
	return nil
}

func (r *InMemoryRunRepository) GetDeletionHistory(ctx context.Context, since time.Time) ([]model.DeletionLogEntry, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	var out []model.DeletionLogEntry
	for _, entry := range r.deletions {
		if !entry.DeletedAt.Before(since) {
			out = append(out, entry)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].DeletedAt.Equal(out[j].DeletedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].DeletedAt.After(out[j].DeletedAt)
	})
	return out, nil
}

func (r *InMemoryRunRepository) GetStats(ctx context.Context, recentSince time.Time) (*model.Stats, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	stats := &model.Stats{
		TotalRuns:      len(r.runs),
		TotalDeletions: len(r.deletions),
	}

	completedRuns, completedEmails := 0, 0
	for _, run := range r.runs {
		if run.CreatedAt.After(recentSince) {
			stats.RecentRuns++
		}
		rows := r.emails[run.ID]
		stats.TotalEmails += len(rows)
		for _, e := range rows {
			if e.Decided() {
				stats.ProcessedEmails++
			}
		}
		if run.Status == model.RunStatusCompleted && len(rows) > 0 {
			completedRuns++
			completedEmails += len(rows)
		}
	}

	stats.PendingEmails = stats.TotalEmails - stats.ProcessedEmails
	if completedRuns > 0 {
		stats.AvgEmailsPerRun = model.Round1(float64(completedEmails) / float64(completedRuns))
	}
	stats.ProcessingRate = model.Percentage(stats.ProcessedEmails, stats.TotalEmails)
	return stats, nil
}

func (r *InMemoryRunRepository) GetPaginationStats(ctx context.Context) (*model.PaginationStats, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	stats := &model.PaginationStats{TotalPages: len(r.runs)}
	for _, run := range r.runs {
		switch run.Status {
		case model.RunStatusCompleted:
			stats.CompletedPages++
		case model.RunStatusPending:
			stats.PendingPages++
		}
		for _, e := range r.emails[run.ID] {
			stats.TotalEmailsAllRuns++
			if e.Decided() {
				stats.TotalProcessedEmails++
			}
		}
	}
	stats.EmailsPendingReview = stats.TotalEmailsAllRuns - stats.TotalProcessedEmails
	stats.OverallProgressPercentage = model.Percentage(stats.TotalProcessedEmails, stats.TotalEmailsAllRuns)
	return stats, nil
}

func (r *InMemoryRunRepository) GetRunProgress(ctx context.Context, runID int64) (*model.RunProgress, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	run := r.findRun(runID)
	if run == nil {
		return nil, fmt.Errorf("%w: %d", repository.ErrRunNotFound, runID)
	}

	progress := &model.RunProgress{RunID: runID, Status: run.Status}
	for _, e := range r.emails[runID] {
		progress.TotalEmails++
		switch e.UserDecision {
		case model.DecisionDelete:
			progress.ProcessedCount++
			progress.DeleteDecisions++
		case model.DecisionKeep:
			progress.ProcessedCount++
			progress.KeepDecisions++
		}
	}
	progress.RemainingCount = progress.TotalEmails - progress.ProcessedCount
	progress.ProgressPercentage = model.Percentage(progress.ProcessedCount, progress.TotalEmails)
	progress.IsComplete = progress.ProcessedCount == progress.TotalEmails
	return progress, nil
}

func (r *InMemoryRunRepository) insertRun(emails []model.AnalyzedEmail, pageToken, nextToken string) int64 {
	now := r.now()
	summary := model.Summarize(emails)

	r.nextRunID++
	run := &model.Run{
		ID:                   r.nextRunID,
		RunDate:              now.Format(model.RunDateLayout),
		TotalEmails:          summary.TotalEmails,
		RecommendedDeletions: summary.RecommendedDeletions,
		NeedsReview:          summary.NeedsReview,
		KeepEmails:           summary.Keep,
		Status:               model.RunStatusPending,
		CurrentPageToken:     pageToken,
		NextPageToken:        nextToken,
		CreatedAt:            now,
	}
	r.runs = append(r.runs, run)

	rows := make([]model.EmailRecord, 0, len(emails))
	for _, e := range emails {
		r.nextRowID++
		rows = append(rows, model.EmailRecord{
			ID:                r.nextRowID,
			RunID:             run.ID,
			EmailID:           e.ID,
			Subject:           e.Subject,
			Sender:            e.Sender,
			Date:              e.Date,
			Snippet:           e.Snippet,
			IsUnread:          e.IsUnread,
			RecommendedAction: e.Action,
			Category:          e.Category,
			Confidence:        e.Confidence,
			Reason:            e.Reason,
		})
	}
	r.emails[run.ID] = rows
	return run.ID
}

func (r *InMemoryRunRepository) writeDecisions(runID int64, decisions map[string]model.Decision) error {
	rows := r.emails[runID]
	for emailID, decision := range decisions {
		if !decision.Valid() {
			return fmt.Errorf("invalid decision %q for email %s", decision, emailID)
		}
	}

	now := r.now()
	for i := range rows {
		decision, ok := decisions[rows[i].EmailID]
		if !ok || rows[i].Decided() {
			continue
		}
		processedAt := now
		rows[i].UserDecision = decision
		rows[i].ProcessedAt = &processedAt
	}
	return nil
}

func (r *InMemoryRunRepository) complete(runID int64) error {
	run := r.pendingRun(runID)
	if run == nil {
		return fmt.Errorf("%w: no pending run %d", repository.ErrRunNotFound, runID)
	}

	undecided := 0
	for _, e := range r.emails[runID] {
		if !e.Decided() {
			undecided++
		}
	}
	if undecided > 0 {
		return fmt.Errorf("%w: run %d has %d undecided emails", repository.ErrRunNotCompletable, runID, undecided)
	}

	run.Status = model.RunStatusCompleted
	return nil
}

func (r *InMemoryRunRepository) appendDeletions(entries []model.DeletionLogEntry) {
	now := r.now()
	for _, e := range entries {
		r.nextLogID++
		e.ID = r.nextLogID
		if e.DeletedAt.IsZero() {
			e.DeletedAt = now
		}
		e.CanRestore = true
		e.RestoredAt = nil
		r.deletions = append(r.deletions, e)
	}
}

func (r *InMemoryRunRepository) findRun(runID int64) *model.Run {
	for _, run := range r.runs {
		if run.ID == runID {
			return run
		}
	}
	return nil
}

func (r *InMemoryRunRepository) pendingRun(runID int64) *model.Run {
	run := r.findRun(runID)
	if run == nil || run.Status != model.RunStatusPending {
		return nil
	}
	return run
}

func (r *InMemoryRunRepository) latestPending() *model.Run {
	for i := len(r.runs) - 1; i >= 0; i-- {
		if r.runs[i].Status == model.RunStatusPending {
			return r.runs[i]
		}
	}
	return nil
}

func (r *InMemoryRunRepository) snapshot(run *model.Run) *model.RunWithEmails {
	rows := r.emails[run.ID]
	emails := make([]model.EmailRecord, len(rows))
	copy(emails, rows)
	return &model.RunWithEmails{Run: *run, Emails: emails}
}

func checkUnique(emails []model.AnalyzedEmail) error {
	seen := make(map[string]bool, len(emails))
	for _, e := range emails {
		if seen[e.ID] {
			return fmt.Errorf("duplicate email %s in run", e.ID)
		}
		seen[e.ID] = true
	}
	return nil
}
