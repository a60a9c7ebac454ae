package service

import (
	"context"
	"fmt"

	"inbox-triage/internal/model"
	"inbox-triage/internal/repository"
)

// recoverRun re-classifies the undecided emails of an interrupted run together
// with the page that follows it and replaces the old run in one write.
func (p *Processor) recoverRun(ctx context.Context, info *model.IncompleteRunInfo) (*ProcessResult, error) {
	p.logger.Infof("Recovering run %d: %d of %d emails still undecided",
		info.RunID, info.RemainingCount, info.TotalEmailsInRun)

	seen := make(map[string]struct{}, len(info.UnprocessedEmails))
	recovered := make([]model.EmailSnapshot, 0, len(info.UnprocessedEmails))
	for _, e := range info.UnprocessedEmails {
		seen[e.EmailID] = struct{}{}
		recovered = append(recovered, e.Snapshot())
	}

	// The interrupted run was the last page when it has no next token.
	page := &model.Page{}
	if info.NextPageToken != "" {
		var err error
		page, err = p.fetch(ctx, info.NextPageToken)
		if err != nil {
			return nil, err
		}
	}

	fresh := make([]model.EmailSnapshot, 0, len(page.Emails))
	for _, e := range page.Emails {
		if _, dup := seen[e.ID]; dup {
			continue
		}
		seen[e.ID] = struct{}{}
		fresh = append(fresh, e)
	}

	// Rules may have changed since the interrupted run was classified.
	recovered, skippedOld := FilterProtected(recovered, p.settings.Rules.ProtectedSenders)
	fresh, skippedNew := FilterProtected(fresh, p.settings.Rules.ProtectedSenders)
	p.logSkipped(skippedOld + skippedNew)

	result := &ProcessResult{
		PageToken:        info.NextPageToken,
		SkippedProtected: skippedOld + skippedNew,
		HasMorePages:     page.HasMore(),
		NextPageToken:    page.NextPageToken,
		SupersededRunID:  info.RunID,
	}

	if len(recovered) == 0 && len(fresh) == 0 {
		if err := p.repo.MarkRunSuperseded(ctx, info.RunID); err != nil {
			return nil, fmt.Errorf("failed to retire run %d: %w", info.RunID, err)
		}
		p.logger.Infof("Run %d had nothing left to analyze and was superseded", info.RunID)
		result.Outcome = OutcomeNothingToAnalyze
		return result, nil
	}

	batch := make([]model.EmailSnapshot, 0, len(recovered)+len(fresh))
	batch = append(batch, recovered...)
	batch = append(batch, fresh...)
	analysis, err := p.classify(ctx, batch)
	if err != nil {
		p.logger.Warnf("Failed to re-analyze run %d, it stays pending: %v", info.RunID, err)
		return nil, err
	}

	reanalyzed := model.Annotate(recovered, analysis, model.ReasonRecovered)
	newEmails := model.Annotate(fresh, analysis, model.ReasonNoAnalysis)

	runID, err := p.repo.MergeReanalysisWithNewPage(ctx, repository.MergeInput{
		Reanalyzed:       reanalyzed,
		NewEmails:        newEmails,
		CurrentPageToken: info.NextPageToken,
		NextPageToken:    page.NextPageToken,
		SupersedeRunID:   info.RunID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to merge recovered emails: %w", err)
	}

	all := append(reanalyzed, newEmails...)
	p.recordClassified(all)
	p.logger.Infof("Recovery merged %d re-analyzed and %d new emails into run %d, run %d superseded",
		len(reanalyzed), len(newEmails), runID, info.RunID)

	result.Outcome = OutcomeRecovered
	result.RunID = runID
	result.EmailCount = len(all)
	result.RecoveredCount = len(reanalyzed)
	result.Report = BuildReport(all, p.aiClient.Model(), p.now())
	return result, nil
}
