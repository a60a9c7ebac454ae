package service

import (
	"context"
	"fmt"
	"time"

	"inbox-triage/internal/logger"
	"inbox-triage/internal/metrics"
	"inbox-triage/internal/model"
	"inbox-triage/internal/repository"
)

// Outcome tells the caller what a ProcessNextPage call did. Only
// OutcomeProcessed and OutcomeRecovered create a run.
type Outcome string

const (
	OutcomeProcessed        Outcome = "processed"
	OutcomeRecovered        Outcome = "recovered"
	OutcomeNoEmails         Outcome = "no_emails"
	OutcomeNothingToAnalyze Outcome = "nothing_to_analyze"
)

// Settings are the rule values the controller consumes.
type Settings struct {
	PageSize int
	DaysBack int
	Rules    model.RuleSet
}

type ProcessOptions struct {
	// FromStart ignores the saved resume token. An interrupted run is still
	// recovered first.
	FromStart bool
}

type ProcessResult struct {
	Outcome          Outcome `json:"outcome"`
	RunID            int64   `json:"run_id,omitempty"`
	EmailCount       int     `json:"email_count"`
	RecoveredCount   int     `json:"recovered_count,omitempty"`
	SkippedProtected int     `json:"skipped_protected,omitempty"`
	PageToken        string  `json:"page_token,omitempty"`
	HasMorePages     bool    `json:"has_more_pages"`
	NextPageToken    string  `json:"next_page_token,omitempty"`
	SupersededRunID  int64   `json:"superseded_run_id,omitempty"`
	Report           *Report `json:"report,omitempty"`
}

// CreatedRun reports whether the call left a new pending run behind.
func (r *ProcessResult) CreatedRun() bool {
	return r.Outcome == OutcomeProcessed || r.Outcome == OutcomeRecovered
}

type Processor struct {
	repo     repository.RunRepository
	mailbox  MailboxClient
	aiClient AIClient
	settings Settings
	logger   *logger.Logger
	now      func() time.Time
}

func NewProcessor(
	repo repository.RunRepository,
	mailbox MailboxClient,
	aiClient AIClient,
	settings Settings,
	logger *logger.Logger,
) *Processor {
	if settings.PageSize <= 0 {
		settings.PageSize = 50
	}
	if settings.DaysBack <= 0 {
		settings.DaysBack = 30
	}
	return &Processor{
		repo:     repo,
		mailbox:  mailbox,
		aiClient: aiClient,
		settings: settings,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (p *Processor) SetClock(now func() time.Time) {
	p.now = now
}

func (p *Processor) Settings() Settings {
	return p.settings
}

// ProcessNextPage fetches, filters, classifies and persists exactly one page.
// Nothing is written unless classification succeeded, so a failed call can
// simply be repeated.
func (p *Processor) ProcessNextPage(ctx context.Context, opts ProcessOptions) (*ProcessResult, error) {
	info, err := p.repo.GetIncompleteRunInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to check for an incomplete run: %w", err)
	}

	if info != nil && info.NeedsReanalysis {
		if opts.FromStart {
			p.logger.Warnf("Run %d still has undecided emails, recovering it instead of starting over", info.RunID)
		}
		result, err := p.recoverRun(ctx, info)
		if err != nil {
			return nil, err
		}
		metrics.IncrementPageOutcome(string(result.Outcome))
		return result, nil
	}

	token := ""
	if !opts.FromStart {
		token, err = p.repo.GetLastPageToken(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get resume token: %w", err)
		}
	}
	if token != "" {
		p.logger.Info("Continuing from saved position")
	} else {
		p.logger.Info("Starting from the beginning of the inbox")
	}

	page, err := p.fetch(ctx, token)
	if err != nil {
		return nil, err
	}

	result := &ProcessResult{
		PageToken:     token,
		HasMorePages:  page.HasMore(),
		NextPageToken: page.NextPageToken,
	}

	if len(page.Emails) == 0 {
		p.logger.Info("No emails found on this page")
		result.Outcome = OutcomeNoEmails
		metrics.IncrementPageOutcome(string(result.Outcome))
		return result, nil
	}

	unique, repeats := DedupeByID(page.Emails)
	if repeats > 0 {
		p.logger.Warnf("Dropped %d repeated message ids from the page", repeats)
	}

	emails, skipped := FilterProtected(unique, p.settings.Rules.ProtectedSenders)
	result.SkippedProtected = skipped
	p.logSkipped(skipped)
	if len(emails) == 0 {
		p.logger.Info("No emails remaining after filtering")
		result.Outcome = OutcomeNothingToAnalyze
		metrics.IncrementPageOutcome(string(result.Outcome))
		return result, nil
	}

	analysis, err := p.classify(ctx, emails)
	if err != nil {
		p.logger.Warn("Failed to analyze emails, the page will be retried:", err)
		return nil, err
	}

	analyzed := model.Annotate(emails, analysis, model.ReasonNoAnalysis)
	runID, err := p.repo.CreateRun(ctx, repository.NewRunInput{
		Emails:        analyzed,
		PageToken:     token,
		NextPageToken: page.NextPageToken,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save page analysis: %w", err)
	}

	if info != nil {
		p.completeDecidedRun(ctx, info.RunID)
	}

	p.recordClassified(analyzed)
	p.logger.Infof("Page analysis completed, run %d holds %d emails", runID, len(analyzed))

	result.Outcome = OutcomeProcessed
	result.RunID = runID
	result.EmailCount = len(analyzed)
	result.Report = BuildReport(analyzed, p.aiClient.Model(), p.now())
	metrics.IncrementPageOutcome(string(result.Outcome))
	return result, nil
}

func (p *Processor) fetch(ctx context.Context, token string) (*model.Page, error) {
	start := time.Now()
	page, err := p.mailbox.FetchPage(ctx, token, p.settings.PageSize, p.settings.DaysBack)
	metrics.RecordMailboxLatency("fetch", metrics.Status(err), time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch email page: %w", err)
	}
	if page == nil {
		page = &model.Page{}
	}
	return page, nil
}

func (p *Processor) classify(ctx context.Context, emails []model.EmailSnapshot) (*model.AnalysisResult, error) {
	start := time.Now()
	result, err := p.aiClient.Classify(ctx, emails, p.settings.Rules)
	metrics.RecordClassifyLatency(p.aiClient.Model(), metrics.Status(err), time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("failed to classify emails: %w", err)
	}
	if result == nil || result.Analysis == nil {
		return nil, fmt.Errorf("failed to classify emails: %w", ErrInvalidAnalysis)
	}
	return result, nil
}

// completeDecidedRun closes a pending run whose emails were all decided but
// which never reached completed. The new run is already saved, so a failure
// here is only logged.
func (p *Processor) completeDecidedRun(ctx context.Context, runID int64) {
	if err := p.repo.MarkRunCompleted(ctx, runID); err != nil {
		p.logger.Warnf("Failed to complete fully decided run %d: %v", runID, err)
		return
	}
	p.logger.Infof("Completed fully decided run %d", runID)
}

func (p *Processor) logSkipped(skipped int) {
	if skipped == 0 {
		return
	}
	metrics.IncrementProtectedSkipped(skipped)
	p.logger.Infof("Skipped %d emails from protected senders", skipped)
}

func (p *Processor) recordClassified(emails []model.AnalyzedEmail) {
	summary := model.Summarize(emails)
	metrics.IncrementClassified(string(model.ActionDelete), summary.RecommendedDeletions)
	metrics.IncrementClassified(string(model.ActionReview), summary.NeedsReview)
	metrics.IncrementClassified(string(model.ActionKeep), summary.Keep)
}
