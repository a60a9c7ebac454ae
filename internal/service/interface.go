package service

import (
	"context"

	"inbox-triage/internal/model"
)

// EmailProcessor drives one page at a time through fetch, filter, classify,
// persist, review and decide.
type EmailProcessor interface {
	ProcessNextPage(ctx context.Context, opts ProcessOptions) (*ProcessResult, error)
	ApplyDecisions(ctx context.Context, runID int64, decisions map[string]model.Decision) (*DecisionResult, error)
	GetPendingReview(ctx context.Context) (*model.RunWithEmails, error)
	GetIncompleteRunInfo(ctx context.Context) (*model.IncompleteRunInfo, error)
	GetPaginationStatus(ctx context.Context) (*model.PaginationStatus, error)
	GetStats(ctx context.Context) (*model.Stats, error)
	GetRunProgress(ctx context.Context, runID int64) (*model.RunProgress, error)
	GetDeletionHistory(ctx context.Context, days int) ([]model.DeletionLogEntry, error)
	RestoreEmails(ctx context.Context, emailIDs []string) ([]string, error)
	TestConnections(ctx context.Context) *ConnectionReport
}

// MailboxClient is a page source with trash capabilities.
type MailboxClient interface {
	// FetchPage returns up to pageSize inbox messages newer than daysBack
	// days, starting at pageToken ("" for the first page).
	FetchPage(ctx context.Context, pageToken string, pageSize, daysBack int) (*model.Page, error)
	// Trash moves messages to the trash and reports the ids it actually
	// trashed, even when it also returns an error.
	Trash(ctx context.Context, ids []string) ([]string, error)
	Untrash(ctx context.Context, ids []string) ([]string, error)
	Ping(ctx context.Context) error
}

// AIClient interface for the recommendation engine
type AIClient interface {
	Classify(ctx context.Context, emails []model.EmailSnapshot, rules model.RuleSet) (*model.AnalysisResult, error)
	TestConnection(ctx context.Context) error
	Model() string
}
