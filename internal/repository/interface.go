package repository

import (
	"context"
	"errors"
	"time"

	"inbox-triage/internal/model"
)

var (
	ErrRunNotFound       = errors.New("run not found")
	ErrRunNotCompletable = errors.New("run has undecided emails")
)

// NewRunInput describes one freshly classified page.
type NewRunInput struct {
	Emails        []model.AnalyzedEmail
	PageToken     string
	NextPageToken string
}

// MergeInput combines the undecided emails of an interrupted run with the
// page that follows it. When SupersedeRunID is set, that run is marked
// superseded in the same transaction.
type MergeInput struct {
	Reanalyzed       []model.AnalyzedEmail
	NewEmails        []model.AnalyzedEmail
	CurrentPageToken string
	NextPageToken    string
	SupersedeRunID   int64
}

// FinalizeInput is everything written once the mailbox confirmed deletions.
type FinalizeInput struct {
	RunID     int64
	Decisions map[string]model.Decision
	Deleted   []model.DeletionLogEntry
}

// RunRepository is the durable record of runs, their emails and the
// deletion audit trail. Lookups of "the latest pending run" return nil
// without an error when no such run exists.
type RunRepository interface {
	CreateRun(ctx context.Context, in NewRunInput) (int64, error)
	GetRun(ctx context.Context, runID int64) (*model.RunWithEmails, error)
	GetPendingRun(ctx context.Context) (*model.RunWithEmails, error)
	GetIncompleteRunInfo(ctx context.Context) (*model.IncompleteRunInfo, error)
	MergeReanalysisWithNewPage(ctx context.Context, in MergeInput) (int64, error)
	MarkRunSuperseded(ctx context.Context, runID int64) error
	UpdateUserDecisions(ctx context.Context, runID int64, decisions map[string]model.Decision) error
	MarkRunCompleted(ctx context.Context, runID int64) error
	FinalizeRun(ctx context.Context, in FinalizeInput) error
	LogDeletedEmails(ctx context.Context, entries []model.DeletionLogEntry) error
	MarkEmailsRestored(ctx context.Context, emailIDs []string) error
	GetDeletionHistory(ctx context.Context, since time.Time) ([]model.DeletionLogEntry, error)
	GetLastPageToken(ctx context.Context) (string, error)

	GetStats(ctx context.Context, recentSince time.Time) (*model.Stats, error)
	GetPaginationStats(ctx context.Context) (*model.PaginationStats, error)
	GetRunProgress(ctx context.Context, runID int64) (*model.RunProgress, error)
}
