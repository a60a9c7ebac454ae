package service

import (
	"context"
	"fmt"
	"time"

	"inbox-triage/internal/metrics"
	"inbox-triage/internal/model"
)

const defaultHistoryDays = 30

// ConnectionReport is the outcome of probing both external collaborators.
type ConnectionReport struct {
	Model        string `json:"model"`
	AIOK         bool   `json:"ai_ok"`
	AIError      string `json:"ai_error,omitempty"`
	MailboxOK    bool   `json:"mailbox_ok"`
	MailboxError string `json:"mailbox_error,omitempty"`
}

func (c *ConnectionReport) OK() bool {
	return c.AIOK && c.MailboxOK
}

func (p *Processor) GetPendingReview(ctx context.Context) (*model.RunWithEmails, error) {
	return p.repo.GetPendingRun(ctx)
}

func (p *Processor) GetIncompleteRunInfo(ctx context.Context) (*model.IncompleteRunInfo, error) {
	return p.repo.GetIncompleteRunInfo(ctx)
}

func (p *Processor) GetPaginationStatus(ctx context.Context) (*model.PaginationStatus, error) {
	stats, err := p.repo.GetPaginationStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get pagination stats: %w", err)
	}
	token, err := p.repo.GetLastPageToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get resume token: %w", err)
	}
	return &model.PaginationStatus{
		Stats:       *stats,
		CanContinue: token != "",
		LastToken:   token,
	}, nil
}

func (p *Processor) GetStats(ctx context.Context) (*model.Stats, error) {
	return p.repo.GetStats(ctx, p.now().AddDate(0, 0, -7))
}

func (p *Processor) GetRunProgress(ctx context.Context, runID int64) (*model.RunProgress, error) {
	return p.repo.GetRunProgress(ctx, runID)
}

// GetDeletionHistory lists audit entries from the last days days, 30 when
// days is not positive.
func (p *Processor) GetDeletionHistory(ctx context.Context, days int) ([]model.DeletionLogEntry, error) {
	if days <= 0 {
		days = defaultHistoryDays
	}
	return p.repo.GetDeletionHistory(ctx, p.now().AddDate(0, 0, -days))
}

// RestoreEmails moves messages back out of the trash and stamps the audit
// trail for every id the mailbox actually restored. Only ids the deletion log
// still marks as restorable are accepted.
func (p *Processor) RestoreEmails(ctx context.Context, emailIDs []string) ([]string, error) {
	if len(emailIDs) == 0 {
		return nil, nil
	}

	history, err := p.repo.GetDeletionHistory(ctx, time.Time{})
	if err != nil {
		return nil, fmt.Errorf("failed to load deletion log: %w", err)
	}
	restorable := make(map[string]struct{}, len(history))
	for _, entry := range history {
		if entry.CanRestore {
			restorable[entry.EmailID] = struct{}{}
		}
	}
	for _, id := range emailIDs {
		if _, ok := restorable[id]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrNotRestorable, id)
		}
	}

	start := time.Now()
	restored, untrashErr := p.mailbox.Untrash(ctx, emailIDs)
	metrics.RecordMailboxLatency("untrash", metrics.Status(untrashErr), time.Since(start))

	if len(restored) > 0 {
		if err := p.repo.MarkEmailsRestored(ctx, restored); err != nil {
			return restored, fmt.Errorf("failed to record restored emails: %w", err)
		}
		p.logger.Infof("Restored %d emails", len(restored))
	}
	if untrashErr != nil {
		return restored, fmt.Errorf("failed to restore emails: %w", untrashErr)
	}
	return restored, nil
}

func (p *Processor) TestConnections(ctx context.Context) *ConnectionReport {
	report := &ConnectionReport{Model: p.aiClient.Model()}

	if err := p.aiClient.TestConnection(ctx); err != nil {
		p.logger.Warn("AI connection failed:", err)
		report.AIError = err.Error()
	} else {
		report.AIOK = true
	}

	if err := p.mailbox.Ping(ctx); err != nil {
		p.logger.Warn("Mailbox connection failed:", err)
		report.MailboxError = err.Error()
	} else {
		report.MailboxOK = true
	}
	return report
}
