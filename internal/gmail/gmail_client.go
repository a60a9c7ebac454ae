package gmail

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"inbox-triage/internal/logger"
	"inbox-triage/internal/model"
)

const (
	user = "me" // the authenticated user

	defaultSubject = "No Subject"
	defaultSender  = "Unknown Sender"
	unreadLabel    = "UNREAD"
)

// Client is the Gmail page source.
type Client struct {
	service *gmail.Service
	logger  *logger.Logger
	now     func() time.Time
}

func NewClient(ctx context.Context, httpClient *http.Client, logger *logger.Logger) (*Client, error) {
	return NewClientWithOptions(ctx, logger, option.WithHTTPClient(httpClient))
}

func NewClientWithOptions(ctx context.Context, logger *logger.Logger, opts ...option.ClientOption) (*Client, error) {
	gmailService, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}

	return &Client{
		service: gmailService,
		logger:  logger,
		now:     time.Now,
	}, nil
}

// SetClock fixes the time used for the recency window.
func (g *Client) SetClock(now func() time.Time) {
	g.now = now
}

// Query builds the inbox search for messages newer than daysBack days.
func Query(now time.Time, daysBack int) string {
	return fmt.Sprintf("in:inbox after:%s", now.AddDate(0, 0, -daysBack).Format("2006/01/02"))
}

func (g *Client) FetchPage(ctx context.Context, pageToken string, pageSize, daysBack int) (*model.Page, error) {
	call := g.service.Users.Messages.List(user).
		Q(Query(g.now(), daysBack)).
		MaxResults(int64(pageSize)).
		Context(ctx)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}

	list, err := call.Do()
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	g.logger.Info("Found", len(list.Messages), "emails on this page")

	page := &model.Page{
		Emails:        make([]model.EmailSnapshot, 0, len(list.Messages)),
		NextPageToken: list.NextPageToken,
	}
	for _, msg := range list.Messages {
		message, err := g.service.Users.Messages.Get(user, msg.Id).
			Format("metadata").
			MetadataHeaders("Subject", "From", "Date").
			Context(ctx).
			Do()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			g.logger.Error("Failed to get message:", msg.Id, err)
			continue
		}
		page.Emails = append(page.Emails, Snapshot(message))
	}
	return page, nil
}

// Snapshot converts a metadata message into an EmailSnapshot.
func Snapshot(message *gmail.Message) model.EmailSnapshot {
	snapshot := model.EmailSnapshot{
		ID:      message.Id,
		Subject: defaultSubject,
		Sender:  defaultSender,
		Snippet: message.Snippet,
	}

	if message.Payload != nil {
		for _, header := range message.Payload.Headers {
			switch header.Name {
			case "Subject":
				snapshot.Subject = header.Value
			case "From":
				snapshot.Sender = header.Value
			case "Date":
				snapshot.Date = header.Value
			}
		}
	}

	for _, label := range message.LabelIds {
		if label == unreadLabel {
			snapshot.IsUnread = true
			break
		}
	}
	return snapshot
}

// Trash moves messages to the trash one by one and stops at the first
// failure, returning the ids trashed so far.
func (g *Client) Trash(ctx context.Context, ids []string) ([]string, error) {
	trashed := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, err := g.service.Users.Messages.Trash(user, id).Context(ctx).Do(); err != nil {
			g.logger.Error("Failed to trash email:", id, err)
			return trashed, fmt.Errorf("failed to trash email %s: %w", id, err)
		}
		trashed = append(trashed, id)
	}
	g.logger.Info("Moved", len(trashed), "emails to trash")
	return trashed, nil
}

func (g *Client) Untrash(ctx context.Context, ids []string) ([]string, error) {
	restored := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, err := g.service.Users.Messages.Untrash(user, id).Context(ctx).Do(); err != nil {
			g.logger.Error("Failed to restore email:", id, err)
			return restored, fmt.Errorf("failed to restore email %s: %w", id, err)
		}
		restored = append(restored, id)
	}
	g.logger.Info("Restored", len(restored), "emails")
	return restored, nil
}

func (g *Client) Ping(ctx context.Context) error {
	profile, err := g.service.Users.GetProfile(user).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("gmail connection failed: %w", err)
	}
	g.logger.Info("Gmail API connection successful for", profile.EmailAddress)
	return nil
}
