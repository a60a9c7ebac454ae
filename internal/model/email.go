package model

import "time"

type Action string

const (
	ActionDelete Action = "delete"
	ActionReview Action = "review"
	ActionKeep   Action = "keep"
)

func (a Action) Valid() bool {
	switch a {
	case ActionDelete, ActionReview, ActionKeep:
		return true
	}
	return false
}

type Decision string

const (
	DecisionDelete Decision = "delete"
	DecisionKeep   Decision = "keep"
)

func (d Decision) Valid() bool {
	return d == DecisionDelete || d == DecisionKeep
}

// EmailSnapshot is a message as returned by a mailbox page source.
type EmailSnapshot struct {
	ID       string `json:"id"`
	Subject  string `json:"subject"`
	Sender   string `json:"sender"`
	Date     string `json:"date"`
	Snippet  string `json:"snippet"`
	IsUnread bool   `json:"is_unread"`
}

// Page is one bounded batch from the mailbox. An empty NextPageToken marks
// the end of the listing.
type Page struct {
	Emails        []EmailSnapshot `json:"emails"`
	NextPageToken string          `json:"next_page_token,omitempty"`
}

func (p *Page) HasMore() bool {
	return p.NextPageToken != ""
}

// EmailRecord is one message's analysis row inside a run.
type EmailRecord struct {
	ID                int64      `json:"id"`
	RunID             int64      `json:"run_id"`
	EmailID           string     `json:"email_id"`
	Subject           string     `json:"subject"`
	Sender            string     `json:"sender"`
	Date              string     `json:"date"`
	Snippet           string     `json:"snippet"`
	IsUnread          bool       `json:"is_unread"`
	RecommendedAction Action     `json:"recommended_action"`
	Category          string     `json:"category"`
	Confidence        float64    `json:"confidence"`
	Reason            string     `json:"reason"`
	UserDecision      Decision   `json:"user_decision,omitempty"`
	ProcessedAt       *time.Time `json:"processed_at,omitempty"`
}

func (e *EmailRecord) Decided() bool {
	return e.UserDecision != ""
}

// Snapshot strips the analysis fields so the message can be classified again.
func (e *EmailRecord) Snapshot() EmailSnapshot {
	return EmailSnapshot{
		ID:       e.EmailID,
		Subject:  e.Subject,
		Sender:   e.Sender,
		Date:     e.Date,
		Snippet:  e.Snippet,
		IsUnread: e.IsUnread,
	}
}
