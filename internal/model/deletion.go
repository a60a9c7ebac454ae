package model

import "time"

// DeletionLogEntry is an audit row for a message the mailbox confirmed
// as trashed.
type DeletionLogEntry struct {
	ID         int64      `json:"id"`
	EmailID    string     `json:"email_id"`
	Subject    string     `json:"subject"`
	Sender     string     `json:"sender"`
	DeletedAt  time.Time  `json:"deleted_at"`
	CanRestore bool       `json:"can_restore"`
	RestoredAt *time.Time `json:"restored_at,omitempty"`
}

func NewDeletionLogEntry(emailID, subject, sender string) DeletionLogEntry {
	return DeletionLogEntry{
		EmailID:    emailID,
		Subject:    subject,
		Sender:     sender,
		CanRestore: true,
	}
}
