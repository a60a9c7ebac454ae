package model

import "time"

type RunStatus string

const (
	RunStatusPending    RunStatus = "pending"
	RunStatusCompleted  RunStatus = "completed"
	RunStatusSuperseded RunStatus = "superseded"
)

// RunDateLayout is the calendar date stored in run_date.
const RunDateLayout = "2006-01-02"

// Run is one page-sized unit of work. Empty tokens mean "none".
type Run struct {
	ID                   int64     `json:"id"`
	RunDate              string    `json:"run_date"`
	TotalEmails          int       `json:"total_emails"`
	RecommendedDeletions int       `json:"recommended_deletions"`
	NeedsReview          int       `json:"needs_review"`
	KeepEmails           int       `json:"keep_emails"`
	Status               RunStatus `json:"status"`
	CurrentPageToken     string    `json:"current_page_token,omitempty"`
	NextPageToken        string    `json:"next_page_token,omitempty"`
	CreatedAt            time.Time `json:"created_at"`
}

func (r *Run) HasNextPage() bool {
	return r.NextPageToken != ""
}

// RunWithEmails is a run header together with its email rows.
type RunWithEmails struct {
	Run    Run           `json:"run"`
	Emails []EmailRecord `json:"emails"`
}

// Undecided returns the rows still waiting for a user decision.
func (r *RunWithEmails) Undecided() []EmailRecord {
	var out []EmailRecord
	for _, e := range r.Emails {
		if !e.Decided() {
			out = append(out, e)
		}
	}
	return out
}

func (r *RunWithEmails) Email(emailID string) (EmailRecord, bool) {
	for _, e := range r.Emails {
		if e.EmailID == emailID {
			return e, true
		}
	}
	return EmailRecord{}, false
}
