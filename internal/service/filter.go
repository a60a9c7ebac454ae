package service

import (
	"strings"

	"inbox-triage/internal/model"
)

// FilterProtected drops every email whose sender contains one of the
// protected patterns, ignoring case. Empty patterns match nothing.
func FilterProtected(emails []model.EmailSnapshot, protected []string) ([]model.EmailSnapshot, int) {
	patterns := make([]string, 0, len(protected))
	for _, p := range protected {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			patterns = append(patterns, p)
		}
	}
	if len(patterns) == 0 {
		return emails, 0
	}

	kept := make([]model.EmailSnapshot, 0, len(emails))
	for _, e := range emails {
		if IsProtected(e.Sender, patterns) {
			continue
		}
		kept = append(kept, e)
	}
	return kept, len(emails) - len(kept)
}

// IsProtected expects lower-cased, non-empty patterns.
func IsProtected(sender string, patterns []string) bool {
	sender = strings.ToLower(sender)
	for _, p := range patterns {
		if strings.Contains(sender, p) {
			return true
		}
	}
	return false
}

// DedupeByID keeps the first occurrence of every message id and reports how
// many repeats were dropped.
func DedupeByID(emails []model.EmailSnapshot) ([]model.EmailSnapshot, int) {
	seen := make(map[string]struct{}, len(emails))
	kept := make([]model.EmailSnapshot, 0, len(emails))
	for _, e := range emails {
		if _, dup := seen[e.ID]; dup {
			continue
		}
		seen[e.ID] = struct{}{}
		kept = append(kept, e)
	}
	return kept, len(emails) - len(kept)
}
