package ai

import (
	"encoding/json"
	"fmt"

	"inbox-triage/internal/model"
)

const (
	promptSnippetLimit = 150

	systemPrompt     = "You are an expert email management assistant. Analyze emails and provide JSON recommendations for deletion."
	connectionPrompt = "Say 'API connected successfully' and nothing else."
)

type promptEmail struct {
	ID       string `json:"id"`
	Subject  string `json:"subject"`
	Sender   string `json:"sender"`
	Snippet  string `json:"snippet"`
	IsUnread bool   `json:"is_unread"`
	Date     string `json:"date"`
}

func analysisPrompt(emails []model.EmailSnapshot, rules model.RuleSet) (string, error) {
	summaries := make([]promptEmail, 0, len(emails))
	for _, e := range emails {
		snippet := []rune(e.Snippet)
		if len(snippet) > promptSnippetLimit {
			snippet = snippet[:promptSnippetLimit]
		}
		summaries = append(summaries, promptEmail{
			ID:       e.ID,
			Subject:  e.Subject,
			Sender:   e.Sender,
			Snippet:  string(snippet),
			IsUnread: e.IsUnread,
			Date:     e.Date,
		})
	}

	emailsJSON, err := json.MarshalIndent(summaries, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode emails for prompt: %w", err)
	}
	protected, err := json.Marshal(nonNil(rules.ProtectedSenders))
	if err != nil {
		return "", fmt.Errorf("failed to encode protected senders: %w", err)
	}
	patterns, err := json.Marshal(nonNil(rules.AutoDeletePatterns))
	if err != nil {
		return "", fmt.Errorf("failed to encode auto-delete patterns: %w", err)
	}

	return fmt.Sprintf(`You are an email management assistant. Analyze these emails and categorize them for potential deletion.

PROTECTED SENDERS (NEVER DELETE): %s
AUTO-DELETE PATTERNS: %s

EMAILS TO ANALYZE:
%s

Provide your recommendation in this EXACT JSON format (no other text):

{
  "analysis": {
    "email_id": {
      "action": "delete|review|keep",
      "category": "promotional|newsletter|notification|personal|work|other",
      "confidence": 0.0-1.0,
      "reason": "Brief explanation"
    }
  },
  "summary": {
    "total_emails": number,
    "recommended_deletions": number,
    "needs_review": number,
    "keep": number
  }
}

RULES:
1. NEVER recommend deleting emails from protected senders
2. Be conservative - when in doubt, mark for review
3. Consider email age, sender reputation, content type
4. Unread emails need more careful consideration
5. Personal emails should typically be kept
6. Marketing/promotional emails are usually safe to delete
7. Mark anything suspicious or important as "review"

RESPOND ONLY WITH VALID JSON - NO OTHER TEXT.`, protected, patterns, emailsJSON), nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
