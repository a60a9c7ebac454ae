package model

// RuleSet is the deletion policy handed to the recommendation engine.
// Protected senders are also enforced by the controller before classification.
type RuleSet struct {
	ProtectedSenders   []string `json:"protected_senders"`
	AutoDeletePatterns []string `json:"auto_delete_patterns"`
}
