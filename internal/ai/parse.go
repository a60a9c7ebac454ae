package ai

import (
	"encoding/json"
	"fmt"
	"strings"

	"inbox-triage/internal/model"
	"inbox-triage/internal/service"
)

type rawRecommendation struct {
	Action     string   `json:"action"`
	Category   string   `json:"category"`
	Confidence *float64 `json:"confidence"`
	Reason     string   `json:"reason"`
}

type rawAnalysis struct {
	Analysis map[string]rawRecommendation `json:"analysis"`
	Summary  *model.AnalysisSummary       `json:"summary"`
}

// ParseAnalysis decodes a model response. Both top-level fields are
// required; individual entries with an unknown action or an out of range
// confidence are downgraded to review.
func ParseAnalysis(text string) (*model.AnalysisResult, error) {
	var raw rawAnalysis
	if err := json.Unmarshal([]byte(stripCodeFence(text)), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", service.ErrInvalidAnalysis, err)
	}
	if raw.Analysis == nil || raw.Summary == nil {
		return nil, fmt.Errorf("%w: missing analysis or summary", service.ErrInvalidAnalysis)
	}

	result := &model.AnalysisResult{
		Analysis: make(map[string]model.Recommendation, len(raw.Analysis)),
		Summary:  *raw.Summary,
	}
	for id, r := range raw.Analysis {
		result.Analysis[id] = normalize(r)
	}
	return result, nil
}

func normalize(r rawRecommendation) model.Recommendation {
	rec := model.Recommendation{
		Action:     model.Action(strings.ToLower(strings.TrimSpace(r.Action))),
		Category:   strings.ToLower(strings.TrimSpace(r.Category)),
		Confidence: model.DefaultConfidence,
		Reason:     r.Reason,
	}
	if rec.Category == "" {
		rec.Category = model.CategoryOther
	}
	validConfidence := true
	if r.Confidence != nil {
		validConfidence = *r.Confidence >= 0 && *r.Confidence <= 1
		if validConfidence {
			rec.Confidence = *r.Confidence
		}
	}
	if !rec.Action.Valid() || !validConfidence {
		rec.Action = model.ActionReview
		rec.Confidence = model.DefaultConfidence
	}
	return rec
}

func stripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	switch {
	case strings.HasPrefix(text, "```json"):
		text = strings.TrimPrefix(text, "```json")
	case strings.HasPrefix(text, "```"):
		text = strings.TrimPrefix(text, "```")
	default:
		return text
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(text), "```"))
}
