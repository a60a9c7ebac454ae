package model

const (
	CategoryOther = "other"

	DefaultConfidence = 0.5

	ReasonNoAnalysis = "No analysis available"
	ReasonRecovered  = "Re-analyzed after crash recovery"
	ReasonFallback   = "Fallback - requires manual review"
)

type Recommendation struct {
	Action     Action  `json:"action"`
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

type AnalysisSummary struct {
	TotalEmails          int `json:"total_emails"`
	RecommendedDeletions int `json:"recommended_deletions"`
	NeedsReview          int `json:"needs_review"`
	Keep                 int `json:"keep"`
}

func (s *AnalysisSummary) Add(action Action) {
	s.TotalEmails++
	switch action {
	case ActionDelete:
		s.RecommendedDeletions++
	case ActionKeep:
		s.Keep++
	default:
		s.NeedsReview++
	}
}

// AnalysisResult is the recommendation engine's answer for one batch,
// keyed by provider message id.
type AnalysisResult struct {
	Analysis map[string]Recommendation `json:"analysis"`
	Summary  AnalysisSummary           `json:"summary"`
}

func NewAnalysisResult() *AnalysisResult {
	return &AnalysisResult{Analysis: make(map[string]Recommendation)}
}

// DefaultRecommendation is stored for any email the engine did not answer
// for. It is never a deletion.
func DefaultRecommendation(reason string) Recommendation {
	return Recommendation{
		Action:     ActionReview,
		Category:   CategoryOther,
		Confidence: DefaultConfidence,
		Reason:     reason,
	}
}

// RecommendationFor returns the engine's answer for id, or the safe default.
func (a *AnalysisResult) RecommendationFor(id, missingReason string) Recommendation {
	if a == nil {
		return DefaultRecommendation(missingReason)
	}
	rec, ok := a.Analysis[id]
	if !ok {
		return DefaultRecommendation(missingReason)
	}
	return rec
}

// Merge folds other into a, overwriting duplicate ids and summing summaries.
func (a *AnalysisResult) Merge(other *AnalysisResult) {
	if other == nil {
		return
	}
	if a.Analysis == nil {
		a.Analysis = make(map[string]Recommendation)
	}
	for id, rec := range other.Analysis {
		a.Analysis[id] = rec
	}
	a.Summary.TotalEmails += other.Summary.TotalEmails
	a.Summary.RecommendedDeletions += other.Summary.RecommendedDeletions
	a.Summary.NeedsReview += other.Summary.NeedsReview
	a.Summary.Keep += other.Summary.Keep
}

// FallbackAnalysis marks every email for manual review.
func FallbackAnalysis(emails []EmailSnapshot) *AnalysisResult {
	result := NewAnalysisResult()
	for _, e := range emails {
		rec := DefaultRecommendation(ReasonFallback)
		result.Analysis[e.ID] = rec
		result.Summary.Add(rec.Action)
	}
	return result
}

// AnalyzedEmail pairs a snapshot with the recommendation that will be stored.
type AnalyzedEmail struct {
	EmailSnapshot
	Recommendation
}

// Annotate resolves a recommendation for every email, falling back to the
// safe default for ids missing from result.
func Annotate(emails []EmailSnapshot, result *AnalysisResult, missingReason string) []AnalyzedEmail {
	out := make([]AnalyzedEmail, 0, len(emails))
	for _, e := range emails {
		out = append(out, AnalyzedEmail{
			EmailSnapshot:  e,
			Recommendation: result.RecommendationFor(e.ID, missingReason),
		})
	}
	return out
}

// Summarize counts the actions of emails that will actually be stored.
func Summarize(emails []AnalyzedEmail) AnalysisSummary {
	var s AnalysisSummary
	for _, e := range emails {
		s.Add(e.Action)
	}
	return s
}
