package ai

import (
	"context"
	"sync"

	"inbox-triage/internal/model"
)

// MockAIClient is a mock implementation of the recommendation engine for testing
type MockAIClient struct {
	ClassifyFunc       func(ctx context.Context, emails []model.EmailSnapshot, rules model.RuleSet) (*model.AnalysisResult, error)
	TestConnectionFunc func(ctx context.Context) error

	mu      sync.Mutex
	batches [][]model.EmailSnapshot
}

func NewMockAIClient() *MockAIClient {
	return &MockAIClient{}
}

func (m *MockAIClient) Classify(ctx context.Context, emails []model.EmailSnapshot, rules model.RuleSet) (*model.AnalysisResult, error) {
	m.mu.Lock()
	m.batches = append(m.batches, append([]model.EmailSnapshot(nil), emails...))
	m.mu.Unlock()

	if m.ClassifyFunc != nil {
		return m.ClassifyFunc(ctx, emails, rules)
	}

	// Default mock behavior: keep everything
	result := model.NewAnalysisResult()
	for _, e := range emails {
		rec := model.Recommendation{Action: model.ActionKeep, Category: "personal", Confidence: 0.9, Reason: "mock"}
		result.Analysis[e.ID] = rec
		result.Summary.Add(rec.Action)
	}
	return result, nil
}

func (m *MockAIClient) TestConnection(ctx context.Context) error {
	if m.TestConnectionFunc != nil {
		return m.TestConnectionFunc(ctx)
	}
	return nil
}

func (m *MockAIClient) Model() string {
	return "mock"
}

// Batches returns every batch passed to Classify, in call order.
func (m *MockAIClient) Batches() [][]model.EmailSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]model.EmailSnapshot(nil), m.batches...)
}
