package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inbox-triage/internal/logger"
	"inbox-triage/internal/model"
	"inbox-triage/internal/service"
)

func TestParseAnalysis(t *testing.T) {
	text := "```json\n" + `{
  "analysis": {
    "a": {"action": "DELETE", "category": "Promotional", "confidence": 0.9, "reason": "sale"},
    "b": {"action": "archive", "category": "", "confidence": 0.8, "reason": "?"},
    "c": {"action": "delete", "category": "spam", "confidence": 3, "reason": "sure"},
    "d": {"action": "keep", "reason": "friend"}
  },
  "summary": {"total_emails": 4, "recommended_deletions": 2, "needs_review": 1, "keep": 1}
}` + "\n```"

	result, err := ParseAnalysis(text)
	require.NoError(t, err)
	assert.Equal(t, model.Recommendation{Action: model.ActionDelete, Category: "promotional", Confidence: 0.9, Reason: "sale"}, result.Analysis["a"])
	assert.Equal(t, model.ActionReview, result.Analysis["b"].Action)
	assert.Equal(t, 0.5, result.Analysis["b"].Confidence)
	assert.Equal(t, model.CategoryOther, result.Analysis["b"].Category)
	assert.Equal(t, model.ActionReview, result.Analysis["c"].Action)
	assert.Equal(t, model.ActionKeep, result.Analysis["d"].Action)
	assert.Equal(t, 0.5, result.Analysis["d"].Confidence)
	assert.Equal(t, 4, result.Summary.TotalEmails)
}

func TestParseAnalysisRejectsBadStructure(t *testing.T) {
	for _, text := range []string{
		"not json",
		`{"analysis": {}}`,
		`{"summary": {"total_emails": 0}}`,
	} {
		_, err := ParseAnalysis(text)
		assert.ErrorIs(t, err, service.ErrInvalidAnalysis, text)
	}
}

// chatServer answers every chat completion by recommending deletion for each
// email id found in the prompt.
func chatServer(t *testing.T, calls *int32, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		if status != http.StatusOK {
			http.Error(w, "unavailable", status)
			return
		}

		var req chatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 2)
		assert.Equal(t, systemPrompt, req.Messages[0].Content)

		prompt := req.Messages[1].Content
		start := strings.Index(prompt, "EMAILS TO ANALYZE:\n") + len("EMAILS TO ANALYZE:\n")
		end := strings.Index(prompt, "\n\nProvide your recommendation")
		var emails []promptEmail
		require.NoError(t, json.Unmarshal([]byte(prompt[start:end]), &emails))

		analysis := map[string]interface{}{}
		for _, e := range emails {
			analysis[e.ID] = map[string]interface{}{"action": "delete", "category": "promotional", "confidence": 0.9, "reason": "promo"}
		}
		content, _ := json.Marshal(map[string]interface{}{
			"analysis": analysis,
			"summary":  map[string]int{"total_emails": len(emails), "recommended_deletions": len(emails)},
		})
		_ = json.NewEncoder(w).Encode(chatCompletionResponse{
			Choices: []choice{{Message: message{Role: "assistant", Content: string(content)}}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func emails(n int) []model.EmailSnapshot {
	out := make([]model.EmailSnapshot, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, model.EmailSnapshot{ID: fmt.Sprintf("m%d", i), Subject: "s", Sender: "x@y.com"})
	}
	return out
}

func TestClassifyBatches(t *testing.T) {
	var calls int32
	srv := chatServer(t, &calls, http.StatusOK)
	client := NewClient(Options{Provider: ProviderGroq, APIKey: "key", BaseURL: srv.URL, MaxBatch: 2}, logger.NewNop())

	result, err := client.Classify(context.Background(), emails(5), model.RuleSet{})
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.Len(t, result.Analysis, 5)
	assert.Equal(t, 5, result.Summary.RecommendedDeletions)
}

func TestClassifyFailureWithoutFallback(t *testing.T) {
	var calls int32
	srv := chatServer(t, &calls, http.StatusServiceUnavailable)
	client := NewClient(Options{APIKey: "key", BaseURL: srv.URL}, logger.NewNop())

	_, err := client.Classify(context.Background(), emails(2), model.RuleSet{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestClassifyFallbackOnError(t *testing.T) {
	var calls int32
	srv := chatServer(t, &calls, http.StatusServiceUnavailable)
	client := NewClient(Options{APIKey: "key", BaseURL: srv.URL, FallbackOnError: true}, logger.NewNop())

	result, err := client.Classify(context.Background(), emails(2), model.RuleSet{})
	require.NoError(t, err)
	for _, rec := range result.Analysis {
		assert.Equal(t, model.ActionReview, rec.Action)
		assert.Equal(t, model.ReasonFallback, rec.Reason)
	}
	assert.Equal(t, 2, result.Summary.NeedsReview)
}

func TestAnalysisPromptTruncatesSnippets(t *testing.T) {
	long := strings.Repeat("é", 400)
	prompt, err := analysisPrompt([]model.EmailSnapshot{{ID: "a", Snippet: long}}, model.RuleSet{ProtectedSenders: []string{"boss@work.com"}})
	require.NoError(t, err)
	assert.Contains(t, prompt, `PROTECTED SENDERS (NEVER DELETE): ["boss@work.com"]`)
	assert.Contains(t, prompt, `AUTO-DELETE PATTERNS: []`)
	assert.Contains(t, prompt, strings.Repeat("é", 150)+`"`)
	assert.NotContains(t, prompt, strings.Repeat("é", 151))
}

func TestGeminiConnection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/gemini-2.0-flash-lite:generateContent", r.URL.Path)
		assert.Equal(t, "key", r.Header.Get("x-goog-api-key"))
		_ = json.NewEncoder(w).Encode(geminiResponse{Candidates: []geminiCandidate{{
			Content: geminiContent{Parts: []geminiPart{{Text: "API connected successfully"}}},
		}}})
	}))
	defer srv.Close()

	client := NewClient(Options{Provider: ProviderGemini, APIKey: "key", BaseURL: srv.URL}, logger.NewNop())
	assert.NoError(t, client.TestConnection(context.Background()))
	assert.Equal(t, "gemini-2.0-flash-lite", client.Model())
}

func TestMissingKey(t *testing.T) {
	client := NewClient(Options{}, logger.NewNop())
	assert.Error(t, client.TestConnection(context.Background()))
}
