package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"inbox-triage/internal/logger"
	"inbox-triage/internal/model"
)

const (
	ProviderGroq     = "groq"
	ProviderOpenAI   = "openai"
	ProviderDeepSeek = "deepseek"
	ProviderGemini   = "gemini"

	defaultMaxBatch = 30
)

type Options struct {
	Provider        string
	APIKey          string
	Model           string
	BaseURL         string
	MaxBatch        int
	FallbackOnError bool
	HTTPClient      *http.Client
}

// Client talks to an OpenAI-compatible chat endpoint or to Gemini.
type Client struct {
	provider        string
	apiKey          string
	baseURL         string
	model           string
	maxBatch        int
	fallbackOnError bool
	httpClient      *http.Client
	logger          *logger.Logger
}

func NewClient(opts Options, logger *logger.Logger) *Client {
	provider := strings.ToLower(opts.Provider)
	if provider == "" {
		provider = ProviderGroq
	}
	client := &Client{
		provider:        provider,
		apiKey:          opts.APIKey,
		baseURL:         strings.TrimRight(opts.BaseURL, "/"),
		model:           opts.Model,
		maxBatch:        opts.MaxBatch,
		fallbackOnError: opts.FallbackOnError,
		httpClient:      opts.HTTPClient,
		logger:          logger,
	}
	if client.baseURL == "" {
		client.baseURL = getBaseURL(provider)
	}
	if client.model == "" {
		client.model = getModel(provider)
	}
	if client.maxBatch <= 0 {
		client.maxBatch = defaultMaxBatch
	}
	if client.httpClient == nil {
		client.httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return client
}

// getBaseURL returns the appropriate API base URL based on the provider
func getBaseURL(provider string) string {
	switch provider {
	case ProviderOpenAI:
		return "https://api.openai.com/v1"
	case ProviderDeepSeek:
		return "https://api.deepseek.com"
	case ProviderGemini:
		return "https://generativelanguage.googleapis.com/v1beta"
	default:
		return "https://api.groq.com/openai/v1"
	}
}

// getModel returns the appropriate model based on the provider
func getModel(provider string) string {
	switch provider {
	case ProviderOpenAI:
		return "gpt-4o"
	case ProviderDeepSeek:
		return "deepseek-chat"
	case ProviderGemini:
		return "gemini-2.0-flash-lite"
	default:
		return "llama-3.3-70b-versatile"
	}
}

func (a *Client) Model() string {
	return a.model
}

// Classify sends the emails in chunks of at most maxBatch and merges the
// per-chunk analyses. Emails the model does not answer for are left out of
// the result.
func (a *Client) Classify(ctx context.Context, emails []model.EmailSnapshot, rules model.RuleSet) (*model.AnalysisResult, error) {
	result := model.NewAnalysisResult()
	for start := 0; start < len(emails); start += a.maxBatch {
		end := min(start+a.maxBatch, len(emails))
		chunk := emails[start:end]

		analysis, err := a.classifyChunk(ctx, chunk, rules)
		if err != nil {
			return nil, err
		}
		result.Merge(analysis)
	}
	a.logger.Infof("Analysis completed for %d emails with %s", len(emails), a.model)
	return result, nil
}

func (a *Client) classifyChunk(ctx context.Context, emails []model.EmailSnapshot, rules model.RuleSet) (*model.AnalysisResult, error) {
	prompt, err := analysisPrompt(emails, rules)
	if err != nil {
		return nil, err
	}

	text, err := a.complete(ctx, completion{
		System:      systemPrompt,
		User:        prompt,
		Temperature: 0.3,
		MaxTokens:   4000,
		TopP:        0.9,
	})
	if err != nil {
		if a.fallbackOnError && ctx.Err() == nil {
			a.logger.Warn("AI request failed, marking the batch for manual review:", err)
			return model.FallbackAnalysis(emails), nil
		}
		return nil, fmt.Errorf("failed to analyze emails: %w", err)
	}

	analysis, err := ParseAnalysis(text)
	if err != nil {
		a.logger.Errorf("Failed to parse AI response (first 500 chars): %s", truncate(text, 500))
		return nil, err
	}
	return analysis, nil
}

func (a *Client) TestConnection(ctx context.Context) error {
	text, err := a.complete(ctx, completion{
		User:      connectionPrompt,
		MaxTokens: 50,
	})
	if err != nil {
		return fmt.Errorf("%s API test failed: %w", a.provider, err)
	}
	if strings.TrimSpace(text) == "" {
		text = "No response"
	}
	a.logger.Infof("%s API test: %s", a.provider, strings.TrimSpace(text))
	return nil
}

type completion struct {
	System      string
	User        string
	Temperature float64
	MaxTokens   int
	TopP        float64
}

func (a *Client) complete(ctx context.Context, c completion) (string, error) {
	if a.apiKey == "" {
		return "", fmt.Errorf("missing API key for provider %s", a.provider)
	}
	if a.provider == ProviderGemini {
		return a.completeWithGemini(ctx, c)
	}
	return a.completeWithOpenAIStyle(ctx, c)
}

// OpenAI/DeepSeek/Groq API request/response structures
type chatCompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature"`
	TopP        float64   `json:"top_p,omitempty"`
	Stream      bool      `json:"stream"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionResponse struct {
	ID      string   `json:"id"`
	Model   string   `json:"model"`
	Choices []choice `json:"choices"`
}

type choice struct {
	Index        int     `json:"index"`
	Message      message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// Gemini API request/response structures
type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
	TopP            float64 `json:"topP,omitempty"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent         `json:"systemInstruction,omitempty"`
	Contents          []geminiContent        `json:"contents"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []geminiCandidate `json:"candidates"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason"`
}

func (a *Client) completeWithOpenAIStyle(ctx context.Context, c completion) (string, error) {
	request := chatCompletionRequest{
		Model:       a.model,
		MaxTokens:   c.MaxTokens,
		Temperature: c.Temperature,
		TopP:        c.TopP,
	}
	if c.System != "" {
		request.Messages = append(request.Messages, message{Role: "system", Content: c.System})
	}
	request.Messages = append(request.Messages, message{Role: "user", Content: c.User})

	var resp chatCompletionResponse
	err := a.postJSON(ctx, a.baseURL+"/chat/completions", request, &resp, map[string]string{
		"Authorization": "Bearer " + a.apiKey,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices returned from AI")
	}
	return resp.Choices[0].Message.Content, nil
}

func (a *Client) completeWithGemini(ctx context.Context, c completion) (string, error) {
	request := geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: c.User}}}},
		GenerationConfig: geminiGenerationConfig{
			Temperature:     c.Temperature,
			MaxOutputTokens: c.MaxTokens,
			TopP:            c.TopP,
		},
	}
	if c.System != "" {
		request.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: c.System}}}
	}

	var resp geminiResponse
	url := fmt.Sprintf("%s/models/%s:generateContent", a.baseURL, a.model)
	err := a.postJSON(ctx, url, request, &resp, map[string]string{
		"x-goog-api-key": a.apiKey,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("no candidates returned from Gemini")
	}
	if len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("no content parts in Gemini response")
	}
	return resp.Candidates[0].Content.Parts[0].Text, nil
}

func (a *Client) postJSON(ctx context.Context, url string, body, out interface{}, headers map[string]string) error {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
