package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	backoff "github.com/cenkalti/backoff/v4"

	"github.com/RoyPeng126/ai-companion-sub000/internal/config"
)

type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type AIUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type AIModelRequest struct {
	Model        string
	SystemPrompt string
	Conversation []ChatTurn
	UserPrompt   string
}

type AIModelResponse struct {
	Answer string
	Model  string
	Usage  AIUsage
}

type AIClient interface {
	Query(ctx context.Context, req AIModelRequest) (AIModelResponse, error)
}

const (
	defaultMaxOutputTokens = 600
	maxOutputTokensCeiling = 4000
)

var errIncompleteOutput = errors.New("openai response incomplete due max_output_tokens")

type OpenAIResponsesClient struct {
	apiKey          string
	baseURL         string
	model           string
	maxOutputTokens int
	httpClient      *http.Client
	retryBackoff    func() backoff.BackOff
}

// MockAIClient answers locally so the API runs without an OpenAI key.
type MockAIClient struct {
	Model string
}

func (m MockAIClient) Query(_ context.Context, req AIModelRequest) (AIModelResponse, error) {
	question := strings.TrimSpace(req.UserPrompt)
	answer := "我在這裡陪你，想聊什麼都可以跟我說。"
	switch {
	case question == "":
	case strings.Contains(req.SystemPrompt, "JSON"):
		answer = "{}"
	case strings.Contains(question, "頭暈") || strings.Contains(question, "不舒服") || strings.Contains(question, "痛"):
		answer = "聽起來你有點不舒服，先坐下來休息、喝點溫水。如果一直沒有好轉，記得告訴家人或去看醫生喔。"
	default:
		answer = "我聽到了：" + question + "。還有什麼想跟我分享的嗎？"
	}

	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = strings.TrimSpace(m.Model)
	}
	if model == "" {
		model = "mock"
	}
	return AIModelResponse{
		Answer: answer,
		Model:  model,
		Usage:  AIUsage{PromptTokens: 60, CompletionTokens: 40, TotalTokens: 100},
	}, nil
}

func NewOpenAIResponsesClient(cfg config.Config) *OpenAIResponsesClient {
	timeoutSeconds := cfg.AITimeoutSeconds
	if timeoutSeconds <= 0 {
		timeoutSeconds = 20
	}
	return &OpenAIResponsesClient{
		apiKey:          strings.TrimSpace(cfg.OpenAIAPIKey),
		baseURL:         strings.TrimRight(strings.TrimSpace(cfg.OpenAIBaseURL), "/"),
		model:           strings.TrimSpace(cfg.OpenAIModel),
		maxOutputTokens: cfg.AIMaxOutputTokens,
		httpClient: &http.Client{
			Timeout: time.Duration(timeoutSeconds) * time.Second,
		},
	}
}

func (c *OpenAIResponsesClient) newBackoff() backoff.BackOff {
	if c.retryBackoff != nil {
		return c.retryBackoff()
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 300 * time.Millisecond
	b.MaxElapsedTime = 10 * time.Second
	return backoff.WithMaxRetries(b, 2)
}

type responsesInputText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type responsesInput struct {
	Role    string               `json:"role"`
	Content []responsesInputText `json:"content"`
}

type responsesPayload struct {
	Model           string           `json:"model"`
	Input           []responsesInput `json:"input"`
	MaxOutputTokens int              `json:"max_output_tokens"`
	Reasoning       map[string]any   `json:"reasoning,omitempty"`
	Text            map[string]any   `json:"text,omitempty"`
}

type responsesContent struct {
	Type       string          `json:"type"`
	Text       json.RawMessage `json:"text"`
	OutputText string          `json:"output_text"`
}

type responsesResult struct {
	Model      string `json:"model"`
	OutputText string `json:"output_text"`
	Output     []struct {
		Content []responsesContent `json:"content"`
	} `json:"output"`
	Usage struct {
		InputTokens      int `json:"input_tokens"`
		OutputTokens     int `json:"output_tokens"`
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	IncompleteDetails *struct {
		Reason string `json:"reason"`
	} `json:"incomplete_details"`
}

// Query retries throttling, server errors and transport failures with
// backoff. An answer cut off by max_output_tokens is retried once with a
// doubled budget.
func (c *OpenAIResponsesClient) Query(ctx context.Context, req AIModelRequest) (AIModelResponse, error) {
	if c.apiKey == "" {
		return AIModelResponse{}, errors.New("OPENAI_API_KEY is not configured")
	}
	if c.baseURL == "" {
		return AIModelResponse{}, errors.New("OPENAI_BASE_URL is not configured")
	}
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = c.model
	}
	if model == "" {
		return AIModelResponse{}, errors.New("OPENAI_MODEL is not configured")
	}
	input := buildResponsesInput(req)
	if len(input) == 0 {
		return AIModelResponse{}, errors.New("AI request input is empty")
	}

	budget := c.maxOutputTokens
	if budget <= 0 {
		budget = defaultMaxOutputTokens
	}
	resp, err := c.queryWithRetry(ctx, model, input, budget)
	if errors.Is(err, errIncompleteOutput) && budget < maxOutputTokensCeiling {
		budget = min(budget*2, maxOutputTokensCeiling)
		log.Printf("openai response truncated, retrying model=%s max_output_tokens=%d", model, budget)
		resp, err = c.queryWithRetry(ctx, model, input, budget)
	}
	return resp, err
}

func (c *OpenAIResponsesClient) queryWithRetry(ctx context.Context, model string, input []responsesInput, budget int) (AIModelResponse, error) {
	body, err := json.Marshal(responsesPayload{
		Model:           model,
		Input:           input,
		MaxOutputTokens: budget,
		Reasoning:       map[string]any{"effort": "low"},
		Text:            map[string]any{"verbosity": "low"},
	})
	if err != nil {
		return AIModelResponse{}, err
	}

	var result AIModelResponse
	call := func() error {
		resp, err := c.post(ctx, body)
		if err != nil {
			return err
		}
		result = resp
		return nil
	}
	if err := backoff.Retry(call, backoff.WithContext(c.newBackoff(), ctx)); err != nil {
		return AIModelResponse{}, err
	}
	if result.Model == "" {
		result.Model = model
	}
	return result, nil
}

func (c *OpenAIResponsesClient) post(ctx context.Context, body []byte) (AIModelResponse, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/responses", bytes.NewReader(body))
	if err != nil {
		return AIModelResponse{}, backoff.Permanent(err)
	}
	request.Header.Set("Authorization", "Bearer "+c.apiKey)
	request.Header.Set("Content-Type", "application/json")

	response, err := c.httpClient.Do(request)
	if err != nil {
		return AIModelResponse{}, err
	}
	defer response.Body.Close()

	raw, err := io.ReadAll(response.Body)
	if err != nil {
		return AIModelResponse{}, err
	}
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		statusErr := fmt.Errorf("openai responses error (%d): %s", response.StatusCode, truncateForLog(string(raw), 400))
		if response.StatusCode == http.StatusTooManyRequests || response.StatusCode >= 500 {
			return AIModelResponse{}, statusErr
		}
		return AIModelResponse{}, backoff.Permanent(statusErr)
	}

	var parsed responsesResult
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return AIModelResponse{}, backoff.Permanent(fmt.Errorf("decode openai response: %w", err))
	}
	answer := parsed.answer()
	if answer == "" {
		if parsed.IncompleteDetails != nil && strings.EqualFold(parsed.IncompleteDetails.Reason, "max_output_tokens") {
			return AIModelResponse{}, backoff.Permanent(errIncompleteOutput)
		}
		log.Printf("openai response had no extractable answer: %s", truncateForLog(string(raw), 1200))
		return AIModelResponse{}, backoff.Permanent(errors.New("openai response answer is empty"))
	}

	usage := AIUsage{
		PromptTokens:     max(parsed.Usage.InputTokens, parsed.Usage.PromptTokens),
		CompletionTokens: max(parsed.Usage.OutputTokens, parsed.Usage.CompletionTokens),
		TotalTokens:      parsed.Usage.TotalTokens,
	}
	if usage.TotalTokens == 0 {
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	}
	return AIModelResponse{Answer: answer, Model: strings.TrimSpace(parsed.Model), Usage: usage}, nil
}

func buildResponsesInput(req AIModelRequest) []responsesInput {
	input := make([]responsesInput, 0, len(req.Conversation)+2)
	if system := strings.TrimSpace(req.SystemPrompt); system != "" {
		input = append(input, responsesInput{
			Role:    "system",
			Content: []responsesInputText{{Type: "input_text", Text: system}},
		})
	}
	for _, turn := range req.Conversation {
		role := strings.ToLower(strings.TrimSpace(turn.Role))
		content := strings.TrimSpace(turn.Content)
		if content == "" {
			continue
		}
		switch role {
		case "user":
			input = append(input, responsesInput{
				Role:    role,
				Content: []responsesInputText{{Type: "input_text", Text: content}},
			})
		case "assistant":
			input = append(input, responsesInput{
				Role:    role,
				Content: []responsesInputText{{Type: "output_text", Text: content}},
			})
		}
	}
	if prompt := strings.TrimSpace(req.UserPrompt); prompt != "" {
		input = append(input, responsesInput{
			Role:    "user",
			Content: []responsesInputText{{Type: "input_text", Text: prompt}},
		})
	}
	return input
}

func (r responsesResult) answer() string {
	if direct := strings.TrimSpace(r.OutputText); direct != "" {
		return direct
	}
	parts := make([]string, 0)
	for _, block := range r.Output {
		for _, content := range block.Content {
			kind := strings.ToLower(strings.TrimSpace(content.Type))
			if kind != "output_text" && kind != "text" {
				continue
			}
			if text := content.text(); text != "" {
				parts = append(parts, text)
			}
		}
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}

// text accepts both "text":"..." and "text":{"value":"..."}.
func (c responsesContent) text() string {
	if len(c.Text) > 0 {
		var plain string
		if err := json.Unmarshal(c.Text, &plain); err == nil && strings.TrimSpace(plain) != "" {
			return strings.TrimSpace(plain)
		}
		var wrapped struct {
			Value string `json:"value"`
		}
		if err := json.Unmarshal(c.Text, &wrapped); err == nil && strings.TrimSpace(wrapped.Value) != "" {
			return strings.TrimSpace(wrapped.Value)
		}
	}
	return strings.TrimSpace(c.OutputText)
}

func truncateForLog(value string, limit int) string {
	trimmed := strings.TrimSpace(value)
	if limit <= 0 || len(trimmed) <= limit {
		return trimmed
	}
	return trimmed[:limit] + "...(truncated)"
}
