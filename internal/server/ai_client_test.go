package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
)

func newTestOpenAIClient(baseURL string, maxOutputTokens int) *OpenAIResponsesClient {
	return &OpenAIResponsesClient{
		apiKey:          "test",
		baseURL:         baseURL,
		model:           "gpt-5-mini",
		maxOutputTokens: maxOutputTokens,
		httpClient: &http.Client{
			Timeout: 2 * time.Second,
		},
		retryBackoff: func() backoff.BackOff {
			return backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Millisecond), 2)
		},
	}
}

func TestOpenAIResponsesClientRetriesOnServerError(t *testing.T) {
	t.Parallel()

	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		current := atomic.AddInt32(&attempts, 1)
		w.Header().Set("Content-Type", "application/json")
		if current == 1 {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte(`{"error":{"message":"temporary upstream issue"}}`))
			return
		}
		_, _ = w.Write([]byte(`{
			"model":"gpt-5-mini",
			"output":[{"content":[{"type":"output_text","text":"retry ok"}]}],
			"usage":{"input_tokens":10,"output_tokens":4,"total_tokens":14}
		}`))
	}))
	defer server.Close()

	resp, err := newTestOpenAIClient(server.URL, 256).Query(context.Background(), AIModelRequest{UserPrompt: "hello"})
	if err != nil {
		t.Fatalf("expected retry to succeed, got err=%v", err)
	}
	if resp.Answer != "retry ok" {
		t.Fatalf("unexpected answer: %q", resp.Answer)
	}
	if resp.Usage.TotalTokens != 14 || resp.Usage.PromptTokens != 10 {
		t.Fatalf("unexpected usage: %+v", resp.Usage)
	}
	if got := atomic.LoadInt32(&attempts); got != 2 {
		t.Fatalf("expected 2 attempts, got %d", got)
	}
}

func TestOpenAIResponsesClientDoesNotRetryClientError(t *testing.T) {
	t.Parallel()

	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"bad input"}}`))
	}))
	defer server.Close()

	_, err := newTestOpenAIClient(server.URL, 256).Query(context.Background(), AIModelRequest{UserPrompt: "hello"})
	if err == nil || !strings.Contains(err.Error(), "(400)") {
		t.Fatalf("expected 400 error, got %v", err)
	}
	if got := atomic.LoadInt32(&attempts); got != 1 {
		t.Fatalf("expected a single attempt, got %d", got)
	}
}

func TestOpenAIResponsesClientGivesUpAfterRetries(t *testing.T) {
	t.Parallel()

	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	_, err := newTestOpenAIClient(server.URL, 256).Query(context.Background(), AIModelRequest{UserPrompt: "hello"})
	if err == nil {
		t.Fatalf("expected throttling error")
	}
	if got := atomic.LoadInt32(&attempts); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
}

func TestOpenAIResponsesClientHonorsConfiguredMaxOutputTokens(t *testing.T) {
	t.Parallel()

	var receivedMaxTokens int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		var payload responsesPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("failed to decode request payload: %v", err)
		}
		receivedMaxTokens = payload.MaxOutputTokens
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"model":"gpt-5-mini","output_text":"ok"}`))
	}))
	defer server.Close()

	if _, err := newTestOpenAIClient(server.URL, 320).Query(context.Background(), AIModelRequest{UserPrompt: "hello"}); err != nil {
		t.Fatalf("unexpected query error: %v", err)
	}
	if receivedMaxTokens != 320 {
		t.Fatalf("expected max_output_tokens=320, got %d", receivedMaxTokens)
	}
}

func TestOpenAIResponsesClientRetriesIncompleteWithLargerBudget(t *testing.T) {
	t.Parallel()

	var (
		mu     sync.Mutex
		budget []int
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		var payload responsesPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("failed to decode request payload: %v", err)
		}
		mu.Lock()
		budget = append(budget, payload.MaxOutputTokens)
		first := len(budget) == 1
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if first {
			_, _ = w.Write([]byte(`{"status":"incomplete","incomplete_details":{"reason":"max_output_tokens"},"output":[]}`))
			return
		}
		_, _ = w.Write([]byte(`{"output":[{"content":[{"type":"output_text","text":{"value":"complete answer"}}]}]}`))
	}))
	defer server.Close()

	resp, err := newTestOpenAIClient(server.URL, 0).Query(context.Background(), AIModelRequest{UserPrompt: "hello"})
	if err != nil {
		t.Fatalf("unexpected query error: %v", err)
	}
	if resp.Answer != "complete answer" {
		t.Fatalf("unexpected answer %q", resp.Answer)
	}
	if resp.Model != "gpt-5-mini" {
		t.Fatalf("expected configured model fallback, got %q", resp.Model)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(budget) != 2 || budget[0] != defaultMaxOutputTokens || budget[1] != 2*defaultMaxOutputTokens {
		t.Fatalf("unexpected budgets %v", budget)
	}
}

func TestOpenAIResponsesClientRequiresConfiguration(t *testing.T) {
	t.Parallel()

	client := newTestOpenAIClient("", 0)
	if _, err := client.Query(context.Background(), AIModelRequest{UserPrompt: "hi"}); err == nil {
		t.Fatalf("expected missing base URL error")
	}
	client = newTestOpenAIClient("http://127.0.0.1:0", 0)
	if _, err := client.Query(context.Background(), AIModelRequest{}); err == nil {
		t.Fatalf("expected empty input error")
	}
}

func TestBuildResponsesInputSkipsUnknownRoles(t *testing.T) {
	t.Parallel()

	input := buildResponsesInput(AIModelRequest{
		SystemPrompt: "你是陪伴者",
		Conversation: []ChatTurn{
			{Role: "user", Content: "早安"},
			{Role: "assistant", Content: "早安！"},
			{Role: "tool", Content: "ignored"},
			{Role: "user", Content: "   "},
		},
		UserPrompt: "今天要做什麼",
	})
	if len(input) != 4 {
		t.Fatalf("expected 4 input items, got %d", len(input))
	}
	if input[0].Role != "system" || input[2].Content[0].Type != "output_text" || input[3].Content[0].Text != "今天要做什麼" {
		t.Fatalf("unexpected input %+v", input)
	}
}

func TestParseReminderFields(t *testing.T) {
	t.Parallel()

	fields, err := parseReminderFields("好的：\n```json\n{\"title\":\" 吃藥 \",\"category\":\"Medicine\",\"date\":\"2026-10-18\",\"time\":\"09:00\"}\n```")
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if fields.Title != "吃藥" || fields.Category != "medicine" || fields.Date != "2026-10-18" || fields.Time != "09:00" {
		t.Fatalf("unexpected fields %+v", fields)
	}

	if _, err := parseReminderFields("沒有結果"); err == nil {
		t.Fatalf("expected error without JSON")
	}
	if _, err := parseReminderFields("{title}"); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestLLMReminderClassifierSendsToday(t *testing.T) {
	t.Parallel()

	ai := &recordingAI{answer: `{"title":"量血壓","category":"other","date":"","time":"20:00"}`}
	classifier := NewLLMReminderClassifier(ai, func() string { return "2026-10-17" })

	fields, err := classifier.ClassifyReminder(context.Background(), "晚上八點量血壓")
	if err != nil {
		t.Fatalf("unexpected classify error: %v", err)
	}
	if fields.Title != "量血壓" || fields.Time != "20:00" {
		t.Fatalf("unexpected fields %+v", fields)
	}
	req, _ := ai.last()
	if !strings.Contains(req.SystemPrompt, "今天是 2026-10-17") || req.UserPrompt != "晚上八點量血壓" {
		t.Fatalf("unexpected request %+v", req)
	}

	ai.err = errors.New("timeout")
	if _, err := classifier.ClassifyReminder(context.Background(), "x"); err == nil {
		t.Fatalf("expected model error to surface")
	}
	var unset *LLMReminderClassifier
	if _, err := unset.ClassifyReminder(context.Background(), "x"); err == nil {
		t.Fatalf("expected unconfigured classifier error")
	}
}

func TestMockAIClientAnswersJSONPrompts(t *testing.T) {
	t.Parallel()

	resp, err := MockAIClient{}.Query(context.Background(), AIModelRequest{SystemPrompt: "只輸出一個 JSON 物件", UserPrompt: "提醒我"})
	if err != nil || resp.Answer != "{}" {
		t.Fatalf("expected empty JSON object, got %q err=%v", resp.Answer, err)
	}
	resp, _ = MockAIClient{}.Query(context.Background(), AIModelRequest{UserPrompt: "我有點頭暈"})
	if !strings.Contains(resp.Answer, "休息") || resp.Model != "mock" {
		t.Fatalf("unexpected mock answer %+v", resp)
	}
}
