package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/RoyPeng126/ai-companion-sub000/internal/assistant"
)

const reminderExtractionPrompt = `你是提醒事項的資料擷取器。從使用者的話裡找出提醒內容，只輸出一個 JSON 物件，不要其他文字：
{"title": "要做的事", "category": "medicine|exercise|appointment|chat|other", "date": "YYYY-MM-DD", "time": "HH:MM"}
不確定的欄位請給空字串。今天是 %s。`

// LLMReminderClassifier asks the chat model to extract reminder fields.
type LLMReminderClassifier struct {
	client AIClient
	today  func() string
}

func NewLLMReminderClassifier(client AIClient, today func() string) *LLMReminderClassifier {
	return &LLMReminderClassifier{client: client, today: today}
}

func (l *LLMReminderClassifier) ClassifyReminder(ctx context.Context, text string) (assistant.ReminderFields, error) {
	if l == nil || l.client == nil {
		return assistant.ReminderFields{}, errors.New("reminder classifier is not configured")
	}
	today := ""
	if l.today != nil {
		today = l.today()
	}
	resp, err := l.client.Query(ctx, AIModelRequest{
		SystemPrompt: fmt.Sprintf(reminderExtractionPrompt, today),
		UserPrompt:   text,
	})
	if err != nil {
		return assistant.ReminderFields{}, err
	}
	return parseReminderFields(resp.Answer)
}

// parseReminderFields reads the first JSON object in answer; models often
// wrap it in prose or a code fence.
func parseReminderFields(answer string) (assistant.ReminderFields, error) {
	start := strings.Index(answer, "{")
	end := strings.LastIndex(answer, "}")
	if start < 0 || end < start {
		return assistant.ReminderFields{}, fmt.Errorf("no JSON object in classifier answer")
	}
	var fields assistant.ReminderFields
	if err := json.Unmarshal([]byte(answer[start:end+1]), &fields); err != nil {
		return assistant.ReminderFields{}, fmt.Errorf("decode classifier answer: %w", err)
	}
	fields.Title = strings.TrimSpace(fields.Title)
	fields.Category = strings.ToLower(strings.TrimSpace(fields.Category))
	fields.Date = strings.TrimSpace(fields.Date)
	fields.Time = strings.TrimSpace(fields.Time)
	return fields, nil
}
