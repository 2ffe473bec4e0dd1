package server

import (
	"time"

	"github.com/RoyPeng126/ai-companion-sub000/internal/assistant"
	"github.com/RoyPeng126/ai-companion-sub000/internal/compose"
	"github.com/RoyPeng126/ai-companion-sub000/internal/speech"
	"github.com/RoyPeng126/ai-companion-sub000/internal/wizard"
)

type chatAudio struct {
	// Content is base64 encoded.
	Content         string `json:"content"`
	Encoding        string `json:"encoding"`
	SampleRateHertz int    `json:"sampleRateHertz"`
	LanguageCode    string `json:"languageCode"`
}

type chatRequest struct {
	Persona      string       `json:"persona"`
	Audio        *chatAudio   `json:"audio"`
	Message      string       `json:"message"`
	Context      []ChatTurn   `json:"context"`
	SpeechConfig speech.Voice `json:"speechConfig"`
}

type sttInfo struct {
	Provider   string  `json:"provider"`
	Confidence float64 `json:"confidence"`
}

type chatResponse struct {
	Persona      string          `json:"persona"`
	Transcript   string          `json:"transcript"`
	STT          sttInfo         `json:"stt"`
	ResponseText string          `json:"responseText"`
	Audio        *speech.Audio   `json:"audio"`
	Intent       string          `json:"intent"`
	Stage        wizard.Stage    `json:"stage,omitempty"`
	Notice       *compose.Notice `json:"notice,omitempty"`
}

type createReminderRequest struct {
	Title       string     `json:"title"`
	Category    string     `json:"category"`
	Description string     `json:"description"`
	Location    string     `json:"location"`
	StartAt     *time.Time `json:"startAt"`
	EndAt       *time.Time `json:"endAt"`
	RemindAt    *time.Time `json:"remindAt"`
	// When is free text such as "明天下午3點", used when StartAt is absent.
	When string `json:"when"`
}

type listRemindersResponse struct {
	Date      string               `json:"date"`
	Reminders []assistant.Reminder `json:"reminders"`
}

type respondInviteRequest struct {
	Accept *bool `json:"accept"`
}

type wizardSessionResponse struct {
	Active  bool            `json:"active"`
	Session *wizard.Session `json:"session,omitempty"`
}

// chatContextTurnLimit bounds how much client history reaches the model.
const chatContextTurnLimit = 12

func lastTurns(turns []ChatTurn, limit int) []ChatTurn {
	if limit <= 0 || len(turns) <= limit {
		return turns
	}
	return turns[len(turns)-limit:]
}
