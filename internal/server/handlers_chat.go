package server

import (
	"context"
	"encoding/base64"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/RoyPeng126/ai-companion-sub000/internal/intent"
	"github.com/RoyPeng126/ai-companion-sub000/internal/speech"
)

const replyChatUnavailable = "抱歉，我現在有點忙不過來，等一下再陪你聊好嗎？"

type chatHTTPError struct {
	Status int
	Detail string
}

func (e *chatHTTPError) Error() string {
	return e.Detail
}

func (a *App) chat(c *gin.Context) {
	user, ok := authUserFromContext(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "Unauthorized")
		return
	}
	var payload chatRequest
	if !mustJSON(c, &payload) {
		return
	}

	result, err := a.executeChat(c.Request.Context(), user, payload)
	if err != nil {
		var httpErr *chatHTTPError
		switch {
		case errors.As(err, &httpErr):
			writeError(c, httpErr.Status, httpErr.Detail)
		case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
			writeError(c, http.StatusGatewayTimeout, "Request timed out")
		default:
			log.Printf("chat failed user_id=%s err=%v", user.ID, err)
			writeError(c, http.StatusInternalServerError, "Chat failed")
		}
		return
	}
	c.JSON(http.StatusOK, result)
}

// executeChat turns one utterance into a spoken reply: transcribe, try the
// voice commands, fall back to persona chat, then compose.
func (a *App) executeChat(ctx context.Context, user AuthUser, payload chatRequest) (chatResponse, error) {
	started := time.Now()
	persona := a.resolvePersona(payload.Persona)

	transcript, stt, err := a.transcribe(ctx, payload)
	if err != nil {
		return chatResponse{}, err
	}

	source := "chat"
	outcome, err := a.router.Handle(ctx, user.caller(), transcript)
	if err != nil {
		return chatResponse{}, err
	}
	text := outcome.Text
	if outcome.Handled {
		source = "command"
	} else {
		answer, err := a.ai.Query(ctx, AIModelRequest{
			SystemPrompt: personaSystemPrompt(persona, user.Name),
			Conversation: lastTurns(payload.Context, chatContextTurnLimit),
			UserPrompt:   transcript,
		})
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return chatResponse{}, ctxErr
			}
			log.Printf("chat model failed user_id=%s persona=%s err=%v", user.ID, persona, err)
			source = "chat_error"
			text = replyChatUnavailable
		} else {
			text = answer.Answer
		}
	}

	reply, err := a.composer.Compose(ctx, user.ID, text, payload.SpeechConfig)
	if err != nil {
		return chatResponse{}, err
	}
	a.metrics.observeChat(source, started)

	response := chatResponse{
		Persona:      persona,
		Transcript:   transcript,
		STT:          stt,
		ResponseText: reply.Text,
		Audio:        reply.Audio,
		Intent:       string(outcome.Intent.Kind),
		Stage:        outcome.Stage,
	}
	if response.Intent == "" {
		response.Intent = string(intent.KindNone)
	}
	if reply.Note != "" {
		notice := reply.Notice
		response.Notice = &notice
	}
	return response, nil
}

// transcribe returns the text to act on. Audio wins over message when both
// are sent.
func (a *App) transcribe(ctx context.Context, payload chatRequest) (string, sttInfo, error) {
	if payload.Audio == nil || strings.TrimSpace(payload.Audio.Content) == "" {
		message := strings.TrimSpace(payload.Message)
		if message == "" {
			return "", sttInfo{}, &chatHTTPError{Status: http.StatusBadRequest, Detail: "message or audio is required"}
		}
		return message, sttInfo{Provider: "text", Confidence: 1}, nil
	}
	if a.transcriber == nil {
		return "", sttInfo{}, &chatHTTPError{Status: http.StatusServiceUnavailable, Detail: "Speech recognition is not configured"}
	}

	content, err := base64.StdEncoding.DecodeString(strings.TrimSpace(payload.Audio.Content))
	if err != nil {
		return "", sttInfo{}, &chatHTTPError{Status: http.StatusBadRequest, Detail: "audio.content must be base64"}
	}
	result, err := a.transcriber.Transcribe(ctx, speech.AudioInput{
		Content:         content,
		Encoding:        payload.Audio.Encoding,
		SampleRateHertz: payload.Audio.SampleRateHertz,
		LanguageCode:    payload.Audio.LanguageCode,
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", sttInfo{}, ctxErr
		}
		if errors.Is(err, speech.ErrEmptyAudio) {
			return "", sttInfo{}, &chatHTTPError{Status: http.StatusBadRequest, Detail: "audio content is empty"}
		}
		log.Printf("speech recognition failed err=%v", err)
		return "", sttInfo{}, &chatHTTPError{Status: http.StatusBadGateway, Detail: "Speech recognition failed"}
	}
	text := strings.TrimSpace(result.Text)
	if text == "" {
		return "", sttInfo{}, &chatHTTPError{Status: http.StatusUnprocessableEntity, Detail: "No speech recognized"}
	}
	return text, sttInfo{Provider: result.Provider, Confidence: result.Confidence}, nil
}
