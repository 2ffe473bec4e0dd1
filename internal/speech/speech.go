// Package speech talks to the speech-to-text and text-to-speech services.
package speech

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"
)

var ErrEmptyAudio = errors.New("audio content is empty")

const (
	DefaultLanguageCode = "cmn-TW"
	DefaultEncoding     = "LINEAR16"
	DefaultSampleRate   = 16000
)

// AudioInput is recorded speech. Content is raw audio bytes.
type AudioInput struct {
	Content         []byte `json:"content"`
	Encoding        string `json:"encoding,omitempty"`
	SampleRateHertz int    `json:"sampleRateHertz,omitempty"`
	LanguageCode    string `json:"languageCode,omitempty"`
}

func (in AudioInput) withDefaults() AudioInput {
	if strings.TrimSpace(in.Encoding) == "" {
		in.Encoding = DefaultEncoding
	}
	if in.SampleRateHertz <= 0 {
		in.SampleRateHertz = DefaultSampleRate
	}
	if strings.TrimSpace(in.LanguageCode) == "" {
		in.LanguageCode = DefaultLanguageCode
	}
	return in
}

type Transcription struct {
	Text       string  `json:"text"`
	Provider   string  `json:"provider"`
	Confidence float64 `json:"confidence"`
}

type Transcriber interface {
	Transcribe(ctx context.Context, in AudioInput) (Transcription, error)
}

type Voice struct {
	LanguageCode string  `json:"languageCode,omitempty"`
	Name         string  `json:"voiceName,omitempty"`
	SpeakingRate float64 `json:"speakingRate,omitempty"`
}

// Audio is synthesized speech; Content is base64 in JSON.
type Audio struct {
	Content  []byte `json:"content"`
	MimeType string `json:"mimeType"`
}

type Synthesizer interface {
	Synthesize(ctx context.Context, text string, voice Voice) (Audio, error)
}

// MockTranscriber reads UTF-8 audio content as the transcript so local
// development can post text through the audio path.
type MockTranscriber struct{}

func (MockTranscriber) Transcribe(_ context.Context, in AudioInput) (Transcription, error) {
	if len(in.Content) == 0 {
		return Transcription{}, ErrEmptyAudio
	}
	text := ""
	if utf8.Valid(in.Content) {
		text = strings.TrimSpace(string(in.Content))
	}
	return Transcription{Text: text, Provider: "mock", Confidence: 1}, nil
}

// MockSynthesizer returns the text bytes as audio.
type MockSynthesizer struct{}

func (MockSynthesizer) Synthesize(_ context.Context, text string, _ Voice) (Audio, error) {
	return Audio{Content: []byte(text), MimeType: "text/plain"}, nil
}
