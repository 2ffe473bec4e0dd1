package speech

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

const streamChunkSize = 32 * 1024

type StreamingTranscriberConfig struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

// StreamingTranscriber sends audio over a WebSocket session: a JSON start
// frame, binary audio chunks, a JSON stop frame, then reads JSON results until
// the server reports done.
type StreamingTranscriber struct {
	url     string
	apiKey  string
	timeout time.Duration
}

func NewStreamingTranscriber(cfg StreamingTranscriberConfig) *StreamingTranscriber {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &StreamingTranscriber{
		url:     strings.TrimSpace(cfg.URL),
		apiKey:  strings.TrimSpace(cfg.APIKey),
		timeout: timeout,
	}
}

type streamControl struct {
	Type            string `json:"type"`
	Encoding        string `json:"encoding,omitempty"`
	SampleRateHertz int    `json:"sampleRateHertz,omitempty"`
	LanguageCode    string `json:"languageCode,omitempty"`
}

type streamResult struct {
	Type       string  `json:"type"`
	Text       string  `json:"text"`
	Final      bool    `json:"final"`
	Confidence float64 `json:"confidence"`
	Error      string  `json:"error"`
}

func (t *StreamingTranscriber) Transcribe(ctx context.Context, in AudioInput) (Transcription, error) {
	if t.url == "" {
		return Transcription{}, errors.New("STT_WS_URL is not configured")
	}
	if len(in.Content) == 0 {
		return Transcription{}, ErrEmptyAudio
	}
	in = in.withDefaults()

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	var header http.Header
	if t.apiKey != "" {
		header = http.Header{"Authorization": []string{"Bearer " + t.apiKey}}
	}
	conn, _, err := websocket.Dial(ctx, t.url, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		return Transcription{}, fmt.Errorf("dial stt: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")
	conn.SetReadLimit(1 << 20)

	start := streamControl{
		Type:            "start",
		Encoding:        in.Encoding,
		SampleRateHertz: in.SampleRateHertz,
		LanguageCode:    in.LanguageCode,
	}
	if err := wsjson.Write(ctx, conn, start); err != nil {
		return Transcription{}, fmt.Errorf("send stt start: %w", err)
	}
	for offset := 0; offset < len(in.Content); offset += streamChunkSize {
		end := min(offset+streamChunkSize, len(in.Content))
		if err := conn.Write(ctx, websocket.MessageBinary, in.Content[offset:end]); err != nil {
			return Transcription{}, fmt.Errorf("send stt audio: %w", err)
		}
	}
	if err := wsjson.Write(ctx, conn, streamControl{Type: "stop"}); err != nil {
		return Transcription{}, fmt.Errorf("send stt stop: %w", err)
	}

	var (
		segments   []string
		confidence float64
		finals     int
	)
	for {
		var result streamResult
		if err := wsjson.Read(ctx, conn, &result); err != nil {
			return Transcription{}, fmt.Errorf("read stt result: %w", err)
		}
		switch result.Type {
		case "error":
			return Transcription{}, fmt.Errorf("stt error: %s", result.Error)
		case "result":
			if !result.Final {
				continue
			}
			if text := strings.TrimSpace(result.Text); text != "" {
				segments = append(segments, text)
			}
			confidence += result.Confidence
			finals++
		case "done":
			transcription := Transcription{Text: strings.Join(segments, ""), Provider: "stream"}
			if finals > 0 {
				transcription.Confidence = confidence / float64(finals)
			}
			return transcription, nil
		}
	}
}
