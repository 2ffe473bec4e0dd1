package speech

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
)

type HTTPSynthesizerConfig struct {
	URL          string
	APIKey       string
	DefaultVoice string
	Timeout      time.Duration
	// Backoff builds the retry policy for one call. Nil uses a short
	// exponential policy.
	Backoff func() backoff.BackOff
}

// HTTPSynthesizer posts text to a JSON text-to-speech endpoint and retries
// throttling, server errors and transport failures.
type HTTPSynthesizer struct {
	url          string
	apiKey       string
	defaultVoice string
	httpClient   *http.Client
	buildBackoff func() backoff.BackOff
}

func NewHTTPSynthesizer(cfg HTTPSynthesizerConfig) *HTTPSynthesizer {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	factory := cfg.Backoff
	if factory == nil {
		factory = func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 200 * time.Millisecond
			b.MaxElapsedTime = 4 * time.Second
			return backoff.WithMaxRetries(b, 3)
		}
	}
	return &HTTPSynthesizer{
		url:          strings.TrimSpace(cfg.URL),
		apiKey:       strings.TrimSpace(cfg.APIKey),
		defaultVoice: strings.TrimSpace(cfg.DefaultVoice),
		httpClient:   &http.Client{Timeout: timeout},
		buildBackoff: factory,
	}
}

type synthesizeRequest struct {
	Input struct {
		Text string `json:"text"`
	} `json:"input"`
	Voice struct {
		LanguageCode string `json:"languageCode"`
		Name         string `json:"name,omitempty"`
	} `json:"voice"`
	AudioConfig struct {
		AudioEncoding string  `json:"audioEncoding"`
		SpeakingRate  float64 `json:"speakingRate,omitempty"`
	} `json:"audioConfig"`
}

type synthesizeResponse struct {
	AudioContent string `json:"audioContent"`
	MimeType     string `json:"mimeType"`
}

func (s *HTTPSynthesizer) Synthesize(ctx context.Context, text string, voice Voice) (Audio, error) {
	if s.url == "" {
		return Audio{}, errors.New("TTS_URL is not configured")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return Audio{}, errors.New("nothing to synthesize")
	}

	var payload synthesizeRequest
	payload.Input.Text = text
	payload.Voice.LanguageCode = voice.LanguageCode
	if payload.Voice.LanguageCode == "" {
		payload.Voice.LanguageCode = DefaultLanguageCode
	}
	payload.Voice.Name = voice.Name
	if payload.Voice.Name == "" {
		payload.Voice.Name = s.defaultVoice
	}
	payload.AudioConfig.AudioEncoding = "MP3"
	payload.AudioConfig.SpeakingRate = voice.SpeakingRate
	body, err := json.Marshal(payload)
	if err != nil {
		return Audio{}, err
	}

	var audio Audio
	call := func() error {
		result, err := s.post(ctx, body)
		if err != nil {
			return err
		}
		audio = result
		return nil
	}
	if err := backoff.Retry(call, backoff.WithContext(s.buildBackoff(), ctx)); err != nil {
		return Audio{}, fmt.Errorf("synthesize speech: %w", err)
	}
	return audio, nil
}

func (s *HTTPSynthesizer) post(ctx context.Context, body []byte) (Audio, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return Audio{}, backoff.Permanent(err)
	}
	request.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		request.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	response, err := s.httpClient.Do(request)
	if err != nil {
		return Audio{}, err
	}
	defer response.Body.Close()

	responseBody, err := io.ReadAll(response.Body)
	if err != nil {
		return Audio{}, err
	}
	if response.StatusCode == http.StatusTooManyRequests || response.StatusCode >= 500 {
		return Audio{}, fmt.Errorf("tts error (%d): %s", response.StatusCode, strings.TrimSpace(string(responseBody)))
	}
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return Audio{}, backoff.Permanent(fmt.Errorf("tts error (%d): %s", response.StatusCode, strings.TrimSpace(string(responseBody))))
	}

	var decoded synthesizeResponse
	if err := json.Unmarshal(responseBody, &decoded); err != nil {
		return Audio{}, backoff.Permanent(fmt.Errorf("decode tts response: %w", err))
	}
	content, err := base64.StdEncoding.DecodeString(decoded.AudioContent)
	if err != nil || len(content) == 0 {
		return Audio{}, backoff.Permanent(errors.New("tts response has no audio content"))
	}
	mimeType := strings.TrimSpace(decoded.MimeType)
	if mimeType == "" {
		mimeType = "audio/mpeg"
	}
	return Audio{Content: content, MimeType: mimeType}, nil
}
