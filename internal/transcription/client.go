package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/eleven-am/wearable-voice/internal/audio"
)

// Known stock phrases the remote model fabricates on silent or
// low-information audio. Exact matches catch the short forms; the marker
// substrings catch subtitle-credit style output in any phrasing.
var (
	hallucinationExact = map[string]struct{}{
		"thank you.":             {},
		"thank you":              {},
		"thanks for watching!":   {},
		"thanks for watching":    {},
		"thank you for watching": {},
		"bye.":                   {},
		"you":                    {},
	}
	hallucinationMarkers = []string{
		"thanks for watching",
		"thank you for watching",
		"subtitles by",
		"subtitle by",
		"amara.org",
		"please subscribe",
	}
)

type Client struct {
	cfg  Config
	http *http.Client
	log  *slog.Logger
}

func NewClient(cfg Config, log *slog.Logger) *Client {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Language == "" {
		cfg.Language = DefaultLanguage
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		log:  log.With("component", "transcription"),
	}
}

type apiResponse struct {
	Text  string `json:"text"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Transcribe encodes the utterance as a WAV container and makes exactly one
// call to the remote service. No retries here; retry policy belongs to the
// dispatch layer.
func (c *Client) Transcribe(ctx context.Context, samples []float32, sampleRate int) (string, error) {
	duration := time.Duration(float64(len(samples)) / float64(sampleRate) * float64(time.Second))
	if duration < MinDuration {
		return "", fmt.Errorf("%w: %v", ErrAudioTooShort, duration)
	}

	body, contentType, err := c.buildRequestBody(samples, sampleRate)
	if err != nil {
		return "", fmt.Errorf("build transcription request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", contentType)
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("transcription request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read transcription response: %w", err)
	}

	var parsed apiResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("decode transcription response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(data))
		if parsed.Error != nil {
			msg = parsed.Error.Message
		}
		return "", fmt.Errorf("transcription service returned %d: %s", resp.StatusCode, msg)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("transcription service error: %s", parsed.Error.Message)
	}

	text := strings.TrimSpace(parsed.Text)
	if isHallucination(text) {
		c.log.Debug("discarding hallucinated transcription",
			"text", text,
			"duration_ms", duration.Milliseconds())
		return "", ErrHallucination
	}

	c.log.Info("utterance transcribed",
		"duration_ms", duration.Milliseconds(),
		"latency_ms", time.Since(start).Milliseconds(),
		"chars", len(text))
	return text, nil
}

func (c *Client) buildRequestBody(samples []float32, sampleRate int) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)

	if err := w.WriteField("model", c.cfg.Model); err != nil {
		return nil, "", err
	}
	if err := w.WriteField("language", c.cfg.Language); err != nil {
		return nil, "", err
	}

	part, err := w.CreateFormFile("file", "audio.wav")
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(audio.EncodeWAV(samples, sampleRate)); err != nil {
		return nil, "", err
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return body, w.FormDataContentType(), nil
}

func isHallucination(text string) bool {
	if text == "" {
		return true
	}
	lower := strings.ToLower(text)
	if _, ok := hallucinationExact[lower]; ok {
		return true
	}
	for _, marker := range hallucinationMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
