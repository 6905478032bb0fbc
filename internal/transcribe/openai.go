// Package transcribe converts downloaded audio to text.
package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"ragchat/internal/env"
	"ragchat/internal/httpx"
	"ragchat/internal/source"
)

// MaxUploadBytes is the Whisper API's file size limit.
const MaxUploadBytes = 25 << 20

// Whisper calls the OpenAI audio transcription endpoint.
type Whisper struct {
	baseURL string
	apiKey  string
	model   string
	http    *httpx.Client
}

var _ source.Transcriber = (*Whisper)(nil)

type WhisperConfig struct {
	BaseURL   string
	APIKeyEnv string
	Model     string
	Timeout   time.Duration
}

func NewWhisper(cfg WhisperConfig) (*Whisper, error) {
	key, err := env.Lookup(cfg.APIKeyEnv)
	if err != nil {
		return nil, err
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "whisper-1"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Minute
	}
	c := httpx.New(cfg.Timeout, 0)
	c.MaxRetries = 2
	return &Whisper{baseURL: strings.TrimRight(cfg.BaseURL, "/"), apiKey: key, model: cfg.Model, http: c}, nil
}

func (w *Whisper) Transcribe(ctx context.Context, path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if info.Size() > MaxUploadBytes {
		return "", fmt.Errorf("audio file is %d bytes, limit is %d", info.Size(), MaxUploadBytes)
	}
	audio, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("model", w.model); err != nil {
		return "", err
	}
	if err := mw.WriteField("response_format", "json"); err != nil {
		return "", err
	}
	part, err := mw.CreateFormFile("file", uploadName(path))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, bytes.NewReader(audio)); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}
	payload := body.Bytes()
	contentType := mw.FormDataContentType()

	url := w.baseURL + "/audio/transcriptions"
	resp, err := w.http.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("Authorization", "Bearer "+w.apiKey)
		return req, nil
	})
	if err != nil {
		return "", fmt.Errorf("whisper: %w", err)
	}
	var out struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(resp, &out); err != nil {
		return "", fmt.Errorf("whisper: decode response: %w", err)
	}
	return strings.TrimSpace(out.Text), nil
}

// Whisper infers the container from the file name; webm and m4a are accepted as-is.
func uploadName(path string) string {
	name := filepath.Base(path)
	if filepath.Ext(name) == ".audio" {
		name = strings.TrimSuffix(name, ".audio") + ".mp3"
	}
	return name
}
