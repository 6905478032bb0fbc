package transcribe

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"google.golang.org/genai"

	"ragchat/internal/source"
)

const transcribePrompt = "Transcribe this audio verbatim. Return only the spoken words as plain text."

// GenerateAPI is the part of *genai.Models used for transcription.
type GenerateAPI interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Gemini sends the audio inline to a multimodal Gemini model.
type Gemini struct {
	api   GenerateAPI
	model string
}

var _ source.Transcriber = (*Gemini)(nil)

func NewGemini(api GenerateAPI, model string) (*Gemini, error) {
	if api == nil {
		return nil, errors.New("gemini transcriber: nil client")
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}
	return &Gemini{api: api, model: model}, nil
}

func (g *Gemini) Transcribe(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if len(data) > MaxUploadBytes {
		return "", fmt.Errorf("audio file is %d bytes, limit is %d", len(data), MaxUploadBytes)
	}
	contents := []*genai.Content{{
		Role: genai.RoleUser,
		Parts: []*genai.Part{
			genai.NewPartFromText(transcribePrompt),
			genai.NewPartFromBytes(data, audioMime(path)),
		},
	}}
	temp := float32(0)
	resp, err := g.api.GenerateContent(ctx, g.model, contents, &genai.GenerateContentConfig{Temperature: &temp})
	if err != nil {
		return "", fmt.Errorf("gemini transcription: %w", err)
	}
	if resp == nil {
		return "", errors.New("gemini transcription: empty response")
	}
	return strings.TrimSpace(resp.Text()), nil
}

func audioMime(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".m4a", ".mp4":
		return "audio/mp4"
	case ".webm":
		return "audio/webm"
	case ".mp3":
		return "audio/mpeg"
	}
	if t := mime.TypeByExtension(filepath.Ext(path)); strings.HasPrefix(t, "audio/") {
		return t
	}
	return "audio/mpeg"
}
