package gemini

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

// EmbedAPI is the part of *genai.Models used for embeddings.
type EmbedAPI interface {
	EmbedContent(ctx context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error)
}

// Embedder produces Gemini embeddings with a fixed output dimensionality.
type Embedder struct {
	api       EmbedAPI
	model     string
	dimension int
}

func NewEmbedder(api EmbedAPI, model string, dimension int) (*Embedder, error) {
	if api == nil {
		return nil, errors.New("gemini embedder: nil client")
	}
	if model == "" {
		model = "gemini-embedding-001"
	}
	if dimension <= 0 {
		dimension = 768
	}
	return &Embedder{api: api, model: model, dimension: dimension}, nil
}

func (e *Embedder) Name() string { return "gemini:" + e.model }

func (e *Embedder) Prepare(corpus []string) error { return nil }

func (e *Embedder) Dimension() int { return e.dimension }

func (e *Embedder) Embed(ctx context.Context, text string) ([]float64, error) {
	out, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// EmbedBatch sends one content per text; the response keeps input order.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	contents := make([]*genai.Content, 0, len(texts))
	for _, t := range texts {
		contents = append(contents, genai.NewContentFromText(t, genai.RoleUser))
	}
	dim := int32(e.dimension)
	resp, err := e.api.EmbedContent(ctx, e.model, contents, &genai.EmbedContentConfig{OutputDimensionality: &dim})
	if err != nil {
		return nil, fmt.Errorf("gemini embeddings: %w", err)
	}
	if resp == nil || len(resp.Embeddings) != len(texts) {
		return nil, errors.New("gemini embeddings: unexpected response size")
	}
	out := make([][]float64, len(texts))
	for i, emb := range resp.Embeddings {
		if emb == nil || len(emb.Values) != e.dimension {
			return nil, fmt.Errorf("gemini embeddings: dimension mismatch at %d", i)
		}
		v := make([]float64, len(emb.Values))
		for j, x := range emb.Values {
			v[j] = float64(x)
		}
		out[i] = v
	}
	return out, nil
}
