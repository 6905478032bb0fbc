package embedding

import (
	"context"
	"fmt"
)

// Embedder converts free text into a numeric vector representation.
// Implementations may require a preparation phase over the corpus.
type Embedder interface {
	Name() string
	Prepare(corpus []string) error
	Dimension() int
	Embed(ctx context.Context, text string) ([]float64, error)
}

// BatchEmbedder embeds several texts in one round trip.
type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float64, error)
}

// CorpusBound is implemented by embedders whose vector space is derived from
// the prepared corpus. Adding documents to such an index means re-preparing
// and re-embedding everything.
type CorpusBound interface {
	CorpusBound() bool
}

// IsCorpusBound reports whether e must see the whole corpus before embedding.
func IsCorpusBound(e Embedder) bool {
	cb, ok := e.(CorpusBound)
	return ok && cb.CorpusBound()
}

// EmbedAll embeds texts in order, batching when the embedder supports it.
func EmbedAll(ctx context.Context, e Embedder, texts []string, batchSize int) ([][]float64, error) {
	out := make([][]float64, 0, len(texts))
	if be, ok := e.(BatchEmbedder); ok && batchSize > 1 {
		for start := 0; start < len(texts); start += batchSize {
			end := start + batchSize
			if end > len(texts) {
				end = len(texts)
			}
			vecs, err := be.EmbedBatch(ctx, texts[start:end])
			if err != nil {
				return nil, err
			}
			if len(vecs) != end-start {
				return nil, fmt.Errorf("%s: got %d vectors for %d texts", e.Name(), len(vecs), end-start)
			}
			out = append(out, vecs...)
		}
		return out, nil
	}
	for _, t := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
