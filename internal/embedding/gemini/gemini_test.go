package gemini

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

type fakeAPI struct {
	model string
	dim   int32
	texts []string
	err   error
}

func (f *fakeAPI) EmbedContent(_ context.Context, model string, contents []*genai.Content, cfg *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.model = model
	f.dim = *cfg.OutputDimensionality
	resp := &genai.EmbedContentResponse{}
	for i, c := range contents {
		f.texts = append(f.texts, c.Parts[0].Text)
		vals := make([]float32, f.dim)
		vals[0] = float32(i + 1)
		resp.Embeddings = append(resp.Embeddings, &genai.ContentEmbedding{Values: vals})
	}
	return resp, nil
}

func TestEmbedBatch(t *testing.T) {
	api := &fakeAPI{}
	e, err := NewEmbedder(api, "", 4)
	require.NoError(t, err)

	vecs, err := e.EmbedBatch(context.Background(), []string{"one", "two"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Equal(t, []float64{1, 0, 0, 0}, vecs[0])
	assert.Equal(t, []float64{2, 0, 0, 0}, vecs[1])
	assert.Equal(t, "gemini-embedding-001", api.model)
	assert.Equal(t, int32(4), api.dim)
	assert.Equal(t, []string{"one", "two"}, api.texts)
	assert.Equal(t, 4, e.Dimension())
}

func TestEmbedWrapsErrors(t *testing.T) {
	e, err := NewEmbedder(&fakeAPI{err: errors.New("quota")}, "m", 8)
	require.NoError(t, err)
	_, err = e.Embed(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota")
}

func TestNewEmbedderRejectsNilClient(t *testing.T) {
	_, err := NewEmbedder(nil, "m", 8)
	assert.Error(t, err)
}
