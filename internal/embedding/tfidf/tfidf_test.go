package tfidf

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbedRequiresPrepare(t *testing.T) {
	_, err := NewEmbedder().Embed(context.Background(), "hello")
	assert.Error(t, err)
}

func TestPrepareBuildsVocabulary(t *testing.T) {
	e := NewEmbedder()
	require.NoError(t, e.Prepare([]string{
		"The quick brown fox",
		"A lazy dog sleeps",
	}))
	// stopwords "the" and "a" are excluded
	assert.Equal(t, 6, e.Dimension())
	assert.True(t, e.CorpusBound())
}

func TestEmbedIsNormalizedAndDiscriminative(t *testing.T) {
	e := NewEmbedder()
	require.NoError(t, e.Prepare([]string{
		"pdf parsing extracts text from pages",
		"youtube audio is transcribed to text",
		"web pages are converted to markdown",
	}))
	ctx := context.Background()

	q, err := e.Embed(ctx, "transcribed youtube audio")
	require.NoError(t, err)
	var norm float64
	for _, v := range q {
		norm += v * v
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-9)

	yt, err := e.Embed(ctx, "youtube audio is transcribed to text")
	require.NoError(t, err)
	pdf, err := e.Embed(ctx, "pdf parsing extracts text from pages")
	require.NoError(t, err)
	assert.Greater(t, dot(q, yt), dot(q, pdf))
}

func TestEmbedUnknownTokensGivesZeroVector(t *testing.T) {
	e := NewEmbedder()
	require.NoError(t, e.Prepare([]string{"alpha beta"}))
	v, err := e.Embed(context.Background(), "gamma delta")
	require.NoError(t, err)
	for _, x := range v {
		assert.Zero(t, x)
	}
}

func TestPrepareRejectsEmptyCorpus(t *testing.T) {
	e := NewEmbedder()
	assert.Error(t, e.Prepare(nil))
	assert.Error(t, e.Prepare([]string{"the a an"}))
}

func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}
