package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragchat/internal/embedding"
)

type countingEmbedder struct {
	calls    int
	batches  int
	prepared int
	bound    bool
}

func (c *countingEmbedder) Name() string { return "counting" }
func (c *countingEmbedder) Dimension() int { return 2 }
func (c *countingEmbedder) CorpusBound() bool { return c.bound }
func (c *countingEmbedder) Prepare(corpus []string) error { c.prepared++; return nil }
func (c *countingEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	c.calls++
	return []float64{float64(len(text)), 1}, nil
}
func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	c.batches++
	out := make([][]float64, len(texts))
	for i, t := range texts {
		out[i] = []float64{float64(len(t)), 1}
	}
	return out, nil
}

func TestWrapDisabled(t *testing.T) {
	inner := &countingEmbedder{}
	assert.Same(t, embedding.Embedder(inner), Wrap(inner, 0, time.Minute, nil))
	assert.Same(t, embedding.Embedder(inner), Wrap(inner, 10, 0, nil))
}

func TestEmbedHitsCache(t *testing.T) {
	inner := &countingEmbedder{}
	e := Wrap(inner, 10, time.Minute, nil)
	ctx := context.Background()

	v1, err := e.Embed(ctx, "hello")
	require.NoError(t, err)
	v1[0] = 99 // callers cannot corrupt the cache
	v2, err := e.Embed(ctx, "hello")
	require.NoError(t, err)

	assert.Equal(t, 1, inner.calls)
	assert.Equal(t, []float64{5, 1}, v2)
}

func TestEmbedBatchOnlySendsMisses(t *testing.T) {
	inner := &countingEmbedder{}
	e := Wrap(inner, 10, time.Minute, nil).(*Embedder)
	ctx := context.Background()

	_, err := e.Embed(ctx, "aa")
	require.NoError(t, err)
	vecs, err := e.EmbedBatch(ctx, []string{"aa", "bbb"})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{2, 1}, {3, 1}}, vecs)
	assert.Equal(t, 1, inner.batches)
	assert.Equal(t, 2, e.Len())

	_, err = e.EmbedBatch(ctx, []string{"aa", "bbb"})
	require.NoError(t, err)
	assert.Equal(t, 1, inner.batches)
}

func TestPreparePurgesCorpusBound(t *testing.T) {
	inner := &countingEmbedder{bound: true}
	e := Wrap(inner, 10, time.Minute, nil).(*Embedder)
	ctx := context.Background()

	_, err := e.Embed(ctx, "x")
	require.NoError(t, err)
	require.NoError(t, e.Prepare([]string{"x"}))
	assert.Equal(t, 0, e.Len())
	assert.True(t, embedding.IsCorpusBound(e))

	_, err = e.Embed(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
	assert.Equal(t, 1, inner.prepared)
}
