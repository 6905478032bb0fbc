// Package cache memoizes embeddings in an expiring LRU.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"ragchat/internal/embedding"
)

// Embedder wraps another embedder with an in-process cache keyed by model and text.
type Embedder struct {
	next   embedding.Embedder
	cache  *expirable.LRU[string, []float64]
	logger *zap.Logger
}

var (
	_ embedding.Embedder      = (*Embedder)(nil)
	_ embedding.BatchEmbedder = (*Embedder)(nil)
	_ embedding.CorpusBound   = (*Embedder)(nil)
)

// Wrap returns e unchanged when size or ttl disable caching.
func Wrap(e embedding.Embedder, size int, ttl time.Duration, logger *zap.Logger) embedding.Embedder {
	if e == nil || size <= 0 || ttl <= 0 {
		return e
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Embedder{
		next:   e,
		cache:  expirable.NewLRU[string, []float64](size, nil, ttl),
		logger: logger,
	}
}

func (c *Embedder) Name() string { return c.next.Name() }

func (c *Embedder) Dimension() int { return c.next.Dimension() }

func (c *Embedder) CorpusBound() bool { return embedding.IsCorpusBound(c.next) }

// Prepare forwards to the wrapped embedder. A corpus-bound embedder changes
// its vector space on every Prepare, so cached vectors are dropped.
func (c *Embedder) Prepare(corpus []string) error {
	if embedding.IsCorpusBound(c.next) {
		c.cache.Purge()
	}
	return c.next.Prepare(corpus)
}

func (c *Embedder) Embed(ctx context.Context, text string) ([]float64, error) {
	key := c.key(text)
	if v, ok := c.cache.Get(key); ok {
		c.logger.Debug("embedding cache hit", zap.String("embedder", c.next.Name()))
		return clone(v), nil
	}
	v, err := c.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, clone(v))
	return v, nil
}

// EmbedBatch serves hits from the cache and sends only misses downstream.
func (c *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	var missIdx []int
	var missTexts []string
	for i, t := range texts {
		if v, ok := c.cache.Get(c.key(t)); ok {
			out[i] = clone(v)
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, t)
	}
	if len(missTexts) == 0 {
		return out, nil
	}
	var vecs [][]float64
	var err error
	if be, ok := c.next.(embedding.BatchEmbedder); ok {
		vecs, err = be.EmbedBatch(ctx, missTexts)
	} else {
		vecs, err = embedding.EmbedAll(ctx, c.next, missTexts, 0)
	}
	if err == nil && len(vecs) != len(missTexts) {
		err = fmt.Errorf("%s: got %d vectors for %d texts", c.next.Name(), len(vecs), len(missTexts))
	}
	if err != nil {
		return nil, err
	}
	for j, i := range missIdx {
		out[i] = vecs[j]
		c.cache.Add(c.key(texts[i]), clone(vecs[j]))
	}
	c.logger.Debug("embedding batch",
		zap.Int("hits", len(texts)-len(missTexts)),
		zap.Int("misses", len(missTexts)))
	return out, nil
}

// Len reports the number of cached vectors.
func (c *Embedder) Len() int { return c.cache.Len() }

func (c *Embedder) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return c.next.Name() + ":" + hex.EncodeToString(sum[:])
}

func clone(v []float64) []float64 {
	if len(v) == 0 {
		return nil
	}
	out := make([]float64, len(v))
	copy(out, v)
	return out
}
