// Package index chunks, embeds and stores collections, and answers
// similarity searches over them.
package index

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"ragchat/internal/domain"
	"ragchat/internal/embedding"
	"ragchat/internal/vectorstore"
)

// ErrRebuildRequired is returned by Append when new chunks cannot be added
// without re-embedding the whole corpus.
var ErrRebuildRequired = errors.New("index must be rebuilt")

// Builder owns the path from records to a searchable vector store.
type Builder struct {
	chunker   domain.Chunker
	embedder  embedding.Embedder
	store     vectorstore.Storage
	batchSize int
	logger    *zap.Logger

	mu        sync.RWMutex
	chunks    []domain.Chunk
	dimension int
}

func New(chunker domain.Chunker, embedder embedding.Embedder, store vectorstore.Storage, batchSize int, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if batchSize <= 0 {
		batchSize = 32
	}
	return &Builder{chunker: chunker, embedder: embedder, store: store, batchSize: batchSize, logger: logger}
}

// DocumentID identifies a record by source and page, so reloading the same
// source produces the same chunk IDs.
func DocumentID(r domain.Record) string {
	h := sha1.Sum([]byte(r.Metadata.Source + "#" + strconv.Itoa(r.Metadata.Page)))
	return hex.EncodeToString(h[:8])
}

// Incremental reports whether Append can be used.
func (b *Builder) Incremental() bool { return !embedding.IsCorpusBound(b.embedder) }

// Build replaces the index contents with the chunks of docs and returns the
// number of stored chunks.
func (b *Builder) Build(ctx context.Context, docs domain.Collection) (int, error) {
	chunks, err := b.chunk(docs)
	if err != nil {
		return 0, err
	}
	if len(chunks) == 0 {
		return 0, fmt.Errorf("%w: documents produced no chunks", domain.ErrIndexUnavailable)
	}
	texts := texts(chunks)
	if err := b.embedder.Prepare(texts); err != nil {
		b.restoreEmbedder()
		return 0, fmt.Errorf("prepare embedder: %w", err)
	}
	vectors, err := embedding.EmbedAll(ctx, b.embedder, texts, b.batchSize)
	if err != nil {
		b.restoreEmbedder()
		return 0, fmt.Errorf("embed chunks: %w", err)
	}
	dim := len(vectors[0])
	if err := b.store.Replace(ctx, dim, chunks, vectors); err != nil {
		b.restoreEmbedder()
		return 0, fmt.Errorf("replace index: %w", err)
	}
	n, err := b.refresh(ctx, dim)
	if err != nil {
		return 0, err
	}
	b.logger.Info("index built",
		zap.Int("records", len(docs)),
		zap.Int("chunks", n),
		zap.Int("dimension", dim),
		zap.String("embedder", b.embedder.Name()))
	return n, nil
}

// Load reopens a persisted index without touching the sources.
func (b *Builder) Load(ctx context.Context) (int, error) {
	n, err := b.store.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrIndexUnavailable, err)
	}
	if n == 0 {
		return 0, fmt.Errorf("%w: no persisted index", domain.ErrIndexUnavailable)
	}
	chunks, err := b.store.Chunks(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrIndexUnavailable, err)
	}
	if embedding.IsCorpusBound(b.embedder) {
		// Same corpus, same vocabulary: stored vectors stay valid.
		if err := b.embedder.Prepare(texts(chunks)); err != nil {
			return 0, fmt.Errorf("prepare embedder: %w", err)
		}
	}
	dim := 0
	if d, ok := b.store.(interface{ Dimension() int }); ok {
		dim = d.Dimension()
	}
	b.mu.Lock()
	b.chunks = chunks
	b.dimension = dim
	b.mu.Unlock()
	b.logger.Info("index loaded", zap.Int("chunks", n))
	return n, nil
}

// Append embeds and stores docs next to the existing chunks. It returns the
// number of chunks written.
func (b *Builder) Append(ctx context.Context, docs domain.Collection) (int, error) {
	if !b.Incremental() {
		return 0, ErrRebuildRequired
	}
	chunks, err := b.chunk(docs)
	if err != nil {
		return 0, err
	}
	if len(chunks) == 0 {
		return 0, nil
	}
	vectors, err := embedding.EmbedAll(ctx, b.embedder, texts(chunks), b.batchSize)
	if err != nil {
		return 0, fmt.Errorf("embed chunks: %w", err)
	}
	dim := len(vectors[0])
	b.mu.RLock()
	current := b.dimension
	b.mu.RUnlock()
	if current != 0 && current != dim {
		return 0, fmt.Errorf("%w: dimension changed from %d to %d", ErrRebuildRequired, current, dim)
	}
	if err := b.store.Init(ctx, dim); err != nil {
		return 0, fmt.Errorf("init store: %w", err)
	}
	// A re-added source replaces everything it contributed before.
	for _, src := range sources(docs) {
		if err := b.store.DeleteSource(ctx, src); err != nil {
			return 0, fmt.Errorf("delete %s: %w", src, err)
		}
	}
	if err := b.store.Upsert(ctx, chunks, vectors); err != nil {
		if _, rerr := b.refresh(ctx, dim); rerr != nil {
			b.logger.Warn("reading back chunks after failed upsert", zap.Error(rerr))
		}
		return 0, fmt.Errorf("upsert: %w", err)
	}
	if _, err := b.refresh(ctx, dim); err != nil {
		return 0, err
	}
	b.logger.Info("index appended", zap.Int("records", len(docs)), zap.Int("chunks", len(chunks)))
	return len(chunks), nil
}

// Search ranks chunks for query. When the query has no usable vector or no
// chunk scores above zero, it falls back to lexical overlap.
func (b *Builder) Search(ctx context.Context, query string, topK int) ([]domain.SearchResult, error) {
	vec, err := b.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	zero := true
	for _, v := range vec {
		if v != 0 {
			zero = false
			break
		}
	}
	if zero {
		return b.lexicalSearch(query, topK), nil
	}
	res, err := b.store.Search(ctx, vec, topK)
	if err != nil {
		return nil, err
	}
	allZero := true
	for _, r := range res {
		if r.Score > 1e-9 {
			allZero = false
			break
		}
	}
	if allZero {
		return b.lexicalSearch(query, topK), nil
	}
	return res, nil
}

// Chunks returns a copy of the indexed chunks.
func (b *Builder) Chunks() []domain.Chunk {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]domain.Chunk, len(b.chunks))
	copy(out, b.chunks)
	return out
}

func (b *Builder) chunk(docs domain.Collection) ([]domain.Chunk, error) {
	var all []domain.Chunk
	for _, d := range docs {
		chunks, err := b.chunker.Chunk(DocumentID(d), d)
		if err != nil {
			return nil, fmt.Errorf("chunk %s: %w", d.Metadata.Source, err)
		}
		all = append(all, chunks...)
	}
	return all, nil
}

func (b *Builder) refresh(ctx context.Context, dim int) (int, error) {
	chunks, err := b.store.Chunks(ctx)
	if err != nil {
		return 0, fmt.Errorf("read back chunks: %w", err)
	}
	b.mu.Lock()
	b.chunks = chunks
	b.dimension = dim
	b.mu.Unlock()
	return len(chunks), nil
}

// restoreEmbedder puts a corpus-bound embedder back on the chunks that are
// still stored after a failed build.
func (b *Builder) restoreEmbedder() {
	if !embedding.IsCorpusBound(b.embedder) {
		return
	}
	previous := texts(b.Chunks())
	if len(previous) == 0 {
		return
	}
	if err := b.embedder.Prepare(previous); err != nil {
		b.logger.Warn("restoring embedder vocabulary", zap.Error(err))
	}
}

func sources(docs domain.Collection) []string {
	seen := map[string]bool{}
	var out []string
	for _, d := range docs {
		if !seen[d.Metadata.Source] {
			seen[d.Metadata.Source] = true
			out = append(out, d.Metadata.Source)
		}
	}
	return out
}

func texts(chunks []domain.Chunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.Text
	}
	return out
}
