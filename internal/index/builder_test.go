package index

import (
	"context"
	"errors"
	"hash/fnv"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"ragchat/internal/chunker"
	"ragchat/internal/domain"
	"ragchat/internal/embedding/tfidf"
	"ragchat/internal/vectorstore"
	"ragchat/internal/vectorstore/memory"
	"ragchat/internal/vectorstore/sqlite"
)

// bagEmbedder hashes lowercase words into a fixed number of buckets. It does
// not depend on the corpus, so the builder treats it as incremental.
type bagEmbedder struct{ dim int }

func (bagEmbedder) Name() string           { return "bag" }
func (bagEmbedder) Prepare([]string) error { return nil }
func (b bagEmbedder) Dimension() int       { return b.dim }

func (b bagEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	vec := make([]float64, b.dim)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(strings.Trim(w, ".,?!")))
		vec[int(h.Sum32())%b.dim]++
	}
	return vec, nil
}

// flakyStore fails Replace while failing is set.
type flakyStore struct {
	*memory.Storage
	failing bool
}

var _ vectorstore.Storage = (*flakyStore)(nil)

func (f *flakyStore) Replace(ctx context.Context, dim int, chunks []domain.Chunk, vectors [][]float64) error {
	if f.failing {
		return errors.New("disk full")
	}
	return f.Storage.Replace(ctx, dim, chunks, vectors)
}

func page(source string, n int, content string) domain.Record {
	r := rec(source, content)
	r.Metadata.Page = n
	return r
}

func rec(source, content string) domain.Record {
	return domain.Record{Content: content, Metadata: domain.Metadata{Source: source, SourceType: domain.KindPDF, Page: 1}}
}

func corpus() domain.Collection {
	return domain.Collection{
		rec("data/sources/go.pdf", "Goroutines are lightweight threads managed by the Go runtime."),
		rec("data/sources/tea.pdf", "Green tea is steeped at a lower temperature than black tea."),
	}
}

func TestBuildAndSearchTFIDF(t *testing.T) {
	b := New(chunker.NewRecursiveChunker(200, 20), tfidf.NewEmbedder(), memory.NewStorage(), 8, zap.NewNop())

	n, err := b.Build(context.Background(), corpus())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.False(t, b.Incremental())

	res, err := b.Search(context.Background(), "how are goroutines managed", 1)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "data/sources/go.pdf", res[0].Chunk.Source)
}

func TestBuildEmptyCollection(t *testing.T) {
	b := New(chunker.NewRecursiveChunker(200, 20), tfidf.NewEmbedder(), memory.NewStorage(), 8, nil)
	_, err := b.Build(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrIndexUnavailable)
}

func TestSearchFallsBackToLexical(t *testing.T) {
	b := New(chunker.NewRecursiveChunker(200, 20), tfidf.NewEmbedder(), memory.NewStorage(), 8, nil)
	_, err := b.Build(context.Background(), corpus())
	require.NoError(t, err)

	// "is" is a stopword, so the TF-IDF query vector is all zeros.
	res, err := b.Search(context.Background(), "is", 2)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, "data/sources/tea.pdf", res[0].Chunk.Source)
	assert.Greater(t, res[0].Score, 0.0)
}

func TestAppendRequiresRebuildForCorpusBoundEmbedder(t *testing.T) {
	b := New(chunker.NewRecursiveChunker(200, 20), tfidf.NewEmbedder(), memory.NewStorage(), 8, nil)
	_, err := b.Append(context.Background(), corpus())
	assert.ErrorIs(t, err, ErrRebuildRequired)
}

func TestAppendMakesNewSourceSearchable(t *testing.T) {
	b := New(chunker.NewRecursiveChunker(200, 20), bagEmbedder{dim: 64}, memory.NewStorage(), 8, nil)
	_, err := b.Build(context.Background(), corpus())
	require.NoError(t, err)
	require.True(t, b.Incremental())

	added, err := b.Append(context.Background(), domain.Collection{
		rec("https://example.com/bread", "Sourdough bread rises with wild yeast."),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, added)
	assert.Len(t, b.Chunks(), 3)

	res, err := b.Search(context.Background(), "sourdough bread yeast", 1)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "https://example.com/bread", res[0].Chunk.Source)
}

func TestAppendSameSourceReplacesChunks(t *testing.T) {
	b := New(chunker.NewRecursiveChunker(200, 20), bagEmbedder{dim: 32}, memory.NewStorage(), 8, nil)
	_, err := b.Build(context.Background(), corpus())
	require.NoError(t, err)

	_, err = b.Append(context.Background(), corpus()[:1])
	require.NoError(t, err)
	assert.Len(t, b.Chunks(), 2)
}

func TestAppendDropsPagesMissingFromNewVersion(t *testing.T) {
	b := New(chunker.NewRecursiveChunker(200, 20), bagEmbedder{dim: 64}, memory.NewStorage(), 8, nil)
	_, err := b.Build(context.Background(), domain.Collection{
		page("data/sources/manual.pdf", 1, "Install the airship mooring kit."),
		page("data/sources/manual.pdf", 2, "Retired zeppelin appendix and parts list."),
		rec("data/sources/tea.pdf", "Green tea is steeped at a lower temperature than black tea."),
	})
	require.NoError(t, err)

	_, err = b.Append(context.Background(), domain.Collection{
		page("data/sources/manual.pdf", 1, "Install the airship mooring kit, revised."),
	})
	require.NoError(t, err)

	chunks := b.Chunks()
	require.Len(t, chunks, 2)
	for _, c := range chunks {
		assert.NotContains(t, c.Text, "zeppelin")
	}
	res, err := b.Search(context.Background(), "retired zeppelin appendix", 2)
	require.NoError(t, err)
	for _, r := range res {
		assert.NotContains(t, r.Chunk.Text, "zeppelin")
	}
}

func TestFailedRebuildKeepsPreviousIndex(t *testing.T) {
	store := &flakyStore{Storage: memory.NewStorage()}
	b := New(chunker.NewRecursiveChunker(200, 20), tfidf.NewEmbedder(), store, 8, nil)
	_, err := b.Build(context.Background(), corpus())
	require.NoError(t, err)

	store.failing = true
	_, err = b.Build(context.Background(), domain.Collection{
		rec("data/sources/bread.pdf", "Sourdough bread rises with wild yeast."),
	})
	require.Error(t, err)

	n, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, b.Chunks(), 2)

	res, err := b.Search(context.Background(), "how are goroutines managed", 1)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "data/sources/go.pdf", res[0].Chunk.Source)
	assert.Greater(t, res[0].Score, 0.0)
}

func TestAppendRejectsDimensionChange(t *testing.T) {
	store := memory.NewStorage()
	b := New(chunker.NewRecursiveChunker(200, 20), bagEmbedder{dim: 32}, store, 8, nil)
	_, err := b.Build(context.Background(), corpus())
	require.NoError(t, err)

	b.embedder = bagEmbedder{dim: 16}
	_, err = b.Append(context.Background(), corpus())
	assert.ErrorIs(t, err, ErrRebuildRequired)
}

func TestLoadPersistedIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	store, err := sqlite.Open(path)
	require.NoError(t, err)
	first := New(chunker.NewRecursiveChunker(200, 20), tfidf.NewEmbedder(), store, 8, nil)
	_, err = first.Build(context.Background(), corpus())
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := sqlite.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { reopened.Close() })

	b := New(chunker.NewRecursiveChunker(200, 20), tfidf.NewEmbedder(), reopened, 8, nil)
	n, err := b.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	res, err := b.Search(context.Background(), "green tea temperature", 1)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "data/sources/tea.pdf", res[0].Chunk.Source)
}

func TestLoadEmptyStore(t *testing.T) {
	b := New(chunker.NewRecursiveChunker(200, 20), tfidf.NewEmbedder(), memory.NewStorage(), 8, nil)
	_, err := b.Load(context.Background())
	assert.ErrorIs(t, err, domain.ErrIndexUnavailable)
}

func TestDocumentIDStable(t *testing.T) {
	a := rec("x.pdf", "one")
	b := rec("x.pdf", "two")
	assert.Equal(t, DocumentID(a), DocumentID(b))
	b.Metadata.Page = 2
	assert.NotEqual(t, DocumentID(a), DocumentID(b))
	assert.Len(t, DocumentID(a), 16)
}

func TestOverlapOchiai(t *testing.T) {
	q := toTokenSet("green tea")
	assert.InDelta(t, 1.0, overlapOchiai(q, "Tea green"), 1e-9)
	assert.Equal(t, 0.0, overlapOchiai(q, "coffee"))
	assert.Equal(t, 0.0, overlapOchiai(toTokenSet(""), "coffee"))
}
