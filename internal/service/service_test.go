package service

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragchat/internal/chunker"
	"ragchat/internal/domain"
	"ragchat/internal/embedding"
	"ragchat/internal/embedding/tfidf"
	"ragchat/internal/index"
	"ragchat/internal/llm"
	"ragchat/internal/loader"
	"ragchat/internal/source"
	"ragchat/internal/summarizer"
	"ragchat/internal/vectorstore/memory"
)

const pdfHeader = "%PDF-1.4\n"

// textPDF treats everything after the header as one page of text.
type textPDF struct{}

func (textPDF) ExtractPages(_ context.Context, path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return []string{string(bytes.TrimPrefix(data, []byte(pdfHeader)))}, nil
}

type fakeWeb struct{ pages map[string]source.Page }

func (f fakeWeb) Fetch(_ context.Context, url string) (source.Page, error) {
	p, ok := f.pages[url]
	if !ok {
		return source.Page{}, errors.New("404")
	}
	return p, nil
}

// echoProvider answers with the first context line of the QA prompt and
// keeps every prompt it saw.
type echoProvider struct {
	prompts []string
	err     error
}

func (p *echoProvider) Name() string { return "echo" }

func (p *echoProvider) Chat(_ context.Context, msgs []llm.Message) (string, error) {
	prompt := msgs[len(msgs)-1].Content
	p.prompts = append(p.prompts, prompt)
	if p.err != nil {
		return "", p.err
	}
	if strings.HasPrefix(prompt, "Given the following conversation") {
		return "standalone", nil
	}
	lines := strings.Split(prompt, "\n")
	for i, l := range lines {
		if strings.HasPrefix(l, "Always say") && i+2 < len(lines) {
			return lines[i+2], nil
		}
	}
	return "", nil
}

type fixture struct {
	svc      *Service
	dir      string
	provider *echoProvider
}

func newFixture(t *testing.T, emb embedding.Embedder) *fixture {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, "sources")
	reg, err := source.NewRegistry(dir, filepath.Join(root, "temp"), source.Deps{
		PDF: textPDF{},
		Web: fakeWeb{pages: map[string]source.Page{
			"https://example.com/bread": {Title: "Bread", Markdown: "Sourdough bread rises with wild yeast."},
			"https://example.com/empty": {Title: "Empty"},
		}},
	}, nil)
	require.NoError(t, err)
	p := &echoProvider{}
	svc := New(Options{
		Loader:     loader.New(dir, reg, nil, 0, nil),
		Registry:   reg,
		Index:      index.New(chunker.NewRecursiveChunker(500, 50), emb, memory.NewStorage(), 8, nil),
		Provider:   p,
		Summarizer: summarizer.NewFrequencySummarizer(),
		TopK:       1,
	})
	return &fixture{svc: svc, dir: dir, provider: p}
}

func TestInitializeEmptyDirectory(t *testing.T) {
	f := newFixture(t, tfidf.NewEmbedder())
	err := f.svc.Initialize(context.Background(), true)
	assert.ErrorIs(t, err, domain.ErrNoDocuments)
	assert.Equal(t, Uninitialized, f.svc.State())

	_, err = f.svc.Ask(context.Background(), NewSession(), "anything?")
	assert.ErrorIs(t, err, domain.ErrNotReady)
}

func TestStartWithoutPersistedIndexOrSources(t *testing.T) {
	f := newFixture(t, tfidf.NewEmbedder())
	err := f.svc.Start(context.Background())
	assert.ErrorIs(t, err, domain.ErrNoDocuments)
	assert.Equal(t, Uninitialized, f.svc.State())
}

func TestUploadPDFRoundTrip(t *testing.T) {
	f := newFixture(t, tfidf.NewEmbedder())
	ctx := context.Background()

	res, err := f.svc.UploadPDF(ctx, []byte(pdfHeader+"The capital of Atlantis is Poseidonia."), "atlantis.pdf")
	require.NoError(t, err)
	assert.False(t, res.Incremental)
	assert.Equal(t, 1, res.Records)
	assert.Equal(t, Ready, f.svc.State())

	ans, err := f.svc.Ask(ctx, NewSession(), "What is the capital of Atlantis?")
	require.NoError(t, err)
	assert.Equal(t, "The capital of Atlantis is Poseidonia.", ans.Text)
	assert.Equal(t, []string{filepath.Join(f.dir, "atlantis.pdf")}, ans.SourceNames())
	assert.NotEmpty(t, f.svc.Summary())
}

func TestAddURLIncremental(t *testing.T) {
	f := newFixture(t, bagEmbedder{})
	ctx := context.Background()
	_, err := f.svc.UploadPDF(ctx, []byte(pdfHeader+"Green tea is steeped gently."), "tea.pdf")
	require.NoError(t, err)

	sess := NewSession()
	_, err = f.svc.Ask(ctx, sess, "tea?")
	require.NoError(t, err)

	res, err := f.svc.AddURL(ctx, "https://example.com/bread", domain.KindURL)
	require.NoError(t, err)
	assert.True(t, res.Incremental)
	assert.Equal(t, 1, res.Chunks)
	assert.Equal(t, 1, sess.History.Len(), "incremental add keeps the conversation")

	ans, err := f.svc.AskOnce(ctx, "sourdough bread yeast")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://example.com/bread"}, ans.SourceNames())

	srcs, err := f.svc.Sources()
	require.NoError(t, err)
	assert.Len(t, srcs, 2)
}

func TestAddURLWithoutContentIsRemoved(t *testing.T) {
	f := newFixture(t, tfidf.NewEmbedder())
	res, err := f.svc.AddURL(context.Background(), "https://example.com/empty", domain.KindURL)
	require.Error(t, err)
	assert.Zero(t, res)
	assert.True(t, strings.HasPrefix(AddStatus(res, err), "❌"))

	srcs, err := f.svc.Sources()
	require.NoError(t, err)
	assert.Empty(t, srcs)
	assert.Equal(t, Uninitialized, f.svc.State())
}

func TestClearHistoryDropsPriorContext(t *testing.T) {
	f := newFixture(t, tfidf.NewEmbedder())
	ctx := context.Background()
	_, err := f.svc.UploadPDF(ctx, []byte(pdfHeader+"Owls hunt at night."), "owls.pdf")
	require.NoError(t, err)

	sess := NewSession()
	_, err = f.svc.Ask(ctx, sess, "when do owls hunt?")
	require.NoError(t, err)
	require.Equal(t, 1, sess.History.Len())

	f.svc.ClearHistory(sess)
	assert.Zero(t, sess.History.Len())

	f.provider.prompts = nil
	_, err = f.svc.Ask(ctx, sess, "owls?")
	require.NoError(t, err)
	require.Len(t, f.provider.prompts, 1, "no condense step without history")
	assert.NotContains(t, f.provider.prompts[0], "when do owls hunt?")
}

func TestReinitializeStartsFreshConversation(t *testing.T) {
	f := newFixture(t, tfidf.NewEmbedder())
	ctx := context.Background()
	_, err := f.svc.UploadPDF(ctx, []byte(pdfHeader+"Owls hunt at night."), "owls.pdf")
	require.NoError(t, err)

	sess := NewSession()
	_, err = f.svc.Ask(ctx, sess, "when do owls hunt?")
	require.NoError(t, err)

	require.NoError(t, f.svc.Initialize(ctx, true))
	f.provider.prompts = nil
	_, err = f.svc.Ask(ctx, sess, "owls?")
	require.NoError(t, err)
	assert.Len(t, f.provider.prompts, 1)
	assert.Equal(t, 1, sess.History.Len())
}

func TestProviderFailureReturnsFallback(t *testing.T) {
	f := newFixture(t, tfidf.NewEmbedder())
	ctx := context.Background()
	_, err := f.svc.UploadPDF(ctx, []byte(pdfHeader+"Owls hunt at night."), "owls.pdf")
	require.NoError(t, err)

	f.provider.err = errors.New("rate limited")
	sess := NewSession()
	ans, err := f.svc.Ask(ctx, sess, "owls?")
	require.NoError(t, err)
	assert.Equal(t, FallbackAnswer, ans.Text)
	assert.Empty(t, ans.Sources)
	assert.Zero(t, sess.History.Len())
}

func TestStatusLines(t *testing.T) {
	assert.Equal(t, "✅ done", Status("done", nil))
	assert.True(t, strings.HasPrefix(Status("", domain.ErrNoDocuments), "❌ No documents"))
	assert.Equal(t, "✅ PDF source added: 2 records, added to index",
		AddStatus(AddResult{Descriptor: domain.SourceDescriptor{Kind: domain.KindPDF}, Records: 2, Incremental: true}, nil))
	assert.Equal(t, "✅ URL:x.txt (3 records) cached",
		OutcomeStatus(domain.Outcome{Descriptor: domain.SourceDescriptor{Kind: domain.KindURL, Location: "x.txt"}, Records: 3, Cached: true}))
}

// bagEmbedder counts letters, so it needs no corpus.
type bagEmbedder struct{}

func (bagEmbedder) Name() string           { return "bag" }
func (bagEmbedder) Prepare([]string) error { return nil }
func (bagEmbedder) Dimension() int         { return 26 }

func (bagEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	v := make([]float64, 26)
	for _, r := range strings.ToLower(text) {
		if r >= 'a' && r <= 'z' {
			v[r-'a']++
		}
	}
	return v, nil
}

func TestReuploadReplacesPreviousText(t *testing.T) {
	f := newFixture(t, bagEmbedder{})
	ctx := context.Background()
	_, err := f.svc.UploadPDF(ctx, []byte(pdfHeader+"Green tea is steeped gently."), "tea.pdf")
	require.NoError(t, err)
	_, err = f.svc.AddURL(ctx, "https://example.com/bread", domain.KindURL)
	require.NoError(t, err)

	res, err := f.svc.UploadPDF(ctx, []byte(pdfHeader+"Oolong is partially oxidised."), "tea.pdf")
	require.NoError(t, err)
	assert.True(t, res.Incremental)

	var texts []string
	for _, c := range f.svc.opts.Index.Chunks() {
		texts = append(texts, c.Text)
	}
	assert.Len(t, texts, 2)
	assert.NotContains(t, strings.Join(texts, "\n"), "Green tea")
	assert.Contains(t, strings.Join(texts, "\n"), "Oolong")
}

func TestClearHistoryWithoutSession(t *testing.T) {
	f := newFixture(t, tfidf.NewEmbedder())
	assert.NotPanics(t, func() {
		f.svc.ClearHistory(nil)
		f.svc.ClearHistory(&Session{})
	})
}

func TestSessionSyncClearsOnNewChain(t *testing.T) {
	sess := NewSession()
	sess.History.Add(domain.Turn{Query: "q", Answer: "a"})

	sess.sync(0)
	assert.Equal(t, 1, sess.History.Len())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sess.sync(1)
		}()
	}
	wg.Wait()
	assert.Zero(t, sess.History.Len())
	assert.Equal(t, uint64(1), sess.generation)
}
