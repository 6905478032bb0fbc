package web

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const page = `<!DOCTYPE html>
<html><head><title> Retrieval Notes </title><script>var x = 1;</script></head>
<body>
<nav><a href="/">Home</a></nav>
<main>
<h1>Chunking</h1>
<p>Documents are split into <strong>overlapping</strong> windows.</p>
<ul><li>size</li><li>overlap</li></ul>
</main>
<footer>copyright</footer>
</body></html>`

func TestFetchConvertsMainContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("User-Agent"), "ragchat")
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(page))
	}))
	defer srv.Close()

	p, err := NewFetcher(time.Second).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "Retrieval Notes", p.Title)
	assert.Contains(t, p.Markdown, "# Chunking")
	assert.Contains(t, p.Markdown, "**overlapping**")
	assert.Contains(t, p.Markdown, "- size")
	assert.NotContains(t, p.Markdown, "Home")
	assert.NotContains(t, p.Markdown, "copyright")
	assert.NotContains(t, p.Markdown, "var x")
}

func TestFetchPlainText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("  just text \n"))
	}))
	defer srv.Close()

	p, err := NewFetcher(time.Second).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "just text", p.Markdown)
	assert.Empty(t, p.Title)
}

func TestFetchNotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := NewFetcher(time.Second).Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestConvertFallsBackToBody(t *testing.T) {
	p, err := Convert("https://example.com", []byte(`<html><body><p>Only body</p></body></html>`))
	require.NoError(t, err)
	assert.Equal(t, "Only body", p.Markdown)
}
