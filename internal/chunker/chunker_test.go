package chunker

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragchat/internal/config"
	"ragchat/internal/domain"
)

func record(content string) domain.Record {
	return domain.Record{
		Content:  content,
		Metadata: domain.Metadata{Source: "data/sources/a.pdf", SourceType: domain.KindPDF, Page: 2},
	}
}

func TestSentenceChunkerOverlap(t *testing.T) {
	c := NewSentenceChunker(2, 1)
	chunks, err := c.Chunk("doc", record("One. Two! Three? Four."))
	require.NoError(t, err)
	require.Len(t, chunks, 3)

	assert.Equal(t, "One. Two!", chunks[0].Text)
	assert.Equal(t, "Two! Three?", chunks[1].Text)
	assert.Equal(t, "Three? Four.", chunks[2].Text)
	assert.Equal(t, "doc:2", chunks[2].ChunkID)
	assert.Equal(t, "data/sources/a.pdf", chunks[1].Source)
	assert.Equal(t, domain.KindPDF, chunks[1].SourceType)
	assert.Equal(t, 2, chunks[1].Page)
}

func TestSentenceChunkerWithoutPunctuation(t *testing.T) {
	c := NewSentenceChunker(3, 0)
	chunks, err := c.Chunk("doc", record("  no terminal punctuation here "))
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "no terminal punctuation here", chunks[0].Text)

	chunks, err = c.Chunk("doc", record("   "))
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestRecursiveChunkerShortTextIsSingleChunk(t *testing.T) {
	c := NewRecursiveChunker(1000, 150)
	chunks, err := c.Chunk("doc", record("A short paragraph.\n\nAnother one."))
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "A short paragraph.\n\nAnother one.", chunks[0].Text)
	assert.Equal(t, 0, chunks[0].Index)
}

func TestRecursiveChunkerRespectsSizeAndOverlap(t *testing.T) {
	words := make([]string, 0, 200)
	for i := 0; i < 200; i++ {
		words = append(words, "word")
	}
	text := strings.Join(words, " ")

	c := NewRecursiveChunker(50, 10)
	parts := c.Split(text)
	require.Greater(t, len(parts), 1)
	for _, p := range parts {
		assert.LessOrEqual(t, utf8.RuneCountInString(p), 50)
	}
	// consecutive windows share a tail/head
	assert.True(t, strings.HasSuffix(parts[0], "word word"))
	assert.True(t, strings.HasPrefix(parts[1], "word word"))
}

func TestRecursiveChunkerPrefersParagraphs(t *testing.T) {
	para := strings.Repeat("x", 30)
	text := para + "\n\n" + para + "\n\n" + para

	c := NewRecursiveChunker(40, 0)
	parts := c.Split(text)
	assert.Equal(t, []string{para, para, para}, parts)
}

func TestRecursiveChunkerFallsBackToCharacters(t *testing.T) {
	c := NewRecursiveChunker(10, 2)
	parts := c.Split(strings.Repeat("é", 25))
	require.NotEmpty(t, parts)
	for _, p := range parts {
		assert.LessOrEqual(t, utf8.RuneCountInString(p), 10)
	}
	assert.Equal(t, strings.Repeat("é", 10), parts[0])
}

func TestRecursiveChunkerEmpty(t *testing.T) {
	chunks, err := NewRecursiveChunker(100, 10).Chunk("doc", record(" \n\n "))
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestNewFromConfig(t *testing.T) {
	c, err := New(config.ChunkerConfig{Type: "recursive", ChunkSize: 100, ChunkOverlap: 10})
	require.NoError(t, err)
	assert.IsType(t, &RecursiveChunker{}, c)

	c, err = New(config.ChunkerConfig{Type: "sentence", SentencesPerChunk: 3})
	require.NoError(t, err)
	assert.IsType(t, &SentenceChunker{}, c)

	_, err = New(config.ChunkerConfig{Type: "tokens"})
	assert.Error(t, err)
}
