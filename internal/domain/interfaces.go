package domain

import (
	"fmt"
	"strings"
)

// SourceKind tags a source descriptor. The string value doubles as the
// source_type metadata tag on every record loaded from that source.
type SourceKind string

const (
	KindPDF     SourceKind = "PDF"
	KindYouTube SourceKind = "YouTube"
	KindURL     SourceKind = "URL"
)

// ParseSourceKind accepts the kind names case-insensitively ("pdf", "youtube", "url", "web").
func ParseSourceKind(s string) (SourceKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pdf":
		return KindPDF, nil
	case "youtube", "yt":
		return KindYouTube, nil
	case "url", "web", "webpage":
		return KindURL, nil
	}
	return "", fmt.Errorf("%w: kind %q", ErrUnsupportedSource, s)
}

// SourceDescriptor points at ingestible content. For PDF the location is the
// document itself; for YouTube and URL it is the pointer file holding the URL.
type SourceDescriptor struct {
	Kind     SourceKind
	Location string
}

func (d SourceDescriptor) String() string {
	return string(d.Kind) + ":" + d.Location
}

// Metadata is attached to every record and carried onto its chunks.
type Metadata struct {
	Source     string     `json:"source"`
	SourceType SourceKind `json:"source_type"`
	Title      string     `json:"title,omitempty"`
	Page       int        `json:"page,omitempty"`
}

// Record is one unit of loaded text: a PDF page, a transcript or a web page.
type Record struct {
	Content  string   `json:"content"`
	Metadata Metadata `json:"metadata"`
}

// Collection is the ordered set of records handed to the index. Order is
// discovery order.
type Collection []Record

// Chunk is a semantically meaningful part of a record used for indexing.
type Chunk struct {
	DocumentID string
	ChunkID    string
	Text       string
	Index      int
	Source     string
	SourceType SourceKind
	Page       int
}

// SearchResult represents a matching chunk with a relevance score.
type SearchResult struct {
	Chunk Chunk
	Score float64
}

// Turn is one question/answer exchange shown in the chat log.
type Turn struct {
	Query   string
	Answer  string
	Sources []string
}

// Outcome reports what happened to a single descriptor during a load.
type Outcome struct {
	Descriptor SourceDescriptor
	Records    int
	Cached     bool
	Err        error
}

// Chunker splits records into chunks suitable for retrieval indexing.
type Chunker interface {
	Chunk(documentID string, record Record) ([]Chunk, error)
}

// Summarizer produces a brief summary of the provided text.
type Summarizer interface {
	Summarize(text string, maxSentences int) (string, error)
}
