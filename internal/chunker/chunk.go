// Package chunker splits loaded records into overlapping windows for indexing.
package chunker

import (
	"fmt"
	"strconv"

	"ragchat/internal/config"
	"ragchat/internal/domain"
)

// New selects a chunker from configuration.
func New(cfg config.ChunkerConfig) (domain.Chunker, error) {
	switch cfg.Type {
	case "", "recursive":
		return NewRecursiveChunker(cfg.ChunkSize, cfg.ChunkOverlap), nil
	case "sentence":
		return NewSentenceChunker(cfg.SentencesPerChunk, cfg.OverlapSentences), nil
	default:
		return nil, fmt.Errorf("unknown chunker type: %s", cfg.Type)
	}
}

func toChunks(documentID string, record domain.Record, texts []string) []domain.Chunk {
	chunks := make([]domain.Chunk, 0, len(texts))
	for idx, text := range texts {
		chunks = append(chunks, domain.Chunk{
			DocumentID: documentID,
			ChunkID:    documentID + ":" + strconv.Itoa(idx),
			Text:       text,
			Index:      idx,
			Source:     record.Metadata.Source,
			SourceType: record.Metadata.SourceType,
			Page:       record.Metadata.Page,
		})
	}
	return chunks
}
