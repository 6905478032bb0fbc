package memory

import (
	"context"
	"errors"
	"sync"

	"ragchat/internal/domain"
	"ragchat/internal/vectorstore"
)

// Storage is a simple in-memory vector store using brute-force cosine similarity.
type Storage struct {
	mu        sync.RWMutex
	dimension int
	vectors   [][]float64
	chunks    []domain.Chunk
	byID      map[string]int
}

var _ vectorstore.Storage = (*Storage)(nil)

func NewStorage() *Storage { return &Storage{byID: map[string]int{}} }

func (s *Storage) Init(_ context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dimension != dimension {
		s.reset()
	}
	s.dimension = dimension
	return nil
}

func (s *Storage) Upsert(_ context.Context, chunks []domain.Chunk, vectors [][]float64) error {
	if len(chunks) != len(vectors) {
		return errors.New("chunks and vectors length mismatch")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range vectors {
		if len(v) != s.dimension {
			return errors.New("vector dimension mismatch")
		}
	}
	for i, ch := range chunks {
		if at, ok := s.byID[ch.ChunkID]; ok {
			s.chunks[at] = ch
			s.vectors[at] = vectors[i]
			continue
		}
		s.byID[ch.ChunkID] = len(s.chunks)
		s.chunks = append(s.chunks, ch)
		s.vectors = append(s.vectors, vectors[i])
	}
	return nil
}

func (s *Storage) Search(_ context.Context, vector []float64, topK int) ([]domain.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	scores := make([]float64, len(s.vectors))
	for i := range s.vectors {
		scores[i] = vectorstore.Cosine(s.vectors[i], vector)
	}
	idxs := vectorstore.TopK(scores, topK)
	results := make([]domain.SearchResult, 0, len(idxs))
	for _, j := range idxs {
		results = append(results, domain.SearchResult{Chunk: s.chunks[j], Score: scores[j]})
	}
	return results, nil
}

func (s *Storage) Replace(_ context.Context, dimension int, chunks []domain.Chunk, vectors [][]float64) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	if len(chunks) != len(vectors) {
		return errors.New("chunks and vectors length mismatch")
	}
	next := &Storage{dimension: dimension, byID: map[string]int{}}
	for i, ch := range chunks {
		if len(vectors[i]) != dimension {
			return errors.New("vector dimension mismatch")
		}
		if at, ok := next.byID[ch.ChunkID]; ok {
			next.chunks[at] = ch
			next.vectors[at] = vectors[i]
			continue
		}
		next.byID[ch.ChunkID] = len(next.chunks)
		next.chunks = append(next.chunks, ch)
		next.vectors = append(next.vectors, vectors[i])
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dimension, s.chunks, s.vectors, s.byID = next.dimension, next.chunks, next.vectors, next.byID
	return nil
}

func (s *Storage) DeleteSource(_ context.Context, source string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	chunks, vectors := s.chunks[:0], s.vectors[:0]
	byID := map[string]int{}
	for i, ch := range s.chunks {
		if ch.Source == source {
			continue
		}
		byID[ch.ChunkID] = len(chunks)
		chunks = append(chunks, ch)
		vectors = append(vectors, s.vectors[i])
	}
	s.chunks, s.vectors, s.byID = chunks, vectors, byID
	return nil
}

func (s *Storage) Count(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks), nil
}

func (s *Storage) Chunks(context.Context) ([]domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Chunk, len(s.chunks))
	copy(out, s.chunks)
	return out, nil
}

func (s *Storage) Close() error { return nil }

func (s *Storage) reset() {
	s.vectors = nil
	s.chunks = nil
	s.byID = map[string]int{}
}
