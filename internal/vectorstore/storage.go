package vectorstore

import (
	"context"

	"ragchat/internal/domain"
)

// Storage persists vectors and supports similarity search.
//
// Init declares the vector dimension; a store holding vectors of another
// dimension drops them. Upsert replaces chunks with the same ChunkID.
type Storage interface {
	Init(ctx context.Context, dimension int) error
	Upsert(ctx context.Context, chunks []domain.Chunk, vectors [][]float64) error
	// Replace swaps the whole contents for chunks at the given dimension. When
	// it fails the previous contents stay in place.
	Replace(ctx context.Context, dimension int, chunks []domain.Chunk, vectors [][]float64) error
	// DeleteSource removes every chunk loaded from source.
	DeleteSource(ctx context.Context, source string) error
	Search(ctx context.Context, vector []float64, topK int) ([]domain.SearchResult, error)
	Count(ctx context.Context) (int, error)
	// Chunks returns every stored chunk. Local stores keep insertion order.
	Chunks(ctx context.Context) ([]domain.Chunk, error)
	Close() error
}
