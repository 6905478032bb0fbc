package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"ragchat/internal/domain"
	"ragchat/internal/httpx"
	"ragchat/internal/vectorstore"
)

// Storage is a minimal REST client to Qdrant.
// It creates the collection if missing.
type Storage struct {
	url        string
	apiKey     string
	collection string
	distance   string
	dimension  int
	client     *httpx.Client
}

var _ vectorstore.Storage = (*Storage)(nil)

type Config struct {
	URL        string
	APIKey     string
	Collection string
	Distance   string
	Timeout    time.Duration
}

// pointNamespace derives stable point UUIDs from chunk IDs.
var pointNamespace = uuid.MustParse("6f1c5f5e-4a55-4c36-9f0e-2a4d1b8c7e10")

func NewStorage(cfg Config) *Storage {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	if cfg.Collection == "" {
		cfg.Collection = "ragchat"
	}
	if cfg.Distance == "" {
		cfg.Distance = "Cosine"
	}
	c := httpx.New(timeout, 0)
	c.MaxRetries = 2
	return &Storage{
		url:        strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		distance:   cfg.Distance,
		client:     c,
	}
}

// PointID maps a chunk ID onto the UUID Qdrant requires.
func PointID(chunkID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(chunkID)).String()
}

func (s *Storage) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	var info struct {
		Result struct {
			Config struct {
				Params struct {
					Vectors struct {
						Size int `json:"size"`
					} `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}
	err := s.do(ctx, http.MethodGet, s.collectionURL(), nil, &info)
	var se *httpx.StatusError
	switch {
	case err == nil && info.Result.Config.Params.Vectors.Size == dimension:
		s.dimension = dimension
		return nil
	case err == nil:
		if err := s.do(ctx, http.MethodDelete, s.collectionURL(), nil, nil); err != nil {
			return err
		}
	case errors.As(err, &se) && se.Code == http.StatusNotFound:
	default:
		return err
	}
	if err := s.create(ctx, dimension); err != nil {
		return err
	}
	s.dimension = dimension
	return nil
}

func (s *Storage) Upsert(ctx context.Context, chunks []domain.Chunk, vectors [][]float64) error {
	if len(chunks) != len(vectors) {
		return errors.New("chunks and vectors length mismatch")
	}
	points := make([]map[string]any, len(chunks))
	for i := range chunks {
		points[i] = map[string]any{
			"id":      PointID(chunks[i].ChunkID),
			"vector":  vectors[i],
			"payload": payloadOf(chunks[i]),
		}
	}
	body := map[string]any{"points": points}
	return s.do(ctx, http.MethodPut, s.collectionURL()+"/points?wait=true", body, nil)
}

func (s *Storage) Search(ctx context.Context, vector []float64, topK int) ([]domain.SearchResult, error) {
	if topK <= 0 {
		topK = 5
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
	}
	var resp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := s.do(ctx, http.MethodPost, s.collectionURL()+"/points/search", req, &resp); err != nil {
		return nil, err
	}
	results := make([]domain.SearchResult, 0, len(resp.Result))
	for _, r := range resp.Result {
		results = append(results, domain.SearchResult{Chunk: chunkOf(r.Payload), Score: r.Score})
	}
	return results, nil
}

// Replace writes the new points first and then deletes every point that is
// not part of the new set, so a failed upsert leaves the old points intact.
// A dimension change still recreates the collection up front.
func (s *Storage) Replace(ctx context.Context, dimension int, chunks []domain.Chunk, vectors [][]float64) error {
	if len(chunks) != len(vectors) {
		return errors.New("chunks and vectors length mismatch")
	}
	if err := s.Init(ctx, dimension); err != nil {
		return err
	}
	if err := s.Upsert(ctx, chunks, vectors); err != nil {
		return err
	}
	keep := make([]string, len(chunks))
	for i, ch := range chunks {
		keep[i] = PointID(ch.ChunkID)
	}
	filter := map[string]any{"must_not": []any{map[string]any{"has_id": keep}}}
	return s.deletePoints(ctx, filter)
}

func (s *Storage) DeleteSource(ctx context.Context, source string) error {
	filter := map[string]any{"must": []any{map[string]any{
		"key":   "source",
		"match": map[string]any{"value": source},
	}}}
	return s.deletePoints(ctx, filter)
}

func (s *Storage) Count(ctx context.Context) (int, error) {
	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	err := s.do(ctx, http.MethodPost, s.collectionURL()+"/points/count", map[string]any{"exact": true}, &resp)
	var se *httpx.StatusError
	if errors.As(err, &se) && se.Code == http.StatusNotFound {
		return 0, nil
	}
	return resp.Result.Count, err
}

// Chunks scrolls through the collection. Order follows source, page and index.
func (s *Storage) Chunks(ctx context.Context) ([]domain.Chunk, error) {
	var out []domain.Chunk
	var offset any
	for {
		req := map[string]any{"limit": 256, "with_payload": true, "with_vector": false}
		if offset != nil {
			req["offset"] = offset
		}
		var resp struct {
			Result struct {
				Points []struct {
					Payload map[string]any `json:"payload"`
				} `json:"points"`
				NextPageOffset any `json:"next_page_offset"`
			} `json:"result"`
		}
		if err := s.do(ctx, http.MethodPost, s.collectionURL()+"/points/scroll", req, &resp); err != nil {
			return nil, err
		}
		for _, p := range resp.Result.Points {
			out = append(out, chunkOf(p.Payload))
		}
		if resp.Result.NextPageOffset == nil {
			break
		}
		offset = resp.Result.NextPageOffset
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Source != out[j].Source {
			return out[i].Source < out[j].Source
		}
		if out[i].Page != out[j].Page {
			return out[i].Page < out[j].Page
		}
		return out[i].Index < out[j].Index
	})
	return out, nil
}

func (s *Storage) Close() error { return nil }

func (s *Storage) deletePoints(ctx context.Context, filter map[string]any) error {
	body := map[string]any{"filter": filter}
	return s.do(ctx, http.MethodPost, s.collectionURL()+"/points/delete?wait=true", body, nil)
}

func (s *Storage) create(ctx context.Context, dimension int) error {
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": s.distance,
		},
	}
	return s.do(ctx, http.MethodPut, s.collectionURL(), body, nil)
}

func (s *Storage) collectionURL() string {
	return fmt.Sprintf("%s/collections/%s", s.url, s.collection)
}

func (s *Storage) do(ctx context.Context, method, url string, body, out any) error {
	var data []byte
	if body != nil {
		var err error
		if data, err = json.Marshal(body); err != nil {
			return err
		}
	}
	payload, err := s.client.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if s.apiKey != "" {
			req.Header.Set("api-key", s.apiKey)
		}
		return req, nil
	})
	if err != nil {
		return fmt.Errorf("qdrant %s %s: %w", method, url, err)
	}
	if out != nil && len(payload) > 0 {
		return json.Unmarshal(payload, out)
	}
	return nil
}

func payloadOf(ch domain.Chunk) map[string]any {
	return map[string]any{
		"document_id": ch.DocumentID,
		"chunk_id":    ch.ChunkID,
		"index":       ch.Index,
		"text":        ch.Text,
		"source":      ch.Source,
		"source_type": string(ch.SourceType),
		"page":        ch.Page,
	}
}

func chunkOf(payload map[string]any) domain.Chunk {
	chunk := domain.Chunk{}
	if v, ok := payload["document_id"].(string); ok {
		chunk.DocumentID = v
	}
	if v, ok := payload["chunk_id"].(string); ok {
		chunk.ChunkID = v
	}
	if v, ok := payload["index"].(float64); ok {
		chunk.Index = int(v)
	}
	if v, ok := payload["text"].(string); ok {
		chunk.Text = v
	}
	if v, ok := payload["source"].(string); ok {
		chunk.Source = v
	}
	if v, ok := payload["source_type"].(string); ok {
		chunk.SourceType = domain.SourceKind(v)
	}
	if v, ok := payload["page"].(float64); ok {
		chunk.Page = int(v)
	}
	return chunk
}
