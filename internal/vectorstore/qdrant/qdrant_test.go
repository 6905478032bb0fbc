package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragchat/internal/domain"
)

// fakeQdrant implements the handful of endpoints the store uses.
type fakeQdrant struct {
	mu      sync.Mutex
	exists  bool
	size    int
	points  map[string]map[string]any
	methods []string
}

func (f *fakeQdrant) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.methods = append(f.methods, r.Method+" "+r.URL.Path)
	base := "/collections/docs"
	switch {
	case r.URL.Path == base && r.Method == http.MethodGet:
		if !f.exists {
			http.Error(w, `{"status":"not found"}`, http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"result":{"config":{"params":{"vectors":{"size":` + itoa(f.size) + `}}}}}`))
	case r.URL.Path == base && r.Method == http.MethodPut:
		var body struct {
			Vectors struct {
				Size int `json:"size"`
			} `json:"vectors"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.exists, f.size = true, body.Vectors.Size
		f.points = map[string]map[string]any{}
		_, _ = w.Write([]byte(`{"result":true}`))
	case r.URL.Path == base && r.Method == http.MethodDelete:
		f.exists = false
		f.points = nil
		_, _ = w.Write([]byte(`{"result":true}`))
	case r.URL.Path == base+"/points":
		var body struct {
			Points []struct {
				ID      string         `json:"id"`
				Payload map[string]any `json:"payload"`
			} `json:"points"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		for _, p := range body.Points {
			f.points[p.ID] = p.Payload
		}
		_, _ = w.Write([]byte(`{"result":{"status":"completed"}}`))
	case r.URL.Path == base+"/points/delete":
		var body struct {
			Filter struct {
				Must []struct {
					Key   string `json:"key"`
					Match struct {
						Value string `json:"value"`
					} `json:"match"`
				} `json:"must"`
				MustNot []struct {
					HasID []string `json:"has_id"`
				} `json:"must_not"`
			} `json:"filter"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		for id, p := range f.points {
			drop := false
			for _, m := range body.Filter.Must {
				if p[m.Key] == m.Match.Value {
					drop = true
				}
			}
			for _, m := range body.Filter.MustNot {
				keep := false
				for _, k := range m.HasID {
					if k == id {
						keep = true
					}
				}
				drop = drop || !keep
			}
			if drop {
				delete(f.points, id)
			}
		}
		_, _ = w.Write([]byte(`{"result":{"status":"completed"}}`))
	case r.URL.Path == base+"/points/count":
		_, _ = w.Write([]byte(`{"result":{"count":` + itoa(len(f.points)) + `}}`))
	case r.URL.Path == base+"/points/scroll":
		var pts []map[string]any
		for _, p := range f.points {
			pts = append(pts, map[string]any{"payload": p})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"result": map[string]any{"points": pts, "next_page_offset": nil}})
	case r.URL.Path == base+"/points/search":
		var pts []map[string]any
		for _, p := range f.points {
			pts = append(pts, map[string]any{"score": 0.5, "payload": p})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"result": pts})
	default:
		http.NotFound(w, r)
	}
}

func itoa(n int) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func TestStorageLifecycle(t *testing.T) {
	fake := &fakeQdrant{}
	srv := httptest.NewServer(fake)
	defer srv.Close()
	ctx := context.Background()

	s := NewStorage(Config{URL: srv.URL + "/", Collection: "docs"})
	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, s.Init(ctx, 3))
	assert.Equal(t, 3, fake.size)

	chunks := []domain.Chunk{
		{ChunkID: "d:1", DocumentID: "d", Index: 1, Text: "second", Source: "a.pdf", SourceType: domain.KindPDF, Page: 1},
		{ChunkID: "d:0", DocumentID: "d", Index: 0, Text: "first", Source: "a.pdf", SourceType: domain.KindPDF, Page: 1},
	}
	require.NoError(t, s.Upsert(ctx, chunks, [][]float64{{1, 0, 0}, {0, 1, 0}}))
	require.NoError(t, s.Upsert(ctx, chunks[:1], [][]float64{{1, 0, 0}}))

	n, err = s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	all, err := s.Chunks(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "first", all[0].Text)
	assert.Equal(t, domain.KindPDF, all[0].SourceType)

	res, err := s.Search(ctx, []float64{1, 0, 0}, 2)
	require.NoError(t, err)
	assert.Len(t, res, 2)
	assert.Equal(t, "a.pdf", res[0].Chunk.Source)

	require.NoError(t, s.DeleteSource(ctx, "a.pdf"))
	n, err = s.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.True(t, fake.exists)
}

func TestReplaceDropsPointsOutsideNewSet(t *testing.T) {
	fake := &fakeQdrant{}
	srv := httptest.NewServer(fake)
	defer srv.Close()
	ctx := context.Background()

	s := NewStorage(Config{URL: srv.URL, Collection: "docs"})
	old := []domain.Chunk{
		{ChunkID: "d:0", Text: "kept", Source: "a.pdf"},
		{ChunkID: "d:1", Text: "stale", Source: "a.pdf"},
	}
	require.NoError(t, s.Replace(ctx, 2, old, [][]float64{{1, 0}, {0, 1}}))
	require.NoError(t, s.Replace(ctx, 2, old[:1], [][]float64{{1, 0}}))

	all, err := s.Chunks(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "kept", all[0].Text)
}

func TestInitRecreatesOnDimensionChange(t *testing.T) {
	fake := &fakeQdrant{exists: true, size: 2, points: map[string]map[string]any{}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	s := NewStorage(Config{URL: srv.URL, Collection: "docs"})
	require.NoError(t, s.Init(context.Background(), 4))
	assert.Equal(t, 4, fake.size)
	assert.Contains(t, fake.methods, "DELETE /collections/docs")
}

func TestPointIDIsStableUUID(t *testing.T) {
	assert.Equal(t, PointID("abc:0"), PointID("abc:0"))
	assert.NotEqual(t, PointID("abc:0"), PointID("abc:1"))
	assert.Len(t, PointID("abc:0"), 36)
}
