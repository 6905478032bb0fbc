// Package loader turns the sources directory into one ordered collection.
package loader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"

	"ragchat/internal/domain"
	"ragchat/internal/ingestcache"
	"ragchat/internal/source"
)

// Registry is the subset of *source.Registry the loader dispatches to.
type Registry interface {
	LoadPDF(ctx context.Context, path string) ([]domain.Record, error)
	LoadYouTube(ctx context.Context, url string) ([]domain.Record, error)
	LoadURL(ctx context.Context, url string) ([]domain.Record, error)
}

var _ Registry = (*source.Registry)(nil)

// Cache is the subset of *ingestcache.Cache the loader uses.
type Cache interface {
	Get(key string) ([]domain.Record, bool, error)
	Put(key string, records []domain.Record, ttl time.Duration) error
	Delete(key string) error
}

var _ Cache = (*ingestcache.Cache)(nil)

// Loader scans a directory of sources and loads them in order.
type Loader struct {
	dir      string
	registry Registry
	cache    Cache
	// webTTL bounds how long fetched web pages are served from the cache.
	webTTL time.Duration
	logger *zap.Logger
}

// New returns a Loader. cache may be nil.
func New(dir string, registry Registry, cache Cache, webTTL time.Duration, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{dir: dir, registry: registry, cache: cache, webTTL: webTTL, logger: logger}
}

// Scan lists the sources directory by name and classifies each entry.
// Unclassifiable names are skipped.
func (l *Loader) Scan() ([]domain.SourceDescriptor, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan %s: %w", l.dir, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	var out []domain.SourceDescriptor
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		kind, ok := source.Classify(e.Name())
		if !ok {
			continue
		}
		out = append(out, domain.SourceDescriptor{Kind: kind, Location: filepath.Join(l.dir, e.Name())})
	}
	return out, nil
}

// LoadDocuments loads the given descriptors, or every source in the
// directory when none are given.
func (l *Loader) LoadDocuments(ctx context.Context, descriptors ...domain.SourceDescriptor) (domain.Collection, []domain.Outcome, error) {
	if len(descriptors) == 0 {
		scanned, err := l.Scan()
		if err != nil {
			return nil, nil, err
		}
		descriptors = scanned
	}
	docs, outcomes := l.LoadFromSources(ctx, descriptors)
	return docs, outcomes, nil
}

// LoadFromSources loads descriptors in order. A failing source is logged,
// recorded in its Outcome and skipped; it never aborts the batch.
// Repeated descriptors are loaded repeatedly.
func (l *Loader) LoadFromSources(ctx context.Context, descriptors []domain.SourceDescriptor) (domain.Collection, []domain.Outcome) {
	var docs domain.Collection
	outcomes := make([]domain.Outcome, 0, len(descriptors))
	for _, desc := range descriptors {
		if ctx.Err() != nil {
			outcomes = append(outcomes, domain.Outcome{Descriptor: desc, Err: ctx.Err()})
			continue
		}
		records, cached, err := l.LoadOne(ctx, desc)
		outcome := domain.Outcome{Descriptor: desc, Records: len(records), Cached: cached, Err: err}
		outcomes = append(outcomes, outcome)
		if err != nil {
			l.logger.Warn("skipping source", zap.String("kind", string(desc.Kind)),
				zap.String("location", desc.Location), zap.Error(err))
			continue
		}
		l.logger.Info("loaded source", zap.String("kind", string(desc.Kind)),
			zap.String("location", desc.Location), zap.Int("records", len(records)), zap.Bool("cached", cached))
		docs = append(docs, records...)
	}
	return docs, outcomes
}

// Forget drops the cached records of desc, so the next load goes back to the
// source.
func (l *Loader) Forget(desc domain.SourceDescriptor) error {
	if l.cache == nil {
		return nil
	}
	var url string
	if desc.Kind != domain.KindPDF {
		u, err := source.ReadPointer(desc.Location)
		if err != nil {
			return err
		}
		url = u
	}
	key, err := ingestcache.Key(desc, url)
	if err != nil {
		return err
	}
	return l.cache.Delete(key)
}

// LoadOne loads a single descriptor, consulting the cache first. Errors
// are always *domain.LoadError.
func (l *Loader) LoadOne(ctx context.Context, desc domain.SourceDescriptor) ([]domain.Record, bool, error) {
	var url string
	if desc.Kind != domain.KindPDF {
		u, err := source.ReadPointer(desc.Location)
		if err != nil {
			return nil, false, &domain.LoadError{Descriptor: desc, Err: err}
		}
		url = u
	}

	key := ""
	if l.cache != nil {
		k, err := ingestcache.Key(desc, url)
		if err == nil {
			key = k
			if records, ok, err := l.cache.Get(key); err != nil {
				l.logger.Warn("ingest cache read failed", zap.String("key", key), zap.Error(err))
			} else if ok {
				return records, true, nil
			}
		}
	}

	var records []domain.Record
	var err error
	switch desc.Kind {
	case domain.KindPDF:
		records, err = l.registry.LoadPDF(ctx, desc.Location)
	case domain.KindYouTube:
		records, err = l.registry.LoadYouTube(ctx, url)
	case domain.KindURL:
		records, err = l.registry.LoadURL(ctx, url)
	default:
		err = domain.ErrUnsupportedSource
	}
	if err != nil {
		var le *domain.LoadError
		if !errors.As(err, &le) {
			err = &domain.LoadError{Descriptor: desc, Err: err}
		}
		return nil, false, err
	}

	if key != "" && len(records) > 0 {
		var ttl time.Duration
		if desc.Kind == domain.KindURL {
			ttl = l.webTTL
		}
		if err := l.cache.Put(key, records, ttl); err != nil {
			l.logger.Warn("ingest cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return records, false, nil
}
