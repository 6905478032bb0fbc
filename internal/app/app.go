// Package app assembles the components selected by the configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"ragchat/internal/chunker"
	"ragchat/internal/config"
	"ragchat/internal/embedding"
	"ragchat/internal/embedding/cache"
	embgemini "ragchat/internal/embedding/gemini"
	embopenai "ragchat/internal/embedding/openai"
	"ragchat/internal/embedding/tfidf"
	"ragchat/internal/env"
	"ragchat/internal/index"
	"ragchat/internal/ingestcache"
	"ragchat/internal/llm"
	"ragchat/internal/llm/anthropic"
	llmgemini "ragchat/internal/llm/gemini"
	llmopenai "ragchat/internal/llm/openai"
	"ragchat/internal/loader"
	"ragchat/internal/service"
	"ragchat/internal/source"
	"ragchat/internal/source/pdf"
	"ragchat/internal/source/web"
	"ragchat/internal/source/youtube"
	"ragchat/internal/summarizer"
	"ragchat/internal/transcribe"
	"ragchat/internal/vectorstore"
	"ragchat/internal/vectorstore/memory"
	"ragchat/internal/vectorstore/qdrant"
	"ragchat/internal/vectorstore/sqlite"
)

// App holds the wired service and the resources that need closing.
type App struct {
	Config   *config.AppConfig
	Service  *service.Service
	Registry *source.Registry
	Cache    *ingestcache.Cache
	Logger   *zap.Logger

	closers []func() error
}

// Close releases the index and the ingest cache.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

// Build checks credentials and wires every component. It does not touch the
// index; call Service.Start or Service.Initialize for that.
func Build(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := env.Require(cfg.CredentialEnvs()...); err != nil {
		return nil, err
	}
	a := &App{Config: cfg, Logger: logger}
	g := &genaiClients{ctx: ctx, clients: map[string]*genai.Client{}}

	emb, batch, err := buildEmbedder(cfg, g, logger)
	if err != nil {
		return nil, err
	}
	ch, err := chunker.New(cfg.Chunker)
	if err != nil {
		return nil, err
	}
	store, err := buildStore(cfg)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, store.Close)

	provider, err := buildProvider(cfg, g)
	if err != nil {
		a.Close()
		return nil, err
	}
	tr, err := buildTranscriber(cfg, g)
	if err != nil {
		a.Close()
		return nil, err
	}
	sum, err := summarizer.New(cfg.Summarizer)
	if err != nil {
		a.Close()
		return nil, err
	}

	reg, err := source.NewRegistry(cfg.SourcesDir, cfg.TempDir, source.Deps{
		PDF:         pdf.NewExtractor(cfg.TempDir, logger.Named("pdf")),
		Web:         web.NewFetcher(30 * time.Second),
		Audio:       youtube.NewDownloader(time.Duration(cfg.Transcriber.TimeoutSecs)*time.Second, logger.Named("youtube")),
		Transcriber: tr,
	}, logger.Named("source"))
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Registry = reg

	var ldCache loader.Cache
	if cfg.IngestCache.Enabled {
		c, err := ingestcache.Open(cfg.IngestCache.Dir, logger.Named("ingestcache"))
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("open ingest cache: %w", err)
		}
		a.Cache = c
		a.closers = append(a.closers, c.Close)
		ldCache = c
	}
	ld := loader.New(cfg.SourcesDir, reg, ldCache, time.Duration(cfg.IngestCache.TTLHours)*time.Hour, logger.Named("loader"))
	idx := index.New(ch, emb, store, batch, logger.Named("index"))

	a.Service = service.New(service.Options{
		Loader:           ld,
		Registry:         reg,
		Index:            idx,
		Provider:         provider,
		Summarizer:       sum,
		TopK:             cfg.Retrieval.TopK,
		SummarySentences: cfg.Summarizer.MaxSentences,
		Logger:           logger.Named("service"),
	})
	logger.Info("components ready",
		zap.String("embedder", emb.Name()),
		zap.String("store", cfg.VectorStore.Type),
		zap.String("llm", provider.Name()),
		zap.String("transcriber", cfg.Transcriber.Type))
	return a, nil
}

// genaiClients shares one Gemini client per API key variable.
type genaiClients struct {
	ctx     context.Context
	clients map[string]*genai.Client
}

func (g *genaiClients) get(keyEnv string, timeoutSecs int) (*genai.Client, error) {
	if c, ok := g.clients[keyEnv]; ok {
		return c, nil
	}
	key, err := env.Lookup(keyEnv)
	if err != nil {
		return nil, err
	}
	cc := &genai.ClientConfig{APIKey: key, Backend: genai.BackendGeminiAPI}
	if timeoutSecs > 0 {
		cc.HTTPClient = &http.Client{Timeout: time.Duration(timeoutSecs) * time.Second}
	}
	c, err := genai.NewClient(g.ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("genai client: %w", err)
	}
	g.clients[keyEnv] = c
	return c, nil
}

func buildEmbedder(cfg *config.AppConfig, g *genaiClients, logger *zap.Logger) (embedding.Embedder, int, error) {
	var (
		emb   embedding.Embedder
		batch = 32
	)
	switch cfg.Embedder.Type {
	case "tfidf", "":
		emb = tfidf.NewEmbedder()
	case "openai":
		oc := cfg.Embedder.OpenAI
		if oc == nil {
			return nil, 0, errors.New("openai embedder config missing")
		}
		client, err := embopenai.NewClient(embopenai.Config{
			BaseURL:           oc.BaseURL,
			APIKeyEnv:         oc.APIKeyEnv,
			Model:             oc.Model,
			Timeout:           time.Duration(oc.TimeoutSecs) * time.Second,
			RequestsPerSecond: oc.RequestsPerSecond,
		})
		if err != nil {
			return nil, 0, fmt.Errorf("openai embedder: %w", err)
		}
		emb = client
		if oc.BatchSize > 0 {
			batch = oc.BatchSize
		}
	case "gemini":
		gc := cfg.Embedder.Gemini
		if gc == nil {
			return nil, 0, errors.New("gemini embedder config missing")
		}
		client, err := g.get(gc.APIKeyEnv, gc.TimeoutSecs)
		if err != nil {
			return nil, 0, err
		}
		e, err := embgemini.NewEmbedder(client.Models, gc.Model, gc.Dimension)
		if err != nil {
			return nil, 0, err
		}
		emb = e
	default:
		return nil, 0, fmt.Errorf("unknown embedder: %s", cfg.Embedder.Type)
	}
	ttl := time.Duration(cfg.Embedder.CacheTTLSecs) * time.Second
	return cache.Wrap(emb, cfg.Embedder.CacheSize, ttl, logger.Named("embedcache")), batch, nil
}

func buildStore(cfg *config.AppConfig) (vectorstore.Storage, error) {
	switch cfg.VectorStore.Type {
	case "memory":
		return memory.NewStorage(), nil
	case "sqlite", "":
		s, err := sqlite.Open(cfg.IndexPath())
		if err != nil {
			return nil, err
		}
		return s, nil
	case "qdrant":
		qc := cfg.VectorStore.Qdrant
		if qc == nil {
			return nil, errors.New("qdrant config missing")
		}
		return qdrant.NewStorage(qdrant.Config{
			URL:        qc.URL,
			APIKey:     qc.APIKey,
			Collection: qc.Collection,
			Distance:   qc.Distance,
			Timeout:    time.Duration(qc.TimeoutSecs) * time.Second,
		}), nil
	default:
		return nil, fmt.Errorf("unknown vector store: %s", cfg.VectorStore.Type)
	}
}

func buildProvider(cfg *config.AppConfig, g *genaiClients) (llm.Provider, error) {
	lc := cfg.LLM
	switch lc.Provider {
	case "openai", "":
		return llmopenai.NewClient(llmopenai.Config{
			BaseURL:           lc.BaseURL,
			APIKeyEnv:         lc.APIKeyEnv,
			Model:             lc.Model,
			Temperature:       lc.Temperature,
			MaxTokens:         lc.MaxTokens,
			Timeout:           time.Duration(lc.TimeoutSecs) * time.Second,
			RequestsPerSecond: lc.RequestsPerSecond,
		})
	case "gemini":
		client, err := g.get(lc.APIKeyEnv, lc.TimeoutSecs)
		if err != nil {
			return nil, err
		}
		return llmgemini.New(client.Models, lc.Model, lc.Temperature, lc.MaxTokens)
	case "anthropic":
		return anthropic.NewClient(anthropic.Config{
			APIKeyEnv:   lc.APIKeyEnv,
			Model:       lc.Model,
			Temperature: lc.Temperature,
			MaxTokens:   lc.MaxTokens,
		})
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", lc.Provider)
	}
}

func buildTranscriber(cfg *config.AppConfig, g *genaiClients) (source.Transcriber, error) {
	tc := cfg.Transcriber
	switch tc.Type {
	case "openai", "":
		return transcribe.NewWhisper(transcribe.WhisperConfig{
			BaseURL:   tc.BaseURL,
			APIKeyEnv: tc.APIKeyEnv,
			Model:     tc.Model,
			Timeout:   time.Duration(tc.TimeoutSecs) * time.Second,
		})
	case "gemini":
		client, err := g.get(tc.APIKeyEnv, tc.TimeoutSecs)
		if err != nil {
			return nil, err
		}
		return transcribe.NewGemini(client.Models, tc.Model)
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown transcriber: %s", tc.Type)
	}
}
