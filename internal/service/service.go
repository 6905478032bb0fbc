// Package service owns the index and answer chain and exposes the actions the
// shell can trigger: ask, add a source, clear history, reindex.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ragchat/internal/chain"
	"ragchat/internal/domain"
	"ragchat/internal/index"
	"ragchat/internal/llm"
	"ragchat/internal/loader"
	"ragchat/internal/source"
)

// FallbackAnswer is shown when the model could not produce an answer.
const FallbackAnswer = "Sorry, I encountered an error processing your question."

type State int

const (
	Uninitialized State = iota
	Ready
)

func (s State) String() string {
	if s == Ready {
		return "ready"
	}
	return "uninitialized"
}

// Loader is the subset of *loader.Loader the service needs.
type Loader interface {
	Scan() ([]domain.SourceDescriptor, error)
	LoadDocuments(ctx context.Context, descriptors ...domain.SourceDescriptor) (domain.Collection, []domain.Outcome, error)
	LoadOne(ctx context.Context, desc domain.SourceDescriptor) ([]domain.Record, bool, error)
	Forget(desc domain.SourceDescriptor) error
}

var _ Loader = (*loader.Loader)(nil)

// Registry stores new sources on disk.
type Registry interface {
	AddPDF(name string, data []byte) (domain.SourceDescriptor, error)
	AddURL(rawURL string, kind domain.SourceKind) (domain.SourceDescriptor, error)
	Remove(desc domain.SourceDescriptor) error
	CleanupTemp() (int, error)
}

var _ Registry = (*source.Registry)(nil)

// Index is the subset of *index.Builder the service needs.
type Index interface {
	chain.Retriever
	Build(ctx context.Context, docs domain.Collection) (int, error)
	Load(ctx context.Context) (int, error)
	Append(ctx context.Context, docs domain.Collection) (int, error)
	Incremental() bool
	Chunks() []domain.Chunk
}

var _ Index = (*index.Builder)(nil)

type Options struct {
	Loader           Loader
	Registry         Registry
	Index            Index
	Provider         llm.Provider
	Summarizer       domain.Summarizer
	TopK             int
	SummarySentences int
	Logger           *zap.Logger
}

// Session is one user's conversation. Sessions are owned by the caller and
// passed to every request.
type Session struct {
	ID      uuid.UUID
	History *chain.Memory

	mu         sync.Mutex
	generation uint64
}

// sync clears the history when the chain was rebuilt since the session last
// used it.
func (sess *Session) sync(generation uint64) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.generation != generation {
		sess.History.Clear()
		sess.generation = generation
	}
}

func NewSession() *Session {
	return &Session{ID: uuid.New(), History: chain.NewMemory()}
}

// AddResult describes a successful source addition.
type AddResult struct {
	Descriptor  domain.SourceDescriptor
	Records     int
	Chunks      int
	Incremental bool
}

type Service struct {
	opts   Options
	logger *zap.Logger

	mu         sync.RWMutex
	state      State
	chain      *chain.Chain
	generation uint64
	outcomes   []domain.Outcome
}

func New(opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.SummarySentences <= 0 {
		opts.SummarySentences = 3
	}
	return &Service{opts: opts, logger: opts.Logger}
}

func (s *Service) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Start reopens the persisted index and falls back to a full load from the
// sources directory.
func (s *Service) Start(ctx context.Context) error {
	err := s.Initialize(ctx, false)
	if err == nil {
		return nil
	}
	s.logger.Info("no usable persisted index, loading sources", zap.Error(err))
	return s.Initialize(ctx, true)
}

// Initialize moves the service to Ready. With loadDocuments every source is
// loaded and the index rebuilt, otherwise the persisted index is reopened.
// On failure the state is left as it was.
func (s *Service) Initialize(ctx context.Context, loadDocuments bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initializeLocked(ctx, loadDocuments)
}

func (s *Service) initializeLocked(ctx context.Context, loadDocuments bool) error {
	var (
		n   int
		err error
	)
	if loadDocuments {
		docs, outcomes, lerr := s.opts.Loader.LoadDocuments(ctx)
		if lerr != nil {
			return fmt.Errorf("scan sources: %w", lerr)
		}
		s.outcomes = outcomes
		if len(docs) == 0 {
			return domain.ErrNoDocuments
		}
		n, err = s.opts.Index.Build(ctx, docs)
	} else {
		n, err = s.opts.Index.Load(ctx)
	}
	if err != nil {
		if !errors.Is(err, domain.ErrIndexUnavailable) {
			err = fmt.Errorf("%w: %v", domain.ErrIndexUnavailable, err)
		}
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: index is empty", domain.ErrIndexUnavailable)
	}
	s.chain = chain.New(s.opts.Provider, s.opts.Index, s.opts.TopK, s.logger)
	s.generation++
	s.state = Ready
	s.logger.Info("service ready", zap.Int("chunks", n), zap.Bool("reloaded", loadDocuments))
	return nil
}

// current returns the chain and resets the session memory if the chain was
// rebuilt since the session last used it.
func (s *Service) current(sess *Session) (*chain.Chain, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != Ready {
		return nil, domain.ErrNotReady
	}
	if sess != nil {
		sess.sync(s.generation)
	}
	return s.chain, nil
}

// Ask answers question within sess. Model failures are logged and turned
// into FallbackAnswer; no turn is recorded for them.
func (s *Service) Ask(ctx context.Context, sess *Session, question string) (chain.Answer, error) {
	if sess == nil {
		return s.AskOnce(ctx, question)
	}
	ch, err := s.current(sess)
	if err != nil {
		return chain.Answer{}, err
	}
	ans, err := ch.Ask(ctx, sess.History, question)
	return s.fallback(question, ans, err)
}

// AskOnce answers without conversational memory.
func (s *Service) AskOnce(ctx context.Context, question string) (chain.Answer, error) {
	ch, err := s.current(nil)
	if err != nil {
		return chain.Answer{}, err
	}
	ans, err := ch.AskOnce(ctx, question)
	return s.fallback(question, ans, err)
}

func (s *Service) fallback(question string, ans chain.Answer, err error) (chain.Answer, error) {
	if err == nil {
		return ans, nil
	}
	if errors.Is(err, domain.ErrEmptyQuestion) {
		return chain.Answer{}, err
	}
	s.logger.Error("answer failed", zap.String("question", question), zap.Error(err))
	return chain.Answer{Text: FallbackAnswer, Question: strings.TrimSpace(question)}, nil
}

// ClearHistory empties the conversation of sess.
func (s *Service) ClearHistory(sess *Session) {
	if sess == nil || sess.History == nil {
		return
	}
	sess.History.Clear()
}

// UploadPDF stores an uploaded PDF and makes it queryable.
func (s *Service) UploadPDF(ctx context.Context, data []byte, name string) (AddResult, error) {
	desc, err := s.opts.Registry.AddPDF(name, data)
	if err != nil {
		return AddResult{}, err
	}
	return s.add(ctx, desc)
}

// AddURL stores a pointer to a web page or YouTube video and makes it
// queryable.
func (s *Service) AddURL(ctx context.Context, rawURL string, kind domain.SourceKind) (AddResult, error) {
	desc, err := s.opts.Registry.AddURL(rawURL, kind)
	if err != nil {
		return AddResult{}, err
	}
	return s.add(ctx, desc)
}

// add loads the new source on its own first. A source that yields nothing is
// removed again so it does not linger in the sources directory. Web pages
// added again are fetched fresh rather than served from the ingest cache.
func (s *Service) add(ctx context.Context, desc domain.SourceDescriptor) (AddResult, error) {
	if desc.Kind == domain.KindURL {
		if err := s.opts.Loader.Forget(desc); err != nil {
			s.logger.Warn("dropping cached page", zap.String("location", desc.Location), zap.Error(err))
		}
	}
	records, cached, err := s.opts.Loader.LoadOne(ctx, desc)
	if err == nil && len(records) == 0 {
		err = &domain.LoadError{Descriptor: desc, Err: domain.ErrEmptyContent}
	}
	if err != nil {
		if rerr := s.opts.Registry.Remove(desc); rerr != nil {
			s.logger.Warn("removing failed source", zap.String("location", desc.Location), zap.Error(rerr))
		}
		return AddResult{}, err
	}
	res := AddResult{Descriptor: desc, Records: len(records)}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Ready && s.opts.Index.Incremental() {
		n, err := s.opts.Index.Append(ctx, domain.Collection(records))
		if err == nil {
			res.Chunks = n
			res.Incremental = true
			s.outcomes = append(s.outcomes, domain.Outcome{Descriptor: desc, Records: len(records), Cached: cached})
			return res, nil
		}
		if errors.Is(err, index.ErrRebuildRequired) {
			s.logger.Info("append needs a rebuild", zap.Error(err))
		} else {
			s.logger.Warn("append failed, rebuilding", zap.Error(err))
		}
	}
	if err := s.initializeLocked(ctx, true); err != nil {
		return AddResult{}, err
	}
	res.Chunks = len(s.opts.Index.Chunks())
	return res, nil
}

// Sources lists the sources directory in load order.
func (s *Service) Sources() ([]domain.SourceDescriptor, error) {
	return s.opts.Loader.Scan()
}

// LastOutcomes reports per-source results of the latest full load plus any
// incremental additions since.
func (s *Service) LastOutcomes() []domain.Outcome {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Outcome, len(s.outcomes))
	copy(out, s.outcomes)
	return out
}

// Summary condenses the indexed text into a few sentences.
func (s *Service) Summary() string {
	if s.opts.Summarizer == nil || s.State() != Ready {
		return ""
	}
	chunks := s.opts.Index.Chunks()
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	sum, err := s.opts.Summarizer.Summarize(strings.Join(texts, "\n"), s.opts.SummarySentences)
	if err != nil {
		s.logger.Warn("summary failed", zap.Error(err))
		return ""
	}
	return sum
}

// CleanupTemp clears transient downloads.
func (s *Service) CleanupTemp() (int, error) {
	return s.opts.Registry.CleanupTemp()
}
