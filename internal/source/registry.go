// Package source turns source descriptors into records and owns the files
// in the sources directory.
package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"ragchat/internal/domain"
)

// PDFExtractor returns the text of each page, in page order.
type PDFExtractor interface {
	ExtractPages(ctx context.Context, path string) ([]string, error)
}

// Page is a fetched web page converted to Markdown.
type Page struct {
	Title    string
	Markdown string
}

// PageFetcher downloads and converts a web page.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (Page, error)
}

// Audio is a downloaded audio track on local disk.
type Audio struct {
	Path     string
	Title    string
	MimeType string
}

// AudioDownloader saves the audio track of a video URL under dir.
type AudioDownloader interface {
	Download(ctx context.Context, url, dir string) (Audio, error)
}

// Transcriber converts an audio file to text.
type Transcriber interface {
	Transcribe(ctx context.Context, path string) (string, error)
}

// Deps are the collaborators a Registry dispatches to. Nil collaborators make
// the corresponding kind fail with ErrUnsupportedSource.
type Deps struct {
	PDF         PDFExtractor
	Web         PageFetcher
	Audio       AudioDownloader
	Transcriber Transcriber
}

// Registry loads sources and manages the sources and temp directories.
type Registry struct {
	sourcesDir string
	tempDir    string
	deps       Deps
	logger     *zap.Logger
}

func NewRegistry(sourcesDir, tempDir string, deps Deps, logger *zap.Logger) (*Registry, error) {
	for _, dir := range []string{sourcesDir, tempDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{sourcesDir: sourcesDir, tempDir: tempDir, deps: deps, logger: logger}, nil
}

// SourcesDir is where documents and pointer files live.
func (r *Registry) SourcesDir() string { return r.sourcesDir }

// LoadPDF returns one record per page with text.
func (r *Registry) LoadPDF(ctx context.Context, path string) ([]domain.Record, error) {
	desc := domain.SourceDescriptor{Kind: domain.KindPDF, Location: path}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, &domain.LoadError{Descriptor: desc, Err: domain.ErrSourceNotFound}
		}
		return nil, &domain.LoadError{Descriptor: desc, Err: err}
	}
	if r.deps.PDF == nil {
		return nil, &domain.LoadError{Descriptor: desc, Err: domain.ErrUnsupportedSource}
	}
	pages, err := r.deps.PDF.ExtractPages(ctx, path)
	if err != nil {
		return nil, &domain.LoadError{Descriptor: desc, Err: err}
	}
	title := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	var records []domain.Record
	for i, text := range pages {
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		records = append(records, domain.Record{
			Content: text,
			Metadata: domain.Metadata{
				Source:     path,
				SourceType: domain.KindPDF,
				Title:      title,
				Page:       i + 1,
			},
		})
	}
	if len(records) == 0 {
		return nil, &domain.LoadError{Descriptor: desc, Err: domain.ErrEmptyContent}
	}
	return records, nil
}

// LoadYouTube downloads the audio of a video, transcribes it and removes the
// download again.
func (r *Registry) LoadYouTube(ctx context.Context, rawURL string) ([]domain.Record, error) {
	canonical := NormalizeYouTubeURL(strings.TrimSpace(rawURL))
	desc := domain.SourceDescriptor{Kind: domain.KindYouTube, Location: canonical}
	if _, ok := VideoID(canonical); !ok {
		return nil, &domain.LoadError{Descriptor: desc, Err: fmt.Errorf("%w: not a YouTube video URL", domain.ErrUnsupportedSource)}
	}
	if r.deps.Audio == nil || r.deps.Transcriber == nil {
		return nil, &domain.LoadError{Descriptor: desc, Err: domain.ErrUnsupportedSource}
	}
	audio, err := r.deps.Audio.Download(ctx, canonical, r.tempDir)
	if err != nil {
		return nil, &domain.LoadError{Descriptor: desc, Err: fmt.Errorf("download audio: %w", err)}
	}
	defer func() {
		if err := os.Remove(audio.Path); err != nil && !os.IsNotExist(err) {
			r.logger.Warn("failed to remove audio download", zap.String("path", audio.Path), zap.Error(err))
		}
	}()
	r.logger.Info("transcribing audio", zap.String("url", canonical), zap.String("mime", audio.MimeType))
	text, err := r.deps.Transcriber.Transcribe(ctx, audio.Path)
	if err != nil {
		return nil, &domain.LoadError{Descriptor: desc, Err: fmt.Errorf("transcribe: %w", err)}
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, &domain.LoadError{Descriptor: desc, Err: domain.ErrEmptyContent}
	}
	return []domain.Record{{
		Content: text,
		Metadata: domain.Metadata{
			Source:     canonical,
			SourceType: domain.KindYouTube,
			Title:      audio.Title,
		},
	}}, nil
}

// LoadURL fetches a web page as a single record.
func (r *Registry) LoadURL(ctx context.Context, rawURL string) ([]domain.Record, error) {
	desc := domain.SourceDescriptor{Kind: domain.KindURL, Location: rawURL}
	u, err := validateURL(rawURL)
	if err != nil {
		return nil, &domain.LoadError{Descriptor: desc, Err: err}
	}
	if r.deps.Web == nil {
		return nil, &domain.LoadError{Descriptor: desc, Err: domain.ErrUnsupportedSource}
	}
	page, err := r.deps.Web.Fetch(ctx, u)
	if err != nil {
		return nil, &domain.LoadError{Descriptor: desc, Err: err}
	}
	text := strings.TrimSpace(page.Markdown)
	if text == "" {
		return nil, &domain.LoadError{Descriptor: desc, Err: domain.ErrEmptyContent}
	}
	return []domain.Record{{
		Content: text,
		Metadata: domain.Metadata{
			Source:     u,
			SourceType: domain.KindURL,
			Title:      page.Title,
		},
	}}, nil
}

var pdfMagic = []byte("%PDF-")

// AddPDF stores an uploaded PDF in the sources directory under its base name.
func (r *Registry) AddPDF(name string, data []byte) (domain.SourceDescriptor, error) {
	base := filepath.Base(strings.TrimSpace(name))
	if base == "." || base == string(filepath.Separator) || base == "" {
		return domain.SourceDescriptor{}, fmt.Errorf("%w: empty file name", domain.ErrUnsupportedSource)
	}
	if kind, ok := Classify(base); !ok || kind != domain.KindPDF {
		return domain.SourceDescriptor{}, fmt.Errorf("%w: %s is not a .pdf file", domain.ErrUnsupportedSource, base)
	}
	if len(data) == 0 {
		return domain.SourceDescriptor{}, fmt.Errorf("%w: %s is empty", domain.ErrEmptyContent, base)
	}
	if !bytes.HasPrefix(bytes.TrimLeft(data[:min(len(data), 1024)], "\x00\t\r\n "), pdfMagic) {
		return domain.SourceDescriptor{}, fmt.Errorf("%w: %s has no PDF header", domain.ErrUnsupportedSource, base)
	}
	path := filepath.Join(r.sourcesDir, base)
	if err := writeFileAtomic(path, data); err != nil {
		return domain.SourceDescriptor{}, err
	}
	r.logger.Info("stored pdf", zap.String("path", path), zap.Int("bytes", len(data)))
	return domain.SourceDescriptor{Kind: domain.KindPDF, Location: path}, nil
}

// AddURL writes a pointer file for a web or YouTube URL. YouTube URLs are
// stored in canonical form.
func (r *Registry) AddURL(rawURL string, kind domain.SourceKind) (domain.SourceDescriptor, error) {
	u, err := validateURL(rawURL)
	if err != nil {
		return domain.SourceDescriptor{}, err
	}
	switch kind {
	case domain.KindYouTube:
		if _, ok := VideoID(u); !ok {
			return domain.SourceDescriptor{}, fmt.Errorf("%w: not a YouTube video URL: %s", domain.ErrUnsupportedSource, u)
		}
		u = NormalizeYouTubeURL(u)
	case domain.KindURL:
	default:
		return domain.SourceDescriptor{}, fmt.Errorf("%w: kind %s cannot be added by URL", domain.ErrUnsupportedSource, kind)
	}
	path := filepath.Join(r.sourcesDir, PointerName(kind, u))
	if err := writeFileAtomic(path, []byte(u+"\n")); err != nil {
		return domain.SourceDescriptor{}, err
	}
	r.logger.Info("stored pointer", zap.String("path", path), zap.String("url", u))
	return domain.SourceDescriptor{Kind: kind, Location: path}, nil
}

// Remove deletes the file behind a descriptor from the sources directory.
func (r *Registry) Remove(desc domain.SourceDescriptor) error {
	rel, err := filepath.Rel(r.sourcesDir, desc.Location)
	if err != nil || strings.HasPrefix(rel, "..") {
		return fmt.Errorf("%s is outside the sources directory", desc.Location)
	}
	if err := os.Remove(desc.Location); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// CleanupTemp removes everything in the temp directory and reports how many
// entries were removed.
func (r *Registry) CleanupTemp() (int, error) {
	entries, err := os.ReadDir(r.tempDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	var errs []error
	removed := 0
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(r.tempDir, e.Name())); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".upload-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
