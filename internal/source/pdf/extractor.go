// Package pdf extracts page text from PDF files with pdfcpu.
package pdf

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"go.uber.org/zap"
)

// Extractor dumps each page's content stream and decodes the text-showing
// operators in it.
type Extractor struct {
	tempDir string
	logger  *zap.Logger
}

func NewExtractor(tempDir string, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{tempDir: tempDir, logger: logger}
}

// ExtractPages returns page texts indexed from page 1 at position 0.
func (e *Extractor) ExtractPages(ctx context.Context, path string) ([]string, error) {
	pdfCtx, err := api.ReadContextFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pdf: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pageCount := pdfCtx.PageCount

	if err := os.MkdirAll(e.tempDir, 0o755); err != nil {
		return nil, err
	}
	outDir, err := os.MkdirTemp(e.tempDir, "pdf-content-")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(outDir)

	if err := api.ExtractContentFile(path, outDir, nil, model.NewDefaultConfiguration()); err != nil {
		return nil, fmt.Errorf("extract content: %w", err)
	}

	base := strings.TrimSuffix(filepath.Base(path), ".pdf")
	pages := make([]string, pageCount)
	for n := 1; n <= pageCount; n++ {
		raw, err := os.ReadFile(filepath.Join(outDir, contentFileName(base, n)))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			e.logger.Warn("skipping unreadable page content", zap.Int("page", n), zap.Error(err))
			continue
		}
		pages[n-1] = DecodeContent(raw)
	}
	e.logger.Debug("pdf extracted", zap.String("path", path), zap.Int("pages", pageCount))
	return pages, nil
}

// contentFileName matches the name pdfcpu gives a dumped page content stream.
func contentFileName(base string, page int) string {
	return fmt.Sprintf("%s_Content_page_%d.txt", base, page)
}
