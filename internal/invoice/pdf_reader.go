package invoice

import (
	"context"
	"fmt"
	"strings"

	"github.com/gen2brain/go-fitz"
	"go.uber.org/zap"
)

// FitzPDFReader reads the text layer of PDFs through MuPDF
type FitzPDFReader struct {
	maxPages int
	logger   *zap.Logger
}

// NewFitzPDFReader creates a PDF reader; maxPages <= 0 reads every page
func NewFitzPDFReader(maxPages int, logger *zap.Logger) *FitzPDFReader {
	return &FitzPDFReader{
		maxPages: maxPages,
		logger:   logger.Named("pdf"),
	}
}

// Text returns the text of every page joined by newlines.
// Image-only PDFs produce empty text; there is no OCR fallback.
func (r *FitzPDFReader) Text(ctx context.Context, data []byte) (string, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return "", fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()

	pageCount := doc.NumPage()
	if r.maxPages > 0 && pageCount > r.maxPages {
		pageCount = r.maxPages
	}

	pages := make([]string, 0, pageCount)
	for n := 0; n < pageCount; n++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		text, err := doc.Text(n)
		if err != nil {
			r.logger.Warn("Failed to extract page text", zap.Int("page", n), zap.Error(err))
			continue
		}
		pages = append(pages, strings.TrimSpace(text))
	}

	r.logger.Debug("Extracted PDF text",
		zap.Int("pages", pageCount),
		zap.Int("chars", len(strings.Join(pages, ""))))

	return strings.Join(pages, "\n"), nil
}
