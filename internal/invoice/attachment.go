package invoice

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/garyjia/invoicebot/internal/models"
)

// Kind classifies a candidate invoice attachment
type Kind string

const (
	KindNone  Kind = ""
	KindPDF   Kind = "pdf"
	KindSheet Kind = "spreadsheet"
	KindCSV   Kind = "csv"
)

// ErrEmptyText is returned when an attachment yields no usable text
var ErrEmptyText = errors.New("attachment contains no text")

// Classify decides whether an attachment is a candidate invoice document
// by matching the declared media type or the filename suffix.
func Classify(contentType, filename string) Kind {
	mime := strings.ToLower(contentType)
	ext := strings.ToLower(filepath.Ext(filename))

	switch {
	case strings.Contains(mime, "pdf") || ext == ".pdf":
		return KindPDF
	case strings.Contains(mime, "excel") || strings.Contains(mime, "spreadsheetml") ||
		ext == ".xlsx" || ext == ".xls":
		return KindSheet
	case strings.Contains(mime, "csv") || ext == ".csv":
		return KindCSV
	}
	return KindNone
}

// IsCandidate reports whether an attachment with this media type and
// filename should be sent for extraction
func IsCandidate(mediaType, filename string) bool {
	return Classify(mediaType, filename) != KindNone
}

// PDFTextReader extracts the embedded text layer of a PDF
type PDFTextReader interface {
	Text(ctx context.Context, data []byte) (string, error)
}

// TextReader produces raw text from candidate attachments
type TextReader struct {
	pdf    PDFTextReader
	logger *zap.Logger
}

// NewTextReader creates a text reader using pdf for PDF documents
func NewTextReader(pdf PDFTextReader, logger *zap.Logger) *TextReader {
	return &TextReader{
		pdf:    pdf,
		logger: logger.Named("text"),
	}
}

// Read returns the raw text of a candidate attachment.
// PDFs go through the text layer (no OCR); OOXML workbooks are rendered as
// CSV; everything else is taken verbatim as UTF-8.
func (r *TextReader) Read(ctx context.Context, att models.Attachment) (string, error) {
	var (
		text string
		err  error
	)

	switch Classify(att.ContentType, att.Filename) {
	case KindNone:
		return "", fmt.Errorf("unsupported attachment %q (%s)", att.Filename, att.ContentType)
	case KindPDF:
		text, err = r.pdf.Text(ctx, att.Content)
		if err != nil {
			return "", fmt.Errorf("failed to read PDF %q: %w", att.Filename, err)
		}
	case KindSheet:
		text = r.workbookText(att)
	default:
		text = decodeUTF8(att.Content)
	}

	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyText
	}
	return text, nil
}

// workbookText renders OOXML workbooks as CSV; legacy .xls and anything
// excelize cannot open falls back to the verbatim bytes.
func (r *TextReader) workbookText(att models.Attachment) string {
	if !isZip(att.Content) {
		return decodeUTF8(att.Content)
	}

	text, err := WorkbookToCSV(att.Content)
	if err != nil {
		r.logger.Warn("Failed to render workbook, using raw bytes",
			zap.String("filename", att.Filename),
			zap.Error(err))
		return decodeUTF8(att.Content)
	}
	return text
}

// WorkbookToCSV renders every sheet of an XLSX workbook as CSV text,
// each sheet preceded by a "# <sheet name>" line.
func WorkbookToCSV(data []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return "", fmt.Errorf("failed to read sheet %q: %w", sheet, err)
		}
		if len(rows) == 0 {
			continue
		}

		fmt.Fprintf(&buf, "# %s\n", sheet)
		w := csv.NewWriter(&buf)
		if err := w.WriteAll(rows); err != nil {
			return "", fmt.Errorf("failed to render sheet %q: %w", sheet, err)
		}
	}
	return buf.String(), nil
}

func isZip(data []byte) bool {
	return len(data) >= 4 && bytes.Equal(data[:4], []byte("PK\x03\x04"))
}

// decodeUTF8 returns the bytes as text, replacing invalid sequences
func decodeUTF8(data []byte) string {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if utf8.Valid(data) {
		return string(data)
	}
	return strings.ToValidUTF8(string(data), "�")
}
