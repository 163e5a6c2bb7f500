package invoice

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/garyjia/invoicebot/internal/models"
)

// MockPDFReader mocks the PDFTextReader interface
type MockPDFReader struct {
	mock.Mock
}

func (m *MockPDFReader) Text(ctx context.Context, data []byte) (string, error) {
	args := m.Called(ctx, data)
	return args.String(0), args.Error(1)
}

func TestIsCandidate(t *testing.T) {
	tests := []struct {
		mediaType string
		filename  string
		want      bool
	}{
		{"application/pdf", "scan", true},
		{"application/octet-stream", "INVOICE.PDF", true},
		{"text/csv", "export", true},
		{"application/octet-stream", "march.csv", true},
		{"application/vnd.ms-excel", "old", true},
		{"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", "book", true},
		{"application/octet-stream", "book.xlsx", true},
		{"application/octet-stream", "book.xls", true},
		{"image/png", "logo.png", false},
		{"text/plain", "notes.txt", false},
		{"application/msword", "letter.doc", false},
	}

	for _, tt := range tests {
		t.Run(tt.mediaType+"/"+tt.filename, func(t *testing.T) {
			assert.Equal(t, tt.want, IsCandidate(tt.mediaType, tt.filename))
		})
	}
}

func TestTextReader_Read(t *testing.T) {
	ctx := context.Background()

	t.Run("pdf uses text layer", func(t *testing.T) {
		pdf := new(MockPDFReader)
		pdf.On("Text", mock.Anything, []byte("%PDF-1.4")).Return("Invoice 77\nAcme Ltd", nil).Once()

		reader := NewTextReader(pdf, zap.NewNop())
		text, err := reader.Read(ctx, models.Attachment{
			Filename: "inv.pdf", ContentType: "application/pdf", Content: []byte("%PDF-1.4"),
		})

		require.NoError(t, err)
		assert.Equal(t, "Invoice 77\nAcme Ltd", text)
		pdf.AssertExpectations(t)
	})

	t.Run("pdf failure", func(t *testing.T) {
		pdf := new(MockPDFReader)
		pdf.On("Text", mock.Anything, mock.Anything).Return("", errors.New("broken xref")).Once()

		reader := NewTextReader(pdf, zap.NewNop())
		_, err := reader.Read(ctx, models.Attachment{Filename: "inv.pdf", Content: []byte("x")})

		assert.ErrorContains(t, err, "broken xref")
	})

	t.Run("image-only pdf has no text", func(t *testing.T) {
		pdf := new(MockPDFReader)
		pdf.On("Text", mock.Anything, mock.Anything).Return("  \n ", nil).Once()

		reader := NewTextReader(pdf, zap.NewNop())
		_, err := reader.Read(ctx, models.Attachment{Filename: "scan.pdf", Content: []byte("x")})

		assert.ErrorIs(t, err, ErrEmptyText)
	})

	t.Run("csv verbatim without bom", func(t *testing.T) {
		reader := NewTextReader(new(MockPDFReader), zap.NewNop())
		text, err := reader.Read(ctx, models.Attachment{
			Filename: "inv.csv", ContentType: "text/csv", Content: []byte("\xef\xbb\xbfid,vendor\n77,Acme Ltd\n"),
		})

		require.NoError(t, err)
		assert.Equal(t, "id,vendor\n77,Acme Ltd\n", text)
	})

	t.Run("legacy xls falls back to raw bytes", func(t *testing.T) {
		reader := NewTextReader(new(MockPDFReader), zap.NewNop())
		text, err := reader.Read(ctx, models.Attachment{Filename: "old.xls", Content: []byte("Invoice 12")})

		require.NoError(t, err)
		assert.Equal(t, "Invoice 12", text)
	})

	t.Run("xlsx rendered as csv", func(t *testing.T) {
		book := excelize.NewFile()
		defer book.Close()
		require.NoError(t, book.SetSheetRow("Sheet1", "A1", &[]interface{}{"id", "vendor", "amount"}))
		require.NoError(t, book.SetSheetRow("Sheet1", "A2", &[]interface{}{"77", "Acme, Ltd", "200"}))

		var buf bytes.Buffer
		require.NoError(t, book.Write(&buf))

		reader := NewTextReader(new(MockPDFReader), zap.NewNop())
		text, err := reader.Read(ctx, models.Attachment{Filename: "inv.xlsx", Content: buf.Bytes()})

		require.NoError(t, err)
		assert.Equal(t, "# Sheet1\nid,vendor,amount\n77,\"Acme, Ltd\",200\n", text)
	})

	t.Run("non candidate rejected", func(t *testing.T) {
		reader := NewTextReader(new(MockPDFReader), zap.NewNop())
		_, err := reader.Read(ctx, models.Attachment{Filename: "logo.png", ContentType: "image/png"})

		assert.Error(t, err)
	})
}
