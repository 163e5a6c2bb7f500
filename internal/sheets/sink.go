package sheets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/garyjia/invoicebot/internal/models"
)

const (
	valueInputOption = "USER_ENTERED"
	insertDataOption = "INSERT_ROWS"
)

// Appender appends invoice rows to the shared table
type Appender interface {
	Append(ctx context.Context, rec models.InvoiceRecord) error
}

// SinkConfig identifies the target sheet and the service-account credentials
type SinkConfig struct {
	SpreadsheetID   string
	Range           string
	CredentialsFile string
	CredentialsJSON string
}

// Sink appends rows through the Sheets v4 values.append call
type Sink struct {
	svc           *sheets.Service
	spreadsheetID string
	rng           string
	logger        *zap.Logger
}

// NewSink authenticates with a service account and creates the sink
func NewSink(ctx context.Context, cfg SinkConfig, logger *zap.Logger) (*Sink, error) {
	creds, err := loadCredentials(cfg)
	if err != nil {
		return nil, err
	}

	jwt, err := google.JWTConfigFromJSON(creds, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("failed to parse credentials: %w", err)
	}

	return NewSinkWithOptions(ctx, cfg, logger, option.WithHTTPClient(jwt.Client(ctx)))
}

// NewSinkWithOptions creates the sink with explicit client options
func NewSinkWithOptions(ctx context.Context, cfg SinkConfig, logger *zap.Logger, opts ...option.ClientOption) (*Sink, error) {
	spreadsheetID, err := ParseSpreadsheetID(cfg.SpreadsheetID)
	if err != nil {
		return nil, err
	}
	if cfg.Range == "" {
		return nil, errors.New("sheet range is required")
	}

	svc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}

	return &Sink{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		rng:           cfg.Range,
		logger:        logger.Named("sheets"),
	}, nil
}

// Append writes one row below the last row of the range.
// Only columns A..F are written; the status column stays empty.
func (s *Sink) Append(ctx context.Context, rec models.InvoiceRecord) error {
	values := &sheets.ValueRange{
		Values: [][]interface{}{rec.Row()},
	}

	resp, err := s.svc.Spreadsheets.Values.Append(s.spreadsheetID, s.rng, values).
		ValueInputOption(valueInputOption).
		InsertDataOption(insertDataOption).
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to append row to %s: %w", s.rng, err)
	}

	fields := []zap.Field{
		zap.String("invoice_id", rec.InvoiceID),
		zap.String("vendor", rec.VendorName),
	}
	if resp.Updates != nil {
		fields = append(fields, zap.String("updated_range", resp.Updates.UpdatedRange))
	}
	s.logger.Info("Row appended", fields...)
	return nil
}

func loadCredentials(cfg SinkConfig) ([]byte, error) {
	if cfg.CredentialsJSON != "" {
		return []byte(cfg.CredentialsJSON), nil
	}
	if cfg.CredentialsFile == "" {
		return nil, errors.New("no service account credentials configured")
	}

	creds, err := os.ReadFile(cfg.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials file: %w", err)
	}
	return creds, nil
}

var spreadsheetURLPattern = regexp.MustCompile(`/spreadsheets/d/([a-zA-Z0-9-_]+)`)

// ParseSpreadsheetID accepts a bare spreadsheet ID or a Google Sheets URL
func ParseSpreadsheetID(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("spreadsheet ID is required")
	}
	if !strings.Contains(raw, "/") {
		return raw, nil
	}

	matches := spreadsheetURLPattern.FindStringSubmatch(raw)
	if len(matches) < 2 {
		return "", fmt.Errorf("invalid Google Sheets URL %q", raw)
	}
	return matches[1], nil
}
