package sheets

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/garyjia/invoicebot/internal/models"
	"github.com/garyjia/invoicebot/internal/normalize"
)

// Column keys of the exported table, after header normalization
const (
	colID          = "id"
	colVendor      = "vendor"
	colAmount      = "amount"
	colCurrency    = "currency"
	colDateCreated = "datecreated"
	colDueDate     = "duedate"
	colStatus      = "status"
)

var headerAliases = map[string]string{
	"invoiceid":  colID,
	"vendorname": colVendor,
}

// ErrNoHeader is returned for an export without a header row
var ErrNoHeader = errors.New("csv export has no header row")

// Source reads the shared table through its CSV export
type Source struct {
	client *http.Client
	logger *zap.Logger
	now    func() time.Time
}

// NewSource creates a CSV source; a nil client uses http.DefaultClient
func NewSource(client *http.Client, logger *zap.Logger) *Source {
	if client == nil {
		client = http.DefaultClient
	}
	return &Source{
		client: client,
		logger: logger.Named("source"),
		now:    time.Now,
	}
}

// Fetch downloads and parses the export at url
func (s *Source) Fetch(ctx context.Context, url string) ([]models.Invoice, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch table: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch table: unexpected status %d", resp.StatusCode)
	}

	invoices, err := ParseInvoices(resp.Body, s.now())
	if err != nil {
		return nil, err
	}

	s.logger.Debug("Fetched invoices", zap.Int("count", len(invoices)))
	return invoices, nil
}

// ParseInvoices maps a CSV export to normalized invoices.
// Header names are case-insensitive; missing fields get reader defaults
// and the status is derived against today.
func ParseInvoices(r io.Reader, today time.Time) ([]models.Invoice, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrNoHeader
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		key := headerKey(name)
		if _, seen := columns[key]; !seen {
			columns[key] = i
		}
	}

	var invoices []models.Invoice
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse csv: %w", err)
		}
		if blank(record) {
			continue
		}

		cell := func(key string) string {
			i, ok := columns[key]
			if !ok || i >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[i])
		}
		invoices = append(invoices, buildInvoice(cell, today))
	}
	return invoices, nil
}

func buildInvoice(cell func(string) string, today time.Time) models.Invoice {
	inv := models.Invoice{
		ID:          cell(colID),
		Vendor:      cell(colVendor),
		Amount:      normalize.ParseAmount(cell(colAmount)),
		Currency:    normalize.Currency(cell(colCurrency), models.ConsumerDefaultCurrency),
		DateCreated: normalize.NormalizeDate(cell(colDateCreated)),
		DueDate:     normalize.NormalizeDate(cell(colDueDate)),
	}

	if inv.ID == "" {
		inv.ID = "UNK-" + uuid.NewString()[:4]
	}
	if inv.Vendor == "" {
		inv.Vendor = models.UnknownVendor
	}
	todayISO := today.Format(normalize.DateFormatISO.Layout())
	if inv.DateCreated == "" {
		inv.DateCreated = todayISO
	}
	if inv.DueDate == "" {
		inv.DueDate = todayISO
	}

	due, _ := normalize.ParseDate(inv.DueDate)
	inv.Status = models.DeriveStatus(due, today, models.ParseStatusMarker(cell(colStatus)))
	return inv
}

func headerKey(name string) string {
	key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
	key = strings.NewReplacer(" ", "", "_", "", "-", "").Replace(key)
	if alias, ok := headerAliases[key]; ok {
		return alias
	}
	return key
}

func blank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
