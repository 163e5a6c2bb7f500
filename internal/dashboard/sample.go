package dashboard

import (
	"time"

	"github.com/garyjia/invoicebot/internal/models"
	"github.com/garyjia/invoicebot/internal/normalize"
)

type sampleRow struct {
	id      string
	vendor  string
	amount  float64
	created int // days relative to today
	due     int
	marker  models.StatusMarker
}

var sampleRows = []sampleRow{
	{"INV-2023-001", "Acme Corp", 12500.00, -40, -26, models.MarkerPaid},
	{"INV-2023-002", "Global Tech Supplies", 8400.50, -4, 10, models.MarkerNone},
	{"INV-2023-003", "Creative Media Ltd", 3200.00, -30, -15, models.MarkerNone},
	{"INV-2023-004", "Office Essentials", 450.75, -2, 12, models.MarkerNone},
	{"INV-2023-005", "ServerHost Inc", 2100.00, -70, -56, models.MarkerPaid},
}

// SampleInvoices returns demo data dated around today so that every status
// is represented
func SampleInvoices(today time.Time) []models.Invoice {
	layout := normalize.DateFormatISO.Layout()

	invoices := make([]models.Invoice, 0, len(sampleRows))
	for _, row := range sampleRows {
		due := today.AddDate(0, 0, row.due)
		invoices = append(invoices, models.Invoice{
			ID:          row.id,
			Vendor:      row.vendor,
			Amount:      row.amount,
			Currency:    models.ConsumerDefaultCurrency,
			DateCreated: today.AddDate(0, 0, row.created).Format(layout),
			DueDate:     due.Format(layout),
			Status:      models.DeriveStatus(due, today, row.marker),
		})
	}
	return invoices
}
