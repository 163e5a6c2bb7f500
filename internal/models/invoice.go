package models

import (
	"strings"
	"time"
)

// Fallback values applied when the extraction service leaves a field empty
const (
	UnknownVendor           = "Unknown Vendor"
	ProducerDefaultCurrency = "EUR"
	ConsumerDefaultCurrency = "USD"
	AutoInvoiceIDPrefix     = "Auto-"
)

// InvoiceRecord is the six-field row appended to the shared table.
// Status is intentionally absent: it is derived by readers, see DeriveStatus.
type InvoiceRecord struct {
	InvoiceID   string  `json:"invoiceId"`
	VendorName  string  `json:"vendorName"`
	Amount      float64 `json:"amount"`
	Currency    string  `json:"currency"`
	DateCreated string  `json:"dateCreated"`
	DueDate     string  `json:"dueDate"`
}

// Row returns the record in table column order A..F
func (r InvoiceRecord) Row() []interface{} {
	return []interface{}{
		r.InvoiceID,   // A: ID
		r.VendorName,  // B: Vendor
		r.Amount,      // C: Amount
		r.Currency,    // D: Currency
		r.DateCreated, // E: DateCreated
		r.DueDate,     // F: DueDate
	}
}

// Status of an invoice as shown to readers of the table
type Status string

const (
	StatusPending Status = "Pending"
	StatusPaid    Status = "Paid"
	StatusOverdue Status = "Overdue"
)

// ParseStatusFilter maps a user-supplied filter to a status.
// "All" and empty input return ok=false meaning no filtering.
func ParseStatusFilter(raw string) (Status, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "paid":
		return StatusPaid, true
	case "pending":
		return StatusPending, true
	case "overdue":
		return StatusOverdue, true
	}
	return "", false
}

// StatusMarker is what a manually maintained status cell says about an invoice
type StatusMarker int

const (
	MarkerNone StatusMarker = iota
	MarkerPaid
	MarkerOverdue
)

// ParseStatusMarker reads a status cell; English and Russian spellings are accepted
func ParseStatusMarker(raw string) StatusMarker {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "paid", "оплачен":
		return MarkerPaid
	case "overdue", "просрочен":
		return MarkerOverdue
	}
	return MarkerNone
}

// DeriveStatus is the single status rule shared by every reader:
// a paid marker wins, otherwise an invoice is overdue once today is past
// its due date (compared as calendar days), otherwise pending.
// A zero due date never becomes overdue.
func DeriveStatus(due, today time.Time, marker StatusMarker) Status {
	if marker == MarkerPaid {
		return StatusPaid
	}
	if !due.IsZero() && calendarDay(today).After(calendarDay(due)) {
		return StatusOverdue
	}
	if marker == MarkerOverdue {
		return StatusOverdue
	}
	return StatusPending
}

func calendarDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Invoice is a typed, normalized row as read back from the table source
type Invoice struct {
	ID              string  `json:"id"`
	Vendor          string  `json:"vendor"`
	Amount          float64 `json:"amount"`
	Currency        string  `json:"currency"`
	DateCreated     string  `json:"dateCreated"`
	DueDate         string  `json:"dueDate"`
	Status          Status  `json:"status"`
	FormattedAmount string  `json:"formattedAmount,omitempty"`
}
