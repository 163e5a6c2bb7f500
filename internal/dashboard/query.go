package dashboard

import (
	"fmt"
	"sort"
	"strings"

	"github.com/garyjia/invoicebot/internal/models"
)

// SortField names a sortable invoice column
type SortField string

const (
	SortID          SortField = "id"
	SortVendor      SortField = "vendor"
	SortAmount      SortField = "amount"
	SortCurrency    SortField = "currency"
	SortDateCreated SortField = "dateCreated"
	SortDueDate     SortField = "dueDate"
	SortStatus      SortField = "status"
)

var sortFields = map[string]SortField{
	"id":          SortID,
	"vendor":      SortVendor,
	"amount":      SortAmount,
	"currency":    SortCurrency,
	"datecreated": SortDateCreated,
	"duedate":     SortDueDate,
	"status":      SortStatus,
}

// Query filters and orders the invoice table
type Query struct {
	Search     string
	Status     models.Status // empty means all
	SortField  SortField
	Descending bool
}

// DefaultQuery shows everything ordered by due date ascending
func DefaultQuery() Query {
	return Query{SortField: SortDueDate}
}

// ParseQuery builds a query from request parameters
func ParseQuery(search, status, sortBy, order string) (Query, error) {
	q := DefaultQuery()
	q.Search = strings.TrimSpace(search)

	if status != "" && !strings.EqualFold(status, "all") {
		st, ok := models.ParseStatusFilter(status)
		if !ok {
			return q, fmt.Errorf("unknown status filter %q", status)
		}
		q.Status = st
	}

	if sortBy != "" {
		field, ok := sortFields[strings.ToLower(sortBy)]
		if !ok {
			return q, fmt.Errorf("unknown sort field %q", sortBy)
		}
		q.SortField = field
	}

	switch strings.ToLower(order) {
	case "", "asc":
	case "desc":
		q.Descending = true
	default:
		return q, fmt.Errorf("unknown sort order %q", order)
	}
	return q, nil
}

// Apply returns the matching invoices in query order; the input is not modified
func Apply(invoices []models.Invoice, q Query) []models.Invoice {
	needle := strings.ToLower(q.Search)

	out := make([]models.Invoice, 0, len(invoices))
	for _, inv := range invoices {
		if needle != "" &&
			!strings.Contains(strings.ToLower(inv.Vendor), needle) &&
			!strings.Contains(strings.ToLower(inv.ID), needle) {
			continue
		}
		if q.Status != "" && inv.Status != q.Status {
			continue
		}
		out = append(out, inv)
	}

	field := q.SortField
	if field == "" {
		field = SortDueDate
	}
	sort.SliceStable(out, func(i, j int) bool {
		c := compare(out[i], out[j], field)
		if q.Descending {
			return c > 0
		}
		return c < 0
	})
	return out
}

func compare(a, b models.Invoice, field SortField) int {
	switch field {
	case SortAmount:
		switch {
		case a.Amount < b.Amount:
			return -1
		case a.Amount > b.Amount:
			return 1
		}
		return 0
	case SortID:
		return strings.Compare(a.ID, b.ID)
	case SortVendor:
		return strings.Compare(a.Vendor, b.Vendor)
	case SortCurrency:
		return strings.Compare(a.Currency, b.Currency)
	case SortDateCreated:
		return strings.Compare(a.DateCreated, b.DateCreated)
	case SortStatus:
		return strings.Compare(string(a.Status), string(b.Status))
	default:
		return strings.Compare(a.DueDate, b.DueDate)
	}
}

// Stats summarizes the loaded table
type Stats struct {
	Total          int                `json:"total"`
	Overdue        int                `json:"overdue"`
	TotalAmount    float64            `json:"totalAmount"`
	FormattedTotal string             `json:"formattedTotal,omitempty"`
	ByCurrency     map[string]float64 `json:"byCurrency"`
}

// ComputeStats counts invoices and overdue ones and sums amounts.
// TotalAmount adds amounts regardless of currency; ByCurrency splits them.
func ComputeStats(invoices []models.Invoice) Stats {
	stats := Stats{
		Total:      len(invoices),
		ByCurrency: make(map[string]float64),
	}
	for _, inv := range invoices {
		if inv.Status == models.StatusOverdue {
			stats.Overdue++
		}
		stats.TotalAmount += inv.Amount
		stats.ByCurrency[inv.Currency] += inv.Amount
	}
	return stats
}
