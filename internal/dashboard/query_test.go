package dashboard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/invoicebot/internal/models"
)

func fixture() []models.Invoice {
	return []models.Invoice{
		{ID: "INV-3", Vendor: "Globex", Amount: 50, Currency: "EUR", DateCreated: "2024-01-03", DueDate: "2024-02-20", Status: models.StatusPending},
		{ID: "INV-1", Vendor: "Acme Ltd", Amount: 200, Currency: "EUR", DateCreated: "2024-01-01", DueDate: "2024-01-15", Status: models.StatusOverdue},
		{ID: "ACME-7", Vendor: "Initech", Amount: 1250.5, Currency: "USD", DateCreated: "2024-01-02", DueDate: "2024-03-01", Status: models.StatusPaid},
	}
}

func ids(invoices []models.Invoice) []string {
	out := make([]string, len(invoices))
	for i, inv := range invoices {
		out[i] = inv.ID
	}
	return out
}

func TestParseQuery(t *testing.T) {
	q, err := ParseQuery("", "", "", "")
	require.NoError(t, err)
	assert.Equal(t, DefaultQuery(), q)

	q, err = ParseQuery("  acme ", "Overdue", "AMOUNT", "desc")
	require.NoError(t, err)
	assert.Equal(t, Query{Search: "acme", Status: models.StatusOverdue, SortField: SortAmount, Descending: true}, q)

	q, err = ParseQuery("", "All", "dateCreated", "asc")
	require.NoError(t, err)
	assert.Empty(t, q.Status)
	assert.Equal(t, SortDateCreated, q.SortField)

	_, err = ParseQuery("", "cancelled", "", "")
	assert.Error(t, err)
	_, err = ParseQuery("", "", "total", "")
	assert.Error(t, err)
	_, err = ParseQuery("", "", "", "sideways")
	assert.Error(t, err)
}

func TestApply(t *testing.T) {
	tests := []struct {
		name  string
		query Query
		want  []string
	}{
		{"default due date ascending", DefaultQuery(), []string{"INV-1", "INV-3", "ACME-7"}},
		{"search matches vendor or id", Query{Search: "ACME"}, []string{"INV-1", "ACME-7"}},
		{"status filter", Query{Status: models.StatusPaid}, []string{"ACME-7"}},
		{"amount descending", Query{SortField: SortAmount, Descending: true}, []string{"ACME-7", "INV-1", "INV-3"}},
		{"vendor ascending", Query{SortField: SortVendor}, []string{"INV-1", "INV-3", "ACME-7"}},
		{"status ascending", Query{SortField: SortStatus}, []string{"INV-1", "ACME-7", "INV-3"}},
		{"no match", Query{Search: "umbrella"}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := fixture()
			got := Apply(input, tt.query)
			assert.Equal(t, tt.want, ids(got))
			assert.Equal(t, "INV-3", input[0].ID, "input order is preserved")
		})
	}
}

func TestComputeStats(t *testing.T) {
	stats := ComputeStats(fixture())

	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 1, stats.Overdue)
	assert.InDelta(t, 1500.5, stats.TotalAmount, 1e-9)
	assert.InDelta(t, 250.0, stats.ByCurrency["EUR"], 1e-9)
	assert.InDelta(t, 1250.5, stats.ByCurrency["USD"], 1e-9)

	empty := ComputeStats(nil)
	assert.Zero(t, empty.Total)
	assert.Zero(t, empty.TotalAmount)
}
