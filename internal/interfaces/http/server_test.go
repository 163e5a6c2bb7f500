package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/garyjia/invoicebot/internal/dashboard"
	"github.com/garyjia/invoicebot/internal/ingest"
	"github.com/garyjia/invoicebot/internal/models"
	"github.com/garyjia/invoicebot/internal/repository"
	"github.com/garyjia/invoicebot/pkg/database"
)

type fakeLedger struct {
	entries   []*models.LedgerEntry
	err       error
	lastLimit int
	lastSince time.Time
}

func (f *fakeLedger) Recent(ctx context.Context, limit int) ([]*models.LedgerEntry, error) {
	f.lastLimit = limit
	return f.entries, f.err
}

func (f *fakeLedger) CountByOutcome(ctx context.Context, since time.Time) (map[models.Outcome]int, error) {
	f.lastSince = since
	return map[models.Outcome]int{models.OutcomeAppended: len(f.entries)}, f.err
}

type fakeReporter struct {
	report *ingest.Report
}

func (f *fakeReporter) LastReport() *ingest.Report { return f.report }

type fakeFetcher struct {
	invoices []models.Invoice
	err      error
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) ([]models.Invoice, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]models.Invoice, len(f.invoices))
	copy(out, f.invoices)
	return out, nil
}

func do(t *testing.T, router http.Handler, method, path string, body interface{}, setup ...func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, fn := range setup {
		fn(req)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, data interface{}) Response {
	t.Helper()
	resp := Response{Data: data}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func newIngestServer(ledger *fakeLedger, reporter *fakeReporter) *Server {
	server := NewServer(DefaultServerConfig(), zap.NewNop())
	RegisterHealth(server.Router(), "ingestor", func() interface{} { return reporter.LastReport() })
	NewIngestHandlers(ledger, reporter, zap.NewNop()).Register(server.Router().Group("/api"))
	return server
}

func TestLivenessAndHealth(t *testing.T) {
	server := newIngestServer(&fakeLedger{}, &fakeReporter{report: &ingest.Report{Appended: 2}})

	w := do(t, server.Router(), http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, LivenessMessage, w.Body.String())
	assert.True(t, strings.HasPrefix(w.Header().Get("Content-Type"), "text/plain"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))

	w = do(t, server.Router(), http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var health struct {
		Status  string `json:"status"`
		Service string `json:"service"`
		Details struct {
			Appended int `json:"appended"`
		} `json:"details"`
	}
	resp := decode(t, w, &health)
	assert.True(t, resp.Success)
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "ingestor", health.Service)
	assert.Equal(t, 2, health.Details.Appended)
}

func TestIngestHandlers(t *testing.T) {
	ledger := &fakeLedger{entries: []*models.LedgerEntry{
		{ID: 2, Filename: "inv.pdf", Outcome: models.OutcomeAppended, InvoiceID: "77"},
	}}
	reporter := &fakeReporter{}
	server := newIngestServer(ledger, reporter)

	t.Run("list", func(t *testing.T) {
		var entries []models.LedgerEntry
		w := do(t, server.Router(), http.MethodGet, "/api/ingestions", nil)
		require.Equal(t, http.StatusOK, w.Code)

		decode(t, w, &entries)
		require.Len(t, entries, 1)
		assert.Equal(t, "77", entries[0].InvoiceID)
		assert.Equal(t, 50, ledger.lastLimit)

		do(t, server.Router(), http.MethodGet, "/api/ingestions?limit=5", nil)
		assert.Equal(t, 5, ledger.lastLimit)
	})

	t.Run("limit bounds", func(t *testing.T) {
		tests := []struct {
			query string
			want  int
		}{
			{"limit=500", 500},
			{"limit=501", 500},
			{"limit=100000", 500},
			{"limit=0", 50},
			{"limit=-3", 50},
		}
		for _, tt := range tests {
			w := do(t, server.Router(), http.MethodGet, "/api/ingestions?"+tt.query, nil)
			require.Equal(t, http.StatusOK, w.Code, tt.query)
			assert.Equal(t, tt.want, ledger.lastLimit, tt.query)
		}
	})

	t.Run("bad limit", func(t *testing.T) {
		w := do(t, server.Router(), http.MethodGet, "/api/ingestions?limit=abc", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("summary", func(t *testing.T) {
		var summary struct {
			Outcomes map[string]int `json:"outcomes"`
		}
		w := do(t, server.Router(), http.MethodGet, "/api/ingestions/summary?hours=1", nil)
		require.Equal(t, http.StatusOK, w.Code)
		decode(t, w, &summary)
		assert.Equal(t, 1, summary.Outcomes["appended"])
		assert.WithinDuration(t, time.Now().Add(-time.Hour), ledger.lastSince, time.Minute)
	})

	t.Run("summary window is capped", func(t *testing.T) {
		w := do(t, server.Router(), http.MethodGet, "/api/ingestions/summary?hours=9000000000000", nil)
		require.Equal(t, http.StatusOK, w.Code)

		assert.True(t, ledger.lastSince.Before(time.Now()), "window start lies in the past")
		assert.WithinDuration(t, time.Now().Add(-366*24*time.Hour), ledger.lastSince, time.Minute)
	})

	t.Run("last cycle", func(t *testing.T) {
		w := do(t, server.Router(), http.MethodGet, "/api/ingestions/last", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)

		reporter.report = &ingest.Report{Messages: 3}
		w = do(t, server.Router(), http.MethodGet, "/api/ingestions/last", nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("ledger failure", func(t *testing.T) {
		ledger.err = errors.New("disk I/O error")
		defer func() { ledger.err = nil }()

		w := do(t, server.Router(), http.MethodGet, "/api/ingestions", nil)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		resp := decode(t, w, nil)
		assert.False(t, resp.Success)
	})
}

func newDashboardServer(t *testing.T, fetcher *fakeFetcher, auth AuthConfig) (*Server, *repository.CompanyRepository) {
	t.Helper()

	logger := zap.NewNop()
	db, err := database.New(database.Config{Path: filepath.Join(t.TempDir(), "dash.db")}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.NewMigrator(db, logger).Run(context.Background()))

	companies := repository.NewCompanyRepository(db.DB, logger)
	formatter, err := dashboard.NewFormatter("en-US")
	require.NoError(t, err)

	svc := dashboard.NewService(fetcher, companies, formatter, dashboard.Config{
		DefaultCSVURL: "https://example.com/main.csv",
		Fallback:      dashboard.FallbackEmpty,
	}, logger)

	server := NewServer(DefaultServerConfig(), logger)
	RegisterHealth(server.Router(), "dashboard", nil)
	NewDashboardHandlers(svc, companies, logger).Register(server.Router(), auth)
	return server, companies
}

func tableFixture() []models.Invoice {
	return []models.Invoice{
		{ID: "77", Vendor: "Acme Ltd", Amount: 200, Currency: "EUR", DateCreated: "2024-01-01", DueDate: "2024-01-15", Status: models.StatusOverdue},
		{ID: "78", Vendor: "Globex", Amount: 50, Currency: "EUR", DateCreated: "2024-01-02", DueDate: "2099-01-01", Status: models.StatusPending},
	}
}

func TestDashboardHandlers_Invoices(t *testing.T) {
	server, _ := newDashboardServer(t, &fakeFetcher{invoices: tableFixture()}, AuthConfig{})

	t.Run("list with filter", func(t *testing.T) {
		var result dashboard.Result
		w := do(t, server.Router(), http.MethodGet, "/api/invoices?status=Overdue", nil)
		require.Equal(t, http.StatusOK, w.Code)

		resp := decode(t, w, &result)
		assert.True(t, resp.Success)
		assert.Equal(t, dashboard.SourceCSV, result.Source)
		require.Len(t, result.Invoices, 1)
		assert.Equal(t, "77", result.Invoices[0].ID)
		assert.Equal(t, 2, result.Stats.Total)
		assert.Equal(t, 1, result.Stats.Overdue)
	})

	t.Run("invalid sort", func(t *testing.T) {
		w := do(t, server.Router(), http.MethodGet, "/api/invoices?sort=color", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown company", func(t *testing.T) {
		w := do(t, server.Router(), http.MethodGet, "/api/invoices?company=nope", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("export", func(t *testing.T) {
		w := do(t, server.Router(), http.MethodGet, "/api/invoices/export?sort=amount&order=desc", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, xlsxContentType, w.Header().Get("Content-Type"))
		assert.Contains(t, w.Header().Get("Content-Disposition"), ".xlsx")

		book, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
		require.NoError(t, err)
		defer book.Close()
		rows, err := book.GetRows("Invoices")
		require.NoError(t, err)
		require.Len(t, rows, 3)
		assert.Equal(t, "77", rows[1][0])
	})
}

func TestDashboardHandlers_FetchFailureSurfacesError(t *testing.T) {
	server, _ := newDashboardServer(t, &fakeFetcher{err: errors.New("503")}, AuthConfig{})

	var result dashboard.Result
	w := do(t, server.Router(), http.MethodGet, "/api/invoices", nil)
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode(t, w, &result)
	assert.False(t, resp.Success)
	assert.Equal(t, dashboard.LoadErrorMessage, resp.Error)
	assert.Equal(t, dashboard.SourceEmpty, result.Source)
	assert.Empty(t, result.Invoices)
}

func TestDashboardHandlers_Companies(t *testing.T) {
	server, repo := newDashboardServer(t, &fakeFetcher{}, AuthConfig{})
	router := server.Router()

	var created models.Company
	w := do(t, router, http.MethodPost, "/api/companies", CompanyRequest{
		Name:           "Acme",
		CSVURL:         "https://docs.google.com/spreadsheets/d/abc/export?format=csv",
		ReceivingEmail: "ap@acme.example",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	decode(t, w, &created)
	require.NotEmpty(t, created.ID)

	var updated models.Company
	w = do(t, router, http.MethodPut, "/api/companies/"+created.ID, CompanyRequest{
		Name:   "Acme Ltd",
		CSVURL: "https://example.com/acme.csv",
	})
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &updated)
	assert.Equal(t, "Acme Ltd", updated.Name)

	var list []models.Company
	w = do(t, router, http.MethodGet, "/api/companies", nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &list)
	require.Len(t, list, 1)

	w = do(t, router, http.MethodDelete, "/api/companies/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	count, err := repo.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)

	w = do(t, router, http.MethodDelete, "/api/companies/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = do(t, router, http.MethodPut, "/api/companies/missing", CompanyRequest{Name: "x", CSVURL: "https://example.com/x.csv"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDashboardHandlers_CompanyValidation(t *testing.T) {
	server, _ := newDashboardServer(t, &fakeFetcher{}, AuthConfig{})

	tests := []struct {
		name string
		body CompanyRequest
	}{
		{"missing name", CompanyRequest{CSVURL: "https://example.com/a.csv"}},
		{"missing url", CompanyRequest{Name: "Acme"}},
		{"relative url", CompanyRequest{Name: "Acme", CSVURL: "/local/file.csv"}},
		{"bad email", CompanyRequest{Name: "Acme", CSVURL: "https://example.com/a.csv", ReceivingEmail: "not-an-email"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, server.Router(), http.MethodPost, "/api/companies", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestDashboardHandlers_BasicAuth(t *testing.T) {
	server, _ := newDashboardServer(t, &fakeFetcher{invoices: tableFixture()}, AuthConfig{Username: "admin", Password: "s3cret"})

	w := do(t, server.Router(), http.MethodGet, "/api/invoices", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(t, server.Router(), http.MethodGet, "/api/invoices", nil, func(r *http.Request) {
		r.SetBasicAuth("admin", "wrong")
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(t, server.Router(), http.MethodGet, "/api/invoices", nil, func(r *http.Request) {
		r.SetBasicAuth("admin", "s3cret")
	})
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, server.Router(), http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code, "health stays public")
}

func TestDashboardHandlers_BcryptPassword(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)

	server, _ := newDashboardServer(t, &fakeFetcher{}, AuthConfig{Username: "admin", Password: string(hash)})

	w := do(t, server.Router(), http.MethodGet, "/api/companies", nil, func(r *http.Request) {
		r.SetBasicAuth("admin", "s3cret")
	})
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, server.Router(), http.MethodGet, "/api/companies", nil, func(r *http.Request) {
		r.SetBasicAuth("admin", string(hash))
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Header().Get("WWW-Authenticate"), "Basic")
}

func TestServer_RateLimit(t *testing.T) {
	config := DefaultServerConfig()
	config.RateLimit = 2

	server := NewServer(config, zap.NewNop())
	RegisterHealth(server.Router(), "ingestor", nil)
	handler := server.Handler()

	for i := 0; i < 2; i++ {
		w := do(t, handler, http.MethodGet, "/health", nil)
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := do(t, handler, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	w = do(t, handler, http.MethodGet, "/health", nil, func(r *http.Request) {
		r.RemoteAddr = "198.51.100.7:4321"
	})
	assert.Equal(t, http.StatusOK, w.Code, "limit is per client IP")

	unlimited := NewServer(DefaultServerConfig(), zap.NewNop())
	assert.Equal(t, http.Handler(unlimited.Router()), unlimited.Handler())
}
