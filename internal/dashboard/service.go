package dashboard

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/invoicebot/internal/models"
)

// Data sources of a loaded table
const (
	SourceCSV    = "csv"
	SourceSample = "sample"
	SourceEmpty  = "empty"
)

// Fallback behaviours when the table cannot be fetched
const (
	FallbackEmpty  = "empty"
	FallbackSample = "sample"
)

// LoadErrorMessage is shown to readers when the table cannot be fetched
const LoadErrorMessage = "failed to load invoices, check the Google Sheets connection"

// Fetcher downloads and parses a table export
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]models.Invoice, error)
}

// CompanyLookup resolves a company's table URL
type CompanyLookup interface {
	GetByID(ctx context.Context, id string) (*models.Company, error)
}

// Config tunes the dashboard service
type Config struct {
	DefaultCSVURL string
	Fallback      string
	FetchTimeout  time.Duration
	// StatsCurrency is used for the combined total
	StatsCurrency string
}

// Result is one rendered invoice table
type Result struct {
	Invoices []models.Invoice `json:"invoices"`
	Stats    Stats            `json:"stats"`
	Source   string           `json:"source"`
	Error    string           `json:"error,omitempty"`
}

// Service loads, normalizes and queries the invoice table
type Service struct {
	fetcher   Fetcher
	companies CompanyLookup
	formatter *Formatter
	cfg       Config
	logger    *zap.Logger
	now       func() time.Time
}

// NewService creates the dashboard service. companies may be nil.
func NewService(fetcher Fetcher, companies CompanyLookup, formatter *Formatter, cfg Config, logger *zap.Logger) *Service {
	if cfg.StatsCurrency == "" {
		cfg.StatsCurrency = models.ConsumerDefaultCurrency
	}
	return &Service{
		fetcher:   fetcher,
		companies: companies,
		formatter: formatter,
		cfg:       cfg,
		logger:    logger.Named("dashboard"),
		now:       time.Now,
	}
}

// Load fetches the table of a company, or the default table when
// companyID is empty. Without any URL the sample data is shown. Fetch
// failures are reported in Result.Error, never as an error return; the
// error return is reserved for an unknown company.
func (s *Service) Load(ctx context.Context, companyID string) (*Result, error) {
	url := s.cfg.DefaultCSVURL
	if companyID != "" && s.companies != nil {
		company, err := s.companies.GetByID(ctx, companyID)
		if err != nil {
			return nil, err
		}
		url = company.CSVURL
	}

	if url == "" {
		s.logger.Debug("No table URL configured, using sample data")
		return s.result(SampleInvoices(s.now()), SourceSample, ""), nil
	}

	fetchCtx := ctx
	if s.cfg.FetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, s.cfg.FetchTimeout)
		defer cancel()
	}

	invoices, err := s.fetcher.Fetch(fetchCtx, url)
	if err != nil {
		s.logger.Error("Failed to fetch invoices", zap.Error(err))
		if s.cfg.Fallback == FallbackSample {
			return s.result(SampleInvoices(s.now()), SourceSample, LoadErrorMessage), nil
		}
		return s.result(nil, SourceEmpty, LoadErrorMessage), nil
	}
	return s.result(invoices, SourceCSV, ""), nil
}

// List loads a table and applies the query. Stats describe the whole
// table, not just the matching rows.
func (s *Service) List(ctx context.Context, companyID string, q Query) (*Result, error) {
	res, err := s.Load(ctx, companyID)
	if err != nil {
		return nil, err
	}
	res.Invoices = Apply(res.Invoices, q)
	return res, nil
}

func (s *Service) result(invoices []models.Invoice, source, errMsg string) *Result {
	if invoices == nil {
		invoices = []models.Invoice{}
	}
	stats := ComputeStats(invoices)
	if s.formatter != nil {
		s.formatter.Decorate(invoices)
		stats.FormattedTotal = s.formatter.Whole(stats.TotalAmount, s.cfg.StatsCurrency)
	}
	return &Result{
		Invoices: invoices,
		Stats:    stats,
		Source:   source,
		Error:    errMsg,
	}
}
