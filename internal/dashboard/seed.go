package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/garyjia/invoicebot/internal/models"
)

// ErrNoCompanies is returned by SeedCompanies when nothing could be seeded
var ErrNoCompanies = errors.New("no companies configured")

// CompanySeeder stores the initial company list
type CompanySeeder interface {
	Seed(ctx context.Context, companies []models.Company) (int, error)
}

// MainCompanyID and MainCompanyName describe the company created from a
// single table URL
const (
	MainCompanyID   = "main-company"
	MainCompanyName = "Main Company"
)

// ParseCompanies reads a JSON array of {id?, name, csvUrl, receivingEmail?}
func ParseCompanies(raw string) ([]models.Company, error) {
	var companies []models.Company
	if err := json.Unmarshal([]byte(raw), &companies); err != nil {
		return nil, fmt.Errorf("failed to parse companies JSON: %w", err)
	}
	return companies, nil
}

// SeedCompanies fills an empty company store from companiesJSON, or from a
// single table URL when the JSON is empty or invalid
func SeedCompanies(ctx context.Context, store CompanySeeder, companiesJSON, csvURL string) (int, error) {
	var companies []models.Company
	var parseErr error

	if strings.TrimSpace(companiesJSON) != "" {
		companies, parseErr = ParseCompanies(companiesJSON)
	}
	if len(companies) == 0 && csvURL != "" {
		companies = []models.Company{{ID: MainCompanyID, Name: MainCompanyName, CSVURL: csvURL}}
	}
	if len(companies) == 0 {
		if parseErr != nil {
			return 0, parseErr
		}
		return 0, ErrNoCompanies
	}

	n, err := store.Seed(ctx, companies)
	if err != nil {
		return 0, err
	}
	return n, parseErr
}
