package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/garyjia/invoicebot/internal/models"
)

var (
	// ErrCompanyNotFound is returned when no company has the requested ID
	ErrCompanyNotFound = errors.New("company not found")
	// ErrInvalidCompany is returned when name or csvUrl is missing
	ErrInvalidCompany = errors.New("company name and csvUrl are required")
)

// execer is satisfied by both *sql.DB and *sql.Tx
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// CompanyRepository handles company database operations
type CompanyRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewCompanyRepository creates a new company repository
func NewCompanyRepository(db *sql.DB, logger *zap.Logger) *CompanyRepository {
	return &CompanyRepository{
		db:     db,
		logger: logger,
	}
}

func validateCompany(c *models.Company) error {
	c.Name = strings.TrimSpace(c.Name)
	c.CSVURL = strings.TrimSpace(c.CSVURL)
	c.ReceivingEmail = strings.TrimSpace(c.ReceivingEmail)
	if c.Name == "" || c.CSVURL == "" {
		return ErrInvalidCompany
	}
	return nil
}

// Create inserts a company, assigning an ID when empty
func (r *CompanyRepository) Create(ctx context.Context, company *models.Company) error {
	return r.create(ctx, r.db, company)
}

func (r *CompanyRepository) create(ctx context.Context, exec execer, company *models.Company) error {
	if err := validateCompany(company); err != nil {
		return err
	}

	if company.ID == "" {
		company.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	company.CreatedAt = now
	company.UpdatedAt = now

	query := `
		INSERT INTO companies (id, name, csv_url, receiving_email, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := exec.ExecContext(ctx, query,
		company.ID,
		company.Name,
		company.CSVURL,
		company.ReceivingEmail,
		company.CreatedAt,
		company.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create company", zap.String("name", company.Name), zap.Error(err))
		return fmt.Errorf("failed to create company: %w", err)
	}
	return nil
}

// Update changes name, csvUrl and receiving email
func (r *CompanyRepository) Update(ctx context.Context, company *models.Company) error {
	if err := validateCompany(company); err != nil {
		return err
	}
	company.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE companies
		SET name = ?, csv_url = ?, receiving_email = ?, updated_at = ?
		WHERE id = ?
	`
	result, err := r.db.ExecContext(ctx, query,
		company.Name,
		company.CSVURL,
		company.ReceivingEmail,
		company.UpdatedAt,
		company.ID,
	)
	if err != nil {
		r.logger.Error("Failed to update company", zap.String("id", company.ID), zap.Error(err))
		return fmt.Errorf("failed to update company: %w", err)
	}
	return requireAffected(result)
}

// Delete removes a company
func (r *CompanyRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM companies WHERE id = ?`, id)
	if err != nil {
		r.logger.Error("Failed to delete company", zap.String("id", id), zap.Error(err))
		return fmt.Errorf("failed to delete company: %w", err)
	}
	return requireAffected(result)
}

// GetByID retrieves a company
func (r *CompanyRepository) GetByID(ctx context.Context, id string) (*models.Company, error) {
	query := `
		SELECT id, name, csv_url, receiving_email, created_at, updated_at
		FROM companies
		WHERE id = ?
	`

	var company models.Company
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&company.ID,
		&company.Name,
		&company.CSVURL,
		&company.ReceivingEmail,
		&company.CreatedAt,
		&company.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCompanyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get company: %w", err)
	}
	return &company, nil
}

// List returns every company ordered by name
func (r *CompanyRepository) List(ctx context.Context) ([]*models.Company, error) {
	query := `
		SELECT id, name, csv_url, receiving_email, created_at, updated_at
		FROM companies
		ORDER BY name COLLATE NOCASE, created_at
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		r.logger.Error("Failed to list companies", zap.Error(err))
		return nil, fmt.Errorf("failed to list companies: %w", err)
	}
	defer rows.Close()

	companies := make([]*models.Company, 0)
	for rows.Next() {
		var company models.Company
		err := rows.Scan(
			&company.ID,
			&company.Name,
			&company.CSVURL,
			&company.ReceivingEmail,
			&company.CreatedAt,
			&company.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan company: %w", err)
		}
		companies = append(companies, &company)
	}

	return companies, rows.Err()
}

// Count returns the number of stored companies
func (r *CompanyRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM companies`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count companies: %w", err)
	}
	return count, nil
}

// Seed inserts companies only when the store is empty and returns how many
// were inserted. Invalid entries are skipped.
func (r *CompanyRepository) Seed(ctx context.Context, companies []models.Company) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var count int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM companies`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count companies: %w", err)
	}
	if count > 0 {
		return 0, nil
	}

	inserted := 0
	for i := range companies {
		company := companies[i]
		if err := r.create(ctx, tx, &company); err != nil {
			if errors.Is(err, ErrInvalidCompany) {
				r.logger.Warn("Skipping invalid seed company", zap.Int("index", i))
				continue
			}
			return 0, err
		}
		inserted++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit seed: %w", err)
	}

	r.logger.Info("Seeded companies", zap.Int("count", inserted))
	return inserted, nil
}

func requireAffected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return ErrCompanyNotFound
	}
	return nil
}
