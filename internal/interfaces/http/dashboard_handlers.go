package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/garyjia/invoicebot/internal/dashboard"
	"github.com/garyjia/invoicebot/internal/models"
	"github.com/garyjia/invoicebot/internal/repository"
	"github.com/garyjia/invoicebot/pkg/utils"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// InvoiceLister produces the filtered invoice table
type InvoiceLister interface {
	List(ctx context.Context, companyID string, q dashboard.Query) (*dashboard.Result, error)
}

// CompanyStore manages companies
type CompanyStore interface {
	List(ctx context.Context) ([]*models.Company, error)
	GetByID(ctx context.Context, id string) (*models.Company, error)
	Create(ctx context.Context, company *models.Company) error
	Update(ctx context.Context, company *models.Company) error
	Delete(ctx context.Context, id string) error
}

// AuthConfig enables HTTP basic auth on the API when both fields are set
type AuthConfig struct {
	Username string
	Password string
}

// DashboardHandlers serves invoices and companies
type DashboardHandlers struct {
	invoices  InvoiceLister
	companies CompanyStore
	logger    *zap.Logger
}

// NewDashboardHandlers creates the dashboard handlers
func NewDashboardHandlers(invoices InvoiceLister, companies CompanyStore, logger *zap.Logger) *DashboardHandlers {
	return &DashboardHandlers{
		invoices:  invoices,
		companies: companies,
		logger:    logger,
	}
}

// InvoiceQueryRequest represents query parameters for the invoice table
type InvoiceQueryRequest struct {
	Company string `form:"company"`
	Search  string `form:"search"`
	Status  string `form:"status"`
	Sort    string `form:"sort"`
	Order   string `form:"order"`
}

// CompanyRequest is the body of company create and update calls
type CompanyRequest struct {
	Name           string `json:"name" binding:"required"`
	CSVURL         string `json:"csvUrl" binding:"required,url"`
	ReceivingEmail string `json:"receivingEmail" binding:"omitempty,email"`
}

// Register adds the dashboard routes under r, behind basic auth when configured
func (h *DashboardHandlers) Register(r gin.IRouter, auth AuthConfig) {
	api := r.Group("/api", basicAuth(auth.Username, auth.Password))
	{
		api.GET("/invoices", h.ListInvoices)
		api.GET("/invoices/export", h.ExportInvoices)

		api.GET("/companies", h.ListCompanies)
		api.POST("/companies", h.CreateCompany)
		api.PUT("/companies/:id", h.UpdateCompany)
		api.DELETE("/companies/:id", h.DeleteCompany)
	}
}

func (h *DashboardHandlers) loadInvoices(c *gin.Context) (*dashboard.Result, bool) {
	var req InvoiceQueryRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid query parameters")
		return nil, false
	}

	query, err := dashboard.ParseQuery(req.Search, req.Status, req.Sort, req.Order)
	if err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return nil, false
	}

	result, err := h.invoices.List(c.Request.Context(), req.Company, query)
	if errors.Is(err, repository.ErrCompanyNotFound) {
		fail(c, http.StatusNotFound, err.Error())
		return nil, false
	}
	if err != nil {
		h.logger.Error("Failed to list invoices", zap.Error(err))
		fail(c, http.StatusInternalServerError, "failed to list invoices")
		return nil, false
	}
	return result, true
}

// ListInvoices handles GET /api/invoices. A table that could not be
// fetched still answers 200 with the fallback rows and an error message.
func (h *DashboardHandlers) ListInvoices(c *gin.Context) {
	result, ok := h.loadInvoices(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, Response{
		Success: result.Error == "",
		Data:    result,
		Error:   result.Error,
	})
}

// ExportInvoices handles GET /api/invoices/export
func (h *DashboardHandlers) ExportInvoices(c *gin.Context) {
	result, ok := h.loadInvoices(c)
	if !ok {
		return
	}

	data, err := dashboard.ExportXLSX(result.Invoices)
	if err != nil {
		h.logger.Error("Failed to export invoices", zap.Error(err))
		fail(c, http.StatusInternalServerError, "failed to export invoices")
		return
	}

	filename := fmt.Sprintf("invoices-%s.xlsx", time.Now().Format("2006-01-02"))
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(http.StatusOK, xlsxContentType, data)
}

// ListCompanies handles GET /api/companies
func (h *DashboardHandlers) ListCompanies(c *gin.Context) {
	companies, err := h.companies.List(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to list companies", zap.Error(err))
		fail(c, http.StatusInternalServerError, "failed to load companies")
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: companies})
}

// CreateCompany handles POST /api/companies
func (h *DashboardHandlers) CreateCompany(c *gin.Context) {
	company, ok := bindCompany(c)
	if !ok {
		return
	}

	if err := h.companies.Create(c.Request.Context(), company); err != nil {
		h.companyError(c, err)
		return
	}
	c.JSON(http.StatusCreated, Response{Success: true, Data: company})
}

// UpdateCompany handles PUT /api/companies/:id
func (h *DashboardHandlers) UpdateCompany(c *gin.Context) {
	company, ok := bindCompany(c)
	if !ok {
		return
	}
	company.ID = c.Param("id")

	if err := h.companies.Update(c.Request.Context(), company); err != nil {
		h.companyError(c, err)
		return
	}

	updated, err := h.companies.GetByID(c.Request.Context(), company.ID)
	if err != nil {
		h.companyError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: updated})
}

// DeleteCompany handles DELETE /api/companies/:id
func (h *DashboardHandlers) DeleteCompany(c *gin.Context) {
	if err := h.companies.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.companyError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func bindCompany(c *gin.Context) (*models.Company, bool) {
	var req CompanyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request body")
		return nil, false
	}

	company := &models.Company{
		Name:           utils.SanitizeString(req.Name),
		CSVURL:         utils.SanitizeString(req.CSVURL),
		ReceivingEmail: utils.SanitizeString(req.ReceivingEmail),
	}
	if company.Name == "" || company.CSVURL == "" {
		fail(c, http.StatusBadRequest, repository.ErrInvalidCompany.Error())
		return nil, false
	}
	if err := utils.ValidateSourceURL(company.CSVURL); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return nil, false
	}
	if company.ReceivingEmail != "" {
		if err := utils.ValidateEmail(company.ReceivingEmail); err != nil {
			fail(c, http.StatusBadRequest, err.Error())
			return nil, false
		}
	}
	return company, true
}

func (h *DashboardHandlers) companyError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repository.ErrCompanyNotFound):
		fail(c, http.StatusNotFound, err.Error())
	case errors.Is(err, repository.ErrInvalidCompany):
		fail(c, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("Company operation failed", zap.Error(err))
		fail(c, http.StatusInternalServerError, "company operation failed")
	}
}
