package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/garyjia/invoicebot/internal/config"
	"github.com/garyjia/invoicebot/internal/dashboard"
	httpapi "github.com/garyjia/invoicebot/internal/interfaces/http"
	"github.com/garyjia/invoicebot/internal/repository"
	"github.com/garyjia/invoicebot/internal/sheets"
	"github.com/garyjia/invoicebot/pkg/database"
)

func newDashboardCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Serve the invoice dashboard API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := cfg.ValidateDashboard(); err != nil {
				return err
			}

			logger, err := ctx.serviceLogger()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runDashboard(runCtx, cfg, logger)
		},
	}
}

func runDashboard(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	db, err := openDatabase(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	svc, companies, err := buildDashboard(ctx, cfg, db, logger)
	if err != nil {
		return err
	}

	server := httpapi.NewServer(serverConfig(cfg), logger)
	httpapi.RegisterHealth(server.Router(), "dashboard", func() interface{} {
		return map[string]interface{}{
			"auth":     cfg.Dashboard.Auth.Enabled(),
			"database": databaseStatus(db),
		}
	})
	httpapi.NewDashboardHandlers(svc, companies, logger).Register(server.Router(), httpapi.AuthConfig{
		Username: cfg.Dashboard.Auth.Username,
		Password: cfg.Dashboard.Auth.Password,
	})

	logger.Info("Starting invoice dashboard",
		zap.String("version", httpapi.Version),
		zap.Bool("auth", cfg.Dashboard.Auth.Enabled()))
	return server.Start(ctx)
}

// buildDashboard seeds the company store and wires the table service
func buildDashboard(ctx context.Context, cfg *config.Config, db *database.DB, logger *zap.Logger) (*dashboard.Service, *repository.CompanyRepository, error) {
	companies := repository.NewCompanyRepository(db.DB, logger)

	seeded, err := dashboard.SeedCompanies(ctx, companies, cfg.Dashboard.CompaniesJSON, cfg.Dashboard.CSVURL)
	switch {
	case errors.Is(err, dashboard.ErrNoCompanies):
		logger.Debug("No companies configured for seeding")
	case err != nil:
		logger.Warn("Company seeding incomplete", zap.Int("seeded", seeded), zap.Error(err))
	case seeded > 0:
		logger.Info("Seeded companies", zap.Int("count", seeded))
	}

	formatter, err := dashboard.NewFormatter(cfg.Dashboard.Locale)
	if err != nil {
		return nil, nil, err
	}

	source := sheets.NewSource(&http.Client{Timeout: cfg.Dashboard.FetchTimeout}, logger)
	svc := dashboard.NewService(source, companies, formatter, dashboard.Config{
		DefaultCSVURL: cfg.Dashboard.CSVURL,
		Fallback:      cfg.Dashboard.Fallback,
		FetchTimeout:  cfg.Dashboard.FetchTimeout,
	}, logger)
	return svc, companies, nil
}
