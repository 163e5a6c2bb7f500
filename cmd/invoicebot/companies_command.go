package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/garyjia/invoicebot/internal/models"
	"github.com/garyjia/invoicebot/internal/repository"
	"github.com/garyjia/invoicebot/pkg/utils"
)

func newCompaniesCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "companies",
		Short: "Manage companies and their invoice tables",
	}
	cmd.AddCommand(newCompaniesListCommand(ctx))
	cmd.AddCommand(newCompaniesAddCommand(ctx))
	cmd.AddCommand(newCompaniesDeleteCommand(ctx))
	return cmd
}

func withCompanies(ctx *commandContext, cmd *cobra.Command, fn func(*repository.CompanyRepository) error) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	logger, err := ctx.cliLogger()
	if err != nil {
		return err
	}

	db, err := openDatabase(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	return fn(repository.NewCompanyRepository(db.DB, logger))
}

func newCompaniesListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List companies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCompanies(ctx, cmd, func(repo *repository.CompanyRepository) error {
				companies, err := repo.List(cmd.Context())
				if err != nil {
					return err
				}
				printCompanies(cmd.OutOrStdout(), companies)
				return nil
			})
		},
	}
}

func newCompaniesAddCommand(ctx *commandContext) *cobra.Command {
	var (
		id     string
		name   string
		csvURL string
		email  string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a company",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			company := &models.Company{
				ID:             utils.SanitizeString(id),
				Name:           utils.SanitizeString(name),
				CSVURL:         utils.SanitizeString(csvURL),
				ReceivingEmail: utils.SanitizeString(email),
			}
			if err := utils.ValidateSourceURL(company.CSVURL); err != nil {
				return err
			}
			if company.ReceivingEmail != "" {
				if err := utils.ValidateEmail(company.ReceivingEmail); err != nil {
					return err
				}
			}

			return withCompanies(ctx, cmd, func(repo *repository.CompanyRepository) error {
				if err := repo.Create(cmd.Context(), company); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Added company %s (%s)\n", company.Name, company.ID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "Company ID (generated when empty)")
	cmd.Flags().StringVar(&name, "name", "", "Display name")
	cmd.Flags().StringVar(&csvURL, "csv-url", "", "Published CSV export URL of the invoice table")
	cmd.Flags().StringVar(&email, "email", "", "Mailbox that receives the company's invoices")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("csv-url")
	return cmd
}

func newCompaniesDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a company",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCompanies(ctx, cmd, func(repo *repository.CompanyRepository) error {
				if err := repo.Delete(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted company %s\n", args[0])
				return nil
			})
		},
	}
}

func printCompanies(out io.Writer, companies []*models.Company) {
	if len(companies) == 0 {
		fmt.Fprintln(out, "No companies")
		return
	}

	headers := []string{"ID", "Name", "CSV URL", "Email"}
	rows := make([][]string, 0, len(companies))
	for _, c := range companies {
		rows = append(rows, []string{c.ID, c.Name, c.CSVURL, c.ReceivingEmail})
	}
	fmt.Fprintln(out, renderTable(headers, rows, nil, nil))
}
