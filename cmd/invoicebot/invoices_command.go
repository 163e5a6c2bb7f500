package main

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/garyjia/invoicebot/internal/dashboard"
	"github.com/garyjia/invoicebot/internal/models"
)

func newInvoicesCommand(ctx *commandContext) *cobra.Command {
	var (
		company string
		search  string
		status  string
		sortBy  string
		order   string
		xlsx    string
	)

	cmd := &cobra.Command{
		Use:   "invoices",
		Short: "Print the invoice table",
		RunE: func(cmd *cobra.Command, args []string) error {
			query, err := dashboard.ParseQuery(search, status, sortBy, order)
			if err != nil {
				return err
			}

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

			svc, _, err := buildDashboard(cmd.Context(), cfg, db, logger)
			if err != nil {
				return err
			}

			result, err := svc.List(cmd.Context(), company, query)
			if err != nil {
				return err
			}
			if result.Error != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s (showing %s data)\n", result.Error, result.Source)
			}

			if xlsx != "" {
				data, err := dashboard.ExportXLSX(result.Invoices)
				if err != nil {
					return err
				}
				if err := os.WriteFile(xlsx, data, 0o644); err != nil {
					return fmt.Errorf("write %s: %w", xlsx, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d invoices to %s\n", len(result.Invoices), xlsx)
				return nil
			}

			printInvoices(cmd.OutOrStdout(), result)
			return nil
		},
	}

	cmd.Flags().StringVar(&company, "company", "", "Company ID (default table when empty)")
	cmd.Flags().StringVar(&search, "search", "", "Case-insensitive match on vendor or ID")
	cmd.Flags().StringVar(&status, "status", "", "Filter by status: All, Paid, Pending, Overdue")
	cmd.Flags().StringVar(&sortBy, "sort", "", "Sort field: id, vendor, amount, currency, dateCreated, dueDate, status")
	cmd.Flags().StringVar(&order, "order", "", "Sort order: asc or desc")
	cmd.Flags().StringVar(&xlsx, "xlsx", "", "Write the table to an XLSX file instead of printing it")
	return cmd
}

func printInvoices(out io.Writer, result *dashboard.Result) {
	if len(result.Invoices) == 0 {
		fmt.Fprintln(out, "No invoices")
		return
	}

	headers := []string{"ID", "Vendor", "Amount", "Created", "Due", "Status"}
	aligns := []columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignLeft, alignLeft}

	rows := make([][]string, 0, len(result.Invoices))
	for _, inv := range result.Invoices {
		rows = append(rows, []string{
			inv.ID,
			inv.Vendor,
			amountCell(inv),
			inv.DateCreated,
			inv.DueDate,
			string(inv.Status),
		})
	}

	footer := []string{
		"Total " + strconv.Itoa(result.Stats.Total),
		"Overdue " + strconv.Itoa(result.Stats.Overdue),
		result.Stats.FormattedTotal,
	}
	fmt.Fprintln(out, renderTable(headers, rows, aligns, footer))
}

func amountCell(inv models.Invoice) string {
	if inv.FormattedAmount != "" {
		return inv.FormattedAmount
	}
	return strconv.FormatFloat(inv.Amount, 'f', 2, 64) + " " + inv.Currency
}
