package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/garyjia/invoicebot/internal/config"
	"github.com/garyjia/invoicebot/internal/ingest"
	httpapi "github.com/garyjia/invoicebot/internal/interfaces/http"
	"github.com/garyjia/invoicebot/internal/invoice"
	"github.com/garyjia/invoicebot/internal/mailbox"
	"github.com/garyjia/invoicebot/internal/normalize"
	"github.com/garyjia/invoicebot/internal/repository"
	"github.com/garyjia/invoicebot/internal/sheets"
	"github.com/garyjia/invoicebot/internal/worker"
	"github.com/garyjia/invoicebot/pkg/utils"
)

func newIngestCommand(ctx *commandContext) *cobra.Command {
	var once bool

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Poll the mailbox and append invoice rows to the sheet",
		Long: "Polls the mailbox for unseen messages, extracts invoice fields from PDF, " +
			"spreadsheet and CSV attachments and appends one row per invoice. " +
			"Serves liveness and ledger endpoints while running.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := cfg.ValidateIngest(); err != nil {
				return err
			}

			logger, err := ctx.serviceLogger()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runIngest(runCtx, cfg, logger, once)
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "Run a single cycle and exit")
	return cmd
}

func runIngest(ctx context.Context, cfg *config.Config, logger *zap.Logger, once bool) error {
	logger.Info("Starting invoice ingestor",
		zap.String("version", httpapi.Version),
		zap.String("delivery", cfg.Ingest.Delivery),
		zap.Duration("interval", cfg.Ingest.Interval),
		zap.String("imap_user", cfg.IMAP.User),
		zap.String("openai_key", utils.MaskSecret(cfg.OpenAI.APIKey)))

	db, err := openDatabase(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	ledger := repository.NewLedgerRepository(db.DB, logger)

	sink, err := sheets.NewSink(ctx, sheets.SinkConfig{
		SpreadsheetID:   cfg.Sheets.SpreadsheetID,
		Range:           cfg.Sheets.Range,
		CredentialsFile: cfg.Sheets.CredentialsFile,
		CredentialsJSON: cfg.Sheets.CredentialsJSON,
	}, logger)
	if err != nil {
		return err
	}

	delivery := ingest.Delivery(cfg.Ingest.Delivery)
	poller := mailbox.NewPoller(mailbox.Config{
		Address:            cfg.IMAP.Address(),
		User:               cfg.IMAP.User,
		Password:           cfg.IMAP.Password,
		TLS:                cfg.IMAP.TLS,
		InsecureSkipVerify: cfg.IMAP.InsecureSkipVerify,
		Mailbox:            cfg.IMAP.Mailbox,
		DialTimeout:        cfg.IMAP.DialTimeout,
		CommandTimeout:     cfg.IMAP.CommandTimeout,
		Peek:               delivery == ingest.AtLeastOnce,
	}, logger)

	extractor := invoice.NewFieldExtractor(
		invoice.NewOpenAIClient(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.Timeout),
		invoice.ExtractorConfig{
			Model:       cfg.OpenAI.Model,
			Temperature: cfg.OpenAI.Temperature,
			MaxTokens:   cfg.OpenAI.MaxTokens,
		},
		logger,
	)

	cycle := ingest.NewCycle(ingest.Dependencies{
		Poller:    poller,
		Reader:    invoice.NewTextReader(invoice.NewFitzPDFReader(0, logger), logger),
		Extractor: extractor,
		Sink:      sink,
		Ledger:    ledger,
	}, ingest.Options{
		Delivery:   delivery,
		DateFormat: normalize.DateFormat(cfg.Ingest.DateFormat),
	}, logger)

	scheduler := worker.NewScheduler("ingest", cfg.Ingest.Interval, cfg.Ingest.LockFile,
		func(ctx context.Context) error {
			_, err := cycle.Run(ctx)
			return err
		}, logger)

	if once {
		if err := scheduler.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		report := cycle.LastReport()
		if report != nil && report.FailureCount() > 0 {
			logger.Warn("Cycle finished with failures", zap.Int("failures", report.FailureCount()))
		}
		return nil
	}

	server := httpapi.NewServer(serverConfig(cfg), logger)
	httpapi.RegisterHealth(server.Router(), "ingestor", func() interface{} {
		runs, lastRun, lastErr := scheduler.Stats()
		detail := map[string]interface{}{
			"cycles":   runs,
			"state":    cycle.State().String(),
			"database": databaseStatus(db),
		}
		if !lastRun.IsZero() {
			detail["last_cycle"] = lastRun.UTC().Format(time.RFC3339)
		}
		if lastErr != nil {
			detail["last_error"] = lastErr.Error()
		}
		return detail
	})
	httpapi.NewIngestHandlers(ledger, cycle, logger).Register(server.Router().Group("/api"))

	manager := worker.NewManager(logger)
	manager.Register(scheduler)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return manager.Run(gctx) })
	g.Go(func() error { return server.Start(gctx) })

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	logger.Info("Invoice ingestor stopped")
	return err
}
