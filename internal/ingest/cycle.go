package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/invoicebot/internal/invoice"
	"github.com/garyjia/invoicebot/internal/mailbox"
	"github.com/garyjia/invoicebot/internal/models"
	"github.com/garyjia/invoicebot/internal/normalize"
	"github.com/garyjia/invoicebot/internal/sheets"
)

// Delivery decides when a message is marked read
type Delivery string

const (
	// AtMostOnce marks messages read at retrieval; later failures are lost
	AtMostOnce Delivery = "at_most_once"
	// AtLeastOnce marks a message read only after every attachment reached
	// a terminal outcome; transient failures are retried next cycle
	AtLeastOnce Delivery = "at_least_once"
)

// Poller opens mailbox sessions
type Poller interface {
	Connect(ctx context.Context) (mailbox.Session, error)
}

// TextReader turns a candidate attachment into raw text
type TextReader interface {
	Read(ctx context.Context, att models.Attachment) (string, error)
}

// FieldExtractor asks the model for invoice fields
type FieldExtractor interface {
	Extract(ctx context.Context, rawText string) (*invoice.Fields, error)
}

// Ledger records attachment outcomes
type Ledger interface {
	Record(ctx context.Context, entry *models.LedgerEntry) error
	AppendedBefore(ctx context.Context, messageID, digest string) (bool, error)
}

// Dependencies are the collaborators of a cycle. Ledger may be nil.
type Dependencies struct {
	Poller    Poller
	Reader    TextReader
	Extractor FieldExtractor
	Sink      sheets.Appender
	Ledger    Ledger
}

// Options tune a cycle
type Options struct {
	Delivery   Delivery
	DateFormat normalize.DateFormat
}

// Cycle runs one poll of the mailbox end to end
type Cycle struct {
	deps   Dependencies
	opts   Options
	logger *zap.Logger
	now    func() time.Time

	mu    sync.RWMutex
	state State
	last  *Report
}

// NewCycle creates a cycle runner
func NewCycle(deps Dependencies, opts Options, logger *zap.Logger) *Cycle {
	if opts.Delivery == "" {
		opts.Delivery = AtMostOnce
	}
	if !opts.DateFormat.Valid() {
		opts.DateFormat = normalize.DateFormatDMY
	}
	return &Cycle{
		deps:   deps,
		opts:   opts,
		logger: logger.Named("cycle"),
		now:    time.Now,
	}
}

// LastReport returns the report of the most recent finished cycle
func (c *Cycle) LastReport() *Report {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.last
}

// Run executes one cycle. The returned error is non-nil only when the
// cycle was aborted (connection failure or cancellation); per-attachment
// failures are counted in the report.
func (c *Cycle) Run(ctx context.Context) (report *Report, err error) {
	report = newReport(c.now())
	defer func() {
		report.FinishedAt = c.now()
		if err != nil {
			report.Error = err.Error()
		}
		c.setState(StateIdle)
		c.mu.Lock()
		c.last = report
		c.mu.Unlock()
	}()

	c.setState(StateConnecting)
	session, err := c.deps.Poller.Connect(ctx)
	if err != nil {
		c.logger.Error("IMAP failure", zap.Error(err))
		return report, fmt.Errorf("%w: %w", ErrConnection, err)
	}
	defer func() {
		c.setState(StateClosing)
		if cerr := session.Close(); cerr != nil {
			c.logger.Warn("Failed to close mailbox session", zap.Error(cerr))
		}
		report.FinishedAt = c.now()
		c.logger.Info("Cycle complete", report.fields()...)
	}()

	c.setState(StateListing)
	messages, err := session.Unseen(ctx)
	if err != nil {
		c.logger.Error("Failed to list unread messages", zap.Error(err))
		return report, fmt.Errorf("%w: %w", ErrConnection, err)
	}
	report.Messages = len(messages)
	c.logger.Info("Found unread messages", zap.Int("count", len(messages)))

	for _, msg := range messages {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		complete := c.processMessage(ctx, msg, report)
		if c.opts.Delivery == AtLeastOnce && !complete {
			c.logger.Info("Leaving message unread for retry",
				zap.Uint32("uid", msg.UID),
				zap.String("subject", msg.Subject))
			continue
		}

		if err := session.MarkSeen(ctx, msg.UID); err != nil {
			c.logger.Warn("Failed to mark message read",
				zap.Uint32("uid", msg.UID),
				zap.Error(err))
			continue
		}
		report.MarkedSeen++
	}

	return report, nil
}

// processMessage handles every attachment of msg and reports whether all
// of them reached a terminal outcome
func (c *Cycle) processMessage(ctx context.Context, msg *models.MailMessage, report *Report) bool {
	c.setState(StateExtracting)
	log := c.logger.With(
		zap.Uint32("uid", msg.UID),
		zap.String("subject", msg.Subject))
	log.Info("Processing email")

	if len(msg.Attachments) == 0 {
		log.Info("No attachments found in email, skipping")
		return true
	}

	complete := true
	for _, att := range msg.Attachments {
		report.Attachments++

		outcome, invoiceID, err := c.processAttachment(ctx, msg, att)
		report.count(outcome)

		fields := []zap.Field{
			zap.String("filename", att.Filename),
			zap.String("outcome", string(outcome)),
		}
		switch {
		case err != nil:
			log.Error("Failed to process attachment", append(fields, zap.Error(err))...)
		case outcome == models.OutcomeSkipped:
			log.Debug("Attachment is not an invoice document", fields...)
		default:
			log.Info("Attachment processed", append(fields, zap.String("invoice_id", invoiceID))...)
		}

		if outcome.Transient() {
			complete = false
		}
		c.record(ctx, msg, att, outcome, invoiceID, err)
	}
	return complete
}

func (c *Cycle) processAttachment(ctx context.Context, msg *models.MailMessage, att models.Attachment) (models.Outcome, string, error) {
	c.setState(StateClassifying)
	if !invoice.IsCandidate(att.ContentType, att.Filename) {
		return models.OutcomeSkipped, "", nil
	}

	if c.opts.Delivery == AtLeastOnce && c.deps.Ledger != nil {
		seen, err := c.deps.Ledger.AppendedBefore(ctx, msg.MessageID, att.Digest())
		if err != nil {
			c.logger.Warn("Ledger lookup failed", zap.Error(err))
		} else if seen {
			return models.OutcomeDuplicate, "", nil
		}
	}

	c.setState(StateTextExtract)
	text, err := c.deps.Reader.Read(ctx, att)
	if err != nil {
		return models.OutcomeExtractFailed, "", fmt.Errorf("%w: %w", ErrExtraction, err)
	}

	c.setState(StateFieldExtract)
	fields, err := c.deps.Extractor.Extract(ctx, text)
	if err != nil {
		var callErr *invoice.CallError
		if errors.As(err, &callErr) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return models.OutcomeLLMFailed, "", fmt.Errorf("%w: %w", ErrLLM, err)
		}
		return models.OutcomeDecodeFailed, "", fmt.Errorf("%w: %w", ErrDecode, err)
	}

	rec := invoice.BuildRecord(fields, c.opts.DateFormat, c.now())

	c.setState(StateAppend)
	if err := c.deps.Sink.Append(ctx, rec); err != nil {
		return models.OutcomeAppendFailed, rec.InvoiceID, fmt.Errorf("%w: %w", ErrAppend, err)
	}
	return models.OutcomeAppended, rec.InvoiceID, nil
}

func (c *Cycle) record(ctx context.Context, msg *models.MailMessage, att models.Attachment, outcome models.Outcome, invoiceID string, cause error) {
	if c.deps.Ledger == nil {
		return
	}

	entry := &models.LedgerEntry{
		MessageUID:    msg.UID,
		MessageID:     msg.MessageID,
		Subject:       msg.Subject,
		Filename:      att.Filename,
		ContentSHA256: att.Digest(),
		Outcome:       outcome,
		InvoiceID:     invoiceID,
	}
	if cause != nil {
		entry.ErrorMessage = cause.Error()
	}

	// the ledger outlives a cancelled cycle
	if err := c.deps.Ledger.Record(context.WithoutCancel(ctx), entry); err != nil {
		c.logger.Warn("Failed to record attachment outcome", zap.Error(err))
	}
}

// State returns the current step of the running cycle, or StateIdle
func (c *Cycle) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Cycle) setState(s State) {
	c.mu.Lock()
	from := c.state
	c.state = s
	c.mu.Unlock()

	if !from.CanTransition(s) {
		c.logger.Warn("Unexpected state transition", zap.Stringer("from", from), zap.Stringer("to", s))
	}
	if ce := c.logger.Check(zap.DebugLevel, "State"); ce != nil {
		ce.Write(zap.Stringer("state", s))
	}
}
