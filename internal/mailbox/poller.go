package mailbox

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"go.uber.org/zap"

	"github.com/garyjia/invoicebot/internal/models"
)

// Config holds IMAP connection settings
type Config struct {
	Address            string
	User               string
	Password           string
	TLS                bool
	InsecureSkipVerify bool
	Mailbox            string
	DialTimeout        time.Duration
	CommandTimeout     time.Duration
	// Peek fetches bodies with BODY.PEEK[] so retrieval does not set \Seen.
	// The caller is then responsible for MarkSeen.
	Peek bool
}

// Session is an open, authenticated mailbox connection with the inbox selected
type Session interface {
	// Unseen returns every message without the \Seen flag
	Unseen(ctx context.Context) ([]*models.MailMessage, error)
	// MarkSeen sets \Seen on the given message UIDs
	MarkSeen(ctx context.Context, uids ...uint32) error
	Close() error
}

// Poller opens IMAP sessions
type Poller struct {
	cfg    Config
	logger *zap.Logger
}

// NewPoller creates a mailbox poller
func NewPoller(cfg Config, logger *zap.Logger) *Poller {
	if cfg.Mailbox == "" {
		cfg.Mailbox = "INBOX"
	}
	return &Poller{
		cfg:    cfg,
		logger: logger.Named("mailbox"),
	}
}

// Connect dials the server, logs in and selects the configured mailbox
func (p *Poller) Connect(ctx context.Context) (Session, error) {
	p.logger.Info("Connecting to IMAP server", zap.String("address", p.cfg.Address))

	dialer := &net.Dialer{Timeout: p.cfg.DialTimeout}
	if deadline, ok := ctx.Deadline(); ok {
		dialer.Deadline = deadline
	}

	var (
		c   *client.Client
		err error
	)
	if p.cfg.TLS {
		c, err = client.DialWithDialerTLS(dialer, p.cfg.Address, &tls.Config{
			InsecureSkipVerify: p.cfg.InsecureSkipVerify,
		})
	} else {
		c, err = client.DialWithDialer(dialer, p.cfg.Address)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", p.cfg.Address, err)
	}
	c.Timeout = p.cfg.CommandTimeout

	if err := c.Login(p.cfg.User, p.cfg.Password); err != nil {
		_ = c.Logout()
		return nil, fmt.Errorf("failed to log in as %s: %w", p.cfg.User, err)
	}

	if _, err := c.Select(p.cfg.Mailbox, false); err != nil {
		_ = c.Logout()
		return nil, fmt.Errorf("failed to open mailbox %s: %w", p.cfg.Mailbox, err)
	}

	p.logger.Info("Mailbox opened", zap.String("mailbox", p.cfg.Mailbox))
	return &session{client: c, peek: p.cfg.Peek, logger: p.logger}, nil
}

type session struct {
	client *client.Client
	peek   bool
	logger *zap.Logger
}

func (s *session) Unseen(ctx context.Context) ([]*models.MailMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}

	uids, err := s.client.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("failed to search unseen messages: %w", err)
	}
	if len(uids) == 0 {
		return nil, nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uids...)

	// A non-peek BODY[] fetch makes the server set \Seen as part of retrieval.
	section := &imap.BodySectionName{Peek: s.peek}
	items := []imap.FetchItem{imap.FetchUid, section.FetchItem()}

	fetched := make(chan *imap.Message, 10)
	done := make(chan error, 1)
	go func() {
		done <- s.client.UidFetch(seqset, items, fetched)
	}()

	var messages []*models.MailMessage
	for raw := range fetched {
		body := raw.GetBody(section)
		if body == nil {
			s.logger.Warn("Server returned no body", zap.Uint32("uid", raw.Uid))
			continue
		}
		content, err := io.ReadAll(body)
		if err != nil {
			s.logger.Warn("Failed to read message body", zap.Uint32("uid", raw.Uid), zap.Error(err))
			continue
		}

		msg, err := ParseMessage(raw.Uid, content)
		if err != nil {
			s.logger.Warn("Failed to parse message", zap.Uint32("uid", raw.Uid), zap.Error(err))
			continue
		}
		messages = append(messages, msg)
	}

	if err := <-done; err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}
	return messages, nil
}

func (s *session) MarkSeen(ctx context.Context, uids ...uint32) error {
	if len(uids) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uids...)

	item := imap.FormatFlagsOp(imap.AddFlags, true)
	if err := s.client.UidStore(seqset, item, []interface{}{imap.SeenFlag}, nil); err != nil {
		return fmt.Errorf("failed to mark messages seen: %w", err)
	}
	return nil
}

func (s *session) Close() error {
	err := s.client.Logout()
	if errors.Is(err, client.ErrAlreadyLoggedOut) {
		return nil
	}
	return err
}
