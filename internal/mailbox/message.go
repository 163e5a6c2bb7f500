package mailbox

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"

	"github.com/garyjia/invoicebot/internal/models"
)

// ParseMessage decodes a raw RFC 5322 message into a MailMessage.
// Every part that carries a filename counts as an attachment, whether its
// disposition is "attachment" or "inline".
func ParseMessage(uid uint32, raw []byte) (*models.MailMessage, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to read message %d: %w", uid, err)
	}
	defer mr.Close()

	msg := &models.MailMessage{UID: uid}
	msg.Subject, _ = mr.Header.Subject()
	msg.MessageID, _ = mr.Header.MessageID()
	msg.Date, _ = mr.Header.Date()
	if from, err := mr.Header.AddressList("From"); err == nil && len(from) > 0 {
		msg.From = from[0].Address
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read part of message %d: %w", uid, err)
		}

		var header mail.AttachmentHeader
		switch h := part.Header.(type) {
		case *mail.AttachmentHeader:
			header = *h
		case *mail.InlineHeader:
			header = mail.AttachmentHeader{Header: h.Header}
		default:
			continue
		}

		filename, _ := header.Filename()
		if filename == "" {
			continue
		}
		contentType, _, _ := header.ContentType()

		content, err := io.ReadAll(part.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read attachment %q: %w", filename, err)
		}

		msg.Attachments = append(msg.Attachments, models.Attachment{
			Filename:    filename,
			ContentType: strings.ToLower(contentType),
			Content:     content,
		})
	}

	return msg, nil
}
