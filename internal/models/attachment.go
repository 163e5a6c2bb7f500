package models

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// MailMessage is one message retrieved from the polled mailbox
type MailMessage struct {
	UID         uint32       `json:"uid"`
	MessageID   string       `json:"message_id"`
	Subject     string       `json:"subject"`
	From        string       `json:"from"`
	Date        time.Time    `json:"date"`
	Attachments []Attachment `json:"attachments"`
}

// Attachment is a file part of a mail message
type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Content     []byte `json:"-"`
}

// Digest returns the hex SHA-256 of the attachment content
func (a Attachment) Digest() string {
	sum := sha256.Sum256(a.Content)
	return hex.EncodeToString(sum[:])
}
