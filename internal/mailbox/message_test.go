package mailbox

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rawMessage(lines ...string) []byte {
	return []byte(strings.Join(lines, "\r\n"))
}

func TestParseMessage_CollectsNamedParts(t *testing.T) {
	raw := rawMessage(
		"From: Billing <billing@acme.example>",
		"To: invoices@kontrol.example",
		"Subject: Invoice #77",
		"Message-ID: <77@acme.example>",
		"Date: Mon, 01 Jan 2024 10:00:00 +0000",
		"MIME-Version: 1.0",
		`Content-Type: multipart/mixed; boundary="XYZ"`,
		"",
		"--XYZ",
		"Content-Type: text/plain; charset=utf-8",
		"",
		"Please find the invoice attached.",
		"--XYZ",
		`Content-Type: application/pdf; name="invoice-77.pdf"`,
		`Content-Disposition: attachment; filename="invoice-77.pdf"`,
		"Content-Transfer-Encoding: base64",
		"",
		"JVBERi0xLjQKJcOkw7zDtsOf",
		"--XYZ",
		`Content-Type: text/csv; name="lines.csv"`,
		`Content-Disposition: inline; filename="lines.csv"`,
		"",
		"id,vendor,amount",
		"77,Acme Ltd,200.00",
		"--XYZ--",
		"",
	)

	msg, err := ParseMessage(42, raw)
	require.NoError(t, err)

	assert.Equal(t, uint32(42), msg.UID)
	assert.Equal(t, "Invoice #77", msg.Subject)
	assert.Equal(t, "77@acme.example", msg.MessageID)
	assert.Equal(t, "billing@acme.example", msg.From)
	assert.Equal(t, 2024, msg.Date.Year())

	require.Len(t, msg.Attachments, 2)
	assert.Equal(t, "invoice-77.pdf", msg.Attachments[0].Filename)
	assert.Equal(t, "application/pdf", msg.Attachments[0].ContentType)
	assert.True(t, strings.HasPrefix(string(msg.Attachments[0].Content), "%PDF-1.4"))

	assert.Equal(t, "lines.csv", msg.Attachments[1].Filename)
	assert.Equal(t, "text/csv", msg.Attachments[1].ContentType)
	assert.Contains(t, string(msg.Attachments[1].Content), "77,Acme Ltd,200.00")
}

func TestParseMessage_PlainTextHasNoAttachments(t *testing.T) {
	raw := rawMessage(
		"From: someone@example.com",
		"Subject: hello",
		"Content-Type: text/plain; charset=utf-8",
		"",
		"No invoice here.",
		"",
	)

	msg, err := ParseMessage(7, raw)
	require.NoError(t, err)
	assert.Equal(t, "hello", msg.Subject)
	assert.Empty(t, msg.Attachments)
}
