package models

import "time"

// Outcome of processing one attachment during an ingestion cycle
type Outcome string

const (
	OutcomeAppended      Outcome = "appended"
	OutcomeSkipped       Outcome = "skipped"
	OutcomeExtractFailed Outcome = "extract_failed"
	OutcomeLLMFailed     Outcome = "llm_failed"
	OutcomeDecodeFailed  Outcome = "decode_failed"
	OutcomeAppendFailed  Outcome = "append_failed"
	OutcomeDuplicate     Outcome = "duplicate"
)

// Transient reports whether retrying the same attachment later may succeed
func (o Outcome) Transient() bool {
	return o == OutcomeLLMFailed || o == OutcomeAppendFailed
}

// LedgerEntry records what happened to one attachment
type LedgerEntry struct {
	ID            int64     `json:"id"`
	MessageUID    uint32    `json:"message_uid"`
	MessageID     string    `json:"message_id"`
	Subject       string    `json:"subject"`
	Filename      string    `json:"filename"`
	ContentSHA256 string    `json:"content_sha256"`
	Outcome       Outcome   `json:"outcome"`
	InvoiceID     string    `json:"invoice_id,omitempty"`
	ErrorMessage  string    `json:"error_message,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}
