package ingest

import "errors"

// Failure classes of an ingestion cycle. A connection failure aborts the
// cycle; the others are scoped to a single attachment.
var (
	ErrConnection = errors.New("mailbox connection failed")
	ErrExtraction = errors.New("attachment text extraction failed")
	ErrLLM        = errors.New("field extraction request failed")
	ErrDecode     = errors.New("field extraction reply not decodable")
	ErrAppend     = errors.New("row append failed")
)
