package invoice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/garyjia/invoicebot/internal/models"
	"github.com/garyjia/invoicebot/internal/normalize"
)

// ErrNotObject is returned when the model reply is not a single JSON object
var ErrNotObject = errors.New("model reply is not a JSON object")

// ChatCompleter is the subset of the OpenAI client used for extraction
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// ExtractorConfig tunes the chat completion request
type ExtractorConfig struct {
	Model       string
	Temperature float32
	MaxTokens   int
}

// Fields is the decoded model reply. Empty strings mean unknown.
type Fields struct {
	InvoiceID   flexString `json:"invoiceId"`
	VendorName  flexString `json:"vendorName"`
	Amount      flexString `json:"amount"`
	Currency    flexString `json:"currency"`
	DateCreated flexString `json:"dateCreated"`
	DueDate     flexString `json:"dueDate"`
}

// FieldExtractor asks a chat model for the six invoice fields
type FieldExtractor struct {
	client ChatCompleter
	cfg    ExtractorConfig
	logger *zap.Logger
}

// NewFieldExtractor creates an extractor over an OpenAI-compatible client
func NewFieldExtractor(client ChatCompleter, cfg ExtractorConfig, logger *zap.Logger) *FieldExtractor {
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}
	return &FieldExtractor{
		client: client,
		cfg:    cfg,
		logger: logger.Named("extractor"),
	}
}

// NewOpenAIClient builds the go-openai client; baseURL may point to any
// OpenAI-compatible endpoint. A zero timeout leaves requests unbounded.
func NewOpenAIClient(apiKey, baseURL string, timeout time.Duration) *openai.Client {
	clientCfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		clientCfg.BaseURL = baseURL
	}
	clientCfg.HTTPClient = &http.Client{Timeout: timeout}
	return openai.NewClientWithConfig(clientCfg)
}

// CallError marks a failed chat completion request
type CallError struct {
	Err error
}

func (e *CallError) Error() string { return fmt.Sprintf("chat completion failed: %v", e.Err) }
func (e *CallError) Unwrap() error { return e.Err }

// Extract sends raw attachment text to the model and decodes its reply.
// A failed request is returned as *CallError; an undecodable reply wraps
// ErrNotObject or the JSON error.
func (e *FieldExtractor) Extract(ctx context.Context, rawText string) (*Fields, error) {
	e.logger.Debug("Requesting field extraction",
		zap.String("model", e.cfg.Model),
		zap.Int("chars", len(rawText)))

	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       e.cfg.Model,
		Temperature: e.cfg.Temperature,
		MaxTokens:   e.cfg.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: buildExtractionPrompt(rawText),
			},
		},
	})
	if err != nil {
		return nil, &CallError{Err: err}
	}
	if len(resp.Choices) == 0 {
		return nil, &CallError{Err: errors.New("no choices in response")}
	}

	content := resp.Choices[0].Message.Content
	fields, err := DecodeFields(content)
	if err != nil {
		e.logger.Warn("Failed to decode model reply",
			zap.Error(err),
			zap.String("content", truncate(content, 200)))
		return nil, err
	}
	return fields, nil
}

// DecodeFields strips an optional markdown fence and decodes the object
func DecodeFields(content string) (*Fields, error) {
	cleaned := StripCodeFence(content)
	if !strings.HasPrefix(cleaned, "{") {
		return nil, ErrNotObject
	}

	var fields Fields
	if err := json.Unmarshal([]byte(cleaned), &fields); err != nil {
		return nil, fmt.Errorf("failed to decode fields: %w", err)
	}
	return &fields, nil
}

// StripCodeFence removes a leading ```json or ``` marker and a trailing ```
func StripCodeFence(content string) string {
	s := strings.TrimSpace(content)
	switch {
	case strings.HasPrefix(s, "```json"):
		s = s[len("```json"):]
	case strings.HasPrefix(s, "```"):
		s = s[len("```"):]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// BuildRecord applies the producer fallbacks to decoded fields.
// Dates are rewritten in the configured layout when they parse and kept
// verbatim otherwise.
func BuildRecord(f *Fields, format normalize.DateFormat, now time.Time) models.InvoiceRecord {
	rec := models.InvoiceRecord{
		InvoiceID:   strings.TrimSpace(f.InvoiceID.String()),
		VendorName:  strings.TrimSpace(f.VendorName.String()),
		Amount:      normalize.ParseAmount(f.Amount.String()),
		Currency:    normalize.Currency(f.Currency.String(), models.ProducerDefaultCurrency),
		DateCreated: normalize.FormatDate(f.DateCreated.String(), format),
		DueDate:     normalize.FormatDate(f.DueDate.String(), format),
	}

	if rec.InvoiceID == "" {
		rec.InvoiceID = models.AutoInvoiceIDPrefix + strconv.FormatInt(now.UnixMilli(), 10)
	}
	if rec.VendorName == "" {
		rec.VendorName = models.UnknownVendor
	}
	return rec
}

func buildExtractionPrompt(rawText string) string {
	return `You are an expert accountant system. Extract the following invoice data from the provided raw text (often a messy CSV or email body) and return it EXACTLY in JSON format with NO markdown wrapping, NO extra text.

Required fields (if missing, guess intelligently or leave empty string):
- invoiceId: (e.g. Inv-006, Dok. nr. etc)
- vendorName: (The company issuing the invoice)
- amount: (Number only, decimal separated by dot)
- currency: (3 letter code, usually EUR)
- dateCreated: (DD-MM-YYYY format)
- dueDate: (DD-MM-YYYY format)

Raw Data:
` + rawText
}

// flexString accepts a JSON string, number, boolean or null
type flexString string

func (s *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*s = ""
	case len(data) > 0 && data[0] == '"':
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = flexString(v)
	case len(data) > 0 && (data[0] == '{' || data[0] == '['):
		return fmt.Errorf("unexpected JSON value %s", truncate(string(data), 40))
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			*s = flexString(data)
			return nil
		}
		*s = flexString(renderNumber(n))
	}
	return nil
}

// renderNumber spells exponent forms out as plain decimals so amount
// parsing never sees an "e"
func renderNumber(n json.Number) string {
	raw := n.String()
	if !strings.ContainsAny(raw, "eE") {
		return raw
	}
	v, err := n.Float64()
	if err != nil {
		return raw
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func (s flexString) String() string { return string(s) }

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
