package dashboard

import (
	"fmt"
	"strings"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/garyjia/invoicebot/internal/models"
)

// Formatter renders amounts for a display locale
type Formatter struct {
	tag     language.Tag
	printer *message.Printer
}

// NewFormatter creates a formatter for a BCP 47 locale such as "ru-RU"
func NewFormatter(locale string) (*Formatter, error) {
	tag, err := language.Parse(locale)
	if err != nil {
		return nil, fmt.Errorf("invalid locale %q: %w", locale, err)
	}
	return &Formatter{
		tag:     tag,
		printer: message.NewPrinter(tag),
	}, nil
}

// Locale returns the formatter's language tag
func (f *Formatter) Locale() string {
	return f.tag.String()
}

// Money formats an amount with the locale's separators and the currency's
// standard number of fraction digits, followed by the ISO code.
// Unknown codes use two digits.
func (f *Formatter) Money(amount float64, code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	digits := 2
	if unit, err := currency.ParseISO(code); err == nil {
		digits, _ = currency.Standard.Rounding(unit)
	}
	return f.printer.Sprintf(fmt.Sprintf("%%.%df", digits), amount) + " " + code
}

// Whole formats an amount without fraction digits
func (f *Formatter) Whole(amount float64, code string) string {
	return f.printer.Sprintf("%.0f", amount) + " " + strings.ToUpper(code)
}

// Decorate fills the formatted amount of every invoice in place
func (f *Formatter) Decorate(invoices []models.Invoice) {
	for i := range invoices {
		invoices[i].FormattedAmount = f.Money(invoices[i].Amount, invoices[i].Currency)
	}
}
