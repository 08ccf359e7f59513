package model

import (
	"fmt"
	"regexp"
	"time"

	"github.com/shopspring/decimal"
)

var currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)

// Transaction represents a single validated payment from any ingestion source.
// Values are treated as immutable once they enter the engine.
type Transaction struct {
	Date          time.Time
	Amount        decimal.Decimal
	ID            string
	VendorRaw     string // Vendor name as it appeared in the source
	VendorName    string // Normalized vendor name used as the grouping key
	Currency      string // ISO 4217 code
	Category      string
	Description   string
	PaymentMethod string
}

// Validate checks the invariants the engine relies on.
func (t Transaction) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("transaction id is required")
	}
	if t.VendorName == "" {
		return fmt.Errorf("transaction %s: normalized vendor name is required", t.ID)
	}
	if !currencyPattern.MatchString(t.Currency) {
		return fmt.Errorf("transaction %s: currency %q is not an ISO 4217 code", t.ID, t.Currency)
	}
	if t.Date.IsZero() {
		return fmt.Errorf("transaction %s: date is required", t.ID)
	}
	return nil
}

// Clone returns a deep copy that shares no memory with t.
func (t Transaction) Clone() Transaction {
	c := t
	c.Amount = decimal.NewFromBigInt(t.Amount.Coefficient(), t.Amount.Exponent())
	c.Date = time.Date(t.Date.Year(), t.Date.Month(), t.Date.Day(),
		t.Date.Hour(), t.Date.Minute(), t.Date.Second(), t.Date.Nanosecond(), t.Date.Location())
	return c
}

// CloneAll deep-copies a batch of transactions.
func CloneAll(txns []Transaction) []Transaction {
	out := make([]Transaction, len(txns))
	for i, t := range txns {
		out[i] = t.Clone()
	}
	return out
}

// DaysBetween returns the whole number of days from a to b, truncated toward zero.
func DaysBetween(a, b time.Time) int {
	return int(b.Sub(a) / (24 * time.Hour))
}

// AmountKey returns a canonical string for grouping amounts by numeric value,
// so 100.0 and 100.00 land in the same group.
func AmountKey(d decimal.Decimal) string {
	return d.String()
}
