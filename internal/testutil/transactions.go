// Package testutil provides fixtures for building transaction batches in tests.
//
// Example:
//
//	txns := testutil.NewBatch(t).
//		Add("t1", "acme", "100.00", 0).
//		Add("t2", "acme", "100.00", 2).
//		Build()
package testutil

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/leakscan/internal/model"
)

// BaseDate is day zero for fixture offsets.
var BaseDate = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// Day returns BaseDate shifted by offset days.
func Day(offset int) time.Time {
	return BaseDate.AddDate(0, 0, offset)
}

// Amount parses a decimal literal, panicking on malformed input.
func Amount(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// Txn builds a USD transaction dated offset days after BaseDate.
func Txn(id, vendor, amount string, offset int) model.Transaction {
	return model.Transaction{
		ID:         id,
		Date:       Day(offset),
		Amount:     Amount(amount),
		VendorRaw:  vendor,
		VendorName: vendor,
		Currency:   "USD",
	}
}

// Batch is a fluent builder for transaction slices.
type Batch struct {
	t        *testing.T
	currency string
	txns     []model.Transaction
	seq      int
}

// NewBatch creates an empty USD batch.
func NewBatch(t *testing.T) *Batch {
	t.Helper()
	return &Batch{t: t, currency: "USD"}
}

// InCurrency sets the currency for transactions added afterwards.
func (b *Batch) InCurrency(currency string) *Batch {
	b.currency = currency
	return b
}

// Add appends one transaction.
func (b *Batch) Add(id, vendor, amount string, offset int) *Batch {
	b.t.Helper()
	tx := Txn(id, vendor, amount, offset)
	tx.Currency = b.currency
	if err := tx.Validate(); err != nil {
		b.t.Fatalf("invalid fixture transaction: %v", err)
	}
	b.txns = append(b.txns, tx)
	return b
}

// Series appends one transaction per offset with generated ids of the form
// "<vendor>-<n>".
func (b *Batch) Series(vendor, amount string, offsets ...int) *Batch {
	b.t.Helper()
	for _, off := range offsets {
		b.seq++
		b.Add(fmt.Sprintf("%s-%d", vendor, b.seq), vendor, amount, off)
	}
	return b
}

// Build returns a copy of the accumulated transactions.
func (b *Batch) Build() []model.Transaction {
	return model.CloneAll(b.txns)
}
