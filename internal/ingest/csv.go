package ingest

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/leakscan/internal/common"
	"github.com/Veraticus/leakscan/internal/model"
	"github.com/Veraticus/leakscan/internal/normalize"
)

// CSV column names.
const (
	ColumnID            = "transaction_id"
	ColumnDate          = "date"
	ColumnVendor        = "vendor_name"
	ColumnAmount        = "amount"
	ColumnCurrency      = "currency"
	ColumnCategory      = "category"
	ColumnDescription   = "description"
	ColumnPaymentMethod = "payment_method"
)

// RequiredColumns must be present in every CSV header.
var RequiredColumns = []string{ColumnID, ColumnDate, ColumnVendor, ColumnAmount, ColumnCurrency}

// Layouts accepted for timestamps without an offset.
var naiveLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// CSVSource reads transactions from a CSV export.
type CSVSource struct {
	reader io.Reader
	name   string
	path   string
	opts   options
}

// NewCSVFile creates a source for the CSV file at path. The file is opened by Load.
func NewCSVFile(path string, opts ...Option) *CSVSource {
	return &CSVSource{path: path, name: path, opts: applyOptions(opts)}
}

// NewCSVReader creates a source reading from r. name labels log output.
func NewCSVReader(r io.Reader, name string, opts ...Option) *CSVSource {
	return &CSVSource{reader: r, name: name, opts: applyOptions(opts)}
}

// Load implements Source. Malformed rows are skipped and counted; a missing
// required column or an unreadable file is an error.
func (s *CSVSource) Load(ctx context.Context) ([]model.Transaction, Stats, error) {
	r := s.reader
	if r == nil {
		f, err := os.Open(s.path)
		if err != nil {
			return nil, Stats{}, fmt.Errorf("failed to open %s: %w", s.path, err)
		}
		defer func() {
			_ = f.Close()
		}()
		r = f
	}

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, Stats{}, fmt.Errorf("%s: %w", s.name, common.ErrNoTransactions)
		}
		return nil, Stats{}, fmt.Errorf("failed to read CSV header from %s: %w", s.name, err)
	}

	cols, err := indexColumns(header)
	if err != nil {
		return nil, Stats{}, fmt.Errorf("%s: %w", s.name, err)
	}

	logger := s.opts.logger.With("source", s.name)

	var (
		txns  []model.Transaction
		stats Stats
	)
	seen := make(map[string]struct{})

	for {
		if err := ctx.Err(); err != nil {
			return nil, stats, err
		}

		record, readErr := reader.Read()
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				break
			}
			var parseErr *csv.ParseError
			if errors.As(readErr, &parseErr) {
				stats.Rows++
				stats.Skipped++
				logger.Warn("Skipping unreadable row", "line", parseErr.Line, "error", readErr)
				continue
			}
			return nil, stats, fmt.Errorf("failed to read %s: %w", s.name, readErr)
		}

		stats.Rows++
		line, _ := reader.FieldPos(0)

		tx, err := s.parseRow(record, cols)
		if err != nil {
			stats.Skipped++
			logger.Warn("Skipping malformed row", "line", line, "error", err)
		} else if _, dup := seen[tx.ID]; dup {
			stats.Duplicates++
			logger.Warn("Skipping duplicate transaction id", "line", line, "transaction_id", tx.ID)
		} else {
			seen[tx.ID] = struct{}{}
			txns = append(txns, tx)
			stats.Loaded++
		}

		if s.opts.progress != nil {
			s.opts.progress(stats.Rows)
		}
	}

	logger.Debug("Loaded CSV",
		"rows", stats.Rows,
		"loaded", stats.Loaded,
		"skipped", stats.Skipped,
		"duplicates", stats.Duplicates)

	return txns, stats, nil
}

type columns map[string]int

func (c columns) get(record []string, name string) string {
	i, ok := c[name]
	if !ok || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

func indexColumns(header []string) (columns, error) {
	cols := make(columns, len(header))
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if _, dup := cols[name]; !dup {
			cols[name] = i
		}
	}

	var missing []string
	for _, req := range RequiredColumns {
		if _, ok := cols[req]; !ok {
			missing = append(missing, req)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", common.ErrMissingColumns, strings.Join(missing, ", "))
	}
	return cols, nil
}

func (s *CSVSource) parseRow(record []string, cols columns) (model.Transaction, error) {
	amount, err := decimal.NewFromString(cols.get(record, ColumnAmount))
	if err != nil {
		return model.Transaction{}, fmt.Errorf("%w: amount: %v", common.ErrInvalidTransaction, err)
	}

	date, err := ParseTimestamp(cols.get(record, ColumnDate), s.opts.location)
	if err != nil {
		return model.Transaction{}, fmt.Errorf("%w: %v", common.ErrInvalidTransaction, err)
	}

	raw := cols.get(record, ColumnVendor)
	vendor, err := normalize.Vendor(raw)
	if err != nil {
		return model.Transaction{}, fmt.Errorf("%w: %v", common.ErrInvalidTransaction, err)
	}

	tx := model.Transaction{
		ID:            cols.get(record, ColumnID),
		Date:          date,
		VendorRaw:     raw,
		VendorName:    vendor,
		Amount:        amount,
		Currency:      strings.ToUpper(cols.get(record, ColumnCurrency)),
		Category:      cols.get(record, ColumnCategory),
		Description:   cols.get(record, ColumnDescription),
		PaymentMethod: cols.get(record, ColumnPaymentMethod),
	}
	if err := tx.Validate(); err != nil {
		return model.Transaction{}, fmt.Errorf("%w: %v", common.ErrInvalidTransaction, err)
	}
	return tx, nil
}

// ParseTimestamp accepts RFC 3339 timestamps, or ISO dates and date-times
// without an offset, which are interpreted in loc.
func ParseTimestamp(value string, loc *time.Location) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("date is empty")
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", value)
}
