package ingest

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/leakscan/internal/common"
)

const header = "transaction_id,date,vendor_name,amount,currency,category,description,payment_method\n"

func TestCSVSource_Load(t *testing.T) {
	data := header +
		"t1,2024-01-05T10:00:00Z,\"Acme, Inc.\",100.00,usd,software,License,card\n" +
		"t2,2024-01-07,ACME INC,100.00,USD,,,\n"

	txns, stats, err := NewCSVReader(strings.NewReader(data), "test").Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Stats{Rows: 2, Loaded: 2}, stats)
	require.Len(t, txns, 2)

	first := txns[0]
	assert.Equal(t, "t1", first.ID)
	assert.Equal(t, "Acme, Inc.", first.VendorRaw)
	assert.Equal(t, "acme", first.VendorName)
	assert.Equal(t, "USD", first.Currency)
	assert.Equal(t, "100", first.Amount.String())
	assert.Equal(t, "software", first.Category)
	assert.Equal(t, "License", first.Description)
	assert.Equal(t, "card", first.PaymentMethod)
	assert.True(t, first.Date.Equal(time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC)))

	assert.Equal(t, "acme", txns[1].VendorName)
	assert.Empty(t, txns[1].Category)
}

func TestCSVSource_OptionalColumns(t *testing.T) {
	data := "Transaction_ID, Date ,vendor_name,amount,currency\n" +
		"t1,2024-01-05,Globex,12.5,EUR\n"

	txns, stats, err := NewCSVReader(strings.NewReader(data), "test").Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Loaded)
	require.Len(t, txns, 1)
	assert.Equal(t, "globex", txns[0].VendorName)
}

func TestCSVSource_SkipsMalformedRows(t *testing.T) {
	data := header +
		"t1,2024-01-05,Acme,not-a-number,USD,,,\n" +
		"t2,yesterday,Acme,10,USD,,,\n" +
		"t3,2024-01-05,,10,USD,,,\n" +
		"t4,2024-01-05,Acme,10,DOLLARS,,,\n" +
		",2024-01-05,Acme,10,USD,,,\n" +
		"t6,2024-01-05,Acme,10,USD,,,\n" +
		"t6,2024-01-06,Acme,11,USD,,,\n" +
		"t7,2024-01-05,Acme\n"

	txns, stats, err := NewCSVReader(strings.NewReader(data), "test").Load(context.Background())
	require.NoError(t, err)

	require.Len(t, txns, 1)
	assert.Equal(t, "t6", txns[0].ID)
	assert.Equal(t, "10", txns[0].Amount.String())
	assert.Equal(t, Stats{Rows: 8, Loaded: 1, Skipped: 6, Duplicates: 1}, stats)
}

func TestCSVSource_MissingColumns(t *testing.T) {
	data := "transaction_id,date,amount\n" + "t1,2024-01-05,10\n"

	_, _, err := NewCSVReader(strings.NewReader(data), "test").Load(context.Background())
	require.ErrorIs(t, err, common.ErrMissingColumns)
	assert.Contains(t, err.Error(), "vendor_name")
	assert.Contains(t, err.Error(), "currency")
}

func TestCSVSource_EmptyInput(t *testing.T) {
	_, _, err := NewCSVReader(strings.NewReader(""), "test").Load(context.Background())
	require.ErrorIs(t, err, common.ErrNoTransactions)
}

func TestCSVSource_Timezone(t *testing.T) {
	loc, err := LoadLocation("America/New_York")
	require.NoError(t, err)

	data := header +
		"t1,2024-01-05 09:30:00,Acme,10,USD,,,\n" +
		"t2,2024-01-05T09:30:00+01:00,Acme,10,USD,,,\n"

	txns, _, err := NewCSVReader(strings.NewReader(data), "test", WithLocation(loc)).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, txns, 2)

	assert.Equal(t, loc, txns[0].Date.Location())
	assert.True(t, txns[0].Date.Equal(time.Date(2024, 1, 5, 14, 30, 0, 0, time.UTC)))
	assert.True(t, txns[1].Date.Equal(time.Date(2024, 1, 5, 8, 30, 0, 0, time.UTC)))
}

func TestCSVSource_Progress(t *testing.T) {
	data := header +
		"t1,2024-01-05,Acme,10,USD,,,\n" +
		"t2,2024-01-06,Acme,10,USD,,,\n" +
		"t3,bad,Acme,10,USD,,,\n"

	var calls []int
	_, _, err := NewCSVReader(strings.NewReader(data), "test", WithProgress(func(rows int) {
		calls = append(calls, rows)
	})).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, calls)
}

func TestCSVSource_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := NewCSVReader(strings.NewReader(header+"t1,2024-01-05,Acme,10,USD,,,\n"), "test").Load(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestCSVFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "payments.csv")
	require.NoError(t, os.WriteFile(path, []byte(header+"t1,2024-01-05,Acme,10,USD,,,\n"), 0o600))

	txns, stats, err := NewCSVFile(path).Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, txns, 1)
	assert.Equal(t, 1, stats.Loaded)

	_, _, err = NewCSVFile(filepath.Join(t.TempDir(), "missing.csv")).Load(context.Background())
	require.Error(t, err)
}

func TestMulti(t *testing.T) {
	a := NewCSVReader(strings.NewReader(header+
		"t1,2024-01-05,Acme,10,USD,,,\n"+
		"t2,2024-01-06,Acme,10,USD,,,\n"), "a")
	b := NewCSVReader(strings.NewReader(header+
		"t2,2024-02-06,Globex,99,USD,,,\n"+
		"t3,2024-02-07,Globex,99,USD,,,\n"), "b")

	txns, stats, err := Multi(a, b).Load(context.Background())
	require.NoError(t, err)

	require.Len(t, txns, 3)
	assert.Equal(t, "acme", txns[1].VendorName, "first source wins for t2")
	assert.Equal(t, Stats{Rows: 4, Loaded: 3, Duplicates: 1}, stats)
}

func TestMulti_PropagatesErrors(t *testing.T) {
	bad := NewCSVReader(strings.NewReader("id\n1\n"), "bad")

	_, _, err := Multi(bad).Load(context.Background())
	require.ErrorIs(t, err, common.ErrMissingColumns)
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Time
		wantErr bool
	}{
		{in: "2024-03-01", want: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)},
		{in: "2024-03-01T12:30", want: time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)},
		{in: "2024-03-01T12:30:15.5", want: time.Date(2024, 3, 1, 12, 30, 15, 500000000, time.UTC)},
		{in: "2024-03-01T12:30:15-05:00", want: time.Date(2024, 3, 1, 17, 30, 15, 0, time.UTC)},
		{in: "", wantErr: true},
		{in: "03/01/2024", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTimestamp(tt.in, time.UTC)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, got.Equal(tt.want), "got %s", got)
		})
	}
}
