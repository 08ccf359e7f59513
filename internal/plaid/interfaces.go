package plaid

import (
	"context"
	"time"

	"github.com/Veraticus/leakscan/internal/ingest"
	"github.com/Veraticus/leakscan/internal/model"
)

// TransactionFetcher defines the contract for fetching transaction data.
type TransactionFetcher interface {
	GetTransactions(ctx context.Context, startDate, endDate time.Time) ([]model.Transaction, ingest.Stats, error)
	GetAccounts(ctx context.Context) ([]string, error)
}

// Source adapts a TransactionFetcher and a date range to ingest.Source.
type Source struct {
	fetcher TransactionFetcher
	start   time.Time
	end     time.Time
}

// NewSource creates a source that fetches transactions between start and end.
func NewSource(fetcher TransactionFetcher, start, end time.Time) *Source {
	return &Source{fetcher: fetcher, start: start, end: end}
}

// Load implements ingest.Source.
func (s *Source) Load(ctx context.Context) ([]model.Transaction, ingest.Stats, error) {
	return s.fetcher.GetTransactions(ctx, s.start, s.end)
}
