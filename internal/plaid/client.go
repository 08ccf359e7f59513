// Package plaid pulls vendor payments from a linked account through the Plaid API.
package plaid

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/plaid/plaid-go/v20/plaid"
	"github.com/shopspring/decimal"

	"github.com/Veraticus/leakscan/internal/common"
	"github.com/Veraticus/leakscan/internal/ingest"
	"github.com/Veraticus/leakscan/internal/model"
	"github.com/Veraticus/leakscan/internal/normalize"
)

const (
	dateLayout = "2006-01-02"
	// pageSize is the largest page /transactions/get will return.
	pageSize = int32(500)
)

// Config holds Plaid API configuration.
type Config struct {
	ClientID    string
	Secret      string
	Environment string // sandbox or production
	AccessToken string
}

// Validate ensures all required fields are present.
func (c Config) Validate() error {
	if c.ClientID == "" {
		return fmt.Errorf("%w: plaid client ID is required", common.ErrMissingConfig)
	}
	if c.Secret == "" {
		return fmt.Errorf("%w: plaid secret is required", common.ErrMissingConfig)
	}
	if c.AccessToken == "" {
		return fmt.Errorf("%w: plaid access token is required", common.ErrMissingConfig)
	}
	if c.Environment == "" {
		return fmt.Errorf("%w: plaid environment is required", common.ErrMissingConfig)
	}
	if _, ok := environments[c.Environment]; !ok {
		return fmt.Errorf("%w: invalid Plaid environment %q: must be sandbox or production", common.ErrInvalidConfig, c.Environment)
	}
	return nil
}

var environments = map[string]plaid.Environment{
	"sandbox":    plaid.Sandbox,
	"production": plaid.Production,
}

// page is one page of /transactions/get.
type page struct {
	transactions []plaid.Transaction
	total        int32
}

// api is the slice of the Plaid API the client uses.
type api interface {
	transactions(ctx context.Context, start, end string, offset int32) (page, error)
	accounts(ctx context.Context) ([]plaid.AccountBase, error)
}

// Client fetches transactions from Plaid.
type Client struct {
	api       api
	logger    *slog.Logger
	retryOpts common.RetryOptions
}

// NewClient creates a new Plaid client with the given configuration.
func NewClient(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	configuration := plaid.NewConfiguration()
	configuration.AddDefaultHeader("PLAID-CLIENT-ID", cfg.ClientID)
	configuration.AddDefaultHeader("PLAID-SECRET", cfg.Secret)
	configuration.UseEnvironment(environments[cfg.Environment])

	return newClient(&remoteAPI{
		client:      plaid.NewAPIClient(configuration),
		accessToken: cfg.AccessToken,
	}), nil
}

func newClient(a api) *Client {
	return &Client{
		api:    a,
		logger: slog.Default().With("component", "plaid"),
		retryOpts: common.RetryOptions{
			MaxAttempts:  3,
			InitialDelay: 1 * time.Second,
			MaxDelay:     30 * time.Second,
			Multiplier:   2.0,
		},
	}
}

// GetTransactions fetches every page of transactions between startDate and
// endDate and keeps the outflows. Inflows and unusable rows are counted as
// skipped.
func (c *Client) GetTransactions(ctx context.Context, startDate, endDate time.Time) ([]model.Transaction, ingest.Stats, error) {
	if startDate.After(endDate) {
		return nil, ingest.Stats{}, fmt.Errorf("start date must be before end date")
	}

	start, end := startDate.Format(dateLayout), endDate.Format(dateLayout)
	c.logger.Info("Fetching transactions from Plaid", "start_date", start, "end_date", end)

	var fetched []plaid.Transaction
	offset := int32(0)
	for {
		var p page
		err := common.WithRetry(ctx, func() error {
			var err error
			p, err = c.api.transactions(ctx, start, end, offset)
			return classify(err)
		}, c.retryOpts)
		if err != nil {
			return nil, ingest.Stats{}, fmt.Errorf("%w: %w", common.ErrPlaidConnection, err)
		}

		fetched = append(fetched, p.transactions...)
		c.logger.Debug("Fetched transaction page",
			"count", len(p.transactions),
			"offset", offset,
			"total", p.total)

		if len(p.transactions) < int(pageSize) || int32(len(fetched)) >= p.total {
			break
		}
		offset += pageSize
	}

	var (
		out   []model.Transaction
		stats ingest.Stats
	)
	seen := make(map[string]struct{})
	for _, pt := range fetched {
		stats.Rows++
		tx, err := mapTransaction(pt)
		if err != nil {
			stats.Skipped++
			c.logger.Debug("Skipping Plaid transaction", "transaction_id", pt.GetTransactionId(), "reason", err)
			continue
		}
		if _, dup := seen[tx.ID]; dup {
			stats.Duplicates++
			continue
		}
		seen[tx.ID] = struct{}{}
		out = append(out, tx)
		stats.Loaded++
	}

	c.logger.Info("Fetched all transactions", "fetched", stats.Rows, "loaded", stats.Loaded)
	return out, stats, nil
}

// GetAccounts fetches the account ids linked to the access token.
func (c *Client) GetAccounts(ctx context.Context) ([]string, error) {
	var accounts []plaid.AccountBase
	err := common.WithRetry(ctx, func() error {
		var err error
		accounts, err = c.api.accounts(ctx)
		return classify(err)
	}, c.retryOpts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrPlaidConnection, err)
	}

	ids := make([]string, 0, len(accounts))
	for _, account := range accounts {
		ids = append(ids, account.GetAccountId())
	}
	return ids, nil
}

// classify marks rate limiting as retryable and every other API error as final.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if plaidErr, convErr := plaid.ToPlaidError(err); convErr == nil {
		if plaidErr.ErrorCode == "RATE_LIMIT_EXCEEDED" {
			return &common.RetryableError{Err: fmt.Errorf("%w: %s", common.ErrPlaidRateLimit, plaidErr.ErrorMessage), Retryable: true}
		}
		return &common.RetryableError{
			Err:       fmt.Errorf("plaid API error: %s - %s", plaidErr.ErrorCode, plaidErr.ErrorMessage),
			Retryable: false,
		}
	}
	return err
}

// mapTransaction converts a Plaid transaction. Plaid reports outflows as
// positive amounts; anything else is rejected.
func mapTransaction(pt plaid.Transaction) (model.Transaction, error) {
	amount := decimal.NewFromFloat(pt.GetAmount())
	if !amount.IsPositive() {
		return model.Transaction{}, fmt.Errorf("not an outflow")
	}

	date, err := time.Parse(dateLayout, pt.GetDate())
	if err != nil {
		return model.Transaction{}, fmt.Errorf("invalid date %q: %w", pt.GetDate(), err)
	}

	currency := pt.GetIsoCurrencyCode()
	if currency == "" {
		currency = pt.GetUnofficialCurrencyCode()
	}

	merchant := pt.GetMerchantName()
	if merchant == "" {
		merchant = pt.GetName()
	}
	merchant = stripReference(merchant)

	vendor, err := normalize.Vendor(merchant)
	if err != nil {
		return model.Transaction{}, err
	}

	tx := model.Transaction{
		ID:            pt.GetTransactionId(),
		Date:          date,
		VendorRaw:     merchant,
		VendorName:    vendor,
		Amount:        amount,
		Currency:      strings.ToUpper(currency),
		Description:   pt.GetName(),
		PaymentMethod: pt.GetPaymentChannel(),
	}
	if cats := pt.GetCategory(); len(cats) > 0 {
		tx.Category = strings.Join(cats, " > ")
	}
	if err := tx.Validate(); err != nil {
		return model.Transaction{}, err
	}
	return tx, nil
}

// stripReference drops a trailing token of six or more digits, which
// processors append as a reference number.
func stripReference(name string) string {
	parts := strings.Fields(name)
	if len(parts) > 1 {
		last := parts[len(parts)-1]
		if len(last) > 5 && isAllDigits(last) {
			parts = parts[:len(parts)-1]
		}
	}
	return strings.Join(parts, " ")
}

func isAllDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// remoteAPI talks to Plaid over HTTP.
type remoteAPI struct {
	client      *plaid.APIClient
	accessToken string
}

func (r *remoteAPI) transactions(ctx context.Context, start, end string, offset int32) (page, error) {
	request := plaid.NewTransactionsGetRequest(r.accessToken, start, end)
	request.SetOptions(plaid.TransactionsGetRequestOptions{
		Count:  plaid.PtrInt32(pageSize),
		Offset: plaid.PtrInt32(offset),
	})

	resp, _, err := r.client.PlaidApi.TransactionsGet(ctx).TransactionsGetRequest(*request).Execute()
	if err != nil {
		return page{}, err
	}
	return page{transactions: resp.GetTransactions(), total: resp.GetTotalTransactions()}, nil
}

func (r *remoteAPI) accounts(ctx context.Context) ([]plaid.AccountBase, error) {
	request := plaid.NewAccountsGetRequest(r.accessToken)
	resp, _, err := r.client.PlaidApi.AccountsGet(ctx).AccountsGetRequest(*request).Execute()
	if err != nil {
		return nil, err
	}
	return resp.GetAccounts(), nil
}

// Ensure Client implements TransactionFetcher interface.
var _ TransactionFetcher = (*Client)(nil)
