// Package simplefin pulls vendor payments from a SimpleFIN Bridge connection.
package simplefin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/leakscan/internal/common"
	"github.com/Veraticus/leakscan/internal/ingest"
	"github.com/Veraticus/leakscan/internal/model"
	"github.com/Veraticus/leakscan/internal/normalize"
)

var currencyCode = regexp.MustCompile(`^[A-Z]{3}$`)

// Config holds SimpleFIN settings.
type Config struct {
	Token     string // One-time setup token, only needed until it is claimed
	StateFile string // Where the claimed access URL is kept
}

type accountSet struct {
	Errors   []string  `json:"errors"`
	Accounts []account `json:"accounts"`
}

type account struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Currency     string        `json:"currency"`
	Transactions []transaction `json:"transactions"`
}

type transaction struct {
	ID          string `json:"id"`
	Amount      string `json:"amount"`
	Description string `json:"description"`
	Payee       string `json:"payee"`
	Posted      int64  `json:"posted"`
	Pending     bool   `json:"pending"`
}

// Client fetches account data from a SimpleFIN access URL.
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	accessURL  string
	retryOpts  common.RetryOptions
}

// NewClient creates a client, claiming cfg.Token if no access URL is saved yet.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.StateFile == "" {
		return nil, fmt.Errorf("%w: simplefin state file is required", common.ErrMissingConfig)
	}
	httpClient := &http.Client{Timeout: 30 * time.Second}
	logger := slog.Default().With("component", "simplefin")

	auth, err := loadOrClaim(ctx, httpClient, cfg, logger)
	if err != nil {
		return nil, err
	}
	return newClient(auth.AccessURL, httpClient), nil
}

func newClient(accessURL string, httpClient *http.Client) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     slog.Default().With("component", "simplefin"),
		accessURL:  strings.TrimRight(accessURL, "/"),
		retryOpts: common.RetryOptions{
			MaxAttempts:  3,
			InitialDelay: 1 * time.Second,
			MaxDelay:     30 * time.Second,
			Multiplier:   2.0,
		},
	}
}

// GetTransactions fetches posted transactions between startDate and endDate
// across every account and keeps the outflows.
func (c *Client) GetTransactions(ctx context.Context, startDate, endDate time.Time) ([]model.Transaction, ingest.Stats, error) {
	if startDate.After(endDate) {
		return nil, ingest.Stats{}, fmt.Errorf("start date must be before end date")
	}

	q := url.Values{}
	q.Set("start-date", strconv.FormatInt(startDate.Unix(), 10))
	// end-date is exclusive
	q.Set("end-date", strconv.FormatInt(endDate.AddDate(0, 0, 1).Unix(), 10))

	set, err := c.fetch(ctx, q)
	if err != nil {
		return nil, ingest.Stats{}, err
	}

	var (
		out   []model.Transaction
		stats ingest.Stats
	)
	seen := make(map[string]struct{})
	for _, acct := range set.Accounts {
		for _, st := range acct.Transactions {
			stats.Rows++
			tx, err := mapTransaction(acct, st)
			if err == nil && (tx.Date.Before(startDate) || !tx.Date.Before(endDate.AddDate(0, 0, 1))) {
				err = fmt.Errorf("outside the requested range")
			}
			if err != nil {
				stats.Skipped++
				c.logger.Debug("Skipping SimpleFIN transaction", "transaction_id", st.ID, "reason", err)
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
	}

	c.logger.Info("Fetched SimpleFIN transactions",
		"accounts", len(set.Accounts),
		"fetched", stats.Rows,
		"loaded", stats.Loaded)
	return out, stats, nil
}

// GetAccounts returns "id (name)" for every connected account.
func (c *Client) GetAccounts(ctx context.Context) ([]string, error) {
	q := url.Values{}
	q.Set("balances-only", "1")
	set, err := c.fetch(ctx, q)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(set.Accounts))
	for _, a := range set.Accounts {
		out = append(out, fmt.Sprintf("%s (%s)", a.ID, a.Name))
	}
	return out, nil
}

func (c *Client) fetch(ctx context.Context, q url.Values) (accountSet, error) {
	var set accountSet
	err := common.WithRetry(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.accessURL+"/accounts?"+q.Encode(), nil)
		if err != nil {
			return &common.RetryableError{Err: fmt.Errorf("failed to create request: %w", err)}
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer func() {
			_ = resp.Body.Close()
		}()

		if resp.StatusCode != http.StatusOK {
			return classify(resp)
		}
		set = accountSet{}
		if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
			return &common.RetryableError{Err: fmt.Errorf("failed to decode response: %w", err)}
		}
		return nil
	}, c.retryOpts)
	if err != nil {
		return accountSet{}, fmt.Errorf("simplefin: %w", err)
	}

	for _, msg := range set.Errors {
		c.logger.Warn("SimpleFIN reported a problem", "message", msg)
	}
	return set, nil
}

// classify turns a non-200 response into an error. Rate limiting and server
// failures are retried; anything else is final.
func classify(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	err := fmt.Errorf("SimpleFIN API error: %d - %s", resp.StatusCode, strings.TrimSpace(string(body)))
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return &common.RetryableError{Err: fmt.Errorf("%w: %w", common.ErrRateLimit, err), Retryable: true}
	case resp.StatusCode >= 500:
		return &common.RetryableError{Err: err, Retryable: true}
	}
	return &common.RetryableError{Err: err}
}

// mapTransaction converts a posted SimpleFIN transaction. SimpleFIN reports
// outflows as negative amounts; anything else is rejected.
func mapTransaction(acct account, st transaction) (model.Transaction, error) {
	if st.Pending || st.Posted == 0 {
		return model.Transaction{}, fmt.Errorf("not posted")
	}
	amount, err := decimal.NewFromString(st.Amount)
	if err != nil {
		return model.Transaction{}, fmt.Errorf("invalid amount %q: %w", st.Amount, err)
	}
	if !amount.IsNegative() {
		return model.Transaction{}, fmt.Errorf("not an outflow")
	}

	currency := strings.ToUpper(acct.Currency)
	if !currencyCode.MatchString(currency) {
		return model.Transaction{}, fmt.Errorf("custom currency %q is not supported", acct.Currency)
	}

	merchant := strings.TrimSpace(st.Payee)
	if merchant == "" {
		merchant = strings.TrimSpace(st.Description)
	}
	vendor, err := normalize.Vendor(merchant)
	if err != nil {
		return model.Transaction{}, err
	}

	tx := model.Transaction{
		ID:          acct.ID + "_" + st.ID,
		Date:        time.Unix(st.Posted, 0).UTC(),
		VendorRaw:   merchant,
		VendorName:  vendor,
		Amount:      amount.Abs(),
		Currency:    currency,
		Description: st.Description,
	}
	if err := tx.Validate(); err != nil {
		return model.Transaction{}, err
	}
	return tx, nil
}

// Source adapts a Client and a date range to ingest.Source.
type Source struct {
	client *Client
	start  time.Time
	end    time.Time
}

// NewSource creates a source that fetches transactions between start and end.
func NewSource(client *Client, start, end time.Time) *Source {
	return &Source{client: client, start: start, end: end}
}

// Load implements ingest.Source.
func (s *Source) Load(ctx context.Context) ([]model.Transaction, ingest.Stats, error) {
	return s.client.GetTransactions(ctx, s.start, s.end)
}
