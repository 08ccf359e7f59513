// Package ofx loads vendor payments from OFX and QFX bank and credit card statements.
package ofx

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/aclindsa/ofxgo"
	"github.com/shopspring/decimal"

	"github.com/Veraticus/leakscan/internal/ingest"
	"github.com/Veraticus/leakscan/internal/model"
	"github.com/Veraticus/leakscan/internal/normalize"
)

// DefaultCurrency is used when a statement carries no usable CURDEF.
const DefaultCurrency = "USD"

// amountPlaces bounds the decimal expansion of OFX amounts.
const amountPlaces = 10

var (
	severityPattern = regexp.MustCompile(`(?i)<SEVERITY>(Info|Warn|Error)</SEVERITY>`)
	// An SGML opening tag alone on its line with the closing bracket missing.
	unclosedTagPattern = regexp.MustCompile(`(?m)^(\s*<[A-Z][A-Z0-9._]*[A-Z0-9])$`)
	// A leading "MM/DD " stamp some banks prepend to the merchant.
	datePrefixPattern = regexp.MustCompile(`^\d{2}/\d{2}\s+`)
)

var merchantPrefixes = []string{
	"POS PURCHASE ",
	"PURCHASE AUTHORIZED ON ",
	"DEBIT CARD PURCHASE ",
	"ACH DEBIT ",
	"CHECK CARD ",
	"VISA PURCHASE ",
	"MC PURCHASE ",
	"DEBIT PURCHASE ",
}

var genericDescriptions = map[string]struct{}{
	"DEBIT":           {},
	"CREDIT":          {},
	"PURCHASE":        {},
	"PAYMENT":         {},
	"POS TRANSACTION": {},
	"CARD PURCHASE":   {},
}

// Parser converts OFX statements into transactions.
type Parser struct {
	logger *slog.Logger
}

// NewParser creates a new OFX parser. A nil logger falls back to slog.Default.
func NewParser(logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{logger: logger.With("component", "ofx_parser")}
}

// preprocess repairs formatting problems common in bank-generated files.
func (p *Parser) preprocess(content string) string {
	content = strings.TrimLeft(content, " \t\r\n")
	content = severityPattern.ReplaceAllStringFunc(content, strings.ToUpper)
	return unclosedTagPattern.ReplaceAllString(content, "$1>")
}

func (p *Parser) parseResponse(r io.Reader) (*ofxgo.Response, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read OFX file: %w", err)
	}
	resp, err := ofxgo.ParseResponse(strings.NewReader(p.preprocess(string(content))))
	if err != nil {
		return nil, fmt.Errorf("failed to parse OFX file: %w", err)
	}
	return resp, nil
}

// statement is the part of a bank or credit card statement the parser needs.
type statement struct {
	account  string
	currency string
	txns     []ofxgo.Transaction
}

// Parse reads every bank and credit card statement in r. Transactions with
// no usable merchant, or whose FITID was already seen, are skipped.
func (p *Parser) Parse(ctx context.Context, r io.Reader) ([]model.Transaction, ingest.Stats, error) {
	resp, err := p.parseResponse(r)
	if err != nil {
		return nil, ingest.Stats{}, err
	}

	var stmts []statement
	for _, msg := range resp.Bank {
		if stmt, ok := msg.(*ofxgo.StatementResponse); ok && stmt.BankTranList != nil {
			stmts = append(stmts, statement{
				account:  string(stmt.BankAcctFrom.AcctID),
				currency: statementCurrency(stmt.CurDef),
				txns:     stmt.BankTranList.Transactions,
			})
		}
	}
	for _, msg := range resp.CreditCard {
		if stmt, ok := msg.(*ofxgo.CCStatementResponse); ok && stmt.BankTranList != nil {
			stmts = append(stmts, statement{
				account:  string(stmt.CCAcctFrom.AcctID),
				currency: statementCurrency(stmt.CurDef),
				txns:     stmt.BankTranList.Transactions,
			})
		}
	}

	var (
		out   []model.Transaction
		stats ingest.Stats
	)
	seen := make(map[string]struct{})

	for _, stmt := range stmts {
		for _, ofxTx := range stmt.txns {
			if err := ctx.Err(); err != nil {
				return nil, stats, err
			}
			stats.Rows++

			tx, err := p.convert(ofxTx, stmt.currency)
			if err != nil {
				stats.Skipped++
				p.logger.Warn("Skipping OFX transaction",
					"account", stmt.account,
					"fitid", string(ofxTx.FiTID),
					"error", err)
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

	p.logger.Info("Parsed OFX file",
		"statements", len(stmts),
		"transactions", stats.Loaded,
		"skipped", stats.Skipped)

	return out, stats, nil
}

// convert maps one OFX transaction onto the model. Amounts are made positive
// since OFX signs debits negative.
func (p *Parser) convert(ofxTx ofxgo.Transaction, currency string) (model.Transaction, error) {
	if ofxTx.Currency != nil {
		if code := currencyCode(ofxTx.Currency.CurSym); code != "" {
			currency = code
		}
	}

	raw := ofxTx.TrnAmt.FloatString(amountPlaces)
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return model.Transaction{}, fmt.Errorf("invalid amount %q: %w", raw, err)
	}

	merchant := extractMerchantName(ofxTx)
	vendor, err := normalize.Vendor(merchant)
	if err != nil {
		return model.Transaction{}, err
	}

	tx := model.Transaction{
		ID:            string(ofxTx.FiTID),
		Date:          ofxTx.DtPosted.Time,
		VendorRaw:     merchant,
		VendorName:    vendor,
		Amount:        amount.Abs(),
		Currency:      currency,
		Description:   strings.TrimSpace(string(ofxTx.Memo)),
		PaymentMethod: ofxTx.TrnType.String(),
	}
	if ofxTx.CheckNum != "" {
		tx.PaymentMethod = "CHECK " + string(ofxTx.CheckNum)
	}
	if err := tx.Validate(); err != nil {
		return model.Transaction{}, err
	}
	return tx, nil
}

func statementCurrency(sym ofxgo.CurrSymbol) string {
	if code := currencyCode(sym); code != "" {
		return code
	}
	return DefaultCurrency
}

// currencyCode returns the ISO code of sym, or "" if it is unset or invalid.
func currencyCode(sym ofxgo.CurrSymbol) string {
	if ok, _ := sym.Valid(); !ok {
		return ""
	}
	return sym.String()
}

// extractMerchantName picks the cleanest merchant name the transaction offers.
func extractMerchantName(tx ofxgo.Transaction) string {
	if tx.Payee != nil && tx.Payee.Name != "" {
		return strings.TrimSpace(string(tx.Payee.Name))
	}

	name := strings.TrimSpace(string(tx.Name))
	if tx.Memo != "" && isGenericDescription(name) {
		name = strings.TrimSpace(string(tx.Memo))
	}

	upper := strings.ToUpper(name)
	for _, prefix := range merchantPrefixes {
		if strings.HasPrefix(upper, prefix) {
			name = name[len(prefix):]
			break
		}
	}

	return datePrefixPattern.ReplaceAllString(name, "")
}

func isGenericDescription(name string) bool {
	_, ok := genericDescriptions[strings.ToUpper(name)]
	return ok
}

// Accounts returns the sorted account ids present in the file.
func (p *Parser) Accounts(r io.Reader) ([]string, error) {
	resp, err := p.parseResponse(r)
	if err != nil {
		return nil, err
	}

	found := make(map[string]struct{})
	for _, msg := range resp.Bank {
		if stmt, ok := msg.(*ofxgo.StatementResponse); ok && stmt.BankAcctFrom.AcctID != "" {
			found[string(stmt.BankAcctFrom.AcctID)] = struct{}{}
		}
	}
	for _, msg := range resp.CreditCard {
		if stmt, ok := msg.(*ofxgo.CCStatementResponse); ok && stmt.CCAcctFrom.AcctID != "" {
			found[string(stmt.CCAcctFrom.AcctID)] = struct{}{}
		}
	}

	accounts := make([]string, 0, len(found))
	for acct := range found {
		accounts = append(accounts, acct)
	}
	sort.Strings(accounts)
	return accounts, nil
}

// Source adapts an OFX file to ingest.Source.
type Source struct {
	parser *Parser
	path   string
}

// NewSource creates a source for the OFX or QFX file at path.
func NewSource(path string, logger *slog.Logger) *Source {
	return &Source{path: path, parser: NewParser(logger)}
}

// Load implements ingest.Source.
func (s *Source) Load(ctx context.Context) ([]model.Transaction, ingest.Stats, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, ingest.Stats{}, fmt.Errorf("failed to open %s: %w", s.path, err)
	}
	defer func() {
		_ = f.Close()
	}()

	txns, stats, err := s.parser.Parse(ctx, f)
	if err != nil {
		return nil, stats, fmt.Errorf("%s: %w", s.path, err)
	}
	return txns, stats, nil
}
