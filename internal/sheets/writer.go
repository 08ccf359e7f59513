package sheets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/Veraticus/leakscan/internal/common"
	"github.com/Veraticus/leakscan/internal/model"
)

// ResultWriter exports an engine result and reports where it went.
type ResultWriter interface {
	Write(ctx context.Context, result *model.Result) (string, error)
}

// Writer exports results to a Google Sheets spreadsheet.
type Writer struct {
	service *sheets.Service
	logger  *slog.Logger
	config  Config
}

// NewWriter creates a new Google Sheets report writer.
func NewWriter(ctx context.Context, config Config, logger *slog.Logger) (*Writer, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	srv, err := createSheetsService(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}

	return newWriter(srv, config, logger), nil
}

func newWriter(srv *sheets.Service, config Config, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{
		service: srv,
		config:  config,
		logger:  logger,
	}
}

// Write exports the result and returns the spreadsheet id it was written to.
func (w *Writer) Write(ctx context.Context, result *model.Result) (string, error) {
	if result == nil {
		return "", fmt.Errorf("no result to export")
	}
	data := BuildTabData(result)

	w.logger.Info("starting sheets export",
		"detections", len(result.Detections),
		"vendors", len(result.VendorRanking))

	retryOpts := common.RetryOptions{
		MaxAttempts:  w.config.RetryAttempts,
		InitialDelay: w.config.RetryDelay,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}

	var sheetIDs map[string]int64
	spreadsheetID := w.config.SpreadsheetID
	err := common.WithRetry(ctx, func() error {
		var err error
		spreadsheetID, sheetIDs, err = w.ensureSpreadsheet(ctx, spreadsheetID)
		return classify(err)
	}, retryOpts)
	if err != nil {
		return "", fmt.Errorf("failed to get spreadsheet: %w", err)
	}

	rows := 0
	for _, tab := range data.All() {
		err := common.WithRetry(ctx, func() error {
			if err := w.clearTab(ctx, spreadsheetID, tab.Title); err != nil {
				return classify(err)
			}
			return classify(w.writeTab(ctx, spreadsheetID, tab))
		}, retryOpts)
		if err != nil {
			return "", fmt.Errorf("failed to write %s tab: %w", tab.Title, err)
		}
		rows += len(tab.Rows)
	}

	if w.config.EnableFormatting {
		err := common.WithRetry(ctx, func() error {
			return classify(w.applyFormatting(ctx, spreadsheetID, sheetIDs, data))
		}, retryOpts)
		if err != nil {
			w.logger.Warn("failed to apply formatting", "error", err)
		}
	}

	w.logger.Info("sheets export completed",
		"spreadsheet_id", spreadsheetID,
		"rows_written", rows)

	return spreadsheetID, nil
}

// classify marks server-side and quota failures as retryable and every other
// API error as permanent.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusTooManyRequests:
			return fmt.Errorf("%w: %w", common.ErrRateLimit, err)
		case apiErr.Code >= http.StatusInternalServerError:
			return &common.RetryableError{Err: err, Retryable: true}
		default:
			return &common.RetryableError{Err: err, Retryable: false}
		}
	}
	return err
}

func createSheetsService(ctx context.Context, config Config) (*sheets.Service, error) {
	var tokenSource oauth2.TokenSource

	if config.ServiceAccountPath != "" {
		jsonKey, err := os.ReadFile(config.ServiceAccountPath)
		if err != nil {
			return nil, fmt.Errorf("unable to read service account key file: %w", err)
		}

		jwtConfig, err := google.JWTConfigFromJSON(jsonKey, sheets.SpreadsheetsScope)
		if err != nil {
			return nil, fmt.Errorf("unable to parse service account key: %w", err)
		}

		tokenSource = jwtConfig.TokenSource(ctx)
	} else {
		token := &oauth2.Token{
			RefreshToken: config.RefreshToken,
			TokenType:    "Bearer",
		}
		if token.RefreshToken == "" {
			saved, err := LoadToken(config.TokenFile)
			if err != nil {
				return nil, fmt.Errorf("unable to load token file: %w", err)
			}
			token = saved
		}
		tokenSource = oauthConfig(config.ClientID, config.ClientSecret, "").TokenSource(ctx, token)
	}

	srv, err := sheets.NewService(ctx, option.WithHTTPClient(oauth2.NewClient(ctx, tokenSource)))
	if err != nil {
		return nil, fmt.Errorf("unable to create sheets service: %w", err)
	}
	return srv, nil
}

// ensureSpreadsheet opens or creates the spreadsheet and makes sure every tab
// exists. It returns the spreadsheet id and the sheet id of each tab.
func (w *Writer) ensureSpreadsheet(ctx context.Context, spreadsheetID string) (string, map[string]int64, error) {
	if spreadsheetID == "" {
		created, err := w.service.Spreadsheets.Create(w.newSpreadsheet()).Context(ctx).Do()
		if err != nil {
			return "", nil, fmt.Errorf("unable to create spreadsheet: %w", err)
		}
		w.logger.Info("created new spreadsheet",
			"id", created.SpreadsheetId,
			"url", created.SpreadsheetUrl)
		return created.SpreadsheetId, sheetIDsOf(created), nil
	}

	existing, err := w.service.Spreadsheets.Get(spreadsheetID).Context(ctx).Do()
	if err != nil {
		return "", nil, fmt.Errorf("unable to access spreadsheet %s: %w", spreadsheetID, err)
	}
	ids := sheetIDsOf(existing)

	var requests []*sheets.Request
	for _, title := range Tabs {
		if _, ok := ids[title]; !ok {
			requests = append(requests, &sheets.Request{
				AddSheet: &sheets.AddSheetRequest{
					Properties: &sheets.SheetProperties{Title: title},
				},
			})
		}
	}
	if len(requests) == 0 {
		return spreadsheetID, ids, nil
	}

	resp, err := w.service.Spreadsheets.BatchUpdate(spreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{
		Requests: requests,
	}).Context(ctx).Do()
	if err != nil {
		return "", nil, fmt.Errorf("unable to add tabs: %w", err)
	}
	for _, reply := range resp.Replies {
		if reply.AddSheet != nil && reply.AddSheet.Properties != nil {
			ids[reply.AddSheet.Properties.Title] = reply.AddSheet.Properties.SheetId
		}
	}
	return spreadsheetID, ids, nil
}

func (w *Writer) newSpreadsheet() *sheets.Spreadsheet {
	ss := &sheets.Spreadsheet{
		Properties: &sheets.SpreadsheetProperties{
			Title:    w.config.SpreadsheetName,
			TimeZone: w.config.TimeZone,
		},
	}
	for _, title := range Tabs {
		ss.Sheets = append(ss.Sheets, &sheets.Sheet{
			Properties: &sheets.SheetProperties{Title: title},
		})
	}
	return ss
}

func sheetIDsOf(ss *sheets.Spreadsheet) map[string]int64 {
	ids := make(map[string]int64, len(ss.Sheets))
	for _, s := range ss.Sheets {
		if s.Properties != nil {
			ids[s.Properties.Title] = s.Properties.SheetId
		}
	}
	return ids
}

func (w *Writer) clearTab(ctx context.Context, spreadsheetID, title string) error {
	_, err := w.service.Spreadsheets.Values.Clear(spreadsheetID, quoteTab(title)+"!A:Z", &sheets.ClearValuesRequest{}).
		Context(ctx).
		Do()
	return err
}

// writeTab writes the tab's rows in batches to stay under API payload limits.
func (w *Writer) writeTab(ctx context.Context, spreadsheetID string, tab Tab) error {
	batchSize := w.config.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultConfig().BatchSize
	}

	for i := 0; i < len(tab.Rows); i += batchSize {
		end := min(i+batchSize, len(tab.Rows))

		rangeStr := fmt.Sprintf("%s!A%d", quoteTab(tab.Title), i+1)
		_, err := w.service.Spreadsheets.Values.Update(spreadsheetID, rangeStr, &sheets.ValueRange{
			Values: tab.Rows[i:end],
		}).
			ValueInputOption("USER_ENTERED").
			Context(ctx).
			Do()
		if err != nil {
			return fmt.Errorf("failed to write batch starting at row %d: %w", i+1, err)
		}

		w.logger.Debug("wrote batch", "tab", tab.Title, "start_row", i+1, "rows", end-i)
	}
	return nil
}

func (w *Writer) applyFormatting(ctx context.Context, spreadsheetID string, sheetIDs map[string]int64, data TabData) error {
	var requests []*sheets.Request
	for _, tab := range data.All() {
		id, ok := sheetIDs[tab.Title]
		if !ok || len(tab.Rows) == 0 {
			continue
		}
		requests = append(requests,
			&sheets.Request{
				RepeatCell: &sheets.RepeatCellRequest{
					Range: &sheets.GridRange{
						SheetId:       id,
						StartRowIndex: 0,
						EndRowIndex:   1,
					},
					Cell: &sheets.CellData{
						UserEnteredFormat: &sheets.CellFormat{
							TextFormat: &sheets.TextFormat{Bold: true},
						},
					},
					Fields: "userEnteredFormat.textFormat",
				},
			},
			&sheets.Request{
				UpdateSheetProperties: &sheets.UpdateSheetPropertiesRequest{
					Properties: &sheets.SheetProperties{
						SheetId:        id,
						GridProperties: &sheets.GridProperties{FrozenRowCount: 1},
					},
					Fields: "gridProperties.frozenRowCount",
				},
			},
			&sheets.Request{
				AutoResizeDimensions: &sheets.AutoResizeDimensionsRequest{
					Dimensions: &sheets.DimensionRange{
						SheetId:    id,
						Dimension:  "COLUMNS",
						StartIndex: 0,
						EndIndex:   int64(tab.width()),
					},
				},
			},
		)
	}
	if len(requests) == 0 {
		return nil
	}

	_, err := w.service.Spreadsheets.BatchUpdate(spreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{
		Requests: requests,
	}).Context(ctx).Do()
	return err
}

// width is the column count of the widest row.
func (t Tab) width() int {
	w := 0
	for _, row := range t.Rows {
		w = max(w, len(row))
	}
	return w
}

func quoteTab(title string) string {
	return "'" + title + "'"
}
