package sheets

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/Veraticus/leakscan/internal/model"
)

// fakeSheets is an in-memory stand-in for the Sheets REST API.
type fakeSheets struct {
	updates      map[string][][]any
	failPuts     map[int]int // PUT call number to HTTP status
	titles       []string
	clears       []string
	batchUpdates []*sheets.BatchUpdateSpreadsheetRequest
	created      int
	puts         int
	failFormat   bool
	mu           sync.Mutex
}

func newFakeSheets(titles ...string) *fakeSheets {
	return &fakeSheets{
		titles:   titles,
		updates:  map[string][][]any{},
		failPuts: map[int]int{},
	}
}

func (f *fakeSheets) spreadsheet(id string) *sheets.Spreadsheet {
	ss := &sheets.Spreadsheet{SpreadsheetId: id}
	for i, title := range f.titles {
		ss.Sheets = append(ss.Sheets, &sheets.Sheet{
			Properties: &sheets.SheetProperties{Title: title, SheetId: int64(i + 1)},
		})
	}
	return ss
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := r.URL.Path
	switch {
	case r.Method == http.MethodPost && path == "/v4/spreadsheets":
		var ss sheets.Spreadsheet
		_ = json.NewDecoder(r.Body).Decode(&ss)
		f.created++
		f.titles = nil
		for _, s := range ss.Sheets {
			f.titles = append(f.titles, s.Properties.Title)
		}
		writeJSON(w, f.spreadsheet("created-id"))

	case r.Method == http.MethodGet && strings.HasPrefix(path, "/v4/spreadsheets/"):
		id := strings.TrimPrefix(path, "/v4/spreadsheets/")
		if id == "missing" {
			writeError(w, http.StatusNotFound)
			return
		}
		writeJSON(w, f.spreadsheet(id))

	case r.Method == http.MethodPost && strings.HasSuffix(path, ":batchUpdate"):
		var req sheets.BatchUpdateSpreadsheetRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		resp := &sheets.BatchUpdateSpreadsheetResponse{}
		isFormat := false
		for _, q := range req.Requests {
			if q.AddSheet == nil {
				isFormat = true
				resp.Replies = append(resp.Replies, &sheets.Response{})
				continue
			}
			f.titles = append(f.titles, q.AddSheet.Properties.Title)
			resp.Replies = append(resp.Replies, &sheets.Response{AddSheet: &sheets.AddSheetResponse{
				Properties: &sheets.SheetProperties{Title: q.AddSheet.Properties.Title, SheetId: int64(len(f.titles))},
			}})
		}
		f.batchUpdates = append(f.batchUpdates, &req)
		if isFormat && f.failFormat {
			writeError(w, http.StatusBadRequest)
			return
		}
		writeJSON(w, resp)

	case r.Method == http.MethodPost && strings.HasSuffix(path, ":clear"):
		f.clears = append(f.clears, rangeOf(path, ":clear"))
		writeJSON(w, &sheets.ClearValuesResponse{})

	case r.Method == http.MethodPut:
		f.puts++
		if code, ok := f.failPuts[f.puts]; ok {
			writeError(w, code)
			return
		}
		var vr sheets.ValueRange
		_ = json.NewDecoder(r.Body).Decode(&vr)
		f.updates[rangeOf(path, "")] = vr.Values
		writeJSON(w, &sheets.UpdateValuesResponse{})

	default:
		http.NotFound(w, r)
	}
}

func rangeOf(path, suffix string) string {
	i := strings.Index(path, "/values/")
	return strings.TrimSuffix(path[i+len("/values/"):], suffix)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = fmt.Fprintf(w, `{"error":{"code":%d,"message":"%s"}}`, code, http.StatusText(code))
}

func newTestWriter(t *testing.T, fake *fakeSheets, cfg Config) *Writer {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	svc, err := sheets.NewService(context.Background(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	if cfg.BatchSize == 0 {
		cfg.BatchSize = 100
	}
	cfg.RetryAttempts = 3
	cfg.RetryDelay = time.Millisecond
	return newWriter(svc, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func testResult(t *testing.T) *model.Result {
	t.Helper()
	var ds []model.DetectionResult
	for i, impact := range []string{"1200", "300", "49.99"} {
		d, err := model.NewDetection(model.DetectionDuplicate,
			[]string{fmt.Sprintf("t%d", i), fmt.Sprintf("u%d", i)}, "duplicate_within_7_days",
			model.Evidence{model.EvidenceVendor: "acme"}, decimal.RequireFromString(impact),
			0.95, model.SeverityMedium, "USD")
		require.NoError(t, err)
		ds = append(ds, d)
	}
	return &model.Result{
		EngineVersion: "2.0.0",
		State:         model.StateCompleted,
		DatasetHash:   "hash",
		Detections:    ds,
		VendorRanking: []model.VendorRanking{{
			Vendor:            "acme",
			RawScore:          decimal.RequireFromString("4.2"),
			NormalizedScore:   decimal.NewFromInt(1),
			RiskPercentile:    decimal.NewFromInt(1),
			TotalFlaggedSpend: decimal.RequireFromString("1549.99"),
		}},
		Summary: []model.CurrencySummary{{
			Currency:       "USD",
			FlaggedAmount:  decimal.RequireFromString("1549.99"),
			TotalSpend:     decimal.NewFromInt(5000),
			PercentFlagged: decimal.RequireFromString("30.9998"),
		}},
		Diagnostics: model.Diagnostics{Warnings: []string{"careful"}, Errors: []string{}},
	}
}

func TestWriter_CreatesSpreadsheet(t *testing.T) {
	fake := newFakeSheets()
	w := newTestWriter(t, fake, Config{SpreadsheetName: "Leaks", EnableFormatting: true})

	id, err := w.Write(context.Background(), testResult(t))
	require.NoError(t, err)

	assert.Equal(t, "created-id", id)
	assert.Equal(t, 1, fake.created)
	assert.Equal(t, Tabs, fake.titles)
	assert.ElementsMatch(t, []string{"'Summary'!A:Z", "'Detections'!A:Z", "'Vendor Ranking'!A:Z"}, fake.clears)

	detections := fake.updates["'Detections'!A1"]
	require.Len(t, detections, 4)
	assert.Equal(t, "Detection ID", detections[0][0])
	assert.Equal(t, "acme", detections[1][2])
	assert.Equal(t, "1200", detections[1][4])

	ranking := fake.updates["'Vendor Ranking'!A1"]
	require.Len(t, ranking, 2)
	assert.Equal(t, "acme", ranking[1][1])

	require.Len(t, fake.batchUpdates, 1, "formatting only")
	assert.Len(t, fake.batchUpdates[0].Requests, 9)
}

func TestWriter_AddsMissingTabs(t *testing.T) {
	fake := newFakeSheets(TabSummary)
	w := newTestWriter(t, fake, Config{SpreadsheetID: "existing"})

	id, err := w.Write(context.Background(), testResult(t))
	require.NoError(t, err)

	assert.Equal(t, "existing", id)
	assert.Zero(t, fake.created)
	assert.Equal(t, []string{TabSummary, TabDetections, TabVendorRanking}, fake.titles)
	require.Len(t, fake.batchUpdates, 1, "formatting disabled")
	assert.Len(t, fake.batchUpdates[0].Requests, 2)
}

func TestWriter_Batches(t *testing.T) {
	fake := newFakeSheets()
	w := newTestWriter(t, fake, Config{BatchSize: 2})

	_, err := w.Write(context.Background(), testResult(t))
	require.NoError(t, err)

	assert.Len(t, fake.updates["'Detections'!A1"], 2)
	assert.Len(t, fake.updates["'Detections'!A3"], 2)
}

func TestWriter_RetriesServerErrors(t *testing.T) {
	fake := newFakeSheets()
	fake.failPuts[1] = http.StatusServiceUnavailable
	w := newTestWriter(t, fake, Config{})

	_, err := w.Write(context.Background(), testResult(t))
	require.NoError(t, err)
	assert.Equal(t, 4, fake.puts)
}

func TestWriter_ClientErrorsAreFinal(t *testing.T) {
	fake := newFakeSheets()
	fake.failPuts[1] = http.StatusBadRequest
	w := newTestWriter(t, fake, Config{})

	_, err := w.Write(context.Background(), testResult(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Summary")
	assert.Equal(t, 1, fake.puts)
}

func TestWriter_InaccessibleSpreadsheet(t *testing.T) {
	w := newTestWriter(t, newFakeSheets(), Config{SpreadsheetID: "missing"})

	_, err := w.Write(context.Background(), testResult(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unable to access spreadsheet missing")
}

func TestWriter_FormattingFailureIsNotFatal(t *testing.T) {
	fake := newFakeSheets()
	fake.failFormat = true
	w := newTestWriter(t, fake, Config{EnableFormatting: true})

	_, err := w.Write(context.Background(), testResult(t))
	assert.NoError(t, err)
}

func TestWriter_NilResult(t *testing.T) {
	w := newTestWriter(t, newFakeSheets(), Config{})
	_, err := w.Write(context.Background(), nil)
	assert.Error(t, err)
}

func TestBuildTabData(t *testing.T) {
	data := BuildTabData(testResult(t))

	assert.Equal(t, TabSummary, data.Summary.Title)
	assert.Contains(t, data.Summary.Rows, []any{"Total flagged", "1549.99"})
	assert.Contains(t, data.Summary.Rows, []any{"USD", "1549.99", "5000", "30.9998"})
	assert.Contains(t, data.Summary.Rows, []any{"warning", "careful"})

	assert.Len(t, data.Detections.Rows, 4)
	assert.Equal(t, "t0, u0", data.Detections.Rows[1][8])
	assert.Equal(t, 1, data.VendorRanking.Rows[1][0])
	assert.Equal(t, 10, data.VendorRanking.width())
}

func TestLoadToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "token.json")
	require.NoError(t, saveToken(path, &oauth2.Token{RefreshToken: "refresh", TokenType: "Bearer"}))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	token, err := LoadToken(path)
	require.NoError(t, err)
	assert.Equal(t, "refresh", token.RefreshToken)

	_, err = LoadToken(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)
}

func TestMockWriter(t *testing.T) {
	m := NewMockWriter()
	id, err := m.Write(context.Background(), testResult(t))
	require.NoError(t, err)
	assert.Equal(t, "mock-spreadsheet", id)

	m.SetWriteError(assert.AnError)
	_, err = m.Write(context.Background(), nil)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Len(t, m.GetWriteCalls(), 2)
}
