package server

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/leakscan/internal/certs"
	"github.com/Veraticus/leakscan/internal/engine"
	"github.com/Veraticus/leakscan/internal/model"
)

const sampleCSV = `transaction_id,date,vendor_name,amount,currency
d1,2024-01-01,Acme Inc.,1200.00,USD
d2,2024-01-03,ACME,1200.00,USD
r1,2024-01-05,StreamCo,49.99,USD
r2,2024-02-04,StreamCo,49.99,USD
r3,2024-03-05,StreamCo,49.99,USD
r4,2024-04-03,StreamCo,49.99,USD
x1,2024-01-10,Globex,8000,USD
bad,not-a-date,Globex,1,USD
`

const sampleOFX = `OFXHEADER:100
DATA:OFXSGML
VERSION:102
SECURITY:NONE
ENCODING:USASCII
CHARSET:1252
COMPRESSION:NONE
OLDFILEUID:NONE
NEWFILEUID:NONE

<OFX>
<SIGNONMSGSRSV1>
<SONRS>
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<DTSERVER>20240315120000[0:GMT]
<LANGUAGE>ENG
</SONRS>
</SIGNONMSGSRSV1>
<BANKMSGSRSV1>
<STMTTRNRS>
<TRNUID>1
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<STMTRS>
<CURDEF>USD
<BANKACCTFROM>
<BANKID>123456789
<ACCTID>1234567890
<ACCTTYPE>CHECKING
</BANKACCTFROM>
<BANKTRANLIST>
<DTSTART>20240101120000[0:GMT]
<DTEND>20240131120000[0:GMT]
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20240105120000[0:GMT]
<TRNAMT>-1200.00
<FITID>F1
<NAME>ACME SUPPLY
</STMTTRN>
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20240107120000[0:GMT]
<TRNAMT>-1200.00
<FITID>F2
<NAME>ACME SUPPLY
</STMTTRN>
</BANKTRANLIST>
<LEDGERBAL>
<BALAMT>1000.00
<DTASOF>20240131120000[0:GMT]
</LEDGERBAL>
</STMTRS>
</STMTTRNRS>
</BANKMSGSRSV1>
</OFX>
`

func newTestServer(opts ...Option) *Server {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(engine.New(engine.DefaultConfig()), append([]Option{WithLogger(logger)}, opts...)...)
}

func post(t *testing.T, h http.Handler, target, contentType, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestServer().Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, engine.Version, body["engine_version"])
}

func TestAnalyze_CSV(t *testing.T) {
	rec := post(t, newTestServer().Handler(), "/v1/analyze", "text/csv", sampleCSV)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp AnalyzeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	assert.Equal(t, model.StateCompleted, resp.Result.State)
	assert.Equal(t, 8, resp.Ingest.Rows)
	assert.Equal(t, 7, resp.Ingest.Loaded)
	assert.Equal(t, 1, resp.Ingest.Skipped)

	types := map[model.DetectionType]int{}
	for _, d := range resp.Result.Detections {
		types[d.Type]++
	}
	assert.Equal(t, 1, types[model.DetectionDuplicate])
	assert.Equal(t, 1, types[model.DetectionRecurring])
	assert.Equal(t, "1.0.0", resp.Summary.Version)
	assert.NotEmpty(t, resp.Summary.TopVendors)
}

func TestAnalyze_OFX(t *testing.T) {
	tests := []struct {
		name        string
		target      string
		contentType string
	}{
		{name: "query parameter", target: "/v1/analyze?format=ofx", contentType: "text/plain"},
		{name: "content type", target: "/v1/analyze", contentType: "application/x-ofx"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := post(t, newTestServer().Handler(), tt.target, tt.contentType, sampleOFX)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			var resp AnalyzeResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, 2, resp.Ingest.Loaded)
			require.Len(t, resp.Result.Detections, 1)
			assert.Equal(t, model.DetectionDuplicate, resp.Result.Detections[0].Type)
		})
	}
}

func TestAnalyze_Errors(t *testing.T) {
	tests := []struct {
		name        string
		target      string
		contentType string
		body        string
		wantStatus  int
		wantError   string
	}{
		{
			name:        "unknown format parameter",
			target:      "/v1/analyze?format=xlsx",
			contentType: "text/csv",
			body:        sampleCSV,
			wantStatus:  http.StatusUnsupportedMediaType,
			wantError:   "unsupported input format",
		},
		{
			name:        "unknown content type",
			target:      "/v1/analyze",
			contentType: "application/pdf",
			body:        sampleCSV,
			wantStatus:  http.StatusUnsupportedMediaType,
			wantError:   "application/pdf",
		},
		{
			name:        "empty body",
			target:      "/v1/analyze",
			contentType: "text/csv",
			body:        "",
			wantStatus:  http.StatusUnprocessableEntity,
			wantError:   "no transactions",
		},
		{
			name:        "missing columns",
			target:      "/v1/analyze",
			contentType: "text/csv",
			body:        "transaction_id,date\nx,2024-01-01\n",
			wantStatus:  http.StatusBadRequest,
			wantError:   "missing required columns",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := post(t, newTestServer().Handler(), tt.target, tt.contentType, tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)

			var resp errorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Contains(t, resp.Error, tt.wantError)
		})
	}
}

func TestAnalyze_BodyTooLarge(t *testing.T) {
	rec := post(t, newTestServer(WithMaxBodyBytes(64)).Handler(), "/v1/analyze", "text/csv", sampleCSV)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestAnalyze_MethodNotAllowed(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestServer().Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/analyze", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandler_AccessLog(t *testing.T) {
	var buf bytes.Buffer
	rec := httptest.NewRecorder()
	newTestServer(WithAccessLog(&buf)).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, buf.String(), `"GET /health HTTP/1.1" 200`)
}

func TestHandler_RecoversPanics(t *testing.T) {
	s := newTestServer()
	r := s.Router()
	r.HandleFunc("/boom", func(http.ResponseWriter, *http.Request) { panic("boom") })

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	h := wrap(r, logger, io.Discard)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, buf.String(), "handler panic")
}

func TestListenAndServe_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- newTestServer().ListenAndServe(ctx, "127.0.0.1:0") }()

	cancel()
	assert.NoError(t, <-done)
}

func TestServer_TLS(t *testing.T) {
	cert, err := certs.NewFileManager(t.TempDir()).GetOrCreateCertificate()
	require.NoError(t, err)

	s := newTestServer(WithTLSCertificate(cert))
	require.NotNil(t, s.tlsConfig)
	assert.Equal(t, uint16(tls.VersionTLS12), s.tlsConfig.MinVersion)

	ts := httptest.NewUnstartedServer(s.Handler())
	ts.TLS = s.tlsConfig
	ts.StartTLS()
	defer ts.Close()

	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	require.NoError(t, err)
	pool := x509.NewCertPool()
	pool.AddCert(leaf)
	client := &http.Client{Transport: &http.Transport{TLSClientConfig: &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}}}

	resp, err := client.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
