// Package server exposes the leak detection engine over HTTP.
package server

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/Veraticus/leakscan/internal/common"
	"github.com/Veraticus/leakscan/internal/engine"
	"github.com/Veraticus/leakscan/internal/ingest"
	"github.com/Veraticus/leakscan/internal/model"
	"github.com/Veraticus/leakscan/internal/ofx"
	"github.com/Veraticus/leakscan/internal/report"
)

// Input formats accepted by the analyze endpoint.
const (
	FormatCSV = "csv"
	FormatOFX = "ofx"
)

const defaultMaxBodyBytes = 32 << 20

// AnalyzeResponse is the body returned by POST /v1/analyze.
type AnalyzeResponse struct {
	Result  *model.Result           `json:"result"`
	Summary report.ExecutiveSummary `json:"executive_summary"`
	Ingest  ingest.Stats            `json:"ingest"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Server serves analysis requests with a shared engine.
type Server struct {
	engine       *engine.Engine
	logger       *slog.Logger
	accessLog    io.Writer
	location     *time.Location
	tlsConfig    *tls.Config
	maxBodyBytes int64
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithAccessLog sets where the combined access log is written.
func WithAccessLog(w io.Writer) Option {
	return func(s *Server) {
		s.accessLog = w
	}
}

// WithLocation sets the timezone for CSV dates without an offset.
func WithLocation(loc *time.Location) Option {
	return func(s *Server) {
		s.location = loc
	}
}

// WithMaxBodyBytes limits the request body size.
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) {
		s.maxBodyBytes = n
	}
}

// WithTLSCertificate makes ListenAndServe serve HTTPS with cert.
func WithTLSCertificate(cert tls.Certificate) Option {
	return func(s *Server) {
		s.tlsConfig = &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		}
	}
}

// New creates a server around eng.
func New(eng *engine.Engine, opts ...Option) *Server {
	s := &Server{
		engine:       eng,
		logger:       slog.Default(),
		accessLog:    io.Discard,
		location:     time.UTC,
		maxBodyBytes: defaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router returns the route table without middleware.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", s.health).Methods(http.MethodGet)
	r.HandleFunc("/v1/analyze", s.analyze).Methods(http.MethodPost)

	return r
}

// Handler returns the router wrapped with access logging and panic recovery.
func (s *Server) Handler() http.Handler {
	return wrap(s.Router(), s.logger, s.accessLog)
}

func wrap(h http.Handler, logger *slog.Logger, accessLog io.Writer) http.Handler {
	recovered := handlers.RecoveryHandler(
		handlers.RecoveryLogger(slogRecoveryLogger{logger}),
	)(h)
	return handlers.LoggingHandler(accessLog, recovered)
}

// ListenAndServe serves on addr until ctx is canceled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		TLSConfig:         s.tlsConfig,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", addr, "tls", s.tlsConfig != nil)
		if s.tlsConfig != nil {
			errCh <- srv.ListenAndServeTLS("", "")
			return
		}
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown failed: %w", err)
		}
		return nil
	}
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":         "ok",
		"engine_version": engine.Version,
	})
}

func (s *Server) analyze(w http.ResponseWriter, r *http.Request) {
	format, err := requestFormat(r)
	if err != nil {
		writeError(w, http.StatusUnsupportedMediaType, err)
		return
	}

	body := http.MaxBytesReader(w, r.Body, s.maxBodyBytes)
	var (
		txns  []model.Transaction
		stats ingest.Stats
	)
	switch format {
	case FormatOFX:
		txns, stats, err = ofx.NewParser(s.logger).Parse(r.Context(), body)
	default:
		txns, stats, err = ingest.NewCSVReader(body, "request",
			ingest.WithLocation(s.location),
			ingest.WithLogger(s.logger),
		).Load(r.Context())
	}
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	result := s.engine.Run(txns)
	s.logger.Debug("analysis served",
		"format", format,
		"transactions", len(txns),
		"detections", len(result.Detections),
		"state", result.State)

	writeJSON(w, http.StatusOK, AnalyzeResponse{
		Result:  result,
		Summary: report.Summarize(result),
		Ingest:  stats,
	})
}

// requestFormat reads ?format= first and falls back to the Content-Type.
func requestFormat(r *http.Request) (string, error) {
	if f := r.URL.Query().Get("format"); f != "" {
		switch f {
		case FormatCSV, FormatOFX:
			return f, nil
		}
		return "", fmt.Errorf("%w: %q", common.ErrUnsupportedFormat, f)
	}

	ct := r.Header.Get("Content-Type")
	if ct == "" {
		return FormatCSV, nil
	}
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrUnsupportedFormat, err)
	}
	switch mediaType {
	case "text/csv", "text/plain", "application/csv":
		return FormatCSV, nil
	case "application/x-ofx", "application/ofx", "application/vnd.intu.qfx":
		return FormatOFX, nil
	}
	return "", fmt.Errorf("%w: %s", common.ErrUnsupportedFormat, mediaType)
}

func statusFor(err error) int {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, common.ErrNoTransactions):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadRequest
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// slogRecoveryLogger adapts slog to handlers.RecoveryHandlerLogger.
type slogRecoveryLogger struct {
	logger *slog.Logger
}

func (l slogRecoveryLogger) Println(v ...any) {
	l.logger.Error("handler panic", "panic", fmt.Sprint(v...))
}
