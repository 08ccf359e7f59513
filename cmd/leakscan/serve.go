package main

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Veraticus/leakscan/internal/certs"
	"github.com/Veraticus/leakscan/internal/config"
	"github.com/Veraticus/leakscan/internal/engine"
	"github.com/Veraticus/leakscan/internal/server"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the analysis engine over HTTP",
		Long: `Start an HTTP server exposing the engine.

Endpoints:
  GET  /health       liveness and engine version
  POST /v1/analyze   CSV or OFX body in, JSON result out

Example:
  curl --data-binary @payments.csv -H 'Content-Type: text/csv' localhost:8080/v1/analyze`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}

	cmd.Flags().String("addr", "", "Listen address (default from server.addr)")
	cmd.Flags().Bool("tls", false, "Serve HTTPS with a self-signed localhost certificate")
	cmd.Flags().String("cert-dir", "~/.config/leakscan/certs", "Where the self-signed certificate is kept")
	_ = viper.BindPFlag(config.KeyServerAddr, cmd.Flags().Lookup("addr"))

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := slog.Default()
	opts := []server.Option{
		server.WithLogger(logger),
		server.WithAccessLog(cmd.ErrOrStderr()),
		server.WithLocation(cfg.Ingest.Location),
		server.WithMaxBodyBytes(cfg.Server.MaxBodyBytes),
	}

	if useTLS, _ := cmd.Flags().GetBool("tls"); useTLS {
		dir, _ := cmd.Flags().GetString("cert-dir")
		cert, err := tlsCertificate(certs.NewFileManager(config.ExpandPath(dir)))
		if err != nil {
			return err
		}
		opts = append(opts, server.WithTLSCertificate(cert))
	}

	srv := server.New(engine.New(cfg.Engine, engine.WithLogger(logger)), opts...)
	return srv.ListenAndServe(ctx, cfg.Server.Addr)
}

func tlsCertificate(m certs.Manager) (tls.Certificate, error) {
	cert, err := m.GetOrCreateCertificate()
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to prepare TLS certificate: %w", err)
	}
	return cert, nil
}
